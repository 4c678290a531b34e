package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cleaning-crm/common"
	"cleaning-crm/importer"
	"cleaning-crm/leads"
	"cleaning-crm/parsers"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type importOptions struct {
	mappings  []string
	delimiter string
	dryRun    bool
}

func newImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import leads from a CSV file",
		Long: "Previews the file, suggests a column mapping and writes the rows to the\n" +
			"leads table in batches. A failed batch stops the import; earlier batches stay.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer closeDB(db, log)

			if err := Migrate(db); err != nil {
				return err
			}
			sessCfg, err := sessionConfig(cfg)
			if err != nil {
				return err
			}

			sink := importer.NewGormSink(db, &leads.LeadModel{})
			return runImport(cmd.Context(), cmd.OutOrStdout(), args[0], opts, cfg, sessCfg, sink, log)
		},
	}

	cmd.Flags().StringArrayVar(&opts.mappings, "map", nil, "Override a mapping as field=column (repeatable, empty column ignores the field)")
	cmd.Flags().StringVar(&opts.delimiter, "delimiter", ",", "Field delimiter: comma, semicolon, tab or pipe")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Show the preview and mapping, write nothing")

	return cmd
}

func runImport(ctx context.Context, out io.Writer, path string, opts importOptions, cfg *common.Config,
	sessCfg importer.SessionConfig, sink importer.Sink, log logrus.FieldLogger) error {

	overrides, err := parseMappingFlags(opts.mappings)
	if err != nil {
		return err
	}
	comma, err := parsers.ParseDelimiter(opts.delimiter)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	session := importer.NewSession("cli", sessCfg)
	if err := session.Load(ctx, filepath.Base(path), data, parsers.Options{Comma: comma, LazyQuotes: true}); err != nil {
		return err
	}
	for _, field := range sortedKeys(overrides) {
		if err := session.SetMapping(field, overrides[field]); err != nil {
			return err
		}
	}

	snap := session.Snapshot()
	printPreview(out, snap)
	printMapping(out, snap)

	if opts.dryRun {
		if err := importer.ValidateMapping(snap.Fields, snap.Mapping, snap.Headers); err != nil {
			return err
		}
		color.New(color.FgCyan).Fprintln(out, "Dry run: mapping is valid, nothing was written.")
		return nil
	}

	if err := session.Begin(); err != nil {
		return err
	}

	im := importer.NewImporter(sink,
		importer.WithBatchSize(cfg.ImportBatchSize),
		importer.WithDelay(cfg.ImportBatchDelay),
		importer.WithLogger(log),
	)

	done, stopped := make(chan struct{}), make(chan struct{})
	go func() {
		defer close(stopped)
		reportProgress(out, session, done)
	}()
	result, runErr := session.Run(ctx, im)
	close(done)
	<-stopped
	fmt.Fprintln(out)

	if runErr != nil {
		final := session.Snapshot()
		var batchErr *importer.BatchError
		if errors.As(runErr, &batchErr) {
			color.New(color.FgRed).Fprintf(out, "Import stopped at batch %d of %d: %s\n",
				batchErr.Batch, batchErr.Batches, importer.DisplayMessage(batchErr.Err))
			color.New(color.FgYellow).Fprintf(out, "%d of %d rows were already imported and were kept.\n",
				batchErr.Imported, batchErr.Total)
			return runErr
		}
		color.New(color.FgRed).Fprintf(out, "Import failed: %s\n", final.Error)
		return runErr
	}

	color.New(color.FgGreen).Fprintf(out, "Imported %d leads in %d batches.\n", result.Imported, result.Batches)
	return nil
}

// parseMappingFlags turns repeated field=column flags into a mapping
func parseMappingFlags(flags []string) (map[string]string, error) {
	overrides := make(map[string]string, len(flags))
	for _, f := range flags {
		field, column, ok := strings.Cut(f, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid --map %q, want field=column", f)
		}
		overrides[field] = strings.TrimSpace(column)
	}
	return overrides, nil
}

func printPreview(out io.Writer, snap importer.Snapshot) {
	color.New(color.FgCyan, color.Bold).Fprintf(out, "\nPreview of %s\n", snap.FileName)

	table := tablewriter.NewWriter(out)
	table.SetHeader(snap.Headers)
	table.SetAutoFormatHeaders(false)
	for _, row := range snap.Preview {
		cells := make([]string, len(snap.Headers))
		for i, h := range snap.Headers {
			cells[i] = row[h]
		}
		table.Append(cells)
	}
	table.Render()
}

func printMapping(out io.Writer, snap importer.Snapshot) {
	color.New(color.FgCyan, color.Bold).Fprintln(out, "\nColumn mapping")

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Field", "Column", "Required"})
	table.SetAutoFormatHeaders(false)
	for _, f := range snap.Fields {
		column := snap.Mapping[f.Key]
		if column == "" {
			column = "(ignored)"
		}
		required := ""
		if f.Required {
			required = "yes"
		}
		table.Append([]string{f.Label, column, required})
	}
	table.Render()
}

func reportProgress(out io.Writer, session *importer.Session, done <-chan struct{}) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			snap := session.Snapshot()
			fmt.Fprintf(out, "\rImporting... %3d%% (%d/%d)", snap.Percent, snap.Processed, snap.Total)
		}
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
