package parsers

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// ErrNoHeader is returned when a file has no header row at all
var ErrNoHeader = errors.New("file has no header row")

const utf8BOM = "\ufeff"

// Record represents a single CSV row as a map of column name to value
type Record map[string]string

// Options tunes the underlying csv.Reader
type Options struct {
	// Comma is the field delimiter. Zero means ','.
	Comma rune
	// LazyQuotes tolerates a stray quote inside an unquoted field.
	// ReadCSV and PreviewCSV still fail a file whose quoted field is never
	// closed; ParseCSV hands the flag to csv.Reader as is.
	LazyQuotes bool
	// Limit stops the stream after this many data rows. Zero means no limit.
	Limit int
}

// Table is a fully read file: ordered headers plus rows in file order
type Table struct {
	Headers []string
	Rows    []Record
}

// ParseDelimiter turns a user supplied delimiter name into a rune
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "", ",", "comma":
		return ',', nil
	case ";", "semicolon":
		return ';', nil
	case "\t", "\\t", "tab":
		return '\t', nil
	case "|", "pipe":
		return '|', nil
	}
	return 0, fmt.Errorf("unsupported delimiter %q", s)
}

func newReader(reader io.Reader, opts Options) *csv.Reader {
	csvReader := csv.NewReader(reader)
	if opts.Comma != 0 {
		csvReader.Comma = opts.Comma
	}
	csvReader.LazyQuotes = opts.LazyQuotes
	csvReader.ReuseRecord = true   // Reuse slice for better performance
	csvReader.FieldsPerRecord = -1 // Allow variable number of fields
	return csvReader
}

// normalizeHeaders trims headers, strips a leading BOM and renames duplicates
// ("Phone", "Phone" -> "Phone", "Phone_1") so every column keeps its own key.
func normalizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, h := range raw {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		h = strings.TrimSpace(h)
		if n, dup := seen[h]; dup {
			seen[h] = n + 1
			h = fmt.Sprintf("%s_%d", h, n+1)
		}
		seen[h] = 0
		headers[i] = h
	}
	return headers
}

// ParseCSV reads the header row and then streams data rows via channel.
// Empty lines are skipped. A malformed row is reported on the error channel
// and the stream moves on to the next row; cancelling ctx stops the stream.
// Caller must consume both channels to avoid goroutine leak.
func ParseCSV(ctx context.Context, reader io.Reader, opts Options) ([]string, <-chan Record, <-chan error, error) {
	csvReader := newReader(reader, opts)

	// Read header row
	raw, err := csvReader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil, nil, ErrNoHeader
		}
		return nil, nil, nil, fmt.Errorf("read header row: %w", err)
	}
	headers := normalizeHeaders(raw)

	records := make(chan Record, 100) // Buffered for better throughput
	errs := make(chan error, 1)

	go func() {
		defer close(records)
		defer close(errs)

		count := 0
		for {
			if opts.Limit > 0 && count >= opts.Limit {
				return
			}

			row, err := csvReader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				select {
				case errs <- err:
					continue // Skip malformed rows, continue processing
				case <-ctx.Done():
					return
				}
			}

			record := make(Record, len(headers))
			for i, header := range headers {
				if i < len(row) {
					record[header] = row[i]
				} else {
					record[header] = "" // Missing column value
				}
			}

			select {
			case records <- record:
				count++
			case <-ctx.Done():
				return
			}
		}
	}()

	return headers, records, errs, nil
}

// ReadCSV reads the whole file. Any malformed row fails the whole read.
func ReadCSV(ctx context.Context, reader io.Reader, opts Options) (*Table, error) {
	return collect(ctx, reader, opts)
}

// PreviewCSV reads the headers and at most limit data rows
func PreviewCSV(ctx context.Context, reader io.Reader, limit int, opts Options) (*Table, error) {
	opts.Limit = limit
	return collect(ctx, reader, opts)
}

// collect reads strictly first. With LazyQuotes set, only a bare quote
// error triggers a lenient second read; an unterminated quoted field stays
// an error.
func collect(ctx context.Context, reader io.Reader, opts Options) (*Table, error) {
	if !opts.LazyQuotes {
		return collectOnce(ctx, reader, opts)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	opts.LazyQuotes = false
	table, err := collectOnce(ctx, bytes.NewReader(data), opts)
	if !errors.Is(err, csv.ErrBareQuote) {
		return table, err
	}
	if unterminatedQuote(string(data), opts.Comma) {
		return nil, fmt.Errorf("parse file: %w", csv.ErrQuote)
	}
	opts.LazyQuotes = true
	return collectOnce(ctx, bytes.NewReader(data), opts)
}

// unterminatedQuote reports whether data ends inside a quoted field, reading
// quotes the way a lenient csv.Reader does: a quote opens a field only at
// its start, and inside it only a quote before a delimiter or line end
// closes it.
func unterminatedQuote(data string, comma rune) bool {
	if comma == 0 {
		comma = ','
	}
	inQuotes, fieldStart := false, true
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRuneInString(data[i:])
		i += size
		switch {
		case inQuotes:
			if r != '"' {
				continue
			}
			next, n := utf8.DecodeRuneInString(data[i:])
			switch {
			case i == len(data) || next == comma || next == '\n' || next == '\r':
				inQuotes = false
			case next == '"':
				i += n
			}
		case r == '"' && fieldStart:
			inQuotes, fieldStart = true, false
		case r == comma || r == '\n':
			fieldStart = true
		default:
			fieldStart = false
		}
	}
	return inQuotes
}

func collectOnce(ctx context.Context, reader io.Reader, opts Options) (*Table, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	headers, records, errs, err := ParseCSV(ctx, reader, opts)
	if err != nil {
		return nil, err
	}

	table := &Table{Headers: headers}
	var firstErr error
	for records != nil || errs != nil {
		select {
		case record, ok := <-records:
			if !ok {
				records = nil
				continue
			}
			if firstErr == nil {
				table.Rows = append(table.Rows, record)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if firstErr == nil {
				firstErr = err
				cancel()
			}
		}
	}

	if firstErr != nil {
		return nil, fmt.Errorf("parse file: %w", firstErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return table, nil
}
