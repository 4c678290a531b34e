package main

import (
	"fmt"
	"os"

	"cleaning-crm/common"
	"cleaning-crm/importer"
	"cleaning-crm/leads"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "cleaning-crm",
		Short:        "Lead pipeline and CSV importer for a cleaning company",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newImportCmd())
	return root
}

// bootstrap loads the configuration and opens the data store
func bootstrap() (*common.Config, *logrus.Logger, *gorm.DB, error) {
	cfg, err := common.LoadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := common.NewLogger(cfg.LogLevel)

	db, err := common.OpenDB(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, db, nil
}

func closeDB(db *gorm.DB, log logrus.FieldLogger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.WithError(err).Warn("failed to get sql.DB")
		return
	}
	sqlDB.Close()
}

// Migrate creates or updates every table the service uses
func Migrate(db *gorm.DB) error {
	if err := leads.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate leads: %w", err)
	}
	if err := common.AutoMigrateMetrics(db); err != nil {
		return fmt.Errorf("migrate metrics: %w", err)
	}
	return nil
}

// sessionConfig builds the importer settings, adding rules from
// MAPPING_RULES_FILE in front of the built-in ones
func sessionConfig(cfg *common.Config) (importer.SessionConfig, error) {
	rules := importer.DefaultRules
	if cfg.MappingRulesFile != "" {
		loaded, err := importer.LoadRules(cfg.MappingRulesFile, importer.LeadFields, importer.DefaultRules)
		if err != nil {
			return importer.SessionConfig{}, err
		}
		rules = loaded
	}
	return importer.SessionConfig{
		Fields:      importer.LeadFields,
		Rules:       rules,
		PreviewRows: cfg.ImportPreviewRows,
	}, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer closeDB(db, log)

			if err := Migrate(db); err != nil {
				return err
			}
			log.WithField("driver", cfg.DBDriver).Info("migrations applied")
			return nil
		},
	}
}
