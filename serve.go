package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cleaning-crm/common"
	"cleaning-crm/exports"
	"cleaning-crm/importer"
	"cleaning-crm/imports"
	"cleaning-crm/jobs"
	"cleaning-crm/leads"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
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

			if cfg.AppEnv == "production" {
				gin.SetMode(gin.ReleaseMode)
			}
			r, importHandler := setupRouter(cfg, sessCfg, db, log)

			srv := &http.Server{Addr: ":" + cfg.AppPort, Handler: r}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go importHandler.RunEviction(ctx)
			go func() {
				log.WithField("port", cfg.AppPort).Info("server starting")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.WithError(err).Error("server stopped")
					stop()
				}
			}()

			<-ctx.Done()
			log.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("graceful shutdown failed")
			}
			// running imports cannot be cancelled; let them finish
			importHandler.Wait()
			return nil
		},
	}
}

// setupRouter wires every handler to db. Imported rows go through a gorm
// sink on the leads table.
func setupRouter(cfg *common.Config, sessCfg importer.SessionConfig, db *gorm.DB, log logrus.FieldLogger) (*gin.Engine, *imports.Handler) {
	r := gin.New()
	r.RedirectTrailingSlash = false
	r.Use(gin.Recovery())
	r.Use(common.MetricsMiddleware(db, log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	leads.NewHandler(db, log).RegisterRoutes(v1)
	jobs.NewHandler(db, log).RegisterRoutes(v1)
	exports.NewHandler(db, log).RegisterRoutes(v1)

	sink := importer.NewGormSink(db, &leads.LeadModel{})
	importHandler := imports.NewHandler(imports.NewStore(sessCfg), sink, cfg, log)
	importHandler.RegisterRoutes(v1.Group("/imports"))

	return r, importHandler
}
