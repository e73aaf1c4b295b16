// Command ingest imports SDOT collision records from the ArcGIS
// FeatureServer into PostgreSQL.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roadwatch/backend/internal/config"
	applog "github.com/roadwatch/backend/internal/logger"
	"github.com/roadwatch/backend/internal/repository/postgres"
	"github.com/roadwatch/backend/internal/service"
)

var (
	batchSize  int  // features per page, overrides INGEST_BATCH_SIZE
	maxBatches int  // stop after this many pages, 0 for all
	migrate    bool // apply schema migrations before importing
)

var rootCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Import SDOT collisions into the RoadWatch database",
	Long: `Pages through the SDOT collisions FeatureServer ordered by INCKEY and
upserts every record. Lookup rows are created on first sight.

Examples:
  ingest                      # import everything
  ingest --max-batches 5      # import the first 5 pages
  ingest --batch-size 500 --migrate`,
	SilenceUsage: true,
	RunE:         runIngest,
}

func init() {
	rootCmd.Flags().IntVar(&batchSize, "batch-size", 0, "Features per page (default INGEST_BATCH_SIZE)")
	rootCmd.Flags().IntVar(&maxBatches, "max-batches", 0, "Stop after this many pages (0 imports everything)")
	rootCmd.Flags().BoolVar(&migrate, "migrate", false, "Apply schema migrations before importing")
}

func runIngest(cmd *cobra.Command, _ []string) error {
	if maxBatches < 0 {
		return fmt.Errorf("--max-batches must not be negative")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if batchSize > 0 {
		cfg.Ingest.BatchSize = batchSize
	}

	logger, err := applog.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := postgres.NewConnection(connectCtx, cfg.Database)
	cancel()
	if err != nil {
		return err
	}
	defer pool.Close()

	if migrate {
		if err := postgres.RunMigrations(pool, logger); err != nil {
			return err
		}
	}

	svc := service.NewIngestService(
		cfg.Ingest.ArcGISURL,
		cfg.Ingest.BatchSize,
		cfg.Ingest.Timeout,
		postgres.NewPostgresRepository(pool),
		logger,
	)

	start := time.Now()
	report, err := svc.Run(ctx, maxBatches)
	logger.Info("Ingest finished",
		zap.Int("batches", report.Batches),
		zap.Int("fetched", report.Fetched),
		zap.Int("written", report.Written),
		zap.Int("skipped", report.Skipped),
		zap.Duration("elapsed", time.Since(start)),
	)
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
