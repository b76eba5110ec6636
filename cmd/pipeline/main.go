// Command pipeline runs the full scoring batch: it ingests the raw nonprofit
// and grant CSVs, computes quality scores, aggregate metrics, anomaly flags,
// and the ranked impact table, then publishes everything atomically to the
// output database and writes CSV/XLSX exports.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"grantlens/internal/config"
	"grantlens/internal/exporter"
	"grantlens/internal/infrastructure"
	"grantlens/internal/ingest"
	"grantlens/internal/pipeline"
	"grantlens/internal/store"
	"grantlens/pkg/contracts"
)

func main() {
	configFile := flag.String("config", "config.yaml", "path to configuration file")
	dataDir := flag.String("data", "", "input data directory (overrides config)")
	outputDir := flag.String("out", "", "output directory (overrides config)")
	skipExports := flag.Bool("skip-exports", false, "publish to the database only, skip CSV/XLSX exports")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		// Invalid configuration silently corrupts every downstream score,
		// so it is the one fatal condition surfaced before computation.
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.Paths.DataDir = *dataDir
	}
	if *outputDir != "" {
		cfg.Paths.OutputDir = *outputDir
		cfg.Paths.DatabaseFile = filepath.Join(*outputDir, "nonprofit_grants.db")
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Error("failed to initialize logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting pipeline", "version", contracts.VersionString())

	ctx := context.Background()

	nonprofitPath := filepath.Join(cfg.Paths.DataDir, cfg.Paths.NonprofitsCSV)
	nonprofitRows, err := ingest.ReadNonprofits(nonprofitPath)
	if err != nil {
		logger.Error("failed to read nonprofit CSV", "path", nonprofitPath, "error", err)
		os.Exit(1)
	}

	grantPath := filepath.Join(cfg.Paths.DataDir, cfg.Paths.GrantsCSV)
	grantRows, err := ingest.ReadGrants(grantPath)
	if err != nil {
		logger.Error("failed to read grant CSV", "path", grantPath, "error", err)
		os.Exit(1)
	}

	p := pipeline.New(cfg, logger)
	result, err := p.Run(ctx, nonprofitRows, grantRows)
	if err != nil {
		logger.Error("pipeline run failed", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.Paths.DatabaseFile, logger)
	if err != nil {
		logger.Error("failed to open output database", "path", cfg.Paths.DatabaseFile, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Publish(ctx, result); err != nil {
		logger.Error("failed to publish run", "error", err)
		os.Exit(1)
	}

	if !*skipExports {
		csvWriter := exporter.NewCSVWriter(cfg.Paths.OutputDir, logger)
		if err := csvWriter.WriteAll(result); err != nil {
			logger.Error("failed to write CSV exports", "error", err)
			os.Exit(1)
		}
		if err := exporter.WriteImpactReport(result, cfg.Paths.OutputDir, logger); err != nil {
			logger.Error("failed to write impact report", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("run published",
		"run_id", result.Manifest.RunID,
		"database", cfg.Paths.DatabaseFile,
		"nonprofits", result.Manifest.NonprofitCount,
		"anomaly_flags", len(result.Flags),
		"unresolved_grants", result.Manifest.UnresolvedGrants,
	)
}
