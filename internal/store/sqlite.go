// Package store publishes pipeline output tables to a SQLite database and
// serves read queries for the results API. A run is published as a whole
// inside one transaction: readers see either the previous run or the new one,
// never a partial mix.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"grantlens/internal/pipeline"
	"grantlens/pkg/contracts/domain"
)

// Store wraps the SQLite database holding the last published run.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the output database.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE nonprofit_quality (
	ein          TEXT PRIMARY KEY,
	score        REAL NOT NULL,
	completeness REAL NOT NULL,
	consistency  REAL NOT NULL,
	tier         TEXT NOT NULL
);
CREATE TABLE nonprofit_metrics (
	ein            TEXT PRIMARY KEY,
	total_funding  REAL NOT NULL,
	grant_count    INTEGER NOT NULL,
	concentration  REAL NOT NULL,
	cohort_key     TEXT NOT NULL
);
CREATE TABLE nonprofit_anomalies (
	ein         TEXT NOT NULL,
	metric      TEXT NOT NULL,
	z_score     REAL NOT NULL,
	severity    TEXT NOT NULL,
	cohort_key  TEXT NOT NULL,
	cohort_size INTEGER NOT NULL
);
CREATE TABLE nonprofit_impact (
	ein                  TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	classification       TEXT NOT NULL,
	region               TEXT NOT NULL,
	score                REAL NOT NULL,
	quality_component    REAL NOT NULL,
	efficiency_component REAL NOT NULL,
	anomaly_penalty      REAL NOT NULL,
	rank                 INTEGER NOT NULL
);
CREATE TABLE run_manifest (
	run_id             TEXT PRIMARY KEY,
	started_at         TEXT NOT NULL,
	completed_at       TEXT NOT NULL,
	nonprofit_count    INTEGER NOT NULL,
	grant_count        INTEGER NOT NULL,
	unresolved_grants  INTEGER NOT NULL,
	config_fingerprint TEXT NOT NULL
);
`

var outputTables = []string{
	"nonprofit_quality",
	"nonprofit_metrics",
	"nonprofit_anomalies",
	"nonprofit_impact",
	"run_manifest",
}

// Publish replaces the published output tables with the given run's results.
// Everything happens inside one transaction so a failed publish leaves the
// previous run untouched.
func (s *Store) Publish(ctx context.Context, result *pipeline.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin publish transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range outputTables {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("drop table %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create output tables: %w", err)
	}

	if err := s.insertRun(ctx, tx, result); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit publish transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "published pipeline run",
		"run_id", result.Manifest.RunID,
		"nonprofits", len(result.Impacts),
		"anomalies", len(result.Flags),
	)

	return nil
}

func (s *Store) insertRun(ctx context.Context, tx *sql.Tx, result *pipeline.Result) error {
	for _, q := range result.Qualities {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO nonprofit_quality (ein, score, completeness, consistency, tier)
			 VALUES (?, ?, ?, ?, ?)`,
			q.EIN, q.Score, q.Completeness, q.Consistency, string(q.Tier))
		if err != nil {
			return fmt.Errorf("insert quality row for %s: %w", q.EIN, err)
		}
	}

	for _, m := range result.Metrics {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO nonprofit_metrics (ein, total_funding, grant_count, concentration, cohort_key)
			 VALUES (?, ?, ?, ?, ?)`,
			m.EIN, m.TotalFunding, m.GrantCount, m.Concentration, m.CohortKey)
		if err != nil {
			return fmt.Errorf("insert metrics row for %s: %w", m.EIN, err)
		}
	}

	for _, f := range result.Flags {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO nonprofit_anomalies (ein, metric, z_score, severity, cohort_key, cohort_size)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			f.EIN, f.Metric, f.ZScore, string(f.Severity), f.CohortKey, f.CohortSize)
		if err != nil {
			return fmt.Errorf("insert anomaly row for %s: %w", f.EIN, err)
		}
	}

	nonprofitByEIN := make(map[string]domain.NonprofitRecord, len(result.Nonprofits))
	for _, np := range result.Nonprofits {
		nonprofitByEIN[np.EIN] = np
	}
	for _, imp := range result.Impacts {
		np := nonprofitByEIN[imp.EIN]
		_, err := tx.ExecContext(ctx,
			`INSERT INTO nonprofit_impact
			 (ein, name, classification, region, score, quality_component, efficiency_component, anomaly_penalty, rank)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			imp.EIN, np.Name, np.Classification, np.Region,
			imp.Score, imp.QualityComponent, imp.EfficiencyComponent, imp.AnomalyPenalty, imp.Rank)
		if err != nil {
			return fmt.Errorf("insert impact row for %s: %w", imp.EIN, err)
		}
	}

	m := result.Manifest
	_, err := tx.ExecContext(ctx,
		`INSERT INTO run_manifest
		 (run_id, started_at, completed_at, nonprofit_count, grant_count, unresolved_grants, config_fingerprint)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.RunID, m.StartedAt.Format(timeLayout), m.CompletedAt.Format(timeLayout),
		m.NonprofitCount, m.GrantCount, m.UnresolvedGrants, m.ConfigFingerprint)
	if err != nil {
		return fmt.Errorf("insert run manifest: %w", err)
	}

	return nil
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"
