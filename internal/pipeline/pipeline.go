// Package pipeline orchestrates the full scoring run: normalization, quality
// scoring, metric aggregation, anomaly detection, and impact scoring. Each
// stage consumes the complete output of its dependency; quality scoring and
// aggregation only share the normalized records and run concurrently.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"grantlens/internal/aggregate"
	"grantlens/internal/anomaly"
	"grantlens/internal/config"
	"grantlens/internal/impact"
	"grantlens/internal/normalize"
	"grantlens/internal/quality"
	"grantlens/pkg/contracts/domain"
)

// Result is the complete output of one pipeline run. All tables are derived
// values regenerated per run; nothing here is ever mutated in place.
type Result struct {
	Manifest   domain.RunManifest
	Nonprofits []domain.NonprofitRecord
	Grants     []domain.GrantRecord
	Qualities  []domain.QualityScore
	Metrics    []domain.AggregateMetrics
	Flags      []domain.AnomalyFlag
	Impacts    []domain.ImpactScore
}

// Pipeline wires the stages together with a shared configuration and logger.
type Pipeline struct {
	cfg    *config.Config
	logger *slog.Logger

	normalizer *normalize.Normalizer
	scorer     *quality.Scorer
	aggregator *aggregate.Aggregator
	detector   *anomaly.Detector
	impacter   *impact.Scorer
}

// New creates a pipeline from validated configuration.
func New(cfg *config.Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:        cfg,
		logger:     logger,
		normalizer: normalize.New(logger),
		scorer:     quality.New(cfg.Quality),
		aggregator: aggregate.New(logger),
		detector:   anomaly.New(cfg.Anomaly, logger),
		impacter:   impact.New(cfg.Impact, logger),
	}
}

// Run executes the full batch computation over pre-loaded raw rows. The run
// either completes with a full Result or fails without publishing anything;
// recoverable data problems (malformed fields, unresolved references,
// degenerate cohorts) never fail the run.
func (p *Pipeline) Run(ctx context.Context, nonprofitRows, grantRows []normalize.RawRow) (*Result, error) {
	start := time.Now().UTC()
	runID := uuid.New().String()

	p.logger.InfoContext(ctx, "starting pipeline run",
		"run_id", runID,
		"nonprofit_rows", len(nonprofitRows),
		"grant_rows", len(grantRows),
	)

	nonprofits := p.normalizer.Nonprofits(ctx, nonprofitRows)
	if len(nonprofits) == 0 {
		return nil, fmt.Errorf("no usable nonprofit records in input")
	}

	knownEINs := make(map[string]bool, len(nonprofits))
	for _, np := range nonprofits {
		knownEINs[np.EIN] = true
	}
	grants, unresolved := p.normalizer.Grants(ctx, grantRows, knownEINs)

	// Quality scoring and aggregation both depend only on the normalized
	// records and are independent of each other.
	var (
		qualities []domain.QualityScore
		metrics   []domain.AggregateMetrics
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		qualities = make([]domain.QualityScore, len(nonprofits))
		for i, np := range nonprofits {
			qualities[i] = p.scorer.Score(np)
		}
		return nil
	})
	g.Go(func() error {
		metrics = p.aggregator.Aggregate(gctx, nonprofits, grants)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scoring stages: %w", err)
	}

	flags, err := p.detector.Detect(ctx, metrics)
	if err != nil {
		return nil, fmt.Errorf("anomaly detection: %w", err)
	}

	impacts := p.impacter.Score(ctx, qualities, metrics, flags)

	completed := time.Now().UTC()
	result := &Result{
		Manifest: domain.RunManifest{
			RunID:             runID,
			StartedAt:         start,
			CompletedAt:       completed,
			NonprofitCount:    len(nonprofits),
			GrantCount:        len(grants),
			UnresolvedGrants:  unresolved,
			ConfigFingerprint: p.cfg.Fingerprint(),
		},
		Nonprofits: nonprofits,
		Grants:     grants,
		Qualities:  qualities,
		Metrics:    metrics,
		Flags:      flags,
		Impacts:    impacts,
	}

	p.logger.InfoContext(ctx, "pipeline run completed",
		"run_id", runID,
		"duration", completed.Sub(start),
		"nonprofits", len(nonprofits),
		"flags", len(flags),
	)

	return result, nil
}
