// Package anomaly flags nonprofits whose aggregate metrics are statistical
// outliers relative to their peer cohort. Detection is deterministic: the
// same metrics and configuration always yield the same flag set.
package anomaly

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"grantlens/internal/config"
	"grantlens/pkg/contracts/domain"
)

// Detector evaluates cohort z-scores for each metric of interest.
type Detector struct {
	cfg    config.AnomalyConfig
	logger *slog.Logger

	maxConcurrency int
}

// New creates a detector from validated configuration.
func New(cfg config.AnomalyConfig, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		cfg:            cfg,
		logger:         logger,
		maxConcurrency: 4,
	}
}

// Detect produces zero or more AnomalyFlags per nonprofit. Cohorts below the
// configured minimum size are skipped entirely, and a metric with zero
// standard deviation inside a cohort produces no flags for that metric. Both
// cases are expected data conditions, not errors. Cohorts are evaluated in
// parallel; all per-nonprofit metrics of a cohort are collected before its
// statistics are computed.
func (d *Detector) Detect(ctx context.Context, metrics []domain.AggregateMetrics) ([]domain.AnomalyFlag, error) {
	cohorts := make(map[string][]domain.AggregateMetrics)
	for _, m := range metrics {
		cohorts[m.CohortKey] = append(cohorts[m.CohortKey], m)
	}

	keys := make([]string, 0, len(cohorts))
	for key := range cohorts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	results := make([][]domain.AnomalyFlag, len(keys))
	skippedCohorts := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.maxConcurrency)

	for i, key := range keys {
		members := cohorts[key]
		if len(members) < d.cfg.MinCohortSize {
			skippedCohorts++
			d.logger.DebugContext(ctx, "cohort below minimum size, skipping",
				"cohort", key,
				"size", len(members),
				"min_size", d.cfg.MinCohortSize,
			)
			continue
		}

		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			results[i] = d.detectCohort(key, members)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var flags []domain.AnomalyFlag
	for _, cohortFlags := range results {
		flags = append(flags, cohortFlags...)
	}

	// Stable output order regardless of cohort scheduling.
	sort.Slice(flags, func(i, j int) bool {
		if flags[i].EIN != flags[j].EIN {
			return flags[i].EIN < flags[j].EIN
		}
		return flags[i].Metric < flags[j].Metric
	})

	d.logger.InfoContext(ctx, "anomaly detection completed",
		"cohorts", len(cohorts),
		"skipped_cohorts", skippedCohorts,
		"flags", len(flags),
	)

	return flags, nil
}

// detectCohort evaluates every metric of interest against one cohort.
func (d *Detector) detectCohort(key string, members []domain.AggregateMetrics) []domain.AnomalyFlag {
	var flags []domain.AnomalyFlag

	for _, metric := range domain.AnomalyMetrics() {
		values := make([]float64, len(members))
		for i, m := range members {
			values[i] = metricValue(m, metric)
		}

		stats := computeStats(values)
		if stats.stdDev == 0 {
			// All members identical: no meaningful deviation is definable.
			continue
		}

		for i, m := range members {
			z := stats.zScore(values[i])
			severity, flagged := d.severityFor(z)
			if !flagged {
				continue
			}
			flags = append(flags, domain.AnomalyFlag{
				EIN:        m.EIN,
				Metric:     metric,
				ZScore:     z,
				Severity:   severity,
				CohortKey:  key,
				CohortSize: len(members),
			})
		}
	}

	return flags
}

// severityFor assigns the tier for an observed z-score. Tier boundaries are
// inclusive on the severe side: a value sitting exactly on a boundary is
// assigned the higher tier.
func (d *Detector) severityFor(z float64) (domain.Severity, bool) {
	abs := math.Abs(z)
	switch {
	case abs >= d.cfg.SevereZ:
		return domain.SeveritySevere, true
	case abs >= d.cfg.ModerateZ:
		return domain.SeverityModerate, true
	default:
		return "", false
	}
}

func metricValue(m domain.AggregateMetrics, metric string) float64 {
	switch metric {
	case domain.MetricTotalFunding:
		return m.TotalFunding
	case domain.MetricGrantCount:
		return float64(m.GrantCount)
	case domain.MetricConcentration:
		return m.Concentration
	default:
		return 0
	}
}
