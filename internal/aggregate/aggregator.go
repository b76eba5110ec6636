// Package aggregate joins grant records to nonprofits and computes the
// per-nonprofit derived metrics the anomaly detector and impact scorer
// consume. Aggregation is a pure grouping-and-reduce over in-memory
// collections keyed by EIN.
package aggregate

import (
	"context"
	"log/slog"
	"strings"

	"grantlens/pkg/contracts/domain"
)

// UnclassifiedBucket is the cohort component used when classification or
// region is missing, so cohort assignment stays total.
const UnclassifiedBucket = "unclassified"

// Aggregator computes AggregateMetrics from normalized records.
type Aggregator struct {
	logger *slog.Logger
}

// New creates an aggregator with the given logger.
func New(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{logger: logger}
}

// Aggregate produces exactly one AggregateMetrics per nonprofit in the input
// set. Nonprofits with zero resolvable grants get zero-valued metrics. Grants
// whose recipient reference did not resolve are skipped here; the normalizer
// already counted and logged them.
func (a *Aggregator) Aggregate(ctx context.Context, nonprofits []domain.NonprofitRecord, grants []domain.GrantRecord) []domain.AggregateMetrics {
	type group struct {
		total   float64
		count   int
		largest float64
	}

	groups := make(map[string]*group, len(nonprofits))
	for _, np := range nonprofits {
		groups[np.EIN] = &group{}
	}

	skipped := 0
	for _, g := range grants {
		if !g.Resolved {
			skipped++
			continue
		}
		grp, ok := groups[g.RecipientEIN]
		if !ok {
			// Resolved flag is only trustworthy against the same nonprofit
			// set; treat a mismatch as unresolved.
			skipped++
			continue
		}
		grp.total += g.Amount
		grp.count++
		if g.Amount > grp.largest {
			grp.largest = g.Amount
		}
	}

	metrics := make([]domain.AggregateMetrics, 0, len(nonprofits))
	for _, np := range nonprofits {
		grp := groups[np.EIN]
		m := domain.AggregateMetrics{
			EIN:          np.EIN,
			TotalFunding: grp.total,
			GrantCount:   grp.count,
			CohortKey:    CohortKey(np.Classification, np.Region),
		}
		if grp.total > 0 {
			m.Concentration = grp.largest / grp.total
		}
		metrics = append(metrics, m)
	}

	a.logger.InfoContext(ctx, "aggregated grant metrics",
		"nonprofits", len(nonprofits),
		"grants", len(grants),
		"excluded_grants", skipped,
	)

	return metrics
}

// CohortKey assigns the peer-comparison cohort for a nonprofit. The function
// is total and stable: every classification/region pair maps to exactly one
// key, with missing parts falling into the unclassified bucket.
func CohortKey(classification, region string) string {
	c := strings.ToLower(strings.TrimSpace(classification))
	if c == "" {
		c = UnclassifiedBucket
	}
	r := strings.ToLower(strings.TrimSpace(region))
	if r == "" {
		r = UnclassifiedBucket
	}
	return c + "|" + r
}
