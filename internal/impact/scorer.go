// Package impact blends quality scores, aggregate metrics, and anomaly flags
// into one ranked impact score per nonprofit. The ranking is a deterministic
// total order: descending score with ties broken by EIN.
package impact

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"grantlens/internal/config"
	"grantlens/pkg/contracts/domain"
)

// Scorer computes the final impact scores.
type Scorer struct {
	cfg    config.ImpactConfig
	logger *slog.Logger
}

// New creates a scorer from validated configuration.
func New(cfg config.ImpactConfig, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{cfg: cfg, logger: logger}
}

// Score produces one ImpactScore per entry in metrics, which the aggregator
// guarantees covers every nonprofit in the record set. The returned slice is
// sorted by rank.
func (s *Scorer) Score(ctx context.Context, qualities []domain.QualityScore, metrics []domain.AggregateMetrics, flags []domain.AnomalyFlag) []domain.ImpactScore {
	qualityByEIN := make(map[string]domain.QualityScore, len(qualities))
	for _, q := range qualities {
		qualityByEIN[q.EIN] = q
	}

	type flagCounts struct {
		moderate int
		severe   int
	}
	flagsByEIN := make(map[string]flagCounts)
	for _, f := range flags {
		counts := flagsByEIN[f.EIN]
		switch f.Severity {
		case domain.SeveritySevere:
			counts.severe++
		default:
			counts.moderate++
		}
		flagsByEIN[f.EIN] = counts
	}

	scores := make([]domain.ImpactScore, 0, len(metrics))
	for _, m := range metrics {
		quality := qualityByEIN[m.EIN]
		counts := flagsByEIN[m.EIN]

		efficiency := s.efficiency(m.TotalFunding)
		base := quality.Score * efficiency
		penalty := s.cfg.ModeratePenalty*float64(counts.moderate) +
			s.cfg.SeverePenalty*float64(counts.severe)

		final := s.clamp(s.cfg.Scale*base - penalty)

		scores = append(scores, domain.ImpactScore{
			EIN:                 m.EIN,
			Score:               final,
			QualityComponent:    quality.Score,
			EfficiencyComponent: efficiency,
			AnomalyPenalty:      penalty,
		})
	}

	rank(scores)

	s.logger.InfoContext(ctx, "impact scoring completed",
		"nonprofits", len(scores),
		"penalized", len(flagsByEIN),
	)

	return scores
}

// efficiency compresses total funding into [0,1) so extreme funding values
// do not dominate the scale: tanh of funding relative to the reference level.
func (s *Scorer) efficiency(totalFunding float64) float64 {
	if totalFunding <= 0 {
		return 0
	}
	return math.Tanh(totalFunding / s.cfg.ReferenceFunding)
}

func (s *Scorer) clamp(v float64) float64 {
	if v < s.cfg.ClampMin {
		return s.cfg.ClampMin
	}
	if v > s.cfg.ClampMax {
		return s.cfg.ClampMax
	}
	return v
}

// rank sorts scores descending with EIN tie-break and assigns 1-based ranks.
func rank(scores []domain.ImpactScore) {
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].EIN < scores[j].EIN
	})
	for i := range scores {
		scores[i].Rank = i + 1
	}
}
