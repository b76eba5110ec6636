// Package quality converts per-field presence and validity into a single
// completeness/consistency score per nonprofit record. Scoring is a pure
// function of the record and the configured weights: the same record always
// yields the same score.
package quality

import (
	"time"

	"grantlens/internal/config"
	"grantlens/pkg/contracts/domain"
)

// Quality tier boundaries, applied to the blended score.
const (
	tierHighMin   = 0.8
	tierMediumMin = 0.5
)

// Scorer computes quality scores using a fixed field-weight table.
type Scorer struct {
	cfg         config.QualityConfig
	totalWeight float64
	currentYear int
}

// New creates a scorer from validated configuration.
func New(cfg config.QualityConfig) *Scorer {
	var total float64
	for _, w := range cfg.FieldWeights {
		total += w
	}
	return &Scorer{
		cfg:         cfg,
		totalWeight: total,
		currentYear: time.Now().UTC().Year(),
	}
}

// Score computes the quality score for one nonprofit record.
func (s *Scorer) Score(rec domain.NonprofitRecord) domain.QualityScore {
	completeness := s.completeness(rec)
	consistency := s.consistency(rec)

	blend := s.cfg.CompletenessWeight + s.cfg.ConsistencyWeight
	score := (s.cfg.CompletenessWeight*completeness + s.cfg.ConsistencyWeight*consistency) / blend
	score = clamp01(score)

	return domain.QualityScore{
		EIN:          rec.EIN,
		Score:        score,
		Completeness: completeness,
		Consistency:  consistency,
		Tier:         tierFor(score),
	}
}

// completeness is the weighted share of recognized fields that are present
// and valid.
func (s *Scorer) completeness(rec domain.NonprofitRecord) float64 {
	if s.totalWeight <= 0 {
		return 0
	}
	var present float64
	for field, weight := range s.cfg.FieldWeights {
		if rec.Fields[field].IsUsable() {
			present += weight
		}
	}
	return clamp01(present / s.totalWeight)
}

// consistency is the share of applicable consistency checks the record
// passes. A record with no applicable checks is vacuously consistent.
func (s *Scorer) consistency(rec domain.NonprofitRecord) float64 {
	applicable := 0
	passed := 0

	check := func(ok bool) {
		applicable++
		if ok {
			passed++
		}
	}

	if rec.Revenue != nil && rec.Expenses != nil {
		tolerance := *rec.Revenue * s.cfg.ExpenseTolerance
		check(*rec.Expenses <= *rec.Revenue+tolerance)
	}
	if rec.FoundingYear != nil {
		check(*rec.FoundingYear <= s.currentYear)
	}
	if rec.Revenue != nil {
		check(*rec.Revenue >= 0)
	}
	if rec.Expenses != nil {
		check(*rec.Expenses >= 0)
	}
	if rec.Assets != nil {
		check(*rec.Assets >= 0)
	}

	if applicable == 0 {
		return 1.0
	}
	return float64(passed) / float64(applicable)
}

func tierFor(score float64) domain.QualityTier {
	switch {
	case score >= tierHighMin:
		return domain.TierHigh
	case score >= tierMediumMin:
		return domain.TierMedium
	default:
		return domain.TierLow
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
