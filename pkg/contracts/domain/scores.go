package domain

import (
	"time"
)

// QualityTier buckets a quality score for reporting.
type QualityTier string

const (
	TierHigh   QualityTier = "high"
	TierMedium QualityTier = "medium"
	TierLow    QualityTier = "low"
)

// QualityScore is the derived completeness/consistency score for one nonprofit.
// It is recomputed on every run and never mutated in place.
type QualityScore struct {
	EIN          string      `json:"ein" db:"ein"`
	Score        float64     `json:"score" db:"score"`
	Completeness float64     `json:"completeness" db:"completeness"`
	Consistency  float64     `json:"consistency" db:"consistency"`
	Tier         QualityTier `json:"tier" db:"tier"`
}

// AggregateMetrics holds the per-nonprofit metrics derived from resolvable grants.
// Nonprofits with no resolvable grants carry zero values, not an error.
type AggregateMetrics struct {
	EIN           string  `json:"ein" db:"ein"`
	TotalFunding  float64 `json:"total_funding" db:"total_funding"`
	GrantCount    int     `json:"grant_count" db:"grant_count"`
	Concentration float64 `json:"concentration" db:"concentration"`
	CohortKey     string  `json:"cohort_key" db:"cohort_key"`
}

// Metric names the anomaly detector evaluates per cohort.
const (
	MetricTotalFunding  = "total_funding"
	MetricGrantCount    = "grant_count"
	MetricConcentration = "concentration"
)

// AnomalyMetrics enumerates the flagged metrics in a stable order.
func AnomalyMetrics() []string {
	return []string{MetricTotalFunding, MetricGrantCount, MetricConcentration}
}

// Severity is the discrete tier assigned to an anomaly by deviation magnitude.
type Severity string

const (
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// AnomalyFlag marks one metric of one nonprofit as a statistical outlier
// within its peer cohort.
type AnomalyFlag struct {
	EIN        string   `json:"ein" db:"ein"`
	Metric     string   `json:"metric" db:"metric"`
	ZScore     float64  `json:"z_score" db:"z_score"`
	Severity   Severity `json:"severity" db:"severity"`
	CohortKey  string   `json:"cohort_key" db:"cohort_key"`
	CohortSize int      `json:"cohort_size" db:"cohort_size"`
}

// ImpactScore is the final ranked output for one nonprofit, blending
// quality-adjusted funding efficiency with anomaly penalties.
type ImpactScore struct {
	EIN                 string  `json:"ein" db:"ein"`
	Score               float64 `json:"score" db:"score"`
	QualityComponent    float64 `json:"quality_component" db:"quality_component"`
	EfficiencyComponent float64 `json:"efficiency_component" db:"efficiency_component"`
	AnomalyPenalty      float64 `json:"anomaly_penalty" db:"anomaly_penalty"`
	Rank                int     `json:"rank" db:"rank"`
}

// RunManifest records provenance for one published pipeline run.
type RunManifest struct {
	RunID             string    `json:"run_id" db:"run_id"`
	StartedAt         time.Time `json:"started_at" db:"started_at"`
	CompletedAt       time.Time `json:"completed_at" db:"completed_at"`
	NonprofitCount    int       `json:"nonprofit_count" db:"nonprofit_count"`
	GrantCount        int       `json:"grant_count" db:"grant_count"`
	UnresolvedGrants  int       `json:"unresolved_grants" db:"unresolved_grants"`
	ConfigFingerprint string    `json:"config_fingerprint" db:"config_fingerprint"`
}
