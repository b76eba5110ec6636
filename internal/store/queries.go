package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"grantlens/pkg/contracts/domain"
)

// ErrNoPublishedRun indicates no pipeline run has been published yet.
var ErrNoPublishedRun = fmt.Errorf("no published pipeline run")

// ImpactRow is one ranked impact entry joined with the nonprofit's
// descriptive fields for display.
type ImpactRow struct {
	domain.ImpactScore
	Name           string `json:"name"`
	Classification string `json:"classification"`
	Region         string `json:"region"`
}

// ClassificationSummary aggregates impact scores per classification code.
type ClassificationSummary struct {
	Classification string  `json:"classification"`
	Count          int     `json:"count"`
	AvgImpact      float64 `json:"avg_impact"`
	MinImpact      float64 `json:"min_impact"`
	MaxImpact      float64 `json:"max_impact"`
}

// AnomalySummaryRow aggregates anomaly flags per metric and severity.
type AnomalySummaryRow struct {
	Metric    string  `json:"metric"`
	Severity  string  `json:"severity"`
	Count     int     `json:"count"`
	AvgZScore float64 `json:"avg_z_score"`
}

// TierSummary counts nonprofits per quality tier.
type TierSummary struct {
	Tier     string  `json:"tier"`
	Count    int     `json:"count"`
	AvgScore float64 `json:"avg_score"`
}

// LatestManifest returns the manifest of the last published run.
func (s *Store) LatestManifest(ctx context.Context) (*domain.RunManifest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, started_at, completed_at, nonprofit_count, grant_count, unresolved_grants, config_fingerprint
		 FROM run_manifest LIMIT 1`)

	var m domain.RunManifest
	var started, completed string
	err := row.Scan(&m.RunID, &started, &completed,
		&m.NonprofitCount, &m.GrantCount, &m.UnresolvedGrants, &m.ConfigFingerprint)
	if err == sql.ErrNoRows {
		return nil, ErrNoPublishedRun
	}
	if err != nil {
		return nil, s.wrapQueryErr("query run manifest", err)
	}

	if m.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return nil, fmt.Errorf("parse manifest started_at: %w", err)
	}
	if m.CompletedAt, err = time.Parse(timeLayout, completed); err != nil {
		return nil, fmt.Errorf("parse manifest completed_at: %w", err)
	}

	return &m, nil
}

// QualityScores returns the published quality table ordered by EIN.
func (s *Store) QualityScores(ctx context.Context) ([]domain.QualityScore, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ein, score, completeness, consistency, tier
		 FROM nonprofit_quality ORDER BY ein`)
	if err != nil {
		return nil, s.wrapQueryErr("query quality scores", err)
	}
	defer rows.Close()

	var scores []domain.QualityScore
	for rows.Next() {
		var q domain.QualityScore
		var tier string
		if err := rows.Scan(&q.EIN, &q.Score, &q.Completeness, &q.Consistency, &tier); err != nil {
			return nil, fmt.Errorf("scan quality row: %w", err)
		}
		q.Tier = domain.QualityTier(tier)
		scores = append(scores, q)
	}
	return scores, rows.Err()
}

// Metrics returns the published aggregate metrics table ordered by EIN.
func (s *Store) Metrics(ctx context.Context) ([]domain.AggregateMetrics, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ein, total_funding, grant_count, concentration, cohort_key
		 FROM nonprofit_metrics ORDER BY ein`)
	if err != nil {
		return nil, s.wrapQueryErr("query aggregate metrics", err)
	}
	defer rows.Close()

	var metrics []domain.AggregateMetrics
	for rows.Next() {
		var m domain.AggregateMetrics
		if err := rows.Scan(&m.EIN, &m.TotalFunding, &m.GrantCount, &m.Concentration, &m.CohortKey); err != nil {
			return nil, fmt.Errorf("scan metrics row: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// Anomalies returns the published anomaly flags ordered by EIN then metric.
func (s *Store) Anomalies(ctx context.Context) ([]domain.AnomalyFlag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ein, metric, z_score, severity, cohort_key, cohort_size
		 FROM nonprofit_anomalies ORDER BY ein, metric`)
	if err != nil {
		return nil, s.wrapQueryErr("query anomalies", err)
	}
	defer rows.Close()

	var flags []domain.AnomalyFlag
	for rows.Next() {
		var f domain.AnomalyFlag
		var severity string
		if err := rows.Scan(&f.EIN, &f.Metric, &f.ZScore, &severity, &f.CohortKey, &f.CohortSize); err != nil {
			return nil, fmt.Errorf("scan anomaly row: %w", err)
		}
		f.Severity = domain.Severity(severity)
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

// ImpactRanking returns the published ranking, best first. A limit <= 0
// returns every row.
func (s *Store) ImpactRanking(ctx context.Context, limit int) ([]ImpactRow, error) {
	query := `SELECT ein, name, classification, region, score,
	                 quality_component, efficiency_component, anomaly_penalty, rank
	          FROM nonprofit_impact ORDER BY rank`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.wrapQueryErr("query impact ranking", err)
	}
	defer rows.Close()

	var ranking []ImpactRow
	for rows.Next() {
		var r ImpactRow
		err := rows.Scan(&r.EIN, &r.Name, &r.Classification, &r.Region, &r.Score,
			&r.QualityComponent, &r.EfficiencyComponent, &r.AnomalyPenalty, &r.Rank)
		if err != nil {
			return nil, fmt.Errorf("scan impact row: %w", err)
		}
		ranking = append(ranking, r)
	}
	return ranking, rows.Err()
}

// ImpactByClassification summarizes impact scores per classification code.
func (s *Store) ImpactByClassification(ctx context.Context) ([]ClassificationSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT classification, COUNT(*), AVG(score), MIN(score), MAX(score)
		 FROM nonprofit_impact
		 GROUP BY classification
		 ORDER BY AVG(score) DESC`)
	if err != nil {
		return nil, s.wrapQueryErr("query impact by classification", err)
	}
	defer rows.Close()

	var summaries []ClassificationSummary
	for rows.Next() {
		var c ClassificationSummary
		if err := rows.Scan(&c.Classification, &c.Count, &c.AvgImpact, &c.MinImpact, &c.MaxImpact); err != nil {
			return nil, fmt.Errorf("scan classification summary: %w", err)
		}
		summaries = append(summaries, c)
	}
	return summaries, rows.Err()
}

// AnomalySummary summarizes published anomalies per metric and severity.
func (s *Store) AnomalySummary(ctx context.Context) ([]AnomalySummaryRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT metric, severity, COUNT(*), AVG(ABS(z_score))
		 FROM nonprofit_anomalies
		 GROUP BY metric, severity
		 ORDER BY COUNT(*) DESC, metric, severity`)
	if err != nil {
		return nil, s.wrapQueryErr("query anomaly summary", err)
	}
	defer rows.Close()

	var summaries []AnomalySummaryRow
	for rows.Next() {
		var a AnomalySummaryRow
		if err := rows.Scan(&a.Metric, &a.Severity, &a.Count, &a.AvgZScore); err != nil {
			return nil, fmt.Errorf("scan anomaly summary: %w", err)
		}
		summaries = append(summaries, a)
	}
	return summaries, rows.Err()
}

// QualityTierOverview counts nonprofits per quality tier, best tier first.
func (s *Store) QualityTierOverview(ctx context.Context) ([]TierSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tier, COUNT(*), AVG(score)
		 FROM nonprofit_quality
		 GROUP BY tier
		 ORDER BY CASE tier WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END`)
	if err != nil {
		return nil, s.wrapQueryErr("query quality tier overview", err)
	}
	defer rows.Close()

	var summaries []TierSummary
	for rows.Next() {
		var t TierSummary
		if err := rows.Scan(&t.Tier, &t.Count, &t.AvgScore); err != nil {
			return nil, fmt.Errorf("scan tier summary: %w", err)
		}
		summaries = append(summaries, t)
	}
	return summaries, rows.Err()
}

// wrapQueryErr maps missing-table failures (nothing published yet) onto
// ErrNoPublishedRun so callers can distinguish them from real query errors.
func (s *Store) wrapQueryErr(op string, err error) error {
	if isMissingTable(err) {
		return ErrNoPublishedRun
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
