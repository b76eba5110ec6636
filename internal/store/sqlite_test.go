package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grantlens/internal/pipeline"
	"grantlens/pkg/contracts/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "outputs", "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleResult(runID string) *pipeline.Result {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &pipeline.Result{
		Manifest: domain.RunManifest{
			RunID:             runID,
			StartedAt:         started,
			CompletedAt:       started.Add(42 * time.Second),
			NonprofitCount:    2,
			GrantCount:        3,
			UnresolvedGrants:  1,
			ConfigFingerprint: "abcd1234",
		},
		Nonprofits: []domain.NonprofitRecord{
			{EIN: "A", Name: "Alpha Org", Classification: "health", Region: "west"},
			{EIN: "B", Name: "Beta Org", Classification: "arts", Region: "east"},
		},
		Qualities: []domain.QualityScore{
			{EIN: "A", Score: 0.9, Completeness: 1.0, Consistency: 0.8, Tier: domain.TierHigh},
			{EIN: "B", Score: 0.4, Completeness: 0.5, Consistency: 0.3, Tier: domain.TierLow},
		},
		Metrics: []domain.AggregateMetrics{
			{EIN: "A", TotalFunding: 500000, GrantCount: 2, Concentration: 0.6, CohortKey: "health|west"},
			{EIN: "B", TotalFunding: 0, GrantCount: 0, Concentration: 0, CohortKey: "arts|east"},
		},
		Flags: []domain.AnomalyFlag{
			{EIN: "A", Metric: domain.MetricTotalFunding, ZScore: 3.5, Severity: domain.SeveritySevere, CohortKey: "health|west", CohortSize: 8},
		},
		Impacts: []domain.ImpactScore{
			{EIN: "A", Score: 42.0, QualityComponent: 0.9, EfficiencyComponent: 0.46, AnomalyPenalty: 15, Rank: 1},
			{EIN: "B", Score: 0.0, QualityComponent: 0.4, EfficiencyComponent: 0, AnomalyPenalty: 0, Rank: 2},
		},
	}
}

func TestPublishAndQuery(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Publish(ctx, sampleResult("run-1")))

	t.Run("manifest round-trips", func(t *testing.T) {
		m, err := st.LatestManifest(ctx)
		require.NoError(t, err)
		assert.Equal(t, "run-1", m.RunID)
		assert.Equal(t, 2, m.NonprofitCount)
		assert.Equal(t, 1, m.UnresolvedGrants)
		assert.Equal(t, "abcd1234", m.ConfigFingerprint)
		assert.True(t, m.CompletedAt.After(m.StartedAt))
	})

	t.Run("quality table", func(t *testing.T) {
		scores, err := st.QualityScores(ctx)
		require.NoError(t, err)
		require.Len(t, scores, 2)
		assert.Equal(t, "A", scores[0].EIN)
		assert.Equal(t, domain.TierHigh, scores[0].Tier)
	})

	t.Run("metrics table", func(t *testing.T) {
		metrics, err := st.Metrics(ctx)
		require.NoError(t, err)
		require.Len(t, metrics, 2)
		assert.Equal(t, 500000.0, metrics[0].TotalFunding)
		assert.Equal(t, "health|west", metrics[0].CohortKey)
	})

	t.Run("anomaly table", func(t *testing.T) {
		flags, err := st.Anomalies(ctx)
		require.NoError(t, err)
		require.Len(t, flags, 1)
		assert.Equal(t, domain.SeveritySevere, flags[0].Severity)
		assert.Equal(t, 8, flags[0].CohortSize)
	})

	t.Run("impact ranking joined with nonprofit fields", func(t *testing.T) {
		ranking, err := st.ImpactRanking(ctx, 0)
		require.NoError(t, err)
		require.Len(t, ranking, 2)
		assert.Equal(t, 1, ranking[0].Rank)
		assert.Equal(t, "Alpha Org", ranking[0].Name)
		assert.Equal(t, "health", ranking[0].Classification)
	})

	t.Run("impact ranking honors limit", func(t *testing.T) {
		ranking, err := st.ImpactRanking(ctx, 1)
		require.NoError(t, err)
		require.Len(t, ranking, 1)
		assert.Equal(t, "A", ranking[0].EIN)
	})
}

func TestPublishReplacesPreviousRun(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Publish(ctx, sampleResult("run-1")))
	require.NoError(t, st.Publish(ctx, sampleResult("run-2")))

	m, err := st.LatestManifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-2", m.RunID)

	ranking, err := st.ImpactRanking(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, ranking, 2)
}

func TestQueriesBeforeFirstPublish(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, err := st.LatestManifest(ctx)
	assert.ErrorIs(t, err, ErrNoPublishedRun)

	_, err = st.QualityScores(ctx)
	assert.ErrorIs(t, err, ErrNoPublishedRun)

	_, err = st.ImpactRanking(ctx, 10)
	assert.ErrorIs(t, err, ErrNoPublishedRun)
}

func TestSummaries(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.Publish(ctx, sampleResult("run-1")))

	t.Run("impact by classification", func(t *testing.T) {
		summaries, err := st.ImpactByClassification(ctx)
		require.NoError(t, err)
		require.Len(t, summaries, 2)
		assert.Equal(t, "health", summaries[0].Classification)
		assert.Equal(t, 42.0, summaries[0].AvgImpact)
	})

	t.Run("anomaly summary", func(t *testing.T) {
		summaries, err := st.AnomalySummary(ctx)
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, domain.MetricTotalFunding, summaries[0].Metric)
		assert.Equal(t, 1, summaries[0].Count)
	})

	t.Run("quality tier overview ordered best first", func(t *testing.T) {
		summaries, err := st.QualityTierOverview(ctx)
		require.NoError(t, err)
		require.Len(t, summaries, 2)
		assert.Equal(t, "high", summaries[0].Tier)
		assert.Equal(t, "low", summaries[1].Tier)
	})
}
