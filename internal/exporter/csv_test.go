package exporter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grantlens/internal/pipeline"
	"grantlens/pkg/contracts/domain"
)

func sampleResult() *pipeline.Result {
	return &pipeline.Result{
		Manifest: domain.RunManifest{RunID: "run-1"},
		Nonprofits: []domain.NonprofitRecord{
			{EIN: "A", Name: "Alpha Org", Classification: "health", Region: "west"},
		},
		Qualities: []domain.QualityScore{
			{EIN: "A", Score: 0.9, Completeness: 1.0, Consistency: 0.8, Tier: domain.TierHigh},
		},
		Metrics: []domain.AggregateMetrics{
			{EIN: "A", TotalFunding: 500000, GrantCount: 2, Concentration: 0.6, CohortKey: "health|west"},
		},
		Flags: []domain.AnomalyFlag{
			{EIN: "A", Metric: domain.MetricTotalFunding, ZScore: 3.5, Severity: domain.SeveritySevere, CohortKey: "health|west", CohortSize: 8},
		},
		Impacts: []domain.ImpactScore{
			{EIN: "A", Score: 42.0, QualityComponent: 0.9, EfficiencyComponent: 0.46, AnomalyPenalty: 15, Rank: 1},
		},
	}
}

func TestWriteAll(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir, nil)

	require.NoError(t, w.WriteAll(sampleResult()))

	for _, name := range []string{QualityFile, MetricsFile, AnomaliesFile, ImpactFile} {
		t.Run(name, func(t *testing.T) {
			data, err := os.ReadFile(filepath.Join(dir, name))
			require.NoError(t, err)

			content := string(data)
			assert.True(t, strings.HasPrefix(content, "\xEF\xBB\xBF"), "missing BOM")
			lines := strings.Split(strings.TrimSpace(content), "\n")
			require.Len(t, lines, 2, "expected header plus one record")
		})
	}
}

func TestImpactCSVJoinsNonprofitFields(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir, nil)
	require.NoError(t, w.WriteAll(sampleResult()))

	data, err := os.ReadFile(filepath.Join(dir, ImpactFile))
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, "Alpha Org")
	assert.Contains(t, content, "health")
	assert.Contains(t, content, "42.000000")
}

// Repeated exports of the same result must be byte-identical so published
// tables are stable across re-runs.
func TestWriteAllDeterministic(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()

	require.NoError(t, NewCSVWriter(dirA, nil).WriteAll(sampleResult()))
	require.NoError(t, NewCSVWriter(dirB, nil).WriteAll(sampleResult()))

	for _, name := range []string{QualityFile, MetricsFile, AnomaliesFile, ImpactFile} {
		a, err := os.ReadFile(filepath.Join(dirA, name))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(dirB, name))
		require.NoError(t, err)
		assert.Equal(t, a, b, "file %s differs between runs", name)
	}
}

func TestWriteImpactReport(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteImpactReport(sampleResult(), dir, nil))

	info, err := os.Stat(filepath.Join(dir, ImpactReportFile))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
