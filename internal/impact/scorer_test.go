package impact

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grantlens/internal/config"
	"grantlens/pkg/contracts/domain"
)

func testConfig() config.ImpactConfig {
	return config.ImpactConfig{
		ReferenceFunding: 1000000,
		ModeratePenalty:  5,
		SeverePenalty:    15,
		Scale:            100,
		ClampMin:         0,
		ClampMax:         100,
	}
}

func quality(ein string, score float64) domain.QualityScore {
	return domain.QualityScore{EIN: ein, Score: score}
}

func metricsFor(ein string, funding float64) domain.AggregateMetrics {
	return domain.AggregateMetrics{EIN: ein, TotalFunding: funding}
}

func TestScoreBlendsComponents(t *testing.T) {
	s := New(testConfig(), nil)

	scores := s.Score(context.Background(),
		[]domain.QualityScore{quality("A", 1.0)},
		[]domain.AggregateMetrics{metricsFor("A", 1000000)},
		nil,
	)
	require.Len(t, scores, 1)

	expected := 100 * math.Tanh(1.0)
	assert.InDelta(t, expected, scores[0].Score, 1e-9)
	assert.Equal(t, 1.0, scores[0].QualityComponent)
	assert.InDelta(t, math.Tanh(1.0), scores[0].EfficiencyComponent, 1e-12)
	assert.Equal(t, 0.0, scores[0].AnomalyPenalty)
	assert.Equal(t, 1, scores[0].Rank)
}

// A perfect-quality nonprofit with mid-range funding lands near the midpoint
// of the clamp range.
func TestMidRangeFundingLandsNearMidpoint(t *testing.T) {
	s := New(testConfig(), nil)

	// atanh(0.5) * reference: tanh squashes this to exactly 0.5.
	funding := math.Atanh(0.5) * 1000000

	scores := s.Score(context.Background(),
		[]domain.QualityScore{quality("A", 1.0)},
		[]domain.AggregateMetrics{metricsFor("A", funding)},
		nil,
	)
	require.Len(t, scores, 1)
	assert.InDelta(t, 50.0, scores[0].Score, 1e-6)
}

func TestAnomalyPenalties(t *testing.T) {
	s := New(testConfig(), nil)

	flags := []domain.AnomalyFlag{
		{EIN: "A", Metric: domain.MetricTotalFunding, Severity: domain.SeverityModerate},
		{EIN: "A", Metric: domain.MetricGrantCount, Severity: domain.SeveritySevere},
		{EIN: "A", Metric: domain.MetricConcentration, Severity: domain.SeveritySevere},
	}

	scores := s.Score(context.Background(),
		[]domain.QualityScore{quality("A", 1.0)},
		[]domain.AggregateMetrics{metricsFor("A", 1000000)},
		flags,
	)
	require.Len(t, scores, 1)

	assert.Equal(t, 35.0, scores[0].AnomalyPenalty) // 5 + 15 + 15
	expected := 100*math.Tanh(1.0) - 35
	assert.InDelta(t, expected, scores[0].Score, 1e-9)
}

func TestScoreClampedToRange(t *testing.T) {
	s := New(testConfig(), nil)

	t.Run("penalties cannot push below clamp min", func(t *testing.T) {
		flags := make([]domain.AnomalyFlag, 10)
		for i := range flags {
			flags[i] = domain.AnomalyFlag{EIN: "A", Severity: domain.SeveritySevere}
		}
		scores := s.Score(context.Background(),
			[]domain.QualityScore{quality("A", 0.2)},
			[]domain.AggregateMetrics{metricsFor("A", 10000)},
			flags,
		)
		require.Len(t, scores, 1)
		assert.Equal(t, 0.0, scores[0].Score)
	})

	t.Run("extreme funding saturates instead of dominating", func(t *testing.T) {
		scores := s.Score(context.Background(),
			[]domain.QualityScore{quality("A", 1.0)},
			[]domain.AggregateMetrics{metricsFor("A", 1e12)},
			nil,
		)
		require.Len(t, scores, 1)
		assert.LessOrEqual(t, scores[0].Score, 100.0)
		assert.InDelta(t, 100.0, scores[0].Score, 1e-6)
	})
}

func TestZeroFundingZeroEfficiency(t *testing.T) {
	s := New(testConfig(), nil)
	scores := s.Score(context.Background(),
		[]domain.QualityScore{quality("A", 1.0)},
		[]domain.AggregateMetrics{metricsFor("A", 0)},
		nil,
	)
	require.Len(t, scores, 1)
	assert.Equal(t, 0.0, scores[0].EfficiencyComponent)
	assert.Equal(t, 0.0, scores[0].Score)
}

func TestRankingDeterministicWithEINTieBreak(t *testing.T) {
	s := New(testConfig(), nil)

	qualities := []domain.QualityScore{
		quality("C", 0.5), quality("A", 0.5), quality("B", 0.9),
	}
	metrics := []domain.AggregateMetrics{
		metricsFor("C", 500000), metricsFor("A", 500000), metricsFor("B", 500000),
	}

	for range 5 {
		scores := s.Score(context.Background(), qualities, metrics, nil)
		require.Len(t, scores, 3)

		assert.Equal(t, "B", scores[0].EIN)
		assert.Equal(t, 1, scores[0].Rank)
		// A and C tie on score; EIN breaks the tie.
		assert.Equal(t, "A", scores[1].EIN)
		assert.Equal(t, 2, scores[1].Rank)
		assert.Equal(t, "C", scores[2].EIN)
		assert.Equal(t, 3, scores[2].Rank)
	}
}

func TestOneScorePerNonprofit(t *testing.T) {
	s := New(testConfig(), nil)

	// Nonprofit B has no quality entry; it still gets a (zero-based) score.
	scores := s.Score(context.Background(),
		[]domain.QualityScore{quality("A", 1.0)},
		[]domain.AggregateMetrics{metricsFor("A", 100), metricsFor("B", 100)},
		nil,
	)
	assert.Len(t, scores, 2)
}
