package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grantlens/internal/config"
	"grantlens/pkg/contracts/domain"
)

func testConfig() config.QualityConfig {
	return config.QualityConfig{
		FieldWeights:       config.DefaultFieldWeights(),
		CompletenessWeight: 0.6,
		ConsistencyWeight:  0.4,
		ExpenseTolerance:   0.10,
	}
}

func fullRecord() domain.NonprofitRecord {
	year := 1995
	revenue := 500000.0
	expenses := 450000.0
	assets := 1200000.0
	rec := domain.NonprofitRecord{
		EIN:            "12-3456789",
		Name:           "Community Health Partners",
		Classification: "health",
		FoundingYear:   &year,
		Revenue:        &revenue,
		Expenses:       &expenses,
		Assets:         &assets,
		Region:         "west",
		Fields:         make(domain.FieldPresence),
	}
	for _, f := range domain.NonprofitFields() {
		rec.Fields[f] = domain.FieldPresent
	}
	return rec
}

func TestScoreFullConsistentRecord(t *testing.T) {
	scorer := New(testConfig())
	score := scorer.Score(fullRecord())

	assert.Equal(t, 1.0, score.Score)
	assert.Equal(t, 1.0, score.Completeness)
	assert.Equal(t, 1.0, score.Consistency)
	assert.Equal(t, domain.TierHigh, score.Tier)
}

func TestScoreBounds(t *testing.T) {
	scorer := New(testConfig())

	tests := []struct {
		name   string
		mutate func(*domain.NonprofitRecord)
	}{
		{"full record", func(*domain.NonprofitRecord) {}},
		{"empty record", func(r *domain.NonprofitRecord) {
			for _, f := range domain.NonprofitFields() {
				r.Fields[f] = domain.FieldMissing
			}
			r.Revenue, r.Expenses, r.Assets, r.FoundingYear = nil, nil, nil, nil
		}},
		{"contradictory financials", func(r *domain.NonprofitRecord) {
			expenses := 2000000.0
			r.Expenses = &expenses
		}},
		{"future founding year", func(r *domain.NonprofitRecord) {
			year := 9999
			r.FoundingYear = &year
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := fullRecord()
			tt.mutate(&rec)
			score := scorer.Score(rec)
			assert.GreaterOrEqual(t, score.Score, 0.0)
			assert.LessOrEqual(t, score.Score, 1.0)
		})
	}
}

// Removing any single recognized field must strictly lower the score of an
// otherwise complete, consistent record.
func TestScoreStrictlyLowerWithFieldRemoved(t *testing.T) {
	scorer := New(testConfig())
	full := scorer.Score(fullRecord())
	require.Equal(t, 1.0, full.Score)

	for _, field := range domain.NonprofitFields() {
		t.Run(field, func(t *testing.T) {
			rec := fullRecord()
			rec.Fields[field] = domain.FieldMissing
			switch field {
			case domain.FieldFoundingYear:
				rec.FoundingYear = nil
			case domain.FieldRevenue:
				rec.Revenue = nil
			case domain.FieldExpenses:
				rec.Expenses = nil
			case domain.FieldAssets:
				rec.Assets = nil
			}
			score := scorer.Score(rec)
			assert.Less(t, score.Score, full.Score)
		})
	}
}

func TestConsistencyPenalties(t *testing.T) {
	scorer := New(testConfig())

	t.Run("expenses within tolerance pass", func(t *testing.T) {
		rec := fullRecord()
		expenses := 540000.0 // revenue 500k, 10% tolerance allows up to 550k
		rec.Expenses = &expenses
		assert.Equal(t, 1.0, scorer.Score(rec).Consistency)
	})

	t.Run("expenses beyond tolerance penalized", func(t *testing.T) {
		rec := fullRecord()
		expenses := 600000.0
		rec.Expenses = &expenses
		score := scorer.Score(rec)
		assert.Less(t, score.Consistency, 1.0)
		assert.Equal(t, 1.0, score.Completeness)
	})

	t.Run("future founding year penalized", func(t *testing.T) {
		rec := fullRecord()
		year := 9999
		rec.FoundingYear = &year
		assert.Less(t, scorer.Score(rec).Consistency, 1.0)
	})

	t.Run("negative revenue penalized", func(t *testing.T) {
		rec := fullRecord()
		revenue := -100.0
		rec.Revenue = &revenue
		assert.Less(t, scorer.Score(rec).Consistency, 1.0)
	})

	t.Run("no applicable checks is vacuously consistent", func(t *testing.T) {
		rec := domain.NonprofitRecord{
			EIN:    "00-0000000",
			Name:   "Sparse Org",
			Fields: domain.FieldPresence{domain.FieldName: domain.FieldPresent},
		}
		assert.Equal(t, 1.0, scorer.Score(rec).Consistency)
	})
}

func TestScoreDeterministic(t *testing.T) {
	scorer := New(testConfig())
	rec := fullRecord()
	first := scorer.Score(rec)
	second := scorer.Score(rec)
	assert.Equal(t, first, second)
}

func TestTierAssignment(t *testing.T) {
	tests := []struct {
		score float64
		tier  domain.QualityTier
	}{
		{1.0, domain.TierHigh},
		{0.8, domain.TierHigh},
		{0.79, domain.TierMedium},
		{0.5, domain.TierMedium},
		{0.49, domain.TierLow},
		{0.0, domain.TierLow},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.tier, tierFor(tt.score), "score %.2f", tt.score)
	}
}

// Invalid fields count against completeness exactly like missing ones.
func TestInvalidFieldNotCounted(t *testing.T) {
	scorer := New(testConfig())
	rec := fullRecord()
	rec.Fields[domain.FieldRevenue] = domain.FieldInvalid
	rec.Revenue = nil

	missing := fullRecord()
	missing.Fields[domain.FieldRevenue] = domain.FieldMissing
	missing.Revenue = nil

	assert.Equal(t, scorer.Score(missing).Completeness, scorer.Score(rec).Completeness)
}
