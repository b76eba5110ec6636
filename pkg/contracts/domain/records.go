package domain

import (
	"time"
)

// FieldState describes the normalized state of a single raw input field.
type FieldState string

const (
	FieldPresent FieldState = "present"
	FieldInvalid FieldState = "invalid"
	FieldMissing FieldState = "missing"
)

// IsUsable reports whether the field carries a value downstream stages may use.
func (s FieldState) IsUsable() bool {
	return s == FieldPresent
}

// FieldPresence maps nonprofit field names to their normalized state.
// It is derived by the normalizer and never accepted as raw input.
type FieldPresence map[string]FieldState

// Nonprofit field names recognized by the normalizer and quality scorer.
const (
	FieldName           = "name"
	FieldClassification = "classification"
	FieldFoundingYear   = "founding_year"
	FieldRevenue        = "revenue"
	FieldExpenses       = "expenses"
	FieldAssets         = "assets"
	FieldRegion         = "region"
)

// NonprofitFields enumerates every recognized nonprofit field in a stable order.
func NonprofitFields() []string {
	return []string{
		FieldName,
		FieldClassification,
		FieldFoundingYear,
		FieldRevenue,
		FieldExpenses,
		FieldAssets,
		FieldRegion,
	}
}

// NonprofitRecord is the canonical typed form of a raw nonprofit registration row.
// Scalar fields that failed to parse are nil and reflected in Fields.
type NonprofitRecord struct {
	EIN            string        `json:"ein" db:"ein" validate:"required"`
	Name           string        `json:"name" db:"name"`
	Classification string        `json:"classification" db:"classification"`
	FoundingYear   *int          `json:"founding_year,omitempty" db:"founding_year"`
	Revenue        *float64      `json:"revenue,omitempty" db:"revenue"`
	Expenses       *float64      `json:"expenses,omitempty" db:"expenses"`
	Assets         *float64      `json:"assets,omitempty" db:"assets"`
	Region         string        `json:"region" db:"region"`
	Fields         FieldPresence `json:"fields" db:"-"`
}

// GrantRecord is the canonical typed form of a raw grant award row.
// Resolved is set by the normalizer once the recipient EIN has been checked
// against the nonprofit record set; unresolved grants are kept but excluded
// from aggregation.
type GrantRecord struct {
	GrantID         string     `json:"grant_id" db:"grant_id" validate:"required"`
	RecipientEIN    string     `json:"recipient_ein,omitempty" db:"recipient_ein"`
	Amount          float64    `json:"amount" db:"amount" validate:"min=0"`
	AwardDate       *time.Time `json:"award_date,omitempty" db:"award_date"`
	FunderCategory  string     `json:"funder_category" db:"funder_category"`
	PurposeCategory string     `json:"purpose_category" db:"purpose_category"`
	Resolved        bool       `json:"resolved" db:"resolved"`
}
