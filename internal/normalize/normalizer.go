// Package normalize cleans and type-coerces raw nonprofit and grant rows into
// canonical typed records. Parsing failures never abort a run: the offending
// field is marked invalid and the record is retained so the quality scorer can
// penalize it instead of the pipeline crashing.
package normalize

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"grantlens/pkg/contracts/domain"
)

// RawRow is one untyped input row keyed by canonical column name.
type RawRow map[string]string

// Normalizer converts raw rows into canonical records.
type Normalizer struct {
	logger *slog.Logger
}

// New creates a normalizer with the given logger.
func New(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Nonprofits normalizes raw nonprofit rows. Rows without an EIN cannot be
// keyed and are dropped; every other parsing problem is recorded in the
// field-presence map and the record kept. Duplicate EINs keep the first
// occurrence so the identifier stays unique across the record set.
func (n *Normalizer) Nonprofits(ctx context.Context, rows []RawRow) []domain.NonprofitRecord {
	records := make([]domain.NonprofitRecord, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	dropped := 0
	duplicates := 0

	for _, row := range rows {
		ein := strings.TrimSpace(row["ein"])
		if ein == "" {
			dropped++
			continue
		}
		if seen[ein] {
			duplicates++
			continue
		}
		seen[ein] = true
		records = append(records, n.nonprofitRecord(ein, row))
	}

	if dropped > 0 || duplicates > 0 {
		n.logger.WarnContext(ctx, "skipped unkeyable nonprofit rows",
			"missing_ein", dropped,
			"duplicate_ein", duplicates,
		)
	}
	n.logger.InfoContext(ctx, "normalized nonprofit records",
		"input_rows", len(rows),
		"records", len(records),
	)

	return records
}

func (n *Normalizer) nonprofitRecord(ein string, row RawRow) domain.NonprofitRecord {
	rec := domain.NonprofitRecord{
		EIN:    ein,
		Fields: make(domain.FieldPresence, len(domain.NonprofitFields())),
	}

	rec.Name, rec.Fields[domain.FieldName] = textField(row["name"])
	rec.Classification, rec.Fields[domain.FieldClassification] = textField(row["classification"])
	rec.Region, rec.Fields[domain.FieldRegion] = textField(row["region"])

	rec.FoundingYear, rec.Fields[domain.FieldFoundingYear] = yearField(row["founding_year"])
	rec.Revenue, rec.Fields[domain.FieldRevenue] = numericField(row["revenue"])
	rec.Expenses, rec.Fields[domain.FieldExpenses] = numericField(row["expenses"])
	rec.Assets, rec.Fields[domain.FieldAssets] = numericField(row["assets"])

	return rec
}

// Grants normalizes raw grant rows and resolves recipient references against
// the known nonprofit EIN set. Unresolved grants are retained with
// Resolved=false; the count is returned so the run manifest can report it as
// a data-quality observation.
func (n *Normalizer) Grants(ctx context.Context, rows []RawRow, knownEINs map[string]bool) ([]domain.GrantRecord, int) {
	grants := make([]domain.GrantRecord, 0, len(rows))
	unresolved := 0
	badAmounts := 0

	for i, row := range rows {
		grantID := strings.TrimSpace(row["grant_id"])
		if grantID == "" {
			grantID = "row-" + strconv.Itoa(i+1)
		}

		g := domain.GrantRecord{
			GrantID:         grantID,
			RecipientEIN:    strings.TrimSpace(row["recipient_ein"]),
			FunderCategory:  strings.TrimSpace(row["funder_category"]),
			PurposeCategory: strings.TrimSpace(row["purpose_category"]),
		}

		amount, ok := parseNumber(row["amount"])
		if !ok || amount < 0 {
			if strings.TrimSpace(row["amount"]) != "" {
				badAmounts++
			}
			amount = 0
		}
		g.Amount = amount

		if date, ok := parseDate(row["award_date"]); ok {
			g.AwardDate = &date
		}

		g.Resolved = g.RecipientEIN != "" && knownEINs[g.RecipientEIN]
		if !g.Resolved {
			unresolved++
		}

		grants = append(grants, g)
	}

	if badAmounts > 0 {
		n.logger.WarnContext(ctx, "grant amounts failed to parse, treated as zero",
			"count", badAmounts,
		)
	}
	if unresolved > 0 {
		n.logger.WarnContext(ctx, "grants reference unknown nonprofits, excluded from aggregation",
			"count", unresolved,
		)
	}
	n.logger.InfoContext(ctx, "normalized grant records",
		"input_rows", len(rows),
		"records", len(grants),
		"unresolved", unresolved,
	)

	return grants, unresolved
}

func textField(raw string) (string, domain.FieldState) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", domain.FieldMissing
	}
	return value, domain.FieldPresent
}

func yearField(raw string) (*int, domain.FieldState) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, domain.FieldMissing
	}
	year, err := strconv.Atoi(value)
	if err != nil || year <= 0 {
		return nil, domain.FieldInvalid
	}
	return &year, domain.FieldPresent
}

func numericField(raw string) (*float64, domain.FieldState) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, domain.FieldMissing
	}
	amount, ok := parseNumber(value)
	if !ok {
		return nil, domain.FieldInvalid
	}
	return &amount, domain.FieldPresent
}

// parseNumber parses a financial figure, tolerating thousands separators,
// currency symbols, and surrounding whitespace.
func parseNumber(raw string) (float64, bool) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimPrefix(cleaned, "$")
	if cleaned == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"2006-01-02T15:04:05Z07:00",
	"Jan 2, 2006",
}

func parseDate(raw string) (time.Time, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
