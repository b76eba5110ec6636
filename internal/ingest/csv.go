// Package ingest reads the raw nonprofit and grant CSV files into untyped
// rows keyed by canonical column name. It performs no type coercion; the
// normalizer owns per-field validity.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"grantlens/internal/normalize"
)

// Header aliases map the column names seen in source exports onto the
// canonical keys the normalizer expects.
var nonprofitAliases = map[string]string{
	"ein":            "ein",
	"name":           "name",
	"classification": "classification",
	"founding_year":  "founding_year",
	"ruling":         "founding_year",
	"revenue":        "revenue",
	"revenue_amt":    "revenue",
	"expenses":       "expenses",
	"expense_amt":    "expenses",
	"assets":         "assets",
	"asset_amt":      "assets",
	"region":         "region",
	"state":          "region",
}

var grantAliases = map[string]string{
	"grant_id":             "grant_id",
	"opportunity_id":       "grant_id",
	"recipient_ein":        "recipient_ein",
	"ein":                  "recipient_ein",
	"amount":               "amount",
	"award_amount":         "amount",
	"award_date":           "award_date",
	"close_date":           "award_date",
	"funder_category":      "funder_category",
	"agency_category":      "funder_category",
	"purpose_category":     "purpose_category",
	"opportunity_category": "purpose_category",
}

// ReadNonprofits reads the nonprofit CSV into raw rows.
func ReadNonprofits(path string) ([]normalize.RawRow, error) {
	return readCSV(path, nonprofitAliases)
}

// ReadGrants reads the grant CSV into raw rows.
func ReadGrants(path string) ([]normalize.RawRow, error) {
	return readCSV(path, grantAliases)
}

func readCSV(path string, aliases map[string]string) ([]normalize.RawRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer file.Close()

	return parseCSV(file, aliases)
}

func parseCSV(r io.Reader, aliases map[string]string) ([]normalize.RawRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	// Map column index to canonical key; unrecognized columns are ignored.
	columns := make(map[int]string, len(header))
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\uFEFF")))
		if canonical, ok := aliases[name]; ok {
			columns[i] = canonical
		}
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("csv header has no recognized columns: %v", header)
	}

	var rows []normalize.RawRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", len(rows)+2, err)
		}

		row := make(normalize.RawRow, len(columns))
		for i, key := range columns {
			if i < len(record) {
				row[key] = record[i]
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}
