package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"grantlens/internal/pipeline"
)

// ImpactReportFile is the XLSX report written next to the CSV tables.
const ImpactReportFile = "impact_report.xlsx"

// WriteImpactReport writes a workbook with the ranked impact table plus the
// anomaly flags on a second sheet, formatted for report consumers who prefer
// spreadsheets over the raw CSV tables.
func WriteImpactReport(result *pipeline.Result, outputDir string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	f := excelize.NewFile()
	defer f.Close()

	const rankingSheet = "Impact Ranking"
	if err := f.SetSheetName("Sheet1", rankingSheet); err != nil {
		return fmt.Errorf("rename ranking sheet: %w", err)
	}

	if err := writeSheet(f, rankingSheet, impactHeader, impactRecords(result)); err != nil {
		return err
	}

	const anomalySheet = "Anomalies"
	if _, err := f.NewSheet(anomalySheet); err != nil {
		return fmt.Errorf("create anomaly sheet: %w", err)
	}
	if err := writeSheet(f, anomalySheet, anomaliesHeader, anomalyRecords(result)); err != nil {
		return err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	fullPath := filepath.Join(outputDir, ImpactReportFile)
	if err := f.SaveAs(fullPath); err != nil {
		return fmt.Errorf("save impact report: %w", err)
	}

	logger.Info("wrote impact report workbook",
		slog.String("path", fullPath),
		slog.Int("ranked_rows", len(result.Impacts)),
		slog.Int("anomaly_rows", len(result.Flags)))

	return nil
}

func writeSheet(f *excelize.File, sheet string, header []string, records [][]string) error {
	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headerRow); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}

	for i, record := range records {
		row := make([]any, len(record))
		for j, cell := range record {
			row[j] = cell
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("compute cell name: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}

	return nil
}
