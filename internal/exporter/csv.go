// Package exporter writes the published output tables as CSV files and an
// XLSX impact report for downstream dashboard and report tooling.
package exporter

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"grantlens/internal/pipeline"
)

// Output file names, matching the table names in the SQLite store.
const (
	QualityFile   = "nonprofit_quality.csv"
	MetricsFile   = "nonprofit_metrics.csv"
	AnomaliesFile = "nonprofit_anomalies.csv"
	ImpactFile    = "nonprofit_impact.csv"
)

// CSVWriter writes output tables under a fixed directory.
type CSVWriter struct {
	outputDir string
	logger    *slog.Logger
}

// NewCSVWriter creates a CSV writer rooted at outputDir.
func NewCSVWriter(outputDir string, logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{outputDir: outputDir, logger: logger}
}

// WriteAll writes every output table of the run as a CSV file.
func (w *CSVWriter) WriteAll(result *pipeline.Result) error {
	if err := w.writeFile(QualityFile, qualityHeader, qualityRecords(result)); err != nil {
		return err
	}
	if err := w.writeFile(MetricsFile, metricsHeader, metricsRecords(result)); err != nil {
		return err
	}
	if err := w.writeFile(AnomaliesFile, anomaliesHeader, anomalyRecords(result)); err != nil {
		return err
	}
	return w.writeFile(ImpactFile, impactHeader, impactRecords(result))
}

// writeFile writes one CSV file with a UTF-8 BOM so spreadsheet tools
// recognize the encoding.
func (w *CSVWriter) writeFile(name string, header []string, records [][]string) error {
	fullPath := filepath.Join(w.outputDir, name)

	w.logger.Info("writing CSV file",
		slog.String("path", fullPath),
		slog.Int("record_count", len(records)))

	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return fmt.Errorf("write BOM: %w", err)
	}

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, record := range records {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv record %d: %w", i, err)
		}
	}

	return writer.Error()
}

var (
	qualityHeader   = []string{"EIN", "Score", "Completeness", "Consistency", "Tier"}
	metricsHeader   = []string{"EIN", "Total_Funding", "Grant_Count", "Concentration", "Cohort_Key"}
	anomaliesHeader = []string{"EIN", "Metric", "Z_Score", "Severity", "Cohort_Key", "Cohort_Size"}
	impactHeader    = []string{"Rank", "EIN", "Name", "Classification", "Region", "Score", "Quality_Component", "Efficiency_Component", "Anomaly_Penalty"}
)

func qualityRecords(result *pipeline.Result) [][]string {
	records := make([][]string, 0, len(result.Qualities))
	for _, q := range result.Qualities {
		records = append(records, []string{
			q.EIN,
			formatFloat(q.Score),
			formatFloat(q.Completeness),
			formatFloat(q.Consistency),
			string(q.Tier),
		})
	}
	return records
}

func metricsRecords(result *pipeline.Result) [][]string {
	records := make([][]string, 0, len(result.Metrics))
	for _, m := range result.Metrics {
		records = append(records, []string{
			m.EIN,
			formatFloat(m.TotalFunding),
			strconv.Itoa(m.GrantCount),
			formatFloat(m.Concentration),
			m.CohortKey,
		})
	}
	return records
}

func anomalyRecords(result *pipeline.Result) [][]string {
	records := make([][]string, 0, len(result.Flags))
	for _, f := range result.Flags {
		records = append(records, []string{
			f.EIN,
			f.Metric,
			formatFloat(f.ZScore),
			string(f.Severity),
			f.CohortKey,
			strconv.Itoa(f.CohortSize),
		})
	}
	return records
}

func impactRecords(result *pipeline.Result) [][]string {
	nameByEIN := make(map[string]string, len(result.Nonprofits))
	classByEIN := make(map[string]string, len(result.Nonprofits))
	regionByEIN := make(map[string]string, len(result.Nonprofits))
	for _, np := range result.Nonprofits {
		nameByEIN[np.EIN] = np.Name
		classByEIN[np.EIN] = np.Classification
		regionByEIN[np.EIN] = np.Region
	}

	records := make([][]string, 0, len(result.Impacts))
	for _, imp := range result.Impacts {
		records = append(records, []string{
			strconv.Itoa(imp.Rank),
			imp.EIN,
			nameByEIN[imp.EIN],
			classByEIN[imp.EIN],
			regionByEIN[imp.EIN],
			formatFloat(imp.Score),
			formatFloat(imp.QualityComponent),
			formatFloat(imp.EfficiencyComponent),
			formatFloat(imp.AnomalyPenalty),
		})
	}
	return records
}

// formatFloat uses a fixed precision so repeated runs on identical input
// produce byte-identical files.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
