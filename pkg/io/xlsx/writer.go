package xlsx

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	clickio "github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io"
)

// Sheet names of the report workbook.
const (
	TrendsSheet = "Daily Trends"
	AlertsSheet = "Alerts"
)

// ReportWriter writes the run report to a two-sheet workbook.
type ReportWriter struct {
	path string
}

// NewReportWriter returns a writer for path.
func NewReportWriter(path string) *ReportWriter {
	return &ReportWriter{path: path}
}

var _ clickio.Sink = (*ReportWriter)(nil)

// Publish replaces the workbook at path.
func (w *ReportWriter) Publish(_ context.Context, report *clickio.Report) error {
	f := xlsx.NewFile()

	trends, err := f.AddSheet(TrendsSheet)
	if err != nil {
		return eris.Wrap(err, "xlsx: add trends sheet")
	}
	addRow(trends, "date", "total_clicks", "anomalies", "fraud_labels_or_count")
	for _, t := range report.Trends {
		row := trends.AddRow()
		row.AddCell().SetString(t.Date)
		row.AddCell().SetInt64(t.TotalClicks)
		row.AddCell().SetInt64(t.Anomalies)
		row.AddCell().SetInt64(t.FraudLabelsOrCount)
	}

	alerts, err := f.AddSheet(AlertsSheet)
	if err != nil {
		return eris.Wrap(err, "xlsx: add alerts sheet")
	}
	addRow(alerts, "ip", "timestamp", "device", "country", "clicks", "click_rate",
		"clicks_per_ip_hour", "score", "anomaly", "label")
	for _, a := range report.Alerts {
		row := alerts.AddRow()
		row.AddCell().SetString(a.IP)
		row.AddCell().SetString(a.Timestamp.Format(time.RFC3339))
		row.AddCell().SetString(a.Device)
		row.AddCell().SetString(a.Country)
		row.AddCell().SetInt64(a.Clicks)
		row.AddCell().SetFloat(a.ClickRate)
		row.AddCell().SetFloat(a.ClicksPerIPHour)
		row.AddCell().SetFloat(a.Score)
		row.AddCell().SetInt(a.Anomaly)
		if a.Label != nil {
			row.AddCell().SetInt(*a.Label)
		} else {
			row.AddCell().SetString("")
		}
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return eris.Wrapf(err, "xlsx: create directory for %s", w.path)
	}
	return eris.Wrapf(f.Save(w.path), "xlsx: save %s", w.path)
}

// Close is a no-op.
func (w *ReportWriter) Close() error {
	return nil
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
