package csv

import (
	"bufio"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/features"
	clickio "github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io"
)

// Report file names written by ReportWriter.
const (
	TrendsFile = "daily_trends.csv"
	AlertsFile = "alerts.csv"
)

// ReportWriter writes the trend and alert reports into a directory.
type ReportWriter struct {
	dir string
}

// NewReportWriter returns a writer for dir. The directory is created on first publish.
func NewReportWriter(dir string) *ReportWriter {
	return &ReportWriter{dir: dir}
}

var _ clickio.Sink = (*ReportWriter)(nil)

// Publish writes daily_trends.csv and alerts.csv, replacing previous reports.
func (w *ReportWriter) Publish(ctx context.Context, report *clickio.Report) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return eris.Wrapf(err, "csv: create %s", w.dir)
	}
	if err := writeRecords(filepath.Join(w.dir, TrendsFile), report.Trends); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "csv: publish")
	}
	return writeRecords(filepath.Join(w.dir, AlertsFile), report.Alerts)
}

// Close is a no-op; files are closed after each publish.
func (w *ReportWriter) Close() error {
	return nil
}

// writeRecords encodes a slice of tagged structs with a header row. An empty slice
// still gets its header.
func writeRecords[T any](path string, records []T) error {
	return writeFile(path, func(cw *csv.Writer) error {
		enc := csvutil.NewEncoder(cw)
		if len(records) == 0 {
			var zero T
			return enc.EncodeHeader(zero)
		}
		return enc.Encode(records)
	})
}

// WriteFeatures writes the engineered frame: the raw event columns, the derived keys
// and every feature column, one row per event in input order.
func WriteFeatures(path string, f *features.Frame) error {
	return writeFile(path, func(cw *csv.Writer) error {
		names := f.ColumnNames()
		header := []string{"ip", "timestamp", "device", "user_agent", "country", "impressions", "clicks", "label", "subnet", "hour"}
		header = append(header, names...)
		if err := cw.Write(header); err != nil {
			return err
		}

		row := make([]string, len(header))
		for i, ev := range f.Events {
			row = row[:0]
			label := ""
			if ev.Label != nil {
				label = strconv.Itoa(*ev.Label)
			}
			row = append(row,
				ev.IP,
				ev.Timestamp.Format(time.RFC3339Nano),
				string(ev.Device),
				ev.UserAgent,
				ev.Country,
				strconv.FormatInt(ev.Impressions, 10),
				strconv.FormatInt(ev.Clicks, 10),
				label,
				f.Subnets[i],
				strconv.Itoa(f.Hours[i]),
			)
			for _, name := range names {
				row = append(row, strconv.FormatFloat(f.Value(i, name), 'f', -1, 64))
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeFile(path string, fill func(*csv.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "csv: create directory for %s", path)
	}
	file, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "csv: create %s", path)
	}
	defer file.Close()

	buf := bufio.NewWriter(file)
	cw := csv.NewWriter(buf)
	if err := fill(cw); err != nil {
		return eris.Wrapf(err, "csv: write %s", path)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrapf(err, "csv: flush %s", path)
	}
	if err := buf.Flush(); err != nil {
		return eris.Wrapf(err, "csv: flush %s", path)
	}
	return eris.Wrapf(file.Close(), "csv: close %s", path)
}
