// Package xlsx reads click events from spreadsheets and writes the run reports as a
// workbook.
package xlsx

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/clicks"
	clickio "github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io"
)

// Reader reads events from one sheet of a workbook. The first row is the header.
type Reader struct {
	path       string
	sheetName  string
	sheetIndex int
}

// Option configures a Reader.
type Option func(*Reader)

// WithSheetName selects a sheet by name.
func WithSheetName(name string) Option {
	return func(r *Reader) {
		r.sheetName = name
	}
}

// WithSheetIndex selects a sheet by position. The default is the first sheet.
func WithSheetIndex(i int) Option {
	return func(r *Reader) {
		r.sheetIndex = i
	}
}

// NewReader returns a reader for path. A missing file fails with clicks.ErrSourceNotFound.
func NewReader(path string, opts ...Option) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrapf(clicks.ErrSourceNotFound, "xlsx: %s", path)
		}
		return nil, eris.Wrapf(err, "xlsx: stat %s", path)
	}
	r := &Reader{path: path}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

var _ clickio.Reader = (*Reader)(nil)

// Read loads the sheet and parses every data row. Fully blank rows are skipped.
func (r *Reader) Read(ctx context.Context) ([]clicks.Event, error) {
	f, err := xlsx.OpenFile(r.path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	sheet, err := r.sheet(f)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, clickio.CheckHeader(nil)
	}

	header := clickio.NormalizeHeader(rowToStrings(sheet.Rows[0], f.Date1904))
	if err := clickio.CheckHeader(header); err != nil {
		return nil, err
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}

	var events []clicks.Event
	for i, row := range sheet.Rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "xlsx: context cancelled")
		}
		cells := rowToStrings(row, f.Date1904)
		if blank(cells) {
			continue
		}
		cell := func(col string) string {
			j, ok := index[col]
			if !ok || j >= len(cells) {
				return ""
			}
			return cells[j]
		}
		rec := clicks.Record{
			IP:          cell("ip"),
			Timestamp:   cell("timestamp"),
			Device:      cell("device"),
			UserAgent:   cell("user_agent"),
			Country:     cell("country"),
			Impressions: cell("impressions"),
			Clicks:      cell("clicks"),
			Label:       cell("label"),
		}
		ev, err := rec.Parse(i + 1)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// Close is a no-op; the workbook is loaded and released within Read.
func (r *Reader) Close() error {
	return nil
}

func (r *Reader) sheet(f *xlsx.File) (*xlsx.Sheet, error) {
	if r.sheetName != "" {
		sheet, ok := f.Sheet[r.sheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", r.sheetName)
		}
		return sheet, nil
	}
	if r.sheetIndex < 0 || r.sheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", r.sheetIndex, len(f.Sheets))
	}
	return f.Sheets[r.sheetIndex], nil
}

// rowToStrings renders every cell as text. Date cells are rounded to the second and
// rendered as RFC 3339, since their display format ("1/2/24 10:00") does not parse.
func rowToStrings(row *xlsx.Row, date1904 bool) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		if cell.IsTime() {
			if t, err := cell.GetTime(date1904); err == nil {
				cells[j] = t.UTC().Round(time.Second).Format(time.RFC3339)
				continue
			}
		}
		cells[j] = cell.String()
	}
	return cells
}

func blank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
