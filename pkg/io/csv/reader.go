// Package csv reads click events from CSV files and writes the run reports as CSV.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/clicks"
	clickio "github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io"
)

// Reader reads events from a CSV file with a header row. Columns may appear in any
// order; unknown columns are ignored and label is optional.
type Reader struct {
	file  *os.File
	comma rune
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithComma sets the field delimiter.
func WithComma(c rune) Option {
	return func(r *Reader) {
		r.comma = c
	}
}

// NewReader opens filename. A missing file fails with clicks.ErrSourceNotFound.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrapf(clicks.ErrSourceNotFound, "csv: %s", filename)
		}
		return nil, eris.Wrapf(err, "csv: open %s", filename)
	}

	r := &Reader{file: file, comma: ','}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

var _ clickio.Reader = (*Reader)(nil)

// Read decodes every row. The first malformed field fails the read.
func (r *Reader) Read(ctx context.Context) ([]clicks.Event, error) {
	return decode(ctx, r.file, r.comma)
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

func decode(ctx context.Context, src io.Reader, comma rune) ([]clicks.Event, error) {
	cr := csv.NewReader(src)
	cr.Comma = comma
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, clickio.CheckHeader(nil)
		}
		return nil, eris.Wrap(err, "csv: read header")
	}
	header = clickio.NormalizeHeader(header)
	if err := clickio.CheckHeader(header); err != nil {
		return nil, err
	}

	dec, err := csvutil.NewDecoder(cr, header...)
	if err != nil {
		return nil, eris.Wrap(err, "csv: create decoder")
	}

	var events []clicks.Event
	for row := 1; ; row++ {
		if row%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, eris.Wrap(err, "csv: read")
			}
		}

		var rec clicks.Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, eris.Wrapf(err, "csv: read row %d", row)
		}

		ev, err := rec.Parse(row)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}
