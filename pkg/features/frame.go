package features

import (
	"github.com/rotisserie/eris"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/clicks"
)

// Frame is the engineered form of a batch. Row i belongs to Events[i].
type Frame struct {
	Events  []clicks.Event
	Subnets []string
	Hours   []int

	columns map[string][]float64
}

// Vector is one row of published features in Columns order.
type Vector []float64

// Get returns the named published feature, or 0 if name is not published.
func (v Vector) Get(name string) float64 {
	i, ok := columnIndex[name]
	if !ok || i >= len(v) {
		return 0
	}
	return v[i]
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Events)
}

// Column returns a named column. The slice is shared; do not modify it.
func (f *Frame) Column(name string) ([]float64, bool) {
	col, ok := f.columns[name]
	return col, ok
}

// ColumnNames returns the published columns followed by the intermediates.
func (f *Frame) ColumnNames() []string {
	names := make([]string, 0, len(Columns)+len(Intermediates))
	names = append(names, Columns...)
	names = append(names, Intermediates...)
	return names
}

// Value returns a single cell, 0 if the column does not exist.
func (f *Frame) Value(row int, name string) float64 {
	col, ok := f.columns[name]
	if !ok {
		return 0
	}
	return col[row]
}

// Vector returns the published features of one row.
func (f *Frame) Vector(row int) Vector {
	v := make(Vector, len(Columns))
	for j, name := range Columns {
		v[j] = f.columns[name][row]
	}
	return v
}

// Matrix returns rows × cols in the requested column order. A column the frame does
// not carry fails with clicks.ErrSchemaMismatch rather than shifting the others.
func (f *Frame) Matrix(cols []string) ([][]float64, error) {
	selected := make([][]float64, len(cols))
	for j, name := range cols {
		col, ok := f.columns[name]
		if !ok {
			return nil, eris.Wrapf(clicks.ErrSchemaMismatch, "features: missing column %q", name)
		}
		selected[j] = col
	}

	out := make([][]float64, f.Len())
	for i := range out {
		row := make([]float64, len(cols))
		for j, col := range selected {
			row[j] = col[i]
		}
		out[i] = row
	}
	return out, nil
}
