package clicks

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the pipeline. Callers match them with errors.Is.
var (
	// ErrSourceNotFound is returned when an input file, table or bundle does not exist.
	ErrSourceNotFound = errors.New("source not found")

	// ErrParse is matched by every *ParseError.
	ErrParse = errors.New("parse error")

	// ErrSchemaMismatch is returned when scoring data lacks a column the model requires.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrIncompatibleBundle is returned for corrupt or unexpected model bundles.
	ErrIncompatibleBundle = errors.New("incompatible model bundle")

	// ErrInvalidConfiguration is returned for out-of-range settings such as contamination.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

var (
	errNegative   = errors.New("value must be non-negative")
	errLabelRange = errors.New("label must be 0 or 1")
)

// ParseError describes a malformed field in an input record.
type ParseError struct {
	Row    int // 1-based data row, header excluded
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: row %d column %q value %q: %v", e.Row, e.Column, e.Value, e.Err)
}

// Unwrap returns the underlying conversion error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is makes every ParseError match ErrParse.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}
