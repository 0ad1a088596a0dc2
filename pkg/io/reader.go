// Package io defines the event sources and report sinks used by the pipeline.
package io

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/clicks"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/scoring"
)

// Reader is the interface for loading a batch of click events.
type Reader interface {
	// Read returns every event of the source in source order. It never returns a
	// partial batch: any malformed record fails the whole read.
	Read(ctx context.Context) ([]clicks.Event, error)

	// Close releases resources.
	Close() error
}

// Report is everything an evaluation run publishes.
type Report struct {
	RunID     string
	CreatedAt time.Time
	Source    string
	Model     string
	Summary   scoring.Summary
	Trends    []scoring.DailyTrend
	Alerts    []scoring.Alert
}

// Sink receives the report of a finished run.
type Sink interface {
	// Publish writes or sends the report.
	Publish(ctx context.Context, report *Report) error

	// Close releases resources.
	Close() error
}

// ReadAll reads r and closes it.
func ReadAll(ctx context.Context, r Reader) ([]clicks.Event, error) {
	events, err := r.Read(ctx)
	if cerr := r.Close(); err == nil && cerr != nil {
		return nil, eris.Wrap(cerr, "io: close reader")
	}
	return events, err
}

// NormalizeHeader lower-cases and trims header names so tabular sources match
// clicks.Columns regardless of spreadsheet formatting.
func NormalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	return out
}

// CheckHeader fails with a *clicks.ParseError naming the first required column the
// header lacks.
func CheckHeader(header []string) error {
	present := make(map[string]struct{}, len(header))
	for _, h := range header {
		present[h] = struct{}{}
	}
	for _, col := range clicks.RequiredColumns {
		if _, ok := present[col]; !ok {
			return &clicks.ParseError{Row: 0, Column: col, Err: eris.New("missing required column")}
		}
	}
	return nil
}
