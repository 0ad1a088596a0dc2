// Package scoring applies a trained bundle to a new batch of events and derives the
// evaluation artifacts: per-row flags, precision/recall, daily trends and alerts.
package scoring

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/clicks"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/features"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/model"
)

// ScoredEvent is an event together with the model's view of it.
type ScoredEvent struct {
	clicks.Event
	// Features holds the row in bundle column order, before scaling.
	Features        []float64
	ClickRate       float64
	ClicksPerIPHour float64
	Score           float64
	Anomaly         int
}

// Result is the outcome of scoring one batch.
type Result struct {
	Scored  []ScoredEvent
	Metrics Metrics
	Trends  []DailyTrend
}

// Scorer scores batches against a fixed bundle. It is safe for concurrent use.
type Scorer struct {
	bundle *model.Bundle
}

// New returns a scorer for bundle.
func New(bundle *model.Bundle) *Scorer {
	return &Scorer{bundle: bundle}
}

// Score engineers features exactly as training did, selects the bundle's columns in
// order, scales them with the fitted scaler and classifies every row.
func (s *Scorer) Score(ctx context.Context, events []clicks.Event) (*Result, error) {
	if s.bundle == nil || s.bundle.Detector == nil || !s.bundle.Scaler.Fitted() {
		return nil, eris.Wrap(clicks.ErrIncompatibleBundle, "scoring: bundle is not fitted")
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "scoring: score")
	}

	frame := features.Engineer(events)
	x, err := frame.Matrix(s.bundle.FeatureColumns)
	if err != nil {
		return nil, eris.Wrap(err, "scoring: select features")
	}
	if frame.Len() == 0 {
		return &Result{Metrics: evaluate(nil)}, nil
	}

	xs, err := s.bundle.Scaler.Transform(x)
	if err != nil {
		return nil, eris.Wrapf(clicks.ErrIncompatibleBundle, "scoring: scale: %v", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "scoring: score")
	}

	scores, err := s.bundle.Detector.Classify(xs)
	if err != nil {
		return nil, eris.Wrap(err, "scoring: classify")
	}

	scored := make([]ScoredEvent, frame.Len())
	for i, sc := range scores {
		v := frame.Vector(i)
		scored[i] = ScoredEvent{
			Event:           frame.Events[i],
			Features:        x[i],
			ClickRate:       v.Get(features.ClickRate),
			ClicksPerIPHour: v.Get(features.ClicksPerIPHour),
			Score:           sc.Value,
		}
		if sc.IsAnomaly {
			scored[i].Anomaly = 1
		}
	}

	return &Result{
		Scored:  scored,
		Metrics: evaluate(scored),
		Trends:  dailyTrends(scored),
	}, nil
}
