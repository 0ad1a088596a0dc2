// Package pipeline runs the batch stages: read events, engineer features, train the
// detector bundle, score a batch and publish the reports.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/clicks"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/config"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/enrich"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/features"
	clickio "github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io/csv"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/model"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/scoring"
)

// Pipeline wires the configured source, model path and sinks together.
type Pipeline struct {
	cfg      *config.Config
	geo      *enrich.GeoIP
	enricher *enrich.Enricher
	now      func() time.Time
}

// New returns a pipeline for cfg. With enrichment enabled and a GeoIP database
// configured, the database is opened here and released by Close.
func New(cfg *config.Config) (*Pipeline, error) {
	p := &Pipeline{cfg: cfg, now: time.Now}
	if cfg.Enrich.Enabled {
		if cfg.Enrich.GeoIPDB != "" {
			geo, err := enrich.OpenGeoIP(cfg.Enrich.GeoIPDB)
			if err != nil {
				return nil, err
			}
			p.geo = geo
		}
		p.enricher = enrich.New(p.geo)
	}
	return p, nil
}

// Close releases the GeoIP database.
func (p *Pipeline) Close() error {
	return p.geo.Close()
}

// LoadEvents reads the whole configured source. Device and country are backfilled when
// enrichment is enabled.
func (p *Pipeline) LoadEvents(ctx context.Context) ([]clicks.Event, error) {
	start := time.Now()
	r, err := OpenSource(ctx, p.cfg.Source, p.enricher)
	if err != nil {
		return nil, err
	}
	events, err := clickio.ReadAll(ctx, r)
	if err != nil {
		return nil, err
	}
	if p.enricher != nil && p.cfg.Source.Type != config.SourcePCAP {
		p.enricher.FillAll(events)
	}

	zap.L().Info("pipeline: loaded events",
		zap.String("source", describeSource(p.cfg.Source)),
		zap.Int("rows", len(events)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return events, nil
}

// Features engineers the feature frame and writes it to paths.features.
func (p *Pipeline) Features(ctx context.Context) (*features.Frame, error) {
	events, err := p.LoadEvents(ctx)
	if err != nil {
		return nil, err
	}
	return p.writeFeatures(events)
}

func (p *Pipeline) writeFeatures(events []clicks.Event) (*features.Frame, error) {
	frame := features.Engineer(events)
	if p.cfg.Paths.Features != "" {
		if err := csv.WriteFeatures(p.cfg.Paths.Features, frame); err != nil {
			return nil, err
		}
	}
	zap.L().Info("pipeline: engineered features",
		zap.Int("rows", frame.Len()),
		zap.Int("columns", len(frame.ColumnNames())),
		zap.String("path", p.cfg.Paths.Features),
	)
	return frame, nil
}

// Train fits a bundle on the configured source and saves it to paths.model.
func (p *Pipeline) Train(ctx context.Context) (*model.Bundle, error) {
	events, err := p.LoadEvents(ctx)
	if err != nil {
		return nil, err
	}
	return p.train(ctx, features.Engineer(events))
}

func (p *Pipeline) train(ctx context.Context, frame *features.Frame) (*model.Bundle, error) {
	start := time.Now()
	bundle, err := model.Train(ctx, frame, p.cfg.Detector)
	if err != nil {
		return nil, err
	}
	if err := model.Save(p.cfg.Paths.Model, bundle); err != nil {
		return nil, err
	}

	zap.L().Info("pipeline: trained model",
		zap.Int("rows", bundle.Rows),
		zap.Int("trees", p.cfg.Detector.Trees),
		zap.Float64("contamination", p.cfg.Detector.Contamination),
		zap.Float64("threshold", bundle.Detector.Threshold()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return bundle, nil
}

// Evaluate scores the configured source with the saved bundle and publishes the report
// to every configured sink.
func (p *Pipeline) Evaluate(ctx context.Context) (*clickio.Report, error) {
	events, err := p.LoadEvents(ctx)
	if err != nil {
		return nil, err
	}
	return p.evaluate(ctx, events)
}

func (p *Pipeline) evaluate(ctx context.Context, events []clicks.Event) (*clickio.Report, error) {
	bundle, err := model.Load(p.cfg.Paths.Model)
	if err != nil {
		return nil, err
	}

	result, err := scoring.New(bundle).Score(ctx, events)
	if err != nil {
		return nil, err
	}
	report := p.buildReport(result)

	fields := []zap.Field{
		zap.String("run_id", report.RunID),
		zap.Int("rows", report.Summary.Rows),
		zap.Int("anomalies", report.Summary.Anomalies),
		zap.Int("days", report.Summary.Days),
	}
	if m := report.Summary.Metrics; m.Available {
		fields = append(fields, zap.Float64("precision", m.Precision), zap.Float64("recall", m.Recall))
	} else {
		fields = append(fields, zap.String("metrics", "unavailable: no labels"))
	}
	zap.L().Info("pipeline: scored batch", fields...)

	sinks, err := OpenSinks(ctx, p.cfg)
	if err != nil {
		return nil, err
	}
	defer CloseSinks(sinks)

	if err := Publish(ctx, sinks, report); err != nil {
		return nil, err
	}
	return report, nil
}

// Run executes features, train and evaluate over a single read of the source.
func (p *Pipeline) Run(ctx context.Context) (*clickio.Report, error) {
	events, err := p.LoadEvents(ctx)
	if err != nil {
		return nil, err
	}
	frame, err := p.writeFeatures(events)
	if err != nil {
		return nil, err
	}
	if _, err := p.train(ctx, frame); err != nil {
		return nil, err
	}
	report, err := p.evaluate(ctx, events)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: evaluate")
	}
	return report, nil
}

func (p *Pipeline) buildReport(result *scoring.Result) *clickio.Report {
	return &clickio.Report{
		RunID:     uuid.NewString(),
		CreatedAt: p.now().UTC(),
		Source:    describeSource(p.cfg.Source),
		Model:     p.cfg.Paths.Model,
		Summary:   result.Summary(),
		Trends:    result.Trends,
		Alerts:    result.Alerts(p.cfg.Sinks.AlertLimit),
	}
}
