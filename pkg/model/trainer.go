package model

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/clicks"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/detectors"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/detectors/iforest"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/features"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/preprocess"
)

// Train standardizes the published feature columns of frame and fits an isolation
// forest that treats roughly cfg.Contamination of the rows as anomalous.
func Train(ctx context.Context, frame *features.Frame, cfg detectors.Config) (*Bundle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if frame == nil || frame.Len() == 0 {
		return nil, eris.Wrap(clicks.ErrInvalidConfiguration, "model: no training rows")
	}

	cols := append([]string(nil), features.Columns...)
	x, err := frame.Matrix(cols)
	if err != nil {
		return nil, err
	}

	scaler := &preprocess.StandardScaler{}
	xs, err := scaler.FitTransform(x)
	if err != nil {
		return nil, eris.Wrap(err, "model: fit scaler")
	}

	forest := iforest.New(iforest.WithConfig(cfg))
	if err := forest.Fit(ctx, xs); err != nil {
		return nil, eris.Wrap(err, "model: fit detector")
	}

	return &Bundle{
		Version:        BundleVersion,
		FeatureColumns: cols,
		Scaler:         scaler,
		Detector:       forest,
		Config:         cfg,
		TrainedAt:      time.Now().UTC(),
		Rows:           frame.Len(),
	}, nil
}
