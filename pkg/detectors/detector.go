// Package detectors provides unsupervised anomaly detection algorithms.
package detectors

import (
	"context"
	"runtime"

	"github.com/rotisserie/eris"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/clicks"
)

// Detector is the common interface for all anomaly detection algorithms.
type Detector interface {
	// Fit trains the detector on historical data.
	// data is a 2D slice where each row is a sample and each column is a feature.
	Fit(ctx context.Context, data [][]float64) error

	// Predict returns anomaly scores for the given samples.
	// Scores are normalized to [0, 1] where higher values indicate anomalies.
	Predict(data [][]float64) ([]float64, error)

	// PredictOne returns the anomaly score for a single sample.
	PredictOne(sample []float64) (float64, error)

	// Classify scores the samples and applies the fitted decision threshold.
	Classify(data [][]float64) ([]Score, error)

	// Threshold returns the score above which a sample is anomalous.
	Threshold() float64

	// Save serializes the trained model to bytes.
	Save() ([]byte, error)

	// Load deserializes a trained model from bytes.
	Load(data []byte) error
}

// Score represents an anomaly detection result.
type Score struct {
	// Value is the anomaly score in [0, 1].
	Value float64
	// IsAnomaly indicates if the score exceeds the threshold.
	IsAnomaly bool
}

// Config holds common configuration for detectors.
type Config struct {
	// Contamination is the expected proportion of anomalies in training data.
	Contamination float64 `yaml:"contamination" mapstructure:"contamination"`
	// Trees is the ensemble size.
	Trees int `yaml:"trees" mapstructure:"trees"`
	// SampleSize is the subsample drawn for each tree.
	SampleSize int `yaml:"sample_size" mapstructure:"sample_size"`
	// RandomSeed for reproducibility.
	RandomSeed int64 `yaml:"seed" mapstructure:"seed"`
	// Workers bounds parallel tree construction and scoring. 0 means GOMAXPROCS.
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// DefaultConfig returns sensible defaults for detector configuration.
func DefaultConfig() Config {
	return Config{
		Contamination: 0.05,
		Trees:         100,
		SampleSize:    256,
		RandomSeed:    42,
		Workers:       runtime.GOMAXPROCS(0),
	}
}

// Validate checks the ranges the detectors rely on.
func (c Config) Validate() error {
	if c.Contamination <= 0 || c.Contamination >= 0.5 {
		return eris.Wrapf(clicks.ErrInvalidConfiguration, "detectors: contamination %v outside (0, 0.5)", c.Contamination)
	}
	if c.Trees <= 0 {
		return eris.Wrapf(clicks.ErrInvalidConfiguration, "detectors: trees must be positive, got %d", c.Trees)
	}
	if c.SampleSize <= 0 {
		return eris.Wrapf(clicks.ErrInvalidConfiguration, "detectors: sample size must be positive, got %d", c.SampleSize)
	}
	if c.Workers < 0 {
		return eris.Wrapf(clicks.ErrInvalidConfiguration, "detectors: workers must not be negative, got %d", c.Workers)
	}
	return nil
}
