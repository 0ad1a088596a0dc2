// Package model trains the click anomaly model and persists it as a versioned bundle
// holding the fitted scaler, the fitted detector and the feature schema.
package model

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/clicks"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/detectors"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/detectors/iforest"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/preprocess"
)

// BundleVersion is the on-disk format version written by Encode.
const BundleVersion = 1

var bundleMagic = []byte("CGBUNDLE")

// Bundle pairs a fitted scaler and detector with the feature columns they expect.
// A bundle is read-only once built; replace it as a whole with Save.
type Bundle struct {
	Version        int
	FeatureColumns []string
	Scaler         *preprocess.StandardScaler
	Detector       *iforest.IsolationForest
	Config         detectors.Config
	TrainedAt      time.Time
	Rows           int
}

// envelope is the gob payload that follows the magic header.
type envelope struct {
	Version        int
	FeatureColumns []string
	Mean           []float64
	Scale          []float64
	Detector       []byte
	Config         detectors.Config
	TrainedAt      time.Time
	Rows           int
}

// Encode writes the bundle to w.
func (b *Bundle) Encode(w io.Writer) error {
	if b.Detector == nil || !b.Scaler.Fitted() {
		return eris.New("model: bundle is not fitted")
	}
	forest, err := b.Detector.Save()
	if err != nil {
		return eris.Wrap(err, "model: serialize detector")
	}

	if _, err := w.Write(bundleMagic); err != nil {
		return eris.Wrap(err, "model: write header")
	}
	err = gob.NewEncoder(w).Encode(envelope{
		Version:        b.Version,
		FeatureColumns: b.FeatureColumns,
		Mean:           b.Scaler.Mean,
		Scale:          b.Scaler.Scale,
		Detector:       forest,
		Config:         b.Config,
		TrainedAt:      b.TrainedAt,
		Rows:           b.Rows,
	})
	return eris.Wrap(err, "model: encode bundle")
}

// Decode reads a bundle written by Encode. Any structural problem is reported as
// clicks.ErrIncompatibleBundle.
func Decode(r io.Reader) (*Bundle, error) {
	header := make([]byte, len(bundleMagic))
	if _, err := io.ReadFull(r, header); err != nil || !bytes.Equal(header, bundleMagic) {
		return nil, eris.Wrap(clicks.ErrIncompatibleBundle, "model: missing bundle header")
	}

	var env envelope
	if err := gob.NewDecoder(r).Decode(&env); err != nil {
		return nil, eris.Wrapf(clicks.ErrIncompatibleBundle, "model: decode bundle: %v", err)
	}
	if env.Version != BundleVersion {
		return nil, eris.Wrapf(clicks.ErrIncompatibleBundle, "model: bundle version %d, want %d", env.Version, BundleVersion)
	}
	if err := validateColumns(env.FeatureColumns); err != nil {
		return nil, err
	}

	scaler := &preprocess.StandardScaler{Mean: env.Mean, Scale: env.Scale}
	if scaler.Width() != len(env.FeatureColumns) || !scaler.Fitted() {
		return nil, eris.Wrapf(clicks.ErrIncompatibleBundle, "model: scaler width %d, feature columns %d",
			scaler.Width(), len(env.FeatureColumns))
	}

	forest := iforest.New()
	if err := forest.Load(env.Detector); err != nil {
		return nil, eris.Wrapf(clicks.ErrIncompatibleBundle, "model: load detector: %v", err)
	}
	if forest.NumFeatures() != len(env.FeatureColumns) {
		return nil, eris.Wrapf(clicks.ErrIncompatibleBundle, "model: detector width %d, feature columns %d",
			forest.NumFeatures(), len(env.FeatureColumns))
	}

	return &Bundle{
		Version:        env.Version,
		FeatureColumns: env.FeatureColumns,
		Scaler:         scaler,
		Detector:       forest,
		Config:         env.Config,
		TrainedAt:      env.TrainedAt,
		Rows:           env.Rows,
	}, nil
}

func validateColumns(cols []string) error {
	if len(cols) == 0 {
		return eris.Wrap(clicks.ErrIncompatibleBundle, "model: bundle has no feature columns")
	}
	seen := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		if c == "" {
			return eris.Wrap(clicks.ErrIncompatibleBundle, "model: empty feature column name")
		}
		if _, dup := seen[c]; dup {
			return eris.Wrapf(clicks.ErrIncompatibleBundle, "model: duplicate feature column %q", c)
		}
		seen[c] = struct{}{}
	}
	return nil
}

// Save writes the bundle atomically: it encodes to a temporary file in the target
// directory, syncs it and renames it over path. Readers never see a partial bundle.
func Save(path string, b *Bundle) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "model: create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "model: create temp file")
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	if err := b.Encode(w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return eris.Wrap(err, "model: flush bundle")
	}
	if err := tmp.Sync(); err != nil {
		return eris.Wrap(err, "model: sync bundle")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "model: close bundle")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "model: rename bundle to %s", path)
	}
	committed = true

	zap.L().Info("model: saved bundle",
		zap.String("path", path),
		zap.Int("features", len(b.FeatureColumns)),
		zap.Int("rows", b.Rows),
	)
	return nil
}

// Load reads a bundle from path.
func Load(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrapf(clicks.ErrSourceNotFound, "model: bundle %s", path)
		}
		return nil, eris.Wrapf(err, "model: open bundle %s", path)
	}
	defer f.Close()

	b, err := Decode(bufio.NewReader(f))
	if err != nil {
		return nil, eris.Wrapf(err, "model: load %s", path)
	}
	return b, nil
}
