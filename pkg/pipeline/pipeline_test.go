package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/clicks"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/config"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/detectors"
	clickio "github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io/csv"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io/sqlite"
)

func writeClicks(t *testing.T, path string, n int, seed int64) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	var b strings.Builder
	b.WriteString("ip,timestamp,device,user_agent,country,impressions,clicks,label\n")
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(rng.Intn(72*3600)) * time.Second)
		fmt.Fprintf(&b, "10.0.%d.%d,%s,%s,ua-%d,%s,%d,%d,%d\n",
			rng.Intn(4), rng.Intn(40),
			ts.Format(time.RFC3339),
			[]string{"mobile", "desktop", "tablet"}[rng.Intn(3)],
			rng.Intn(6),
			[]string{"US", "DE", "IN"}[rng.Intn(3)],
			1+rng.Intn(6), rng.Intn(3), rng.Intn(2),
		)
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	source := filepath.Join(dir, "clicks.csv")
	writeClicks(t, source, 300, 1)

	return &config.Config{
		Source: config.SourceConfig{Type: config.SourceCSV, Path: source, Comma: ","},
		Paths: config.PathsConfig{
			Features: filepath.Join(dir, "data", "features.csv"),
			Model:    filepath.Join(dir, "models", "iforest.bundle"),
			Reports:  filepath.Join(dir, "reports"),
		},
		Detector: detectors.Config{Contamination: 0.1, Trees: 20, SampleSize: 64, RandomSeed: 1, Workers: 2},
		Enrich:   config.EnrichConfig{Enabled: true},
		Sinks:    config.SinksConfig{SQLite: filepath.Join(dir, "data", "clickguard.db")},
	}
}

func newPipeline(t *testing.T, cfg *config.Config) *Pipeline {
	t.Helper()
	p, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestRun(t *testing.T) {
	cfg := testConfig(t)
	p := newPipeline(t, cfg)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 300, report.Summary.Rows)
	assert.Equal(t, report.Summary.Anomalies, len(report.Alerts))
	assert.True(t, report.Summary.Metrics.Available)
	assert.Equal(t, "csv:"+cfg.Source.Path, report.Source)
	assert.NotEmpty(t, report.Trends)

	for _, path := range []string{
		cfg.Paths.Features,
		cfg.Paths.Model,
		filepath.Join(cfg.Paths.Reports, csv.TrendsFile),
		filepath.Join(cfg.Paths.Reports, csv.AlertsFile),
	} {
		assert.FileExists(t, path)
	}

	store, err := sqlite.New(cfg.Sinks.SQLite)
	require.NoError(t, err)
	defer store.Close()

	latest, err := store.LatestReport(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, report.RunID, latest.RunID)
	assert.Equal(t, report.Summary.Anomalies, latest.Summary.Anomalies)
	assert.Equal(t, report.Trends, latest.Trends)
	assert.Len(t, latest.Alerts, len(report.Alerts))
}

func TestTrainThenEvaluate(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sinks.AlertLimit = 5
	p := newPipeline(t, cfg)

	bundle, err := p.Train(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 300, bundle.Rows)
	assert.FileExists(t, cfg.Paths.Model)

	first, err := p.Evaluate(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, len(first.Alerts), 5)

	second, err := p.Evaluate(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Summary, second.Summary, "scoring the same batch is deterministic")
}

func TestFeatures(t *testing.T) {
	cfg := testConfig(t)
	p := newPipeline(t, cfg)

	frame, err := p.Features(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 300, frame.Len())
	assert.FileExists(t, cfg.Paths.Features)
	assert.NoFileExists(t, cfg.Paths.Model)
}

func TestPipelineErrors(t *testing.T) {
	t.Run("missing model", func(t *testing.T) {
		p := newPipeline(t, testConfig(t))
		_, err := p.Evaluate(context.Background())
		assert.ErrorIs(t, err, clicks.ErrSourceNotFound)
	})

	t.Run("missing source", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Source.Path = filepath.Join(t.TempDir(), "absent.csv")
		_, err := newPipeline(t, cfg).Run(context.Background())
		assert.ErrorIs(t, err, clicks.ErrSourceNotFound)
	})

	t.Run("invalid detector", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Detector.Contamination = 0.7
		_, err := newPipeline(t, cfg).Train(context.Background())
		assert.ErrorIs(t, err, clicks.ErrInvalidConfiguration)
	})

	t.Run("missing geoip database", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Enrich.GeoIPDB = filepath.Join(t.TempDir(), "absent.mmdb")
		_, err := New(cfg)
		assert.ErrorIs(t, err, clicks.ErrSourceNotFound)
	})

	t.Run("unknown source", func(t *testing.T) {
		_, err := OpenSource(context.Background(), config.SourceConfig{Type: "parquet"}, nil)
		assert.ErrorIs(t, err, clicks.ErrInvalidConfiguration)
	})
}

func TestOpenSource_SQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "events.db")
	store, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	events := []clicks.Event{
		{IP: "1.2.3.4", Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Device: clicks.DeviceMobile, Clicks: 1},
		{IP: "5.6.7.8", Timestamp: time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC), Device: clicks.DeviceDesktop, Impressions: 2},
	}
	require.NoError(t, store.InsertEvents(context.Background(), events))
	require.NoError(t, store.Close())

	r, err := OpenSource(context.Background(), config.SourceConfig{Type: config.SourceSQLite, DSN: dsn}, nil)
	require.NoError(t, err)
	got, err := clickio.ReadAll(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, events, got)
}

type recordingSink struct {
	mu      sync.Mutex
	reports []*clickio.Report
	err     error
	closed  bool
}

func (s *recordingSink) Publish(_ context.Context, r *clickio.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.reports = append(s.reports, r)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func TestPublish(t *testing.T) {
	report := &clickio.Report{RunID: "run-1"}

	a, b := &recordingSink{}, &recordingSink{}
	require.NoError(t, Publish(context.Background(), []NamedSink{{"a", a}, {"b", b}}, report))
	assert.Equal(t, []*clickio.Report{report}, a.reports)
	assert.Equal(t, []*clickio.Report{report}, b.reports)

	failing := &recordingSink{err: errors.New("disk full")}
	err := Publish(context.Background(), []NamedSink{{"ok", &recordingSink{}}, {"broken", failing}}, report)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Contains(t, err.Error(), "disk full")

	CloseSinks([]NamedSink{{"a", a}, {"b", b}})
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestOpenSinks(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sinks.XLSX = filepath.Join(t.TempDir(), "reports.xlsx")

	sinks, err := OpenSinks(context.Background(), cfg)
	require.NoError(t, err)
	defer CloseSinks(sinks)

	var names []string
	for _, s := range sinks {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"csv", "xlsx", "sqlite"}, names)
}
