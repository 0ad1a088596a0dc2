package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/clicks"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, SourceCSV, cfg.Source.Type)
	assert.Equal(t, "data/clicks.csv", cfg.Source.Path)
	assert.Equal(t, ',', cfg.Source.CommaRune())
	assert.Equal(t, "clicks", cfg.Source.Table)
	assert.Equal(t, int32(4), cfg.Source.Pool.MaxConns)
	assert.Equal(t, "/click", cfg.Source.ClickPrefix)
	assert.Equal(t, "/impression", cfg.Source.ImpressionPrefix)

	assert.Equal(t, "data/features.csv", cfg.Paths.Features)
	assert.Equal(t, "models/iforest.bundle", cfg.Paths.Model)
	assert.Equal(t, "reports", cfg.Paths.Reports)

	assert.InDelta(t, 0.05, cfg.Detector.Contamination, 1e-12)
	assert.Equal(t, 100, cfg.Detector.Trees)
	assert.Equal(t, 256, cfg.Detector.SampleSize)
	assert.Equal(t, int64(42), cfg.Detector.RandomSeed)
	assert.Equal(t, runtime.GOMAXPROCS(0), cfg.Detector.Workers)

	assert.True(t, cfg.Enrich.Enabled)
	assert.Equal(t, "data/clickguard.db", cfg.Sinks.SQLite)
	assert.Empty(t, cfg.Sinks.Kafka.Brokers)
	assert.Equal(t, "clickguard.alerts", cfg.Sinks.Kafka.Topic)
	assert.Equal(t, 10*time.Second, cfg.Sinks.Kafka.WriteTimeout)
	assert.Equal(t, "clickguard:latest", cfg.Sinks.Redis.Key)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 100, cfg.Server.AlertLimit)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	content := `
source:
  type: postgres
  dsn: postgres://localhost/clicks
  pool:
    max_conns: 8
detector:
  contamination: 0.19
  trees: 50
  seed: 7
sinks:
  kafka:
    brokers: ["k1:9092", "k2:9092"]
    write_timeout: 3s
  redis:
    address: localhost:6379
    ttl: 1h
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clickguard.yaml"), []byte(content), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, SourcePostgres, cfg.Source.Type)
	assert.Equal(t, "postgres://localhost/clicks", cfg.Source.DSN)
	assert.Equal(t, int32(8), cfg.Source.Pool.MaxConns)
	assert.InDelta(t, 0.19, cfg.Detector.Contamination, 1e-12)
	assert.Equal(t, 50, cfg.Detector.Trees)
	assert.Equal(t, int64(7), cfg.Detector.RandomSeed)
	assert.Equal(t, 256, cfg.Detector.SampleSize, "unset keys keep defaults")
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Sinks.Kafka.Brokers)
	assert.Equal(t, 3*time.Second, cfg.Sinks.Kafka.WriteTimeout)
	assert.Equal(t, time.Hour, cfg.Sinks.Redis.TTL)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoadExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("source:\n  type: pcap\n  path: capture.pcap\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, SourcePCAP, cfg.Source.Type)
	assert.Equal(t, "capture.pcap", cfg.Source.Path)

	_, err = Load(filepath.Join(dir, "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CLICKGUARD_DETECTOR_CONTAMINATION", "0.2")
	t.Setenv("CLICKGUARD_SOURCE_PATH", "/data/other.csv")
	t.Setenv("CLICKGUARD_SERVER_ADDR", ":9090")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.InDelta(t, 0.2, cfg.Detector.Contamination, 1e-12)
	assert.Equal(t, "/data/other.csv", cfg.Source.Path)
	assert.Equal(t, ":9090", cfg.Server.Addr)
}

func TestValidate(t *testing.T) {
	chdirTemp(t)
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown source", func(c *Config) { c.Source.Type = "parquet" }},
		{"file source without path", func(c *Config) { c.Source.Path = "" }},
		{"database source without dsn", func(c *Config) { c.Source.Type = SourceClickHouse }},
		{"multi-character comma", func(c *Config) { c.Source.Comma = ";;" }},
		{"no model path", func(c *Config) { c.Paths.Model = "" }},
		{"no reports path", func(c *Config) { c.Paths.Reports = "" }},
		{"contamination too high", func(c *Config) { c.Detector.Contamination = 0.5 }},
		{"zero trees", func(c *Config) { c.Detector.Trees = 0 }},
		{"kafka without topic", func(c *Config) {
			c.Sinks.Kafka.Brokers = []string{"k:9092"}
			c.Sinks.Kafka.Topic = ""
		}},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), clicks.ErrInvalidConfiguration)
		})
	}
}

func TestYAML(t *testing.T) {
	chdirTemp(t)
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Sinks.Redis.Password = "hunter2"

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")
	assert.Equal(t, "hunter2", cfg.Sinks.Redis.Password, "the loaded config is left untouched")

	var back map[string]any
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Contains(t, back, "detector")
	assert.Contains(t, back, "sinks")
}

func TestInitLogger(t *testing.T) {
	orig := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(orig) })

	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))

	assert.Error(t, InitLogger(LogConfig{Level: "loud"}))
}
