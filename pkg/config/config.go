// Package config loads the clickguard configuration from an optional YAML file and
// CLICKGUARD_ environment variables, and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/clicks"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/detectors"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io/kafka"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io/postgres"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io/redis"
)

// Source types accepted by SourceConfig.Type.
const (
	SourceCSV        = "csv"
	SourceXLSX       = "xlsx"
	SourcePCAP       = "pcap"
	SourceSQLite     = "sqlite"
	SourcePostgres   = "postgres"
	SourceClickHouse = "clickhouse"
)

// Config holds the full application configuration.
type Config struct {
	Source   SourceConfig     `yaml:"source" mapstructure:"source"`
	Paths    PathsConfig      `yaml:"paths" mapstructure:"paths"`
	Detector detectors.Config `yaml:"detector" mapstructure:"detector"`
	Enrich   EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Sinks    SinksConfig      `yaml:"sinks" mapstructure:"sinks"`
	Server   ServerConfig     `yaml:"server" mapstructure:"server"`
	Log      LogConfig        `yaml:"log" mapstructure:"log"`
}

// SourceConfig selects where raw click events are read from.
type SourceConfig struct {
	Type string `yaml:"type" mapstructure:"type"`
	// Path is the input file for csv, xlsx and pcap sources.
	Path  string `yaml:"path" mapstructure:"path"`
	Comma string `yaml:"comma" mapstructure:"comma"`
	Sheet string `yaml:"sheet" mapstructure:"sheet"`
	// DSN is the connection string for sqlite, postgres and clickhouse sources.
	DSN   string `yaml:"dsn" mapstructure:"dsn"`
	Table string `yaml:"table" mapstructure:"table"`
	// Since limits clickhouse reads to recent events; zero reads everything.
	Since            time.Duration       `yaml:"since" mapstructure:"since"`
	Pool             postgres.PoolConfig `yaml:"pool" mapstructure:"pool"`
	ClickPrefix      string              `yaml:"click_prefix" mapstructure:"click_prefix"`
	ImpressionPrefix string              `yaml:"impression_prefix" mapstructure:"impression_prefix"`
	ForwardedFor     bool                `yaml:"forwarded_for" mapstructure:"forwarded_for"`
}

// PathsConfig holds the artifact locations.
type PathsConfig struct {
	Features string `yaml:"features" mapstructure:"features"`
	Model    string `yaml:"model" mapstructure:"model"`
	Reports  string `yaml:"reports" mapstructure:"reports"`
}

// EnrichConfig configures device and country backfill.
type EnrichConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	GeoIPDB string `yaml:"geoip_db" mapstructure:"geoip_db"`
}

// SinksConfig lists where evaluation reports are published. CSV reports are always
// written to paths.reports; every other sink is off while its address is empty.
type SinksConfig struct {
	XLSX     string       `yaml:"xlsx" mapstructure:"xlsx"`
	SQLite   string       `yaml:"sqlite" mapstructure:"sqlite"`
	Postgres string       `yaml:"postgres" mapstructure:"postgres"`
	Kafka    kafka.Config `yaml:"kafka" mapstructure:"kafka"`
	Redis    redis.Config `yaml:"redis" mapstructure:"redis"`
	// AlertLimit caps the alerts each sink receives; zero publishes all of them.
	AlertLimit int `yaml:"alert_limit" mapstructure:"alert_limit"`
}

// ServerConfig configures the reports API.
type ServerConfig struct {
	Addr           string        `yaml:"addr" mapstructure:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AlertLimit     int           `yaml:"alert_limit" mapstructure:"alert_limit"`
	ReadTimeout    time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. An empty path looks for an
// optional clickguard.yaml in the working directory.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("clickguard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CLICKGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	det := detectors.DefaultConfig()

	v.SetDefault("source.type", SourceCSV)
	v.SetDefault("source.path", "data/clicks.csv")
	v.SetDefault("source.comma", ",")
	v.SetDefault("source.sheet", "")
	v.SetDefault("source.dsn", "")
	v.SetDefault("source.table", "clicks")
	v.SetDefault("source.since", time.Duration(0))
	v.SetDefault("source.pool.max_conns", 4)
	v.SetDefault("source.pool.min_conns", 0)
	v.SetDefault("source.click_prefix", "/click")
	v.SetDefault("source.impression_prefix", "/impression")
	v.SetDefault("source.forwarded_for", false)

	v.SetDefault("paths.features", "data/features.csv")
	v.SetDefault("paths.model", "models/iforest.bundle")
	v.SetDefault("paths.reports", "reports")

	v.SetDefault("detector.contamination", det.Contamination)
	v.SetDefault("detector.trees", det.Trees)
	v.SetDefault("detector.sample_size", det.SampleSize)
	v.SetDefault("detector.seed", det.RandomSeed)
	v.SetDefault("detector.workers", det.Workers)

	v.SetDefault("enrich.enabled", true)
	v.SetDefault("enrich.geoip_db", "")

	v.SetDefault("sinks.xlsx", "")
	v.SetDefault("sinks.sqlite", "data/clickguard.db")
	v.SetDefault("sinks.postgres", "")
	v.SetDefault("sinks.alert_limit", 0)
	v.SetDefault("sinks.kafka.brokers", []string{})
	v.SetDefault("sinks.kafka.topic", "clickguard.alerts")
	v.SetDefault("sinks.kafka.batch_size", 500)
	v.SetDefault("sinks.kafka.write_timeout", 10*time.Second)
	v.SetDefault("sinks.kafka.dial_timeout", 5*time.Second)
	v.SetDefault("sinks.kafka.tls", false)
	v.SetDefault("sinks.redis.address", "")
	v.SetDefault("sinks.redis.password", "")
	v.SetDefault("sinks.redis.db", 0)
	v.SetDefault("sinks.redis.key", redis.DefaultKey)
	v.SetDefault("sinks.redis.channel", "")
	v.SetDefault("sinks.redis.ttl", time.Duration(0))
	v.SetDefault("sinks.redis.dial_timeout", 5*time.Second)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.alert_limit", 100)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	switch c.Source.Type {
	case SourceCSV, SourceXLSX, SourcePCAP:
		if c.Source.Path == "" {
			return invalid("source.path is required for %s sources", c.Source.Type)
		}
	case SourceSQLite, SourcePostgres, SourceClickHouse:
		if c.Source.DSN == "" {
			return invalid("source.dsn is required for %s sources", c.Source.Type)
		}
	default:
		return invalid("unknown source.type %q", c.Source.Type)
	}
	if c.Source.Type == SourceCSV && len([]rune(c.Source.Comma)) != 1 {
		return invalid("source.comma must be a single character, got %q", c.Source.Comma)
	}

	if c.Paths.Model == "" {
		return invalid("paths.model is required")
	}
	if c.Paths.Reports == "" {
		return invalid("paths.reports is required")
	}

	if err := c.Detector.Validate(); err != nil {
		return eris.Wrap(err, "config: detector")
	}

	if len(c.Sinks.Kafka.Brokers) > 0 && c.Sinks.Kafka.Topic == "" {
		return invalid("sinks.kafka.topic is required when brokers are set")
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return invalid("log.format must be json or console, got %q", c.Log.Format)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level %q: %v", c.Log.Level, err)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return eris.Wrapf(clicks.ErrInvalidConfiguration, "config: "+format, args...)
}

// CommaRune returns the first character of Comma, or a comma when it is empty.
func (s SourceConfig) CommaRune() rune {
	for _, r := range s.Comma {
		return r
	}
	return ','
}

// YAML renders the effective configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	out := *c
	if out.Sinks.Redis.Password != "" {
		out.Sinks.Redis.Password = "********"
	}
	b, err := yaml.Marshal(&out)
	if err != nil {
		return nil, eris.Wrap(err, "config: marshal yaml")
	}
	return b, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
