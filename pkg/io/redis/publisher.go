// Package redis keeps the summary of the latest run in a Redis hash and announces new
// runs on a pub/sub channel.
package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	clickio "github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io"
)

// DefaultKey is the hash holding the latest run summary.
const DefaultKey = "clickguard:latest"

// Config configures the summary publisher.
type Config struct {
	Address     string        `yaml:"address" mapstructure:"address"`
	Password    string        `yaml:"password" mapstructure:"password"`
	DB          int           `yaml:"db" mapstructure:"db"`
	Key         string        `yaml:"key" mapstructure:"key"`
	Channel     string        `yaml:"channel" mapstructure:"channel"`
	TTL         time.Duration `yaml:"ttl" mapstructure:"ttl"`
	DialTimeout time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
}

type client interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// Publisher writes run summaries to Redis.
type Publisher struct {
	client  client
	key     string
	channel string
	ttl     time.Duration
}

// NewPublisher connects lazily; the first Publish dials the server.
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.Address == "" {
		return nil, eris.New("redis: no address configured")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return newPublisher(rdb, cfg), nil
}

func newPublisher(c client, cfg Config) *Publisher {
	key := cfg.Key
	if key == "" {
		key = DefaultKey
	}
	return &Publisher{client: c, key: key, channel: cfg.Channel, ttl: cfg.TTL}
}

var _ clickio.Sink = (*Publisher)(nil)

// Publish replaces the summary hash and, when a channel is set, announces the run id.
func (p *Publisher) Publish(ctx context.Context, report *clickio.Report) error {
	fields, err := summaryFields(report)
	if err != nil {
		return err
	}
	if err := p.client.HSet(ctx, p.key, fields...).Err(); err != nil {
		return eris.Wrapf(err, "redis: hset %s", p.key)
	}
	if p.ttl > 0 {
		if err := p.client.Expire(ctx, p.key, p.ttl).Err(); err != nil {
			return eris.Wrapf(err, "redis: expire %s", p.key)
		}
	}
	if p.channel != "" {
		if err := p.client.Publish(ctx, p.channel, report.RunID).Err(); err != nil {
			return eris.Wrapf(err, "redis: publish %s", p.channel)
		}
	}
	return nil
}

// Close closes the client.
func (p *Publisher) Close() error {
	return eris.Wrap(p.client.Close(), "redis: close client")
}

func summaryFields(report *clickio.Report) ([]interface{}, error) {
	summary, err := json.Marshal(report.Summary)
	if err != nil {
		return nil, eris.Wrap(err, "redis: marshal summary")
	}
	trends, err := json.Marshal(report.Trends)
	if err != nil {
		return nil, eris.Wrap(err, "redis: marshal trends")
	}

	m := report.Summary.Metrics
	return []interface{}{
		"run_id", report.RunID,
		"created_at", report.CreatedAt.UTC().Format(time.RFC3339Nano),
		"source", report.Source,
		"model", report.Model,
		"rows", strconv.Itoa(report.Summary.Rows),
		"anomalies", strconv.Itoa(report.Summary.Anomalies),
		"total_clicks", strconv.FormatInt(report.Summary.TotalClicks, 10),
		"metrics_available", strconv.FormatBool(m.Available),
		"precision", strconv.FormatFloat(m.Precision, 'f', -1, 64),
		"recall", strconv.FormatFloat(m.Recall, 'f', -1, 64),
		"summary", string(summary),
		"trends", string(trends),
	}, nil
}
