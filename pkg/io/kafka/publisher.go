// Package kafka publishes fraud alerts to a Kafka topic, one message per flagged event.
package kafka

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/segmentio/kafka-go"

	clickio "github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/scoring"
)

// Config configures the alert publisher.
type Config struct {
	Brokers      []string      `yaml:"brokers" mapstructure:"brokers"`
	Topic        string        `yaml:"topic" mapstructure:"topic"`
	BatchSize    int           `yaml:"batch_size" mapstructure:"batch_size"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	TLS          bool          `yaml:"tls" mapstructure:"tls"`
}

// Message is the JSON value of every alert message.
type Message struct {
	RunID string `json:"run_id"`
	Model string `json:"model,omitempty"`
	scoring.Alert
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes alerts keyed by client ip so one ip's alerts stay on one partition.
type Publisher struct {
	w         messageWriter
	batchSize int
}

// NewPublisher returns a synchronous publisher for cfg.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, eris.New("kafka: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, eris.New("kafka: no topic configured")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	tr := &kafka.Transport{
		DialTimeout: cfg.DialTimeout,
	}
	if cfg.TLS {
		tr.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Transport:              tr,
		AllowAutoTopicCreation: false,
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           cfg.WriteTimeout,
	}
	return &Publisher{w: w, batchSize: cfg.BatchSize}, nil
}

var _ clickio.Sink = (*Publisher)(nil)

// Publish sends every alert of the report in batches.
func (p *Publisher) Publish(ctx context.Context, report *clickio.Report) error {
	msgs := make([]kafka.Message, 0, len(report.Alerts))
	for _, a := range report.Alerts {
		value, err := json.Marshal(Message{RunID: report.RunID, Model: report.Model, Alert: a})
		if err != nil {
			return eris.Wrap(err, "kafka: marshal alert")
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(a.IP),
			Value: value,
			Time:  a.Timestamp,
			Headers: []kafka.Header{
				{Key: "run_id", Value: []byte(report.RunID)},
			},
		})
	}

	for start := 0; start < len(msgs); start += p.batchSize {
		end := min(start+p.batchSize, len(msgs))
		if err := p.w.WriteMessages(ctx, msgs[start:end]...); err != nil {
			return eris.Wrapf(err, "kafka: write alerts %d-%d", start, end)
		}
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return eris.Wrap(p.w.Close(), "kafka: close writer")
}
