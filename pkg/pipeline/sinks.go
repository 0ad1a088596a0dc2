package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/config"
	clickio "github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io/csv"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io/kafka"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io/postgres"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io/redis"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io/sqlite"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io/xlsx"
)

// NamedSink pairs a sink with the name used in logs and errors.
type NamedSink struct {
	Name string
	clickio.Sink
}

// OpenSinks builds every configured report sink. The CSV report writer is always first.
// On error the sinks opened so far are closed.
func OpenSinks(ctx context.Context, cfg *config.Config) (sinks []NamedSink, err error) {
	defer func() {
		if err != nil {
			CloseSinks(sinks)
			sinks = nil
		}
	}()

	sinks = append(sinks, NamedSink{Name: "csv", Sink: csv.NewReportWriter(cfg.Paths.Reports)})

	if cfg.Sinks.XLSX != "" {
		sinks = append(sinks, NamedSink{Name: "xlsx", Sink: xlsx.NewReportWriter(cfg.Sinks.XLSX)})
	}

	if cfg.Sinks.SQLite != "" {
		store, err := sqlite.New(cfg.Sinks.SQLite)
		if err != nil {
			return sinks, err
		}
		sinks = append(sinks, NamedSink{Name: "sqlite", Sink: store})
		if err := store.Migrate(ctx); err != nil {
			return sinks, err
		}
	}

	if cfg.Sinks.Postgres != "" {
		store, err := postgres.New(ctx, cfg.Sinks.Postgres, &cfg.Source.Pool)
		if err != nil {
			return sinks, err
		}
		sinks = append(sinks, NamedSink{Name: "postgres", Sink: store})
		if err := store.Migrate(ctx); err != nil {
			return sinks, err
		}
	}

	if len(cfg.Sinks.Kafka.Brokers) > 0 {
		pub, err := kafka.NewPublisher(cfg.Sinks.Kafka)
		if err != nil {
			return sinks, err
		}
		sinks = append(sinks, NamedSink{Name: "kafka", Sink: pub})
	}

	if cfg.Sinks.Redis.Address != "" {
		pub, err := redis.NewPublisher(cfg.Sinks.Redis)
		if err != nil {
			return sinks, err
		}
		sinks = append(sinks, NamedSink{Name: "redis", Sink: pub})
	}

	return sinks, nil
}

// Publish sends the report to every sink concurrently. Sinks only read the report.
func Publish(ctx context.Context, sinks []NamedSink, report *clickio.Report) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range sinks {
		g.Go(func() error {
			if err := s.Publish(ctx, report); err != nil {
				return eris.Wrapf(err, "pipeline: publish to %s", s.Name)
			}
			zap.L().Debug("pipeline: published report",
				zap.String("sink", s.Name),
				zap.String("run_id", report.RunID),
			)
			return nil
		})
	}
	return g.Wait()
}

// CloseSinks closes every sink, logging failures.
func CloseSinks(sinks []NamedSink) {
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			zap.L().Warn("pipeline: close sink", zap.String("sink", s.Name), zap.Error(err))
		}
	}
}
