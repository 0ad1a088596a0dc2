package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/clicks"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/config"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/enrich"
	clickio "github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io/clickhouse"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io/csv"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io/pcap"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io/postgres"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io/sqlite"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io/xlsx"
)

// OpenSource returns the reader selected by cfg.Type. Database sources get their events
// table created when missing so a fresh database reads as empty.
func OpenSource(ctx context.Context, cfg config.SourceConfig, enricher *enrich.Enricher) (clickio.Reader, error) {
	switch cfg.Type {
	case config.SourceCSV:
		return csv.NewReader(cfg.Path, csv.WithComma(cfg.CommaRune()))

	case config.SourceXLSX:
		var opts []xlsx.Option
		if cfg.Sheet != "" {
			opts = append(opts, xlsx.WithSheetName(cfg.Sheet))
		}
		return xlsx.NewReader(cfg.Path, opts...)

	case config.SourcePCAP:
		opts := []pcap.Option{
			pcap.WithClickPrefix(cfg.ClickPrefix),
			pcap.WithImpressionPrefix(cfg.ImpressionPrefix),
			pcap.WithForwardedFor(cfg.ForwardedFor),
		}
		if enricher != nil {
			opts = append(opts, pcap.WithEnricher(enricher))
		}
		return pcap.NewFileReader(cfg.Path, opts...)

	case config.SourceSQLite:
		store, err := sqlite.New(cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil

	case config.SourcePostgres:
		store, err := postgres.New(ctx, cfg.DSN, &cfg.Pool, postgres.WithTable(cfg.Table))
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.SourceClickHouse:
		opts := []clickhouse.Option{clickhouse.WithTable(cfg.Table)}
		if cfg.Since > 0 {
			opts = append(opts, clickhouse.WithSince(time.Now().Add(-cfg.Since)))
		}
		return clickhouse.NewReader(ctx, cfg.DSN, opts...)
	}
	return nil, eris.Wrapf(clicks.ErrInvalidConfiguration, "pipeline: unknown source type %q", cfg.Type)
}

// describeSource names the source in reports without exposing credentials.
func describeSource(cfg config.SourceConfig) string {
	switch cfg.Type {
	case config.SourceCSV, config.SourceXLSX, config.SourcePCAP:
		return cfg.Type + ":" + cfg.Path
	}
	return cfg.Type + ":" + cfg.Table
}
