// Package postgres reads click events from and publishes run reports to PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/clicks"
	clickio "github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io"
)

// Pool is the subset of *pgxpool.Pool the store uses.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// Store reads events from a clicks table and records evaluation runs.
type Store struct {
	pool  Pool
	table string
}

// Option configures a Store.
type Option func(*Store)

// WithTable sets the events table. The default is "clicks".
func WithTable(name string) Option {
	return func(s *Store) {
		s.table = name
	}
}

// New creates a Store with a connection pool.
func New(ctx context.Context, connString string, poolCfg *PoolConfig, opts ...Option) (*Store, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newStore(pool, opts...), nil
}

func newStore(pool Pool, opts ...Option) *Store {
	s := &Store{pool: pool, table: "clicks"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ clickio.Reader = (*Store)(nil)
	_ clickio.Sink   = (*Store)(nil)
)

// migration creates the schema. The events table name is substituted for %s.
const migration = `
CREATE TABLE IF NOT EXISTS %s (
	id          BIGSERIAL PRIMARY KEY,
	ip          TEXT NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL,
	device      TEXT NOT NULL DEFAULT '',
	user_agent  TEXT NOT NULL DEFAULT '',
	country     TEXT NOT NULL DEFAULT '',
	impressions BIGINT NOT NULL DEFAULT 0,
	clicks      BIGINT NOT NULL DEFAULT 0,
	label       INTEGER
);

CREATE TABLE IF NOT EXISTS fraud_runs (
	id                TEXT PRIMARY KEY,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	source            TEXT NOT NULL DEFAULT '',
	model             TEXT NOT NULL DEFAULT '',
	row_count         INTEGER NOT NULL,
	anomalies         INTEGER NOT NULL,
	total_clicks      BIGINT NOT NULL,
	metrics_available BOOLEAN NOT NULL DEFAULT false,
	precision         DOUBLE PRECISION NOT NULL DEFAULT 0,
	recall            DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS fraud_trends (
	run_id                TEXT NOT NULL REFERENCES fraud_runs(id),
	date                  DATE NOT NULL,
	total_clicks          BIGINT NOT NULL,
	anomalies             BIGINT NOT NULL,
	fraud_labels_or_count BIGINT NOT NULL,
	PRIMARY KEY (run_id, date)
);

CREATE TABLE IF NOT EXISTS fraud_alerts (
	run_id             TEXT NOT NULL REFERENCES fraud_runs(id),
	position           INTEGER NOT NULL,
	ip                 TEXT NOT NULL,
	timestamp          TIMESTAMPTZ NOT NULL,
	device             TEXT NOT NULL,
	country            TEXT NOT NULL,
	clicks             BIGINT NOT NULL,
	click_rate         DOUBLE PRECISION NOT NULL,
	clicks_per_ip_hour DOUBLE PRECISION NOT NULL,
	score              DOUBLE PRECISION NOT NULL,
	anomaly            INTEGER NOT NULL,
	label              INTEGER,
	PRIMARY KEY (run_id, position)
);
`

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(migration, pgx.Identifier{s.table}.Sanitize()))
	return eris.Wrap(err, "postgres: migrate")
}

// Read returns every event of the table ordered by id.
func (s *Store) Read(ctx context.Context) ([]clicks.Event, error) {
	query := `SELECT ip, timestamp, device, user_agent, country, impressions, clicks, label FROM ` +
		pgx.Identifier{s.table}.Sanitize() + ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query %s", s.table)
	}
	defer rows.Close()

	var events []clicks.Event
	for rows.Next() {
		var (
			ev     clicks.Event
			device string
			label  *int32
		)
		if err := rows.Scan(&ev.IP, &ev.Timestamp, &device, &ev.UserAgent, &ev.Country,
			&ev.Impressions, &ev.Clicks, &label); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		ev.Timestamp = ev.Timestamp.UTC()
		ev.Device = clicks.ParseDevice(device)
		if label != nil {
			ev.Label = clicks.IntPtr(int(*label))
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: iterate events")
}

// Publish inserts the run row and bulk-copies its trends and alerts in one
// transaction, so a failed COPY leaves no partial run behind.
func (s *Store) Publish(ctx context.Context, report *clickio.Report) error {
	runID, createdAt := report.RunID, report.CreatedAt
	if runID == "" {
		runID = uuid.New().String()
	}
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	trendRows := make([][]any, len(report.Trends))
	for i, t := range report.Trends {
		date, err := time.Parse("2006-01-02", t.Date)
		if err != nil {
			return eris.Wrapf(err, "postgres: trend date %q", t.Date)
		}
		trendRows[i] = []any{runID, date, t.TotalClicks, t.Anomalies, t.FraudLabelsOrCount}
	}

	alertRows := make([][]any, len(report.Alerts))
	for i, a := range report.Alerts {
		var label *int32
		if a.Label != nil {
			v := int32(*a.Label)
			label = &v
		}
		alertRows[i] = []any{runID, i, a.IP, a.Timestamp, a.Device, a.Country, a.Clicks,
			a.ClickRate, a.ClicksPerIPHour, a.Score, a.Anomaly, label}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin publish")
	}
	if err := publishTx(ctx, tx, runID, createdAt, report, trendRows, alertRows); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return eris.Wrapf(tx.Commit(ctx), "postgres: commit run %s", runID)
}

func publishTx(ctx context.Context, tx pgx.Tx, runID string, createdAt time.Time,
	report *clickio.Report, trendRows, alertRows [][]any) error {
	sum := report.Summary
	_, err := tx.Exec(ctx,
		`INSERT INTO fraud_runs (id, created_at, source, model, row_count, anomalies, total_clicks, metrics_available, precision, recall)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		runID, createdAt, report.Source, report.Model, sum.Rows, sum.Anomalies, sum.TotalClicks,
		sum.Metrics.Available, sum.Metrics.Precision, sum.Metrics.Recall,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert run %s", runID)
	}

	if err := copyRows(ctx, tx, "fraud_trends",
		[]string{"run_id", "date", "total_clicks", "anomalies", "fraud_labels_or_count"}, trendRows); err != nil {
		return err
	}
	return copyRows(ctx, tx, "fraud_alerts",
		[]string{"run_id", "position", "ip", "timestamp", "device", "country", "clicks",
			"click_rate", "clicks_per_ip_hour", "score", "anomaly", "label"}, alertRows)
}

// copyRows bulk-inserts rows with the COPY protocol.
func copyRows(ctx context.Context, tx pgx.Tx, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows)); err != nil {
		return eris.Wrapf(err, "postgres: COPY INTO %s", table)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
