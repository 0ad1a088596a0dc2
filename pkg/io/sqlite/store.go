// Package sqlite stores click events and evaluation runs in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/clicks"
	clickio "github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/scoring"
)

// ErrNoRuns is returned when the store holds no evaluation run yet.
var ErrNoRuns = errors.New("no runs recorded")

// Store is both an event source and a report sink.
type Store struct {
	db *sql.DB
}

// New opens a SQLite database at the given path and configures WAL mode. The parent
// directory of a plain file path is created when missing.
func New(dsn string) (*Store, error) {
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, eris.Wrapf(err, "sqlite: create directory for %s", dsn)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &Store{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS clicks (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ip          TEXT NOT NULL,
	timestamp   TEXT NOT NULL,
	device      TEXT NOT NULL DEFAULT '',
	user_agent  TEXT NOT NULL DEFAULT '',
	country     TEXT NOT NULL DEFAULT '',
	impressions INTEGER NOT NULL DEFAULT 0,
	clicks      INTEGER NOT NULL DEFAULT 0,
	label       INTEGER
);

CREATE TABLE IF NOT EXISTS runs (
	id                TEXT PRIMARY KEY,
	created_at        TEXT NOT NULL,
	source            TEXT NOT NULL DEFAULT '',
	model             TEXT NOT NULL DEFAULT '',
	row_count         INTEGER NOT NULL,
	anomalies         INTEGER NOT NULL,
	total_clicks      INTEGER NOT NULL,
	metrics_available INTEGER NOT NULL DEFAULT 0,
	precision         REAL NOT NULL DEFAULT 0,
	recall            REAL NOT NULL DEFAULT 0,
	true_positives    INTEGER NOT NULL DEFAULT 0,
	false_positives   INTEGER NOT NULL DEFAULT 0,
	false_negatives   INTEGER NOT NULL DEFAULT 0,
	labeled           INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS trends (
	run_id                TEXT NOT NULL REFERENCES runs(id),
	date                  TEXT NOT NULL,
	total_clicks          INTEGER NOT NULL,
	anomalies             INTEGER NOT NULL,
	fraud_labels_or_count INTEGER NOT NULL,
	PRIMARY KEY (run_id, date)
);

CREATE TABLE IF NOT EXISTS alerts (
	run_id             TEXT NOT NULL REFERENCES runs(id),
	position           INTEGER NOT NULL,
	ip                 TEXT NOT NULL,
	timestamp          TEXT NOT NULL,
	device             TEXT NOT NULL,
	country            TEXT NOT NULL,
	clicks             INTEGER NOT NULL,
	click_rate         REAL NOT NULL,
	clicks_per_ip_hour REAL NOT NULL,
	score              REAL NOT NULL,
	anomaly            INTEGER NOT NULL,
	label              INTEGER,
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_alerts_ip ON alerts(ip);
`

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

var (
	_ clickio.Reader = (*Store)(nil)
	_ clickio.Sink   = (*Store)(nil)
)

// InsertEvents appends events to the clicks table in one transaction.
func (s *Store) InsertEvents(ctx context.Context, events []clicks.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert events")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO clicks (ip, timestamp, device, user_agent, country, impressions, clicks, label) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert events")
	}
	defer stmt.Close()

	for _, ev := range events {
		_, err := stmt.ExecContext(ctx,
			ev.IP, ev.Timestamp.Format(time.RFC3339Nano), string(ev.Device), ev.UserAgent,
			ev.Country, ev.Impressions, ev.Clicks, nullLabel(ev.Label),
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert event")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit events")
}

// Read returns every stored event in insertion order.
func (s *Store) Read(ctx context.Context) ([]clicks.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ip, timestamp, device, user_agent, country, impressions, clicks, label FROM clicks ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query events")
	}
	defer rows.Close()

	var events []clicks.Event
	for row := 1; rows.Next(); row++ {
		var (
			ev     clicks.Event
			ts     string
			device string
			label  sql.NullInt64
		)
		if err := rows.Scan(&ev.IP, &ts, &device, &ev.UserAgent, &ev.Country, &ev.Impressions, &ev.Clicks, &label); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		ev.Timestamp, err = clicks.ParseTimestamp(ts)
		if err != nil {
			return nil, &clicks.ParseError{Row: row, Column: "timestamp", Value: ts, Err: err}
		}
		ev.Device = clicks.ParseDevice(device)
		if label.Valid {
			ev.Label = clicks.IntPtr(int(label.Int64))
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: iterate events")
}

// Publish records the report as a new run with its trends and alerts.
func (s *Store) Publish(ctx context.Context, report *clickio.Report) error {
	runID, createdAt := report.RunID, report.CreatedAt
	if runID == "" {
		runID = uuid.New().String()
	}
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin publish")
	}
	defer tx.Rollback() //nolint:errcheck

	sum := report.Summary
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, source, model, row_count, anomalies, total_clicks, metrics_available,
			precision, recall, true_positives, false_positives, false_negatives, labeled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, createdAt.UTC().Format(time.RFC3339Nano), report.Source, report.Model,
		sum.Rows, sum.Anomalies, sum.TotalClicks, sum.Metrics.Available,
		sum.Metrics.Precision, sum.Metrics.Recall, sum.Metrics.TruePositives,
		sum.Metrics.FalsePositives, sum.Metrics.FalseNegatives, sum.Metrics.Labeled,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert run %s", runID)
	}

	for _, t := range report.Trends {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO trends (run_id, date, total_clicks, anomalies, fraud_labels_or_count) VALUES (?, ?, ?, ?, ?)`,
			runID, t.Date, t.TotalClicks, t.Anomalies, t.FraudLabelsOrCount,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert trend %s", t.Date)
		}
	}

	for i, a := range report.Alerts {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO alerts (run_id, position, ip, timestamp, device, country, clicks, click_rate,
				clicks_per_ip_hour, score, anomaly, label)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, i, a.IP, a.Timestamp.Format(time.RFC3339Nano), a.Device, a.Country, a.Clicks,
			a.ClickRate, a.ClicksPerIPHour, a.Score, a.Anomaly, nullLabel(a.Label),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert alert %d", i)
		}
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit run %s", runID)
}

// LatestReport loads the most recent run. alertLimit <= 0 loads every alert. A store
// without runs fails with ErrNoRuns.
func (s *Store) LatestReport(ctx context.Context, alertLimit int) (*clickio.Report, error) {
	var (
		r         clickio.Report
		createdAt string
		available bool
	)
	m := &r.Summary.Metrics
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, source, model, row_count, anomalies, total_clicks, metrics_available,
			precision, recall, true_positives, false_positives, false_negatives, labeled
		FROM runs ORDER BY created_at DESC, rowid DESC LIMIT 1`,
	).Scan(&r.RunID, &createdAt, &r.Source, &r.Model, &r.Summary.Rows, &r.Summary.Anomalies,
		&r.Summary.TotalClicks, &available, &m.Precision, &m.Recall, &m.TruePositives,
		&m.FalsePositives, &m.FalseNegatives, &m.Labeled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest run")
	}
	m.Available = available
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse run time %q", createdAt)
	}

	if r.Trends, err = s.trends(ctx, r.RunID); err != nil {
		return nil, err
	}
	r.Summary.Days = len(r.Trends)
	if r.Alerts, err = s.alerts(ctx, r.RunID, alertLimit); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) trends(ctx context.Context, runID string) ([]scoring.DailyTrend, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, total_clicks, anomalies, fraud_labels_or_count FROM trends WHERE run_id = ? ORDER BY date`,
		runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query trends of %s", runID)
	}
	defer rows.Close()

	trends := make([]scoring.DailyTrend, 0)
	for rows.Next() {
		var t scoring.DailyTrend
		if err := rows.Scan(&t.Date, &t.TotalClicks, &t.Anomalies, &t.FraudLabelsOrCount); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan trend")
		}
		trends = append(trends, t)
	}
	return trends, eris.Wrap(rows.Err(), "sqlite: iterate trends")
}

func (s *Store) alerts(ctx context.Context, runID string, limit int) ([]scoring.Alert, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ip, timestamp, device, country, clicks, click_rate, clicks_per_ip_hour, score, anomaly, label
		FROM alerts WHERE run_id = ? ORDER BY position LIMIT ?`,
		runID, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query alerts of %s", runID)
	}
	defer rows.Close()

	alerts := make([]scoring.Alert, 0)
	for rows.Next() {
		var (
			a     scoring.Alert
			ts    string
			label sql.NullInt64
		)
		if err := rows.Scan(&a.IP, &ts, &a.Device, &a.Country, &a.Clicks, &a.ClickRate,
			&a.ClicksPerIPHour, &a.Score, &a.Anomaly, &label); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alert")
		}
		if a.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse alert time %q", ts)
		}
		if label.Valid {
			a.Label = clicks.IntPtr(int(label.Int64))
		}
		alerts = append(alerts, a)
	}
	return alerts, eris.Wrap(rows.Err(), "sqlite: iterate alerts")
}

func nullLabel(label *int) sql.NullInt64 {
	if label == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*label), Valid: true}
}
