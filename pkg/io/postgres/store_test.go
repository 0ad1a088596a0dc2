package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/clicks"
	clickio "github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/scoring"
)

// newMockStore creates a Store backed by pgxmock for unit testing.
func newMockStore(t *testing.T, opts ...Option) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return newStore(mock, opts...), mock
}

var eventColumns = []string{"ip", "timestamp", "device", "user_agent", "country", "impressions", "clicks", "label"}

func TestStore_Read(t *testing.T) {
	s, mock := newMockStore(t)

	ts := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	one := int32(1)
	mock.ExpectQuery(`SELECT ip, timestamp, device, user_agent, country, impressions, clicks, label FROM "clicks" ORDER BY id`).
		WillReturnRows(mock.NewRows(eventColumns).
			AddRow("1.1.1.1", ts, "Mobile", "ua-1", "US", int64(4), int64(2), &one).
			AddRow("2.2.2.2", ts.Add(time.Minute), "desktop", "ua-2", "DE", int64(0), int64(1), nil))

	events, err := s.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, clicks.Event{
		IP: "1.1.1.1", Timestamp: ts, Device: clicks.DeviceMobile, UserAgent: "ua-1",
		Country: "US", Impressions: 4, Clicks: 2, Label: clicks.IntPtr(1),
	}, events[0])
	assert.Nil(t, events[1].Label)
	assert.Equal(t, clicks.DeviceDesktop, events[1].Device)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Read_CustomTable(t *testing.T) {
	s, mock := newMockStore(t, WithTable("ad_clicks"))

	mock.ExpectQuery(`FROM "ad_clicks" ORDER BY id`).
		WillReturnRows(mock.NewRows(eventColumns))

	events, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Read_QueryError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM "clicks"`).WillReturnError(errors.New("relation does not exist"))

	_, err := s.Read(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: query clicks")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Migrate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "clicks"[\s\S]*anomaly +INTEGER NOT NULL`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Migrate_CustomTable(t *testing.T) {
	s, mock := newMockStore(t, WithTable("ad_clicks"))

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "ad_clicks" \(`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Publish(t *testing.T) {
	s, mock := newMockStore(t)

	report := &clickio.Report{
		RunID:     "run-7",
		CreatedAt: time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC),
		Summary:   scoring.Summary{Rows: 3, Anomalies: 1, TotalClicks: 5},
		Trends:    []scoring.DailyTrend{{Date: "2024-04-01", TotalClicks: 5, Anomalies: 1, FraudLabelsOrCount: 3}},
		Alerts: []scoring.Alert{{IP: "1.1.1.1", Timestamp: time.Date(2024, 4, 1, 1, 0, 0, 0, time.UTC),
			Device: "mobile", Country: "US", Clicks: 3, Score: 0.8, Anomaly: 1}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO fraud_runs`).
		WithArgs("run-7", report.CreatedAt, "", "", 3, 1, int64(5), false, 0.0, 0.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"fraud_trends"},
		[]string{"run_id", "date", "total_clicks", "anomalies", "fraud_labels_or_count"}).
		WillReturnResult(1)
	mock.ExpectCopyFrom(pgx.Identifier{"fraud_alerts"},
		[]string{"run_id", "position", "ip", "timestamp", "device", "country", "clicks",
			"click_rate", "clicks_per_ip_hour", "score", "anomaly", "label"}).
		WillReturnResult(1)
	mock.ExpectCommit()

	require.NoError(t, s.Publish(context.Background(), report))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Publish_Empty(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO fraud_runs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "", "", 0, 0, int64(0), false, 0.0, 0.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.Publish(context.Background(), &clickio.Report{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Publish_CopyError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO fraud_runs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"fraud_trends"},
		[]string{"run_id", "date", "total_clicks", "anomalies", "fraud_labels_or_count"}).
		WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	err := s.Publish(context.Background(), &clickio.Report{
		RunID:  "run-8",
		Trends: []scoring.DailyTrend{{Date: "2024-04-01"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO fraud_trends")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Publish_InsertError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO fraud_runs`).WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	err := s.Publish(context.Background(), &clickio.Report{
		RunID:  "run-9",
		Alerts: []scoring.Alert{{IP: "1.1.1.1"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert run run-9")
	assert.NoError(t, mock.ExpectationsWereMet())
}
