package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/clicks"
	clickio "github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/scoring"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestStore_Events(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	events := []clicks.Event{
		{IP: "1.1.1.1", Timestamp: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), Device: clicks.DeviceMobile,
			UserAgent: "ua-1", Country: "US", Impressions: 3, Clicks: 1, Label: clicks.IntPtr(1)},
		{IP: "2.2.2.2", Timestamp: time.Date(2024, 1, 1, 9, 0, 0, 500, time.UTC), Device: clicks.DeviceDesktop,
			UserAgent: "ua-2", Country: "DE", Impressions: 0, Clicks: 2},
	}
	require.NoError(t, st.InsertEvents(ctx, events))

	got, err := st.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, events, got)

	t.Run("migrate is idempotent", func(t *testing.T) {
		require.NoError(t, st.Migrate(ctx))
		got, err := st.Read(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})
}

func TestStore_EmptyRead(t *testing.T) {
	st := newTestStore(t)
	got, err := st.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_Runs(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.LatestReport(ctx, 0)
	assert.ErrorIs(t, err, ErrNoRuns)

	first := &clickio.Report{
		RunID:     "run-1",
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Summary:   scoring.Summary{Rows: 1},
	}
	require.NoError(t, st.Publish(ctx, first))

	second := &clickio.Report{
		RunID:     "run-2",
		CreatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Source:    "data/clicks.csv",
		Model:     "models/iforest.bundle",
		Summary: scoring.Summary{
			Rows: 10, Anomalies: 3, TotalClicks: 40, Days: 2,
			Metrics: scoring.Metrics{Available: true, Precision: 2.0 / 3.0, Recall: 1, TruePositives: 2, FalsePositives: 1, Labeled: 10},
		},
		Trends: []scoring.DailyTrend{
			{Date: "2024-01-02", TotalClicks: 15, Anomalies: 1, FraudLabelsOrCount: 1},
			{Date: "2024-01-01", TotalClicks: 25, Anomalies: 2, FraudLabelsOrCount: 1},
		},
		Alerts: []scoring.Alert{
			{IP: "9.9.9.9", Timestamp: time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC), Device: "mobile", Country: "US",
				Clicks: 9, ClickRate: 3, ClicksPerIPHour: 12, Score: 0.71, Anomaly: 1, Label: clicks.IntPtr(1)},
			{IP: "8.8.8.8", Timestamp: time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC), Device: "desktop", Country: "DE",
				Clicks: 4, ClickRate: 4, ClicksPerIPHour: 4, Score: 0.69, Anomaly: 1},
			{IP: "7.7.7.7", Timestamp: time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC), Device: "tablet", Country: "IN",
				Clicks: 1, ClickRate: 1, ClicksPerIPHour: 1, Score: 0.66, Anomaly: 1, Label: clicks.IntPtr(0)},
		},
	}
	require.NoError(t, st.Publish(ctx, second))

	latest, err := st.LatestReport(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "run-2", latest.RunID)
	assert.True(t, second.CreatedAt.Equal(latest.CreatedAt))
	assert.Equal(t, second.Source, latest.Source)
	assert.Equal(t, second.Model, latest.Model)
	assert.Equal(t, second.Summary, latest.Summary)
	assert.Equal(t, []scoring.DailyTrend{second.Trends[1], second.Trends[0]}, latest.Trends, "trends sorted by date")
	assert.Equal(t, second.Alerts, latest.Alerts)

	limited, err := st.LatestReport(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, second.Alerts[:2], limited.Alerts)

	t.Run("duplicate run id", func(t *testing.T) {
		assert.Error(t, st.Publish(ctx, second))
	})

	t.Run("generated run id", func(t *testing.T) {
		require.NoError(t, st.Publish(ctx, &clickio.Report{CreatedAt: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)}))
		latest, err := st.LatestReport(ctx, 0)
		require.NoError(t, err)
		assert.NotEmpty(t, latest.RunID)
		assert.NotEqual(t, "run-2", latest.RunID)
		assert.Empty(t, latest.Trends)
		assert.Empty(t, latest.Alerts)
	})
}
