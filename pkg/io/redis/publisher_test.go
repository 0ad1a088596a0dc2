package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clickio "github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/scoring"
)

type fakeClient struct {
	hashes    map[string]map[string]interface{}
	expires   map[string]time.Duration
	published map[string][]interface{}
	hsetErr   error
	closed    bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		hashes:    map[string]map[string]interface{}{},
		expires:   map[string]time.Duration{},
		published: map[string][]interface{}{},
	}
}

func (c *fakeClient) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if c.hsetErr != nil {
		cmd.SetErr(c.hsetErr)
		return cmd
	}
	h := c.hashes[key]
	if h == nil {
		h = map[string]interface{}{}
		c.hashes[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[values[i].(string)] = values[i+1]
	}
	cmd.SetVal(int64(len(values) / 2))
	return cmd
}

func (c *fakeClient) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	c.expires[key] = expiration
	cmd.SetVal(true)
	return cmd
}

func (c *fakeClient) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	c.published[channel] = append(c.published[channel], message)
	cmd.SetVal(1)
	return cmd
}

func (c *fakeClient) Close() error {
	c.closed = true
	return nil
}

func sampleReport() *clickio.Report {
	return &clickio.Report{
		RunID:     "run-9",
		CreatedAt: time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC),
		Source:    "data/clicks.csv",
		Model:     "models/iforest.bundle",
		Summary: scoring.Summary{
			Rows: 10, Anomalies: 3, TotalClicks: 42, Days: 1,
			Metrics: scoring.Metrics{Available: true, Precision: 0.5, Recall: 1, Labeled: 10},
		},
		Trends: []scoring.DailyTrend{{Date: "2024-02-01", TotalClicks: 42, Anomalies: 3, FraudLabelsOrCount: 2}},
	}
}

func TestPublisher_Publish(t *testing.T) {
	c := newFakeClient()
	p := newPublisher(c, Config{Channel: "clickguard:runs", TTL: time.Hour})

	require.NoError(t, p.Publish(context.Background(), sampleReport()))

	h := c.hashes[DefaultKey]
	require.NotNil(t, h)
	assert.Equal(t, "run-9", h["run_id"])
	assert.Equal(t, "2024-02-01T12:00:00Z", h["created_at"])
	assert.Equal(t, "10", h["rows"])
	assert.Equal(t, "3", h["anomalies"])
	assert.Equal(t, "42", h["total_clicks"])
	assert.Equal(t, "true", h["metrics_available"])
	assert.Equal(t, "0.5", h["precision"])
	assert.Equal(t, "1", h["recall"])
	assert.JSONEq(t, `[{"date":"2024-02-01","total_clicks":42,"anomalies":3,"fraud_labels_or_count":2}]`, h["trends"].(string))
	assert.Contains(t, h["summary"], `"rows":10`)

	assert.Equal(t, time.Hour, c.expires[DefaultKey])
	assert.Equal(t, []interface{}{"run-9"}, c.published["clickguard:runs"])

	require.NoError(t, p.Close())
	assert.True(t, c.closed)
}

func TestPublisher_Defaults(t *testing.T) {
	c := newFakeClient()
	p := newPublisher(c, Config{Key: "custom"})

	require.NoError(t, p.Publish(context.Background(), sampleReport()))
	assert.Contains(t, c.hashes, "custom")
	assert.Empty(t, c.expires, "no ttl, no expire")
	assert.Empty(t, c.published, "no channel, no announcement")
}

func TestPublisher_Error(t *testing.T) {
	c := newFakeClient()
	c.hsetErr = errors.New("connection refused")
	p := newPublisher(c, Config{})

	err := p.Publish(context.Background(), sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestNewPublisher(t *testing.T) {
	_, err := NewPublisher(Config{})
	assert.Error(t, err)

	p, err := NewPublisher(Config{Address: "localhost:6379"})
	require.NoError(t, err)
	assert.Equal(t, DefaultKey, p.key)
	require.NoError(t, p.Close())
}
