package scoring

import (
	"sort"
	"time"
)

// DateLayout is the calendar-day format used by the trend report.
const DateLayout = "2006-01-02"

// Metrics compares anomaly flags with ground truth. Available is false when the batch
// carries no labels, which is normal for production traffic.
type Metrics struct {
	Available      bool    `json:"available"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	TruePositives  int     `json:"true_positives"`
	FalsePositives int     `json:"false_positives"`
	FalseNegatives int     `json:"false_negatives"`
	Labeled        int     `json:"labeled"`
}

// DailyTrend aggregates one calendar date.
type DailyTrend struct {
	Date        string `csv:"date" json:"date"`
	TotalClicks int64  `csv:"total_clicks" json:"total_clicks"`
	Anomalies   int64  `csv:"anomalies" json:"anomalies"`
	// FraudLabelsOrCount is the sum of labels when the batch is labeled, the row count otherwise.
	FraudLabelsOrCount int64 `csv:"fraud_labels_or_count" json:"fraud_labels_or_count"`
}

// Alert is the reported view of one flagged event.
type Alert struct {
	IP              string    `csv:"ip" json:"ip"`
	Timestamp       time.Time `csv:"timestamp" json:"timestamp"`
	Device          string    `csv:"device" json:"device"`
	Country         string    `csv:"country" json:"country"`
	Clicks          int64     `csv:"clicks" json:"clicks"`
	ClickRate       float64   `csv:"click_rate" json:"click_rate"`
	ClicksPerIPHour float64   `csv:"clicks_per_ip_hour" json:"clicks_per_ip_hour"`
	Score           float64   `csv:"score" json:"score"`
	Anomaly         int       `csv:"anomaly" json:"anomaly"`
	Label           *int      `csv:"label,omitempty" json:"label,omitempty"`
}

// Summary holds the batch totals published after a run.
type Summary struct {
	Rows        int     `json:"rows"`
	Anomalies   int     `json:"anomalies"`
	TotalClicks int64   `json:"total_clicks"`
	Days        int     `json:"days"`
	Metrics     Metrics `json:"metrics"`
}

func evaluate(scored []ScoredEvent) Metrics {
	var m Metrics
	for _, s := range scored {
		if s.Label == nil {
			continue
		}
		m.Labeled++
		positive := *s.Label == 1
		switch {
		case s.Anomaly == 1 && positive:
			m.TruePositives++
		case s.Anomaly == 1:
			m.FalsePositives++
		case positive:
			m.FalseNegatives++
		}
	}
	if m.Labeled == 0 {
		return Metrics{}
	}

	m.Available = true
	m.Precision = ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
	m.Recall = ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
	return m
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func dailyTrends(scored []ScoredEvent) []DailyTrend {
	labeled := false
	for _, s := range scored {
		if s.Label != nil {
			labeled = true
			break
		}
	}

	byDate := make(map[string]*DailyTrend)
	for _, s := range scored {
		date := s.Timestamp.Format(DateLayout)
		t, ok := byDate[date]
		if !ok {
			t = &DailyTrend{Date: date}
			byDate[date] = t
		}
		t.TotalClicks += s.Clicks
		t.Anomalies += int64(s.Anomaly)
		switch {
		case !labeled:
			t.FraudLabelsOrCount++
		case s.Label != nil:
			t.FraudLabelsOrCount += int64(*s.Label)
		}
	}

	trends := make([]DailyTrend, 0, len(byDate))
	for _, t := range byDate {
		trends = append(trends, *t)
	}
	sort.Slice(trends, func(i, j int) bool { return trends[i].Date < trends[j].Date })
	return trends
}

// Alerts returns the anomalous rows in input order. limit <= 0 returns all of them.
func (r *Result) Alerts(limit int) []Alert {
	alerts := make([]Alert, 0)
	for _, s := range r.Scored {
		if s.Anomaly != 1 {
			continue
		}
		if limit > 0 && len(alerts) == limit {
			break
		}
		alerts = append(alerts, Alert{
			IP:              s.IP,
			Timestamp:       s.Timestamp,
			Device:          string(s.Device),
			Country:         s.Country,
			Clicks:          s.Clicks,
			ClickRate:       s.ClickRate,
			ClicksPerIPHour: s.ClicksPerIPHour,
			Score:           s.Score,
			Anomaly:         s.Anomaly,
			Label:           s.Label,
		})
	}
	return alerts
}

// Anomalies counts flagged rows.
func (r *Result) Anomalies() int {
	var n int
	for _, s := range r.Scored {
		n += s.Anomaly
	}
	return n
}

// Summary returns the batch totals.
func (r *Result) Summary() Summary {
	s := Summary{
		Rows:      len(r.Scored),
		Anomalies: r.Anomalies(),
		Days:      len(r.Trends),
		Metrics:   r.Metrics,
	}
	for _, t := range r.Trends {
		s.TotalClicks += t.TotalClicks
	}
	return s
}
