// Package clicks defines the ad-click event model shared by every stage of the pipeline.
package clicks

import (
	"strconv"
	"strings"
	"time"
)

// Device is the device class reported with a click.
type Device string

// Known device classes. Other values are kept verbatim.
const (
	DeviceMobile  Device = "mobile"
	DeviceDesktop Device = "desktop"
	DeviceTablet  Device = "tablet"
)

// ParseDevice normalizes a raw device value.
func ParseDevice(s string) Device {
	return Device(strings.ToLower(strings.TrimSpace(s)))
}

// Event is one logged ad interaction.
type Event struct {
	IP          string
	Timestamp   time.Time
	Device      Device
	UserAgent   string
	Country     string
	Impressions int64
	Clicks      int64
	// Label is the ground truth (0 or 1), nil when the source has none.
	Label *int
}

// HasLabel reports whether the event carries ground truth.
func (e Event) HasLabel() bool {
	return e.Label != nil
}

// IntPtr returns a pointer to v. Handy for building labeled events.
func IntPtr(v int) *int {
	return &v
}

// Columns lists the record columns every tabular source understands, in canonical order.
var Columns = []string{"ip", "timestamp", "device", "user_agent", "country", "impressions", "clicks", "label"}

// RequiredColumns are the columns a tabular source must provide.
var RequiredColumns = Columns[:7]

// Record is the raw, unparsed form of an event as read from a tabular source.
type Record struct {
	IP          string `csv:"ip"`
	Timestamp   string `csv:"timestamp"`
	Device      string `csv:"device"`
	UserAgent   string `csv:"user_agent"`
	Country     string `csv:"country"`
	Impressions string `csv:"impressions"`
	Clicks      string `csv:"clicks"`
	Label       string `csv:"label"`
}

// Parse converts a raw record into an Event. row is used for error reporting only.
func (r Record) Parse(row int) (Event, error) {
	ts, err := ParseTimestamp(r.Timestamp)
	if err != nil {
		return Event{}, &ParseError{Row: row, Column: "timestamp", Value: r.Timestamp, Err: err}
	}

	impressions, err := parseCount(r.Impressions)
	if err != nil {
		return Event{}, &ParseError{Row: row, Column: "impressions", Value: r.Impressions, Err: err}
	}

	clicks, err := parseCount(r.Clicks)
	if err != nil {
		return Event{}, &ParseError{Row: row, Column: "clicks", Value: r.Clicks, Err: err}
	}

	label, err := parseLabel(r.Label)
	if err != nil {
		return Event{}, &ParseError{Row: row, Column: "label", Value: r.Label, Err: err}
	}

	return Event{
		IP:          strings.TrimSpace(r.IP),
		Timestamp:   ts,
		Device:      ParseDevice(r.Device),
		UserAgent:   r.UserAgent,
		Country:     strings.TrimSpace(r.Country),
		Impressions: impressions,
		Clicks:      clicks,
		Label:       label,
	}, nil
}

// timestampLayouts are tried in order. Layouts without a zone parse as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601-like timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var firstErr error
	for _, layout := range timestampLayouts {
		ts, err := time.Parse(layout, s)
		if err == nil {
			return ts, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

func parseCount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Spreadsheet exports write integers as "3.0".
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int64(f)) {
			return 0, err
		}
		n = int64(f)
	}
	if n < 0 {
		return 0, errNegative
	}
	return n, nil
}

func parseLabel(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	n, err := parseCount(s)
	if err != nil {
		return nil, err
	}
	if n > 1 {
		return nil, errLabelRange
	}
	v := int(n)
	return &v, nil
}
