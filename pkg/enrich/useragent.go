// Package enrich derives event attributes that capture sources do not log directly:
// the device class from the user agent and the country from the client address.
package enrich

import (
	"strings"

	"github.com/mssola/useragent"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/clicks"
)

// Agent is the parsed form of a User-Agent header.
type Agent struct {
	Browser string
	OS      string
	Device  clicks.Device
	Bot     bool
}

var tabletMarkers = []string{"iPad", "Tablet", "PlayBook", "Silk", "Kindle"}

// ParseUserAgent classifies a user agent. An empty string yields an empty Agent.
func ParseUserAgent(s string) Agent {
	if strings.TrimSpace(s) == "" {
		return Agent{}
	}
	ua := useragent.New(s)
	browser, _ := ua.Browser()

	a := Agent{
		Browser: browser,
		OS:      ua.OS(),
		Bot:     ua.Bot(),
	}
	switch {
	case isTablet(s):
		a.Device = clicks.DeviceTablet
	case ua.Mobile():
		a.Device = clicks.DeviceMobile
	default:
		a.Device = clicks.DeviceDesktop
	}
	return a
}

func isTablet(s string) bool {
	for _, m := range tabletMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	// Android tablets omit the Mobile token that phones send.
	return strings.Contains(s, "Android") && !strings.Contains(s, "Mobile")
}
