package enrich

import "github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/clicks"

// Enricher fills in device and country on events whose source left them blank.
type Enricher struct {
	geo *GeoIP
}

// New returns an enricher. geo may be nil.
func New(geo *GeoIP) *Enricher {
	return &Enricher{geo: geo}
}

// Fill sets Device from the user agent and Country from the address when they are
// empty. Values already present are kept.
func (e *Enricher) Fill(ev *clicks.Event) {
	if ev.Device == "" {
		ev.Device = ParseUserAgent(ev.UserAgent).Device
	}
	if ev.Country == "" && e != nil {
		ev.Country = e.geo.Country(ev.IP)
	}
}

// FillAll applies Fill to every event in place.
func (e *Enricher) FillAll(events []clicks.Event) {
	for i := range events {
		e.Fill(&events[i])
	}
}
