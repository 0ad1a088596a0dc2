package enrich

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/clicks"
)

const (
	chromeDesktop = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	iPhone        = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	iPad          = "Mozilla/5.0 (iPad; CPU OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1"
	androidPhone  = "Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
	androidTablet = "Mozilla/5.0 (Linux; Android 13; SM-X700) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want clicks.Device
	}{
		{"desktop chrome", chromeDesktop, clicks.DeviceDesktop},
		{"iphone", iPhone, clicks.DeviceMobile},
		{"ipad", iPad, clicks.DeviceTablet},
		{"android phone", androidPhone, clicks.DeviceMobile},
		{"android tablet", androidTablet, clicks.DeviceTablet},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseUserAgent(tt.ua).Device)
		})
	}

	a := ParseUserAgent(chromeDesktop)
	assert.Equal(t, "Chrome", a.Browser)
	assert.False(t, a.Bot)
}

func TestGeoIP(t *testing.T) {
	var g *GeoIP
	assert.Equal(t, "", g.Country("8.8.8.8"))
	assert.NoError(t, g.Close())

	_, err := OpenGeoIP(filepath.Join(t.TempDir(), "missing.mmdb"))
	require.Error(t, err)
	assert.ErrorIs(t, err, clicks.ErrSourceNotFound)
}

func TestEnricherFill(t *testing.T) {
	e := New(nil)

	ev := clicks.Event{IP: "1.2.3.4", UserAgent: iPhone}
	e.Fill(&ev)
	assert.Equal(t, clicks.DeviceMobile, ev.Device)
	assert.Equal(t, "", ev.Country)

	kept := clicks.Event{IP: "1.2.3.4", UserAgent: iPhone, Device: clicks.DeviceDesktop, Country: "FR"}
	e.Fill(&kept)
	assert.Equal(t, clicks.DeviceDesktop, kept.Device)
	assert.Equal(t, "FR", kept.Country)

	batch := []clicks.Event{{UserAgent: chromeDesktop}, {UserAgent: iPad}}
	e.FillAll(batch)
	assert.Equal(t, clicks.DeviceDesktop, batch[0].Device)
	assert.Equal(t, clicks.DeviceTablet, batch[1].Device)
}
