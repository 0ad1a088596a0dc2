package enrich

import (
	"errors"
	"io/fs"
	"net"

	"github.com/oschwald/geoip2-golang"
	"github.com/rotisserie/eris"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/clicks"
)

// GeoIP resolves client addresses to ISO country codes. A nil *GeoIP is valid and
// resolves nothing.
type GeoIP struct {
	db *geoip2.Reader
}

// OpenGeoIP opens a MaxMind country or city database.
func OpenGeoIP(path string) (*GeoIP, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrapf(clicks.ErrSourceNotFound, "enrich: geoip database %s", path)
		}
		return nil, eris.Wrapf(err, "enrich: open geoip database %s", path)
	}
	return &GeoIP{db: db}, nil
}

// Country returns the ISO code for ip, or "" when it cannot be resolved.
func (g *GeoIP) Country(ip string) string {
	if g == nil || g.db == nil {
		return ""
	}
	addr := net.ParseIP(ip)
	if addr == nil {
		return ""
	}
	record, err := g.db.Country(addr)
	if err != nil {
		return ""
	}
	return record.Country.IsoCode
}

// Close releases the database.
func (g *GeoIP) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	return g.db.Close()
}
