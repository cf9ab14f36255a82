// Package maxmind implements domain.Locator on top of a local MaxMind
// GeoIP2/GeoLite2 City database.
package maxmind

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"github.com/couchcryptid/accesslog-geo-etl/internal/domain"
	"github.com/couchcryptid/accesslog-geo-etl/internal/observability"
	"github.com/oschwald/geoip2-golang"
)

const lang = "en"

type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// Locator answers lookups from an mmdb file. It never touches the network,
// so every error it returns is fatal.
type Locator struct {
	db      cityReader
	metrics *observability.Metrics
}

// Open loads the City database at path.
func Open(path string, metrics *observability.Metrics) (*Locator, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open maxmind database %s: %w", path, err)
	}
	return newLocator(db, metrics), nil
}

func newLocator(db cityReader, metrics *observability.Metrics) *Locator {
	return &Locator{db: db, metrics: metrics}
}

func (l *Locator) Lookup(ctx context.Context, ip netip.Addr) (domain.Attributes, error) {
	if err := ctx.Err(); err != nil {
		return domain.Attributes{}, &domain.LookupError{IP: ip.String(), Err: err}
	}

	if isBogon(ip) {
		l.metrics.LookupRequests.WithLabelValues("bogon").Inc()
		return domain.Attributes{IP: ip.String(), Bogon: true}, nil
	}

	record, err := l.db.City(net.IP(ip.AsSlice()))
	if err != nil {
		l.metrics.LookupRequests.WithLabelValues("fatal_error").Inc()
		return domain.Attributes{}, &domain.LookupError{IP: ip.String(), Err: fmt.Errorf("maxmind city lookup: %w", err)}
	}

	l.metrics.LookupRequests.WithLabelValues("success").Inc()
	return project(ip, record), nil
}

// Close releases the database.
func (l *Locator) Close() error {
	return l.db.Close()
}

func project(ip netip.Addr, record *geoip2.City) domain.Attributes {
	attrs := domain.Attributes{
		IP:          ip.String(),
		City:        record.City.Names[lang],
		Country:     record.Country.IsoCode,
		CountryName: record.Country.Names[lang],
		Postal:      record.Postal.Code,
		Timezone:    record.Location.TimeZone,
	}
	if len(record.Subdivisions) > 0 {
		attrs.Region = record.Subdivisions[0].Names[lang]
	}
	if record.Continent.Code != "" {
		attrs.Continent = &domain.ContinentAttributes{
			Code: record.Continent.Code,
			Name: record.Continent.Names[lang],
		}
	}
	// A record without coordinates has all-zero location fields.
	loc := record.Location
	if loc.AccuracyRadius != 0 || loc.Latitude != 0 || loc.Longitude != 0 {
		attrs.Loc = strconv.FormatFloat(loc.Latitude, 'f', -1, 64) + "," + strconv.FormatFloat(loc.Longitude, 'f', -1, 64)
	}
	return attrs
}
