// Package geo resolves client addresses to coarse locations using an
// offline MaxMind database.
package geo

import (
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

const Unknown = "Unknown"

type Location struct {
	CountryCode string
	Region      string
	City        string
}

type Resolver interface {
	Lookup(ip string) (Location, bool)
}

// NormalizeIP folds loopback and IPv4-mapped forms into plain IPv4 and
// returns "" for anything that does not parse as an address.
func NormalizeIP(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "::1" {
		return "127.0.0.1"
	}
	s = strings.TrimPrefix(s, "::ffff:")
	ip := net.ParseIP(s)
	if ip == nil {
		return ""
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return ip.String()
}

// routable reports whether an address can be meaningfully geolocated.
func routable(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast())
}

type MaxMind struct {
	db     *geoip2.Reader
	lookup func(net.IP) (*geoip2.City, error)
}

func OpenMaxMind(path string) (*MaxMind, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip db %s: %w", path, err)
	}
	return &MaxMind{db: db, lookup: db.City}, nil
}

func (m *MaxMind) Lookup(raw string) (Location, bool) {
	ip := net.ParseIP(NormalizeIP(raw))
	if ip == nil || !routable(ip) {
		return Location{}, false
	}
	rec, err := m.lookup(ip)
	if err != nil || rec == nil || rec.Country.IsoCode == "" {
		return Location{}, false
	}
	loc := Location{
		CountryCode: rec.Country.IsoCode,
		City:        rec.City.Names["en"],
	}
	if len(rec.Subdivisions) > 0 {
		loc.Region = rec.Subdivisions[0].IsoCode
	}
	return loc, true
}

func (m *MaxMind) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// Nop never resolves; used when no database is configured.
type Nop struct{}

func (Nop) Lookup(string) (Location, bool) { return Location{}, false }

// CountryName returns the English name for an ISO 3166 alpha-2 code.
// Codes it does not recognize are returned unchanged.
func CountryName(code string) string {
	region, err := language.ParseRegion(code)
	if err != nil || !region.IsCountry() {
		return code
	}
	if name := display.English.Regions().Name(region); name != "" {
		return name
	}
	return code
}

// FormatLocation renders "{region or city}, {country name}", or Unknown
// when the lookup did not match.
func FormatLocation(loc Location, ok bool) string {
	if !ok || loc.CountryCode == "" {
		return Unknown
	}
	place := loc.Region
	if place == "" {
		place = loc.City
	}
	if place == "" {
		place = Unknown
	}
	return place + ", " + CountryName(loc.CountryCode)
}
