package services

import (
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"siem-console/system"
)

// Country codes for addresses a database cannot place
const (
	CountryUnknown = "XX"
	CountryPrivate = "LAN"
)

// GeoLocator resolves a source address to an ISO country code
type GeoLocator interface {
	CountryCode(ip string) string
}

// GeoIPService looks addresses up in a MaxMind GeoLite2/GeoIP2 country or
// city database. Without a database every public address is unknown.
type GeoIPService struct {
	mu     sync.RWMutex
	reader *geoip2.Reader
	dbPath string
}

// NewGeoIPService opens the database at dbPath; an empty path disables
// lookups.
func NewGeoIPService(dbPath string) (*GeoIPService, error) {
	g := &GeoIPService{dbPath: dbPath}
	if dbPath == "" {
		return g, nil
	}
	reader, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database %s: %w", dbPath, err)
	}
	g.reader = reader
	system.Info("GeoIP database loaded: %s", dbPath)
	return g, nil
}

// Enabled reports whether a database is loaded
func (g *GeoIPService) Enabled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.reader != nil
}

// CountryCode returns the ISO code for ip, CountryPrivate for private
// ranges and CountryUnknown otherwise.
func (g *GeoIPService) CountryCode(ipStr string) string {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return CountryUnknown
	}
	if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
		return CountryPrivate
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.reader == nil {
		return CountryUnknown
	}
	record, err := g.reader.Country(ip)
	if err != nil || record.Country.IsoCode == "" {
		return CountryUnknown
	}
	return record.Country.IsoCode
}

// Close releases the database
func (g *GeoIPService) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.reader == nil {
		return nil
	}
	err := g.reader.Close()
	g.reader = nil
	return err
}
