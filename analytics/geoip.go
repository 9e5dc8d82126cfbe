package analytics

import (
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/maxminddb-golang"
)

var privateCIDRs []*net.IPNet

func init() {
	for _, block := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fc00::/7", "fe80::/10"} {
		if _, cidr, err := net.ParseCIDR(block); err == nil {
			privateCIDRs = append(privateCIDRs, cidr)
		}
	}
}

// GeoIP resolves client IPs to ISO country codes. A zero GeoIP only
// recognises local addresses.
type GeoIP struct {
	mu sync.RWMutex
	db *maxminddb.Reader
}

type geoRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

// OpenGeoIP loads a GeoLite2-Country database; an empty path disables lookups.
func OpenGeoIP(path string) (*GeoIP, error) {
	g := &GeoIP{}
	if path == "" {
		return g, nil
	}
	db, err := maxminddb.Open(path)
	if err != nil {
		return g, fmt.Errorf("opening GeoIP database: %w", err)
	}
	g.db = db
	return g, nil
}

// Country returns the ISO code for ip, "LOCAL" for private ranges and ""
// when unknown.
func (g *GeoIP) Country(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	if parsed.IsLoopback() {
		return "LOCAL"
	}
	for _, cidr := range privateCIDRs {
		if cidr.Contains(parsed) {
			return "LOCAL"
		}
	}

	if g == nil {
		return ""
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.db == nil {
		return ""
	}

	var record geoRecord
	if err := g.db.Lookup(parsed, &record); err != nil {
		return ""
	}
	return record.Country.ISOCode
}

func (g *GeoIP) Close() error {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.db == nil {
		return nil
	}
	err := g.db.Close()
	g.db = nil
	return err
}
