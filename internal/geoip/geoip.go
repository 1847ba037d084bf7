// Package geoip maps client addresses to the country recorded on a session.
package geoip

import (
	"log/slog"
	"net"

	"github.com/oschwald/maxminddb-golang"
)

// Resolver looks addresses up in a MaxMind City or Country database. A
// resolver without a database answers every lookup with empty values.
type Resolver struct {
	db *maxminddb.Reader
}

type Location struct {
	Country string
	City    string
}

type record struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
}

// New opens the database at dbPath. A missing path or unreadable file
// disables lookups instead of failing startup.
func New(dbPath string) (*Resolver, error) {
	if dbPath == "" {
		return &Resolver{}, nil
	}
	db, err := maxminddb.Open(dbPath)
	if err != nil {
		slog.Warn("geoip: failed to open database, sign-in locations disabled", "path", dbPath, "error", err)
		return &Resolver{}, nil
	}
	slog.Info("geoip: loaded database", "path", dbPath, "type", db.Metadata.DatabaseType)
	return &Resolver{db: db}, nil
}

func (r *Resolver) Enabled() bool {
	return r != nil && r.db != nil
}

func (r *Resolver) Lookup(ip string) Location {
	if !r.Enabled() || ip == "" {
		return Location{}
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Location{}
	}
	var rec record
	if err := r.db.Lookup(parsed, &rec); err != nil {
		slog.Debug("geoip: lookup failed", "error", err)
		return Location{}
	}
	return Location{Country: rec.Country.ISOCode, City: rec.City.Names["en"]}
}

// Country returns the ISO country code for ip, or "".
func (r *Resolver) Country(ip string) string {
	return r.Lookup(ip).Country
}

func (r *Resolver) Close() error {
	if !r.Enabled() {
		return nil
	}
	return r.db.Close()
}
