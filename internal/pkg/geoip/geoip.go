// Package geoip resolves client IPs to ISO country codes using an optional
// GeoLite2 country database.
package geoip

import (
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// Resolver looks up countries. The zero value and a nil *Resolver are valid
// and resolve nothing, which is the behaviour when no database is configured.
type Resolver struct {
	mu     sync.RWMutex
	db     *geoip2.Reader
	path   string
	logger *slog.Logger
}

// Open loads the GeoLite2 database at path. GeoIP is optional: a missing path
// or unreadable file yields a Resolver that resolves nothing.
func Open(path string, logger *slog.Logger) *Resolver {
	r := &Resolver{path: path, logger: logger}
	r.db = r.open()
	return r
}

func (r *Resolver) open() *geoip2.Reader {
	if r.path == "" {
		r.logger.Debug("GeoIP database path not configured - GeoIP features disabled")
		return nil
	}

	fileInfo, err := os.Stat(r.path)
	if os.IsNotExist(err) {
		r.logger.Info("GeoLite2 database not found - GeoIP features disabled",
			slog.String("path", r.path),
			slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		return nil
	} else if err != nil {
		r.logger.Warn("Error checking GeoLite2 database file",
			slog.String("path", r.path),
			slog.Any("error", err))
		return nil
	}

	db, err := geoip2.Open(r.path)
	if err != nil {
		r.logger.Error("Failed to open GeoLite2 database",
			slog.String("path", r.path),
			slog.Any("error", err))
		return nil
	}

	r.logger.Info("GeoLite2 database initialized successfully",
		slog.String("path", r.path),
		slog.Int64("size_bytes", fileInfo.Size()))
	return db
}

// Enabled reports whether a database is loaded.
func (r *Resolver) Enabled() bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.db != nil
}

// Country returns the ISO 3166-1 alpha-2 code for ipAddress, or "" when it
// cannot be resolved.
func (r *Resolver) Country(ipAddress string) string {
	if r == nil {
		return ""
	}

	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return ""
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.db == nil {
		return ""
	}

	record, err := r.db.Country(ip)
	if err != nil {
		r.logger.Debug("Error looking up country for IP", slog.Any("error", err))
		return ""
	}
	return record.Country.IsoCode
}

// Reload reopens the database file, for use after a new file was downloaded.
func (r *Resolver) Reload() {
	if r == nil {
		return
	}
	db := r.open()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db != nil {
		r.db.Close()
	}
	r.db = db
}

// Close releases the database.
func (r *Resolver) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}
