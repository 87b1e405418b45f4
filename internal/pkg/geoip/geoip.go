// Package geoip resolves visitor IP addresses to countries using an optional
// GeoLite2 database. When the database is absent every lookup degrades to
// the unknown country, never to an error.
package geoip

import (
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"
	"github.com/pariz/gountries"
)

// UnknownCountry marks lookups that could not be resolved.
const UnknownCountry = "__unknown_country__"

var (
	geoDB     *geoip2.Reader
	once      sync.Once
	mu        sync.RWMutex
	logger    *slog.Logger
	countries = gountries.New()
)

// InitLogger sets the logger for the geoip package.
func InitLogger(l *slog.Logger) {
	logger = l
}

// Init opens the GeoLite2 database at the given path. Returns nil when the
// database is not configured or not found (GeoIP is optional).
func Init(path string) *geoip2.Reader {
	once.Do(func() {
		if path == "" {
			if logger != nil {
				logger.Debug("GeoIP database path not configured - GeoIP features disabled")
			}
			return
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			if logger != nil {
				logger.Info("GeoLite2 database not found - GeoIP features disabled",
					slog.String("path", path),
					slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
			}
			return
		}

		db, err := geoip2.Open(path)
		if err != nil {
			if logger != nil {
				logger.Warn("Failed to open GeoLite2 database",
					slog.String("path", path),
					slog.Any("error", err))
			}
			return
		}

		mu.Lock()
		geoDB = db
		mu.Unlock()

		if logger != nil {
			logger.Info("GeoIP database loaded", slog.String("path", path))
		}
	})
	return getDB()
}

func getDB() *geoip2.Reader {
	mu.RLock()
	defer mu.RUnlock()
	return geoDB
}

// Close releases the database handle.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if geoDB != nil {
		geoDB.Close()
		geoDB = nil
	}
}

// CountryCode resolves an IP address to a lowercase ISO country code or
// UnknownCountry.
func CountryCode(ipAddress string) string {
	db := getDB()
	if db == nil {
		return UnknownCountry
	}

	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return UnknownCountry
	}

	record, err := db.Country(ip)
	if err != nil {
		if logger != nil {
			logger.Debug("GeoIP lookup failed",
				slog.String("ip_address", ipAddress),
				slog.Any("error", err))
		}
		return UnknownCountry
	}

	if record.Country.IsoCode == "" || record.Country.IsoCode == "--" {
		return UnknownCountry
	}

	return strings.ToLower(record.Country.IsoCode)
}

// CountryName maps a lowercase ISO code to a display name, falling back to
// the code itself when the code is unknown.
func CountryName(code string) string {
	if code == "" || code == UnknownCountry {
		return "Unknown"
	}
	country, err := countries.FindCountryByAlpha(strings.ToUpper(code))
	if err != nil {
		return code
	}
	return country.Name.Common
}
