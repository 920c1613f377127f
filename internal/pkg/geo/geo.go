// Package geo resolves event locations. Coordinates go through a reverse
// geocoding service, client IPs through a local GeoLite2 database. Both
// sources are optional and every lookup is best effort.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/oschwald/geoip2-golang"
	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type cachedLocation struct {
	country string
	city    string
}

// Resolver answers location lookups. The zero resolver is not usable; build
// one with NewResolver.
type Resolver struct {
	httpClient *http.Client
	baseURL    string
	geoDB      *geoip2.Reader
	countries  *gountries.Query
	caser      cases.Caser
	logger     *slog.Logger

	mu    sync.Mutex
	cache map[string]cachedLocation
}

// Options configures a Resolver. GeoDBPath may point at a missing file; the
// IP lookup is then disabled rather than failing startup.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	GeoDBPath string
	Logger    *slog.Logger
}

func NewResolver(opts Options) *Resolver {
	r := &Resolver{
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    opts.BaseURL,
		countries:  gountries.New(),
		caser:      cases.Title(language.AmericanEnglish),
		logger:     opts.Logger,
		cache:      make(map[string]cachedLocation),
	}

	if opts.GeoDBPath != "" {
		if _, err := os.Stat(opts.GeoDBPath); err != nil {
			r.logger.Info("GeoLite2 database not found, IP lookups disabled",
				"path", opts.GeoDBPath,
				"hint", "Download from https://www.maxmind.com/en/geolite2/signup")
		} else if db, err := geoip2.Open(opts.GeoDBPath); err != nil {
			r.logger.Error("failed to open GeoLite2 database", "path", opts.GeoDBPath, "error", err)
		} else {
			r.geoDB = db
			r.logger.Info("GeoLite2 database initialized", "path", opts.GeoDBPath)
		}
	}
	return r
}

// Close releases the GeoLite2 reader if one was opened.
func (r *Resolver) Close() {
	if r.geoDB != nil {
		r.geoDB.Close()
	}
}

type reverseResponse struct {
	Address struct {
		Country     string `json:"country"`
		CountryCode string `json:"country_code"`
		City        string `json:"city"`
		Town        string `json:"town"`
		Village     string `json:"village"`
	} `json:"address"`
}

// ReverseGeocode resolves coordinates to a country and city name. Results
// are cached on coordinates rounded to three decimals, which keeps repeat
// lookups of the same neighborhood from hammering the service.
func (r *Resolver) ReverseGeocode(ctx context.Context, lat, long float64) (string, string, error) {
	if r.baseURL == "" {
		return "", "", fmt.Errorf("reverse geocoding not configured")
	}

	key := fmt.Sprintf("%.3f,%.3f", lat, long)
	r.mu.Lock()
	if loc, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return loc.country, loc.city, nil
	}
	r.mu.Unlock()

	endpoint := fmt.Sprintf("%s/reverse?format=json&lat=%s&lon=%s&zoom=10",
		r.baseURL,
		url.QueryEscape(fmt.Sprintf("%f", lat)),
		url.QueryEscape(fmt.Sprintf("%f", long)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to build reverse geocode request: %w", err)
	}
	req.Header.Set("User-Agent", "analytiq/1.0")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("reverse geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("reverse geocode returned status %d", resp.StatusCode)
	}

	var parsed reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", "", fmt.Errorf("failed to decode reverse geocode response: %w", err)
	}

	country := r.normalizeCountry(parsed.Address.Country, parsed.Address.CountryCode)
	city := parsed.Address.City
	if city == "" {
		city = parsed.Address.Town
	}
	if city == "" {
		city = parsed.Address.Village
	}
	if city != "" {
		city = r.caser.String(city)
	}

	r.mu.Lock()
	r.cache[key] = cachedLocation{country: country, city: city}
	r.mu.Unlock()

	return country, city, nil
}

// CountryFromIP resolves the client IP to a country common name through the
// GeoLite2 database.
func (r *Resolver) CountryFromIP(ip string) (string, bool) {
	if r.geoDB == nil {
		return "", false
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", false
	}
	record, err := r.geoDB.Country(parsed)
	if err != nil || record.Country.IsoCode == "" {
		return "", false
	}
	if name := r.normalizeCountry("", record.Country.IsoCode); name != "" {
		return name, true
	}
	return record.Country.IsoCode, true
}

// normalizeCountry prefers the common name of a recognized country; an
// unrecognized one falls back on whatever the source reported.
func (r *Resolver) normalizeCountry(name, code string) string {
	if code != "" {
		if country, err := r.countries.FindCountryByAlpha(code); err == nil {
			return country.Name.Common
		}
	}
	if name != "" {
		if country, err := r.countries.FindCountryByName(name); err == nil {
			return country.Name.Common
		}
	}
	return name
}
