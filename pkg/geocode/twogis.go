// Package geocode resolves ticket addresses to coordinates through the
// 2GIS catalog API.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"ticketflow/pkg/config"
	"ticketflow/pkg/logging"
	"ticketflow/pkg/request"
	"ticketflow/pkg/tracker"
)

const (
	defaultBaseURL     = "https://catalog.api.2gis.com/3.0/items/geocode"
	defaultCountry     = "Казахстан"
	defaultRadiusM     = 40000
	defaultConcurrency = 5

	itemFields = "items.point,items.full_name,items.name,items.id,items.type"
)

// Address is the location part of one ticket.
type Address struct {
	Country string
	Region  string
	City    string
	Street  string
	House   string
}

type queryKey struct {
	q        string
	cityID   string
	location string
	radius   int
}

type cityKey struct {
	city    string
	country string
}

type cityInfo struct {
	id  string
	lat *float64
	lon *float64
}

type apiResponse struct {
	Result struct {
		Items []item `json:"items"`
	} `json:"result"`
}

type item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Type     string `json:"type"`
	Point    *point `json:"point"`
}

type point struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

// Provider geocodes addresses with per-instance caches. The pipeline
// creates a fresh Provider per batch so the caches dedupe within a batch
// without growing unbounded across the process lifetime.
type Provider struct {
	apiKey  string
	baseURL string
	radius  int
	rc      *request.Client
	tracker *tracker.Tracker
	sem     *semaphore.Weighted
	group   singleflight.Group

	mu        sync.Mutex
	cache     map[queryKey]*item // nil value records a confirmed miss
	cityCache map[cityKey]cityInfo
}

// New creates a Provider. cfg.BaseURL is only set by tests.
func New(cfg config.GeocoderConfig, rc *request.Client, tr *tracker.Tracker) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	radius := cfg.RadiusM
	if radius <= 0 {
		radius = defaultRadiusM
	}
	concurrency := cfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &Provider{
		apiKey:    cfg.Key,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		radius:    radius,
		rc:        rc,
		tracker:   tr,
		sem:       semaphore.NewWeighted(concurrency),
		cache:     make(map[queryKey]*item),
		cityCache: make(map[cityKey]cityInfo),
	}
}

// Close releases pooled HTTP connections. Called when a batch finishes.
func (p *Provider) Close() {
	p.rc.CloseIdleConnections()
}

// Geocode resolves one address to coordinates. The address query is
// biased towards the resolved city; when nothing matches, the city
// centroid is the answer of last resort. Both returns are nil when the
// address cannot be placed at all.
func (p *Provider) Geocode(ctx context.Context, addr Address) (*float64, *float64) {
	city := NormalizeCity(clean(addr.City))
	country := clean(addr.Country)
	if country == "" {
		country = defaultCountry
	}
	if city == "" {
		return nil, nil
	}

	info := p.resolveCity(ctx, city, country)

	addrLine := joinNonEmpty(" ", clean(addr.Street), clean(addr.House))
	location := ""
	if info.lat != nil && info.lon != nil {
		location = strconv.FormatFloat(*info.lon, 'f', -1, 64) + "," + strconv.FormatFloat(*info.lat, 'f', -1, 64)
	}

	if addrLine != "" {
		q := joinNonEmpty(", ", addrLine, city, clean(addr.Region), country)
		if lat, lon, ok := firstPoint(p.geocodeRaw(ctx, q, info.id, location, p.radius)); ok {
			return lat, lon
		}
	}

	cityQ := joinNonEmpty(", ", city, country)
	if lat, lon, ok := firstPoint(p.geocodeRaw(ctx, cityQ, info.id, location, p.radius)); ok {
		return lat, lon
	}

	return copyPtr(info.lat), copyPtr(info.lon)
}

// resolveCity returns the 2GIS city id and centroid, caching results
// including failures: an unknown city stays unknown for the batch.
func (p *Provider) resolveCity(ctx context.Context, city, country string) cityInfo {
	k := cityKey{city: city, country: country}

	p.mu.Lock()
	info, ok := p.cityCache[k]
	p.mu.Unlock()
	if ok {
		if p.tracker != nil {
			p.tracker.TrackCacheHit(tracker.Provider2GIS)
		}
		return info
	}

	items := p.geocodeRaw(ctx, joinNonEmpty(", ", city, country), "", "", 0)
	if len(items) > 0 {
		it := items[0]
		if isDigits(it.ID) {
			info.id = it.ID
		}
		if it.Point != nil {
			info.lat = copyPtr(it.Point.Lat)
			info.lon = copyPtr(it.Point.Lon)
		}
	}

	p.mu.Lock()
	p.cityCache[k] = info
	p.mu.Unlock()
	return info
}

// geocodeRaw runs one catalog query, deduplicating concurrent identical
// queries and caching any 2xx answer (including empty ones). Transport
// and status failures are returned as empty but never cached, so a
// flaky request can succeed on the next ticket.
func (p *Provider) geocodeRaw(ctx context.Context, q, cityID, location string, radius int) []item {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil
	}

	key := queryKey{q: q, cityID: cityID, location: location, radius: radius}
	if items, ok := p.cached(key); ok {
		return items
	}

	flightKey := fmt.Sprintf("%s|%s|%s|%d", q, cityID, location, radius)
	v, _, _ := p.group.Do(flightKey, func() (any, error) {
		// A finished flight may have filled the cache while we queued.
		if items, ok := p.cached(key); ok {
			return items, nil
		}
		return p.fetch(ctx, key), nil
	})

	items, _ := v.([]item)
	return items
}

func (p *Provider) cached(key queryKey) ([]item, bool) {
	p.mu.Lock()
	it, ok := p.cache[key]
	p.mu.Unlock()
	if !ok {
		return nil, false
	}

	if p.tracker != nil {
		p.tracker.TrackCacheHit(tracker.Provider2GIS)
	}
	logging.TraceDefault("2GIS cache hit", "q", key.q)

	if it == nil {
		return nil, true
	}
	return []item{*it}, true
}

func (p *Provider) fetch(ctx context.Context, key queryKey) []item {
	if p.tracker != nil {
		p.tracker.TrackCacheMiss(tracker.Provider2GIS)
	}

	params := url.Values{}
	params.Set("q", key.q)
	params.Set("key", p.apiKey)
	params.Set("locale", "ru_KZ")
	params.Set("fields", itemFields)
	if key.cityID != "" {
		params.Set("city_id", key.cityID)
	}
	if key.location != "" {
		params.Set("location", key.location)
	}
	if key.radius > 0 {
		params.Set("radius", strconv.Itoa(key.radius))
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		slog.Warn("2GIS request aborted", "error", err)
		return nil
	}
	status, body, err := p.rc.Get(ctx, p.baseURL+"?"+params.Encode(), nil)
	p.sem.Release(1)

	if err != nil {
		slog.Warn("2GIS request error", "error", err)
		return nil
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		slog.Warn("2GIS rejected request", "status", status, "query", key.q)
		return nil
	}
	if status < 200 || status >= 300 {
		slog.Warn("2GIS returned error status", "status", status, "query", key.q)
		return nil
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		slog.Warn("2GIS response parse error", "error", err, "query", key.q)
		return nil
	}

	items := parsed.Result.Items

	p.mu.Lock()
	if len(items) > 0 {
		first := items[0]
		p.cache[key] = &first
	} else {
		p.cache[key] = nil
	}
	p.mu.Unlock()

	if len(items) == 0 && p.tracker != nil {
		p.tracker.TrackAPIEmpty(tracker.Provider2GIS)
	}

	return items
}

var (
	cityPrefixRe = regexp.MustCompile(`(?i)^г\.\s*`)
	cityParensRe = regexp.MustCompile(`\(.*?\)`)
)

// NormalizeCity strips the "г." prefix, slash alternatives and
// parenthesized clarifications from a raw city value.
func NormalizeCity(city string) string {
	c := strings.TrimSpace(city)
	c = cityPrefixRe.ReplaceAllString(c, "")
	c, _, _ = strings.Cut(c, "/")
	c = strings.TrimSpace(c)
	c = strings.TrimSpace(cityParensRe.ReplaceAllString(c, ""))
	return c
}

// clean trims a raw value and maps the spreadsheet artifacts for missing
// cells to empty.
func clean(v string) string {
	s := strings.TrimSpace(v)
	if strings.EqualFold(s, "nan") {
		return ""
	}
	return s
}

func joinNonEmpty(sep string, parts ...string) string {
	var xs []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			xs = append(xs, p)
		}
	}
	return strings.Join(xs, sep)
}

func firstPoint(items []item) (*float64, *float64, bool) {
	if len(items) == 0 || items[0].Point == nil {
		return nil, nil, false
	}
	pt := items[0].Point
	if pt.Lat == nil || pt.Lon == nil {
		return nil, nil, false
	}
	return copyPtr(pt.Lat), copyPtr(pt.Lon), true
}

func copyPtr(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
