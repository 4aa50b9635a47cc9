// Package geo routes tickets to branch offices: haversine distances,
// nearest-office resolution and the 50/50 distributor for tickets that
// cannot be placed on the map.
package geo

import (
	"math"
	"sort"
	"strings"

	"github.com/paulmach/orb"

	"ticketflow/pkg/model"
)

const earthRadiusKm = 6371.0

// HaversineKm calculates the great-circle distance between two points in
// kilometers.
func HaversineKm(a, b orb.Point) float64 {
	dLat := (b.Lat() - a.Lat()) * (math.Pi / 180.0)
	dLon := (b.Lon() - a.Lon()) * (math.Pi / 180.0)
	lat1 := a.Lat() * (math.Pi / 180.0)
	lat2 := b.Lat() * (math.Pi / 180.0)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

var kzCountryTokens = map[string]bool{
	"казахстан": true, "kazakhstan": true, "kz": true, "қазақстан": true,
}

// IsForeignCountry reports whether the country names somewhere outside
// Kazakhstan. An empty country counts as domestic.
func IsForeignCountry(country string) bool {
	c := strings.ToLower(strings.TrimSpace(country))
	if c == "" {
		return false
	}
	return !kzCountryTokens[c]
}

// OfficeIndex answers distance queries over a fixed office set. Offices
// without coordinates are excluded from distance routing but stay
// reachable via ByName.
type OfficeIndex struct {
	offices []model.Office
}

// NewOfficeIndex builds an index over offices. The slice is not copied.
func NewOfficeIndex(offices []model.Office) *OfficeIndex {
	return &OfficeIndex{offices: offices}
}

// Offices returns the full office set.
func (idx *OfficeIndex) Offices() []model.Office {
	return idx.offices
}

// ByName finds an office by name, case-insensitively.
func (idx *OfficeIndex) ByName(name string) *model.Office {
	for i := range idx.offices {
		if strings.EqualFold(idx.offices[i].Name, name) {
			return &idx.offices[i]
		}
	}
	return nil
}

// Nearest returns the office closest to the point, or nil when no office
// has coordinates.
func (idx *OfficeIndex) Nearest(p orb.Point) *model.Office {
	var best *model.Office
	bestDist := math.MaxFloat64
	for i := range idx.offices {
		o := &idx.offices[i]
		if !o.HasCoords() {
			continue
		}
		d := HaversineKm(p, orb.Point{*o.Longitude, *o.Latitude})
		if d < bestDist {
			bestDist = d
			best = o
		}
	}
	return best
}

// SortedByDistance returns the names of all other offices ordered by
// ascending distance from the named base office. Offices without
// coordinates, and the base itself, are skipped. An unknown or coordless
// base yields an empty list.
func (idx *OfficeIndex) SortedByDistance(baseName string) []string {
	base := idx.ByName(baseName)
	if base == nil || !base.HasCoords() {
		return nil
	}
	origin := orb.Point{*base.Longitude, *base.Latitude}

	type entry struct {
		dist float64
		name string
	}
	var entries []entry
	for i := range idx.offices {
		o := &idx.offices[i]
		if strings.EqualFold(o.Name, base.Name) || !o.HasCoords() {
			continue
		}
		entries = append(entries, entry{
			dist: HaversineKm(origin, orb.Point{*o.Longitude, *o.Latitude}),
			name: o.Name,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].dist < entries[j].dist })

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}
