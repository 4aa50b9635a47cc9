package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"ticketflow/pkg/model"
)

// MapFeatures builds the GeoJSON feed behind the dashboard map: one point
// feature per office and one per geocoded ticket, with enough properties
// to render markers and popups.
func MapFeatures(offices []model.Office, tickets []model.Ticket) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for i := range offices {
		o := &offices[i]
		if !o.HasCoords() {
			continue
		}
		f := geojson.NewFeature(orb.Point{*o.Longitude, *o.Latitude})
		f.Properties = geojson.Properties{
			"kind":    "office",
			"name":    o.Name,
			"address": o.Address,
		}
		fc.Append(f)
	}

	for i := range tickets {
		t := &tickets[i]
		if !t.HasCoords() {
			continue
		}
		f := geojson.NewFeature(orb.Point{*t.Longitude, *t.Latitude})
		f.Properties = geojson.Properties{
			"kind":           "ticket",
			"customer_guid":  t.CustomerGUID,
			"city":           t.City,
			"segment":        string(t.Segment),
			"request_type":   string(t.RequestType),
			"priority_score": t.PriorityScore,
			"language":       string(t.Language),
		}
		if t.AssignedManagerName != nil {
			f.Properties["assigned_manager_name"] = *t.AssignedManagerName
		}
		if t.AssignedOfficeName != nil {
			f.Properties["assigned_office_name"] = *t.AssignedOfficeName
		}
		fc.Append(f)
	}

	return fc
}
