package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"

	"ticketflow/pkg/model"
)

func ptr(f float64) *float64 { return &f }

var (
	astana    = orb.Point{71.4704, 51.1605}
	almaty    = orb.Point{76.8512, 43.2220}
	karaganda = orb.Point{73.1094, 49.8047}
)

func testOffices() []model.Office {
	return []model.Office{
		{Name: "Астана", Address: "пр. Абая 1", Latitude: ptr(astana.Lat()), Longitude: ptr(astana.Lon())},
		{Name: "Алматы", Address: "ул. Панфилова 2", Latitude: ptr(almaty.Lat()), Longitude: ptr(almaty.Lon())},
		{Name: "Караганда", Address: "пр. Бухар-Жырау 3", Latitude: ptr(karaganda.Lat()), Longitude: ptr(karaganda.Lon())},
		{Name: "Онлайн", Address: "—"},
	}
}

func TestHaversineKm(t *testing.T) {
	if d := HaversineKm(astana, astana); d != 0 {
		t.Errorf("distance to self = %v, want 0", d)
	}
	d := HaversineKm(astana, almaty)
	if math.Abs(d-971.2) > 1.0 {
		t.Errorf("Astana-Almaty = %v km, want ~971.2", d)
	}
	if d2 := HaversineKm(almaty, astana); math.Abs(d-d2) > 1e-9 {
		t.Errorf("distance not symmetric: %v vs %v", d, d2)
	}
}

func TestNearest(t *testing.T) {
	idx := NewOfficeIndex(testOffices())

	// A point just outside Astana.
	got := idx.Nearest(orb.Point{71.5, 51.2})
	if got == nil || got.Name != "Астана" {
		t.Fatalf("Nearest = %+v, want Астана", got)
	}

	if o := NewOfficeIndex([]model.Office{{Name: "Онлайн"}}).Nearest(astana); o != nil {
		t.Errorf("index without coordinates must return nil, got %+v", o)
	}
}

func TestSortedByDistance(t *testing.T) {
	idx := NewOfficeIndex(testOffices())

	got := idx.SortedByDistance("Астана")
	want := []string{"Караганда", "Алматы"}
	if len(got) != len(want) {
		t.Fatalf("SortedByDistance = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SortedByDistance = %v, want %v", got, want)
		}
	}

	if names := idx.SortedByDistance("Онлайн"); len(names) != 0 {
		t.Errorf("coordless base must yield no neighbors, got %v", names)
	}
	if names := idx.SortedByDistance("Нет такого"); len(names) != 0 {
		t.Errorf("unknown base must yield no neighbors, got %v", names)
	}
}

func TestByNameCaseInsensitive(t *testing.T) {
	idx := NewOfficeIndex(testOffices())
	if o := idx.ByName("астана"); o == nil || o.Name != "Астана" {
		t.Errorf("ByName must match case-insensitively, got %+v", o)
	}
	if o := idx.ByName("Париж"); o != nil {
		t.Errorf("ByName for unknown office = %+v, want nil", o)
	}
}

func TestIsForeignCountry(t *testing.T) {
	for raw, want := range map[string]bool{
		"Казахстан":  false,
		"kazakhstan": false,
		"KZ":         false,
		"Қазақстан":  false,
		"":           false,
		"  ":         false,
		"USA":        true,
		"Россия":     true,
	} {
		if got := IsForeignCountry(raw); got != want {
			t.Errorf("IsForeignCountry(%q) = %v, want %v", raw, got, want)
		}
	}
}
