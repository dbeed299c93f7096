package geo

import (
	"math"
	"testing"
)

func TestHaversineKm(t *testing.T) {
	// Jakarta (-6.2, 106.816) to Bandung (-6.9175, 107.6191) ~ 115-120 km
	d := HaversineKm(-6.2, 106.816, -6.9175, 107.6191)
	if d < 100 || d > 140 {
		t.Fatalf("unexpected distance: %v", d)
	}
}

func TestHaversineMZero(t *testing.T) {
	if d := HaversineM(-6.2, 106.816, -6.2, 106.816); d != 0 {
		t.Fatalf("expected zero distance, got %v", d)
	}
}

func TestDistance3DM(t *testing.T) {
	flat := HaversineM(-6.2, 106.816, -6.20009, 106.816)
	d := Distance3DM(-6.2, 106.816, 100, -6.20009, 106.816, 110)
	want := math.Sqrt(flat*flat + 100)
	if math.Abs(d-want) > 0.001 {
		t.Fatalf("3d distance %v, want %v", d, want)
	}
	if d <= flat {
		t.Fatalf("3d distance %v should exceed horizontal %v", d, flat)
	}
}

func TestPointAtDistanceRoundTrip(t *testing.T) {
	lat, lng := PointAtDistance(-6.2, 106.816, 45, 250)
	d := HaversineM(-6.2, 106.816, lat, lng)
	if math.Abs(d-250) > 1 {
		t.Fatalf("expected ~250 m, got %v", d)
	}
	brg := Bearing(-6.2, 106.816, lat, lng)
	if math.Abs(brg-45) > 1 {
		t.Fatalf("expected bearing ~45, got %v", brg)
	}
}
