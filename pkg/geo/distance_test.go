package geo

import (
	"math"
	"testing"
)

func TestDistanceMeters(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Point
		want      float64
		tolMeters float64
	}{
		{
			name: "identical points",
			a:    Point{Lat: 48.8566, Lon: 2.3522},
			b:    Point{Lat: 48.8566, Lon: 2.3522},
			want: 0, tolMeters: 0.001,
		},
		{
			name: "one degree of latitude",
			a:    Point{Lat: 0, Lon: 0},
			b:    Point{Lat: 1, Lon: 0},
			want: 111194.9, tolMeters: 50,
		},
		{
			name: "one degree of longitude at the equator",
			a:    Point{Lat: 0, Lon: 0},
			b:    Point{Lat: 0, Lon: 1},
			want: 111194.9, tolMeters: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceMeters(tt.a, tt.b)
			if math.Abs(got-tt.want) > tt.tolMeters {
				t.Errorf("DistanceMeters() = %.3f, want %.3f (tol %.3f)", got, tt.want, tt.tolMeters)
			}
		})
	}
}

func TestDistanceMetersSymmetry(t *testing.T) {
	a := Point{Lat: 37.7749, Lon: -122.4194}
	b := Point{Lat: 37.8044, Lon: -122.2712}

	ab := DistanceMeters(a, b)
	ba := DistanceMeters(b, a)
	if math.Abs(ab-ba) > 1e-6 {
		t.Errorf("distance not symmetric: a->b %.9f, b->a %.9f", ab, ba)
	}
	if ab <= 0 {
		t.Errorf("distance between distinct points should be positive, got %.9f", ab)
	}
}

func TestDistanceKm(t *testing.T) {
	a := Point{Lat: 51.5074, Lon: -0.1278}
	b := Point{Lat: 51.4545, Lon: -2.5879}

	meters := DistanceMeters(a, b)
	km := DistanceKm(a, b)
	if math.Abs(km-meters/1000.0) > 1e-9 {
		t.Errorf("DistanceKm() = %.9f, want %.9f", km, meters/1000.0)
	}
}

func TestOffsetRoundTrip(t *testing.T) {
	base := Point{Lat: 40.7128, Lon: -74.0060}

	tests := []struct {
		name    string
		bearing float64
		meters  float64
	}{
		{"north 50m", 0, 50},
		{"east 50m", 90, 50},
		{"south 500m", 180, 500},
		{"west 5km", 270, 5000},
		{"northeast 1.2km", 45, 1200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			moved := Offset(base, tt.bearing, tt.meters)
			got := DistanceMeters(base, moved)
			if math.Abs(got-tt.meters) > 0.01 {
				t.Errorf("Offset() landed %.4f m away, want %.4f", got, tt.meters)
			}
		})
	}
}

func TestFormatDistance(t *testing.T) {
	tests := []struct {
		name string
		km   float64
		want string
	}{
		{"zero", 0, "0m"},
		{"under a kilometer", 0.482, "482m"},
		{"just under a kilometer", 0.9994, "999m"},
		{"one kilometer", 1.0, "1.0km"},
		{"a few kilometers", 3.24, "3.2km"},
		{"mid range", 7.5, "7.5km"},
		{"ten kilometers", 10.0, "10.0km"},
		{"beyond ten", 42.4, "42km"},
		{"far away", 123.6, "124km"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDistance(tt.km); got != tt.want {
				t.Errorf("FormatDistance(%v) = %q, want %q", tt.km, got, tt.want)
			}
		})
	}
}
