package geo

import (
	"math"
	"testing"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name   string
		a      Point
		b      Point
		wantM  float64
		within float64
	}{
		{
			name:   "same point",
			a:      Point{Latitude: -34.9285, Longitude: 138.6007},
			b:      Point{Latitude: -34.9285, Longitude: 138.6007},
			wantM:  0,
			within: 0.001,
		},
		{
			name:   "adelaide to parafield",
			a:      Point{Latitude: -34.9285, Longitude: 138.6007},
			b:      Point{Latitude: -34.7933, Longitude: 138.6330},
			wantM:  15300,
			within: 300,
		},
		{
			name:   "one degree of latitude",
			a:      Point{Latitude: 0, Longitude: 0},
			b:      Point{Latitude: 1, Longitude: 0},
			wantM:  111195,
			within: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.a, tt.b)
			if math.Abs(got-tt.wantM) > tt.within {
				t.Errorf("Haversine() = %.1f m, want %.1f m (+/- %.1f)", got, tt.wantM, tt.within)
			}
		})
	}
}

func TestHaversine_Symmetry(t *testing.T) {
	a := Point{Latitude: -34.84658, Longitude: 138.67962}
	b := Point{Latitude: -34.9285, Longitude: 138.6007}

	if d1, d2 := Haversine(a, b), Haversine(b, a); math.Abs(d1-d2) > 1e-9 {
		t.Errorf("Haversine not symmetric: %v vs %v", d1, d2)
	}
}

func TestConversions(t *testing.T) {
	if got := MetersToNM(1852); math.Abs(got-1) > 1e-9 {
		t.Errorf("MetersToNM(1852) = %v, want 1", got)
	}
	if got := FeetToMeters(1000); math.Abs(got-304.8) > 1e-9 {
		t.Errorf("FeetToMeters(1000) = %v, want 304.8", got)
	}
	if got := KnotsToKmh(100); math.Abs(got-185.2) > 1e-9 {
		t.Errorf("KnotsToKmh(100) = %v, want 185.2", got)
	}
}
