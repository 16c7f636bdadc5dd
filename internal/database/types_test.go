package database

import (
	"testing"

	"github.com/kozaktomas/reunite/internal/geo"
)

func TestBBoxSliceRoundTrip(t *testing.T) {
	b := BBox{X: 0.1, Y: 0.2, Width: 0.3, Height: 0.4}
	got := BBoxFromSlice(b.Slice())
	if got != b {
		t.Errorf("BBoxFromSlice(Slice()) = %+v, want %+v", got, b)
	}
}

func TestBBoxFromSlice_Invalid(t *testing.T) {
	if got := BBoxFromSlice([]float64{1, 2}); got != (BBox{}) {
		t.Errorf("expected zero box for short slice, got %+v", got)
	}
}

func TestAlertRecord_Unread(t *testing.T) {
	tests := []struct {
		name  string
		alert AlertRecord
		want  bool
	}{
		{"fresh", AlertRecord{}, true},
		{"reviewed", AlertRecord{Reviewed: true}, false},
		{"dismissed", AlertRecord{Dismissed: true}, false},
		{"both", AlertRecord{Reviewed: true, Dismissed: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.alert.Unread(); got != tt.want {
				t.Errorf("Unread() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStation_Locate(t *testing.T) {
	if _, ok := (Station{Name: "no coords"}).Locate(); ok {
		t.Error("station without location should not be located")
	}
	p, ok := (Station{Location: &geo.Point{Lat: 1, Lon: 2}}).Locate()
	if !ok || p.Lat != 1 || p.Lon != 2 {
		t.Errorf("Locate() = %v, %v", p, ok)
	}
}
