// Package geo ranks locations by great-circle distance.
package geo

import (
	"fmt"
	"math"
	"sort"

	"github.com/kozaktomas/reunite/internal/constants"
)

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point lies within latitude/longitude bounds.
func (p Point) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lon) &&
		p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

func (p Point) String() string {
	return fmt.Sprintf("%.6f, %.6f", p.Lat, p.Lon)
}

// MapURL returns a Google Maps search link for the point.
func (p Point) MapURL() string {
	return fmt.Sprintf("https://www.google.com/maps/search/?api=1&query=%.6f,%.6f", p.Lat, p.Lon)
}

// Haversine returns the great-circle distance between a and b in kilometers.
func Haversine(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// rounding can push h just outside [0,1] near antipodes
	h = min(max(h, 0), 1)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return constants.EarthRadiusKm * c
}

// Ranked pairs an item with its distance from the ranking origin.
type Ranked[T any] struct {
	Item       T
	DistanceKm float64
}

// Rank orders items ascending by distance from origin. Items for which locate
// reports no coordinates are omitted entirely. Ties keep input order.
func Rank[T any](origin Point, items []T, locate func(T) (Point, bool)) []Ranked[T] {
	ranked := make([]Ranked[T], 0, len(items))
	for _, item := range items {
		p, ok := locate(item)
		if !ok {
			continue
		}
		ranked = append(ranked, Ranked[T]{Item: item, DistanceKm: Haversine(origin, p)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].DistanceKm < ranked[j].DistanceKm
	})
	return ranked
}

// Nearest ranks items and returns up to k of them, nearest first, skipping
// items rejected by eligible.
func Nearest[T any](origin Point, items []T, k int, locate func(T) (Point, bool), eligible func(T) bool) []Ranked[T] {
	if k <= 0 {
		return nil
	}
	var out []Ranked[T]
	for _, r := range Rank(origin, items, locate) {
		if eligible != nil && !eligible(r.Item) {
			continue
		}
		out = append(out, r)
		if len(out) == k {
			break
		}
	}
	return out
}
