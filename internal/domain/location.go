package domain

import (
	"math"
	"sort"
	"strings"
)

// EarthRadiusKm is the mean Earth radius used by Haversine.
const EarthRadiusKm = 6371.0

// CampusCenter is the fallback pin position for labels that cannot be resolved.
var CampusCenter = Coordinates{Lat: 36.9914, Lng: -122.0609}

// Haversine returns the great-circle distance in kilometres between a and b.
func Haversine(a, b Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Resolver maps free-text labels to coordinates using an ordered priority list.
// An entry matches when its name is a substring of the label; the first
// matching entry wins, so more specific names must be listed before the
// generic names they contain.
type Resolver struct {
	priority []NamedLocation
}

// NewResolver copies the priority list so later edits by the caller do not
// change resolution.
func NewResolver(priority []NamedLocation) *Resolver {
	p := make([]NamedLocation, len(priority))
	copy(p, priority)
	return &Resolver{priority: p}
}

// Resolve returns the coordinates of the first entry contained in label.
func (r *Resolver) Resolve(label string) (Coordinates, bool) {
	loc, ok := r.Match(label)
	return loc.Coordinates, ok
}

// Match returns the first priority entry whose name is contained in label.
func (r *Resolver) Match(label string) (NamedLocation, bool) {
	if label == "" || label == Unavailable {
		return NamedLocation{}, false
	}
	for _, loc := range r.priority {
		if strings.Contains(label, loc.Name) {
			return loc, true
		}
	}
	return NamedLocation{}, false
}

// ResolveOr resolves label, returning fallback when nothing matches.
func (r *Resolver) ResolveOr(label string, fallback Coordinates) Coordinates {
	if c, ok := r.Resolve(label); ok {
		return c
	}
	return fallback
}

// Locations returns a copy of the priority list.
func (r *Resolver) Locations() []NamedLocation {
	out := make([]NamedLocation, len(r.priority))
	copy(out, r.priority)
	return out
}

// RankedLocation is a candidate paired with its distance from an origin.
type RankedLocation struct {
	NamedLocation
	DistanceKm float64 `json:"distance_km"`
}

// RankByDistance orders candidates by ascending distance from origin.
// Ties keep the candidates' original order.
func RankByDistance(origin Coordinates, candidates []NamedLocation) []RankedLocation {
	ranked := make([]RankedLocation, len(candidates))
	for i, c := range candidates {
		ranked[i] = RankedLocation{NamedLocation: c, DistanceKm: Haversine(origin, c.Coordinates)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].DistanceKm < ranked[j].DistanceKm
	})
	return ranked
}

// Nearest returns at most n candidates closest to origin.
func Nearest(origin Coordinates, candidates []NamedLocation, n int) []RankedLocation {
	ranked := RankByDistance(origin, candidates)
	if n >= 0 && n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}
