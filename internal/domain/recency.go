package domain

import "sort"

// View sizes for the collapsed and expanded map and list.
const (
	PinsCollapsed = 1
	PinsExpanded  = 3
	ListCollapsed = 3

	// All disables the limit in TopN.
	All = -1
)

// PinLimit returns the number of distinct-location pins for the map view.
func PinLimit(showAll bool) int {
	if showAll {
		return PinsExpanded
	}
	return PinsCollapsed
}

// ListLimit returns the number of sightings for the textual list.
func ListLimit(showAll bool) int {
	if showAll {
		return All
	}
	return ListCollapsed
}

// SortByRecency returns a copy of sightings ordered newest first.
// Sightings with equal timestamps keep their input order.
func SortByRecency(sightings []Sighting) []Sighting {
	sorted := make([]Sighting, len(sightings))
	copy(sorted, sightings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OccurredAt.After(sorted[j].OccurredAt)
	})
	return sorted
}

// TopN returns the n most recent sightings regardless of location. A negative
// n returns all of them.
func TopN(sightings []Sighting, n int) []Sighting {
	sorted := SortByRecency(sightings)
	if n >= 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// TopDistinct walks sightings newest first and keeps the first sighting of
// each location label until n labels are collected.
func TopDistinct(sightings []Sighting, n int) []Sighting {
	if n == 0 {
		return []Sighting{}
	}
	sorted := SortByRecency(sightings)
	seen := make(map[string]struct{})
	out := make([]Sighting, 0, max(n, 0))
	for _, s := range sorted {
		if _, ok := seen[s.LocationLabel]; ok {
			continue
		}
		seen[s.LocationLabel] = struct{}{}
		out = append(out, s)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}

// MostRecent returns the newest sighting, if any.
func MostRecent(sightings []Sighting) (Sighting, bool) {
	var latest Sighting
	found := false
	for _, s := range sightings {
		if !found || s.OccurredAt.After(latest.OccurredAt) {
			latest = s
			found = true
		}
	}
	return latest, found
}
