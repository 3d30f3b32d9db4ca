package domain

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"time"
)

// DisplayOffset converts stored instants into the hour shown to users.
// Every presentation path applies this single value.
const DisplayOffset = 7 * time.Hour

// HoursPerDay is the number of histogram buckets.
const HoursPerDay = 24

// numericPrefixRe extracts the lot number from labels like "104 EAST REMOTE".
var numericPrefixRe = regexp.MustCompile(`^\d+`)

// DisplayTime shifts a stored instant by DisplayOffset.
func DisplayTime(t time.Time) time.Time {
	return t.Add(DisplayOffset)
}

// DisplayHour is the hour of day users see for a stored instant.
func DisplayHour(t time.Time) int {
	return DisplayTime(t).Hour()
}

// Prediction is the enforcement estimate for one location and hour.
type Prediction struct {
	Location   string  `json:"location"`
	Hour       int     `json:"hour"`
	Percentage float64 `json:"percentage"`
	Total      int     `json:"total"`
	Matching   int     `json:"matching"`

	// Histogram buckets sightings by stored hour; DisplayHistogram by display hour.
	Histogram        [HoursPerDay]int `json:"histogram"`
	DisplayHistogram [HoursPerDay]int `json:"display_histogram"`
}

// HasData reports whether any sighting was recorded at the location.
func (p Prediction) HasData() bool {
	return p.Total > 0
}

// Histogram counts sightings at label by stored (UTC, unshifted) hour.
func Histogram(sightings []Sighting, label string) [HoursPerDay]int {
	var h [HoursPerDay]int
	for _, s := range sightings {
		if s.LocationLabel == label {
			h[s.OccurredAt.Hour()]++
		}
	}
	return h
}

// Predict computes the share of sightings at label that fall in the given
// display hour. Zero sightings yield a zero percentage, not an error.
func Predict(sightings []Sighting, label string, hour int) Prediction {
	p := Prediction{
		Location:  label,
		Hour:      hour,
		Histogram: Histogram(sightings, label),
	}

	for _, s := range sightings {
		if s.LocationLabel != label {
			continue
		}
		p.Total++
		dh := DisplayHour(s.OccurredAt)
		p.DisplayHistogram[dh]++
		if dh == hour {
			p.Matching++
		}
	}

	if p.Total > 0 {
		p.Percentage = round2(float64(p.Matching) / float64(p.Total) * 100)
	}
	return p
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// PredictionLocations lists the distinct labels users can query. Labels with a
// numeric lot prefix come first ordered by that number, then the rest
// alphabetically. "Unavailable" is excluded.
func PredictionLocations(sightings []Sighting) []string {
	seen := make(map[string]struct{})
	var numeric, named []string
	for _, s := range sightings {
		label := s.LocationLabel
		if label == Unavailable {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		if numericPrefixRe.MatchString(label) {
			numeric = append(numeric, label)
		} else {
			named = append(named, label)
		}
	}

	sort.SliceStable(numeric, func(i, j int) bool {
		ni, nj := lotNumber(numeric[i]), lotNumber(numeric[j])
		if ni != nj {
			return ni < nj
		}
		return numeric[i] < numeric[j]
	})
	sort.Strings(named)

	out := make([]string, 0, len(numeric)+len(named))
	out = append(out, numeric...)
	return append(out, named...)
}

func lotNumber(label string) int {
	n, err := strconv.Atoi(numericPrefixRe.FindString(label))
	if err != nil {
		return math.MaxInt
	}
	return n
}
