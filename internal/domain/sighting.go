package domain

import (
	"math"
	"time"
)

// Unavailable is the placeholder stored for a missing citation number or label.
const Unavailable = "Unavailable"

// Sighting is one normalized enforcement observation.
type Sighting struct {
	CitationNumber string    `json:"citation_number"`
	LocationLabel  string    `json:"location"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Coordinates is a WGS-84 latitude/longitude pair in degrees.
type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// IsZero reports whether c is the zero coordinate, used as "not resolved".
func (c Coordinates) IsZero() bool {
	return c.Lat == 0 && c.Lng == 0
}

// Valid reports whether c is a finite latitude/longitude within range.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// NamedLocation is a reference point from the static location table.
// Several names may share the same coordinates.
type NamedLocation struct {
	Name        string      `json:"name" yaml:"name"`
	Coordinates Coordinates `json:"coordinates" yaml:",inline"`
}

// IngestResult is the outcome of one ingestion pass.
type IngestResult struct {
	Sightings  []Sighting
	Skipped    int
	IngestedAt time.Time
}
