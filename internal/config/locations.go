package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/taps-tracker-service/internal/domain"
)

//go:embed locations.yaml
var defaultLocations []byte

// LocationTable is the campus reference data.
type LocationTable struct {
	// Locations resolve sighting labels to coordinates, in priority order.
	Locations []domain.NamedLocation `yaml:"locations"`
	// ParkingLots are offered as parking choices and ranked by distance.
	ParkingLots []domain.NamedLocation `yaml:"parking_lots"`
}

// LoadLocations reads the table from path, or the embedded default when path is empty.
func LoadLocations(path string) (LocationTable, error) {
	data := defaultLocations
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return LocationTable{}, fmt.Errorf("read location table: %w", err)
		}
		data = b
	}
	return ParseLocations(data)
}

// ParseLocations decodes and validates a YAML location table.
func ParseLocations(data []byte) (LocationTable, error) {
	var t LocationTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return LocationTable{}, fmt.Errorf("decode location table: %w", err)
	}
	if len(t.Locations) == 0 {
		return LocationTable{}, errors.New("location table has no locations")
	}
	for _, list := range [][]domain.NamedLocation{t.Locations, t.ParkingLots} {
		for i, loc := range list {
			if loc.Name == "" {
				return LocationTable{}, fmt.Errorf("location %d has no name", i)
			}
			c := loc.Coordinates
			if c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180 {
				return LocationTable{}, fmt.Errorf("location %q has out-of-range coordinates", loc.Name)
			}
		}
	}
	return t, nil
}
