package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
type GeocodingResult struct {
	Coordinates      Coordinates
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// Geocoder resolves labels the location table does not know.
type Geocoder interface {
	// ForwardGeocode converts a place name, qualified by an area hint such as
	// "UC Santa Cruz, CA", to coordinates.
	ForwardGeocode(ctx context.Context, name, hint string) (GeocodingResult, error)
}
