package domain

import (
	"context"
	"log/slog"
)

// Resolution sources reported by ResolveLabel.
const (
	SourceTable    = "table"
	SourceGeocoded = "geocoded"
	SourceFallback = "fallback"
	SourceFailed   = "failed"
)

// CampusHint qualifies forward geocoding queries.
const CampusHint = "UC Santa Cruz, CA"

// Resolution is a label's coordinates and where they came from.
type Resolution struct {
	Label       string      `json:"label"`
	Coordinates Coordinates `json:"coordinates"`
	Source      string      `json:"source"`
}

// ResolveLabel resolves a label from the location table, then the geocoder,
// then the fallback coordinate. Geocoder errors degrade to the fallback with
// Source set to "failed"; a nil geocoder skips that step.
func ResolveLabel(ctx context.Context, label string, resolver *Resolver, geocoder Geocoder, fallback Coordinates, logger *slog.Logger) Resolution {
	res := Resolution{Label: label, Coordinates: fallback, Source: SourceFallback}

	if c, ok := resolver.Resolve(label); ok {
		res.Coordinates = c
		res.Source = SourceTable
		return res
	}

	if geocoder == nil || label == "" || label == Unavailable {
		return res
	}

	result, err := geocoder.ForwardGeocode(ctx, label, CampusHint)
	if err != nil {
		logger.Warn("forward geocoding failed",
			"location", label,
			"error", err,
		)
		res.Source = SourceFailed
		return res
	}
	if !result.Coordinates.IsZero() {
		res.Coordinates = result.Coordinates
		res.Source = SourceGeocoded
	}
	return res
}
