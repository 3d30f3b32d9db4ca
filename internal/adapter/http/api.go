package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/taps-tracker-service/internal/domain"
	"github.com/couchcryptid/taps-tracker-service/internal/ingest"
	"github.com/couchcryptid/taps-tracker-service/internal/observability"
	"github.com/couchcryptid/taps-tracker-service/internal/parking"
)

// DefaultNearest is how many lots /api/locations/nearest returns by default.
const DefaultNearest = 5

const displayLayout = "Jan 2, 2006 3:04 PM"

// pinOpacity fades older pins by recency rank.
var pinOpacity = []float64{1.0, 0.6, 0.3}

// SnapshotSource provides the current sighting snapshot.
type SnapshotSource interface {
	Snapshot() *ingest.Snapshot
}

// API serves the sighting analytics and parking session routes.
type API struct {
	snapshots SnapshotSource
	resolver  *domain.Resolver
	geocoder  domain.Geocoder
	lots      []domain.NamedLocation
	tracker   *parking.Tracker
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewAPI wires the route handlers. A nil geocoder resolves pins from the
// location table only.
func NewAPI(snapshots SnapshotSource, resolver *domain.Resolver, geocoder domain.Geocoder, lots []domain.NamedLocation, tracker *parking.Tracker, logger *slog.Logger, metrics *observability.Metrics) *API {
	return &API{
		snapshots: snapshots,
		resolver:  resolver,
		geocoder:  geocoder,
		lots:      lots,
		tracker:   tracker,
		logger:    logger,
		metrics:   metrics,
	}
}

func (a *API) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sightings", a.handleSightings)
	mux.HandleFunc("GET /api/pins", a.handlePins)
	mux.HandleFunc("GET /api/recent", a.handleRecent)
	mux.HandleFunc("GET /api/locations", a.handleLocations)
	mux.HandleFunc("GET /api/locations/nearest", a.handleNearest)
	mux.HandleFunc("GET /api/predictions", a.handlePrediction)

	mux.HandleFunc("GET /api/sessions/{email}", a.handleSessionStatus)
	mux.HandleFunc("POST /api/sessions/{email}/prompt", a.handleSessionPrompt)
	mux.HandleFunc("POST /api/sessions/{email}/confirm", a.handleSessionConfirm)
	mux.HandleFunc("POST /api/sessions/{email}/cancel", a.handleSessionCancel)
	mux.HandleFunc("DELETE /api/sessions/{email}", a.handleSessionStop)
}

type sightingView struct {
	CitationNumber string    `json:"citation_number"`
	Location       string    `json:"location"`
	OccurredAt     time.Time `json:"occurred_at"`
	DisplayTime    string    `json:"display_time"`
}

func newSightingView(s domain.Sighting) sightingView {
	return sightingView{
		CitationNumber: s.CitationNumber,
		Location:       s.LocationLabel,
		OccurredAt:     s.OccurredAt,
		DisplayTime:    domain.DisplayTime(s.OccurredAt).Format(displayLayout),
	}
}

func (a *API) handleSightings(w http.ResponseWriter, r *http.Request) {
	showAll := boolParam(r, "all")
	snap := a.snapshots.Snapshot()
	top := domain.TopN(snap.Sightings, domain.ListLimit(showAll))

	views := make([]sightingView, len(top))
	for i, s := range top {
		views[i] = newSightingView(s)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sightings":   views,
		"show_all":    showAll,
		"total":       len(snap.Sightings),
		"skipped":     snap.Skipped,
		"ingested_at": snap.IngestedAt,
	})
}

// handlePins renders the most recent distinct-location sightings as GeoJSON
// points, newest first, plus a route line through them from oldest to newest.
func (a *API) handlePins(w http.ResponseWriter, r *http.Request) {
	pins := domain.TopDistinct(a.snapshots.Snapshot().Sightings, domain.PinLimit(boolParam(r, "all")))

	fc := geojson.NewFeatureCollection()
	route := make(orb.LineString, len(pins))
	for i, s := range pins {
		res := domain.ResolveLabel(r.Context(), s.LocationLabel, a.resolver, a.geocoder, domain.CampusCenter, a.logger)
		pt := orb.Point{res.Coordinates.Lng, res.Coordinates.Lat}

		f := geojson.NewFeature(pt)
		f.Properties["citation_number"] = s.CitationNumber
		f.Properties["location"] = s.LocationLabel
		f.Properties["occurred_at"] = s.OccurredAt.Format(time.RFC3339)
		f.Properties["display_time"] = domain.DisplayTime(s.OccurredAt).Format(displayLayout)
		f.Properties["rank"] = i
		f.Properties["opacity"] = opacityForRank(i)
		f.Properties["source"] = res.Source
		fc.Append(f)

		route[len(pins)-1-i] = pt
	}
	if len(route) > 1 {
		f := geojson.NewFeature(route)
		f.Properties["kind"] = "route"
		fc.Append(f)
	}

	b, err := json.Marshal(fc)
	if err != nil {
		a.logger.Error("encode pins", "error", err)
		writeError(w, http.StatusInternalServerError, "could not encode pins")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func opacityForRank(rank int) float64 {
	if rank < len(pinOpacity) {
		return pinOpacity[rank]
	}
	return pinOpacity[len(pinOpacity)-1]
}

func (a *API) handleRecent(w http.ResponseWriter, _ *http.Request) {
	s, ok := a.snapshots.Snapshot().MostRecent()
	if !ok {
		writeError(w, http.StatusNotFound, "no sightings yet")
		return
	}
	writeJSON(w, http.StatusOK, newSightingView(s))
}

func (a *API) handleLocations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"locations": domain.PredictionLocations(a.snapshots.Snapshot().Sightings),
	})
}

type nearbyLot struct {
	Name       string  `json:"name"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	DistanceKm float64 `json:"distance_km"`
}

func (a *API) handleNearest(w http.ResponseWriter, r *http.Request) {
	origin, ok := originParam(r)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "no origin available")
		return
	}

	limit := DefaultNearest
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	ranked := domain.Nearest(origin, a.lots, limit)
	out := make([]nearbyLot, len(ranked))
	for i, l := range ranked {
		out[i] = nearbyLot{Name: l.Name, Lat: l.Coordinates.Lat, Lng: l.Coordinates.Lng, DistanceKm: l.DistanceKm}
	}
	writeJSON(w, http.StatusOK, map[string]any{"origin": origin, "lots": out})
}

func (a *API) handlePrediction(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	location := strings.TrimSpace(q.Get("location"))
	if location == "" {
		writeError(w, http.StatusBadRequest, "location is required")
		return
	}
	hour, err := strconv.Atoi(q.Get("hour"))
	if err != nil || hour < 0 || hour >= domain.HoursPerDay {
		writeError(w, http.StatusBadRequest, "hour must be between 0 and 23")
		return
	}

	p := domain.Predict(a.snapshots.Snapshot().Sightings, location, hour)
	a.metrics.PredictionsServed.Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"prediction": p,
		"has_data":   p.HasData(),
	})
}

func boolParam(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}

// originParam reads lat and lng query parameters.
func originParam(r *http.Request) (domain.Coordinates, bool) {
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lng, err2 := strconv.ParseFloat(q.Get("lng"), 64)
	c := domain.Coordinates{Lat: lat, Lng: lng}
	if err1 != nil || err2 != nil || !c.Valid() {
		return domain.Coordinates{}, false
	}
	return c, true
}
