package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/couchcryptid/taps-tracker-service/internal/domain"
	"github.com/couchcryptid/taps-tracker-service/internal/parking"
)

type confirmRequest struct {
	Location           string   `json:"location"`
	UseCurrentLocation bool     `json:"use_current_location"`
	Lat                *float64 `json:"lat"`
	Lng                *float64 `json:"lng"`
	Hours              int      `json:"hours"`
}

// machine loads the caller's state machine. Idle machines are resumed from
// the store, which is how a reload picks up a running countdown. Handlers
// release the machine when they are done with it.
func (a *API) machine(w http.ResponseWriter, r *http.Request) (*parking.Machine, bool) {
	identity := parking.Identity{
		Email:    r.PathValue("email"),
		FullName: r.URL.Query().Get("name"),
	}
	m, err := a.tracker.Machine(r.Context(), identity)
	if err != nil {
		a.writeSessionError(w, err)
		return nil, false
	}
	return m, true
}

func (a *API) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	m, ok := a.machine(w, r)
	if !ok {
		return
	}
	defer a.tracker.Release(m)
	writeJSON(w, http.StatusOK, m.Status())
}

func (a *API) handleSessionPrompt(w http.ResponseWriter, r *http.Request) {
	m, ok := a.machine(w, r)
	if !ok {
		return
	}
	defer a.tracker.Release(m)
	if err := m.Begin(); err != nil {
		a.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m.Status())
}

func (a *API) handleSessionConfirm(w http.ResponseWriter, r *http.Request) {
	m, ok := a.machine(w, r)
	if !ok {
		return
	}
	defer a.tracker.Release(m)

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	target := parking.Target{Location: req.Location}
	if req.UseCurrentLocation {
		target.Geolocator = requestPosition(req.Lat, req.Lng)
	}

	if _, err := m.Confirm(r.Context(), target, req.Hours); err != nil {
		a.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m.Status())
}

func (a *API) handleSessionCancel(w http.ResponseWriter, r *http.Request) {
	m, ok := a.machine(w, r)
	if !ok {
		return
	}
	defer a.tracker.Release(m)
	if err := m.Cancel(); err != nil {
		a.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m.Status())
}

func (a *API) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	m, ok := a.machine(w, r)
	if !ok {
		return
	}
	defer a.tracker.Release(m)
	if err := m.Stop(r.Context()); err != nil {
		a.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m.Status())
}

// requestPosition reports the position the client sent with the request.
// A missing or out-of-range coordinate behaves like a denied geolocation
// prompt.
func requestPosition(lat, lng *float64) parking.Geolocator {
	return parking.PositionFunc(func(context.Context) (domain.Coordinates, error) {
		if lat == nil || lng == nil {
			return domain.Coordinates{}, parking.ErrNoPosition
		}
		c := domain.Coordinates{Lat: *lat, Lng: *lng}
		if !c.Valid() {
			return domain.Coordinates{}, parking.ErrNoPosition
		}
		return c, nil
	})
}

func (a *API) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, parking.ErrNoIdentity):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, parking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, parking.ErrInvalidDuration),
		errors.Is(err, parking.ErrNoLocation),
		errors.Is(err, parking.ErrNoPosition):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		a.logger.Error("parking session store failure", "error", err)
		writeError(w, http.StatusServiceUnavailable, "session storage unavailable, please retry")
	}
}
