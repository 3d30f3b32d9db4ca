// Package parking tracks "parked here, watching for enforcement" sessions.
//
// Each identity has one state machine:
//
//	Idle --Begin--> Prompting --Confirm--> Active --Stop/expiry--> Idle
//	                Prompting --Cancel--> Idle
//
// Active sessions are persisted so a later Resume can pick up the countdown
// from the stored start time.
package parking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/taps-tracker-service/internal/domain"
)

// Duration bounds in whole hours.
const (
	MinHours = 1
	MaxHours = 24
)

// CurrentLocationLabel is stored as the location of sessions parked at the
// device position instead of a named lot.
const CurrentLocationLabel = "CURRENT LOCATION"

var (
	ErrInvalidDuration   = fmt.Errorf("hours must be between %d and %d", MinHours, MaxHours)
	ErrInvalidTransition = errors.New("invalid parking state transition")
	ErrNoPosition        = errors.New("no device position available")
	ErrNoIdentity        = errors.New("email is required")
	ErrNoLocation        = errors.New("a location is required")
)

// State is a parking state machine state.
type State int

const (
	Idle State = iota
	Prompting
	Active
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Prompting:
		return "prompting"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON responses.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Identity is the user a session belongs to.
type Identity struct {
	Email    string
	FullName string
}

// Session is the persisted session document.
type Session struct {
	ID        string              `json:"id"`
	Email     string              `json:"email"`
	FullName  string              `json:"full_name"`
	Location  string              `json:"location"`
	Coords    *domain.Coordinates `json:"coords,omitempty"`
	Hours     int                 `json:"hours"`
	StartedAt time.Time           `json:"started_at"`
}

// ExpiresAt is when the session's countdown reaches zero.
func (s Session) ExpiresAt() time.Time {
	return s.StartedAt.Add(time.Duration(s.Hours) * time.Hour)
}

// RemainingSeconds is the whole number of seconds left at now, floored, and
// never negative.
func (s Session) RemainingSeconds(now time.Time) int {
	return remainingSeconds(now, s.ExpiresAt())
}

// Expired reports whether the session's deadline has been reached at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt())
}

// Store persists session documents.
type Store interface {
	// Create stores a new session and returns it with its ID assigned.
	Create(ctx context.Context, s Session) (Session, error)

	// Latest returns the most recently started session for email.
	Latest(ctx context.Context, email string) (Session, bool, error)

	// Delete removes a session by ID. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error
}

// Geolocator reports the device's current position.
type Geolocator interface {
	CurrentPosition(ctx context.Context) (domain.Coordinates, error)
}

// PositionFunc adapts a function to Geolocator.
type PositionFunc func(ctx context.Context) (domain.Coordinates, error)

func (f PositionFunc) CurrentPosition(ctx context.Context) (domain.Coordinates, error) {
	return f(ctx)
}

// FixedPosition is a Geolocator that always reports c.
func FixedPosition(c domain.Coordinates) Geolocator {
	return PositionFunc(func(context.Context) (domain.Coordinates, error) {
		return c, nil
	})
}

// Target is where the user parks: a named location, or the device position
// when Geolocator is set.
type Target struct {
	Location   string
	Geolocator Geolocator
}

// ValidateHours checks the requested duration.
func ValidateHours(hours int) error {
	if hours < MinHours || hours > MaxHours {
		return fmt.Errorf("%w: got %d", ErrInvalidDuration, hours)
	}
	return nil
}

// FormatRemaining renders seconds as H:MM:SS.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}
