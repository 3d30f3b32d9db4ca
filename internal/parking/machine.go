package parking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/taps-tracker-service/internal/domain"
	"github.com/couchcryptid/taps-tracker-service/internal/observability"
)

// expiryDeleteTimeout bounds the store call made when a countdown runs out.
const expiryDeleteTimeout = 5 * time.Second

// Status is a point-in-time view of a machine.
type Status struct {
	State            State    `json:"state"`
	Session          *Session `json:"session,omitempty"`
	RemainingSeconds int      `json:"remaining_seconds"`
	Remaining        string   `json:"remaining,omitempty"`
}

// Machine is the parking state machine for one identity.
type Machine struct {
	identity Identity
	store    Store
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu        sync.Mutex
	state     State
	session   Session
	remaining int
	countdown *Countdown
	gen       uint64

	// stopped holds IDs of stopped sessions whose delete failed. They are
	// retried before the store is consulted again.
	stopped []string

	onIdle func()
}

// NewMachine creates an Idle machine for identity.
func NewMachine(identity Identity, store Store, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Machine {
	return &Machine{
		identity: identity,
		store:    store,
		clock:    clock,
		logger:   logger.With("email", identity.Email),
		metrics:  metrics,
	}
}

// Begin moves Idle to Prompting.
func (m *Machine) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Idle {
		return fmt.Errorf("%w: begin from %s", ErrInvalidTransition, m.state)
	}
	m.state = Prompting
	return nil
}

// Cancel moves Prompting back to Idle without touching the store.
func (m *Machine) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Prompting {
		return fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, m.state)
	}
	m.state = Idle
	m.metrics.SessionTransitions.WithLabelValues("cancelled").Inc()
	return nil
}

// Confirm persists a new session and starts its countdown. On any error the
// machine stays in Prompting so the user can correct the input or retry.
func (m *Machine) Confirm(ctx context.Context, target Target, hours int) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Prompting {
		return Session{}, fmt.Errorf("%w: confirm from %s", ErrInvalidTransition, m.state)
	}
	if err := ValidateHours(hours); err != nil {
		return Session{}, err
	}

	s := Session{
		Email:    m.identity.Email,
		FullName: m.identity.FullName,
		Location: target.Location,
		Hours:    hours,
	}
	if target.Geolocator != nil {
		pos, err := target.Geolocator.CurrentPosition(ctx)
		if err != nil || pos.IsZero() {
			m.logger.Warn("device position unavailable", "error", err)
			return Session{}, ErrNoPosition
		}
		s.Location = CurrentLocationLabel
		s.Coords = &domain.Coordinates{Lat: pos.Lat, Lng: pos.Lng}
	}
	if s.Location == "" {
		return Session{}, ErrNoLocation
	}

	s.StartedAt = m.clock.Now().UTC()
	created, err := m.store.Create(ctx, s)
	if err != nil {
		return Session{}, fmt.Errorf("persist parking session: %w", err)
	}

	m.activate(created)
	m.metrics.SessionTransitions.WithLabelValues("started").Inc()
	m.logger.Info("parking session started",
		"session_id", created.ID,
		"location", created.Location,
		"hours", created.Hours,
	)
	return created, nil
}

// Stop cancels the countdown and deletes the persisted session. The machine
// is Idle afterwards even if the delete fails; the error is returned and the
// delete is retried on the next Resume.
func (m *Machine) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Active {
		return fmt.Errorf("%w: stop from %s", ErrInvalidTransition, m.state)
	}
	s := m.deactivate()
	m.metrics.SessionTransitions.WithLabelValues("stopped").Inc()

	if err := m.store.Delete(ctx, s.ID); err != nil {
		m.stopped = append(m.stopped, s.ID)
		m.logger.Warn("could not remove parking session", "session_id", s.ID, "error", err)
		return fmt.Errorf("delete parking session: %w", err)
	}
	m.logger.Info("parking session stopped", "session_id", s.ID)
	return nil
}

// Resume re-enters Active from the most recent persisted session if it has
// time left, and deletes it otherwise. It is a no-op unless the machine is Idle.
// While a stopped session is still stored, the store is not consulted and the
// machine stays Idle.
func (m *Machine) Resume(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Idle {
		return nil
	}
	if !m.retryStopped(ctx) {
		return nil
	}

	s, ok, err := m.store.Latest(ctx, m.identity.Email)
	if err != nil {
		return fmt.Errorf("load parking session: %w", err)
	}
	if !ok {
		return nil
	}

	if !s.Expired(m.clock.Now()) {
		m.activate(s)
		m.metrics.SessionTransitions.WithLabelValues("resumed").Inc()
		m.logger.Info("parking session resumed", "session_id", s.ID, "remaining_seconds", m.remaining)
		return nil
	}

	m.metrics.SessionTransitions.WithLabelValues("stale").Inc()
	if err := m.store.Delete(ctx, s.ID); err != nil {
		return fmt.Errorf("delete stale parking session: %w", err)
	}
	m.logger.Info("stale parking session removed", "session_id", s.ID)
	return nil
}

// retryStopped deletes sessions left behind by a failed Stop and reports
// whether none remain. Callers hold m.mu.
func (m *Machine) retryStopped(ctx context.Context) bool {
	for len(m.stopped) > 0 {
		id := m.stopped[0]
		if err := m.store.Delete(ctx, id); err != nil {
			m.logger.Warn("could not remove stopped parking session", "session_id", id, "error", err)
			return false
		}
		m.stopped = m.stopped[1:]
		m.logger.Info("stopped parking session removed", "session_id", id)
	}
	return true
}

// disposable reports whether the machine holds nothing the store cannot
// rebuild.
func (m *Machine) disposable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Idle && len(m.stopped) == 0
}

// Close releases the countdown without deleting the persisted session, so a
// later Resume can pick it up again.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Active {
		m.deactivate()
		return
	}
	m.state = Idle
}

// Status returns the current state and, when Active, the session and time left.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{State: m.state}
	if m.state == Active {
		s := m.session
		st.Session = &s
		st.RemainingSeconds = m.remaining
		st.Remaining = FormatRemaining(m.remaining)
	}
	return st
}

// activate enters Active and starts a fresh countdown. Callers hold m.mu.
func (m *Machine) activate(s Session) {
	m.gen++
	gen := m.gen
	m.state = Active
	m.session = s
	m.remaining = s.RemainingSeconds(m.clock.Now())
	m.countdown = StartCountdown(m.clock, s.ExpiresAt(), func(remaining int) {
		m.onTick(gen, remaining)
	})
	m.metrics.ActiveSessions.Inc()
}

// deactivate stops the countdown and returns to Idle. Callers hold m.mu.
func (m *Machine) deactivate() Session {
	s := m.session
	if m.countdown != nil {
		m.countdown.Stop()
		m.countdown = nil
	}
	m.gen++
	m.state = Idle
	m.session = Session{}
	m.remaining = 0
	m.metrics.ActiveSessions.Dec()
	return s
}

func (m *Machine) onTick(gen uint64, remaining int) {
	m.mu.Lock()
	if gen != m.gen || m.state != Active {
		m.mu.Unlock()
		return
	}
	m.remaining = remaining
	if remaining > 0 {
		m.mu.Unlock()
		return
	}

	s := m.deactivate()
	onIdle := m.onIdle
	m.mu.Unlock()

	m.metrics.SessionTransitions.WithLabelValues("expired").Inc()
	if onIdle != nil {
		defer onIdle()
	}
	ctx, cancel := context.WithTimeout(context.Background(), expiryDeleteTimeout)
	defer cancel()
	if err := m.store.Delete(ctx, s.ID); err != nil {
		m.logger.Warn("could not remove expired parking session", "session_id", s.ID, "error", err)
		return
	}
	m.logger.Info("parking session expired", "session_id", s.ID)
}
