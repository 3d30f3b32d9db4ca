package parking

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/taps-tracker-service/internal/observability"
)

// Tracker holds one Machine per identity, keyed by email. A machine stays
// registered while a caller holds it or while it carries in-memory state
// (Prompting, Active, or a pending delete); an Idle machine nobody holds is
// dropped and rebuilt from the store on next use.
type Tracker struct {
	store   Store
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	machines map[string]*trackedMachine
}

type trackedMachine struct {
	m    *Machine
	refs int
}

// NewTracker creates an empty tracker backed by store.
func NewTracker(store Store, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Tracker {
	return &Tracker{
		store:    store,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
		machines: make(map[string]*trackedMachine),
	}
}

// Machine returns the machine for identity, creating it on first use, and
// resumes it from the store if it is Idle. Every successful call must be
// paired with Release.
func (t *Tracker) Machine(ctx context.Context, identity Identity) (*Machine, error) {
	email := strings.TrimSpace(identity.Email)
	if email == "" {
		return nil, ErrNoIdentity
	}
	identity.Email = email

	t.mu.Lock()
	e, ok := t.machines[email]
	if !ok {
		m := NewMachine(identity, t.store, t.clock, t.logger, t.metrics)
		m.onIdle = func() { t.evict(email, m) }
		e = &trackedMachine{m: m}
		t.machines[email] = e
		t.metrics.TrackedMachines.Inc()
	}
	e.refs++
	t.mu.Unlock()

	if err := e.m.Resume(ctx); err != nil {
		t.Release(e.m)
		return nil, err
	}
	return e.m, nil
}

// Release gives back a machine obtained from Machine.
func (t *Tracker) Release(m *Machine) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.machines[m.identity.Email]
	if !ok || e.m != m {
		return
	}
	e.refs--
	t.dropIfUnused(m.identity.Email, e)
}

// evict runs when a machine goes Idle on its own, after a countdown expiry.
func (t *Tracker) evict(email string, m *Machine) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.machines[email]; ok && e.m == m {
		t.dropIfUnused(email, e)
	}
}

// dropIfUnused removes e when nobody holds it and it has nothing in memory
// the store cannot rebuild. Callers hold t.mu.
func (t *Tracker) dropIfUnused(email string, e *trackedMachine) {
	if e.refs > 0 || !e.m.disposable() {
		return
	}
	delete(t.machines, email)
	t.metrics.TrackedMachines.Dec()
}

// Close releases every machine's countdown.
func (t *Tracker) Close() {
	t.mu.Lock()
	machines := t.machines
	t.machines = make(map[string]*trackedMachine)
	t.metrics.TrackedMachines.Sub(float64(len(machines)))
	t.mu.Unlock()

	for _, e := range machines {
		e.m.Close()
	}
}
