package parking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/taps-tracker-service/internal/domain"
	"github.com/couchcryptid/taps-tracker-service/internal/observability"
)

// --- in-memory store ---

type memStore struct {
	mu        sync.Mutex
	next      int
	sessions  map[string]Session
	createErr error
	deleteErr error
	deleted   []string
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]Session)}
}

func (s *memStore) Create(_ context.Context, sess Session) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return Session{}, s.createErr
	}
	s.next++
	sess.ID = fmt.Sprintf("session-%d", s.next)
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *memStore) Latest(_ context.Context, email string) (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []Session
	for _, sess := range s.sessions {
		if sess.Email == email {
			matches = append(matches, sess)
		}
	}
	if len(matches) == 0 {
		return Session{}, false, nil
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].StartedAt.After(matches[j].StartedAt) })
	return matches[0], true, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.sessions, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *memStore) put(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// --- helpers ---

var testIdentity = Identity{Email: "slug@ucsc.edu", FullName: "Sammy Slug"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMachine(t *testing.T, store Store, clock clockwork.Clock) *Machine {
	t.Helper()
	m := NewMachine(testIdentity, store, clock, discardLogger(), observability.NewMetricsForTesting())
	t.Cleanup(m.Close)
	return m
}

func start() time.Time {
	return time.Date(2024, time.October, 1, 17, 0, 0, 0, time.UTC)
}

// --- transitions ---

func TestMachine_ConfirmNamedLocation(t *testing.T) {
	clock := clockwork.NewFakeClockAt(start())
	store := newMemStore()
	m := newTestMachine(t, store, clock)

	require.NoError(t, m.Begin())
	assert.Equal(t, Prompting, m.Status().State)

	s, err := m.Confirm(context.Background(), Target{Location: "EAST REMOTE"}, 2)
	require.NoError(t, err)

	assert.Equal(t, "session-1", s.ID)
	assert.Equal(t, "EAST REMOTE", s.Location)
	assert.Nil(t, s.Coords)
	assert.Equal(t, start(), s.StartedAt)
	assert.Equal(t, testIdentity.FullName, s.FullName)

	st := m.Status()
	assert.Equal(t, Active, st.State)
	require.NotNil(t, st.Session)
	assert.Equal(t, 7200, st.RemainingSeconds)
	assert.Equal(t, "2:00:00", st.Remaining)
	assert.Equal(t, 1, store.len())
}

func TestMachine_ConfirmCurrentLocation(t *testing.T) {
	clock := clockwork.NewFakeClockAt(start())
	m := newTestMachine(t, newMemStore(), clock)
	require.NoError(t, m.Begin())

	pos := domain.Coordinates{Lat: 36.9990, Lng: -122.0600}
	s, err := m.Confirm(context.Background(), Target{Geolocator: FixedPosition(pos)}, 1)
	require.NoError(t, err)

	assert.Equal(t, CurrentLocationLabel, s.Location)
	require.NotNil(t, s.Coords)
	assert.Equal(t, pos, *s.Coords)
}

func TestMachine_ConfirmErrorsStayPrompting(t *testing.T) {
	tests := []struct {
		name    string
		target  Target
		hours   int
		wantErr error
	}{
		{"zero hours", Target{Location: "EAST REMOTE"}, 0, ErrInvalidDuration},
		{"too many hours", Target{Location: "EAST REMOTE"}, 25, ErrInvalidDuration},
		{"no location", Target{}, 2, ErrNoLocation},
		{
			"position denied",
			Target{Geolocator: PositionFunc(func(context.Context) (domain.Coordinates, error) {
				return domain.Coordinates{}, errors.New("permission denied")
			})},
			2,
			ErrNoPosition,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			m := newTestMachine(t, store, clockwork.NewFakeClockAt(start()))
			require.NoError(t, m.Begin())

			_, err := m.Confirm(context.Background(), tt.target, tt.hours)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, Prompting, m.Status().State)
			assert.Zero(t, store.len())
		})
	}
}

func TestMachine_ConfirmStoreFailure(t *testing.T) {
	store := newMemStore()
	store.createErr = errors.New("disk full")
	m := newTestMachine(t, store, clockwork.NewFakeClockAt(start()))
	require.NoError(t, m.Begin())

	_, err := m.Confirm(context.Background(), Target{Location: "EAST REMOTE"}, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, Prompting, m.Status().State)
}

func TestMachine_Cancel(t *testing.T) {
	store := newMemStore()
	m := newTestMachine(t, store, clockwork.NewFakeClockAt(start()))

	require.NoError(t, m.Begin())
	require.NoError(t, m.Cancel())
	assert.Equal(t, Idle, m.Status().State)
	assert.Zero(t, store.len())
}

func TestMachine_InvalidTransitions(t *testing.T) {
	m := newTestMachine(t, newMemStore(), clockwork.NewFakeClockAt(start()))

	assert.ErrorIs(t, m.Cancel(), ErrInvalidTransition)
	assert.ErrorIs(t, m.Stop(context.Background()), ErrInvalidTransition)
	_, err := m.Confirm(context.Background(), Target{Location: "EAST REMOTE"}, 2)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, m.Begin())
	assert.ErrorIs(t, m.Begin(), ErrInvalidTransition)
}

func TestMachine_Stop(t *testing.T) {
	store := newMemStore()
	m := newTestMachine(t, store, clockwork.NewFakeClockAt(start()))
	require.NoError(t, m.Begin())
	s, err := m.Confirm(context.Background(), Target{Location: "EAST REMOTE"}, 3)
	require.NoError(t, err)

	require.NoError(t, m.Stop(context.Background()))

	st := m.Status()
	assert.Equal(t, Idle, st.State)
	assert.Nil(t, st.Session)
	assert.Zero(t, store.len())
	assert.Equal(t, []string{s.ID}, store.deleted)
}

func TestMachine_StopDeleteFailureStillIdle(t *testing.T) {
	store := newMemStore()
	m := newTestMachine(t, store, clockwork.NewFakeClockAt(start()))
	require.NoError(t, m.Begin())
	_, err := m.Confirm(context.Background(), Target{Location: "EAST REMOTE"}, 3)
	require.NoError(t, err)

	store.deleteErr = errors.New("connection reset")
	err = m.Stop(context.Background())
	require.Error(t, err)
	assert.Equal(t, Idle, m.Status().State)

	require.NoError(t, m.Resume(context.Background()))
	assert.Equal(t, Idle, m.Status().State, "stopped session is not resumed while its delete is pending")
	assert.Equal(t, 1, store.len())
	assert.False(t, m.disposable())

	store.deleteErr = nil
	require.NoError(t, m.Resume(context.Background()))
	assert.Equal(t, Idle, m.Status().State)
	assert.Zero(t, store.len())
	assert.True(t, m.disposable())
}

func TestMachine_ResumeWithLessThanASecondLeft(t *testing.T) {
	now := start()
	store := newMemStore()
	store.put(Session{ID: "s1", Email: testIdentity.Email, Location: "EAST REMOTE", Hours: 1, StartedAt: now.Add(-time.Hour + 500*time.Millisecond)})
	m := newTestMachine(t, store, clockwork.NewFakeClockAt(now))

	require.NoError(t, m.Resume(context.Background()))

	assert.Equal(t, Active, m.Status().State)
	assert.Equal(t, 1, store.len())
}

// --- countdown ---

func TestMachine_CountdownTicks(t *testing.T) {
	clock := clockwork.NewFakeClockAt(start())
	m := newTestMachine(t, newMemStore(), clock)
	require.NoError(t, m.Begin())
	_, err := m.Confirm(context.Background(), Target{Location: "EAST REMOTE"}, 1)
	require.NoError(t, err)

	clock.Advance(90 * time.Second)

	assert.Eventually(t, func() bool {
		return m.Status().RemainingSeconds == 3510
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "0:58:30", m.Status().Remaining)
}

func TestMachine_CountdownExpiry(t *testing.T) {
	clock := clockwork.NewFakeClockAt(start())
	store := newMemStore()
	m := newTestMachine(t, store, clock)
	require.NoError(t, m.Begin())
	_, err := m.Confirm(context.Background(), Target{Location: "EAST REMOTE"}, 1)
	require.NoError(t, err)

	clock.Advance(time.Hour)

	assert.Eventually(t, func() bool {
		return m.Status().State == Idle && store.len() == 0
	}, time.Second, 5*time.Millisecond)
}

// --- resume ---

func TestMachine_ResumeWithTimeLeft(t *testing.T) {
	now := start()
	store := newMemStore()
	store.put(Session{ID: "s1", Email: testIdentity.Email, Location: "EAST REMOTE", Hours: 2, StartedAt: now.Add(-time.Hour)})
	m := newTestMachine(t, store, clockwork.NewFakeClockAt(now))

	require.NoError(t, m.Resume(context.Background()))

	st := m.Status()
	assert.Equal(t, Active, st.State)
	require.NotNil(t, st.Session)
	assert.Equal(t, "s1", st.Session.ID)
	assert.Equal(t, 3600, st.RemainingSeconds)
}

func TestMachine_ResumeExpiredDeletes(t *testing.T) {
	now := start()
	store := newMemStore()
	store.put(Session{ID: "s1", Email: testIdentity.Email, Location: "EAST REMOTE", Hours: 1, StartedAt: now.Add(-time.Hour)})
	m := newTestMachine(t, store, clockwork.NewFakeClockAt(now))

	require.NoError(t, m.Resume(context.Background()))

	assert.Equal(t, Idle, m.Status().State)
	assert.Zero(t, store.len())
}

func TestMachine_ResumeNothingStored(t *testing.T) {
	m := newTestMachine(t, newMemStore(), clockwork.NewFakeClockAt(start()))

	require.NoError(t, m.Resume(context.Background()))
	assert.Equal(t, Idle, m.Status().State)
}

func TestMachine_CloseKeepsSession(t *testing.T) {
	clock := clockwork.NewFakeClockAt(start())
	store := newMemStore()
	m := newTestMachine(t, store, clock)
	require.NoError(t, m.Begin())
	_, err := m.Confirm(context.Background(), Target{Location: "EAST REMOTE"}, 2)
	require.NoError(t, err)

	m.Close()
	assert.Equal(t, Idle, m.Status().State)
	assert.Equal(t, 1, store.len())

	clock.Advance(30 * time.Minute)
	require.NoError(t, m.Resume(context.Background()))
	assert.Equal(t, 5400, m.Status().RemainingSeconds)
}
