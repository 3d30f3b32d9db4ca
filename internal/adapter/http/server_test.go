package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/taps-tracker-service/internal/adapter/http"
	"github.com/couchcryptid/taps-tracker-service/internal/domain"
	"github.com/couchcryptid/taps-tracker-service/internal/ingest"
	"github.com/couchcryptid/taps-tracker-service/internal/observability"
	"github.com/couchcryptid/taps-tracker-service/internal/parking"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type fixedSnapshot struct {
	snap *ingest.Snapshot
}

func (f fixedSnapshot) Snapshot() *ingest.Snapshot { return f.snap }

// memStore keeps sessions in memory.
type memStore struct {
	mu        sync.Mutex
	sessions  map[string]parking.Session
	next      int
	err       error
	deleteErr error
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]parking.Session)}
}

func (s *memStore) Create(_ context.Context, sess parking.Session) (parking.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return parking.Session{}, s.err
	}
	s.next++
	sess.ID = fmt.Sprintf("session-%d", s.next)
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *memStore) Latest(_ context.Context, email string) (parking.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest parking.Session
	found := false
	for _, sess := range s.sessions {
		if sess.Email == email && (!found || sess.StartedAt.After(latest.StartedAt)) {
			latest, found = sess, true
		}
	}
	return latest, found, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.sessions, id)
	return nil
}

var (
	lotEast   = domain.NamedLocation{Name: "104 EAST REMOTE", Coordinates: domain.Coordinates{Lat: 36.9915, Lng: -122.0530}}
	lotCore   = domain.NamedLocation{Name: "112 CORE WEST STRUCTURE", Coordinates: domain.Coordinates{Lat: 36.9972, Lng: -122.0637}}
	lotHahn   = domain.NamedLocation{Name: "101 HAHN STUDENT SERVICES", Coordinates: domain.Coordinates{Lat: 36.9978, Lng: -122.0566}}
	testTable = []domain.NamedLocation{lotEast, lotCore, lotHahn}
)

func at(hour, minute int) time.Time {
	return time.Date(2024, time.March, 5, hour, minute, 0, 0, time.UTC)
}

func testSightings() []domain.Sighting {
	return []domain.Sighting{
		{CitationNumber: "100", LocationLabel: "104 EAST REMOTE", OccurredAt: at(16, 0)},
		{CitationNumber: "101", LocationLabel: "112 CORE WEST STRUCTURE", OccurredAt: at(17, 0)},
		{CitationNumber: "102", LocationLabel: "104 EAST REMOTE", OccurredAt: at(18, 0)},
		{CitationNumber: "103", LocationLabel: "101 HAHN STUDENT SERVICES", OccurredAt: at(19, 0)},
		{CitationNumber: "104", LocationLabel: "OFF CAMPUS", OccurredAt: at(15, 0)},
	}
}

type testEnv struct {
	srv     *httpadapter.Server
	store   *memStore
	clock   *clockwork.FakeClock
	metrics *observability.Metrics
}

func newTestEnv(t *testing.T, readyErr error, sightings []domain.Sighting) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	store := newMemStore()
	clock := clockwork.NewFakeClockAt(at(20, 0))
	tracker := parking.NewTracker(store, clock, logger, metrics)
	t.Cleanup(tracker.Close)

	snap := &ingest.Snapshot{Sightings: sightings, Skipped: 2, IngestedAt: at(20, 0)}
	api := httpadapter.NewAPI(fixedSnapshot{snap}, domain.NewResolver(testTable), nil, testTable, tracker, logger, metrics)
	return &testEnv{
		srv:     httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, api, logger),
		store:   store,
		clock:   clock,
		metrics: metrics,
	}
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	e.srv.ServeHTTP(rec, httptest.NewRequest(method, target, r))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthzReturns200(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	env := newTestEnv(t, fmt.Errorf("not ready yet"), nil)
	rec := env.do(http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestReadinessGroup(t *testing.T) {
	ok := &mockReadiness{}
	failing := &mockReadiness{err: fmt.Errorf("database locked")}

	assert.NoError(t, httpadapter.ReadinessGroup{ok, ok}.CheckReadiness(context.Background()))
	assert.EqualError(t, httpadapter.ReadinessGroup{ok, failing}.CheckReadiness(context.Background()), "database locked")
}
