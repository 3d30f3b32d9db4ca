// Package ingest runs ingestion passes over the raw sighting feeds and serves
// the resulting snapshot. Each pass rebuilds the whole sighting set; it is
// never merged into the previous one.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/taps-tracker-service/internal/domain"
	"github.com/couchcryptid/taps-tracker-service/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Source yields raw feed lines. Every call returns the complete feed.
type Source interface {
	Fetch(ctx context.Context) ([]string, error)
}

// Publisher receives the sightings of every successful pass.
type Publisher interface {
	PublishSightings(ctx context.Context, sightings []domain.Sighting) error
}

// Snapshot is the immutable result of one ingestion pass.
type Snapshot struct {
	Sightings  []domain.Sighting
	Skipped    int
	IngestedAt time.Time
}

// MostRecent returns the newest sighting in the snapshot.
func (s *Snapshot) MostRecent() (domain.Sighting, bool) {
	return domain.MostRecent(s.Sightings)
}

// Service owns the current snapshot and re-ingests on demand or on an interval.
type Service struct {
	sources   []Source
	publisher Publisher
	interval  time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock

	snapshot atomic.Pointer[Snapshot]
	ready    atomic.Bool
	trigger  chan struct{}
}

// New creates a Service. A nil publisher disables publication and a zero
// interval disables periodic refresh.
func New(sources []Source, publisher Publisher, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Service {
	s := &Service{
		sources:   sources,
		publisher: publisher,
		interval:  interval,
		logger:    logger,
		metrics:   metrics,
		clock:     clockwork.NewRealClock(),
		trigger:   make(chan struct{}, 1),
	}
	s.snapshot.Store(&Snapshot{Sightings: []domain.Sighting{}})
	return s
}

// Snapshot returns the current snapshot. It is never nil.
func (s *Service) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// Sightings returns the current sighting set.
func (s *Service) Sightings() []domain.Sighting {
	return s.Snapshot().Sightings
}

// CheckReadiness returns nil once a pass has completed.
func (s *Service) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("no ingestion pass has completed yet")
	}
	return nil
}

// Trigger requests a refresh from Run. Requests made while one is pending
// are coalesced.
func (s *Service) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Refresh runs one ingestion pass over every source and swaps in the new
// snapshot. If any source fails the previous snapshot stays in place.
func (s *Service) Refresh(ctx context.Context) error {
	start := s.clock.Now()

	var lines []string
	for _, src := range s.sources {
		l, err := src.Fetch(ctx)
		if err != nil {
			s.metrics.IngestPasses.WithLabelValues("error").Inc()
			return fmt.Errorf("fetch feed: %w", err)
		}
		lines = append(lines, l...)
	}

	res := domain.Normalize(lines, s.logger)
	snap := &Snapshot{
		Sightings:  res.Sightings,
		Skipped:    res.Skipped,
		IngestedAt: res.IngestedAt,
	}
	s.snapshot.Store(snap)
	s.ready.Store(true)

	s.metrics.IngestPasses.WithLabelValues("success").Inc()
	s.metrics.SightingsIngested.Add(float64(len(snap.Sightings)))
	s.metrics.LinesSkipped.Add(float64(snap.Skipped))
	s.metrics.SnapshotSize.Set(float64(len(snap.Sightings)))
	s.metrics.IngestDuration.Observe(s.clock.Since(start).Seconds())

	s.logger.Info("ingestion pass complete",
		"sightings", len(snap.Sightings),
		"skipped", snap.Skipped,
		"lines", len(lines),
	)

	s.publish(ctx, snap.Sightings)
	return nil
}

// publish forwards the pass to the publisher. Failures are logged and do not
// fail the pass.
func (s *Service) publish(ctx context.Context, sightings []domain.Sighting) {
	if s.publisher == nil || len(sightings) == 0 {
		return
	}
	if err := s.publisher.PublishSightings(ctx, sightings); err != nil {
		s.metrics.PublishErrors.Inc()
		s.logger.Warn("publish sightings failed", "error", err, "count", len(sightings))
		return
	}
	s.metrics.SightingsPublished.Add(float64(len(sightings)))
}

// Run refreshes once, then again on every Trigger and refresh interval,
// until the context is cancelled. Failed passes are retried with backoff.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("ingestion started", "sources", len(s.sources), "refresh_interval", s.interval)
	s.metrics.IngestRunning.Set(1)
	defer s.metrics.IngestRunning.Set(0)

	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := s.clock.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.Chan()
	}

	backoff := initialBackoff
	for {
		if err := s.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("ingestion pass failed", "error", err, "retry_in", backoff)
			if !retry.SleepWithContext(ctx, backoff) {
				return nil
			}
			backoff = retry.NextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = initialBackoff

		select {
		case <-ctx.Done():
			s.logger.Info("ingestion stopping", "reason", ctx.Err())
			return nil
		case <-tick:
		case <-s.trigger:
		}
	}
}
