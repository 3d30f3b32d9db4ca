package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/taps-tracker-service/internal/config"
	"github.com/couchcryptid/taps-tracker-service/internal/observability"
)

// Reader consumes raw sighting submissions from the source topic. Each
// message value holds one or more raw feed lines. Consumed lines are kept so
// that every Fetch returns the whole feed seen so far. The lines live only in
// memory, so every boot replays the topic from the first offset and never
// commits.
// It implements ingest.Source.
type Reader struct {
	reader        *kafkago.Reader
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	metrics       *observability.Metrics

	mu    sync.Mutex
	lines []string
}

// NewReader creates a reader for the configured source topic under a consumer
// group unique to this process.
func NewReader(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.KafkaBrokers,
		GroupID:     bootGroupID(cfg.KafkaGroupID),
		Topic:       cfg.KafkaSourceTopic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	return &Reader{
		reader:        r,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.BatchFlushInterval,
		logger:        logger,
		metrics:       metrics,
	}
}

// Fetch returns a copy of every line consumed so far.
func (r *Reader) Fetch(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out, nil
}

// Run consumes batches until ctx is cancelled, calling onBatch after each
// batch has been stored.
func (r *Reader) Run(ctx context.Context, onBatch func()) error {
	r.logger.Info("submission reader started",
		"topic", r.reader.Config().Topic,
		"group_id", r.reader.Config().GroupID,
		"batch_size", r.batchSize,
	)

	backoff := 200 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		msgs, err := r.fetchBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Error("fetch submissions failed", "error", err)
			if !retry.SleepWithContext(ctx, backoff) {
				return nil
			}
			backoff = retry.NextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = 200 * time.Millisecond

		r.store(msgs)
		onBatch()
	}
}

// fetchBatch blocks for the first message, then collects more until the
// batch is full or the flush interval passes.
func (r *Reader) fetchBatch(ctx context.Context) ([]kafkago.Message, error) {
	first, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch message: %w", err)
	}
	msgs := []kafkago.Message{first}

	flushCtx, cancel := context.WithTimeout(ctx, r.flushInterval)
	defer cancel()
	for len(msgs) < r.batchSize {
		msg, err := r.reader.FetchMessage(flushCtx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			break
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (r *Reader) store(msgs []kafkago.Message) {
	var added int
	r.mu.Lock()
	for _, msg := range msgs {
		lines := mapMessageToLines(msg)
		r.lines = append(r.lines, lines...)
		added += len(lines)
	}
	r.mu.Unlock()

	r.metrics.FeedMessages.Add(float64(len(msgs)))
	r.logger.Debug("submissions consumed", "messages", len(msgs), "lines", added)
}

// bootGroupID derives a fresh consumer group from prefix so that a restarted
// process starts again at the first offset.
func bootGroupID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessageToLines splits a submission message into raw feed lines.
func mapMessageToLines(msg kafkago.Message) []string {
	var lines []string
	for _, l := range strings.Split(string(msg.Value), "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
