package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/taps-tracker-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/taps-tracker-service/internal/adapter/kafka"
	"github.com/couchcryptid/taps-tracker-service/internal/adapter/mapbox"
	"github.com/couchcryptid/taps-tracker-service/internal/adapter/sqlite"
	"github.com/couchcryptid/taps-tracker-service/internal/config"
	"github.com/couchcryptid/taps-tracker-service/internal/domain"
	"github.com/couchcryptid/taps-tracker-service/internal/ingest"
	"github.com/couchcryptid/taps-tracker-service/internal/observability"
	"github.com/couchcryptid/taps-tracker-service/internal/parking"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to read .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	table, err := config.LoadLocations(cfg.LocationsPath)
	if err != nil {
		logger.Error("failed to load location table", "error", err)
		os.Exit(1)
	}
	resolver := domain.NewResolver(table.Locations)

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, domain.CampusCenter, logger, metrics)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.NewSessionStore(ctx, cfg.SessionDBPath)
	if err != nil {
		logger.Error("failed to open session store", "error", err, "path", cfg.SessionDBPath)
		os.Exit(1)
	}
	tracker := parking.NewTracker(store, clockwork.NewRealClock(), logger, metrics)

	var sources []ingest.Source
	var fileSource *ingest.FileSource
	if cfg.SightingsPath != "" {
		fileSource = ingest.NewFileSource(cfg.SightingsPath)
		sources = append(sources, fileSource)
	}

	var (
		reader    *kafkaadapter.Reader
		writer    *kafkaadapter.Writer
		publisher ingest.Publisher
	)
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger, metrics)
		writer = kafkaadapter.NewWriter(cfg, logger)
		sources = append(sources, reader)
		publisher = writer
		logger.Info("kafka enabled", "brokers", cfg.KafkaBrokers, "source", cfg.KafkaSourceTopic, "sink", cfg.KafkaSinkTopic)
	}

	svc := ingest.New(sources, publisher, cfg.RefreshInterval, logger, metrics)

	api := httpadapter.NewAPI(svc, resolver, geocoder, table.ParkingLots, tracker, logger, metrics)
	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.ReadinessGroup{svc, store}, api, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ingestion.
	go func() {
		if err := svc.Run(ctx); err != nil {
			logger.Error("ingestion error", "error", err)
		}
	}()

	if fileSource != nil && cfg.SightingsWatch {
		go func() {
			if err := ingest.Watch(ctx, fileSource.Path(), svc.Trigger, logger); err != nil {
				logger.Error("feed watcher error", "error", err)
			}
		}()
	}

	if reader != nil {
		go func() {
			if err := reader.Run(ctx, svc.Trigger); err != nil {
				logger.Error("kafka reader error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	tracker.Close()
	if err := store.Close(); err != nil {
		logger.Error("session store close error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
