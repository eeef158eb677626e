package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/couchcryptid/climate-risk-explorer/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/climate-risk-explorer/internal/adapter/kafka"
	"github.com/couchcryptid/climate-risk-explorer/internal/adapter/mapbox"
	"github.com/couchcryptid/climate-risk-explorer/internal/catalog"
	"github.com/couchcryptid/climate-risk-explorer/internal/config"
	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
	"github.com/couchcryptid/climate-risk-explorer/internal/explorer"
	"github.com/couchcryptid/climate-risk-explorer/internal/observability"
	"github.com/couchcryptid/climate-risk-explorer/internal/overlay"
	"github.com/couchcryptid/climate-risk-explorer/internal/pipeline"
	"github.com/couchcryptid/climate-risk-explorer/internal/region"
	"github.com/couchcryptid/climate-risk-explorer/internal/session"
)

// eventQueueCapacity bounds the interaction events waiting for Kafka.
const eventQueueCapacity = 4096

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	if err := run(cfg, logger, metrics); err != nil {
		logger.Error("explorer stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	opts, err := catalog.LoadOptions(cfg.CatalogFile)
	if err != nil {
		return err
	}

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout, "country", cfg.MapboxCountry)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	clock := clockwork.NewRealClock()
	sessions := session.NewStore(cfg.SessionTTL, clock, metrics, logger)

	// Interaction events are only queued when Kafka publishing is enabled.
	var (
		queue  *pipeline.Queue
		writer *kafkaadapter.Writer
		events explorer.EventPublisher
	)
	if cfg.KafkaEnabled {
		queue = pipeline.NewQueue(eventQueueCapacity, cfg.BatchFlushInterval, clock, metrics)
		writer = kafkaadapter.NewWriter(cfg, logger)
		events = queue
		logger.Info("interaction events enabled", "topic", cfg.KafkaEventsTopic, "brokers", cfg.KafkaBrokers)
	}

	svc := explorer.New(explorer.Deps{
		Catalog:  catalog.New(cfg.ClimateDir, cfg.EnergyDir, opts),
		Sessions: sessions,
		Overlays: overlay.NewRenderer(cfg.OverlayMaxDimension, cfg.OverlayCacheSize, metrics, logger),
		Geocoder: geocoder,
		Country:  cfg.MapboxCountry,
		Events:   events,
		Metrics:  metrics,
		Logger:   logger,
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// Start HTTP server first so /healthz answers while regions load.
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		regions, err := region.Load(cfg.RegionShapefile, cfg.RegionNameField)
		if err != nil {
			return fmt.Errorf("load regions: %w", err)
		}
		svc.SetRegions(regions)
		logger.Info("region boundaries ready", "file", cfg.RegionShapefile, "elapsed", time.Since(start))
		return nil
	})

	g.Go(func() error {
		sessions.Run(gctx)
		return nil
	})

	var publisher *pipeline.Pipeline
	if queue != nil {
		publisher = pipeline.New(queue, pipeline.NewTransformer(), writer, logger, metrics, cfg.BatchSize)
		g.Go(func() error {
			return publisher.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()
	if publisher != nil {
		if perr := publisher.CheckReadiness(context.Background()); perr != nil {
			logger.Info("event pipeline stopped", "status", perr.Error())
		}
	}
	if writer != nil {
		if cerr := writer.Close(); cerr != nil {
			logger.Error("kafka writer close error", "error", cerr)
		}
	}
	if err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
