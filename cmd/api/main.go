// Command api starts the story analytics HTTP service.
//
// It records read events (POST /track), serves catalog-wide and per-story
// reports (GET /summary, GET /story/{id}) and generates new stories through
// an OpenAI-compatible API (POST /generate). Reports are cached in Redis when
// enabled, and story events flow through Kafka to invalidate them.
//
// Usage:
//
//	go run ./cmd/api [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/analytics/cache"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/gateway/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/gateway/router"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/generation"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/tracking"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/tracing"
)

// main loads config, opens the store, wires the optional Redis cache and
// Kafka event stream, builds the router and serves until SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting story analytics api",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"redis", cfg.Redis.Enabled,
		"kafka", cfg.Kafka.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	checker := health.NewChecker()

	// Store: postgres in production, sqlite for local development.
	store, procs, closeStore, err := storage.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()
	if err := storage.Migrate(ctx, store.DB(), store.Dialect()); err != nil {
		slog.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}
	checker.Register("store", health.PingCheck(store.Ping, health.StatusDown))
	slog.Info("store ready", "driver", cfg.Store.Driver)

	aggOpts := []analytics.Option{
		analytics.WithMetrics(m),
		analytics.WithWindowedBreakdowns(cfg.Analytics.WindowedBreakdowns),
		analytics.WithBreakdownLimits(cfg.Analytics.ReferrerLimit, cfg.Analytics.ReaderLimit),
	}
	if procs != nil && cfg.Analytics.UseProcedures {
		breaker := resilience.NewCircuitBreaker("procedures", resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Analytics.ProcedureBreaker.FailureThreshold,
			ResetTimeout:     cfg.Analytics.ProcedureBreaker.ResetTimeout,
			OnStateChange:    breakerGauge(m),
		})
		guarded := analytics.NewGuardedProcedures(procs, breaker)
		aggOpts = append(aggOpts, analytics.WithProcedures(guarded))
	}
	aggregator := analytics.NewAggregator(store, store, aggOpts...)
	if procs != nil && cfg.Analytics.UseProcedures {
		checker.RegisterWithTimeoutStatus("procedures", func(ctx context.Context) health.ComponentHealth {
			if !aggregator.ProceduresAvailable() {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit open, using manual ranking"}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		}, health.StatusDegraded)
	}

	// Redis report cache. Optional: without it every report is computed.
	var reports *cache.ReportCache
	if cfg.Redis.Enabled {
		rc, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, serving uncached reports", "error", err)
		} else {
			defer rc.Close()
			reports = cache.New(rc, cfg.Redis.CacheTTL, m)
			checker.RegisterWithTimeoutStatus("redis", health.PingCheck(rc.Ping, health.StatusDegraded), health.StatusDegraded)
			slog.Info("report cache enabled", "ttl", cfg.Redis.CacheTTL)
		}
	}

	// Story events: Kafka when enabled, otherwise in-process invalidation.
	var (
		sink      analytics.EventSink
		collector *analytics.Collector
	)
	switch {
	case cfg.Kafka.Enabled:
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.StoryEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer, 0)
		// Runs past the signal; Close drains it once the server is down.
		collector.Start(context.Background())
		sink = collector
		if reports != nil {
			consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.StoryEvents, analytics.InvalidateOnEvent(reports))
			go func() {
				if err := consumer.Start(ctx); err != nil {
					slog.Error("story event consumer error", "error", err)
				}
			}()
		}
		slog.Info("story events on kafka", "topic", cfg.Kafka.Topics.StoryEvents)
	case reports != nil:
		sink = analytics.NewLocalInvalidator(reports)
	}

	genBreaker := resilience.NewCircuitBreaker("completions", resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.Generation.Breaker.FailureThreshold,
		ResetTimeout:     cfg.Generation.Breaker.ResetTimeout,
		IsFailure:        generation.TripsBreaker,
		OnStateChange:    breakerGauge(m),
	})
	generator := generation.NewService(
		generation.NewClient(cfg.Generation.BaseURL, cfg.Generation.APIKey, cfg.Generation.Timeout+5*time.Second),
		store, genBreaker, sink,
		generation.Defaults{
			Model:        cfg.Generation.Model,
			Temperature:  cfg.Generation.Temperature,
			MaxTokens:    cfg.Generation.MaxTokens,
			SystemPrompt: cfg.Generation.SystemPrompt,
			Timeout:      cfg.Generation.Timeout,
		}, m)
	if cfg.Generation.APIKey == "" {
		slog.Warn("generation api key not set, /generate calls will be rejected upstream")
	}

	limiter := ratelimit.New(cfg.RateLimit.TrackPerMinute, time.Minute)
	go limiter.Run(ctx, 5*time.Minute)

	handler := router.New(router.Handlers{
		Track: tracking.NewHandler(tracking.NewRecorder(store, store, sink), m),
		Analytics: analytics.NewHandler(aggregator, store, reports, analytics.HandlerConfig{
			DefaultLimit: cfg.Analytics.DefaultLimit,
			MaxLimit:     cfg.Analytics.MaxLimit,
			Sampler:      tracing.Sampler{Enabled: cfg.Tracing.Enabled, Rate: cfg.Tracing.SampleRate},
		}),
		Generate: generation.NewHandler(generator),
		Health:   checker,
	}, router.Options{
		Metrics:        m,
		Limiter:        limiter,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, nil)
		defer shutdownMetrics(context.Background())
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("story analytics api listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	<-shutdownDone
	// Handlers have returned, so nothing tracks into the collector anymore.
	if collector != nil {
		collector.Close()
	}
	if reports != nil {
		hits, misses := reports.Stats()
		slog.Info("report cache totals", "hits", hits, "misses", misses)
	}
	slog.Info("story analytics api stopped")
}

func breakerGauge(m *metrics.Metrics) func(name string, to resilience.State) {
	return func(name string, to resilience.State) {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	}
}
