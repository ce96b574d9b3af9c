// Command itinerary-coordinator runs the itinerary generation coordinator
// as a single HTTP process: the Server accepts requests, the Coordinator's
// worker pool processes them in the background, grounded on
// examples/agent-with-async/main.go's embedded-mode wiring and graceful
// shutdown sequence (shut down the HTTP server, then cancel the worker
// context and wait for the workers to exit).
//
// Environment Variables:
//
//	ITINERARY_HTTP_ADDR            - listen address (default: ":8080")
//	ITINERARY_WORKER_CONCURRENCY   - worker pool size (default: 5)
//	ITINERARY_STORE_PROVIDER       - "memory" or "redis" (default: "memory")
//	ITINERARY_REDIS_URL, REDIS_URL - Redis connection URL, required when
//	                                  ITINERARY_STORE_PROVIDER=redis
//	ITINERARY_AI_USE_MOCK          - use the in-memory mock AI Invoker
//	                                  instead of calling Anthropic
//	ITINERARY_AI_API_KEY, ANTHROPIC_API_KEY - Anthropic API key, required
//	                                  unless ITINERARY_AI_USE_MOCK=true
//	LOG_LEVEL, LOG_FORMAT           - structured logging controls
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/ridetrace/itinerary-coordinator/internal/aiinvoker"
	"github.com/ridetrace/itinerary-coordinator/internal/config"
	"github.com/ridetrace/itinerary-coordinator/internal/coordinator"
	"github.com/ridetrace/itinerary-coordinator/internal/gmlog"
	"github.com/ridetrace/itinerary-coordinator/internal/httpapi"
	"github.com/ridetrace/itinerary-coordinator/internal/routedoc"
	"github.com/ridetrace/itinerary-coordinator/internal/store"
	"github.com/ridetrace/itinerary-coordinator/internal/telemetry"
)

func main() {
	startupStart := time.Now()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	if path := os.Getenv("ITINERARY_CONFIG_FILE"); path != "" {
		if err := config.LoadFile(path, cfg); err != nil {
			log.Fatalf("configuration error: %v", err)
		}
		if err := cfg.Validate(); err != nil {
			log.Fatalf("configuration error: %v", err)
		}
	}

	logger := gmlog.NewLogger(cfg.LogLevel, cfg.LogFormat)

	generationStore, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("store error: %v", err)
	}

	invoker := buildInvoker(cfg, logger)

	// Real profile/note CRUD is out of scope (spec.md §1 non-goals); these
	// in-memory providers are the seam a real deployment would replace with
	// a rider-profile service client and a notes-store client.
	profiles := coordinator.NewMemoryProfileProvider()
	notes := coordinator.NewMemoryNoteProvider()

	coordCfg := coordinator.Config{
		WorkerConcurrency:  cfg.Worker.Concurrency,
		JobQueueSize:       cfg.Worker.QueueSize,
		JobDeadline:        cfg.Worker.JobDeadline,
		CancelPollInterval: cfg.Worker.CancelPollInterval,
		RetryDelay:         cfg.Worker.RetryDelay,
		SpendWindow:        cfg.Spend.Window,
		SpendCap:           cfg.Spend.Cap,
		PerCallEstimate:    cfg.Spend.PerCallEstimate,
	}
	c := coordinator.New(generationStore, invoker, profiles, notes, logger, coordCfg)

	var otelProvider *telemetry.Provider
	if cfg.Telemetry.Enabled {
		otelProvider, err = telemetry.NewProvider(cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint)
		if err != nil {
			logger.Warn("telemetry disabled: provider setup failed", map[string]interface{}{"error": err.Error()})
		} else {
			c.SetTelemetry(otelProvider)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := otelProvider.Shutdown(shutdownCtx); err != nil {
					logger.Warn("telemetry shutdown error", map[string]interface{}{"error": err.Error()})
				}
			}()
		}
	}

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()
	c.Start(appCtx)

	srv := httpapi.NewServer(c, logger, httpapi.CORSConfig{
		Enabled:        cfg.Server.CORSEnabled,
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", httpapi.ViewerHeader},
		MaxAge:         600,
	})
	httpServer := srv.Listen(httpapi.ServerConfig{
		Addr:              cfg.Server.Addr,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
	})

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("itinerary coordinator listening", map[string]interface{}{
			"addr":           cfg.Server.Addr,
			"store_provider": cfg.Store.Provider,
			"worker_count":   cfg.Worker.Concurrency,
			"ai_mock":        cfg.AI.UseMock,
			"startup_ms":     time.Since(startupStart).Milliseconds(),
		})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.Error("http server error", map[string]interface{}{"error": err.Error()})
	case <-sigChan:
		logger.Info("shutting down gracefully", nil)
	}

	// Stop accepting new HTTP requests first, then let the worker pool
	// drain in-flight jobs before the process exits.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", map[string]interface{}{"error": err.Error()})
	}

	appCancel()
	c.Stop()

	logger.Info("shutdown complete", nil)
}

func buildStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Provider {
	case "redis":
		opt, err := goredis.ParseURL(cfg.Store.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := goredis.NewClient(opt)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		return store.NewRedisStore(client, &store.RedisStoreConfig{
			KeyPrefix: cfg.Store.KeyPrefix,
			RecordTTL: cfg.Store.RecordTTL,
			LedgerTTL: cfg.Store.LedgerTTL,
		}), nil
	default:
		return store.NewMemoryStore(), nil
	}
}

func buildInvoker(cfg *config.Config, logger *gmlog.SimpleLogger) aiinvoker.Invoker {
	if cfg.AI.UseMock {
		return aiinvoker.NewMockInvoker(sampleDemoRoute())
	}
	return aiinvoker.NewAnthropicInvoker(aiinvoker.AnthropicConfig{
		APIKey:    cfg.AI.APIKey,
		MaxTokens: int64(cfg.AI.MaxTokens),
		Logger:    logger,
	})
}

// sampleDemoRoute is the canned response ITINERARY_AI_USE_MOCK=true returns,
// so local development without an Anthropic API key still exercises the
// full generate -> poll -> export pipeline end to end.
func sampleDemoRoute() *routedoc.Document {
	return &routedoc.Document{
		Properties: routedoc.Properties{
			Title:           "Demo Mountain Loop",
			TotalDistanceKm: 42,
			TotalDurationH:  1.8,
			Highlights:      []string{"Switchback overlook", "Riverside rest stop"},
			Days:            1,
		},
		Features: []routedoc.Feature{
			{
				Kind: routedoc.KindLineString, Day: 1, Segment: 1,
				DistanceKm: 42, DurationH: 1.8,
				Coordinates: []routedoc.Coordinate{
					{Lon: 14.40, Lat: 50.07},
					{Lon: 14.45, Lat: 50.10},
					{Lon: 14.52, Lat: 50.14},
					{Lon: 14.48, Lat: 50.18},
				},
			},
		},
	}
}
