// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"agrivoice/internal/assemble"
	"agrivoice/internal/common/config"
	"agrivoice/internal/common/database"
	"agrivoice/internal/common/logger"
	"agrivoice/internal/common/observability"
	"agrivoice/internal/fetch"
	"agrivoice/internal/fetch/providers"
	"agrivoice/internal/geo"
	"agrivoice/internal/llm"
	"agrivoice/internal/pipeline/registry"
	"agrivoice/internal/pipeline/router"
	"agrivoice/internal/retrieval"
	"agrivoice/internal/server"
	"agrivoice/internal/session"
	"agrivoice/internal/worker"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting advisory server...",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Pipeline registry (fatal on failure: without it no query can
	// be routed, so refusing to start is the only honest option) ---
	reg := registry.New(cfg.Server.PipelinesFile)
	defs, err := reg.Load()
	if err != nil {
		zapLog.Fatal("pipeline registry load failed", zap.Error(err))
	}
	zapLog.Info("Pipeline registry loaded",
		zap.Int("pipelines", len(defs)),
	)

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- LLM client ---
	completer := llm.NewClient(&llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.Timeout) * time.Millisecond,
	}, log)

	// --- Geo resolution ---
	geocoder := geo.NewMultiGeocoder(&geo.GeocoderConfig{
		OpenWeatherBaseURL: cfg.Geocoding.OpenWeatherBaseURL,
		OpenWeatherAPIKey:  cfg.Geocoding.OpenWeatherAPIKey,
		OpenMeteoBaseURL:   cfg.Geocoding.OpenMeteoBaseURL,
		Timeout:            time.Duration(cfg.Geocoding.Timeout) * time.Millisecond,
	}, log)
	resolver := geo.NewResolver(geocoder, completer,
		cfg.Geocoding.DefaultLatitude, cfg.Geocoding.DefaultLongitude, log)

	// --- Fetch plane ---
	planner := fetch.NewPlanner(completer, log)
	executor := fetch.NewExecutor(providers.New(cfg, completer, log), log)

	// --- Document retrieval ---
	var retriever retrieval.Retriever
	if len(cfg.Retrieval.Addresses) > 0 {
		esRetriever, err := retrieval.NewElasticsearchRetriever(&cfg.Retrieval, log)
		if err != nil {
			zapLog.Fatal("elasticsearch client failed", zap.Error(err))
		}
		retriever = esRetriever
		zapLog.Info("Elasticsearch retriever initialized",
			zap.String("index", cfg.Retrieval.Index),
		)
	} else {
		retriever = retrieval.NewNoOpRetriever()
		zapLog.Info("Document retrieval disabled, answering from external data only")
	}

	// --- Session bridge ---
	store := session.NewRedisStore(redis,
		time.Duration(cfg.Session.TTL)*time.Second, log)
	poller := session.NewPoller(store,
		config.GetDuration(cfg.Session.PollInterval),
		config.GetDuration(cfg.Session.PollCeiling), log)

	engine := worker.NewEngine(worker.EngineDeps{
		Router:    router.New(reg, completer, log),
		Resolver:  resolver,
		Planner:   planner,
		Executor:  executor,
		Assembler: assemble.New(),
		Retriever: retriever,
		LLM:       completer,
		Store:     store,
		History:   worker.NewHistoryRecorder(redis, log),
		Obs:       obs,
	}, log)

	srv := server.New(cfg.Server.ListenAddress, engine, store, poller,
		config.GetDuration(cfg.Session.PollInterval),
		config.GetDuration(cfg.Session.WorkerDeadline), log)

	go func() {
		if err := srv.Start(); err != nil {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	// --- Metrics / pprof listener ---
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening", zap.String("addr", cfg.Server.MetricsAddress))
		if err := http.ListenAndServe(cfg.Server.MetricsAddress, nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down http server", zap.Error(err))
	}

	zapLog.Info("Advisory server stopped gracefully")
}
