package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/playlens/survey-orchestrator/internal/analyzer"
	"github.com/playlens/survey-orchestrator/internal/config"
	"github.com/playlens/survey-orchestrator/internal/health"
	"github.com/playlens/survey-orchestrator/internal/httpapi"
	"github.com/playlens/survey-orchestrator/internal/llm"
	"github.com/playlens/survey-orchestrator/internal/pipeline"
	"github.com/playlens/survey-orchestrator/internal/prompts"
	"github.com/playlens/survey-orchestrator/internal/streaming"
	"github.com/playlens/survey-orchestrator/internal/tracing"
	"github.com/playlens/survey-orchestrator/internal/validity"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	if err := tracing.Initialize(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
	}, logger); err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	// Prompt templates: built-in defaults, optional file override with
	// hot reload.
	registry := prompts.NewRegistry(logger)
	if path := cfg.Prompts.Path; path != "" {
		if err := registry.LoadFile(path); err != nil {
			logger.Fatal("Failed to load prompt templates", zap.Error(err))
		}
		watcher, err := config.NewWatcher(path, registry.LoadFile, logger)
		if err != nil {
			logger.Fatal("Failed to watch prompt templates", zap.Error(err))
		}
		watcher.Start(ctx)
	}

	backend := llm.NewHTTPClient(cfg.LLM, logger)
	classifier := validity.NewClassifier(backend, registry, logger)
	an := analyzer.New(backend, registry, cfg.Survey.MaxTailQuestions, logger)
	pipe := pipeline.New(classifier, an, backend, registry, pipeline.Options{
		MaxRetries:      cfg.Survey.MaxRetries,
		ReactionEnabled: cfg.Survey.ReactionEnabled,
	}, logger)

	hub := streaming.NewHub(cfg.Survey.RingCapacity)

	hm := health.NewManager(5*time.Second, logger)
	hm.Register(health.NewGatewayChecker(cfg.LLM.BaseURL, nil))
	hm.Register(health.NewPromptsChecker(func() bool {
		return registry.Current().Classify != ""
	}))

	mux := http.NewServeMux()
	httpapi.NewInteractionHandler(pipe, hub, logger).RegisterRoutes(mux)
	hm.RegisterRoutes(mux)

	if cfg.Metrics.Enabled {
		go func() {
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", promhttp.Handler())
			addr := ":" + strconv.Itoa(cfg.Metrics.Port)
			logger.Info("Metrics server listening", zap.String("addr", addr))
			if err := http.ListenAndServe(addr, metricsMux); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	// WriteTimeout stays zero: SSE responses are open-ended and the
	// per-run generation timeouts bound them instead.
	srv := &http.Server{
		Addr:        ":" + strconv.Itoa(cfg.Server.Port),
		Handler:     mux,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		logger.Info("Survey orchestrator listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
	cancel()
	logger.Info("Shutdown complete")
}
