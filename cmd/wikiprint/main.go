package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielledeleo/wikiprint/internal/article"
	"github.com/danielledeleo/wikiprint/internal/config"
	"github.com/danielledeleo/wikiprint/internal/renderqueue"
	"github.com/danielledeleo/wikiprint/internal/server"
	"github.com/danielledeleo/wikiprint/internal/telemetry"
)

func main() {
	cfg := config.SetupConfig()

	registry := prometheus.NewRegistry()
	recorder := telemetry.New(registry, slog.Default())

	queue := renderqueue.New(renderqueue.Config{
		Concurrency:      cfg.RenderConcurrency,
		QueueTimeout:     cfg.QueueTimeout(),
		ExecutionTimeout: cfg.RenderTimeout(),
		MaxTaskCount:     cfg.MaxRenderQueueSize,
	}, recorder)

	articles := article.NewService(nil, cfg.RenderURLTemplate, cfg.ProbeURLTemplate, cfg.RequestHeaders)
	app := server.NewApp(cfg, queue, articles)

	router := mux.NewRouter().StrictSlash(true)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	app.RegisterRoutes(router)

	handler := server.SlogLoggingMiddleware(handlers.RecoveryHandler()(router))

	srv := &http.Server{
		Addr:    cfg.Host,
		Handler: handler,
	}

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("server starting", "url", "http://"+cfg.Host,
		"concurrency", cfg.RenderConcurrency, "max_queue", cfg.MaxRenderQueueSize)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server first (stop accepting new requests)
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Shutdown render queue (cancel waiting jobs, drain running renders)
	slog.Info("shutting down render queue...")
	if err := queue.Shutdown(ctx); err != nil {
		slog.Error("render queue shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
