// Command rosterd serves the roster HTTP API. Storage, blob, and upstream
// endpoints are selected through ROSTERCORE_* environment variables.
package main

import (
	"context"
	"errors"
	"expvar"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rostercore/internal/adapters/export"
	"rostercore/internal/blob"
	"rostercore/internal/core"
	"rostercore/internal/upstream"
)

const shutdownGrace = 10 * time.Second

// slogAdapter bridges the service logger contract onto log/slog.
type slogAdapter struct{ l *slog.Logger }

func (a slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	if err := run(logger); err != nil {
		logger.Error("rosterd exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine())
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	metrics, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		return err
	}

	service := core.NewService(store,
		core.WithLogger(slogAdapter{l: logger}),
		core.WithMetricsRecorder(metrics),
	)

	blobStore, err := blob.Open(ctx)
	if err != nil {
		return err
	}

	worker := export.NewWorker(service, blobStore, &export.MemoryAuditLog{})
	worker.Start()

	var fetcher *upstream.Fetcher
	if url := os.Getenv("ROSTERCORE_HEADCOUNT_URL"); url != "" {
		fetcher = upstream.NewFetcher(upstream.NewClient(url, nil))
	}

	mux := http.NewServeMux()
	handler := export.NewHTTPHandler(service, worker, fetcher)
	handler.Register(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())

	addr := os.Getenv("ROSTERCORE_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("rosterd listening", "addr", addr, "blob_driver", blobStore.Driver())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("rosterd shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := worker.Stop(shutdownCtx); err != nil {
		return err
	}
	if fetcher != nil {
		if err := fetcher.Stop(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}
