package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/indexer-sessiond/internal/collaborators"
	"github.com/adred-codev/indexer-sessiond/internal/config"
	"github.com/adred-codev/indexer-sessiond/internal/logging"
	"github.com/adred-codev/indexer-sessiond/internal/metrics"
	"github.com/adred-codev/indexer-sessiond/internal/session"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	bootLogger := logging.New(logging.Options{Level: "info", Format: "json"})
	bootLogger.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("starting sessiond")

	cfg, err := config.Load(&bootLogger)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	cfg.LogConfig(logger)

	reg := prometheus.NewRegistry()
	metricsRegistry := metrics.NewRegistry(reg)

	// Real DB/Mempool/Daemon/BP/PeerManager collaborators are supplied
	// by the indexer process this session layer is embedded in
	// (spec.md §1 Non-goals); standalone, sessiond runs against
	// no-op stand-ins so the binary is independently runnable.
	collab := collaborators.NewNoop()

	mgr, err := session.New(cfg, logger, metricsRegistry, collab, collab, collab, collab, collab)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct session manager")
	}

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan struct{})
	close(ready) // standalone: no upstream "indexer ready" signal to wait on

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- mgr.Serve(ctx, ready)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("session manager stopped unexpectedly")
		}
	}

	cancel()
	mgr.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("metrics server shutdown error")
	}

	logger.Info().Msg("sessiond stopped")
}
