package cmd

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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/faultlinehq/faultline/internal/api"
	"github.com/faultlinehq/faultline/internal/config"
	"github.com/faultlinehq/faultline/internal/contextstore"
	"github.com/faultlinehq/faultline/internal/engine"
	"github.com/faultlinehq/faultline/internal/metrics"
	"github.com/faultlinehq/faultline/internal/repo"
	"github.com/faultlinehq/faultline/internal/services"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analysis HTTP API with a Prometheus metrics endpoint.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := buildLogger(cfg, os.Stdout)
	logger.Info("starting faultline",
		slog.String("version", version),
		slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	cacheProvider, closeCache := buildCache(cfg, logger)
	defer closeCache()

	client := buildClient(cfg, cacheProvider, logger)

	ruleEngine, err := engine.NewRuleEngine(cfg.Rules.Path, logger)
	if err != nil {
		return fmt.Errorf("load rule pack: %w", err)
	}

	store := contextstore.NewStore(cfg.Incidents.MaxEntries, cfg.Incidents.TTL, logger)
	pipeline := engine.NewPipeline(logger, client, ruleEngine, store, cfg.Telemetry.Site, buildLimits(cfg))

	var sink services.ReportPublisher
	if reportSink := repo.NewReportSink(cfg.Sink.Endpoint, cfg.Sink.APIKey, cfg.Sink.Timeout, logger); reportSink.Enabled() {
		sink = reportSink
	}

	svc := services.NewAnalysisService(logger, pipeline, store, sink)

	handler := api.NewHandler(logger, svc, cacheProvider)
	server, err := api.NewServer(cfg.Server, handler.Routes())
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("api server listening", slog.String("address", server.Address()))
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("api server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("faultline stopped")
	return nil
}
