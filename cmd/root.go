// Package cmd defines the faultline command-line interface.
package cmd

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/faultlinehq/faultline/internal/cache"
	"github.com/faultlinehq/faultline/internal/config"
	"github.com/faultlinehq/faultline/internal/engine"
	"github.com/faultlinehq/faultline/internal/repo"
	"github.com/faultlinehq/faultline/internal/utils"
)

// All linker flags are set at release build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "faultline",
	Short: "Seeded root-cause analysis reports from Datadog telemetry.",
	Long: `Faultline turns an incident seed (a triggered monitor, a log query, or a
service plus time range) into a scored root-cause report. It compares the
incident window against the baseline immediately before it across logs,
metrics, spans, and deploy events, and ranks change-shaped evidence into
candidates with recommendations.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with the given context.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Path to configuration file (default "+config.DefaultPath+", env FAULTLINE_CONFIG)")

	rootCmd.AddCommand(fromMonitorCmd)
	rootCmd.AddCommand(fromLogsCmd)
	rootCmd.AddCommand(fromServiceCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// buildLogger wires the configured sink: the rotating file when one is
// configured, otherwise the given writer.
func buildLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	if cfg.Logging.File.Path != "" {
		w = utils.RotatingWriter(
			cfg.Logging.File.Path,
			cfg.Logging.File.MaxSizeMB,
			cfg.Logging.File.MaxBackups,
			cfg.Logging.File.MaxAgeDays,
			cfg.Logging.File.Compress,
		)
	}
	return utils.NewLoggerTo(w, cfg.Logging.Level, cfg.Logging.JSON)
}

// buildCache selects the configured cache backend. An unreachable valkey
// degrades to the noop provider with a warning so analyses still run.
func buildCache(cfg *config.Config, logger *slog.Logger) (cache.Provider, func()) {
	switch cfg.Cache.Backend {
	case "none":
		return cache.NoopProvider{}, func() {}
	case "valkey":
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable", slog.Any("error", err))
			return cache.NoopProvider{}, func() {}
		}
		return provider, func() { _ = provider.Close() }
	default:
		provider := cache.NewMemoryProvider(cfg.Cache.MaxKeys)
		return provider, func() { _ = provider.Close() }
	}
}

func buildClient(cfg *config.Config, cacheProvider cache.Provider, logger *slog.Logger) *repo.DatadogClient {
	return repo.NewDatadogClient(
		cfg.Telemetry.Site,
		cfg.Telemetry.APIKey,
		cfg.Telemetry.AppKey,
		cfg.Telemetry.ConnectTimeout,
		cfg.Telemetry.ReadTimeout,
		cfg.Telemetry.RateLimitRPS,
		cacheProvider,
		cfg.Telemetry.MonitorTTL,
		logger,
	)
}

func buildLimits(cfg *config.Config) engine.Limits {
	return engine.Limits{
		WindowMinutes:  cfg.Analysis.WindowMinutes,
		LogPageSize:    cfg.Telemetry.PageSize,
		LogMaxPages:    cfg.Telemetry.LogMaxPages,
		SpanPageSize:   cfg.Telemetry.PageSize,
		SpanMaxPages:   cfg.Telemetry.SpanMaxPages,
		ClusterLimit:   cfg.Analysis.ClusterLimit,
		CandidateLimit: cfg.Analysis.CandidateLimit,
		EventLimit:     cfg.Analysis.EventLimit,
	}
}
