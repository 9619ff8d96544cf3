package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/faultlinehq/faultline/internal/config"
	"github.com/faultlinehq/faultline/internal/engine"
	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/render"
)

// Flags shared by the one-shot analysis commands.
var (
	siteOverride string
	outputDir    string
	markdownOut  bool
)

var (
	monitorID       int64
	monitorTrigger  string
	monitorWindow   int
	monitorBaseline int
)

var (
	logsQuery    string
	logsAnchor   string
	logsWindow   int
	logsBaseline int
)

var (
	serviceName  string
	serviceEnv   string
	serviceStart string
	serviceEnd   string
	serviceMode  string
)

var fromMonitorCmd = &cobra.Command{
	Use:   "from-monitor",
	Short: "Analyze starting from a triggered Datadog monitor.",
	Long: `Analyze starting from a triggered Datadog monitor. The monitor's tags set
the scope and its query becomes the primary metric symptom.

Examples:
  faultline from-monitor --monitor-id 123456
  faultline from-monitor --monitor-id 123456 --trigger-ts 2026-03-14T10:00:00Z --markdown`,
	RunE: runFromMonitor,
}

var fromLogsCmd = &cobra.Command{
	Use:   "from-logs",
	Short: "Analyze starting from a Datadog logs query.",
	Long: `Analyze starting from a Datadog logs query. Scope is inferred from the
matching records and log volume doubles as the proxy symptom.`,
	RunE: runFromLogs,
}

var fromServiceCmd = &cobra.Command{
	Use:   "from-service",
	Short: "Analyze a service over an explicit time range.",
	Long: `Analyze a service over an explicit incident range. The baseline is the
window of equal length immediately before the range. Mode selects the span
aggregation: latency, errors, or throughput.`,
	RunE: runFromService,
}

func init() {
	addOutputFlags(fromMonitorCmd)
	fromMonitorCmd.Flags().Int64Var(&monitorID, "monitor-id", 0, "Monitor ID to analyze (required)")
	fromMonitorCmd.Flags().StringVar(&monitorTrigger, "trigger-ts", "", "Anchor timestamp (RFC3339 or epoch). Default: now")
	fromMonitorCmd.Flags().IntVar(&monitorWindow, "window-minutes", 60, "Incident window length in minutes")
	fromMonitorCmd.Flags().IntVar(&monitorBaseline, "baseline-minutes", 60, "Baseline window length in minutes")
	_ = fromMonitorCmd.MarkFlagRequired("monitor-id")

	addOutputFlags(fromLogsCmd)
	fromLogsCmd.Flags().StringVar(&logsQuery, "log-query", "", "Logs search query (required)")
	fromLogsCmd.Flags().StringVar(&logsAnchor, "anchor-ts", "", "Anchor timestamp (RFC3339 or epoch). Default: now")
	fromLogsCmd.Flags().IntVar(&logsWindow, "window-minutes", 30, "Incident window length in minutes")
	fromLogsCmd.Flags().IntVar(&logsBaseline, "baseline-minutes", 30, "Baseline window length in minutes")
	_ = fromLogsCmd.MarkFlagRequired("log-query")

	addOutputFlags(fromServiceCmd)
	fromServiceCmd.Flags().StringVar(&serviceName, "service", "", "Service to analyze (required)")
	fromServiceCmd.Flags().StringVar(&serviceEnv, "env", "", "Environment tag, e.g. prod")
	fromServiceCmd.Flags().StringVar(&serviceStart, "start", "", "Incident start (RFC3339 or epoch, required)")
	fromServiceCmd.Flags().StringVar(&serviceEnd, "end", "", "Incident end (RFC3339 or epoch, required)")
	fromServiceCmd.Flags().StringVar(&serviceMode, "mode", "", "Analysis mode: latency, errors or throughput (default latency)")
	_ = fromServiceCmd.MarkFlagRequired("service")
	_ = fromServiceCmd.MarkFlagRequired("start")
	_ = fromServiceCmd.MarkFlagRequired("end")
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&siteOverride, "site", "", "Datadog site (default: config or DD_SITE)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "faultline-out", "Directory for report.json and report.md")
	cmd.Flags().BoolVar(&markdownOut, "markdown", false, "Also render report.md")
}

func runFromMonitor(cmd *cobra.Command, _ []string) error {
	return oneShot(cmd.Context(), func(ctx context.Context, pipeline *engine.Pipeline) (models.Report, error) {
		return pipeline.AnalyzeFromMonitor(ctx, models.AnalyzeMonitorRequest{
			MonitorID:       monitorID,
			TriggerTs:       monitorTrigger,
			WindowMinutes:   monitorWindow,
			BaselineMinutes: monitorBaseline,
		})
	})
}

func runFromLogs(cmd *cobra.Command, _ []string) error {
	return oneShot(cmd.Context(), func(ctx context.Context, pipeline *engine.Pipeline) (models.Report, error) {
		return pipeline.AnalyzeFromLogs(ctx, models.AnalyzeLogsRequest{
			LogQuery:        logsQuery,
			AnchorTs:        logsAnchor,
			WindowMinutes:   logsWindow,
			BaselineMinutes: logsBaseline,
		})
	})
}

func runFromService(cmd *cobra.Command, _ []string) error {
	return oneShot(cmd.Context(), func(ctx context.Context, pipeline *engine.Pipeline) (models.Report, error) {
		return pipeline.AnalyzeFromService(ctx, models.AnalyzeServiceRequest{
			Service: serviceName,
			Env:     serviceEnv,
			Start:   serviceStart,
			End:     serviceEnd,
			Mode:    serviceMode,
		})
	})
}

// oneShot runs a single seeded analysis: build the pipeline from config,
// analyze, write report.json (and report.md when asked), and print the
// terminal summary. Logs go to stderr so stdout stays renderable.
func oneShot(ctx context.Context, analyze func(context.Context, *engine.Pipeline) (models.Report, error)) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if siteOverride != "" {
		cfg.Telemetry.Site = siteOverride
	}

	logger := buildLogger(cfg, os.Stderr)

	cacheProvider, closeCache := buildCache(cfg, logger)
	defer closeCache()

	ruleEngine, err := engine.NewRuleEngine(cfg.Rules.Path, logger)
	if err != nil {
		return fmt.Errorf("load rule pack: %w", err)
	}

	client := buildClient(cfg, cacheProvider, logger)
	pipeline := engine.NewPipeline(logger, client, ruleEngine, nil, cfg.Telemetry.Site, buildLimits(cfg))

	report, err := analyze(ctx, pipeline)
	if err != nil {
		return err
	}

	jsonPath := filepath.Join(outputDir, "report.json")
	if err := render.WriteJSON(report, jsonPath); err != nil {
		return err
	}

	if markdownOut {
		if err := render.WriteMarkdown(report, filepath.Join(outputDir, "report.md")); err != nil {
			return err
		}
	}

	if err := render.PrintReport(os.Stdout, report); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "\nReport written to %s\n", jsonPath)
	return nil
}
