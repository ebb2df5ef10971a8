package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/signalnine/tracesift/internal/config"
	"github.com/signalnine/tracesift/internal/filter"
	"github.com/signalnine/tracesift/internal/pipeline"
	"github.com/signalnine/tracesift/internal/scenario"
	"github.com/signalnine/tracesift/internal/source"
	"github.com/spf13/cobra"
)

var (
	cfgFile          string
	flagVerbose      bool
	flagScenario     string
	flagStrict       bool
	flagWorkers      int
	flagKeepRejected bool
	flagMetricPrefix string
	flagResultsDir   string
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "tracesift",
		Short:        "Score and classify agent traces into training datasets",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "tracesift.yaml", "config file path")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&flagScenario, "scenario", "", "scenario to score against (overrides config)")
	pf.BoolVar(&flagStrict, "strict", false, "reject traces with missing required data")
	pf.IntVar(&flagWorkers, "workers", 0, "concurrent analysis workers (overrides config)")
	pf.BoolVar(&flagKeepRejected, "keep-rejected", false, "keep normalized transcripts for rejected traces")
	pf.StringVar(&flagMetricPrefix, "metric-prefix", "", "prefix stripped from metric and event names (overrides config)")
	pf.StringVar(&flagResultsDir, "results", "", "results directory (overrides config)")

	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newServeCmd())
	return root
}

// env is everything a command needs to analyze traces.
type env struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *scenario.Registry
	scenario scenario.Scenario
	pipeline *pipeline.Pipeline
	loader   *source.Loader
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(cfgFile, cmd.Flags().Changed("config"))
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, cmd)
	return cfg, nil
}

// applyOverrides copies explicitly set flags over the file values.
func applyOverrides(cfg *config.Config, cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("scenario") {
		cfg.Scenario = flagScenario
	}
	if flags.Changed("strict") {
		cfg.MissingData = string(filter.Lenient)
		if flagStrict {
			cfg.MissingData = string(filter.Strict)
		}
	}
	if flags.Changed("workers") && flagWorkers > 0 {
		cfg.Workers = flagWorkers
	}
	if flags.Changed("keep-rejected") {
		cfg.KeepRejectedTranscripts = flagKeepRejected
	}
	if flags.Changed("metric-prefix") {
		cfg.MetricPrefix = flagMetricPrefix
	}
	if flags.Changed("results") {
		cfg.Results.Dir = flagResultsDir
	}
}

func setup(cmd *cobra.Command) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger()

	registry, err := scenario.FromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building scenarios: %w", err)
	}
	s, ok := registry.Lookup(cfg.Scenario)
	if !ok {
		s = registry.Get(cfg.Scenario)
		logger.Warn("unknown scenario, using fallback", "requested", cfg.Scenario, "scenario", s.Name)
	}

	return &env{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		scenario: s,
		pipeline: pipeline.New(s,
			pipeline.WithLogger(logger),
			pipeline.WithRejectedTranscripts(cfg.KeepRejectedTranscripts),
		),
		loader: source.NewLoader(
			source.WithMetricPrefix(cfg.MetricPrefix),
			source.WithLogger(logger),
		),
	}, nil
}

func statusIcon(r pipeline.Result) string {
	if r.Passed() {
		return "PASS"
	}
	return "FAIL"
}

func printResult(r pipeline.Result) {
	fmt.Printf("[%s] %s: score=%.2f type=%s\n", statusIcon(r), r.TraceID, r.Score, r.DatasetType)
}
