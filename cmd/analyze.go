package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/signalnine/tracesift/internal/report"
	"github.com/signalnine/tracesift/internal/result"
	"github.com/spf13/cobra"
)

var (
	flagFormat      string
	flagExport      string
	flagIncludeRLHF bool
)

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze PATH...",
		Short: "Analyze trace files or directories and store the run",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAnalyze,
	}
	cmd.Flags().StringVar(&flagFormat, "format", report.FormatTable, "report format (table, markdown, json, html)")
	cmd.Flags().StringVar(&flagExport, "export", "", "write the training dataset to this JSONL file")
	cmd.Flags().BoolVar(&flagIncludeRLHF, "include-rlhf", false, "include RLHF traces in the exported dataset")
	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	started := time.Now().UTC()

	batch, err := e.loader.Load(args...)
	if err != nil {
		return err
	}
	if batch.Skipped > 0 {
		fmt.Printf("Skipped %d invalid records\n", batch.Skipped)
	}

	runDir, err := result.CreateRunDir(e.cfg.Results.Dir)
	if err != nil {
		return err
	}
	fmt.Printf("Run directory: %s\n", runDir)
	fmt.Printf("Analyzing %d traces with scenario %s...\n", len(batch.Records), e.scenario.Name)

	results, err := e.pipeline.Run(cmd.Context(), batch.Records, e.cfg.Workers)
	for _, r := range results {
		printResult(r)
	}
	meta := &result.RunMeta{
		Scenario:  e.scenario.Name,
		StartedAt: started,
		Sources:   args,
		Total:     len(results),
		Skipped:   batch.Skipped,
		Counts:    result.Count(results),
	}
	if werr := result.WriteRun(runDir, meta, results); werr != nil {
		return werr
	}
	if err != nil {
		return err
	}

	if flagExport != "" {
		includeRLHF := flagIncludeRLHF || e.cfg.Export.IncludeRLHF
		n, err := result.ExportDataset(flagExport, results, includeRLHF)
		if err != nil {
			return err
		}
		fmt.Printf("Exported %d traces to %s\n", n, flagExport)
	}

	fmt.Println()
	return report.Write(results, flagFormat, os.Stdout)
}
