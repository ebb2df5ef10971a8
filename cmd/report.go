package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/signalnine/tracesift/internal/report"
	"github.com/spf13/cobra"
)

var flagReportFormat string

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-dir]",
		Short: "Render the leaderboard of a stored run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runDir := filepath.Join(cfg.Results.Dir, "latest")
			if len(args) > 0 {
				runDir = args[0]
			}
			resolved, err := filepath.EvalSymlinks(runDir)
			if err != nil {
				return fmt.Errorf("resolving run dir: %w", err)
			}
			return report.Generate(resolved, flagReportFormat, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&flagReportFormat, "format", report.FormatTable, "output format (table, markdown, json, html)")
	return cmd
}
