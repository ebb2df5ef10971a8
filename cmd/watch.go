package cmd

import (
	"fmt"
	"sync"
	"time"

	"github.com/signalnine/tracesift/internal/pipeline"
	"github.com/signalnine/tracesift/internal/result"
	"github.com/signalnine/tracesift/internal/source"
	"github.com/spf13/cobra"
)

var flagNewOnly bool

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch INBOX",
		Short: "Analyze trace files as they are dropped into a directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatch,
	}
	cmd.Flags().BoolVar(&flagNewOnly, "new-only", false, "skip files already in the inbox")
	return cmd
}

// runLog appends results to a run directory and keeps its meta current.
type runLog struct {
	mu      sync.Mutex
	dir     string
	meta    *result.RunMeta
	results []pipeline.Result
}

func openRunLog(baseDir, scenarioName, origin string) (*runLog, error) {
	dir, err := result.CreateRunDir(baseDir)
	if err != nil {
		return nil, err
	}
	l := &runLog{
		dir: dir,
		meta: &result.RunMeta{
			Scenario:  scenarioName,
			StartedAt: time.Now().UTC(),
			Sources:   []string{origin},
			Counts:    result.Count(nil),
		},
	}
	if err := result.WriteRun(dir, l.meta, nil); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *runLog) add(results []pipeline.Result, skipped int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := result.AppendResults(l.dir, results); err != nil {
		return err
	}
	l.results = append(l.results, results...)
	l.meta.Total = len(l.results)
	l.meta.Skipped += skipped
	l.meta.Counts = result.Count(l.results)
	return result.WriteMeta(l.dir, l.meta)
}

func runWatch(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	inbox := args[0]
	ctx := cmd.Context()

	log, err := openRunLog(e.cfg.Results.Dir, e.scenario.Name, inbox)
	if err != nil {
		return err
	}
	fmt.Printf("Run directory: %s\n", log.dir)

	handle := func(path string) {
		batch, err := e.loader.LoadFile(path)
		if err != nil {
			e.logger.Warn("loading inbox file", "path", path, "error", err)
			return
		}
		results, err := e.pipeline.Run(ctx, batch.Records, e.cfg.Workers)
		if err != nil {
			e.logger.Warn("analysis interrupted", "path", path, "error", err)
		}
		for _, r := range results {
			printResult(r)
		}
		if err := log.add(results, batch.Skipped); err != nil {
			e.logger.Error("storing results", "path", path, "error", err)
		}
	}

	w := source.NewWatcher(inbox, handle, e.logger)
	if !flagNewOnly {
		if err := w.ScanExisting(); err != nil {
			return err
		}
	}
	fmt.Printf("Watching %s (scenario %s)\n", inbox, e.scenario.Name)
	return w.Run(ctx)
}
