// Package result stores analysis runs on disk and exports training
// datasets from them.
package result

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/signalnine/tracesift/internal/pipeline"
)

const (
	ResultsFile = "results.jsonl"
	MetaFile    = "meta.json"

	maxLineBytes = 64 << 20
)

func CreateRunDir(baseDir string) (string, error) {
	runsDir := filepath.Join(baseDir, "runs")
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	runDir := filepath.Join(runsDir, stamp)
	runDir, err := filepath.Abs(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

// WriteRun writes the run's metadata and one result per line, replacing
// any earlier contents.
func WriteRun(runDir string, meta *RunMeta, results []pipeline.Result) error {
	if err := WriteMeta(runDir, meta); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(runDir, ResultsFile))
	if err != nil {
		return fmt.Errorf("creating results: %w", err)
	}
	if err := writeLines(f, results); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// AppendResults adds results to the run's results file.
func AppendResults(runDir string, results []pipeline.Result) error {
	f, err := os.OpenFile(filepath.Join(runDir, ResultsFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening results: %w", err)
	}
	if err := writeLines(f, results); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeLines(w io.Writer, results []pipeline.Result) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i := range results {
		if err := enc.Encode(&results[i]); err != nil {
			return fmt.Errorf("encoding result %s: %w", results[i].TraceID, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}
	return nil
}

func WriteMeta(runDir string, meta *RunMeta) error {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("creating run dir: %w", err)
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling meta: %w", err)
	}
	return os.WriteFile(filepath.Join(runDir, MetaFile), data, 0o644)
}

func ReadMeta(runDir string) (*RunMeta, error) {
	data, err := os.ReadFile(filepath.Join(runDir, MetaFile))
	if err != nil {
		return nil, fmt.Errorf("reading meta: %w", err)
	}
	var meta RunMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing meta: %w", err)
	}
	return &meta, nil
}

// ReadRun loads every result stored in a run directory, in write order.
func ReadRun(runDir string) ([]pipeline.Result, error) {
	f, err := os.Open(filepath.Join(runDir, ResultsFile))
	if err != nil {
		return nil, fmt.Errorf("reading results: %w", err)
	}
	defer f.Close()

	var results []pipeline.Result
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var r pipeline.Result
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("parsing results line %d: %w", line, err)
		}
		results = append(results, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading results: %w", err)
	}
	return results, nil
}

// ExportDataset writes the normalized transcripts of SFT results, plus
// RLHF results when includeRLHF is set, as JSONL. Rejected results are
// never exported. It returns the number of lines written.
func ExportDataset(path string, results []pipeline.Result, includeRLHF bool) (int, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("creating export dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating export: %w", err)
	}
	bw := bufio.NewWriter(f)
	enc := json.NewEncoder(bw)
	n := 0
	for _, r := range results {
		if !exportable(r, includeRLHF) {
			continue
		}
		line := ExportLine{TraceID: r.TraceID, DatasetType: r.DatasetType, Messages: r.Messages}
		if err := enc.Encode(line); err != nil {
			f.Close()
			return n, fmt.Errorf("encoding %s: %w", r.TraceID, err)
		}
		n++
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return n, fmt.Errorf("writing export: %w", err)
	}
	return n, f.Close()
}

func exportable(r pipeline.Result, includeRLHF bool) bool {
	switch r.DatasetType {
	case pipeline.SFT:
		return len(r.Messages) > 0
	case pipeline.RLHF:
		return includeRLHF && len(r.Messages) > 0
	}
	return false
}
