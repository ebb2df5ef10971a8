package source

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrInvalidRecord marks input that cannot be read as a record at all.
var ErrInvalidRecord = errors.New("invalid record")

// maxLineBytes bounds a single JSONL line.
const maxLineBytes = 16 << 20

// Batch is the outcome of loading one or more files.
type Batch struct {
	Records []Record
	Skipped int
}

func (b *Batch) merge(o Batch) {
	b.Records = append(b.Records, o.Records...)
	b.Skipped += o.Skipped
}

// Option configures a Loader.
type Option func(*Loader)

// WithMetricPrefix strips prefix from metric and event names on load.
func WithMetricPrefix(prefix string) Option {
	return func(l *Loader) {
		l.prefix = prefix
	}
}

// WithLogger sets the logger used for skipped-record warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// Loader reads records from .json and .jsonl files.
type Loader struct {
	prefix string
	logger *slog.Logger
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsRecordFile reports whether path has an extension the loader reads.
func IsRecordFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonl":
		return true
	}
	return false
}

// Load reads every path in order. Directories are walked for record files
// in lexical order.
func (l *Loader) Load(paths ...string) (Batch, error) {
	var out Batch
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return out, fmt.Errorf("loading %s: %w", p, err)
		}
		if !info.IsDir() {
			b, err := l.LoadFile(p)
			if err != nil {
				return out, err
			}
			out.merge(b)
			continue
		}
		files, err := recordFiles(p)
		if err != nil {
			return out, err
		}
		for _, f := range files {
			b, err := l.LoadFile(f)
			if err != nil {
				return out, err
			}
			out.merge(b)
		}
	}
	return out, nil
}

func recordFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsRecordFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// LoadFile reads one .json or .jsonl file.
func (l *Loader) LoadFile(path string) (Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return Batch{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		return l.decodeLines(base, f)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return Batch{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return l.decodeDocument(base, data)
}

func (l *Loader) decodeDocument(base string, data []byte) (Batch, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(data, &raws); err != nil {
			return Batch{}, fmt.Errorf("parsing %s: %w", base, err)
		}
		var b Batch
		for i, raw := range raws {
			l.add(&b, raw, base, i)
		}
		return b, nil
	}
	var b Batch
	l.add(&b, data, base, 0)
	return b, nil
}

func (l *Loader) decodeLines(base string, r io.Reader) (Batch, error) {
	var b Batch
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	index := 0
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		l.add(&b, line, base, index)
		index++
	}
	if err := sc.Err(); err != nil {
		return b, fmt.Errorf("reading %s: %w", base, err)
	}
	return b, nil
}

func (l *Loader) add(b *Batch, raw []byte, base string, index int) {
	rec, err := l.Decode(raw, fmt.Sprintf("%s#%d", base, index))
	if err != nil {
		l.logger.Warn("skipping record", "file", base, "index", index, "error", err)
		b.Skipped++
		return
	}
	b.Records = append(b.Records, rec)
}

// Decode parses one JSON record. defaultID is used when the record has no
// trace_id. Errors wrap ErrInvalidRecord.
func (l *Loader) Decode(raw []byte, defaultID string) (Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Record{}, fmt.Errorf("%w: not a JSON object", ErrInvalidRecord)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	id, ok := fields["trace_id"]
	switch {
	case !ok:
		rec.ID = defaultID
	case bytes.Equal(bytes.TrimSpace(id), []byte("null")):
		return Record{}, fmt.Errorf("%w: trace_id must be a string", ErrInvalidRecord)
	}
	if _, ok := fields["messages"]; ok && rec.Messages == nil {
		return Record{}, fmt.Errorf("%w: messages must be a list", ErrInvalidRecord)
	}
	l.normalize(&rec)
	return rec, nil
}

func (l *Loader) normalize(rec *Record) {
	rec.Metrics = rec.Metrics.TrimPrefix(l.prefix)
	events := rec.Events[:0]
	for _, e := range rec.Events {
		if e == nil {
			continue
		}
		e.Name = strings.TrimPrefix(e.Name, l.prefix)
		if e.Attributes == nil {
			e.Attributes = map[string]any{}
		}
		events = append(events, e)
	}
	rec.Events = events
}
