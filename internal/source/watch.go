package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	debounceDefault = 200 * time.Millisecond
	watchWorkers    = 4
	watchQueueSize  = 200
)

// Watcher hands record files dropped into an inbox directory to a handler.
// Files ending in .tmp are ignored so writers can rename into place.
type Watcher struct {
	inbox    string
	handler  func(path string)
	debounce time.Duration
	workers  int
	logger   *slog.Logger
}

// NewWatcher creates a watcher for inbox.
func NewWatcher(inbox string, handler func(path string), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		inbox:    inbox,
		handler:  handler,
		debounce: debounceDefault,
		workers:  watchWorkers,
		logger:   logger,
	}
}

// ScanExisting hands every record file already in the inbox to the
// handler, in lexical order.
func (w *Watcher) ScanExisting() error {
	entries, err := os.ReadDir(w.inbox)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scanning inbox: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if p := filepath.Join(w.inbox, e.Name()); isInboxFile(p) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	for _, p := range paths {
		w.handle(p)
	}
	return nil
}

// Run watches the inbox until ctx is cancelled. Events are debounced on a
// single timer and drained by a fixed pool of workers.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.inbox); err != nil {
		return fmt.Errorf("watching %s: %w", w.inbox, err)
	}

	var mu sync.Mutex
	ready := make(map[string]bool)
	queue := make(chan string, watchQueueSize)

	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range queue {
				w.handle(path)
			}
		}()
	}

	flush := func() {
		mu.Lock()
		batch := make([]string, 0, len(ready))
		for p := range ready {
			batch = append(batch, p)
		}
		ready = make(map[string]bool)
		mu.Unlock()
		sort.Strings(batch)

		for _, p := range batch {
			select {
			case queue <- p:
			case <-ctx.Done():
				return
			}
		}
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	defer func() {
		timer.Stop()
		flush()
		close(queue)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-timer.C:
			flush()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if !isInboxFile(event.Name) {
				continue
			}
			mu.Lock()
			ready[event.Name] = true
			mu.Unlock()

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(path string) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("inbox handler panicked", "path", path, "panic", r)
		}
	}()
	w.handler(path)
}

func isInboxFile(path string) bool {
	return IsRecordFile(path) && !strings.HasSuffix(path, ".tmp")
}
