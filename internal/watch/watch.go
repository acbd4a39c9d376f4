// Package watch monitors a drop directory for pasted request files. A .txt
// file dropped into the directory is parsed as a quote request and submitted
// as a job, giving newsroom users a no-HTTP intake path.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/snarg/pullquote/internal/request"
)

// SubmitFunc hands a parsed request to the job layer.
type SubmitFunc func(ctx context.Context, req *request.Request)

// Watcher tails a drop directory for request files.
type Watcher struct {
	dir    string
	submit SubmitFunc
	log    zerolog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	filesProcessed atomic.Int64
	filesSkipped   atomic.Int64
}

func New(dir string, submit SubmitFunc, log zerolog.Logger) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		dir:            dir,
		submit:         submit,
		log:            log.With().Str("component", "watcher").Logger(),
		ctx:            ctx,
		cancel:         cancel,
		debounceTimers: make(map[string]*time.Timer),
	}
}

// Start begins watching the drop directory.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return err
	}
	w.watcher = fw

	w.log.Info().Str("watch_dir", w.dir).Msg("request watcher started")
	go w.loop()
	return nil
}

// Stop closes the watcher.
func (w *Watcher) Stop() {
	w.cancel()
	if w.watcher != nil {
		w.watcher.Close()
	}
	w.log.Info().
		Int64("files_processed", w.filesProcessed.Load()).
		Int64("files_skipped", w.filesSkipped.Load()).
		Msg("request watcher stopped")
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !strings.HasSuffix(strings.ToLower(event.Name), ".txt") {
				continue
			}
			w.scheduleProcess(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleProcess debounces file processing by 500ms. This coalesces rapid
// Create+Write events and ensures the file is fully written before reading.
func (w *Watcher) scheduleProcess(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if t, ok := w.debounceTimers[path]; ok {
		t.Reset(500 * time.Millisecond)
		return
	}

	w.debounceTimers[path] = time.AfterFunc(500*time.Millisecond, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()

		w.processFile(path)
	})
}

func (w *Watcher) processFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("failed to read request file")
		return
	}

	req, err := request.Parse(string(data))
	if err != nil {
		w.filesSkipped.Add(1)
		w.log.Warn().Err(err).Str("path", path).Msg("invalid request file, skipping")
		return
	}

	w.log.Info().
		Str("file", filepath.Base(path)).
		Str("url", req.URL).
		Int("moments", len(req.Moments)).
		Msg("request file accepted")
	w.submit(w.ctx, req)
	w.filesProcessed.Add(1)

	// Mark the file as consumed so a restart does not resubmit it.
	if err := os.Rename(path, path+".done"); err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("failed to mark request file done")
	}
}
