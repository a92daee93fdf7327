package hook

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// EventsFileName is the JSON-lines file the workflow appends completion
// events to, inside the state directory.
const EventsFileName = "events.json"

// DefaultDebounce coalesces bursts of writes into one read.
const DefaultDebounce = 200 * time.Millisecond

// Watcher tails the events file and feeds decoded events to the hook.
// Dispatch is serialized; one goroutine reads, decodes, and handles.
type Watcher struct {
	path     string
	hook     *Hook
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	debounce time.Duration

	offset int64
	stop   chan struct{}
}

// NewWatcher builds a Watcher over stateDir's events file.
func NewWatcher(stateDir string, hook *Hook, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("hook: creating filesystem watcher: %w", err)
	}

	return &Watcher{
		path:     filepath.Join(stateDir, EventsFileName),
		hook:     hook,
		watcher:  fsw,
		logger:   logger,
		debounce: DefaultDebounce,
		stop:     make(chan struct{}),
	}, nil
}

// Start begins watching. Events already in the file are dispatched first so
// a restart does not lose completions written while the watcher was down.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("hook: creating state directory: %w", err)
	}

	// Watch the directory rather than the file so creation is seen too.
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("hook: watching %s: %w", dir, err)
	}

	w.drain(ctx)

	go w.run(ctx)
	return nil
}

// Stop halts the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}
}

func (w *Watcher) run(ctx context.Context) {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			w.Stop()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Debounce: restart the timer on every write in a burst.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.drain(ctx)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// drain reads events appended since the last offset and dispatches them.
func (w *Watcher) drain(ctx context.Context) {
	f, err := os.Open(w.path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("opening events file", zap.Error(err))
		}
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return
	}
	// Truncated or rewritten file: start over from the top.
	if info.Size() < w.offset {
		w.offset = 0
	}
	if _, err := f.Seek(w.offset, io.SeekStart); err != nil {
		return
	}

	reader := bufio.NewReader(f)
	for {
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil {
			if readErr == io.EOF {
				// Final line without a newline. Consume it only when it
				// already holds complete JSON; otherwise the writer is
				// mid-append and the next drain reads the line whole.
				trimmed := bytes.TrimSpace(line)
				if len(trimmed) > 0 && json.Valid(trimmed) {
					w.dispatch(ctx, trimmed)
					w.offset += int64(len(line))
				}
			} else {
				w.logger.Warn("reading events file", zap.Error(readErr))
			}
			return
		}
		w.offset += int64(len(line))
		w.dispatch(ctx, bytes.TrimSpace(line))
	}
}

// dispatch decodes one event line and hands it to the hook.
func (w *Watcher) dispatch(ctx context.Context, line []byte) {
	if len(line) == 0 {
		return
	}

	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		w.logger.Warn("skipping malformed event line", zap.Error(err))
		return
	}
	if ev.TaskID == "" {
		w.logger.Warn("skipping event without task_id")
		return
	}

	outcome := w.hook.HandleTaskCompletion(ctx, ev)
	w.logger.Info("dispatched event",
		zap.String("task_id", ev.TaskID),
		zap.Bool("committed", outcome.Committed),
		zap.String("reason", outcome.Reason))
}
