// Package watch follows the message postbox of a filesystem store with
// fsnotify.
package watch

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/coord"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/domain"
)

// DefaultDebounce batches bursts of writes into one callback
const DefaultDebounce = 200 * time.Millisecond

// ChangeCallback receives the base names of entries created since the last
// call, sorted
type ChangeCallback func(names []string)

// Watcher reports new entries in one directory
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	callback ChangeCallback
	debounce time.Duration
	logger   *zap.Logger

	pending map[string]struct{}
	timer   *time.Timer
	mu      sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a watcher for dir, creating the directory if needed
func New(dir string, callback ChangeCallback, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	return &Watcher{
		watcher:  fw,
		dir:      dir,
		callback: callback,
		debounce: DefaultDebounce,
		logger:   logger.With(zap.String("component", "watch")),
		pending:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}, nil
}

// SetDebounce sets the debounce duration for batching file changes
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// Start begins watching for new entries
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("watch error", zap.Error(err))
			}
		}
	}()
}

// Stop stops watching and drops pending changes
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
		<-w.done
	}
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	_ = w.watcher.Close()
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	name := filepath.Base(event.Name)
	// in-flight temp files of the fs store
	if strings.HasPrefix(name, ".") {
		return
	}
	if _, err := os.Stat(event.Name); err != nil {
		return // renamed away
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[name] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	if w.callback == nil || len(pending) == 0 {
		return
	}
	names := make([]string, 0, len(pending))
	for name := range pending {
		names = append(names, name)
	}
	sort.Strings(names)
	w.callback(names)
}

// MessageSource reads the postbox
type MessageSource interface {
	GetMessages(ctx context.Context, q coord.MessageQuery) ([]domain.CoordinationMessage, error)
}

// tailer remembers what Tail has delivered. since only moves forward, and
// seen holds the messages at or after it.
type tailer struct {
	src       MessageSource
	milestone string
	fn        func(domain.CoordinationMessage)
	logger    *zap.Logger

	mu    sync.Mutex
	since time.Time
	seen  map[string]time.Time
}

func newTailer(src MessageSource, milestone string, fn func(domain.CoordinationMessage), logger *zap.Logger) *tailer {
	return &tailer{
		src:       src,
		milestone: milestone,
		fn:        fn,
		logger:    logger,
		since:     time.Now().UTC().Truncate(time.Millisecond),
		seen:      make(map[string]time.Time),
	}
}

// poll delivers every message posted since the last poll, oldest first
func (t *tailer) poll(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Since bounds the scan; the limit must not drop a burst's oldest messages.
	msgs, err := t.src.GetMessages(ctx, coord.MessageQuery{
		Milestone: t.milestone,
		Since:     t.since,
		Limit:     math.MaxInt32,
	})
	if err != nil {
		t.logger.Warn("read messages", zap.Error(err))
		return
	}
	// newest first on the wire
	newest := t.since
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		key := coord.MessageName(m.Timestamp, m.FromInstance, m.Type)
		if _, dup := t.seen[key]; dup {
			continue
		}
		ts := m.Timestamp.UTC().Truncate(time.Millisecond)
		t.seen[key] = ts
		if ts.After(newest) {
			newest = ts
		}
		t.fn(m)
	}

	if newest.After(t.since) {
		t.since = newest
		for key, ts := range t.seen {
			if ts.Before(newest) {
				delete(t.seen, key)
			}
		}
	}
}

// Tail calls fn for every message posted to the postbox under messagesDir
// after Tail starts, oldest first, until ctx is done
func Tail(ctx context.Context, messagesDir string, src MessageSource, milestone string,
	fn func(domain.CoordinationMessage), logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	t := newTailer(src, milestone, fn, logger)
	w, err := New(messagesDir, func([]string) { t.poll(ctx) }, logger)
	if err != nil {
		return err
	}
	w.Start(ctx)
	<-ctx.Done()
	w.Stop()
	return nil
}
