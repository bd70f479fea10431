// Package watch turns file-system activity in a workspace into sync runs.
package watch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	eventBufferSize        = 64
	defaultDebounceTimeout = 100 * time.Millisecond
	watchedEvents          = notify.Write | notify.Create | notify.Remove | notify.Rename
)

// FilterFunc returns true for paths whose events should be dropped.
type FilterFunc func(path string) bool

// Watcher reports changed paths under a directory. Bursts of events for the
// same path are collapsed into one.
type Watcher struct {
	dir       string
	rawEvents chan notify.EventInfo
	events    chan string
	done      chan struct{}
	wg        sync.WaitGroup

	filter FilterFunc

	debounceMu      sync.Mutex
	pending         map[string]*time.Timer
	closed          bool
	debounceTimeout time.Duration
}

func NewWatcher(dir string) *Watcher {
	return &Watcher{
		dir:             dir,
		done:            make(chan struct{}),
		pending:         make(map[string]*time.Timer),
		debounceTimeout: defaultDebounceTimeout,
	}
}

func (w *Watcher) SetDebounceTimeout(timeout time.Duration) {
	w.debounceTimeout = timeout
}

// FilterPaths drops raw events before debouncing.
func (w *Watcher) FilterPaths(filter FilterFunc) {
	w.filter = filter
}

func (w *Watcher) Start(ctx context.Context) error {
	slog.Info("file watcher start", "dir", w.dir)

	w.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	w.events = make(chan string, eventBufferSize)

	if err := notify.Watch(w.dir+"/...", w.rawEvents, watchedEvents); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.filterEvents(ctx)
	return nil
}

func (w *Watcher) Stop() {
	close(w.done)
	if w.rawEvents != nil {
		notify.Stop(w.rawEvents)
	}
	w.wg.Wait()
	slog.Info("file watcher stopped")
}

// Events yields absolute paths. The channel closes once the watcher stops.
func (w *Watcher) Events() <-chan string {
	return w.events
}

func (w *Watcher) filterEvents(ctx context.Context) {
	defer func() {
		w.debounceMu.Lock()
		for p, timer := range w.pending {
			timer.Stop()
			delete(w.pending, p)
		}
		w.closed = true
		close(w.events)
		w.debounceMu.Unlock()

		w.wg.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.rawEvents:
			if !ok {
				return
			}
			if w.filter != nil && w.filter(event.Path()) {
				continue
			}
			// editors and copies write in bursts
			w.debounce(event.Path())
		}
	}
}

func (w *Watcher) debounce(p string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, ok := w.pending[p]; ok {
		timer.Stop()
	}
	w.pending[p] = time.AfterFunc(w.debounceTimeout, func() {
		w.flush(p)
	})
}

func (w *Watcher) flush(p string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if _, ok := w.pending[p]; !ok || w.closed {
		return
	}
	delete(w.pending, p)

	select {
	case w.events <- p:
		slog.Debug("file watcher", "path", p)
	default:
		slog.Warn("file watcher dropped", "reason", "channel full", "path", p)
	}
}
