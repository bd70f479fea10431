package watch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/openmined/syncvault/internal/engine"
	"github.com/openmined/syncvault/internal/vfs"
	"github.com/openmined/syncvault/internal/workspace"
)

const defaultSettle = time.Second

type Syncer interface {
	Sync(ctx context.Context) (*engine.Result, error)
}

// Runner syncs once on start, then whenever the periodic timer fires or
// the watcher reports a change and the workspace has been quiet for the
// settle delay.
type Runner struct {
	syncer   Syncer
	watcher  *Watcher
	interval time.Duration
	settle   time.Duration
}

// NewRunner returns a runner. watcher may be nil for timer-only syncing.
func NewRunner(syncer Syncer, watcher *Watcher, interval time.Duration) *Runner {
	return &Runner{
		syncer:   syncer,
		watcher:  watcher,
		interval: interval,
		settle:   defaultSettle,
	}
}

func (r *Runner) SetSettleDelay(d time.Duration) {
	r.settle = d
}

// Run blocks until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	slog.Info("watch start", "interval", r.interval, "settle", r.settle)

	var events <-chan string
	if r.watcher != nil {
		if err := r.watcher.Start(ctx); err != nil {
			return err
		}
		defer r.watcher.Stop()
		events = r.watcher.Events()
	}

	r.runSync(ctx)

	// a timer, not a ticker, so slow syncs never queue up ticks
	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	settle := time.NewTimer(r.settle)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("watch stop")
			return nil

		case <-timer.C:
			r.runSync(ctx)
			timer.Reset(r.interval)

		case p, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			slog.Debug("watch change", "path", p)
			settle.Reset(r.settle)

		case <-settle.C:
			if !r.runSync(ctx) {
				settle.Reset(r.settle)
				continue
			}
			timer.Reset(r.interval)
		}
	}
}

// runSync returns false when another sync was in progress.
func (r *Runner) runSync(ctx context.Context) bool {
	res, err := r.syncer.Sync(ctx)
	switch {
	case errors.Is(err, engine.ErrSyncAlreadyRunning), errors.Is(err, workspace.ErrWorkspaceLocked):
		slog.Debug("watch sync skipped", "error", err)
		return false
	case errors.Is(err, context.Canceled):
	case err != nil:
		slog.Error("watch sync", "error", err)
	case res != nil && res.Aborted:
		slog.Warn("watch sync aborted", "branch", res.Branch)
	}
	return true
}

// WorkspaceFilter drops events for the metadata directory and ignored
// paths of ws.
func WorkspaceFilter(ws *workspace.Workspace, ignore *vfs.IgnoreList) FilterFunc {
	return func(p string) bool {
		rel, err := ws.RelPath(p)
		if err != nil || rel == "" || rel == "." {
			return true
		}
		return workspace.IsInternal(rel) || ignore.ShouldIgnore(rel)
	}
}
