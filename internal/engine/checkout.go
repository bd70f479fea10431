package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openmined/syncvault/internal/objstore"
	"github.com/openmined/syncvault/internal/reconcile"
)

// Checkout switches the workspace to branch. With create, branch is made at
// the current head and nothing on disk changes. Otherwise the workspace
// must be clean and is forced to match the head of branch.
func (e *Engine) Checkout(ctx context.Context, branch string, create bool) (*reconcile.Report, error) {
	if err := objstore.ValidBranch(branch); err != nil {
		return nil, err
	}
	if !e.muSync.TryLock() {
		return nil, ErrSyncAlreadyRunning
	}
	defer e.muSync.Unlock()

	if err := e.ws.Lock(); err != nil {
		return nil, err
	}
	defer func() {
		if err := e.ws.Unlock(); err != nil {
			slog.Warn("workspace unlock", "error", err)
		}
	}()

	if create {
		return &reconcile.Report{}, e.createBranch(ctx, branch)
	}
	return e.switchBranch(ctx, branch)
}

func (e *Engine) createBranch(ctx context.Context, branch string) error {
	if err := e.transport.PullLatest(ctx, branch); err != nil {
		return err
	}
	if _, ok, err := e.index.ReadRef(branch); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %s", ErrBranchExists, branch)
	}

	baseline, err := e.index.LoadWorkspaceIndex()
	if err != nil {
		return err
	}
	if baseline != nil {
		if err := e.index.WriteRef(branch, baseline.ID); err != nil {
			return err
		}
		if err := e.transport.PushLatest(ctx, branch); err != nil {
			return fmt.Errorf("push %s: %w", branch, err)
		}
	}

	if err := e.index.WriteHead(branch); err != nil {
		return err
	}
	slog.Info("checkout create", "branch", branch)
	return nil
}

func (e *Engine) switchBranch(ctx context.Context, branch string) (*reconcile.Report, error) {
	baseline, err := e.index.LoadWorkspaceIndex()
	if err != nil {
		return nil, err
	}
	local, err := e.scan(ctx, baseline)
	if err != nil {
		return nil, err
	}
	if pending := Pending(baseline, local); len(pending) > 0 {
		return nil, fmt.Errorf("%w: %d pending", ErrDirtyWorkspace, len(pending))
	}

	if err := e.transport.PullLatest(ctx, branch); err != nil {
		return nil, err
	}
	target, err := e.index.LoadBranch(ctx, branch)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBranch, branch)
	}

	report, err := e.reconciler.Reconcile(ctx, liveView(baseline), target, true)
	if err != nil {
		return report, err
	}
	if err := e.index.SaveWorkspaceIndex(target); err != nil {
		return report, err
	}
	if err := e.index.WriteHead(branch); err != nil {
		return report, err
	}
	slog.Info("checkout", "branch", branch, "head", target.ID)
	return report, nil
}
