// Package engine runs the sync pipeline of a workspace: pull, scan, classify
// against the last synced snapshot, resolve, commit, reconcile and push.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openmined/syncvault/internal/catalog"
	"github.com/openmined/syncvault/internal/classify"
	"github.com/openmined/syncvault/internal/config"
	"github.com/openmined/syncvault/internal/crypto"
	"github.com/openmined/syncvault/internal/index"
	"github.com/openmined/syncvault/internal/objstore"
	"github.com/openmined/syncvault/internal/reconcile"
	"github.com/openmined/syncvault/internal/resolve"
	"github.com/openmined/syncvault/internal/snapshot"
	"github.com/openmined/syncvault/internal/transport"
	"github.com/openmined/syncvault/internal/vfs"
	"github.com/openmined/syncvault/internal/workspace"
)

var (
	ErrSyncAlreadyRunning = errors.New("sync already running")
	ErrDirtyWorkspace     = errors.New("workspace has unsynced changes")
	ErrUnknownBranch      = errors.New("unknown branch")
	ErrBranchExists       = errors.New("branch already exists")
)

type Engine struct {
	ws         *workspace.Workspace
	cfg        *config.Config
	work       *vfs.FS
	transport  transport.Transport
	catalog    *catalog.Catalog
	index      *index.Manager
	resolver   *resolve.Resolver
	reconciler *reconcile.Reconciler
	ignore     *vfs.IgnoreList

	muSync  sync.Mutex
	running atomic.Bool
	muLast  sync.RWMutex
	last    *Result
}

type options struct {
	strategy resolve.Strategy
}

type Option func(*options)

// WithStrategy replaces the automatic conflict policy.
func WithStrategy(s resolve.Strategy) Option {
	return func(o *options) {
		o.strategy = s
	}
}

// Open builds the transport cfg selects and returns an engine using it.
func Open(ctx context.Context, ws *workspace.Workspace, cfg *config.Config, opts ...Option) (*Engine, error) {
	tr, err := transport.New(ctx, cfg, ws.RemotesFS())
	if err != nil {
		return nil, err
	}
	return New(ws, cfg, tr, opts...)
}

// New wires an engine for an initialized workspace. The key and the root
// are checked here, before any file or network I/O.
func New(ws *workspace.Workspace, cfg *config.Config, tr transport.Transport, opts ...Option) (*Engine, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	cipher, err := crypto.NewCipherFromHex(cfg.Key)
	if err != nil {
		return nil, err
	}
	if err := ws.CheckRoot(); err != nil {
		return nil, err
	}
	if err := ws.Setup(); err != nil {
		return nil, err
	}

	cat, err := catalog.Open(ws.CatalogPath())
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	work := ws.FS()
	store := objstore.New(ws.RemotesFS(), cipher)
	mgr, err := index.NewManager(store, work, ws.MetaFS(), cfg.EnvironmentID,
		index.WithCatalog(cat),
		index.WithWorkers(cfg.Workers),
	)
	if err != nil {
		cat.Close()
		return nil, err
	}

	mat := reconcile.NewMaterializer(work, store)
	e := &Engine{
		ws:         ws,
		cfg:        cfg,
		work:       work,
		transport:  tr,
		catalog:    cat,
		index:      mgr,
		resolver:   resolve.New(work, mat, workspace.MetaDir, o.strategy),
		reconciler: reconcile.New(work, mat, workspace.MetaDir),
		ignore:     vfs.LoadIgnoreList(work, cfg.Ignore...),
	}

	if err := e.initHead(); err != nil {
		cat.Close()
		return nil, err
	}
	return e, nil
}

// initHead points HEAD at the configured branch on first use.
func (e *Engine) initHead() error {
	ok, err := e.ws.MetaFS().Exists("HEAD")
	if err != nil || ok {
		return err
	}
	return e.index.WriteHead(e.cfg.Branch)
}

func (e *Engine) Close() error {
	return e.catalog.Close()
}

func (e *Engine) Index() *index.Manager {
	return e.index
}

func (e *Engine) Transport() transport.Transport {
	return e.transport
}

// Running reports whether a sync is in progress.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// LastResult returns the outcome of the most recent sync, or nil.
func (e *Engine) LastResult() *Result {
	e.muLast.RLock()
	defer e.muLast.RUnlock()
	return e.last
}

// Sync runs one full sync of the current branch. A user abort during
// conflict resolution is not an error: the result has Aborted set and
// nothing was committed.
func (e *Engine) Sync(ctx context.Context) (*Result, error) {
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

	e.running.Store(true)
	defer e.running.Store(false)

	res, err := e.runSync(ctx)
	res.finish(err)

	e.muLast.Lock()
	e.last = res
	e.muLast.Unlock()
	return res, err
}

func (e *Engine) runSync(ctx context.Context) (*Result, error) {
	tStart := time.Now()
	res := &Result{StartedAt: tStart}

	branch, err := e.index.ReadHead()
	if err != nil {
		return res, fmt.Errorf("read head: %w", err)
	}
	res.Branch = branch

	if err := e.pull(ctx, branch); err != nil {
		return res, err
	}
	tPull := time.Since(tStart)

	tlocal := time.Now()
	baseline, err := e.index.LoadWorkspaceIndex()
	if err != nil {
		return res, err
	}
	local, err := e.scan(ctx, baseline)
	if err != nil {
		return res, err
	}
	localChanged := !snapshot.SameFiles(local, baseline)
	tLocal := time.Since(tlocal)

	remote, err := e.remoteHead(ctx, branch)
	if err != nil {
		return res, err
	}

	tcommit := time.Now()
	switch {
	case remote == nil:
		err = e.commitLocal(ctx, res, branch, local, baseline, localChanged)
	case baseline != nil && (remote.ID == baseline.ID || index.Supersedes(baseline, remote)):
		err = e.commitLocal(ctx, res, branch, local, baseline, localChanged)
	default:
		var behind bool
		behind, err = e.remoteBehind(ctx, remote, baseline)
		if err != nil {
			break
		}
		if behind {
			// an earlier push did not land; republish what we have
			slog.Info("sync remote behind", "branch", branch, "remote", remote.ID, "baseline", baseline.ID)
			err = e.commitLocal(ctx, res, branch, local, baseline, localChanged)
			break
		}
		err = e.merge(ctx, res, branch, baseline, local, remote, localChanged)
	}
	if err != nil {
		return res, err
	}

	if res.Changed() {
		slog.Info("sync",
			"branch", branch,
			"head", res.Head,
			"records", res.Records,
			"uploaded", res.Uploaded,
			"materialized", res.Materialized,
			"deleted", res.Deleted,
			"quarantined", res.Quarantined,
			"keptBoth", res.KeptBoth,
			"fastForward", res.FastForward,
			"aborted", res.Aborted,
			"tsPull", tPull,
			"tsLocal", tLocal,
			"tsCommit", time.Since(tcommit),
			"tsTotal", time.Since(tStart),
		)
	}
	return res, nil
}

// pull clones the whole remote into an empty mirror, otherwise fetches the
// branch being synced.
func (e *Engine) pull(ctx context.Context, branch string) error {
	refs, err := e.index.ListBranches()
	if err != nil {
		return err
	}
	if len(refs) > 0 {
		return e.transport.PullLatest(ctx, branch)
	}

	exists, err := e.transport.RemoteIndexExists(ctx)
	if err != nil || !exists {
		return err
	}
	slog.Info("sync clone", "transport", e.transport.Name())
	return e.transport.CloneAll(ctx)
}

func (e *Engine) scan(ctx context.Context, baseline *snapshot.Snapshot) (*snapshot.Snapshot, error) {
	files, err := e.work.FindFiles(vfs.FindOptions{
		Include:      e.cfg.Include,
		Ignore:       e.ignore,
		SkipPrefixes: []string{workspace.MetaDir},
	})
	if err != nil {
		return nil, fmt.Errorf("scan workspace: %w", err)
	}
	return e.index.BuildLocalSnapshot(ctx, baseline, files)
}

// remoteHead is the head of branch, or the newest snapshot when the mirror
// holds indexes but no ref at all.
func (e *Engine) remoteHead(ctx context.Context, branch string) (*snapshot.Snapshot, error) {
	remote, err := e.index.LoadBranch(ctx, branch)
	if err != nil || remote != nil {
		return remote, err
	}
	refs, err := e.index.ListBranches()
	if err != nil || len(refs) > 0 {
		return nil, err
	}
	return e.index.Latest(ctx)
}

func (e *Engine) remoteBehind(ctx context.Context, remote, baseline *snapshot.Snapshot) (bool, error) {
	if baseline == nil {
		return false, nil
	}
	g, err := e.index.Graph(ctx)
	if err != nil {
		return false, err
	}
	return g.IsAncestor(remote.ID, baseline.ID), nil
}

// commitLocal publishes local on top of baseline. Without local changes it
// only makes sure the branch points at baseline.
func (e *Engine) commitLocal(ctx context.Context, res *Result, branch string, local, baseline *snapshot.Snapshot, changed bool) error {
	if !changed {
		if baseline == nil {
			return nil
		}
		res.Head = baseline.ID
		id, ok, err := e.index.ReadRef(branch)
		if err != nil {
			return err
		}
		if ok && id == baseline.ID {
			return nil
		}
		if err := e.index.WriteRef(branch, baseline.ID); err != nil {
			return err
		}
		return e.push(ctx, res, branch)
	}

	n, err := e.index.PersistObjects(ctx, local, baseline, nil)
	res.Uploaded = n
	if err != nil {
		return err
	}
	if err := e.index.Persist(local, branch); err != nil {
		return err
	}
	if err := e.index.SaveWorkspaceIndex(local); err != nil {
		return err
	}
	res.Committed = true
	res.Head = local.ID
	return e.push(ctx, res, branch)
}

// merge settles a diverged remote: classify against the common ancestor,
// resolve, then either fast-forward to the remote or commit a merge.
func (e *Engine) merge(ctx context.Context, res *Result, branch string, baseline, local, remote *snapshot.Snapshot, changed bool) error {
	ancestor, err := e.ancestor(ctx, baseline, remote)
	if err != nil {
		return err
	}

	records := classify.Classify(ancestor, local, remote)
	res.Records = len(records)

	outcome, err := e.resolver.Resolve(ctx, records)
	if outcome != nil {
		res.addOutcome(outcome)
	}
	if errors.Is(err, resolve.ErrAborted) {
		res.Aborted = true
		return nil
	}
	if err != nil {
		return err
	}

	onDisk := outcome.ApplyOnDisk(liveView(local))

	if !changed && ancestor == baseline && outcome.AllRemote() {
		report, err := e.reconciler.Reconcile(ctx, onDisk, remote, false)
		if report != nil {
			res.addReport(report)
		}
		if err != nil {
			return err
		}
		if err := e.index.SaveWorkspaceIndex(remote); err != nil {
			return err
		}
		res.FastForward = true
		res.Head = remote.ID
		return nil
	}

	n, err := e.index.PersistObjects(ctx, local, baseline, outcome.Relocated)
	res.Uploaded = n
	if err != nil {
		return err
	}

	localHead := baseline
	if changed {
		if err := e.index.PersistSnapshot(local); err != nil {
			return err
		}
		localHead = local
	}

	merged := index.Overlay(e.index.MergeSnapshots(localHead, remote), outcome.Overrides())
	if err := e.index.Persist(merged, branch); err != nil {
		return err
	}

	report, err := e.reconciler.Reconcile(ctx, onDisk, merged, false)
	if report != nil {
		res.addReport(report)
	}
	if err != nil {
		return err
	}
	if err := e.index.SaveWorkspaceIndex(merged); err != nil {
		return err
	}
	res.Committed = true
	res.Head = merged.ID
	return e.push(ctx, res, branch)
}

// ancestor picks the snapshot both sides derive from. It is the baseline
// unless the baseline itself was never published, in which case the
// newest common ancestor is used.
func (e *Engine) ancestor(ctx context.Context, baseline, remote *snapshot.Snapshot) (*snapshot.Snapshot, error) {
	if baseline == nil {
		return nil, nil
	}
	g, err := e.index.Graph(ctx)
	if err != nil {
		return nil, err
	}
	base, ok := g.MergeBase(baseline.ID, remote.ID)
	switch {
	case !ok:
		if _, known := g.Node(baseline.ID); known {
			return nil, nil
		}
		return baseline, nil
	case base == baseline.ID:
		return baseline, nil
	}
	slog.Debug("sync merge base", "baseline", baseline.ID, "remote", remote.ID, "base", base)
	return e.index.Load(ctx, base)
}

func (e *Engine) push(ctx context.Context, res *Result, branch string) error {
	if err := e.transport.PushLatest(ctx, branch); err != nil {
		return fmt.Errorf("push %s: %w", branch, err)
	}
	res.Pushed = true
	return nil
}

// liveView is s without tombstones: what the workspace held when scanned.
func liveView(s *snapshot.Snapshot) *snapshot.Snapshot {
	out := &snapshot.Snapshot{Files: s.LiveFiles()}
	if s != nil {
		out.ID = s.ID
		out.EnvironmentID = s.EnvironmentID
		out.CreatedAt = s.CreatedAt
	}
	return out
}
