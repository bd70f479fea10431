// Package index manages the snapshot history of a workspace: building the
// local snapshot from a scan, persisting snapshots and their blobs into the
// encrypted store, loading them back, merging and walking the history DAG.
package index

import (
	"errors"
	"fmt"
	"runtime"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openmined/syncvault/internal/catalog"
	"github.com/openmined/syncvault/internal/objstore"
	"github.com/openmined/syncvault/internal/snapshot"
	"github.com/openmined/syncvault/internal/vfs"
)

const (
	defaultCacheSize = 256
	wsIndexFile      = "wsIndex.json"
	headFile         = "HEAD"
	DefaultBranch    = "main"
)

var ErrContentChanged = errors.New("file content changed during sync")

// Manager holds the collaborators index operations need. It carries no
// mutable state besides a cache of decoded (immutable) snapshots, so callers
// must not modify snapshots it returns.
type Manager struct {
	store     *objstore.Store
	workspace *vfs.FS
	meta      *vfs.FS
	envID     string
	catalog   *catalog.Catalog
	cache     *lru.Cache[string, *snapshot.Snapshot]
	workers   int
}

type Option func(*Manager)

// WithCatalog caches snapshot headers in cat.
func WithCatalog(cat *catalog.Catalog) Option {
	return func(m *Manager) {
		m.catalog = cat
	}
}

// WithWorkers bounds parallel hashing and encryption.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// NewManager wires a manager. workspace is the synced tree, meta the
// metadata directory holding the WorkspaceIndex and HEAD.
func NewManager(store *objstore.Store, workspace, meta *vfs.FS, envID string, opts ...Option) (*Manager, error) {
	cache, err := lru.New[string, *snapshot.Snapshot](defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("snapshot cache: %w", err)
	}
	m := &Manager{
		store:     store,
		workspace: workspace,
		meta:      meta,
		envID:     envID,
		cache:     cache,
		workers:   runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) Store() *objstore.Store {
	return m.store
}

func (m *Manager) EnvironmentID() string {
	return m.envID
}
