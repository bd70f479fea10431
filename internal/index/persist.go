package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/openmined/syncvault/internal/objstore"
	"github.com/openmined/syncvault/internal/snapshot"
	"golang.org/x/sync/errgroup"
)

// PersistSnapshot writes snap to the store without moving any ref.
func (m *Manager) PersistSnapshot(snap *snapshot.Snapshot) error {
	data, err := snapshot.Marshal(snap)
	if err != nil {
		return err
	}
	if _, err := m.store.Put(objstore.KindIndexes, snap.ID, data); err != nil {
		return fmt.Errorf("persist snapshot %s: %w", snap.ID, err)
	}
	m.remember(snap)
	return nil
}

// Persist writes snap and then advances branch to it.
func (m *Manager) Persist(snap *snapshot.Snapshot, branch string) error {
	if err := m.PersistSnapshot(snap); err != nil {
		return err
	}
	if err := m.store.WriteRef(branch, snap.ID); err != nil {
		return fmt.Errorf("advance %s: %w", branch, err)
	}
	slog.Info("index persist", "branch", branch, "snapshot", snap.ID, "files", len(snap.Files))
	return nil
}

// Load returns the snapshot with id.
func (m *Manager) Load(ctx context.Context, id string) (*snapshot.Snapshot, error) {
	if snap, ok := m.cache.Get(id); ok {
		return snap, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := m.store.Get(objstore.KindIndexes, id)
	if err != nil {
		return nil, err
	}
	snap, err := snapshot.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", id, err)
	}
	m.remember(snap)
	return snap, nil
}

func (m *Manager) remember(snap *snapshot.Snapshot) {
	m.cache.Add(snap.ID, snap)
	if m.catalog == nil {
		return
	}
	if err := m.catalog.Put(snap.Header()); err != nil {
		slog.Warn("catalog put", "snapshot", snap.ID, "error", err)
	}
}

// ReadRef returns the head snapshot id of branch.
func (m *Manager) ReadRef(branch string) (string, bool, error) {
	return m.store.ReadRef(branch)
}

func (m *Manager) WriteRef(branch, id string) error {
	return m.store.WriteRef(branch, id)
}

func (m *Manager) ListBranches() ([]string, error) {
	return m.store.ListRefs()
}

// LoadBranch loads the head of branch, or nil when the branch has no ref.
func (m *Manager) LoadBranch(ctx context.Context, branch string) (*snapshot.Snapshot, error) {
	id, ok, err := m.ReadRef(branch)
	if err != nil || !ok {
		return nil, err
	}
	return m.Load(ctx, id)
}

// LoadHistory loads every persisted snapshot ordered by creation time.
func (m *Manager) LoadHistory(ctx context.Context) ([]*snapshot.Snapshot, error) {
	ids, err := m.store.List(objstore.KindIndexes)
	if err != nil {
		return nil, err
	}

	out := make([]*snapshot.Snapshot, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i, id := range ids {
		g.Go(func() error {
			snap, err := m.Load(gctx, id)
			if err != nil {
				return err
			}
			out[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Headers returns the header of every persisted snapshot, decrypting only
// those the catalog has not seen.
func (m *Manager) Headers(ctx context.Context) ([]snapshot.Header, error) {
	ids, err := m.store.List(objstore.KindIndexes)
	if err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		out = make([]snapshot.Header, 0, len(ids))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for _, id := range ids {
		g.Go(func() error {
			if m.catalog != nil {
				h, ok, err := m.catalog.Get(id)
				if err != nil {
					return err
				}
				if ok {
					mu.Lock()
					out = append(out, h)
					mu.Unlock()
					return nil
				}
			}
			snap, err := m.Load(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			out = append(out, snap.Header())
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Graph builds the history DAG from every persisted snapshot.
func (m *Manager) Graph(ctx context.Context) (*Graph, error) {
	headers, err := m.Headers(ctx)
	if err != nil {
		return nil, err
	}
	return NewGraph(headers), nil
}

// Latest returns the newest persisted snapshot, or nil when there is none.
func (m *Manager) Latest(ctx context.Context) (*snapshot.Snapshot, error) {
	g, err := m.Graph(ctx)
	if err != nil {
		return nil, err
	}
	ordered := g.Ordered()
	if len(ordered) == 0 {
		return nil, nil
	}
	return m.Load(ctx, ordered[len(ordered)-1].ID)
}
