package index

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/syncvault/internal/objstore"
	"github.com/openmined/syncvault/internal/snapshot"
	"github.com/openmined/syncvault/internal/utils"
	"github.com/openmined/syncvault/internal/vfs"
	"golang.org/x/sync/errgroup"
)

// BuildLocalSnapshot turns a workspace scan into a snapshot derived from
// baseline. Files whose timestamp matches a live baseline entry keep its
// hash, the rest are hashed. Baseline paths missing from the scan become
// tombstones that keep the baseline hash and timestamp.
func (m *Manager) BuildLocalSnapshot(ctx context.Context, baseline *snapshot.Snapshot, files []vfs.FileInfo) (*snapshot.Snapshot, error) {
	base := baseline.Index()
	entries := make([]snapshot.FileEntry, len(files))
	seen := make(map[string]struct{}, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	hashed := 0

	for i, fi := range files {
		seen[fi.Path] = struct{}{}
		entries[i] = snapshot.FileEntry{Path: fi.Path, ModifiedAt: fi.ModifiedAt()}

		if prev, ok := base[fi.Path]; ok && !prev.Deleted && prev.ModifiedAt == fi.ModifiedAt() {
			entries[i].Hash = prev.Hash
			continue
		}

		hashed++
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			h, err := m.hashWorkspaceFile(fi.Path)
			if err != nil {
				return fmt.Errorf("hash %s: %w", fi.Path, err)
			}
			entries[i].Hash = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if baseline != nil {
		for _, prev := range baseline.Files {
			if _, ok := seen[prev.Path]; ok {
				continue
			}
			entries = append(entries, prev.Tombstone())
		}
	}

	var parents []string
	if !baseline.IsEmpty() {
		parents = []string{baseline.ID}
	}

	snap := snapshot.New(m.envID, parents, entries)
	slog.Debug("index build", "id", snap.ID, "files", len(files), "hashed", hashed, "entries", len(snap.Files))
	return snap, nil
}

func (m *Manager) hashWorkspaceFile(p string) (string, error) {
	f, err := m.workspace.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return utils.HashReader(f)
}

// PersistObjects stores the blob of every live entry of snap. Hashes that
// baseline already references, that exist in the store, or that were
// written earlier in the same pass are skipped, so each hash is stored at
// most once. relocated maps a path to the workspace-relative location its
// content was moved to after the scan. Content is re-hashed on read and a
// mismatch fails with ErrContentChanged.
func (m *Manager) PersistObjects(ctx context.Context, snap, baseline *snapshot.Snapshot, relocated map[string]string) (int, error) {
	known := mapset.NewThreadUnsafeSet[string]()
	if baseline != nil {
		for _, f := range baseline.Files {
			known.Add(f.Hash)
		}
	}

	// first path per hash
	todo := make(map[string]string)
	for _, f := range snap.LiveFiles() {
		if known.Contains(f.Hash) {
			continue
		}
		if _, ok := todo[f.Hash]; !ok {
			todo[f.Hash] = f.Path
		}
	}

	var (
		mu      sync.Mutex
		written int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for hash, p := range todo {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			has, err := m.store.Has(objstore.KindFiles, hash)
			if err != nil {
				return err
			}
			if has {
				return nil
			}

			src := p
			if moved, ok := relocated[p]; ok {
				src = moved
			}
			data, err := m.readVerified(src, hash)
			if err != nil {
				return fmt.Errorf("persist %s: %w", p, err)
			}
			wrote, err := m.store.Put(objstore.KindFiles, hash, data)
			if err != nil {
				return err
			}
			if wrote {
				mu.Lock()
				written++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return written, err
	}

	if written > 0 {
		slog.Info("index persist objects", "snapshot", snap.ID, "written", written, "candidates", len(todo))
	}
	return written, nil
}

func (m *Manager) readVerified(p, want string) ([]byte, error) {
	f, err := m.workspace.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	h, err := utils.HashReader(io.TeeReader(f, &buf))
	if err != nil {
		return nil, err
	}
	if h != want {
		return nil, fmt.Errorf("%w: %s expected %s got %s", ErrContentChanged, p, want, h)
	}
	return buf.Bytes(), nil
}
