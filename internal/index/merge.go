package index

import "github.com/openmined/syncvault/internal/snapshot"

// MergeSnapshots combines a and b with the manager's environment id.
func (m *Manager) MergeSnapshots(a, b *snapshot.Snapshot) *snapshot.Snapshot {
	return Merge(m.envID, a, b)
}

// Merge returns the union of a and b. For a path in both, the entry with
// the greater timestamp wins; on a tie a tombstone beats a live entry and
// otherwise a wins. The result has parents [a.ID, b.ID].
func Merge(envID string, a, b *snapshot.Snapshot) *snapshot.Snapshot {
	merged := a.Index()
	for _, be := range b.Index() {
		ae, ok := merged[be.Path]
		if !ok || be.ModifiedAt > ae.ModifiedAt || (be.ModifiedAt == ae.ModifiedAt && be.Deleted && !ae.Deleted) {
			merged[be.Path] = be
		}
	}

	files := make([]snapshot.FileEntry, 0, len(merged))
	for _, f := range merged {
		files = append(files, f)
	}

	var parents []string
	for _, s := range []*snapshot.Snapshot{a, b} {
		if s != nil && s.ID != "" {
			parents = append(parents, s.ID)
		}
	}
	return snapshot.New(envID, parents, files)
}

// Supersedes reports whether local was derived directly from remote, in
// which case there is nothing to reconcile between them.
func Supersedes(local, remote *snapshot.Snapshot) bool {
	return remote != nil && local.HasParent(remote.ID)
}

// Overlay returns a copy of base with entries replaced by overrides.
func Overlay(base *snapshot.Snapshot, overrides map[string]snapshot.FileEntry) *snapshot.Snapshot {
	idx := base.Index()
	for p, e := range overrides {
		idx[p] = e
	}
	files := make([]snapshot.FileEntry, 0, len(idx))
	for _, f := range idx {
		files = append(files, f)
	}
	out := &snapshot.Snapshot{Files: files}
	if base != nil {
		out.ID = base.ID
		out.EnvironmentID = base.EnvironmentID
		out.ParentIDs = append([]string{}, base.ParentIDs...)
		out.CreatedAt = base.CreatedAt
	}
	out.Normalize()
	return out
}
