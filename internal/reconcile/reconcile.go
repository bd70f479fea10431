// Package reconcile applies the difference between two snapshots to the
// workspace file tree.
package reconcile

import (
	"context"
	"log/slog"
	"path"

	"github.com/openmined/syncvault/internal/snapshot"
	"github.com/openmined/syncvault/internal/utils"
	"github.com/openmined/syncvault/internal/vfs"
)

type Report struct {
	Materialized []string
	Deleted      []string
	// Kept lists deletions that were not applied because the file changed
	// after the deleted entry was recorded.
	Kept []string
}

func (r *Report) Empty() bool {
	return len(r.Materialized) == 0 && len(r.Deleted) == 0
}

type Reconciler struct {
	work    *vfs.FS
	mat     *Materializer
	metaDir string
}

// New returns a reconciler for work. Paths under metaDir are never touched.
func New(work *vfs.FS, mat *Materializer, metaDir string) *Reconciler {
	return &Reconciler{work: work, mat: mat, metaDir: metaDir}
}

// Reconcile moves the workspace from old to new. Live entries of new are
// written when they are new, were deleted in old, or changed hash. Without
// force, a path is removed only when new holds a tombstone with the same
// timestamp old has for it; with force, anything absent or deleted in new
// is removed.
func (r *Reconciler) Reconcile(ctx context.Context, old, new *snapshot.Snapshot, force bool) (*Report, error) {
	report := &Report{}
	prev := old.Index()
	next := new.Index()

	if new != nil {
		for _, e := range new.Files {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if e.Deleted || r.internal(e.Path) {
				continue
			}
			if o, ok := prev[e.Path]; ok && !o.Deleted && o.Hash == e.Hash {
				continue
			}
			if err := r.mat.Materialize(e); err != nil {
				return report, err
			}
			report.Materialized = append(report.Materialized, e.Path)
		}
	}

	if old != nil {
		for _, o := range old.Files {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if r.internal(o.Path) {
				continue
			}
			n, inNew := next[o.Path]
			switch {
			case force && (!inNew || n.Deleted):
			case inNew && n.Deleted && n.ModifiedAt == o.ModifiedAt:
			case inNew && n.Deleted:
				report.Kept = append(report.Kept, o.Path)
				continue
			default:
				continue
			}
			if err := r.work.Remove(o.Path); err != nil {
				return report, err
			}
			r.work.PruneEmptyDirs(path.Dir(o.Path))
			report.Deleted = append(report.Deleted, o.Path)
		}
	}

	if !report.Empty() || len(report.Kept) > 0 {
		slog.Info("reconcile", "materialized", len(report.Materialized), "deleted", len(report.Deleted), "kept", len(report.Kept), "force", force)
	}
	return report, nil
}

func (r *Reconciler) internal(p string) bool {
	return r.metaDir != "" && utils.IsUnder(p, r.metaDir)
}
