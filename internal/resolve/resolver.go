// Package resolve turns classified changes into workspace actions and the
// entries the merged snapshot must carry.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/openmined/syncvault/internal/reconcile"
	"github.com/openmined/syncvault/internal/snapshot"
	"github.com/openmined/syncvault/internal/vfs"
)

const (
	ConflictDir = "conflict-local"
	DeletedDir  = "deleted"
)

type Action string

const (
	ActionNone        Action = "none"
	ActionMaterialize Action = "materialize"
	// ActionQuarantine moved the local file under the conflict directory
	// before materializing the remote version.
	ActionQuarantine Action = "quarantine"
	// ActionTrash moved an edited local file under the deleted directory.
	ActionTrash    Action = "trash"
	ActionDelete   Action = "delete"
	ActionKeepBoth Action = "keep-both"
)

type Resolution struct {
	Record   snapshot.ChangeRecord
	Decision Decision
	Action   Action
	// Entry is what the merged snapshot holds for the path.
	Entry snapshot.FileEntry
	// MovedTo is the workspace-relative location of the quarantined local
	// file, or of the conflict copy for ActionKeepBoth.
	MovedTo string
}

type Outcome struct {
	Resolutions []Resolution
	// Relocated maps a path to where its scanned content now lives.
	Relocated map[string]string
}

// Overrides maps each resolved path to its committed entry.
func (o *Outcome) Overrides() map[string]snapshot.FileEntry {
	out := make(map[string]snapshot.FileEntry, len(o.Resolutions))
	for _, r := range o.Resolutions {
		out[r.Record.Path] = r.Entry
	}
	return out
}

// AllRemote is true when every record was settled in favour of the remote.
func (o *Outcome) AllRemote() bool {
	for _, r := range o.Resolutions {
		if r.Decision != KeepRemote {
			return false
		}
	}
	return true
}

// Count returns how many resolutions took action a.
func (o *Outcome) Count(a Action) int {
	n := 0
	for _, r := range o.Resolutions {
		if r.Action == a {
			n++
		}
	}
	return n
}

// ApplyOnDisk returns view updated with what resolution did to the
// workspace: paths settled for the remote carry the remote entry, removed
// paths are dropped.
func (o *Outcome) ApplyOnDisk(view *snapshot.Snapshot) *snapshot.Snapshot {
	idx := view.Index()
	for _, r := range o.Resolutions {
		if r.Decision != KeepRemote {
			continue
		}
		if r.Entry.Deleted {
			delete(idx, r.Record.Path)
		} else {
			idx[r.Record.Path] = r.Entry
		}
	}

	out := &snapshot.Snapshot{Files: make([]snapshot.FileEntry, 0, len(idx))}
	for _, e := range idx {
		out.Files = append(out.Files, e)
	}
	if view != nil {
		out.ID = view.ID
		out.EnvironmentID = view.EnvironmentID
		out.ParentIDs = append([]string{}, view.ParentIDs...)
		out.CreatedAt = view.CreatedAt
	}
	out.Normalize()
	return out
}

type Resolver struct {
	work     *vfs.FS
	mat      *reconcile.Materializer
	metaDir  string
	strategy Strategy
	now      func() time.Time
}

// New returns a resolver writing into work. Quarantined files go under
// metaDir. A nil strategy means Auto.
func New(work *vfs.FS, mat *reconcile.Materializer, metaDir string, strategy Strategy) *Resolver {
	if strategy == nil {
		strategy = Auto{}
	}
	return &Resolver{
		work:     work,
		mat:      mat,
		metaDir:  metaDir,
		strategy: strategy,
		now:      time.Now,
	}
}

// Resolve decides and applies every record in order. On Abort it stops and
// returns the outcome so far with ErrAborted.
func (r *Resolver) Resolve(ctx context.Context, records []snapshot.ChangeRecord) (*Outcome, error) {
	now := r.now()
	stamp := isoStamp(now)
	out := &Outcome{Relocated: make(map[string]string)}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		d, err := r.strategy.Decide(ctx, rec)
		if err != nil {
			return out, fmt.Errorf("decide %s: %w", rec.Path, err)
		}
		if d == Abort {
			slog.Info("resolve aborted", "path", rec.Path, "resolved", len(out.Resolutions), "pending", len(records)-len(out.Resolutions))
			return out, ErrAborted
		}

		res, err := r.apply(rec, d, stamp, now)
		if err != nil {
			return out, fmt.Errorf("resolve %s: %w", rec.Path, err)
		}
		if res.Action == ActionQuarantine || res.Action == ActionTrash {
			out.Relocated[rec.Path] = res.MovedTo
		}
		out.Resolutions = append(out.Resolutions, res)
		slog.Debug("resolve", "path", rec.Path, "kind", rec.Kind, "decision", d, "action", res.Action)
	}

	if n := len(out.Resolutions); n > 0 {
		slog.Info("resolve", "records", n,
			"materialized", out.Count(ActionMaterialize)+out.Count(ActionQuarantine),
			"quarantined", out.Count(ActionQuarantine)+out.Count(ActionTrash),
			"deleted", out.Count(ActionDelete),
			"keptBoth", out.Count(ActionKeepBoth))
	}
	return out, nil
}

func (r *Resolver) apply(rec snapshot.ChangeRecord, d Decision, stamp string, now time.Time) (Resolution, error) {
	res := Resolution{Record: rec, Decision: d, Action: ActionNone}
	local, hasLocal := localEntry(rec)
	remote, hasRemote := remoteEntry(rec)

	keepLocal := func() Resolution {
		if hasLocal {
			res.Entry = local
		} else {
			res.Entry = remote.Tombstone()
		}
		return res
	}

	switch d {
	case KeepLocal:
		return keepLocal(), nil

	case KeepBoth:
		res = keepLocal()
		if !hasRemote || remote.Deleted {
			return res, nil
		}
		data, err := r.mat.Fetch(remote)
		if err != nil {
			return res, err
		}
		marked, err := writeMarked(r.work, rec.Path, data, now)
		if err != nil {
			return res, err
		}
		res.Action = ActionKeepBoth
		res.MovedTo = marked
		return res, nil

	case KeepRemote:
		onDisk, err := r.work.Exists(rec.Path)
		if err != nil {
			return res, err
		}
		edited := hasLocal && local.Live() && rec.LocalChanged() && onDisk

		if !hasRemote || remote.Deleted {
			if hasRemote {
				res.Entry = remote
			} else {
				res.Entry = local.Tombstone()
			}
			switch {
			case edited:
				dest, err := r.quarantine(rec.Path, DeletedDir, stamp)
				if err != nil {
					return res, err
				}
				res.Action, res.MovedTo = ActionTrash, dest
			case onDisk:
				if err := r.work.Remove(rec.Path); err != nil {
					return res, err
				}
				r.work.PruneEmptyDirs(path.Dir(rec.Path))
				res.Action = ActionDelete
			}
			return res, nil
		}

		res.Entry = remote
		res.Action = ActionMaterialize
		if edited && local.Hash != remote.Hash {
			dest, err := r.quarantine(rec.Path, ConflictDir, stamp)
			if err != nil {
				return res, err
			}
			res.Action, res.MovedTo = ActionQuarantine, dest
		}
		if err := r.mat.Materialize(remote); err != nil {
			return res, err
		}
		return res, nil
	}
	return res, fmt.Errorf("unknown decision %d", d)
}

// quarantine moves the workspace file p to <meta>/<kind>/<stamp>/<p>.
func (r *Resolver) quarantine(p, kind, stamp string) (string, error) {
	dest := path.Join(r.metaDir, kind, stamp, p)
	if err := r.work.Rename(p, dest); err != nil {
		return "", fmt.Errorf("move %s to %s: %w", p, dest, err)
	}
	r.work.PruneEmptyDirs(path.Dir(p))
	slog.Info("quarantined local copy", "path", p, "to", dest)
	return dest, nil
}

func localEntry(rec snapshot.ChangeRecord) (snapshot.FileEntry, bool) {
	e := snapshot.FileEntry{Path: rec.Path, Hash: rec.LocalHash, ModifiedAt: rec.LocalTimestamp, Deleted: rec.LocalDeleted}
	return e, rec.LocalHash != "" || rec.LocalDeleted
}

func remoteEntry(rec snapshot.ChangeRecord) (snapshot.FileEntry, bool) {
	e := snapshot.FileEntry{Path: rec.Path, Hash: rec.RemoteHash, ModifiedAt: rec.RemoteTimestamp, Deleted: rec.RemoteDeleted}
	return e, rec.RemoteHash != "" || rec.RemoteDeleted
}

// isoStamp is an ISO-8601 UTC time with ':' replaced for file-system safety.
func isoStamp(t time.Time) string {
	return strings.ReplaceAll(t.UTC().Format("2006-01-02T15:04:05.000Z"), ":", "-")
}
