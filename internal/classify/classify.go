// Package classify compares a local and a remote snapshot against their
// common ancestor and labels every path that diverged.
package classify

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/syncvault/internal/snapshot"
)

// Classify returns at most one ChangeRecord per path in the union of the
// three snapshots, sorted by path. Nil snapshots are treated as empty.
// Paths whose local and remote hashes agree produce no record.
func Classify(ancestor, local, remote *snapshot.Snapshot) []snapshot.ChangeRecord {
	a, l, r := ancestor.Index(), local.Index(), remote.Index()

	paths := mapset.NewThreadUnsafeSet[string]()
	for _, m := range []map[string]snapshot.FileEntry{a, l, r} {
		for p := range m {
			paths.Add(p)
		}
	}

	sorted := paths.ToSlice()
	sort.Strings(sorted)

	var records []snapshot.ChangeRecord
	for _, p := range sorted {
		ae, inA := a[p]
		le, inL := l[p]
		re, inR := r[p]

		kind, ok := decide(ae, inA, le, inL, re, inR)
		if !ok {
			continue
		}

		rec := snapshot.ChangeRecord{Path: p, Kind: kind}
		if inA {
			if ae.Deleted {
				rec.AncestorDeleted = true
			} else {
				rec.AncestorHash = ae.Hash
			}
		}
		if inL {
			rec.LocalHash = le.Hash
			rec.LocalTimestamp = le.ModifiedAt
			rec.LocalDeleted = le.Deleted
		}
		if inR {
			rec.RemoteHash = re.Hash
			rec.RemoteTimestamp = re.ModifiedAt
			rec.RemoteDeleted = re.Deleted
		}
		records = append(records, rec)
	}
	return records
}

// decide is the per-path decision table. ok is false when the path needs
// no record.
func decide(a snapshot.FileEntry, inA bool, l snapshot.FileEntry, inL bool, r snapshot.FileEntry, inR bool) (snapshot.ChangeKind, bool) {
	switch {
	case inL && inR:
		switch {
		case l.Hash == r.Hash:
			return "", false
		case inA && l.Hash == a.Hash:
			return snapshot.RemoteUpdate, true
		case inA && r.Hash == a.Hash:
			return snapshot.LocalUpdate, true
		case l.ModifiedAt > r.ModifiedAt:
			return snapshot.LocalUpdate, true
		default:
			return snapshot.RemoteUpdate, true
		}
	case inL && !inA:
		return snapshot.LocalAdd, true
	case inL && !l.Deleted:
		return snapshot.RemoteDelete, true
	case inR && !inA:
		return snapshot.RemoteAdd, true
	case inR && !r.Deleted:
		return snapshot.LocalDelete, true
	}
	return "", false
}
