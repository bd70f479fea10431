// Package snapshot defines the immutable index records exchanged between
// workspaces: a Snapshot is a full listing of FileEntry values plus the ids
// of the snapshots it was derived from.
package snapshot

import (
	"encoding/hex"
	"sort"
	"time"

	"github.com/google/uuid"
)

type FileEntry struct {
	Path       string `json:"path"`
	Hash       string `json:"hash"`
	ModifiedAt int64  `json:"timestamp"`
	Deleted    bool   `json:"deleted,omitempty"`
}

// Live reports whether the entry describes a file that should exist.
func (e FileEntry) Live() bool {
	return !e.Deleted
}

// Tombstone returns a deleted copy of e keeping hash and timestamp.
func (e FileEntry) Tombstone() FileEntry {
	e.Deleted = true
	return e
}

type Snapshot struct {
	ID            string      `json:"id"`
	EnvironmentID string      `json:"environmentId"`
	ParentIDs     []string    `json:"parentIds"`
	Files         []FileEntry `json:"files"`
	CreatedAt     int64       `json:"timestamp"`
}

// NewID returns a fresh time-ordered snapshot id: a UUIDv7 as 32 hex chars.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return hex.EncodeToString(id[:])
}

// Now is the current time in Unix milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// New builds a normalized snapshot with a fresh id.
func New(envID string, parents []string, files []FileEntry) *Snapshot {
	s := &Snapshot{
		ID:            NewID(),
		EnvironmentID: envID,
		ParentIDs:     append([]string{}, parents...),
		Files:         files,
		CreatedAt:     Now(),
	}
	s.Normalize()
	return s
}

// Normalize sorts Files by path and drops earlier duplicates of a path.
func (s *Snapshot) Normalize() {
	if s.ParentIDs == nil {
		s.ParentIDs = []string{}
	}
	if s.Files == nil {
		s.Files = []FileEntry{}
	}
	sort.SliceStable(s.Files, func(i, j int) bool { return s.Files[i].Path < s.Files[j].Path })
	out := s.Files[:0]
	for _, f := range s.Files {
		if n := len(out); n > 0 && out[n-1].Path == f.Path {
			out[n-1] = f
			continue
		}
		out = append(out, f)
	}
	s.Files = out
}

// IsEmpty is true for nil or file-less snapshots.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || len(s.Files) == 0
}

// Lookup returns the entry for path.
func (s *Snapshot) Lookup(path string) (FileEntry, bool) {
	if s == nil {
		return FileEntry{}, false
	}
	i := sort.Search(len(s.Files), func(i int) bool { return s.Files[i].Path >= path })
	if i < len(s.Files) && s.Files[i].Path == path {
		return s.Files[i], true
	}
	return FileEntry{}, false
}

// Index maps path to entry.
func (s *Snapshot) Index() map[string]FileEntry {
	if s == nil {
		return map[string]FileEntry{}
	}
	m := make(map[string]FileEntry, len(s.Files))
	for _, f := range s.Files {
		m[f.Path] = f
	}
	return m
}

// LiveFiles returns the entries that are not tombstones.
func (s *Snapshot) LiveFiles() []FileEntry {
	if s == nil {
		return nil
	}
	out := make([]FileEntry, 0, len(s.Files))
	for _, f := range s.Files {
		if f.Live() {
			out = append(out, f)
		}
	}
	return out
}

// HasParent reports whether id is one of the direct parents.
func (s *Snapshot) HasParent(id string) bool {
	if s == nil {
		return false
	}
	for _, p := range s.ParentIDs {
		if p == id {
			return true
		}
	}
	return false
}

// SameFiles reports whether a and b list identical entries.
func SameFiles(a, b *Snapshot) bool {
	var af, bf []FileEntry
	if a != nil {
		af = a.Files
	}
	if b != nil {
		bf = b.Files
	}
	if len(af) != len(bf) {
		return false
	}
	for i := range af {
		if af[i] != bf[i] {
			return false
		}
	}
	return true
}
