package snapshot

import (
	"errors"
	"fmt"
)

var ErrMalformed = errors.New("malformed snapshot")

// wireFile accepts both the current entry shape and the older
// contentHash/modifiedAt/isDeleted one.
type wireFile struct {
	Path        string `json:"path"`
	Hash        string `json:"hash"`
	Timestamp   *int64 `json:"timestamp"`
	Deleted     bool   `json:"deleted"`
	ContentHash string `json:"contentHash"`
	ModifiedAt  *int64 `json:"modifiedAt"`
	IsDeleted   bool   `json:"isDeleted"`
}

type wireSnapshot struct {
	ID            string     `json:"id"`
	EnvironmentID string     `json:"environmentId"`
	ParentIDs     []string   `json:"parentIds"`
	Files         []wireFile `json:"files"`
	Timestamp     *int64     `json:"timestamp"`
	ParentID      string     `json:"parentId"`
	Created       *int64     `json:"created"`
}

// Marshal encodes s in the current schema.
func Marshal(s *Snapshot) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil snapshot", ErrMalformed)
	}
	return jsonMarshal(s)
}

// Unmarshal decodes a snapshot, migrating the legacy shape when present.
// The result is normalized.
func Unmarshal(data []byte) (*Snapshot, error) {
	var w wireSnapshot
	if err := jsonUnmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if w.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformed)
	}

	s := &Snapshot{
		ID:            w.ID,
		EnvironmentID: w.EnvironmentID,
		ParentIDs:     w.ParentIDs,
		Files:         make([]FileEntry, 0, len(w.Files)),
	}
	if len(s.ParentIDs) == 0 && w.ParentID != "" {
		s.ParentIDs = []string{w.ParentID}
	}
	switch {
	case w.Timestamp != nil:
		s.CreatedAt = *w.Timestamp
	case w.Created != nil:
		s.CreatedAt = *w.Created
	}

	for _, f := range w.Files {
		if f.Path == "" {
			return nil, fmt.Errorf("%w: entry without path", ErrMalformed)
		}
		e := FileEntry{Path: f.Path, Hash: f.Hash, Deleted: f.Deleted || f.IsDeleted}
		if e.Hash == "" {
			e.Hash = f.ContentHash
		}
		switch {
		case f.Timestamp != nil:
			e.ModifiedAt = *f.Timestamp
		case f.ModifiedAt != nil:
			e.ModifiedAt = *f.ModifiedAt
		}
		s.Files = append(s.Files, e)
	}

	s.Normalize()
	return s, nil
}

// Header is the part of a snapshot needed to draw history without its
// file list.
type Header struct {
	ID            string   `json:"id"`
	EnvironmentID string   `json:"environmentId"`
	ParentIDs     []string `json:"parentIds"`
	CreatedAt     int64    `json:"timestamp"`
	FileCount     int      `json:"fileCount"`
}

func (s *Snapshot) Header() Header {
	live := 0
	for _, f := range s.Files {
		if f.Live() {
			live++
		}
	}
	return Header{
		ID:            s.ID,
		EnvironmentID: s.EnvironmentID,
		ParentIDs:     append([]string{}, s.ParentIDs...),
		CreatedAt:     s.CreatedAt,
		FileCount:     live,
	}
}
