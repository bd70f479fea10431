package classify

import (
	"testing"

	"github.com/openmined/syncvault/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snap(files ...snapshot.FileEntry) *snapshot.Snapshot {
	s := &snapshot.Snapshot{ID: snapshot.NewID(), Files: files}
	s.Normalize()
	return s
}

func entry(path, hash string, ts int64) snapshot.FileEntry {
	return snapshot.FileEntry{Path: path, Hash: hash, ModifiedAt: ts}
}

func tomb(path, hash string, ts int64) snapshot.FileEntry {
	return snapshot.FileEntry{Path: path, Hash: hash, ModifiedAt: ts, Deleted: true}
}

func TestClassify_DecisionTable(t *testing.T) {
	tests := []struct {
		name     string
		ancestor *snapshot.Snapshot
		local    *snapshot.Snapshot
		remote   *snapshot.Snapshot
		want     []snapshot.ChangeKind
	}{
		{
			name:     "hashes equal",
			ancestor: snap(entry("f", "h1", 1)),
			local:    snap(entry("f", "h2", 2)),
			remote:   snap(entry("f", "h2", 3)),
			want:     nil,
		},
		{
			name:     "local matches ancestor",
			ancestor: snap(entry("f", "h1", 1)),
			local:    snap(entry("f", "h1", 1)),
			remote:   snap(entry("f", "h2", 2)),
			want:     []snapshot.ChangeKind{snapshot.RemoteUpdate},
		},
		{
			name:     "remote matches ancestor",
			ancestor: snap(entry("f", "h1", 1)),
			local:    snap(entry("f", "h2", 2)),
			remote:   snap(entry("f", "h1", 1)),
			want:     []snapshot.ChangeKind{snapshot.LocalUpdate},
		},
		{
			name:     "both changed local newer",
			ancestor: snap(entry("f", "h1", 1)),
			local:    snap(entry("f", "h2", 5)),
			remote:   snap(entry("f", "h3", 4)),
			want:     []snapshot.ChangeKind{snapshot.LocalUpdate},
		},
		{
			name:     "both changed remote newer",
			ancestor: snap(entry("f", "h1", 1)),
			local:    snap(entry("f", "h2", 4)),
			remote:   snap(entry("f", "h3", 5)),
			want:     []snapshot.ChangeKind{snapshot.RemoteUpdate},
		},
		{
			name:   "both changed same timestamp goes remote",
			local:  snap(entry("f", "h2", 4)),
			remote: snap(entry("f", "h3", 4)),
			want:   []snapshot.ChangeKind{snapshot.RemoteUpdate},
		},
		{
			name:   "both added without ancestor",
			local:  snap(entry("f", "h2", 9)),
			remote: snap(entry("f", "h3", 4)),
			want:   []snapshot.ChangeKind{snapshot.LocalUpdate},
		},
		{
			name:  "local only, no ancestor",
			local: snap(entry("f", "h1", 1)),
			want:  []snapshot.ChangeKind{snapshot.LocalAdd},
		},
		{
			name:     "local only, ancestor present, local live",
			ancestor: snap(entry("f", "h1", 1)),
			local:    snap(entry("f", "h1", 1)),
			remote:   snap(),
			want:     []snapshot.ChangeKind{snapshot.RemoteDelete},
		},
		{
			name:     "local only, ancestor present, local deleted",
			ancestor: snap(entry("f", "h1", 1)),
			local:    snap(tomb("f", "h1", 1)),
			want:     nil,
		},
		{
			name:   "remote only, no ancestor",
			remote: snap(entry("f", "h1", 1)),
			want:   []snapshot.ChangeKind{snapshot.RemoteAdd},
		},
		{
			name:     "remote only, ancestor present, remote live",
			ancestor: snap(entry("f", "h1", 1)),
			remote:   snap(entry("f", "h1", 1)),
			want:     []snapshot.ChangeKind{snapshot.LocalDelete},
		},
		{
			name:     "remote only, ancestor present, remote deleted",
			ancestor: snap(entry("f", "h1", 1)),
			remote:   snap(tomb("f", "h1", 1)),
			want:     nil,
		},
		{
			name:     "ancestor only",
			ancestor: snap(entry("f", "h1", 1)),
			want:     nil,
		},
		{
			name:     "tombstone on one side keeps hash so no record",
			ancestor: snap(entry("f", "h1", 1)),
			local:    snap(entry("f", "h1", 1)),
			remote:   snap(tomb("f", "h1", 1)),
			want:     nil,
		},
		{
			name:     "local edit raced remote delete",
			ancestor: snap(entry("f", "h1", 1)),
			local:    snap(entry("f", "h2", 2)),
			remote:   snap(tomb("f", "h1", 1)),
			want:     []snapshot.ChangeKind{snapshot.LocalUpdate},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.ancestor, tt.local, tt.remote)
			var kinds []snapshot.ChangeKind
			for _, r := range got {
				kinds = append(kinds, r.Kind)
			}
			assert.Equal(t, tt.want, kinds)
		})
	}
}

func TestClassify_RecordFields(t *testing.T) {
	recs := Classify(
		snap(entry("x.txt", "h1", 1)),
		snap(entry("x.txt", "h2", 5)),
		snap(tomb("x.txt", "h3", 4)),
	)
	require.Len(t, recs, 1)
	r := recs[0]
	assert.Equal(t, "x.txt", r.Path)
	assert.Equal(t, snapshot.LocalUpdate, r.Kind)
	assert.Equal(t, "h1", r.AncestorHash)
	assert.Equal(t, "h2", r.LocalHash)
	assert.Equal(t, "h3", r.RemoteHash)
	assert.Equal(t, int64(5), r.LocalTimestamp)
	assert.Equal(t, int64(4), r.RemoteTimestamp)
	assert.True(t, r.RemoteDeleted)
	assert.True(t, r.IsConflict())
}

func TestClassify_OneRecordPerPathSorted(t *testing.T) {
	ancestor := snap(entry("a", "1", 1), entry("b", "1", 1), entry("c", "1", 1))
	local := snap(entry("a", "2", 2), entry("b", "1", 1), entry("d", "1", 1))
	remote := snap(entry("a", "3", 3), entry("c", "2", 2), entry("e", "1", 1))

	recs := Classify(ancestor, local, remote)
	seen := map[string]bool{}
	var paths []string
	for _, r := range recs {
		assert.False(t, seen[r.Path], "duplicate record for %s", r.Path)
		seen[r.Path] = true
		paths = append(paths, r.Path)
		assert.NotEqual(t, r.LocalHash, r.RemoteHash)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, paths)
}

func TestClassify_Scenarios(t *testing.T) {
	t.Run("pure local edit", func(t *testing.T) {
		recs := Classify(snap(entry("a.txt", "h1", 1)), snap(entry("a.txt", "h2", 2)), snap(entry("a.txt", "h1", 1)))
		require.Len(t, recs, 1)
		assert.Equal(t, snapshot.LocalUpdate, recs[0].Kind)
		assert.False(t, recs[0].IsConflict())
	})

	t.Run("local add", func(t *testing.T) {
		recs := Classify(snap(), snap(entry("new.md", "hNew", 1)), snap())
		require.Len(t, recs, 1)
		assert.Equal(t, snapshot.LocalAdd, recs[0].Kind)
	})

	t.Run("recreated after shared delete", func(t *testing.T) {
		recs := Classify(snap(tomb("a.txt", "h1", 2)), snap(entry("a.txt", "h2", 3)), snap(tomb("a.txt", "h1", 2)))
		require.Len(t, recs, 1)
		r := recs[0]
		assert.Equal(t, snapshot.LocalUpdate, r.Kind)
		assert.True(t, r.AncestorDeleted)
		assert.Empty(t, r.AncestorHash)
		assert.False(t, r.RemoteChanged())
		assert.False(t, r.IsConflict())
	})

	t.Run("remote update", func(t *testing.T) {
		recs := Classify(snap(entry("x.txt", "h1", 1)), snap(entry("x.txt", "h1", 1)), snap(entry("x.txt", "h2", 2)))
		require.Len(t, recs, 1)
		assert.Equal(t, snapshot.RemoteUpdate, recs[0].Kind)
		assert.False(t, recs[0].IsConflict())
	})
}
