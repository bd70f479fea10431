package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/openmined/syncvault/internal/classify"
	"github.com/openmined/syncvault/internal/crypto"
	"github.com/openmined/syncvault/internal/objstore"
	"github.com/openmined/syncvault/internal/reconcile"
	"github.com/openmined/syncvault/internal/snapshot"
	"github.com/openmined/syncvault/internal/utils"
	"github.com/openmined/syncvault/internal/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 678_000_000, time.UTC)

const stamp = "2026-01-02T03-04-05.678Z"

type fixture struct {
	work  *vfs.FS
	store *objstore.Store
	mat   *reconcile.Materializer
}

func setup(t *testing.T) *fixture {
	t.Helper()
	work := vfs.NewOS(t.TempDir())
	require.NoError(t, work.MkdirAll(".syncvault/remotes"))
	remotes, err := work.Chroot(".syncvault/remotes")
	require.NoError(t, err)
	c, err := crypto.NewCipherFromHex(testKey)
	require.NoError(t, err)
	store := objstore.New(remotes, c)
	return &fixture{work: work, store: store, mat: reconcile.NewMaterializer(work, store)}
}

func (f *fixture) resolver(s Strategy) *Resolver {
	r := New(f.work, f.mat, ".syncvault", s)
	r.now = func() time.Time { return fixedNow }
	return r
}

// entry builds an entry for content without storing anything.
func entry(p, content string, ts int64) snapshot.FileEntry {
	return snapshot.FileEntry{Path: p, Hash: utils.HashBytes([]byte(content)), ModifiedAt: ts}
}

// remote stores content as a blob and returns its entry.
func (f *fixture) remote(t *testing.T, p, content string, ts int64) snapshot.FileEntry {
	t.Helper()
	e := entry(p, content, ts)
	_, err := f.store.Put(objstore.KindFiles, e.Hash, []byte(content))
	require.NoError(t, err)
	return e
}

// local writes content into the workspace and returns its entry.
func (f *fixture) local(t *testing.T, p, content string, ts int64) snapshot.FileEntry {
	t.Helper()
	require.NoError(t, f.work.WriteFile(p, []byte(content)))
	return entry(p, content, ts)
}

func (f *fixture) read(t *testing.T, p string) string {
	t.Helper()
	b, err := f.work.ReadFile(p)
	require.NoError(t, err)
	return string(b)
}

func (f *fixture) exists(t *testing.T, p string) bool {
	t.Helper()
	ok, err := f.work.Exists(p)
	require.NoError(t, err)
	return ok
}

func snap(files ...snapshot.FileEntry) *snapshot.Snapshot {
	return snapshot.New("env", nil, files)
}

func TestAutoDecision(t *testing.T) {
	h1, h2, h3 := "h1", "h2", "h3"
	tests := []struct {
		name string
		rec  snapshot.ChangeRecord
		want Decision
	}{
		{"local add", snapshot.ChangeRecord{Kind: snapshot.LocalAdd, LocalHash: h1}, KeepLocal},
		{"remote add", snapshot.ChangeRecord{Kind: snapshot.RemoteAdd, RemoteHash: h1}, KeepRemote},
		{"pure local update", snapshot.ChangeRecord{Kind: snapshot.LocalUpdate, LocalHash: h2, RemoteHash: h1, AncestorHash: h1}, KeepLocal},
		{"both changed", snapshot.ChangeRecord{Kind: snapshot.LocalUpdate, LocalHash: h2, RemoteHash: h3, AncestorHash: h1}, KeepRemote},
		{"remote update", snapshot.ChangeRecord{Kind: snapshot.RemoteUpdate, LocalHash: h1, RemoteHash: h2, AncestorHash: h1}, KeepRemote},
		{"remote delete", snapshot.ChangeRecord{Kind: snapshot.RemoteDelete, LocalHash: h1, AncestorHash: h1}, KeepRemote},
		{"remote never knew path", snapshot.ChangeRecord{Kind: snapshot.RemoteDelete, LocalHash: h1}, KeepLocal},
		{"local delete", snapshot.ChangeRecord{Kind: snapshot.LocalDelete, RemoteHash: h1, AncestorHash: h1}, KeepRemote},
		{"recreated over shared tombstone", snapshot.ChangeRecord{Kind: snapshot.LocalUpdate, LocalHash: h2, RemoteHash: h1, RemoteDeleted: true, AncestorDeleted: true}, KeepLocal},
		{"recreated, remote has no entry", snapshot.ChangeRecord{Kind: snapshot.RemoteDelete, LocalHash: h2, AncestorDeleted: true}, KeepLocal},
		{"recreated on both sides", snapshot.ChangeRecord{Kind: snapshot.LocalUpdate, LocalHash: h2, RemoteHash: h3, AncestorDeleted: true}, KeepRemote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Auto{}.Decide(context.Background(), tt.rec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_RecreatedAfterDeleteIsKept(t *testing.T) {
	f := setup(t)
	gone := entry("docs/a.txt", "alpha", 1000).Tombstone()
	loc := f.local(t, "docs/a.txt", "recreated", 3000)

	records := classify.Classify(snap(gone), snap(loc), snap(gone))
	require.Len(t, records, 1)
	assert.Equal(t, snapshot.LocalUpdate, records[0].Kind)

	prompted := false
	s := NewInteractive(PromptFunc(func(context.Context, snapshot.ChangeRecord) (Decision, error) {
		prompted = true
		return Abort, nil
	}))
	for name, strategy := range map[string]Strategy{"auto": nil, "interactive": s} {
		t.Run(name, func(t *testing.T) {
			out, err := f.resolver(strategy).Resolve(context.Background(), records)
			require.NoError(t, err)
			require.Len(t, out.Resolutions, 1)
			assert.Equal(t, KeepLocal, out.Resolutions[0].Decision)
			assert.Equal(t, ActionNone, out.Resolutions[0].Action)
			assert.Equal(t, loc, out.Overrides()["docs/a.txt"])
			assert.Empty(t, out.Relocated)
			assert.Equal(t, "recreated", f.read(t, "docs/a.txt"))
			assert.False(t, f.exists(t, ".syncvault/deleted"))
		})
	}
	assert.False(t, prompted)
}

func TestResolve_PureLocalUpdateTakesNoAction(t *testing.T) {
	f := setup(t)
	anc := entry("a.txt", "v1", 1000)
	loc := f.local(t, "a.txt", "v2", 2000)

	records := classify.Classify(snap(anc), snap(loc), snap(anc))
	require.Len(t, records, 1)
	assert.Equal(t, snapshot.LocalUpdate, records[0].Kind)

	out, err := f.resolver(nil).Resolve(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, out.Resolutions, 1)
	assert.Equal(t, KeepLocal, out.Resolutions[0].Decision)
	assert.Equal(t, ActionNone, out.Resolutions[0].Action)
	assert.Equal(t, loc, out.Overrides()["a.txt"])
	assert.Equal(t, "v2", f.read(t, "a.txt"))
	assert.Empty(t, out.Relocated)
}

func TestResolve_LocalAddTakesNoAction(t *testing.T) {
	f := setup(t)
	loc := f.local(t, "new.md", "fresh", 1000)

	records := classify.Classify(nil, snap(loc), nil)
	require.Len(t, records, 1)
	assert.Equal(t, snapshot.LocalAdd, records[0].Kind)

	out, err := f.resolver(nil).Resolve(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, out.Resolutions[0].Action)
	assert.Equal(t, "fresh", f.read(t, "new.md"))
	assert.False(t, out.AllRemote())
}

func TestResolve_RemoteUpdateOverwrites(t *testing.T) {
	f := setup(t)
	anc := f.local(t, "x.txt", "v1", 1000)
	rem := f.remote(t, "x.txt", "v2", 2000)

	records := classify.Classify(snap(anc), snap(anc), snap(rem))
	require.Len(t, records, 1)
	assert.Equal(t, snapshot.RemoteUpdate, records[0].Kind)

	out, err := f.resolver(nil).Resolve(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, ActionMaterialize, out.Resolutions[0].Action)
	assert.Equal(t, "v2", f.read(t, "x.txt"))
	assert.Equal(t, rem.Hash, utils.HashBytes([]byte(f.read(t, "x.txt"))))
	assert.True(t, out.AllRemote())
}

func TestResolve_BothChangedQuarantinesLocal(t *testing.T) {
	f := setup(t)
	anc := entry("x.txt", "v1", 1000)
	loc := f.local(t, "x.txt", "v2", 3000)
	rem := f.remote(t, "x.txt", "v3", 2000)

	records := classify.Classify(snap(anc), snap(loc), snap(rem))
	require.Len(t, records, 1)
	assert.Equal(t, snapshot.LocalUpdate, records[0].Kind, "newer local timestamp labels it local")

	out, err := f.resolver(nil).Resolve(context.Background(), records)
	require.NoError(t, err)

	res := out.Resolutions[0]
	want := ".syncvault/conflict-local/" + stamp + "/x.txt"
	assert.Equal(t, ActionQuarantine, res.Action)
	assert.Equal(t, want, res.MovedTo)
	assert.Equal(t, map[string]string{"x.txt": want}, out.Relocated)
	assert.Equal(t, "v2", f.read(t, want))
	assert.Equal(t, "v3", f.read(t, "x.txt"))
	assert.Equal(t, rem, res.Entry)
}

func TestResolve_RemoteDelete(t *testing.T) {
	f := setup(t)
	keptAnc := entry("keep/a.txt", "a", 1000)
	kept := f.local(t, "keep/a.txt", "a", 1000)
	editedAnc := entry("edit/b.txt", "b1", 1000)
	edited := f.local(t, "edit/b.txt", "b2", 2000)

	records := classify.Classify(snap(keptAnc, editedAnc), snap(kept, edited), snap())
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, snapshot.RemoteDelete, r.Kind)
	}

	out, err := f.resolver(nil).Resolve(context.Background(), records)
	require.NoError(t, err)

	byPath := map[string]Resolution{}
	for _, r := range out.Resolutions {
		byPath[r.Record.Path] = r
	}

	trashed := ".syncvault/deleted/" + stamp + "/edit/b.txt"
	assert.Equal(t, ActionTrash, byPath["edit/b.txt"].Action)
	assert.Equal(t, trashed, byPath["edit/b.txt"].MovedTo)
	assert.Equal(t, "b2", f.read(t, trashed))
	assert.True(t, byPath["edit/b.txt"].Entry.Deleted)

	assert.Equal(t, ActionDelete, byPath["keep/a.txt"].Action)
	assert.True(t, byPath["keep/a.txt"].Entry.Deleted)

	assert.False(t, f.exists(t, "keep/a.txt"))
	assert.False(t, f.exists(t, "edit/b.txt"))
	assert.False(t, f.work.IsDir("keep"))
	assert.Equal(t, map[string]string{"edit/b.txt": trashed}, out.Relocated)
}

func TestResolve_LocalEditRacesRemoteTombstone(t *testing.T) {
	f := setup(t)
	anc := entry("a.txt", "v1", 1000)
	loc := f.local(t, "a.txt", "v2", 2000)
	tomb := anc.Tombstone()

	records := classify.Classify(snap(anc), snap(loc), snap(tomb))
	require.Len(t, records, 1)
	assert.Equal(t, snapshot.LocalUpdate, records[0].Kind)
	assert.True(t, records[0].IsConflict())

	out, err := f.resolver(nil).Resolve(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, ActionTrash, out.Resolutions[0].Action)
	assert.Equal(t, tomb, out.Resolutions[0].Entry)
	assert.Equal(t, "v2", f.read(t, ".syncvault/deleted/"+stamp+"/a.txt"))
}

func TestResolve_LocalTombstoneLosesToRemoteUpdate(t *testing.T) {
	f := setup(t)
	anc := entry("a.txt", "v1", 1000)
	rem := f.remote(t, "a.txt", "v2", 2000)

	records := classify.Classify(snap(anc), snap(anc.Tombstone()), snap(rem))
	require.Len(t, records, 1)

	out, err := f.resolver(nil).Resolve(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, ActionMaterialize, out.Resolutions[0].Action)
	assert.Equal(t, "v2", f.read(t, "a.txt"))
}

func TestResolve_InteractiveOnlyPromptsConflicts(t *testing.T) {
	f := setup(t)
	anc := entry("x.txt", "v1", 1000)
	loc := f.local(t, "x.txt", "mine", 3000)
	rem := f.remote(t, "x.txt", "theirs", 2000)
	other := f.remote(t, "y.txt", "y", 2000)

	var asked []string
	prompt := PromptFunc(func(_ context.Context, rec snapshot.ChangeRecord) (Decision, error) {
		asked = append(asked, rec.Path)
		return KeepBoth, nil
	})

	records := classify.Classify(snap(anc), snap(loc), snap(rem, other))
	require.Len(t, records, 2)

	out, err := f.resolver(NewInteractive(prompt)).Resolve(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, []string{"x.txt"}, asked)
	assert.Equal(t, "mine", f.read(t, "x.txt"))
	assert.Equal(t, "theirs", f.read(t, "x.conflict.txt"))
	assert.Equal(t, "y", f.read(t, "y.txt"))

	assert.Equal(t, ActionKeepBoth, out.Resolutions[0].Action)
	assert.Equal(t, "x.conflict.txt", out.Resolutions[0].MovedTo)
	assert.Equal(t, loc, out.Overrides()["x.txt"])
	assert.Empty(t, out.Relocated)
}

func TestResolve_InteractiveKeepLocalOverDeletion(t *testing.T) {
	f := setup(t)
	anc := entry("a.txt", "v1", 1000)
	rem := f.remote(t, "a.txt", "v2", 2000)

	prompt := PromptFunc(func(context.Context, snapshot.ChangeRecord) (Decision, error) {
		return KeepLocal, nil
	})
	records := classify.Classify(snap(anc), snap(anc.Tombstone()), snap(rem))

	out, err := f.resolver(NewInteractive(prompt)).Resolve(context.Background(), records)
	require.NoError(t, err)
	assert.True(t, out.Resolutions[0].Entry.Deleted)
	assert.False(t, f.exists(t, "a.txt"))
}

func TestResolve_AbortStopsImmediately(t *testing.T) {
	f := setup(t)
	anc := snap(entry("a.txt", "1", 1000), entry("b.txt", "1", 1000))
	loc := snap(f.local(t, "a.txt", "2", 3000), f.local(t, "b.txt", "2", 3000))
	rem := snap(f.remote(t, "a.txt", "3", 2000), f.remote(t, "b.txt", "3", 2000))

	calls := 0
	prompt := PromptFunc(func(context.Context, snapshot.ChangeRecord) (Decision, error) {
		calls++
		return Abort, nil
	})

	out, err := f.resolver(NewInteractive(prompt)).Resolve(context.Background(), classify.Classify(anc, loc, rem))
	assert.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, 1, calls)
	assert.Empty(t, out.Resolutions)
	assert.Equal(t, "2", f.read(t, "a.txt"))
	assert.Equal(t, "2", f.read(t, "b.txt"))
}

func TestOutcome_ApplyOnDisk(t *testing.T) {
	a := entry("a.txt", "a", 1)
	b := entry("b.txt", "b", 1)
	c := entry("c.txt", "c", 1)
	b2 := entry("b.txt", "b2", 2)

	out := &Outcome{Resolutions: []Resolution{
		{Record: snapshot.ChangeRecord{Path: "a.txt"}, Decision: KeepLocal, Entry: a},
		{Record: snapshot.ChangeRecord{Path: "b.txt"}, Decision: KeepRemote, Entry: b2},
		{Record: snapshot.ChangeRecord{Path: "c.txt"}, Decision: KeepRemote, Entry: c.Tombstone()},
	}}

	view := snap(a, b, c)
	got := out.ApplyOnDisk(view)
	assert.Equal(t, view.ID, got.ID)
	assert.Equal(t, []snapshot.FileEntry{a, b2}, got.Files)
}

func TestIsoStamp(t *testing.T) {
	assert.Equal(t, stamp, isoStamp(fixedNow))
	assert.Equal(t, stamp, isoStamp(fixedNow.In(time.FixedZone("x", 3600))))
}
