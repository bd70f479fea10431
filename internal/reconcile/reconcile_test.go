package reconcile

import (
	"context"
	"testing"

	"github.com/openmined/syncvault/internal/crypto"
	"github.com/openmined/syncvault/internal/objstore"
	"github.com/openmined/syncvault/internal/snapshot"
	"github.com/openmined/syncvault/internal/utils"
	"github.com/openmined/syncvault/internal/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type fixture struct {
	work  *vfs.FS
	store *objstore.Store
	rec   *Reconciler
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
	return &fixture{
		work:  work,
		store: store,
		rec:   New(work, NewMaterializer(work, store), ".syncvault"),
	}
}

// blob stores content and returns a live entry for it.
func (f *fixture) blob(t *testing.T, p, content string, ts int64) snapshot.FileEntry {
	t.Helper()
	h := utils.HashBytes([]byte(content))
	_, err := f.store.Put(objstore.KindFiles, h, []byte(content))
	require.NoError(t, err)
	return snapshot.FileEntry{Path: p, Hash: h, ModifiedAt: ts}
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

func TestMaterializer_WritesContentAndTime(t *testing.T) {
	f := setup(t)
	e := f.blob(t, "docs/a.txt", "alpha", 1_700_000_000_000)

	require.NoError(t, NewMaterializer(f.work, f.store).Materialize(e))

	assert.Equal(t, "alpha", f.read(t, "docs/a.txt"))
	info, err := f.work.Stat("docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, e.ModifiedAt, info.ModifiedAt())
}

func TestMaterializer_RejectsHashMismatch(t *testing.T) {
	f := setup(t)
	e := f.blob(t, "a.txt", "alpha", 1000)
	// store different content under the claimed hash
	bogus := snapshot.FileEntry{Path: "b.txt", Hash: utils.HashBytes([]byte("beta")), ModifiedAt: 1000}
	_, err := f.store.Put(objstore.KindFiles, bogus.Hash, []byte("not beta"))
	require.NoError(t, err)

	m := NewMaterializer(f.work, f.store)
	require.NoError(t, m.Materialize(e))
	err = m.Materialize(bogus)
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.False(t, f.exists(t, "b.txt"))
}

func TestMaterializer_MissingBlob(t *testing.T) {
	f := setup(t)
	e := snapshot.FileEntry{Path: "a.txt", Hash: utils.HashBytes([]byte("x")), ModifiedAt: 1}
	err := NewMaterializer(f.work, f.store).Materialize(e)
	assert.ErrorIs(t, err, objstore.ErrNotFound)
}

func TestReconcile_MaterializesNewAndChanged(t *testing.T) {
	f := setup(t)
	a1 := f.blob(t, "a.txt", "a1", 1000)
	b := f.blob(t, "b.txt", "b", 1000)
	a2 := f.blob(t, "a.txt", "a2", 2000)
	c := f.blob(t, "sub/c.txt", "c", 3000)
	require.NoError(t, f.work.WriteFile("a.txt", []byte("a1")))
	require.NoError(t, f.work.WriteFile("b.txt", []byte("b")))

	report, err := f.rec.Reconcile(context.Background(), snap(a1, b), snap(a2, b, c), false)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt", "sub/c.txt"}, report.Materialized)
	assert.Empty(t, report.Deleted)
	assert.Equal(t, "a2", f.read(t, "a.txt"))
	assert.Equal(t, "c", f.read(t, "sub/c.txt"))
}

func TestReconcile_RestoresPreviouslyDeleted(t *testing.T) {
	f := setup(t)
	a := f.blob(t, "a.txt", "a", 1000)

	report, err := f.rec.Reconcile(context.Background(), snap(a.Tombstone()), snap(a), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, report.Materialized)
	assert.Equal(t, "a", f.read(t, "a.txt"))
}

func TestReconcile_DeletesOnlyMatchingTombstones(t *testing.T) {
	f := setup(t)
	a := f.blob(t, "dir/a.txt", "a", 1000)
	b := f.blob(t, "b.txt", "b", 1000)
	c := f.blob(t, "c.txt", "c", 1000)
	for _, e := range []snapshot.FileEntry{a, b, c} {
		require.NoError(t, NewMaterializer(f.work, f.store).Materialize(e))
	}

	stale := b.Tombstone()
	stale.ModifiedAt = 5000

	// a: same timestamp tombstone, removed
	// b: tombstone with other timestamp, kept
	// c: absent from new, kept without force
	report, err := f.rec.Reconcile(context.Background(), snap(a, b, c), snap(a.Tombstone(), stale), false)
	require.NoError(t, err)

	assert.Equal(t, []string{"dir/a.txt"}, report.Deleted)
	assert.Equal(t, []string{"b.txt"}, report.Kept)
	assert.False(t, f.exists(t, "dir/a.txt"))
	assert.False(t, f.work.IsDir("dir"), "empty parent should be pruned")
	assert.True(t, f.exists(t, "b.txt"))
	assert.True(t, f.exists(t, "c.txt"))
}

func TestReconcile_ForceRemovesAbsentAndDeleted(t *testing.T) {
	f := setup(t)
	a := f.blob(t, "a.txt", "a", 1000)
	b := f.blob(t, "b.txt", "b", 1000)
	c := f.blob(t, "c.txt", "c", 1000)
	for _, e := range []snapshot.FileEntry{a, b, c} {
		require.NoError(t, NewMaterializer(f.work, f.store).Materialize(e))
	}
	stale := b.Tombstone()
	stale.ModifiedAt = 5000

	report, err := f.rec.Reconcile(context.Background(), snap(a, b, c), snap(a, stale), true)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"b.txt", "c.txt"}, report.Deleted)
	assert.True(t, f.exists(t, "a.txt"))
	assert.False(t, f.exists(t, "b.txt"))
	assert.False(t, f.exists(t, "c.txt"))
}

func TestReconcile_SkipsMetaDir(t *testing.T) {
	f := setup(t)
	inner := f.blob(t, ".syncvault/HEAD", "evil", 1000)
	require.NoError(t, f.work.WriteFile(".syncvault/keep", []byte("x")))
	keep := snapshot.FileEntry{Path: ".syncvault/keep", Hash: utils.HashBytes([]byte("x")), ModifiedAt: 1}

	report, err := f.rec.Reconcile(context.Background(), snap(keep), snap(inner), true)
	require.NoError(t, err)
	assert.True(t, report.Empty())
	assert.False(t, f.exists(t, ".syncvault/HEAD"))
	assert.True(t, f.exists(t, ".syncvault/keep"))
}

func TestReconcile_NilSnapshots(t *testing.T) {
	f := setup(t)
	a := f.blob(t, "a.txt", "a", 1000)

	report, err := f.rec.Reconcile(context.Background(), nil, snap(a), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, report.Materialized)

	report, err = f.rec.Reconcile(context.Background(), snap(a), nil, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, report.Deleted)
}

func TestReconcile_Cancelled(t *testing.T) {
	f := setup(t)
	a := f.blob(t, "a.txt", "a", 1000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.rec.Reconcile(ctx, nil, snap(a), false)
	assert.ErrorIs(t, err, context.Canceled)
}
