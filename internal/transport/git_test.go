package transport

import (
	"context"
	"os/exec"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/openmined/syncvault/internal/config"
	"github.com/openmined/syncvault/internal/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// the file transport shells out to git-upload-pack and git-receive-pack
func requireGitBinary(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

func TestGit_PushPullRoundtrip(t *testing.T) {
	requireGitBinary(t)
	ctx := context.Background()

	remoteDir := t.TempDir()
	_, err := git.PlainInit(remoteDir, true)
	require.NoError(t, err)
	cfg := &config.GitConfig{URL: remoteDir}

	dirA, dirB := t.TempDir(), t.TempDir()
	a := NewGit(dirA, cfg, "env-a")
	b := NewGit(dirB, cfg, "env-b")
	fa, fb := vfs.NewOS(dirA), vfs.NewOS(dirB)

	ok, err := a.RemoteIndexExists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// first push onto an empty remote
	require.NoError(t, a.PullLatest(ctx, "main"))
	write(t, fa, "files/ab/cdef", "blob-1")
	write(t, fa, "indexes/01/2345", "snap-1")
	write(t, fa, "refs/main", "ref-1")
	require.NoError(t, a.PushLatest(ctx, "main"))

	ok, err = b.RemoteIndexExists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, b.CloneAll(ctx))
	assert.Equal(t, "blob-1", read(t, fb, "files/ab/cdef"))
	assert.Equal(t, "ref-1", read(t, fb, "refs/main"))

	// b adds on top, a pulls it while keeping its own unpushed object
	write(t, fb, "files/cd/0000", "blob-2")
	write(t, fb, "refs/main", "ref-2")
	require.NoError(t, b.PushLatest(ctx, "main"))

	write(t, fa, "files/ef/9999", "blob-3")
	require.NoError(t, a.PullLatest(ctx, "main"))
	assert.Equal(t, "blob-2", read(t, fa, "files/cd/0000"))
	assert.Equal(t, "blob-3", read(t, fa, "files/ef/9999"))
	assert.Equal(t, "ref-2", read(t, fa, "refs/main"))

	write(t, fa, "refs/main", "ref-3")
	require.NoError(t, a.PushLatest(ctx, "main"))

	require.NoError(t, b.PullLatest(ctx, "main"))
	assert.Equal(t, "blob-3", read(t, fb, "files/ef/9999"))
	assert.Equal(t, "ref-3", read(t, fb, "refs/main"))

	// nothing new to push
	require.NoError(t, b.PushLatest(ctx, "main"))
}
