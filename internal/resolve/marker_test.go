package resolve

import (
	"testing"
	"time"

	"github.com/openmined/syncvault/internal/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsMarkedPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"file.txt", "file.conflict.txt"},
		{"dir/sub/report.tar.gz", "dir/sub/report.tar.conflict.gz"},
		{"Makefile", "Makefile.conflict"},
		{".env", ".env.conflict"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, asMarkedPath(tt.in))
		})
	}
}

func TestAsRotatedPath(t *testing.T) {
	ts := time.Date(2025, 7, 12, 23, 45, 0, 0, time.UTC)
	assert.Equal(t, "file.conflict.20250712234500.txt", asRotatedPath("file.conflict.txt", ts))
	assert.Equal(t, "Makefile.conflict.20250712234500", asRotatedPath("Makefile.conflict", ts))
}

func TestConflictPathHelpers(t *testing.T) {
	assert.True(t, IsConflictPath("a/file.conflict.txt"))
	assert.True(t, IsConflictPath("a/file.conflict.20250712234500.txt"))
	assert.False(t, IsConflictPath("conflict/file.txt"))
	assert.Equal(t, "a/file.txt", UnmarkedPath("a/file.conflict.txt"))
	assert.Equal(t, "a/file.txt", UnmarkedPath("a/file.conflict.20250712234500.txt"))
	assert.Equal(t, "Makefile", UnmarkedPath("Makefile.conflict"))
}

func TestWriteMarked_RotatesExisting(t *testing.T) {
	fs := vfs.NewOS(t.TempDir())
	first := time.Date(2025, 7, 12, 23, 45, 0, 0, time.UTC)

	p, err := writeMarked(fs, "notes/a.txt", []byte("one"), first)
	require.NoError(t, err)
	assert.Equal(t, "notes/a.conflict.txt", p)

	p, err = writeMarked(fs, "notes/a.txt", []byte("two"), first.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "notes/a.conflict.txt", p)

	got, err := fs.ReadFile("notes/a.conflict.txt")
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	got, err = fs.ReadFile("notes/a.conflict.20250712234600.txt")
	require.NoError(t, err)
	assert.Equal(t, "one", string(got))
}
