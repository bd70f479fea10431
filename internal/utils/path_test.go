package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantError bool
	}{
		{
			name:      "empty path",
			input:     "",
			wantError: true,
		},
		{
			name:      "relative path",
			input:     "./test",
			wantError: false,
		},
		{
			name:      "absolute path",
			input:     "/tmp/test",
			wantError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ResolvePath(tt.input)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, filepath.IsAbs(result))
		})
	}
}

func TestResolvePath_Home(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := ResolvePath("~/vault")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "vault"), got)
}

func TestNormPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a/b.txt", "a/b.txt"},
		{"./a/b.txt", "a/b.txt"},
		{"a//b/../c.txt", "a/c.txt"},
		{"/abs/x", "abs/x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormPath(tt.in), tt.in)
	}
}

func TestIsUnder(t *testing.T) {
	assert.True(t, IsUnder(".syncvault", ".syncvault"))
	assert.True(t, IsUnder(".syncvault/HEAD", ".syncvault"))
	assert.True(t, IsUnder(".syncvault/HEAD", ".syncvault/"))
	assert.False(t, IsUnder(".syncvaultx/HEAD", ".syncvault"))
	assert.False(t, IsUnder("docs/a.txt", ".syncvault"))
}

func TestEnsureParentAndExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x", "y", "z.txt")

	require.NoError(t, EnsureParent(path))
	assert.True(t, DirExists(filepath.Join(dir, "x", "y")))
	assert.False(t, FileExists(path))

	require.NoError(t, os.WriteFile(path, []byte("z"), 0o644))
	assert.True(t, FileExists(path))
	assert.False(t, DirExists(path))
}

func TestHashBytes(t *testing.T) {
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", HashBytes([]byte("abc")))

	path := filepath.Join(t.TempDir(), "abc.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))
	h, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, HashBytes([]byte("abc")), h)
}
