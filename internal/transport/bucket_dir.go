package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/openmined/syncvault/internal/vfs"
)

// DirBucket keeps objects as files below a directory, for a shared drive
// or a plain folder remote.
type DirBucket struct {
	fs *vfs.FS
}

func NewDirBucket(fs *vfs.FS) *DirBucket {
	return &DirBucket{fs: fs}
}

func (b *DirBucket) List(ctx context.Context, prefix string) ([]string, error) {
	dir := strings.TrimSuffix(prefix, "/")
	var keys []string
	err := b.fs.Walk(dir, func(fi vfs.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		keys = append(keys, fi.Path)
		return nil
	})
	return keys, err
}

func (b *DirBucket) Get(_ context.Context, key string) ([]byte, error) {
	data, err := b.fs.ReadFile(key)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return data, err
}

func (b *DirBucket) Put(_ context.Context, key string, data []byte) error {
	return b.fs.WriteFile(key, data)
}
