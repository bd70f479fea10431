// Package vfs is the file-system layer used by the object store, the index
// manager and the reconciler. It wraps a go-billy filesystem rooted at a
// directory and speaks forward-slash relative paths only.
package vfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

const tmpPrefix = ".svtmp."

// FileInfo is what a scan reports for a regular file.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// ModifiedAt is the mtime in Unix milliseconds, the resolution snapshots use.
func (fi FileInfo) ModifiedAt() int64 {
	return fi.ModTime.UnixMilli()
}

type chtimer interface {
	Chtimes(name string, atime, mtime time.Time) error
}

type FS struct {
	fs     billy.Filesystem
	osRoot string
}

// NewOS returns an FS rooted at dir on the local disk.
func NewOS(dir string) *FS {
	return &FS{fs: osfs.New(dir), osRoot: dir}
}

// New wraps an arbitrary billy filesystem.
func New(fs billy.Filesystem) *FS {
	return &FS{fs: fs}
}

func (f *FS) Root() string {
	if f.osRoot != "" {
		return f.osRoot
	}
	return f.fs.Root()
}

// Raw exposes the underlying billy filesystem.
func (f *FS) Raw() billy.Filesystem {
	return f.fs
}

// Chroot returns an FS scoped to dir.
func (f *FS) Chroot(dir string) (*FS, error) {
	sub, err := f.fs.Chroot(native(dir))
	if err != nil {
		return nil, fmt.Errorf("chroot %q: %w", dir, err)
	}
	out := &FS{fs: sub}
	if f.osRoot != "" {
		out.osRoot = filepath.Join(f.osRoot, native(dir))
	}
	return out, nil
}

func (f *FS) ReadFile(p string) ([]byte, error) {
	return util.ReadFile(f.fs, native(p))
}

func (f *FS) Open(p string) (billy.File, error) {
	return f.fs.Open(native(p))
}

func (f *FS) Stat(p string) (FileInfo, error) {
	info, err := f.fs.Stat(native(p))
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{Path: p, Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (f *FS) Exists(p string) (bool, error) {
	_, err := f.fs.Stat(native(p))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %q: %w", p, err)
	}
}

// IsDir reports whether p exists and is a directory.
func (f *FS) IsDir(p string) bool {
	info, err := f.fs.Stat(native(p))
	return err == nil && info.IsDir()
}

func (f *FS) MkdirAll(p string) error {
	return f.fs.MkdirAll(native(p), 0o755)
}

// WriteFile writes data to p through a temp file in the same directory and
// renames it into place, so readers never see a partial file.
func (f *FS) WriteFile(p string, data []byte) error {
	return f.WriteFrom(p, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteFrom is WriteFile for streamed content. The temp file is removed if
// fill or any later step fails.
func (f *FS) WriteFrom(p string, fill func(w io.Writer) error) error {
	dir := path.Dir(p)
	if err := f.MkdirAll(dir); err != nil {
		return fmt.Errorf("ensure parent of %q: %w", p, err)
	}

	tmp, err := util.TempFile(f.fs, native(dir), tmpPrefix+path.Base(p)+".")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			f.fs.Remove(tmpName)
		}
	}()

	if err := fill(tmp); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := f.fs.Rename(tmpName, native(p)); err != nil {
		return fmt.Errorf("rename temp file to %q: %w", p, err)
	}

	success = true
	return nil
}

// Rename moves from to to, creating the destination directory.
func (f *FS) Rename(from, to string) error {
	if err := f.MkdirAll(path.Dir(to)); err != nil {
		return err
	}
	return f.fs.Rename(native(from), native(to))
}

// Remove deletes a file. Missing files are not an error.
func (f *FS) Remove(p string) error {
	err := f.fs.Remove(native(p))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (f *FS) RemoveAll(p string) error {
	return util.RemoveAll(f.fs, native(p))
}

// Chtimes sets the modification time of p. Backends without time support
// are left untouched.
func (f *FS) Chtimes(p string, mtime time.Time) error {
	if ct, ok := f.fs.(chtimer); ok {
		return ct.Chtimes(native(p), mtime, mtime)
	}
	if f.osRoot != "" {
		return os.Chtimes(filepath.Join(f.osRoot, native(p)), mtime, mtime)
	}
	return nil
}

// PruneEmptyDirs removes dir and its empty parents, stopping at the root.
func (f *FS) PruneEmptyDirs(dir string) {
	for dir != "" && dir != "." && dir != "/" {
		entries, err := f.fs.ReadDir(native(dir))
		if err != nil || len(entries) > 0 {
			return
		}
		if err := f.fs.Remove(native(dir)); err != nil {
			return
		}
		dir = path.Dir(dir)
	}
}

// Walk visits every regular file under dir ("" for the root) in lexical
// order, passing slash paths relative to the FS root.
func (f *FS) Walk(dir string, fn func(FileInfo) error) error {
	return f.walk(dir, nil, fn)
}

// walk is Walk with a directory filter; skipDir returning true prunes the
// subtree.
func (f *FS) walk(dir string, skipDir func(rel string) bool, fn func(FileInfo) error) error {
	return util.Walk(f.fs, native(dir), func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		rel := strings.TrimPrefix(filepath.ToSlash(p), "/")
		if info.IsDir() {
			if rel != "" && rel != "." && skipDir != nil && skipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() || strings.HasPrefix(path.Base(rel), tmpPrefix) {
			return nil
		}
		return fn(FileInfo{Path: rel, Size: info.Size(), ModTime: info.ModTime()})
	})
}

func native(p string) string {
	return filepath.FromSlash(p)
}
