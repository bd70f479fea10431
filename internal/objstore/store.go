// Package objstore is the encrypted, content-addressed blob store kept in the
// workspace mirror directory. Objects are sharded by the first two
// characters of their id and never rewritten once present.
package objstore

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/openmined/syncvault/internal/crypto"
	"github.com/openmined/syncvault/internal/vfs"
)

type Kind string

const (
	KindFiles   Kind = "files"
	KindIndexes Kind = "indexes"
)

var (
	ErrNotFound  = errors.New("object not found")
	ErrInvalidID = errors.New("invalid object id")
)

type Store struct {
	fs     *vfs.FS
	cipher crypto.Encrypter
}

// New returns a store over fs, which should be rooted at the mirror
// directory.
func New(fs *vfs.FS, cipher crypto.Encrypter) *Store {
	return &Store{fs: fs, cipher: cipher}
}

func (s *Store) FS() *vfs.FS {
	return s.fs
}

// ShardPath maps an id to `<kind>/<id[:2]>/<id[2:]>`.
func ShardPath(kind Kind, id string) (string, error) {
	if len(id) < 3 || strings.ContainsAny(id, `/\.`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return path.Join(string(kind), id[:2], id[2:]), nil
}

func (s *Store) Has(kind Kind, id string) (bool, error) {
	p, err := ShardPath(kind, id)
	if err != nil {
		return false, err
	}
	return s.fs.Exists(p)
}

// Get reads and decrypts an object.
func (s *Store) Get(kind Kind, id string) ([]byte, error) {
	p, err := ShardPath(kind, id)
	if err != nil {
		return nil, err
	}
	sealed, err := s.fs.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, kind, id)
		}
		return nil, err
	}
	plain, err := s.cipher.Decrypt(sealed)
	if err != nil {
		return nil, fmt.Errorf("decrypt %s/%s: %w", kind, id, err)
	}
	return plain, nil
}

// Put encrypts and stores plain under id unless the object already exists.
// It reports whether a write happened.
func (s *Store) Put(kind Kind, id string, plain []byte) (bool, error) {
	p, err := ShardPath(kind, id)
	if err != nil {
		return false, err
	}
	exists, err := s.fs.Exists(p)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	sealed, err := s.cipher.Encrypt(plain)
	if err != nil {
		return false, fmt.Errorf("encrypt %s/%s: %w", kind, id, err)
	}
	if err := s.fs.WriteFile(p, sealed); err != nil {
		return false, fmt.Errorf("write %s/%s: %w", kind, id, err)
	}
	slog.Debug("objstore put", "kind", kind, "id", id, "size", len(sealed))
	return true, nil
}

// List returns the ids of every object of kind, sorted.
func (s *Store) List(kind Kind) ([]string, error) {
	var ids []string
	err := s.fs.Walk(string(kind), func(fi vfs.FileInfo) error {
		rest := strings.TrimPrefix(fi.Path, string(kind)+"/")
		prefix, suffix, ok := strings.Cut(rest, "/")
		if !ok || len(prefix) != 2 || strings.Contains(suffix, "/") {
			return nil
		}
		ids = append(ids, prefix+suffix)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
