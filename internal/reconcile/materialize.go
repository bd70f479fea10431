package reconcile

import (
	"errors"
	"fmt"
	"time"

	"github.com/openmined/syncvault/internal/objstore"
	"github.com/openmined/syncvault/internal/snapshot"
	"github.com/openmined/syncvault/internal/utils"
	"github.com/openmined/syncvault/internal/vfs"
)

var ErrIntegrity = errors.New("integrity check failed")

// Materializer writes snapshot entries into the workspace from the store.
type Materializer struct {
	work  *vfs.FS
	store *objstore.Store
}

func NewMaterializer(work *vfs.FS, store *objstore.Store) *Materializer {
	return &Materializer{work: work, store: store}
}

// Materialize writes e at its own path.
func (m *Materializer) Materialize(e snapshot.FileEntry) error {
	return m.MaterializeAs(e, e.Path)
}

// Fetch decrypts the blob for e and checks it hashes to e.Hash.
func (m *Materializer) Fetch(e snapshot.FileEntry) ([]byte, error) {
	data, err := m.store.Get(objstore.KindFiles, e.Hash)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", e.Path, err)
	}
	if got := utils.HashBytes(data); got != e.Hash {
		return nil, fmt.Errorf("%w: %s expected %s got %s", ErrIntegrity, e.Path, e.Hash, got)
	}
	return data, nil
}

// MaterializeAs writes the verified content of e atomically at dest and
// sets the file time to e.ModifiedAt so every machine sees the same
// timestamp for the same entry.
func (m *Materializer) MaterializeAs(e snapshot.FileEntry, dest string) error {
	data, err := m.Fetch(e)
	if err != nil {
		return err
	}
	if err := m.work.WriteFile(dest, data); err != nil {
		return err
	}
	if e.ModifiedAt > 0 {
		if err := m.work.Chtimes(dest, time.UnixMilli(e.ModifiedAt)); err != nil {
			return fmt.Errorf("set times on %s: %w", dest, err)
		}
	}
	return nil
}
