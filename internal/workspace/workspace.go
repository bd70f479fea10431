package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/openmined/syncvault/internal/utils"
	"github.com/openmined/syncvault/internal/vfs"
)

const (
	// MetaDir is the workspace-relative metadata directory. Nothing under
	// it is ever synced.
	MetaDir = ".syncvault"

	remotesDir  = "remotes"
	logsDir     = "logs"
	lockFile    = "syncvault.lock"
	configFile  = "config.yaml"
	catalogFile = "catalog.db"
)

var (
	ErrWorkspaceLocked = errors.New("workspace locked by another process")
	ErrMissingRoot     = errors.New("workspace root does not exist")
)

type Workspace struct {
	Root        string
	MetadataDir string
	RemotesDir  string
	LogsDir     string

	flock *flock.Flock
}

func NewWorkspace(rootDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", rootDir, err)
	}

	metaDir := filepath.Join(root, MetaDir)
	return &Workspace{
		Root:        root,
		MetadataDir: metaDir,
		RemotesDir:  filepath.Join(metaDir, remotesDir),
		LogsDir:     filepath.Join(metaDir, logsDir),
		flock:       flock.New(filepath.Join(metaDir, lockFile)),
	}, nil
}

// CheckRoot fails with ErrMissingRoot unless the root is an existing
// directory.
func (w *Workspace) CheckRoot() error {
	if !utils.DirExists(w.Root) {
		return fmt.Errorf("%w: %s", ErrMissingRoot, w.Root)
	}
	return nil
}

// Lock takes the workspace lock file so only one process syncs at a time.
func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.MetadataDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.MetadataDir, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}
	return nil
}

func (w *Workspace) Unlock() error {
	// not ours to remove
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}
	return os.Remove(w.flock.Path())
}

// Setup creates the metadata layout inside an existing root.
func (w *Workspace) Setup() error {
	if err := w.CheckRoot(); err != nil {
		return err
	}

	for _, dir := range []string{w.MetadataDir, w.RemotesDir, w.LogsDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	slog.Info("workspace", "root", w.Root)
	return nil
}

// Initialized reports whether Setup has run for this root.
func (w *Workspace) Initialized() bool {
	return utils.DirExists(w.MetadataDir)
}

// FS is the synced tree.
func (w *Workspace) FS() *vfs.FS {
	return vfs.NewOS(w.Root)
}

// MetaFS is rooted at the metadata directory.
func (w *Workspace) MetaFS() *vfs.FS {
	return vfs.NewOS(w.MetadataDir)
}

// RemotesFS is rooted at the local mirror of the remote.
func (w *Workspace) RemotesFS() *vfs.FS {
	return vfs.NewOS(w.RemotesDir)
}

func (w *Workspace) ConfigPath() string {
	return filepath.Join(w.MetadataDir, configFile)
}

func (w *Workspace) CatalogPath() string {
	return filepath.Join(w.MetadataDir, catalogFile)
}

func (w *Workspace) LogPath() string {
	return filepath.Join(w.LogsDir, "syncvault.log")
}
