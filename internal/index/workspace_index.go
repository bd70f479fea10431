package index

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/openmined/syncvault/internal/objstore"
	"github.com/openmined/syncvault/internal/snapshot"
)

// LoadWorkspaceIndex returns the snapshot last materialized in this
// workspace, or nil when the workspace has never synced.
func (m *Manager) LoadWorkspaceIndex() (*snapshot.Snapshot, error) {
	data, err := m.meta.ReadFile(wsIndexFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	snap, err := snapshot.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("workspace index: %w", err)
	}
	return snap, nil
}

// SaveWorkspaceIndex records snap as materialized. It is stored in plain
// text and never leaves the machine.
func (m *Manager) SaveWorkspaceIndex(snap *snapshot.Snapshot) error {
	data, err := snapshot.Marshal(snap)
	if err != nil {
		return err
	}
	return m.meta.WriteFile(wsIndexFile, data)
}

// ReadHead returns the current branch, DefaultBranch when unset.
func (m *Manager) ReadHead() (string, error) {
	data, err := m.meta.ReadFile(headFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultBranch, nil
		}
		return "", err
	}
	branch := strings.TrimSpace(string(data))
	if branch == "" {
		return DefaultBranch, nil
	}
	return branch, objstore.ValidBranch(branch)
}

func (m *Manager) WriteHead(branch string) error {
	if err := objstore.ValidBranch(branch); err != nil {
		return err
	}
	return m.meta.WriteFile(headFile, []byte(branch+"\n"))
}
