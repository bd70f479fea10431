package workspace

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/openmined/syncvault/internal/utils"
)

// RelPath returns absPath relative to the root as a slash path. Paths
// outside the root are an error.
func (w *Workspace) RelPath(absPath string) (string, error) {
	rel, err := filepath.Rel(w.Root, absPath)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside the workspace", absPath)
	}
	return utils.NormPath(rel), nil
}

// AbsPath joins a workspace-relative slash path onto the root.
func (w *Workspace) AbsPath(rel string) string {
	return filepath.Join(w.Root, filepath.FromSlash(rel))
}

// IsInternal reports whether a workspace-relative path is metadata.
func IsInternal(rel string) bool {
	return utils.IsUnder(utils.NormPath(rel), MetaDir)
}
