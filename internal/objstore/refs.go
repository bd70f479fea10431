package objstore

import (
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/openmined/syncvault/internal/vfs"
)

const refsDir = "refs"

var (
	ErrInvalidBranch = errors.New("invalid branch name")
	branchPattern    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,99}$`)
)

// ValidBranch reports whether name can be used as a ref file name.
func ValidBranch(name string) error {
	if !branchPattern.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidBranch, name)
	}
	return nil
}

// RefPath is the mirror-relative path of a branch pointer.
func RefPath(branch string) string {
	return path.Join(refsDir, branch)
}

// ReadRef returns the snapshot id a branch points at. ok is false when the
// branch has no pointer yet.
func (s *Store) ReadRef(branch string) (id string, ok bool, err error) {
	if err := ValidBranch(branch); err != nil {
		return "", false, err
	}
	sealed, err := s.fs.ReadFile(RefPath(branch))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	plain, err := s.cipher.Decrypt(sealed)
	if err != nil {
		return "", false, fmt.Errorf("decrypt ref %s: %w", branch, err)
	}
	return strings.TrimSpace(string(plain)), true, nil
}

// WriteRef points branch at id. Unlike objects, refs are overwritten.
func (s *Store) WriteRef(branch, id string) error {
	if err := ValidBranch(branch); err != nil {
		return err
	}
	sealed, err := s.cipher.Encrypt([]byte(id))
	if err != nil {
		return fmt.Errorf("encrypt ref %s: %w", branch, err)
	}
	return s.fs.WriteFile(RefPath(branch), sealed)
}

// ListRefs returns every branch with a pointer, sorted.
func (s *Store) ListRefs() ([]string, error) {
	var names []string
	err := s.fs.Walk(refsDir, func(fi vfs.FileInfo) error {
		name := strings.TrimPrefix(fi.Path, refsDir+"/")
		if ValidBranch(name) == nil {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
