package resolve

import (
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/openmined/syncvault/internal/vfs"
)

// ConflictMarker is the dot-suffix inserted before the extension of a
// remote copy kept beside the local file.
const ConflictMarker = ".conflict"

// timeFormat stamps rotated conflict copies so they sort by time.
const (
	timeFormat       = "20060102150405"
	timestampPattern = `\d{14}`
)

var markerRegex = regexp.MustCompile(fmt.Sprintf(`%s(\.%s)?`, regexp.QuoteMeta(ConflictMarker), timestampPattern))

// IsConflictPath reports whether p names a conflict copy, rotated or not.
func IsConflictPath(p string) bool {
	return markerRegex.MatchString(path.Base(p))
}

// UnmarkedPath strips the conflict marker and any rotation stamp.
func UnmarkedPath(p string) string {
	dir, name := path.Split(p)
	return dir + markerRegex.ReplaceAllString(name, "")
}

// writeMarked stores data at the conflict path for p. An existing conflict
// copy is rotated aside first. It returns the path written.
func writeMarked(fs *vfs.FS, p string, data []byte, now time.Time) (string, error) {
	marked := asMarkedPath(p)

	exists, err := fs.Exists(marked)
	if err != nil {
		return "", err
	}
	if exists {
		rotated := asRotatedPath(marked, now)
		if err := fs.Rename(marked, rotated); err != nil {
			return "", fmt.Errorf("rotate %s to %s: %w", marked, rotated, err)
		}
		slog.Debug("rotated conflict copy", "from", marked, "to", rotated)
	}

	if err := fs.WriteFile(marked, data); err != nil {
		return "", err
	}
	return marked, nil
}

// asMarkedPath: "dir/file.txt" -> "dir/file.conflict.txt"
func asMarkedPath(p string) string {
	ext := path.Ext(p)
	if strings.HasPrefix(path.Base(p), ".") && path.Base(p) == ext {
		ext = ""
	}
	return strings.TrimSuffix(p, ext) + ConflictMarker + ext
}

// asRotatedPath: "file.conflict.txt" -> "file.conflict.20250712234500.txt"
func asRotatedPath(p string, t time.Time) string {
	ext := path.Ext(p)
	if ext == ConflictMarker {
		ext = ""
	}
	return fmt.Sprintf("%s.%s%s", strings.TrimSuffix(p, ext), t.Format(timeFormat), ext)
}
