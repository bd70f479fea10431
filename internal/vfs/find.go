package vfs

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FindOptions selects files for a scan.
type FindOptions struct {
	// Include patterns in doublestar syntax; empty means every file.
	Include []string
	// Ignore prunes matching files and directories.
	Ignore *IgnoreList
	// SkipPrefixes are slash paths whose subtrees are never visited.
	SkipPrefixes []string
}

// FindFiles scans fs and returns the matching regular files sorted by path.
func (f *FS) FindFiles(opts FindOptions) ([]FileInfo, error) {
	for _, pattern := range opts.Include {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid include pattern %q", pattern)
		}
	}

	skipped := func(rel string) bool {
		for _, prefix := range opts.SkipPrefixes {
			prefix = strings.TrimSuffix(prefix, "/")
			if rel == prefix || strings.HasPrefix(rel, prefix+"/") {
				return true
			}
		}
		return false
	}

	var out []FileInfo
	err := f.walk("", func(rel string) bool {
		return skipped(rel) || opts.Ignore.ShouldIgnore(rel+"/")
	}, func(fi FileInfo) error {
		if skipped(fi.Path) || opts.Ignore.ShouldIgnore(fi.Path) {
			return nil
		}
		if len(opts.Include) > 0 && !matchAny(opts.Include, fi.Path) {
			return nil
		}
		out = append(out, fi)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func matchAny(patterns []string, p string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
	}
	return false
}
