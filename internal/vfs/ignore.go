package vfs

import (
	"bufio"
	"bytes"
	"log/slog"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is the per-workspace ignore file, gitignore syntax.
const IgnoreFileName = ".syncvaultignore"

var defaultIgnoreLines = []string{
	// syncvault
	".syncvault/",
	"**/*.conflict.*",
	"**/*.conflict",
	// IDE/Editor-specific
	".vscode",
	".idea",
	"*.swp",
	"*~",
	// General excludes
	".git",
	"*.tmp",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
}

// IgnoreList decides which workspace paths never enter a snapshot.
type IgnoreList struct {
	ignore *gitignore.GitIgnore
	rules  int
}

// LoadIgnoreList compiles the default rules plus the workspace ignore file,
// when one exists at the root of fs.
func LoadIgnoreList(fs *FS, extra ...string) *IgnoreList {
	lines := append(append([]string{}, defaultIgnoreLines...), extra...)
	rules := 0

	data, err := fs.ReadFile(IgnoreFileName)
	if err == nil {
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			lines = append(lines, line)
			rules++
		}
		if err := scanner.Err(); err != nil {
			slog.Warn("read ignore file", "path", IgnoreFileName, "error", err)
		} else {
			slog.Debug("loaded ignore file", "path", IgnoreFileName, "rules", rules)
		}
	}

	return &IgnoreList{ignore: gitignore.CompileIgnoreLines(lines...), rules: rules}
}

func (l *IgnoreList) ShouldIgnore(path string) bool {
	if l == nil || l.ignore == nil {
		return false
	}
	return l.ignore.MatchesPath(path)
}

// Rules is the number of rules read from the workspace ignore file.
func (l *IgnoreList) Rules() int {
	return l.rules
}
