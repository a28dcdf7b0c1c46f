package config

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"
)

// IgnoreMatcher decides which paths under the project root the watcher skips.
// It combines the configured exclude globs with the root .gitignore.
type IgnoreMatcher struct {
	root     string
	patterns []string
	gi       *ignore.GitIgnore
}

// NewIgnoreMatcher builds a matcher for the watch section of cfg
func NewIgnoreMatcher(cfg *Config) *IgnoreMatcher {
	m := &IgnoreMatcher{
		root:     cfg.Project.Root,
		patterns: cfg.Watch.Exclude,
	}
	if cfg.Watch.RespectGitignore {
		m.gi = loadGitignore(cfg.Project.Root)
	}
	return m
}

func loadGitignore(root string) *ignore.GitIgnore {
	path := filepath.Join(root, ".gitignore")
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return gi
}

// Match reports whether path (absolute or root-relative) is excluded
func (m *IgnoreMatcher) Match(path string, isDir bool) bool {
	rel := path
	if filepath.IsAbs(path) {
		r, err := filepath.Rel(m.root, path)
		if err != nil || strings.HasPrefix(r, "..") {
			// Outside the project: include dirs configured elsewhere are never ignored
			return false
		}
		rel = r
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return false
	}

	candidates := []string{rel}
	if isDir {
		// Let "**/build/**" match the directory itself
		candidates = append(candidates, rel+"/")
	}
	for _, pattern := range m.patterns {
		for _, c := range candidates {
			if ok, _ := doublestar.Match(pattern, c); ok {
				return true
			}
		}
	}

	if m.gi != nil && m.gi.MatchesPath(rel) {
		return true
	}
	return false
}
