package scanner

import (
	"path/filepath"

	ignore "github.com/sabhiram/go-gitignore"
)

// excluder matches root-relative paths against gitignore-style patterns.
type excluder struct {
	matcher *ignore.GitIgnore
}

func newExcluder(patterns []string) *excluder {
	if len(patterns) == 0 {
		return nil
	}
	return &excluder{matcher: ignore.CompileIgnoreLines(patterns...)}
}

// excluded reports whether rel (relative to the scan root) is skipped.
// Directory paths get a trailing slash so "dir/" patterns apply to them.
func (e *excluder) excluded(rel string, isDir bool) bool {
	if e == nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if isDir {
		rel += "/"
	}
	return e.matcher.MatchesPath(rel)
}
