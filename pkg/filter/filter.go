// Package filter decides whether a scanned path is included in a sync run:
// name/directory glob excludes and size bounds on regular files.
package filter

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

// Kind mirrors the entry kind a Filter decision is made against, avoiding an
// import cycle with pkg/scan (which depends on this package, not the other
// way around).
type Kind int

const (
	// KindFile represents a regular file.
	KindFile Kind = iota
	// KindDirectory represents a directory.
	KindDirectory
	// KindSymlink represents a symbolic link.
	KindSymlink
)

// Config holds a Filter's matching rules.
type Config struct {
	// ExcludeFiles holds glob patterns tested against files and symlinks.
	ExcludeFiles []string
	// ExcludeDirs holds glob patterns tested against directories. A match on
	// any ancestor directory excludes everything beneath it.
	ExcludeDirs []string
	// MinSize, if non-zero, is the minimum size (inclusive) a regular file
	// must have to be included.
	MinSize uint64
	// MaxSize, if non-zero, is the maximum size (inclusive) a regular file
	// may have to be included.
	MaxSize uint64
}

// Filter evaluates a Config against candidate paths. It is safe for
// concurrent use by multiple Scanner workers: it holds no mutable state
// beyond the compiled-at-construction pattern lists.
type Filter struct {
	excludeFiles []string
	excludeDirs  []string
	minSize      uint64
	maxSize      uint64
}

// New validates cfg's glob patterns and returns a ready-to-use Filter.
func New(cfg Config) (*Filter, error) {
	for _, pattern := range cfg.ExcludeFiles {
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.Errorf("invalid exclude-files pattern: %q", pattern)
		}
	}
	for _, pattern := range cfg.ExcludeDirs {
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.Errorf("invalid exclude-dirs pattern: %q", pattern)
		}
	}
	if cfg.MaxSize != 0 && cfg.MinSize > cfg.MaxSize {
		return nil, errors.Errorf("min size %d exceeds max size %d", cfg.MinSize, cfg.MaxSize)
	}
	return &Filter{
		excludeFiles: cfg.ExcludeFiles,
		excludeDirs:  cfg.ExcludeDirs,
		minSize:      cfg.MinSize,
		maxSize:      cfg.MaxSize,
	}, nil
}

// matchesAny reports whether name or rel matches any of patterns, testing
// both the basename and the full root-relative path.
func matchesAny(patterns []string, name, rel string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// ancestorExcluded reports whether any ancestor directory of rel (or rel
// itself, when kind is KindDirectory) matches an exclude-dirs pattern.
// Directory exclusion is recursive: everything beneath an excluded
// directory is excluded too, so the Scanner should call this once per
// directory and, if it returns true, skip descending entirely.
func (f *Filter) ancestorExcluded(rel string, kind Kind) bool {
	if kind == KindDirectory {
		base := path.Base(rel)
		if matchesAny(f.excludeDirs, base, rel) {
			return true
		}
	}
	dir := path.Dir(rel)
	for dir != "." && dir != "/" && dir != "" {
		base := path.Base(dir)
		if matchesAny(f.excludeDirs, base, dir) {
			return true
		}
		parent := path.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return false
}

// Include reports whether the entry at root-relative path rel, of the given
// kind and (for files) size, should be included in the sync.
func (f *Filter) Include(rel string, kind Kind, size uint64) bool {
	rel = strings.TrimPrefix(path.Clean(rel), "./")

	if f.ancestorExcluded(rel, kind) {
		return false
	}

	if kind != KindDirectory {
		base := path.Base(rel)
		if matchesAny(f.excludeFiles, base, rel) {
			return false
		}
	}

	if kind == KindFile {
		if f.minSize != 0 && size < f.minSize {
			return false
		}
		if f.maxSize != 0 && size > f.maxSize {
			return false
		}
	}

	return true
}
