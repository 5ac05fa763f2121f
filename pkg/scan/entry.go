package scan

import (
	"time"

	"github.com/treesync/treesync/pkg/filter"
	"github.com/treesync/treesync/pkg/hash"
)

// Kind identifies the three closed entry variants the rest of the system
// switches on: regular files, directories, and symbolic links.
type Kind int

const (
	// KindFile represents a regular file.
	KindFile Kind = iota
	// KindDirectory represents a directory.
	KindDirectory
	// KindSymlink represents a symbolic link, never followed by the
	// Scanner.
	KindSymlink
)

// String returns a human-readable name for k, used in plan printing and log
// lines.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// filterKind adapts a scan.Kind to a filter.Kind, the two being defined
// independently to avoid a pkg/filter -> pkg/scan import cycle.
func (k Kind) filterKind() filter.Kind {
	switch k {
	case KindDirectory:
		return filter.KindDirectory
	case KindSymlink:
		return filter.KindSymlink
	default:
		return filter.KindFile
	}
}

// Entry is the unit a Scanner emits: one filesystem object, identified by
// its path relative to the tree root, along with link-metadata (metadata
// about the entry itself, never about a symlink's target).
type Entry struct {
	// Path is the absolute path as seen by the scanner.
	Path string
	// Rel is the path relative to the tree root; the key used for diffing.
	// Empty only for the root entry itself.
	Rel string
	// Size is the byte length. Always 0 for directories and symlinks (the
	// link's own size, not its target's, would be reported here if ever
	// needed, but nothing in this system consumes it).
	Size uint64
	// ModTime is the modification time of the entry itself, at least
	// second resolution.
	ModTime time.Time
	// Kind is one of {File, Directory, Symlink}.
	Kind Kind
	// SymlinkTarget is present iff Kind == KindSymlink. It may be an
	// absolute or relative path and is never resolved.
	SymlinkTarget string
	// ContentHash is present iff the caller requested content-hashing and
	// Kind == KindFile.
	ContentHash hash.Digest
}

// HasContentHash reports whether e carries a computed content hash.
func (e *Entry) HasContentHash() bool {
	return e.Kind == KindFile && !e.ContentHash.IsZero()
}
