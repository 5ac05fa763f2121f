package plan

// OpType identifies which of the six operation shapes an Operation carries.
type OpType int

const (
	// OpCreateDir creates a directory (source has no destination
	// counterpart, or the destination counterpart was a non-directory and
	// has just been removed).
	OpCreateDir OpType = iota
	// OpCreate copies a new regular file from source to destination.
	OpCreate
	// OpUpdate overwrites an existing regular file, optionally using the
	// delta engine.
	OpUpdate
	// OpDelete removes a destination-only path (a file, symlink, or
	// directory).
	OpDelete
	// OpCreateSymlink creates a new symbolic link.
	OpCreateSymlink
	// OpUpdateSymlink replaces an existing symbolic link whose target
	// differs from source.
	OpUpdateSymlink
)

// String returns a human-readable name for t, used by plan printing at -v.
func (t OpType) String() string {
	switch t {
	case OpCreateDir:
		return "CreateDir"
	case OpCreate:
		return "Create"
	case OpUpdate:
		return "Update"
	case OpDelete:
		return "Delete"
	case OpCreateSymlink:
		return "CreateSymlink"
	case OpUpdateSymlink:
		return "UpdateSymlink"
	default:
		return "Unknown"
	}
}

// Operation is a single unit the Differ emits and the Executor consumes.
// Only the fields relevant to Type are populated.
type Operation struct {
	// Type selects which operation this is.
	Type OpType
	// Rel is the path relative to both tree roots. Populated for every
	// type except OpDelete, which instead carries an absolute destination
	// path (the source side may no longer have a corresponding entry to
	// derive a relative path from, e.g. under a purge of a renamed tree).
	Rel string
	// UseDelta is set for OpUpdate when both sizes clear the delta-eligible
	// size threshold and differ by less than half of the larger size.
	UseDelta bool
	// Target is the symlink target for OpCreateSymlink/OpUpdateSymlink.
	Target string
	// DestAbsPath is the absolute destination path for OpDelete.
	DestAbsPath string
	// isDir records, for OpDelete, whether the removed entry is a
	// directory, used by the delete-ordering sort and by the Executor to
	// choose between a plain unlink and a recursive directory removal.
	isDir bool
	// depth is the path's component count, used to order CreateDir
	// shallowest-first and directory Deletes deepest-first.
	depth int
}

// IsDir reports whether an OpDelete operation targets a directory.
func (o Operation) IsDir() bool {
	return o.isDir
}
