package filesystem

import (
	"golang.org/x/sys/unix"
)

// Mode is an opaque type representing a file mode. It is the raw underlying
// file mode from the Stat_t structure (as opposed to the os package's
// FileMode implementation), so it can be compared directly against the
// ModeType* constants below.
type Mode uint32

const (
	// ModeTypeMask isolates type information from a Mode.
	ModeTypeMask = Mode(unix.S_IFMT)
	// ModeTypeDirectory represents a directory.
	ModeTypeDirectory = Mode(unix.S_IFDIR)
	// ModeTypeFile represents a regular file.
	ModeTypeFile = Mode(unix.S_IFREG)
	// ModeTypeSymbolicLink represents a symbolic link.
	ModeTypeSymbolicLink = Mode(unix.S_IFLNK)
	// ModePermissionsMask isolates permission bits from a Mode.
	ModePermissionsMask = Mode(unix.S_IRWXU | unix.S_IRWXG | unix.S_IRWXO)
)
