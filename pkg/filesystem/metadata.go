package filesystem

import "time"

// Metadata encodes link-metadata for a filesystem entry, i.e. information
// about the entry itself rather than anything it might reference (symbolic
// links are never followed to build a Metadata value).
type Metadata struct {
	// Name is the base name of the filesystem entry.
	Name string
	// Mode is the raw mode of the filesystem entry.
	Mode Mode
	// Size is the size of the filesystem entry in bytes. For directories and
	// symbolic links this is the size of the directory listing or link
	// target representation on disk, not a meaningful content size.
	Size uint64
	// ModificationTime is the modification time of the filesystem entry
	// itself.
	ModificationTime time.Time
	// DeviceID is the device ID of the filesystem on which the entry
	// resides, taken from the st_dev field of stat_t.
	DeviceID uint64
	// FileID is the inode number of the entry.
	FileID uint64
}
