package filesystem

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ensureValidName verifies that name is a single path component (not ".",
// "..", or something containing a separator).
func ensureValidName(name string) error {
	if name == "." {
		return errors.New("name is directory reference")
	} else if name == ".." {
		return errors.New("name is parent directory reference")
	} else if strings.IndexByte(name, os.PathSeparator) != -1 {
		return errors.New("path separator appears in name")
	}
	return nil
}

// Directory represents an open directory on disk and provides race-free
// operations (via POSIX *at syscalls) on its contents, none of which follow
// symbolic links at the leaf position.
type Directory struct {
	descriptor int
	file       *os.File
}

// OpenDirectory opens the directory at the given path for use with the *at
// operations below.
func OpenDirectory(path string) (*Directory, error) {
	descriptor, err := unix.Open(path, unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open directory")
	}
	var metadata unix.Stat_t
	if err := unix.Fstat(descriptor, &metadata); err != nil {
		unix.Close(descriptor)
		return nil, errors.Wrap(err, "unable to stat directory")
	}
	if Mode(metadata.Mode)&ModeTypeMask != ModeTypeDirectory {
		unix.Close(descriptor)
		return nil, errors.New("path is not a directory")
	}
	return &Directory{descriptor: descriptor, file: os.NewFile(uintptr(descriptor), path)}, nil
}

// Close closes the directory.
func (d *Directory) Close() error {
	return d.file.Close()
}

// Descriptor exposes the raw directory file descriptor, for code that needs
// to pass it to other *at-style calls.
func (d *Directory) Descriptor() int {
	return d.descriptor
}

// CreateSubdirectory creates a new directory with the given name inside d.
func (d *Directory) CreateSubdirectory(name string, mode Mode) error {
	if err := ensureValidName(name); err != nil {
		return err
	}
	return unix.Mkdirat(d.descriptor, name, uint32(mode&ModePermissionsMask))
}

// CreateSymbolicLink creates a new symbolic link named name, pointing at
// target, inside d.
func (d *Directory) CreateSymbolicLink(name, target string) error {
	if err := ensureValidName(name); err != nil {
		return err
	}
	return unix.Symlinkat(target, d.descriptor, name)
}

// ReadSymbolicLink reads the target of the symbolic link named name inside
// d.
func (d *Directory) ReadSymbolicLink(name string) (string, error) {
	if err := ensureValidName(name); err != nil {
		return "", err
	}
	for size := 128; ; size *= 2 {
		buffer := make([]byte, size)
		n, err := unix.Readlinkat(d.descriptor, name, buffer)
		if err != nil {
			return "", errors.Wrap(err, "unable to read symbolic link")
		}
		if n < size {
			return string(buffer[:n]), nil
		}
	}
}

// RemoveFile removes the file or symbolic link named name inside d.
func (d *Directory) RemoveFile(name string) error {
	if err := ensureValidName(name); err != nil {
		return err
	}
	return unix.Unlinkat(d.descriptor, name, 0)
}

// RemoveDirectory removes the (empty) subdirectory named name inside d.
func (d *Directory) RemoveDirectory(name string) error {
	if err := ensureValidName(name); err != nil {
		return err
	}
	return unix.Unlinkat(d.descriptor, name, unix.AT_REMOVEDIR)
}

// ReadContentNames returns the base names of d's contents, excluding "."
// and "..".
func (d *Directory) ReadContentNames() ([]string, error) {
	names, err := d.file.Readdirnames(0)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read directory contents")
	}
	if _, err := unix.Seek(d.descriptor, 0, 0); err != nil {
		return nil, errors.Wrap(err, "unable to reset directory read pointer")
	}
	return names, nil
}

// StatAt returns link-metadata for the entry named name inside d, never
// following a trailing symbolic link.
func (d *Directory) StatAt(name string) (*Metadata, int, int, error) {
	if err := ensureValidName(name); err != nil {
		return nil, 0, 0, err
	}
	var raw unix.Stat_t
	if err := unix.Fstatat(d.descriptor, name, &raw, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return nil, 0, 0, err
	}
	return &Metadata{
		Name:             name,
		Mode:             Mode(raw.Mode),
		Size:             uint64(raw.Size),
		ModificationTime: time.Unix(raw.Mtim.Unix()),
		DeviceID:         uint64(raw.Dev),
		FileID:           uint64(raw.Ino),
	}, int(raw.Uid), int(raw.Gid), nil
}

// SetPermissions sets ownership and/or permission bits on the entry named
// name inside d, never traversing a trailing symbolic link. A nil ownership
// or a mode of 0 (after masking) skips the corresponding operation.
func (d *Directory) SetPermissions(name string, ownership *OwnershipSpecification, mode Mode) error {
	if err := ensureValidName(name); err != nil {
		return err
	}
	if ownership != nil && (ownership.ownerID != -1 || ownership.groupID != -1) {
		if err := unix.Fchownat(d.descriptor, name, ownership.ownerID, ownership.groupID, unix.AT_SYMLINK_NOFOLLOW); err != nil {
			return errors.Wrap(err, "unable to set ownership")
		}
	}
	if mode &= ModePermissionsMask; mode != 0 {
		// fchmodat doesn't support AT_SYMLINK_NOFOLLOW on Linux; open the
		// entry with O_NOFOLLOW and fchmod the resulting descriptor instead.
		fd, err := unix.Openat(d.descriptor, name, unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
		if err != nil {
			if errors.Is(err, unix.ELOOP) {
				// The entry is itself a symbolic link; permissions don't
				// apply to the link, so there's nothing to do.
				return nil
			}
			return errors.Wrap(err, "unable to open entry for permission change")
		}
		defer unix.Close(fd)
		if err := unix.Fchmod(fd, uint32(mode)); err != nil {
			return errors.Wrap(err, "unable to set permission bits")
		}
	}
	return nil
}

// SetModificationTime sets the modification time of the entry named name
// inside d to modificationTime, never following a trailing symbolic link.
// The access time is set to the same value, since most platforms require
// both to be specified together.
func (d *Directory) SetModificationTime(name string, modificationTime time.Time) error {
	if err := ensureValidName(name); err != nil {
		return err
	}
	spec := unix.NsecToTimespec(modificationTime.UnixNano())
	times := [2]unix.Timespec{spec, spec}
	return unix.UtimesNanoAt(d.descriptor, name, times[:], unix.AT_SYMLINK_NOFOLLOW)
}

// Rename performs an atomic rename from one directory-relative location to
// another. With a nil Directory, the corresponding name is resolved like a
// plain path (absolute, or relative to the working directory).
func Rename(sourceDirectory *Directory, sourceName string, targetDirectory *Directory, targetName string) error {
	sourceDescriptor, targetDescriptor := unix.AT_FDCWD, unix.AT_FDCWD
	if sourceDirectory != nil {
		sourceDescriptor = sourceDirectory.descriptor
	}
	if targetDirectory != nil {
		targetDescriptor = targetDirectory.descriptor
	}
	return unix.Renameat(sourceDescriptor, sourceName, targetDescriptor, targetName)
}

// IsCrossDeviceError reports whether err represents a cross-device rename
// failure (EXDEV).
func IsCrossDeviceError(err error) bool {
	return errors.Is(err, unix.EXDEV)
}

// EnsureParentDirectories creates every missing ancestor directory of path,
// mirroring os.MkdirAll but named to match the Executor's "pre-create
// parents" phase.
func EnsureParentDirectories(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}
