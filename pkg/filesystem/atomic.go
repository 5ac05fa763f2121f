package filesystem

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/treesync/treesync/pkg/logging"
	"github.com/treesync/treesync/pkg/must"
)

// TemporaryNamePrefix is the prefix used for intermediate temporary files
// created during atomic replace operations. Using a recognizable prefix
// means a crashed run's leftovers are easy to spot and a subsequent Scanner
// pass can choose to ignore them.
const TemporaryNamePrefix = ".treesync-tmp-"

// WriteFileAtomic writes data to path by staging it in a temporary file in
// the same directory and renaming it into place, so that a crash or
// concurrent reader never observes a partially-written file.
func WriteFileAtomic(path string, data []byte, permissions os.FileMode, logger *logging.Logger) error {
	temporary, err := os.CreateTemp(filepath.Dir(path), TemporaryNamePrefix)
	if err != nil {
		return errors.Wrap(err, "unable to create temporary file")
	}

	if _, err = temporary.Write(data); err != nil {
		must.Close(temporary, logger)
		must.OSRemove(temporary.Name(), logger)
		return errors.Wrap(err, "unable to write temporary file")
	}
	if err = temporary.Close(); err != nil {
		must.OSRemove(temporary.Name(), logger)
		return errors.Wrap(err, "unable to close temporary file")
	}
	if err = os.Chmod(temporary.Name(), permissions); err != nil {
		must.OSRemove(temporary.Name(), logger)
		return errors.Wrap(err, "unable to set temporary file permissions")
	}
	if err = renameIntoPlace(temporary.Name(), path, logger); err != nil {
		must.OSRemove(temporary.Name(), logger)
		return err
	}
	return nil
}

// CopyFileAtomic streams source into path the same way WriteFileAtomic does
// for an in-memory buffer: staged in a temporary file in path's directory,
// then renamed into place so a reader never observes a partial write. It
// returns the number of bytes copied.
func CopyFileAtomic(source io.Reader, path string, permissions os.FileMode, logger *logging.Logger) (int64, error) {
	temporary, err := os.CreateTemp(filepath.Dir(path), TemporaryNamePrefix)
	if err != nil {
		return 0, errors.Wrap(err, "unable to create temporary file")
	}

	written, err := io.Copy(temporary, source)
	if err != nil {
		must.Close(temporary, logger)
		must.OSRemove(temporary.Name(), logger)
		return 0, errors.Wrap(err, "unable to stream data into temporary file")
	}
	if err = temporary.Close(); err != nil {
		must.OSRemove(temporary.Name(), logger)
		return 0, errors.Wrap(err, "unable to close temporary file")
	}
	if err = os.Chmod(temporary.Name(), permissions); err != nil {
		must.OSRemove(temporary.Name(), logger)
		return 0, errors.Wrap(err, "unable to set temporary file permissions")
	}
	if err = renameIntoPlace(temporary.Name(), path, logger); err != nil {
		must.OSRemove(temporary.Name(), logger)
		return 0, err
	}
	return written, nil
}

// renameIntoPlace renames temporaryPath onto path and, on success, fsyncs
// path's containing directory so the rename itself is durable across a
// crash, not just the file's own data. temporaryPath is always created
// inside the same directory as path, so a cross-device error here would be
// unusual, but is still distinguished from other failures via
// IsCrossDeviceError rather than surfaced as an opaque rename error.
func renameIntoPlace(temporaryPath, path string, logger *logging.Logger) error {
	if err := Rename(nil, temporaryPath, nil, path); err != nil {
		if IsCrossDeviceError(err) {
			return errors.Wrap(err, "unable to rename temporary file into place: source and destination are on different devices")
		}
		return errors.Wrap(err, "unable to rename temporary file into place")
	}

	dir, err := OpenDirectory(filepath.Dir(path))
	if err != nil {
		logger.Warnf("unable to open directory to fsync after atomic rename: %s", err.Error())
		return nil
	}
	defer must.Close(dir, logger)
	if err := unix.Fsync(dir.Descriptor()); err != nil {
		logger.Warnf("unable to fsync directory after atomic rename: %s", err.Error())
	}
	return nil
}
