package executor

import (
	"context"
	"os"

	"github.com/treesync/treesync/pkg/filesystem"
	"github.com/treesync/treesync/pkg/logging"
	"github.com/treesync/treesync/pkg/must"
)

// SmallFileCopier copies a single source file to a destination path. The
// default implementation is a straight stream copy; an external collaborator
// (e.g. an mmap- or io_uring-backed copier) could satisfy the same
// interface to fast-path small files without the Executor's scheduling
// logic needing to change (an mmap/io_uring optimization is left as exactly
// this kind of pluggable collaborator, not implemented here).
type SmallFileCopier interface {
	Copy(ctx context.Context, sourcePath, destinationPath string, permissions os.FileMode) (uint64, error)
}

// streamCopier is the default SmallFileCopier: open, stream, atomic rename.
type streamCopier struct {
	logger *logging.Logger
}

// NewStreamCopier returns the default SmallFileCopier.
func NewStreamCopier(logger *logging.Logger) SmallFileCopier {
	return &streamCopier{logger: logger}
}

func (c *streamCopier) Copy(ctx context.Context, sourcePath, destinationPath string, permissions os.FileMode) (uint64, error) {
	source, err := os.Open(sourcePath)
	if err != nil {
		return 0, err
	}
	defer must.Close(source, c.logger)

	written, err := filesystem.CopyFileAtomic(source, destinationPath, permissions, c.logger)
	if err != nil {
		return 0, err
	}
	return uint64(written), nil
}
