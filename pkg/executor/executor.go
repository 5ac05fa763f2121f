// Package executor schedules and runs a plan's operations against the
// filesystem: directories are created first (serially), file and symlink
// operations run in a bounded worker pool, and deletes run last in the
// order the Differ already established (files before directories,
// directories deepest-first).
package executor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/treesync/treesync/pkg/codec"
	"github.com/treesync/treesync/pkg/filesystem"
	"github.com/treesync/treesync/pkg/logging"
	"github.com/treesync/treesync/pkg/metadata"
	"github.com/treesync/treesync/pkg/must"
	"github.com/treesync/treesync/pkg/plan"
	"github.com/treesync/treesync/pkg/progress"
	"github.com/treesync/treesync/pkg/retry"
	"github.com/treesync/treesync/pkg/rsync"
	"github.com/treesync/treesync/pkg/stats"
)

// DefaultSmallFileThreshold is the default boundary between batched
// "small" operations and one-per-task "large" operations.
const DefaultSmallFileThreshold = 1 << 20

// defaultMaxWorkers is the absolute worker-count ceiling; resolveWorkerCount
// lowers it to a quarter of the file-descriptor soft limit when that is
// smaller.
const defaultMaxWorkers = 512

// smallBatchSize is how many small operations one worker-pool task handles
// in sequence, amortizing per-task scheduling overhead.
const smallBatchSize = 16

// Options configures a single Executor run.
type Options struct {
	SourceRoot string
	DestRoot   string

	Workers            int
	SmallFileThreshold uint64
	MoveFiles          bool
	Purge              bool

	// Verbosity at 2 or above ("-vv") logs each operation as it completes,
	// in addition to whatever plan listing the caller prints up front.
	Verbosity int

	BlockSize uint64
	Codec     *codec.Codec

	Metadata *metadata.Copier
	Retry    retry.Config
	Copier   SmallFileCopier

	Stats    *stats.Stats
	Progress *progress.Reporter
	Logger   *logging.Logger
}

// Executor runs a Plan's operations in distinct phases, bounded by a
// worker pool sized from the process's resource limits.
type Executor struct {
	opts   Options
	engine *rsync.Engine
}

// New constructs an Executor, resolving any zero-valued options to their
// defaults and capping the worker count.
func New(opts Options) (*Executor, error) {
	workers, err := resolveWorkerCount(opts.Workers)
	if err != nil {
		return nil, err
	}
	opts.Workers = workers

	if opts.SmallFileThreshold == 0 {
		opts.SmallFileThreshold = DefaultSmallFileThreshold
	}
	if opts.Copier == nil {
		opts.Copier = NewStreamCopier(opts.Logger)
	}
	if opts.Stats == nil {
		opts.Stats = stats.New()
	}
	warnMoveWithPurge(opts)

	return &Executor{
		opts:   opts,
		engine: rsync.New(opts.BlockSize, opts.Codec),
	}, nil
}

// resolveWorkerCount applies a file-descriptor-derived ceiling: a requested
// worker count above the ceiling is rejected outright rather than silently
// clamped, so the caller learns their -mt value was unreasonable.
func resolveWorkerCount(requested int) (int, error) {
	ceiling := defaultMaxWorkers
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err == nil {
		if derived := int(limit.Cur / 4); derived > 0 && derived < ceiling {
			ceiling = derived
		}
	}

	if requested <= 0 {
		workers := ceiling
		if cpuWorkers := runtime.NumCPU(); cpuWorkers < workers {
			workers = cpuWorkers
		}
		return workers, nil
	}
	if requested > ceiling {
		return 0, errors.Errorf("requested worker count %d exceeds platform ceiling %d derived from file descriptor limits", requested, ceiling)
	}
	return requested, nil
}

// Run executes every operation in p, in phase order, and returns the first
// fatal error encountered. A single non-CreateDir operation's failure is
// recorded as a warning on Stats rather than aborting the run; a top-level
// CreateDir failure is fatal because every operation beneath it depends on
// the directory existing.
func (e *Executor) Run(ctx context.Context, p plan.Plan) error {
	createDirs, fileOps, deletes := partitionByPhase(p)

	if e.opts.Progress != nil {
		e.opts.Progress.Start()
	}

	if err := e.runCreateDirs(ctx, createDirs); err != nil {
		return err
	}

	if err := e.preCreateParents(fileOps); err != nil {
		return errors.Wrap(err, "unable to pre-create parent directories")
	}

	if err := e.runFileOps(ctx, fileOps); err != nil {
		return err
	}

	e.runDeletes(deletes)

	return nil
}

func partitionByPhase(p plan.Plan) (createDirs, fileOps, deletes plan.Plan) {
	for _, op := range p {
		switch op.Type {
		case plan.OpCreateDir:
			createDirs = append(createDirs, op)
		case plan.OpDelete:
			deletes = append(deletes, op)
		default:
			fileOps = append(fileOps, op)
		}
	}
	return
}

// runCreateDirs creates directories serially, in the shallowest-first order
// the Differ already guarantees, so each CreateDir's parent is guaranteed to
// already exist. Creation goes through the parent's Directory handle
// (CreateSubdirectory) rather than os.Mkdir, the same *at-based idiom the
// rest of this package uses for every other mutation.
func (e *Executor) runCreateDirs(ctx context.Context, ops plan.Plan) error {
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(e.opts.DestRoot, op.Rel)
		parent, err := filesystem.OpenDirectory(filepath.Dir(path))
		if err != nil {
			return errors.Wrapf(err, "unable to open parent of directory %q", op.Rel)
		}
		err = parent.CreateSubdirectory(filepath.Base(path), filesystem.Mode(0755))
		must.Close(parent, e.opts.Logger)
		if err != nil && !os.IsExist(err) {
			return errors.Wrapf(err, "unable to create directory %q", op.Rel)
		}
		e.applyDirMetadata(path)
		e.opts.Stats.AddFilesProcessed(1)
		e.logOpDone(op)
		if e.opts.Progress != nil {
			e.opts.Progress.Report(0)
		}
	}
	return nil
}

// preCreateParents creates every distinct parent directory phase 2's
// operations will need, eliminating per-file mkdir races before the worker
// pool fans out.
func (e *Executor) preCreateParents(ops plan.Plan) error {
	seen := make(map[string]bool)
	for _, op := range ops {
		destPath := filepath.Join(e.opts.DestRoot, op.Rel)
		dir := filepath.Dir(destPath)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		if err := filesystem.EnsureParentDirectories(destPath); err != nil {
			return err
		}
	}
	return nil
}

// runFileOps partitions non-delete operations into small (batched) and
// large (one-per-task) groups and runs both through a bounded worker pool.
func (e *Executor) runFileOps(ctx context.Context, ops plan.Plan) error {
	var small, large plan.Plan
	for _, op := range ops {
		if e.operationSize(op) < e.opts.SmallFileThreshold {
			small = append(small, op)
		} else {
			large = append(large, op)
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.opts.Workers)

	for start := 0; start < len(small); start += smallBatchSize {
		end := start + smallBatchSize
		if end > len(small) {
			end = len(small)
		}
		batch := small[start:end]
		group.Go(func() error {
			for _, op := range batch {
				e.runFileOpWithRecovery(groupCtx, op)
			}
			return nil
		})
	}

	for _, op := range large {
		op := op
		group.Go(func() error {
			e.runFileOpWithRecovery(groupCtx, op)
			return nil
		})
	}

	return group.Wait()
}

// operationSize estimates the bytes an operation will move, used to sort it
// into the small or large partition. Symlinks, directories, and operations
// whose source side can't be statted are always treated as small.
func (e *Executor) operationSize(op plan.Operation) uint64 {
	sourcePath := filepath.Join(e.opts.SourceRoot, op.Rel)
	parent, err := filesystem.OpenDirectory(filepath.Dir(sourcePath))
	if err != nil {
		return 0
	}
	defer must.Close(parent, e.opts.Logger)

	info, _, _, err := parent.StatAt(filepath.Base(sourcePath))
	if err != nil || info.Mode&filesystem.ModeTypeMask == filesystem.ModeTypeDirectory {
		return 0
	}
	return info.Size
}

// runFileOpWithRecovery runs a single operation, recording any failure as a
// Stats warning instead of aborting the run.
func (e *Executor) runFileOpWithRecovery(ctx context.Context, op plan.Operation) {
	if err := ctx.Err(); err != nil {
		return
	}
	if err := e.runFileOp(ctx, op); err != nil {
		e.opts.Stats.Warn(errors.Wrapf(err, "%s %s", op.Type, op.Rel).Error())
		return
	}
	e.opts.Stats.AddFilesProcessed(1)
	e.logOpDone(op)
}

// logOpDone echoes a just-completed operation when running at "-vv".
func (e *Executor) logOpDone(op plan.Operation) {
	if e.opts.Verbosity >= 2 {
		e.opts.Logger.Printf("%s %s", op.Type, op.Rel)
	}
}

func (e *Executor) runFileOp(ctx context.Context, op plan.Operation) error {
	switch op.Type {
	case plan.OpCreate:
		return e.copyFile(ctx, op, false)
	case plan.OpUpdate:
		return e.copyFile(ctx, op, op.UseDelta)
	case plan.OpCreateSymlink:
		return e.writeSymlink(op, false)
	case plan.OpUpdateSymlink:
		return e.writeSymlink(op, true)
	default:
		return errors.Errorf("unexpected phase-2 operation type %v", op.Type)
	}
}

func (e *Executor) copyFile(ctx context.Context, op plan.Operation, useDelta bool) error {
	sourcePath := filepath.Join(e.opts.SourceRoot, op.Rel)
	destPath := filepath.Join(e.opts.DestRoot, op.Rel)

	info, err := os.Stat(sourcePath)
	if err != nil {
		return errors.Wrap(err, "unable to stat source file")
	}
	permissions := info.Mode().Perm()

	description := op.Type.String() + " " + op.Rel
	var bytesWritten uint64
	err = retry.Do(ctx, e.opts.Retry, description, e.opts.Logger, e.opts.Stats, func() error {
		var copyErr error
		if useDelta {
			bytesWritten, copyErr = e.copyFileDelta(sourcePath, destPath, permissions)
		} else {
			bytesWritten, copyErr = e.opts.Copier.Copy(ctx, sourcePath, destPath, permissions)
		}
		return copyErr
	})
	if err != nil {
		return err
	}

	e.opts.Stats.AddBytesTransferred(bytesWritten)
	if e.opts.Progress != nil {
		e.opts.Progress.Report(bytesWritten)
	}

	e.applyFileMetadata(destPath, info)

	if e.opts.MoveFiles {
		must.Succeed(os.Remove(sourcePath), "remove source after move", e.opts.Logger)
	}
	return nil
}

// copyFileDelta implements the delta-enabled Update path:
// compute the destination's block signature, scan the source against it,
// and apply the resulting instructions to reconstruct the new bytes.
func (e *Executor) copyFileDelta(sourcePath, destPath string, permissions os.FileMode) (uint64, error) {
	destination, err := os.ReadFile(destPath)
	if err != nil {
		return 0, errors.Wrap(err, "unable to read destination for delta")
	}
	source, err := os.ReadFile(sourcePath)
	if err != nil {
		return 0, errors.Wrap(err, "unable to read source for delta")
	}

	signature := e.engine.Signature(destination)
	instructions, err := e.engine.Deltafy(source, destination, signature)
	if err != nil {
		return 0, errors.Wrap(err, "unable to compute delta")
	}

	var blockRefs uint64
	for _, instruction := range instructions {
		if instruction.Type == rsync.InstructionBlockRef {
			blockRefs++
		}
	}
	e.opts.Stats.AddBlocksMatched(blockRefs)

	patched, err := e.engine.Patch(destination, instructions)
	if err != nil {
		return 0, errors.Wrap(err, "unable to apply delta")
	}

	written, err := filesystem.CopyFileAtomic(bytes.NewReader(patched), destPath, permissions, e.opts.Logger)
	if err != nil {
		return 0, err
	}
	return uint64(written), nil
}

func (e *Executor) writeSymlink(op plan.Operation, replace bool) error {
	destPath := filepath.Join(e.opts.DestRoot, op.Rel)
	parentDir, err := filesystem.OpenDirectory(filepath.Dir(destPath))
	if err != nil {
		return errors.Wrap(err, "unable to open parent directory")
	}
	defer must.Close(parentDir, e.opts.Logger)

	name := filepath.Base(destPath)
	current, readErr := parentDir.ReadSymbolicLink(name)
	alreadyCorrect := readErr == nil && current == op.Target
	if replace && !alreadyCorrect {
		must.Succeed(parentDir.RemoveFile(name), "remove existing symlink before replace", e.opts.Logger)
	}
	if !alreadyCorrect {
		if err := parentDir.CreateSymbolicLink(name, op.Target); err != nil {
			return errors.Wrap(err, "unable to create symbolic link")
		}
	}

	if e.opts.Metadata != nil {
		source := metadata.Source{IsSymlink: true}
		sourcePath := filepath.Join(e.opts.SourceRoot, op.Rel)
		if info, statErr := os.Lstat(sourcePath); statErr == nil {
			source.ModTime = info.ModTime()
			source.OwnerID, source.GroupID = ownershipOf(info)
		}
		must.Succeed(e.opts.Metadata.Apply(parentDir, name, source), "apply symlink metadata", e.opts.Logger)
	}
	if e.opts.MoveFiles {
		sourcePath := filepath.Join(e.opts.SourceRoot, op.Rel)
		must.Succeed(os.Remove(sourcePath), "remove source symlink after move", e.opts.Logger)
	}
	if e.opts.Progress != nil {
		e.opts.Progress.Report(0)
	}
	return nil
}

// applyFileMetadata applies the configured metadata subset to a just-copied
// regular file, using info (already stat'd during the copy) as the source.
func (e *Executor) applyFileMetadata(destPath string, info os.FileInfo) {
	if e.opts.Metadata == nil {
		return
	}
	parentDir, err := filesystem.OpenDirectory(filepath.Dir(destPath))
	if err != nil {
		e.opts.Logger.Warnf("unable to open parent directory to apply metadata: %s", err.Error())
		return
	}
	defer must.Close(parentDir, e.opts.Logger)

	ownerID, groupID := ownershipOf(info)
	source := metadata.Source{
		ModTime:     info.ModTime(),
		Permissions: info.Mode(),
		OwnerID:     ownerID,
		GroupID:     groupID,
	}
	must.Succeed(e.opts.Metadata.Apply(parentDir, filepath.Base(destPath), source), "apply file metadata", e.opts.Logger)
}

func (e *Executor) applyDirMetadata(destPath string) {
	if e.opts.Metadata == nil {
		return
	}
	info, err := os.Stat(filepath.Join(e.opts.SourceRoot, relOf(e.opts.DestRoot, destPath)))
	if err != nil {
		return
	}
	parentDir, err := filesystem.OpenDirectory(filepath.Dir(destPath))
	if err != nil {
		return
	}
	defer must.Close(parentDir, e.opts.Logger)

	ownerID, groupID := ownershipOf(info)
	source := metadata.Source{
		ModTime:     info.ModTime(),
		Permissions: info.Mode(),
		OwnerID:     ownerID,
		GroupID:     groupID,
	}
	must.Succeed(e.opts.Metadata.Apply(parentDir, filepath.Base(destPath), source), "apply directory metadata", e.opts.Logger)
}

func relOf(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.Base(path)
	}
	return rel
}

// runDeletes removes destination-only paths in the plan order the Differ
// already established: files before directories, directories deepest-first.
// Deletion failures are recorded as warnings, not fatal errors.
func (e *Executor) runDeletes(ops plan.Plan) {
	for _, op := range ops {
		var err error
		if op.IsDir() {
			err = e.removeTree(op.DestAbsPath)
		} else {
			err = e.removeEntry(op.DestAbsPath)
		}
		if err != nil {
			e.opts.Stats.Warn(errors.Wrapf(err, "delete %s", op.DestAbsPath).Error())
			continue
		}
		e.opts.Stats.AddFilesProcessed(1)
		if e.opts.Verbosity >= 2 {
			e.opts.Logger.Printf("%s %s", op.Type, op.DestAbsPath)
		}
	}
}

// removeEntry unlinks a single file or symbolic link via its parent
// directory's descriptor, the same race-free idiom every other mutation in
// this package uses.
func (e *Executor) removeEntry(path string) error {
	parent, err := filesystem.OpenDirectory(filepath.Dir(path))
	if err != nil {
		return err
	}
	defer must.Close(parent, e.opts.Logger)
	return parent.RemoveFile(filepath.Base(path))
}

// removeTree recursively empties and removes the directory at path using
// Directory's *at operations (ReadContentNames, StatAt, RemoveFile,
// RemoveDirectory) instead of os.RemoveAll, so a symbolic link planted
// where a subdirectory used to be is never followed into.
func (e *Executor) removeTree(path string) error {
	dir, err := filesystem.OpenDirectory(path)
	if err != nil {
		return err
	}

	names, err := dir.ReadContentNames()
	if err != nil {
		must.Close(dir, e.opts.Logger)
		return err
	}

	for _, name := range names {
		info, _, _, err := dir.StatAt(name)
		if err != nil {
			must.Close(dir, e.opts.Logger)
			return err
		}
		if info.Mode&filesystem.ModeTypeMask == filesystem.ModeTypeDirectory {
			if err := e.removeTree(filepath.Join(path, name)); err != nil {
				must.Close(dir, e.opts.Logger)
				return err
			}
			continue
		}
		if err := dir.RemoveFile(name); err != nil {
			must.Close(dir, e.opts.Logger)
			return err
		}
	}
	must.Close(dir, e.opts.Logger)

	parent, err := filesystem.OpenDirectory(filepath.Dir(path))
	if err != nil {
		return err
	}
	defer must.Close(parent, e.opts.Logger)
	return parent.RemoveDirectory(filepath.Base(path))
}

// ownershipOf extracts the POSIX owner/group IDs from info, or (-1, -1) if
// the underlying platform stat type doesn't expose them.
func ownershipOf(info os.FileInfo) (int, int) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return -1, -1
	}
	return int(stat.Uid), int(stat.Gid)
}

// warnMoveWithPurge logs a move-mode safety notice when both
// MoveFiles and Purge are set: an interrupted run deletes source content
// irrecoverably.
func warnMoveWithPurge(opts Options) {
	if opts.MoveFiles && opts.Purge {
		opts.Logger.Warnf("--mov combined with --purge/--mir: an interrupted run will have already removed some source files, which cannot be recovered")
	}
}
