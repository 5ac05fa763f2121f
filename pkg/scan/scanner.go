// Package scan walks a directory tree and produces the flat Entry list that
// the rest of treesync (Filter, Differ, Executor) operates on.
package scan

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/treesync/treesync/pkg/filter"
	"github.com/treesync/treesync/pkg/hash"
	"github.com/treesync/treesync/pkg/logging"
	"github.com/treesync/treesync/pkg/treesyncerr"
)

// DefaultWorkers is used when Options.Workers is left at zero.
const DefaultWorkers = 8

// Options configures a Scanner run.
type Options struct {
	// Filter decides which entries are included; nil includes everything.
	Filter *filter.Filter
	// WantHash requests a content hash for every included regular file.
	WantHash bool
	// IncludeEmptyDirs retains directories that end up with no included
	// descendants in the output ("-e"); when false (the "-s" default), such
	// directories are omitted entirely.
	IncludeEmptyDirs bool
	// Workers bounds both directory-descent and hashing concurrency. Zero
	// uses DefaultWorkers.
	Workers int
	// Logger receives warnings for unreadable, non-root entries. A nil
	// logger discards them silently.
	Logger *logging.Logger
}

func (o Options) workers() int64 {
	if o.Workers <= 0 {
		return DefaultWorkers
	}
	return int64(o.Workers)
}

// node is a directory's accumulated scan result, threaded back up through
// recursive calls so a parent can decide whether an empty child directory
// should be kept.
type node struct {
	entries []*Entry
}

// Walk scans the tree rooted at root and returns its flat Entry list. A
// failure to stat or list the root itself is a fatal error (the whole scan
// aborts); failures reading an individual descendant are reported as
// warnings through opts.Logger and that entry is skipped.
func Walk(ctx context.Context, root string, opts Options) ([]Entry, error) {
	rootInfo, err := os.Lstat(root)
	if err != nil {
		return nil, treesyncerr.Fatal(errors.Wrap(err, "unable to stat scan root"))
	}
	if !rootInfo.IsDir() {
		return nil, treesyncerr.Fatal(errors.New("scan root is not a directory"))
	}

	s := &scanner{
		opts:    opts,
		dirSem:  semaphore.NewWeighted(opts.workers()),
		hashSem: semaphore.NewWeighted(opts.workers()),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	var result *node
	group.Go(func() error {
		n, err := s.scanDir(groupCtx, group, root, "")
		result = n
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	flat := make([]Entry, 0, len(result.entries))
	for _, e := range result.entries {
		flat = append(flat, *e)
	}
	return flat, nil
}

type scanner struct {
	opts    Options
	dirSem  *semaphore.Weighted
	hashSem *semaphore.Weighted

	warnMu sync.Mutex
}

func (s *scanner) warn(format string, args ...any) {
	if s.opts.Logger != nil {
		s.warnMu.Lock()
		s.opts.Logger.Warnf(format, args...)
		s.warnMu.Unlock()
	}
}

// scanDir reads one directory's immediate children, recursing into
// subdirectories (fanned out via group, with dirSem bounding concurrent
// os.ReadDir calls rather than the whole recursive wait below — holding the
// semaphore across a subtree's full depth would deadlock once depth exceeds
// Workers) and dispatching hash jobs for included files (bounded by
// hashSem). It does not return until every subdirectory goroutine it
// dispatched has merged its own result into result.entries, so a caller
// that reads the returned node sees the complete subtree, not just what was
// available synchronously.
func (s *scanner) scanDir(ctx context.Context, group *errgroup.Group, absDir, relDir string) (*node, error) {
	if err := s.dirSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	children, err := os.ReadDir(absDir)
	s.dirSem.Release(1)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to list directory %q", absDir)
	}

	var (
		mu     sync.Mutex
		subWG  sync.WaitGroup
		result = &node{}
	)

	for _, child := range children {
		child := child
		childAbs := filepath.Join(absDir, child.Name())
		childRel := child.Name()
		if relDir != "" {
			childRel = path.Join(relDir, child.Name())
		}

		info, err := child.Info()
		if err != nil {
			s.warn("unable to stat %q: %s", childAbs, err.Error())
			continue
		}

		kind, symlinkTarget, ok := classify(info, childAbs, s)
		if !ok {
			continue
		}

		var size uint64
		if kind == KindFile {
			size = uint64(info.Size())
		}

		if s.opts.Filter != nil && !s.opts.Filter.Include(childRel, kind.filterKind(), size) {
			continue
		}

		entry := &Entry{
			Path:          childAbs,
			Rel:           childRel,
			Size:          size,
			ModTime:       info.ModTime(),
			Kind:          kind,
			SymlinkTarget: symlinkTarget,
		}

		switch kind {
		case KindDirectory:
			subWG.Add(1)
			group.Go(func() error {
				defer subWG.Done()
				child, err := s.scanDir(ctx, group, childAbs, childRel)
				if err != nil {
					if ctx.Err() != nil {
						return err
					}
					s.warn("skipping %q: %s", childAbs, err.Error())
					return nil
				}
				mu.Lock()
				if len(child.entries) > 0 || s.opts.IncludeEmptyDirs {
					result.entries = append(result.entries, entry)
				}
				result.entries = append(result.entries, child.entries...)
				mu.Unlock()
				return nil
			})
		case KindFile:
			mu.Lock()
			result.entries = append(result.entries, entry)
			mu.Unlock()
			if s.opts.WantHash {
				if err := s.hashSem.Acquire(ctx, 1); err != nil {
					return nil, err
				}
				group.Go(func() error {
					defer s.hashSem.Release(1)
					digest, err := hash.File(entry.Path)
					if err != nil {
						s.warn("unable to hash %q: %s", entry.Path, err.Error())
						return nil
					}
					entry.ContentHash = digest
					return nil
				})
			}
		case KindSymlink:
			mu.Lock()
			result.entries = append(result.entries, entry)
			mu.Unlock()
		}
	}

	subWG.Wait()
	return result, nil
}

// classify determines an entry's Kind and, for symlinks, reads its target.
// It returns ok=false if the entry should be silently skipped (an unreadable
// symlink target, reported as a warning).
func classify(info os.FileInfo, absPath string, s *scanner) (Kind, string, bool) {
	mode := info.Mode()
	switch {
	case mode&os.ModeSymlink != 0:
		target, err := os.Readlink(absPath)
		if err != nil {
			s.warn("unable to read symlink target for %q: %s", absPath, err.Error())
			return 0, "", false
		}
		return KindSymlink, target, true
	case mode.IsDir():
		return KindDirectory, "", true
	case mode.IsRegular():
		return KindFile, "", true
	default:
		// Sockets, devices, named pipes, and other special files have no
		// representation in the three-kind Entry model; skip them with a
		// warning rather than misclassifying them as regular files.
		s.warn("skipping %q: unsupported file type %s", absPath, mode.String())
		return 0, "", false
	}
}
