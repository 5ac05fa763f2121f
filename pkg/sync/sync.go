// Package sync wires the full pipeline together: Scanner(source) and
// Scanner(destination) feed the Differ, whose Plan either gets printed (dry
// run) or handed to the Executor.
package sync

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/treesync/treesync/pkg/config"
	"github.com/treesync/treesync/pkg/executor"
	"github.com/treesync/treesync/pkg/logging"
	"github.com/treesync/treesync/pkg/metadata"
	"github.com/treesync/treesync/pkg/plan"
	"github.com/treesync/treesync/pkg/progress"
	"github.com/treesync/treesync/pkg/retry"
	"github.com/treesync/treesync/pkg/runid"
	"github.com/treesync/treesync/pkg/scan"
	"github.com/treesync/treesync/pkg/stats"
)

// Result summarizes a completed run, whether it actually executed the plan
// or only computed it (dry run).
type Result struct {
	Plan  plan.Plan
	Stats *stats.Stats
	// RunID tags every log line this run produced, so that concurrent runs
	// appending to the same --log file can be told apart.
	RunID string
	// DryRun is true if the plan was computed but not executed.
	DryRun bool
}

// Run executes the full reconciliation pipeline for a single, resolved
// configuration. callback, if non-nil, receives throttled progress updates.
func Run(ctx context.Context, resolved *config.Resolved, logger *logging.Logger, callback progress.Callback) (*Result, error) {
	id, err := runid.New()
	if err != nil {
		return nil, errors.Wrap(err, "unable to generate run identifier")
	}
	logger = logger.Sublogger(id)

	if err := os.MkdirAll(resolved.Destination, 0755); err != nil {
		return nil, errors.Wrap(err, "unable to create destination root")
	}

	srcEntries, err := scanTree(ctx, resolved.Source, resolved, logger)
	if err != nil {
		return nil, errors.Wrap(err, "unable to scan source")
	}
	dstEntries, err := scanTree(ctx, resolved.Destination, resolved, logger)
	if err != nil {
		return nil, errors.Wrap(err, "unable to scan destination")
	}

	p := plan.Diff(srcEntries, dstEntries, plan.Options{
		UseHash: resolved.Checksum,
		Purge:   resolved.Purge,
	})

	if resolved.DryRun {
		return &Result{Plan: p, RunID: id, DryRun: true}, nil
	}

	runStats := stats.New()
	totalBytes := totalSourceBytes(srcEntries)
	reporter := progress.New(uint64(len(p)), totalBytes, callback)

	exec, err := executor.New(executor.Options{
		SourceRoot:         resolved.Source,
		DestRoot:           resolved.Destination,
		Workers:            resolved.Workers,
		MoveFiles:          resolved.MoveFiles,
		Purge:              resolved.Purge,
		BlockSize:          resolved.BlockSize,
		Codec:              resolved.Codec,
		Metadata:           metadata.NewCopier(resolved.MetadataCopy, logger),
		Retry:              retry.Config{MaxRetries: resolved.RetryCount, WaitSeconds: resolved.RetryWait},
		Stats:              runStats,
		Progress:           reporter,
		Logger:             logger,
		Verbosity:          resolved.Verbosity,
		SmallFileThreshold: executor.DefaultSmallFileThreshold,
	})
	if err != nil {
		return nil, err
	}

	if err := exec.Run(ctx, p); err != nil {
		return nil, err
	}

	return &Result{Plan: p, Stats: runStats, RunID: id}, nil
}

func scanTree(ctx context.Context, root string, resolved *config.Resolved, logger *logging.Logger) ([]scan.Entry, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}
	return scan.Walk(ctx, root, scan.Options{
		Filter:           resolved.Filter,
		WantHash:         resolved.Checksum,
		IncludeEmptyDirs: resolved.IncludeEmptyDirs,
		Workers:          resolved.Workers,
		Logger:           logger,
	})
}

func totalSourceBytes(entries []scan.Entry) uint64 {
	var total uint64
	for _, e := range entries {
		if e.Kind == scan.KindFile {
			total += e.Size
		}
	}
	return total
}
