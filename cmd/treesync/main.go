// Command treesync walks a source directory tree, diffs it against a
// destination tree, and reconciles the destination to match — copying new
// and changed files (optionally via block-delta patching), recreating
// symbolic links and directories, and purging destination-only entries when
// requested.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/treesync/treesync/cmd"
	"github.com/treesync/treesync/pkg/codec"
	"github.com/treesync/treesync/pkg/config"
	"github.com/treesync/treesync/pkg/logging"
	"github.com/treesync/treesync/pkg/plan"
	"github.com/treesync/treesync/pkg/sync"
	"github.com/treesync/treesync/pkg/version"
)

func rootMain(command *cobra.Command, arguments []string) error {
	if rootConfiguration.version {
		fmt.Println(version.Version)
		return nil
	}
	if len(arguments) != 2 {
		return errors.New("expected exactly two arguments: <src> <dst>")
	}

	opts := config.Options{
		Source:           arguments[0],
		Destination:      arguments[1],
		Recurse:          rootConfiguration.subdirs || rootConfiguration.includeEmptyDirs || rootConfiguration.mirror,
		IncludeEmptyDirs: rootConfiguration.includeEmptyDirs,
		Purge:            rootConfiguration.purge,
		Mirror:           rootConfiguration.mirror,
		DryRun:           rootConfiguration.dryRun,
		Confirm:          rootConfiguration.confirm,
		MoveFiles:        rootConfiguration.move,
		Checksum:         rootConfiguration.checksum,
		ExcludeFiles:     rootConfiguration.excludeFiles,
		ExcludeDirs:      rootConfiguration.excludeDirs,
		MinSize:          rootConfiguration.minSize,
		MaxSize:          rootConfiguration.maxSize,
		CopyFlags:        rootConfiguration.copyFlags,
		Compress:         rootConfiguration.compress,
		CompressionAlgo:  codec.Zstd,
		RetryCount:       rootConfiguration.retryCount,
		RetryWait:        rootConfiguration.retryWait,
		Workers:          rootConfiguration.workers,
		BlockSize:        rootConfiguration.blockSize,
		Verbosity:        rootConfiguration.verbosity,
		LogFile:          rootConfiguration.logFile,
		ShowETA:          rootConfiguration.eta,
	}
	if rootConfiguration.copyAll {
		opts.CopyFlags = "DATSOU"
	}

	if opts.LogFile != "" {
		file, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, "unable to open log file")
		}
		defer file.Close()
		logging.SetOutput(file)
	}

	resolved, err := config.Resolve(opts)
	if err != nil {
		return err
	}

	logger := logging.RootLogger.Sublogger("treesync")

	ctx := context.Background()

	if resolved.DryRun {
		result, err := sync.Run(ctx, resolved, logger, nil)
		if err != nil {
			return err
		}
		printPlan(result.Plan, rootConfiguration.verbosity)
		return nil
	}

	if resolved.Confirm || rootConfiguration.verbosity > 0 {
		// Compute the plan once, up front, so both the confirmation prompt
		// and "-v"'s plan listing reflect exactly what will run, printed
		// before any of it actually executes.
		dryResolved := *resolved
		dryResolved.DryRun = true
		preview, err := sync.Run(ctx, &dryResolved, logger, nil)
		if err != nil {
			return err
		}
		if rootConfiguration.verbosity > 0 {
			printPlan(preview.Plan, rootConfiguration.verbosity)
		}
		if resolved.Confirm {
			ok, err := confirmRun(planSummary(preview.Plan))
			if err != nil {
				return err
			}
			if !ok {
				cmd.Warning("synchronization cancelled")
				os.Exit(1)
			}
		}
	}

	printer := &cmd.StatusLinePrinter{UseStandardError: true}
	var callback func(filesDone, bytesDone uint64)
	if resolved.ShowETA {
		callback = func(filesDone, bytesDone uint64) {
			printer.Print(fmt.Sprintf("%d files, %d bytes transferred", filesDone, bytesDone))
		}
	}

	result, err := sync.Run(ctx, resolved, logger, callback)
	if err != nil {
		printer.BreakIfNonEmpty()
		return err
	}
	printer.BreakIfNonEmpty()

	if rootConfiguration.verbosity > 0 {
		fmt.Printf("[%s] %d operations executed\n", result.RunID, len(result.Plan))
	}
	for _, warning := range result.Stats.Warnings() {
		cmd.Warning(warning)
	}
	if len(result.Stats.Warnings()) > 0 {
		os.Exit(1)
	}

	return nil
}

// printPlan lists every planned operation at "-v" and above, printed before
// anything executes; "-vv" additionally has the Executor echo each
// operation as it completes (see Executor.logOpDone).
func printPlan(p plan.Plan, verbosity int) {
	if verbosity < 1 {
		return
	}
	for _, op := range p {
		if op.Type == plan.OpDelete {
			fmt.Printf("%s %s\n", op.Type, op.DestAbsPath)
		} else {
			fmt.Printf("%s %s\n", op.Type, op.Rel)
		}
	}
	fmt.Printf("%d operations planned\n", len(p))
}

func planSummary(p plan.Plan) string {
	return fmt.Sprintf("%d operations planned", len(p))
}

var rootCommand = &cobra.Command{
	Use:   "treesync <src> <dst>",
	Short: "Reconciles a destination directory tree to match a source tree",
	Run:   cmd.Mainify(rootMain),
}

var rootConfiguration struct {
	version bool

	subdirs          bool
	includeEmptyDirs bool
	mirror           bool
	purge            bool
	dryRun           bool
	move             bool
	excludeFiles     []string
	excludeDirs      []string
	minSize          uint64
	maxSize          uint64
	copyFlags        string
	copyAll          bool
	checksum         bool
	compress         bool
	retryCount       uint
	retryWait        uint
	workers          int
	blockSize        uint64
	verbosity        int
	confirm          bool
	logFile          string
	eta              bool
}

func init() {
	cobra.EnableCommandSorting = false

	flags := rootCommand.Flags()
	flags.BoolVarP(&rootConfiguration.version, "version", "V", false, "Show version information")

	flags.BoolVarP(&rootConfiguration.subdirs, "subdirs", "s", false, "Recurse into subdirectories, but skip ones with no included descendants (the scan does both even without this flag)")
	flags.BoolVarP(&rootConfiguration.includeEmptyDirs, "empty-dirs", "e", false, "Recurse into subdirectories, including ones with no included descendants")
	flags.BoolVar(&rootConfiguration.mirror, "mir", false, "Mirror mode: recurse and purge")
	flags.BoolVar(&rootConfiguration.purge, "purge", false, "Delete destination entries with no source counterpart")
	flags.BoolVarP(&rootConfiguration.dryRun, "dry-run", "n", false, "Compute and print the plan without executing it")
	flags.BoolVarP(&rootConfiguration.dryRun, "list-only", "l", false, "Compute and print the plan without executing it")
	flags.BoolVar(&rootConfiguration.move, "mov", false, "Remove source entries after they are successfully copied")

	flags.StringSliceVar(&rootConfiguration.excludeFiles, "xf", nil, "Exclude files matching glob pattern (repeatable)")
	flags.StringSliceVar(&rootConfiguration.excludeDirs, "xd", nil, "Exclude directories matching glob pattern (repeatable)")
	flags.Uint64Var(&rootConfiguration.minSize, "min", 0, "Minimum file size in bytes")
	flags.Uint64Var(&rootConfiguration.maxSize, "max", 0, "Maximum file size in bytes (0 means unbounded)")

	flags.StringVar(&rootConfiguration.copyFlags, "copy", "", "Metadata fields to copy, letters from {D,A,T,S,O,U} (default DAT)")
	flags.BoolVar(&rootConfiguration.copyAll, "copyall", false, "Copy every metadata field, equivalent to --copy DATSOU")

	flags.BoolVarP(&rootConfiguration.checksum, "checksum", "c", false, "Use a content hash, not size/mtime, to detect changed files")
	flags.BoolVarP(&rootConfiguration.compress, "compress", "z", false, "Compress literal data written to the destination")

	flags.UintVarP(&rootConfiguration.retryCount, "retry", "r", 0, "Number of times to retry a failed operation")
	flags.UintVarP(&rootConfiguration.retryWait, "wait", "w", config.DefaultRetryWait, "Seconds to wait between retries")

	flags.IntVar(&rootConfiguration.workers, "mt", 0, "Worker thread count (0 selects a default based on CPU count)")
	flags.Uint64VarP(&rootConfiguration.blockSize, "block-size", "b", 0, "Delta block size in bytes (0 selects the default)")

	flags.CountVarP(&rootConfiguration.verbosity, "verbose", "v", "Increase verbosity: -v prints the plan, -vv prints each operation")
	flags.BoolVar(&rootConfiguration.confirm, "confirm", false, "Print a summary and wait for confirmation before executing")
	flags.StringVar(&rootConfiguration.logFile, "log", "", "Append operation output to this file in addition to stdout")
	flags.BoolVar(&rootConfiguration.eta, "eta", false, "Emit throttled progress lines (files and bytes transferred, no time estimate) on stderr during execution")
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
