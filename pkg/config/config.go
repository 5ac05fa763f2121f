// Package config validates and holds the resolved options for a single
// treesync run, failing fast with a Configuration-category error before any
// filesystem I/O happens.
package config

import (
	"github.com/pkg/errors"

	"github.com/treesync/treesync/pkg/codec"
	"github.com/treesync/treesync/pkg/filter"
	"github.com/treesync/treesync/pkg/metadata"
	"github.com/treesync/treesync/pkg/treesyncerr"
)

// Options is the raw, unvalidated set of run parameters as the CLI collects
// them: exclude patterns and size bounds as plain fields, compression as an
// on/off switch plus an algorithm/level pair, and the copy flags as an
// unparsed letter string. Resolve compiles them into a Resolved.
type Options struct {
	Source      string
	Destination string

	Recurse          bool
	IncludeEmptyDirs bool
	Purge            bool
	Mirror           bool
	DryRun           bool
	Confirm          bool
	MoveFiles        bool
	Checksum         bool

	ExcludeFiles []string
	ExcludeDirs  []string
	MinSize      uint64
	MaxSize      uint64

	CopyFlags string

	Compress         bool
	CompressionAlgo  codec.Algorithm
	CompressionLevel int

	RetryCount uint
	RetryWait  uint

	Workers   int
	BlockSize uint64

	Verbosity int // 0 quiet, 1 -v, 2 -vv
	LogFile   string
	ShowETA   bool
}

// DefaultRetryWait is the default number of seconds to wait between
// retries.
const DefaultRetryWait = 30

// DefaultMaxSize of 0 means "no upper bound"; size bounds are optional.
const DefaultMaxSize = 0

// Resolved is the validated, ready-to-run form of Options: glob patterns
// compiled into a Filter, the copy-flag string parsed into Fields, and
// mirror/purge folded together.
type Resolved struct {
	Options

	Filter       *filter.Filter
	MetadataCopy metadata.Fields
	Codec        *codec.Codec
}

// Resolve validates opts and compiles its string-typed fields, returning a
// Configuration-category error (never a filesystem error) on any problem —
// the whole point of this package is to fail before touching disk.
func Resolve(opts Options) (*Resolved, error) {
	if opts.Source == "" || opts.Destination == "" {
		return nil, treesyncerr.Configuration(errors.New("both a source and a destination path are required"))
	}

	if opts.Mirror {
		opts.Recurse = true
		opts.Purge = true
	}

	if opts.MinSize > opts.MaxSize && opts.MaxSize != 0 {
		return nil, treesyncerr.Configuration(errors.Errorf("min size %d exceeds max size %d", opts.MinSize, opts.MaxSize))
	}

	f, err := filter.New(filter.Config{
		ExcludeFiles: opts.ExcludeFiles,
		ExcludeDirs:  opts.ExcludeDirs,
		MinSize:      opts.MinSize,
		MaxSize:      opts.MaxSize,
	})
	if err != nil {
		return nil, treesyncerr.Configuration(err)
	}

	copyFlags := opts.CopyFlags
	if copyFlags == "" {
		copyFlags = "DAT"
	}
	fields, err := metadata.ParseFields(copyFlags)
	if err != nil {
		return nil, treesyncerr.Configuration(errors.Wrap(err, "invalid --copy flags"))
	}

	var compressor *codec.Codec
	if opts.Compress {
		algo := opts.CompressionAlgo
		if algo == codec.None {
			algo = codec.Zstd
		}
		compressor, err = codec.New(algo, opts.CompressionLevel)
		if err != nil {
			return nil, treesyncerr.Configuration(err)
		}
	}

	if opts.Source == opts.Destination {
		return nil, treesyncerr.Configuration(errors.New("source and destination must differ"))
	}

	return &Resolved{
		Options:      opts,
		Filter:       f,
		MetadataCopy: fields,
		Codec:        compressor,
	}, nil
}
