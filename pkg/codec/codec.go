// Package codec compresses and decompresses the literal payloads the delta
// engine (pkg/rsync) emits when it cannot find a matching block in the
// destination file.
package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"

	"github.com/treesync/treesync/pkg/treesyncerr"
)

// Algorithm selects a compression scheme.
type Algorithm int

const (
	// None disables compression; Compress/Decompress are no-ops.
	None Algorithm = iota
	// Zstd selects zstd, levels 1-22 (default 3).
	Zstd
	// Lz4 selects lz4, level 1.
	Lz4
)

// String returns the lowercase name of a: "zstd", "lz4", or "none".
func (a Algorithm) String() string {
	switch a {
	case Zstd:
		return "zstd"
	case Lz4:
		return "lz4"
	default:
		return "none"
	}
}

// DefaultZstdLevel is used when a Codec is constructed with level 0 and
// Algorithm is Zstd.
const DefaultZstdLevel = 3

// MaxDecompressedSize bounds a single Decompress call's output, guarding
// against decompression bombs.
const MaxDecompressedSize = 16 << 20

// Codec compresses and decompresses byte slices with a single configured
// algorithm and level. Compression is memoryless: each call is independent,
// with no shared dictionary or cross-call state.
type Codec struct {
	algorithm Algorithm
	level     int
}

// New returns a Codec for algorithm at level. A level of 0 selects each
// algorithm's default (3 for Zstd, the only level Lz4 supports here is 1).
func New(algorithm Algorithm, level int) (*Codec, error) {
	switch algorithm {
	case None:
	case Zstd:
		if level == 0 {
			level = DefaultZstdLevel
		}
		if level < 1 || level > 22 {
			return nil, treesyncerr.Configuration(errors.Errorf("zstd level %d out of range [1, 22]", level))
		}
	case Lz4:
		level = 1
	default:
		return nil, treesyncerr.Configuration(errors.Errorf("unknown compression algorithm %d", algorithm))
	}
	return &Codec{algorithm: algorithm, level: level}, nil
}

// Algorithm returns c's configured algorithm.
func (c *Codec) Algorithm() Algorithm {
	return c.algorithm
}

// Compress compresses data, returning the compressed form. Callers that
// only want to keep a compressed form when it is strictly smaller (as
// pkg/rsync's literal encoder does) must compare lengths themselves; this
// function always returns the compressed bytes.
func (c *Codec) Compress(data []byte) ([]byte, error) {
	switch c.algorithm {
	case None:
		return data, nil
	case Zstd:
		return compressZstd(data, c.level)
	case Lz4:
		return compressLz4(data)
	default:
		return nil, treesyncerr.Configuration(errors.New("unknown compression algorithm"))
	}
}

// Decompress reverses Compress, rejecting output larger than
// MaxDecompressedSize to resist decompression bombs.
func (c *Codec) Decompress(data []byte) ([]byte, error) {
	switch c.algorithm {
	case None:
		if len(data) > MaxDecompressedSize {
			return nil, treesyncerr.Corruption(errors.New("uncompressed literal exceeds decompression bound"))
		}
		return data, nil
	case Zstd:
		return decompressZstd(data)
	case Lz4:
		return decompressLz4(data)
	default:
		return nil, treesyncerr.Configuration(errors.New("unknown compression algorithm"))
	}
}

func compressZstd(data []byte, level int) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, errors.Wrap(err, "unable to create zstd encoder")
	}
	defer enc.Close()
	return enc.EncodeAll(data, make([]byte, 0, len(data))), nil
}

func decompressZstd(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, treesyncerr.Corruption(errors.Wrap(err, "unable to create zstd decoder"))
	}
	defer dec.Close()
	return readBounded(dec)
}

func compressLz4(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, errors.Wrap(err, "unable to write lz4 stream")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "unable to close lz4 stream")
	}
	return buf.Bytes(), nil
}

func decompressLz4(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	return readBounded(r)
}

// readBounded reads r to completion, rejecting output larger than
// MaxDecompressedSize+1 bytes (the extra byte detects an over-large stream
// without requiring it to be fully decoded).
func readBounded(r io.Reader) ([]byte, error) {
	limited := io.LimitReader(r, MaxDecompressedSize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, treesyncerr.Corruption(errors.Wrap(err, "unable to decompress literal"))
	}
	if len(data) > MaxDecompressedSize {
		return nil, treesyncerr.Corruption(errors.New("decompressed literal exceeds decompression bound"))
	}
	return data, nil
}
