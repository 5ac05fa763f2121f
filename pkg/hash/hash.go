// Package hash computes the strong, collision-resistant content digest used
// throughout treesync: Entry.content_hash, the Differ's checksum-based
// comparison, and the strong confirmation hash in the delta engine.
package hash

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/zeebo/blake3"

	"github.com/treesync/treesync/pkg/treesyncerr"
)

// Size is the length, in bytes, of a digest produced by this package.
const Size = 32

// DefaultBufferSize is the size of the read buffer streamed through the
// hash. The spec calls for "a fixed buffer (≥1 MiB recommended)".
const DefaultBufferSize = 1 << 20

// bufferPool recycles read buffers across concurrent File calls so that
// Scanner's worker pool doesn't allocate a megabyte per file hashed.
var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, DefaultBufferSize)
		return &buf
	},
}

// Digest is a 256-bit strong content hash.
type Digest [Size]byte

// IsZero reports whether d is the zero digest (i.e. was never computed).
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// File streams the file at path through a pooled buffer into a BLAKE3
// digest. Failure to open or read the file surfaces as a transient I/O
// error.
func File(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, treesyncerr.TransientIO(errors.Wrap(err, "unable to open file for hashing"))
	}
	defer f.Close()
	return Reader(f)
}

// Reader streams r into a BLAKE3 digest, using a pooled buffer.
func Reader(r io.Reader) (Digest, error) {
	bufPtr, _ := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufPtr)
	buf := *bufPtr

	h := blake3.New()
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := h.Write(buf[:n]); werr != nil {
				return Digest{}, errors.Wrap(werr, "unable to write to hash state")
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Digest{}, treesyncerr.TransientIO(errors.Wrap(err, "unable to read file content"))
		}
	}

	var digest Digest
	sum := h.Sum(nil)
	copy(digest[:], sum)
	return digest, nil
}

// Bytes computes the digest of an in-memory buffer. Used by the delta
// engine's strong-hash confirmation step, where blocks already live in
// memory and a file re-read would be wasteful.
func Bytes(data []byte) Digest {
	h := blake3.New()
	h.Write(data)
	var digest Digest
	copy(digest[:], h.Sum(nil))
	return digest
}
