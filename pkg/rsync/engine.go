// Package rsync implements the block-based delta transfer at the core of
// treesync's Update(use_delta=true) path: a rolling weak checksum locates
// candidate matching blocks in the destination file, a strong hash confirms
// them, and the result is an instruction stream of literals and block
// references that reconstructs the new source bytes from the old
// destination bytes plus whatever couldn't be matched.
package rsync

import (
	"github.com/pkg/errors"

	"github.com/treesync/treesync/pkg/codec"
	"github.com/treesync/treesync/pkg/hash"
	"github.com/treesync/treesync/pkg/treesyncerr"
)

// DefaultBlockSize is used when an Engine is constructed with a block size
// of 0.
const DefaultBlockSize = 1024

// minimumLiteralSizeForCompression is the 64-byte gate below which a
// literal isn't worth attempting to compress.
const minimumLiteralSizeForCompression = 64

// weakModulus is the modulus for the Adler-style weak hash, matching the
// classic rsync choice of 1<<16.
const weakModulus = 1 << 16

// Engine computes block signatures, deltas, and patches at a configured
// block size, optionally compressing literal instructions with a Codec.
type Engine struct {
	blockSize uint64
	codec     *codec.Codec
}

// New constructs an Engine. blockSize of 0 selects DefaultBlockSize. A nil
// compressor disables literal compression (instructions are always emitted
// with Compressed=false).
func New(blockSize uint64, compressor *codec.Codec) *Engine {
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	return &Engine{blockSize: blockSize, codec: compressor}
}

// weakHash computes the Adler-style weak checksum over data, along with its
// two additive/multiplicative components (r1, r2), which rollWeakHash needs
// to update the checksum in O(1) as the window advances by one byte.
func weakHash(data []byte) (weak, r1, r2 uint32) {
	n := uint32(len(data))
	for i, b := range data {
		r1 += uint32(b)
		r2 += (n - uint32(i)) * uint32(b)
	}
	r1 %= weakModulus
	r2 %= weakModulus
	return r1 + weakModulus*r2, r1, r2
}

// rollWeakHash advances a weak checksum by one byte: out leaves the window,
// in enters it. blockSize is the (constant) window length.
func rollWeakHash(r1, r2 uint32, out, in byte, blockSize uint64) (weak, newR1, newR2 uint32) {
	newR1 = (r1 - uint32(out) + uint32(in)) % weakModulus
	newR2 = (r2 - uint32(blockSize)*uint32(out) + newR1) % weakModulus
	return newR1 + weakModulus*newR2, newR1, newR2
}

// Signature splits destination into non-overlapping blocks of e.blockSize
// (the last may be shorter) and computes each block's weak and strong
// checksum.
func (e *Engine) Signature(destination []byte) []BlockChecksum {
	if len(destination) == 0 {
		return nil
	}
	var blocks []BlockChecksum
	for offset := uint64(0); offset < uint64(len(destination)); offset += e.blockSize {
		end := offset + e.blockSize
		if end > uint64(len(destination)) {
			end = uint64(len(destination))
		}
		block := destination[offset:end]
		weak, _, _ := weakHash(block)
		blocks = append(blocks, BlockChecksum{
			Offset: offset,
			Weak:   weak,
			Strong: hash.Bytes(block),
		})
	}
	return blocks
}

// Deltafy scans source against destination's signature, producing an
// instruction stream that reconstructs source from destination plus
// whatever literal bytes have no match.
func (e *Engine) Deltafy(source []byte, destination []byte, signature []BlockChecksum) ([]Instruction, error) {
	if len(signature) == 0 {
		if len(source) == 0 {
			return nil, nil
		}
		return []Instruction{e.literal(0, source)}, nil
	}

	weakToBlocks := make(map[uint32][]BlockChecksum, len(signature))
	for _, b := range signature {
		weakToBlocks[b.Weak] = append(weakToBlocks[b.Weak], b)
	}

	blockSize := e.blockSize
	var instructions []Instruction
	litStart := 0
	n := len(source)

	flushLiteral := func(end int) error {
		if end <= litStart {
			return nil
		}
		instructions = append(instructions, e.literal(uint64(litStart), source[litStart:end]))
		return nil
	}

	// i walks the start of the current B-byte window. The weak checksum is
	// seeded once per window and then rolled in O(1) per byte (subtract the
	// outgoing byte, add the incoming one) rather than recomputed from
	// scratch. The strong hash
	// is only ever computed to confirm a weak-hash candidate, never as part
	// of the rolling step.
	var weak, r1, r2 uint32
	windowValid := false
	i := 0
scan:
	for uint64(n-i) >= blockSize {
		if !windowValid {
			weak, r1, r2 = weakHash(source[i : i+int(blockSize)])
			windowValid = true
		}

		if candidates, ok := weakToBlocks[weak]; ok {
			window := source[i : i+int(blockSize)]
			strong := hash.Bytes(window)
			for idx := range candidates {
				matched := candidates[idx]
				if matched.Strong != strong {
					continue
				}
				if err := flushLiteral(i); err != nil {
					return nil, err
				}
				length := blockSize
				if matched.Offset+length > uint64(len(destination)) {
					length = uint64(len(destination)) - matched.Offset
				}
				instructions = append(instructions, Instruction{
					Type:         InstructionBlockRef,
					TargetOffset: matched.Offset,
					Length:       length,
				})
				i += int(blockSize)
				litStart = i
				windowValid = false
				continue scan
			}
		}

		// No match at this position: roll the window forward one byte.
		if i+int(blockSize) < n {
			weak, r1, r2 = rollWeakHash(r1, r2, source[i], source[i+int(blockSize)], blockSize)
		} else {
			windowValid = false
		}
		i++
	}

	if err := flushLiteral(n); err != nil {
		return nil, err
	}

	return instructions, nil
}

// literal builds a Literal instruction for source[offset:offset+len(data)],
// attempting codec compression: only for payloads of at least 64 bytes,
// and only kept if the compressed form is strictly smaller.
func (e *Engine) literal(offset uint64, data []byte) Instruction {
	instruction := Instruction{Type: InstructionLiteral, Offset: offset, Bytes: data}
	if e.codec == nil || e.codec.Algorithm() == codec.None || len(data) < minimumLiteralSizeForCompression {
		return instruction
	}
	compressed, err := e.codec.Compress(data)
	if err != nil || len(compressed) >= len(data) {
		return instruction
	}
	instruction.Bytes = compressed
	instruction.Compressed = true
	return instruction
}

// Patch applies instructions against destination to reconstruct the new
// source bytes: applying the instructions in order to destination yields
// source exactly.
func (e *Engine) Patch(destination []byte, instructions []Instruction) ([]byte, error) {
	var out []byte
	for _, instruction := range instructions {
		switch instruction.Type {
		case InstructionLiteral:
			data := instruction.Bytes
			if instruction.Compressed {
				if e.codec == nil {
					return nil, treesyncerr.Corruption(errors.New("compressed literal but no codec configured"))
				}
				decompressed, err := e.codec.Decompress(data)
				if err != nil {
					return nil, err
				}
				data = decompressed
			}
			out = append(out, data...)
		case InstructionBlockRef:
			end := instruction.TargetOffset + instruction.Length
			if end > uint64(len(destination)) {
				return nil, treesyncerr.Corruption(errors.New("block reference extends beyond destination bounds"))
			}
			out = append(out, destination[instruction.TargetOffset:end]...)
		default:
			return nil, treesyncerr.Corruption(errors.Errorf("unknown instruction type %d", instruction.Type))
		}
	}
	return out, nil
}
