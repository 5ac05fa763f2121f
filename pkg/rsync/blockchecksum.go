package rsync

import "github.com/treesync/treesync/pkg/hash"

// BlockChecksum identifies one fixed-size block of a destination file: its
// offset, an O(1)-updatable weak rolling checksum, and a strong hash that
// confirms a weak match before it's trusted.
type BlockChecksum struct {
	// Offset is the block's byte offset within the destination file.
	Offset uint64
	// Weak is the Adler-style rolling checksum over the block's bytes.
	Weak uint32
	// Strong is the block's BLAKE3 digest, consulted only after a weak
	// match to rule out the (rare) weak-hash collision.
	Strong hash.Digest
}

// InstructionType distinguishes the two instruction shapes a delta emits.
type InstructionType int

const (
	// InstructionLiteral carries bytes not found anywhere in the target
	// (destination) file's block set.
	InstructionLiteral InstructionType = iota
	// InstructionBlockRef refers to a byte range already present at a
	// given offset in the destination file.
	InstructionBlockRef
)

// Instruction is one element of a Delta output: either a Literal or a
// BlockRef, reconstructing one contiguous span of the new source bytes.
type Instruction struct {
	Type InstructionType

	// Offset is the literal's starting offset within the reconstructed
	// stream. Populated only for InstructionLiteral.
	Offset uint64
	// Bytes is the literal payload, compressed if Compressed is true.
	// Populated only for InstructionLiteral.
	Bytes []byte
	// Compressed records whether Bytes holds the codec-compressed form of
	// the literal rather than the raw bytes.
	Compressed bool

	// TargetOffset is the destination-file offset a block reference
	// points at. Populated only for InstructionBlockRef.
	TargetOffset uint64
	// Length is the number of bytes the block reference covers.
	// Populated only for InstructionBlockRef.
	Length uint64
}
