package rsync

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/treesync/treesync/pkg/codec"
)

func reconstruct(t *testing.T, engine *Engine, destination, source []byte) []byte {
	t.Helper()
	signature := engine.Signature(destination)
	instructions, err := engine.Deltafy(source, destination, signature)
	if err != nil {
		t.Fatalf("Deltafy: %v", err)
	}
	out, err := engine.Patch(destination, instructions)
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	return out
}

func TestReconstructionIdenticalContent(t *testing.T) {
	engine := New(64, nil)
	data := bytes.Repeat([]byte("treesync-block-content-"), 40)
	out := reconstruct(t, engine, data, data)
	if !bytes.Equal(out, data) {
		t.Fatal("reconstruction of identical content should be exact")
	}
}

func TestReconstructionSmallEdit(t *testing.T) {
	engine := New(128, nil)
	destination := bytes.Repeat([]byte("0123456789"), 500) // 5000 bytes
	source := append([]byte(nil), destination...)
	// Mutate a small run in the middle.
	copy(source[2500:2510], []byte("XXXXXXXXXX"))

	out := reconstruct(t, engine, destination, source)
	if !bytes.Equal(out, source) {
		t.Fatal("reconstruction did not reproduce the edited source exactly")
	}
}

func TestReconstructionAppend(t *testing.T) {
	engine := New(256, nil)
	destination := bytes.Repeat([]byte("a"), 1000)
	source := append(append([]byte(nil), destination...), []byte("tail-appended-data")...)

	out := reconstruct(t, engine, destination, source)
	if !bytes.Equal(out, source) {
		t.Fatal("reconstruction did not reproduce appended content exactly")
	}
}

func TestReconstructionEmptyDestination(t *testing.T) {
	engine := New(128, nil)
	out := reconstruct(t, engine, nil, []byte("brand new content"))
	if !bytes.Equal(out, []byte("brand new content")) {
		t.Fatal("reconstruction against an empty destination should equal the full source")
	}
}

func TestReconstructionEmptySource(t *testing.T) {
	engine := New(128, nil)
	out := reconstruct(t, engine, []byte("old content here"), nil)
	if len(out) != 0 {
		t.Fatalf("expected empty reconstruction, got %d bytes", len(out))
	}
}

func TestReconstructionWithCompression(t *testing.T) {
	c, err := codec.New(codec.Zstd, 0)
	if err != nil {
		t.Fatalf("codec.New: %v", err)
	}
	engine := New(128, c)

	destination := bytes.Repeat([]byte("repeated-destination-content-"), 100)
	source := bytes.Repeat([]byte("repeated-SOURCE-content-changed-"), 100)

	out := reconstruct(t, engine, destination, source)
	if !bytes.Equal(out, source) {
		t.Fatal("reconstruction with compression enabled must still be byte-exact")
	}
}

func TestReconstructionRandomizedFuzz(t *testing.T) {
	engine := New(64, nil)
	rng := rand.New(rand.NewSource(1))

	for trial := 0; trial < 20; trial++ {
		destination := randomBytes(rng, rng.Intn(4000))
		source := mutate(rng, destination)

		out := reconstruct(t, engine, destination, source)
		if !bytes.Equal(out, source) {
			t.Fatalf("trial %d: reconstruction mismatch (dest %d bytes, source %d bytes)", trial, len(destination), len(source))
		}
	}
}

func randomBytes(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	rng.Read(b)
	return b
}

// mutate returns a copy of base with a few random edits, simulating a
// similarly-sized but changed file.
func mutate(rng *rand.Rand, base []byte) []byte {
	out := append([]byte(nil), base...)
	edits := rng.Intn(5)
	for e := 0; e < edits; e++ {
		if len(out) == 0 {
			out = randomBytes(rng, rng.Intn(100))
			continue
		}
		switch rng.Intn(3) {
		case 0: // overwrite a small run
			start := rng.Intn(len(out))
			length := rng.Intn(min(20, len(out)-start) + 1)
			copy(out[start:start+length], randomBytes(rng, length))
		case 1: // insert bytes
			at := rng.Intn(len(out) + 1)
			insertion := randomBytes(rng, rng.Intn(50))
			merged := append([]byte(nil), out[:at]...)
			merged = append(merged, insertion...)
			merged = append(merged, out[at:]...)
			out = merged
		case 2: // truncate
			at := rng.Intn(len(out) + 1)
			out = out[:at]
		}
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func TestSignatureEmptyDestination(t *testing.T) {
	engine := New(128, nil)
	if sig := engine.Signature(nil); sig != nil {
		t.Fatalf("expected nil signature for empty destination, got %+v", sig)
	}
}

func TestPatchRejectsOutOfBoundsBlockRef(t *testing.T) {
	engine := New(128, nil)
	instructions := []Instruction{{Type: InstructionBlockRef, TargetOffset: 0, Length: 100}}
	if _, err := engine.Patch([]byte("short"), instructions); err == nil {
		t.Fatal("expected error for block reference beyond destination bounds")
	}
}
