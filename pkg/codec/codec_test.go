package codec

import (
	"bytes"
	"testing"
)

func roundTrip(t *testing.T, algorithm Algorithm, data []byte) {
	t.Helper()
	c, err := New(algorithm, 0)
	if err != nil {
		t.Fatalf("New(%v): %v", algorithm, err)
	}
	compressed, err := c.Compress(data)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	decompressed, err := c.Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(decompressed, data) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d bytes", len(decompressed), len(data))
	}
}

func TestRoundTripNone(t *testing.T) {
	roundTrip(t, None, []byte("hello world"))
}

func TestRoundTripZstd(t *testing.T) {
	roundTrip(t, Zstd, bytes.Repeat([]byte("treesync delta payload "), 200))
}

func TestRoundTripLz4(t *testing.T) {
	roundTrip(t, Lz4, bytes.Repeat([]byte("treesync delta payload "), 200))
}

func TestRoundTripEmptyInput(t *testing.T) {
	roundTrip(t, Zstd, nil)
	roundTrip(t, Lz4, nil)
}

func TestInvalidZstdLevel(t *testing.T) {
	if _, err := New(Zstd, 23); err == nil {
		t.Fatal("expected error for out-of-range zstd level")
	}
}

func TestZstdDefaultLevel(t *testing.T) {
	c, err := New(Zstd, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.level != DefaultZstdLevel {
		t.Fatalf("expected default level %d, got %d", DefaultZstdLevel, c.level)
	}
}

func TestDecompressRejectsOversizedOutput(t *testing.T) {
	c, err := New(Zstd, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	huge := bytes.Repeat([]byte{0}, MaxDecompressedSize+1024)
	compressed, err := c.Compress(huge)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if _, err := c.Decompress(compressed); err == nil {
		t.Fatal("expected decompression to reject output exceeding the bound")
	}
}

func TestNoneAlgorithmIsPassthrough(t *testing.T) {
	c, err := New(None, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data := []byte("passthrough")
	compressed, err := c.Compress(data)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if !bytes.Equal(compressed, data) {
		t.Fatal("None algorithm should not modify data")
	}
}
