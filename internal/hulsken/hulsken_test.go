package hulsken

import "testing"

func TestDecompressEmptyBlockIsAllZero(t *testing.T) {
	// A compressed codeblock of 8 bytes or fewer is the documented "dummy"
	// case: the decoder must return an all-zero coefficient buffer without
	// attempting to parse a header.
	compressed := make([]byte, 8)
	out, err := Decompress(compressed, 4, 4, 1, 2)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	want := 3 * 4 * 4
	if len(out) != want {
		t.Fatalf("len(out) = %d, want %d", len(out), want)
	}
	for i, v := range out {
		if v != 0 {
			t.Fatalf("out[%d] = %d, want 0", i, v)
		}
	}
}

func TestDecompressLLPlaneShape(t *testing.T) {
	compressed := make([]byte, 8)
	out, err := Decompress(compressed, 8, 8, 0, 2)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if len(out) != 8*8 {
		t.Fatalf("len(out) = %d, want %d", len(out), 8*8)
	}
}

func TestDecompressRejectsBadVersion(t *testing.T) {
	if _, err := Decompress(make([]byte, 16), 4, 4, 0, 3); err == nil {
		t.Fatal("expected an error for an unsupported compressor version")
	}
}
