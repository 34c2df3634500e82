package bitio

import (
	"math/rand"
	"testing"
)

func TestPeekBits64Aligned(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0, 0}
	got := PeekBits64(buf, 0)
	want := uint64(0x0807060504030201)
	if got != want {
		t.Fatalf("PeekBits64(0) = %#x, want %#x", got, want)
	}
}

func TestPeekBits64Shifted(t *testing.T) {
	buf := []byte{0xff, 0x00, 0, 0, 0, 0, 0, 0, 0, 0}
	got := PeekBits64(buf, 4)
	if got&0xf != 0xf {
		t.Fatalf("low nibble after shifting by 4 bits should carry the high nibble of 0xff, got %#x", got)
	}
}

func TestSignedMagnitudeRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	block := make([]int16, 256)
	for i := range block {
		block[i] = int16(r.Intn(65536) - 32768)
	}
	orig := append([]int16(nil), block...)

	TwosComplementToSignedMagnitude16(block)
	SignedMagnitudeToTwosComplement16(block)

	for i := range block {
		if block[i] != orig[i] {
			t.Fatalf("round trip mismatch at %d: got %d want %d", i, block[i], orig[i])
		}
	}
}

func TestFloorLog2(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{0, 0}, {1, 0}, {2, 1}, {3, 1}, {4, 2}, {1023, 9}, {1024, 10},
	}
	for _, tt := range tests {
		if got := FloorLog2(tt.n); got != tt.want {
			t.Errorf("FloorLog2(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}
