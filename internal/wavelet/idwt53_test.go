package wavelet

import "testing"

func TestInverse53_1DConstant(t *testing.T) {
	// A flat zero input (no detail, no DC) must stay flat through the lift.
	data := make([]int16, 8)
	Inverse53_1D(data)
	for i, v := range data {
		if v != 0 {
			t.Fatalf("data[%d] = %d, want 0", i, v)
		}
	}
}

func TestInverse53_1DWidthTwo(t *testing.T) {
	data := []int16{10, 4}
	Inverse53_1D(data)
	wantOut1 := int16(10 - ((4 + 1) >> 1))
	wantOut0 := int16(4) + wantOut1
	if data[0] != wantOut0 || data[1] != wantOut1 {
		t.Fatalf("got [%d %d], want [%d %d]", data[0], data[1], wantOut0, wantOut1)
	}
}

func TestInverse53_1DWidthOneHalves(t *testing.T) {
	data := []int16{7}
	Inverse53_1D(data)
	if data[0] != 3 {
		t.Fatalf("data[0] = %d, want 3", data[0])
	}
}

func TestInverse53_2DZeroStaysZero(t *testing.T) {
	width, height := 8, 6
	data := make([]int16, width*height)
	Inverse53_2D(data, width, height, width)
	for i, v := range data {
		if v != 0 {
			t.Fatalf("data[%d] = %d, want 0", i, v)
		}
	}
}

func TestInverse53_2DRespectsStride(t *testing.T) {
	width, height, stride := 4, 4, 6
	data := make([]int16, height*stride)
	data[0] = 100
	Inverse53_2D(data, width, height, stride)
	for y := 0; y < height; y++ {
		for x := width; x < stride; x++ {
			if data[y*stride+x] != 0 {
				t.Fatalf("transform touched padding column at (%d,%d)", x, y)
			}
		}
	}
}
