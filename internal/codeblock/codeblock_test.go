package codeblock

import "testing"

func TestCodeblocksPerColorForLevel(t *testing.T) {
	tests := []struct {
		level  int
		hasLL  bool
		want   int
	}{
		{0, false, 1},
		{1, false, 5},
		{2, false, 21},
		{3, false, 1}, // wraps back to relLevel 0
		{2, true, 22},
	}
	for _, tt := range tests {
		if got := CodeblocksPerColorForLevel(tt.level, tt.hasLL); got != tt.want {
			t.Errorf("CodeblocksPerColorForLevel(%d, %v) = %d, want %d", tt.level, tt.hasLL, got, tt.want)
		}
	}
}

func TestFirstValidPixelMonotonic(t *testing.T) {
	prevCoef, prevLL := -1, -1
	for scale := 0; scale < 8; scale++ {
		coef := FirstValidCoefPixel(scale)
		ll := FirstValidLLPixel(scale)
		if coef <= prevCoef {
			t.Fatalf("FirstValidCoefPixel not increasing at scale %d: %d <= %d", scale, coef, prevCoef)
		}
		if ll <= coef {
			t.Fatalf("FirstValidLLPixel(%d) = %d should be > FirstValidCoefPixel = %d", scale, ll, coef)
		}
		prevCoef, prevLL = coef, ll
	}
	_ = prevLL
}

func TestBuildLevelsHalvesEachScale(t *testing.T) {
	levels := BuildLevels(4, 128, 128, 1000, 800, 0.25, 0.25)
	if len(levels) != 4 {
		t.Fatalf("len(levels) = %d, want 4", len(levels))
	}
	if levels[0].Width != 1000 || levels[0].Height != 800 {
		t.Fatalf("level 0 dims = %dx%d, want 1000x800", levels[0].Width, levels[0].Height)
	}
	if levels[1].Width != 500 || levels[1].Height != 400 {
		t.Fatalf("level 1 dims = %dx%d, want 500x400", levels[1].Width, levels[1].Height)
	}
	if levels[0].WidthInTiles != 8 { // ceil(1000/128)
		t.Fatalf("level 0 WidthInTiles = %d, want 8", levels[0].WidthInTiles)
	}
}

func TestAdjacentTilesMaskCorners(t *testing.T) {
	levels := BuildLevels(1, 128, 128, 256, 256, 0.25, 0.25)
	lvl := &levels[0]
	if lvl.WidthInTiles != 2 || lvl.HeightInTiles != 2 {
		t.Fatalf("expected a 2x2 tile grid, got %dx%d", lvl.WidthInTiles, lvl.HeightInTiles)
	}
	mask := lvl.AdjacentTilesMask(0, 0)
	if mask&AdjCenter == 0 {
		t.Fatal("center bit must always be set")
	}
	if mask&AdjTopLeft != 0 || mask&AdjTop != 0 || mask&AdjLeft != 0 {
		t.Fatalf("top-left tile should have top/left neighbors cleared, got mask %09b", mask)
	}
	if mask&AdjBottomRight == 0 {
		t.Fatalf("top-left tile should retain its bottom-right neighbor, got mask %09b", mask)
	}
}
