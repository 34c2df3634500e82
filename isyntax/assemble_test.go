package isyntax

import (
	"testing"

	"github.com/wsiviewer/isyntax-go/internal/codeblock"
)

func TestResolveBlockCoordsSingleTile(t *testing.T) {
	blockWidth, blockHeight := 4, 4
	img := &codeblock.Image{OffsetX: 0, OffsetY: 0}
	cbs := []codeblock.Codeblock{
		{X: int32(codeblock.FirstValidLLPixel(0)), Y: int32(codeblock.FirstValidLLPixel(0)), Coefficient: 0, Scale: 0},
		{X: int32(codeblock.FirstValidCoefPixel(0)), Y: int32(codeblock.FirstValidCoefPixel(0)), Coefficient: 1, Scale: 0},
	}
	resolveBlockCoords(cbs, img, blockWidth, blockHeight)
	for i, cb := range cbs {
		if cb.BlockX != 0 || cb.BlockY != 0 {
			t.Errorf("codeblock %d: BlockX=%d BlockY=%d, want 0,0", i, cb.BlockX, cb.BlockY)
		}
	}
}

// buildTwoLevelImage constructs a 2-level pyramid with one tile per level,
// the smallest shape groupIntoChunks/blockID can exercise meaningfully.
func buildTwoLevelImage(blockWidth, blockHeight int) *codeblock.Image {
	levels := codeblock.BuildLevels(2, 2*blockWidth, 2*blockHeight, 2*blockWidth, 2*blockHeight, 0.25, 0.25)
	return &codeblock.Image{
		Type:       codeblock.ImageTypeWSI,
		LevelCount: 2,
		MaxScale:   1,
		Levels:     levels,
	}
}

func TestBlockIDSeparatesColorsAndLevels(t *testing.T) {
	img := buildTwoLevelImage(4, 4)
	total := totalCoeffTileCount(img)

	// Scale-0 H codeblock, color 0, at the sole tile.
	h0 := &codeblock.Codeblock{Scale: 0, Coefficient: 1, Color: 0, BlockX: 0, BlockY: 0}
	id := blockID(h0, img, total)
	if id != 0 {
		t.Errorf("scale-0 H color-0 block id = %d, want 0", id)
	}

	// Scale-1 H codeblock follows every scale-0 tile.
	h1 := &codeblock.Codeblock{Scale: 1, Coefficient: 1, Color: 0, BlockX: 0, BlockY: 0}
	id1 := blockID(h1, img, total)
	if id1 != int(img.Levels[0].TileCount) {
		t.Errorf("scale-1 H color-0 block id = %d, want %d", id1, img.Levels[0].TileCount)
	}

	// Same codeblock at color 1 is offset by exactly one full color stride.
	h1c1 := &codeblock.Codeblock{Scale: 1, Coefficient: 1, Color: 1, BlockX: 0, BlockY: 0}
	id1c1 := blockID(h1c1, img, total)
	if id1c1-id1 != int(total) {
		t.Errorf("color stride = %d, want %d", id1c1-id1, total)
	}

	// An LL codeblock at the coarsest scale counts one extra (coarser) level.
	ll1 := &codeblock.Codeblock{Scale: 1, Coefficient: 0, Color: 0, BlockX: 0, BlockY: 0}
	idLL := blockID(ll1, img, total)
	want := int(img.Levels[0].TileCount) + int(img.Levels[1].TileCount)
	if idLL != want {
		t.Errorf("scale-1 LL block id = %d, want %d", idLL, want)
	}
}

func TestGroupIntoChunksSingleLevelSingleTile(t *testing.T) {
	blockWidth, blockHeight := 4, 4
	levels := codeblock.BuildLevels(1, 2*blockWidth, 2*blockHeight, 2*blockWidth, 2*blockHeight, 0.25, 0.25)
	img := &codeblock.Image{
		Type:       codeblock.ImageTypeWSI,
		LevelCount: 1,
		MaxScale:   0,
		Levels:     levels,
	}

	perColor := codeblock.CodeblocksPerColorForLevel(0, true) // 1 H + 1 LL
	cbs := make([]codeblock.Codeblock, 3*perColor)
	for color := 0; color < 3; color++ {
		for i := 0; i < perColor; i++ {
			idx := color*perColor + i
			cbs[idx] = codeblock.Codeblock{
				Color:           uint8(color),
				Scale:           0,
				BlockX:          0,
				BlockY:          0,
				BlockDataOffset: 100,
				BlockSize:       8,
			}
		}
	}

	groupIntoChunks(cbs, img)

	if img.DataChunkCount != 1 {
		t.Fatalf("DataChunkCount = %d, want 1", img.DataChunkCount)
	}
	chunk := img.DataChunks[0]
	if chunk.Offset != 100 {
		t.Errorf("chunk.Offset = %d, want 100", chunk.Offset)
	}
	if int(chunk.CodeblockCountPerColor) != perColor {
		t.Errorf("CodeblockCountPerColor = %d, want %d", chunk.CodeblockCountPerColor, perColor)
	}

	tile := levels[0].Tiles[0]
	if !tile.Exists {
		t.Error("tile.Exists = false, want true")
	}
	if tile.DataChunkIndex != 0 {
		t.Errorf("tile.DataChunkIndex = %d, want 0", tile.DataChunkIndex)
	}

	// BlockDataOffset+BlockSize spans 100..108 for every codeblock, so the
	// fill pass should record a chunk size of 8.
	if chunk.Size != 8 {
		t.Errorf("chunk.Size = %d, want 8", chunk.Size)
	}
}

func TestFillChunkSizesTakesMaxSpan(t *testing.T) {
	cbs := []codeblock.Codeblock{
		{BlockDataOffset: 0, BlockSize: 10},
		{BlockDataOffset: 5, BlockSize: 20}, // spans to 25, the largest
		{BlockDataOffset: 2, BlockSize: 3},
	}
	img := &codeblock.Image{
		DataChunks: []codeblock.DataChunk{
			{Offset: 0, TopCodeblockIndex: 0, CodeblockCountPerColor: 1},
		},
	}
	fillChunkSizes(cbs, img)
	if img.DataChunks[0].Size != 25 {
		t.Errorf("chunk size = %d, want 25", img.DataChunks[0].Size)
	}
}
