package codeblock

// BuildLevels derives the per-level tile grid geometry for an image once
// its pixel dimensions, tile size, and micrometers-per-pixel at scale 0 are
// known. Each level halves the previous level's resolution, matching the
// dyadic pyramid the 5/3 IDWT produces one decomposition at a time.
func BuildLevels(levelCount, tileWidth, tileHeight int, width, height int, mppX, mppY float64) []Level {
	levels := make([]Level, levelCount)
	w, h := width, height
	for scale := 0; scale < levelCount; scale++ {
		widthInTiles := ceilDiv(w, tileWidth)
		heightInTiles := ceilDiv(h, tileHeight)
		downsample := float64(uint64(1) << uint(scale))

		lvl := &levels[scale]
		lvl.Scale = scale
		lvl.WidthInTiles = widthInTiles
		lvl.HeightInTiles = heightInTiles
		lvl.Width = w
		lvl.Height = h
		lvl.DownsampleFactor = downsample
		lvl.UmPerPixelX = mppX * downsample
		lvl.UmPerPixelY = mppY * downsample
		lvl.XTileSideInUm = lvl.UmPerPixelX * float64(tileWidth)
		lvl.YTileSideInUm = lvl.UmPerPixelY * float64(tileHeight)
		lvl.TileCount = uint64(widthInTiles) * uint64(heightInTiles)
		lvl.OriginOffsetPixels = int32(FirstValidCoefPixel(scale))
		lvl.Tiles = make([]Tile, widthInTiles*heightInTiles)
		for y := 0; y < heightInTiles; y++ {
			for x := 0; x < widthInTiles; x++ {
				t := &lvl.Tiles[y*widthInTiles+x]
				t.TileScale = scale
				t.TileX = x
				t.TileY = y
			}
		}

		w = ceilDiv(w, 2)
		h = ceilDiv(h, 2)
	}
	return levels
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Adjacent tile bitmask positions, matching ISYNTAX_ADJ_TILE_* in the
// original header: a 3x3 neighborhood around a tile in row-major order,
// bit 0 is the top-left neighbor, bit 4 the tile itself and bit 8 the
// bottom-right neighbor.
const (
	AdjTopLeft uint32 = 1 << iota
	AdjTop
	AdjTopRight
	AdjLeft
	AdjCenter
	AdjRight
	AdjBottomLeft
	AdjBottom
	AdjBottomRight
)

// AllAdjacent is the full 3x3 neighborhood mask.
const AllAdjacent = AdjTopLeft | AdjTop | AdjTopRight | AdjLeft | AdjCenter |
	AdjRight | AdjBottomLeft | AdjBottom | AdjBottomRight

// AdjacentTilesMask returns the bitmask of neighbor positions that exist
// within the level's grid bounds for the tile at (tileX, tileY); positions
// that would fall outside the grid are cleared.
func (l *Level) AdjacentTilesMask(tileX, tileY int) uint32 {
	mask := uint32(AllAdjacent)
	if tileY == 0 {
		mask &^= AdjTopLeft | AdjTop | AdjTopRight
	}
	if tileY == l.HeightInTiles-1 {
		mask &^= AdjBottomLeft | AdjBottom | AdjBottomRight
	}
	if tileX == 0 {
		mask &^= AdjTopLeft | AdjLeft | AdjBottomLeft
	}
	if tileX == l.WidthInTiles-1 {
		mask &^= AdjTopRight | AdjRight | AdjBottomRight
	}
	return mask
}

// AdjacentTilesMaskOnlyExisting additionally clears any neighbor position
// whose tile has not been marked as existing (e.g. a sparse scan region).
func (l *Level) AdjacentTilesMaskOnlyExisting(tileX, tileY int) uint32 {
	mask := l.AdjacentTilesMask(tileX, tileY)
	offsets := [9]struct{ dx, dy int; bit uint32 }{
		{-1, -1, AdjTopLeft}, {0, -1, AdjTop}, {1, -1, AdjTopRight},
		{-1, 0, AdjLeft}, {0, 0, AdjCenter}, {1, 0, AdjRight},
		{-1, 1, AdjBottomLeft}, {0, 1, AdjBottom}, {1, 1, AdjBottomRight},
	}
	for _, o := range offsets {
		if mask&o.bit == 0 {
			continue
		}
		t := l.TileAt(tileX+o.dx, tileY+o.dy)
		if t == nil || !t.Exists {
			mask &^= o.bit
		}
	}
	return mask
}
