// Package codeblock models the iSyntax pyramid's static indexing structures
// (levels, tiles, codeblocks, data chunks) and the small arithmetic that
// ties them together: how many codeblocks a chunk holds per color at a
// given level, where a codeblock sits within its chunk, and where a tile's
// valid pixel region starts once wavelet padding is accounted for.
package codeblock

// PerLevelPadding is the coefficient padding applied per decomposition
// level on each side of a tile, in the original scale-0 coordinate frame.
const PerLevelPadding = 3

// BlockHeaderTemplate describes the fixed geometry shared by every
// codeblock that references it: block dimensions, which color channel, the
// decomposition scale, and whether it carries LL or H coefficients.
type BlockHeaderTemplate struct {
	BlockWidth      uint32
	BlockHeight     uint32
	ColorComponent  uint8
	Scale           uint8
	WaveletCoeff    uint8 // 0 = LL, 1 = H
}

// ClusterRelativeCoords is a single codeblock's position within a cluster,
// before the raw per-dimension coordinates have been resolved against the
// (order-dependent) dimension list.
type ClusterRelativeCoords struct {
	RawCoords [5]int32

	X, Y           int32
	Color          uint8
	Scale          uint8
	WaveletCoeff   uint8
	Resolved       bool
}

// MaxCodeblocksPerCluster bounds a single cluster's codeblock count.
const MaxCodeblocksPerCluster = 70

// ClusterHeaderTemplate is the data-model-v2 analogue of
// BlockHeaderTemplate: one template shared by every cluster referencing it.
type ClusterHeaderTemplate struct {
	Coords [MaxCodeblocksPerCluster]ClusterRelativeCoords
	Count  int
}

// Codeblock is a single compressed coefficient block: a (color, scale,
// coefficient-kind) slab of wavelet data for one tile.
type Codeblock struct {
	X, Y             int32
	Color            uint8
	Scale            uint8
	Coefficient      uint8 // 0 = LL, 1 = H
	BlockDataOffset  int64
	BlockSize        uint64
	TemplateID       uint32

	XAdjusted, YAdjusted int32 // coordinates after folding in tile size
	BlockX, BlockY       int32 // tile grid coordinates
	BlockID              int64
}

// DataChunk groups the codeblocks stored back to back in the file as one
// chunk, read with a single positional read (spanning several codeblocks
// at consecutive scales for the same tile position). Each codeblock in it
// is a separate Hulsken bitstream.
type DataChunk struct {
	Offset                int64
	Size                  uint32
	TopCodeblockIndex      int32
	CodeblockCountPerColor int32
	Scale                  int32
	LevelCount             int32
	Data                   []byte
}

// Level is one pyramid level: its tile grid geometry and the flat tile
// array backing it.
type Level struct {
	Scale             int
	WidthInTiles       int
	HeightInTiles      int
	Width              int
	Height             int
	DownsampleFactor   float64
	UmPerPixelX        float64
	UmPerPixelY        float64
	XTileSideInUm      float64
	YTileSideInUm      float64
	TileCount          uint64
	OriginOffsetPixels int32
	Tiles              []Tile
	FullyLoaded        bool
}

// TileAt returns a pointer to the tile at grid position (x, y), or nil if
// out of range.
func (l *Level) TileAt(x, y int) *Tile {
	if x < 0 || y < 0 || x >= l.WidthInTiles || y >= l.HeightInTiles {
		return nil
	}
	return &l.Tiles[y*l.WidthInTiles+x]
}

// ColorChannel holds one color's coefficient state for a single tile.
type ColorChannel struct {
	CoeffH          []int16 // 3 * blockWidth * blockHeight (HL, LH, HH), nil until loaded
	CoeffLL         []int16 // blockWidth * blockHeight, nil until loaded (top scale) or propagated from the parent (lower scales)
	NeighborsLoaded uint32  // bitmask of ISYNTAX_ADJ_TILE_* positions whose coefficients are present
}

// Tile is one pyramid tile: its codeblock bookkeeping, per-color
// coefficient state, and dependency-plan marker.
type Tile struct {
	CodeblockIndex      int32
	CodeblockChunkIndex int32
	DataChunkIndex       int32

	Colors [3]ColorChannel

	LLInvalidEdges uint32

	Exists                         bool
	HasLL                          bool
	HasH                           bool
	SubmittedForHCoeffDecompression bool
	SubmittedForLoading             bool
	Loaded                          bool

	TileScale int
	TileX     int
	TileY     int

	// Dependency-plan marker, set and cleared by internal/reconstruct.
	CacheMarked bool
}

// FirstValidCoefPixel returns the first valid coefficient pixel index, in
// the padded coordinate frame, for the given decomposition scale.
func FirstValidCoefPixel(scale int) int {
	return (PerLevelPadding << uint(scale)) - (PerLevelPadding - 1)
}

// FirstValidLLPixel returns the first valid LL pixel index for the given
// decomposition scale.
func FirstValidLLPixel(scale int) int {
	return FirstValidCoefPixel(scale) + (1 << uint(scale))
}

// CodeblocksPerColorForLevel returns how many codeblocks one color channel
// contributes to a chunk at the given pyramid level: levels are grouped in
// sets of three (L, L+1, L+2) sharing one data chunk, with 1, 1+4, or
// 1+4+16 codeblocks respectively, plus one more if the chunk also carries
// an LL codeblock (only chunks at the image's top scale do).
func CodeblocksPerColorForLevel(level int, hasLL bool) int {
	relLevel := level % 3
	var count int
	switch relLevel {
	case 0:
		count = 1
	case 1:
		count = 1 + 4
	default:
		count = 1 + 4 + 16
	}
	if hasLL {
		count++
	}
	return count
}

// Image is one pyramidal image (WSI, label, or macro) within the file.
type Image struct {
	Type ImageType

	Base64EncodedJPEGFileOffset int64
	Base64EncodedJPEGLength     int64

	WidthIncludingPadding  int
	HeightIncludingPadding int
	Width                  int
	Height                 int
	OffsetX                int
	OffsetY                int

	LevelCount int
	MaxScale   int
	Levels     []Level

	CompressorVersion       int
	CompressionIsLossy      bool
	LossyCompressionRatio   float64

	NumberOfBlocks  int
	Codeblocks      []Codeblock
	DataChunkCount  int
	DataChunks      []DataChunk

	HeaderCodeblocksArePartial bool

	Base64EncodedICCProfileFileOffset int64
	Base64EncodedICCProfileLength     int64
}

// ImageType distinguishes the three kinds of image an iSyntax file can embed.
type ImageType int

const (
	ImageTypeNone ImageType = iota
	ImageTypeMacro
	ImageTypeLabel
	ImageTypeWSI
)

// LevelByScale returns a pointer to the level at the given scale, or nil.
func (im *Image) LevelByScale(scale int) *Level {
	if scale < 0 || scale >= len(im.Levels) {
		return nil
	}
	return &im.Levels[scale]
}
