package isyntax

import (
	"encoding/binary"
	"fmt"

	"github.com/wsiviewer/isyntax-go/internal/codeblock"
	"github.com/wsiviewer/isyntax-go/internal/dicomxml"
	"github.com/wsiviewer/isyntax-go/internal/fileio"
)

// buildImage turns one parsed <DataObject ObjectType="DPScannedImage">
// subtree into a fully populated codeblock.Image. payloadOffset is the
// absolute file offset of the first byte after the header terminator,
// where a data-model < 100 file's external seektable lives.
func buildImage(h *fileio.Handle, payloadOffset int64, pi *parsedImage, ph *parsedHeader) (*codeblock.Image, error) {
	img := &codeblock.Image{
		Type: pi.imageType,

		Base64EncodedJPEGFileOffset: pi.jpegOffset,
		Base64EncodedJPEGLength:     pi.jpegLength,

		WidthIncludingPadding:  pi.widthIncludingPadding,
		HeightIncludingPadding: pi.heightIncludingPadding,
		OffsetX:                int(pi.offsetX),
		OffsetY:                int(pi.offsetY),

		LevelCount:        pi.levelCount,
		CompressorVersion: pi.compressorVersion,
		NumberOfBlocks:    pi.numberOfBlocks,

		Base64EncodedICCProfileFileOffset: pi.iccOffset,
		Base64EncodedICCProfileLength:     pi.iccLength,
	}

	if img.LevelCount > 0 {
		img.MaxScale = img.LevelCount - 1
		levelPadding := (codeblock.PerLevelPadding << uint(img.MaxScale)) - codeblock.PerLevelPadding
		img.Width = img.WidthIncludingPadding - 2*levelPadding
		img.Height = img.HeightIncludingPadding - 2*levelPadding
	}

	if pi.imageType != codeblock.ImageTypeWSI {
		// Macro/label images carry no pyramid; only their JPEG byte range matters.
		return img, nil
	}

	if pi.blockWidth == 0 || pi.blockHeight == 0 {
		return nil, fmt.Errorf("isyntax: WSI image has no block header template")
	}

	mppX, mppY := ph.mppX, ph.mppY
	if !ph.mppKnown || mppX <= 0 {
		mppX = 1.0
	}
	if !ph.mppKnown || mppY <= 0 {
		mppY = 1.0
	}

	img.Levels = codeblock.BuildLevels(img.LevelCount, 2*pi.blockWidth, 2*pi.blockHeight, img.Width, img.Height, mppX, mppY)

	var cbs []codeblock.Codeblock
	var partial bool
	var err error
	switch {
	case pi.headerTable != nil:
		cbs, partial, err = decodeBlockHeaderTable(h, pi)
	case pi.clusterTable != nil:
		cbs, err = decodeClusterHeaderTable(h, pi)
		partial = false
	default:
		return nil, fmt.Errorf("isyntax: WSI image has neither a block header table nor a cluster header table")
	}
	if err != nil {
		return nil, err
	}
	img.HeaderCodeblocksArePartial = partial

	resolveBlockCoords(cbs, img, pi.blockWidth, pi.blockHeight)

	if partial {
		guessed, err := resolveFromSeektable(h, payloadOffset, cbs, img)
		if err != nil {
			return nil, err
		}
		if guessed {
			ph.seektableGuessed = true
		}
	}

	img.Codeblocks = cbs
	img.NumberOfBlocks = len(cbs)
	groupIntoChunks(cbs, img)

	return img, nil
}

// decodeBlockHeaderTable decodes the data-model < 100 base64 blob behind
// UFS_IMAGE_BLOCK_HEADER_TABLE: a u32 header_size followed by either
// 48-byte partial records (coordinates + template id only, inner
// sequence-element size 40) or 80-byte full records (coordinates,
// explicit offset/size, and template id, inner sequence-element size 72).
func decodeBlockHeaderTable(h *fileio.Handle, pi *parsedImage) ([]codeblock.Codeblock, bool, error) {
	n := pi.headerTable
	decoded, err := decodeBase64Span(h, n.ContentOffset, n.ContentLength)
	if err != nil {
		return nil, false, err
	}
	if len(decoded) < 12 {
		return nil, false, fmt.Errorf("isyntax: block header table too short (%d bytes)", len(decoded))
	}
	headerSize := binary.LittleEndian.Uint32(decoded)
	blockHeaderStart := 4

	// The inner sequence-element tag header immediately follows the u32
	// header_size; its Size field (40 vs 72) distinguishes the partial and
	// full record layouts.
	innerSize := binary.LittleEndian.Uint32(decoded[blockHeaderStart+4:])

	var recordSize uint32
	var partial bool
	switch innerSize {
	case 40:
		recordSize = 48
		partial = true
	case 72:
		recordSize = 80
		partial = false
	default:
		return nil, false, fmt.Errorf("isyntax: unrecognized block header record layout (inner size %d)", innerSize)
	}
	if headerSize%recordSize != 0 {
		return nil, false, fmt.Errorf("isyntax: block header table size %d is not a multiple of %d", headerSize, recordSize)
	}
	count := int(headerSize / recordSize)

	cbs := make([]codeblock.Codeblock, count)
	pos := blockHeaderStart
	for i := 0; i < count; i++ {
		var cb codeblock.Codeblock
		var err error
		if partial {
			cb, pos, err = codeblock.ParsePartialBlockHeader(decoded, pos)
		} else {
			cb, pos, err = codeblock.ParseFullBlockHeader(decoded, pos)
		}
		if err != nil {
			return nil, false, fmt.Errorf("isyntax: decoding block header record %d: %w", i, err)
		}
		cbs[i] = cb
	}
	return cbs, partial, nil
}

// decodeClusterHeaderTable is a best-effort decoder for the data-model >=
// 100 UFS_IMAGE_CLUSTER_HEADER_TABLE layout. original_source itself flags
// its own equivalent code path as probable duplication-era fallout rather
// than a verified format; this mirrors the block-header-table's full
// (80-byte) record shape, the closest grounded layout available, as a
// documented simplification rather than a byte-exact port.
func decodeClusterHeaderTable(h *fileio.Handle, pi *parsedImage) ([]codeblock.Codeblock, error) {
	n := pi.clusterTable
	decoded, err := decodeBase64Span(h, n.ContentOffset, n.ContentLength)
	if err != nil {
		return nil, err
	}
	if len(decoded) < 12 {
		return nil, fmt.Errorf("isyntax: cluster header table too short (%d bytes)", len(decoded))
	}
	headerSize := binary.LittleEndian.Uint32(decoded)
	const recordSize = 80
	if headerSize%recordSize != 0 {
		return nil, fmt.Errorf("isyntax: cluster header table size %d is not a multiple of %d", headerSize, recordSize)
	}
	count := int(headerSize / recordSize)
	cbs := make([]codeblock.Codeblock, count)
	pos := 4
	for i := 0; i < count; i++ {
		cb, newPos, err := codeblock.ParseFullBlockHeader(decoded, pos)
		if err != nil {
			return nil, fmt.Errorf("isyntax: decoding cluster header record %d: %w", i, err)
		}
		cbs[i] = cb
		pos = newPos
	}
	return cbs, nil
}

// resolveBlockCoords fills in each codeblock's image-relative coordinates
// and tile grid position, following the same offset-then-scale-shift
// original_source applies before grouping codeblocks into chunks.
// blockWidth/blockHeight are the scale-0 coefficient block dimensions; a
// tile's rendered pixel size at a given scale is twice that, shifted left
// by the scale.
func resolveBlockCoords(cbs []codeblock.Codeblock, img *codeblock.Image, blockWidth, blockHeight int) {
	for i := range cbs {
		cb := &cbs[i]
		cb.XAdjusted = cb.X - int32(img.OffsetX)
		cb.YAdjusted = cb.Y - int32(img.OffsetY)

		isLL := cb.Coefficient == 0
		var offset int32
		if isLL {
			offset = int32(codeblock.FirstValidLLPixel(int(cb.Scale)))
		} else {
			offset = int32(codeblock.FirstValidCoefPixel(int(cb.Scale)))
		}
		x := cb.XAdjusted - offset
		y := cb.YAdjusted - offset

		tilePixelW := int32(2*blockWidth) << uint(cb.Scale)
		tilePixelH := int32(2*blockHeight) << uint(cb.Scale)
		cb.BlockX = x / tilePixelW
		cb.BlockY = y / tilePixelH
	}
}

// resolveFromSeektable fills in BlockDataOffset/BlockSize on every
// partial-header codeblock by reading the external
// isyntax_seektable_codeblock_header_t array that immediately follows the
// header terminator, and computing each codeblock's block_id the same way
// original_source does: a running sum of every coarser level's tile count
// (one extra level for an LL codeblock), plus this codeblock's own
// row-major tile position, plus a color-channel stride.
func resolveFromSeektable(h *fileio.Handle, payloadOffset int64, cbs []codeblock.Codeblock, img *codeblock.Image) (bool, error) {
	tag, pos, err := readSeektableHeaderTag(h, payloadOffset)
	if err != nil {
		return false, err
	}
	if tag.Group != dicomxml.UFSImageSeektable.Group || tag.Element != dicomxml.UFSImageSeektable.Element {
		return false, fmt.Errorf("isyntax: expected seektable tag (0x301D,0x2015) at offset %d, got (0x%04X,0x%04X)", payloadOffset, tag.Group, tag.Element)
	}

	guessed := tag.Size <= 0
	size := int64(tag.Size)
	if guessed {
		size = codeblock.GuessedSeektableSize(len(cbs))
	}
	raw, err := h.ReadRange(pos, int(size))
	if err != nil {
		return false, fmt.Errorf("isyntax: reading seektable: %w", err)
	}

	entryCount := len(raw) / codeblock.SeektableEntrySize

	totalCoeffTiles := totalCoeffTileCount(img)

	for i := range cbs {
		cb := &cbs[i]
		id := blockID(cb, img, totalCoeffTiles)
		if id < 0 || id >= entryCount {
			return false, fmt.Errorf("isyntax: codeblock %d block id %d out of seektable bounds (%d entries)", i, id, entryCount)
		}
		entry, _, err := codeblock.ParseSeektableEntry(raw, id*codeblock.SeektableEntrySize)
		if err != nil {
			return false, fmt.Errorf("isyntax: parsing seektable entry %d: %w", id, err)
		}
		cb.BlockDataOffset = entry.BlockDataOffset
		cb.BlockSize = entry.BlockSize
	}
	return guessed, nil
}

type seektableTag struct {
	Group, Element uint16
	Size           int32
}

func readSeektableHeaderTag(h *fileio.Handle, offset int64) (seektableTag, int64, error) {
	buf, err := h.ReadRange(offset, 8)
	if err != nil {
		return seektableTag{}, 0, fmt.Errorf("isyntax: reading seektable tag header: %w", err)
	}
	t := seektableTag{
		Group:   binary.LittleEndian.Uint16(buf),
		Element: binary.LittleEndian.Uint16(buf[2:]),
		Size:    int32(binary.LittleEndian.Uint32(buf[4:])),
	}
	return t, offset + 8, nil
}

// totalCoeffTileCount sums every level's H-coefficient tile count plus a
// second count of the coarsest level's tiles (which additionally carry LL
// coefficients): the per-color-channel stride a codeblock's block_id is
// offset by.
func totalCoeffTileCount(img *codeblock.Image) int64 {
	var total int64
	for i := range img.Levels {
		total += int64(img.Levels[i].TileCount)
	}
	if len(img.Levels) > 0 {
		total += int64(img.Levels[img.MaxScale].TileCount)
	}
	return total
}

// blockID reproduces original_source's "calculate the block ID" loop.
func blockID(cb *codeblock.Codeblock, img *codeblock.Image, totalCoeffTiles int64) int {
	isLL := cb.Coefficient == 0
	maxScale := int(cb.Scale)
	if isLL {
		maxScale++
	}
	var id int64
	for scale := 0; scale < maxScale; scale++ {
		id += int64(img.Levels[scale].TileCount)
	}
	lvl := img.LevelByScale(int(cb.Scale))
	id += int64(cb.BlockY)*int64(lvl.WidthInTiles) + int64(cb.BlockX)
	id += int64(cb.Color) * totalCoeffTiles
	return int(id)
}

// groupIntoChunks replicates original_source's single pass over the
// (already in block-header-table order) codeblock slice: every
// codeblockCountPerColor*3 run of entries shares one compressed blob
// ("data chunk"), and each level's tile grid is populated with the
// codeblock/chunk indices that reference it.
func groupIntoChunks(cbs []codeblock.Codeblock, img *codeblock.Image) {
	maxPossibleChunks := 0
	for scale := 0; scale <= img.MaxScale; scale++ {
		if (scale+1)%3 == 0 || scale == img.MaxScale {
			maxPossibleChunks += int(img.Levels[scale].TileCount)
		}
	}
	img.DataChunks = make([]codeblock.DataChunk, 0, maxPossibleChunks)

	currentChunkCodeblockIndex := 0
	nextChunkCodeblockIndex := 0
	currentDataChunkIndex := -1

	for i := 0; i < len(cbs); {
		cb := &cbs[i]
		if cb.Color != 0 {
			i = nextChunkCodeblockIndex
			if i >= len(cbs) {
				break
			}
			continue
		}
		if i == nextChunkCodeblockIndex {
			perColor := codeblock.CodeblocksPerColorForLevel(int(cb.Scale), int(cb.Scale) == img.MaxScale)
			currentChunkCodeblockIndex = i
			nextChunkCodeblockIndex = i + perColor*3

			img.DataChunks = append(img.DataChunks, codeblock.DataChunk{
				Offset:                 cb.BlockDataOffset,
				TopCodeblockIndex:      int32(currentChunkCodeblockIndex),
				CodeblockCountPerColor: int32(perColor),
				Scale:                  int32(cb.Scale),
			})
			currentDataChunkIndex = len(img.DataChunks) - 1
		}

		lvl := img.LevelByScale(int(cb.Scale))
		if lvl != nil && cb.BlockX >= 0 && cb.BlockY >= 0 {
			tileIdx := int(cb.BlockY)*lvl.WidthInTiles + int(cb.BlockX)
			if tileIdx >= 0 && tileIdx < len(lvl.Tiles) {
				t := &lvl.Tiles[tileIdx]
				t.Exists = true
				t.CodeblockIndex = int32(i)
				t.CodeblockChunkIndex = int32(currentChunkCodeblockIndex)
				t.DataChunkIndex = int32(currentDataChunkIndex)
			}
		}
		i++
	}

	img.DataChunkCount = len(img.DataChunks)
	fillChunkSizes(cbs, img)
}

// fillChunkSizes sets each DataChunk's Size to the byte span covered by
// every codeblock assigned to it, since original_source leaves this field
// to be filled in separately rather than during the grouping pass itself.
func fillChunkSizes(cbs []codeblock.Codeblock, img *codeblock.Image) {
	for ci := range img.DataChunks {
		chunk := &img.DataChunks[ci]
		start := int(chunk.TopCodeblockIndex)
		end := start + 3*int(chunk.CodeblockCountPerColor)
		if end > len(cbs) {
			end = len(cbs)
		}
		var maxEnd int64
		for i := start; i < end; i++ {
			e := cbs[i].BlockDataOffset + int64(cbs[i].BlockSize)
			if e > maxEnd {
				maxEnd = e
			}
		}
		span := maxEnd - chunk.Offset
		if span > 0 {
			chunk.Size = uint32(span)
		}
	}
}
