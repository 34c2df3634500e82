package reconstruct

import (
	"fmt"

	"github.com/wsiviewer/isyntax-go/internal/blockalloc"
	"github.com/wsiviewer/isyntax-go/internal/codeblock"
	"github.com/wsiviewer/isyntax-go/internal/hulsken"
)

// ChunkReader supplies the raw bytes of one data chunk, read in a single
// positional read spanning every codeblock the chunk holds.
type ChunkReader interface {
	ReadChunk(chunk *codeblock.DataChunk) ([]byte, error)
}

// chunkCodeblockIndex returns the within-chunk codeblock index for a tile
// scInChunk levels below the chunk's own (coarsest) scale, per the
// fixed 1 / 1+4 / 1+4+16 layout a chunk's three decomposition levels use.
func chunkCodeblockIndex(scInChunk, tileX, tileY int) int {
	switch scInChunk {
	case 0:
		return 0
	case 1:
		return 1 + 2*mod2(tileY) + mod2(tileX)
	default:
		return 5 + 4*mod4(tileY) + mod4(tileX)
	}
}

func mod2(v int) int { return ((v % 2) + 2) % 2 }
func mod4(v int) int { return ((v % 4) + 4) % 4 }

// loadTileCoefficients fills in ref's missing CoeffH (always, if absent)
// and CoeffLL (only for a tile at the image's top scale, whose chunk
// carries LL codeblocks) by reading and Hulsken-decompressing the chunk it
// belongs to.
func (r *Reconstructor) loadTileCoefficients(ref tileRef) error {
	tile := ref.tile
	if tile.DataChunkIndex < 0 || int(tile.DataChunkIndex) >= len(r.image.DataChunks) {
		return fmt.Errorf("reconstruct: tile (%d,%d,%d) has no data chunk", ref.level.Scale, tile.TileX, tile.TileY)
	}
	chunk := &r.image.DataChunks[tile.DataChunkIndex]

	needH := !tile.HasH
	needLL := !tile.HasLL && ref.level.Scale == r.image.MaxScale && int(ref.level.Scale) == int(chunk.Scale)
	if !needH && !needLL {
		return nil
	}

	data, err := r.chunks.ReadChunk(chunk)
	if err != nil {
		return fmt.Errorf("reconstruct: reading chunk at offset %d: %w", chunk.Offset, err)
	}

	scInChunk := int(chunk.Scale) - ref.level.Scale
	idx := chunkCodeblockIndex(scInChunk, tile.TileX, tile.TileY)
	codeblockCount := int(chunk.CodeblockCountPerColor)

	blockW, blockH := r.blockWidth, r.blockHeight
	llIdx := codeblockCount - 1 // LL occupies the last slot in each color's range, per CodeblocksPerColorForLevel's "+1 if hasLL"

	allH, allLL := true, true
	for color := 0; color < 3; color++ {
		ch := &tile.Colors[color]
		if needH && ch.CoeffH == nil {
			h, err := r.decodeCodeblock(data, idx, color, codeblockCount, blockW, blockH, 1, chunk)
			if err != nil {
				return err
			}
			if h == nil {
				allH = false
			} else {
				ch.CoeffH = h
			}
		}
		if needLL && ch.CoeffLL == nil {
			ll, err := r.decodeCodeblock(data, llIdx, color, codeblockCount, blockW, blockH, 0, chunk)
			if err != nil {
				return err
			}
			if ll == nil {
				allLL = false
			} else {
				ch.CoeffLL = ll
			}
		}
	}
	// A codeblock whose Hulsken decompression failed leaves its color
	// channel's CoeffH/CoeffLL nil rather than HasH/HasLL true: the tile
	// stays not-loaded so a later read retries it, and the wavelet stitch
	// falls back to its usual dummy fill for the missing plane in the
	// meantime (the same path a genuinely absent neighbor takes).
	if needH && allH {
		tile.HasH = true
	} else if needH {
		tile.Loaded = false
	}
	if needLL && allLL {
		tile.HasLL = true
	} else if needLL {
		tile.Loaded = false
	}
	return nil
}

// decodeCodeblock locates and decompresses a single color's codeblock at
// position idx within the chunk (idx + color*codeblockCount, per §4.7.1),
// returning an int16 view backed by a freshly allocated coefficient-pool
// block (h blocks for coefficient=1, ll blocks for 0).
//
// A Hulsken decompression failure is recovered locally, per the "decode
// errors are logged, the tile stays blank" rule: it is logged here and
// reported back as a nil buffer with a nil error, never as an error value,
// so a single corrupt codeblock can never fail ReadTile. The returned
// error is reserved for structural corruption in the codeblock index
// itself (an out-of-range id, a span outside its chunk), which is not
// something zero-filling a buffer can paper over.
func (r *Reconstructor) decodeCodeblock(chunkData []byte, idx, color, codeblockCount, blockW, blockH, coefficient int, chunk *codeblock.DataChunk) ([]int16, error) {
	globalIdx := int(chunk.TopCodeblockIndex) + idx + color*codeblockCount
	if globalIdx < 0 || globalIdx >= len(r.image.Codeblocks) {
		return nil, fmt.Errorf("reconstruct: codeblock index %d out of range", globalIdx)
	}
	cb := &r.image.Codeblocks[globalIdx]

	start := cb.BlockDataOffset - chunk.Offset
	end := start + int64(cb.BlockSize)
	if start < 0 || end > int64(len(chunkData)) {
		return nil, fmt.Errorf("reconstruct: codeblock %d span [%d,%d) outside chunk of length %d", globalIdx, start, end, len(chunkData))
	}
	compressed := chunkData[start:end]

	var alloc *blockalloc.Allocator
	if coefficient == 1 {
		alloc = r.hAlloc
	} else {
		alloc = r.llAlloc
	}
	buf := alloc.Alloc()
	out := blockalloc.Int16View(buf)

	decoded, err := hulsken.Decompress(compressed, blockW, blockH, coefficient, r.image.CompressorVersion)
	if err != nil {
		alloc.Free(buf)
		r.logger.Error("reconstruct: hulsken decompress failed, tile left blank",
			"codeblock", globalIdx, "color", color, "coefficient", coefficient, "error", err)
		return nil, nil
	}
	copy(out, decoded)
	return out, nil
}
