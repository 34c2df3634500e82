package reconstruct

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/wsiviewer/isyntax-go/internal/blockalloc"
	"github.com/wsiviewer/isyntax-go/internal/codeblock"
	"github.com/wsiviewer/isyntax-go/internal/colorspace"
	"github.com/wsiviewer/isyntax-go/internal/tilecache"
	"github.com/wsiviewer/isyntax-go/internal/wavelet"
)

// Reconstructor drives read_tile/read_region over one image: dependency
// planning, coefficient loading, IDWT, and color conversion. blockWidth
// and blockHeight are the per-codeblock coefficient dimensions; the
// rendered tile is always 2*blockWidth x 2*blockHeight pixels, since one
// tile's own IDWT step doubles its coefficient resolution into the
// output pixel grid.
//
// ReadTile serializes the entire reconstruction (plan, load, IDWT,
// cache re-insertion) on mu: concurrent calls on disjoint tiles are
// independent in principle, but since tiles mutate shared Level state
// directly during reconstruction, the whole operation is serialized for
// now rather than fine-grained per-tile locking.
type Reconstructor struct {
	mu sync.Mutex

	image       *codeblock.Image
	chunks      ChunkReader
	cache       *tilecache.Cache
	llAlloc     *blockalloc.Allocator
	hAlloc      *blockalloc.Allocator
	blockWidth  int
	blockHeight int
	logger      *slog.Logger
}

// New creates a Reconstructor. maxBlocks bounds the total number of LL (or
// H) coefficient blocks the reconstructor's allocators will hand out live
// at once, across every tile currently resident in cache. A nil logger
// falls back to slog.Default().
func New(image *codeblock.Image, chunks ChunkReader, cache *tilecache.Cache, blockWidth, blockHeight, maxBlocks int, logger *slog.Logger) *Reconstructor {
	llSize := blockWidth * blockHeight * 2
	hSize := 3 * blockWidth * blockHeight * 2
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconstructor{
		image:       image,
		chunks:      chunks,
		cache:       cache,
		blockWidth:  blockWidth,
		blockHeight: blockHeight,
		llAlloc:     blockalloc.New(llSize, maxBlocks, 64),
		hAlloc:      blockalloc.New(hSize, maxBlocks, 64),
		logger:      logger,
	}
}

// TileWidth and TileHeight are the rendered pixel dimensions of one tile.
func (r *Reconstructor) TileWidth() int  { return 2 * r.blockWidth }
func (r *Reconstructor) TileHeight() int { return 2 * r.blockHeight }

// PreloadTile decompresses (but does not IDWT) one tile's H and
// top-scale LL coefficients, so a later ReadTile call finds them already
// resident. Intended for the streaming prefetcher's background workers,
// which run this ahead of an explicit read_tile request.
func (r *Reconstructor) PreloadTile(scale, tileX, tileY int) error {
	lvl := r.image.LevelByScale(scale)
	if lvl == nil {
		return fmt.Errorf("reconstruct: scale %d out of range", scale)
	}
	tile := lvl.TileAt(tileX, tileY)
	if tile == nil || !tile.Exists {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadTileCoefficients(tileRef{lvl, tile})
}

// ReadTile reconstructs one tile's RGBA pixels. A nonexistent tile
// (exists=false) returns a fully white buffer, matching the documented
// behavior for sparse scan regions.
func (r *Reconstructor) ReadTile(scale, tileX, tileY int) ([]byte, error) {
	lvl := r.image.LevelByScale(scale)
	if lvl == nil {
		return nil, fmt.Errorf("reconstruct: scale %d out of range", scale)
	}
	target := lvl.TileAt(tileX, tileY)
	if target == nil {
		return nil, fmt.Errorf("reconstruct: tile (%d,%d) out of range at scale %d", tileX, tileY, scale)
	}
	if !target.Exists {
		return whiteTile(r.TileWidth(), r.TileHeight()), nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p := buildPlan(r.image, scale, tileX, tileY)
	defer clearMarks(p.idwt, p.coeff, p.children)

	for _, ref := range p.coeff {
		if err := r.loadTileCoefficients(ref); err != nil {
			return nil, err
		}
	}
	for _, ref := range p.idwt {
		if err := r.loadTileCoefficients(ref); err != nil {
			return nil, err
		}
	}

	var planes [3][]int16
	for i := len(p.idwt) - 1; i >= 0; i-- {
		ref := p.idwt[i]
		isTarget := i == 0
		cropped, err := r.idwtOne(ref)
		if err != nil {
			return nil, err
		}
		if isTarget {
			planes = cropped
			continue
		}
		r.scatterToChildren(ref, cropped)
	}

	out := colorspace.ApplyToRGBA(planes[0], planes[1], planes[2])

	r.reinsert(p)
	return out, nil
}

// idwtOne stitches ref's own coefficients with its 8-connected neighbors
// for each color, runs the inverse 5/3 transform, and crops the result
// down to the 2*blockWidth x 2*blockHeight valid region.
func (r *Reconstructor) idwtOne(ref tileRef) ([3][]int16, error) {
	var planes [3][]int16
	cropW, cropH := 2*r.blockWidth, 2*r.blockHeight
	cropOffset := wavelet.FirstValidPixel

	for color := 0; color < 3; color++ {
		sources, mask := r.neighborSources(ref.level, ref.tile.TileX, ref.tile.TileY, color)
		buf, fullWidth, _, invalidEdges := wavelet.Stitch(r.blockWidth, r.blockHeight, sources, uint8(color), mask)
		planes[color] = crop(buf, fullWidth, cropOffset, cropOffset, cropW, cropH)
		ref.tile.LLInvalidEdges |= invalidEdges
	}
	return planes, nil
}

var neighborPositions = [9]struct {
	dx, dy int
	bit    uint32
}{
	{-1, -1, codeblock.AdjTopLeft}, {0, -1, codeblock.AdjTop}, {1, -1, codeblock.AdjTopRight},
	{-1, 0, codeblock.AdjLeft}, {0, 0, codeblock.AdjCenter}, {1, 0, codeblock.AdjRight},
	{-1, 1, codeblock.AdjBottomLeft}, {0, 1, codeblock.AdjBottom}, {1, 1, codeblock.AdjBottomRight},
}

func (r *Reconstructor) neighborSources(level *codeblock.Level, tx, ty, color int) ([9]wavelet.Source, uint32) {
	var sources [9]wavelet.Source
	mask := level.AdjacentTilesMaskOnlyExisting(tx, ty)
	for i, pos := range neighborPositions {
		if mask&pos.bit == 0 {
			continue
		}
		nt := level.TileAt(tx+pos.dx, ty+pos.dy)
		if nt == nil {
			continue
		}
		sources[i] = wavelet.Source{
			Exists:  true,
			CoeffLL: nt.Colors[color].CoeffLL,
			CoeffH:  nt.Colors[color].CoeffH,
		}
	}
	return sources, mask
}

// scatterToChildren splits a 2*blockWidth x 2*blockHeight reconstructed
// plane into the 4 blockWidth x blockHeight quadrants its children
// receive as their new LL coefficients.
func (r *Reconstructor) scatterToChildren(ref tileRef, planes [3][]int16) {
	childLvl := r.image.LevelByScale(ref.level.Scale - 1)
	if childLvl == nil {
		return
	}
	fullW := 2 * r.blockWidth
	for dy := 0; dy < 2; dy++ {
		for dx := 0; dx < 2; dx++ {
			child := childLvl.TileAt(ref.tile.TileX*2+dx, ref.tile.TileY*2+dy)
			if child == nil {
				continue
			}
			for color := 0; color < 3; color++ {
				if old := child.Colors[color].CoeffLL; old != nil {
					r.llAlloc.Free(blockalloc.BytesView(old))
				}
				buf := r.llAlloc.Alloc()
				dst := blockalloc.Int16View(buf)
				cropInto(dst, planes[color], fullW, dx*r.blockWidth, dy*r.blockHeight, r.blockWidth, r.blockHeight)
				child.Colors[color].CoeffLL = dst
			}
			child.HasLL = true
		}
	}
}

func crop(buf []int16, stride, offsetX, offsetY, width, height int) []int16 {
	out := make([]int16, width*height)
	cropInto(out, buf, stride, offsetX, offsetY, width, height)
	return out
}

func cropInto(dst, buf []int16, stride, offsetX, offsetY, width, height int) {
	for y := 0; y < height; y++ {
		srcStart := (offsetY+y)*stride + offsetX
		copy(dst[y*width:(y+1)*width], buf[srcStart:srcStart+width])
	}
}

func whiteTile(width, height int) []byte {
	out := make([]byte, width*height*4)
	for i := range out {
		out[i] = 255
	}
	return out
}

// reinsert places every tile the plan touched (idwt, coeff, then
// children, per §4.7 step 3) at the head of the cache LRU, so the most
// recently used tiles are the least likely to be trimmed next.
func (r *Reconstructor) reinsert(p plan) {
	for _, ref := range p.idwt {
		r.insertTile(ref)
	}
	for _, ref := range p.coeff {
		r.insertTile(ref)
	}
	for _, ref := range p.children {
		r.insertTile(ref)
	}
}

func (r *Reconstructor) insertTile(ref tileRef) {
	key := tilecache.Key{Scale: ref.level.Scale, X: ref.tile.TileX, Y: ref.tile.TileY}
	tile := ref.tile
	entry := tilecache.Entry{
		OnEvict: func() {
			for c := 0; c < 3; c++ {
				ch := &tile.Colors[c]
				if ch.CoeffLL != nil {
					r.llAlloc.Free(blockalloc.BytesView(ch.CoeffLL))
					ch.CoeffLL = nil
				}
				if ch.CoeffH != nil {
					r.hAlloc.Free(blockalloc.BytesView(ch.CoeffH))
					ch.CoeffH = nil
				}
			}
			tile.HasLL = false
			tile.HasH = false
		},
	}
	r.cache.Add(key, entry)
}
