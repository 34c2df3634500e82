package prefetch

import (
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/wsiviewer/isyntax-go/internal/codeblock"
	"github.com/wsiviewer/isyntax-go/internal/reconstruct"
)

// Bounds is an axis-aligned tile-coordinate rectangle at one scale.
type Bounds struct {
	MinX, MinY, MaxX, MaxY int
}

// Request describes one streamer call: the camera's current viewport,
// expressed as visible tile bounds per scale, plus the completion
// plumbing a caller uses to collect finished tiles.
type Request struct {
	ResourceID string // set by NewRequest; callers use it to discard stale completions

	CameraCenterX, CameraCenterY float64
	LowestVisibleScale           int
	HighestVisibleScale          int
	VisibleBounds                map[int]Bounds // per scale

	Completions chan Completion

	// FrameBoundaryPassed is checked between chunks/tiles; when set, the
	// streamer yields early so it can be re-driven on the next frame.
	FrameBoundaryPassed *atomic.Bool
}

// Completion is one finished prefetch result, submitted regardless of
// whether the viewport has since moved; consumers discard stale ones by
// ResourceID.
type Completion struct {
	ResourceID string
	Scale      int
	TileX      int
	TileY      int
	RGBA       []byte
	Err        error
}

// NewRequest creates a Request with a fresh ResourceID.
func NewRequest() *Request {
	fb := &atomic.Bool{}
	return &Request{
		ResourceID:          uuid.NewString(),
		VisibleBounds:       make(map[int]Bounds),
		Completions:         make(chan Completion, 64),
		FrameBoundaryPassed: fb,
	}
}

const (
	visibleMargin  = 5
	maxChunksPerCall = 64
)

// Streamer drives background loading for one opened image: a first-load
// pass over the top scales, then incremental camera-driven prefetch on
// every subsequent call.
type Streamer struct {
	image        *codeblock.Image
	reconstructor *reconstruct.Reconstructor
	pool         *WorkerPool
	firstLoaded  bool
}

// NewStreamer creates a Streamer over image, using reconstructor for
// tile IDWT work and pool for background decode/IDWT jobs.
func NewStreamer(image *codeblock.Image, reconstructor *reconstruct.Reconstructor, pool *WorkerPool) *Streamer {
	return &Streamer{image: image, reconstructor: reconstructor, pool: pool}
}

// Stream services one Request: on the first call for this Streamer it
// performs the "first load" (top 1-3 scales, fully IDWT'd, intermediate
// blocks then discarded by the cache's normal trim); on every later call
// it clips the camera bounds to visible tiles per scale, pads by a
// 5-tile margin, and schedules the nearest un-loaded visible tile plus
// its dependency chain.
func (s *Streamer) Stream(req *Request) {
	if !s.firstLoaded {
		s.firstLoad(req)
		s.firstLoaded = true
		return
	}
	s.incremental(req)
}

func (s *Streamer) firstLoad(req *Request) {
	top := s.image.MaxScale
	for scale := top; scale >= 0 && scale >= top-2; scale-- {
		lvl := s.image.LevelByScale(scale)
		if lvl == nil {
			continue
		}
		for y := 0; y < lvl.HeightInTiles; y++ {
			for x := 0; x < lvl.WidthInTiles; x++ {
				if s.yielded(req) {
					return
				}
				s.submitTile(req, scale, x, y)
			}
		}
	}
}

func (s *Streamer) incremental(req *Request) {
	target, scale, found := s.nearestUnloadedVisibleTile(req)
	if !found {
		return
	}
	s.submitTile(req, scale, target.x, target.y)
}

type tilePos struct{ x, y int }

// nearestUnloadedVisibleTile scans every scale from LowestVisibleScale to
// HighestVisibleScale, padding each scale's visible bounds by
// visibleMargin tiles (clipped to the level's grid), and returns the
// tile nearest the camera center (in tile-grid distance) that has not
// yet been reconstructed.
func (s *Streamer) nearestUnloadedVisibleTile(req *Request) (tilePos, int, bool) {
	var best tilePos
	bestScale := -1
	bestDist := -1.0

	for scale := req.LowestVisibleScale; scale <= req.HighestVisibleScale; scale++ {
		lvl := s.image.LevelByScale(scale)
		if lvl == nil {
			continue
		}
		bounds, ok := req.VisibleBounds[scale]
		if !ok {
			continue
		}
		minX := clamp(bounds.MinX-visibleMargin, 0, lvl.WidthInTiles-1)
		maxX := clamp(bounds.MaxX+visibleMargin, 0, lvl.WidthInTiles-1)
		minY := clamp(bounds.MinY-visibleMargin, 0, lvl.HeightInTiles-1)
		maxY := clamp(bounds.MaxY+visibleMargin, 0, lvl.HeightInTiles-1)

		for y := minY; y <= maxY; y++ {
			for x := minX; x <= maxX; x++ {
				tile := lvl.TileAt(x, y)
				if tile == nil || !tile.Exists || tile.Loaded {
					continue
				}
				dx := float64(x) - req.CameraCenterX
				dy := float64(y) - req.CameraCenterY
				dist := dx*dx + dy*dy
				if bestScale == -1 || dist < bestDist {
					best = tilePos{x, y}
					bestScale = scale
					bestDist = dist
				}
			}
		}
	}
	return best, bestScale, bestScale != -1
}

// submitTile aggregates the target's dependency chunks (deduplicated,
// offset-ascending, capped at maxChunksPerCall), schedules an
// H-decompress job per chunk to the pool (or runs inline if the queue is
// saturated), then reconstructs the tile and posts its completion.
func (s *Streamer) submitTile(req *Request, scale, x, y int) {
	for _, pos := range s.dependencyTiles(scale, x, y) {
		if s.yielded(req) {
			return
		}
		pos := pos
		job := func() { _ = s.reconstructor.PreloadTile(pos.scale, pos.x, pos.y) }
		if !s.pool.TrySubmit(job) {
			job()
		}
	}

	rgba, err := s.reconstructor.ReadTile(scale, x, y)
	req.Completions <- Completion{
		ResourceID: req.ResourceID,
		Scale:      scale,
		TileX:      x,
		TileY:      y,
		RGBA:       rgba,
		Err:        err,
	}
	if lvl := s.image.LevelByScale(scale); lvl != nil {
		if tile := lvl.TileAt(x, y); tile != nil {
			tile.Loaded = err == nil
		}
	}
}

type tileScalePos struct {
	scale, x, y int
	chunkOffset int64
}

// dependencyTiles returns the target tile's ancestor chain (itself plus
// every parent up to the coarsest scale), deduplicated by data chunk and
// sorted by that chunk's file offset ascending to maximize sequential
// read throughput, capped at maxChunksPerCall entries.
func (s *Streamer) dependencyTiles(scale, x, y int) []tileScalePos {
	seen := make(map[int32]bool)
	var positions []tileScalePos

	tx, ty := x, y
	for sc := scale; sc <= s.image.MaxScale; sc++ {
		lvl := s.image.LevelByScale(sc)
		if lvl == nil {
			break
		}
		tile := lvl.TileAt(tx, ty)
		if tile == nil {
			break
		}
		idx := tile.DataChunkIndex
		if idx >= 0 && int(idx) < len(s.image.DataChunks) && !seen[idx] {
			seen[idx] = true
			positions = append(positions, tileScalePos{
				scale:       sc,
				x:           tx,
				y:           ty,
				chunkOffset: s.image.DataChunks[idx].Offset,
			})
		}
		tx, ty = tx/2, ty/2
	}

	sort.Slice(positions, func(i, j int) bool { return positions[i].chunkOffset < positions[j].chunkOffset })
	if len(positions) > maxChunksPerCall {
		positions = positions[:maxChunksPerCall]
	}
	return positions
}

func (s *Streamer) yielded(req *Request) bool {
	return req.FrameBoundaryPassed != nil && req.FrameBoundaryPassed.Load()
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
