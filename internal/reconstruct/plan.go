// Package reconstruct implements on-demand tile reconstruction: the
// dependency planner that figures out which ancestor, neighbor, and child
// tiles a read_tile request touches, coefficient loading from file chunks,
// and the IDWT/colorspace pipeline that turns resident coefficients into
// RGBA pixels.
package reconstruct

import "github.com/wsiviewer/isyntax-go/internal/codeblock"

// tileRef pairs a tile with the level it belongs to, since codeblock.Tile
// does not carry a back-pointer to its Level.
type tileRef struct {
	level *codeblock.Level
	tile  *codeblock.Tile
}

// plan is the three disjoint, roots-first dependency lists a read_tile
// call needs: the IDWT chain from the target up to the coarsest scale
// touched, the 8-connected neighbors at each of those scales that must
// supply margin coefficients, and the children that receive LL output
// during IDWT.
type plan struct {
	idwt     []tileRef
	coeff    []tileRef
	children []tileRef
}

var neighborOffsets = [8]struct{ dx, dy int }{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// buildPlan walks from the target tile up to image.MaxScale, marking the
// target at each scale, its existing 8-connected neighbors, and (when
// moving up a scale) the 4 children about to receive LL coefficients.
// A tile's CacheMarked flag prevents it from appearing in more than one
// list; callers are responsible for clearing CacheMarked once the tiles
// have been re-inserted into the cache, mirroring the cache's own
// reserve/release bookkeeping.
func buildPlan(image *codeblock.Image, targetScale, targetX, targetY int) plan {
	var p plan
	tx, ty := targetX, targetY

	for scale := targetScale; scale <= image.MaxScale; scale++ {
		lvl := image.LevelByScale(scale)
		if lvl == nil {
			break
		}
		target := lvl.TileAt(tx, ty)
		if target == nil {
			break
		}
		markAdd(&p.idwt, tileRef{lvl, target})

		mask := lvl.AdjacentTilesMaskOnlyExisting(tx, ty)
		for i, off := range neighborOffsets {
			bit := neighborBit(i)
			if mask&bit == 0 {
				continue
			}
			nt := lvl.TileAt(tx+off.dx, ty+off.dy)
			if nt == nil {
				continue
			}
			markAdd(&p.coeff, tileRef{lvl, nt})
		}

		if childLvl := image.LevelByScale(scale - 1); childLvl != nil {
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					ct := childLvl.TileAt(tx*2+dx, ty*2+dy)
					if ct != nil {
						markAdd(&p.children, tileRef{childLvl, ct})
					}
				}
			}
		}

		tx, ty = tx/2, ty/2
	}
	return p
}

// neighborBit returns the codeblock.Adj* bitmask bit for neighborOffsets
// index i. Offsets are listed in the same 8-position order as Adj*'s
// iota sequence, skipping the center bit.
func neighborBit(i int) uint32 {
	bits := [8]uint32{
		codeblock.AdjTopLeft, codeblock.AdjTop, codeblock.AdjTopRight,
		codeblock.AdjLeft, codeblock.AdjRight,
		codeblock.AdjBottomLeft, codeblock.AdjBottom, codeblock.AdjBottomRight,
	}
	return bits[i]
}

func markAdd(list *[]tileRef, ref tileRef) {
	if ref.tile.CacheMarked {
		return
	}
	ref.tile.CacheMarked = true
	*list = append(*list, ref)
}

func clearMarks(lists ...[]tileRef) {
	for _, list := range lists {
		for _, ref := range list {
			ref.tile.CacheMarked = false
		}
	}
}
