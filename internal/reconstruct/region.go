package reconstruct

import "fmt"

// ReadRegion tiles ReadTile over the rectangle (x, y, w, h) in scale-s
// pixel coordinates and blits each overlapping tile's visible
// sub-rectangle into out, a w*h*4-byte RGBA buffer in scanline order.
// This composes ReadTile rather than re-deriving any cache or dependency
// state, per the round-trip law that a region read must match the
// per-tile reads it's built from.
func (r *Reconstructor) ReadRegion(scale, x, y, w, h int) ([]byte, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("reconstruct: invalid region size %dx%d", w, h)
	}
	out := make([]byte, w*h*4)
	tw, th := r.TileWidth(), r.TileHeight()

	firstTileX := floorDiv(x, tw)
	firstTileY := floorDiv(y, th)
	lastTileX := floorDiv(x+w-1, tw)
	lastTileY := floorDiv(y+h-1, th)

	for ty := firstTileY; ty <= lastTileY; ty++ {
		for tx := firstTileX; tx <= lastTileX; tx++ {
			tile, err := r.ReadTile(scale, tx, ty)
			if err != nil {
				return nil, err
			}
			blit(out, w, h, tile, tw, th, tx*tw-x, ty*th-y)
		}
	}
	return out, nil
}

// blit copies the overlap between a tw x th tile positioned at
// (dstOriginX, dstOriginY) in the destination frame and the w x h
// destination buffer.
func blit(dst []byte, w, h int, tile []byte, tw, th, dstOriginX, dstOriginY int) {
	for sy := 0; sy < th; sy++ {
		dy := dstOriginY + sy
		if dy < 0 || dy >= h {
			continue
		}
		for sx := 0; sx < tw; sx++ {
			dx := dstOriginX + sx
			if dx < 0 || dx >= w {
				continue
			}
			srcOff := (sy*tw + sx) * 4
			dstOff := (dy*w + dx) * 4
			copy(dst[dstOff:dstOff+4], tile[srcOff:srcOff+4])
		}
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
