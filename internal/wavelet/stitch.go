package wavelet

// Pad is the coefficient padding applied on every side of a tile's
// reconstructed quadrant, in scale-0-relative coefficient pixels (iSyntax's
// ISYNTAX_IDWT_PAD_L / ISYNTAX_IDWT_PAD_R, both 4).
const Pad = 4

// FirstValidPixel is the crop origin into a stitched/IDWT'd quadrant: the
// first sample belonging to the tile's own valid output region, not derived
// from Pad (PAD_L=4, PAD_R=4, but the valid window starts one pixel short
// of 2*Pad because the lifting step's odd/even split offsets it by one).
const FirstValidPixel = 7

// Position indexes the 3x3 neighborhood around a tile. The order matches
// internal/codeblock's Adj* bitmask so callers can reuse one enumeration
// for both "which neighbors exist" and "which neighbor contributes here".
type Position int

const (
	TopLeft Position = iota
	Top
	TopRight
	Left
	Center
	Right
	BottomLeft
	Bottom
	BottomRight
)

// Source is one neighbor's (or the tile's own) coefficient state, as
// needed to stitch one color channel's padded quadrant buffer.
type Source struct {
	Exists  bool
	CoeffLL []int16 // blockWidth*blockHeight, nil if this tile has no LL yet (not loaded at the top scale, or not propagated from its parent)
	CoeffH  []int16 // 3*blockWidth*blockHeight: HL, LH, HH planes back to back, nil if not yet loaded
}

type quadrantCopy struct {
	srcRow, srcCol int
	width, height  int
	dstRow, dstCol int
}

// copyGeometry returns, for a given neighbor position, the source
// rectangle (in that neighbor's own blockWidth x blockHeight frame) and
// the destination rectangle (in one quadrant's local quadrantWidth x
// quadrantHeight frame) that the stitch copies between. All four
// quadrants (LL, HL, LH, HH) share the same geometry; only the backing
// plane differs.
func copyGeometry(pos Position, blockWidth, blockHeight int) quadrantCopy {
	switch pos {
	case TopLeft:
		return quadrantCopy{blockHeight - Pad, blockWidth - Pad, Pad, Pad, 0, 0}
	case Top:
		return quadrantCopy{blockHeight - Pad, 0, blockWidth, Pad, 0, Pad}
	case TopRight:
		return quadrantCopy{blockHeight - Pad, 0, Pad, Pad, 0, Pad + blockWidth}
	case Left:
		return quadrantCopy{0, blockWidth - Pad, Pad, blockHeight, Pad, 0}
	case Center:
		return quadrantCopy{0, 0, blockWidth, blockHeight, Pad, Pad}
	case Right:
		return quadrantCopy{0, 0, Pad, blockHeight, Pad, Pad + blockWidth}
	case BottomLeft:
		return quadrantCopy{0, blockWidth - Pad, Pad, Pad, Pad + blockHeight, 0}
	case Bottom:
		return quadrantCopy{0, 0, blockWidth, Pad, Pad + blockHeight, Pad}
	case BottomRight:
		return quadrantCopy{0, 0, Pad, Pad, Pad + blockHeight, Pad + blockWidth}
	}
	panic("wavelet: invalid position")
}

type quadrantKind int

const (
	quadLL quadrantKind = iota
	quadHL
	quadLH
	quadHH
)

func plane(src Source, kind quadrantKind, blockWidth, blockHeight int) []int16 {
	blockStride := blockWidth * blockHeight
	switch kind {
	case quadLL:
		return src.CoeffLL
	case quadHL:
		if src.CoeffH == nil {
			return nil
		}
		return src.CoeffH[0:blockStride]
	case quadLH:
		if src.CoeffH == nil {
			return nil
		}
		return src.CoeffH[blockStride : 2*blockStride]
	default:
		if src.CoeffH == nil {
			return nil
		}
		return src.CoeffH[2*blockStride : 3*blockStride]
	}
}

// dummyValue returns the fill value substituted for a missing neighbor
// plane: LL defaults to white (255) for the luma (Y, color 0) channel, so
// that unscanned regions fall back to a white background rather than
// black; H planes (and LL for the chroma channels) default to 0.
func dummyValue(kind quadrantKind, color uint8) int16 {
	if kind == quadLL && color == 0 {
		return 255
	}
	return 0
}

// allPositions lists every neighborhood position in the order of
// internal/codeblock's Adj* constants: position i is considered only when
// bit i of the adjacency mask is set.
var allPositions = [9]Position{TopLeft, Top, TopRight, Left, Center, Right, BottomLeft, Bottom, BottomRight}

// Stitch assembles the padded LL|HL / LH|HH quadrant buffer for one tile's
// color channel, then runs the inverse 5/3 transform over the assembled
// buffer, returning the full fullWidth x fullHeight reconstructed pixel
// buffer (still including the padding border; callers crop a
// 2*blockWidth x 2*blockHeight window starting at FirstValidPixel). existingMask has one bit set
// per Position for each neighbor that should be consulted (matching
// Level.AdjacentTilesMaskOnlyExisting); neighbors whose bit is clear, or
// whose Source.Exists is false, fall back to the dummy fill value.
func Stitch(blockWidth, blockHeight int, neighbors [9]Source, color uint8, existingMask uint32) (buf []int16, fullWidth, fullHeight int, invalidEdges uint32) {
	quadrantWidth := blockWidth + 2*Pad
	quadrantHeight := blockHeight + 2*Pad
	fullWidth = 2 * quadrantWidth
	fullHeight = 2 * quadrantHeight

	buf = make([]int16, fullWidth*fullHeight)
	if color == 0 {
		for row := 0; row < quadrantHeight; row++ {
			base := row * fullWidth
			for col := 0; col < quadrantWidth; col++ {
				buf[base+col] = 255
			}
		}
	}

	quadrantOffset := [4]int{
		quadLL: 0,
		quadHL: quadrantWidth,
		quadLH: fullWidth * quadrantHeight,
		quadHH: fullWidth*quadrantHeight + quadrantWidth,
	}

	for i, pos := range allPositions {
		bit := uint32(1) << uint(i)
		src := neighbors[i]
		used := (existingMask&bit != 0) && src.Exists
		geom := copyGeometry(pos, blockWidth, blockHeight)

		for kind := quadLL; kind <= quadHH; kind++ {
			var srcPlane []int16
			if used {
				srcPlane = plane(src, kind, blockWidth, blockHeight)
			}
			fill := dummyValue(kind, color)
			dstBase := quadrantOffset[kind]

			for r := 0; r < geom.height; r++ {
				dstRowStart := dstBase + (geom.dstRow+r)*fullWidth + geom.dstCol
				if srcPlane == nil {
					for c := 0; c < geom.width; c++ {
						buf[dstRowStart+c] = fill
					}
					if pos != Center {
						invalidEdges |= bit
					}
					continue
				}
				srcRowStart := (geom.srcRow+r)*blockWidth + geom.srcCol
				copy(buf[dstRowStart:dstRowStart+geom.width], srcPlane[srcRowStart:srcRowStart+geom.width])
			}
		}
	}

	Inverse53_2D(buf, fullWidth, fullHeight, fullWidth)
	return buf, fullWidth, fullHeight, invalidEdges
}
