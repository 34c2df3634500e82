// Package colorspace implements iSyntax's reversible YCoCg-to-RGBA color
// transform, applied to a tile's three reconstructed coefficient planes
// after the inverse wavelet transform.
package colorspace

import "github.com/wsiviewer/isyntax-go/internal/bitio"

// InverseYCoCg converts one Y, Co, Cg sample back to R, G, B. y must
// already be in absolute-value form (sign cleared); co and cg stay signed.
func InverseYCoCg(y, co, cg int16) (r, g, b int16) {
	tmp := y - (cg >> 1)
	g = tmp + cg
	b = tmp - (co >> 1)
	r = b + co
	return
}

func clampByte(v int16) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// ApplyToRGBA converts three equal-length Y/Co/Cg planes into an
// interleaved RGBA buffer (4*len(y) bytes), with alpha fixed at 255. The
// planes are expected to already be cropped to the tile's visible
// 2*blockWidth x 2*blockHeight region. y arrives in ordinary two's-complement
// form (as produced by the IDWT) and is converted to absolute value here,
// in place, before the transform; co and cg are consumed as-is.
func ApplyToRGBA(y, co, cg []int16) []byte {
	bitio.TwosComplementToSignedMagnitude16(y)
	n := len(y)
	out := make([]byte, 4*n)
	for i := 0; i < n; i++ {
		yMag := int16(uint16(y[i]) &^ 0x8000)
		r, g, b := InverseYCoCg(yMag, co[i], cg[i])
		out[4*i+0] = clampByte(r)
		out[4*i+1] = clampByte(g)
		out[4*i+2] = clampByte(b)
		out[4*i+3] = 255
	}
	return out
}
