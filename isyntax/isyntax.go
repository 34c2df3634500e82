// Package isyntax decodes Philips iSyntax whole-slide-image files: the
// XML/DICOM-tag header, the pyramidal codeblock index it describes, and
// on-demand tile reconstruction through the inverse 5/3 wavelet transform.
//
// A typical caller opens a file, injects a tile cache, and reads tiles or
// rectangular regions at any pyramid scale:
//
//	img, err := isyntax.Open("slide.isyntax")
//	cache := isyntax.NewCache(2048)
//	cache.Inject(img)
//	pixels, err := img.ReadTile(cache, scale, tileX, tileY, isyntax.PixelFormatRGBA)
package isyntax

import (
	"fmt"

	"github.com/wsiviewer/isyntax-go/internal/codeblock"
	"github.com/wsiviewer/isyntax-go/internal/dicomxml"
	"github.com/wsiviewer/isyntax-go/internal/fileio"
	"github.com/wsiviewer/isyntax-go/internal/reconstruct"
	"github.com/wsiviewer/isyntax-go/internal/tilecache"
)

// Image is one pyramidal (or flat) image embedded in an iSyntax file.
type Image = codeblock.Image

// Level is one pyramid level's tile grid geometry.
type Level = codeblock.Level

// ImageType distinguishes WSI, label and macro images.
type ImageType = codeblock.ImageType

const (
	ImageTypeWSI   = codeblock.ImageTypeWSI
	ImageTypeLabel = codeblock.ImageTypeLabel
	ImageTypeMacro = codeblock.ImageTypeMacro
)

// Isyntax is one opened iSyntax file. It is safe to call read-only methods
// (ReadTile, ReadRegion, the level getters) concurrently; Close must only
// be called once every other call has returned.
type Isyntax struct {
	handle *fileio.Handle
	opts   options

	wsi   *codeblock.Image
	macro *codeblock.Image
	label *codeblock.Image

	blockWidth, blockHeight int

	// MPPX and MPPY are the WSI image's microns-per-pixel at scale 0.
	// MPPKnown reports whether the file actually specified them; when
	// false, MPPX/MPPY hold the 1.0 fallback rather than a measured value.
	MPPX, MPPY float64
	MPPKnown   bool

	SeektableSizeGuessed bool
}

// Open memory-maps path, parses its header, and assembles the pyramid
// index for every scanned image it describes. A WSI, macro or label image
// that fails to assemble is logged and skipped rather than failing Open
// outright; WSIImage (and every other accessor) reports its absence via
// its ok return value.
func Open(path string, opts ...OpenOption) (*Isyntax, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	h, err := fileio.Open(path)
	if err != nil {
		return nil, err
	}

	headerBytes, payloadOffset, err := readHeader(h)
	if err != nil {
		h.Close()
		return nil, err
	}

	root, err := dicomxml.Parse(headerBytes, 0)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("isyntax: parsing header XML: %w", err)
	}

	ph, err := parseHeader(root)
	if err != nil {
		h.Close()
		return nil, err
	}

	iz := &Isyntax{handle: h, opts: o}

	for _, pi := range ph.images {
		img, err := buildImage(h, payloadOffset, pi, ph)
		if err != nil {
			o.logger.Error("isyntax: failed to assemble image", "type", pi.imageType, "error", err)
			continue
		}
		switch pi.imageType {
		case codeblock.ImageTypeWSI:
			iz.wsi = img
			iz.blockWidth, iz.blockHeight = pi.blockWidth, pi.blockHeight
		case codeblock.ImageTypeMacro:
			iz.macro = img
		case codeblock.ImageTypeLabel:
			iz.label = img
		}
	}

	iz.MPPKnown = ph.mppKnown
	iz.MPPX, iz.MPPY = ph.mppX, ph.mppY
	if !iz.MPPKnown || iz.MPPX <= 0 {
		iz.MPPX = 1.0
	}
	if !iz.MPPKnown || iz.MPPY <= 0 {
		iz.MPPY = 1.0
	}
	iz.SeektableSizeGuessed = ph.seektableGuessed

	return iz, nil
}

// Close unmaps the underlying file. Any Cache injected into this image
// must not be used again afterward.
func (iz *Isyntax) Close() error {
	return iz.handle.Close()
}

// WSIImage returns the file's whole-slide image, if it assembled
// successfully.
func (iz *Isyntax) WSIImage() (*codeblock.Image, bool) {
	return iz.wsi, iz.wsi != nil
}

// MacroImage returns the file's macro (gross) image, if present.
func (iz *Isyntax) MacroImage() (*codeblock.Image, bool) {
	return iz.macro, iz.macro != nil
}

// LabelImage returns the file's label (barcode/ID) image, if present.
func (iz *Isyntax) LabelImage() (*codeblock.Image, bool) {
	return iz.label, iz.label != nil
}

// LevelCount returns the number of pyramid levels in the WSI image, or 0
// if there is none.
func (iz *Isyntax) LevelCount() int {
	if iz.wsi == nil {
		return 0
	}
	return iz.wsi.LevelCount
}

// Level returns the WSI image's level at the given scale.
func (iz *Isyntax) Level(scale int) (Level, bool) {
	if iz.wsi == nil {
		return Level{}, false
	}
	lvl := iz.wsi.LevelByScale(scale)
	if lvl == nil {
		return Level{}, false
	}
	return *lvl, true
}

// TileWidth and TileHeight are the rendered pixel dimensions of one tile,
// twice the coefficient block dimensions (the IDWT doubles resolution
// once per decomposition level).
func (iz *Isyntax) TileWidth() int  { return 2 * iz.blockWidth }
func (iz *Isyntax) TileHeight() int { return 2 * iz.blockHeight }

// GetAssociatedImageJPEG returns the raw (base64-decoded) JPEG bytes for
// the given image type's associated image, if it carries one. Decoding
// the JPEG into pixels is left to the caller.
func (iz *Isyntax) GetAssociatedImageJPEG(t codeblock.ImageType) ([]byte, error) {
	img := iz.imageByType(t)
	if img == nil || img.Base64EncodedJPEGLength <= 0 {
		return nil, fmt.Errorf("isyntax: no JPEG associated image of type %v", t)
	}
	return decodeBase64Span(iz.handle, img.Base64EncodedJPEGFileOffset, int(img.Base64EncodedJPEGLength))
}

// GetICCProfile returns the raw (base64-decoded) ICC profile bytes
// embedded alongside the given image type, if present.
func (iz *Isyntax) GetICCProfile(t codeblock.ImageType) ([]byte, error) {
	img := iz.imageByType(t)
	if img == nil || img.Base64EncodedICCProfileLength <= 0 {
		return nil, fmt.Errorf("isyntax: no ICC profile for image type %v", t)
	}
	return decodeBase64Span(iz.handle, img.Base64EncodedICCProfileFileOffset, int(img.Base64EncodedICCProfileLength))
}

func (iz *Isyntax) imageByType(t codeblock.ImageType) *codeblock.Image {
	switch t {
	case codeblock.ImageTypeWSI:
		return iz.wsi
	case codeblock.ImageTypeMacro:
		return iz.macro
	case codeblock.ImageTypeLabel:
		return iz.label
	default:
		return nil
	}
}

// fileChunkReader adapts a fileio.Handle to reconstruct.ChunkReader,
// reading the exact byte span a DataChunk spans in one positional read.
type fileChunkReader struct {
	h *fileio.Handle
}

func (f *fileChunkReader) ReadChunk(chunk *codeblock.DataChunk) ([]byte, error) {
	return f.h.ReadRange(chunk.Offset, int(chunk.Size))
}

// Cache bounds the number of resident, reconstructed tiles for one
// injected Isyntax image. It must be injected into exactly one image
// before use.
type Cache struct {
	capacity int
	recon    *reconstruct.Reconstructor
	image    *Isyntax
}

// NewCache creates a Cache holding at most targetSize reconstructed tiles
// before older tiles are evicted.
func NewCache(targetSize int) *Cache {
	return &Cache{capacity: targetSize}
}

// Inject binds the cache to img's WSI image, ready for ReadTile/ReadRegion.
// It fails if img has no WSI image, or if this Cache has already been
// injected into an image.
func (c *Cache) Inject(img *Isyntax) error {
	if c.recon != nil {
		return ErrCacheAlreadyInjected
	}
	if img.wsi == nil {
		return ErrNoWSIImage
	}

	tiles, err := tilecache.New(c.capacity, nil)
	if err != nil {
		return fmt.Errorf("isyntax: creating tile cache: %w", err)
	}

	reader := &fileChunkReader{h: img.handle}
	c.recon = reconstruct.New(img.wsi, reader, tiles, img.blockWidth, img.blockHeight, img.opts.maxBlocks, img.opts.logger)
	c.image = img
	return nil
}

// ReadTile reconstructs one tile's pixels at the given scale and tile
// coordinates, in the requested channel order. A nonexistent tile
// (sparse scan region) returns an opaque white buffer. A codeblock that
// fails Hulsken decompression is recovered locally: it is logged, its
// coefficients are left zero (the tile's wavelet stitch falls back to the
// same dummy fill used for a missing neighbor), and the tile stays
// not-loaded so a later read retries it. Tile reads therefore never fail
// at this boundary on account of a single corrupt codeblock; the returned
// error is reserved for caller bugs (bad scale/tile coordinates, an
// uninjected cache) and genuine structural corruption in the codeblock
// index itself.
func (iz *Isyntax) ReadTile(cache *Cache, scale, tileX, tileY int, format PixelFormat) ([]byte, error) {
	if cache == nil || cache.recon == nil || cache.image != iz {
		return nil, ErrCacheNotInjected
	}
	if format != PixelFormatRGBA && format != PixelFormatBGRA {
		return nil, ErrInvalidPixelFormat
	}
	pixels, err := cache.recon.ReadTile(scale, tileX, tileY)
	if err != nil {
		return nil, err
	}
	if format == PixelFormatBGRA {
		swapRedBlue(pixels)
	}
	return pixels, nil
}

// ReadRegion reconstructs the pixels covering (x, y, w, h) in scale-s
// pixel coordinates, tiling ReadTile across every tile the rectangle
// overlaps.
func (iz *Isyntax) ReadRegion(cache *Cache, scale, x, y, w, h int, format PixelFormat) ([]byte, error) {
	if cache == nil || cache.recon == nil || cache.image != iz {
		return nil, ErrCacheNotInjected
	}
	if format != PixelFormatRGBA && format != PixelFormatBGRA {
		return nil, ErrInvalidPixelFormat
	}
	pixels, err := cache.recon.ReadRegion(scale, x, y, w, h)
	if err != nil {
		return nil, err
	}
	if format == PixelFormatBGRA {
		swapRedBlue(pixels)
	}
	return pixels, nil
}

func swapRedBlue(pixels []byte) {
	for i := 0; i+3 < len(pixels); i += 4 {
		pixels[i], pixels[i+2] = pixels[i+2], pixels[i]
	}
}
