package isyntax

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/wsiviewer/isyntax-go/internal/codeblock"
)

// appendZeroTagHeader writes a throwaway 8-byte DICOM tag header (group,
// element, size); decodeBlockHeaderTable only inspects the very first
// record's first header Size field (the partial/full discriminator), so
// every other header's contents are never read.
func appendZeroTagHeader(buf *bytes.Buffer, size uint32) {
	binary.Write(buf, binary.LittleEndian, uint16(0))
	binary.Write(buf, binary.LittleEndian, uint16(0))
	binary.Write(buf, binary.LittleEndian, size)
}

// appendFullBlockRecord writes one 80-byte full block-header-table record
// (coordinates plus explicit file offset/size), matching
// codeblock.ParseFullBlockHeader's field order exactly.
func appendFullBlockRecord(buf *bytes.Buffer, x, y, color, scale, coeff int32, offset int64, size uint64, templateID uint32) {
	appendZeroTagHeader(buf, 72)
	appendZeroTagHeader(buf, 72)
	binary.Write(buf, binary.LittleEndian, x)
	binary.Write(buf, binary.LittleEndian, y)
	binary.Write(buf, binary.LittleEndian, color)
	binary.Write(buf, binary.LittleEndian, scale)
	binary.Write(buf, binary.LittleEndian, coeff)
	appendZeroTagHeader(buf, 8)
	binary.Write(buf, binary.LittleEndian, offset)
	appendZeroTagHeader(buf, 8)
	binary.Write(buf, binary.LittleEndian, size)
	appendZeroTagHeader(buf, 4)
	binary.Write(buf, binary.LittleEndian, templateID)
}

// buildSingleTileBlockHeaderTable builds the base64 blob for one tile's
// worth of full block-header records: one H and one LL codeblock per
// color, each pointing at a tiny (<=8-byte) codeblock so hulsken's
// short-input fast path decodes it as an all-zero coefficient plane.
func buildSingleTileBlockHeaderTable(t *testing.T) string {
	t.Helper()
	firstH := int32(codeblock.FirstValidCoefPixel(0))
	firstLL := int32(codeblock.FirstValidLLPixel(0))

	var records bytes.Buffer
	offset := int64(0)
	for color := int32(0); color < 3; color++ {
		appendFullBlockRecord(&records, firstH, firstH, color, 0, 1, offset, 4, 1)
		offset += 4
		appendFullBlockRecord(&records, firstLL, firstLL, color, 0, 0, offset, 4, 1)
		offset += 4
	}

	var blob bytes.Buffer
	binary.Write(&blob, binary.LittleEndian, uint32(records.Len()))
	blob.Write(records.Bytes())
	return base64.StdEncoding.EncodeToString(blob.Bytes())
}

// writeSyntheticIsyntaxFile assembles a minimal one-tile iSyntax file: a
// single 8x8 WSI image (4x4 blocks, one decomposition level) described by
// full (non-partial) block header records, so no external seektable is
// needed.
func writeSyntheticIsyntaxFile(t *testing.T) string {
	t.Helper()
	table := buildSingleTileBlockHeaderTable(t)
	jpeg := base64.StdEncoding.EncodeToString([]byte("FAKEJPEGBYTES"))
	icc := base64.StdEncoding.EncodeToString([]byte("FAKEICCPROFILE"))

	header := fmt.Sprintf(`<Array>
<DataObject ObjectType="DPScannedImage">
<Attribute Name="PIM_DP_IMAGE_TYPE" Group="0x301D" Element="0x1004">WSI</Attribute>
<Attribute Name="PIM_DP_IMAGE_DATA" Group="0x301D" Element="0x1005">%s</Attribute>
<Attribute Name="DICOM_ICC_PROFILE" Group="0x0028" Element="0x2000">%s</Attribute>
<Attribute Name="UFS_IMAGE_NUMBER_OF_BLOCKS" Group="0x301D" Element="0x2001">6</Attribute>
<Attribute Name="UFS_IMAGE_BLOCK_COMPRESSION_METHOD" Group="0x301D" Element="0x200F">19</Attribute>
<Attribute Name="UFS_IMAGE_BLOCK_HEADER_TABLE" Group="0x301D" Element="0x2014">%s</Attribute>
<DataObject ObjectType="UfsImageGeneralHeader">
<Attribute Name="UFS_IMAGE_DIMENSION_RANGE" Group="0x301D" Element="0x200B">0 1 7</Attribute>
<Attribute Name="UFS_IMAGE_DIMENSION_RANGE" Group="0x301D" Element="0x200B">0 1 7</Attribute>
<Attribute Name="UFS_IMAGE_DIMENSION_RANGE" Group="0x301D" Element="0x200B">0 1 0</Attribute>
<Attribute Name="UFS_IMAGE_DIMENSION_RANGE" Group="0x301D" Element="0x200B">0 1 0</Attribute>
</DataObject>
<DataObject ObjectType="UfsImageBlockHeaderTemplate">
<Attribute Name="UFS_IMAGE_DIMENSION_RANGE" Group="0x301D" Element="0x200B">0 1 3</Attribute>
<Attribute Name="UFS_IMAGE_DIMENSION_RANGE" Group="0x301D" Element="0x200B">0 1 3</Attribute>
</DataObject>
</DataObject>
</Array>`, jpeg, icc, table)

	data := append([]byte(header), headerTerminator)
	path := filepath.Join(t.TempDir(), "synthetic.isyntax")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestOpenAssemblesSingleTileWSIImage(t *testing.T) {
	path := writeSyntheticIsyntaxFile(t)
	iz, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer iz.Close()

	img, ok := iz.WSIImage()
	if !ok {
		t.Fatal("WSIImage() ok = false, want true")
	}
	if img.Width != 8 || img.Height != 8 {
		t.Errorf("image dims = %dx%d, want 8x8", img.Width, img.Height)
	}
	if iz.LevelCount() != 1 {
		t.Errorf("LevelCount() = %d, want 1", iz.LevelCount())
	}
	if iz.TileWidth() != 8 || iz.TileHeight() != 8 {
		t.Errorf("tile dims = %dx%d, want 8x8", iz.TileWidth(), iz.TileHeight())
	}
	// MPP was never specified in the synthetic header, so the 1.0 fallback
	// must be in effect.
	if iz.MPPKnown {
		t.Error("MPPKnown = true, want false (synthetic header carries no scale factor)")
	}
	if iz.MPPX != 1.0 || iz.MPPY != 1.0 {
		t.Errorf("MPPX/MPPY = %v/%v, want 1.0/1.0 fallback", iz.MPPX, iz.MPPY)
	}
	lvl, ok := iz.Level(0)
	if !ok {
		t.Fatal("Level(0) ok = false")
	}
	if !lvl.Tiles[0].Exists {
		t.Error("sole tile Exists = false, want true")
	}
}

func TestReadTileRoundTrip(t *testing.T) {
	path := writeSyntheticIsyntaxFile(t)
	iz, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer iz.Close()

	cache := NewCache(16)
	if err := cache.Inject(iz); err != nil {
		t.Fatalf("Inject: %v", err)
	}

	pixels, err := iz.ReadTile(cache, 0, 0, 0, PixelFormatRGBA)
	if err != nil {
		t.Fatalf("ReadTile: %v", err)
	}
	want := iz.TileWidth() * iz.TileHeight() * 4
	if len(pixels) != want {
		t.Fatalf("len(pixels) = %d, want %d", len(pixels), want)
	}

	if _, err := iz.ReadTile(cache, 0, 0, 0, PixelFormat(99)); err != ErrInvalidPixelFormat {
		t.Errorf("ReadTile with bad format: err = %v, want ErrInvalidPixelFormat", err)
	}

	if err := cache.Inject(iz); err != ErrCacheAlreadyInjected {
		t.Errorf("second Inject: err = %v, want ErrCacheAlreadyInjected", err)
	}

	region, err := iz.ReadRegion(cache, 0, 0, 0, iz.TileWidth(), iz.TileHeight(), PixelFormatBGRA)
	if err != nil {
		t.Fatalf("ReadRegion: %v", err)
	}
	if len(region) != want {
		t.Fatalf("len(region) = %d, want %d", len(region), want)
	}
}

func TestGetAssociatedImageJPEGAndICCProfile(t *testing.T) {
	path := writeSyntheticIsyntaxFile(t)
	iz, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer iz.Close()

	jpegBytes, err := iz.GetAssociatedImageJPEG(ImageTypeWSI)
	if err != nil {
		t.Fatalf("GetAssociatedImageJPEG: %v", err)
	}
	if string(jpegBytes) != "FAKEJPEGBYTES" {
		t.Errorf("jpeg bytes = %q, want %q", jpegBytes, "FAKEJPEGBYTES")
	}

	iccBytes, err := iz.GetICCProfile(ImageTypeWSI)
	if err != nil {
		t.Fatalf("GetICCProfile: %v", err)
	}
	if string(iccBytes) != "FAKEICCPROFILE" {
		t.Errorf("icc bytes = %q, want %q", iccBytes, "FAKEICCPROFILE")
	}

	if _, err := iz.GetAssociatedImageJPEG(ImageTypeMacro); err == nil {
		t.Error("expected an error requesting a JPEG for an absent macro image")
	}
}

func TestCacheInjectRequiresWSIImage(t *testing.T) {
	iz := &Isyntax{}
	cache := NewCache(4)
	if err := cache.Inject(iz); err != ErrNoWSIImage {
		t.Errorf("Inject on image with no WSI: err = %v, want ErrNoWSIImage", err)
	}
}

func TestReadTileWithoutInjectedCache(t *testing.T) {
	iz := &Isyntax{}
	if _, err := iz.ReadTile(nil, 0, 0, 0, PixelFormatRGBA); err != ErrCacheNotInjected {
		t.Errorf("ReadTile(nil cache): err = %v, want ErrCacheNotInjected", err)
	}
	if _, err := iz.ReadTile(&Cache{}, 0, 0, 0, PixelFormatRGBA); err != ErrCacheNotInjected {
		t.Errorf("ReadTile(un-injected cache): err = %v, want ErrCacheNotInjected", err)
	}
}
