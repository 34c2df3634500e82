package isyntax

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/wsiviewer/isyntax-go/internal/codeblock"
	"github.com/wsiviewer/isyntax-go/internal/dicomxml"
	"github.com/wsiviewer/isyntax-go/internal/fileio"
)

const headerTerminator = 0x04
const headerReadChunk = 1 << 20  // 1 MiB, per spec's incremental-read contract
const headerHardCeiling = 1 << 28 // refuse to buffer more than 256 MiB of header

// readHeader reads h in headerReadChunk-sized steps until the 0x04
// terminator byte is observed, and returns the header bytes (excluding the
// terminator) plus the absolute offset of the first payload byte after it.
func readHeader(h *fileio.Handle) ([]byte, int64, error) {
	var buf []byte
	var offset int64
	for {
		remaining := h.Size() - offset
		if remaining <= 0 {
			return nil, 0, fmt.Errorf("isyntax: header terminator (0x04) not found before end of file")
		}
		n := headerReadChunk
		if int64(n) > remaining {
			n = int(remaining)
		}
		chunk, err := h.ReadRange(offset, n)
		if err != nil {
			return nil, 0, fmt.Errorf("isyntax: reading header: %w", err)
		}
		if idx := indexByte(chunk, headerTerminator); idx >= 0 {
			buf = append(buf, chunk[:idx]...)
			return buf, offset + int64(idx) + 1, nil
		}
		buf = append(buf, chunk...)
		offset += int64(n)
		if len(buf) > headerHardCeiling {
			return nil, 0, fmt.Errorf("isyntax: header exceeds %d bytes without a terminator", headerHardCeiling)
		}
	}
}

func indexByte(b []byte, target byte) int {
	for i, c := range b {
		if c == target {
			return i
		}
	}
	return -1
}

// parsedImage holds one <DataObject ObjectType="DPScannedImage"> subtree's
// extracted fields, before codeblock.Image assembly.
type parsedImage struct {
	imageType codeblock.ImageType

	offsetX, offsetY               int32
	widthIncludingPadding           int
	heightIncludingPadding          int
	levelCount                      int

	blockWidth, blockHeight int

	numberOfBlocks    int
	compressorVersion int
	headerTable        *dicomxml.Node // UFS_IMAGE_BLOCK_HEADER_TABLE leaf, v1
	clusterTable       *dicomxml.Node // UFS_IMAGE_CLUSTER_HEADER_TABLE leaf, v2

	jpegOffset, jpegLength int64
	iccOffset, iccLength   int64
}

type parsedHeader struct {
	dataModelMajor int
	mppX, mppY     float64
	mppKnown       bool
	seektableGuessed bool
	images         []*parsedImage
}

// parseHeader walks the parsed XML tree, dispatching on (group, element)
// exactly the way original_source/src/isyntax/isyntax.c's big switch
// statement does inside its streaming parser; we have the whole tree up
// front so the "current data object context" the C parser tracks on a
// stack becomes a plain recursive-descent parameter here.
func parseHeader(root *dicomxml.Node) (*parsedHeader, error) {
	ph := &parsedHeader{dataModelMajor: 1}
	walkRoot(root, ph)
	if len(ph.images) == 0 {
		return nil, fmt.Errorf("isyntax: no scanned images found in header")
	}
	return ph, nil
}

func walkRoot(n *dicomxml.Node, ph *parsedHeader) {
	for _, c := range n.Children {
		switch c.Type {
		case dicomxml.NodeLeaf:
			applyRootLeaf(c, ph)
		case dicomxml.NodeBranch, dicomxml.NodeArray:
			if scannedImagesContainer(c) {
				collectScannedImages(c, ph)
			} else {
				walkRoot(c, ph)
			}
		}
	}
}

// scannedImagesContainer reports whether c is the Array wrapping
// DPScannedImage DataObjects, reached as a nested child of the
// PIM_DP_SCANNED_IMAGES Attribute leaf rather than being that leaf itself.
func scannedImagesContainer(c *dicomxml.Node) bool {
	if c.Type != dicomxml.NodeArray {
		return false
	}
	for _, gc := range c.Children {
		if gc.Type == dicomxml.NodeBranch && gc.ObjectType == "DPScannedImage" {
			return true
		}
	}
	return false
}

func applyRootLeaf(n *dicomxml.Node, ph *parsedHeader) {
	switch n.Tag() {
	case dicomxml.PIMDPUFSInterfaceVersion:
		ph.dataModelMajor = parseMajorVersion(n.Text)
	}
}

func parseMajorVersion(s string) int {
	s = strings.TrimSpace(s)
	dot := strings.IndexByte(s, '.')
	if dot >= 0 {
		s = s[:dot]
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return v
}

func collectScannedImages(arr *dicomxml.Node, ph *parsedHeader) {
	for _, c := range arr.Children {
		if c.Type == dicomxml.NodeLeaf {
			applyRootLeaf(c, ph)
			continue
		}
		if c.Type != dicomxml.NodeBranch {
			continue
		}
		if c.ObjectType == "DPScannedImage" {
			pi := &parsedImage{compressorVersion: 2}
			walkImage(c, pi, ph)
			ph.images = append(ph.images, pi)
		} else {
			collectScannedImages(c, ph)
		}
	}
}

func walkImage(n *dicomxml.Node, pi *parsedImage, ph *parsedHeader) {
	for _, c := range n.Children {
		switch c.Type {
		case dicomxml.NodeLeaf:
			applyImageLeaf(c, pi, ph)
		case dicomxml.NodeBranch:
			switch {
			case c.ObjectType == "UfsImageGeneralHeader":
				applyDimensionRanges(c, func(idx int, r dimensionRange) {
					switch idx {
					case 0:
						pi.offsetX = int32(r.start)
						pi.widthIncludingPadding = r.numsteps
					case 1:
						pi.offsetY = int32(r.start)
						pi.heightIncludingPadding = r.numsteps
					case 3:
						pi.levelCount = r.numsteps
					}
				})
			case c.ObjectType == "UfsImageBlockHeaderTemplate":
				if pi.blockWidth == 0 {
					applyDimensionRanges(c, func(idx int, r dimensionRange) {
						switch idx {
						case 0:
							pi.blockWidth = r.numsteps
						case 1:
							pi.blockHeight = r.numsteps
						}
					})
				}
			default:
				walkImage(c, pi, ph)
			}
		case dicomxml.NodeArray:
			walkImage(c, pi, ph)
		}
	}
}

func applyImageLeaf(n *dicomxml.Node, pi *parsedImage, ph *parsedHeader) {
	switch n.Tag() {
	case dicomxml.PIMDPImageType:
		pi.imageType = imageTypeFromText(n.Text)
	case dicomxml.PIMDPImageData:
		pi.jpegOffset = n.ContentOffset
		pi.jpegLength = int64(n.ContentLength)
	case dicomxml.DICOMICCProfile:
		pi.iccOffset = n.ContentOffset
		pi.iccLength = int64(n.ContentLength)
	case dicomxml.UFSImageNumberOfBlocks:
		pi.numberOfBlocks, _ = strconv.Atoi(strings.TrimSpace(n.Text))
	case dicomxml.UFSImageBlockCompressionMethod:
		method, _ := strconv.Atoi(strings.TrimSpace(n.Text))
		switch method {
		case 16:
			pi.compressorVersion = 1
		case 19:
			pi.compressorVersion = 2
		}
	case dicomxml.UFSImageBlockHeaderTable:
		pi.headerTable = n
	case dicomxml.UFSImageClusterHeaderTable:
		pi.clusterTable = n
	case dicomxml.UFSImageDimensionScaleFactor:
		mpp, err := strconv.ParseFloat(strings.TrimSpace(n.Text), 64)
		if err == nil && mpp > 0 {
			if !ph.mppKnown {
				ph.mppX = mpp
			} else if ph.mppY == 0 {
				ph.mppY = mpp
			}
			ph.mppKnown = true
		}
	}
}

func imageTypeFromText(s string) codeblock.ImageType {
	switch strings.TrimSpace(s) {
	case "WSI":
		return codeblock.ImageTypeWSI
	case "LABELIMAGE":
		return codeblock.ImageTypeLabel
	case "MACROIMAGE":
		return codeblock.ImageTypeMacro
	default:
		return codeblock.ImageTypeNone
	}
}

type dimensionRange struct {
	start, step, end, numsteps int
}

// applyDimensionRanges finds every UFS_IMAGE_DIMENSION_RANGE leaf nested
// anywhere under owner (in document order) and calls fn with its 0-based
// position, matching the dimension_index counter original_source advances
// per range encountered inside a UFS_IMAGE_DIMENSIONS/_GENERAL_HEADER
// context.
func applyDimensionRanges(owner *dicomxml.Node, fn func(idx int, r dimensionRange)) {
	idx := 0
	var walk func(n *dicomxml.Node)
	walk = func(n *dicomxml.Node) {
		for _, c := range n.Children {
			if c.Type == dicomxml.NodeLeaf && c.Tag() == dicomxml.UFSImageDimensionRange {
				fn(idx, parseDimensionRange(c.Text))
				idx++
				continue
			}
			walk(c)
		}
	}
	walk(owner)
}

func parseDimensionRange(s string) dimensionRange {
	parts := strings.Split(strings.TrimSpace(s), " ")
	var r dimensionRange
	vals := make([]int, 0, 3)
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		vals = append(vals, v)
		if len(vals) == 3 {
			break
		}
	}
	if len(vals) == 3 {
		r.start, r.step, r.end = vals[0], vals[1], vals[2]
	}
	step := r.step
	if step == 0 {
		step = 1
	}
	r.numsteps = ((r.end + r.step) - r.start) / step
	return r
}

// decodeBase64Span reads length bytes at offset from h and base64-decodes
// it, trimming the trailing-slash and whitespace quirks original_source
// works around before handing the buffer to its base64 decoder.
func decodeBase64Span(h *fileio.Handle, offset int64, length int) ([]byte, error) {
	if length <= 0 {
		return nil, nil
	}
	raw, err := h.ReadRange(offset, length)
	if err != nil {
		return nil, fmt.Errorf("isyntax: reading base64 span at %d: %w", offset, err)
	}
	s := strings.TrimRight(string(raw), "/ \r\n\t")
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("isyntax: base64 decode failed: %w", err)
		}
	}
	return decoded, nil
}
