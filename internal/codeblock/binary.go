package codeblock

import (
	"encoding/binary"
	"fmt"
)

// DicomTagHeader precedes every field inside a block/cluster header table
// entry: a 4-byte (group, element) tag followed by the u32 byte length of
// the value that follows it.
type DicomTagHeader struct {
	Group   uint16
	Element uint16
	Size    uint32
}

const dicomTagHeaderSize = 8

func readTagHeader(buf []byte, pos int) (DicomTagHeader, int, error) {
	if pos+dicomTagHeaderSize > len(buf) {
		return DicomTagHeader{}, pos, fmt.Errorf("codeblock: truncated tag header at offset %d", pos)
	}
	h := DicomTagHeader{
		Group:   binary.LittleEndian.Uint16(buf[pos:]),
		Element: binary.LittleEndian.Uint16(buf[pos+2:]),
		Size:    binary.LittleEndian.Uint32(buf[pos+4:]),
	}
	return h, pos + dicomTagHeaderSize, nil
}

// ParsePartialBlockHeader decodes a block-header-table entry that carries
// coordinates and a template id but not an explicit file offset/size
// (data model < 100, header_codeblocks_are_partial == true; the codeblock's
// byte range is instead recovered from the image's seektable, by block id).
// It returns the decoded codeblock and the new cursor position.
func ParsePartialBlockHeader(buf []byte, pos int) (Codeblock, int, error) {
	var cb Codeblock
	var err error
	if _, pos, err = readTagHeader(buf, pos); err != nil {
		return cb, pos, err
	}
	if _, pos, err = readTagHeader(buf, pos); err != nil {
		return cb, pos, err
	}
	if pos+20 > len(buf) {
		return cb, pos, fmt.Errorf("codeblock: truncated partial block header at offset %d", pos)
	}
	cb.X = int32(binary.LittleEndian.Uint32(buf[pos:]))
	cb.Y = int32(binary.LittleEndian.Uint32(buf[pos+4:]))
	cb.Color = uint8(binary.LittleEndian.Uint32(buf[pos+8:]))
	cb.Scale = uint8(binary.LittleEndian.Uint32(buf[pos+12:]))
	cb.Coefficient = uint8(binary.LittleEndian.Uint32(buf[pos+16:]))
	pos += 20
	if _, pos, err = readTagHeader(buf, pos); err != nil {
		return cb, pos, err
	}
	if pos+4 > len(buf) {
		return cb, pos, fmt.Errorf("codeblock: truncated template id at offset %d", pos)
	}
	cb.TemplateID = binary.LittleEndian.Uint32(buf[pos:])
	pos += 4
	return cb, pos, nil
}

// ParseFullBlockHeader decodes a block-header-table entry that additionally
// carries the codeblock's explicit file offset and compressed size (data
// model >= 100, header_codeblocks_are_partial == false).
func ParseFullBlockHeader(buf []byte, pos int) (Codeblock, int, error) {
	cb, pos, err := ParsePartialBlockHeaderCoordsOnly(buf, pos)
	if err != nil {
		return cb, pos, err
	}
	if _, pos, err = readTagHeader(buf, pos); err != nil {
		return cb, pos, err
	}
	if pos+8 > len(buf) {
		return cb, pos, fmt.Errorf("codeblock: truncated block data offset at offset %d", pos)
	}
	cb.BlockDataOffset = int64(binary.LittleEndian.Uint64(buf[pos:]))
	pos += 8
	if _, pos, err = readTagHeader(buf, pos); err != nil {
		return cb, pos, err
	}
	if pos+8 > len(buf) {
		return cb, pos, fmt.Errorf("codeblock: truncated block size at offset %d", pos)
	}
	cb.BlockSize = binary.LittleEndian.Uint64(buf[pos:])
	pos += 8
	if _, pos, err = readTagHeader(buf, pos); err != nil {
		return cb, pos, err
	}
	if pos+4 > len(buf) {
		return cb, pos, fmt.Errorf("codeblock: truncated template id at offset %d", pos)
	}
	cb.TemplateID = binary.LittleEndian.Uint32(buf[pos:])
	pos += 4
	return cb, pos, nil
}

// ParsePartialBlockHeaderCoordsOnly decodes just the (group,element)+coords
// prefix shared by both partial and full block headers, without consuming
// the template-id trailer. Used by ParseFullBlockHeader to avoid
// duplicating the coordinate-decoding logic.
func ParsePartialBlockHeaderCoordsOnly(buf []byte, pos int) (Codeblock, int, error) {
	var cb Codeblock
	var err error
	if _, pos, err = readTagHeader(buf, pos); err != nil {
		return cb, pos, err
	}
	if _, pos, err = readTagHeader(buf, pos); err != nil {
		return cb, pos, err
	}
	if pos+20 > len(buf) {
		return cb, pos, fmt.Errorf("codeblock: truncated block header coords at offset %d", pos)
	}
	cb.X = int32(binary.LittleEndian.Uint32(buf[pos:]))
	cb.Y = int32(binary.LittleEndian.Uint32(buf[pos+4:]))
	cb.Color = uint8(binary.LittleEndian.Uint32(buf[pos+8:]))
	cb.Scale = uint8(binary.LittleEndian.Uint32(buf[pos+12:]))
	cb.Coefficient = uint8(binary.LittleEndian.Uint32(buf[pos+16:]))
	pos += 20
	return cb, pos, nil
}

// SeektableEntry is one entry of the v1 seektable (one table per image,
// indexed by block id): the file
// offset and compressed size of a single codeblock's Hulsken bitstream.
type SeektableEntry struct {
	BlockDataOffset int64
	BlockSize       uint64
}

// ParseSeektableEntry decodes one isyntax_seektable_codeblock_header_t.
func ParseSeektableEntry(buf []byte, pos int) (SeektableEntry, int, error) {
	var e SeektableEntry
	var err error
	if _, pos, err = readTagHeader(buf, pos); err != nil {
		return e, pos, err
	}
	if _, pos, err = readTagHeader(buf, pos); err != nil {
		return e, pos, err
	}
	if pos+8 > len(buf) {
		return e, pos, fmt.Errorf("codeblock: truncated seektable offset at %d", pos)
	}
	e.BlockDataOffset = int64(binary.LittleEndian.Uint64(buf[pos:]))
	pos += 8
	if _, pos, err = readTagHeader(buf, pos); err != nil {
		return e, pos, err
	}
	if pos+8 > len(buf) {
		return e, pos, fmt.Errorf("codeblock: truncated seektable size at %d", pos)
	}
	e.BlockSize = binary.LittleEndian.Uint64(buf[pos:])
	pos += 8
	return e, pos, nil
}

// SeektableEntrySize is the fixed on-disk size of one
// isyntax_seektable_codeblock_header_t: two 8-byte DICOM tag headers
// (block_data_offset, block_size) followed by their 8-byte values each.
const SeektableEntrySize = 32

// GuessedSeektableSize is the fallback byte length used for a v1 seektable
// whose encoded size field reads -1 (unknown): one fixed-size entry per
// codeblock.
func GuessedSeektableSize(codeblockCount int) int64 {
	return int64(codeblockCount) * SeektableEntrySize
}
