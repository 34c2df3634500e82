// Package hulsken implements the Hulsken entropy decompressor: the
// codeblock-level codec iSyntax uses for its wavelet coefficients. Each
// codeblock is a canonical Huffman-coded, zero-run-length-encoded stream
// of signed-magnitude bitplanes, snake-shuffled in 4x4 areas. Two on-disk
// layouts exist (compressor version 1 and 2); both are supported.
package hulsken

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/wsiviewer/isyntax-go/internal/bitio"
)

const (
	huffmanFastBits = 11
	fastTableSize   = 1 << huffmanFastBits
	coeffBitDepth   = 16
)

var sizeBitmasks = [17]uint16{
	0, 1, 3, 7, 15, 31, 63, 127, 255, 511, 1023, 2047, 4095, 8191, 16383, 32767, 65535,
}

type huffmanTable struct {
	fast           [fastTableSize]uint16
	code           [256]uint16
	size           [256]uint8
	nonfastSymbols [256]uint16
	nonfastCode    [256]uint16
	nonfastSize    [256]uint8
	nonfastMasks   [256]uint16
}

// Decompress decodes one Hulsken-coded codeblock into a slice of int16
// coefficients, laid out as coeffCount planes of blockWidth*blockHeight
// each (coeffCount is 3, for HL/LH/HH, when coefficient == 1 (an H
// codeblock), or 1, for a single LL plane, when coefficient == 0).
// compressorVersion must be 1 or 2.
func Decompress(compressed []byte, blockWidth, blockHeight, coefficient, compressorVersion int) ([]int16, error) {
	if compressorVersion != 1 && compressorVersion != 2 {
		return nil, fmt.Errorf("hulsken: unsupported compressor version %d", compressorVersion)
	}

	coeffCount := 1
	if coefficient == 1 {
		coeffCount = 3
	}
	planeSize := blockWidth * blockHeight
	coeffBufferLen := coeffCount * planeSize // in int16 units
	out := make([]int16, coeffBufferLen)

	if len(compressed) <= 8 {
		return out, nil
	}

	bitsRead := 0
	blockSizeInBits := len(compressed) * 8
	var serializedLength int64
	bitmasks := [3]uint32{0xFFFF, 0xFFFF, 0xFFFF}
	totalMaskBits := coeffBitDepth * coeffCount

	if compressorVersion == 1 {
		if len(compressed) < 4 {
			return nil, fmt.Errorf("hulsken: codeblock too short for v1 header")
		}
		serializedLength = int64(le32(compressed, 0))
		bitsRead += 32
	} else {
		pos := 0
		switch coeffCount {
		case 1:
			bitmasks[0] = uint32(le16(compressed, pos))
			pos += 2
			totalMaskBits = bits.OnesCount16(uint16(bitmasks[0]))
		case 3:
			bitmasks[0] = uint32(le16(compressed, pos))
			bitmasks[1] = uint32(le16(compressed, pos+2))
			bitmasks[2] = uint32(le16(compressed, pos+4))
			pos += 6
			totalMaskBits = bits.OnesCount16(uint16(bitmasks[0])) + bits.OnesCount16(uint16(bitmasks[1])) + bits.OnesCount16(uint16(bitmasks[2]))
		}
		bitsRead += pos * 8
		serializedLength = int64(totalMaskBits) * int64(planeSize/8)
	}

	coeffBufferSizeBytes := int64(coeffBufferLen) * 2
	if serializedLength > 2*coeffBufferSizeBytes {
		return out, fmt.Errorf("hulsken: invalid codeblock, serialized_length %d too large", serializedLength)
	}

	if bitsRead/8 >= len(compressed) {
		return nil, fmt.Errorf("hulsken: codeblock truncated before zero-run header")
	}
	zerorunSymbol := compressed[bitsRead/8]
	bitsRead += 8
	zeroCounterSize := uint32(compressed[bitsRead/8])
	bitsRead += 8

	if compressorVersion >= 2 {
		var bitmasksAggregate uint32
		for i := 0; i < coeffCount; i++ {
			bitmasksAggregate |= bitmasks[i]
		}
		bitplanePtrCount := bits.OnesCount32(bitmasksAggregate)
		bitplanePtrBits := int(math.Log2(float64(serializedLength))) + 5
		for i := 0; i < bitplanePtrCount-1; i++ {
			bitsRead += bitplanePtrBits
		}
	}

	huffman := &huffmanTable{}
	for i := range huffman.fast {
		// Matches a memset(huffman.fast, 0x80, sizeof(huffman.fast)) over the
		// raw bytes of a u16 array: every entry becomes 0x8080, a sentinel
		// that is always > 255 (not yet a valid fast-path symbol) and whose
		// low byte (0x80) is the initial "lowest nonfast symbol index" hint.
		huffman.fast[i] = 0x8080
	}
	for i := range huffman.nonfastMasks {
		huffman.nonfastMasks[i] = 0xFFFF
	}
	fastMask := uint64(fastTableSize - 1)

	if err := buildHuffmanTable(huffman, compressed, &bitsRead, blockSizeInBits, fastMask); err != nil {
		return out, err
	}

	decompressed := make([]byte, serializedLength)
	decodedLen, err := decodeMessage(huffman, compressed, &bitsRead, blockSizeInBits, decompressed, zerorunSymbol, zeroCounterSize, compressorVersion, fastMask)
	if err != nil {
		return out, err
	}

	if compressorVersion == 1 {
		coeffCount, totalMaskBits = recoverV1Bitmasks(decompressed, decodedLen, blockWidth, blockHeight, coeffCount, &bitmasks)
	}

	coeffBuffer := make([]uint16, coeffBufferLen)
	unpackBitplanes(coeffBuffer, decompressed, blockWidth, blockHeight, coeffCount, totalMaskBits, bitmasks, compressorVersion)

	deshuffleAndConvert(out, coeffBuffer, blockWidth, blockHeight, coeffCount, bitmasks)

	return out, nil
}

func le16(b []byte, pos int) uint16 { return uint16(b[pos]) | uint16(b[pos+1])<<8 }
func le32(b []byte, pos int) uint32 {
	return uint32(b[pos]) | uint32(b[pos+1])<<8 | uint32(b[pos+2])<<16 | uint32(b[pos+3])<<24
}

func saveFastLookup(h *huffmanTable, code uint32, codeWidth int, symbol byte) {
	duplicateBits := huffmanFastBits - codeWidth
	for i := uint32(0); i < uint32(1)<<uint(duplicateBits); i++ {
		address := (i << uint(codeWidth)) | code
		h.fast[address] = uint16(symbol)
	}
}

func buildHuffmanTable(h *huffmanTable, compressed []byte, bitsRead *int, blockSizeInBits int, fastMask uint64) error {
	codeSize := 0
	var code uint32
	nonfastIndex := 0
	for {
		if *bitsRead >= blockSizeInBits {
			return fmt.Errorf("hulsken: Huffman table extends out of bounds")
		}
		bitsToAdvance := 1
		blob := bitio.PeekBits64(compressed, *bitsRead)

		isLeaf := blob&1 != 0
		for !isLeaf {
			bitsToAdvance++
			blob >>= 1
			isLeaf = blob&1 != 0
			codeSize++
		}
		blob >>= 1

		symbol := byte(blob)
		h.code[symbol] = uint16(code)
		h.size[symbol] = uint8(codeSize)

		if codeSize <= huffmanFastBits {
			saveFastLookup(h, code, codeSize, symbol)
		} else {
			prefix := uint32(code) & uint32(fastMask)
			oldFastData := h.fast[prefix]
			oldLowest := int(oldFastData & 0xFF)
			newLowest := oldLowest
			if nonfastIndex < oldLowest {
				newLowest = nonfastIndex
			}
			h.fast[prefix] = uint16(256 + newLowest)
			h.nonfastSymbols[nonfastIndex] = uint16(symbol)
			h.nonfastCode[nonfastIndex] = uint16(code)
			h.nonfastSize[nonfastIndex] = uint8(codeSize)
			h.nonfastMasks[nonfastIndex] = sizeBitmasks[codeSize]
			nonfastIndex++
		}

		bitsToAdvance += 8
		*bitsRead += bitsToAdvance

		if codeSize == 0 {
			break
		}
		codeHighBit := uint32(1) << uint(codeSize-1)
		foundZero := (^code)&codeHighBit != 0
		for !foundZero {
			codeSize--
			if codeSize == 0 {
				break
			}
			code &= codeHighBit - 1
			codeHighBit >>= 1
			foundZero = (^code)&codeHighBit != 0
		}
		code |= codeHighBit

		if codeSize <= 0 {
			break
		}
	}
	return nil
}

func decodeMessage(h *huffmanTable, compressed []byte, bitsRead *int, blockSizeInBits int, decompressed []byte, zerorunSymbol byte, zeroCounterSize uint32, compressorVersion int, fastMask uint64) (int, error) {
	zerorunCode := uint32(h.code[zerorunSymbol])
	zerorunCodeSize := uint32(h.size[zerorunSymbol])
	if zerorunCodeSize == 0 {
		zerorunCodeSize = 1
	}
	zerorunCodeMask := (uint32(1) << zerorunCodeSize) - 1
	zeroCounterMask := (uint32(1) << zeroCounterSize) - 1

	serializedLength := len(decompressed)
	decodedLen := 0

	for *bitsRead < blockSizeInBits {
		if decodedLen >= serializedLength {
			break
		}
		blob := bitio.PeekBits64(compressed, *bitsRead)
		fastIndex := blob & fastMask
		c := h.fast[fastIndex]

		var symbol byte
		var codeSize int
		if c <= 255 {
			symbol = byte(c)
			codeSize = int(h.size[symbol])
		} else {
			lowest := int(c & 0xFF)
			match := false
			for i := lowest; i < 256; i++ {
				testSize := h.nonfastSize[i]
				testCode := h.nonfastCode[i]
				if uint16(blob)&h.nonfastMasks[i] == testCode {
					codeSize = int(testSize)
					symbol = byte(h.nonfastSymbols[i])
					match = true
					break
				}
			}
			if !match {
				return decodedLen, fmt.Errorf("hulsken: error decoding Huffman message (unknown symbol)")
			}
		}
		if codeSize == 0 {
			codeSize = 1
		}
		blob >>= uint(codeSize)
		*bitsRead += codeSize

		if symbol == zerorunSymbol {
			numZeroes := uint32(blob) & zeroCounterMask
			*bitsRead += int(zeroCounterSize)
			if numZeroes > 0 {
				actualNumZeroes := numZeroes
				if compressorVersion == 2 {
					actualNumZeroes = numZeroes + 1
				}
				if decodedLen+int(actualNumZeroes) >= serializedLength || *bitsRead >= blockSizeInBits {
					n := serializedLength - decodedLen
					if n > int(actualNumZeroes) {
						n = int(actualNumZeroes)
					}
					decodedLen += int(actualNumZeroes)
					break
				}
				for {
					blob = bitio.PeekBits64(compressed, *bitsRead)
					nextCode := uint32(blob) & zerorunCodeMask
					if nextCode == zerorunCode {
						blob >>= zerorunCodeSize
						counterExtra := uint32(blob) & zeroCounterMask
						numZeroes = (numZeroes << zeroCounterSize) | counterExtra
						*bitsRead += int(zerorunCodeSize) + int(zeroCounterSize)
						actualNumZeroes = numZeroes
						if compressorVersion == 2 {
							actualNumZeroes = numZeroes + 1
						}
						if decodedLen+int(actualNumZeroes) >= serializedLength || *bitsRead >= blockSizeInBits {
							break
						}
					} else {
						actualNumZeroes = numZeroes
						if compressorVersion == 2 {
							actualNumZeroes = numZeroes + 1
						}
						break
					}
				}
				n := serializedLength - decodedLen
				if n > int(actualNumZeroes) {
					n = int(actualNumZeroes)
				}
				decodedLen += int(actualNumZeroes)
			} else {
				decompressed[decodedLen] = symbol
				decodedLen++
			}
		} else {
			decompressed[decodedLen] = symbol
			decodedLen++
		}
	}
	return decodedLen, nil
}

func recoverV1Bitmasks(decompressed []byte, decodedLen, blockWidth, blockHeight, coeffCount int, bitmasks *[3]uint32) (int, int) {
	planeSize := blockWidth * blockHeight
	bytesPerBitplane := planeSize / 8
	extraBits := (decodedLen * 8) % planeSize
	if extraBits > 0 {
		if coeffCount != 1 && extraBits == 16 {
			coeffCount = 1
		} else if coeffCount != 3 && extraBits == 3*16 {
			coeffCount = 3
		}
	}
	totalMaskBits := coeffBitDepth * coeffCount
	expectedLength := totalMaskBits * bytesPerBitplane
	if decodedLen < expectedLength {
		switch coeffCount {
		case 1:
			bitmasks[0] = uint32(le16(decompressed, decodedLen-2))
			totalMaskBits = bits.OnesCount16(uint16(bitmasks[0]))
		case 3:
			pos := decodedLen - 6
			bitmasks[0] = uint32(le16(decompressed, pos))
			bitmasks[1] = uint32(le16(decompressed, pos+2))
			bitmasks[2] = uint32(le16(decompressed, pos+4))
			totalMaskBits = bits.OnesCount16(uint16(bitmasks[0])) + bits.OnesCount16(uint16(bitmasks[1])) + bits.OnesCount16(uint16(bitmasks[2]))
		}
	}
	return coeffCount, totalMaskBits
}

func unpackBitplanes(coeffBuffer []uint16, decompressed []byte, blockWidth, blockHeight, coeffCount, totalMaskBits int, bitmasks [3]uint32, compressorVersion int) {
	planeSize := blockWidth * blockHeight
	bytesPerBitplane := planeSize / 8
	if bytesPerBitplane == 0 {
		return
	}

	runningBitIndex := 0
	runningCoeffIndex := 0
	bitmasksCopy := bitmasks

	for bitplaneIndex := 0; bitplaneIndex < totalMaskBits; bitplaneIndex++ {
		start := bitplaneIndex * bytesPerBitplane
		if start+bytesPerBitplane > len(decompressed) {
			return
		}
		bitplane := decompressed[start : start+bytesPerBitplane]

		if compressorVersion == 1 {
			for {
				if runningCoeffIndex >= coeffCount {
					return
				}
				mask := bitmasksCopy[runningCoeffIndex]
				if mask != 0 {
					runningBitIndex = bits.TrailingZeros32(mask)
					bitmasksCopy[runningCoeffIndex] &^= 1 << uint(runningBitIndex)
					break
				}
				runningCoeffIndex++
			}
		} else {
			for {
				if runningBitIndex >= 16 {
					return
				}
				if runningCoeffIndex < coeffCount {
					mask := bitmasksCopy[runningCoeffIndex]
					if mask&(1<<uint(runningBitIndex)) != 0 {
						bitmasksCopy[runningCoeffIndex] &^= 1 << uint(runningBitIndex)
						break
					}
					runningCoeffIndex++
				} else {
					runningCoeffIndex = 0
					runningBitIndex++
				}
			}
		}

		currentCoeff := coeffBuffer[runningCoeffIndex*planeSize : (runningCoeffIndex+1)*planeSize]

		var shiftAmount uint
		if compressorVersion == 1 {
			if runningBitIndex == 0 {
				shiftAmount = 15
			} else {
				shiftAmount = uint(runningBitIndex - 1)
			}
		} else {
			shiftAmount = uint(15 - runningBitIndex)
		}

		for i := 0; i < planeSize; i += 8 {
			j := i / 8
			b := bitplane[j]
			if b == 0 {
				continue
			}
			for k := 0; k < 8; k++ {
				currentCoeff[i+k] |= uint16((b>>uint(k))&1) << shiftAmount
			}
		}

		if compressorVersion == 2 {
			runningCoeffIndex++
		}
	}
}

func deshuffleAndConvert(out []int16, coeffBuffer []uint16, blockWidth, blockHeight, coeffCount int, bitmasks [3]uint32) {
	planeSize := blockWidth * blockHeight
	for coeffIndex := 0; coeffIndex < coeffCount; coeffIndex++ {
		bitmask := bitmasks[coeffIndex]
		currentCoeff := coeffBuffer[coeffIndex*planeSize : (coeffIndex+1)*planeSize]
		currentOut := out[coeffIndex*planeSize : (coeffIndex+1)*planeSize]
		if bitmask == 0 {
			continue
		}

		areaStrideX := blockWidth / 4
		numAreas := planeSize / 16
		for area := 0; area < numAreas; area++ {
			base := area * 16
			areaX := (area % areaStrideX) * 4
			areaY := (area / areaStrideX) * 4
			for row := 0; row < 4; row++ {
				srcRow := currentCoeff[base+row*4 : base+row*4+4]
				dstOffset := (areaY+row)*blockWidth + areaX
				dstRow := currentOut[dstOffset : dstOffset+4]
				for k := 0; k < 4; k++ {
					dstRow[k] = int16(srcRow[k])
				}
			}
		}

		bitio.SignedMagnitudeToTwosComplement16(currentOut)
	}
}
