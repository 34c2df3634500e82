// Package blockalloc implements a fixed-size block pool, the allocator the
// tile reconstructor uses for wavelet-coefficient scratch buffers
// (coeff_ll/coeff_h) so that repeated tile loads do not churn the garbage
// collector. It is a direct translation of the chunked free-list allocator
// slidescape uses for the same purpose.
package blockalloc

import (
	"sync"
	"unsafe"
)

// Allocator hands out fixed-size []byte blocks from chunks allocated in
// bulk. Freed blocks are pushed onto a free list and reused
// before any new chunk is carved. An Allocator is safe for concurrent use.
type Allocator struct {
	mu sync.Mutex

	blockSize      int
	blocksPerChunk int
	maxBlocks      int

	chunks    [][]byte
	curChunk  int // index into chunks currently being carved, -1 if none
	curOffset int // next free byte offset within chunks[curChunk]

	free            [][]byte
	allocatedBlocks int
}

// New creates an allocator for blocks of blockSize bytes. maxBlocks bounds
// the total number of blocks the allocator will ever hand out live at once;
// chunkSizeBlocks controls how many blocks are carved out of a single
// underlying allocation (larger values mean fewer, bigger mallocs).
func New(blockSize, maxBlocks, chunkSizeBlocks int) *Allocator {
	if blockSize <= 0 || maxBlocks <= 0 || chunkSizeBlocks <= 0 {
		panic("blockalloc: block size, max blocks and chunk size must be positive")
	}
	return &Allocator{
		blockSize:      blockSize,
		blocksPerChunk: chunkSizeBlocks,
		maxBlocks:      maxBlocks,
		curChunk:       -1,
	}
}

// Alloc returns a zeroed block of BlockSize() bytes. It panics if the
// allocator's capacity (maxBlocks) has been exhausted; that condition means
// a caller is leaking blocks or the allocator was sized too small, neither
// of which is recoverable at this layer.
func (a *Allocator) Alloc() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n := len(a.free); n > 0 {
		blk := a.free[n-1]
		a.free = a.free[:n-1]
		clearBlock(blk)
		a.allocatedBlocks++
		return blk
	}

	if a.allocatedBlocks >= a.maxBlocks {
		panic("blockalloc: capacity exhausted")
	}
	if a.curChunk < 0 || a.curOffset >= len(a.chunks[a.curChunk]) {
		a.chunks = append(a.chunks, make([]byte, a.blocksPerChunk*a.blockSize))
		a.curChunk = len(a.chunks) - 1
		a.curOffset = 0
	}

	start := a.curOffset
	end := start + a.blockSize
	blk := a.chunks[a.curChunk][start:end:end]
	a.curOffset = end
	a.allocatedBlocks++
	return blk
}

// Free returns block to the pool. block must have been obtained from this
// same Allocator via Alloc and not already freed; both conditions are
// checked and any violation panics, matching the fatal "out-of-range
// pointer" handling of the allocator this package is ported from.
func (a *Allocator) Free(block []byte) {
	if cap(block) != a.blockSize {
		panic("blockalloc: freed block does not belong to this allocator")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	p := uintptr(unsafe.Pointer(unsafe.SliceData(block)))
	owned := false
	for _, c := range a.chunks {
		base := uintptr(unsafe.Pointer(unsafe.SliceData(c)))
		if p >= base && p < base+uintptr(len(c)) {
			owned = true
			break
		}
	}
	if !owned {
		panic("blockalloc: freed block does not belong to this allocator")
	}
	for _, f := range a.free {
		if unsafe.SliceData(f) == unsafe.SliceData(block) {
			panic("blockalloc: block freed twice")
		}
	}
	a.free = append(a.free, block)
	a.allocatedBlocks--
}

// BlockSize returns the fixed size, in bytes, of blocks this allocator hands out.
func (a *Allocator) BlockSize() int { return a.blockSize }

func clearBlock(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
