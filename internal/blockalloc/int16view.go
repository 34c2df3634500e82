package blockalloc

import "unsafe"

// Int16View reinterprets a block returned by Alloc as a slice of int16
// coefficients, without copying. block's length must be even; the
// returned slice aliases block's backing array, so writes through either
// view are visible through the other, and the int16 slice must not be
// used after block is freed.
func Int16View(block []byte) []int16 {
	if len(block)%2 != 0 {
		panic("blockalloc: odd-length block cannot be viewed as int16")
	}
	if len(block) == 0 {
		return nil
	}
	return unsafe.Slice((*int16)(unsafe.Pointer(&block[0])), len(block)/2)
}

// BytesView is the inverse of Int16View: it recovers the []byte block
// backing an int16 coefficient slice, so the block can be returned to its
// Allocator via Free. s must have been produced by Int16View (or share its
// backing array), not a slice built by append/make.
func BytesView(s []int16) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*2)
}
