// Package fileio provides the positional-read file handle the header
// parser, codeblock loader and prefetcher all read through. It wraps
// golang.org/x/exp/mmap so concurrent ReadAt calls from multiple decoder
// goroutines never race over a shared seek cursor.
package fileio

import (
	"fmt"

	"golang.org/x/exp/mmap"
)

// Handle is a read-only, concurrency-safe positional file handle.
type Handle struct {
	reader *mmap.ReaderAt
	size   int64
}

// Open memory-maps path for reading.
func Open(path string) (*Handle, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fileio: open %q: %w", path, err)
	}
	return &Handle{reader: r, size: int64(r.Len())}, nil
}

// Size returns the file size in bytes.
func (h *Handle) Size() int64 { return h.size }

// ReadAt reads len(buf) bytes starting at the given offset. Safe to call
// concurrently from any number of goroutines.
func (h *Handle) ReadAt(buf []byte, offset int64) (int, error) {
	n, err := h.reader.ReadAt(buf, offset)
	if err != nil {
		return n, fmt.Errorf("fileio: read at offset %d: %w", offset, err)
	}
	return n, nil
}

// ReadRange allocates and returns the n bytes starting at offset.
func (h *Handle) ReadRange(offset int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := h.ReadAt(buf, offset); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close unmaps the underlying file.
func (h *Handle) Close() error {
	return h.reader.Close()
}
