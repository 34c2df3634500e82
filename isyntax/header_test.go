package isyntax

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wsiviewer/isyntax-go/internal/codeblock"
	"github.com/wsiviewer/isyntax-go/internal/fileio"
)

func TestParseDimensionRange(t *testing.T) {
	tests := []struct {
		in   string
		want dimensionRange
	}{
		{"0 1 9", dimensionRange{start: 0, step: 1, end: 9, numsteps: 10}},
		{"  4   2   10  ", dimensionRange{start: 4, step: 2, end: 10, numsteps: 4}},
	}
	for _, tt := range tests {
		got := parseDimensionRange(tt.in)
		if got != tt.want {
			t.Errorf("parseDimensionRange(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestImageTypeFromText(t *testing.T) {
	tests := []struct {
		in   string
		want codeblock.ImageType
	}{
		{"WSI", codeblock.ImageTypeWSI},
		{"LABELIMAGE", codeblock.ImageTypeLabel},
		{"MACROIMAGE", codeblock.ImageTypeMacro},
		{"  WSI  ", codeblock.ImageTypeWSI},
		{"UNKNOWN", codeblock.ImageTypeNone},
	}
	for _, tt := range tests {
		if got := imageTypeFromText(tt.in); got != tt.want {
			t.Errorf("imageTypeFromText(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseMajorVersion(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"1.0", 1},
		{"101.2", 101},
		{"5", 5},
		{"garbage", 1},
	}
	for _, tt := range tests {
		if got := parseMajorVersion(tt.in); got != tt.want {
			t.Errorf("parseMajorVersion(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func writeTempFile(t *testing.T, data []byte) *fileio.Handle {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.isyntax")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	h, err := fileio.Open(path)
	if err != nil {
		t.Fatalf("fileio.Open: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestReadHeaderFindsTerminator(t *testing.T) {
	payload := []byte("<DataObject></DataObject>")
	data := append(append([]byte{}, payload...), headerTerminator, 'X', 'Y')
	h := writeTempFile(t, data)

	got, offset, err := readHeader(h)
	if err != nil {
		t.Fatalf("readHeader: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("readHeader body = %q, want %q", got, payload)
	}
	if offset != int64(len(payload))+1 {
		t.Errorf("payload offset = %d, want %d", offset, len(payload)+1)
	}
}

func TestReadHeaderMissingTerminatorErrors(t *testing.T) {
	h := writeTempFile(t, []byte("no terminator here"))
	if _, _, err := readHeader(h); err == nil {
		t.Fatal("expected an error when no terminator byte is present")
	}
}

func TestDecodeBase64Span(t *testing.T) {
	// "hello world" base64-encoded, with a trailing slash and whitespace
	// the way the block header table blobs are sometimes padded.
	data := []byte("aGVsbG8gd29ybGQ=/ \r\n")
	h := writeTempFile(t, data)

	got, err := decodeBase64Span(h, 0, len(data))
	if err != nil {
		t.Fatalf("decodeBase64Span: %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("decodeBase64Span = %q, want %q", got, "hello world")
	}
}

func TestDecodeBase64SpanZeroLength(t *testing.T) {
	h := writeTempFile(t, []byte("irrelevant"))
	got, err := decodeBase64Span(h, 0, 0)
	if err != nil || got != nil {
		t.Fatalf("decodeBase64Span(len=0) = %v, %v, want nil, nil", got, err)
	}
}
