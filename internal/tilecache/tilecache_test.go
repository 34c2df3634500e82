package tilecache

import "testing"

func TestAddGetRoundTrip(t *testing.T) {
	c, err := New(2, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	key := Key{Scale: 0, X: 1, Y: 2}
	c.Add(key, Entry{RGBA: []byte{1, 2, 3, 4}})
	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got.RGBA) != 4 {
		t.Fatalf("len(RGBA) = %d, want 4", len(got.RGBA))
	}
}

func TestEvictionReleasesBlocks(t *testing.T) {
	var released [][]byte
	c, err := New(1, func(block []byte) {
		released = append(released, block)
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	blockA := []byte{0xAA}
	blockB := []byte{0xBB}
	c.Add(Key{X: 0, Y: 0}, Entry{Blocks: [][]byte{blockA}})
	c.Add(Key{X: 1, Y: 0}, Entry{Blocks: [][]byte{blockB}})
	if len(released) != 1 || released[0][0] != 0xAA {
		t.Fatalf("expected blockA to be released on eviction, got %v", released)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}

func TestPurgeReleasesAll(t *testing.T) {
	var count int
	c, err := New(4, func(block []byte) { count++ })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Add(Key{X: 0, Y: 0}, Entry{Blocks: [][]byte{{1}, {2}}})
	c.Add(Key{X: 1, Y: 0}, Entry{Blocks: [][]byte{{3}}})
	c.Purge()
	if count != 3 {
		t.Fatalf("released %d blocks, want 3", count)
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", c.Len())
	}
}
