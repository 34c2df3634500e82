package blockalloc

import "testing"

func TestAllocFreeReuse(t *testing.T) {
	a := New(16, 4, 2)

	b1 := a.Alloc()
	if len(b1) != 16 {
		t.Fatalf("len(b1) = %d, want 16", len(b1))
	}
	b1[0] = 0xAB
	a.Free(b1)

	b2 := a.Alloc()
	if b2[0] != 0 {
		t.Fatalf("reused block was not cleared: got %d", b2[0])
	}
}

func TestAllocExhaustionPanics(t *testing.T) {
	a := New(8, 2, 1)
	a.Alloc()
	a.Alloc()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on capacity exhaustion")
		}
	}()
	a.Alloc()
}

func TestFreeForeignBlockPanics(t *testing.T) {
	a := New(8, 2, 1)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic freeing a block from another source")
		}
	}()
	a.Free(make([]byte, 4))
}

func TestConcurrentAllocFree(t *testing.T) {
	a := New(32, 100, 8)
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 50; j++ {
				b := a.Alloc()
				a.Free(b)
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
