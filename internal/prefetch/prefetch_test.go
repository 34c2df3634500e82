package prefetch

import (
	"runtime"
	"sync/atomic"
	"testing"
)

func TestWorkerPoolRunsJobs(t *testing.T) {
	pool := NewWorkerPool(8)
	defer pool.Close()

	var count int64
	for i := 0; i < 20; i++ {
		pool.Submit(func() { atomic.AddInt64(&count, 1) })
	}
	pool.Close()
	if got := atomic.LoadInt64(&count); got != 20 {
		t.Fatalf("count = %d, want 20", got)
	}
}

func TestTrySubmitFallsBackWhenFull(t *testing.T) {
	pool := NewWorkerPool(0)
	// Occupy every worker with a job that blocks until released; with no
	// queue capacity, TrySubmit then has nowhere to put another job.
	workers := runtime.NumCPU() - 1
	if workers < 1 {
		workers = 1
	}
	release := make(chan struct{})
	started := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		pool.Submit(func() {
			started <- struct{}{}
			<-release
		})
	}
	for i := 0; i < workers; i++ {
		<-started
	}
	if pool.TrySubmit(func() {}) {
		t.Fatal("TrySubmit accepted a job with every worker busy and no queue capacity")
	}
	close(release)
	pool.Close()
}

func TestClampBounds(t *testing.T) {
	tests := []struct{ v, lo, hi, want int }{
		{-3, 0, 10, 0},
		{15, 0, 10, 10},
		{5, 0, 10, 5},
		{5, 10, 0, 10},
	}
	for _, tt := range tests {
		if got := clamp(tt.v, tt.lo, tt.hi); got != tt.want {
			t.Errorf("clamp(%d,%d,%d) = %d, want %d", tt.v, tt.lo, tt.hi, got, tt.want)
		}
	}
}

func TestNewRequestHasUniqueResourceID(t *testing.T) {
	a := NewRequest()
	b := NewRequest()
	if a.ResourceID == "" || b.ResourceID == "" {
		t.Fatal("expected a non-empty ResourceID")
	}
	if a.ResourceID == b.ResourceID {
		t.Fatal("expected distinct ResourceIDs across requests")
	}
}

func TestFrameBoundaryYield(t *testing.T) {
	s := &Streamer{}
	req := NewRequest()
	if s.yielded(req) {
		t.Fatal("fresh request should not be yielded")
	}
	req.FrameBoundaryPassed.Store(true)
	if !s.yielded(req) {
		t.Fatal("expected yielded() to observe the flag")
	}
}
