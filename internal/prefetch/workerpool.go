// Package prefetch implements the streaming prefetcher: a FIFO job queue
// plus the camera-driven scheduling logic that decides which chunks to
// read and which tiles to IDWT ahead of an explicit read_tile request.
package prefetch

import (
	"runtime"
	"sync"
)

// Job is a unit of prefetch work: an H-decompress task or an IDWT task,
// submitted to the pool's queue.
type Job func()

// WorkerPool is a fixed-size FIFO queue of Jobs, drained by a pool of
// goroutines sized to logical CPUs minus one, matching the (CPUs-1)
// scheduling model the streamer's host process uses.
type WorkerPool struct {
	jobs   chan Job
	wg     sync.WaitGroup
	closed chan struct{}
	once   sync.Once
}

// NewWorkerPool starts a pool with queueCapacity buffered slots. A
// capacity of 0 makes every Submit block until a worker is free.
func NewWorkerPool(queueCapacity int) *WorkerPool {
	workers := runtime.NumCPU() - 1
	if workers < 1 {
		workers = 1
	}
	p := &WorkerPool{
		jobs:   make(chan Job, queueCapacity),
		closed: make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		job()
	}
}

// TrySubmit enqueues job without blocking, returning false if the queue
// is full (the caller should then run job inline).
func (p *WorkerPool) TrySubmit(job Job) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

// Submit enqueues job, blocking if the queue is full.
func (p *WorkerPool) Submit(job Job) {
	p.jobs <- job
}

// EntryCount returns the number of jobs currently queued (not counting
// jobs a worker has already picked up).
func (p *WorkerPool) EntryCount() int {
	return len(p.jobs)
}

// Close stops accepting new jobs and waits for queued jobs to drain.
func (p *WorkerPool) Close() {
	p.once.Do(func() {
		close(p.jobs)
		close(p.closed)
	})
	p.wg.Wait()
}
