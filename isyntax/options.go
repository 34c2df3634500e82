package isyntax

import "log/slog"

// options collects the tunables Open accepts, mirroring the teacher's
// functional-options style rather than a config file or environment
// variables: nothing here is implied by the iSyntax file itself.
type options struct {
	logger              *slog.Logger
	maxBlocks           int
	workerQueueCapacity int
}

func defaultOptions() options {
	return options{
		logger:              slog.Default(),
		maxBlocks:           4096,
		workerQueueCapacity: 256,
	}
}

// OpenOption configures Open.
type OpenOption func(*options)

// WithLogger sets the *slog.Logger used for decode-error and open-time
// diagnostics. Decode errors never fail a tile read; they are logged here
// instead, per the "decode errors are logged, tile is zero-filled" rule.
func WithLogger(l *slog.Logger) OpenOption {
	return func(o *options) { o.logger = l }
}

// WithMaxBlocks bounds how many LL (or H) coefficient blocks the image's
// allocators may hand out live at once, across every tile resident in any
// cache injected into this image.
func WithMaxBlocks(n int) OpenOption {
	return func(o *options) { o.maxBlocks = n }
}

// WithWorkerQueueCapacity records a job-queue capacity for a prefetch
// worker pool. Open starts no prefetcher, so the value is stored and not
// otherwise used.
func WithWorkerQueueCapacity(n int) OpenOption {
	return func(o *options) { o.workerQueueCapacity = n }
}
