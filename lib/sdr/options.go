package sdr

import (
	"runtime"
)

// ProgressFunc receives coarse progress updates from long running phases.
type ProgressFunc func(phase string, done, total uint64)

func (p ProgressFunc) report(phase string, done, total uint64) {
	if p != nil {
		p(phase, done, total)
	}
}

type Option func(*options)

type options struct {
	workers  int
	progress ProgressFunc
	reflink  bool
}

func defaultOptions() options {
	return options{
		workers: runtime.NumCPU(),
		reflink: true,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers < 1 {
		o.workers = 1
	}
	return o
}

// WithWorkers bounds the goroutines used by parallel phases.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

func WithProgress(fn ProgressFunc) Option {
	return func(o *options) { o.progress = fn }
}

// WithReflink controls whether the source is reflinked into the replica
// before encoding. Without it the data is always copied.
func WithReflink(enabled bool) Option {
	return func(o *options) { o.reflink = enabled }
}
