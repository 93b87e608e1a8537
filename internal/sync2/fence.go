// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information

// Package sync2 contains small concurrency primitives used by the driver
// loop and the worker pool: a one-shot gate (Fence) and a bounded
// concurrency limiter (Limiter).
package sync2

import (
	"context"
	"sync"
)

// Fence is a one-shot gate: goroutines calling Wait block until Release is
// called (or the context passed to Wait is done). It is used by the driver
// to let callers park on "node graph has become current" style conditions.
type Fence struct {
	once sync.Once
	released chan struct{}
	initOnce sync.Once
}

func (fence *Fence) init() {
	fence.initOnce.Do(func() {
		fence.released = make(chan struct{})
	})
}

// Release opens the fence, waking all current and future Wait callers.
// Calling Release more than once has no additional effect.
func (fence *Fence) Release() {
	fence.init()
	fence.once.Do(func() {
		close(fence.released)
	})
}

// Wait blocks until Release is called or ctx is done, returning false in the
// latter case.
func (fence *Fence) Wait(ctx context.Context) bool {
	fence.init()
	select {
	case <-fence.released:
		return true
	case <-ctx.Done():
		return false
	}
}
