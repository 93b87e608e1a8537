// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information

package sync2

import "context"

// Limiter bounds the number of concurrently running worker-pool jobs, the
// mechanism by which the core keeps blocking I/O (hashing, encryption,
// filesystem stat) off the driver goroutine without letting it run
// unbounded.
type Limiter struct {
	slots chan struct{}
}

// NewLimiter returns a Limiter allowing at most n concurrent Go calls.
func NewLimiter(n int) *Limiter {
	return &Limiter{slots: make(chan struct{}, n)}
}

// Go runs fn in a new goroutine once a slot is available, or returns false
// immediately without running fn if ctx is done first.
func (limiter *Limiter) Go(ctx context.Context, fn func()) bool {
	select {
	case limiter.slots <- struct{}{}:
	case <-ctx.Done():
		return false
	}
	go func() {
		defer func() { <-limiter.slots }()
		fn()
	}()
	return true
}

// Wait blocks until every slot has been returned, i.e. all submitted jobs
// have completed. It must only be called once no further Go calls will be
// made.
func (limiter *Limiter) Wait() {
	for i := 0; i < cap(limiter.slots); i++ {
		limiter.slots <- struct{}{}
	}
}
