// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information

package sync2_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"coredrive.io/core/internal/sync2"
)

func TestLimiterBoundsConcurrency(t *testing.T) {
	t.Parallel()

	const workers = 20
	const maxConcurrent = 3

	limiter := sync2.NewLimiter(maxConcurrent)

	var current, maxSeen int32
	for i := 0; i < workers; i++ {
		ok := limiter.Go(context.Background(), func() {
			n := atomic.AddInt32(&current, 1)
			for {
				old := atomic.LoadInt32(&maxSeen)
				if n <= old || atomic.CompareAndSwapInt32(&maxSeen, old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&current, -1)
		})
		assert.True(t, ok)
	}
	limiter.Wait()

	assert.LessOrEqual(t, int(atomic.LoadInt32(&maxSeen)), maxConcurrent)
}

func TestLimiterGoReturnsFalseOnCancelledContext(t *testing.T) {
	t.Parallel()

	limiter := sync2.NewLimiter(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	ok := limiter.Go(ctx, func() { ran = true })
	// the slot may or may not have been free; only assert the contract that
	// a cancelled context never panics and Go reports its outcome honestly.
	if !ok {
		assert.False(t, ran)
	}
}
