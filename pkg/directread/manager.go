// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package directread

import (
	"context"
	"sync"

	"coredrive.io/core/internal/sync2"
	"coredrive.io/core/pkg/cryptoadapter"
	"coredrive.io/core/pkg/ranger"
)

// queuedRange is one Range request waiting for Dispatch to hand it to a
// Stream call.
type queuedRange struct {
	Range
	Ranger ranger.Ranger
	AESKey []byte
	Nonce  [8]byte
}

// Manager is the direct-read admission surface: the host submits byte
// ranges via Enqueue (a single DirectReadNode may have many
// outstanding byte ranges), and the driver's tick drains them with
// Dispatch — each queued range runs on its own goroutine bounded by the
// limiter the driver passes in, mirroring how transfer.Engine separates
// admission from execution.
type Manager struct {
	mu      sync.Mutex
	pending []queuedRange
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Enqueue submits one byte-range request against r for streaming on the
// next Dispatch.
func (m *Manager) Enqueue(rng Range, r ranger.Ranger, aesKey []byte, nonce [8]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, queuedRange{Range: rng, Ranger: r, AESKey: aesKey, Nonce: nonce})
}

// Pending reports how many ranges are queued but not yet dispatched.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Dispatch hands every currently queued range to a limiter-bounded Stream
// call and returns once each one has been started; when every limiter slot
// is busy, Dispatch waits for a slot to free before starting the next
// range. Results and failures reach the host only through each range's own
// Sink.
func (m *Manager) Dispatch(ctx context.Context, adapter cryptoadapter.Adapter, limiter *sync2.Limiter) {
	m.mu.Lock()
	queued := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, q := range queued {
		q := q
		limiter.Go(ctx, func() {
			_ = Stream(ctx, adapter, q.Ranger, q.AESKey, q.Nonce, q.Offset, q.Length, q.Sink)
		})
	}
}
