// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package directread_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coredrive.io/core/internal/sync2"
	"coredrive.io/core/pkg/cryptoadapter"
	"coredrive.io/core/pkg/directread"
	"coredrive.io/core/pkg/nodegraph"
	"coredrive.io/core/pkg/ranger"
	"coredrive.io/core/pkg/transfer"
)

type syncedSink struct {
	mu        sync.Mutex
	delivered []directread.Delivery
}

func (s *syncedSink) Deliver(d directread.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, d)
	return nil
}

func (s *syncedSink) Fail(err error) {}

func TestManagerDispatchStreamsEveryQueuedRange(t *testing.T) {
	adapter := cryptoadapter.Default{}
	key := make([]byte, 16)
	var nonce [8]byte

	plaintext := make([]byte, 4*1024)
	iv := transfer.CTRIV(nonce, 0)
	stream, err := adapter.NewCTRStream(key, iv[:])
	require.NoError(t, err)
	ciphertext := make([]byte, len(plaintext))
	stream.XORKeyStream(ciphertext, plaintext)
	r := ranger.ByteRanger(ciphertext)

	mgr := directread.NewManager()
	sink := &syncedSink{}
	mgr.Enqueue(directread.Range{
		Node:   nodegraph.Handle{},
		Offset: 0,
		Length: int64(len(ciphertext)),
		Sink:   sink,
	}, r, key, nonce)

	assert.Equal(t, 1, mgr.Pending())

	limiter := sync2.NewLimiter(4)
	mgr.Dispatch(context.Background(), adapter, limiter)
	limiter.Wait()

	assert.Equal(t, 0, mgr.Pending())

	var got []byte
	for _, d := range sink.delivered {
		got = append(got, d.Data...)
	}
	assert.Equal(t, plaintext, got)
}

func TestManagerDispatchIsNonBlockingWithEmptyQueue(t *testing.T) {
	mgr := directread.NewManager()
	limiter := sync2.NewLimiter(2)
	mgr.Dispatch(context.Background(), cryptoadapter.Default{}, limiter)
	limiter.Wait()
	assert.Equal(t, 0, mgr.Pending())
}
