// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package apipipeline_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coredrive.io/core/pkg/apipipeline"
)

type fakeSender struct {
	responses []json.RawMessage
	errs      []error
	calls     int
	lastBatch json.RawMessage
}

func (f *fakeSender) Send(ctx context.Context, reqID string, batch json.RawMessage) (json.RawMessage, error) {
	f.lastBatch = batch
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.responses[i], nil
}

func TestTickDeliversResultsInOrder(t *testing.T) {
	sender := &fakeSender{responses: []json.RawMessage{json.RawMessage(`[1,2]`)}}
	p := apipipeline.New(sender)

	var got []string
	p.Enqueue(&apipipeline.Command{Tag: "a", Body: map[string]string{"a": "1"}, OnResult: func(raw json.RawMessage, err error) {
		got = append(got, string(raw))
	}})
	p.Enqueue(&apipipeline.Command{Tag: "b", Body: map[string]string{"a": "2"}, OnResult: func(raw json.RawMessage, err error) {
		got = append(got, string(raw))
	}})

	require.NoError(t, p.Tick(context.Background(), time.Now()))
	assert.Equal(t, []string{"1", "2"}, got)
	assert.Equal(t, 0, p.Pending())
}

func TestTickIsNoOpWithEmptyQueue(t *testing.T) {
	sender := &fakeSender{}
	p := apipipeline.New(sender)
	require.NoError(t, p.Tick(context.Background(), time.Now()))
	assert.Equal(t, 0, sender.calls)
}

func TestTickArmsRetryOnRateLimitAndDoesNotBlock(t *testing.T) {
	sender := &fakeSender{
		responses: []json.RawMessage{nil, json.RawMessage(`[1]`)},
		errs:      []error{nil, nil},
	}
	// first response is the numeric EAGAIN (-3) global error
	sender.responses[0] = json.RawMessage(`-3`)

	p := apipipeline.New(sender)

	delivered := false
	p.Enqueue(&apipipeline.Command{Tag: "a", OnResult: func(raw json.RawMessage, err error) {
		delivered = true
	}})

	start := time.Now()
	require.NoError(t, p.Tick(context.Background(), start))
	assert.False(t, delivered, "retryable error should not deliver yet")
	assert.Equal(t, 1, p.Pending(), "batch stays queued across a retryable failure")

	// immediately re-ticking before the backoff elapses is a no-op.
	require.NoError(t, p.Tick(context.Background(), start))
	assert.Equal(t, 1, sender.calls)

	wake := p.NextWake(start)
	assert.True(t, wake.After(start))

	require.NoError(t, p.Tick(context.Background(), wake))
	assert.True(t, delivered)
	assert.Equal(t, 2, sender.calls)
}

func TestTickDeliversTerminalErrorForAuthInvalid(t *testing.T) {
	sender := &fakeSender{responses: []json.RawMessage{json.RawMessage(`-15`)}}
	p := apipipeline.New(sender)

	var gotErr error
	p.Enqueue(&apipipeline.Command{Tag: "a", OnResult: func(raw json.RawMessage, err error) {
		gotErr = err
	}})

	err := p.Tick(context.Background(), time.Now())
	assert.Error(t, err)
	assert.Error(t, gotErr)
	assert.Equal(t, 0, p.Pending())
}
