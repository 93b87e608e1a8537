// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package directread_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coredrive.io/core/pkg/cryptoadapter"
	"coredrive.io/core/pkg/directread"
	"coredrive.io/core/pkg/ranger"
	"coredrive.io/core/pkg/transfer"
)

type recordingSink struct {
	delivered []directread.Delivery
	failErr   error
}

func (s *recordingSink) Deliver(d directread.Delivery) error {
	s.delivered = append(s.delivered, d)
	return nil
}

func (s *recordingSink) Fail(err error) { s.failErr = err }

type erroringRanger struct{}

func (erroringRanger) Size() int64 { return 0 }
func (erroringRanger) Range(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	return nil, assertErrStream
}

var assertErrStream = errorString("range failed")

type errorString string

func (e errorString) Error() string { return string(e) }

func TestStreamDecryptsAndDeliversInOrder(t *testing.T) {
	adapter := cryptoadapter.Default{}
	key := make([]byte, 16)
	var nonce [8]byte

	plaintext := make([]byte, 200*1024)
	for i := range plaintext {
		plaintext[i] = byte(i)
	}

	// Encrypt with the same CTR derivation Stream will use, so Stream's
	// decryption round-trips back to plaintext.
	iv := transfer.CTRIV(nonce, 0)
	stream, err := adapter.NewCTRStream(key, iv[:])
	require.NoError(t, err)
	ciphertext := make([]byte, len(plaintext))
	stream.XORKeyStream(ciphertext, plaintext)

	r := ranger.ByteRanger(ciphertext)
	sink := &recordingSink{}

	err = directread.Stream(context.Background(), adapter, r, key, nonce, 0, int64(len(ciphertext)), sink)
	require.NoError(t, err)

	var got []byte
	for _, d := range sink.delivered {
		got = append(got, d.Data...)
	}
	assert.Equal(t, plaintext, got)
	assert.Nil(t, sink.failErr)
}

func TestStreamReportsRangerFailureToSink(t *testing.T) {
	adapter := cryptoadapter.Default{}
	sink := &recordingSink{}

	err := directread.Stream(context.Background(), adapter, erroringRanger{}, make([]byte, 16), [8]byte{}, 0, 16, sink)
	assert.Error(t, err)
	assert.Equal(t, assertErrStream, sink.failErr)
}
