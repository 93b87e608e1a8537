// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package transfer_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coredrive.io/core/internal/testcontext"
	"coredrive.io/core/pkg/cryptoadapter"
	"coredrive.io/core/pkg/fsadapter"
	"coredrive.io/core/pkg/transfer"
)

func writeTempFile(t *testing.T, ctx *testcontext.Context, size int) string {
	t.Helper()
	path := ctx.File("upload-source.bin")
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestEncryptChunksCoversWholeFileInOrder(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	size := 500 * 1024
	path := writeTempFile(t, ctx, size)

	adapter := cryptoadapter.Default{}
	key := make([]byte, 16)
	var nonce [8]byte
	for i := range nonce {
		nonce[i] = byte(i + 1)
	}

	results, err := transfer.EncryptChunks(context.Background(), fsadapter.Default{}, adapter, path, int64(size), key, nonce, 4)
	require.NoError(t, err)

	want := transfer.Chunks(int64(size))
	require.Len(t, results, len(want))

	var total int64
	for i, r := range results {
		assert.Equal(t, want[i], r.Chunk)
		assert.Len(t, r.Ciphertext, int(r.Chunk.Length))
		total += r.Chunk.Length
	}
	assert.Equal(t, int64(size), total)
}

func TestEncryptChunksDecryptsBackToPlaintext(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	size := 200 * 1024
	path := writeTempFile(t, ctx, size)

	adapter := cryptoadapter.Default{}
	key := make([]byte, 16)
	for i := range key {
		key[i] = byte(i * 7)
	}
	var nonce [8]byte
	for i := range nonce {
		nonce[i] = byte(i + 3)
	}

	results, err := transfer.EncryptChunks(context.Background(), fsadapter.Default{}, adapter, path, int64(size), key, nonce, 3)
	require.NoError(t, err)

	plaintext, err := os.ReadFile(path)
	require.NoError(t, err)

	for _, r := range results {
		iv := transfer.CTRIV(nonce, r.Chunk.Offset)
		stream, err := adapter.NewCTRStream(key, iv[:])
		require.NoError(t, err)
		got := make([]byte, len(r.Ciphertext))
		stream.XORKeyStream(got, r.Ciphertext)
		assert.Equal(t, plaintext[r.Chunk.Offset:r.Chunk.Offset+r.Chunk.Length], got)
	}
}

func TestOrderedMACsMatchesResultOrder(t *testing.T) {
	results := []transfer.EncryptedChunk{
		{MAC: [16]byte{1}},
		{MAC: [16]byte{2}},
	}
	macs := transfer.OrderedMACs(results)
	require.Len(t, macs, 2)
	assert.Equal(t, [16]byte{1}, macs[0])
	assert.Equal(t, [16]byte{2}, macs[1])
}
