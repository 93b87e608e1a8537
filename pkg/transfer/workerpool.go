// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package transfer

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"coredrive.io/core/internal/sync2"
	"coredrive.io/core/pkg/cryptoadapter"
	"coredrive.io/core/pkg/fsadapter"
)

// EncryptedChunk is one chunk's ciphertext and MAC, produced off the
// driver goroutine by EncryptChunks: workers only run pure jobs (hashing,
// chunk encryption) and never touch shared engine state.
type EncryptedChunk struct {
	Chunk      Chunk
	Ciphertext []byte
	MAC        [16]byte
}

// EncryptChunks reads, CTR-encrypts and CBC-MACs every chunk of the local
// file at path in parallel, bounded by maxWorkers concurrent jobs. Results
// are returned in file order regardless of completion order, ready for
// FoldMetaMAC. The first job error cancels the remaining ones and is
// returned; partial results are discarded.
func EncryptChunks(
	ctx context.Context,
	fs fsadapter.Adapter,
	adapter cryptoadapter.Adapter,
	path string,
	size int64,
	aesKey []byte,
	ctrNonce [8]byte,
	maxWorkers int,
) ([]EncryptedChunk, error) {
	chunks := Chunks(size)
	results := make([]EncryptedChunk, len(chunks))

	handle, err := fs.Open(path, false, false)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer handle.Close()

	limiter := sync2.NewLimiter(maxWorkers)
	group, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	for i, c := range chunks {
		i, c := i, c
		group.Go(func() error {
			done := make(chan error, 1)
			ok := limiter.Go(gctx, func() {
				done <- encryptOneChunk(handle, adapter, c, aesKey, ctrNonce, &mu, results, i)
			})
			if !ok {
				return gctx.Err()
			}
			return <-done
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func encryptOneChunk(
	handle fsadapter.Handle,
	adapter cryptoadapter.Adapter,
	c Chunk,
	aesKey []byte,
	ctrNonce [8]byte,
	mu *sync.Mutex,
	results []EncryptedChunk,
	index int,
) error {
	plaintext := make([]byte, c.Length)
	if _, err := handle.ReadAt(plaintext, c.Offset); err != nil {
		return Error.Wrap(err)
	}

	iv := CTRIV(ctrNonce, c.Offset)
	stream, err := adapter.NewCTRStream(aesKey, iv[:])
	if err != nil {
		return err
	}
	ciphertext := make([]byte, len(plaintext))
	stream.XORKeyStream(ciphertext, plaintext)

	padded := ciphertext
	if rem := len(padded) % aesBlockSize; rem != 0 {
		padded = make([]byte, len(ciphertext)+(aesBlockSize-rem))
		copy(padded, ciphertext)
	}
	mac, err := ChunkMAC(adapter, aesKey, padded)
	if err != nil {
		return err
	}

	mu.Lock()
	results[index] = EncryptedChunk{Chunk: c, Ciphertext: ciphertext, MAC: mac}
	mu.Unlock()
	return nil
}

// OrderedMACs extracts the chunk MACs from results, already in file order
// since EncryptChunks indexes by chunk position.
func OrderedMACs(results []EncryptedChunk) [][16]byte {
	macs := make([][16]byte, len(results))
	for i, r := range results {
		macs[i] = r.MAC
	}
	return macs
}
