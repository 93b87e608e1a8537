// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"coredrive.io/core/pkg/cache"
	"coredrive.io/core/pkg/nodegraph"
)

func fingerprintOf(crc uint32, modTime int64) nodegraph.Fingerprint {
	return nodegraph.Fingerprint{CRC: crc, ModTime: modTime}
}

// persistPrefix namespaces transfer records within the shared KV store.
var persistPrefix = []byte("transfer/")

// maxResumeAge is how long a cached transfer survives a restart before
// being purged unresumed.
const maxResumeAge = 48 * time.Hour

// record is the wire form of a Transfer flushed to the persistence
// adapter on every state transition.
type record struct {
	ID             string             `json:"id"`
	Direction      Direction          `json:"dir"`
	FP             uint32             `json:"fp_crc"`
	FPModTime      int64              `json:"fp_mtime"`
	Size           int64              `json:"size"`
	ChunkMACs      map[int64][16]byte `json:"chunk_macs"`
	ContiguousUpTo int64              `json:"contiguous_upto"`
	State          State              `json:"state"`
	UploadToken    []byte             `json:"upload_token,omitempty"`
	SavedAt        int64              `json:"saved_at"` // unix seconds
}

func keyFor(id string) []byte {
	return append(append([]byte(nil), persistPrefix...), []byte(id)...)
}

// Save flushes t's resumable state to store, keyed by its id.
func Save(ctx context.Context, store cache.Store, t *Transfer, now time.Time) error {
	rec := record{
		ID:             t.ID,
		Direction:      t.Direction,
		FP:             t.Fingerprint.CRC,
		FPModTime:      t.Fingerprint.ModTime,
		Size:           t.Size,
		ChunkMACs:      t.ChunkMACs,
		ContiguousUpTo: t.ContiguousUpTo,
		State:          t.State,
		UploadToken:    t.UploadToken,
		SavedAt:        now.Unix(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return Error.Wrap(err)
	}
	return store.Put(ctx, keyFor(t.ID), data)
}

// Load restores a previously Saved transfer, or reports ok=false if it
// was absent or older than the 2-day resume window; an expired record is
// deleted from store as a side effect.
func Load(ctx context.Context, store cache.Store, id string, now time.Time) (t *Transfer, ok bool, err error) {
	data, getErr := store.Get(ctx, keyFor(id))
	if getErr != nil {
		if errors.Is(getErr, cache.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, Error.Wrap(getErr)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, Error.Wrap(err)
	}

	if now.Sub(time.Unix(rec.SavedAt, 0)) > maxResumeAge {
		_ = store.Delete(ctx, keyFor(id))
		return nil, false, nil
	}

	t = &Transfer{
		ID:             rec.ID,
		Direction:      rec.Direction,
		Fingerprint:    fingerprintOf(rec.FP, rec.FPModTime),
		Size:           rec.Size,
		ChunkMACs:      rec.ChunkMACs,
		ContiguousUpTo: rec.ContiguousUpTo,
		State:          StateRetrying,
		UploadToken:    rec.UploadToken,
		remainingBytes: rec.Size - rec.ContiguousUpTo,
	}
	return t, true, nil
}

// Delete removes a transfer's persisted record, e.g. once it reaches a
// terminal state.
func Delete(ctx context.Context, store cache.Store, id string) error {
	return store.Delete(ctx, keyFor(id))
}
