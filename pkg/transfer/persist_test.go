// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package transfer_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coredrive.io/core/internal/testcontext"
	"coredrive.io/core/pkg/cache"
	"coredrive.io/core/pkg/transfer"
)

func openStore(t *testing.T, ctx *testcontext.Context) *cache.BoltStore {
	t.Helper()
	store, err := cache.Open(filepath.Join(ctx.Dir("cache"), "bolt.db"), "transfers")
	require.NoError(t, err)
	ctx.AddCleanup(func() { _ = store.Close() })
	return store
}

func TestSaveLoadRoundTrips(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	store := openStore(t, ctx)

	now := time.Now()
	e := transfer.NewEngine()
	tr := e.Admit(transfer.DirectionDownload, fp(7), 4096, transfer.Placement{LocalPath: "x"})
	tr.ChunkMACs[0] = [16]byte{1, 2, 3}
	tr.RecordProgress(128*1024, 128*1024)

	require.NoError(t, transfer.Save(ctx, store, tr, now))

	loaded, ok, err := transfer.Load(ctx, store, tr.ID, now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tr.Size, loaded.Size)
	assert.Equal(t, tr.ContiguousUpTo, loaded.ContiguousUpTo)
	assert.Equal(t, tr.ChunkMACs[0], loaded.ChunkMACs[0])
}

func TestLoadPurgesRecordsOlderThanTwoDays(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	store := openStore(t, ctx)

	savedAt := time.Now().Add(-72 * time.Hour)
	e := transfer.NewEngine()
	tr := e.Admit(transfer.DirectionUpload, fp(8), 1024, transfer.Placement{})
	require.NoError(t, transfer.Save(ctx, store, tr, savedAt))

	loaded, ok, err := transfer.Load(ctx, store, tr.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, loaded)

	_, stillThere, err := transfer.Load(ctx, store, tr.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, stillThere, "the stale record must be purged from the store, not merely ignored")
}

func TestLoadMissingReturnsNotOK(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	store := openStore(t, ctx)

	_, ok, err := transfer.Load(ctx, store, "nonexistent", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}
