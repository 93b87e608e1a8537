// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package transfer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coredrive.io/core/pkg/nodegraph"
	"coredrive.io/core/pkg/transfer"
)

func fp(crc uint32) nodegraph.Fingerprint {
	return nodegraph.Fingerprint{CRC: crc, ModTime: 1000}
}

func TestAdmitMatchesExistingTransferByFingerprint(t *testing.T) {
	e := transfer.NewEngine()
	t1 := e.Admit(transfer.DirectionDownload, fp(1), 1024, transfer.Placement{LocalPath: "a"})
	t2 := e.Admit(transfer.DirectionDownload, fp(1), 1024, transfer.Placement{LocalPath: "b"})

	require.Same(t, t1, t2)
	assert.Len(t, t1.Placements, 2)
}

func TestAdmitCreatesSeparateTransfersPerDirection(t *testing.T) {
	e := transfer.NewEngine()
	down := e.Admit(transfer.DirectionDownload, fp(1), 1024, transfer.Placement{})
	up := e.Admit(transfer.DirectionUpload, fp(1), 1024, transfer.Placement{})
	assert.NotEqual(t, down.ID, up.ID)
}

func TestDispatchRespectsMaxDirLimit(t *testing.T) {
	e := transfer.NewEngine()
	now := time.Now()
	for i := 0; i < transfer.MaxDirTransfers+5; i++ {
		e.Admit(transfer.DirectionDownload, fp(uint32(i)), 1024, transfer.Placement{})
	}

	promoted := e.Dispatch(transfer.DirectionDownload, now)
	assert.Len(t, promoted, transfer.MaxDirTransfers)
}

func TestDispatchSkipsAdditionalVeryBigTransfers(t *testing.T) {
	e := transfer.NewEngine()
	now := time.Now()
	const big = 200 * 1024 * 1024
	e.Admit(transfer.DirectionDownload, fp(1), big, transfer.Placement{})
	e.Admit(transfer.DirectionDownload, fp(2), big, transfer.Placement{})
	e.Admit(transfer.DirectionDownload, fp(3), 1024, transfer.Placement{})

	promoted := e.Dispatch(transfer.DirectionDownload, now)
	// one very-big transfer dispatches; the second very-big transfer is
	// throttled, but the small transfer is not blocked by it.
	var bigCount, smallCount int
	for _, tr := range promoted {
		if tr.Size == big {
			bigCount++
		} else {
			smallCount++
		}
	}
	assert.Equal(t, 1, bigCount)
	assert.Equal(t, 1, smallCount)
}

func TestDispatchNoOpWhileOverquota(t *testing.T) {
	e := transfer.NewEngine()
	now := time.Now()
	e.Admit(transfer.DirectionDownload, fp(1), 1024, transfer.Placement{})
	e.EnterOverquota(transfer.DirectionDownload, now, 30)

	promoted := e.Dispatch(transfer.DirectionDownload, now)
	assert.Empty(t, promoted)

	promoted = e.Dispatch(transfer.DirectionDownload, now.Add(31*time.Second))
	assert.Len(t, promoted, 1)
}

func TestCompleteFreesAdmissionSlot(t *testing.T) {
	e := transfer.NewEngine()
	now := time.Now()
	tr := e.Admit(transfer.DirectionDownload, fp(1), 1024, transfer.Placement{})
	e.Dispatch(transfer.DirectionDownload, now)
	e.Complete(tr)

	assert.Nil(t, e.Get(tr.ID))
	// a subsequent admission for the same fingerprint gets a fresh transfer.
	tr2 := e.Admit(transfer.DirectionDownload, fp(1), 1024, transfer.Placement{})
	assert.NotEqual(t, tr.ID, tr2.ID)
}

func TestRecordProgressClampsAtZero(t *testing.T) {
	tr := transfer.NewEngine().Admit(transfer.DirectionDownload, fp(1), 100, transfer.Placement{})
	tr.RecordProgress(50, 80)
	assert.Equal(t, int64(20), tr.Remaining())
	tr.RecordProgress(100, 80)
	assert.Equal(t, int64(0), tr.Remaining())
}
