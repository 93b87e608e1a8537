// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package transfer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"coredrive.io/core/pkg/transfer"
)

func TestTempURLSetNeedsRefreshAfterTenMinutes(t *testing.T) {
	now := time.Now()
	s := transfer.NewTempURLSet(now, []string{"https://example.com/a"})
	s.MarkUsed()
	assert.False(t, s.NeedsRefresh(now.Add(9*time.Minute)))
	assert.True(t, s.NeedsRefresh(now.Add(11*time.Minute)))
}

func TestTempURLSetNeedsRefreshIfUnusedPastFirstUseWindow(t *testing.T) {
	now := time.Now()
	s := transfer.NewTempURLSet(now, []string{"https://example.com/a"})
	assert.False(t, s.NeedsRefresh(now.Add(30*time.Second)))
	assert.True(t, s.NeedsRefresh(now.Add(61*time.Second)), "never used within the 60s grace period")
}

func TestTempURLSetInvalidateForcesRefresh(t *testing.T) {
	now := time.Now()
	s := transfer.NewTempURLSet(now, []string{"https://example.com/a"})
	s.MarkUsed()
	s.Invalidate()
	assert.True(t, s.NeedsRefresh(now))
}

func TestTempURLSetConnectionRotation(t *testing.T) {
	now := time.Now()
	s := transfer.NewTempURLSet(now, make([]string, 6))
	for i := 0; i < 4; i++ {
		s.RecordFailure(2)
	}
	assert.False(t, s.OutOfRotation(2))
	s.RecordFailure(2)
	assert.True(t, s.OutOfRotation(2))
	assert.Equal(t, 5, s.HealthyCount())
}

func TestTempURLSetRecordSuccessResetsFailures(t *testing.T) {
	now := time.Now()
	s := transfer.NewTempURLSet(now, make([]string, 6))
	for i := 0; i < 4; i++ {
		s.RecordFailure(0)
	}
	s.RecordSuccess(0)
	s.RecordFailure(0)
	assert.False(t, s.OutOfRotation(0))
}
