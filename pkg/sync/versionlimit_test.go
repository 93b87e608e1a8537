// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package sync_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"coredrive.io/core/pkg/sync"
)

func TestVersionUploadDelayNoDelayAtOrBelowThreshold(t *testing.T) {
	assert.Equal(t, time.Duration(0), sync.VersionUploadDelay(0))
	assert.Equal(t, time.Duration(0), sync.VersionUploadDelay(10))
}

func TestVersionUploadDelayMatchesFormula(t *testing.T) {
	// 7 * (20/10) * (20-10) = 7*2*10 = 140s
	assert.Equal(t, 140*time.Second, sync.VersionUploadDelay(20))
	// 7 * (15/10) * (15-10) = 7*1*5 = 35s (integer division on recentVersions/10)
	assert.Equal(t, 35*time.Second, sync.VersionUploadDelay(15))
}
