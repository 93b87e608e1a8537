// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package hostcallback_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"coredrive.io/core/pkg/coreerrs"
	"coredrive.io/core/pkg/hostcallback"
)

func TestRecorderCapturesTransferLifecycle(t *testing.T) {
	r := hostcallback.NewRecorder()

	r.TransferAdded("t1")
	r.TransferUpdate(hostcallback.TransferProgress{ID: "t1", BytesTransferred: 10, BytesTotal: 100})
	r.TransferFailed("t1", coreerrs.KindCrypto)

	assert.Equal(t, []string{"transfer_added", "transfer_update", "transfer_failed"}, r.Calls)
	assert.Equal(t, coreerrs.KindCrypto, r.TransferErrors["t1"])
	assert.Len(t, r.Transfers, 1)
}

func TestNoOpSatisfiesCallback(t *testing.T) {
	var cb hostcallback.Callback = hostcallback.NoOp{}
	cb.AccountUpdated()
	cb.Reload("test")
}
