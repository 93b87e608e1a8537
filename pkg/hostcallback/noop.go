// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package hostcallback

import (
	"coredrive.io/core/pkg/account"
	"coredrive.io/core/pkg/coreerrs"
	"coredrive.io/core/pkg/nodegraph"
)

// NoOp implements Callback by discarding every notification. Embedding it
// lets a host implement only the callbacks it cares about.
type NoOp struct{}

var _ Callback = NoOp{}

func (NoOp) RequestResponseProgress(reqID string, sent, received int64) {}

func (NoOp) TransferAdded(id string) {}
func (NoOp) TransferUpdate(progress TransferProgress) {}
func (NoOp) TransferComplete(id string) {}
func (NoOp) TransferRemoved(id string) {}
func (NoOp) TransferFailed(id string, kind coreerrs.Kind) {}

func (NoOp) NodesUpdated(added, updated, removed []nodegraph.Handle) {}
func (NoOp) UsersUpdated(users []*account.User) {}
func (NoOp) PCRsUpdated(pcrs []*account.PendingContactRequest) {}

func (NoOp) StorageSumChanged(usedBytes, totalBytes int64) {}
func (NoOp) NotifyStorage(level StorageLevel) {}
func (NoOp) NotifyRetry(reason coreerrs.Kind, attempt int) {}

func (NoOp) AccountUpdated() {}
func (NoOp) LoginResult(err error) {}
func (NoOp) FetchNodesResult(err error) {}
func (NoOp) LogoutResult(err error) {}
func (NoOp) KeyModified(user nodegraph.Handle) {}
func (NoOp) Reload(reason string) {}

func (NoOp) SyncUpdated(update SyncUpdate) {}
func (NoOp) StreamDelivered(d StreamDelivery) {}
func (NoOp) StreamFailed(handle nodegraph.Handle, err error) {}
