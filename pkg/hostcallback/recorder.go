// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package hostcallback

import (
	"coredrive.io/core/pkg/account"
	"coredrive.io/core/pkg/coreerrs"
	"coredrive.io/core/pkg/nodegraph"
)

// Recorder implements Callback by appending every notification to an
// in-memory log, keyed by method name. It exists for tests that need to
// assert which callbacks a driver tick fired, in what order.
type Recorder struct {
	Calls []string

	Transfers      []TransferProgress
	TransferErrors map[string]coreerrs.Kind
	NodeUpdates    [][]nodegraph.Handle // added, updated, removed triples flattened in order
	SyncUpdates    []SyncUpdate
	Deliveries     []StreamDelivery
}

var _ Callback = (*Recorder)(nil)

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{TransferErrors: make(map[string]coreerrs.Kind)}
}

func (r *Recorder) log(name string) { r.Calls = append(r.Calls, name) }

func (r *Recorder) RequestResponseProgress(reqID string, sent, received int64) {
	r.log("request_response_progress")
}

func (r *Recorder) TransferAdded(id string) { r.log("transfer_added") }
func (r *Recorder) TransferUpdate(progress TransferProgress) {
	r.log("transfer_update")
	r.Transfers = append(r.Transfers, progress)
}
func (r *Recorder) TransferComplete(id string) { r.log("transfer_complete") }
func (r *Recorder) TransferRemoved(id string) { r.log("transfer_removed") }
func (r *Recorder) TransferFailed(id string, kind coreerrs.Kind) {
	r.log("transfer_failed")
	r.TransferErrors[id] = kind
}

func (r *Recorder) NodesUpdated(added, updated, removed []nodegraph.Handle) {
	r.log("nodes_updated")
	r.NodeUpdates = append(r.NodeUpdates, added, updated, removed)
}
func (r *Recorder) UsersUpdated(users []*account.User) { r.log("users_updated") }
func (r *Recorder) PCRsUpdated(pcrs []*account.PendingContactRequest) { r.log("pcrs_updated") }

func (r *Recorder) StorageSumChanged(usedBytes, totalBytes int64) { r.log("storagesum_changed") }
func (r *Recorder) NotifyStorage(level StorageLevel) { r.log("notify_storage") }
func (r *Recorder) NotifyRetry(reason coreerrs.Kind, attempt int) { r.log("notify_retry") }

func (r *Recorder) AccountUpdated() { r.log("account_updated") }
func (r *Recorder) LoginResult(err error) { r.log("login_result") }
func (r *Recorder) FetchNodesResult(err error) { r.log("fetchnodes_result") }
func (r *Recorder) LogoutResult(err error) { r.log("logout_result") }
func (r *Recorder) KeyModified(user nodegraph.Handle) { r.log("key_modified") }
func (r *Recorder) Reload(reason string) { r.log("reload") }

func (r *Recorder) SyncUpdated(update SyncUpdate) {
	r.log("sync_updated")
	r.SyncUpdates = append(r.SyncUpdates, update)
}
func (r *Recorder) StreamDelivered(d StreamDelivery) {
	r.log("stream_delivered")
	r.Deliveries = append(r.Deliveries, d)
}
func (r *Recorder) StreamFailed(handle nodegraph.Handle, err error) { r.log("stream_failed") }
