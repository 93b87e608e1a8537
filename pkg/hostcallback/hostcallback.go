// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

// Package hostcallback is the host-notification trait the core drives
// (Host callbacks): every externally-observable event the
// driver produces crosses this interface, never a direct call into host
// code, so the core stays host-framework-agnostic.
package hostcallback

import (
	"coredrive.io/core/pkg/account"
	"coredrive.io/core/pkg/coreerrs"
	"coredrive.io/core/pkg/nodegraph"
)

// TransferProgress is the per-tick snapshot TransferUpdate delivers.
type TransferProgress struct {
	ID               string
	BytesTransferred int64
	BytesTotal       int64
}

// SyncUpdateKind distinguishes the sync-specific callbacks
// groups together as "sync-specific updates".
type SyncUpdateKind int

// Sync update kinds.
const (
	SyncStateChanged SyncUpdateKind = iota
	SyncStalled
	SyncResumed
	SyncLocalConflict
)

// SyncUpdate is one sync-reconciler notification.
type SyncUpdate struct {
	Kind   SyncUpdateKind
	PairID string
	Path   string
}

// StreamDelivery carries one decrypted buffer from the direct-read engine
// to the host via callback.
type StreamDelivery struct {
	Handle nodegraph.Handle
	Offset int64
	Data   []byte
}

// Callback is the full trait a host application must implement. Every
// method is a notification, not a query: the core never blocks on a
// callback's return value, mirroring the non-blocking driver model.
type Callback interface {
	// RequestResponseProgress reports bytes sent/received progress for an
	// in-flight /cs command batch, keyed by its reqid.
	RequestResponseProgress(reqID string, sent, received int64)

	TransferAdded(id string)
	TransferUpdate(progress TransferProgress)
	TransferComplete(id string)
	TransferRemoved(id string)
	TransferFailed(id string, kind coreerrs.Kind)

	NodesUpdated(added, updated, removed []nodegraph.Handle)
	UsersUpdated(users []*account.User)
	PCRsUpdated(pcrs []*account.PendingContactRequest)

	StorageSumChanged(usedBytes, totalBytes int64)
	NotifyStorage(level StorageLevel)
	NotifyRetry(reason coreerrs.Kind, attempt int)

	AccountUpdated()
	LoginResult(err error)
	FetchNodesResult(err error)
	LogoutResult(err error)
	KeyModified(user nodegraph.Handle)
	Reload(reason string)

	SyncUpdated(update SyncUpdate)
	StreamDelivered(d StreamDelivery)
	StreamFailed(handle nodegraph.Handle, err error)
}

// StorageLevel is the quota pressure NotifyStorage reports.
type StorageLevel int

// Storage levels, ascending severity.
const (
	StorageOK StorageLevel = iota
	StorageAlmostFull
	StorageFull
	StorageOverQuota
)
