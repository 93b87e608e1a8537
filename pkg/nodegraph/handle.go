// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

// Package nodegraph implements the in-memory file/folder DAG, its
// per-node encryption keys, share-key propagation, and the
// fingerprint/dedup index.
//
// The graph is an arena of Nodes keyed by Handle rather than a web of raw
// parent/child pointers: Handle is the natural stable id, so parent/child
// links are stored as Handles and dereferenced lazily against the arena.
package nodegraph

import (
	"encoding/base64"

	"github.com/zeebo/errs"
)

// Error is the nodegraph error class.
var Error = errs.Class("nodegraph")

// Handle is the 48-bit opaque node/user/share identifier: 6 bytes binary,
// base64url-encoded to 8 characters externally.
type Handle [6]byte

// ZeroHandle is the distinguished empty handle (no parent, for roots).
var ZeroHandle = Handle{}

// String base64url-encodes the handle to its external 8-character form.
func (h Handle) String() string {
	return base64.RawURLEncoding.EncodeToString(h[:])
}

// ParseHandle decodes the external 8-character base64url form.
func ParseHandle(s string) (Handle, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Handle{}, Error.Wrap(err)
	}
	if len(b) != 6 {
		return Handle{}, Error.New("handle must decode to 6 bytes, got %d", len(b))
	}
	var h Handle
	copy(h[:], b)
	return h, nil
}

// IsZero reports whether h is the zero handle.
func (h Handle) IsZero() bool { return h == ZeroHandle }
