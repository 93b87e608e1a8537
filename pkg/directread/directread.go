// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

// Package directread implements streaming range reads for media
// playback — fetching a node's temporary URL, opening one
// HTTP connection per requested byte range, AES-CTR-decrypting on the fly,
// and delivering decrypted buffers to the host without MAC verification.
package directread

import (
	"context"
	"io"

	"github.com/zeebo/errs"

	"coredrive.io/core/pkg/cryptoadapter"
	"coredrive.io/core/pkg/nodegraph"
	"coredrive.io/core/pkg/ranger"
	"coredrive.io/core/pkg/transfer"
)

// Error is the directread error class.
var Error = errs.Class("directread")

// Delivery is one decrypted buffer handed to the host callback, tagged
// with its file-relative offset so out-of-order connection completion is
// still presentable in order by the host.
type Delivery struct {
	Offset int64
	Data   []byte
}

// Sink receives decrypted buffers for one outstanding range, in order.
// Fail is called once if the range fails; a fully delivered range gets no
// further call.
type Sink interface {
	Deliver(d Delivery) error
	Fail(err error)
}

// Range is one outstanding byte-range request against a node; a single
// node may have many outstanding ranges.
type Range struct {
	Node   nodegraph.Handle
	Offset int64
	Length int64
	Sink   Sink
}

// Node tracks the outstanding ranges queued for one node handle and the
// temporary URL serving them.
type Node struct {
	Handle nodegraph.Handle
	URLs   *transfer.TempURLSet
	Ranges []Range
}

// bufferSize is the chunk size used to stream decrypted bytes to the sink,
// independent of the transfer engine's chunk/MAC boundaries since direct
// reads never verify a MAC.
const bufferSize = 64 * 1024

// Stream reads [offset, offset+length) from r, AES-CTR-decrypting with the
// keystream positioned at the chunk-independent counter for offset (the
// same derivation the transfer engine's chunks use,, since
// both share the node's ctr_iv), and delivers decrypted buffers to sink in
// order. It returns once the whole range has been delivered or a read
// fails.
func Stream(ctx context.Context, adapter cryptoadapter.Adapter, r ranger.Ranger, aesKey []byte, nonce [8]byte, offset, length int64, sink Sink) error {
	body, err := r.Range(ctx, offset, length)
	if err != nil {
		sink.Fail(err)
		return Error.Wrap(err)
	}
	defer func() { _ = body.Close() }()

	iv := transfer.CTRIV(nonce, offset)
	stream, err := adapter.NewCTRStream(aesKey, iv[:])
	if err != nil {
		sink.Fail(err)
		return Error.Wrap(err)
	}

	buf := make([]byte, bufferSize)
	pos := offset
	for {
		if err := ctx.Err(); err != nil {
			sink.Fail(err)
			return err
		}
		n, readErr := body.Read(buf)
		if n > 0 {
			plain := make([]byte, n)
			stream.XORKeyStream(plain, buf[:n])
			if err := sink.Deliver(Delivery{Offset: pos, Data: plain}); err != nil {
				sink.Fail(err)
				return Error.Wrap(err)
			}
			pos += int64(n)
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			sink.Fail(readErr)
			return Error.Wrap(readErr)
		}
	}
}
