// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

// Package commands defines the typed client→server commands the core
// issues through the request pipeline: each builder returns an
// apipipeline.Command whose body serializes to one element of a /cs batch
// and whose result parser decodes the aligned response element. Commands
// are idempotent under retry; those that create server state carry the
// session's origin marker in their `i` field so the action-packet
// reflection of their own effect is suppressed.
package commands

import (
	"encoding/base64"
	"encoding/json"

	"github.com/zeebo/errs"

	"coredrive.io/core/pkg/apipipeline"
	"coredrive.io/core/pkg/nodegraph"
)

// Error is the commands error class.
var Error = errs.Class("commands")

// WireNode is one node element as the server serializes it, both in
// fetchnodes responses and in `t` action packets.
type WireNode struct {
	Handle    string `json:"h"`
	Parent    string `json:"p,omitempty"`
	Type      int    `json:"t"`
	Owner     string `json:"u,omitempty"`
	Size      int64  `json:"s,omitempty"`
	Attr      string `json:"a,omitempty"`
	Key       string `json:"k,omitempty"`
	ShareKey  string `json:"sk,omitempty"`
	Created   int64  `json:"ts,omitempty"`
	FileAttrs string `json:"fa,omitempty"`
}

// Wire node types.
const (
	WireTypeFile    = 0
	WireTypeFolder  = 1
	WireTypeRoot    = 2
	WireTypeInbox   = 3
	WireTypeRubbish = 4
)

// FetchNodesResult is the decoded fetchnodes response: the full node set,
// inbound share keys, and the stream position to resume the event channel
// from.
type FetchNodesResult struct {
	Nodes []WireNode      `json:"f"`
	OK    []ShareKeyEntry `json:"ok,omitempty"`
	SN    string          `json:"sn"`
}

// ShareKeyEntry is one inbound share-key record in a fetchnodes response.
type ShareKeyEntry struct {
	Root string `json:"h"`
	Key  string `json:"k"`
}

// FetchNodes builds the full-tree fetch command, issued once per login (or
// after ETOOMANY forces a reload). `c:1` requests the complete tree,
// `r:1` includes inbound share roots.
func FetchNodes(onResult func(FetchNodesResult, error)) *apipipeline.Command {
	return &apipipeline.Command{
		Tag: "f",
		Body: map[string]interface{}{
			"a": "f",
			"c": 1,
			"r": 1,
		},
		OnResult: func(raw json.RawMessage, err error) {
			if err != nil {
				onResult(FetchNodesResult{}, err)
				return
			}
			var res FetchNodesResult
			if err := json.Unmarshal(raw, &res); err != nil {
				onResult(FetchNodesResult{}, Error.Wrap(err))
				return
			}
			onResult(res, nil)
		},
	}
}

// NewNode is one node to create in a PutNodes command: the attribute blob
// and node key are already encrypted by the caller (the key wrapped under
// the master key, or the target share's share key when placing into a
// shared folder).
type NewNode struct {
	Type          int
	EncryptedAttr []byte
	WrappedKey    []byte
	// UploadToken is the post-upload receipt standing in for content on
	// file nodes created from a finished upload; empty for folders.
	UploadToken []byte
}

// PutNodesResult is the decoded putnodes response: the created nodes with
// their server-assigned handles.
type PutNodesResult struct {
	Nodes []WireNode `json:"f"`
}

// PutNodes builds the node-creation command placing nodes under parent.
// origin is the session's random marker, echoed by the server in the
// corresponding `t` packet's `ou` field for suppression.
func PutNodes(parent nodegraph.Handle, origin string, nodes []NewNode, onResult func(PutNodesResult, error)) *apipipeline.Command {
	wire := make([]map[string]interface{}, len(nodes))
	for i, n := range nodes {
		entry := map[string]interface{}{
			"t": n.Type,
			"a": base64.RawURLEncoding.EncodeToString(n.EncryptedAttr),
			"k": base64.RawURLEncoding.EncodeToString(n.WrappedKey),
		}
		if len(n.UploadToken) > 0 {
			entry["h"] = base64.RawURLEncoding.EncodeToString(n.UploadToken)
		}
		wire[i] = entry
	}
	return &apipipeline.Command{
		Tag: "p",
		Body: map[string]interface{}{
			"a": "p",
			"t": parent.String(),
			"n": wire,
			"i": origin,
		},
		OnResult: func(raw json.RawMessage, err error) {
			if err != nil {
				onResult(PutNodesResult{}, err)
				return
			}
			var res PutNodesResult
			if err := json.Unmarshal(raw, &res); err != nil {
				onResult(PutNodesResult{}, Error.Wrap(err))
				return
			}
			onResult(res, nil)
		},
	}
}

// Move builds the reparent command, the single server-side move sync's
// rename detection relies on instead of copy+delete.
func Move(node, newParent nodegraph.Handle, origin string, onResult func(error)) *apipipeline.Command {
	return &apipipeline.Command{
		Tag: "m",
		Body: map[string]interface{}{
			"a": "m",
			"n": node.String(),
			"t": newParent.String(),
			"i": origin,
		},
		OnResult: ackOnly(onResult),
	}
}

// SetAttr builds the attribute-rewrite command (rename): encryptedAttr is
// the node's new attribute blob, already AES-CBC encrypted under its key.
func SetAttr(node nodegraph.Handle, encryptedAttr []byte, origin string, onResult func(error)) *apipipeline.Command {
	return &apipipeline.Command{
		Tag: "a",
		Body: map[string]interface{}{
			"a":  "a",
			"n":  node.String(),
			"at": base64.RawURLEncoding.EncodeToString(encryptedAttr),
			"i":  origin,
		},
		OnResult: ackOnly(onResult),
	}
}

// Unlink builds the subtree-delete command.
func Unlink(node nodegraph.Handle, origin string, onResult func(error)) *apipipeline.Command {
	return &apipipeline.Command{
		Tag: "d",
		Body: map[string]interface{}{
			"a": "d",
			"n": node.String(),
			"i": origin,
		},
		OnResult: ackOnly(onResult),
	}
}

// DownloadURLResult carries a download admission grant: a single URL or
// six RAID-striped URLs, plus the file's ciphertext size.
type DownloadURLResult struct {
	URLs []string
	Size int64
}

// downloadWire tolerates both grant shapes the server sends: `g` is a
// string for plain downloads and an array of six strings for RAID.
type downloadWire struct {
	G    json.RawMessage `json:"g"`
	Size int64           `json:"s"`
}

// DownloadURL builds the download-admission command for node, requesting
// temporary URL(s).
func DownloadURL(node nodegraph.Handle, onResult func(DownloadURLResult, error)) *apipipeline.Command {
	return &apipipeline.Command{
		Tag: "g",
		Body: map[string]interface{}{
			"a": "g",
			"g": 1,
			"n": node.String(),
			"v": 2,
		},
		OnResult: func(raw json.RawMessage, err error) {
			if err != nil {
				onResult(DownloadURLResult{}, err)
				return
			}
			var wire downloadWire
			if err := json.Unmarshal(raw, &wire); err != nil {
				onResult(DownloadURLResult{}, Error.Wrap(err))
				return
			}
			res := DownloadURLResult{Size: wire.Size}
			var single string
			if err := json.Unmarshal(wire.G, &single); err == nil {
				res.URLs = []string{single}
			} else if err := json.Unmarshal(wire.G, &res.URLs); err != nil {
				onResult(DownloadURLResult{}, Error.New("download grant is neither a URL nor a URL list"))
				return
			}
			onResult(res, nil)
		},
	}
}

// UploadURLResult carries an upload admission grant.
type UploadURLResult struct {
	URL string `json:"p"`
}

// UploadURL builds the upload-admission command for a file of the given
// size.
func UploadURL(size int64, onResult func(UploadURLResult, error)) *apipipeline.Command {
	return &apipipeline.Command{
		Tag: "u",
		Body: map[string]interface{}{
			"a": "u",
			"s": size,
		},
		OnResult: func(raw json.RawMessage, err error) {
			if err != nil {
				onResult(UploadURLResult{}, err)
				return
			}
			var res UploadURLResult
			if err := json.Unmarshal(raw, &res); err != nil {
				onResult(UploadURLResult{}, Error.Wrap(err))
				return
			}
			if res.URL == "" {
				onResult(UploadURLResult{}, Error.New("upload grant missing URL"))
				return
			}
			onResult(res, nil)
		},
	}
}

// KeyRewrite builds the node-key rewrite command the resolver queues after
// unwrapping an RSA-wrapped key, so future loads skip asymmetric work:
// wrappedKey is the key re-encrypted (AES-ECB) under the master key.
func KeyRewrite(node nodegraph.Handle, wrappedKey []byte, onResult func(error)) *apipipeline.Command {
	return &apipipeline.Command{
		Tag: "k",
		Body: map[string]interface{}{
			"a": "k",
			"nk": []string{
				node.String(),
				base64.RawURLEncoding.EncodeToString(wrappedKey),
			},
		},
		OnResult: ackOnly(onResult),
	}
}

// ackOnly adapts a no-payload completion callback: the server acknowledges
// these commands with a bare 0.
func ackOnly(onResult func(error)) func(json.RawMessage, error) {
	return func(_ json.RawMessage, err error) {
		if onResult != nil {
			onResult(err)
		}
	}
}
