// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package eventstream

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"coredrive.io/core/pkg/account"
	"coredrive.io/core/pkg/commands"
	"coredrive.io/core/pkg/cryptoadapter"
	"coredrive.io/core/pkg/hostcallback"
	"coredrive.io/core/pkg/nodegraph"
)

// ShareKeySink receives share keys as they arrive in `k` packets, making
// previously NO_KEY nodes decryptable on the next resolve pass.
type ShareKeySink interface {
	SetShareKey(root nodegraph.Handle, key []byte)
}

// Binder applies decoded action packets to the node graph and account
// books: it is the glue between the Processor's tag dispatch and the rest
// of the core state. All methods run on the driver goroutine.
type Binder struct {
	Graph    *nodegraph.Graph
	Crypto   cryptoadapter.Adapter
	Keys     nodegraph.KeySource
	Users    *account.Directory
	Shares   *account.ShareBook
	PCRs     *account.PCRBook
	Callback hostcallback.Callback

	ShareKeys ShareKeySink

	// Self is the logged-in user's handle, used to classify `s` packets
	// as inbound or outbound.
	Self nodegraph.Handle

	// rewrites collects resolver-queued node-key rewrites; the session
	// drains them into KeyRewrite commands at the end of each applied
	// batch.
	rewrites []nodegraph.RewriteRequest

	// publicLinks tracks live public handles per node, maintained by `ph`
	// packets.
	publicLinks map[nodegraph.Handle]string
}

// RegisterAll wires every tag the core models onto p. Purchase tags are
// applied as account events; chat tags are left unregistered, so the
// processor skips them.
func (b *Binder) RegisterAll(p *Processor) {
	if b.publicLinks == nil {
		b.publicLinks = make(map[nodegraph.Handle]string)
	}
	p.Handle(TagNewNode, b.applyNewNodes)
	p.Handle(TagNodeUpdate, b.applyNodeUpdate)
	p.Handle(TagSubtreeDelete, b.applySubtreeDelete)
	p.Handle(TagShareAdd, b.applyShare)
	p.Handle(TagShareUpdate, b.applyShare)
	p.Handle(TagKeyDistribution, b.applyKeyDistribution)
	p.Handle(TagContact, b.applyContact)
	p.Handle(TagFileAttr, b.applyFileAttr)
	p.Handle(TagUserAttr, b.applyUserAttrInvalidation)
	p.Handle(TagIncomingPCR, b.applyPCR(account.DirectionIncoming))
	p.Handle(TagOutgoingPCR, b.applyPCR(account.DirectionOutgoing))
	p.Handle(TagUpdateIncomingPC, b.applyPCRUpdate)
	p.Handle(TagUpdateOutgoingPC, b.applyPCRUpdate)
	p.Handle(TagPublicLink, b.applyPublicLink)
	p.Handle(TagEmailChanged, b.applyEmailChanged)
	p.Handle(TagBusinessStatus, b.applyAccountEvent)
	p.Handle(TagPurchase, b.applyAccountEvent)
	p.Handle(TagPurchaseSession, b.applyAccountEvent)
	p.Handle(TagAlertsAck, b.applyAccountEvent)
}

// DrainRewrites returns and clears the node-key rewrites accumulated while
// applying packets.
func (b *Binder) DrainRewrites() []nodegraph.RewriteRequest {
	out := b.rewrites
	b.rewrites = nil
	return out
}

// PublicLink returns the live public handle for node, if one exists.
func (b *Binder) PublicLink(node nodegraph.Handle) (string, bool) {
	ph, ok := b.publicLinks[node]
	return ph, ok
}

// ImportNode converts one wire node, resolves its key, decrypts its
// attribute blob, and stores it in the graph. Used both for `t` packets
// and for the fetchnodes bootstrap, which share the wire shape. A node
// whose key or attributes cannot be decrypted is stored NO_KEY.
func (b *Binder) ImportNode(w commands.WireNode) (nodegraph.Handle, error) {
	handle, err := nodegraph.ParseHandle(w.Handle)
	if err != nil {
		return nodegraph.ZeroHandle, Error.Wrap(err)
	}

	n := &nodegraph.Node{
		Handle:  handle,
		Type:    nodeTypeFromWire(w.Type),
		Size:    w.Size,
		Created: time.Unix(w.Created, 0),
	}
	if w.Parent != "" {
		if n.Parent, err = nodegraph.ParseHandle(w.Parent); err != nil {
			return nodegraph.ZeroHandle, Error.Wrap(err)
		}
	}
	if w.Owner != "" {
		if n.Owner, err = nodegraph.ParseHandle(w.Owner); err != nil {
			return nodegraph.ZeroHandle, Error.Wrap(err)
		}
	}
	if w.Attr != "" {
		if n.AttrCiphertext, err = base64.RawURLEncoding.DecodeString(w.Attr); err != nil {
			return nodegraph.ZeroHandle, Error.Wrap(err)
		}
	}

	keyLen := 16
	if n.Type == nodegraph.TypeFile {
		keyLen = 32
	}
	rewrite, err := nodegraph.ResolveAndPut(b.Graph, b.Crypto, b.Keys, n, w.Key, keyLen)
	if err != nil {
		return nodegraph.ZeroHandle, err
	}
	if rewrite != nil {
		rewrite.Node = handle
		b.rewrites = append(b.rewrites, *rewrite)
	}

	if n.Decrypted {
		b.decryptAttrs(n)
	}
	return handle, nil
}

// decryptAttrs parses n's attribute blob in place. A missing-magic result
// demotes the node back to NO_KEY (malformed or wrong-key
// decryption is detected by the absent magic prefix) and the node is
// re-stored so the fingerprint index never sees it.
func (b *Binder) decryptAttrs(n *nodegraph.Node) {
	if len(n.AttrCiphertext) == 0 {
		return
	}
	var aesKey [16]byte
	if n.Type == nodegraph.TypeFile && len(n.Key) == 32 {
		var raw [32]byte
		copy(raw[:], n.Key)
		aesKey = nodegraph.UnfoldFileKey(raw).AESKey
	} else if len(n.Key) >= 16 {
		copy(aesKey[:], n.Key[:16])
	} else {
		return
	}

	attrs, err := nodegraph.DecryptAttrBlob(b.Crypto, aesKey, n.AttrCiphertext)
	if err != nil {
		if errors.Is(err, nodegraph.ErrBadMagic) {
			n.Decrypted = false
			n.Key = nil
			_ = b.Graph.Put(n)
		}
		return
	}
	n.Attrs = attrs
	if n.Type == nodegraph.TypeFile && attrs.Fingerprint != "" {
		if fp, err := nodegraph.ParseFingerprint(attrs.Fingerprint); err == nil {
			n.Fingerprint = &fp
			_ = b.Graph.Put(n) // reindex under the fingerprint
		}
	}
}

func nodeTypeFromWire(t int) nodegraph.Type {
	switch t {
	case commands.WireTypeFolder:
		return nodegraph.TypeFolder
	case commands.WireTypeRoot:
		return nodegraph.TypeRoot
	case commands.WireTypeInbox:
		return nodegraph.TypeInbox
	case commands.WireTypeRubbish:
		return nodegraph.TypeRubbish
	default:
		return nodegraph.TypeFile
	}
}

func (b *Binder) applyNewNodes(p Packet) error {
	var wire struct {
		T struct {
			F []commands.WireNode `json:"f"`
		} `json:"t"`
	}
	if err := json.Unmarshal(p.Payload, &wire); err != nil {
		return nil // malformed element: skip,
	}
	var added []nodegraph.Handle
	for _, w := range wire.T.F {
		h, err := b.ImportNode(w)
		if err != nil {
			continue
		}
		added = append(added, h)
	}
	if len(added) > 0 && b.Callback != nil {
		b.Callback.NodesUpdated(added, nil, nil)
	}
	return nil
}

func (b *Binder) applyNodeUpdate(p Packet) error {
	var wire struct {
		Node  string `json:"n"`
		Attr  string `json:"at"`
		Owner string `json:"u"`
	}
	if err := json.Unmarshal(p.Payload, &wire); err != nil {
		return nil
	}
	handle, err := nodegraph.ParseHandle(wire.Node)
	if err != nil {
		return nil
	}
	n := b.Graph.Get(handle)
	if n == nil {
		return nil
	}
	if wire.Attr != "" {
		if ct, err := base64.RawURLEncoding.DecodeString(wire.Attr); err == nil {
			n.AttrCiphertext = ct
			if n.Decrypted {
				b.decryptAttrs(n)
			}
		}
	}
	if wire.Owner != "" {
		if owner, err := nodegraph.ParseHandle(wire.Owner); err == nil {
			n.Owner = owner
		}
	}
	if b.Callback != nil {
		b.Callback.NodesUpdated(nil, []nodegraph.Handle{handle}, nil)
	}
	return nil
}

func (b *Binder) applySubtreeDelete(p Packet) error {
	var wire struct {
		Node string `json:"n"`
	}
	if err := json.Unmarshal(p.Payload, &wire); err != nil {
		return nil
	}
	handle, err := nodegraph.ParseHandle(wire.Node)
	if err != nil {
		return nil
	}
	removed := b.Graph.Remove(handle)
	for _, h := range removed {
		b.Shares.RemoveInbound(h)
		b.Shares.RemoveOutbound(h)
		delete(b.publicLinks, h)
	}
	if len(removed) > 0 && b.Callback != nil {
		b.Callback.NodesUpdated(nil, nil, removed)
	}
	return nil
}

// applyShare handles both `s` and `s2`: an entry with no access level is a
// revoke; an entry whose owner is the local account updates the outbound
// peer list; anything else is an inbound grant.
func (b *Binder) applyShare(p Packet) error {
	var wire struct {
		Root   string `json:"n"`
		Peer   string `json:"u"`
		Owner  string `json:"o"`
		Access *int   `json:"r"`
		Key    string `json:"k"`
		PCRID  string `json:"p"`
	}
	if err := json.Unmarshal(p.Payload, &wire); err != nil {
		return nil
	}
	root, err := nodegraph.ParseHandle(wire.Root)
	if err != nil {
		return nil
	}

	owner := b.Self
	if wire.Owner != "" {
		if parsed, err := nodegraph.ParseHandle(wire.Owner); err == nil {
			owner = parsed
		}
	}

	if owner == b.Self {
		out := b.Shares.OutboundOrNew(root)
		var peer nodegraph.Handle
		if wire.Peer != "" {
			peer, _ = nodegraph.ParseHandle(wire.Peer)
		}
		if wire.Access == nil {
			out.RemovePeer(peer, wire.PCRID)
			if len(out.Peers) == 0 {
				b.Shares.RemoveOutbound(root)
			}
			return nil
		}
		if wire.PCRID != "" && !peer.IsZero() && out.UpgradePeer(wire.PCRID, peer) {
			return nil
		}
		out.Peers = append(out.Peers, account.OutboundPeer{
			Peer:   peer,
			PCRID:  wire.PCRID,
			Access: account.AccessLevel(*wire.Access),
		})
		return nil
	}

	if wire.Access == nil {
		b.Shares.RemoveInbound(root)
		if u := b.Users.Get(owner); u != nil {
			delete(u.SharesToUs, root)
		}
		return nil
	}
	share := &account.InboundShare{Root: root, Owner: owner, Access: account.AccessLevel(*wire.Access)}
	if wire.Key != "" {
		if key, err := b.unwrapShareKey(wire.Key); err == nil {
			share.Key = key
			if b.ShareKeys != nil {
				b.ShareKeys.SetShareKey(root, key)
			}
		}
	}
	b.Shares.PutInbound(share)
	if u := b.Users.Get(owner); u != nil {
		u.SharesToUs[root] = struct{}{}
	}
	return nil
}

// unwrapShareKey decrypts a share key wrapped under the master key.
func (b *Binder) unwrapShareKey(raw string) ([]byte, error) {
	wrapped, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	master, ok := b.Keys.SymmetricKey(nodegraph.ZeroHandle)
	if !ok {
		return nil, Error.New("no master key held")
	}
	key, err := b.Crypto.AESECBDecrypt(master, wrapped)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return key, nil
}

// applyKeyDistribution handles `k` packets carrying share keys for roots
// we could not previously decrypt; each delivered key re-resolves that
// subtree's NO_KEY nodes on the next pass.
func (b *Binder) applyKeyDistribution(p Packet) error {
	var wire struct {
		SR []string `json:"sr"` // alternating root handle, wrapped key
	}
	if err := json.Unmarshal(p.Payload, &wire); err != nil {
		return nil
	}
	for i := 0; i+1 < len(wire.SR); i += 2 {
		root, err := nodegraph.ParseHandle(wire.SR[i])
		if err != nil {
			continue
		}
		key, err := b.unwrapShareKey(wire.SR[i+1])
		if err != nil {
			continue
		}
		if b.ShareKeys != nil {
			b.ShareKeys.SetShareKey(root, key)
		}
		if in := b.Shares.Inbound(root); in != nil {
			in.Key = key
		}
	}
	return nil
}

func (b *Binder) applyContact(p Packet) error {
	var wire struct {
		U []struct {
			Handle     string `json:"u"`
			Email      string `json:"m"`
			Visibility int    `json:"c"`
		} `json:"u"`
	}
	if err := json.Unmarshal(p.Payload, &wire); err != nil {
		return nil
	}
	var updated []*account.User
	for _, c := range wire.U {
		handle, err := nodegraph.ParseHandle(c.Handle)
		if err != nil {
			continue
		}
		u := b.Users.Get(handle)
		if u == nil {
			u = account.NewUser(handle, c.Email)
		} else if c.Email != "" {
			u.SetEmail(c.Email)
		}
		u.Visibility = account.Visibility(c.Visibility)
		b.Users.Put(u)
		updated = append(updated, u)
	}
	if len(updated) > 0 && b.Callback != nil {
		b.Callback.UsersUpdated(updated)
	}
	return nil
}

func (b *Binder) applyFileAttr(p Packet) error {
	var wire struct {
		Node string `json:"n"`
		FA []struct {
			Type   int    `json:"t"`
			Handle string `json:"h"`
		} `json:"fa"`
	}
	if err := json.Unmarshal(p.Payload, &wire); err != nil {
		return nil
	}
	handle, err := nodegraph.ParseHandle(wire.Node)
	if err != nil {
		return nil
	}
	n := b.Graph.Get(handle)
	if n == nil {
		return nil
	}
	for _, fa := range wire.FA {
		faHandle, err := nodegraph.ParseHandle(fa.Handle)
		if err != nil {
			continue
		}
		n.FileAttrs = append(n.FileAttrs, nodegraph.FileAttrRef{Type: fa.Type, Handle: faHandle})
	}
	if b.Callback != nil {
		b.Callback.NodesUpdated(nil, []nodegraph.Handle{handle}, nil)
	}
	return nil
}

// applyUserAttrInvalidation drops cached user attributes whose version the
// server says has moved, forcing a refetch on next access.
func (b *Binder) applyUserAttrInvalidation(p Packet) error {
	var wire struct {
		User  string   `json:"u"`
		Names []string `json:"ua"`
	}
	if err := json.Unmarshal(p.Payload, &wire); err != nil {
		return nil
	}
	handle, err := nodegraph.ParseHandle(wire.User)
	if err != nil {
		return nil
	}
	u := b.Users.Get(handle)
	if u == nil {
		return nil
	}
	for _, name := range wire.Names {
		delete(u.Attrs, name)
	}
	return nil
}

type pcrWire struct {
	ID         string `json:"p"`
	Originator string `json:"m"`
	Target     string `json:"e"`
	Message    string `json:"msg"`
	Created    int64  `json:"ts"`
	Updated    int64  `json:"uts"`
	Reminded   int64  `json:"rts"`
	Deleted    int64  `json:"dts"`
}

func (b *Binder) applyPCR(dir account.Direction) Handler {
	return func(p Packet) error {
		var wire pcrWire
		if err := json.Unmarshal(p.Payload, &wire); err != nil {
			return nil
		}
		if wire.ID == "" {
			return nil
		}
		pcr := &account.PendingContactRequest{
			ID:         wire.ID,
			Originator: wire.Originator,
			Target:     wire.Target,
			Direction:  dir,
			Message:    wire.Message,
			Created:    unixOrZero(wire.Created),
			Updated:    unixOrZero(wire.Updated),
			Reminded:   unixOrZero(wire.Reminded),
			Deleted:    unixOrZero(wire.Deleted),
		}
		b.PCRs.Put(pcr)
		if b.Callback != nil {
			b.Callback.PCRsUpdated([]*account.PendingContactRequest{pcr})
		}
		return nil
	}
}

// applyPCRUpdate handles `upci`/`upco`: the peer accepted (s=2), ignored
// (s=1), or declined (s=3) a pending request. Any terminal status marks
// the request deleted; acceptance is followed by a `c` contact packet
// establishing the relationship and an `s` packet upgrading placeholders.
func (b *Binder) applyPCRUpdate(p Packet) error {
	var wire struct {
		ID      string `json:"p"`
		Status  int    `json:"s"`
		Updated int64  `json:"uts"`
	}
	if err := json.Unmarshal(p.Payload, &wire); err != nil {
		return nil
	}
	pcr := b.PCRs.Get(wire.ID)
	if pcr == nil {
		return nil
	}
	pcr.Updated = unixOrZero(wire.Updated)
	if wire.Status != 0 {
		pcr.Deleted = pcr.Updated
		if pcr.Deleted.IsZero() {
			pcr.Deleted = time.Unix(0, 1)
		}
	}
	if b.Callback != nil {
		b.Callback.PCRsUpdated([]*account.PendingContactRequest{pcr})
	}
	return nil
}

func (b *Binder) applyPublicLink(p Packet) error {
	var wire struct {
		Node     string `json:"h"`
		Public   string `json:"ph"`
		Takedown int    `json:"d"`
	}
	if err := json.Unmarshal(p.Payload, &wire); err != nil {
		return nil
	}
	handle, err := nodegraph.ParseHandle(wire.Node)
	if err != nil {
		return nil
	}
	if wire.Takedown != 0 || wire.Public == "" {
		delete(b.publicLinks, handle)
	} else {
		b.publicLinks[handle] = wire.Public
	}
	if b.Callback != nil {
		b.Callback.NodesUpdated(nil, []nodegraph.Handle{handle}, nil)
	}
	return nil
}

func (b *Binder) applyEmailChanged(p Packet) error {
	var wire struct {
		User  string `json:"u"`
		Email string `json:"e"`
	}
	if err := json.Unmarshal(p.Payload, &wire); err != nil {
		return nil
	}
	handle, err := nodegraph.ParseHandle(wire.User)
	if err != nil {
		return nil
	}
	u := b.Users.Get(handle)
	if u == nil {
		return nil
	}
	u.SetEmail(wire.Email)
	b.Users.Put(u)
	if b.Callback != nil {
		b.Callback.UsersUpdated([]*account.User{u})
	}
	return nil
}

// applyAccountEvent covers the tags whose only core-visible effect is
// "something about the account changed": purchases, business status,
// alert acks.
func (b *Binder) applyAccountEvent(Packet) error {
	if b.Callback != nil {
		b.Callback.AccountUpdated()
	}
	return nil
}

func unixOrZero(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}
