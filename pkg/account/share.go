// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package account

import "coredrive.io/core/pkg/nodegraph"

// AccessLevel is the permission granted to a share peer,
// "access level".
type AccessLevel int

// Access levels, lowest to highest.
const (
	AccessReadOnly AccessLevel = iota
	AccessReadWrite
	AccessFull
)

// InboundShare is a share where the local account is the recipient: it
// carries the access level, the share key, and the owning user.
type InboundShare struct {
	Root   nodegraph.Handle // the shared folder's root node
	Owner  nodegraph.Handle // the sharing user
	Access AccessLevel
	Key    []byte // the share key, once decrypted
}

// OutboundPeer is one peer entry on an outbound share: either an existing
// user (Peer set) or a placeholder awaiting contact acceptance (PCRID set).
// per-peer access entries plus optional pending-contact
// placeholders.
type OutboundPeer struct {
	Peer   nodegraph.Handle // zero if this entry is still a pending placeholder
	PCRID  string // non-empty while Peer is zero
	Access AccessLevel
}

// OutboundShare is a share rooted at a folder node the local account owns,
// outbound (per-peer access entries plus optional
// pending-contact placeholders) attached to a folder node.
type OutboundShare struct {
	Root  nodegraph.Handle
	Peers []OutboundPeer
}

// UpgradePeer replaces the pending placeholder for pcrID with a full peer
// entry at the same access level, A pending outbound share can
// be upgraded in place to a full share when the peer accepts. Reports
// whether a matching placeholder was found.
func (s *OutboundShare) UpgradePeer(pcrID string, peer nodegraph.Handle) bool {
	for i := range s.Peers {
		if s.Peers[i].PCRID == pcrID && s.Peers[i].Peer.IsZero() {
			s.Peers[i].Peer = peer
			s.Peers[i].PCRID = ""
			return true
		}
	}
	return false
}

// RemovePeer deletes the peer or placeholder entry matching peer (if
// non-zero) or pcrID (if peer is zero), reporting whether one was removed.
func (s *OutboundShare) RemovePeer(peer nodegraph.Handle, pcrID string) bool {
	for i := range s.Peers {
		if (!peer.IsZero() && s.Peers[i].Peer == peer) || (pcrID != "" && s.Peers[i].PCRID == pcrID) {
			s.Peers = append(s.Peers[:i], s.Peers[i+1:]...)
			return true
		}
	}
	return false
}

// ShareBook indexes inbound shares by root handle and outbound shares by
// the folder node they are attached to ( ownership rule: "a
// Node's outbound-share map exclusively owns Share objects").
type ShareBook struct {
	inbound  map[nodegraph.Handle]*InboundShare
	outbound map[nodegraph.Handle]*OutboundShare
}

// NewShareBook returns an empty ShareBook.
func NewShareBook() *ShareBook {
	return &ShareBook{
		inbound:  make(map[nodegraph.Handle]*InboundShare),
		outbound: make(map[nodegraph.Handle]*OutboundShare),
	}
}

// PutInbound records or replaces the inbound share rooted at s.Root.
func (b *ShareBook) PutInbound(s *InboundShare) { b.inbound[s.Root] = s }

// Inbound returns the inbound share rooted at root, or nil.
func (b *ShareBook) Inbound(root nodegraph.Handle) *InboundShare { return b.inbound[root] }

// RemoveInbound deletes the inbound share rooted at root.
func (b *ShareBook) RemoveInbound(root nodegraph.Handle) { delete(b.inbound, root) }

// OutboundOrNew returns the outbound share rooted at root, creating an
// empty one if absent.
func (b *ShareBook) OutboundOrNew(root nodegraph.Handle) *OutboundShare {
	s, ok := b.outbound[root]
	if !ok {
		s = &OutboundShare{Root: root}
		b.outbound[root] = s
	}
	return s
}

// Outbound returns the outbound share rooted at root, or nil.
func (b *ShareBook) Outbound(root nodegraph.Handle) *OutboundShare { return b.outbound[root] }

// RemoveOutbound deletes the outbound share rooted at root, e.g. once its
// peer list is empty and the node is no longer a share root.
func (b *ShareBook) RemoveOutbound(root nodegraph.Handle) { delete(b.outbound, root) }
