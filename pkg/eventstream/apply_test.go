// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package eventstream

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coredrive.io/core/pkg/account"
	"coredrive.io/core/pkg/cryptoadapter"
	"coredrive.io/core/pkg/hostcallback"
	"coredrive.io/core/pkg/nodegraph"
)

type fixedKeys struct {
	master []byte
	shares map[nodegraph.Handle][]byte
}

func (f *fixedKeys) SymmetricKey(owner nodegraph.Handle) ([]byte, bool) {
	if owner.IsZero() {
		return f.master, true
	}
	return nil, false
}

func (f *fixedKeys) ShareKey(h nodegraph.Handle) ([]byte, bool) {
	k, ok := f.shares[h]
	return k, ok
}

func (f *fixedKeys) RSAPrivateKey() (*rsa.PrivateKey, bool) { return nil, false }

func (f *fixedKeys) SetShareKey(root nodegraph.Handle, key []byte) {
	if f.shares == nil {
		f.shares = make(map[nodegraph.Handle][]byte)
	}
	f.shares[root] = key
}

func testHandle(b byte) nodegraph.Handle {
	return nodegraph.Handle{b, b, b, b, b, b}
}

func newTestBinder(t *testing.T) (*Binder, *hostcallback.Recorder, nodegraph.Handle) {
	t.Helper()
	filesRoot := testHandle(1)
	graph := nodegraph.NewGraph(filesRoot, testHandle(2), testHandle(3))
	rec := hostcallback.NewRecorder()
	b := &Binder{
		Graph:    graph,
		Crypto:   cryptoadapter.Default{},
		Keys:     &fixedKeys{master: []byte("master-key-16byt")},
		Users:    account.NewDirectory(),
		Shares:   account.NewShareBook(),
		PCRs:     account.NewPCRBook(),
		Callback: rec,
		Self:     testHandle(9),
	}
	b.ShareKeys = b.Keys.(*fixedKeys)
	return b, rec, filesRoot
}

// wireFolder builds a `t` packet payload carrying one folder under parent,
// its key wrapped under the binder's master key.
func wireFolder(t *testing.T, b *Binder, handle, parent nodegraph.Handle, name string) json.RawMessage {
	t.Helper()
	crypto := cryptoadapter.Default{}
	var folderKey [16]byte
	copy(folderKey[:], handle[:])

	attr, err := nodegraph.EncryptAttrBlob(crypto, folderKey, nodegraph.Attributes{Name: name})
	require.NoError(t, err)

	master, _ := b.Keys.SymmetricKey(nodegraph.ZeroHandle)
	wrapped, err := crypto.AESECBEncrypt(master, folderKey[:])
	require.NoError(t, err)

	payload := fmt.Sprintf(`{"a":"t","t":{"f":[{"h":%q,"p":%q,"t":1,"a":%q,"k":%q}]}}`,
		handle.String(), parent.String(),
		base64.RawURLEncoding.EncodeToString(attr),
		nodegraph.ZeroHandle.String()+":"+base64.RawURLEncoding.EncodeToString(wrapped))
	return json.RawMessage(payload)
}

func TestApplyNewNodeDecrypts(t *testing.T) {
	b, rec, filesRoot := newTestBinder(t)
	p := New("session-tag")
	b.RegisterAll(p)

	folder := testHandle(10)
	err := p.Apply(Response{
		Packets: []Packet{{Tag: TagNewNode, Payload: wireFolder(t, b, folder, filesRoot, "docs")}},
		SN:      "sn1",
	})
	require.NoError(t, err)

	n := b.Graph.Get(folder)
	require.NotNil(t, n)
	assert.True(t, n.Decrypted)
	assert.Equal(t, "docs", n.Attrs.Name)
	assert.Equal(t, "sn1", p.SN())
	require.Len(t, rec.NodeUpdates, 3)
	assert.Equal(t, []nodegraph.Handle{folder}, rec.NodeUpdates[0])
}

func TestApplyNewNodeWithoutKeyStaysNoKey(t *testing.T) {
	b, _, filesRoot := newTestBinder(t)
	p := New("tag")
	b.RegisterAll(p)

	// Key wrapped under a share key the binder does not hold.
	unknown := testHandle(42)
	payload := fmt.Sprintf(`{"a":"t","t":{"f":[{"h":%q,"p":%q,"t":1,"k":"%s:%s"}]}}`,
		testHandle(11).String(), filesRoot.String(),
		unknown.String(), base64.RawURLEncoding.EncodeToString(make([]byte, 16)))
	require.NoError(t, p.Apply(Response{Packets: []Packet{{Tag: TagNewNode, Payload: json.RawMessage(payload)}}}))

	n := b.Graph.Get(testHandle(11))
	require.NotNil(t, n)
	assert.True(t, n.IsNoKey())
}

func TestOriginSuppression(t *testing.T) {
	b, rec, filesRoot := newTestBinder(t)
	p := New("this-session")
	b.RegisterAll(p)

	payload := wireFolder(t, b, testHandle(12), filesRoot, "mine")
	withOrigin := append([]byte(`{"ou":"this-session",`), payload[1:]...)

	require.NoError(t, p.Apply(Response{Packets: []Packet{{
		Tag: TagNewNode, Origin: "this-session", Payload: withOrigin,
	}}}))
	assert.Nil(t, b.Graph.Get(testHandle(12)), "own packets must be suppressed")
	assert.Empty(t, rec.NodeUpdates)
}

func TestApplySubtreeDelete(t *testing.T) {
	b, rec, filesRoot := newTestBinder(t)
	p := New("tag")
	b.RegisterAll(p)

	parent, child := testHandle(20), testHandle(21)
	require.NoError(t, p.Apply(Response{Packets: []Packet{
		{Tag: TagNewNode, Payload: wireFolder(t, b, parent, filesRoot, "top")},
		{Tag: TagNewNode, Payload: wireFolder(t, b, child, parent, "nested")},
	}}))
	rec.NodeUpdates = nil

	del := json.RawMessage(fmt.Sprintf(`{"a":"d","n":%q}`, parent.String()))
	require.NoError(t, p.Apply(Response{Packets: []Packet{{Tag: TagSubtreeDelete, Payload: del}}}))

	assert.Nil(t, b.Graph.Get(parent))
	assert.Nil(t, b.Graph.Get(child))
	require.Len(t, rec.NodeUpdates, 3)
	assert.Len(t, rec.NodeUpdates[2], 2)
}

func TestApplyInboundShareAndKeyDistribution(t *testing.T) {
	b, _, filesRoot := newTestBinder(t)
	p := New("tag")
	b.RegisterAll(p)

	owner := testHandle(30)
	b.Users.Put(account.NewUser(owner, "peer@example.com"))

	root := testHandle(31)
	require.NoError(t, p.Apply(Response{Packets: []Packet{
		{Tag: TagNewNode, Payload: wireFolder(t, b, root, filesRoot, "shared")},
	}}))

	crypto := cryptoadapter.Default{}
	shareKey := []byte("share-key-16byte")
	master, _ := b.Keys.SymmetricKey(nodegraph.ZeroHandle)
	wrapped, err := crypto.AESECBEncrypt(master, shareKey)
	require.NoError(t, err)

	sharePkt := json.RawMessage(fmt.Sprintf(`{"a":"s","n":%q,"o":%q,"r":1,"k":%q}`,
		root.String(), owner.String(), base64.RawURLEncoding.EncodeToString(wrapped)))
	require.NoError(t, p.Apply(Response{Packets: []Packet{{Tag: TagShareAdd, Payload: sharePkt}}}))

	in := b.Shares.Inbound(root)
	require.NotNil(t, in)
	assert.Equal(t, owner, in.Owner)
	assert.Equal(t, account.AccessReadWrite, in.Access)
	assert.Equal(t, shareKey, in.Key)
	_, held := b.Keys.ShareKey(root)
	assert.True(t, held, "share key must be registered for future node resolution")

	// Revoke: access level absent.
	revoke := json.RawMessage(fmt.Sprintf(`{"a":"s","n":%q,"o":%q}`, root.String(), owner.String()))
	require.NoError(t, p.Apply(Response{Packets: []Packet{{Tag: TagShareAdd, Payload: revoke}}}))
	assert.Nil(t, b.Shares.Inbound(root))
}

func TestApplyOutboundSharePendingUpgrade(t *testing.T) {
	b, _, filesRoot := newTestBinder(t)
	p := New("tag")
	b.RegisterAll(p)

	root := testHandle(40)
	require.NoError(t, p.Apply(Response{Packets: []Packet{
		{Tag: TagNewNode, Payload: wireFolder(t, b, root, filesRoot, "outgoing")},
	}}))

	pending := json.RawMessage(fmt.Sprintf(`{"a":"s2","n":%q,"r":0,"p":"pcr1"}`, root.String()))
	require.NoError(t, p.Apply(Response{Packets: []Packet{{Tag: TagShareUpdate, Payload: pending}}}))

	out := b.Shares.Outbound(root)
	require.NotNil(t, out)
	require.Len(t, out.Peers, 1)
	assert.True(t, out.Peers[0].Peer.IsZero())

	peer := testHandle(41)
	upgrade := json.RawMessage(fmt.Sprintf(`{"a":"s2","n":%q,"u":%q,"r":0,"p":"pcr1"}`, root.String(), peer.String()))
	require.NoError(t, p.Apply(Response{Packets: []Packet{{Tag: TagShareUpdate, Payload: upgrade}}}))

	require.Len(t, out.Peers, 1, "pending placeholder upgrades in place, no duplicate entry")
	assert.Equal(t, peer, out.Peers[0].Peer)
	assert.Empty(t, out.Peers[0].PCRID)
}

func TestApplyContactAndEmailChange(t *testing.T) {
	b, rec, _ := newTestBinder(t)
	p := New("tag")
	b.RegisterAll(p)

	contact := testHandle(50)
	pkt := json.RawMessage(fmt.Sprintf(`{"a":"c","u":[{"u":%q,"m":"Friend@Example.com","c":2}]}`, contact.String()))
	require.NoError(t, p.Apply(Response{Packets: []Packet{{Tag: TagContact, Payload: pkt}}}))

	u := b.Users.Get(contact)
	require.NotNil(t, u)
	assert.Equal(t, "friend@example.com", u.Email)
	assert.Equal(t, account.VisibilityVisible, u.Visibility)
	assert.Contains(t, rec.Calls, "users_updated")

	se := json.RawMessage(fmt.Sprintf(`{"a":"se","u":%q,"e":"new@example.com"}`, contact.String()))
	require.NoError(t, p.Apply(Response{Packets: []Packet{{Tag: TagEmailChanged, Payload: se}}}))
	assert.Equal(t, "new@example.com", b.Users.Get(contact).Email)
	assert.Equal(t, u, b.Users.GetByEmail("NEW@example.com"))
}

func TestApplyPCRLifecycle(t *testing.T) {
	b, rec, _ := newTestBinder(t)
	p := New("tag")
	b.RegisterAll(p)

	ipc := json.RawMessage(`{"a":"ipc","p":"req1","m":"them@example.com","e":"me@example.com","msg":"hi","ts":1700000000}`)
	require.NoError(t, p.Apply(Response{Packets: []Packet{{Tag: TagIncomingPCR, Payload: ipc}}}))

	pcr := b.PCRs.Get("req1")
	require.NotNil(t, pcr)
	assert.Equal(t, account.DirectionIncoming, pcr.Direction)
	assert.False(t, pcr.IsDeleted())
	assert.Contains(t, rec.Calls, "pcrs_updated")

	upci := json.RawMessage(`{"a":"upci","p":"req1","s":2,"uts":1700000100}`)
	require.NoError(t, p.Apply(Response{Packets: []Packet{{Tag: TagUpdateIncomingPC, Payload: upci}}}))
	assert.True(t, b.PCRs.Get("req1").IsDeleted())
}

func TestApplyPublicLink(t *testing.T) {
	b, _, filesRoot := newTestBinder(t)
	p := New("tag")
	b.RegisterAll(p)

	node := testHandle(60)
	require.NoError(t, p.Apply(Response{Packets: []Packet{
		{Tag: TagNewNode, Payload: wireFolder(t, b, node, filesRoot, "published")},
	}}))

	ph := json.RawMessage(fmt.Sprintf(`{"a":"ph","h":%q,"ph":"AbCdEf12"}`, node.String()))
	require.NoError(t, p.Apply(Response{Packets: []Packet{{Tag: TagPublicLink, Payload: ph}}}))
	link, ok := b.PublicLink(node)
	assert.True(t, ok)
	assert.Equal(t, "AbCdEf12", link)

	takedown := json.RawMessage(fmt.Sprintf(`{"a":"ph","h":%q,"ph":"AbCdEf12","d":1}`, node.String()))
	require.NoError(t, p.Apply(Response{Packets: []Packet{{Tag: TagPublicLink, Payload: takedown}}}))
	_, ok = b.PublicLink(node)
	assert.False(t, ok)
}

func TestMalformedPacketSkipped(t *testing.T) {
	b, _, _ := newTestBinder(t)
	p := New("tag")
	b.RegisterAll(p)

	require.NoError(t, p.Apply(Response{Packets: []Packet{
		{Tag: TagSubtreeDelete, Payload: json.RawMessage(`{"a":"d","n":12345}`)},
	}, SN: "sn9"}))
	assert.Equal(t, "sn9", p.SN(), "a skipped element still lets the batch commit")
}
