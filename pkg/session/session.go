// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

// Package session ties the request pipeline, event processor, node graph,
// and account state into one logged-in session: it owns the account keys,
// answers key lookups for the node resolver, persists state at
// action-packet-batch boundaries, and performs the login / fetchnodes /
// resume / logout choreography.
package session

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"hash/fnv"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"coredrive.io/core/pkg/account"
	"coredrive.io/core/pkg/apipipeline"
	"coredrive.io/core/pkg/cache"
	"coredrive.io/core/pkg/commands"
	"coredrive.io/core/pkg/coreerrs"
	"coredrive.io/core/pkg/cryptoadapter"
	"coredrive.io/core/pkg/eventstream"
	"coredrive.io/core/pkg/hostcallback"
	"coredrive.io/core/pkg/nodegraph"
	"coredrive.io/core/pkg/transfer"
)

// Error is the session error class.
var Error = errs.Class("session")

// Session is the logged-in account context. All methods run on the driver
// goroutine.
type Session struct {
	log      *zap.Logger
	crypto   cryptoadapter.Adapter
	pipeline *apipipeline.Pipeline
	events   *eventstream.Processor
	binder   *eventstream.Binder
	callback hostcallback.Callback

	Graph  *nodegraph.Graph
	Users  *account.Directory
	Shares *account.ShareBook
	PCRs   *account.PCRBook

	state *cache.StateDB

	originTag string
	user      nodegraph.Handle
	sessionID string
	masterKey [16]byte
	privKey   *rsa.PrivateKey
	shareKeys map[nodegraph.Handle][]byte
	loggedIn  bool
}

// New builds a Session around an idle pipeline. The origin tag is the
// per-session random marker carried in mutating commands' `i` field and
// matched against packet `ou` fields for suppression.
func New(pipeline *apipipeline.Pipeline, crypto cryptoadapter.Adapter, callback hostcallback.Callback, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	if callback == nil {
		callback = hostcallback.NoOp{}
	}
	s := &Session{
		log:       log,
		crypto:    crypto,
		pipeline:  pipeline,
		callback:  callback,
		Users:     account.NewDirectory(),
		Shares:    account.NewShareBook(),
		PCRs:      account.NewPCRBook(),
		originTag: newOriginTag(),
		shareKeys: make(map[nodegraph.Handle][]byte),
	}
	s.events = eventstream.New(s.originTag)
	return s
}

func newOriginTag() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// OriginTag returns the session's packet-suppression marker.
func (s *Session) OriginTag() string { return s.originTag }

// SessionID returns the server session token, empty until login completes.
func (s *Session) SessionID() string { return s.sessionID }

// User returns the logged-in user's handle.
func (s *Session) User() nodegraph.Handle { return s.user }

// LoggedIn reports whether login (or resume) has completed.
func (s *Session) LoggedIn() bool { return s.loggedIn }

// Events returns the action-packet processor, for the driver's event loop.
func (s *Session) Events() *eventstream.Processor { return s.events }

// SymmetricKey implements nodegraph.KeySource: the master key answers for
// both the zero handle and the logged-in user's own handle.
func (s *Session) SymmetricKey(owner nodegraph.Handle) ([]byte, bool) {
	if !s.loggedIn {
		return nil, false
	}
	if owner.IsZero() || owner == s.user {
		return s.masterKey[:], true
	}
	return nil, false
}

// ShareKey implements nodegraph.KeySource.
func (s *Session) ShareKey(root nodegraph.Handle) ([]byte, bool) {
	k, ok := s.shareKeys[root]
	return k, ok
}

// RSAPrivateKey implements nodegraph.KeySource.
func (s *Session) RSAPrivateKey() (*rsa.PrivateKey, bool) {
	return s.privKey, s.privKey != nil
}

// SetShareKey implements eventstream.ShareKeySink: share keys arriving in
// `k` or `s` packets become available to the resolver immediately.
func (s *Session) SetShareKey(root nodegraph.Handle, key []byte) {
	s.shareKeys[root] = key
}

// Login enqueues the prelogin/login exchange. Completion is reported via
// the host callback's LoginResult; on success the session holds the master
// key, RSA private key, and session id.
func (s *Session) Login(email, password string) {
	s.pipeline.Enqueue(commands.Prelogin(email, func(pre commands.PreloginResult, err error) {
		if err != nil {
			s.callback.LoginResult(err)
			return
		}
		keys := commands.DeriveLoginKeys(s.crypto, password, pre.Salt)
		s.pipeline.Enqueue(commands.Login(s.crypto, email, keys, func(res commands.LoginResult, err error) {
			if err != nil {
				s.callback.LoginResult(err)
				return
			}
			s.adoptLogin(res)
			s.callback.LoginResult(nil)
		}))
	}))
}

func (s *Session) adoptLogin(res commands.LoginResult) {
	s.user = res.UserHandle
	s.sessionID = res.SessionID
	s.masterKey = res.MasterKey
	s.privKey = res.PrivateKey
	s.loggedIn = true
	s.binder = &eventstream.Binder{
		Graph: nil, // set by FetchNodes/Resume once roots are known
		Crypto:    s.crypto,
		Keys:      s,
		Users:     s.Users,
		Shares:    s.Shares,
		PCRs:      s.PCRs,
		Callback:  s.callback,
		ShareKeys: s,
		Self:      s.user,
	}
}

// AttachState derives the cache key from the session and binds the state
// DB; must be called after login (or before Resume) with the store the
// host opened for this account.
func (s *Session) AttachState(store cache.Store) error {
	if !s.loggedIn {
		return Error.New("no session to derive a cache key from")
	}
	key, err := cache.DeriveCacheKey(s.crypto, s.masterKey, s.sessionID)
	if err != nil {
		return err
	}
	s.state = cache.NewStateDB(store, s.crypto, key)
	return nil
}

// FetchNodes enqueues the full-tree fetch and, on response, bootstraps the
// graph, seeds inbound share keys, starts the event stream at the returned
// sequence number, and persists the result. Completion is reported via
// FetchNodesResult.
func (s *Session) FetchNodes(ctx context.Context) {
	s.pipeline.Enqueue(commands.FetchNodes(func(res commands.FetchNodesResult, err error) {
		if err != nil {
			s.callback.FetchNodesResult(err)
			return
		}
		if err := s.bootstrap(ctx, res); err != nil {
			s.callback.FetchNodesResult(err)
			return
		}
		s.callback.FetchNodesResult(nil)
	}))
}

func (s *Session) bootstrap(ctx context.Context, res commands.FetchNodesResult) error {
	var files, inbox, rubbish nodegraph.Handle
	for _, w := range res.Nodes {
		h, err := nodegraph.ParseHandle(w.Handle)
		if err != nil {
			continue
		}
		switch w.Type {
		case commands.WireTypeRoot:
			files = h
		case commands.WireTypeInbox:
			inbox = h
		case commands.WireTypeRubbish:
			rubbish = h
		}
	}
	if files.IsZero() {
		return Error.New("fetchnodes response carries no files root")
	}

	s.Graph = nodegraph.NewGraph(files, inbox, rubbish)
	s.binder.Graph = s.Graph
	s.binder.RegisterAll(s.events)

	for _, ok := range res.OK {
		root, err := nodegraph.ParseHandle(ok.Root)
		if err != nil {
			continue
		}
		wrapped, err := base64.RawURLEncoding.DecodeString(ok.Key)
		if err != nil {
			continue
		}
		key, err := s.crypto.AESECBDecrypt(s.masterKey[:], wrapped)
		if err != nil {
			continue
		}
		s.shareKeys[root] = key
	}

	// Wire order places parents before children, but NO_KEY or reordered
	// parents can defer an import; retry the remainder until a pass makes
	// no progress.
	pendingNodes := make([]commands.WireNode, 0, len(res.Nodes))
	for _, w := range res.Nodes {
		if w.Type != commands.WireTypeRoot && w.Type != commands.WireTypeInbox && w.Type != commands.WireTypeRubbish {
			pendingNodes = append(pendingNodes, w)
		}
	}
	for len(pendingNodes) > 0 {
		var deferredNodes []commands.WireNode
		for _, w := range pendingNodes {
			if _, err := s.binder.ImportNode(w); err != nil {
				deferredNodes = append(deferredNodes, w)
			}
		}
		if len(deferredNodes) == len(pendingNodes) {
			s.log.Warn("dropping unattachable nodes from fetch", zap.Int("count", len(deferredNodes)))
			break
		}
		pendingNodes = deferredNodes
	}

	s.queueRewrites()
	s.events.SetSN(res.SN)

	if s.state != nil {
		if err := s.PersistAll(ctx); err != nil {
			return err
		}
		// The bootstrap snapshot flushes immediately: there is no packet
		// boundary yet, and resume depends on this snapshot being durable.
		return s.state.Flush(ctx)
	}
	return nil
}

// queueRewrites drains resolver-issued key rewrites into commands so
// future loads skip asymmetric work.
func (s *Session) queueRewrites() {
	for _, rw := range s.binder.DrainRewrites() {
		s.pipeline.Enqueue(commands.KeyRewrite(rw.Node, rw.SymmetricKey, nil))
	}
}

// ApplyEvents runs one decoded /wsc response through the processor and
// performs the batch-boundary work: key rewrites queued by the resolver,
// state rows for everything touched, and a commit (deferred if a command
// batch is mid-flight, coalescing with the next boundary).
func (s *Session) ApplyEvents(ctx context.Context, resp eventstream.Response) error {
	if s.binder == nil || s.Graph == nil {
		return Error.New("events before fetchnodes")
	}
	if err := s.events.Apply(resp); err != nil {
		return err
	}
	s.queueRewrites()

	if s.state == nil {
		return nil
	}
	if err := s.PersistAll(ctx); err != nil {
		return err
	}
	if s.pipeline.InFlight() {
		s.state.DeferCommit()
	}
	return s.state.Commit(ctx)
}

// CompleteUpload issues the node-creation commands for a finished upload:
// one putnodes per placement, every node sharing the same attribute blob
// and wrapped key, so a dedup'd transfer yields distinct handles with
// identical key-derived fields. The attribute blob carries the transfer's
// fingerprint for future dedup against these nodes.
func (s *Session) CompleteUpload(t *transfer.Transfer, name string, key [32]byte, uploadToken []byte, onResult func(commands.PutNodesResult, error)) error {
	if !s.loggedIn {
		return Error.New("not logged in")
	}
	material := nodegraph.UnfoldFileKey(key)
	attr, err := nodegraph.EncryptAttrBlob(s.crypto, material.AESKey, nodegraph.Attributes{
		Name:        name,
		Fingerprint: t.Fingerprint.Serialize(),
	})
	if err != nil {
		return err
	}
	wrapped, err := s.crypto.AESECBEncrypt(s.masterKey[:], key[:])
	if err != nil {
		return Error.Wrap(err)
	}

	for _, placement := range t.Placements {
		s.pipeline.Enqueue(commands.PutNodes(placement.NodeHandle, s.originTag, []commands.NewNode{{
			Type:          commands.WireTypeFile,
			EncryptedAttr: attr,
			WrappedKey:    wrapped,
			UploadToken:   uploadToken,
		}}, onResult))
	}
	return nil
}

// CreateFolder creates one folder named name under parent, with a fresh
// random folder key wrapped under the master key.
func (s *Session) CreateFolder(parent nodegraph.Handle, name string, onResult func(commands.PutNodesResult, error)) error {
	if !s.loggedIn {
		return Error.New("not logged in")
	}
	var folderKey [16]byte
	if _, err := rand.Read(folderKey[:]); err != nil {
		return Error.Wrap(err)
	}
	attr, err := nodegraph.EncryptAttrBlob(s.crypto, folderKey, nodegraph.Attributes{Name: name})
	if err != nil {
		return err
	}
	wrapped, err := s.crypto.AESECBEncrypt(s.masterKey[:], folderKey[:])
	if err != nil {
		return Error.Wrap(err)
	}
	s.pipeline.Enqueue(commands.PutNodes(parent, s.originTag, []commands.NewNode{{
		Type:          commands.WireTypeFolder,
		EncryptedAttr: attr,
		WrappedKey:    wrapped,
	}}, onResult))
	return nil
}

// MoveNode enqueues the server-side reparent of node under newParent.
func (s *Session) MoveNode(node, newParent nodegraph.Handle, onResult func(error)) {
	s.pipeline.Enqueue(commands.Move(node, newParent, s.originTag, onResult))
}

// Logout cancels in-flight work, purges the node graph and cached keys,
// and drops the session id, per the cancellation contract: intent is
// marked immediately, the server command is best-effort. preserveUser
// keeps the logged-in user's directory entry for re-login UX.
func (s *Session) Logout(preserveUser bool) {
	s.pipeline.Cancel(coreerrs.New(coreerrs.KindAuthInvalid, coreerrs.CodeSessionID, Error.New("logged out")))
	s.pipeline.Enqueue(commands.Logout(func(err error) {
		s.callback.LogoutResult(err)
	}))

	self := s.Users.Get(s.user)
	s.Graph = nil
	s.Users = account.NewDirectory()
	s.Shares = account.NewShareBook()
	s.PCRs = account.NewPCRBook()
	if preserveUser && self != nil {
		s.Users.Put(self)
	}
	s.shareKeys = make(map[nodegraph.Handle][]byte)
	s.masterKey = [16]byte{}
	s.privKey = nil
	s.sessionID = ""
	s.loggedIn = false
	s.binder = nil
	s.state = nil
	s.events.Stop()
}

// nodeRecord is the persisted form of one graph node: key material and
// attributes already resolved, so resume skips all crypto.
type nodeRecord struct {
	Handle      string `json:"h"`
	Parent      string `json:"p,omitempty"`
	Type        int    `json:"t"`
	Owner       string `json:"u,omitempty"`
	Size        int64  `json:"s,omitempty"`
	Created     int64  `json:"ts,omitempty"`
	Key         []byte `json:"k,omitempty"`
	ShareKey    []byte `json:"sk,omitempty"`
	Attr        []byte `json:"a,omitempty"`
	Name        string `json:"n,omitempty"`
	Fingerprint string `json:"fp,omitempty"`
	Decrypted   bool   `json:"dec"`
}

type userRecord struct {
	Handle     string `json:"u"`
	Email      string `json:"m"`
	Visibility int    `json:"c"`
}

type pcrRecord struct {
	ID         string `json:"p"`
	Originator string `json:"m"`
	Target     string `json:"e"`
	Direction  int    `json:"d"`
	Message    string `json:"msg,omitempty"`
	Created    int64  `json:"ts,omitempty"`
	Updated    int64  `json:"uts,omitempty"`
}

// PersistAll buffers state rows for the sequence number, every node, every
// user, and every pending contact request. Rows are buffered, not
// committed; ApplyEvents commits at batch boundaries, and bootstrap calls
// Flush directly.
func (s *Session) PersistAll(ctx context.Context) error {
	if s.state == nil {
		return Error.New("no state store attached")
	}
	if err := s.state.Put(cache.RecordSCSN, 0, []byte(s.events.SN())); err != nil {
		return err
	}
	for _, h := range s.Graph.AllHandles() {
		n := s.Graph.Get(h)
		if n == nil {
			continue
		}
		rec := nodeRecord{
			Handle:    n.Handle.String(),
			Parent:    n.Parent.String(),
			Type:      int(n.Type),
			Size:      n.Size,
			Created:   n.Created.Unix(),
			Key:       n.Key,
			ShareKey:  n.ShareKey,
			Attr:      n.AttrCiphertext,
			Name:      n.Attrs.Name,
			Decrypted: n.Decrypted,
		}
		if !n.Owner.IsZero() {
			rec.Owner = n.Owner.String()
		}
		if n.Fingerprint != nil {
			rec.Fingerprint = n.Fingerprint.Serialize()
		}
		blob, err := json.Marshal(rec)
		if err != nil {
			return Error.Wrap(err)
		}
		if err := s.state.Put(cache.RecordNode, handleRow(n.Handle), blob); err != nil {
			return err
		}
	}
	for _, u := range s.Users.All() {
		blob, err := json.Marshal(userRecord{Handle: u.Handle.String(), Email: u.Email, Visibility: int(u.Visibility)})
		if err != nil {
			return Error.Wrap(err)
		}
		if err := s.state.Put(cache.RecordUser, handleRow(u.Handle), blob); err != nil {
			return err
		}
	}
	for _, pcr := range s.PCRs.Pending() {
		blob, err := json.Marshal(pcrRecord{
			ID:        pcr.ID, Originator: pcr.Originator, Target: pcr.Target,
			Direction: int(pcr.Direction), Message: pcr.Message,
			Created:   pcr.Created.Unix(), Updated: pcr.Updated.Unix(),
		})
		if err != nil {
			return Error.Wrap(err)
		}
		if err := s.state.Put(cache.RecordPCR, stringRow(pcr.ID), blob); err != nil {
			return err
		}
	}
	return nil
}

// Resume restores a previously persisted session without a network fetch:
// the caller supplies the stored credentials (session id, master key, user
// handle), and the graph, users, and sequence number load from the state
// cache. Reports ok=false when the cache holds no usable snapshot, in
// which case the caller should fall back to a fresh FetchNodes.
func (s *Session) Resume(ctx context.Context, store cache.Store, sessionID string, masterKey [16]byte, user nodegraph.Handle) (ok bool, err error) {
	s.adoptLogin(commands.LoginResult{UserHandle: user, SessionID: sessionID, MasterKey: masterKey})
	if err := s.AttachState(store); err != nil {
		return false, err
	}

	sn, err := s.state.Get(ctx, cache.RecordSCSN, 0)
	if err != nil {
		return false, nil // empty cache: not an error, just nothing to resume
	}

	type pending struct {
		rec nodeRecord
	}
	var nodes []pending
	var files, inbox, rubbish nodegraph.Handle
	err = s.state.IterateType(ctx, cache.RecordNode, func(_ uint64, blob []byte) bool {
		var rec nodeRecord
		if json.Unmarshal(blob, &rec) != nil {
			return true
		}
		nodes = append(nodes, pending{rec})
		return true
	})
	if err != nil {
		return false, err
	}

	// Roots are persisted as ordinary node rows and are recovered here from
	// their node types; a snapshot with no files root returns ok=false.
	for _, p := range nodes {
		switch nodegraph.Type(p.rec.Type) {
		case nodegraph.TypeRoot:
			files, _ = nodegraph.ParseHandle(p.rec.Handle)
		case nodegraph.TypeInbox:
			inbox, _ = nodegraph.ParseHandle(p.rec.Handle)
		case nodegraph.TypeRubbish:
			rubbish, _ = nodegraph.ParseHandle(p.rec.Handle)
		}
	}
	if files.IsZero() {
		return false, nil
	}

	s.Graph = nodegraph.NewGraph(files, inbox, rubbish)
	s.binder.Graph = s.Graph
	s.binder.RegisterAll(s.events)

	remaining := nodes
	for len(remaining) > 0 {
		var deferredNodes []pending
		for _, p := range remaining {
			if nodegraph.Type(p.rec.Type) == nodegraph.TypeRoot ||
				nodegraph.Type(p.rec.Type) == nodegraph.TypeInbox ||
				nodegraph.Type(p.rec.Type) == nodegraph.TypeRubbish {
				continue
			}
			if err := s.restoreNode(p.rec); err != nil {
				deferredNodes = append(deferredNodes, p)
			}
		}
		if len(deferredNodes) == len(remaining) {
			break
		}
		remaining = deferredNodes
	}

	err = s.state.IterateType(ctx, cache.RecordUser, func(_ uint64, blob []byte) bool {
		var rec userRecord
		if json.Unmarshal(blob, &rec) != nil {
			return true
		}
		h, err := nodegraph.ParseHandle(rec.Handle)
		if err != nil {
			return true
		}
		u := account.NewUser(h, rec.Email)
		u.Visibility = account.Visibility(rec.Visibility)
		s.Users.Put(u)
		return true
	})
	if err != nil {
		return false, err
	}

	err = s.state.IterateType(ctx, cache.RecordPCR, func(_ uint64, blob []byte) bool {
		var rec pcrRecord
		if json.Unmarshal(blob, &rec) != nil {
			return true
		}
		s.PCRs.Put(&account.PendingContactRequest{
			ID:        rec.ID, Originator: rec.Originator, Target: rec.Target,
			Direction: account.Direction(rec.Direction), Message: rec.Message,
		})
		return true
	})
	if err != nil {
		return false, err
	}

	s.events.SetSN(string(sn))
	return true, nil
}

func (s *Session) restoreNode(rec nodeRecord) error {
	h, err := nodegraph.ParseHandle(rec.Handle)
	if err != nil {
		return Error.Wrap(err)
	}
	n := &nodegraph.Node{
		Handle:         h,
		Type:           nodegraph.Type(rec.Type),
		Size:           rec.Size,
		Key:            rec.Key,
		ShareKey:       rec.ShareKey,
		AttrCiphertext: rec.Attr,
		Decrypted:      rec.Decrypted,
	}
	if rec.Parent != "" {
		if n.Parent, err = nodegraph.ParseHandle(rec.Parent); err != nil {
			return Error.Wrap(err)
		}
	}
	if rec.Owner != "" {
		n.Owner, _ = nodegraph.ParseHandle(rec.Owner)
	}
	n.Attrs.Name = rec.Name
	if rec.Fingerprint != "" {
		if fp, err := nodegraph.ParseFingerprint(rec.Fingerprint); err == nil {
			n.Fingerprint = &fp
		}
	}
	return s.Graph.Put(n)
}

// handleRow packs a 6-byte handle into the row id space.
func handleRow(h nodegraph.Handle) uint64 {
	var buf [8]byte
	copy(buf[2:], h[:])
	return binary.BigEndian.Uint64(buf[:])
}

// stringRow derives a row id from a string id (pending contact request
// ids are opaque server strings, not handles).
func stringRow(id string) uint64 {
	f := fnv.New64a()
	_, _ = f.Write([]byte(id))
	return f.Sum64() >> 4 // keep the shifted id within rowKey's 60-bit space
}
