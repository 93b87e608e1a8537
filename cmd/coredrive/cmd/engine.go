// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package cmd

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"coredrive.io/core/pkg/commands"
	"coredrive.io/core/pkg/coreerrs"
	"coredrive.io/core/pkg/cryptoadapter"
	"coredrive.io/core/pkg/directread"
	"coredrive.io/core/pkg/fsadapter"
	"coredrive.io/core/pkg/hostcallback"
	"coredrive.io/core/pkg/nodegraph"
	"coredrive.io/core/pkg/ranger"
	synctree "coredrive.io/core/pkg/sync"
	"coredrive.io/core/pkg/transfer"
)

// nagleInterval is how long a changed local file must sit still before the
// reconciler proposes its upload.
const nagleInterval = 5 * time.Second

// syncPair is one (local directory, remote folder) pair the driver keeps
// reconciled.
type syncPair struct {
	localRoot  string
	remoteRoot nodegraph.Handle

	dirty      bool
	rescanAt   time.Time
	totalNodes int
}

// parseSyncSpec parses "--sync <local-path>=<remote-handle>".
func parseSyncSpec(spec string) (*syncPair, error) {
	local, remote, ok := strings.Cut(spec, "=")
	if local == "" || remote == "" || !ok {
		return nil, fmt.Errorf("sync spec must be <local-path>=<remote-handle>, got %q", spec)
	}
	h, err := nodegraph.ParseHandle(remote)
	if err != nil {
		return nil, err
	}
	return &syncPair{localRoot: local, remoteRoot: h, dirty: true}, nil
}

// streamRequest is one "--stream <handle>:<offset>:<length>" playback
// range request, served through the direct-read engine.
type streamRequest struct {
	node    nodegraph.Handle
	offset  int64
	length  int64
	started bool
}

func parseStreamSpec(spec string) (*streamRequest, error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("stream spec must be <handle>:<offset>:<length>, got %q", spec)
	}
	h, err := nodegraph.ParseHandle(parts[0])
	if err != nil {
		return nil, err
	}
	offset, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, err
	}
	length, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, err
	}
	return &streamRequest{node: h, offset: offset, length: length}, nil
}

// downloadJob carries everything a worker needs to execute one admitted
// download; the URL grant is filled in by the admission command's
// response.
type downloadJob struct {
	transfer  *transfer.Transfer
	node      nodegraph.Handle
	material  nodegraph.FileKeyMaterial
	localPath string

	requested bool
	running   bool
	urls      []string
}

// uploadJob mirrors downloadJob for the upload direction; the node key is
// generated fresh at admission and folded once the meta-MAC is known.
type uploadJob struct {
	transfer  *transfer.Transfer
	parent    nodegraph.Handle
	name      string
	localPath string
	size      int64
	aesKey    [16]byte
	nonce     [8]byte

	requested bool
	running   bool
	url       string
}

// onFSEvent marks the sync pair dirty for the next tick; an overflow means
// the notification stream lost events, so a full rescan is scheduled with
// the size-scaled backoff instead.
func (d *driver) onFSEvent(now time.Time, ev fsadapter.Event) {
	if d.sync == nil {
		return
	}
	if ev.Kind == fsadapter.EventOverflow {
		d.sync.rescanAt = now.Add(synctree.ScanFailureBackoff(d.sync.totalNodes))
		d.sync.dirty = true
		d.log.Warn("fs notifications overflowed, full rescan scheduled",
			zap.Time("at", d.sync.rescanAt))
		return
	}
	d.sync.dirty = true
}

// syncTick runs one two-pass reconciliation of the sync pair when the
// remote state is current and something local changed (or a scheduled
// rescan came due).
func (d *driver) syncTick(ctx context.Context, now time.Time) {
	if d.sync == nil || d.session.Graph == nil {
		return
	}
	if !d.sync.dirty || now.Before(d.sync.rescanAt) {
		return
	}
	d.sync.dirty = false
	d.sync.totalNodes = 0
	d.reconcileDir(ctx, now, d.sync.localRoot, "", d.sync.remoteRoot)
	d.localTree.GCOrphans(d.liveHandles())
}

func (d *driver) liveHandles() map[nodegraph.Handle]struct{} {
	live := make(map[nodegraph.Handle]struct{})
	for _, h := range d.session.Graph.AllHandles() {
		live[h] = struct{}{}
	}
	return live
}

// reconcileDir scans one local directory, pairs it against the remote
// folder's decrypted children, and executes the planned actions, recursing
// into folders present on both sides.
func (d *driver) reconcileDir(ctx context.Context, now time.Time, dir, parentID string, remote nodegraph.Handle) {
	locals := d.scanLocal(now, dir, parentID)
	remotes := d.remoteChildren(remote)
	d.sync.totalNodes += len(locals)

	for _, action := range synctree.SyncDown(locals, remotes) {
		d.runSyncDownAction(now, dir, action)
	}
	for _, action := range synctree.SyncUp(now, locals, remotes, graphFingerprints{d}) {
		d.runSyncUpAction(remote, action)
	}

	remoteByName := make(map[string]synctree.RemoteChild, len(remotes))
	for _, r := range remotes {
		remoteByName[r.Name] = r
	}
	for _, l := range locals {
		if !l.IsFolder || l.Deleted {
			continue
		}
		if r, ok := remoteByName[l.Name]; ok && r.IsFolder {
			l.Node = r.Handle
			d.reconcileDir(ctx, now, filepath.Join(dir, l.Name), l.ID, r.Handle)
		}
	}
}

// scanLocal lists dir and returns its LocalNodes, reusing tree entries so
// nagle and version state survive across scans. Entries known to the tree
// but missing on disk come back flagged Deleted, which is what lets the
// reconciler distinguish a deletion from a file that never existed.
func (d *driver) scanLocal(now time.Time, dir, parentID string) []*synctree.LocalNode {
	infos, err := d.fs.Readdir(dir)
	if err != nil {
		d.log.Debug("local scan failed", zap.String("dir", dir), zap.Error(err))
		return nil
	}

	present := make(map[string]struct{}, len(infos))
	var locals []*synctree.LocalNode
	for _, fi := range infos {
		path := filepath.Join(dir, fi.Name)
		present[path] = struct{}{}

		l := d.localTree.Get(path)
		if l == nil {
			l = &synctree.LocalNode{ID: path, Parent: parentID}
		}
		changed := l.ModTime != fi.ModTime
		l.Name = fi.Name
		l.IsFolder = fi.IsDir
		l.ModTime = fi.ModTime
		l.Deleted = false
		if !fi.IsDir {
			if changed {
				l.ArmNagle(now, nagleInterval)
				l.Fingerprint = nil
			}
			if l.Fingerprint == nil {
				if fp, err := d.localFingerprint(path, fi); err == nil {
					l.Fingerprint = &fp
				}
			}
		}
		d.localTree.Put(l)
		locals = append(locals, l)
	}

	for _, prev := range d.localTree.Children(parentID) {
		if _, ok := present[prev.ID]; !ok {
			prev.Deleted = true
			locals = append(locals, prev)
		}
	}
	return locals
}

func (d *driver) localFingerprint(path string, fi fsadapter.FileInfo) (nodegraph.Fingerprint, error) {
	handle, err := d.fs.Open(path, false, false)
	if err != nil {
		return nodegraph.Fingerprint{}, err
	}
	defer handle.Close()
	return nodegraph.ComputeFingerprint(handle, fi.Size, fi.ModTime.Unix())
}

// remoteChildren converts remote's decrypted graph children into the
// reconciler's comparison form; NO_KEY children are skipped until their
// key arrives.
func (d *driver) remoteChildren(remote nodegraph.Handle) []synctree.RemoteChild {
	var out []synctree.RemoteChild
	for _, h := range d.session.Graph.Children(remote) {
		n := d.session.Graph.Get(h)
		if n == nil || !n.Decrypted {
			continue
		}
		out = append(out, synctree.RemoteChild{
			Handle:      h,
			Name:        n.Attrs.Name,
			IsFolder:    n.Type == nodegraph.TypeFolder,
			Fingerprint: n.Fingerprint,
			ModTime:     n.Created,
		})
	}
	return out
}

// graphFingerprints adapts the graph's fingerprint multimap to the
// reconciler's move-detection query: a match counts as a move only when a
// LocalNode previously associated with that remote file is now deleted.
type graphFingerprints struct{ d *driver }

func (g graphFingerprints) Lookup(fp nodegraph.Fingerprint) (synctree.RemoteChild, bool) {
	for _, h := range g.d.session.Graph.FingerprintMatches(fp) {
		n := g.d.session.Graph.Get(h)
		if n == nil {
			continue
		}
		moved := false
		for _, l := range g.d.allTreeNodes() {
			if l.Node == h && l.Deleted {
				moved = true
				break
			}
		}
		return synctree.RemoteChild{Handle: h, Name: n.Attrs.Name, Fingerprint: n.Fingerprint, ModTime: n.Created}, moved
	}
	return synctree.RemoteChild{}, false
}

func (d *driver) allTreeNodes() []*synctree.LocalNode {
	var out []*synctree.LocalNode
	var walk func(id string)
	walk = func(id string) {
		for _, l := range d.localTree.Children(id) {
			out = append(out, l)
			walk(l.ID)
		}
	}
	walk("")
	return out
}

func (d *driver) runSyncDownAction(now time.Time, dir string, action synctree.Action) {
	switch action.Kind {
	case synctree.ActionDownload:
		d.admitDownload(dir, action.Remote)
	case synctree.ActionCreateLocalFolder:
		path := filepath.Join(dir, action.Remote.Name)
		if err := d.fs.Mkdir(path); err != nil {
			d.log.Debug("mkdir failed", zap.String("path", path), zap.Error(err))
			return
		}
		d.sync.dirty = true // the next scan picks the folder up and recurses
	case synctree.ActionRenameLocal:
		newPath := filepath.Join(dir, action.Remote.Name)
		if err := d.fs.Rename(action.Local.ID, newPath); err != nil {
			d.log.Debug("local rename failed", zap.String("from", action.Local.ID), zap.Error(err))
			return
		}
		d.localTree.Remove(action.Local.ID)
		d.sync.dirty = true
	case synctree.ActionMoveToDebris:
		if !action.Local.Node.IsZero() {
			d.moveToDebris(now, action.Local.Node)
		}
		d.localTree.Remove(action.Local.ID)
	}
}

func (d *driver) runSyncUpAction(remote nodegraph.Handle, action synctree.Action) {
	switch action.Kind {
	case synctree.ActionUpload:
		d.admitUpload(remote, action.Local)
	case synctree.ActionCreateRemoteFolder:
		if err := d.session.CreateFolder(remote, action.Local.Name, nil); err != nil {
			d.log.Debug("remote mkdir failed", zap.String("name", action.Local.Name), zap.Error(err))
		}
	case synctree.ActionMoveRemote:
		d.session.MoveNode(action.Remote.Handle, remote, nil)
	}
}

// moveToDebris parks a remotely-deleted node under the dated debris folder
// inside the rubbish root, creating SyncDebris/yyyy-mm-dd lazily. Until
// the chain exists deletions move to the rubbish root directly; the dated
// folder serves subsequent ones.
func (d *driver) moveToDebris(now time.Time, node nodegraph.Handle) {
	_, _, rubbish := d.session.Graph.Roots()
	target := rubbish
	if !d.debrisFolder.IsZero() {
		target = d.debrisFolder
	} else if !d.debrisPending {
		d.debrisPending = true
		day := now.Format("2006-01-02")
		err := d.session.CreateFolder(rubbish, "SyncDebris", func(res commands.PutNodesResult, err error) {
			if err != nil || len(res.Nodes) == 0 {
				d.debrisPending = false
				return
			}
			parent, parseErr := nodegraph.ParseHandle(res.Nodes[0].Handle)
			if parseErr != nil {
				d.debrisPending = false
				return
			}
			createErr := d.session.CreateFolder(parent, day, func(res commands.PutNodesResult, err error) {
				d.debrisPending = false
				if err != nil || len(res.Nodes) == 0 {
					return
				}
				if h, parseErr := nodegraph.ParseHandle(res.Nodes[0].Handle); parseErr == nil {
					d.debrisFolder = h
				}
			})
			if createErr != nil {
				d.debrisPending = false
			}
		})
		if err != nil {
			d.debrisPending = false
		}
	}
	d.session.MoveNode(node, target, nil)
}

// admitDownload admits (or joins) a download transfer for one remote file
// and remembers the key material and target path its worker will need.
func (d *driver) admitDownload(dir string, r synctree.RemoteChild) {
	n := d.session.Graph.Get(r.Handle)
	if n == nil || !n.Decrypted || len(n.Key) != 32 {
		return
	}
	fp := nodegraph.Fingerprint{}
	if r.Fingerprint != nil {
		fp = *r.Fingerprint
	}
	var raw [32]byte
	copy(raw[:], n.Key)

	t := d.transfers.Admit(transfer.DirectionDownload, fp, n.Size, transfer.Placement{
		NodeHandle: r.Handle,
		LocalPath:  filepath.Join(dir, r.Name),
	})
	if _, ok := d.downloads[t.ID]; ok {
		return
	}
	d.downloads[t.ID] = &downloadJob{
		transfer:  t,
		node:      r.Handle,
		material:  nodegraph.UnfoldFileKey(raw),
		localPath: filepath.Join(dir, r.Name),
	}
}

// admitUpload admits an upload transfer for one settled local file with a
// fresh node key.
func (d *driver) admitUpload(parent nodegraph.Handle, l *synctree.LocalNode) {
	if l.Fingerprint == nil {
		return
	}
	fi, err := d.fs.Stat(l.ID)
	if err != nil {
		return
	}
	t := d.transfers.Admit(transfer.DirectionUpload, *l.Fingerprint, fi.Size, transfer.Placement{
		NodeHandle: parent,
		LocalPath:  l.ID,
	})
	if _, ok := d.uploads[t.ID]; ok {
		return
	}
	job := &uploadJob{transfer: t, parent: parent, name: l.Name, localPath: l.ID, size: fi.Size}
	_, _ = rand.Read(job.aesKey[:])
	_, _ = rand.Read(job.nonce[:])
	d.uploads[t.ID] = job
}

// serviceTransfers requests grants for newly active transfers and hands
// granted jobs to worker goroutines. Workers perform only I/O and crypto;
// every core-state mutation comes back through the completions channel.
func (d *driver) serviceTransfers(ctx context.Context) {
	for id, job := range d.downloads {
		slot, ok := d.slots[id]
		if !ok {
			continue
		}
		if !job.requested {
			job.requested = true
			d.requestDownloadGrant(job)
			continue
		}
		if job.urls != nil && !job.running {
			job.running = true
			j, s := job, slot
			go d.runDownload(ctx, j, s)
		}
	}
	for id, job := range d.uploads {
		slot, ok := d.slots[id]
		if !ok {
			continue
		}
		if !job.requested {
			job.requested = true
			d.requestUploadGrant(job)
			continue
		}
		if job.url != "" && !job.running {
			job.running = true
			j, s := job, slot
			go d.runUpload(ctx, j, s)
		}
	}
}

// Grant callbacks run inside the pipeline's Tick, i.e. already on the
// driver goroutine, so they mutate core state directly.
func (d *driver) requestDownloadGrant(job *downloadJob) {
	d.pipeline.Enqueue(commands.DownloadURL(job.node, func(res commands.DownloadURLResult, err error) {
		if err != nil {
			d.failTransfer(job.transfer, coreerrs.KindNetworkTransient)
			return
		}
		job.urls = res.URLs
		job.transfer.TempURLs = transfer.NewTempURLSet(time.Now(), res.URLs)
	}))
}

func (d *driver) requestUploadGrant(job *uploadJob) {
	d.pipeline.Enqueue(commands.UploadURL(job.size, func(res commands.UploadURLResult, err error) {
		if err != nil {
			d.failTransfer(job.transfer, coreerrs.KindNetworkTransient)
			return
		}
		job.url = res.URL
	}))
}

func (d *driver) failTransfer(t *transfer.Transfer, kind coreerrs.Kind) {
	d.transfers.Fail(t)
	delete(d.slots, t.ID)
	delete(d.downloads, t.ID)
	delete(d.uploads, t.ID)
	d.callback.TransferFailed(t.ID, kind)
}

func (d *driver) completeTransfer(t *transfer.Transfer) {
	d.transfers.Complete(t)
	delete(d.slots, t.ID)
	delete(d.downloads, t.ID)
	delete(d.uploads, t.ID)
	d.callback.TransferComplete(t.ID)
	if d.sync != nil {
		d.sync.dirty = true
	}
}

// runDownload executes one whole download on a worker goroutine: open the
// grant, stream ciphertext, MAC and decrypt each chunk, write the
// plaintext to a staging file, and only rename it into place once the
// meta-MAC verifies.
func (d *driver) runDownload(ctx context.Context, job *downloadJob, slot *transfer.Slot) {
	body, err := d.openDownloadBody(ctx, job)
	if err != nil {
		d.completions <- func() { d.failTransfer(job.transfer, coreerrs.KindNetworkTransient) }
		return
	}
	defer body.Close()

	partPath := job.localPath + ".part"
	out, err := d.fs.Open(partPath, true, false)
	if err != nil {
		d.completions <- func() { d.failTransfer(job.transfer, coreerrs.KindLocalFSPermanent) }
		return
	}
	defer out.Close()

	adapter := cryptoadapter.Default{}
	iv := transfer.CTRIV(job.material.CTRIV, 0)
	stream, err := adapter.NewCTRStream(job.material.AESKey[:], iv[:])
	if err != nil {
		d.completions <- func() { d.failTransfer(job.transfer, coreerrs.KindCrypto) }
		return
	}

	var macs [][16]byte
	for _, c := range transfer.Chunks(job.transfer.Size) {
		ct := make([]byte, c.Length)
		if _, err := io.ReadFull(body, ct); err != nil {
			d.completions <- func() { d.failTransfer(job.transfer, coreerrs.KindNetworkTransient) }
			return
		}

		padded := ct
		if rem := len(padded) % 16; rem != 0 {
			padded = append(append([]byte(nil), ct...), make([]byte, 16-rem)...)
		}
		mac, err := transfer.ChunkMAC(adapter, job.material.AESKey[:], padded)
		if err != nil {
			d.completions <- func() { d.failTransfer(job.transfer, coreerrs.KindCrypto) }
			return
		}
		macs = append(macs, mac)

		plain := make([]byte, len(ct))
		stream.XORKeyStream(plain, ct)
		if _, err := out.WriteAt(plain, c.Offset); err != nil {
			d.completions <- func() { d.failTransfer(job.transfer, coreerrs.KindLocalFSPermanent) }
			return
		}

		c, mac := c, mac
		d.completions <- func() { d.recordChunk(ctx, job.transfer, slot, c, mac) }
	}

	ok, err := transfer.VerifyMetaMAC(adapter, job.material.AESKey[:], macs, job.material.MetaMAC)
	if err != nil || !ok {
		_ = d.fs.Unlink(partPath)
		d.completions <- func() { d.failTransfer(job.transfer, coreerrs.KindCrypto) }
		return
	}

	if err := d.fs.Rename(partPath, job.localPath); err != nil {
		d.completions <- func() { d.failTransfer(job.transfer, coreerrs.KindLocalFSPermanent) }
		return
	}
	d.completions <- func() {
		_ = transfer.Delete(ctx, d.xferStore, job.transfer.ID)
		d.completeTransfer(job.transfer)
	}
}

// recordChunk folds one finished chunk into the transfer's bookkeeping:
// slot accounting feeds the speed meter, the MAC table and contiguous
// position persist for resumption, and the host sees progress.
func (d *driver) recordChunk(ctx context.Context, t *transfer.Transfer, slot *transfer.Slot, c transfer.Chunk, mac [16]byte) {
	conn := slot.IdleConnection()
	r := transfer.ChunkRange{Offset: c.Offset, Length: c.Length}
	slot.Assign(conn, r)
	slot.Finish(conn, r, time.Now())
	t.ChunkMACs[c.Offset] = mac
	t.RecordProgress(c.Offset+c.Length, c.Length)
	_ = transfer.Save(ctx, d.xferStore, t, time.Now())
	d.callback.TransferUpdate(hostcallback.TransferProgress{
		ID:               t.ID,
		BytesTransferred: t.Size - t.Remaining(),
		BytesTotal:       t.Size,
	})
}

// openDownloadBody opens the single-URL or six-way RAID read for the whole
// file.
func (d *driver) openDownloadBody(ctx context.Context, job *downloadJob) (io.ReadCloser, error) {
	if len(job.urls) == 6 {
		rs, err := transfer.NewRAIDScheme()
		if err != nil {
			return nil, err
		}
		var urls [6]string
		copy(urls[:], job.urls)
		return transfer.OpenRAIDDownload(ctx, d.transport.HTTPClient(), urls, 0, job.transfer.Size, rs)
	}
	r, err := ranger.NewHTTPRanger(ctx, d.transport.HTTPClient(), job.urls[0])
	if err != nil {
		return nil, err
	}
	return r.Range(ctx, 0, job.transfer.Size)
}

// runUpload executes one whole upload on a worker goroutine: encrypt and
// MAC every chunk through the bounded worker pool, POST them in order,
// then fold the node key and issue the placements' putnodes.
func (d *driver) runUpload(ctx context.Context, job *uploadJob, slot *transfer.Slot) {
	adapter := cryptoadapter.Default{}
	chunks, err := transfer.EncryptChunks(ctx, d.fs, adapter, job.localPath, job.size,
		job.aesKey[:], job.nonce, d.uploadWorkers)
	if err != nil {
		d.completions <- func() { d.failTransfer(job.transfer, coreerrs.KindLocalFSTransient) }
		return
	}

	var token []byte
	for i, c := range chunks {
		final := i == len(chunks)-1
		resp, err := d.transport.UploadChunk(ctx, job.url, c.Chunk.Offset, c.Ciphertext, final)
		if err != nil {
			d.completions <- func() { d.failTransfer(job.transfer, coreerrs.KindNetworkTransient) }
			return
		}
		if final {
			token = resp
		}

		c := c
		d.completions <- func() { d.recordChunk(ctx, job.transfer, slot, c.Chunk, c.MAC) }
	}

	folded, err := transfer.EncryptMetaMAC(adapter, job.aesKey[:], transfer.FoldMetaMAC(transfer.OrderedMACs(chunks)))
	if err != nil {
		d.completions <- func() { d.failTransfer(job.transfer, coreerrs.KindCrypto) }
		return
	}
	key := nodegraph.FoldFileKey(nodegraph.FileKeyMaterial{
		AESKey:  job.aesKey,
		CTRIV:   job.nonce,
		MetaMAC: folded,
	})

	d.completions <- func() {
		job.transfer.UploadToken = token
		if err := d.session.CompleteUpload(job.transfer, job.name, key, token, nil); err != nil {
			d.failTransfer(job.transfer, coreerrs.KindUnknown)
			return
		}
		_ = transfer.Delete(ctx, d.xferStore, job.transfer.ID)
		d.completeTransfer(job.transfer)
	}
}

// serviceStream drives the --stream playback request through the
// direct-read engine once the node is decrypted: a grant is fetched with
// the same admission command downloads use, then the range streams through
// the manager's limiter-bounded dispatch.
func (d *driver) serviceStream(ctx context.Context) {
	if d.stream == nil || d.stream.started || d.session.Graph == nil {
		return
	}
	n := d.session.Graph.Get(d.stream.node)
	if n == nil || !n.Decrypted || len(n.Key) != 32 {
		return
	}
	d.stream.started = true

	var raw [32]byte
	copy(raw[:], n.Key)
	material := nodegraph.UnfoldFileKey(raw)
	req := d.stream

	d.pipeline.Enqueue(commands.DownloadURL(req.node, func(res commands.DownloadURLResult, err error) {
		if err != nil || len(res.URLs) == 0 {
			d.callback.StreamFailed(req.node, err)
			return
		}
		rg, err := ranger.NewHTTPRanger(ctx, d.transport.HTTPClient(), res.URLs[0])
		if err != nil {
			d.callback.StreamFailed(req.node, err)
			return
		}
		d.reads.Enqueue(directread.Range{
			Node:   req.node,
			Offset: req.offset,
			Length: req.length,
			Sink:   driverSink{d: d, node: req.node},
		}, rg, material.AESKey[:], material.CTRIV)
		d.reads.Dispatch(ctx, cryptoadapter.Default{}, d.ioLimiter)
	}))
}

// driverSink forwards decrypted direct-read buffers to the host callback
// through the completions channel, keeping callback dispatch on the driver
// goroutine.
type driverSink struct {
	d    *driver
	node nodegraph.Handle
}

func (s driverSink) Deliver(delivery directread.Delivery) error {
	s.d.completions <- func() {
		s.d.callback.StreamDelivered(hostcallback.StreamDelivery{
			Handle: s.node,
			Offset: delivery.Offset,
			Data:   delivery.Data,
		})
	}
	return nil
}

func (s driverSink) Fail(err error) {
	s.d.completions <- func() {
		s.d.callback.StreamFailed(s.node, err)
	}
}
