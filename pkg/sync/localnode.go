// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

// Package sync implements the sync reconciler: syncdown/syncup
// reconciliation between a local directory tree and a remote node subtree,
// the nagle delay and version-rate-limiting rules on upload, rename/move
// detection, debris rotation, and scan-failure recovery.
package sync

import (
	"time"

	"github.com/zeebo/errs"

	"coredrive.io/core/pkg/backoff"
	"coredrive.io/core/pkg/nodegraph"
)

// Error is the sync error class.
var Error = errs.Class("sync")

// LocalState is a LocalNode's reconciliation status.
type LocalState int

// States.
const (
	LocalSynced LocalState = iota
	LocalPending
	LocalSyncing
)

// LocalNode mirrors a Node in one sync tree: local name, local
// fingerprint, parent LocalNode, optional associated Node, state, deletion
// flag, nagle deadline.
type LocalNode struct {
	ID     string // stable local identity, e.g. inode-derived or path-derived
	Name   string
	Parent string // parent LocalNode's ID, "" for the sync root

	Fingerprint *nodegraph.Fingerprint
	IsFolder    bool

	// Node is the associated remote node handle. The reference is weak:
	// callers must revalidate against the graph on each use.
	Node nodegraph.Handle

	State   LocalState
	Deleted bool
	ModTime time.Time

	nagle backoff.Deadline

	// recentVersions counts uploads proposed within versionWindow of
	// lastVersionUpload, feeding VersionUploadDelay.
	recentVersions    int
	lastVersionUpload time.Time
}

// versionWindow is the recent-upload window the version-rate-limit counter
// resets against: a gap this long since the last proposed upload means the
// file is no longer "actively churning".
const versionWindow = time.Hour

// RecordVersionUpload marks that an upload of n is about to be proposed,
// advancing the recent-version counter VersionUploadDelay consults. A gap
// of more than versionWindow since the last recorded upload resets the
// counter, since the rate limit only targets files version-churning in a
// tight window.
func (n *LocalNode) RecordVersionUpload(now time.Time) {
	if n.lastVersionUpload.IsZero() || now.Sub(n.lastVersionUpload) > versionWindow {
		n.recentVersions = 0
	}
	n.recentVersions++
	n.lastVersionUpload = now
}

// VersionThrottled reports whether n's next upload must still wait out
// VersionUploadDelay's cooldown.
func (n *LocalNode) VersionThrottled(now time.Time) bool {
	delay := VersionUploadDelay(n.recentVersions)
	return delay > 0 && now.Before(n.lastVersionUpload.Add(delay))
}

// ArmNagle starts (or restarts) the nagle delay from now: a file whose
// size or mtime just changed is not uploaded until it has been stable for
// the nagle interval.
func (n *LocalNode) ArmNagle(now time.Time, interval time.Duration) {
	n.nagle.Arm(now, interval)
}

// NagleSettled reports whether the file has been stable long enough to
// upload.
func (n *LocalNode) NagleSettled(now time.Time) bool {
	return !n.nagle.Armed() || n.nagle.Fired(now)
}

// Tree is an arena of LocalNodes keyed by ID, mirroring nodegraph.Graph's
// handle-arena shape for the local side of a sync pair.
type Tree struct {
	nodes map[string]*LocalNode
	children map[string]map[string]struct{}
}

// NewTree returns an empty Tree.
func NewTree() *Tree {
	return &Tree{
		nodes:    make(map[string]*LocalNode),
		children: make(map[string]map[string]struct{}),
	}
}

// Put inserts or replaces n, updating the parent's child index.
func (t *Tree) Put(n *LocalNode) {
	if existing, ok := t.nodes[n.ID]; ok && existing.Parent != n.Parent {
		if siblings, ok := t.children[existing.Parent]; ok {
			delete(siblings, n.ID)
		}
	}
	t.nodes[n.ID] = n
	if t.children[n.Parent] == nil {
		t.children[n.Parent] = make(map[string]struct{})
	}
	t.children[n.Parent][n.ID] = struct{}{}
}

// Get returns the LocalNode with the given id, or nil.
func (t *Tree) Get(id string) *LocalNode { return t.nodes[id] }

// Children returns id's child LocalNodes.
func (t *Tree) Children(id string) []*LocalNode {
	out := make([]*LocalNode, 0, len(t.children[id]))
	for childID := range t.children[id] {
		out = append(out, t.nodes[childID])
	}
	return out
}

// Remove deletes the LocalNode with the given id and detaches it from its
// parent's child index.
func (t *Tree) Remove(id string) {
	n, ok := t.nodes[id]
	if !ok {
		return
	}
	if siblings, ok := t.children[n.Parent]; ok {
		delete(siblings, id)
	}
	delete(t.nodes, id)
	delete(t.children, id)
}

// GCOrphans removes every LocalNode whose associated remote handle is set
// but no longer present in live (the current set of remote handles still
// in the graph): a remote-node removal orphans all LocalNodes referencing
// it, collected here at the next pass. Returns the removed ids.
func (t *Tree) GCOrphans(live map[nodegraph.Handle]struct{}) []string {
	var orphaned []string
	for id, n := range t.nodes {
		if n.Node.IsZero() {
			continue
		}
		if _, ok := live[n.Node]; !ok {
			orphaned = append(orphaned, id)
		}
	}
	for _, id := range orphaned {
		t.Remove(id)
	}
	return orphaned
}
