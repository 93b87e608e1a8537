// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package sync

import (
	"time"

	"golang.org/x/text/unicode/norm"

	"coredrive.io/core/pkg/nodegraph"
)

// RemoteChild is the subset of a decrypted remote node's state syncdown
// needs to compare against a LocalNode.
type RemoteChild struct {
	Handle      nodegraph.Handle
	Name        string
	IsFolder    bool
	Fingerprint *nodegraph.Fingerprint
	ModTime     time.Time
}

// ActionKind is what the reconciler decided to do with one child pairing.
type ActionKind int

// Action kinds.
const (
	ActionNone ActionKind = iota
	ActionDownload
	ActionUpload
	ActionRecurseFolder
	ActionCreateLocalFolder
	ActionCreateRemoteFolder
	ActionMoveToDebris
	ActionRenameLocal
	ActionMoveRemote
)

// Action is one proposed reconciliation step; the reconciler only plans —
// executing a download, upload, or move is the transfer engine's and host
// fsadapter's job: the reconciler observes and plans, the transfer
// engine executes.
type Action struct {
	Kind       ActionKind
	Local      *LocalNode
	Remote     RemoteChild
	DebrisPath string
}

// normalizeName applies the Unicode NFC normalization syncdown's
// name-based lookup relies on.
func normalizeName(name string) string {
	return norm.NFC.String(name)
}

// SyncDown compares a local folder's children against the corresponding
// decrypted remote children and returns the actions that propagate remote
// state locally, syncdown(L, R).
func SyncDown(locals []*LocalNode, remotes []RemoteChild) []Action {
	remoteByName := make(map[string]RemoteChild, len(remotes))
	for _, r := range remotes {
		remoteByName[normalizeName(r.Name)] = r
	}

	var actions []Action
	seen := make(map[string]struct{})
	renamedAway := make(map[*LocalNode]struct{})

	// Renames are resolved first: a remote child absent under a local
	// name it used to have is a move, not a delete, so its source
	// LocalNode must be excluded from the debris pass below.
	for _, r := range remotes {
		key := normalizeName(r.Name)
		var matchesLocal bool
		for _, l := range locals {
			if normalizeName(l.Name) == key {
				matchesLocal = true
				break
			}
		}
		if matchesLocal {
			continue
		}
		if renamed := findRenameCandidate(locals, r); renamed != nil {
			actions = append(actions, Action{Kind: ActionRenameLocal, Local: renamed, Remote: r})
			renamedAway[renamed] = struct{}{}
			seen[key] = struct{}{}
		}
	}

	for _, l := range locals {
		if _, ok := renamedAway[l]; ok {
			continue
		}
		key := normalizeName(l.Name)
		r, ok := remoteByName[key]
		if !ok {
			if l.Deleted {
				actions = append(actions, Action{Kind: ActionMoveToDebris, Local: l, DebrisPath: DebrisPath(time.Now())})
			}
			continue
		}
		seen[key] = struct{}{}

		if l.IsFolder != r.IsFolder {
			continue // type mismatch: leave both sides alone
		}
		if l.IsFolder {
			actions = append(actions, Action{Kind: ActionRecurseFolder, Local: l, Remote: r})
			continue
		}
		if !l.ModTime.Before(r.ModTime) {
			continue // local is newer or equal: nothing to do
		}
		actions = append(actions, Action{Kind: ActionDownload, Local: l, Remote: r})
	}

	for _, r := range remotes {
		key := normalizeName(r.Name)
		if _, ok := seen[key]; ok {
			continue
		}
		if r.IsFolder {
			actions = append(actions, Action{Kind: ActionCreateLocalFolder, Remote: r})
			continue
		}
		actions = append(actions, Action{Kind: ActionDownload, Remote: r})
	}

	return actions
}

// findRenameCandidate looks for a deleted LocalNode whose fingerprint
// matches r, rename/move the LocalNode to match if a prior
// LocalNode's fingerprint matches the remote (rename detection).
func findRenameCandidate(locals []*LocalNode, r RemoteChild) *LocalNode {
	if r.Fingerprint == nil {
		return nil
	}
	for _, l := range locals {
		if l.Deleted && l.Fingerprint != nil && *l.Fingerprint == *r.Fingerprint {
			return l
		}
	}
	return nil
}

// SyncUp compares a local folder's children against the corresponding
// remote children and returns the actions that propagate local state to
// the server, syncup(L, R): nagle-delayed files are
// skipped, and the fingerprint multimap is consulted for move detection
// before a plain upload is proposed.
func SyncUp(now time.Time, locals []*LocalNode, remotes []RemoteChild, fingerprints FingerprintIndex) []Action {
	remoteByName := make(map[string]RemoteChild, len(remotes))
	for _, r := range remotes {
		remoteByName[normalizeName(r.Name)] = r
	}

	var actions []Action
	for _, l := range locals {
		if l.Deleted {
			continue // handled by the remote-side debris path in SyncDown's mirror pass
		}
		if !l.IsFolder && !l.NagleSettled(now) {
			continue
		}

		key := normalizeName(l.Name)
		r, ok := remoteByName[key]
		if ok {
			if l.IsFolder && r.IsFolder {
				actions = append(actions, Action{Kind: ActionRecurseFolder, Local: l, Remote: r})
				continue
			}
			if !r.ModTime.After(l.ModTime) {
				continue // remote already current
			}
			continue // remote is newer: syncdown's job, not syncup's
		}

		if l.IsFolder {
			actions = append(actions, Action{Kind: ActionCreateRemoteFolder, Local: l})
			continue
		}

		if l.Fingerprint != nil {
			if match, moved := fingerprints.Lookup(*l.Fingerprint); moved && !match.Handle.IsZero() {
				actions = append(actions, Action{Kind: ActionMoveRemote, Local: l, Remote: match})
				continue
			}
		}
		if l.VersionThrottled(now) {
			continue
		}
		l.RecordVersionUpload(now)
		actions = append(actions, Action{Kind: ActionUpload, Local: l})
	}
	return actions
}

// FingerprintIndex is the query surface SyncUp needs into the remote
// fingerprint multimap for rename/move detection, satisfied by
// nodegraph.Graph in production.
type FingerprintIndex interface {
	// Lookup returns a remote node matching fp and whether it represents
	// an already-deleted-locally move candidate rather than a duplicate
	// upload target.
	Lookup(fp nodegraph.Fingerprint) (match RemoteChild, moved bool)
}
