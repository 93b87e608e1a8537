// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package sync_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coredrive.io/core/pkg/nodegraph"
	"coredrive.io/core/pkg/sync"
)

func TestSyncDownDownloadsOlderLocalFile(t *testing.T) {
	now := time.Now()
	locals := []*sync.LocalNode{{ID: "l1", Name: "report.pdf", ModTime: now}}
	remotes := []sync.RemoteChild{{Handle: nodeHandle(1), Name: "report.pdf", ModTime: now.Add(time.Hour)}}

	actions := sync.SyncDown(locals, remotes)
	require.Len(t, actions, 1)
	assert.Equal(t, sync.ActionDownload, actions[0].Kind)
}

func TestSyncDownSkipsWhenLocalIsNewer(t *testing.T) {
	now := time.Now()
	locals := []*sync.LocalNode{{ID: "l1", Name: "report.pdf", ModTime: now.Add(time.Hour)}}
	remotes := []sync.RemoteChild{{Handle: nodeHandle(1), Name: "report.pdf", ModTime: now}}

	actions := sync.SyncDown(locals, remotes)
	assert.Empty(t, actions)
}

func TestSyncDownCreatesLocalFolderForNewRemoteFolder(t *testing.T) {
	remotes := []sync.RemoteChild{{Handle: nodeHandle(1), Name: "Photos", IsFolder: true}}
	actions := sync.SyncDown(nil, remotes)
	require.Len(t, actions, 1)
	assert.Equal(t, sync.ActionCreateLocalFolder, actions[0].Kind)
}

func TestSyncDownMovesDeletedLocalToDebris(t *testing.T) {
	locals := []*sync.LocalNode{{ID: "l1", Name: "gone.txt", Deleted: true}}
	actions := sync.SyncDown(locals, nil)
	require.Len(t, actions, 1)
	assert.Equal(t, sync.ActionMoveToDebris, actions[0].Kind)
	assert.Contains(t, actions[0].DebrisPath, "SyncDebris")
}

func TestSyncDownDetectsRenameByFingerprint(t *testing.T) {
	fp := nodegraph.Fingerprint{CRC: 99, ModTime: 1}
	locals := []*sync.LocalNode{{ID: "l1", Name: "old-name.txt", Deleted: true, Fingerprint: &fp}}
	remotes := []sync.RemoteChild{{Handle: nodeHandle(2), Name: "new-name.txt", Fingerprint: &fp}}

	actions := sync.SyncDown(locals, remotes)
	require.Len(t, actions, 1)
	assert.Equal(t, sync.ActionRenameLocal, actions[0].Kind)
	assert.Same(t, locals[0], actions[0].Local)
}

func TestSyncDownRecursesMatchingFolders(t *testing.T) {
	locals := []*sync.LocalNode{{ID: "l1", Name: "Docs", IsFolder: true}}
	remotes := []sync.RemoteChild{{Handle: nodeHandle(1), Name: "Docs", IsFolder: true}}
	actions := sync.SyncDown(locals, remotes)
	require.Len(t, actions, 1)
	assert.Equal(t, sync.ActionRecurseFolder, actions[0].Kind)
}

func TestSyncUpSkipsFileStillWithinNagleWindow(t *testing.T) {
	now := time.Now()
	local := &sync.LocalNode{ID: "l1", Name: "draft.txt"}
	local.ArmNagle(now, 5*time.Second)

	actions := sync.SyncUp(now, []*sync.LocalNode{local}, nil, noopFingerprints{})
	assert.Empty(t, actions)
}

func TestSyncUpUploadsAfterNagleSettles(t *testing.T) {
	now := time.Now()
	local := &sync.LocalNode{ID: "l1", Name: "draft.txt"}
	local.ArmNagle(now, 5*time.Second)

	actions := sync.SyncUp(now.Add(6*time.Second), []*sync.LocalNode{local}, nil, noopFingerprints{})
	require.Len(t, actions, 1)
	assert.Equal(t, sync.ActionUpload, actions[0].Kind)
}

func TestSyncUpDetectsMoveViaFingerprintIndex(t *testing.T) {
	now := time.Now()
	fp := nodegraph.Fingerprint{CRC: 5, ModTime: 2}
	local := &sync.LocalNode{ID: "l1", Name: "moved.txt", Fingerprint: &fp}

	idx := fakeFingerprints{match: sync.RemoteChild{Handle: nodeHandle(3), Name: "old-path.txt"}, moved: true}
	actions := sync.SyncUp(now, []*sync.LocalNode{local}, nil, idx)
	require.Len(t, actions, 1)
	assert.Equal(t, sync.ActionMoveRemote, actions[0].Kind)
}

func TestSyncUpCreatesRemoteFolderForNewLocalFolder(t *testing.T) {
	now := time.Now()
	local := &sync.LocalNode{ID: "l1", Name: "NewFolder", IsFolder: true}
	actions := sync.SyncUp(now, []*sync.LocalNode{local}, nil, noopFingerprints{})
	require.Len(t, actions, 1)
	assert.Equal(t, sync.ActionCreateRemoteFolder, actions[0].Kind)
}

type noopFingerprints struct{}

func (noopFingerprints) Lookup(nodegraph.Fingerprint) (sync.RemoteChild, bool) {
	return sync.RemoteChild{}, false
}

type fakeFingerprints struct {
	match sync.RemoteChild
	moved bool
}

func (f fakeFingerprints) Lookup(nodegraph.Fingerprint) (sync.RemoteChild, bool) {
	return f.match, f.moved
}
