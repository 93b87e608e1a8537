// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

// Package fsadapter is the filesystem-access trait the core depends on:
// every local I/O operation the sync reconciler and transfer engine need,
// kept behind an interface so the core stays portable across hosts and
// testable without touching disk.
package fsadapter

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rjeczalik/notify"
	"github.com/zeebo/errs"
)

// Error is the fsadapter error class.
var Error = errs.Class("fsadapter")

// FileInfo is the subset of os.FileInfo the core consults.
type FileInfo struct {
	Name    string
	Size    int64
	IsDir   bool
	ModTime time.Time
}

// Adapter is the full filesystem surface: stat, blocking and async
// open, positioned read/write, truncate, directory operations, rename,
// short-name lookup (Windows 8.3 names), path normalization, and a
// directory-change notification subscription.
type Adapter interface {
	Stat(path string) (FileInfo, error)

	// Open returns a handle usable for ReadAt/WriteAt/Truncate/Close.
	// async requests the platform's native async I/O path where
	// available; implementations that lack one may ignore it.
	Open(path string, writable bool, async bool) (Handle, error)

	Mkdir(path string) error
	Rename(oldPath, newPath string) error
	Unlink(path string) error
	Rmdir(path string) error
	Readdir(path string) ([]FileInfo, error)
	SetModTime(path string, t time.Time) error

	// ShortName returns the platform short name for path (8.3 on
	// Windows), or "" where the platform has no such concept.
	ShortName(path string) (string, error)

	// NormalizePath maps path to the comparison key used by syncdown's
	// UTF-8-normalized name matching.
	NormalizePath(path string) string

	// Watch subscribes to create/write/rename/remove events under path,
	// delivering them to events until ctx is cancelled or Unwatch is
	// called.
	Watch(ctx context.Context, path string, events chan<- Event) (Unwatch func(), err error)
}

// Handle is an open local file.
type Handle interface {
	io.ReaderAt
	io.WriterAt
	Truncate(size int64) error
	Close() error
}

// EventKind is the kind of filesystem change an Event reports.
type EventKind int

// Event kinds.
const (
	EventCreate EventKind = iota
	EventWrite
	EventRename
	EventRemove
	// EventOverflow reports the watch queue overflowed or the backend
	// reported a failure; the reconciler reacts by scheduling a full
	// rescan.
	EventOverflow
)

// Event is one filesystem change notification.
type Event struct {
	Kind EventKind
	Path string
}

// Default is the os-package-backed Adapter, using rjeczalik/notify for
// the directory-watch subscription, since no standard-library recursive
// directory-watch primitive exists.
type Default struct{}

var _ Adapter = Default{}

// Stat implements Adapter.
func (Default) Stat(path string) (FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, Error.Wrap(err)
	}
	return toFileInfo(fi), nil
}

// Open implements Adapter. async is accepted for interface symmetry with
// the open-blocking-and-async contract, but os.File has no distinct async
// path in the standard library, so both modes resolve to the same
// blocking os.OpenFile call.
func (Default) Open(path string, writable bool, async bool) (Handle, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR | os.O_CREATE
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return f, nil
}

// Mkdir implements Adapter.
func (Default) Mkdir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return Error.Wrap(err)
	}
	return nil
}

// Rename implements Adapter.
func (Default) Rename(oldPath, newPath string) error {
	if err := os.Rename(oldPath, newPath); err != nil {
		return Error.Wrap(err)
	}
	return nil
}

// Unlink implements Adapter.
func (Default) Unlink(path string) error {
	if err := os.Remove(path); err != nil {
		return Error.Wrap(err)
	}
	return nil
}

// Rmdir implements Adapter.
func (Default) Rmdir(path string) error {
	if err := os.Remove(path); err != nil {
		return Error.Wrap(err)
	}
	return nil
}

// Readdir implements Adapter.
func (Default) Readdir(path string) ([]FileInfo, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		fi, err := e.Info()
		if err != nil {
			return nil, Error.Wrap(err)
		}
		out = append(out, toFileInfo(fi))
	}
	return out, nil
}

// SetModTime implements Adapter.
func (Default) SetModTime(path string, t time.Time) error {
	if err := os.Chtimes(path, t, t); err != nil {
		return Error.Wrap(err)
	}
	return nil
}

// ShortName has no standard cross-platform equivalent outside Windows; the
// default adapter reports "". Short names are consulted only to avoid
// legacy 8.3-name collisions on Windows hosts.
func (Default) ShortName(path string) (string, error) { return "", nil }

// NormalizePath returns path unchanged: it lowercases nothing (case
// sensitivity is host-dependent) and strips nothing, relying on callers to
// apply Unicode normalization (golang.org/x/text/unicode/norm) to the base
// name before comparison,'s "UTF-8-normalized name"
// lookup — that step lives in pkg/sync, which owns the name-comparison
// policy, rather than in this generic adapter.
func (Default) NormalizePath(path string) string { return path }

// Watch subscribes to recursive create/write/rename/remove events under
// path using rjeczalik/notify, translating its events to fsadapter.Event
// and forwarding failures as EventOverflow.
func (Default) Watch(ctx context.Context, path string, events chan<- Event) (func(), error) {
	raw := make(chan notify.EventInfo, 128)
	if err := notify.Watch(path+"/...", raw, notify.Create, notify.Write, notify.Rename, notify.Remove); err != nil {
		return nil, Error.Wrap(err)
	}

	stop := make(chan struct{})
	go func() {
		defer notify.Stop(raw)
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case ev, ok := <-raw:
				if !ok {
					events <- Event{Kind: EventOverflow}
					return
				}
				events <- translate(ev)
			}
		}
	}()

	return func() { close(stop) }, nil
}

func translate(ev notify.EventInfo) Event {
	switch ev.Event() {
	case notify.Create:
		return Event{Kind: EventCreate, Path: ev.Path()}
	case notify.Write:
		return Event{Kind: EventWrite, Path: ev.Path()}
	case notify.Rename:
		return Event{Kind: EventRename, Path: ev.Path()}
	case notify.Remove:
		return Event{Kind: EventRemove, Path: ev.Path()}
	default:
		return Event{Kind: EventWrite, Path: ev.Path()}
	}
}

func toFileInfo(fi os.FileInfo) FileInfo {
	return FileInfo{Name: fi.Name(), Size: fi.Size(), IsDir: fi.IsDir(), ModTime: fi.ModTime()}
}
