// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

// Package testcontext provides a context.Context wrapper for tests that
// tracks background goroutines and temporary directories so tests fail
// loudly instead of leaking either.
package testcontext

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// Context is a context.Context bound to a *testing.T, used across the core's
// test suites to spawn and join background goroutines and to allocate
// scratch directories that get removed on Cleanup.
type Context struct {
	context.Context

	t       testing.TB
	wg      sync.WaitGroup
	mu      sync.Mutex
	tempdir string
	cleanup []func()
}

// New returns a new test context derived from context.Background().
func New(t testing.TB) *Context {
	return &Context{
		Context: context.Background(),
		t:       t,
	}
}

// NewWithTimeout returns a new test context whose Context is cancelled after
// timeout, for tests that exercise the driver loop's deadline handling.
func NewWithTimeout(t testing.TB, timeout time.Duration) *Context {
	parent, cancel := context.WithTimeout(context.Background(), timeout)
	ctx := &Context{
		Context: parent,
		t:       t,
	}
	ctx.AddCleanup(cancel)
	return ctx
}

// Go runs fn in a new goroutine and fails the test if fn returns an error.
func (ctx *Context) Go(fn func() error) {
	ctx.wg.Add(1)
	go func() {
		defer ctx.wg.Done()
		if err := fn(); err != nil {
			ctx.t.Error(err)
		}
	}()
}

// Check runs fn and fails the test if it returns an error, for use in
// deferred cleanup call sites.
func (ctx *Context) Check(fn func() error) {
	if err := fn(); err != nil {
		ctx.t.Error(err)
	}
}

// Dir returns a temporary directory that will be removed on Cleanup,
// creating it (and the subpath joined from elem) lazily on first use.
func (ctx *Context) Dir(elem ...string) string {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	if ctx.tempdir == "" {
		dir, err := os.MkdirTemp("", "coredrive-test")
		if err != nil {
			ctx.t.Fatal(err)
		}
		ctx.tempdir = dir
	}

	path := ctx.tempdir
	for _, e := range elem {
		path = path + string(os.PathSeparator) + e
	}
	if err := os.MkdirAll(path, 0700); err != nil {
		ctx.t.Fatal(err)
	}
	return path
}

// File returns the path to a file under a temporary directory derived from
// elem, creating the parent directory (but not the file itself) so the
// caller can immediately os.Create or os.OpenFile it.
func (ctx *Context) File(elem ...string) string {
	if len(elem) == 0 {
		ctx.t.Fatal("testcontext: File requires at least one path element")
	}
	dir := ctx.Dir(elem[:len(elem)-1]...)
	return filepath.Join(dir, elem[len(elem)-1])
}

// Cleanup waits for all goroutines started with Go and removes any
// temporary directories allocated with Dir. It must be called, typically
// via defer, exactly once per Context.
func (ctx *Context) Cleanup() {
	ctx.wg.Wait()

	ctx.mu.Lock()
	tempdir := ctx.tempdir
	cleanups := ctx.cleanup
	ctx.mu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	if tempdir != "" {
		if err := os.RemoveAll(tempdir); err != nil {
			ctx.t.Error(err)
		}
	}
}

// AddCleanup registers fn to run, in LIFO order, during Cleanup.
func (ctx *Context) AddCleanup(fn func()) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.cleanup = append(ctx.cleanup, fn)
}
