// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

// Package account implements users, shares, pending contact requests,
// and authrings: the account-and-contact state that sits alongside the
// node graph.
package account

import (
	"crypto/rsa"
	"strings"

	"github.com/zeebo/errs"

	"coredrive.io/core/pkg/nodegraph"
)

// Error is the account error class.
var Error = errs.Class("account")

// Visibility is a contact's relationship to the local account.
type Visibility int

// Visibility values.
const (
	VisibilityUnknown Visibility = iota
	VisibilityHidden
	VisibilityVisible
	VisibilityInactive
	VisibilityBlocked
)

// User is one contact or the local account itself (User).
type User struct {
	Handle nodegraph.Handle

	// Email is stored lowercased; email↔handle mapping is
	// bijective among active users.
	Email string

	Visibility Visibility

	RSAPublicKey *rsa.PublicKey
	SigningKey   []byte // Ed25519 public key, 32 bytes
	ChatKey      []byte // X25519 public key, 32 bytes

	// Attrs caches fetched user-attribute values by name, each tagged with
	// the version string the server returned so a re-fetch can be skipped
	// when the cached version still matches.
	Attrs map[string]UserAttr

	// SharesToUs is the set of folder handles this user shares to the
	// local account, set of node handles this user shares to
	// us.
	SharesToUs map[nodegraph.Handle]struct{}
}

// UserAttr is one cached user-attribute value and its server version tag.
type UserAttr struct {
	Value   []byte
	Version string
}

// NewUser returns a User with handle and email normalized to the bijective
// invariant requires.
func NewUser(handle nodegraph.Handle, email string) *User {
	return &User{
		Handle:     handle,
		Email:      strings.ToLower(email),
		Attrs:      make(map[string]UserAttr),
		SharesToUs: make(map[nodegraph.Handle]struct{}),
	}
}

// SetEmail normalizes and replaces the user's primary email, e.g. on an
// `se` (email-changed) action packet.
func (u *User) SetEmail(email string) {
	u.Email = strings.ToLower(email)
}

// SetAttr records a fetched attribute value under name if version differs
// from what is cached, returning whether the cache was updated.
func (u *User) SetAttr(name string, value []byte, version string) bool {
	if cur, ok := u.Attrs[name]; ok && cur.Version == version {
		return false
	}
	u.Attrs[name] = UserAttr{Value: value, Version: version}
	return true
}

// Directory is the in-memory set of known Users keyed by handle, with an
// email index maintained alongside it ( bijective invariant).
type Directory struct {
	byHandle map[nodegraph.Handle]*User
	byEmail  map[string]nodegraph.Handle
}

// NewDirectory returns an empty Directory.
func NewDirectory() *Directory {
	return &Directory{
		byHandle: make(map[nodegraph.Handle]*User),
		byEmail:  make(map[string]nodegraph.Handle),
	}
}

// Put inserts or replaces u, maintaining the email index. If email is
// already bound to a different handle, the stale binding is evicted first
// (an `se` packet changes which handle a given email resolves to).
func (d *Directory) Put(u *User) {
	if u.Email != "" {
		if existing, ok := d.byEmail[u.Email]; ok && existing != u.Handle {
			delete(d.byHandle, existing)
		}
		d.byEmail[u.Email] = u.Handle
	}
	d.byHandle[u.Handle] = u
}

// Get returns the User with the given handle, or nil.
func (d *Directory) Get(h nodegraph.Handle) *User {
	return d.byHandle[h]
}

// GetByEmail returns the User with the given email, or nil.
func (d *Directory) GetByEmail(email string) *User {
	h, ok := d.byEmail[strings.ToLower(email)]
	if !ok {
		return nil
	}
	return d.byHandle[h]
}

// All returns every known user, in no particular order.
func (d *Directory) All() []*User {
	out := make([]*User, 0, len(d.byHandle))
	for _, u := range d.byHandle {
		out = append(out, u)
	}
	return out
}

// Remove deletes the user with handle h from the directory.
func (d *Directory) Remove(h nodegraph.Handle) {
	u, ok := d.byHandle[h]
	if !ok {
		return
	}
	delete(d.byHandle, h)
	if d.byEmail[u.Email] == h {
		delete(d.byEmail, u.Email)
	}
}
