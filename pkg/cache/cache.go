// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

// Package cache implements the persistence adapter that survives
// restarts: transfer metadata is flushed here on every state transition so
// transfers resume after a crash, and the session's state snapshot lives
// in the encrypted row layout of StateDB.
package cache

import (
	"context"
	"errors"

	"github.com/zeebo/errs"
	bolt "go.etcd.io/bbolt"
)

// Error is the cache error class.
var Error = errs.Class("cache")

// ErrKeyNotFound is returned by Get when the key is absent.
var ErrKeyNotFound = Error.New("key not found")

// Store is a durable key/value store keyed by opaque byte strings, the
// shape every component that persists restart-survivable state (transfers,
// sync checkpoints, the account keyring) depends on rather than on bbolt
// directly.
type Store interface {
	Put(ctx context.Context, key, value []byte) error
	Get(ctx context.Context, key []byte) ([]byte, error)
	Delete(ctx context.Context, key []byte) error
	// Iterate calls fn for every key with the given prefix, in key order,
	// stopping early if fn returns false.
	Iterate(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error
	Close() error
}

// BoltStore is the default Store, a single bbolt bucket on disk.
type BoltStore struct {
	db     *bolt.DB
	bucket []byte
}

var _ Store = (*BoltStore)(nil)

// Open opens (creating if necessary) a bbolt database at path and returns a
// Store scoped to the named bucket, created on first use.
func Open(path string, bucket string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	bucketName := []byte(bucket)
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, Error.Wrap(err)
	}
	return &BoltStore{db: db, bucket: bucketName}, nil
}

// Put writes key/value, overwriting any existing value.
func (s *BoltStore) Put(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put(key, value)
	})
	if err != nil {
		return Error.Wrap(err)
	}
	return nil
}

// Get returns the value for key, or ErrKeyNotFound.
func (s *BoltStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get(key)
		if v == nil {
			return ErrKeyNotFound
		}
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, Error.Wrap(err)
	}
	return value, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *BoltStore) Delete(ctx context.Context, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete(key)
	})
	if err != nil {
		return Error.Wrap(err)
	}
	return nil
}

// Iterate walks every key with the given prefix in lexicographic order.
func (s *BoltStore) Iterate(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !fn(append([]byte(nil), k...), append([]byte(nil), v...)) {
				break
			}
		}
		return nil
	})
}

// Close releases the underlying database file.
func (s *BoltStore) Close() error {
	if err := s.db.Close(); err != nil {
		return Error.Wrap(err)
	}
	return nil
}

func hasPrefix(k, prefix []byte) bool {
	if len(prefix) == 0 {
		return true
	}
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}
