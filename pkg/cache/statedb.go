// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package cache

import (
	"context"
	"crypto/rand"
	"encoding/binary"

	"coredrive.io/core/pkg/cryptoadapter"
)

// RecordType tags a state-cache row with what it stores; the type lives in
// the low 4 bits of the row id, so rows of different types interleave in
// key order and IterateType filters a full scan by type.
type RecordType byte

// Record types. The numbering is part of the on-disk layout and must not
// be reordered.
const (
	RecordSCSN RecordType = 1
	RecordNode RecordType = 2
	RecordUser RecordType = 3
	RecordPCR  RecordType = 4
)

// StateDB is the session-scoped state cache: rows are (id, encrypted
// blob), with the record type in the low 4 bits of the id and the value
// AES-CBC encrypted under a key derived from the session. Writes buffer in
// memory and flush as one batch at action-packet-batch boundaries; a
// boundary reached while a command is still in flight defers the flush,
// coalescing it with the next boundary.
type StateDB struct {
	store  Store
	crypto cryptoadapter.Adapter
	key    [16]byte

	pending  []stateOp
	deferred bool
}

type stateOp struct {
	key   []byte
	value []byte // nil means delete
}

// DeriveCacheKey derives the state-cache encryption key from the session
// id: AES-ECB of the session's first 16 bytes under the master key, so the
// cache is unreadable without both the session and the account keys.
func DeriveCacheKey(crypto cryptoadapter.Adapter, masterKey [16]byte, sessionID string) ([16]byte, error) {
	block := make([]byte, 16)
	copy(block, sessionID)
	enc, err := crypto.AESECBEncrypt(masterKey[:], block)
	if err != nil {
		return [16]byte{}, Error.Wrap(err)
	}
	var out [16]byte
	copy(out[:], enc)
	return out, nil
}

// NewStateDB wraps store with the encrypted, batched row layout.
func NewStateDB(store Store, crypto cryptoadapter.Adapter, cacheKey [16]byte) *StateDB {
	return &StateDB{store: store, crypto: crypto, key: cacheKey}
}

// rowKey packs (rowID, type) into the persisted key: the row id shifted
// left 4 bits with the record type in the low nibble, big-endian so
// same-type rows with ascending ids stay ordered.
func rowKey(typ RecordType, rowID uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], rowID<<4|uint64(typ&0x0f))
	return buf[:]
}

// RowType extracts the record type back out of a persisted key.
func RowType(key []byte) RecordType {
	if len(key) != 8 {
		return 0
	}
	return RecordType(key[7] & 0x0f)
}

// Put buffers an encrypted write of blob under (typ, rowID). The write is
// not durable until Commit.
func (db *StateDB) Put(typ RecordType, rowID uint64, blob []byte) error {
	sealed, err := db.seal(blob)
	if err != nil {
		return err
	}
	db.pending = append(db.pending, stateOp{key: rowKey(typ, rowID), value: sealed})
	return nil
}

// Delete buffers a row deletion.
func (db *StateDB) Delete(typ RecordType, rowID uint64) {
	db.pending = append(db.pending, stateOp{key: rowKey(typ, rowID)})
}

// Get reads and decrypts one row directly from the store. Reads bypass the
// pending buffer: callers read at startup, before any writes are buffered.
func (db *StateDB) Get(ctx context.Context, typ RecordType, rowID uint64) ([]byte, error) {
	sealed, err := db.store.Get(ctx, rowKey(typ, rowID))
	if err != nil {
		return nil, err
	}
	return db.open(sealed)
}

// IterateType walks every row of one record type, decrypting each blob.
func (db *StateDB) IterateType(ctx context.Context, typ RecordType, fn func(rowID uint64, blob []byte) bool) error {
	var iterErr error
	err := db.store.Iterate(ctx, nil, func(key, sealed []byte) bool {
		if RowType(key) != typ {
			return true
		}
		blob, err := db.open(sealed)
		if err != nil {
			iterErr = err
			return false
		}
		return fn(binary.BigEndian.Uint64(key)>>4, blob)
	})
	if err != nil {
		return err
	}
	return iterErr
}

// DeferCommit marks that the next boundary's flush must wait: a command is
// mid-flight and its response may still mutate rows in this batch.
func (db *StateDB) DeferCommit() { db.deferred = true }

// Commit flushes the pending batch if no deferral is outstanding. Called
// at each action-packet-batch boundary; the deferral flag is cleared so
// the following boundary flushes the coalesced batch.
func (db *StateDB) Commit(ctx context.Context) error {
	if db.deferred {
		db.deferred = false
		return nil
	}
	return db.Flush(ctx)
}

// Flush unconditionally writes the pending batch, in order.
func (db *StateDB) Flush(ctx context.Context) error {
	for _, op := range db.pending {
		var err error
		if op.value == nil {
			err = db.store.Delete(ctx, op.key)
		} else {
			err = db.store.Put(ctx, op.key, op.value)
		}
		if err != nil {
			return err
		}
	}
	db.pending = nil
	return nil
}

// Pending reports the number of buffered, unflushed operations.
func (db *StateDB) Pending() int { return len(db.pending) }

// seal encrypts blob for storage: a random 16-byte IV followed by the
// AES-CBC ciphertext of the length-prefixed, zero-padded blob.
func (db *StateDB) seal(blob []byte) ([]byte, error) {
	iv := make([]byte, 16)
	if _, err := rand.Read(iv); err != nil {
		return nil, Error.Wrap(err)
	}

	plain := make([]byte, 4+len(blob))
	binary.BigEndian.PutUint32(plain, uint32(len(blob)))
	copy(plain[4:], blob)
	if pad := len(plain) % 16; pad != 0 {
		plain = append(plain, make([]byte, 16-pad)...)
	}

	ct, err := db.crypto.AESCBCEncrypt(db.key[:], iv, plain)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return append(iv, ct...), nil
}

// open reverses seal.
func (db *StateDB) open(sealed []byte) ([]byte, error) {
	if len(sealed) < 16+16 {
		return nil, Error.New("state row too short to hold IV and a block")
	}
	plain, err := db.crypto.AESCBCDecrypt(db.key[:], sealed[:16], sealed[16:])
	if err != nil {
		return nil, Error.Wrap(err)
	}
	n := binary.BigEndian.Uint32(plain)
	if int(n) > len(plain)-4 {
		return nil, Error.New("state row length prefix exceeds payload")
	}
	return plain[4 : 4+n], nil
}
