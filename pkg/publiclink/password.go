// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package publiclink

import (
	"bytes"

	"coredrive.io/core/pkg/cryptoadapter"
	"coredrive.io/core/pkg/nodegraph"
)

// Algorithm identifies the password-protected link's field layout. Two
// algorithm IDs are supported to absorb a historical field-swap bug in one
// of them.
type Algorithm byte

// Algorithms.
const (
	// AlgSwapped is the historical, buggy layout: the kind byte and the
	// first byte of the public handle were written in swapped order.
	// Decoding undoes the swap; new links are never encoded with it.
	AlgSwapped Algorithm = 1
	// AlgCurrent is the corrected layout used for all new links.
	AlgCurrent Algorithm = 2
)

const (
	saltLen       = 32
	hmacLen       = 32
	pbkdf2Iters   = 100000
	derivedKeyLen = 64
	handleLen     = 6
)

// PasswordLink is a password-protected public link, with the binary
// layout [alg(1) | kind(1) | ph(6) | salt(32) | encKey(16|32) | hmac(32)].
type PasswordLink struct {
	Alg    Algorithm
	Kind   Kind
	Handle nodegraph.Handle
	Salt   [saltLen]byte
	EncKey []byte // XOR(derivedKey[0:keyLen], nodeKey), 16 or 32 bytes
}

// Encode renders kind, handle, salt and the node key XOR-masked with the
// derived key, plus the trailing HMAC, into the wire payload, deriving the
// key material fresh from password.
func Encode(adapter cryptoadapter.Adapter, kind Kind, handle nodegraph.Handle, salt [saltLen]byte, password string, nodeKey []byte) ([]byte, error) {
	if err := validateKeyLen(kind, len(nodeKey)); err != nil {
		return nil, err
	}

	derived := adapter.PBKDF2HMACSHA512([]byte(password), salt[:], pbkdf2Iters, derivedKeyLen)
	encKey := xorBytes(derived[:len(nodeKey)], nodeKey)

	payload := make([]byte, 0, 1+1+handleLen+saltLen+len(encKey))
	payload = append(payload, byte(AlgCurrent), byte(kind))
	payload = append(payload, handle[:]...)
	payload = append(payload, salt[:]...)
	payload = append(payload, encKey...)

	tag := adapter.HMACSHA256(derived[32:64], payload)
	return append(payload, tag...), nil
}

// Decode parses raw (as produced by Encode, or by the historical buggy
// encoder tagged AlgSwapped), verifies its HMAC, and recovers nodeKey
// given password.
func Decode(adapter cryptoadapter.Adapter, raw []byte, password string) (*PasswordLink, []byte, error) {
	const headerLen = 1 + 1 + handleLen + saltLen
	if len(raw) < headerLen+hmacLen {
		return nil, nil, Error.New("password link too short")
	}

	alg := Algorithm(raw[0])
	kindByte, ph0 := raw[1], raw[2]
	if alg == AlgSwapped {
		// The historical encoder swapped these two bytes; undo it to
		// recover the real kind and public handle.
		kindByte, ph0 = ph0, kindByte
	}
	kind := Kind(kindByte)

	keyLen := 32
	if kind == KindFolder {
		keyLen = 16
	}
	if len(raw) != headerLen+keyLen+hmacLen {
		return nil, nil, Error.New("password link length does not match kind %d", kind)
	}

	encKey := raw[headerLen : headerLen+keyLen]
	tag := raw[headerLen+keyLen:]

	derived := adapter.PBKDF2HMACSHA512([]byte(password), raw[2+handleLen:headerLen], pbkdf2Iters, derivedKeyLen)

	// The HMAC authenticates the bytes exactly as transmitted, swap and
	// all: it was computed by whichever encoder actually sent this link.
	wantTag := adapter.HMACSHA256(derived[32:64], raw[:headerLen+keyLen])
	if !bytes.Equal(wantTag, tag) {
		return nil, nil, Error.New("hmac mismatch: wrong password or corrupted link")
	}

	nodeKey := xorBytes(derived[:keyLen], encKey)

	var h nodegraph.Handle
	h[0] = ph0
	copy(h[1:], raw[3:2+handleLen])

	var salt [saltLen]byte
	copy(salt[:], raw[2+handleLen:headerLen])

	encKeyCopy := append([]byte(nil), encKey...)
	return &PasswordLink{Alg: alg, Kind: kind, Handle: h, Salt: salt, EncKey: encKeyCopy}, nodeKey, nil
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}
