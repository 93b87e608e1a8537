// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package nodegraph

import (
	"encoding/json"

	"coredrive.io/core/pkg/cryptoadapter"
)

const attrMagic = "MEGA{"

// Attributes is the JSON payload carried inside a node's encrypted
// attribute blob. Name is required on every node; file nodes additionally
// carry their fingerprint (in Fingerprint.Serialize form) so dedup works
// without refetching content.
type Attributes struct {
	Name        string `json:"n"`
	Fingerprint string `json:"c,omitempty"`
}

var zeroIV [16]byte

// EncryptAttrBlob serializes attrs to JSON, prefixes the "MEGA" magic so
// the blob reads "MEGA{...}" (the brace is the JSON object's own opening
// brace), zero-pads to a block boundary, and AES-CBC encrypts under key
// with a zero IV.
func EncryptAttrBlob(crypto cryptoadapter.Adapter, key [16]byte, attrs Attributes) ([]byte, error) {
	body, err := json.Marshal(attrs)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	plain := make([]byte, 0, len(attrMagic)-1+len(body))
	plain = append(plain, attrMagic[:len(attrMagic)-1]...)
	plain = append(plain, body...)
	plain = padTo16(plain)
	return crypto.AESCBCEncrypt(key[:], zeroIV[:], plain)
}

// DecryptAttrBlob is the inverse of EncryptAttrBlob. It returns
// ErrBadMagic if ciphertext does not decrypt to a blob beginning with the
// "MEGA{" magic, the signal that the key used was wrong
// and the node should remain NO_KEY rather than being retried as a
// transient error.
func DecryptAttrBlob(crypto cryptoadapter.Adapter, key [16]byte, ciphertext []byte) (Attributes, error) {
	if len(ciphertext)%16 != 0 {
		return Attributes{}, Error.New("attribute blob is not block-aligned")
	}
	plain, err := crypto.AESCBCDecrypt(key[:], zeroIV[:], ciphertext)
	if err != nil {
		return Attributes{}, Error.Wrap(err)
	}
	if len(plain) < len(attrMagic) || string(plain[:len(attrMagic)]) != attrMagic {
		return Attributes{}, ErrBadMagic
	}
	// Strip only the 4-byte "MEGA" prefix: the brace that completed the
	// magic check belongs to the JSON object itself.
	body := trimPadding(plain[len(attrMagic)-1:])
	var attrs Attributes
	if err := json.Unmarshal(body, &attrs); err != nil {
		return Attributes{}, Error.Wrap(err)
	}
	return attrs, nil
}

// ErrBadMagic is returned by DecryptAttrBlob when the decrypted blob lacks
// the "MEGA{" magic prefix, i.e. the wrong key was used.
var ErrBadMagic = Error.New("attribute blob missing magic prefix")

// padTo16 zero-pads b to the next multiple of 16 bytes (adding a full
// block of zero padding if b is already aligned, so the pad is always
// detectable and strippable).
func padTo16(b []byte) []byte {
	pad := 16 - len(b)%16
	out := make([]byte, len(b)+pad)
	copy(out, b)
	return out
}

// trimPadding strips trailing zero bytes added by padTo16. JSON never ends
// in a NUL byte, so this is unambiguous.
func trimPadding(b []byte) []byte {
	i := len(b)
	for i > 0 && b[i-1] == 0 {
		i--
	}
	return b[:i]
}
