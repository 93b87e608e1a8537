// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package account

import (
	"crypto/ed25519"
	"encoding/json"

	"coredrive.io/core/pkg/cryptoadapter"
	"coredrive.io/core/pkg/nodegraph"
)

// KeyType is which of a contact's public keys an authring entry tracks,
// One authring per key type (signing, encryption-public,
// RSA-public).
type KeyType int

// Key types.
const (
	KeyTypeSigning KeyType = iota
	KeyTypeEncryptionPublic
	KeyTypeRSAPublic
)

// AuthMethod is how confidently a fingerprint has been established,
// auth method ∈ {seen, fingerprint-verified,
// signature-verified}. Methods only ever strengthen; see Authring.Note.
type AuthMethod int

// Auth methods, weakest to strongest.
const (
	AuthSeen AuthMethod = iota
	AuthFingerprintVerified
	AuthSignatureVerified
)

// Entry is one contact's recorded key fingerprint and the confidence level
// at which it was established.
type Entry struct {
	Fingerprint [32]byte
	Method      AuthMethod
}

// Authring is a persisted user-handle → Entry mapping for a single key
// type, uploaded as a signed user attribute.
type Authring struct {
	KeyType KeyType
	entries map[nodegraph.Handle]Entry
}

// NewAuthring returns an empty Authring for the given key type.
func NewAuthring(kt KeyType) *Authring {
	return &Authring{KeyType: kt, entries: make(map[nodegraph.Handle]Entry)}
}

// Lookup returns the recorded entry for handle, if any.
func (a *Authring) Lookup(handle nodegraph.Handle) (Entry, bool) {
	e, ok := a.entries[handle]
	return e, ok
}

// Note records an observation of handle's key with the given fingerprint
// at the given method. If an entry already exists with a matching
// fingerprint, the method is only raised, never lowered (seen →
// fingerprint-verified → signature-verified is monotonic:
// upgrade flow). If the fingerprint differs from what is on record, the
// key has changed underneath the contact — the entry is replaced at the
// given (possibly lower) method and changed is reported true so callers
// can warn the user, mirroring a detected key-change event.
func (a *Authring) Note(handle nodegraph.Handle, fingerprint [32]byte, method AuthMethod) (changed bool) {
	existing, ok := a.entries[handle]
	if !ok {
		a.entries[handle] = Entry{Fingerprint: fingerprint, Method: method}
		return false
	}
	if existing.Fingerprint != fingerprint {
		a.entries[handle] = Entry{Fingerprint: fingerprint, Method: method}
		return true
	}
	if method > existing.Method {
		existing.Method = method
		a.entries[handle] = existing
	}
	return false
}

// Fingerprint computes the SHA-256 fingerprint of a raw public key, the
// value Note compares against.
func Fingerprint(adapter cryptoadapter.Adapter, key []byte) [32]byte {
	return adapter.SHA256(key)
}

// wireEntry is the JSON-serializable form of one authring row.
type wireEntry struct {
	Handle      string `json:"h"`
	Fingerprint string `json:"fp"` // hex
	Method      int    `json:"m"`
}

// Marshal serializes the authring to the bytes stored as a user attribute,
// ready for Sign.
func (a *Authring) Marshal() ([]byte, error) {
	rows := make([]wireEntry, 0, len(a.entries))
	for h, e := range a.entries {
		rows = append(rows, wireEntry{
			Handle:      h.String(),
			Fingerprint: hexEncode(e.Fingerprint[:]),
			Method:      int(e.Method),
		})
	}
	return json.Marshal(rows)
}

// UnmarshalAuthring parses bytes produced by Marshal back into an Authring
// of the given key type.
func UnmarshalAuthring(kt KeyType, data []byte) (*Authring, error) {
	var rows []wireEntry
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, Error.Wrap(err)
	}
	a := NewAuthring(kt)
	for _, row := range rows {
		h, err := nodegraph.ParseHandle(row.Handle)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		fp, err := hexDecode32(row.Fingerprint)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		a.entries[h] = Entry{Fingerprint: fp, Method: AuthMethod(row.Method)}
	}
	return a, nil
}

// Sign produces the detached Ed25519 signature placed alongside the
// marshaled authring when it is uploaded as a signed user attribute.
func Sign(adapter cryptoadapter.Adapter, priv ed25519.PrivateKey, marshaled []byte) []byte {
	return adapter.Ed25519Sign(priv, marshaled)
}

// VerifySignature checks a downloaded authring attribute's signature
// against the owning account's signing public key before trusting its
// contents.
func VerifySignature(adapter cryptoadapter.Adapter, pub ed25519.PublicKey, marshaled, sig []byte) bool {
	return adapter.Ed25519Verify(pub, marshaled, sig)
}

const hexDigits = "0123456789abcdef"

func hexEncode(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0xf]
	}
	return string(out)
}

func hexDecode32(s string) ([32]byte, error) {
	var out [32]byte
	if len(s) != 64 {
		return out, Error.New("fingerprint must be 64 hex characters, got %d", len(s))
	}
	for i := 0; i < 32; i++ {
		hi, err := hexNibble(s[i*2])
		if err != nil {
			return out, err
		}
		lo, err := hexNibble(s[i*2+1])
		if err != nil {
			return out, err
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexNibble(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	default:
		return 0, Error.New("invalid hex digit %q", c)
	}
}
