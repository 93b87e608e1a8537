// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package nodegraph

import (
	"crypto/rsa"
	"encoding/base64"
	"strings"

	"coredrive.io/core/pkg/cryptoadapter"
)

// KeySource supplies the candidate keys the resolver tries against an
// incoming node key field: our master key, a share key we hold, or our
// RSA private key.
type KeySource interface {
	SymmetricKey(owner Handle) (key []byte, ok bool)
	ShareKey(shareHandle Handle) (key []byte, ok bool)
	RSAPrivateKey() (*rsa.PrivateKey, bool)
}

// RewriteRequest is emitted by Resolve when an RSA-wrapped key was
// successfully unwrapped, so the caller can queue the symmetric rewrite
// command so future loads skip asymmetric work.
type RewriteRequest struct {
	Node         Handle
	SymmetricKey []byte // AES-ECB(wrappingKey, nodeKey), ready to send to the server
}

// Resolve tries each "<handle>:<base64key>" pair in raw against keys held
// in source, returning the first successfully unwrapped node key. A pair
// whose handle matches no held key, or whose decrypted bytes don't form a
// plausible key length, is skipped. If every pair fails, the node stays
// NO_KEY: ok is false and err is nil, since undecryptable nodes are
// retained as placeholders rather than treated as errors.
func Resolve(crypto cryptoadapter.Adapter, source KeySource, raw string, keyLen int) (key []byte, rewrite *RewriteRequest, ok bool, err error) {
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		idx := strings.LastIndex(pair, ":")
		if idx < 0 {
			// Bare RSA-wrapped blob (no "handle:" prefix): folder-link-style
			// single wrapped key.
			priv, havePriv := source.RSAPrivateKey()
			if !havePriv {
				continue
			}
			wrapped, decodeErr := base64.RawURLEncoding.DecodeString(pair)
			if decodeErr != nil {
				continue
			}
			plain, decErr := crypto.RSADecryptPKCS1v15(priv, wrapped)
			if decErr != nil || len(plain) != keyLen {
				continue
			}
			sym, wrapErr := wrapForRewrite(crypto, source, plain)
			if wrapErr == nil {
				return plain, sym, true, nil
			}
			return plain, nil, true, nil
		}

		handleStr, blob := pair[:idx], pair[idx+1:]
		handle, parseErr := ParseHandle(handleStr)
		if parseErr != nil {
			continue
		}
		wrapped, decodeErr := base64.RawURLEncoding.DecodeString(blob)
		if decodeErr != nil {
			continue
		}

		if wrappingKey, found := source.SymmetricKey(handle); found {
			if plain, unwrapErr := crypto.AESECBDecrypt(wrappingKey, wrapped); unwrapErr == nil && len(plain) == keyLen {
				return plain, nil, true, nil
			}
		}
		if wrappingKey, found := source.ShareKey(handle); found {
			if plain, unwrapErr := crypto.AESECBDecrypt(wrappingKey, wrapped); unwrapErr == nil && len(plain) == keyLen {
				return plain, nil, true, nil
			}
		}
	}

	return nil, nil, false, nil
}

// ResolveAndPut resolves n's wire-format key field against source and
// stores n in g, wiring the key resolver into the node graph it serves:
// Put never receives a pre-decrypted node directly from an action-packet
// handler, it goes through here first. A node whose key cannot yet be
// resolved is still inserted, left NO_KEY (Decrypted false). keyLen is 16
// for folder nodes, 32 for file nodes.
func ResolveAndPut(g *Graph, crypto cryptoadapter.Adapter, source KeySource, n *Node, rawKey string, keyLen int) (*RewriteRequest, error) {
	if rawKey != "" {
		key, rewrite, ok, err := Resolve(crypto, source, rawKey, keyLen)
		if err != nil {
			return nil, err
		}
		if ok {
			n.Key = key
			n.Decrypted = true
		}
		if err := g.Put(n); err != nil {
			return nil, err
		}
		return rewrite, nil
	}
	return nil, g.Put(n)
}

// wrapForRewrite re-wraps an RSA-unwrapped key under our own master key so
// the rewrite command can be queued.
func wrapForRewrite(crypto cryptoadapter.Adapter, source KeySource, plain []byte) (*RewriteRequest, error) {
	self, ok := source.SymmetricKey(Handle{})
	if !ok {
		return nil, Error.New("no master key available for rewrite")
	}
	wrapped, err := crypto.AESECBEncrypt(self, plain)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &RewriteRequest{SymmetricKey: wrapped}, nil
}
