// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package commands

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"strings"

	"coredrive.io/core/pkg/apipipeline"
	"coredrive.io/core/pkg/cryptoadapter"
	"coredrive.io/core/pkg/nodegraph"
)

const (
	// loginKDFIterations matches the password-derivation hardness of the
	// password-link codec (PBKDF2-HMAC-SHA512, 100000 rounds); the login
	// derivation takes 32 bytes out.
	loginKDFIterations = 100000
	loginKDFLen        = 32
)

// LoginKeys is the material derived from the account password: WrapKey
// unwraps the master key from the login response, AuthKey is the proof
// sent to the server in place of the password itself.
type LoginKeys struct {
	WrapKey [16]byte
	AuthKey [16]byte
}

// DeriveLoginKeys stretches the account password against the per-account
// salt returned by Prelogin. The password never leaves the client; only
// AuthKey does.
func DeriveLoginKeys(crypto cryptoadapter.Adapter, password string, salt []byte) LoginKeys {
	derived := crypto.PBKDF2HMACSHA512([]byte(password), salt, loginKDFIterations, loginKDFLen)
	var keys LoginKeys
	copy(keys.WrapKey[:], derived[:16])
	copy(keys.AuthKey[:], derived[16:32])
	return keys
}

// PreloginResult carries the account's KDF salt.
type PreloginResult struct {
	Salt []byte
}

// Prelogin builds the salt-fetch command preceding Login.
func Prelogin(email string, onResult func(PreloginResult, error)) *apipipeline.Command {
	return &apipipeline.Command{
		Tag: "us0",
		Body: map[string]interface{}{
			"a":    "us0",
			"user": strings.ToLower(email),
		},
		OnResult: func(raw json.RawMessage, err error) {
			if err != nil {
				onResult(PreloginResult{}, err)
				return
			}
			var wire struct {
				Salt string `json:"s"`
			}
			if err := json.Unmarshal(raw, &wire); err != nil {
				onResult(PreloginResult{}, Error.Wrap(err))
				return
			}
			salt, err := base64.RawURLEncoding.DecodeString(wire.Salt)
			if err != nil {
				onResult(PreloginResult{}, Error.Wrap(err))
				return
			}
			onResult(PreloginResult{Salt: salt}, nil)
		},
	}
}

// LoginResult is the decoded login response, with the master key and RSA
// private key already unwrapped.
type LoginResult struct {
	UserHandle nodegraph.Handle
	SessionID  string
	MasterKey  [16]byte
	PrivateKey *rsa.PrivateKey
}

// loginWire is the raw login response: every key field is wrapped — k
// under the password-derived WrapKey, privk under the master key.
type loginWire struct {
	User      string `json:"u"`
	MasterKey string `json:"k"`
	PrivKey   string `json:"privk"`
	SessionID string `json:"csid"`
}

// Login builds the session-establishing command. keys must come from
// DeriveLoginKeys against the Prelogin salt; the server compares AuthKey
// against its stored verifier and, on match, returns the wrapped account
// keys and a session id.
func Login(crypto cryptoadapter.Adapter, email string, keys LoginKeys, onResult func(LoginResult, error)) *apipipeline.Command {
	return &apipipeline.Command{
		Tag: "us",
		Body: map[string]interface{}{
			"a":    "us",
			"user": strings.ToLower(email),
			"uh":   base64.RawURLEncoding.EncodeToString(keys.AuthKey[:]),
		},
		OnResult: func(raw json.RawMessage, err error) {
			if err != nil {
				onResult(LoginResult{}, err)
				return
			}
			res, err := parseLoginResponse(crypto, keys, raw)
			onResult(res, err)
		},
	}
}

func parseLoginResponse(crypto cryptoadapter.Adapter, keys LoginKeys, raw json.RawMessage) (LoginResult, error) {
	var wire loginWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return LoginResult{}, Error.Wrap(err)
	}

	handle, err := nodegraph.ParseHandle(wire.User)
	if err != nil {
		return LoginResult{}, Error.Wrap(err)
	}

	wrappedMaster, err := base64.RawURLEncoding.DecodeString(wire.MasterKey)
	if err != nil {
		return LoginResult{}, Error.Wrap(err)
	}
	masterRaw, err := crypto.AESECBDecrypt(keys.WrapKey[:], wrappedMaster)
	if err != nil {
		return LoginResult{}, Error.Wrap(err)
	}
	if len(masterRaw) != 16 {
		return LoginResult{}, Error.New("master key must be 16 bytes, got %d", len(masterRaw))
	}

	res := LoginResult{UserHandle: handle, SessionID: wire.SessionID}
	copy(res.MasterKey[:], masterRaw)

	if wire.PrivKey != "" {
		wrappedPriv, err := base64.RawURLEncoding.DecodeString(wire.PrivKey)
		if err != nil {
			return LoginResult{}, Error.Wrap(err)
		}
		privDER, err := crypto.AESECBDecrypt(res.MasterKey[:], wrappedPriv)
		if err != nil {
			return LoginResult{}, Error.Wrap(err)
		}
		priv, err := cryptoadapter.ParsePKCS1PrivateKey(trimKeyPadding(privDER))
		if err != nil {
			return LoginResult{}, Error.Wrap(err)
		}
		res.PrivateKey = priv
	}
	return res, nil
}

// trimKeyPadding strips the zero padding appended to the DER key before
// block-aligned wrapping. DER never ends in a zero byte (the final byte of
// a PKCS#1 structure is part of a length-prefixed integer), so trailing
// NULs are unambiguous padding.
func trimKeyPadding(b []byte) []byte {
	i := len(b)
	for i > 0 && b[i-1] == 0 {
		i--
	}
	return b[:i]
}

// Logout builds the session-teardown command. The driver performs the
// local teardown (purge graph, drop keys) regardless of whether the server
// acknowledges.
func Logout(onResult func(error)) *apipipeline.Command {
	return &apipipeline.Command{
		Tag:      "sml",
		Body:     map[string]interface{}{"a": "sml"},
		OnResult: ackOnly(onResult),
	}
}
