// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package commands

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coredrive.io/core/pkg/cryptoadapter"
)

func TestDeriveLoginKeysDeterministic(t *testing.T) {
	crypto := cryptoadapter.Default{}
	salt := []byte("0123456789abcdef")

	k1 := DeriveLoginKeys(crypto, "correct horse", salt)
	k2 := DeriveLoginKeys(crypto, "correct horse", salt)
	assert.Equal(t, k1, k2)

	k3 := DeriveLoginKeys(crypto, "wrong horse", salt)
	assert.NotEqual(t, k1.AuthKey, k3.AuthKey)
	assert.NotEqual(t, k1.WrapKey, k3.WrapKey)
}

func TestPreloginParsesSalt(t *testing.T) {
	var got PreloginResult
	cmd := Prelogin("User@Example.COM", func(res PreloginResult, err error) {
		require.NoError(t, err)
		got = res
	})
	m := bodyJSON(t, cmd.Body)
	assert.Equal(t, "us0", m["a"])
	assert.Equal(t, "user@example.com", m["user"], "email is lowercased on the wire")

	salt := []byte("persalt-16bytes!")
	cmd.OnResult(json.RawMessage(fmt.Sprintf(`{"s":%q}`, base64.RawURLEncoding.EncodeToString(salt))), nil)
	assert.Equal(t, salt, got.Salt)
}

func TestLoginUnwrapsAccountKeys(t *testing.T) {
	crypto := cryptoadapter.Default{}
	keys := DeriveLoginKeys(crypto, "hunter2", []byte("some-account-salt"))

	masterKey := []byte("master-key-16byt")
	wrappedMaster, err := crypto.AESECBEncrypt(keys.WrapKey[:], masterKey)
	require.NoError(t, err)

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der := x509.MarshalPKCS1PrivateKey(rsaKey)
	padded := make([]byte, (len(der)+15)/16*16)
	copy(padded, der)
	wrappedPriv, err := crypto.AESECBEncrypt(masterKey, padded)
	require.NoError(t, err)

	resp, err := json.Marshal(map[string]string{
		"u":     "dXNlcjAx",
		"k":     base64.RawURLEncoding.EncodeToString(wrappedMaster),
		"privk": base64.RawURLEncoding.EncodeToString(wrappedPriv),
		"csid":  "session-token",
	})
	require.NoError(t, err)

	var got LoginResult
	cmd := Login(crypto, "user@example.com", keys, func(res LoginResult, err error) {
		require.NoError(t, err)
		got = res
	})
	cmd.OnResult(resp, nil)

	assert.Equal(t, "session-token", got.SessionID)
	assert.Equal(t, masterKey, got.MasterKey[:])
	require.NotNil(t, got.PrivateKey)
	assert.Zero(t, got.PrivateKey.D.Cmp(rsaKey.D))
}

func TestLoginRejectsWrongWrapKey(t *testing.T) {
	crypto := cryptoadapter.Default{}
	right := DeriveLoginKeys(crypto, "right", []byte("salt"))
	wrong := DeriveLoginKeys(crypto, "wrong", []byte("salt"))

	wrappedMaster, err := crypto.AESECBEncrypt(right.WrapKey[:], []byte("master-key-16byt"))
	require.NoError(t, err)

	// Decrypting with the wrong key yields 16 garbage bytes, which still
	// "succeeds" at the ECB layer; the response is only rejected once the
	// privk blob fails to parse. A response without privk therefore cannot
	// detect a wrong password locally — the server's auth check (uh) is
	// what gates that path.
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der := x509.MarshalPKCS1PrivateKey(rsaKey)
	padded := make([]byte, (len(der)+15)/16*16)
	copy(padded, der)
	wrappedPriv, err := crypto.AESECBEncrypt([]byte("master-key-16byt"), padded)
	require.NoError(t, err)

	resp, _ := json.Marshal(map[string]string{
		"u":     "dXNlcjAx",
		"k":     base64.RawURLEncoding.EncodeToString(wrappedMaster),
		"privk": base64.RawURLEncoding.EncodeToString(wrappedPriv),
		"csid":  "sid",
	})

	var gotErr error
	cmd := Login(crypto, "user@example.com", wrong, func(_ LoginResult, err error) { gotErr = err })
	cmd.OnResult(resp, nil)
	assert.Error(t, gotErr)
}
