// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package cryptoadapter_test

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coredrive.io/core/pkg/cryptoadapter"
)

func randBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestAESECBRoundTrip(t *testing.T) {
	a := cryptoadapter.Default{}
	key := randBytes(t, 16)
	plaintext := randBytes(t, 48)

	ciphertext, err := a.AESECBEncrypt(key, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := a.AESECBDecrypt(key, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestAESECBRejectsUnalignedInput(t *testing.T) {
	a := cryptoadapter.Default{}
	_, err := a.AESECBEncrypt(randBytes(t, 16), randBytes(t, 17))
	assert.Error(t, err)
}

func TestAESCBCRoundTrip(t *testing.T) {
	a := cryptoadapter.Default{}
	key := randBytes(t, 16)
	iv := make([]byte, 16)
	plaintext := randBytes(t, 64)

	ciphertext, err := a.AESCBCEncrypt(key, iv, plaintext)
	require.NoError(t, err)

	decrypted, err := a.AESCBCDecrypt(key, iv, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestCTRStreamIsSeekableBySeed(t *testing.T) {
	a := cryptoadapter.Default{}
	key := randBytes(t, 16)
	iv := randBytes(t, 16)
	data := randBytes(t, 128)

	stream1, err := a.NewCTRStream(key, iv)
	require.NoError(t, err)
	out1 := make([]byte, len(data))
	stream1.XORKeyStream(out1, data)

	stream2, err := a.NewCTRStream(key, iv)
	require.NoError(t, err)
	out2 := make([]byte, len(data))
	stream2.XORKeyStream(out2, data)

	assert.Equal(t, out1, out2)
	assert.NotEqual(t, data, out1)
}

func TestCBCMACDiffersOnDifferentData(t *testing.T) {
	a := cryptoadapter.Default{}
	key := randBytes(t, 16)
	running := make([]byte, 16)

	mac1, err := a.CBCMAC(key, running, randBytes(t, 32))
	require.NoError(t, err)
	mac2, err := a.CBCMAC(key, running, randBytes(t, 32))
	require.NoError(t, err)

	assert.Len(t, mac1, 16)
	assert.NotEqual(t, mac1, mac2)
}

func TestPBKDF2Deterministic(t *testing.T) {
	a := cryptoadapter.Default{}
	out1 := a.PBKDF2HMACSHA512([]byte("password"), []byte("salt"), 1000, 64)
	out2 := a.PBKDF2HMACSHA512([]byte("password"), []byte("salt"), 1000, 64)
	assert.Equal(t, out1, out2)
	assert.Len(t, out1, 64)
}

func TestEd25519SignVerify(t *testing.T) {
	a := cryptoadapter.Default{}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	message := []byte("hello")
	sig := a.Ed25519Sign(priv, message)
	assert.True(t, a.Ed25519Verify(pub, message, sig))
	assert.False(t, a.Ed25519Verify(pub, []byte("tampered"), sig))
}

func TestX25519SharedSecretAgrees(t *testing.T) {
	a := cryptoadapter.Default{}

	var aScalar, bScalar [32]byte
	copy(aScalar[:], randBytes(t, 32))
	copy(bScalar[:], randBytes(t, 32))

	basePoint := make([]byte, 32)
	basePoint[0] = 9

	aPublic, err := a.X25519(aScalar[:], basePoint)
	require.NoError(t, err)
	bPublic, err := a.X25519(bScalar[:], basePoint)
	require.NoError(t, err)

	aShared, err := a.X25519(aScalar[:], bPublic)
	require.NoError(t, err)
	bShared, err := a.X25519(bScalar[:], aPublic)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(aShared, bShared))
}
