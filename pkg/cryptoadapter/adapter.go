// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

// Package cryptoadapter is the crypto-primitives trait the core consumes:
// it is the only place in the module that touches raw key material, so
// every other package depends on this interface rather than on crypto/*
// directly.
package cryptoadapter

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"

	"github.com/zeebo/errs"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/pbkdf2"
)

// Error is the cryptoadapter error class.
var Error = errs.Class("cryptoadapter")

// Adapter collects the primitives the core needs: AES-128 ECB/CBC/CTR, the
// AES-CBC-MAC variant used for chunk MACs, RSA-2048 PKCS#1-v1.5 decrypt,
// SHA-256/512, HMAC-SHA-256/512, PBKDF2-HMAC-SHA-512, Ed25519, X25519, and
// XXTEA (XXTEA lives in pkg/mediainfo, the only component that needs it).
//
// The default implementation wraps the Go standard library. AES-ECB has no
// standard-library mode object and no maintained third-party package worth
// depending on, so it is implemented directly against cipher.Block.
type Adapter interface {
	AESECBEncrypt(key, plaintext []byte) ([]byte, error)
	AESECBDecrypt(key, ciphertext []byte) ([]byte, error)

	AESCBCEncrypt(key, iv, plaintext []byte) ([]byte, error)
	AESCBCDecrypt(key, iv, ciphertext []byte) ([]byte, error)

	NewCTRStream(key, iv []byte) (cipher.Stream, error)

	// CBCMAC folds the AES-CBC-MAC over ciphertext (assumed already a
	// multiple of the block size) into a 16-byte running MAC, chained from
	// running.
	CBCMAC(key, running, ciphertext []byte) ([]byte, error)

	RSADecryptPKCS1v15(priv *rsa.PrivateKey, ciphertext []byte) ([]byte, error)

	SHA256(data []byte) [32]byte
	SHA512(data []byte) [64]byte
	HMACSHA256(key, data []byte) []byte
	HMACSHA512(key, data []byte) []byte
	PBKDF2HMACSHA512(password, salt []byte, iter, keyLen int) []byte

	Ed25519Sign(priv ed25519.PrivateKey, message []byte) []byte
	Ed25519Verify(pub ed25519.PublicKey, message, sig []byte) bool
	X25519(scalar, point []byte) ([]byte, error)
}

// Default is the standard-library backed Adapter.
type Default struct{}

var _ Adapter = Default{}

// AESECBEncrypt encrypts plaintext (which must be a multiple of the AES
// block size) block-by-block in ECB mode. This is the mode used for the
// meta-MAC and for the node-key rewrap of RSA-unwrapped keys.
func (Default) AESECBEncrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if len(plaintext)%block.BlockSize() != 0 {
		return nil, Error.New("plaintext is not a multiple of the block size")
	}
	out := make([]byte, len(plaintext))
	for i := 0; i < len(plaintext); i += block.BlockSize() {
		block.Encrypt(out[i:i+block.BlockSize()], plaintext[i:i+block.BlockSize()])
	}
	return out, nil
}

// AESECBDecrypt is the inverse of AESECBEncrypt.
func (Default) AESECBDecrypt(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if len(ciphertext)%block.BlockSize() != 0 {
		return nil, Error.New("ciphertext is not a multiple of the block size")
	}
	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += block.BlockSize() {
		block.Decrypt(out[i:i+block.BlockSize()], ciphertext[i:i+block.BlockSize()])
	}
	return out, nil
}

// AESCBCEncrypt encrypts plaintext (a multiple of the block size) with
// AES-CBC, used for the node-attribute blob.
func (Default) AESCBCEncrypt(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if len(plaintext)%block.BlockSize() != 0 {
		return nil, Error.New("plaintext is not a multiple of the block size")
	}
	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plaintext)
	return out, nil
}

// AESCBCDecrypt is the inverse of AESCBCEncrypt.
func (Default) AESCBCDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if len(ciphertext)%block.BlockSize() != 0 {
		return nil, Error.New("ciphertext is not a multiple of the block size")
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return out, nil
}

// NewCTRStream returns an AES-CTR keystream positioned at the given IV,
// used to derive the independently-seekable per-chunk stream.
func (Default) NewCTRStream(key, iv []byte) (cipher.Stream, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return cipher.NewCTR(block, iv), nil
}

// CBCMAC computes the AES-CBC-MAC of ciphertext, seeded with the CBC
// chaining value running: each 16-byte ciphertext block is CBC-encrypted
// against the previous output (starting from running), and the final
// block is the chunk MAC. Empty input returns running unchanged.
func (Default) CBCMAC(key, running, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if len(ciphertext)%block.BlockSize() != 0 {
		return nil, Error.New("ciphertext is not a multiple of the block size")
	}
	mac := make([]byte, block.BlockSize())
	copy(mac, running)
	enc := cipher.NewCBCEncrypter(block, mac)
	out := make([]byte, len(ciphertext))
	enc.CryptBlocks(out, ciphertext)
	if len(out) == 0 {
		return mac, nil
	}
	copy(mac, out[len(out)-block.BlockSize():])
	return mac, nil
}

// RSADecryptPKCS1v15 unwraps an RSA-2048 PKCS#1-v1.5 wrapped key, used to
// unwrap the authring/keyring-distributed node and share keys.
func (Default) RSADecryptPKCS1v15(priv *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	out, err := rsa.DecryptPKCS1v15(rand.Reader, priv, ciphertext)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return out, nil
}

// SHA256 hashes data with SHA-256.
func (Default) SHA256(data []byte) [32]byte { return sha256.Sum256(data) }

// SHA512 hashes data with SHA-512.
func (Default) SHA512(data []byte) [64]byte { return sha512.Sum512(data) }

// HMACSHA256 computes HMAC-SHA-256.
func (Default) HMACSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// HMACSHA512 computes HMAC-SHA-512.
func (Default) HMACSHA512(key, data []byte) []byte {
	mac := hmac.New(sha512.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// PBKDF2HMACSHA512 derives keyLen bytes; the password-link codec uses
// 100000 iterations and a 64-byte output.
func (Default) PBKDF2HMACSHA512(password, salt []byte, iter, keyLen int) []byte {
	return pbkdf2.Key(password, salt, iter, keyLen, sha512.New)
}

// Ed25519Sign signs message with priv.
func (Default) Ed25519Sign(priv ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(priv, message)
}

// Ed25519Verify verifies sig over message against pub.
func (Default) Ed25519Verify(pub ed25519.PublicKey, message, sig []byte) bool {
	return ed25519.Verify(pub, message, sig)
}

// X25519 performs scalar multiplication for contact-verification key
// agreement.
func (Default) X25519(scalar, point []byte) ([]byte, error) {
	out, err := curve25519.X25519(scalar, point)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return out, nil
}

// ParsePKCS1PrivateKey parses a DER-encoded RSA private key, a convenience
// used when loading the account keyring from persistence.
func ParsePKCS1PrivateKey(der []byte) (*rsa.PrivateKey, error) {
	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return key, nil
}
