// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package transfer

import "coredrive.io/core/pkg/cryptoadapter"

// ChunkMAC computes the AES-CBC-MAC over one chunk's ciphertext blocks,
// chained from a zero running MAC and folded into a 16-byte value.
// ciphertext's length must be a multiple of the AES block size.
func ChunkMAC(adapter cryptoadapter.Adapter, aesKey, ciphertext []byte) ([16]byte, error) {
	running := make([]byte, aesBlockSize)
	mac, err := adapter.CBCMAC(aesKey, running, ciphertext)
	if err != nil {
		return [16]byte{}, err
	}
	var out [16]byte
	copy(out[:], mac)
	return out, nil
}

// FoldMetaMAC XORs the first 8 bytes of every chunk MAC together into the
// per-file meta-MAC fold. Chunk MACs must be supplied in file order.
func FoldMetaMAC(chunkMACs [][16]byte) [8]byte {
	var out [8]byte
	for _, mac := range chunkMACs {
		for i := 0; i < 8; i++ {
			out[i] ^= mac[i]
		}
	}
	return out
}

// EncryptMetaMAC AES-ECB-encrypts the folded meta-MAC under the node key,
// filling the 16-byte block by repeating the 8-byte fold twice and keeping
// the first half of the result.
func EncryptMetaMAC(adapter cryptoadapter.Adapter, aesKey []byte, folded [8]byte) ([8]byte, error) {
	block := make([]byte, aesBlockSize)
	copy(block[:8], folded[:])
	copy(block[8:], folded[:])
	enc, err := adapter.AESECBEncrypt(aesKey, block)
	if err != nil {
		return [8]byte{}, err
	}
	var out [8]byte
	copy(out[:], enc[:8])
	return out, nil
}

// VerifyMetaMAC reports whether the chunk MACs computed for a transfer
// fold and encrypt to the meta-MAC embedded in the node's key material; a
// transfer completes only when they match.
func VerifyMetaMAC(adapter cryptoadapter.Adapter, aesKey []byte, chunkMACs [][16]byte, want [8]byte) (bool, error) {
	got, err := EncryptMetaMAC(adapter, aesKey, FoldMetaMAC(chunkMACs))
	if err != nil {
		return false, err
	}
	return got == want, nil
}
