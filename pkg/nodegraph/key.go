// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package nodegraph

// FileKeyMaterial is the unfolded form of a 32-byte file node key: a
// 16-byte AES key, an 8-byte CTR IV (nonce), and an 8-byte meta-MAC.
// Folder keys are a bare 16-byte AES key and never fold.
type FileKeyMaterial struct {
	AESKey  [16]byte
	CTRIV   [8]byte
	MetaMAC [8]byte
}

// FoldFileKey packs (aesKey, ctrIV, metaMAC) into the wire 32-byte file
// node key: the first 16 bytes are aesKey XOR (ctrIV||metaMAC), followed by
// ctrIV and metaMAC in the clear.
func FoldFileKey(m FileKeyMaterial) [32]byte {
	var out [32]byte
	copy(out[16:24], m.CTRIV[:])
	copy(out[24:32], m.MetaMAC[:])
	for i := 0; i < 16; i++ {
		out[i] = m.AESKey[i] ^ out[16+i]
	}
	return out
}

// UnfoldFileKey is the inverse of FoldFileKey.
func UnfoldFileKey(raw [32]byte) FileKeyMaterial {
	var m FileKeyMaterial
	copy(m.CTRIV[:], raw[16:24])
	copy(m.MetaMAC[:], raw[24:32])
	for i := 0; i < 16; i++ {
		m.AESKey[i] = raw[i] ^ raw[16+i]
	}
	return m
}
