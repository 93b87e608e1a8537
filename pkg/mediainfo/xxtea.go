// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

// Package mediainfo implements the media-attribute codec: a fixed
// 8-byte structure describing (shortformat, width, height, fps, playtime,
// containerId, videoCodecId, audioCodecId), bit-packed with non-linear
// range compression and encrypted with XXTEA under a 4-word key derived
// from the file key, attached to file nodes as attribute type 8 (and
// optionally 9 for exotic codec combinations).
//
// The bit layout, the XXTEA implementation (including its endian-swap
// quirk), and the attribute-9 "exotic combination" fallback are protocol
// contracts with the server and must not change.
package mediainfo

import "encoding/binary"

const xxteaDelta uint32 = 0x9E3779B9

// Endian controls the XXTEA endian-swap behavior the wire format
// requires: on a little-endian host (every host this module targets) the
// key's byte order is swapped instead of the data's.
type Endian int

// Endian modes.
const (
	// EndianNone performs no conversion: used for the detach/attach of
	// already-prepared 32-bit words.
	EndianNone Endian = iota
	// EndianSwapKey swaps the key's word byte order before and after the
	// XXTEA rounds, the little-endian-host behavior the server expects.
	EndianSwapKey
)

func xxteaMX(sum, y, z uint32, p uint32, e uint32, key *[4]uint32) uint32 {
	return (((z >> 5) ^ (y << 2)) + ((y >> 3) ^ (z << 4))) ^ ((sum ^ y) + (key[(p&3)^e] ^ z))
}

func swapWords(words []uint32) {
	for i, w := range words {
		words[i] = (w>>24&0xff | w>>8&0xff00 | w<<8&0xff0000 | w<<24&0xff000000)
	}
}

// xxteaEncrypt encrypts v (length >= 2) in place under key, using the
// mx-based Corrected Block TEA round structure.
func xxteaEncrypt(v []uint32, key [4]uint32, endian Endian) {
	if endian == EndianSwapKey {
		swapWords(key[:])
	}

	n := uint32(len(v)) - 1
	z := v[n]
	q := 6 + 52/(n+1)
	var sum uint32
	for ; q > 0; q-- {
		sum += xxteaDelta
		e := (sum >> 2) & 3
		for p := uint32(0); p < n; p++ {
			y := v[p+1]
			v[p] += xxteaMX(sum, y, z, p, e, &key)
			z = v[p]
		}
		y := v[0]
		v[n] += xxteaMX(sum, y, z, n, e, &key)
		z = v[n]
	}

	if endian == EndianSwapKey {
		swapWords(key[:])
	}
}

// xxteaDecrypt is the inverse of xxteaEncrypt.
func xxteaDecrypt(v []uint32, key [4]uint32, endian Endian) {
	if endian == EndianSwapKey {
		swapWords(key[:])
	}

	n := uint32(len(v)) - 1
	y := v[0]
	q := 6 + 52/(n+1)
	sum := q * xxteaDelta
	for ; sum != 0; sum -= xxteaDelta {
		e := (sum >> 2) & 3
		for p := n; p > 0; p-- {
			z := v[p-1]
			v[p] -= xxteaMX(sum, y, z, p, e, &key)
			y = v[p]
		}
		z := v[n]
		v[0] -= xxteaMX(sum, y, z, 0, e, &key)
		y = v[0]
	}

	if endian == EndianSwapKey {
		swapWords(key[:])
	}
}

// bytesToWords unpacks a little-endian byte slice (length a multiple of 4)
// into uint32 words.
func bytesToWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}

// wordsToBytes packs uint32 words back into little-endian bytes.
func wordsToBytes(words []uint32) []byte {
	b := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}
