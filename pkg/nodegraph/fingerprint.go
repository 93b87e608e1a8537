// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package nodegraph

import (
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"io"
)

const (
	fingerprintBlocks    = 4
	fingerprintBlockSize = 16

	// smallFileThreshold is the size at or below which the whole file is
	// CRCed instead of sampling; sampling a file smaller than the sample
	// span would read overlapping blocks without adding identity.
	smallFileThreshold = fingerprintBlocks * fingerprintBlockSize
)

// ComputeFingerprint derives a file's compact identity from its content
// and modification time: the CRC of up to 4 sampled 16-byte blocks spread
// evenly across the file, plus the mtime in unix seconds. Files at or
// below 64 bytes are CRCed whole. Two files with equal fingerprints are
// treated as identical by dedup and rename detection.
func ComputeFingerprint(r io.ReaderAt, size int64, modTime int64) (Fingerprint, error) {
	h := crc32.NewIEEE()

	if size <= smallFileThreshold {
		buf := make([]byte, size)
		if size > 0 {
			if _, err := r.ReadAt(buf, 0); err != nil && err != io.EOF {
				return Fingerprint{}, Error.Wrap(err)
			}
		}
		_, _ = h.Write(buf)
		return Fingerprint{CRC: h.Sum32(), ModTime: modTime}, nil
	}

	block := make([]byte, fingerprintBlockSize)
	for i := int64(0); i < fingerprintBlocks; i++ {
		// The i-th block starts at an even spread across the file, with
		// the last block pinned to end exactly at EOF so appends always
		// change the fingerprint.
		offset := i * (size - fingerprintBlockSize) / (fingerprintBlocks - 1)
		if _, err := r.ReadAt(block, offset); err != nil && err != io.EOF {
			return Fingerprint{}, Error.Wrap(err)
		}
		_, _ = h.Write(block)
	}
	return Fingerprint{CRC: h.Sum32(), ModTime: modTime}, nil
}

// Serialize packs the fingerprint into its external base64url form: the
// 4-byte big-endian CRC followed by the 8-byte big-endian mtime.
func (f Fingerprint) Serialize() string {
	var buf [12]byte
	binary.BigEndian.PutUint32(buf[:4], f.CRC)
	binary.BigEndian.PutUint64(buf[4:], uint64(f.ModTime))
	return base64.RawURLEncoding.EncodeToString(buf[:])
}

// ParseFingerprint decodes the external form produced by Serialize.
func ParseFingerprint(s string) (Fingerprint, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Fingerprint{}, Error.Wrap(err)
	}
	if len(raw) != 12 {
		return Fingerprint{}, Error.New("fingerprint must decode to 12 bytes, got %d", len(raw))
	}
	return Fingerprint{
		CRC:     binary.BigEndian.Uint32(raw[:4]),
		ModTime: int64(binary.BigEndian.Uint64(raw[4:])),
	}, nil
}
