// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package nodegraph

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeFingerprintDeterministic(t *testing.T) {
	data := bytes.Repeat([]byte("coredrive-fingerprint-sample."), 1000)
	r := bytes.NewReader(data)

	fp1, err := ComputeFingerprint(r, int64(len(data)), 1700000000)
	require.NoError(t, err)
	fp2, err := ComputeFingerprint(r, int64(len(data)), 1700000000)
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
}

func TestComputeFingerprintMtimeChangesIdentity(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 5000)
	r := bytes.NewReader(data)

	fp1, err := ComputeFingerprint(r, int64(len(data)), 1700000000)
	require.NoError(t, err)
	fp2, err := ComputeFingerprint(r, int64(len(data)), 1700000001)
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp2)
	assert.Equal(t, fp1.CRC, fp2.CRC)
}

func TestComputeFingerprintTailSensitive(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 5000)
	tweaked := append(append([]byte(nil), data[:len(data)-1]...), 'b')

	fp1, err := ComputeFingerprint(bytes.NewReader(data), int64(len(data)), 1)
	require.NoError(t, err)
	fp2, err := ComputeFingerprint(bytes.NewReader(tweaked), int64(len(tweaked)), 1)
	require.NoError(t, err)
	assert.NotEqual(t, fp1.CRC, fp2.CRC, "last sampled block ends at EOF, so a tail change must be visible")
}

func TestComputeFingerprintSmallFile(t *testing.T) {
	data := []byte("tiny")
	fp, err := ComputeFingerprint(bytes.NewReader(data), int64(len(data)), 42)
	require.NoError(t, err)
	assert.NotZero(t, fp.CRC)
	assert.EqualValues(t, 42, fp.ModTime)
}

func TestComputeFingerprintEmptyFile(t *testing.T) {
	fp, err := ComputeFingerprint(bytes.NewReader(nil), 0, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 7, fp.ModTime)
}

func TestFingerprintSerializeRoundTrip(t *testing.T) {
	fp := Fingerprint{CRC: 0xdeadbeef, ModTime: 1700000000}
	parsed, err := ParseFingerprint(fp.Serialize())
	require.NoError(t, err)
	assert.Equal(t, fp, parsed)
}

func TestParseFingerprintRejectsBadInput(t *testing.T) {
	_, err := ParseFingerprint("not base64!!")
	assert.Error(t, err)
	_, err = ParseFingerprint("AAAA")
	assert.Error(t, err)
}
