// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package ranger_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coredrive.io/core/pkg/ranger"
)

func readRange(t *testing.T, r ranger.Ranger, offset, length int64) (string, error) {
	t.Helper()
	rc, err := r.Range(context.Background(), offset, length)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	return string(data), err
}

func TestByteRanger(t *testing.T) {
	for _, example := range []struct {
		data string
		size, offset, length int64
		substr string
		fail   bool
	}{
		{"", 0, 0, 0, "", false},
		{"abcdef", 6, 0, 0, "", false},
		{"abcdef", 6, 0, 6, "abcdef", false},
		{"abcdef", 6, 0, 5, "abcde", false},
		{"abcdef", 6, 1, 4, "bcde", false},
		{"abcdef", 6, 2, 4, "cdef", false},
		{"abcdef", 6, 0, 7, "", true},
		{"abcdef", 6, -1, 7, "", true},
	} {
		r := ranger.ByteRanger([]byte(example.data))
		assert.Equal(t, example.size, r.Size())

		got, err := readRange(t, r, example.offset, example.length)
		if example.fail {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, example.substr, got)
	}
}

func TestConcat(t *testing.T) {
	a := ranger.ByteRanger([]byte("abcdef"))
	b := ranger.ByteRanger([]byte("ghijkl"))
	c := ranger.Concat(a, b)

	assert.Equal(t, int64(12), c.Size())

	got, err := readRange(t, c, 5, 4)
	require.NoError(t, err)
	assert.Equal(t, "fghi", got)
}

func TestSubrange(t *testing.T) {
	r, err := ranger.Subrange(ranger.ByteRanger([]byte("abcdefghijkl")), 8, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), r.Size())

	got, err := readRange(t, r, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, "jkl", got)
}
