// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package publiclink_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coredrive.io/core/pkg/nodegraph"
	"coredrive.io/core/pkg/publiclink"
)

func handle(b byte) nodegraph.Handle {
	var h nodegraph.Handle
	h[0] = b
	return h
}

func TestPlainLinkRoundTripsFile(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	l := publiclink.PlainLink{Host: "coredrive.io", Kind: publiclink.KindFile, Handle: handle(7), FileKey: key}

	got, err := publiclink.ParsePlainLink(l.String())
	require.NoError(t, err)
	assert.Equal(t, l, got)
}

func TestPlainLinkRoundTripsFolder(t *testing.T) {
	key := make([]byte, 16)
	for i := range key {
		key[i] = byte(2 * i)
	}
	l := publiclink.PlainLink{Host: "coredrive.io", Kind: publiclink.KindFolder, Handle: handle(9), FileKey: key}

	got, err := publiclink.ParsePlainLink(l.String())
	require.NoError(t, err)
	assert.Equal(t, l, got)
}

func TestParsePlainLinkRejectsWrongKeyLength(t *testing.T) {
	l := publiclink.PlainLink{Host: "coredrive.io", Kind: publiclink.KindFile, Handle: handle(1), FileKey: make([]byte, 16)}
	_, err := publiclink.ParsePlainLink(l.String())
	assert.Error(t, err)
}

func TestParsePlainLinkRejectsMissingFragment(t *testing.T) {
	_, err := publiclink.ParsePlainLink("https://coredrive.io/file/AAAAAAAAAAAA")
	assert.Error(t, err)
}
