// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

// Package publiclink implements the public-link codec: plain links
// of the form https://<host>/{file|folder}/<base64ph>#<base64key>, and the
// binary layout for password-protected links.
package publiclink

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/zeebo/errs"

	"coredrive.io/core/pkg/nodegraph"
)

// Error is the public-link error class.
var Error = errs.Class("publiclink")

// Kind distinguishes a file link from a folder link.
type Kind byte

// Kinds.
const (
	KindFile Kind = iota
	KindFolder
)

// linkEncoding is the url-safe, unpadded base64 alphabet links use.
var linkEncoding = base64.RawURLEncoding

// PlainLink is a public link with the key carried in the URL fragment.
type PlainLink struct {
	Host    string
	Kind    Kind
	Handle  nodegraph.Handle
	FileKey []byte // 32 bytes for a file, 16 bytes for a folder
}

// String renders the link as https://<host>/{file|folder}/<base64ph>#<base64key>.
func (l PlainLink) String() string {
	segment := "file"
	if l.Kind == KindFolder {
		segment = "folder"
	}
	return fmt.Sprintf("https://%s/%s/%s#%s", l.Host, segment,
		linkEncoding.EncodeToString(l.Handle[:]), linkEncoding.EncodeToString(l.FileKey))
}

// ParsePlainLink parses a string produced by PlainLink.String.
func ParsePlainLink(raw string) (PlainLink, error) {
	const prefix = "https://"
	if !strings.HasPrefix(raw, prefix) {
		return PlainLink{}, Error.New("missing https scheme")
	}
	rest := raw[len(prefix):]

	hashIdx := strings.IndexByte(rest, '#')
	if hashIdx < 0 {
		return PlainLink{}, Error.New("missing key fragment")
	}
	head, keyPart := rest[:hashIdx], rest[hashIdx+1:]

	hostAndSegment := strings.SplitN(head, "/", 3)
	if len(hostAndSegment) != 3 {
		return PlainLink{}, Error.New("malformed path")
	}
	host, segment, phPart := hostAndSegment[0], hostAndSegment[1], hostAndSegment[2]

	var kind Kind
	switch segment {
	case "file":
		kind = KindFile
	case "folder":
		kind = KindFolder
	default:
		return PlainLink{}, Error.New("unrecognized link segment %q", segment)
	}

	phBytes, err := linkEncoding.DecodeString(phPart)
	if err != nil {
		return PlainLink{}, Error.Wrap(err)
	}
	if len(phBytes) != len(nodegraph.Handle{}) {
		return PlainLink{}, Error.New("public handle must be %d bytes, got %d", len(nodegraph.Handle{}), len(phBytes))
	}

	key, err := linkEncoding.DecodeString(keyPart)
	if err != nil {
		return PlainLink{}, Error.Wrap(err)
	}
	if err := validateKeyLen(kind, len(key)); err != nil {
		return PlainLink{}, err
	}

	var h nodegraph.Handle
	copy(h[:], phBytes)
	return PlainLink{Host: host, Kind: kind, Handle: h, FileKey: key}, nil
}

func validateKeyLen(kind Kind, n int) error {
	want := 32
	if kind == KindFolder {
		want = 16
	}
	if n != want {
		return Error.New("key must be %d bytes for this link kind, got %d", want, n)
	}
	return nil
}
