// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

// Package paths implements remote-tree path handling: splitting and
// joining slash-separated segment paths, plus the sync reconciler's
// filename sanitization (idempotent by construction) and UTF-8 name
// normalization.
package paths

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Path is a parsed slash-separated path: empty segments from leading,
// trailing, or repeated slashes are dropped.
type Path []string

// New splits each of segs on "/" and concatenates the non-empty resulting
// segments, so New("a/b", "/c/", "d") == New("a", "b", "c", "d").
func New(segs ...string) Path {
	p := Path{}
	for _, seg := range segs {
		for _, part := range strings.Split(seg, "/") {
			if part != "" {
				p = append(p, part)
			}
		}
	}
	return p
}

// String re-joins the path with "/".
func (p Path) String() string { return strings.Join(p, "/") }

// Base returns the last segment, or "" for an empty path.
func (p Path) Base() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Parent returns all but the last segment.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return Path{}
	}
	return p[:len(p)-1]
}

// replaceForbidden maps characters that are valid in the remote tree but
// forbidden on common local filesystems (and vice versa is not attempted:
// the forward mapping is lossy by construction, which is why it must stay
// idempotent rather than reversible).
var replaceForbidden = strings.NewReplacer(
	"\\", "＼",
	"/", "／",
	":", "：",
	"*", "＊",
	"?", "？",
	"\"", "＂",
	"<", "＜",
	">", "＞",
	"|", "｜",
)

// NormalizeName applies Unicode NFC normalization to a single path
// component, the comparison form used by syncdown/syncup when matching
// local children to remote children by name.
func NormalizeName(name string) string {
	return norm.NFC.String(name)
}

// SanitizeName replaces characters forbidden in the host filesystem with
// their fullwidth Unicode lookalikes and trims trailing dots/spaces (which
// Windows forbids), producing a name safe to create on any supported
// filesystem. It is idempotent: SanitizeName(SanitizeName(x)) ==
// SanitizeName(x), since the replacement characters it introduces are
// themselves not forbidden and its trimming leaves no new trailing
// dots/spaces.
func SanitizeName(name string) string {
	name = replaceForbidden.Replace(name)
	name = strings.TrimRightFunc(name, func(r rune) bool {
		return r == '.' || unicode.IsSpace(r)
	})
	if name == "" {
		name = "_"
	}
	return name
}
