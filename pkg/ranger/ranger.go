// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

// Package ranger provides a composable "range of bytes" abstraction used
// throughout the transfer engine: a Ranger knows its
// total size and can hand back a reader for any [offset, offset+length)
// sub-range without re-reading what came before it, which is what lets the
// RAID decoder and the direct-read engine seek into the middle of a large
// ciphertext stream cheaply.
package ranger

import (
	"context"
	"io"

	"github.com/zeebo/errs"
)

// Error is the ranger error class.
var Error = errs.Class("ranger")

// Ranger is a source of byte ranges of a known total Size.
type Ranger interface {
	Size() int64
	Range(ctx context.Context, offset, length int64) (io.ReadCloser, error)
}

// ByteRanger implements Ranger over an in-memory byte slice.
type ByteRanger []byte

// Size implements Ranger.
func (b ByteRanger) Size() int64 { return int64(len(b)) }

// Range implements Ranger.
func (b ByteRanger) Range(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	if offset < 0 {
		return nil, Error.New("negative offset")
	}
	if length < 0 {
		return nil, Error.New("negative length")
	}
	if offset+length > int64(len(b)) {
		return nil, Error.New("range beyond end of data: %d+%d > %d", offset, length, len(b))
	}
	return io.NopCloser(bytesReader(b[offset : offset+length])), nil
}

type bytesReader []byte

func (r bytesReader) Read(p []byte) (int, error) {
	n := copy(p, r)
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

type concatRanger []Ranger

// Concat concatenates the given Rangers into a single Ranger spanning all
// of their bytes in order.
func Concat(r ...Ranger) Ranger {
	if len(r) == 1 {
		return r[0]
	}
	return concatRanger(r)
}

func (c concatRanger) Size() int64 {
	var size int64
	for _, r := range c {
		size += r.Size()
	}
	return size
}

func (c concatRanger) Range(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	if offset < 0 {
		return nil, Error.New("negative offset")
	}
	if length < 0 {
		return nil, Error.New("negative length")
	}
	if offset+length > c.Size() {
		return nil, Error.New("range beyond end of data")
	}

	var readers []io.Reader
	var closers []io.Closer
	for _, r := range c {
		if length == 0 {
			break
		}
		if offset >= r.Size() {
			offset -= r.Size()
			continue
		}
		sublength := length
		if sublength > r.Size()-offset {
			sublength = r.Size() - offset
		}
		rc, err := r.Range(ctx, offset, sublength)
		if err != nil {
			for _, c := range closers {
				_ = c.Close()
			}
			return nil, err
		}
		readers = append(readers, rc)
		closers = append(closers, rc)
		offset = 0
		length -= sublength
	}

	return &multiReadCloser{r: io.MultiReader(readers...), closers: closers}, nil
}

type multiReadCloser struct {
	r       io.Reader
	closers []io.Closer
}

func (m *multiReadCloser) Read(p []byte) (int, error) { return m.r.Read(p) }

func (m *multiReadCloser) Close() error {
	var first error
	for _, c := range m.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type subrange struct {
	r      Ranger
	offset int64
	length int64
}

// Subrange returns a Ranger restricted to [offset, offset+length) of r.
func Subrange(r Ranger, offset, length int64) (Ranger, error) {
	if offset < 0 {
		return nil, Error.New("negative offset")
	}
	if length < 0 {
		return nil, Error.New("negative length")
	}
	if offset+length > r.Size() {
		return nil, Error.New("subrange beyond end of data")
	}
	return &subrange{r: r, offset: offset, length: length}, nil
}

func (s *subrange) Size() int64 { return s.length }

func (s *subrange) Range(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	if offset < 0 {
		return nil, Error.New("negative offset")
	}
	if length < 0 {
		return nil, Error.New("negative length")
	}
	if offset+length > s.length {
		return nil, Error.New("range beyond end of data")
	}
	return s.r.Range(ctx, s.offset+offset, length)
}
