// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package transfer

import (
	"context"
	"io"
	"net/http"

	"github.com/vivint/infectious"

	"coredrive.io/core/pkg/eestream"
	"coredrive.io/core/pkg/ranger"
)

// raidStripeSize is the per-slice line width the engine buffers; a fixed
// 16-byte line keeps the stripe aligned with the AES block size.
const raidStripeSize = 16

// NewRAIDScheme returns the erasure scheme used for RAID-striped
// downloads: a six-way stripe of five data slices plus one parity slice.
func NewRAIDScheme() (*eestream.RSScheme, error) {
	fc, err := infectious.NewFEC(5, 6)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return eestream.NewRSScheme(fc, raidStripeSize), nil
}

// OpenRAIDDownload opens the six striped connections in urls (in slice
// order, 0..5) and returns a single reconstructed io.ReadCloser over size
// bytes, tolerating up to one connection being unavailable (nil or
// erroring): on failure of any one slice, its role becomes the
// reconstructed one for the remainder of the transfer.
func OpenRAIDDownload(ctx context.Context, client *http.Client, urls [6]string, offset, size int64, rs *eestream.RSScheme) (io.ReadCloser, error) {
	readers := make(map[int]io.ReadCloser, 6)
	for i, url := range urls {
		if url == "" {
			continue
		}
		r, err := ranger.NewHTTPRanger(ctx, client, url)
		if err != nil {
			continue
		}
		body, err := r.Range(ctx, offset, size)
		if err != nil {
			continue
		}
		readers[i] = body
	}
	if len(readers) < rs.RequiredCount() {
		return nil, Error.New("only %d of 6 RAID connections available, need %d", len(readers), rs.RequiredCount())
	}
	return eestream.DecodeReaders(ctx, readers, rs, size, 0), nil
}
