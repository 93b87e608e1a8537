// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package ranger

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPRanger turns a temporary download URL (a single URL, or one of the
// six striped RAID URLs) into a Ranger,
// issuing an HTTP HEAD to learn the content length and, per Range call, a
// GET with a "Range: bytes=..." header scoped to [offset, offset+length).
type HTTPRanger struct {
	client *http.Client
	url    string
	size   int64
}

// NewHTTPRanger HEADs url to learn its size and returns a Ranger over it.
func NewHTTPRanger(ctx context.Context, client *http.Client, url string) (*HTTPRanger, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, Error.New("unexpected status %d from %s", resp.StatusCode, url)
	}
	return &HTTPRanger{client: client, url: url, size: resp.ContentLength}, nil
}

// Size implements Ranger.
func (h *HTTPRanger) Size() int64 { return h.size }

// Range implements Ranger, issuing a ranged GET for [offset, offset+length).
func (h *HTTPRanger) Range(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	if offset < 0 {
		return nil, Error.New("negative offset")
	}
	if length < 0 {
		return nil, Error.New("negative length")
	}
	if offset+length > h.size {
		return nil, Error.New("range beyond end of data")
	}
	if length == 0 {
		return io.NopCloser(bytesReader(nil)), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, Error.New("unexpected status %d ranging %s", resp.StatusCode, h.url)
	}
	return resp.Body, nil
}
