// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package httptransport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"coredrive.io/core/pkg/coreerrs"
)

// UploadChunk POSTs a chunk's ciphertext to a temporary upload URL with
// ?c=<offset> when the chunk is not the first; a 200 on the last chunk
// carries the binary upload token. A non-final chunk's response body is
// empty.
func (c *Client) UploadChunk(ctx context.Context, url string, offset int64, ciphertext []byte, final bool) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, noBytesTimeout)
	defer cancel()

	target := url
	if offset > 0 {
		target = fmt.Sprintf("%s?c=%d", url, offset)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(ciphertext))
	if err != nil {
		return nil, Error.Wrap(err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, coreerrs.New(coreerrs.KindNetworkTransient, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, coreerrs.New(coreerrs.KindNetworkTransient, "", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, coreerrs.New(coreerrs.KindNetworkTransient, fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	if !final {
		return nil, nil
	}
	return body, nil
}
