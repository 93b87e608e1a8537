// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

// Package httptransport is the concrete net/http binding for the server
// API: the /cs command-batch endpoint, the /wsc
// long-poll event stream, and the /sc alerts-catchup endpoint, plus the
// request/response timeouts (a 60s deadline per request, 6 minutes per
// long-poll).
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"coredrive.io/core/pkg/apipipeline"
	"coredrive.io/core/pkg/coreerrs"
)

// Error is the httptransport error class.
var Error = errs.Class("httptransport")

const (
	// noBytesTimeout is the stall window for a single request. It is
	// applied as a whole-request context deadline, not reset by bytes
	// arriving: a request still transferring when it elapses is cut off
	// and treated as stalled too.
	noBytesTimeout = 60 * time.Second
	// longPollCeiling is the hard cap on a /wsc long-poll; the server
	// normally responds within 5 minutes.
	longPollCeiling = 6 * time.Minute

	apiVersion = 2

	// lockProbeTimeout bounds the cheap /cs?wlt=1 probe issued when an
	// in-flight command batch stalls past noBytesTimeout.
	lockProbeTimeout = 10 * time.Second
)

// Endpoint is the query-parameter context every request carries.
type Endpoint struct {
	Host      string
	Scheme    string // defaults to "https" when empty; tests may set "http"
	SessionID string // sid
	FolderKey string // n, set only for folder-link sessions
	AppKey    string
	Lang      string
}

// Client is the process-wide HTTP transport singleton: one *http.Client,
// reused for /cs, /wsc, and /sc, plus upload/download chunk transfers.
type Client struct {
	http *http.Client
	log  *zap.Logger

	reqTimeout time.Duration

	mu sync.Mutex
	ep Endpoint
}

// New returns a Client. A nil logger falls back to zap.NewNop so tests
// need not thread one through.
func New(ep Endpoint, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http:       &http.Client{Timeout: longPollCeiling + 30*time.Second},
		reqTimeout: noBytesTimeout,
		ep:         ep,
		log:        log,
	}
}

// SetRequestTimeout overrides the no-bytes window Send applies to /cs
// requests, for hosts (and tests) that need a shorter stall threshold.
// UploadChunk and AlertsCatchup keep the fixed noBytesTimeout.
func (c *Client) SetRequestTimeout(d time.Duration) { c.reqTimeout = d }

// endpoint returns a snapshot of the endpoint, safe to read concurrently
// with SetSessionID from the driver goroutine.
func (c *Client) endpoint() Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ep
}

// SetSessionID installs the sid carried on every subsequent request,
// called once login completes (or a stored session is resumed).
func (c *Client) SetSessionID(sid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ep.SessionID = sid
}

// buildURL appends the endpoint's standing query parameters plus extra to
// path (one of "/cs", "/wsc", "/sc").
func (c *Client) buildURL(path string, reqID string, extra url.Values) string {
	ep := c.endpoint()

	q := url.Values{}
	if ep.SessionID != "" {
		q.Set("sid", ep.SessionID)
	}
	if ep.FolderKey != "" {
		q.Set("n", ep.FolderKey)
	}
	if ep.AppKey != "" {
		q.Set("ak", ep.AppKey)
	}
	if ep.Lang != "" {
		q.Set("lang", ep.Lang)
	}
	q.Set("v", fmt.Sprintf("%d", apiVersion))
	if reqID != "" {
		q.Set("id", reqID)
	}
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	scheme := ep.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s?%s", scheme, ep.Host, path, q.Encode())
}

// HTTPClient exposes the underlying *http.Client so other transport-needing
// components (e.g. pkg/ranger's HTTPRanger for direct reads) share the same
// connection pool and timeouts instead of constructing their own.
func (c *Client) HTTPClient() *http.Client { return c.http }

var _ apipipeline.Sender = (*Client)(nil)

// Send implements apipipeline.Sender against the real /cs endpoint. A
// request that stalls past the no-bytes window is not failed outright: the
// lock probe first asks the server whether it is merely busy.
func (c *Client) Send(ctx context.Context, reqID string, batch json.RawMessage) (json.RawMessage, error) {
	sendCtx, cancel := context.WithTimeout(ctx, c.reqTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, c.buildURL("/cs", reqID, nil), bytes.NewReader(batch))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, c.classifyStall(ctx, reqID, err)
		}
		return nil, coreerrs.New(coreerrs.KindNetworkTransient, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, coreerrs.New(coreerrs.KindNetworkTransient, "", err)
	}
	if resp.StatusCode >= 500 {
		c.log.Debug("cs request hit server error", zap.Int("status", resp.StatusCode), zap.String("reqid", reqID))
		return nil, coreerrs.New(coreerrs.KindNetworkTransient, fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	return body, nil
}

// classifyStall implements the lock probe for a command batch that went
// the whole no-bytes window without a byte: a short GET to /cs?wlt=1
// whose response discriminates "server busy" (the API lock is held; the
// same batch retries under the normal backoff) from "client should
// reconnect" (the probe is unreachable too, or the server reports nothing
// in progress).
func (c *Client) classifyStall(ctx context.Context, reqID string, cause error) error {
	probeCtx, cancel := context.WithTimeout(ctx, lockProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet,
		c.buildURL("/cs", reqID, url.Values{"wlt": {"1"}}), nil)
	if err != nil {
		return coreerrs.New(coreerrs.KindNetworkTransient, "", cause)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("lock probe unreachable", zap.String("reqid", reqID), zap.Error(err))
		return coreerrs.New(coreerrs.KindNetworkTransient, "", cause)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return coreerrs.New(coreerrs.KindNetworkTransient, "", cause)
	}

	var busy int
	if json.Unmarshal(body, &busy) == nil && busy == 1 {
		c.log.Debug("lock probe reports server busy", zap.String("reqid", reqID))
		return coreerrs.New(coreerrs.KindRateLimit, coreerrs.CodeAgain, cause)
	}
	return coreerrs.New(coreerrs.KindNetworkTransient, "", cause)
}

// LongPoll issues one /wsc request with the 6-minute ceiling and returns
// the raw response body (a "0" keep-alive, or a full action-packet
// response ending in an sn scalar.
func (c *Client) LongPoll(ctx context.Context, sn string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, longPollCeiling)
	defer cancel()

	extra := url.Values{}
	if sn != "" {
		extra.Set("sn", sn)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL("/wsc", "", extra), nil)
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
	return body, nil
}

// AlertsCatchup fetches up to 50 unseen user alerts from /sc.
func (c *Client) AlertsCatchup(ctx context.Context) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, noBytesTimeout)
	defer cancel()

	extra := url.Values{"c": {"50"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL("/sc", "", extra), nil)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, coreerrs.New(coreerrs.KindNetworkTransient, "", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}
