// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

// Package apipipeline implements the command/response batching pipeline
// against the remote command API: an ordered queue of commands, greedily
// batched into one in-flight request at a time, with the retry/backoff
// policy for the error codes the server can return.
package apipipeline

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/zeebo/errs"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"coredrive.io/core/pkg/backoff"
	"coredrive.io/core/pkg/coreerrs"
)

// Error is the apipipeline error class.
var Error = errs.Class("apipipeline")

// mon is the package's monitoring scope: every command-batch round trip is
// reported as a task so host operators can see request rate and latency
// alongside the rest of the process's monkit output.
var mon = monkit.Package()

const reqIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newReqID returns a random 10-character token; a fresh one per batch
// lets the server treat retries idempotently.
func newReqID() (string, error) {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = reqIDAlphabet[int(b)%len(reqIDAlphabet)]
	}
	return string(buf), nil
}

// Command is one request in a batch: its JSON body, a parser for its
// response element, a completion callback, and a correlation tag.
type Command struct {
	Tag string
	Body interface{}
	OnResult func(raw json.RawMessage, err error)
}

// Sender performs the actual HTTP POST to /cs?id=<reqid>&sid=<session> and
// returns the raw JSON response body, the transport boundary the pipeline
// depends on rather than net/http directly so tests can substitute a fake.
type Sender interface {
	Send(ctx context.Context, reqID string, batch json.RawMessage) (json.RawMessage, error)
}

// Pipeline is the command queue and batch-flush state machine. It is
// driven by Tick, called once per driver loop iteration; Pipeline itself
// does not spawn goroutines or background timers.
type Pipeline struct {
	mu    sync.Mutex
	queue []*Command

	inFlight  bool
	batch     []*Command
	reqID     string
	retryWait backoff.Deadline

	sender  Sender
	backoff *backoff.Exponential
}

// New returns an idle Pipeline.
func New(sender Sender) *Pipeline {
	return &Pipeline{
		sender:  sender,
		backoff: backoff.DefaultCommandBackoff(),
	}
}

// Enqueue appends cmd to the tail of the queue. Safe to call from any
// goroutine; the driver's Tick is the only place the queue is drained.
func (p *Pipeline) Enqueue(cmd *Command) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, cmd)
}

// Pending reports the number of commands not yet included in an in-flight
// or completed batch.
func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Tick flushes at most one in-flight batch. It is a no-op if the queue is
// empty, a batch is already in flight, or a retry backoff is still armed.
// Tick never sleeps — it reports NextWake so the host waiter knows when to
// call it again. On a retryable error (EAGAIN/ERATELIMIT/HTTP
// 5xx/connectivity), the same batch is resubmitted whole on the next
// eligible Tick; a batch is never partially retried.
func (p *Pipeline) Tick(ctx context.Context, now time.Time) error {
	p.mu.Lock()
	if p.retryWait.Armed() && !p.retryWait.Fired(now) {
		p.mu.Unlock()
		return nil
	}
	if p.inFlight {
		batch := p.batch
		p.mu.Unlock()
		return p.attempt(ctx, now, batch)
	}
	if len(p.queue) == 0 {
		p.mu.Unlock()
		return nil
	}
	batch := p.queue
	p.inFlight = true
	p.batch = batch
	p.retryWait.Disarm()
	p.mu.Unlock()

	return p.attempt(ctx, now, batch)
}

// attempt performs one network round trip for batch. The call blocks for
// the duration of the HTTP request, so Tick blocks its caller until the
// round trip ends. A retried batch is resent under the reqid it was first
// sent with.
func (p *Pipeline) attempt(ctx context.Context, now time.Time, batch []*Command) (err error) {
	defer mon.Task()(&ctx)(&err)

	p.mu.Lock()
	if p.reqID == "" {
		id, idErr := newReqID()
		if idErr != nil {
			p.mu.Unlock()
			return Error.Wrap(idErr)
		}
		p.reqID = id
	}
	reqID := p.reqID
	p.mu.Unlock()

	body, err := serializeBatch(batch)
	if err != nil {
		return Error.Wrap(err)
	}

	resp, sendErr := p.sender.Send(ctx, reqID, body)
	var results []json.RawMessage
	if sendErr == nil {
		results, sendErr = parseBatchResponse(resp, len(batch))
	}

	if sendErr == nil {
		p.finishBatch(batch)
		deliver(batch, results)
		p.backoff.Reset()
		return nil
	}

	kind := classify(sendErr)
	if !kind.Retryable() {
		p.finishBatch(batch)
		deliverError(batch, sendErr)
		p.backoff.Reset()
		return sendErr
	}

	p.mu.Lock()
	p.retryWait.Arm(now, p.backoff.Delay())
	p.mu.Unlock()
	return nil
}

func (p *Pipeline) finishBatch(batch []*Command) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = p.queue[len(batch):]
	p.inFlight = false
	p.batch = nil
	p.reqID = ""
}

// InFlight reports whether a batch is currently awaiting its response,
// the signal persistence uses to defer a state-cache commit to the next
// action-packet-batch boundary.
func (p *Pipeline) InFlight() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

// Cancel drops every queued and in-flight command, delivering err to each
// completion callback. Used by logout: cancellation is never synchronous
// with the network — the in-flight HTTP request is abandoned, not aborted.
func (p *Pipeline) Cancel(err error) {
	p.mu.Lock()
	cancelled := p.queue
	p.queue = nil
	p.batch = nil
	p.inFlight = false
	p.reqID = ""
	p.retryWait.Disarm()
	p.mu.Unlock()
	deliverError(cancelled, err)
}

// NextWake reports when the driver should next call Tick for this
// pipeline: immediately if there is queued work and nothing in flight, at
// the armed retry deadline if a batch failed retryably, or the zero Time
// if there is nothing to do.
func (p *Pipeline) NextWake(now time.Time) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.retryWait.Armed() {
		if p.retryWait.Fired(now) {
			return now
		}
		return now.Add(p.retryWait.Remaining(now))
	}
	if p.inFlight || len(p.queue) > 0 {
		return now
	}
	return time.Time{}
}

func classify(err error) coreerrs.Kind {
	if cerr, ok := err.(*coreerrs.Error); ok {
		return cerr.Kind
	}
	return coreerrs.KindNetworkTransient
}

func serializeBatch(batch []*Command) (json.RawMessage, error) {
	bodies := make([]interface{}, len(batch))
	for i, cmd := range batch {
		bodies[i] = cmd.Body
	}
	return json.Marshal(bodies)
}

// errorCodeByNumber maps the server's negative-integer error codes to
// their named forms. −3 and −4 are retried; the remainder follow the
// historical command-API numbering.
var errorCodeByNumber = map[int]string{
	-3:  coreerrs.CodeAgain,
	-4:  coreerrs.CodeRateLimit,
	-6:  coreerrs.CodeTooMany,
	-15: coreerrs.CodeSessionID,
	-16: coreerrs.CodeBlocked,
	-17: coreerrs.CodeOverQuota,
	-24: coreerrs.CodeSSL,
	-25: coreerrs.CodePaywall,
}

func errorFromNumber(n int) *coreerrs.Error {
	code, ok := errorCodeByNumber[n]
	if !ok {
		return coreerrs.New(coreerrs.KindUnknown, fmt.Sprintf("%d", n), nil)
	}
	return coreerrs.New(coreerrs.FromCode(code), code, nil)
}

// parseBatchResponse decodes the two response shapes: a top-level negative
// integer is a global error; a JSON array carries per-command results,
// with a negative integer at a position representing that command's error.
func parseBatchResponse(resp json.RawMessage, want int) ([]json.RawMessage, error) {
	var globalErr int
	if err := json.Unmarshal(resp, &globalErr); err == nil {
		return nil, errorFromNumber(globalErr)
	}

	var results []json.RawMessage
	if err := json.Unmarshal(resp, &results); err != nil {
		return nil, coreerrs.New(coreerrs.KindProtocolViolation, "", Error.New("malformed batch response"))
	}
	if len(results) != want {
		return nil, coreerrs.New(coreerrs.KindProtocolViolation, "",
			Error.New("batch response length %d != request length %d", len(results), want))
	}
	return results, nil
}

func deliver(batch []*Command, results []json.RawMessage) {
	for i, cmd := range batch {
		if cmd.OnResult == nil {
			continue
		}
		var perCommandErr int
		if json.Unmarshal(results[i], &perCommandErr) == nil && perCommandErr < 0 {
			cmd.OnResult(nil, errorFromNumber(perCommandErr))
			continue
		}
		cmd.OnResult(results[i], nil)
	}
}

func deliverError(batch []*Command, err error) {
	for _, cmd := range batch {
		if cmd.OnResult != nil {
			cmd.OnResult(nil, err)
		}
	}
}
