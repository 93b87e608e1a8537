// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

// Package backoff implements the exponential-backoff and deadline
// primitives used throughout the request pipeline, the transfer
// engine, and the sync reconciler's scan-failure recovery.
package backoff

import (
	"math/rand"
	"time"
)

// Exponential is a capped exponential backoff with jitter, the single
// primitive used for command retries, per-connection transfer retries,
// and overquota suspension.
type Exponential struct {
	// Base is the initial delay.
	Base time.Duration
	// Max caps the delay; doubling stops once it would exceed Max.
	Max time.Duration
	// Jitter is the fractional jitter applied to each delay, e.g. 0.2 for
	// ±20%.
	Jitter float64

	attempt int
}

// DefaultCommandBackoff matches : starts at ~1s, doubles to
// ~60s, ±20% jitter.
func DefaultCommandBackoff() *Exponential {
	return &Exponential{Base: time.Second, Max: 60 * time.Second, Jitter: 0.2}
}

// Delay returns the delay for the current attempt and advances the
// attempt counter.
func (e *Exponential) Delay() time.Duration {
	delay := e.Base << uint(e.attempt)
	if delay <= 0 || delay > e.Max {
		delay = e.Max
	}
	e.attempt++

	if e.Jitter > 0 {
		delta := float64(delay) * e.Jitter
		delay = delay - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// Attempt returns the number of delays handed out so far.
func (e *Exponential) Attempt() int { return e.attempt }

// Reset clears the attempt counter, e.g. after a successful request.
func (e *Exponential) Reset() { e.attempt = 0 }

// Deadline is an armed/fired one-shot timer built on a wall-clock instant,
// used for the pipeline's 60s inactivity probe and the long-poll's 6-minute
// ceiling.
type Deadline struct {
	at    time.Time
	armed bool
}

// Arm sets the deadline to now+d.
func (d *Deadline) Arm(now time.Time, dur time.Duration) {
	d.at = now.Add(dur)
	d.armed = true
}

// Disarm clears the deadline.
func (d *Deadline) Disarm() { d.armed = false }

// Armed reports whether the deadline is currently set.
func (d *Deadline) Armed() bool { return d.armed }

// Fired reports whether the deadline is armed and now is at or past it.
func (d *Deadline) Fired(now time.Time) bool {
	return d.armed && !now.Before(d.at)
}

// Remaining returns how long until the deadline fires, or zero if it has
// already fired or is not armed.
func (d *Deadline) Remaining(now time.Time) time.Duration {
	if !d.armed {
		return 0
	}
	if now.After(d.at) {
		return 0
	}
	return d.at.Sub(now)
}
