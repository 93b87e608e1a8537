// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package transfer

import (
	"time"

	"coredrive.io/core/pkg/backoff"
)

// TempURLSet is the server-issued URL or RAID URL stripe backing a
// Transfer. URLs are valid for roughly 60 seconds on first use and must be
// re-requested beyond 10 minutes: firstUse gates the initial grace period,
// total is the hard ceiling past which the engine re-requests regardless
// of use.
type TempURLSet struct {
	URLs []string

	firstUse backoff.Deadline
	total    backoff.Deadline
	used     bool

	// failures counts consecutive HTTP-timeout failures per connection
	// index; at five failures the connection is taken out of rotation.
	failures      []int
	outOfRotation []bool
}

const maxConnectionFailures = 5

// NewTempURLSet arms a fresh URL set issued at now.
func NewTempURLSet(now time.Time, urls []string) *TempURLSet {
	s := &TempURLSet{
		URLs:          urls,
		failures:      make([]int, len(urls)),
		outOfRotation: make([]bool, len(urls)),
	}
	s.firstUse.Arm(now, 60*time.Second)
	s.total.Arm(now, 10*time.Minute)
	return s
}

// MarkUsed records that a request was sent on this URL set; a set that has
// never been used past its 60-second first-use grace period is stale and
// should be re-requested before the next attempt.
func (s *TempURLSet) MarkUsed() { s.used = true }

// NeedsRefresh reports whether the set must be re-requested before further
// use at now: either the 10-minute ceiling has passed, or it was never
// used within its 60-second first-use window.
func (s *TempURLSet) NeedsRefresh(now time.Time) bool {
	if s.total.Fired(now) {
		return true
	}
	return !s.used && s.firstUse.Fired(now)
}

// Invalidate forces an immediate refresh, e.g. after an HTTP 403 or 404
// on the URL.
func (s *TempURLSet) Invalidate() {
	s.total.Arm(time.Time{}, 0)
}

// RecordFailure bumps connection index's failure counter, taking it out
// of rotation once it reaches maxConnectionFailures. RAID sets tolerate
// one connection out of rotation and reconstruct its slice.
func (s *TempURLSet) RecordFailure(index int) {
	s.failures[index]++
	if s.failures[index] >= maxConnectionFailures {
		s.outOfRotation[index] = true
	}
}

// RecordSuccess resets index's failure counter.
func (s *TempURLSet) RecordSuccess(index int) {
	s.failures[index] = 0
}

// OutOfRotation reports whether connection index has been dropped.
func (s *TempURLSet) OutOfRotation(index int) bool {
	return s.outOfRotation[index]
}

// HealthyCount returns how many connections remain in rotation.
func (s *TempURLSet) HealthyCount() int {
	n := 0
	for _, out := range s.outOfRotation {
		if !out {
			n++
		}
	}
	return n
}
