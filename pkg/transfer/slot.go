// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package transfer

import (
	"time"

	"coredrive.io/core/pkg/backoff"
)

// Per-direction connection counts for a slot's parallel HTTP requests.
const (
	DownloadConnections = 4
	UploadConnections   = 3
)

// Outstanding-byte clamp: the dispatcher only tops a slot up while the
// bytes in flight for its direction stay under 30x the observed speed,
// clamped to [2 MiB, 100 MiB], keeping latency responsive while
// saturating bandwidth.
const (
	outstandingSpeedFactor = 30
	minOutstandingTarget   = 2 * 1024 * 1024
	maxOutstandingTarget   = 100 * 1024 * 1024
)

// ChunkRange is one in-flight byte range on a slot connection.
type ChunkRange struct {
	Offset int64
	Length int64
}

// Slot is the runtime binding of an active Transfer to its HTTP
// connections, local file handle, and in-flight chunk set. The slot
// scheduler assigns chunks to connections; the driver reaps completions.
type Slot struct {
	Transfer *Transfer

	// FileHandle is the opened local file, owned by the slot for the
	// transfer's lifetime; an opaque value so the fsadapter decides what
	// an open file is per platform.
	FileHandle interface{}

	inFlight []map[ChunkRange]struct{} // per connection

	// Retry is the slot's own backoff, separate from the per-connection
	// failure counters on the temp-URL set.
	Retry backoff.Exponential

	speed SpeedMeter
}

// NewSlot binds t to connection-count HTTP lanes.
func NewSlot(t *Transfer, connections int) *Slot {
	if connections < 1 {
		connections = 1
	}
	inFlight := make([]map[ChunkRange]struct{}, connections)
	for i := range inFlight {
		inFlight[i] = make(map[ChunkRange]struct{})
	}
	return &Slot{Transfer: t, inFlight: inFlight, Retry: *backoff.DefaultCommandBackoff()}
}

// ConnectionsFor returns the default connection count for a direction.
func ConnectionsFor(dir Direction) int {
	if dir == DirectionUpload {
		return UploadConnections
	}
	return DownloadConnections
}

// Connections returns the slot's connection count.
func (s *Slot) Connections() int { return len(s.inFlight) }

// Assign records r as in flight on connection conn.
func (s *Slot) Assign(conn int, r ChunkRange) {
	s.inFlight[conn][r] = struct{}{}
}

// Finish removes r from conn's in-flight set and credits its bytes to the
// speed meter.
func (s *Slot) Finish(conn int, r ChunkRange, now time.Time) {
	delete(s.inFlight[conn], r)
	s.speed.Record(now, r.Length)
}

// Abandon removes r from conn's in-flight set without crediting progress,
// for a failed or timed-out request whose range will be re-dispatched.
func (s *Slot) Abandon(conn int, r ChunkRange) {
	delete(s.inFlight[conn], r)
}

// InFlightBytes sums the byte lengths of every outstanding range across
// all connections.
func (s *Slot) InFlightBytes() int64 {
	var total int64
	for _, conn := range s.inFlight {
		for r := range conn {
			total += r.Length
		}
	}
	return total
}

// InFlightOn returns the outstanding ranges on one connection.
func (s *Slot) InFlightOn(conn int) []ChunkRange {
	out := make([]ChunkRange, 0, len(s.inFlight[conn]))
	for r := range s.inFlight[conn] {
		out = append(out, r)
	}
	return out
}

// IdleConnection returns the index of the connection with the fewest
// outstanding ranges, preferring fully idle ones, so chunk assignment
// stays balanced.
func (s *Slot) IdleConnection() int {
	best, bestCount := 0, len(s.inFlight[0])
	for i, conn := range s.inFlight {
		if len(conn) < bestCount {
			best, bestCount = i, len(conn)
		}
	}
	return best
}

// Speed returns the slot's observed throughput in bytes per second.
func (s *Slot) Speed(now time.Time) int64 { return s.speed.BytesPerSecond(now) }

// TargetOutstanding converts an observed per-category speed (bytes/sec)
// into the dispatcher's outstanding-bytes ceiling for that category.
func TargetOutstanding(speedBytesPerSec int64) int64 {
	target := speedBytesPerSec * outstandingSpeedFactor
	if target < minOutstandingTarget {
		return minOutstandingTarget
	}
	if target > maxOutstandingTarget {
		return maxOutstandingTarget
	}
	return target
}

// CanDispatch reports whether another range may be scheduled for a
// category currently carrying outstanding bytes at the observed speed.
func CanDispatch(outstanding, speedBytesPerSec int64) bool {
	return outstanding < TargetOutstanding(speedBytesPerSec)
}

// speedWindow is the sliding measurement window for throughput.
const speedWindow = 10 * time.Second

// SpeedMeter measures throughput over a sliding window of completion
// samples. The zero value is ready to use.
type SpeedMeter struct {
	samples []speedSample
}

type speedSample struct {
	at    time.Time
	bytes int64
}

// Record credits n bytes completed at now.
func (m *SpeedMeter) Record(now time.Time, n int64) {
	m.trim(now)
	m.samples = append(m.samples, speedSample{at: now, bytes: n})
}

// BytesPerSecond returns the windowed average throughput at now.
func (m *SpeedMeter) BytesPerSecond(now time.Time) int64 {
	m.trim(now)
	if len(m.samples) == 0 {
		return 0
	}
	var total int64
	for _, s := range m.samples {
		total += s.bytes
	}
	elapsed := now.Sub(m.samples[0].at)
	if elapsed < time.Second {
		elapsed = time.Second
	}
	return total * int64(time.Second) / int64(elapsed)
}

func (m *SpeedMeter) trim(now time.Time) {
	cutoff := now.Add(-speedWindow)
	i := 0
	for i < len(m.samples) && m.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		m.samples = append(m.samples[:0], m.samples[i:]...)
	}
}
