// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package transfer

import (
	"sync"
	"time"

	"github.com/zeebo/errs"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"coredrive.io/core/pkg/nodegraph"
)

// Error is the transfer error class.
var Error = errs.Class("transfer")

// mon exposes admission-engine gauges (active transfer counts per
// direction) to whatever monkit sink the host process registers.
var mon = monkit.Package()

// Direction is upload or download.
type Direction int

// Directions.
const (
	DirectionDownload Direction = iota
	DirectionUpload
)

// State is a Transfer's lifecycle position.
type State int

// States.
const (
	StateQueued State = iota
	StateActive
	StateRetrying
	StateCompleted
	StateFailed
	StateCancelled
)

// Concurrency limits: at most 48 transfers run concurrently, at most 32
// per direction.
const (
	MaxTotalTransfers = 48
	MaxDirTransfers   = 32

	// bigFileSize and bigFileRemaining define "very big" admission: files
	// over 100 MiB with more than 5 MiB remaining limit further big-file
	// admissions in the same direction.
	bigFileSize      = 100 * 1024 * 1024
	bigFileRemaining = 5 * 1024 * 1024
)

// Placement is one target location a Transfer's bytes are delivered to
// (downloads) or uploaded from (uploads); multiple placements share one
// Transfer when their fingerprints match.
type Placement struct {
	NodeHandle nodegraph.Handle
	LocalPath  string
}

// Transfer is one queued or running upload/download.
type Transfer struct {
	ID          string
	Direction   Direction
	Fingerprint nodegraph.Fingerprint
	Size        int64

	// TempURLs holds 1 plain URL or 6 RAID-striped URLs.
	TempURLs *TempURLSet

	ChunkMACs      map[int64][16]byte
	ContiguousUpTo int64 // byte position up to which MACs are contiguous
	State          State
	UploadToken    []byte
	Placements     []Placement
	RetryAttempt   int
	remainingBytes int64
}

func newTransfer(id string, dir Direction, fp nodegraph.Fingerprint, size int64, placement Placement) *Transfer {
	return &Transfer{
		ID:             id,
		Direction:      dir,
		Fingerprint:    fp,
		Size:           size,
		ChunkMACs:      make(map[int64][16]byte),
		State:          StateQueued,
		Placements:     []Placement{placement},
		remainingBytes: size,
	}
}

// IsVeryBig reports whether t qualifies as "very big" given its current
// remaining-bytes count.
func (t *Transfer) IsVeryBig() bool {
	return t.Size > bigFileSize && t.remainingBytes > bigFileRemaining
}

// Remaining returns the number of bytes left to transfer.
func (t *Transfer) Remaining() int64 { return t.remainingBytes }

// RecordProgress advances the contiguous MAC position and shrinks the
// remaining-bytes count by n, clamped at zero.
func (t *Transfer) RecordProgress(upTo int64, n int64) {
	if upTo > t.ContiguousUpTo {
		t.ContiguousUpTo = upTo
	}
	t.remainingBytes -= n
	if t.remainingBytes < 0 {
		t.remainingBytes = 0
	}
}

// Engine is the admission controller and transfer registry. It owns
// Transfer lifecycles; dispatch and chunk scheduling run outside Engine
// against the Transfers it admits.
type Engine struct {
	mu sync.Mutex

	nextID int

	byID          map[string]*Transfer
	byFingerprint map[nodegraph.Fingerprint]*Transfer

	activeCount    map[Direction]int
	veryBigPresent map[Direction]bool

	overquota map[Direction]*OverquotaState
}

// NewEngine returns an empty Engine.
func NewEngine() *Engine {
	return &Engine{
		byID:           make(map[string]*Transfer),
		byFingerprint:  make(map[nodegraph.Fingerprint]*Transfer),
		activeCount:    make(map[Direction]int),
		veryBigPresent: make(map[Direction]bool),
		overquota:      map[Direction]*OverquotaState{DirectionDownload: {}, DirectionUpload: {}},
	}
}

// Admit matches placement against an existing Transfer by fingerprint,
// appending it there to share the same on-wire work; otherwise it creates
// a new queued Transfer.
func (e *Engine) Admit(dir Direction, fp nodegraph.Fingerprint, size int64, placement Placement) *Transfer {
	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.byFingerprint[fp]; ok && existing.Direction == dir {
		existing.Placements = append(existing.Placements, placement)
		return existing
	}

	e.nextID++
	id := formatTransferID(e.nextID)
	t := newTransfer(id, dir, fp, size, placement)
	e.byID[id] = t
	e.byFingerprint[fp] = t
	return t
}

// Get returns the Transfer with the given id, or nil.
func (e *Engine) Get(id string) *Transfer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.byID[id]
}

// Dispatch promotes queued Transfers of dir to active, honoring
// MAX_TOTAL/MAX_DIR and the very-big-file throttle, and returns the
// Transfers newly made active this call. It is a no-op while dir is
// overquota: quota exhaustion pauses the whole direction until the quota
// window elapses.
func (e *Engine) Dispatch(dir Direction, now time.Time) []*Transfer {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.overquota[dir].Active(now) {
		return nil
	}

	totalActive := e.activeCount[DirectionDownload] + e.activeCount[DirectionUpload]

	var promoted []*Transfer
	for _, t := range e.orderedQueued(dir) {
		if totalActive >= MaxTotalTransfers || e.activeCount[dir] >= MaxDirTransfers {
			break
		}
		if t.IsVeryBig() && e.veryBigPresent[dir] {
			continue
		}
		t.State = StateActive
		e.activeCount[dir]++
		totalActive++
		if t.IsVeryBig() {
			e.veryBigPresent[dir] = true
		}
		promoted = append(promoted, t)
	}
	mon.IntVal(activeTransfersMetric(dir)).Observe(int64(e.activeCount[dir]))
	return promoted
}

func activeTransfersMetric(dir Direction) string {
	if dir == DirectionUpload {
		return "active_transfers_upload"
	}
	return "active_transfers_download"
}

func (e *Engine) orderedQueued(dir Direction) []*Transfer {
	out := make([]*Transfer, 0)
	for _, t := range e.byID {
		if t.Direction == dir && t.State == StateQueued {
			out = append(out, t)
		}
	}
	return out
}

// EnterOverquota puts dir into the overquota cooldown window for the
// server-specified number of seconds, suspending all transfers of that
// direction; the server signals quota exhaustion with HTTP 509.
func (e *Engine) EnterOverquota(dir Direction, now time.Time, seconds int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.overquota[dir].Enter(now, seconds)
}

// Complete marks t completed and frees its admission slot.
func (e *Engine) Complete(t *Transfer) { e.finish(t, StateCompleted) }

// Fail marks t permanently failed and frees its admission slot; permanent
// errors are never retried.
func (e *Engine) Fail(t *Transfer) { e.finish(t, StateFailed) }

// Cancel marks t cancelled and frees its admission slot.
func (e *Engine) Cancel(t *Transfer) { e.finish(t, StateCancelled) }

func (e *Engine) finish(t *Transfer, state State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t.State == StateActive {
		e.activeCount[t.Direction]--
		if t.IsVeryBig() {
			e.veryBigPresent[t.Direction] = false
		}
	}
	t.State = state
	delete(e.byID, t.ID)
	delete(e.byFingerprint, t.Fingerprint)
}

func formatTransferID(n int) string {
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	if n == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = digits[n%36]
		n /= 36
	}
	return string(buf[i:])
}
