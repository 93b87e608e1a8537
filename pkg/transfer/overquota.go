// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package transfer

import (
	"time"

	"coredrive.io/core/pkg/backoff"
)

// OverquotaState tracks a direction's quota-exhaustion cooldown: on HTTP
// 509 the engine suspends the direction for a server-specified number of
// seconds.
type OverquotaState struct {
	deadline backoff.Deadline
}

// Enter arms the cooldown for the given number of seconds starting at now.
func (o *OverquotaState) Enter(now time.Time, seconds int) {
	o.deadline.Arm(now, time.Duration(seconds)*time.Second)
}

// Active reports whether the cooldown is still in effect at now.
func (o *OverquotaState) Active(now time.Time) bool {
	return o.deadline.Armed() && !o.deadline.Fired(now)
}

// Clear ends the cooldown early, e.g. if the server reports quota restored.
func (o *OverquotaState) Clear() { o.deadline.Disarm() }
