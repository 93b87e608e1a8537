// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package sync

import "time"

// deciseconds is a tenth of a second, the unit the scan-failure backoff
// constant is expressed in.
const deciseconds = 100 * time.Millisecond

// ScanFailureBackoff is the delay before a full rescan after the
// notification stream fails or overflows: 300 deciseconds plus
// totalNodes/128, where totalNodes is the size of the tree being
// rescanned.
func ScanFailureBackoff(totalNodes int) time.Duration {
	return time.Duration(300+totalNodes/128) * deciseconds
}
