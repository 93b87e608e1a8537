// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package sync

import (
	"fmt"
	"time"
)

// DebrisPath returns the remote path a deleted node is moved to instead
// of being destroyed outright: a dated //bin/SyncDebris/yyyy-mm-dd folder,
// created lazily.
func DebrisPath(now time.Time) string {
	return fmt.Sprintf("//bin/SyncDebris/%04d-%02d-%02d", now.Year(), now.Month(), now.Day())
}
