// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package sync

import "time"

// VersionUploadDelay rate-limits version churn: once more than 10
// versions have been created in a recent window, subsequent uploads are
// delayed by 7 * (recentVersions/10) * (recentVersions-10) seconds.
// Returns zero at or below the 10-version threshold.
func VersionUploadDelay(recentVersions int) time.Duration {
	if recentVersions <= 10 {
		return 0
	}
	seconds := 7 * (recentVersions / 10) * (recentVersions - 10)
	return time.Duration(seconds) * time.Second
}
