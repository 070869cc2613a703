// Package utils provides utility functions for the application.
package utils

import "time"

const (
	// Redis key for the most recent fleet sync summary
	FleetSummaryCacheKey = "sync:fleet:last_summary"

	// Redis key prefix for per-account sync locks
	SyncLockKeyPrefix = "sync:lock:account:"

	// How long a per-account sync lock is held before it self-expires
	SyncLockTTL = 2 * time.Minute

	// Credentials expiring within this window are refreshed before use
	TokenRefreshWindow = 7 * 24 * time.Hour

	// Per-account sync budget covering refresh, fetch, and persistence
	DefaultAccountSyncTimeout = 25 * time.Second
)
