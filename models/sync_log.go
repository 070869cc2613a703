package models

import (
	"time"

	"github.com/lib/pq"
)

// Sync run triggers
const (
	SyncTriggerManual = "manual"
	SyncTriggerCron   = "cron"
)

// Sync run statuses
const (
	SyncStatusSuccess = "success"
	SyncStatusPartial = "partial"
	SyncStatusError   = "error"
)

// SyncLog represents one synchronizer invocation for one account. Rows are
// append-only: they are written once when the run finishes and never updated.
type SyncLog struct {
	ID uint `gorm:"primaryKey" json:"id"`

	SocialAccountID uint   `gorm:"not null;index:idx_sync_logs_account_id" json:"social_account_id"`
	Platform        string `gorm:"type:varchar(20);not null" json:"platform"`
	Trigger         string `gorm:"type:varchar(10);not null" json:"trigger"`

	PostsFound  int `gorm:"not null;default:0" json:"posts_found"`
	PostsSynced int `gorm:"not null;default:0" json:"posts_synced"`

	Status       string  `gorm:"type:varchar(10);not null;index" json:"status"`
	ErrorMessage *string `gorm:"type:text" json:"error_message,omitempty"`

	// External IDs of items skipped during the run (bad timestamps etc.)
	SkippedExternalIDs pq.StringArray `gorm:"type:text[]" json:"skipped_external_ids,omitempty"`

	DurationMs int64 `gorm:"not null;default:0" json:"duration_ms"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
}

func (SyncLog) TableName() string { return "sync_logs" }

// SyncLogFilter represents filter criteria for sync log queries
type SyncLogFilter struct {
	SocialAccountID *uint   `json:"social_account_id,omitempty"`
	Platform        *string `json:"platform,omitempty"`
	Trigger         *string `json:"trigger,omitempty"`
	Status          *string `json:"status,omitempty"`
}
