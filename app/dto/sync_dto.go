package dto

import "time"

// SyncResult is the outcome of syncing a single account. It is always
// populated, even when the run failed; Error carries the failure reason
// instead of an error return so one bad account never aborts a fleet run.
type SyncResult struct {
	AccountID          uint     `json:"account_id"`
	Platform           string   `json:"platform"`
	Username           string   `json:"username"`
	Status             string   `json:"status"`
	PostsFound         int      `json:"posts_found"`
	PostsSynced        int      `json:"posts_synced"`
	SkippedExternalIDs []string `json:"skipped_external_ids,omitempty"`
	TokenRefreshed     bool     `json:"token_refreshed"`
	ReconnectRequired  bool     `json:"reconnect_required"`
	Error              string   `json:"error,omitempty"`
	DurationMs         int64    `json:"duration_ms"`
}

// SyncAllSummary aggregates a fleet run across every syncable account.
type SyncAllSummary struct {
	Trigger    string       `json:"trigger"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Total      int          `json:"total"`
	Succeeded  int          `json:"succeeded"`
	Partial    int          `json:"partial"`
	Failed     int          `json:"failed"`
	Results    []SyncResult `json:"results"`
}

// SyncAccountRequest triggers a manual sync for one account
type SyncAccountRequest struct {
	AccountID uint `json:"account_id" validate:"required,gt=0"`
}

// SyncLogItem is one history row for an account's sync timeline
type SyncLogItem struct {
	ID                 uint      `json:"id"`
	Trigger            string    `json:"trigger"`
	Status             string    `json:"status"`
	PostsFound         int       `json:"posts_found"`
	PostsSynced        int       `json:"posts_synced"`
	SkippedExternalIDs []string  `json:"skipped_external_ids,omitempty"`
	ErrorMessage       *string   `json:"error_message,omitempty"`
	DurationMs         int64     `json:"duration_ms"`
	CreatedAt          time.Time `json:"created_at"`
}
