package dto

import "time"

// SocialAccountItem is the dashboard view of a connected account. Tokens are
// never exposed here.
type SocialAccountItem struct {
	ID             uint       `json:"id"`
	Platform       string     `json:"platform"`
	Username       string     `json:"username"`
	ExternalID     string     `json:"external_id"`
	FollowerCount  int64      `json:"follower_count"`
	AutoSync       bool       `json:"auto_sync"`
	IsActive       bool       `json:"is_active"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ConnectAccountRequest registers a platform account with its OAuth tokens
type ConnectAccountRequest struct {
	Platform       string     `json:"platform" validate:"required,oneof=instagram tiktok"`
	ExternalID     string     `json:"external_id" validate:"required"`
	Username       string     `json:"username" validate:"required"`
	AccessToken    string     `json:"access_token" validate:"required"`
	RefreshToken   *string    `json:"refresh_token,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
}

// UpdateAccountRequest toggles sync behavior on a connected account
type UpdateAccountRequest struct {
	AutoSync *bool `json:"auto_sync,omitempty"`
	IsActive *bool `json:"is_active,omitempty"`
}
