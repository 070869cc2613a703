package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Platform identifiers for connected social accounts
const (
	PlatformInstagram = "instagram"
	PlatformTikTok    = "tiktok"
)

// SocialAccount represents one external social profile connected by a user.
// Credential fields are written by the sync engine (automatic refresh) and by the
// reconnect endpoint; the sync engine serializes its own writes per account.
type SocialAccount struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`

	UserID   uint   `gorm:"not null;index" json:"user_id"`
	Platform string `gorm:"type:varchar(20);not null;index;uniqueIndex:idx_social_accounts_platform_external,priority:1" json:"platform"`

	// Platform-assigned profile identifier; unique within a platform
	ExternalID    string `gorm:"type:varchar(100);not null;uniqueIndex:idx_social_accounts_platform_external,priority:2" json:"external_id"`
	Username      string `gorm:"type:varchar(150);not null" json:"username"`
	FollowerCount int64  `gorm:"not null;default:0" json:"follower_count"`

	// Credentials. Instagram uses a single long-lived token that refreshes itself
	// while still valid; TikTok pairs a short-lived access token with a refresh token.
	AccessToken    string     `gorm:"type:text;not null" json:"-"`
	RefreshToken   *string    `gorm:"type:text" json:"-"`
	TokenExpiresAt *time.Time `gorm:"index" json:"token_expires_at,omitempty"`

	AutoSync   *bool      `gorm:"not null;default:true" json:"auto_sync"`
	IsActive   *bool      `gorm:"not null;default:true" json:"is_active"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	// Relationships
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}

// BeforeCreate ensures UUID is set
func (sa *SocialAccount) BeforeCreate(tx *gorm.DB) error {
	if sa.UUID == uuid.Nil {
		sa.UUID = uuid.New()
	}
	return nil
}

// HasCredentials reports whether the account carries the minimum identifiers
// required to attempt a sync run.
func (sa *SocialAccount) HasCredentials() bool {
	return sa.ExternalID != "" && sa.AccessToken != ""
}

// TableName specifies the table name for GORM
func (SocialAccount) TableName() string {
	return "social_accounts"
}

// SocialAccountFilter represents filter criteria for social account queries
type SocialAccountFilter struct {
	ID         *uint   `json:"id,omitempty"`
	UserID     *uint   `json:"user_id,omitempty"`
	Platform   *string `json:"platform,omitempty"`
	ExternalID *string `json:"external_id,omitempty"`
	AutoSync   *bool   `json:"auto_sync,omitempty"`
	IsActive   *bool   `json:"is_active,omitempty"`
}
