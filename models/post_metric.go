package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PostMetric represents one synced external post with its engagement counts.
// ExternalPostID is the idempotency key: re-syncing the same post updates the
// existing row in place. Rows are created and updated only by the sync engine
// and are never deleted by it.
type PostMetric struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`

	// Platform-assigned post identifier, unique across the whole store
	ExternalPostID string `gorm:"type:varchar(100);uniqueIndex;not null" json:"external_post_id"`

	SocialAccountID uint   `gorm:"not null;index" json:"social_account_id"`
	Platform        string `gorm:"type:varchar(20);not null;index" json:"platform"`

	// Optional link back to the production pipeline
	PipelinePostID *uint `gorm:"index" json:"pipeline_post_id,omitempty"`

	Views    int64 `gorm:"not null;default:0" json:"views"`
	Likes    int64 `gorm:"not null;default:0" json:"likes"`
	Comments int64 `gorm:"not null;default:0" json:"comments"`
	Shares   int64 `gorm:"not null;default:0" json:"shares"`

	// Raw platform media type (e.g. REELS, CAROUSEL_ALBUM, IMAGE, video)
	MediaType    string  `gorm:"type:varchar(40)" json:"media_type"`
	Caption      *string `gorm:"type:text" json:"caption,omitempty"`
	Permalink    *string `gorm:"type:text" json:"permalink,omitempty"`
	ThumbnailURL *string `gorm:"type:text" json:"thumbnail_url,omitempty"`

	PublishedAt time.Time `gorm:"not null;index" json:"published_at"`
	SyncedAt    time.Time `gorm:"not null" json:"synced_at"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	// Relationships
	SocialAccount SocialAccount `gorm:"foreignKey:SocialAccountID;constraint:OnDelete:CASCADE" json:"social_account,omitempty"`
	PipelinePost  *PipelinePost `gorm:"foreignKey:PipelinePostID" json:"pipeline_post,omitempty"`
}

// BeforeCreate ensures UUID is set
func (pm *PostMetric) BeforeCreate(tx *gorm.DB) error {
	if pm.UUID == uuid.Nil {
		pm.UUID = uuid.New()
	}
	return nil
}

// TableName specifies the table name for GORM
func (PostMetric) TableName() string {
	return "post_metrics"
}

// PostMetricFilter represents filter criteria for post metric queries
type PostMetricFilter struct {
	ID              *uint      `json:"id,omitempty"`
	ExternalPostID  *string    `json:"external_post_id,omitempty"`
	SocialAccountID *uint      `json:"social_account_id,omitempty"`
	Platform        *string    `json:"platform,omitempty"`
	PipelinePostID  *uint      `json:"pipeline_post_id,omitempty"`
	PublishedAfter  *time.Time `json:"published_after,omitempty"`
	PublishedBefore *time.Time `json:"published_before,omitempty"`
}
