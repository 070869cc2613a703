package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Content formats used for commission rate lookup
const (
	FormatReel     = "reel"
	FormatCarousel = "carousel"
	FormatStatic   = "static"
	FormatStory    = "story"
)

// AllFormats lists every known content format, in rate-table order.
var AllFormats = []string{FormatReel, FormatCarousel, FormatStatic, FormatStory}

// Pipeline post statuses
const (
	PipelinePostStatusIdea       = "idea"
	PipelinePostStatusProduction = "production"
	PipelinePostStatusScheduled  = "scheduled"
	PipelinePostStatusPublished  = "published"
)

// PipelinePost represents a post tracked through the production pipeline.
// Full CRUD for the pipeline lives in the dashboard application; the commission
// calculator only reads the declared format and the assigned collaborator.
type PipelinePost struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`

	UserID uint   `gorm:"not null;index" json:"user_id"`
	Title  string `gorm:"type:varchar(255);not null" json:"title"`
	Status string `gorm:"type:varchar(20);not null;default:'idea';index" json:"status"`

	// Declared content format; when set it overrides the media-type inference
	// during commission calculation
	DeclaredFormat *string `gorm:"type:varchar(20)" json:"declared_format,omitempty"`

	// Collaborator assigned to produce this post; commissions go to them when set
	CollaboratorID *uint `gorm:"index" json:"collaborator_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	// Relationships
	User         User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Collaborator *User `gorm:"foreignKey:CollaboratorID" json:"collaborator,omitempty"`
}

// BeforeCreate ensures UUID is set
func (pp *PipelinePost) BeforeCreate(tx *gorm.DB) error {
	if pp.UUID == uuid.Nil {
		pp.UUID = uuid.New()
	}
	return nil
}

// TableName specifies the table name for GORM
func (PipelinePost) TableName() string {
	return "pipeline_posts"
}

// PipelinePostFilter represents filter criteria for pipeline post queries
type PipelinePostFilter struct {
	ID             *uint   `json:"id,omitempty"`
	UserID         *uint   `json:"user_id,omitempty"`
	Status         *string `json:"status,omitempty"`
	CollaboratorID *uint   `json:"collaborator_id,omitempty"`
}
