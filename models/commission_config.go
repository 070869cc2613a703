package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Default CPM-style rates seeded per content format. Seeding only fills rows
// that are missing; operator-tuned rates are never overwritten.
var DefaultCommissionRates = map[string]float64{
	FormatReel:     2.0,
	FormatCarousel: 3.0,
	FormatStatic:   1.5,
	FormatStory:    1.0,
}

// CommissionConfig holds the per-format commission rate: a per-thousand-views
// multiplier converting view counts into payout amounts.
type CommissionConfig struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`

	Format string  `gorm:"type:varchar(20);uniqueIndex;not null" json:"format"`
	Rate   float64 `gorm:"type:decimal(8,2);not null" json:"rate"`

	// True while the row still carries the seeded default rate
	IsDefault bool `gorm:"not null;default:true" json:"is_default"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// BeforeCreate ensures UUID is set
func (cc *CommissionConfig) BeforeCreate(tx *gorm.DB) error {
	if cc.UUID == uuid.Nil {
		cc.UUID = uuid.New()
	}
	return nil
}

// TableName specifies the table name for GORM
func (CommissionConfig) TableName() string {
	return "commission_configs"
}

// CommissionConfigFilter represents filter criteria for commission config queries
type CommissionConfigFilter struct {
	ID     *uint   `json:"id,omitempty"`
	Format *string `json:"format,omitempty"`
}
