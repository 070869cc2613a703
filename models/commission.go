package models

import (
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Commission represents one computed payout for one post metric in one calendar
// month. The full set of rows for a month is a pure function of that month's
// metrics and the rate table at calculation time: recalculation deletes and
// regenerates the month wholesale. IsPaid/PaidAt are the only operator-mutable
// fields and are carried over for rows that survive a recalculation.
type Commission struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`

	UserID       uint `gorm:"not null;index" json:"user_id"`
	PostMetricID uint `gorm:"not null;uniqueIndex:idx_commissions_metric_month,priority:1" json:"post_metric_id"`

	// Calendar month reference in YYYY-MM form
	Month string `gorm:"type:varchar(7);not null;index;uniqueIndex:idx_commissions_metric_month,priority:2" json:"month"`

	Format string  `gorm:"type:varchar(20);not null" json:"format"`
	Rate   float64 `gorm:"type:decimal(8,2);not null" json:"rate"`
	Views  int64   `gorm:"not null;default:0" json:"views"`
	Amount float64 `gorm:"type:decimal(12,2);not null" json:"amount"`

	IsPaid bool       `gorm:"not null;default:false;index" json:"is_paid"`
	PaidAt *time.Time `json:"paid_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	// Relationships
	User       User       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	PostMetric PostMetric `gorm:"foreignKey:PostMetricID;constraint:OnDelete:CASCADE" json:"post_metric,omitempty"`
}

// BeforeCreate ensures UUID is set
func (c *Commission) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	return nil
}

// TableName specifies the table name for GORM
func (Commission) TableName() string {
	return "commissions"
}

// CommissionAmount computes the payout for a view count and CPM-style rate,
// rounded to 2 decimal places.
func CommissionAmount(views int64, rate float64) float64 {
	if views <= 0 || rate <= 0 {
		return 0
	}
	amount := float64(views) / 1000.0 * rate
	return math.Round(amount*100) / 100
}

// CommissionFilter represents filter criteria for commission queries
type CommissionFilter struct {
	ID           *uint   `json:"id,omitempty"`
	UserID       *uint   `json:"user_id,omitempty"`
	PostMetricID *uint   `json:"post_metric_id,omitempty"`
	Month        *string `json:"month,omitempty"`
	IsPaid       *bool   `json:"is_paid,omitempty"`
}
