package dto

import "time"

// CalculateCommissionsRequest recomputes commissions for a calendar month
type CalculateCommissionsRequest struct {
	Month string `json:"month" validate:"required,len=7"`
}

// CommissionItem is one commission row in month listings
type CommissionItem struct {
	ID             uint       `json:"id"`
	UserID         uint       `json:"user_id"`
	PostMetricID   uint       `json:"post_metric_id"`
	ExternalPostID string     `json:"external_post_id,omitempty"`
	Month          string     `json:"month"`
	Format         string     `json:"format"`
	Rate           float64    `json:"rate"`
	Views          int64      `json:"views"`
	Amount         float64    `json:"amount"`
	IsPaid         bool       `json:"is_paid"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
}

// CommissionMonthSummary is the result of a month recalculation
type CommissionMonthSummary struct {
	Month       string           `json:"month"`
	Count       int              `json:"count"`
	TotalAmount float64          `json:"total_amount"`
	ByFormat    map[string]int   `json:"by_format"`
	Commissions []CommissionItem `json:"commissions,omitempty"`
}

// MarkCommissionPaidRequest flips paid status on a set of commissions
type MarkCommissionPaidRequest struct {
	CommissionIDs []uint `json:"commission_ids" validate:"required,min=1,dive,gt=0"`
	Paid          bool   `json:"paid"`
}

// CommissionRateItem is a per-format CPM rate
type CommissionRateItem struct {
	Format    string  `json:"format"`
	Rate      float64 `json:"rate"`
	IsDefault bool    `json:"is_default"`
}

// UpdateCommissionRateRequest sets the CPM rate for one format
type UpdateCommissionRateRequest struct {
	Format string  `json:"format" validate:"required,oneof=reel carousel static story"`
	Rate   float64 `json:"rate" validate:"required,gt=0"`
}
