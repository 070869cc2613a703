package repository

import (
	"context"
	"time"

	"github.com/pulseboard/pulseboard/models"
	"github.com/pulseboard/pulseboard/utils"
	"gorm.io/gorm"
)

// CommissionRepositoryImpl implements CommissionRepository interface
type CommissionRepositoryImpl struct {
	*BaseRepository[models.Commission, models.CommissionFilter]
}

// NewCommissionRepository creates a new commission repository
func NewCommissionRepository(db *gorm.DB) CommissionRepository {
	return &CommissionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Commission, models.CommissionFilter](db),
	}
}

// ListByMonth returns all commissions for a YYYY-MM month reference
func (r *CommissionRepositoryImpl) ListByMonth(ctx context.Context, month string) ([]*models.Commission, error) {
	db := r.getDB(ctx)
	var commissions []*models.Commission
	err := db.Where("month = ?", month).Order("amount DESC").Find(&commissions).Error
	if err != nil {
		return nil, err
	}
	return commissions, nil
}

// DeleteByMonth removes every commission for a month. Callers wrap this together
// with the replacement insert in one transaction so no reader observes a
// half-replaced month.
func (r *CommissionRepositoryImpl) DeleteByMonth(ctx context.Context, month string) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Where("month = ?", month).Delete(&models.Commission{}).Error
	return err
}

// SetPaid records or clears operator payment state on a single commission
func (r *CommissionRepositoryImpl) SetPaid(ctx context.Context, commissionID uint, paid bool, paidAt *time.Time) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Model(&models.Commission{}).Where("id = ?", commissionID).Updates(map[string]any{
		"is_paid":    paid,
		"paid_at":    paidAt,
		"updated_at": utils.UTCNow(),
	}).Error
	return err
}

// ByFilter retrieves commissions based on filter criteria
func (r *CommissionRepositoryImpl) ByFilter(ctx context.Context, filter models.CommissionFilter, orderBy string, limit, offset int) ([]*models.Commission, error) {
	db := r.getDB(ctx)
	var commissions []*models.Commission

	query := db.Model(&models.Commission{})
	query = r.applyFilter(query, filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	} else {
		query = query.Order("month DESC, amount DESC")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&commissions).Error
	if err != nil {
		return nil, err
	}
	return commissions, nil
}

// Count returns the number of commissions matching the filter
func (r *CommissionRepositoryImpl) Count(ctx context.Context, filter models.CommissionFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64

	query := db.Model(&models.Commission{})
	query = r.applyFilter(query, filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// applyFilter applies the filter to the query
func (r *CommissionRepositoryImpl) applyFilter(query *gorm.DB, filter models.CommissionFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.PostMetricID != nil {
		query = query.Where("post_metric_id = ?", *filter.PostMetricID)
	}
	if filter.Month != nil {
		query = query.Where("month = ?", *filter.Month)
	}
	if filter.IsPaid != nil {
		query = query.Where("is_paid = ?", *filter.IsPaid)
	}
	return query
}
