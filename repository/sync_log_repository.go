package repository

import (
	"context"

	"github.com/pulseboard/pulseboard/models"
	"gorm.io/gorm"
)

// SyncLogRepositoryImpl implements SyncLogRepository interface
type SyncLogRepositoryImpl struct {
	*BaseRepository[models.SyncLog, models.SyncLogFilter]
}

// NewSyncLogRepository creates a new sync log repository
func NewSyncLogRepository(db *gorm.DB) SyncLogRepository {
	return &SyncLogRepositoryImpl{
		BaseRepository: NewBaseRepository[models.SyncLog, models.SyncLogFilter](db),
	}
}

// ListByAccount returns sync logs for one account, newest first
func (r *SyncLogRepositoryImpl) ListByAccount(ctx context.Context, accountID uint, limit, offset int) ([]*models.SyncLog, error) {
	db := r.getDB(ctx)
	var logs []*models.SyncLog

	query := db.Where("social_account_id = ?", accountID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// ByFilter retrieves sync logs based on filter criteria
func (r *SyncLogRepositoryImpl) ByFilter(ctx context.Context, filter models.SyncLogFilter, orderBy string, limit, offset int) ([]*models.SyncLog, error) {
	db := r.getDB(ctx)
	var logs []*models.SyncLog

	query := db.Model(&models.SyncLog{})
	query = r.applyFilter(query, filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	} else {
		query = query.Order("created_at DESC")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// Count returns the number of sync logs matching the filter
func (r *SyncLogRepositoryImpl) Count(ctx context.Context, filter models.SyncLogFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64

	query := db.Model(&models.SyncLog{})
	query = r.applyFilter(query, filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// applyFilter applies the filter to the query
func (r *SyncLogRepositoryImpl) applyFilter(query *gorm.DB, filter models.SyncLogFilter) *gorm.DB {
	if filter.SocialAccountID != nil {
		query = query.Where("social_account_id = ?", *filter.SocialAccountID)
	}
	if filter.Platform != nil {
		query = query.Where("platform = ?", *filter.Platform)
	}
	if filter.Trigger != nil {
		query = query.Where("trigger = ?", *filter.Trigger)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	return query
}
