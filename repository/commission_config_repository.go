package repository

import (
	"context"
	"errors"

	"github.com/pulseboard/pulseboard/models"
	"github.com/pulseboard/pulseboard/utils"
	"gorm.io/gorm"
)

// CommissionConfigRepositoryImpl implements CommissionConfigRepository interface
type CommissionConfigRepositoryImpl struct {
	*BaseRepository[models.CommissionConfig, models.CommissionConfigFilter]
}

// NewCommissionConfigRepository creates a new commission config repository
func NewCommissionConfigRepository(db *gorm.DB) CommissionConfigRepository {
	return &CommissionConfigRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CommissionConfig, models.CommissionConfigFilter](db),
	}
}

// ByFormat finds the rate row for a content format
func (r *CommissionConfigRepositoryImpl) ByFormat(ctx context.Context, format string) (*models.CommissionConfig, error) {
	db := r.getDB(ctx)
	var cfg models.CommissionConfig
	err := db.Where("format = ?", format).Last(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

// ListAll returns every configured rate in rate-table order
func (r *CommissionConfigRepositoryImpl) ListAll(ctx context.Context) ([]*models.CommissionConfig, error) {
	db := r.getDB(ctx)
	var cfgs []*models.CommissionConfig
	err := db.Order("format ASC").Find(&cfgs).Error
	if err != nil {
		return nil, err
	}
	return cfgs, nil
}

// SeedMissingDefaults inserts a default rate for every known format that has no
// row yet. Existing rows, including operator-tuned ones, are left untouched.
func (r *CommissionConfigRepositoryImpl) SeedMissingDefaults(ctx context.Context) error {
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

	for _, format := range models.AllFormats {
		var count int64
		if err = db.Model(&models.CommissionConfig{}).Where("format = ?", format).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		row := &models.CommissionConfig{
			Format:    format,
			Rate:      models.DefaultCommissionRates[format],
			IsDefault: true,
			CreatedAt: utils.UTCNow(),
			UpdatedAt: utils.UTCNow(),
		}
		if err = db.Create(row).Error; err != nil {
			return err
		}
	}
	return nil
}

// UpsertRate sets an operator-tuned rate for a format, creating the row if needed
func (r *CommissionConfigRepositoryImpl) UpsertRate(ctx context.Context, format string, rate float64) error {
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

	var existing models.CommissionConfig
	err = db.Where("format = ?", format).Last(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = db.Create(&models.CommissionConfig{
			Format:    format,
			Rate:      rate,
			IsDefault: false,
			CreatedAt: utils.UTCNow(),
			UpdatedAt: utils.UTCNow(),
		}).Error
		return err
	}
	if err != nil {
		return err
	}

	err = db.Model(&existing).Updates(map[string]any{
		"rate":       rate,
		"is_default": false,
		"updated_at": utils.UTCNow(),
	}).Error
	return err
}

// ByFilter retrieves commission configs based on filter criteria
func (r *CommissionConfigRepositoryImpl) ByFilter(ctx context.Context, filter models.CommissionConfigFilter, orderBy string, limit, offset int) ([]*models.CommissionConfig, error) {
	db := r.getDB(ctx)
	var cfgs []*models.CommissionConfig

	query := db.Model(&models.CommissionConfig{})
	query = r.applyFilter(query, filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	} else {
		query = query.Order("format ASC")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&cfgs).Error
	if err != nil {
		return nil, err
	}
	return cfgs, nil
}

// Count returns the number of commission configs matching the filter
func (r *CommissionConfigRepositoryImpl) Count(ctx context.Context, filter models.CommissionConfigFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64

	query := db.Model(&models.CommissionConfig{})
	query = r.applyFilter(query, filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// applyFilter applies the filter to the query
func (r *CommissionConfigRepositoryImpl) applyFilter(query *gorm.DB, filter models.CommissionConfigFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.Format != nil {
		query = query.Where("format = ?", *filter.Format)
	}
	return query
}
