package repository

import (
	"context"
	"errors"
	"time"

	"github.com/pulseboard/pulseboard/models"
	"github.com/pulseboard/pulseboard/utils"
	"gorm.io/gorm"
)

// SocialAccountRepositoryImpl implements SocialAccountRepository interface
type SocialAccountRepositoryImpl struct {
	*BaseRepository[models.SocialAccount, models.SocialAccountFilter]
}

// NewSocialAccountRepository creates a new social account repository
func NewSocialAccountRepository(db *gorm.DB) SocialAccountRepository {
	return &SocialAccountRepositoryImpl{
		BaseRepository: NewBaseRepository[models.SocialAccount, models.SocialAccountFilter](db),
	}
}

// ByPlatformAndExternalID finds an account by its platform and external profile ID
func (r *SocialAccountRepositoryImpl) ByPlatformAndExternalID(ctx context.Context, platform, externalID string) (*models.SocialAccount, error) {
	db := r.getDB(ctx)
	var account models.SocialAccount
	err := db.Where("platform = ? AND external_id = ?", platform, externalID).Last(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// ListSyncable returns accounts eligible for an automatic fleet sync:
// active accounts with auto sync enabled.
func (r *SocialAccountRepositoryImpl) ListSyncable(ctx context.Context) ([]*models.SocialAccount, error) {
	db := r.getDB(ctx)
	var accounts []*models.SocialAccount
	err := db.Where("is_active = ? AND auto_sync = ?", true, true).Order("id ASC").Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// UpdateCredentials persists a refreshed credential and its expiry on the account row
func (r *SocialAccountRepositoryImpl) UpdateCredentials(ctx context.Context, accountID uint, accessToken string, refreshToken *string, expiresAt *time.Time) error {
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

	updates := map[string]any{
		"access_token":     accessToken,
		"token_expires_at": expiresAt,
		"updated_at":       utils.UTCNow(),
	}
	if refreshToken != nil {
		updates["refresh_token"] = *refreshToken
	}

	err = db.Model(&models.SocialAccount{}).Where("id = ?", accountID).Updates(updates).Error
	return err
}

// UpdateSyncState records the outcome bookkeeping of a sync run on the account row
func (r *SocialAccountRepositoryImpl) UpdateSyncState(ctx context.Context, accountID uint, lastSyncAt time.Time, followerCount *int64) error {
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

	updates := map[string]any{
		"last_sync_at": lastSyncAt,
		"updated_at":   utils.UTCNow(),
	}
	if followerCount != nil {
		updates["follower_count"] = *followerCount
	}

	err = db.Model(&models.SocialAccount{}).Where("id = ?", accountID).Updates(updates).Error
	return err
}

// ByFilter retrieves social accounts based on filter criteria
func (r *SocialAccountRepositoryImpl) ByFilter(ctx context.Context, filter models.SocialAccountFilter, orderBy string, limit, offset int) ([]*models.SocialAccount, error) {
	db := r.getDB(ctx)
	var accounts []*models.SocialAccount

	query := db.Model(&models.SocialAccount{})
	query = r.applyFilter(query, filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	} else {
		query = query.Order("id ASC")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// Count returns the number of social accounts matching the filter
func (r *SocialAccountRepositoryImpl) Count(ctx context.Context, filter models.SocialAccountFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64

	query := db.Model(&models.SocialAccount{})
	query = r.applyFilter(query, filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// applyFilter applies the filter to the query
func (r *SocialAccountRepositoryImpl) applyFilter(query *gorm.DB, filter models.SocialAccountFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Platform != nil {
		query = query.Where("platform = ?", *filter.Platform)
	}
	if filter.ExternalID != nil {
		query = query.Where("external_id = ?", *filter.ExternalID)
	}
	if filter.AutoSync != nil {
		query = query.Where("auto_sync = ?", *filter.AutoSync)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	return query
}
