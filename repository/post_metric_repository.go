package repository

import (
	"context"
	"errors"
	"time"

	"github.com/pulseboard/pulseboard/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostMetricRepositoryImpl implements PostMetricRepository interface
type PostMetricRepositoryImpl struct {
	*BaseRepository[models.PostMetric, models.PostMetricFilter]
}

// NewPostMetricRepository creates a new post metric repository
func NewPostMetricRepository(db *gorm.DB) PostMetricRepository {
	return &PostMetricRepositoryImpl{
		BaseRepository: NewBaseRepository[models.PostMetric, models.PostMetricFilter](db),
	}
}

// ByExternalPostID finds a metric by the platform-assigned post identifier
func (r *PostMetricRepositoryImpl) ByExternalPostID(ctx context.Context, externalPostID string) (*models.PostMetric, error) {
	db := r.getDB(ctx)
	var metric models.PostMetric
	err := db.Where("external_post_id = ?", externalPostID).Last(&metric).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &metric, nil
}

// Upsert inserts the metric or, when a row with the same external post ID
// already exists, updates its engagement counts and metadata in place. This is
// the sync engine's idempotency boundary: repeated syncs converge to the latest
// values and never duplicate rows.
func (r *PostMetricRepositoryImpl) Upsert(ctx context.Context, metric *models.PostMetric) error {
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

	err = db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_post_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"views", "likes", "comments", "shares",
			"media_type", "caption", "permalink", "thumbnail_url",
			"published_at", "synced_at", "updated_at",
		}),
	}).Create(metric).Error
	return err
}

// ListPublishedBetween returns metrics whose publish timestamp falls in [start, end)
func (r *PostMetricRepositoryImpl) ListPublishedBetween(ctx context.Context, start, end time.Time) ([]*models.PostMetric, error) {
	db := r.getDB(ctx)
	var metrics []*models.PostMetric
	err := db.Where("published_at >= ? AND published_at < ?", start, end).
		Order("published_at ASC").Find(&metrics).Error
	if err != nil {
		return nil, err
	}
	return metrics, nil
}

// ByFilter retrieves post metrics based on filter criteria
func (r *PostMetricRepositoryImpl) ByFilter(ctx context.Context, filter models.PostMetricFilter, orderBy string, limit, offset int) ([]*models.PostMetric, error) {
	db := r.getDB(ctx)
	var metrics []*models.PostMetric

	query := db.Model(&models.PostMetric{})
	query = r.applyFilter(query, filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	} else {
		query = query.Order("published_at DESC")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&metrics).Error
	if err != nil {
		return nil, err
	}
	return metrics, nil
}

// Count returns the number of post metrics matching the filter
func (r *PostMetricRepositoryImpl) Count(ctx context.Context, filter models.PostMetricFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64

	query := db.Model(&models.PostMetric{})
	query = r.applyFilter(query, filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// applyFilter applies the filter to the query
func (r *PostMetricRepositoryImpl) applyFilter(query *gorm.DB, filter models.PostMetricFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.ExternalPostID != nil {
		query = query.Where("external_post_id = ?", *filter.ExternalPostID)
	}
	if filter.SocialAccountID != nil {
		query = query.Where("social_account_id = ?", *filter.SocialAccountID)
	}
	if filter.Platform != nil {
		query = query.Where("platform = ?", *filter.Platform)
	}
	if filter.PipelinePostID != nil {
		query = query.Where("pipeline_post_id = ?", *filter.PipelinePostID)
	}
	if filter.PublishedAfter != nil {
		query = query.Where("published_at >= ?", *filter.PublishedAfter)
	}
	if filter.PublishedBefore != nil {
		query = query.Where("published_at < ?", *filter.PublishedBefore)
	}
	return query
}
