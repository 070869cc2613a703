package repository

import (
	"context"

	"github.com/pulseboard/pulseboard/models"
	"gorm.io/gorm"
)

// PipelinePostRepositoryImpl implements PipelinePostRepository interface
type PipelinePostRepositoryImpl struct {
	*BaseRepository[models.PipelinePost, models.PipelinePostFilter]
}

// NewPipelinePostRepository creates a new pipeline post repository
func NewPipelinePostRepository(db *gorm.DB) PipelinePostRepository {
	return &PipelinePostRepositoryImpl{
		BaseRepository: NewBaseRepository[models.PipelinePost, models.PipelinePostFilter](db),
	}
}

// ByFilter retrieves pipeline posts based on filter criteria
func (r *PipelinePostRepositoryImpl) ByFilter(ctx context.Context, filter models.PipelinePostFilter, orderBy string, limit, offset int) ([]*models.PipelinePost, error) {
	db := r.getDB(ctx)
	var posts []*models.PipelinePost

	query := db.Model(&models.PipelinePost{})
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

	err := query.Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// Count returns the number of pipeline posts matching the filter
func (r *PipelinePostRepositoryImpl) Count(ctx context.Context, filter models.PipelinePostFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64

	query := db.Model(&models.PipelinePost{})
	query = r.applyFilter(query, filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// applyFilter applies the filter to the query
func (r *PipelinePostRepositoryImpl) applyFilter(query *gorm.DB, filter models.PipelinePostFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.CollaboratorID != nil {
		query = query.Where("collaborator_id = ?", *filter.CollaboratorID)
	}
	return query
}
