// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/pulseboard/pulseboard/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Update(ctx context.Context, entity *T) error
	Count(ctx context.Context, filter F) (int64, error)
}

// UserRepository defines operations for dashboard users
type UserRepository interface {
	Repository[models.User, models.UserFilter]
	ByEmail(ctx context.Context, email string) (*models.User, error)
}

// SocialAccountRepository defines operations for connected social accounts
type SocialAccountRepository interface {
	Repository[models.SocialAccount, models.SocialAccountFilter]
	ByPlatformAndExternalID(ctx context.Context, platform, externalID string) (*models.SocialAccount, error)
	ListSyncable(ctx context.Context) ([]*models.SocialAccount, error)
	UpdateCredentials(ctx context.Context, accountID uint, accessToken string, refreshToken *string, expiresAt *time.Time) error
	UpdateSyncState(ctx context.Context, accountID uint, lastSyncAt time.Time, followerCount *int64) error
}

// PipelinePostRepository defines operations for production pipeline posts
type PipelinePostRepository interface {
	Repository[models.PipelinePost, models.PipelinePostFilter]
}

// PostMetricRepository defines operations for synced post metrics
type PostMetricRepository interface {
	Repository[models.PostMetric, models.PostMetricFilter]
	ByExternalPostID(ctx context.Context, externalPostID string) (*models.PostMetric, error)
	Upsert(ctx context.Context, metric *models.PostMetric) error
	ListPublishedBetween(ctx context.Context, start, end time.Time) ([]*models.PostMetric, error)
}

// SyncLogRepository defines operations for sync run logs
type SyncLogRepository interface {
	Repository[models.SyncLog, models.SyncLogFilter]
	ListByAccount(ctx context.Context, accountID uint, limit, offset int) ([]*models.SyncLog, error)
}

// CommissionConfigRepository defines operations for per-format commission rates
type CommissionConfigRepository interface {
	Repository[models.CommissionConfig, models.CommissionConfigFilter]
	ByFormat(ctx context.Context, format string) (*models.CommissionConfig, error)
	ListAll(ctx context.Context) ([]*models.CommissionConfig, error)
	SeedMissingDefaults(ctx context.Context) error
	UpsertRate(ctx context.Context, format string, rate float64) error
}

// CommissionRepository defines operations for computed commissions
type CommissionRepository interface {
	Repository[models.Commission, models.CommissionFilter]
	ListByMonth(ctx context.Context, month string) ([]*models.Commission, error)
	DeleteByMonth(ctx context.Context, month string) error
	SetPaid(ctx context.Context, commissionID uint, paid bool, paidAt *time.Time) error
}
