package businessflow

import (
	"context"

	"github.com/pulseboard/pulseboard/config"
	"github.com/pulseboard/pulseboard/models"
	"github.com/pulseboard/pulseboard/repository"
)

const RequestIDKey = "X-Request-ID"

// redisKey namespaces a cache key with the configured prefix
func redisKey(cfg config.CacheConfig, key string) string {
	return cfg.RedisPrefix + key
}

// getAccount loads a social account by ID and maps the not-found case to a
// business error
func getAccount(ctx context.Context, repo repository.SocialAccountRepository, accountID uint) (*models.SocialAccount, error) {
	account, err := repo.ByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return account, nil
}
