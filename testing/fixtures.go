// Package testing provides test utilities and database setup for the metrics sync service
package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/pulseboard/pulseboard/models"
	"github.com/pulseboard/pulseboard/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestUser creates an active user with a unique email
func (tf *TestFixtures) CreateTestUser() (*models.User, error) {
	suffix := rand.Intn(10000000)
	user := &models.User{
		UUID:        uuid.New(),
		Email:       fmt.Sprintf("creator.%d@example.com", suffix),
		DisplayName: fmt.Sprintf("Creator %d", suffix),
		IsActive:    utils.ToPtr(true),
	}

	if err := tf.DB.DB.Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create test user: %w", err)
	}

	return user, nil
}

// CreateTestAccount creates a connected social account for the given user.
// The token is valid for 30 days so syncs run without a refresh.
func (tf *TestFixtures) CreateTestAccount(userID uint, platform string) (*models.SocialAccount, error) {
	suffix := rand.Intn(10000000)
	refresh := fmt.Sprintf("refresh-token-%d", suffix)

	account := &models.SocialAccount{
		UUID:           uuid.New(),
		UserID:         userID,
		Platform:       platform,
		ExternalID:     fmt.Sprintf("ext-%s-%d", platform, suffix),
		Username:       fmt.Sprintf("handle_%d", suffix),
		AccessToken:    fmt.Sprintf("access-token-%d", suffix),
		TokenExpiresAt: utils.ToPtr(time.Now().Add(30 * 24 * time.Hour)),
		AutoSync:       utils.ToPtr(true),
		IsActive:       utils.ToPtr(true),
	}
	if platform == models.PlatformTikTok {
		account.RefreshToken = &refresh
	}

	if err := tf.DB.DB.Create(account).Error; err != nil {
		return nil, fmt.Errorf("failed to create test account: %w", err)
	}

	return account, nil
}

// CreateTestMetric creates a post metric for the given account
func (tf *TestFixtures) CreateTestMetric(account *models.SocialAccount, views int64, publishedAt time.Time) (*models.PostMetric, error) {
	metric := &models.PostMetric{
		UUID:            uuid.New(),
		ExternalPostID:  fmt.Sprintf("post-%d", rand.Intn(100000000)),
		SocialAccountID: account.ID,
		Platform:        account.Platform,
		Views:           views,
		Likes:           views / 10,
		Comments:        views / 100,
		MediaType:       "VIDEO",
		PublishedAt:     publishedAt,
		SyncedAt:        time.Now().UTC(),
	}

	if err := tf.DB.DB.Create(metric).Error; err != nil {
		return nil, fmt.Errorf("failed to create test metric: %w", err)
	}

	return metric, nil
}

// CreateTestPipelinePost creates a published pipeline post, optionally with a
// declared format and collaborator
func (tf *TestFixtures) CreateTestPipelinePost(userID uint, declaredFormat *string, collaboratorID *uint) (*models.PipelinePost, error) {
	post := &models.PipelinePost{
		UUID:           uuid.New(),
		UserID:         userID,
		Title:          fmt.Sprintf("Post %d", rand.Intn(10000000)),
		Status:         models.PipelinePostStatusPublished,
		DeclaredFormat: declaredFormat,
		CollaboratorID: collaboratorID,
	}

	if err := tf.DB.DB.Create(post).Error; err != nil {
		return nil, fmt.Errorf("failed to create test pipeline post: %w", err)
	}

	return post, nil
}
