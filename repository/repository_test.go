package repository_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/models"
	"github.com/pulseboard/pulseboard/repository"
	testingutil "github.com/pulseboard/pulseboard/testing"
	"github.com/pulseboard/pulseboard/utils"
)

func TestSocialAccountRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewSocialAccountRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		user, err := fixtures.CreateTestUser()
		require.NoError(t, err)

		t.Run("ByPlatformAndExternalID", func(t *testing.T) {
			account, err := fixtures.CreateTestAccount(user.ID, models.PlatformInstagram)
			require.NoError(t, err)

			found, err := repo.ByPlatformAndExternalID(ctx, models.PlatformInstagram, account.ExternalID)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, account.ID, found.ID)

			missing, err := repo.ByPlatformAndExternalID(ctx, models.PlatformTikTok, account.ExternalID)
			require.NoError(t, err)
			assert.Nil(t, missing)
		})

		t.Run("ListSyncable", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())
			user, err := fixtures.CreateTestUser()
			require.NoError(t, err)

			eligible, err := fixtures.CreateTestAccount(user.ID, models.PlatformInstagram)
			require.NoError(t, err)

			paused, err := fixtures.CreateTestAccount(user.ID, models.PlatformInstagram)
			require.NoError(t, err)
			paused.AutoSync = utils.ToPtr(false)
			require.NoError(t, repo.Update(ctx, paused))

			inactive, err := fixtures.CreateTestAccount(user.ID, models.PlatformTikTok)
			require.NoError(t, err)
			inactive.IsActive = utils.ToPtr(false)
			require.NoError(t, repo.Update(ctx, inactive))

			accounts, err := repo.ListSyncable(ctx)
			require.NoError(t, err)
			require.Len(t, accounts, 1)
			assert.Equal(t, eligible.ID, accounts[0].ID)
		})

		t.Run("UpdateCredentials", func(t *testing.T) {
			account, err := fixtures.CreateTestAccount(user.ID, models.PlatformTikTok)
			require.NoError(t, err)

			newRefresh := "rotated-refresh"
			expiresAt := utils.UTCNow().Add(24 * time.Hour).Truncate(time.Second)
			require.NoError(t, repo.UpdateCredentials(ctx, account.ID, "rotated-access", &newRefresh, &expiresAt))

			updated, err := repo.ByID(ctx, account.ID)
			require.NoError(t, err)
			assert.Equal(t, "rotated-access", updated.AccessToken)
			require.NotNil(t, updated.RefreshToken)
			assert.Equal(t, "rotated-refresh", *updated.RefreshToken)
			require.NotNil(t, updated.TokenExpiresAt)
			assert.WithinDuration(t, expiresAt, *updated.TokenExpiresAt, time.Second)

			// A nil refresh token leaves the stored one untouched
			require.NoError(t, repo.UpdateCredentials(ctx, account.ID, "rotated-again", nil, &expiresAt))
			updated, err = repo.ByID(ctx, account.ID)
			require.NoError(t, err)
			assert.Equal(t, "rotated-again", updated.AccessToken)
			require.NotNil(t, updated.RefreshToken)
			assert.Equal(t, "rotated-refresh", *updated.RefreshToken)
		})

		t.Run("UpdateSyncState", func(t *testing.T) {
			account, err := fixtures.CreateTestAccount(user.ID, models.PlatformInstagram)
			require.NoError(t, err)

			syncedAt := utils.UTCNow().Truncate(time.Second)
			followers := int64(12345)
			require.NoError(t, repo.UpdateSyncState(ctx, account.ID, syncedAt, &followers))

			updated, err := repo.ByID(ctx, account.ID)
			require.NoError(t, err)
			require.NotNil(t, updated.LastSyncAt)
			assert.WithinDuration(t, syncedAt, *updated.LastSyncAt, time.Second)
			assert.Equal(t, int64(12345), updated.FollowerCount)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestPostMetricRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewPostMetricRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		user, err := fixtures.CreateTestUser()
		require.NoError(t, err)
		account, err := fixtures.CreateTestAccount(user.ID, models.PlatformInstagram)
		require.NoError(t, err)

		t.Run("UpsertIsIdempotent", func(t *testing.T) {
			publishedAt := time.Date(2026, 7, 10, 8, 0, 0, 0, time.UTC)
			first := &models.PostMetric{
				ExternalPostID:  "upsert-1",
				SocialAccountID: account.ID,
				Platform:        account.Platform,
				Views:           100,
				Likes:           10,
				MediaType:       "VIDEO",
				PublishedAt:     publishedAt,
				SyncedAt:        utils.UTCNow(),
			}
			require.NoError(t, repo.Upsert(ctx, first))

			second := &models.PostMetric{
				ExternalPostID:  "upsert-1",
				SocialAccountID: account.ID,
				Platform:        account.Platform,
				Views:           250,
				Likes:           25,
				MediaType:       "VIDEO",
				PublishedAt:     publishedAt,
				SyncedAt:        utils.UTCNow(),
			}
			require.NoError(t, repo.Upsert(ctx, second))

			count, err := repo.Count(ctx, models.PostMetricFilter{ExternalPostID: utils.ToPtr("upsert-1")})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)

			stored, err := repo.ByExternalPostID(ctx, "upsert-1")
			require.NoError(t, err)
			require.NotNil(t, stored)
			assert.Equal(t, int64(250), stored.Views)
			assert.Equal(t, int64(25), stored.Likes)
		})

		t.Run("ListPublishedBetween", func(t *testing.T) {
			_, err := fixtures.CreateTestMetric(account, 500, time.Date(2026, 6, 30, 23, 59, 0, 0, time.UTC))
			require.NoError(t, err)
			inJuly, err := fixtures.CreateTestMetric(account, 900, time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC))
			require.NoError(t, err)
			_, err = fixtures.CreateTestMetric(account, 700, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
			require.NoError(t, err)

			start, end, err := utils.MonthBounds("2026-07")
			require.NoError(t, err)
			metrics, err := repo.ListPublishedBetween(ctx, start, end)
			require.NoError(t, err)

			ids := make([]uint, 0, len(metrics))
			for _, m := range metrics {
				ids = append(ids, m.ID)
			}
			assert.Contains(t, ids, inJuly.ID)
			for _, m := range metrics {
				assert.False(t, m.PublishedAt.Before(start))
				assert.True(t, m.PublishedAt.Before(end))
			}
		})

		return nil
	})
	require.NoError(t, err)
}

func TestSyncLogRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewSyncLogRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		user, err := fixtures.CreateTestUser()
		require.NoError(t, err)
		account, err := fixtures.CreateTestAccount(user.ID, models.PlatformTikTok)
		require.NoError(t, err)

		entry := &models.SyncLog{
			SocialAccountID:    account.ID,
			Platform:           account.Platform,
			Trigger:            models.SyncTriggerManual,
			PostsFound:         5,
			PostsSynced:        4,
			Status:             models.SyncStatusPartial,
			SkippedExternalIDs: []string{"v9"},
			ErrorMessage:       nil,
			DurationMs:         1800,
		}
		require.NoError(t, repo.Save(ctx, entry))
		require.NoError(t, repo.Save(ctx, &models.SyncLog{
			SocialAccountID: account.ID,
			Platform:        account.Platform,
			Trigger:         models.SyncTriggerCron,
			Status:          models.SyncStatusSuccess,
		}))

		logs, err := repo.ListByAccount(ctx, account.ID, 10, 0)
		require.NoError(t, err)
		require.Len(t, logs, 2)

		var partial *models.SyncLog
		for _, l := range logs {
			if l.Status == models.SyncStatusPartial {
				partial = l
			}
		}
		require.NotNil(t, partial)
		assert.Equal(t, 5, partial.PostsFound)
		assert.Equal(t, 4, partial.PostsSynced)
		require.Len(t, partial.SkippedExternalIDs, 1)
		assert.Equal(t, "v9", partial.SkippedExternalIDs[0])

		return nil
	})
	require.NoError(t, err)
}

func TestCommissionConfigRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewCommissionConfigRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		t.Run("SeedMissingDefaultsIsIdempotent", func(t *testing.T) {
			require.NoError(t, repo.SeedMissingDefaults(ctx))
			require.NoError(t, repo.SeedMissingDefaults(ctx))

			configs, err := repo.ListAll(ctx)
			require.NoError(t, err)
			require.Len(t, configs, len(models.AllFormats))

			reel, err := repo.ByFormat(ctx, models.FormatReel)
			require.NoError(t, err)
			require.NotNil(t, reel)
			assert.Equal(t, models.DefaultCommissionRates[models.FormatReel], reel.Rate)
			assert.True(t, reel.IsDefault)
		})

		t.Run("UpsertRate", func(t *testing.T) {
			require.NoError(t, repo.UpsertRate(ctx, models.FormatCarousel, 4.25))

			cfg, err := repo.ByFormat(ctx, models.FormatCarousel)
			require.NoError(t, err)
			require.NotNil(t, cfg)
			assert.Equal(t, 4.25, cfg.Rate)
			assert.False(t, cfg.IsDefault)

			// Seeding afterwards must not overwrite the custom rate
			require.NoError(t, repo.SeedMissingDefaults(ctx))
			cfg, err = repo.ByFormat(ctx, models.FormatCarousel)
			require.NoError(t, err)
			assert.Equal(t, 4.25, cfg.Rate)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestCommissionRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewCommissionRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		user, err := fixtures.CreateTestUser()
		require.NoError(t, err)
		account, err := fixtures.CreateTestAccount(user.ID, models.PlatformInstagram)
		require.NoError(t, err)

		m1, err := fixtures.CreateTestMetric(account, 10000, time.Date(2026, 7, 5, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		m2, err := fixtures.CreateTestMetric(account, 2000, time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)

		commissions := []*models.Commission{
			{
				UserID:       user.ID,
				PostMetricID: m1.ID,
				Month:        "2026-07",
				Format:       models.FormatReel,
				Rate:         2.0,
				Views:        10000,
				Amount:       models.CommissionAmount(10000, 2.0),
			},
			{
				UserID:       user.ID,
				PostMetricID: m2.ID,
				Month:        "2026-07",
				Format:       models.FormatStatic,
				Rate:         1.5,
				Views:        2000,
				Amount:       models.CommissionAmount(2000, 1.5),
			},
		}
		require.NoError(t, repo.SaveBatch(ctx, commissions))

		t.Run("ListByMonthOrdersByAmount", func(t *testing.T) {
			listed, err := repo.ListByMonth(ctx, "2026-07")
			require.NoError(t, err)
			require.Len(t, listed, 2)
			assert.Equal(t, 20.0, listed[0].Amount)
			assert.Equal(t, 3.0, listed[1].Amount)

			empty, err := repo.ListByMonth(ctx, "2026-06")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})

		t.Run("SetPaid", func(t *testing.T) {
			paidAt := utils.UTCNowPtr()
			require.NoError(t, repo.SetPaid(ctx, commissions[0].ID, true, paidAt))

			stored, err := repo.ByID(ctx, commissions[0].ID)
			require.NoError(t, err)
			assert.True(t, stored.IsPaid)
			assert.NotNil(t, stored.PaidAt)
		})

		t.Run("DeleteByMonth", func(t *testing.T) {
			require.NoError(t, repo.DeleteByMonth(ctx, "2026-07"))

			listed, err := repo.ListByMonth(ctx, "2026-07")
			require.NoError(t, err)
			assert.Empty(t, listed)
		})

		return nil
	})
	require.NoError(t, err)
}
