package services_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/app/services"
	"github.com/pulseboard/pulseboard/models"
	"github.com/pulseboard/pulseboard/utils"
)

// stubAccountRepo satisfies repository.SocialAccountRepository and records
// credential updates so refresh persistence can be asserted
type stubAccountRepo struct {
	updatedAccountID uint
	updatedToken     string
	updatedRefresh   *string
	updatedExpiresAt *time.Time
	credentialCalls  int
}

func (r *stubAccountRepo) ByID(ctx context.Context, id uint) (*models.SocialAccount, error) {
	return nil, nil
}

func (r *stubAccountRepo) ByFilter(ctx context.Context, filter models.SocialAccountFilter, orderBy string, limit, offset int) ([]*models.SocialAccount, error) {
	return nil, nil
}

func (r *stubAccountRepo) Save(ctx context.Context, a *models.SocialAccount) error { return nil }

func (r *stubAccountRepo) SaveBatch(ctx context.Context, a []*models.SocialAccount) error {
	return nil
}

func (r *stubAccountRepo) Update(ctx context.Context, a *models.SocialAccount) error { return nil }

func (r *stubAccountRepo) Count(ctx context.Context, filter models.SocialAccountFilter) (int64, error) {
	return 0, nil
}

func (r *stubAccountRepo) ByPlatformAndExternalID(ctx context.Context, platform, externalID string) (*models.SocialAccount, error) {
	return nil, nil
}

func (r *stubAccountRepo) ListSyncable(ctx context.Context) ([]*models.SocialAccount, error) {
	return nil, nil
}

func (r *stubAccountRepo) UpdateCredentials(ctx context.Context, accountID uint, accessToken string, refreshToken *string, expiresAt *time.Time) error {
	r.credentialCalls++
	r.updatedAccountID = accountID
	r.updatedToken = accessToken
	r.updatedRefresh = refreshToken
	r.updatedExpiresAt = expiresAt
	return nil
}

func (r *stubAccountRepo) UpdateSyncState(ctx context.Context, accountID uint, lastSyncAt time.Time, followerCount *int64) error {
	return nil
}

func instagramAccount(expiresAt *time.Time) *models.SocialAccount {
	return &models.SocialAccount{
		ID:             3,
		Platform:       models.PlatformInstagram,
		ExternalID:     "17890000000000000",
		Username:       "creator",
		AccessToken:    "long-lived-token",
		TokenExpiresAt: expiresAt,
		IsActive:       utils.ToPtr(true),
	}
}

func TestInstagramEnsureFreshCredential(t *testing.T) {
	t.Run("MissingCredentials", func(t *testing.T) {
		client := services.NewInstagramClient("http://unused", time.Second, &stubAccountRepo{})
		_, err := client.EnsureFreshCredential(context.Background(), &models.SocialAccount{})
		assert.ErrorIs(t, err, services.ErrMissingCredentials)
	})

	t.Run("ExpiredForcesReconnect", func(t *testing.T) {
		client := services.NewInstagramClient("http://unused", time.Second, &stubAccountRepo{})
		account := instagramAccount(utils.ToPtr(utils.UTCNow().Add(-time.Hour)))
		_, err := client.EnsureFreshCredential(context.Background(), account)
		assert.ErrorIs(t, err, services.ErrReconnectRequired)
	})

	t.Run("OutsideWindowUsedAsIs", func(t *testing.T) {
		repo := &stubAccountRepo{}
		// No server: any request would fail the test
		client := services.NewInstagramClient("http://127.0.0.1:0", time.Second, repo)
		expiresAt := utils.UTCNow().Add(30 * 24 * time.Hour)
		account := instagramAccount(&expiresAt)

		cred, err := client.EnsureFreshCredential(context.Background(), account)
		require.NoError(t, err)
		assert.Equal(t, "long-lived-token", cred.AccessToken)
		assert.False(t, cred.Refreshed)
		assert.Zero(t, repo.credentialCalls)
	})

	t.Run("NilExpiryUsedAsIs", func(t *testing.T) {
		repo := &stubAccountRepo{}
		client := services.NewInstagramClient("http://127.0.0.1:0", time.Second, repo)
		cred, err := client.EnsureFreshCredential(context.Background(), instagramAccount(nil))
		require.NoError(t, err)
		assert.False(t, cred.Refreshed)
		assert.Zero(t, repo.credentialCalls)
	})

	t.Run("InsideWindowRefreshes", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/refresh_access_token", r.URL.Path)
			assert.Equal(t, "ig_refresh_token", r.URL.Query().Get("grant_type"))
			assert.Equal(t, "long-lived-token", r.URL.Query().Get("access_token"))
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "fresh-token",
				"token_type":   "bearer",
				"expires_in":   5184000,
			})
		}))
		defer server.Close()

		repo := &stubAccountRepo{}
		client := services.NewInstagramClient(server.URL, time.Second, repo)
		account := instagramAccount(utils.ToPtr(utils.UTCNow().Add(48 * time.Hour)))

		cred, err := client.EnsureFreshCredential(context.Background(), account)
		require.NoError(t, err)
		assert.True(t, cred.Refreshed)
		assert.Equal(t, "fresh-token", cred.AccessToken)
		require.NotNil(t, cred.ExpiresAt)
		assert.WithinDuration(t, utils.UTCNow().Add(5184000*time.Second), *cred.ExpiresAt, time.Minute)

		assert.Equal(t, 1, repo.credentialCalls)
		assert.Equal(t, uint(3), repo.updatedAccountID)
		assert.Equal(t, "fresh-token", repo.updatedToken)
		assert.Nil(t, repo.updatedRefresh)

		// The in-memory account is updated so the fetch that follows uses
		// the new token
		assert.Equal(t, "fresh-token", account.AccessToken)
	})

	t.Run("RefreshAPIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{
					"message": "Invalid OAuth access token",
					"type":    "OAuthException",
					"code":    190,
				},
			})
		}))
		defer server.Close()

		repo := &stubAccountRepo{}
		client := services.NewInstagramClient(server.URL, time.Second, repo)
		account := instagramAccount(utils.ToPtr(utils.UTCNow().Add(48 * time.Hour)))

		_, err := client.EnsureFreshCredential(context.Background(), account)
		assert.ErrorIs(t, err, services.ErrCredentialRefreshFailed)
		assert.Contains(t, err.Error(), "Invalid OAuth access token")
		assert.Zero(t, repo.credentialCalls)
	})
}

func TestInstagramFetchPosts(t *testing.T) {
	const externalID = "17890000000000000"
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/"+externalID+"/media":
			if r.URL.Query().Get("after") == "page2" {
				json.NewEncoder(w).Encode(map[string]any{
					"data": []map[string]any{
						{
							"id":             "m3",
							"media_type":     "IMAGE",
							"timestamp":      "2026-07-05T09:00:00+0000",
							"like_count":     12,
							"comments_count": 1,
							"media_url":      "https://cdn.example.com/m3.jpg",
						},
					},
				})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{
					{
						"id":             "m1",
						"caption":        "launch day",
						"media_type":     "VIDEO",
						"permalink":      "https://instagram.com/p/m1",
						"thumbnail_url":  "https://cdn.example.com/m1.jpg",
						"timestamp":      "2026-07-10T08:30:00+0000",
						"like_count":     250,
						"comments_count": 40,
					},
					{
						"id":         "m2",
						"media_type": "IMAGE",
						"timestamp":  "not-a-timestamp",
					},
				},
				"paging": map[string]any{
					"next": server.URL + "/" + externalID + "/media?after=page2",
				},
			})
		case strings.HasSuffix(r.URL.Path, "/insights"):
			mediaID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), "/insights")
			metric := r.URL.Query().Get("metric")
			// m1 only reports the renamed plays metric; m3 has views
			if mediaID == "m1" && metric == "views" {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"message": "metric not supported", "code": 100},
				})
				return
			}
			value := int64(0)
			switch {
			case mediaID == "m1" && metric == "plays":
				value = 9800
			case mediaID == "m3" && metric == "views":
				value = 430
			default:
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"message": "metric not supported", "code": 100},
				})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{
					{"name": metric, "values": []map[string]any{{"value": value}}},
				},
			})
		case r.URL.Path == "/"+externalID:
			json.NewEncoder(w).Encode(map[string]any{
				"followers_count": 15600,
				"username":        "creator",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"message":"unknown path"}}`)
		}
	}))
	defer server.Close()

	client := services.NewInstagramClient(server.URL, time.Second, &stubAccountRepo{})
	account := instagramAccount(nil)
	cred := &services.Credential{AccessToken: "long-lived-token"}

	result, err := client.FetchPosts(context.Background(), account, cred)
	require.NoError(t, err)

	require.Len(t, result.Posts, 2)
	assert.Equal(t, 3, result.Found())
	assert.Equal(t, []string{"m2"}, result.SkippedExternalIDs)

	first := result.Posts[0]
	assert.Equal(t, "m1", first.ExternalID)
	assert.Equal(t, "VIDEO", first.MediaType)
	assert.Equal(t, "launch day", first.Caption)
	assert.Equal(t, int64(9800), first.Views)
	assert.Equal(t, int64(250), first.Likes)
	assert.Equal(t, int64(40), first.Comments)
	assert.Equal(t, time.Date(2026, 7, 10, 8, 30, 0, 0, time.UTC), first.PublishedAt)

	second := result.Posts[1]
	assert.Equal(t, "m3", second.ExternalID)
	assert.Equal(t, int64(430), second.Views)
	// No thumbnail: falls back to the media URL
	assert.Equal(t, "https://cdn.example.com/m3.jpg", second.ThumbnailURL)

	require.NotNil(t, result.FollowerCount)
	assert.Equal(t, int64(15600), *result.FollowerCount)
}

func TestInstagramFetchPostsMediaError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "Invalid OAuth access token", "code": 190},
		})
	}))
	defer server.Close()

	client := services.NewInstagramClient(server.URL, time.Second, &stubAccountRepo{})
	_, err := client.FetchPosts(context.Background(), instagramAccount(nil), &services.Credential{AccessToken: "bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid OAuth access token")
}
