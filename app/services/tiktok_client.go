package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pulseboard/pulseboard/models"
	"github.com/pulseboard/pulseboard/repository"
	"github.com/pulseboard/pulseboard/utils"
)

// TikTok API v2 client using Login Kit user tokens. Access tokens are
// short-lived and rotated through the refresh_token grant.
// Docs: https://developers.tiktok.com/doc/tiktok-api-v2-video-list

type TikTokClient struct {
	BaseURL      string
	ClientKey    string
	ClientSecret string
	HTTPClient   *http.Client
	Timeout      time.Duration
	PageLimit    int
	accountRepo  repository.SocialAccountRepository
}

func NewTikTokClient(baseURL, clientKey, clientSecret string, timeout time.Duration, accountRepo repository.SocialAccountRepository) *TikTokClient {
	if baseURL == "" {
		baseURL = "https://open.tiktokapis.com"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TikTokClient{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		ClientKey:    clientKey,
		ClientSecret: clientSecret,
		HTTPClient:   &http.Client{Timeout: timeout},
		Timeout:      timeout,
		PageLimit:    5,
		accountRepo:  accountRepo,
	}
}

func (c *TikTokClient) Name() string { return models.PlatformTikTok }

type tiktokTokenResp struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// EnsureFreshCredential rotates the access token through the refresh grant
// when it is expired or inside the refresh window. Without a stored refresh
// token an expired credential forces a reconnect.
func (c *TikTokClient) EnsureFreshCredential(ctx context.Context, account *models.SocialAccount) (*Credential, error) {
	if account == nil || !account.HasCredentials() {
		return nil, ErrMissingCredentials
	}
	now := utils.UTCNow()
	expired := account.TokenExpiresAt != nil && !account.TokenExpiresAt.After(now)
	if !expired && !ShouldRefresh(account.TokenExpiresAt, now) {
		return &Credential{AccessToken: account.AccessToken, ExpiresAt: account.TokenExpiresAt}, nil
	}
	if account.RefreshToken == nil || *account.RefreshToken == "" {
		if expired {
			return nil, ErrReconnectRequired
		}
		return &Credential{AccessToken: account.AccessToken, ExpiresAt: account.TokenExpiresAt}, nil
	}

	form := url.Values{}
	form.Set("client_key", c.ClientKey)
	form.Set("client_secret", c.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", *account.RefreshToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v2/oauth/token/", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialRefreshFailed, err)
	}
	defer resp.Body.Close()
	var out tiktokTokenResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialRefreshFailed, err)
	}
	if out.Error != "" && out.Error != "ok" {
		if out.Error == "invalid_grant" {
			return nil, fmt.Errorf("%w: %s", ErrReconnectRequired, out.ErrorDescription)
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrCredentialRefreshFailed, out.Error, out.ErrorDescription)
	}
	if resp.StatusCode != http.StatusOK || out.AccessToken == "" {
		return nil, fmt.Errorf("%w: status %d", ErrCredentialRefreshFailed, resp.StatusCode)
	}
	expiresAt := now.Add(time.Duration(out.ExpiresIn) * time.Second)
	var newRefresh *string
	if out.RefreshToken != "" {
		newRefresh = &out.RefreshToken
	}
	if err := c.accountRepo.UpdateCredentials(ctx, account.ID, out.AccessToken, newRefresh, &expiresAt); err != nil {
		return nil, fmt.Errorf("persist refreshed credential: %w", err)
	}
	account.AccessToken = out.AccessToken
	account.TokenExpiresAt = &expiresAt
	if newRefresh != nil {
		account.RefreshToken = newRefresh
	}
	return &Credential{AccessToken: out.AccessToken, ExpiresAt: &expiresAt, Refreshed: true}, nil
}

type tiktokVideo struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	CreateTime    int64  `json:"create_time"`
	CoverImageURL string `json:"cover_image_url"`
	ShareURL      string `json:"share_url"`
	ViewCount     int64  `json:"view_count"`
	LikeCount     int64  `json:"like_count"`
	CommentCount  int64  `json:"comment_count"`
	ShareCount    int64  `json:"share_count"`
}

type tiktokVideoListReq struct {
	MaxCount int   `json:"max_count"`
	Cursor   int64 `json:"cursor,omitempty"`
}

type tiktokError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e tiktokError) ok() bool { return e.Code == "" || e.Code == "ok" }

type tiktokVideoListResp struct {
	Data struct {
		Videos  []tiktokVideo `json:"videos"`
		Cursor  int64         `json:"cursor"`
		HasMore bool          `json:"has_more"`
	} `json:"data"`
	Error tiktokError `json:"error"`
}

type tiktokUserInfoResp struct {
	Data struct {
		User struct {
			FollowerCount int64 `json:"follower_count"`
		} `json:"user"`
	} `json:"data"`
	Error tiktokError `json:"error"`
}

// FetchPosts pages through the video list. All TikTok posts are videos;
// create_time is unix seconds and a non-positive value means the item cannot
// be placed in time and is skipped.
func (c *TikTokClient) FetchPosts(ctx context.Context, account *models.SocialAccount, cred *Credential) (*FetchResult, error) {
	if account == nil || account.ExternalID == "" {
		return nil, ErrMissingCredentials
	}
	result := &FetchResult{}
	listURL := c.BaseURL + "/v2/video/list/?fields=" + url.QueryEscape("id,title,create_time,cover_image_url,share_url,view_count,like_count,comment_count,share_count")

	var cursor int64
	for page := 0; page < c.PageLimit; page++ {
		body, err := json.Marshal(tiktokVideoListReq{MaxCount: 20, Cursor: cursor})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, listURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch video list: %w", err)
		}
		var out tiktokVideoListResp
		decErr := json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if decErr != nil {
			return nil, fmt.Errorf("fetch video list: %w", decErr)
		}
		if !out.Error.ok() {
			return nil, fmt.Errorf("tiktok: %s: %s", out.Error.Code, out.Error.Message)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("tiktok: status %d", resp.StatusCode)
		}
		for _, v := range out.Data.Videos {
			if v.CreateTime <= 0 {
				result.SkippedExternalIDs = append(result.SkippedExternalIDs, v.ID)
				continue
			}
			result.Posts = append(result.Posts, ExternalPost{
				ExternalID:   v.ID,
				MediaType:    "video",
				Caption:      v.Title,
				Permalink:    v.ShareURL,
				ThumbnailURL: v.CoverImageURL,
				Views:        v.ViewCount,
				Likes:        v.LikeCount,
				Comments:     v.CommentCount,
				Shares:       v.ShareCount,
				PublishedAt:  time.Unix(v.CreateTime, 0).UTC(),
			})
		}
		if !out.Data.HasMore {
			break
		}
		cursor = out.Data.Cursor
	}

	if followers, err := c.fetchFollowerCount(ctx, cred.AccessToken); err == nil {
		result.FollowerCount = &followers
	}
	return result, nil
}

func (c *TikTokClient) fetchFollowerCount(ctx context.Context, token string) (int64, error) {
	infoURL := c.BaseURL + "/v2/user/info/?fields=" + url.QueryEscape("follower_count")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, infoURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	var out tiktokUserInfoResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	if !out.Error.ok() {
		return 0, fmt.Errorf("tiktok: %s: %s", out.Error.Code, out.Error.Message)
	}
	return out.Data.User.FollowerCount, nil
}
