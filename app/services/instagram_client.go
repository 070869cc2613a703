package services

import (
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

// Instagram Graph API client for Business/Creator accounts using long-lived
// user tokens.
// Docs: https://developers.facebook.com/docs/instagram-platform

const instagramTimestampLayout = "2006-01-02T15:04:05-0700"

// Insight metric names are tried in order; newer API versions renamed the
// view metric twice.
var instagramViewMetrics = []string{"views", "plays", "video_views"}

type InstagramClient struct {
	BaseURL     string
	HTTPClient  *http.Client
	Timeout     time.Duration
	PageLimit   int
	accountRepo repository.SocialAccountRepository
}

func NewInstagramClient(baseURL string, timeout time.Duration, accountRepo repository.SocialAccountRepository) *InstagramClient {
	if baseURL == "" {
		baseURL = "https://graph.instagram.com"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &InstagramClient{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		HTTPClient:  &http.Client{Timeout: timeout},
		Timeout:     timeout,
		PageLimit:   5,
		accountRepo: accountRepo,
	}
}

func (c *InstagramClient) Name() string { return models.PlatformInstagram }

type instagramErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

type instagramRefreshResp struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// EnsureFreshCredential returns a usable long-lived token, refreshing it when
// it is inside the refresh window. An already expired token cannot be
// refreshed against the Graph API and forces a reconnect.
func (c *InstagramClient) EnsureFreshCredential(ctx context.Context, account *models.SocialAccount) (*Credential, error) {
	if account == nil || !account.HasCredentials() {
		return nil, ErrMissingCredentials
	}
	now := utils.UTCNow()
	if account.TokenExpiresAt != nil && !account.TokenExpiresAt.After(now) {
		return nil, ErrReconnectRequired
	}
	if !ShouldRefresh(account.TokenExpiresAt, now) {
		return &Credential{AccessToken: account.AccessToken, ExpiresAt: account.TokenExpiresAt}, nil
	}

	q := url.Values{}
	q.Set("grant_type", "ig_refresh_token")
	q.Set("access_token", account.AccessToken)
	refreshURL := c.BaseURL + "/refresh_access_token?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, refreshURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialRefreshFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrCredentialRefreshFailed, decodeInstagramError(resp))
	}
	var out instagramRefreshResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialRefreshFailed, err)
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access_token in response", ErrCredentialRefreshFailed)
	}
	expiresAt := now.Add(time.Duration(out.ExpiresIn) * time.Second)
	if err := c.accountRepo.UpdateCredentials(ctx, account.ID, out.AccessToken, nil, &expiresAt); err != nil {
		return nil, fmt.Errorf("persist refreshed credential: %w", err)
	}
	account.AccessToken = out.AccessToken
	account.TokenExpiresAt = &expiresAt
	return &Credential{AccessToken: out.AccessToken, ExpiresAt: &expiresAt, Refreshed: true}, nil
}

type instagramMediaItem struct {
	ID            string `json:"id"`
	Caption       string `json:"caption"`
	MediaType     string `json:"media_type"`
	Permalink     string `json:"permalink"`
	ThumbnailURL  string `json:"thumbnail_url"`
	MediaURL      string `json:"media_url"`
	Timestamp     string `json:"timestamp"`
	LikeCount     int64  `json:"like_count"`
	CommentsCount int64  `json:"comments_count"`
}

type instagramMediaResp struct {
	Data   []instagramMediaItem `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

type instagramInsightsResp struct {
	Data []struct {
		Name   string `json:"name"`
		Values []struct {
			Value int64 `json:"value"`
		} `json:"values"`
	} `json:"data"`
}

type instagramProfileResp struct {
	FollowersCount int64  `json:"followers_count"`
	Username       string `json:"username"`
}

// FetchPosts walks the account's media edge and resolves a view count per item
// through the insights endpoint. Items with timestamps the API returns in an
// unknown shape are reported as skipped rather than failing the run.
func (c *InstagramClient) FetchPosts(ctx context.Context, account *models.SocialAccount, cred *Credential) (*FetchResult, error) {
	if account == nil || account.ExternalID == "" {
		return nil, ErrMissingCredentials
	}
	result := &FetchResult{}

	q := url.Values{}
	q.Set("fields", "id,caption,media_type,media_url,permalink,thumbnail_url,timestamp,like_count,comments_count")
	q.Set("access_token", cred.AccessToken)
	q.Set("limit", "50")
	next := c.BaseURL + "/" + account.ExternalID + "/media?" + q.Encode()

	for page := 0; page < c.PageLimit && next != ""; page++ {
		var out instagramMediaResp
		if err := c.getJSON(ctx, next, &out); err != nil {
			return nil, fmt.Errorf("fetch media page: %w", err)
		}
		for _, item := range out.Data {
			publishedAt, perr := parseInstagramTimestamp(item.Timestamp)
			if perr != nil {
				result.SkippedExternalIDs = append(result.SkippedExternalIDs, item.ID)
				continue
			}
			views := c.fetchViewCount(ctx, item.ID, cred.AccessToken)
			thumb := item.ThumbnailURL
			if thumb == "" {
				thumb = item.MediaURL
			}
			result.Posts = append(result.Posts, ExternalPost{
				ExternalID:   item.ID,
				MediaType:    item.MediaType,
				Caption:      item.Caption,
				Permalink:    item.Permalink,
				ThumbnailURL: thumb,
				Views:        views,
				Likes:        item.LikeCount,
				Comments:     item.CommentsCount,
				PublishedAt:  publishedAt,
			})
		}
		next = out.Paging.Next
	}

	if followers, err := c.fetchFollowerCount(ctx, account.ExternalID, cred.AccessToken); err == nil {
		result.FollowerCount = &followers
	}
	return result, nil
}

// fetchViewCount tries each known view metric name, then reach, then gives up
// with zero. Insight failures never drop the item.
func (c *InstagramClient) fetchViewCount(ctx context.Context, mediaID, token string) int64 {
	for _, metric := range instagramViewMetrics {
		if v, ok := c.fetchInsightValue(ctx, mediaID, metric, token); ok {
			return v
		}
	}
	if v, ok := c.fetchInsightValue(ctx, mediaID, "reach", token); ok {
		return v
	}
	return 0
}

func (c *InstagramClient) fetchInsightValue(ctx context.Context, mediaID, metric, token string) (int64, bool) {
	q := url.Values{}
	q.Set("metric", metric)
	q.Set("access_token", token)
	var out instagramInsightsResp
	if err := c.getJSON(ctx, c.BaseURL+"/"+mediaID+"/insights?"+q.Encode(), &out); err != nil {
		return 0, false
	}
	for _, d := range out.Data {
		if d.Name == metric && len(d.Values) > 0 {
			return d.Values[0].Value, true
		}
	}
	return 0, false
}

func (c *InstagramClient) fetchFollowerCount(ctx context.Context, externalID, token string) (int64, error) {
	q := url.Values{}
	q.Set("fields", "followers_count,username")
	q.Set("access_token", token)
	var out instagramProfileResp
	if err := c.getJSON(ctx, c.BaseURL+"/"+externalID+"?"+q.Encode(), &out); err != nil {
		return 0, err
	}
	return out.FollowersCount, nil
}

func (c *InstagramClient) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("instagram: %s", decodeInstagramError(resp))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeInstagramError(resp *http.Response) string {
	var body instagramErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error.Message != "" {
		return fmt.Sprintf("status %d: %s (code %d)", resp.StatusCode, body.Error.Message, body.Error.Code)
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}

func parseInstagramTimestamp(ts string) (time.Time, error) {
	if ts == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(instagramTimestampLayout, ts); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
