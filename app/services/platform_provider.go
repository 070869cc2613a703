// Package services provides external service integrations for the social platforms
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pulseboard/pulseboard/models"
	"github.com/pulseboard/pulseboard/utils"
)

// Credential errors surfaced by providers. ErrReconnectRequired means no
// automated recovery is possible and the user must re-authorize the account;
// everything else is transient and retried on the next scheduled run.
var (
	ErrMissingCredentials      = errors.New("account is missing credentials or external identifier")
	ErrReconnectRequired       = errors.New("credential expired; account must be reconnected")
	ErrCredentialRefreshFailed = errors.New("credential refresh failed")
	ErrUnsupportedPlatform     = errors.New("unsupported platform")
)

// Credential is the token a provider hands back for the fetch call. Refreshed
// reports whether a refresh round-trip happened during this run.
type Credential struct {
	AccessToken string
	ExpiresAt   *time.Time
	Refreshed   bool
}

// ExternalPost is one post as reported by a platform API. All counts are
// non-negative; a field the platform omitted is zero, never null.
type ExternalPost struct {
	ExternalID   string
	MediaType    string
	Caption      string
	Permalink    string
	ThumbnailURL string
	Views        int64
	Likes        int64
	Comments     int64
	Shares       int64
	PublishedAt  time.Time
}

// FetchResult carries the outcome of one metric fetch. Found counts every item
// the platform returned, including ones skipped for unparseable timestamps, so
// the synchronizer can surface partial degradation.
type FetchResult struct {
	Posts              []ExternalPost
	SkippedExternalIDs []string
	FollowerCount      *int64
}

// Found returns the total number of items discovered upstream.
func (r *FetchResult) Found() int {
	return len(r.Posts) + len(r.SkippedExternalIDs)
}

// SyncProvider is the per-platform contract the synchronizer dispatches on.
// Instagram and TikTok differ in refresh mechanics and insight fallbacks but
// share this surface.
type SyncProvider interface {
	Name() string
	EnsureFreshCredential(ctx context.Context, account *models.SocialAccount) (*Credential, error)
	FetchPosts(ctx context.Context, account *models.SocialAccount, cred *Credential) (*FetchResult, error)
}

// ProviderRegistry resolves the provider for an account's platform.
type ProviderRegistry struct {
	providers map[string]SyncProvider
}

func NewProviderRegistry(providers ...SyncProvider) *ProviderRegistry {
	m := make(map[string]SyncProvider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &ProviderRegistry{providers: m}
}

func (r *ProviderRegistry) ForPlatform(platform string) (SyncProvider, error) {
	p, ok := r.providers[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
	}
	return p, nil
}

// ShouldRefresh reports whether a credential expiring at expiresAt needs a
// refresh before use. Unknown expiry means the credential does not expire on a
// known schedule and is used as-is.
func ShouldRefresh(expiresAt *time.Time, now time.Time) bool {
	if expiresAt == nil {
		return false
	}
	return expiresAt.Before(now.Add(utils.TokenRefreshWindow))
}
