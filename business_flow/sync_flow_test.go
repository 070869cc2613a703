package businessflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/app/dto"
	"github.com/pulseboard/pulseboard/app/services"
	businessflow "github.com/pulseboard/pulseboard/business_flow"
	"github.com/pulseboard/pulseboard/config"
	"github.com/pulseboard/pulseboard/models"
	"github.com/pulseboard/pulseboard/utils"
)

// fakeAccountRepo is an in-memory SocialAccountRepository
type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[uint]*models.SocialAccount

	syncStateUpdates int
	lastFollowers    *int64
}

func newFakeAccountRepo(accounts ...*models.SocialAccount) *fakeAccountRepo {
	r := &fakeAccountRepo{accounts: make(map[uint]*models.SocialAccount)}
	for _, a := range accounts {
		r.accounts[a.ID] = a
	}
	return r
}

func (r *fakeAccountRepo) ByID(ctx context.Context, id uint) (*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeAccountRepo) ByFilter(ctx context.Context, filter models.SocialAccountFilter, orderBy string, limit, offset int) ([]*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SocialAccount
	for _, a := range r.accounts {
		if filter.UserID != nil && a.UserID != *filter.UserID {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeAccountRepo) Save(ctx context.Context, a *models.SocialAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == 0 {
		a.ID = uint(len(r.accounts) + 1)
	}
	r.accounts[a.ID] = a
	return nil
}

func (r *fakeAccountRepo) SaveBatch(ctx context.Context, entities []*models.SocialAccount) error {
	for _, a := range entities {
		if err := r.Save(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeAccountRepo) Update(ctx context.Context, a *models.SocialAccount) error {
	return r.Save(ctx, a)
}

func (r *fakeAccountRepo) Count(ctx context.Context, filter models.SocialAccountFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.accounts)), nil
}

func (r *fakeAccountRepo) ByPlatformAndExternalID(ctx context.Context, platform, externalID string) (*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Platform == platform && a.ExternalID == externalID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeAccountRepo) ListSyncable(ctx context.Context) ([]*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SocialAccount
	for _, a := range r.accounts {
		if utils.IsTrue(a.IsActive) && utils.IsTrue(a.AutoSync) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) UpdateCredentials(ctx context.Context, accountID uint, accessToken string, refreshToken *string, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return errors.New("account not found")
	}
	a.AccessToken = accessToken
	if refreshToken != nil {
		a.RefreshToken = refreshToken
	}
	a.TokenExpiresAt = expiresAt
	return nil
}

func (r *fakeAccountRepo) UpdateSyncState(ctx context.Context, accountID uint, lastSyncAt time.Time, followerCount *int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return errors.New("account not found")
	}
	a.LastSyncAt = &lastSyncAt
	if followerCount != nil {
		a.FollowerCount = *followerCount
	}
	r.syncStateUpdates++
	r.lastFollowers = followerCount
	return nil
}

// fakeMetricRepo is an in-memory PostMetricRepository keyed by external post ID
type fakeMetricRepo struct {
	mu      sync.Mutex
	metrics map[string]*models.PostMetric

	failExternalIDs map[string]bool
	upserts         int
}

func newFakeMetricRepo() *fakeMetricRepo {
	return &fakeMetricRepo{
		metrics:         make(map[string]*models.PostMetric),
		failExternalIDs: make(map[string]bool),
	}
}

func (r *fakeMetricRepo) ByID(ctx context.Context, id uint) (*models.PostMetric, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.metrics {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeMetricRepo) ByFilter(ctx context.Context, filter models.PostMetricFilter, orderBy string, limit, offset int) ([]*models.PostMetric, error) {
	return nil, nil
}

func (r *fakeMetricRepo) Save(ctx context.Context, m *models.PostMetric) error {
	return r.Upsert(ctx, m)
}

func (r *fakeMetricRepo) SaveBatch(ctx context.Context, entities []*models.PostMetric) error {
	for _, m := range entities {
		if err := r.Upsert(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeMetricRepo) Update(ctx context.Context, m *models.PostMetric) error {
	return r.Upsert(ctx, m)
}

func (r *fakeMetricRepo) Count(ctx context.Context, filter models.PostMetricFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.metrics)), nil
}

func (r *fakeMetricRepo) ByExternalPostID(ctx context.Context, externalPostID string) (*models.PostMetric, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.metrics[externalPostID]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeMetricRepo) Upsert(ctx context.Context, m *models.PostMetric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	if r.failExternalIDs[m.ExternalPostID] {
		return errors.New("unique constraint violation")
	}
	if existing, ok := r.metrics[m.ExternalPostID]; ok {
		m.ID = existing.ID
	} else {
		m.ID = uint(len(r.metrics) + 1)
	}
	r.metrics[m.ExternalPostID] = m
	return nil
}

func (r *fakeMetricRepo) ListPublishedBetween(ctx context.Context, start, end time.Time) ([]*models.PostMetric, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PostMetric
	for _, m := range r.metrics {
		if !m.PublishedAt.Before(start) && m.PublishedAt.Before(end) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

// fakeSyncLogRepo records sync log writes in memory
type fakeSyncLogRepo struct {
	mu      sync.Mutex
	logs    []*models.SyncLog
	saveErr error
}

func (r *fakeSyncLogRepo) ByID(ctx context.Context, id uint) (*models.SyncLog, error) {
	return nil, nil
}

func (r *fakeSyncLogRepo) ByFilter(ctx context.Context, filter models.SyncLogFilter, orderBy string, limit, offset int) ([]*models.SyncLog, error) {
	return nil, nil
}

func (r *fakeSyncLogRepo) Save(ctx context.Context, l *models.SyncLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	l.ID = uint(len(r.logs) + 1)
	r.logs = append(r.logs, l)
	return nil
}

func (r *fakeSyncLogRepo) SaveBatch(ctx context.Context, entities []*models.SyncLog) error {
	for _, l := range entities {
		if err := r.Save(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeSyncLogRepo) Update(ctx context.Context, l *models.SyncLog) error {
	return nil
}

func (r *fakeSyncLogRepo) Count(ctx context.Context, filter models.SyncLogFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.logs)), nil
}

func (r *fakeSyncLogRepo) ListByAccount(ctx context.Context, accountID uint, limit, offset int) ([]*models.SyncLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SyncLog
	for i := len(r.logs) - 1; i >= 0; i-- {
		if r.logs[i].SocialAccountID == accountID {
			cp := *r.logs[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeSyncLogRepo) entries() []*models.SyncLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.SyncLog, len(r.logs))
	copy(out, r.logs)
	return out
}

// fakeProvider is a scriptable SyncProvider
type fakeProvider struct {
	name     string
	credErr  error
	fetchErr error
	result   *services.FetchResult
	refresh  bool
	panics   bool
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) EnsureFreshCredential(ctx context.Context, account *models.SocialAccount) (*services.Credential, error) {
	if p.credErr != nil {
		return nil, p.credErr
	}
	return &services.Credential{AccessToken: account.AccessToken, Refreshed: p.refresh}, nil
}

func (p *fakeProvider) FetchPosts(ctx context.Context, account *models.SocialAccount, cred *services.Credential) (*services.FetchResult, error) {
	if p.panics {
		panic("provider exploded")
	}
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	if p.result != nil {
		return p.result, nil
	}
	return &services.FetchResult{}, nil
}

type testLogger struct{ t *testing.T }

func (l testLogger) Printf(format string, v ...any) { l.t.Logf(format, v...) }

func activeAccount(id uint, platform string) *models.SocialAccount {
	return &models.SocialAccount{
		ID:          id,
		UserID:      1,
		Platform:    platform,
		ExternalID:  "ext-1",
		Username:    "creator",
		AccessToken: "token",
		AutoSync:    utils.ToPtr(true),
		IsActive:    utils.ToPtr(true),
	}
}

func post(externalID string, views int64) services.ExternalPost {
	return services.ExternalPost{
		ExternalID:  externalID,
		MediaType:   "VIDEO",
		Views:       views,
		Likes:       views / 10,
		PublishedAt: time.Date(2026, 7, 12, 10, 0, 0, 0, time.UTC),
	}
}

func newTestSyncFlow(t *testing.T, accountRepo *fakeAccountRepo, metricRepo *fakeMetricRepo, logRepo *fakeSyncLogRepo, provider services.SyncProvider) businessflow.SyncFlow {
	t.Helper()
	return businessflow.NewSyncFlow(
		accountRepo,
		metricRepo,
		logRepo,
		services.NewProviderRegistry(provider),
		nil,
		&config.CacheConfig{},
		config.SyncConfig{MaxConcurrent: 4, AccountTimeout: 10 * time.Second},
		testLogger{t},
	)
}

func TestSyncAccountSuccess(t *testing.T) {
	account := activeAccount(1, models.PlatformInstagram)
	accountRepo := newFakeAccountRepo(account)
	metricRepo := newFakeMetricRepo()
	logRepo := &fakeSyncLogRepo{}
	followers := int64(4200)
	provider := &fakeProvider{
		name: models.PlatformInstagram,
		result: &services.FetchResult{
			Posts:         []services.ExternalPost{post("p1", 1000), post("p2", 2500)},
			FollowerCount: &followers,
		},
	}

	flow := newTestSyncFlow(t, accountRepo, metricRepo, logRepo, provider)
	result := flow.SyncAccount(context.Background(), 1, models.SyncTriggerManual)

	assert.Equal(t, models.SyncStatusSuccess, result.Status)
	assert.Equal(t, 2, result.PostsFound)
	assert.Equal(t, 2, result.PostsSynced)
	assert.Empty(t, result.Error)
	assert.Empty(t, result.SkippedExternalIDs)
	assert.Equal(t, models.PlatformInstagram, result.Platform)
	assert.Equal(t, "creator", result.Username)
	assert.GreaterOrEqual(t, result.DurationMs, int64(0))

	assert.Len(t, metricRepo.metrics, 2)
	assert.Equal(t, 1, accountRepo.syncStateUpdates)
	require.NotNil(t, accountRepo.lastFollowers)
	assert.Equal(t, int64(4200), *accountRepo.lastFollowers)

	logs := logRepo.entries()
	require.Len(t, logs, 1)
	assert.Equal(t, models.SyncStatusSuccess, logs[0].Status)
	assert.Equal(t, models.SyncTriggerManual, logs[0].Trigger)
	assert.Equal(t, uint(1), logs[0].SocialAccountID)
	assert.Nil(t, logs[0].ErrorMessage)
}

func TestSyncAccountPartialOnUpsertFailure(t *testing.T) {
	account := activeAccount(1, models.PlatformInstagram)
	accountRepo := newFakeAccountRepo(account)
	metricRepo := newFakeMetricRepo()
	metricRepo.failExternalIDs["p2"] = true
	logRepo := &fakeSyncLogRepo{}
	provider := &fakeProvider{
		name: models.PlatformInstagram,
		result: &services.FetchResult{
			Posts: []services.ExternalPost{post("p1", 100), post("p2", 200), post("p3", 300)},
		},
	}

	flow := newTestSyncFlow(t, accountRepo, metricRepo, logRepo, provider)
	result := flow.SyncAccount(context.Background(), 1, models.SyncTriggerManual)

	assert.Equal(t, models.SyncStatusPartial, result.Status)
	assert.Equal(t, 3, result.PostsFound)
	assert.Equal(t, 2, result.PostsSynced)
	assert.Equal(t, []string{"p2"}, result.SkippedExternalIDs)
	assert.Empty(t, result.Error)
}

func TestSyncAccountCountsProviderSkips(t *testing.T) {
	account := activeAccount(1, models.PlatformTikTok)
	accountRepo := newFakeAccountRepo(account)
	metricRepo := newFakeMetricRepo()
	logRepo := &fakeSyncLogRepo{}
	provider := &fakeProvider{
		name: models.PlatformTikTok,
		result: &services.FetchResult{
			Posts:              []services.ExternalPost{post("v1", 900)},
			SkippedExternalIDs: []string{"v2", "v3"},
		},
	}

	flow := newTestSyncFlow(t, accountRepo, metricRepo, logRepo, provider)
	result := flow.SyncAccount(context.Background(), 1, models.SyncTriggerCron)

	assert.Equal(t, models.SyncStatusPartial, result.Status)
	assert.Equal(t, 3, result.PostsFound)
	assert.Equal(t, 1, result.PostsSynced)
	assert.ElementsMatch(t, []string{"v2", "v3"}, result.SkippedExternalIDs)

	logs := logRepo.entries()
	require.Len(t, logs, 1)
	assert.Equal(t, 3, logs[0].PostsFound)
	assert.Len(t, logs[0].SkippedExternalIDs, 2)
}

func TestSyncAccountNotFound(t *testing.T) {
	accountRepo := newFakeAccountRepo()
	metricRepo := newFakeMetricRepo()
	logRepo := &fakeSyncLogRepo{}
	provider := &fakeProvider{name: models.PlatformInstagram}

	flow := newTestSyncFlow(t, accountRepo, metricRepo, logRepo, provider)
	result := flow.SyncAccount(context.Background(), 42, models.SyncTriggerManual)

	assert.Equal(t, models.SyncStatusError, result.Status)
	assert.Contains(t, result.Error, businessflow.ErrAccountNotFound.Error())
	assert.Equal(t, uint(42), result.AccountID)
}

func TestSyncAccountInactive(t *testing.T) {
	account := activeAccount(1, models.PlatformInstagram)
	account.IsActive = utils.ToPtr(false)
	accountRepo := newFakeAccountRepo(account)
	metricRepo := newFakeMetricRepo()
	logRepo := &fakeSyncLogRepo{}
	provider := &fakeProvider{name: models.PlatformInstagram}

	flow := newTestSyncFlow(t, accountRepo, metricRepo, logRepo, provider)
	result := flow.SyncAccount(context.Background(), 1, models.SyncTriggerManual)

	assert.Equal(t, models.SyncStatusError, result.Status)
	assert.Contains(t, result.Error, businessflow.ErrAccountInactive.Error())
	assert.Zero(t, metricRepo.upserts)
}

func TestSyncAccountReconnectRequired(t *testing.T) {
	account := activeAccount(1, models.PlatformInstagram)
	accountRepo := newFakeAccountRepo(account)
	metricRepo := newFakeMetricRepo()
	logRepo := &fakeSyncLogRepo{}
	provider := &fakeProvider{
		name:    models.PlatformInstagram,
		credErr: services.ErrReconnectRequired,
	}

	flow := newTestSyncFlow(t, accountRepo, metricRepo, logRepo, provider)
	result := flow.SyncAccount(context.Background(), 1, models.SyncTriggerManual)

	assert.Equal(t, models.SyncStatusError, result.Status)
	assert.True(t, result.ReconnectRequired)
	assert.NotEmpty(t, result.Error)
	assert.Zero(t, metricRepo.upserts)
}

func TestSyncAccountUnknownPlatform(t *testing.T) {
	account := activeAccount(1, "myspace")
	accountRepo := newFakeAccountRepo(account)
	metricRepo := newFakeMetricRepo()
	logRepo := &fakeSyncLogRepo{}
	provider := &fakeProvider{name: models.PlatformInstagram}

	flow := newTestSyncFlow(t, accountRepo, metricRepo, logRepo, provider)
	result := flow.SyncAccount(context.Background(), 1, models.SyncTriggerManual)

	assert.Equal(t, models.SyncStatusError, result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestSyncAccountRecoversFromPanic(t *testing.T) {
	account := activeAccount(1, models.PlatformInstagram)
	accountRepo := newFakeAccountRepo(account)
	metricRepo := newFakeMetricRepo()
	logRepo := &fakeSyncLogRepo{}
	provider := &fakeProvider{name: models.PlatformInstagram, panics: true}

	flow := newTestSyncFlow(t, accountRepo, metricRepo, logRepo, provider)

	var result *dto.SyncResult
	assert.NotPanics(t, func() {
		result = flow.SyncAccount(context.Background(), 1, models.SyncTriggerManual)
	})
	assert.Equal(t, models.SyncStatusError, result.Status)
	assert.Contains(t, result.Error, "panic during sync")

	logs := logRepo.entries()
	require.Len(t, logs, 1)
	assert.Equal(t, models.SyncStatusError, logs[0].Status)
}

func TestSyncAccountLogWriteFailureSwallowed(t *testing.T) {
	account := activeAccount(1, models.PlatformInstagram)
	accountRepo := newFakeAccountRepo(account)
	metricRepo := newFakeMetricRepo()
	logRepo := &fakeSyncLogRepo{saveErr: errors.New("disk full")}
	provider := &fakeProvider{
		name:   models.PlatformInstagram,
		result: &services.FetchResult{Posts: []services.ExternalPost{post("p1", 50)}},
	}

	flow := newTestSyncFlow(t, accountRepo, metricRepo, logRepo, provider)
	result := flow.SyncAccount(context.Background(), 1, models.SyncTriggerManual)

	assert.Equal(t, models.SyncStatusSuccess, result.Status)
	assert.Empty(t, result.Error)
}

func TestSyncAccountTokenRefreshedFlag(t *testing.T) {
	account := activeAccount(1, models.PlatformTikTok)
	accountRepo := newFakeAccountRepo(account)
	metricRepo := newFakeMetricRepo()
	logRepo := &fakeSyncLogRepo{}
	provider := &fakeProvider{name: models.PlatformTikTok, refresh: true}

	flow := newTestSyncFlow(t, accountRepo, metricRepo, logRepo, provider)
	result := flow.SyncAccount(context.Background(), 1, models.SyncTriggerManual)

	assert.True(t, result.TokenRefreshed)
	assert.Equal(t, models.SyncStatusSuccess, result.Status)
}

func TestSyncAllIsolatesFailures(t *testing.T) {
	good := activeAccount(1, models.PlatformInstagram)
	broken := activeAccount(2, models.PlatformInstagram)
	broken.ExternalID = "ext-2"
	paniccy := activeAccount(3, models.PlatformTikTok)
	paniccy.ExternalID = "ext-3"

	accountRepo := newFakeAccountRepo(good, broken, paniccy)
	metricRepo := newFakeMetricRepo()
	logRepo := &fakeSyncLogRepo{}

	igProvider := &fakeProvider{
		name:   models.PlatformInstagram,
		result: &services.FetchResult{Posts: []services.ExternalPost{post("p1", 100)}},
	}
	ttProvider := &fakeProvider{name: models.PlatformTikTok, panics: true}

	flow := businessflow.NewSyncFlow(
		accountRepo,
		metricRepo,
		logRepo,
		services.NewProviderRegistry(igProvider, ttProvider),
		nil,
		&config.CacheConfig{},
		config.SyncConfig{MaxConcurrent: 2, AccountTimeout: 10 * time.Second},
		testLogger{t},
	)

	summary, err := flow.SyncAll(context.Background(), models.SyncTriggerCron)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Partial)
	assert.Len(t, summary.Results, 3)
	assert.Equal(t, models.SyncTriggerCron, summary.Trigger)
	assert.False(t, summary.FinishedAt.Before(summary.StartedAt))

	// A log row per account, regardless of outcome
	assert.Len(t, logRepo.entries(), 3)
}

func TestSyncAllSkipsNonSyncableAccounts(t *testing.T) {
	active := activeAccount(1, models.PlatformInstagram)
	paused := activeAccount(2, models.PlatformInstagram)
	paused.AutoSync = utils.ToPtr(false)
	deactivated := activeAccount(3, models.PlatformInstagram)
	deactivated.IsActive = utils.ToPtr(false)

	accountRepo := newFakeAccountRepo(active, paused, deactivated)
	metricRepo := newFakeMetricRepo()
	logRepo := &fakeSyncLogRepo{}
	provider := &fakeProvider{
		name:   models.PlatformInstagram,
		result: &services.FetchResult{Posts: []services.ExternalPost{post("p1", 10)}},
	}

	flow := newTestSyncFlow(t, accountRepo, metricRepo, logRepo, provider)
	summary, err := flow.SyncAll(context.Background(), models.SyncTriggerCron)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
}

func TestListSyncLogsUnknownAccount(t *testing.T) {
	accountRepo := newFakeAccountRepo()
	flow := newTestSyncFlow(t, accountRepo, newFakeMetricRepo(), &fakeSyncLogRepo{}, &fakeProvider{name: models.PlatformInstagram})

	_, err := flow.ListSyncLogs(context.Background(), 99, 20, 0)
	assert.True(t, businessflow.IsAccountNotFound(err))
}
