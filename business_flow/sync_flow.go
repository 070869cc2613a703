package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/pulseboard/pulseboard/app/dto"
	"github.com/pulseboard/pulseboard/app/services"
	"github.com/pulseboard/pulseboard/config"
	"github.com/pulseboard/pulseboard/models"
	"github.com/pulseboard/pulseboard/repository"
	"github.com/pulseboard/pulseboard/utils"
)

var (
	syncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_sync_runs_total",
			Help: "Total number of per-account sync runs by platform, trigger, and status",
		},
		[]string{"platform", "trigger", "status"},
	)

	syncPostsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_sync_posts_total",
			Help: "Total number of post metrics written by sync runs",
		},
		[]string{"platform"},
	)

	syncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulseboard_sync_duration_seconds",
			Help:    "Duration of per-account sync runs",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 60},
		},
		[]string{"platform"},
	)
)

// SyncFlow coordinates metric synchronization for connected social accounts
type SyncFlow interface {
	// SyncAccount runs one sync for one account. It never returns an error:
	// every failure mode is captured inside the result so fleet runs and
	// handlers can treat each account uniformly.
	SyncAccount(ctx context.Context, accountID uint, trigger string) *dto.SyncResult

	// SyncAll syncs every active auto-sync account with bounded concurrency
	SyncAll(ctx context.Context, trigger string) (*dto.SyncAllSummary, error)

	// LastFleetSummary returns the cached summary of the most recent fleet run
	LastFleetSummary(ctx context.Context) (*dto.SyncAllSummary, error)

	// ListSyncLogs returns the sync history for one account, newest first
	ListSyncLogs(ctx context.Context, accountID uint, limit, offset int) ([]dto.SyncLogItem, error)
}

// SyncFlowImpl implements the sync business logic
type SyncFlowImpl struct {
	accountRepo repository.SocialAccountRepository
	metricRepo  repository.PostMetricRepository
	syncLogRepo repository.SyncLogRepository
	providers   *services.ProviderRegistry
	rc          *redis.Client
	cacheConfig *config.CacheConfig
	syncConfig  config.SyncConfig
	logger      Logger
}

// Logger is the minimal logging surface flows need; both log.Logger and the
// scheduler's rotating logger satisfy it.
type Logger interface {
	Printf(format string, v ...any)
}

// NewSyncFlow creates a new sync flow instance
func NewSyncFlow(
	accountRepo repository.SocialAccountRepository,
	metricRepo repository.PostMetricRepository,
	syncLogRepo repository.SyncLogRepository,
	providers *services.ProviderRegistry,
	rc *redis.Client,
	cacheConfig *config.CacheConfig,
	syncConfig config.SyncConfig,
	logger Logger,
) SyncFlow {
	if syncConfig.MaxConcurrent <= 0 {
		syncConfig.MaxConcurrent = 8
	}
	if syncConfig.AccountTimeout <= 0 {
		syncConfig.AccountTimeout = utils.DefaultAccountSyncTimeout
	}
	return &SyncFlowImpl{
		accountRepo: accountRepo,
		metricRepo:  metricRepo,
		syncLogRepo: syncLogRepo,
		providers:   providers,
		rc:          rc,
		cacheConfig: cacheConfig,
		syncConfig:  syncConfig,
		logger:      logger,
	}
}

// SyncAccount runs one sync for one account and always returns a populated result
func (s *SyncFlowImpl) SyncAccount(ctx context.Context, accountID uint, trigger string) (result *dto.SyncResult) {
	start := time.Now()
	result = &dto.SyncResult{
		AccountID: accountID,
		Status:    models.SyncStatusError,
	}

	defer func() {
		if r := recover(); r != nil {
			result.Status = models.SyncStatusError
			result.Error = fmt.Sprintf("panic during sync: %v", r)
		}
		result.DurationMs = time.Since(start).Milliseconds()
		syncRunsTotal.WithLabelValues(result.Platform, trigger, result.Status).Inc()
		if result.Platform != "" {
			syncDuration.WithLabelValues(result.Platform).Observe(time.Since(start).Seconds())
		}
		s.writeSyncLog(ctx, trigger, result)
	}()

	account, err := getAccount(ctx, s.accountRepo, accountID)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Platform = account.Platform
	result.Username = account.Username

	if !utils.IsTrue(account.IsActive) {
		result.Error = ErrAccountInactive.Error()
		return result
	}

	release, err := s.acquireLock(ctx, accountID)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer release()

	provider, err := s.providers.ForPlatform(account.Platform)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	runCtx, cancel := context.WithTimeout(ctx, s.syncConfig.AccountTimeout)
	defer cancel()

	cred, err := provider.EnsureFreshCredential(runCtx, account)
	if err != nil {
		if errors.Is(err, services.ErrReconnectRequired) {
			result.ReconnectRequired = true
		}
		result.Error = err.Error()
		return result
	}
	result.TokenRefreshed = cred.Refreshed

	fetch, err := provider.FetchPosts(runCtx, account, cred)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.PostsFound = fetch.Found()
	result.SkippedExternalIDs = append(result.SkippedExternalIDs, fetch.SkippedExternalIDs...)

	now := utils.UTCNow()
	synced := 0
	for i := range fetch.Posts {
		metric := buildPostMetric(account, &fetch.Posts[i], now)
		if err := s.metricRepo.Upsert(runCtx, metric); err != nil {
			s.logger.Printf("sync: upsert failed account=%d external_post=%s: %v", accountID, metric.ExternalPostID, err)
			result.SkippedExternalIDs = append(result.SkippedExternalIDs, metric.ExternalPostID)
			continue
		}
		synced++
	}
	result.PostsSynced = synced
	syncPostsTotal.WithLabelValues(account.Platform).Add(float64(synced))

	if err := s.accountRepo.UpdateSyncState(runCtx, accountID, now, fetch.FollowerCount); err != nil {
		s.logger.Printf("sync: update sync state failed account=%d: %v", accountID, err)
	}

	if result.PostsSynced == result.PostsFound {
		result.Status = models.SyncStatusSuccess
	} else {
		result.Status = models.SyncStatusPartial
	}
	result.Error = ""
	return result
}

// SyncAll fans out over every syncable account with a bounded worker pool.
// One account's failure, panic included, never aborts the others.
func (s *SyncFlowImpl) SyncAll(ctx context.Context, trigger string) (*dto.SyncAllSummary, error) {
	startedAt := utils.UTCNow()
	accounts, err := s.accountRepo.ListSyncable(ctx)
	if err != nil {
		return nil, NewBusinessError("SYNC_LIST_ACCOUNTS_FAILED", "Failed to list syncable accounts", err)
	}

	results := make([]dto.SyncResult, len(accounts))
	sem := make(chan struct{}, s.syncConfig.MaxConcurrent)
	var wg sync.WaitGroup

	for i, account := range accounts {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, accountID uint) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = *s.SyncAccount(ctx, accountID, trigger)
		}(i, account.ID)
	}
	wg.Wait()

	summary := &dto.SyncAllSummary{
		Trigger:    trigger,
		StartedAt:  startedAt,
		FinishedAt: utils.UTCNow(),
		Total:      len(results),
		Results:    results,
	}
	for i := range results {
		switch results[i].Status {
		case models.SyncStatusSuccess:
			summary.Succeeded++
		case models.SyncStatusPartial:
			summary.Partial++
		default:
			summary.Failed++
		}
	}

	s.cacheFleetSummary(ctx, summary)
	return summary, nil
}

// LastFleetSummary returns the cached summary of the most recent fleet run,
// or nil when no run has completed since the cache expired
func (s *SyncFlowImpl) LastFleetSummary(ctx context.Context) (*dto.SyncAllSummary, error) {
	if s.rc == nil {
		return nil, nil
	}
	key := redisKey(*s.cacheConfig, utils.FleetSummaryCacheKey)
	bs, err := s.rc.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var summary dto.SyncAllSummary
	if err := json.Unmarshal(bs, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// ListSyncLogs returns the sync history for one account, newest first
func (s *SyncFlowImpl) ListSyncLogs(ctx context.Context, accountID uint, limit, offset int) ([]dto.SyncLogItem, error) {
	if _, err := getAccount(ctx, s.accountRepo, accountID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	logs, err := s.syncLogRepo.ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, NewBusinessError("SYNC_LOG_LIST_FAILED", "Failed to list sync logs", err)
	}
	items := make([]dto.SyncLogItem, 0, len(logs))
	for _, l := range logs {
		items = append(items, dto.SyncLogItem{
			ID:                 l.ID,
			Trigger:            l.Trigger,
			Status:             l.Status,
			PostsFound:         l.PostsFound,
			PostsSynced:        l.PostsSynced,
			SkippedExternalIDs: l.SkippedExternalIDs,
			ErrorMessage:       l.ErrorMessage,
			DurationMs:         l.DurationMs,
			CreatedAt:          l.CreatedAt,
		})
	}
	return items, nil
}

// acquireLock takes the per-account redis lock so concurrent manual and cron
// triggers cannot interleave writes for the same account. When redis is down
// the sync proceeds unlocked; losing serialization is preferable to losing
// the run.
func (s *SyncFlowImpl) acquireLock(ctx context.Context, accountID uint) (func(), error) {
	if s.rc == nil {
		return func() {}, nil
	}
	lockKey := redisKey(*s.cacheConfig, utils.SyncLockKeyPrefix+strconv.FormatUint(uint64(accountID), 10))
	ok, err := s.rc.SetNX(ctx, lockKey, "1", utils.SyncLockTTL).Result()
	if err != nil {
		s.logger.Printf("sync: lock acquisition failed account=%d: %v", accountID, err)
		return func() {}, nil
	}
	if !ok {
		return nil, ErrSyncInProgress
	}
	return func() {
		_ = s.rc.Del(context.Background(), lockKey).Err()
	}, nil
}

// writeSyncLog appends one history row for the finished run. Log persistence
// never affects the run outcome; failures are only logged.
func (s *SyncFlowImpl) writeSyncLog(ctx context.Context, trigger string, result *dto.SyncResult) {
	if result.AccountID == 0 {
		return
	}
	entry := &models.SyncLog{
		SocialAccountID: result.AccountID,
		Platform:        result.Platform,
		Trigger:         trigger,
		PostsFound:      result.PostsFound,
		PostsSynced:     result.PostsSynced,
		Status:          result.Status,
		DurationMs:      result.DurationMs,
	}
	if len(result.SkippedExternalIDs) > 0 {
		entry.SkippedExternalIDs = append(entry.SkippedExternalIDs, result.SkippedExternalIDs...)
	}
	if result.Error != "" {
		entry.ErrorMessage = utils.ToPtr(result.Error)
	}

	// The run context may already be cancelled or past its deadline; the log
	// write still has to attempt.
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.syncLogRepo.Save(logCtx, entry); err != nil {
		s.logger.Printf("sync: log write failed account=%d: %v", result.AccountID, err)
	}
}

// cacheFleetSummary stores the fleet summary for dashboard polling; cache
// failures are swallowed
func (s *SyncFlowImpl) cacheFleetSummary(ctx context.Context, summary *dto.SyncAllSummary) {
	if s.rc == nil {
		return
	}
	bs, err := json.Marshal(summary)
	if err != nil {
		return
	}
	key := redisKey(*s.cacheConfig, utils.FleetSummaryCacheKey)
	if err := s.rc.Set(ctx, key, bs, s.cacheConfig.DefaultTTL).Err(); err != nil {
		s.logger.Printf("sync: fleet summary cache write failed: %v", err)
	}
}

// buildPostMetric maps one fetched post onto the storage model
func buildPostMetric(account *models.SocialAccount, post *services.ExternalPost, syncedAt time.Time) *models.PostMetric {
	metric := &models.PostMetric{
		ExternalPostID:  post.ExternalID,
		SocialAccountID: account.ID,
		Platform:        account.Platform,
		Views:           post.Views,
		Likes:           post.Likes,
		Comments:        post.Comments,
		Shares:          post.Shares,
		MediaType:       post.MediaType,
		PublishedAt:     post.PublishedAt,
		SyncedAt:        syncedAt,
	}
	if post.Caption != "" {
		metric.Caption = utils.ToPtr(post.Caption)
	}
	if post.Permalink != "" {
		metric.Permalink = utils.ToPtr(post.Permalink)
	}
	if post.ThumbnailURL != "" {
		metric.ThumbnailURL = utils.ToPtr(post.ThumbnailURL)
	}
	return metric
}
