package businessflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/app/dto"
	businessflow "github.com/pulseboard/pulseboard/business_flow"
	"github.com/pulseboard/pulseboard/models"
)

// fakeCommissionRepo is an in-memory CommissionRepository
type fakeCommissionRepo struct {
	mu          sync.Mutex
	commissions map[uint]*models.Commission
	nextID      uint
}

func newFakeCommissionRepo(commissions ...*models.Commission) *fakeCommissionRepo {
	r := &fakeCommissionRepo{commissions: make(map[uint]*models.Commission)}
	for _, c := range commissions {
		r.nextID++
		if c.ID == 0 {
			c.ID = r.nextID
		}
		r.commissions[c.ID] = c
	}
	return r
}

func (r *fakeCommissionRepo) ByID(ctx context.Context, id uint) (*models.Commission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.commissions[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeCommissionRepo) ByFilter(ctx context.Context, filter models.CommissionFilter, orderBy string, limit, offset int) ([]*models.Commission, error) {
	return nil, nil
}

func (r *fakeCommissionRepo) Save(ctx context.Context, c *models.Commission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == 0 {
		r.nextID++
		c.ID = r.nextID
	}
	r.commissions[c.ID] = c
	return nil
}

func (r *fakeCommissionRepo) SaveBatch(ctx context.Context, entities []*models.Commission) error {
	for _, c := range entities {
		if err := r.Save(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeCommissionRepo) Update(ctx context.Context, c *models.Commission) error {
	return r.Save(ctx, c)
}

func (r *fakeCommissionRepo) Count(ctx context.Context, filter models.CommissionFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.commissions)), nil
}

func (r *fakeCommissionRepo) ListByMonth(ctx context.Context, month string) ([]*models.Commission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Commission
	for _, c := range r.commissions {
		if c.Month == month {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeCommissionRepo) DeleteByMonth(ctx context.Context, month string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.commissions {
		if c.Month == month {
			delete(r.commissions, id)
		}
	}
	return nil
}

func (r *fakeCommissionRepo) SetPaid(ctx context.Context, commissionID uint, paid bool, paidAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.commissions[commissionID]
	if !ok {
		return nil
	}
	c.IsPaid = paid
	c.PaidAt = paidAt
	return nil
}

// fakeConfigRepo is an in-memory CommissionConfigRepository
type fakeConfigRepo struct {
	mu      sync.Mutex
	configs map[string]*models.CommissionConfig
}

func newFakeConfigRepo() *fakeConfigRepo {
	return &fakeConfigRepo{configs: make(map[string]*models.CommissionConfig)}
}

func (r *fakeConfigRepo) ByID(ctx context.Context, id uint) (*models.CommissionConfig, error) {
	return nil, nil
}

func (r *fakeConfigRepo) ByFilter(ctx context.Context, filter models.CommissionConfigFilter, orderBy string, limit, offset int) ([]*models.CommissionConfig, error) {
	return nil, nil
}

func (r *fakeConfigRepo) Save(ctx context.Context, c *models.CommissionConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[c.Format] = c
	return nil
}

func (r *fakeConfigRepo) SaveBatch(ctx context.Context, entities []*models.CommissionConfig) error {
	for _, c := range entities {
		if err := r.Save(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeConfigRepo) Update(ctx context.Context, c *models.CommissionConfig) error {
	return r.Save(ctx, c)
}

func (r *fakeConfigRepo) Count(ctx context.Context, filter models.CommissionConfigFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.configs)), nil
}

func (r *fakeConfigRepo) ByFormat(ctx context.Context, format string) (*models.CommissionConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.configs[format]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeConfigRepo) ListAll(ctx context.Context) ([]*models.CommissionConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.CommissionConfig
	for _, format := range models.AllFormats {
		if c, ok := r.configs[format]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeConfigRepo) SeedMissingDefaults(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for format, rate := range models.DefaultCommissionRates {
		if _, ok := r.configs[format]; !ok {
			r.configs[format] = &models.CommissionConfig{Format: format, Rate: rate, IsDefault: true}
		}
	}
	return nil
}

func (r *fakeConfigRepo) UpsertRate(ctx context.Context, format string, rate float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[format] = &models.CommissionConfig{Format: format, Rate: rate, IsDefault: false}
	return nil
}

func newTestCommissionFlow(t *testing.T, commissionRepo *fakeCommissionRepo, configRepo *fakeConfigRepo) businessflow.CommissionFlow {
	t.Helper()
	return businessflow.NewCommissionFlow(
		commissionRepo,
		configRepo,
		newFakeMetricRepo(),
		nil,
		newFakeAccountRepo(),
		nil,
		testLogger{t},
	)
}

func TestInferFormat(t *testing.T) {
	cases := []struct {
		platform  string
		mediaType string
		want      string
	}{
		{models.PlatformTikTok, "video", models.FormatReel},
		{models.PlatformTikTok, "anything", models.FormatReel},
		{models.PlatformInstagram, "REELS", models.FormatReel},
		{models.PlatformInstagram, "VIDEO", models.FormatReel},
		{models.PlatformInstagram, "video", models.FormatReel},
		{models.PlatformInstagram, "CAROUSEL_ALBUM", models.FormatCarousel},
		{models.PlatformInstagram, "IMAGE", models.FormatStatic},
		{models.PlatformInstagram, "STORY", models.FormatStory},
		{models.PlatformInstagram, "", models.FormatStatic},
		{models.PlatformInstagram, "UNKNOWN_TYPE", models.FormatStatic},
	}

	for _, tc := range cases {
		got := businessflow.InferFormat(tc.platform, tc.mediaType)
		assert.Equalf(t, tc.want, got, "platform=%s mediaType=%s", tc.platform, tc.mediaType)
	}
}

func TestCommissionAmountRounding(t *testing.T) {
	// amount = views / 1000 * rate, rounded to cents
	assert.Equal(t, 2.0, models.CommissionAmount(1000, 2.0))
	assert.Equal(t, 0.0, models.CommissionAmount(0, 2.0))
	assert.Equal(t, 0.0, models.CommissionAmount(-50, 2.0))
	assert.Equal(t, 0.67, models.CommissionAmount(333, 2.0))
	assert.Equal(t, 2.47, models.CommissionAmount(1234, 2.0))
	assert.Equal(t, 24.69, models.CommissionAmount(12345, 2.0))
	assert.Equal(t, 0.0, models.CommissionAmount(1, 1.0))
	assert.Equal(t, 150.0, models.CommissionAmount(100000, 1.5))
}

func TestMarkPaid(t *testing.T) {
	repo := newFakeCommissionRepo(
		&models.Commission{Month: "2026-07", Format: models.FormatReel},
		&models.Commission{Month: "2026-07", Format: models.FormatStatic},
	)
	flow := newTestCommissionFlow(t, repo, newFakeConfigRepo())

	updated, err := flow.MarkPaid(context.Background(), &dto.MarkCommissionPaidRequest{
		CommissionIDs: []uint{1, 2},
		Paid:          true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	c, _ := repo.ByID(context.Background(), 1)
	assert.True(t, c.IsPaid)
	assert.NotNil(t, c.PaidAt)

	// Unmarking clears the timestamp
	updated, err = flow.MarkPaid(context.Background(), &dto.MarkCommissionPaidRequest{
		CommissionIDs: []uint{1},
		Paid:          false,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	c, _ = repo.ByID(context.Background(), 1)
	assert.False(t, c.IsPaid)
	assert.Nil(t, c.PaidAt)
}

func TestMarkPaidUnknownCommission(t *testing.T) {
	repo := newFakeCommissionRepo(&models.Commission{Month: "2026-07"})
	flow := newTestCommissionFlow(t, repo, newFakeConfigRepo())

	updated, err := flow.MarkPaid(context.Background(), &dto.MarkCommissionPaidRequest{
		CommissionIDs: []uint{1, 99},
		Paid:          true,
	})
	assert.ErrorIs(t, err, businessflow.ErrCommissionNotFound)
	assert.Equal(t, 1, updated)
}

func TestListRatesSeedsDefaults(t *testing.T) {
	flow := newTestCommissionFlow(t, newFakeCommissionRepo(), newFakeConfigRepo())

	rates, err := flow.ListRates(context.Background())
	require.NoError(t, err)
	require.Len(t, rates, len(models.AllFormats))

	byFormat := make(map[string]dto.CommissionRateItem)
	for _, r := range rates {
		byFormat[r.Format] = r
	}
	assert.Equal(t, 2.0, byFormat[models.FormatReel].Rate)
	assert.Equal(t, 3.0, byFormat[models.FormatCarousel].Rate)
	assert.Equal(t, 1.5, byFormat[models.FormatStatic].Rate)
	assert.Equal(t, 1.0, byFormat[models.FormatStory].Rate)
	assert.True(t, byFormat[models.FormatReel].IsDefault)
}

func TestUpdateRate(t *testing.T) {
	configRepo := newFakeConfigRepo()
	flow := newTestCommissionFlow(t, newFakeCommissionRepo(), configRepo)

	err := flow.UpdateRate(context.Background(), &dto.UpdateCommissionRateRequest{
		Format: models.FormatReel,
		Rate:   4.5,
	})
	require.NoError(t, err)

	c, _ := configRepo.ByFormat(context.Background(), models.FormatReel)
	require.NotNil(t, c)
	assert.Equal(t, 4.5, c.Rate)
	assert.False(t, c.IsDefault)
}

func TestUpdateRateValidation(t *testing.T) {
	flow := newTestCommissionFlow(t, newFakeCommissionRepo(), newFakeConfigRepo())

	err := flow.UpdateRate(context.Background(), &dto.UpdateCommissionRateRequest{Format: "vlog", Rate: 2.0})
	assert.ErrorIs(t, err, businessflow.ErrRateFormatInvalid)

	err = flow.UpdateRate(context.Background(), &dto.UpdateCommissionRateRequest{Format: models.FormatReel, Rate: 0})
	assert.ErrorIs(t, err, businessflow.ErrRateNotPositive)
}

func TestListMonthInvalidFormat(t *testing.T) {
	flow := newTestCommissionFlow(t, newFakeCommissionRepo(), newFakeConfigRepo())

	for _, month := range []string{"", "2026", "2026-13", "July 2026", "2026-07-01"} {
		_, err := flow.ListMonth(context.Background(), month)
		assert.Truef(t, businessflow.IsMonthFormatInvalid(err), "month=%q", month)
	}
}

func TestExportMonth(t *testing.T) {
	paidAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeCommissionRepo(
		&models.Commission{
			UserID:       7,
			PostMetricID: 11,
			Month:        "2026-07",
			Format:       models.FormatReel,
			Rate:         2.0,
			Views:        15000,
			Amount:       30.0,
			IsPaid:       true,
			PaidAt:       &paidAt,
		},
	)
	flow := newTestCommissionFlow(t, repo, newFakeConfigRepo())

	filename, content, err := flow.ExportMonth(context.Background(), "2026-07")
	require.NoError(t, err)
	assert.Equal(t, "commissions_2026-07.xlsx", filename)
	assert.NotEmpty(t, content)
	// xlsx files are zip archives
	assert.Equal(t, []byte{'P', 'K'}, content[:2])
}
