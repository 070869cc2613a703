package businessflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/pulseboard/pulseboard/app/dto"
	"github.com/pulseboard/pulseboard/models"
	"github.com/pulseboard/pulseboard/repository"
	"github.com/pulseboard/pulseboard/utils"
)

// CommissionFlow recomputes and manages per-month commissions
type CommissionFlow interface {
	// CalculateMonth regenerates the full commission set for one calendar
	// month from that month's post metrics and the current rate table
	CalculateMonth(ctx context.Context, month string) (*dto.CommissionMonthSummary, error)

	// ListMonth returns the stored commissions for a month, highest amount first
	ListMonth(ctx context.Context, month string) ([]dto.CommissionItem, error)

	// MarkPaid flips the paid flag on a set of commissions
	MarkPaid(ctx context.Context, req *dto.MarkCommissionPaidRequest) (int, error)

	// ExportMonth renders a month's commissions as an xlsx workbook
	ExportMonth(ctx context.Context, month string) (filename string, content []byte, err error)

	// ListRates returns the current per-format rate table, seeding defaults first
	ListRates(ctx context.Context) ([]dto.CommissionRateItem, error)

	// UpdateRate sets the rate for one format
	UpdateRate(ctx context.Context, req *dto.UpdateCommissionRateRequest) error
}

// CommissionFlowImpl implements the commission business logic
type CommissionFlowImpl struct {
	commissionRepo repository.CommissionRepository
	configRepo     repository.CommissionConfigRepository
	metricRepo     repository.PostMetricRepository
	pipelineRepo   repository.PipelinePostRepository
	accountRepo    repository.SocialAccountRepository
	db             *gorm.DB
	logger         Logger
}

// NewCommissionFlow creates a new commission flow instance
func NewCommissionFlow(
	commissionRepo repository.CommissionRepository,
	configRepo repository.CommissionConfigRepository,
	metricRepo repository.PostMetricRepository,
	pipelineRepo repository.PipelinePostRepository,
	accountRepo repository.SocialAccountRepository,
	db *gorm.DB,
	logger Logger,
) CommissionFlow {
	return &CommissionFlowImpl{
		commissionRepo: commissionRepo,
		configRepo:     configRepo,
		metricRepo:     metricRepo,
		pipelineRepo:   pipelineRepo,
		accountRepo:    accountRepo,
		db:             db,
		logger:         logger,
	}
}

// CalculateMonth deletes and regenerates the month's commissions atomically.
// Paid flags survive for rows whose (post metric, month) pair still exists
// after the recalculation.
func (s *CommissionFlowImpl) CalculateMonth(ctx context.Context, month string) (*dto.CommissionMonthSummary, error) {
	start, end, err := utils.MonthBounds(month)
	if err != nil {
		return nil, NewBusinessError("COMMISSION_MONTH_INVALID", "Invalid month reference", ErrMonthFormatInvalid)
	}

	if err := s.configRepo.SeedMissingDefaults(ctx); err != nil {
		return nil, NewBusinessError("COMMISSION_RATE_SEED_FAILED", "Failed to seed default rates", err)
	}
	rates, err := s.rateTable(ctx)
	if err != nil {
		return nil, NewBusinessError("COMMISSION_RATE_LOAD_FAILED", "Failed to load rate table", err)
	}

	metrics, err := s.metricRepo.ListPublishedBetween(ctx, start, end)
	if err != nil {
		return nil, NewBusinessError("COMMISSION_METRIC_LOAD_FAILED", "Failed to load post metrics", err)
	}

	// Remember paid state keyed by post metric so a recalculation does not
	// silently unmark payouts that already went out.
	previous, err := s.commissionRepo.ListByMonth(ctx, month)
	if err != nil {
		return nil, NewBusinessError("COMMISSION_LOAD_FAILED", "Failed to load existing commissions", err)
	}
	paidByMetric := make(map[uint]*models.Commission, len(previous))
	for _, c := range previous {
		if c.IsPaid {
			paidByMetric[c.PostMetricID] = c
		}
	}

	accountOwners := make(map[uint]uint)
	commissions := make([]*models.Commission, 0, len(metrics))
	for _, metric := range metrics {
		format, ownerID, rerr := s.resolveFormatAndOwner(ctx, metric, accountOwners)
		if rerr != nil {
			return nil, rerr
		}
		rate := rates[format]
		c := &models.Commission{
			UserID:       ownerID,
			PostMetricID: metric.ID,
			Month:        month,
			Format:       format,
			Rate:         rate,
			Views:        metric.Views,
			Amount:       models.CommissionAmount(metric.Views, rate),
		}
		// Nothing owed, nothing stored
		if c.Amount <= 0 {
			continue
		}
		if prev, ok := paidByMetric[metric.ID]; ok {
			c.IsPaid = true
			c.PaidAt = prev.PaidAt
		}
		commissions = append(commissions, c)
	}

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.commissionRepo.DeleteByMonth(txCtx, month); err != nil {
			return err
		}
		if len(commissions) == 0 {
			return nil
		}
		return s.commissionRepo.SaveBatch(txCtx, commissions)
	})
	if err != nil {
		return nil, NewBusinessError("COMMISSION_CALCULATION_FAILED", "Commission calculation failed", err)
	}

	summary := &dto.CommissionMonthSummary{
		Month:    month,
		Count:    len(commissions),
		ByFormat: make(map[string]int),
	}
	for _, c := range commissions {
		summary.TotalAmount += c.Amount
		summary.ByFormat[c.Format]++
	}
	return summary, nil
}

// ListMonth returns the stored commissions for a month, highest amount first
func (s *CommissionFlowImpl) ListMonth(ctx context.Context, month string) ([]dto.CommissionItem, error) {
	if _, _, err := utils.MonthBounds(month); err != nil {
		return nil, NewBusinessError("COMMISSION_MONTH_INVALID", "Invalid month reference", ErrMonthFormatInvalid)
	}
	commissions, err := s.commissionRepo.ListByMonth(ctx, month)
	if err != nil {
		return nil, NewBusinessError("COMMISSION_LIST_FAILED", "Failed to list commissions", err)
	}
	items := make([]dto.CommissionItem, 0, len(commissions))
	for _, c := range commissions {
		items = append(items, commissionItem(c))
	}
	return items, nil
}

// MarkPaid flips the paid flag on each referenced commission and returns how
// many rows were updated
func (s *CommissionFlowImpl) MarkPaid(ctx context.Context, req *dto.MarkCommissionPaidRequest) (int, error) {
	var paidAt *time.Time
	if req.Paid {
		paidAt = utils.UTCNowPtr()
	}
	updated := 0
	for _, id := range req.CommissionIDs {
		existing, err := s.commissionRepo.ByID(ctx, id)
		if err != nil {
			return updated, NewBusinessError("COMMISSION_LOOKUP_FAILED", "Failed to lookup commission", err)
		}
		if existing == nil {
			return updated, ErrCommissionNotFound
		}
		if err := s.commissionRepo.SetPaid(ctx, id, req.Paid, paidAt); err != nil {
			return updated, NewBusinessError("COMMISSION_MARK_PAID_FAILED", "Failed to update paid status", err)
		}
		updated++
	}
	return updated, nil
}

// ExportMonth renders the month's commissions as an xlsx workbook
func (s *CommissionFlowImpl) ExportMonth(ctx context.Context, month string) (string, []byte, error) {
	items, err := s.ListMonth(ctx, month)
	if err != nil {
		return "", nil, err
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	sheet := xl.GetSheetName(0)
	header := []any{"ID", "User ID", "Post Metric ID", "Month", "Format", "Rate", "Views", "Amount", "Paid", "Paid At"}
	_ = xl.SetSheetRow(sheet, "A1", &header)

	for i, item := range items {
		paidAt := ""
		if item.PaidAt != nil {
			paidAt = item.PaidAt.Format(time.RFC3339)
		}
		record := []any{
			item.ID,
			item.UserID,
			item.PostMetricID,
			item.Month,
			item.Format,
			item.Rate,
			item.Views,
			item.Amount,
			item.IsPaid,
			paidAt,
		}
		cellRef := fmt.Sprintf("A%d", i+2)
		_ = xl.SetSheetRow(sheet, cellRef, &record)
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("COMMISSION_EXPORT_FAILED", "Failed to write Excel file", err)
	}
	filename := fmt.Sprintf("commissions_%s.xlsx", month)
	return filename, buf.Bytes(), nil
}

// ListRates returns the current per-format rate table, seeding defaults first
func (s *CommissionFlowImpl) ListRates(ctx context.Context) ([]dto.CommissionRateItem, error) {
	if err := s.configRepo.SeedMissingDefaults(ctx); err != nil {
		return nil, NewBusinessError("COMMISSION_RATE_SEED_FAILED", "Failed to seed default rates", err)
	}
	configs, err := s.configRepo.ListAll(ctx)
	if err != nil {
		return nil, NewBusinessError("COMMISSION_RATE_LOAD_FAILED", "Failed to load rate table", err)
	}
	items := make([]dto.CommissionRateItem, 0, len(configs))
	for _, c := range configs {
		items = append(items, dto.CommissionRateItem{
			Format:    c.Format,
			Rate:      c.Rate,
			IsDefault: c.IsDefault,
		})
	}
	return items, nil
}

// UpdateRate sets the rate for one format
func (s *CommissionFlowImpl) UpdateRate(ctx context.Context, req *dto.UpdateCommissionRateRequest) error {
	if _, ok := models.DefaultCommissionRates[req.Format]; !ok {
		return ErrRateFormatInvalid
	}
	if req.Rate <= 0 {
		return ErrRateNotPositive
	}
	if err := s.configRepo.UpsertRate(ctx, req.Format, req.Rate); err != nil {
		return NewBusinessError("COMMISSION_RATE_UPDATE_FAILED", "Failed to update rate", err)
	}
	return nil
}

// rateTable loads the per-format rates, falling back to the seeded default
// for any format still missing a row
func (s *CommissionFlowImpl) rateTable(ctx context.Context) (map[string]float64, error) {
	configs, err := s.configRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	rates := make(map[string]float64, len(models.AllFormats))
	for format, rate := range models.DefaultCommissionRates {
		rates[format] = rate
	}
	for _, c := range configs {
		rates[c.Format] = c.Rate
	}
	return rates, nil
}

// resolveFormatAndOwner determines the content format and payout recipient
// for one metric. A linked pipeline post's declared format and collaborator
// take precedence; otherwise the format is inferred from the platform media
// type and the payout goes to the account owner.
func (s *CommissionFlowImpl) resolveFormatAndOwner(ctx context.Context, metric *models.PostMetric, accountOwners map[uint]uint) (string, uint, error) {
	format := ""
	var collaborator *uint

	if metric.PipelinePostID != nil {
		post, err := s.pipelineRepo.ByID(ctx, *metric.PipelinePostID)
		if err != nil {
			return "", 0, NewBusinessError("COMMISSION_PIPELINE_LOOKUP_FAILED", "Failed to lookup pipeline post", err)
		}
		if post != nil {
			if post.DeclaredFormat != nil && *post.DeclaredFormat != "" {
				format = *post.DeclaredFormat
			}
			collaborator = post.CollaboratorID
		}
	}
	if format == "" {
		format = InferFormat(metric.Platform, metric.MediaType)
	}

	if collaborator != nil {
		return format, *collaborator, nil
	}

	ownerID, ok := accountOwners[metric.SocialAccountID]
	if !ok {
		account, err := getAccount(ctx, s.accountRepo, metric.SocialAccountID)
		if err != nil {
			return "", 0, NewBusinessError("COMMISSION_ACCOUNT_LOOKUP_FAILED", "Failed to lookup social account", err)
		}
		ownerID = account.UserID
		accountOwners[metric.SocialAccountID] = ownerID
	}
	return format, ownerID, nil
}

// InferFormat maps a platform media type onto a commission format. Unknown
// media types fall back to static, the lowest-assumption format.
func InferFormat(platform, mediaType string) string {
	if platform == models.PlatformTikTok {
		return models.FormatReel
	}
	switch strings.ToUpper(mediaType) {
	case "REELS", "VIDEO":
		return models.FormatReel
	case "CAROUSEL_ALBUM":
		return models.FormatCarousel
	case "IMAGE":
		return models.FormatStatic
	case "STORY":
		return models.FormatStory
	default:
		return models.FormatStatic
	}
}

func commissionItem(c *models.Commission) dto.CommissionItem {
	return dto.CommissionItem{
		ID:           c.ID,
		UserID:       c.UserID,
		PostMetricID: c.PostMetricID,
		Month:        c.Month,
		Format:       c.Format,
		Rate:         c.Rate,
		Views:        c.Views,
		Amount:       c.Amount,
		IsPaid:       c.IsPaid,
		PaidAt:       c.PaidAt,
	}
}
