// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"crypto/subtle"
	"log"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/pulseboard/pulseboard/app/dto"
	businessflow "github.com/pulseboard/pulseboard/business_flow"
	"github.com/pulseboard/pulseboard/models"
	"github.com/pulseboard/pulseboard/utils"
)

// SyncHandlerInterface defines the contract for sync handlers
type SyncHandlerInterface interface {
	SyncAccount(c fiber.Ctx) error
	SyncAll(c fiber.Ctx) error
	CronSyncAll(c fiber.Ctx) error
	FleetStatus(c fiber.Ctx) error
	ListSyncLogs(c fiber.Ctx) error
}

// SyncHandler handles sync-related HTTP requests
type SyncHandler struct {
	syncFlow   businessflow.SyncFlow
	validator  *validator.Validate
	cronSecret string
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(syncFlow businessflow.SyncFlow, cronSecret string) *SyncHandler {
	return &SyncHandler{
		syncFlow:   syncFlow,
		validator:  validator.New(),
		cronSecret: cronSecret,
	}
}

func (h *SyncHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *SyncHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// SyncAccount triggers a manual sync run for one account
func (h *SyncHandler) SyncAccount(c fiber.Ctx) error {
	accountID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || accountID == 0 {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid account ID", "INVALID_ACCOUNT_ID", nil)
	}

	ctx := h.createRequestContext(c, "/api/v1/sync/accounts/:id", 60*time.Second)
	result := h.syncFlow.SyncAccount(ctx, uint(accountID), models.SyncTriggerManual)

	if result.Status == models.SyncStatusError {
		if result.Error == businessflow.ErrAccountNotFound.Error() {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Social account not found", "ACCOUNT_NOT_FOUND", nil)
		}
		// The run itself completed; the result carries the failure detail
		return h.SuccessResponse(c, fiber.StatusOK, "Sync finished with errors", result)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Sync finished", result)
}

// SyncAll triggers a manual fleet run over every syncable account
func (h *SyncHandler) SyncAll(c fiber.Ctx) error {
	ctx := h.createRequestContext(c, "/api/v1/sync/run", 10*time.Minute)
	summary, err := h.syncFlow.SyncAll(ctx, models.SyncTriggerManual)
	if err != nil {
		log.Println("Fleet sync failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Fleet sync failed", "SYNC_ALL_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Fleet sync finished", summary)
}

// CronSyncAll is the scheduler-facing fleet trigger authenticated by a shared
// secret header instead of a user token
func (h *SyncHandler) CronSyncAll(c fiber.Ctx) error {
	if h.cronSecret == "" {
		return h.ErrorResponse(c, fiber.StatusForbidden, "Cron trigger is not configured", "CRON_DISABLED", nil)
	}
	provided := c.Get("X-Cron-Secret")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.cronSecret)) != 1 {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid cron secret", "INVALID_CRON_SECRET", nil)
	}

	ctx := h.createRequestContext(c, "/api/v1/sync/cron", 10*time.Minute)
	summary, err := h.syncFlow.SyncAll(ctx, models.SyncTriggerCron)
	if err != nil {
		log.Println("Cron fleet sync failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Fleet sync failed", "SYNC_ALL_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Fleet sync finished", summary)
}

// FleetStatus returns the cached summary of the most recent fleet run
func (h *SyncHandler) FleetStatus(c fiber.Ctx) error {
	ctx := h.createRequestContext(c, "/api/v1/sync/status", 10*time.Second)
	summary, err := h.syncFlow.LastFleetSummary(ctx)
	if err != nil {
		log.Println("Fleet status lookup failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load fleet status", "SYNC_STATUS_FAILED", nil)
	}
	if summary == nil {
		return h.SuccessResponse(c, fiber.StatusOK, "No fleet run recorded yet", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Last fleet run", summary)
}

// ListSyncLogs returns the sync history for one account, newest first
func (h *SyncHandler) ListSyncLogs(c fiber.Ctx) error {
	accountID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || accountID == 0 {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid account ID", "INVALID_ACCOUNT_ID", nil)
	}
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	ctx := h.createRequestContext(c, "/api/v1/sync/accounts/:id/logs", 10*time.Second)
	logs, err := h.syncFlow.ListSyncLogs(ctx, uint(accountID), limit, offset)
	if err != nil {
		if businessflow.IsAccountNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Social account not found", "ACCOUNT_NOT_FOUND", nil)
		}
		log.Println("Sync log listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list sync logs", "SYNC_LOG_LIST_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Sync logs", logs)
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *SyncHandler) createRequestContext(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
