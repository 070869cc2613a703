// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/pulseboard/pulseboard/app/dto"
	businessflow "github.com/pulseboard/pulseboard/business_flow"
	"github.com/pulseboard/pulseboard/utils"
)

// CommissionHandlerInterface defines the contract for commission handlers
type CommissionHandlerInterface interface {
	CalculateMonth(c fiber.Ctx) error
	ListMonth(c fiber.Ctx) error
	MarkPaid(c fiber.Ctx) error
	ExportMonth(c fiber.Ctx) error
	ListRates(c fiber.Ctx) error
	UpdateRate(c fiber.Ctx) error
}

// CommissionHandler handles commission-related HTTP requests
type CommissionHandler struct {
	commissionFlow businessflow.CommissionFlow
	validator      *validator.Validate
}

// NewCommissionHandler creates a new commission handler
func NewCommissionHandler(commissionFlow businessflow.CommissionFlow) *CommissionHandler {
	return &CommissionHandler{
		commissionFlow: commissionFlow,
		validator:      validator.New(),
	}
}

func (h *CommissionHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *CommissionHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CalculateMonth recomputes the full commission set for one month
func (h *CommissionHandler) CalculateMonth(c fiber.Ctx) error {
	var req dto.CalculateCommissionsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	ctx := h.createRequestContext(c, "/api/v1/commissions/calculate", 60*time.Second)
	summary, err := h.commissionFlow.CalculateMonth(ctx, req.Month)
	if err != nil {
		if businessflow.IsMonthFormatInvalid(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Month must be in YYYY-MM format", "INVALID_MONTH", nil)
		}
		log.Println("Commission calculation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Commission calculation failed", "COMMISSION_CALCULATION_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Commissions calculated", summary)
}

// ListMonth returns the stored commissions for a month
func (h *CommissionHandler) ListMonth(c fiber.Ctx) error {
	month := c.Params("month")

	ctx := h.createRequestContext(c, "/api/v1/commissions/:month", 15*time.Second)
	items, err := h.commissionFlow.ListMonth(ctx, month)
	if err != nil {
		if businessflow.IsMonthFormatInvalid(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Month must be in YYYY-MM format", "INVALID_MONTH", nil)
		}
		log.Println("Commission listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list commissions", "COMMISSION_LIST_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Commissions", items)
}

// MarkPaid flips the paid flag on a set of commissions
func (h *CommissionHandler) MarkPaid(c fiber.Ctx) error {
	var req dto.MarkCommissionPaidRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	ctx := h.createRequestContext(c, "/api/v1/commissions/mark-paid", 30*time.Second)
	updated, err := h.commissionFlow.MarkPaid(ctx, &req)
	if err != nil {
		if err == businessflow.ErrCommissionNotFound {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Commission not found", "COMMISSION_NOT_FOUND", map[string]int{"updated": updated})
		}
		log.Println("Commission mark-paid failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update paid status", "COMMISSION_MARK_PAID_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Paid status updated", map[string]int{"updated": updated})
}

// ExportMonth streams the month's commissions as an xlsx workbook
func (h *CommissionHandler) ExportMonth(c fiber.Ctx) error {
	month := c.Params("month")

	ctx := h.createRequestContext(c, "/api/v1/commissions/:month/export", 60*time.Second)
	filename, content, err := h.commissionFlow.ExportMonth(ctx, month)
	if err != nil {
		if businessflow.IsMonthFormatInvalid(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Month must be in YYYY-MM format", "INVALID_MONTH", nil)
		}
		log.Println("Commission export failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to export commissions", "COMMISSION_EXPORT_FAILED", nil)
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	return c.Send(content)
}

// ListRates returns the current per-format rate table
func (h *CommissionHandler) ListRates(c fiber.Ctx) error {
	ctx := h.createRequestContext(c, "/api/v1/commissions/rates", 10*time.Second)
	items, err := h.commissionFlow.ListRates(ctx)
	if err != nil {
		log.Println("Rate listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list rates", "COMMISSION_RATE_LIST_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Commission rates", items)
}

// UpdateRate sets the rate for one format
func (h *CommissionHandler) UpdateRate(c fiber.Ctx) error {
	var req dto.UpdateCommissionRateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	ctx := h.createRequestContext(c, "/api/v1/commissions/rates", 10*time.Second)
	if err := h.commissionFlow.UpdateRate(ctx, &req); err != nil {
		if err == businessflow.ErrRateFormatInvalid || err == businessflow.ErrRateNotPositive {
			return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "INVALID_RATE", nil)
		}
		log.Println("Rate update failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update rate", "COMMISSION_RATE_UPDATE_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Rate updated", nil)
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *CommissionHandler) createRequestContext(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
