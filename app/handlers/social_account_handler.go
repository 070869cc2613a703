// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/pulseboard/pulseboard/app/dto"
	businessflow "github.com/pulseboard/pulseboard/business_flow"
	"github.com/pulseboard/pulseboard/utils"
)

// SocialAccountHandlerInterface defines the contract for social account handlers
type SocialAccountHandlerInterface interface {
	Connect(c fiber.Ctx) error
	List(c fiber.Ctx) error
	Update(c fiber.Ctx) error
	Disconnect(c fiber.Ctx) error
}

// SocialAccountHandler handles social account HTTP requests
type SocialAccountHandler struct {
	accountFlow businessflow.SocialAccountFlow
	validator   *validator.Validate
}

// NewSocialAccountHandler creates a new social account handler
func NewSocialAccountHandler(accountFlow businessflow.SocialAccountFlow) *SocialAccountHandler {
	return &SocialAccountHandler{
		accountFlow: accountFlow,
		validator:   validator.New(),
	}
}

func (h *SocialAccountHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *SocialAccountHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Connect links a platform account to the authenticated user
func (h *SocialAccountHandler) Connect(c fiber.Ctx) error {
	var req dto.ConnectAccountRequest
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

	userID, ok := c.Locals("user_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "User ID not found in context", "MISSING_USER_ID", nil)
	}

	ctx := h.createRequestContext(c, "/api/v1/accounts", 30*time.Second)
	item, err := h.accountFlow.Connect(ctx, userID, &req)
	if err != nil {
		if err == businessflow.ErrUserNotFound {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "User not found", "USER_NOT_FOUND", nil)
		}
		if err == businessflow.ErrAccountAlreadyLinked {
			return h.ErrorResponse(c, fiber.StatusConflict, "Account already linked to another user", "ACCOUNT_ALREADY_LINKED", nil)
		}
		log.Println("Account connect failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to connect account", "ACCOUNT_CONNECT_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Account connected", item)
}

// List returns the authenticated user's connected accounts
func (h *SocialAccountHandler) List(c fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "User ID not found in context", "MISSING_USER_ID", nil)
	}

	ctx := h.createRequestContext(c, "/api/v1/accounts", 10*time.Second)
	items, err := h.accountFlow.List(ctx, userID)
	if err != nil {
		log.Println("Account listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list accounts", "ACCOUNT_LIST_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Connected accounts", items)
}

// Update toggles sync behavior on one of the user's accounts
func (h *SocialAccountHandler) Update(c fiber.Ctx) error {
	accountID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || accountID == 0 {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid account ID", "INVALID_ACCOUNT_ID", nil)
	}

	var req dto.UpdateAccountRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	userID, ok := c.Locals("user_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "User ID not found in context", "MISSING_USER_ID", nil)
	}

	ctx := h.createRequestContext(c, "/api/v1/accounts/:id", 10*time.Second)
	item, err := h.accountFlow.Update(ctx, userID, uint(accountID), &req)
	if err != nil {
		if businessflow.IsAccountNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Social account not found", "ACCOUNT_NOT_FOUND", nil)
		}
		if err == businessflow.ErrAccountUpdateRequired {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "At least one field must be provided", "ACCOUNT_UPDATE_REQUIRED", nil)
		}
		log.Println("Account update failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update account", "ACCOUNT_UPDATE_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Account updated", item)
}

// Disconnect deactivates one of the user's accounts
func (h *SocialAccountHandler) Disconnect(c fiber.Ctx) error {
	accountID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || accountID == 0 {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid account ID", "INVALID_ACCOUNT_ID", nil)
	}

	userID, ok := c.Locals("user_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "User ID not found in context", "MISSING_USER_ID", nil)
	}

	ctx := h.createRequestContext(c, "/api/v1/accounts/:id", 10*time.Second)
	if err := h.accountFlow.Disconnect(ctx, userID, uint(accountID)); err != nil {
		if businessflow.IsAccountNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Social account not found", "ACCOUNT_NOT_FOUND", nil)
		}
		log.Println("Account disconnect failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to disconnect account", "ACCOUNT_DISCONNECT_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Account disconnected", nil)
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *SocialAccountHandler) createRequestContext(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
