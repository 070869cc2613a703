// Package businessflow contains the core business logic for metric sync and commission workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Account-related errors
	ErrUserNotFound          = errors.New("user not found")
	ErrAccountNotFound       = errors.New("social account not found")
	ErrAccountInactive       = errors.New("social account is inactive")
	ErrAccountAlreadyLinked  = errors.New("social account already linked")
	ErrAccountUpdateRequired = errors.New("at least one field must be provided for update")

	// Sync-related errors
	ErrSyncInProgress  = errors.New("sync already in progress for this account")
	ErrNoPostsFetched  = errors.New("no posts fetched from platform")
	ErrPlatformUnknown = errors.New("unknown platform")

	// Commission-related errors
	ErrMonthFormatInvalid = errors.New("month must be in YYYY-MM format")
	ErrNoMetricsForMonth  = errors.New("no post metrics found for month")
	ErrCommissionNotFound = errors.New("commission not found")
	ErrRateFormatInvalid  = errors.New("unknown post format")
	ErrRateNotPositive    = errors.New("rate must be positive")
)

// BusinessError wraps errors with business context
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func IsAccountNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}

func IsAccountInactive(err error) bool {
	return errors.Is(err, ErrAccountInactive)
}

func IsSyncInProgress(err error) bool {
	return errors.Is(err, ErrSyncInProgress)
}

func IsMonthFormatInvalid(err error) bool {
	return errors.Is(err, ErrMonthFormatInvalid)
}
