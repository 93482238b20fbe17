package claimgate

import (
	"errors"
	"fmt"
)

// ClaimError represents a claim-pipeline error with a stable machine-readable code.
type ClaimError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ClaimError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Pipeline error codes
const (
	ErrCodeInvalidSignature      = "invalid_signature"
	ErrCodeInvalidMagnitude      = "invalid_magnitude"
	ErrCodeExpired               = "expired"
	ErrCodeExpiryWindowExceeded  = "expiry_window_exceeded"
	ErrCodeNonceMismatch         = "nonce_mismatch"
	ErrCodeDuplicateClaim        = "duplicate_claim"
	ErrCodeSingleCapExceeded     = "single_cap_exceeded"
	ErrCodeDailyCapExceeded      = "daily_cap_exceeded"
	ErrCodeCooldownActive        = "cooldown_active"
	ErrCodeLedgerEffectFailed    = "ledger_effect_failed"
	ErrCodeReentrantCall         = "reentrant_call"
	ErrCodePaused                = "paused"
	ErrCodeInvalidAdminParameter = "invalid_admin_parameter"
)

// NewClaimError creates a new claim error
func NewClaimError(code, message string, details map[string]interface{}) *ClaimError {
	return &ClaimError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// ErrorCode extracts the machine-readable code from an error.
// Returns "" if the error is not a *ClaimError.
func ErrorCode(err error) string {
	var ce *ClaimError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
