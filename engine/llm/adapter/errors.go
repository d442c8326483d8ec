package llmadapter

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies provider failures for retry decisions upstream.
type ErrorCode string

const (
	ErrCodeBadRequest         ErrorCode = "BAD_REQUEST"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeRateLimit          ErrorCode = "RATE_LIMIT"
	ErrCodeQuotaExceeded      ErrorCode = "QUOTA_EXCEEDED"
	ErrCodeInvalidModel       ErrorCode = "INVALID_MODEL"
	ErrCodeContentPolicy      ErrorCode = "CONTENT_POLICY"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeConnectionReset    ErrorCode = "CONNECTION_RESET"
	ErrCodeConnectionRefused  ErrorCode = "CONNECTION_REFUSED"
	ErrCodeInternalServer     ErrorCode = "INTERNAL_SERVER"
	ErrCodeBadGateway         ErrorCode = "BAD_GATEWAY"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeGatewayTimeout     ErrorCode = "GATEWAY_TIMEOUT"
	ErrCodeEmptyResponse      ErrorCode = "EMPTY_RESPONSE"
	ErrCodeUnknown            ErrorCode = "UNKNOWN"
)

// Error is a classified provider failure.
type Error struct {
	Code       ErrorCode
	HTTPStatus int
	Message    string
	Provider   string
	Err        error
}

// NewError classifies by HTTP status code.
func NewError(status int, message, provider string, err error) *Error {
	return &Error{
		Code:       codeForStatus(status),
		HTTPStatus: status,
		Message:    message,
		Provider:   provider,
		Err:        err,
	}
}

// NewErrorWithCode classifies directly when no status is available.
func NewErrorWithCode(code ErrorCode, message, provider string, err error) *Error {
	return &Error{
		Code:       code,
		HTTPStatus: statusForCode(code),
		Message:    message,
		Provider:   provider,
		Err:        err,
	}
}

func (e *Error) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("%s (%s, status %d): %s", e.Code, e.Provider, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Provider, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure class is worth another attempt.
// Auth, validation, and policy failures are not; load and transport are.
func (e *Error) Retryable() bool {
	switch e.Code {
	case ErrCodeRateLimit, ErrCodeQuotaExceeded, ErrCodeTimeout,
		ErrCodeConnectionReset, ErrCodeConnectionRefused,
		ErrCodeInternalServer, ErrCodeBadGateway,
		ErrCodeServiceUnavailable, ErrCodeGatewayTimeout:
		return true
	}
	return false
}

// IsLLMError unwraps err to the adapter's Error, if present.
func IsLLMError(err error) (*Error, bool) {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr, true
	}
	return nil, false
}

func codeForStatus(status int) ErrorCode {
	switch status {
	case http.StatusBadRequest:
		return ErrCodeBadRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrCodeUnauthorized
	case http.StatusNotFound:
		return ErrCodeInvalidModel
	case http.StatusTooManyRequests:
		return ErrCodeRateLimit
	case http.StatusInternalServerError:
		return ErrCodeInternalServer
	case http.StatusBadGateway:
		return ErrCodeBadGateway
	case http.StatusServiceUnavailable:
		return ErrCodeServiceUnavailable
	case http.StatusGatewayTimeout:
		return ErrCodeGatewayTimeout
	default:
		if status >= 500 {
			return ErrCodeInternalServer
		}
		if status >= 400 {
			return ErrCodeBadRequest
		}
		return ErrCodeUnknown
	}
}

func statusForCode(code ErrorCode) int {
	switch code {
	case ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeQuotaExceeded:
		return http.StatusTooManyRequests
	case ErrCodeInternalServer:
		return http.StatusInternalServerError
	case ErrCodeBadGateway:
		return http.StatusBadGateway
	case ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeGatewayTimeout, ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return 0
	}
}
