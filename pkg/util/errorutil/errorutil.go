package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared by the engine, the bot and the HTTP layer.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeUserNotRegistered = "USER_NOT_REGISTERED"
	CodeInvalidState      = "INVALID_STATE"
	CodeNotClaimant       = "NOT_CLAIMANT"
	CodeAlreadyClaimed    = "ALREADY_CLAIMED"
	CodePermissionDenied  = "PERMISSION_DENIED"
	CodeStoreUnavailable  = "STORE_UNAVAILABLE"
	CodeValidation        = "VALIDATION_FAILED"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeConflict          = "CONFLICT"
	CodeInternal          = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewUserNotRegistered is the NotFound variant for requesters without a User record.
func NewUserNotRegistered(userID int64) error {
	return NewDomainError(CodeUserNotRegistered, "user not registered", http.StatusNotFound,
		map[string]any{"user_id": userID})
}

func NewInvalidState(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidState, message, http.StatusConflict, details)
}

func NewNotClaimant(details map[string]any) error {
	return NewDomainError(CodeNotClaimant, "ticket is claimed by another admin", http.StatusForbidden, details)
}

func NewAlreadyClaimed(details map[string]any) error {
	return NewDomainError(CodeAlreadyClaimed, "ticket already claimed", http.StatusConflict, details)
}

func NewPermissionDenied(message string) error {
	return NewDomainError(CodePermissionDenied, message, http.StatusForbidden, nil)
}

func NewStoreUnavailable(err error) error {
	return &DomainError{
		Code:       CodeStoreUnavailable,
		Message:    "record store unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

// CodeOf returns the domain code carried by err, or "" when err is not a DomainError.
func CodeOf(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given domain code.
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// Retryable reports whether the caller may retry the operation later.
func Retryable(err error) bool {
	return IsCode(err, CodeStoreUnavailable)
}
