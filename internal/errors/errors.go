// Package errors provides error codes and the sync error taxonomy shared by the
// gateway, the store and the sync manager.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique, stable error code that can be surfaced to the UI layer.
type ErrorCode string

const (
	// General errors
	ErrInternal  ErrorCode = "INTERNAL_ERROR"
	ErrInvalid   ErrorCode = "INVALID_INPUT"
	ErrNotFound  ErrorCode = "NOT_FOUND"
	ErrDuplicate ErrorCode = "DUPLICATE"

	// Storage errors
	ErrDatabase           ErrorCode = "DATABASE_ERROR"
	ErrMigration          ErrorCode = "MIGRATION_FAILED"
	ErrStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"

	// Sync errors
	ErrNetwork              ErrorCode = "NETWORK_ERROR"
	ErrSyncConflict         ErrorCode = "SYNC_CONFLICT"
	ErrSyncAuthFailed       ErrorCode = "SYNC_AUTH_FAILED"
	ErrValidation           ErrorCode = "VALIDATION_ERROR"
	ErrInvalidOperationType ErrorCode = "INVALID_OPERATION_TYPE"
	ErrSyncFailed           ErrorCode = "SYNC_FAILED"
	ErrRetriesExhausted     ErrorCode = "RETRIES_EXHAUSTED"
)

// AppError represents an application error with code and message.
//
// Gateway errors also carry the HTTP status, field-level validation messages
// and, for conflicts, the server's current version and state.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error

	Status        int
	Fields        map[string][]string
	ServerVersion int64
	ServerState   json.RawMessage
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewNetwork creates a transient, retryable error.
func NewNetwork(message string, status int, err error) *AppError {
	return &AppError{
		Code:    ErrNetwork,
		Message: message,
		Err:     err,
		Status:  status,
	}
}

// NewConflict creates a version conflict error carrying the server's view.
func NewConflict(message string, serverVersion int64, serverState json.RawMessage) *AppError {
	return &AppError{
		Code:          ErrSyncConflict,
		Message:       message,
		Status:        409,
		ServerVersion: serverVersion,
		ServerState:   serverState,
	}
}

// NewAuthentication creates a terminal authentication error.
func NewAuthentication(message string, status int) *AppError {
	return &AppError{
		Code:    ErrSyncAuthFailed,
		Message: message,
		Status:  status,
	}
}

// NewValidation creates a terminal validation error with field-level messages.
func NewValidation(message string, status int, fields map[string][]string) *AppError {
	return &AppError{
		Code:    ErrValidation,
		Message: message,
		Status:  status,
		Fields:  fields,
	}
}

// NewInvalidOperationType reports an operation type outside create/update/delete.
func NewInvalidOperationType(opType string) *AppError {
	return &AppError{
		Code:    ErrInvalidOperationType,
		Message: fmt.Sprintf("Invalid operation type: %q", opType),
	}
}

// NewStorageUnavailable reports that the persistent store could not be opened.
func NewStorageUnavailable(err error) *AppError {
	return &AppError{
		Code:    ErrStorageUnavailable,
		Message: "persistent storage unavailable, continuing in memory-only mode",
		Err:     err,
	}
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first AppError in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ErrInternal
}

// Is checks if an error is of a specific code.
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// IsRetryable reports whether the error is transient.
func IsRetryable(err error) bool {
	return Is(err, ErrNetwork)
}

// UserMessage returns the message suitable for SyncState.errors.
func UserMessage(err error) string {
	if appErr, ok := As(err); ok {
		if appErr.Err != nil {
			return fmt.Sprintf("%s: %v", appErr.Message, appErr.Err)
		}
		return appErr.Message
	}
	return err.Error()
}
