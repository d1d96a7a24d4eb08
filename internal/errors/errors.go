package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrValidation     ErrorType = "VALIDATION"
	ErrNotFound       ErrorType = "NOT_FOUND"
	ErrTransientStore ErrorType = "TRANSIENT_STORE"
	ErrQueue          ErrorType = "QUEUE"
	ErrDelivery       ErrorType = "DELIVERY"
	ErrInternal       ErrorType = "INTERNAL"
)

// AppError represents an application error
type AppError struct {
	Type      ErrorType
	Message   string
	Cause     error
	Timestamp time.Time
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// New creates a new AppError
func New(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:      errType,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// MissingFieldError reports a required webhook field that was absent. Field
// is the dotted path into the payload, e.g. "repository.owner.email".
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

// NewMissingFieldError creates a new MissingFieldError
func NewMissingFieldError(field string) error {
	return &MissingFieldError{Field: field}
}

// IsMissingField checks if the error is a missing webhook field error
func IsMissingField(err error) bool {
	var mfe *MissingFieldError
	return errors.As(err, &mfe)
}

// NotFoundError represents a not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewNotFoundError creates a new NotFoundError for a specific resource
func NewNotFoundError(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	if errors.As(err, &nfe) {
		return true
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == ErrNotFound
	}
	return false
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	if IsMissingField(err) {
		return true
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == ErrValidation
	}
	return false
}

// NewTransientStoreError creates a new transient store error. The job queue
// retries these with backoff.
func NewTransientStoreError(message string, err error) *AppError {
	return New(ErrTransientStore, message, err)
}

// NewQueueError creates a new queue error
func NewQueueError(message string, err error) *AppError {
	return New(ErrQueue, message, err)
}

// DeliveryError reports a failed push to a single viewer token. It never
// fails the surrounding broadcast.
type DeliveryError struct {
	TokenID string
	Cause   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to token %s failed: %v", e.TokenID, e.Cause)
}

func (e *DeliveryError) Unwrap() error { return e.Cause }

// NewDeliveryError creates a new DeliveryError
func NewDeliveryError(tokenID string, cause error) error {
	return &DeliveryError{TokenID: tokenID, Cause: cause}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return New(ErrInternal, message, err)
}
