// Package domain holds the error taxonomy shared by the flowerstory surfaces.
package domain

import (
	"errors"
	"fmt"
)

// ErrorType classifies a DomainError for transport mapping.
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeRateLimited ErrorType = "rate_limited"
	ErrorTypeProvider    ErrorType = "provider"
	ErrorTypeCatalog     ErrorType = "catalog"
	ErrorTypeConfig      ErrorType = "config"
	ErrorTypeStorage     ErrorType = "storage"
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func RateLimitedError(message string, err error) *DomainError {
	return NewError(ErrorTypeRateLimited, message, err)
}

func ProviderError(message string, err error) *DomainError {
	return NewError(ErrorTypeProvider, message, err)
}

func CatalogError(message string, err error) *DomainError {
	return NewError(ErrorTypeCatalog, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func StorageError(message string, err error) *DomainError {
	return NewError(ErrorTypeStorage, message, err)
}

// TypeOf returns the ErrorType of the first DomainError in err's chain,
// or the empty string when there is none.
func TypeOf(err error) ErrorType {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}
