package domain

import (
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeValidation         ErrorType = "validation"
	ErrorTypeConfig             ErrorType = "config"
	ErrorTypeIO                 ErrorType = "io"
	ErrorTypeDocumentUnreadable ErrorType = "document_unreadable"
	ErrorTypeRender             ErrorType = "render_failure"
	ErrorTypeNoResponse         ErrorType = "no_response"
	ErrorTypeHTTP               ErrorType = "http_error"
	ErrorTypeMalformedPayload   ErrorType = "malformed_payload"
	ErrorTypeSchemaViolation    ErrorType = "schema_violation"
	ErrorTypePersistence        ErrorType = "persistence_failure"
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

// StatusError holds a non-success answer from the model endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// TypeOf returns the ErrorType of the first DomainError in err's chain,
// or an empty string.
func TypeOf(err error) ErrorType {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}

// IsType reports whether err carries a DomainError of the given type.
func IsType(err error, errType ErrorType) bool {
	var de *DomainError
	for err != nil {
		if !errors.As(err, &de) {
			return false
		}
		if de.Type == errType {
			return true
		}
		err = de.Err
	}
	return false
}

// Common error constructors
func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}

func DocumentUnreadableError(message string, err error) *DomainError {
	return NewError(ErrorTypeDocumentUnreadable, message, err)
}

func RenderError(message string, err error) *DomainError {
	return NewError(ErrorTypeRender, message, err)
}

func NoResponseError(message string, err error) *DomainError {
	return NewError(ErrorTypeNoResponse, message, err)
}

// HTTPError wraps the captured status and body of a failed model call.
func HTTPError(statusCode int, body string) *DomainError {
	return NewError(ErrorTypeHTTP,
		fmt.Sprintf("model endpoint returned status %d", statusCode),
		&StatusError{StatusCode: statusCode, Body: body})
}

func MalformedPayloadError(message string, err error) *DomainError {
	return NewError(ErrorTypeMalformedPayload, message, err)
}

func SchemaViolationError(message string, err error) *DomainError {
	return NewError(ErrorTypeSchemaViolation, message, err)
}

func PersistenceError(message string, err error) *DomainError {
	return NewError(ErrorTypePersistence, message, err)
}
