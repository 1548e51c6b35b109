package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies failures raised by the deployer
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeDescriptor ErrorType = "descriptor"
	ErrorTypeDeployment ErrorType = "deployment"
	ErrorTypeLifecycle  ErrorType = "lifecycle"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeCancelled  ErrorType = "cancelled"
)

// DomainError represents a structured error with type and context
type DomainError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches any DomainError of the same type
func (e *DomainError) Is(target error) bool {
	if other, ok := target.(*DomainError); ok {
		return e.Type == other.Type
	}
	return false
}

// WithContext attaches a key/value pair and returns the same error
func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func NewDomainError(errorType ErrorType, message string, cause error) *DomainError {
	return &DomainError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

func NewValidationError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, cause)
}

func NewNotFoundError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeNotFound, message, cause)
}

func NewConflictError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeConflict, message, cause)
}

// NewDescriptorError reports a malformed or unreadable context descriptor
func NewDescriptorError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeDescriptor, message, cause)
}

// NewDeploymentError reports a failure while building or registering a unit
func NewDeploymentError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeDeployment, message, cause)
}

// NewLifecycleError reports a failed start, stop or destroy
func NewLifecycleError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeLifecycle, message, cause)
}

func NewIOError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeIO, message, cause)
}

func NewNetworkError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeNetwork, message, cause)
}

func NewTimeoutError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeTimeout, message, cause)
}

func NewInternalError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeInternal, message, cause)
}

func NewCancelledError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeCancelled, message, cause)
}

func hasType(err error, errorType ErrorType) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Type == errorType
}

func IsValidationError(err error) bool { return hasType(err, ErrorTypeValidation) }
func IsNotFoundError(err error) bool   { return hasType(err, ErrorTypeNotFound) }
func IsConflictError(err error) bool   { return hasType(err, ErrorTypeConflict) }
func IsDescriptorError(err error) bool { return hasType(err, ErrorTypeDescriptor) }
func IsDeploymentError(err error) bool { return hasType(err, ErrorTypeDeployment) }
func IsLifecycleError(err error) bool  { return hasType(err, ErrorTypeLifecycle) }
func IsIOError(err error) bool         { return hasType(err, ErrorTypeIO) }
func IsNetworkError(err error) bool    { return hasType(err, ErrorTypeNetwork) }
func IsTimeoutError(err error) bool    { return hasType(err, ErrorTypeTimeout) }
func IsInternalError(err error) bool   { return hasType(err, ErrorTypeInternal) }
func IsCancelledError(err error) bool  { return hasType(err, ErrorTypeCancelled) }

// ErrorCollection aggregates failures of bulk operations such as cleanup
type ErrorCollection struct {
	Errors []error
}

func (e *ErrorCollection) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred: %v", len(e.Errors), e.Errors[0])
}

func (e *ErrorCollection) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

func (e *ErrorCollection) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ErrorCollection) ToError() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

func NewErrorCollection() *ErrorCollection {
	return &ErrorCollection{
		Errors: make([]error, 0),
	}
}
