// internal/pkg/apperror/errors.go
package apperror

import (
	"errors"
	"fmt"
)

// ValidationError carries field-level validation messages for a 400 response.
type ValidationError struct {
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

// NewValidation creates a validation error with a general message
func NewValidation(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// NewFieldValidation creates a validation error for a single field
func NewFieldValidation(field, message string) *ValidationError {
	return &ValidationError{
		Message: "validation failed",
		Fields:  map[string][]string{field: {message}},
	}
}

// AddField appends a message for a field and returns the error for chaining
func (e *ValidationError) AddField(field, message string) *ValidationError {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
	return e
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NotFoundError marks a missing resource for a 404 response.
type NotFoundError struct {
	Resource string
}

// NewNotFound creates a not-found error for the named resource
func NewNotFound(resource string) *NotFoundError {
	return &NotFoundError{Resource: resource}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

// UnauthorizedError marks a failed authentication for a 401 response.
type UnauthorizedError struct {
	Message string
}

// NewUnauthorized creates an unauthorized error
func NewUnauthorized(message string) *UnauthorizedError {
	return &UnauthorizedError{Message: message}
}

func (e *UnauthorizedError) Error() string {
	return e.Message
}

// ForbiddenError marks an access violation for a 403 response.
type ForbiddenError struct {
	Message string
}

// NewForbidden creates a forbidden error
func NewForbidden(message string) *ForbiddenError {
	return &ForbiddenError{Message: message}
}

func (e *ForbiddenError) Error() string {
	return e.Message
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsUnauthorized reports whether err is an unauthorized error
func IsUnauthorized(err error) bool {
	var ue *UnauthorizedError
	return errors.As(err, &ue)
}

// IsForbidden reports whether err is a forbidden error
func IsForbidden(err error) bool {
	var fe *ForbiddenError
	return errors.As(err, &fe)
}
