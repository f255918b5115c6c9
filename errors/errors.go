// Package errors provides custom error types for the tracking pipeline
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents the type of error that occurred
type ErrorCode string

const (
	ErrCodeValidationFailure       ErrorCode = "VALIDATION_FAILURE"
	ErrCodeDomainResolutionFailure ErrorCode = "DOMAIN_RESOLUTION_FAILURE"
	ErrCodeSerializationFailure    ErrorCode = "SERIALIZATION_FAILURE"
	ErrCodeTransportFailure        ErrorCode = "TRANSPORT_FAILURE"
	ErrCodeUnsuccessfulResponse    ErrorCode = "UNSUCCESSFUL_RESPONSE"
	ErrCodeStorageFailure          ErrorCode = "STORAGE_FAILURE"
	ErrCodeConfigFailure           ErrorCode = "CONFIG_FAILURE"
)

// Operation represents the pipeline operation during which an error occurred
type Operation string

const (
	OpBuild   Operation = "build"
	OpResolve Operation = "resolve"
	OpExpand  Operation = "expand"
	OpSend    Operation = "send"
	OpEncode  Operation = "encode"
	OpStore   Operation = "store"
	OpLoad    Operation = "load"
	OpConfig  Operation = "config"
	OpClose   Operation = "close"
)

// Kind classifies an error independently of the component that raised it
type Kind string

const (
	KindInvalid     Kind = "invalid"
	KindNotFound    Kind = "not_found"
	KindUnavailable Kind = "unavailable"
	KindInternal    Kind = "internal"
	KindRemote      Kind = "remote"
)

// TrackError represents an error that occurred while building or dispatching events
type TrackError struct {
	// Operation during which the error occurred
	Op Operation

	// Component that generated the error (e.g., "resolver", "dispatch")
	Component string

	// Underlying error
	Err error

	// Whether the operation could succeed if attempted again
	Retryable bool

	// Error code for the error type
	Code ErrorCode

	// Kind of failure
	Kind Kind

	// Metadata for additional context
	Metadata map[string]interface{}
}

func (e *TrackError) Error() string {
	var msg string
	if e.Component != "" {
		msg = fmt.Sprintf("%s operation failed in %s component", e.Op, e.Component)
	} else {
		msg = fmt.Sprintf("%s operation failed", e.Op)
	}

	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}

	return msg + fmt.Sprintf(": %v", e.Err)
}

func (e *TrackError) Unwrap() error {
	return e.Err
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *TrackError) WithMetadata(key string, value interface{}) *TrackError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// NewValidationError creates an error for a malformed or missing constructor argument.
// The offending parameter name is recorded under Metadata["param"].
func NewValidationError(param string, cause error) *TrackError {
	return &TrackError{
		Code:     ErrCodeValidationFailure,
		Op:       OpBuild,
		Kind:     KindInvalid,
		Err:      cause,
		Metadata: map[string]interface{}{"param": param},
	}
}

// NewDomainResolutionError creates an error for a failed geo-adjusted domain lookup
func NewDomainResolutionError(cause error) *TrackError {
	return &TrackError{
		Code:      ErrCodeDomainResolutionFailure,
		Op:        OpResolve,
		Component: "resolver",
		Kind:      KindUnavailable,
		Err:       cause,
		Retryable: true,
	}
}

// NewSerializationError creates an error for a payload that could not be encoded
func NewSerializationError(op Operation, cause error) *TrackError {
	return &TrackError{
		Code:      ErrCodeSerializationFailure,
		Op:        op,
		Component: "dispatch",
		Kind:      KindInternal,
		Err:       cause,
	}
}

// NewTransportError creates an error for a failed network call
func NewTransportError(op Operation, cause error) *TrackError {
	return &TrackError{
		Code:      ErrCodeTransportFailure,
		Op:        op,
		Component: "transport",
		Kind:      KindUnavailable,
		Err:       cause,
		Retryable: true,
	}
}

// NewUnsuccessfulResponseError creates an error for a non-2xx response
func NewUnsuccessfulResponseError(op Operation, statusCode int, body string) *TrackError {
	e := &TrackError{
		Code:      ErrCodeUnsuccessfulResponse,
		Op:        op,
		Component: "transport",
		Kind:      KindRemote,
		Err:       fmt.Errorf("invalid response code %d: %s", statusCode, body),
		Retryable: statusCode >= 500,
	}
	return e.WithMetadata("status_code", statusCode)
}

// NewStorageError creates a new storage-related TrackError
func NewStorageError(op Operation, cause error) *TrackError {
	return &TrackError{
		Code:      ErrCodeStorageFailure,
		Op:        op,
		Component: "store",
		Kind:      KindInternal,
		Err:       cause,
		Retryable: true,
	}
}

// NewConfigError creates a configuration TrackError
func NewConfigError(cause error) *TrackError {
	return &TrackError{
		Code:      ErrCodeConfigFailure,
		Op:        OpConfig,
		Component: "config",
		Kind:      KindInvalid,
		Err:       cause,
	}
}

// New creates a new TrackError
func New(op Operation, err error) *TrackError {
	return &TrackError{
		Op:  op,
		Err: err,
	}
}

// NewWithComponent creates a new TrackError with component information
func NewWithComponent(op Operation, component string, err error) *TrackError {
	return &TrackError{
		Op:        op,
		Component: component,
		Err:       err,
	}
}

// StatusCode returns the HTTP status carried by an UNSUCCESSFUL_RESPONSE error.
func StatusCode(err error) (int, bool) {
	var te *TrackError
	if !errors.As(err, &te) || te.Code != ErrCodeUnsuccessfulResponse {
		return 0, false
	}
	code, ok := te.Metadata["status_code"].(int)
	return code, ok
}

// HasCode reports whether err is a TrackError carrying the given code
func HasCode(err error, code ErrorCode) bool {
	var te *TrackError
	if errors.As(err, &te) {
		return te.Code == code
	}
	return false
}

// IsValidation checks for VALIDATION_FAILURE
func IsValidation(err error) bool { return HasCode(err, ErrCodeValidationFailure) }

// IsDomainResolution checks for DOMAIN_RESOLUTION_FAILURE
func IsDomainResolution(err error) bool { return HasCode(err, ErrCodeDomainResolutionFailure) }

// IsSerialization checks for SERIALIZATION_FAILURE
func IsSerialization(err error) bool { return HasCode(err, ErrCodeSerializationFailure) }

// IsTransport checks for TRANSPORT_FAILURE
func IsTransport(err error) bool { return HasCode(err, ErrCodeTransportFailure) }

// IsUnsuccessfulResponse checks for UNSUCCESSFUL_RESPONSE
func IsUnsuccessfulResponse(err error) bool { return HasCode(err, ErrCodeUnsuccessfulResponse) }

// IsRetryable checks if an error is a retryable TrackError
func IsRetryable(err error) bool {
	var te *TrackError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}
