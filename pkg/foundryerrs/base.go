package foundryerrs

import (
	"fmt"
	"maps"
	"slices"

	"github.com/rs/zerolog"
)

// Metadata keys recorded on bridge errors.
const (
	MetadataKeyURL       = "url"
	MetadataKeyEvent     = "event"
	MetadataKeyMethod    = "method"
	MetadataKeyRequestID = "request_id"
	MetadataKeyStack     = "stack"
	MetadataKeyBody      = "body"
	MetadataKeyStatus    = "status"
)

// BridgeError is implemented by every error the bridge returns.
type BridgeError interface {
	error
	zerolog.LogObjectMarshaler
	// Code returns the error code.
	Code() ErrorCode
	// Category returns the error category.
	Category() ErrorCategory
	// Message returns the message without category prefix or cause.
	Message() string
	// Unwrap returns the underlying error.
	Unwrap() error
	// Metadata returns a copy of the recorded metadata.
	Metadata() map[string]any
}

// BaseError carries the fields shared by all bridge errors. The concrete
// error types embed it.
type BaseError struct {
	code     ErrorCode
	category ErrorCategory
	message  string
	cause    error
	metadata map[string]any
}

// NewBaseError creates a new base error.
func NewBaseError(
	category ErrorCategory,
	code ErrorCode,
	message string,
	cause error,
) *BaseError {
	return &BaseError{
		code:     code,
		category: category,
		message:  message,
		cause:    cause,
		metadata: make(map[string]any),
	}
}

// Error renders "category: message" followed by the cause, if any.
func (e *BaseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.category, e.message, e.cause)
	}

	return fmt.Sprintf("%s: %s", e.category, e.message)
}

// Message implements BridgeError.
func (e *BaseError) Message() string { return e.message }

// Code implements BridgeError.
func (e *BaseError) Code() ErrorCode { return e.code }

// Category implements BridgeError.
func (e *BaseError) Category() ErrorCategory { return e.category }

// Unwrap implements BridgeError.
func (e *BaseError) Unwrap() error { return e.cause }

// Metadata implements BridgeError.
func (e *BaseError) Metadata() map[string]any {
	return maps.Clone(e.metadata)
}

// WithMetadata records one metadata entry.
func (e *BaseError) WithMetadata(key string, value any) *BaseError {
	e.metadata[key] = value

	return e
}

func (e *BaseError) metadataString(key string) string {
	s, _ := e.metadata[key].(string)

	return s
}

// MarshalZerologObject writes category, code and metadata as log fields.
// Keys are written in sorted order.
func (e *BaseError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("category", string(e.category)).Str("code", string(e.code))
	for _, key := range slices.Sorted(maps.Keys(e.metadata)) {
		ev.Interface(key, e.metadata[key])
	}
}
