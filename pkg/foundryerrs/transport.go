package foundryerrs

import (
	"fmt"
	"time"
)

// TransportError represents a fault of the duplex channel. Transport errors
// are the only errors the gateway retries.
type TransportError struct {
	*BaseError
}

// NewTransportError creates a new transport error.
func NewTransportError(
	code ErrorCode,
	message string,
	cause error,
) *TransportError {
	return &TransportError{
		BaseError: NewBaseError(CategoryTransport, code, message, cause),
	}
}

// WithEvent adds the channel event name to the error.
func (e *TransportError) WithEvent(event string) *TransportError {
	_ = e.WithMetadata(MetadataKeyEvent, event)

	return e
}

// NotConnected reports a call made while the channel is down.
func NotConnected(event string) *TransportError {
	return NewTransportError(
		ErrCodeNotConnected,
		"not connected",
		nil,
	).WithEvent(event)
}

// Timeout reports a call whose reply did not arrive in time.
func Timeout(event string, after time.Duration) *TransportError {
	return NewTransportError(
		ErrCodeTimeout,
		fmt.Sprintf("%s timed out after %s", event, after),
		nil,
	).WithEvent(event)
}

// ConnectionClosed reports a channel that closed while a call was waiting.
func ConnectionClosed(event string, cause error) *TransportError {
	return NewTransportError(
		ErrCodeConnectionClosed,
		"connection closed",
		cause,
	).WithEvent(event)
}
