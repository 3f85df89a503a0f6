package foundryerrs

import (
	"fmt"
	"time"
)

const fallbackRemoteMessage = "unknown remote error"

// RemoteError represents an explicit error reply from the remote
// environment. It is never retried.
type RemoteError struct {
	*BaseError
}

// NewRemoteError creates a new remote error. An empty message is replaced
// with a generic fallback.
func NewRemoteError(message string) *RemoteError {
	if message == "" {
		message = fallbackRemoteMessage
	}

	return &RemoteError{
		BaseError: NewBaseError(CategoryRemote, ErrCodeRemoteError, message, nil),
	}
}

// NewResultError reports a well-formed reply whose result does not have
// the shape the caller asked for.
func NewResultError(code ErrorCode, message string) *RemoteError {
	return &RemoteError{
		BaseError: NewBaseError(CategoryRemote, code, message, nil),
	}
}

// NewMalformedReplyError reports a reply that could not be decoded.
func NewMalformedReplyError(event string, cause error) *RemoteError {
	err := &RemoteError{
		BaseError: NewBaseError(
			CategoryRemote,
			ErrCodeMalformedReply,
			"malformed reply to "+event,
			cause,
		),
	}
	_ = err.WithMetadata(MetadataKeyEvent, event)

	return err
}

// WithStack attaches the remote diagnostic stack.
func (e *RemoteError) WithStack(stack string) *RemoteError {
	if stack != "" {
		_ = e.WithMetadata(MetadataKeyStack, stack)
	}

	return e
}

// Stack returns the remote diagnostic stack, if any.
func (e *RemoteError) Stack() string {
	return e.metadataString(MetadataKeyStack)
}

// RPCError represents a failure of an out-of-band RPC call.
type RPCError struct {
	*BaseError
	method string
}

// NewRPCError creates a new RPC error.
func NewRPCError(
	code ErrorCode,
	method string,
	message string,
	cause error,
) *RPCError {
	err := &RPCError{
		BaseError: NewBaseError(CategoryRPC, code, message, cause),
		method:    method,
	}
	_ = err.WithMetadata(MetadataKeyMethod, method)

	return err
}

// RPCTimeout reports an RPC call that received no response. The remote side
// effect may still have happened.
func RPCTimeout(method string, after time.Duration) *RPCError {
	return NewRPCError(
		ErrCodeRPCTimeout,
		method,
		fmt.Sprintf(
			"RPC call %q timed out after %dms; "+
				"ensure a GM client with the bridge module enabled is connected",
			method,
			after.Milliseconds(),
		),
		nil,
	)
}

// RPCShutdown reports a call abandoned because the correlator was destroyed.
func RPCShutdown(method string) *RPCError {
	return NewRPCError(
		ErrCodeRPCShutdown,
		method,
		fmt.Sprintf("RPC call %q cancelled: correlator shut down", method),
		nil,
	)
}

// Method returns the RPC method name.
func (e *RPCError) Method() string {
	return e.method
}

// WithRequestID adds request ID metadata to the error.
func (e *RPCError) WithRequestID(requestID string) *RPCError {
	_ = e.WithMetadata(MetadataKeyRequestID, requestID)

	return e
}
