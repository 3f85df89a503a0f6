// Package foundryerrs provides the error taxonomy shared by every layer of
// the bridge. Each failure carries a category and a code so that callers can
// make structural decisions (for example "is this a transport fault and
// therefore retryable") without inspecting message text.
package foundryerrs

// ErrorCategory represents different categories of errors that can occur
// while talking to the remote environment.
type ErrorCategory string

const (
	// CategoryClient represents misuse of the bridge itself.
	CategoryClient ErrorCategory = "client"
	// CategoryNetwork represents failures reaching the remote over HTTP.
	CategoryNetwork ErrorCategory = "network"
	// CategoryAuth represents login failures.
	CategoryAuth ErrorCategory = "auth"
	// CategoryHandshake represents a channel that never confirmed the session.
	CategoryHandshake ErrorCategory = "handshake"
	// CategoryTransport represents faults of the duplex channel.
	CategoryTransport ErrorCategory = "transport"
	// CategoryRemote represents an explicit error reply from the remote.
	CategoryRemote ErrorCategory = "remote"
	// CategoryRPC represents out-of-band RPC failures.
	CategoryRPC ErrorCategory = "rpc"
	// CategoryValidation represents malformed requests.
	CategoryValidation ErrorCategory = "validation"
)

// ErrorCode represents specific error codes within each category.
type ErrorCode string

// Client error codes.
const (
	ErrCodeClientClosed  ErrorCode = "client_closed"
	ErrCodeInvalidConfig ErrorCode = "invalid_config"
)

// Network error codes.
const (
	ErrCodeUnreachable   ErrorCode = "unreachable"
	ErrCodeNoActiveWorld ErrorCode = "no_active_world"
	ErrCodeHTTPStatus    ErrorCode = "http_status"
)

// Auth error codes.
const (
	ErrCodeAuthFailed ErrorCode = "auth_failed"
)

// Handshake error codes.
const (
	ErrCodeSessionRejected ErrorCode = "session_rejected"
)

// Transport error codes.
const (
	ErrCodeNotConnected     ErrorCode = "not_connected"
	ErrCodeTimeout          ErrorCode = "timeout"
	ErrCodeConnectionClosed ErrorCode = "connection_closed"
	ErrCodeWriteFailed      ErrorCode = "write_failed"
)

// Remote error codes.
const (
	ErrCodeRemoteError    ErrorCode = "remote_error"
	ErrCodeMalformedReply ErrorCode = "malformed_reply"
	ErrCodeNotFound       ErrorCode = "not_found"
	ErrCodeAmbiguous      ErrorCode = "ambiguous_result"
)

// RPC error codes.
const (
	ErrCodeRPCTimeout  ErrorCode = "rpc_timeout"
	ErrCodeRPCShutdown ErrorCode = "rpc_shutdown"
	ErrCodeRPCFailed   ErrorCode = "rpc_failed"
)

// Validation error codes.
const (
	ErrCodeMissingField  ErrorCode = "missing_field"
	ErrCodeInvalidType   ErrorCode = "invalid_type"
	ErrCodeInvalidAction ErrorCode = "invalid_action"
)
