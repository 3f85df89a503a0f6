package foundryerrs

import "errors"

// AsBridgeError extracts a BridgeError from the error chain.
func AsBridgeError(err error) (BridgeError, bool) {
	var bridgeErr BridgeError
	if errors.As(err, &bridgeErr) {
		return bridgeErr, true
	}

	return nil, false
}

func hasCategory(err error, category ErrorCategory) bool {
	if bridgeErr, ok := AsBridgeError(err); ok {
		return bridgeErr.Category() == category
	}

	return false
}

// HasCode reports whether the outermost bridge error in the chain has code.
func HasCode(err error, code ErrorCode) bool {
	if bridgeErr, ok := AsBridgeError(err); ok {
		return bridgeErr.Code() == code
	}

	return false
}

// IsClientError checks if the error is a client error.
func IsClientError(err error) bool {
	return hasCategory(err, CategoryClient)
}

// IsNetworkError checks if the error is a network error.
func IsNetworkError(err error) bool {
	return hasCategory(err, CategoryNetwork)
}

// IsAuthError checks if the error is an authentication error.
func IsAuthError(err error) bool {
	return hasCategory(err, CategoryAuth)
}

// IsHandshakeError checks if the error is a handshake error.
func IsHandshakeError(err error) bool {
	return hasCategory(err, CategoryHandshake)
}

// IsTransportError checks if the error is a transport fault.
func IsTransportError(err error) bool {
	return hasCategory(err, CategoryTransport)
}

// IsRemoteError checks if the error is an explicit remote error reply.
func IsRemoteError(err error) bool {
	return hasCategory(err, CategoryRemote)
}

// IsRPCError checks if the error is an out-of-band RPC error.
func IsRPCError(err error) bool {
	return hasCategory(err, CategoryRPC)
}

// IsValidationError checks if the error is a validation error.
func IsValidationError(err error) bool {
	return hasCategory(err, CategoryValidation)
}

// HTTPStatus returns the HTTP status recorded on err, or 0.
func HTTPStatus(err error) int {
	bridgeErr, ok := AsBridgeError(err)
	if !ok {
		return 0
	}
	status, _ := bridgeErr.Metadata()[MetadataKeyStatus].(int)

	return status
}
