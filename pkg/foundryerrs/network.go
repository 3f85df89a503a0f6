package foundryerrs

// ClientError represents misuse of the bridge, such as calling it after Close.
type ClientError struct {
	*BaseError
}

// NewClientError creates a new client error.
func NewClientError(code ErrorCode, message string, cause error) *ClientError {
	return &ClientError{
		BaseError: NewBaseError(CategoryClient, code, message, cause),
	}
}

// NetworkError represents a failed or refused HTTP exchange with the remote.
type NetworkError struct {
	*BaseError
}

// NewNetworkError creates a new network error.
func NewNetworkError(
	code ErrorCode,
	message string,
	cause error,
) *NetworkError {
	return &NetworkError{
		BaseError: NewBaseError(CategoryNetwork, code, message, cause),
	}
}

// WithURL adds URL metadata to the error.
func (e *NetworkError) WithURL(url string) *NetworkError {
	_ = e.WithMetadata(MetadataKeyURL, url)

	return e
}

// WithStatus adds HTTP status metadata to the error.
func (e *NetworkError) WithStatus(status int) *NetworkError {
	_ = e.WithMetadata(MetadataKeyStatus, status)

	return e
}

// AuthError represents a login that did not yield a session token.
type AuthError struct {
	*BaseError
}

// NewAuthError creates a new authentication error.
func NewAuthError(message string, cause error) *AuthError {
	return &AuthError{
		BaseError: NewBaseError(CategoryAuth, ErrCodeAuthFailed, message, cause),
	}
}

// WithBody records the login response body.
func (e *AuthError) WithBody(body string) *AuthError {
	_ = e.WithMetadata(MetadataKeyBody, body)

	return e
}

// HandshakeError represents a channel whose session was never confirmed.
type HandshakeError struct {
	*BaseError
}

// NewHandshakeError creates a new handshake error.
func NewHandshakeError(message string, cause error) *HandshakeError {
	return &HandshakeError{
		BaseError: NewBaseError(
			CategoryHandshake,
			ErrCodeSessionRejected,
			message,
			cause,
		),
	}
}
