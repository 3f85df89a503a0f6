// Package httpapi implements ports.RemoteAPI over plain HTTP: the status
// probe, the form-based login and multipart asset upload.
package httpapi

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/conneroisu/foundry/pkg/foundry/ports"
)

const (
	defaultHTTPTimeout        = 30 * time.Second
	defaultHTTPConnectTimeout = 5 * time.Second
	defaultHTTPTLSTimeout     = 5 * time.Second

	// maxBodyExcerpt bounds how much of a response body ends up in errors.
	maxBodyExcerpt = 512

	pathStatus = "/api/status"
	pathJoin   = "/join"
	pathUpload = "/upload"

	sessionCookieName = "session"
)

// Config holds configuration for creating an Adapter.
type Config struct {
	// BaseURL is the remote's base URL (e.g., "http://localhost:30000").
	BaseURL string
	// HTTPClient is used for all requests. If nil, a client with
	// conservative timeouts is built.
	HTTPClient *http.Client
	// Logger is used for structured logging.
	Logger zerolog.Logger
}

// Adapter implements ports.RemoteAPI.
type Adapter struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Verify interface compliance at compile time.
var _ ports.RemoteAPI = (*Adapter)(nil)

// NewAdapter creates a new HTTP adapter.
func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("httpapi: BaseURL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("httpapi: invalid BaseURL %q: %w", cfg.BaseURL, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = defaultClient()
	}

	return &Adapter{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: noRedirects(httpClient),
		logger:     cfg.Logger,
	}, nil
}

func defaultClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultHTTPConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHTTPTLSTimeout,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   defaultHTTPTimeout,
	}
}

// noRedirects returns a copy of client that stops at the first response.
// The login reply carries the session cookie and usually a redirect.
func noRedirects(client *http.Client) *http.Client {
	clone := *client
	clone.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &clone
}

func excerpt(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > maxBodyExcerpt {
		return text[:maxBodyExcerpt] + "..."
	}

	return text
}
