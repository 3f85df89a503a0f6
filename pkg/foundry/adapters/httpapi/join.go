package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/conneroisu/foundry/pkg/foundryerrs"
)

var sessionCookiePattern = regexp.MustCompile(sessionCookieName + `=([^;,\s]+)`)

// Join implements ports.RemoteAPI. The session token is taken from the
// response's session cookie.
func (a *Adapter) Join(ctx context.Context, userID, password string) (string, error) {
	if userID == "" {
		return "", foundryerrs.NewValidationError(
			foundryerrs.ErrCodeMissingField,
			"user id is required for login",
			"userid",
			userID,
		)
	}

	requestURL := a.baseURL + pathJoin
	form := url.Values{
		"action":   {"join"},
		"userid":   {userID},
		"password": {password},
	}

	request, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		requestURL,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return "", fmt.Errorf("httpapi: failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := a.httpClient.Do(request)
	if err != nil {
		return "", foundryerrs.NewNetworkError(
			foundryerrs.ErrCodeUnreachable,
			"login request failed",
			err,
		).WithURL(requestURL)
	}
	defer response.Body.Close()

	body, _ := io.ReadAll(response.Body)

	cookies := response.Header.Values("Set-Cookie")
	if len(cookies) == 0 {
		return "", foundryerrs.NewAuthError(
			fmt.Sprintf(
				"authentication failed: no session cookie in login response (status %d): %s",
				response.StatusCode,
				excerpt(body),
			),
			nil,
		).WithBody(excerpt(body))
	}

	token := extractSessionToken(cookies)
	if token == "" {
		return "", foundryerrs.NewAuthError(
			"authentication failed: login response cookie carries no session token",
			nil,
		).WithBody(excerpt(body))
	}

	a.logger.Debug().Str("user_id", userID).Msg("login accepted")

	return token, nil
}

func extractSessionToken(cookies []string) string {
	for _, cookie := range cookies {
		if match := sessionCookiePattern.FindStringSubmatch(cookie); match != nil {
			return match[1]
		}
	}

	return ""
}
