package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/conneroisu/foundry/pkg/foundry/ports"
	"github.com/conneroisu/foundry/pkg/foundryerrs"
)

// Status implements ports.RemoteAPI.
func (a *Adapter) Status(ctx context.Context) (*ports.StatusInfo, error) {
	requestURL := a.baseURL + pathStatus

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("httpapi: failed to create request: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := a.httpClient.Do(request)
	if err != nil {
		return nil, foundryerrs.NewNetworkError(
			foundryerrs.ErrCodeUnreachable,
			"remote not reachable",
			err,
		).WithURL(requestURL)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, foundryerrs.NewNetworkError(
			foundryerrs.ErrCodeUnreachable,
			"failed to read status response",
			err,
		).WithURL(requestURL)
	}

	if response.StatusCode != http.StatusOK {
		return nil, foundryerrs.NewNetworkError(
			foundryerrs.ErrCodeUnreachable,
			fmt.Sprintf("remote not reachable: status %d", response.StatusCode),
			nil,
		).WithURL(requestURL).WithStatus(response.StatusCode)
	}

	var status ports.StatusInfo
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, foundryerrs.NewNetworkError(
			foundryerrs.ErrCodeUnreachable,
			"remote returned an unreadable status",
			err,
		).WithURL(requestURL)
	}
	status.Raw = body

	if !status.Active {
		return &status, foundryerrs.NewNetworkError(
			foundryerrs.ErrCodeNoActiveWorld,
			"no active world is loaded on the remote",
			nil,
		).WithURL(requestURL)
	}

	a.logger.Debug().
		Str("version", status.Version).
		Str("world", status.World).
		Str("system", status.System).
		Msg("status probe ok")

	return &status, nil
}
