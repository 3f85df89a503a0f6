package gateway

import (
	"context"
	"net/http"

	"github.com/conneroisu/foundry/pkg/foundry/ports"
	"github.com/conneroisu/foundry/pkg/foundryerrs"
)

// UploadFile pushes a file to the remote's asset storage with the current
// session token. A rejected token causes one reconnect and one retry.
func (g *Gateway) UploadFile(
	ctx context.Context,
	upload ports.Upload,
) (*ports.UploadResult, error) {
	if upload.FileName == "" {
		return nil, foundryerrs.NewValidationError(
			foundryerrs.ErrCodeMissingField,
			"file name is required",
			"fileName",
			nil,
		)
	}
	if upload.Source == "" {
		upload.Source = "data"
	}

	result, gen, err := g.upload(ctx, upload)
	if err == nil || !staleSession(err) {
		return result, err
	}

	g.logger.Warn().Err(err).Msg("upload rejected, reconnecting")
	if err := g.conn.Reconnect(ctx, gen); err != nil {
		return nil, err
	}

	result, _, err = g.upload(ctx, upload)

	return result, err
}

// upload sends one upload and reports the generation of the token used.
func (g *Gateway) upload(
	ctx context.Context,
	upload ports.Upload,
) (*ports.UploadResult, uint64, error) {
	token, err := g.conn.SessionToken(ctx)
	if err != nil {
		return nil, 0, err
	}
	gen := g.conn.Generation()

	result, err := g.api.Upload(ctx, token, upload)

	return result, gen, err
}

func staleSession(err error) bool {
	switch foundryerrs.HTTPStatus(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	default:
		return false
	}
}
