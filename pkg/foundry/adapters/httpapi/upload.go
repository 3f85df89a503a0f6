package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/conneroisu/foundry/pkg/foundry/ports"
	"github.com/conneroisu/foundry/pkg/foundryerrs"
)

const defaultUploadSource = "data"

// Upload implements ports.RemoteAPI.
func (a *Adapter) Upload(
	ctx context.Context,
	token string,
	upload ports.Upload,
) (*ports.UploadResult, error) {
	if upload.FileName == "" {
		return nil, foundryerrs.NewValidationError(
			foundryerrs.ErrCodeMissingField,
			"file name is required for upload",
			"fileName",
			upload.FileName,
		)
	}
	if upload.Source == "" {
		upload.Source = defaultUploadSource
	}

	body, contentType, err := encodeUpload(upload)
	if err != nil {
		return nil, fmt.Errorf("httpapi: failed to encode upload: %w", err)
	}

	requestURL := a.baseURL + pathUpload
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, body)
	if err != nil {
		return nil, fmt.Errorf("httpapi: failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", contentType)
	request.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})

	response, err := a.httpClient.Do(request)
	if err != nil {
		return nil, foundryerrs.NewNetworkError(
			foundryerrs.ErrCodeUnreachable,
			"upload request failed",
			err,
		).WithURL(requestURL)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("httpapi: failed to read upload response: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, foundryerrs.NewNetworkError(
			foundryerrs.ErrCodeHTTPStatus,
			fmt.Sprintf(
				"upload rejected with status %d: %s",
				response.StatusCode,
				excerpt(responseBody),
			),
			nil,
		).WithURL(requestURL).WithStatus(response.StatusCode)
	}

	var result ports.UploadResult
	if err := json.Unmarshal(responseBody, &result); err != nil {
		return nil, foundryerrs.NewMalformedReplyError("upload", err)
	}
	if result.Status == "error" {
		return nil, foundryerrs.NewRemoteError(result.Message)
	}
	if result.Path == "" {
		result.Path = joinPath(upload.TargetPath, upload.FileName)
	}

	a.logger.Debug().Str("path", result.Path).Int("bytes", len(upload.Data)).Msg("upload complete")

	return &result, nil
}

func encodeUpload(upload ports.Upload) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("source", upload.Source); err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("target", upload.TargetPath); err != nil {
		return nil, "", err
	}

	mimeType := upload.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set(
		"Content-Disposition",
		fmt.Sprintf(`form-data; name="upload"; filename=%q`, upload.FileName),
	)
	header.Set("Content-Type", mimeType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(upload.Data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return &buf, writer.FormDataContentType(), nil
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	if dir[len(dir)-1] == '/' {
		return dir + name
	}

	return dir + "/" + name
}
