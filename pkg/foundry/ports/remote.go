package ports

import (
	"context"
	"encoding/json"
)

// StatusInfo is the remote's answer to the status probe.
type StatusInfo struct {
	Active  bool   `json:"active"`
	Version string `json:"version,omitempty"`
	World   string `json:"world,omitempty"`
	System  string `json:"system,omitempty"`
	// SystemVersion is reported by newer servers only.
	SystemVersion string  `json:"systemVersion,omitempty"`
	Users         int     `json:"users,omitempty"`
	Uptime        float64 `json:"uptime,omitempty"`
	// Raw keeps the full response for fields not modelled above.
	Raw json.RawMessage `json:"-"`
}

// Upload describes a file to push to the remote's asset storage.
type Upload struct {
	// Source is the storage source, usually "data".
	Source string
	// TargetPath is the directory within the source.
	TargetPath string
	// FileName is the stored file name.
	FileName string
	// Data is the file content.
	Data []byte
	// MimeType is sent as the part's content type.
	MimeType string
}

// UploadResult is the remote's answer to an upload.
type UploadResult struct {
	Path    string `json:"path"`
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
}

// RemoteAPI is the plain HTTP surface of the remote.
type RemoteAPI interface {
	// Status probes GET /api/status.
	Status(ctx context.Context) (*StatusInfo, error)

	// Join logs in and returns the session token.
	Join(ctx context.Context, userID, password string) (string, error)

	// Upload posts a file with the given session token.
	Upload(ctx context.Context, token string, upload Upload) (*UploadResult, error)
}
