package documents

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/conneroisu/foundry/pkg/foundryerrs"
)

// Document is an untyped remote document.
type Document map[string]any

// ID returns the document's _id.
func (d Document) ID() string {
	id, _ := d["_id"].(string)

	return id
}

// Name returns the document's name, if any.
func (d Document) Name() string {
	name, _ := d["name"].(string)

	return name
}

// ReplyError is the error object of a failed reply. The remote sends
// either a bare string or an object with message and stack.
type ReplyError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// UnmarshalJSON accepts both reply error shapes.
func (e *ReplyError) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &e.Message)
	}

	type plain ReplyError
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = ReplyError(p)

	return nil
}

// Response is the reply to a modifyDocument request.
type Response struct {
	Type   string          `json:"type,omitempty"`
	Action string          `json:"action,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ReplyError     `json:"error,omitempty"`
}

// DecodeResponse parses a reply and turns an error-bearing reply into a
// RemoteError.
func DecodeResponse(raw json.RawMessage) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, foundryerrs.NewMalformedReplyError("modifyDocument", err)
	}
	if resp.Error != nil {
		return nil, foundryerrs.NewRemoteError(resp.Error.Message).
			WithStack(resp.Error.Stack)
	}

	return &resp, nil
}

// Documents decodes the result as a list of documents, as returned by get,
// create and update.
func (r *Response) Documents() ([]Document, error) {
	if isNull(r.Result) {
		return nil, nil
	}

	var docs []Document
	if err := json.Unmarshal(r.Result, &docs); err != nil {
		return nil, foundryerrs.NewMalformedReplyError("modifyDocument", err)
	}

	return docs, nil
}

// IDs decodes the result as a list of ids, as returned by delete.
func (r *Response) IDs() ([]string, error) {
	if isNull(r.Result) {
		return nil, nil
	}

	var ids []string
	if err := json.Unmarshal(r.Result, &ids); err != nil {
		return nil, foundryerrs.NewMalformedReplyError("modifyDocument", err)
	}

	return ids, nil
}

// Single returns the only document of the result.
func (r *Response) Single() (Document, error) {
	docs, err := r.Documents()
	if err != nil {
		return nil, err
	}

	switch len(docs) {
	case 0:
		return nil, foundryerrs.NewResultError(
			foundryerrs.ErrCodeNotFound,
			"no document matched",
		)
	case 1:
		return docs[0], nil
	default:
		return nil, foundryerrs.NewResultError(
			foundryerrs.ErrCodeAmbiguous,
			fmt.Sprintf("expected one document, got %d", len(docs)),
		)
	}
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)

	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
