package rpc

import "encoding/json"

// Message types carried on the bridge's module channel.
const (
	typeRequest  = "rpc-request"
	typeResponse = "rpc-response"
	typePing     = "rpc-ping"
	typePong     = "rpc-pong"
)

// request carries args even when the list is empty.
type request struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Method    string `json:"method,omitempty"`
	Args      []any  `json:"args"`
}

type ping struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
}

// inbound covers every message shape a responder may send.
type inbound struct {
	Type          string          `json:"type"`
	RequestID     string          `json:"requestId"`
	Success       bool            `json:"success"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	Duration      float64         `json:"duration,omitempty"`
	ModuleVersion string          `json:"moduleVersion,omitempty"`
	UserID        string          `json:"userId,omitempty"`
}

// Response is a responder's answer to a call. Result is passed through
// undecoded.
type Response struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	// Duration is the responder's own execution time in milliseconds.
	Duration float64 `json:"duration,omitempty"`
}

// PingResult is the outcome of a liveness probe.
type PingResult struct {
	Alive         bool   `json:"alive"`
	ModuleVersion string `json:"moduleVersion,omitempty"`
	UserID        string `json:"userId,omitempty"`
}

func decodeInbound(args []json.RawMessage) (inbound, bool) {
	var msg inbound
	if len(args) == 0 {
		return msg, false
	}
	if err := json.Unmarshal(args[0], &msg); err != nil {
		return msg, false
	}

	return msg, msg.RequestID != ""
}
