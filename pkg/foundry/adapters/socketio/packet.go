package socketio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Engine.IO v4 packet types (first byte of every websocket text frame).
const (
	engineOpen    byte = '0'
	engineClose   byte = '1'
	enginePing    byte = '2'
	enginePong    byte = '3'
	engineMessage byte = '4'
	engineNoop    byte = '6'
)

// Socket.IO v5 packet types (second byte of an Engine.IO message).
const (
	packetConnect      byte = '0'
	packetDisconnect   byte = '1'
	packetEvent        byte = '2'
	packetAck          byte = '3'
	packetConnectError byte = '4'
	packetBinaryEvent  byte = '5'
	packetBinaryAck    byte = '6'
)

var errEmptyFrame = errors.New("socketio: empty frame")

// openPayload is the Engine.IO handshake sent by the server.
type openPayload struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

// connectErrorPayload is the body of a CONNECT_ERROR packet.
type connectErrorPayload struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// packet is a decoded Socket.IO packet.
type packet struct {
	kind      byte
	namespace string
	ackID     int
	hasAck    bool
	payload   json.RawMessage
}

// decodePacket parses the Socket.IO part of an Engine.IO message frame
// (everything after the leading '4').
func decodePacket(data []byte) (packet, error) {
	if len(data) == 0 {
		return packet{}, errEmptyFrame
	}

	p := packet{kind: data[0], namespace: "/"}
	rest := data[1:]

	if len(rest) > 0 && rest[0] == '/' {
		end := 0
		for end < len(rest) && rest[end] != ',' {
			end++
		}
		p.namespace = string(rest[:end])
		if end < len(rest) {
			end++
		}
		rest = rest[end:]
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.Atoi(string(rest[:digits]))
		if err != nil {
			return packet{}, fmt.Errorf("socketio: bad ack id: %w", err)
		}
		p.ackID = id
		p.hasAck = true
		rest = rest[digits:]
	}

	if len(rest) > 0 {
		p.payload = json.RawMessage(rest)
	}

	return p, nil
}

// eventArgs splits an EVENT payload into its name and arguments.
func eventArgs(payload json.RawMessage) (string, []json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return "", nil, fmt.Errorf("socketio: event payload: %w", err)
	}
	if len(items) == 0 {
		return "", nil, errors.New("socketio: event without name")
	}

	var name string
	if err := json.Unmarshal(items[0], &name); err != nil {
		return "", nil, fmt.Errorf("socketio: event name: %w", err)
	}

	return name, items[1:], nil
}

// ackArgs decodes an ACK payload.
func ackArgs(payload json.RawMessage) ([]json.RawMessage, error) {
	if len(payload) == 0 {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("socketio: ack payload: %w", err)
	}

	return items, nil
}

// encodeEvent builds a complete Engine.IO frame for an EVENT packet.
// ackID < 0 means no acknowledgement is requested.
func encodeEvent(event string, ackID int, args []any) ([]byte, error) {
	items := make([]any, 0, len(args)+1)
	items = append(items, event)
	items = append(items, args...)

	body, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("socketio: encode %s: %w", event, err)
	}

	frame := []byte{engineMessage, packetEvent}
	if ackID >= 0 {
		frame = strconv.AppendInt(frame, int64(ackID), 10)
	}

	return append(frame, body...), nil
}

// encodeAck builds a complete Engine.IO frame answering a server ack request.
func encodeAck(ackID int, args []any) ([]byte, error) {
	if args == nil {
		args = []any{}
	}
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("socketio: encode ack: %w", err)
	}

	frame := []byte{engineMessage, packetAck}
	frame = strconv.AppendInt(frame, int64(ackID), 10)

	return append(frame, body...), nil
}
