// Package protocol defines the wire contract between clients and the event
// router: one JSON envelope per frame, a type tag naming the event, and the
// payload shapes each event requires.
package protocol

import (
	"encoding/json"
	"fmt"

	"inkroom/internal/room"
)

// Inbound event types, emitted by clients.
const (
	EventJoinRoom       = "join-room"
	EventDrawStart      = "draw-start"
	EventDrawPoint      = "draw-point"
	EventDrawEnd        = "draw-end"
	EventClearDrawing   = "clear-drawing"
	EventChatSend       = "chat-send-message"
	EventChatTyping     = "chat-typing"
	EventChatStopTyping = "chat-stop-typing"
	EventCursorMove     = "cursor-move"
	EventCursorLeave    = "cursor-leave"
)

// Outbound event types, replicated to room members.
const (
	EventLoadDrawing           = "load-drawing"
	EventLoadChatHistory       = "load-chat-history"
	EventUserCountUpdated      = "user-count-updated"
	EventUserJoined            = "user-joined"
	EventUserLeft              = "user-left"
	EventDrawingStart          = "drawing-start"
	EventDrawingPoint          = "drawing-point"
	EventDrawingEnd            = "drawing-end"
	EventDrawingCleared        = "drawing-cleared"
	EventChatNewMessage        = "chat-new-message"
	EventChatUserTyping        = "chat-user-typing"
	EventChatUserStoppedTyping = "chat-user-stopped-typing"
	EventCursorUpdate          = "cursor-update"
	EventCursorRemoved         = "cursor-removed"
)

// Envelope is the frame format for both directions. Data holds the payload
// verbatim; events without a payload omit it.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type JoinPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

type UserCountPayload struct {
	UserCount int `json:"userCount"`
}

type UserJoinedPayload struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	UserCount int    `json:"userCount"`
}

type UserLeftPayload struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	UserCount int    `json:"userCount"`
}

type TypingPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

type CursorMovePayload struct {
	ID       string  `json:"id,omitempty"`
	Username string  `json:"username,omitempty"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

type CursorUpdatePayload struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// ParseEnvelope decodes one inbound frame.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("malformed frame: %w", err)
	}
	if env.Type == "" {
		return env, fmt.Errorf("frame missing event type")
	}
	return env, nil
}

// ParseJoin decodes a join-room payload. Both fields are optional; the
// router substitutes defaults for whatever is absent.
func ParseJoin(data json.RawMessage) (JoinPayload, error) {
	var p JoinPayload
	if len(data) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("malformed join payload: %w", err)
	}
	return p, nil
}

// ParseStroke decodes a draw-start payload. The points field must be
// present and be an array; color and width pass through as sent.
func ParseStroke(data json.RawMessage) (*room.Stroke, error) {
	var wire struct {
		Points *[]room.Point `json:"points"`
		Color  string        `json:"color"`
		Width  float64       `json:"width"`
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("stroke payload missing")
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("malformed stroke payload: %w", err)
	}
	if wire.Points == nil {
		return nil, fmt.Errorf("stroke payload missing points")
	}
	return &room.Stroke{
		Points: *wire.Points,
		Color:  wire.Color,
		Width:  wire.Width,
	}, nil
}

// ParsePoint decodes a draw-point payload. Both coordinates must be present
// and numeric.
func ParsePoint(data json.RawMessage) (room.Point, error) {
	var wire struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	}
	if len(data) == 0 {
		return room.Point{}, fmt.Errorf("point payload missing")
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return room.Point{}, fmt.Errorf("malformed point payload: %w", err)
	}
	if wire.X == nil || wire.Y == nil {
		return room.Point{}, fmt.Errorf("point payload missing coordinates")
	}
	return room.Point{X: *wire.X, Y: *wire.Y}, nil
}

// ParseCursorMove decodes a cursor-move payload. Coordinates must be
// present and numeric; id and username are optional.
func ParseCursorMove(data json.RawMessage) (CursorMovePayload, error) {
	var wire struct {
		ID       string   `json:"id"`
		Username string   `json:"username"`
		X        *float64 `json:"x"`
		Y        *float64 `json:"y"`
	}
	if len(data) == 0 {
		return CursorMovePayload{}, fmt.Errorf("cursor payload missing")
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return CursorMovePayload{}, fmt.Errorf("malformed cursor payload: %w", err)
	}
	if wire.X == nil || wire.Y == nil {
		return CursorMovePayload{}, fmt.Errorf("cursor payload missing coordinates")
	}
	return CursorMovePayload{
		ID:       wire.ID,
		Username: wire.Username,
		X:        *wire.X,
		Y:        *wire.Y,
	}, nil
}

// ParseChatText decodes a chat-send-message payload, which is a bare JSON
// string.
func ParseChatText(data json.RawMessage) (string, error) {
	var text string
	if len(data) == 0 {
		return "", fmt.Errorf("chat payload missing")
	}
	if err := json.Unmarshal(data, &text); err != nil {
		return "", fmt.Errorf("malformed chat payload: %w", err)
	}
	return text, nil
}

// Encode marshals an outbound frame. A nil payload produces an envelope
// with no data field.
func Encode(eventType string, payload any) ([]byte, error) {
	env := Envelope{Type: eventType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", eventType, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}
