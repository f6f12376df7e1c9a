package models

import (
	"encoding/json"
	"time"
)

// ClientEvent is the inbound websocket frame. Fields beyond Type are
// populated depending on the event type.
type ClientEvent struct {
	Type        string          `json:"type"`
	Token       string          `json:"token,omitempty"`
	RoomID      string          `json:"room_id,omitempty"`
	Body        string          `json:"body,omitempty"`
	IsTyping    bool            `json:"is_typing,omitempty"`
	RecipientID string          `json:"recipient_id,omitempty"`
	SessionID   string          `json:"session_id,omitempty"`
	Signal      json.RawMessage `json:"signal,omitempty"`
	SignalType  string          `json:"signal_type,omitempty"`
}

// RoomMessage is a transient group-chat envelope. Never persisted.
type RoomMessage struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// PrivateMessage is a transient point-to-point envelope. Never queued.
type PrivateMessage struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	SenderName  string    `json:"sender_name"`
	RecipientID string    `json:"recipient_id"`
	Body        string    `json:"body"`
	Delivered   bool      `json:"delivered"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuthEvent confirms a successful handshake to the caller only.
type AuthEvent struct {
	Type string     `json:"type"`
	User OnlineUser `json:"user"`
}

// ErrorEvent reports auth_error and inline error notifications.
type ErrorEvent struct {
	Type   string `json:"type"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason"`
}

// RoomInfoEvent returns the occupant snapshot to a joiner.
type RoomInfoEvent struct {
	Type      string       `json:"type"`
	RoomID    string       `json:"room_id"`
	Occupants []OnlineUser `json:"occupants"`
}

// PresenceEvent announces user_joined, user_left and therapy_user_joined.
type PresenceEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
}

// MessageEvent wraps a room message for broadcast.
type MessageEvent struct {
	Type    string       `json:"type"`
	Message *RoomMessage `json:"message"`
}

// TypingEvent is a best-effort typing indicator.
type TypingEvent struct {
	Type     string `json:"type"`
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	IsTyping bool   `json:"is_typing"`
}

// PrivateMessageEvent wraps a private message for direct delivery.
type PrivateMessageEvent struct {
	Type    string          `json:"type"`
	Message *PrivateMessage `json:"message"`
}

// DeliveryEvent confirms a private delivery to the sender.
type DeliveryEvent struct {
	Type        string `json:"type"`
	MessageID   string `json:"message_id"`
	RecipientID string `json:"recipient_id"`
}

// SignalEvent relays opaque call-setup payloads between therapy-session
// participants.
type SignalEvent struct {
	Type       string          `json:"type"`
	SessionID  string          `json:"session_id"`
	FromUserID string          `json:"from_user_id"`
	Signal     json.RawMessage `json:"signal"`
	SignalType string          `json:"signal_type"`
}
