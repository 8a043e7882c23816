package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Client -> server events
const (
	EventJoinGroup      = "join-group"
	EventLeaveGroup     = "leave-group"
	EventGetActiveUsers = "get-active-users"
	EventSendMessage    = "send-message"
	EventTypingStart    = "typing-start"
	EventTypingStop     = "typing-stop"
	EventReadReceipt    = "read-receipt"
)

// Server -> client events
const (
	EventAck              = "ack"
	EventAuthSuccess      = "auth-success"
	EventPresenceActive   = "presence-active"
	EventPresenceInactive = "presence-inactive"
	EventMessageNew       = "message-new"
	EventTypingState      = "typing-state"
	EventReadNotification = "read-notification"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Frame is the envelope of every websocket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	AckID *uint64         `json:"ackId,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutboundFrame is a Frame whose payload has not been encoded yet.
type OutboundFrame struct {
	Event string      `json:"event"`
	AckID *uint64     `json:"ackId,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// Ack is the single response to a client frame that carried an ackId.
type Ack struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Inbound payloads

type GroupPayload struct {
	GroupID string `json:"groupId"`
}

type SendMessagePayload struct {
	GroupID string `json:"groupId"`
	Content string `json:"content"`
}

type ReadReceiptPayload struct {
	MessageID string `json:"messageId"`
	GroupID   string `json:"groupId"`
}

// Outbound payloads

type AuthSuccessData struct {
	UserID       string    `json:"userId"`
	UserEmail    string    `json:"userEmail"`
	ConnectionID string    `json:"connectionId"`
	Timestamp    time.Time `json:"timestamp"`
}

type PresenceData struct {
	UserID  string `json:"userId"`
	Email   string `json:"email"`
	GroupID string `json:"groupId"`
	Status  string `json:"status"`
}

type MessageNewData struct {
	Success bool     `json:"success"`
	Data    *Message `json:"data"`
}

type TypingData struct {
	UserID    string `json:"userId"`
	UserEmail string `json:"userEmail"`
	GroupID   string `json:"groupId"`
	Typing    bool   `json:"typing"`
}

type ReadBy struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Timestamp time.Time `json:"timestamp"`
}

type ReadNotificationData struct {
	MessageID string `json:"messageId"`
	ReadBy    ReadBy `json:"readBy"`
}

type ActiveUser struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Status string `json:"status"`
}
