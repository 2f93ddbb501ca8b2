package models

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Realtime event names.
const (
	EventJoinRoom       = "join_room"
	EventTyping         = "typing"
	EventStopTyping     = "stop_typing"
	EventSendMessage    = "send_message"
	EventReceiveMessage = "receive_message"
	EventSendFailed     = "send_failed"
	EventError          = "error"
)

// MaxMessageLength bounds the text of a single message in runes.
const MaxMessageLength = 4000

var (
	ErrMissingConversation = errors.New("conversationId is required")
	ErrMissingUsername     = errors.New("username is required")
	ErrEmptyText           = errors.New("text is required")
	ErrTextTooLong         = errors.New("text is too long")
)

// Envelope frames every realtime event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewEnvelope marshals data under the given event name.
func NewEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// JoinRoomPayload subscribes a connection to a conversation room.
type JoinRoomPayload struct {
	ConversationID string `json:"conversationId"`
}

func (p JoinRoomPayload) Validate() error {
	if strings.TrimSpace(p.ConversationID) == "" {
		return ErrMissingConversation
	}
	return nil
}

// TypingPayload is shared by typing and stop_typing. The hub relays it with
// UserID set to the sending connection's user.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	Username       string `json:"username"`
	UserID         string `json:"userId,omitempty"`
}

func (p TypingPayload) Validate() error {
	if strings.TrimSpace(p.ConversationID) == "" {
		return ErrMissingConversation
	}
	if strings.TrimSpace(p.Username) == "" {
		return ErrMissingUsername
	}
	return nil
}

// SendMessagePayload is emitted by a client to post a message.
// ClientID correlates a later send_failed with the optimistic entry.
type SendMessagePayload struct {
	Text           string     `json:"text"`
	SenderID       string     `json:"senderId,omitempty"`
	ConversationID string     `json:"conversationId"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
	ClientID       string     `json:"clientId,omitempty"`
}

func (p SendMessagePayload) Validate() error {
	if strings.TrimSpace(p.ConversationID) == "" {
		return ErrMissingConversation
	}
	if strings.TrimSpace(p.Text) == "" {
		return ErrEmptyText
	}
	if len([]rune(p.Text)) > MaxMessageLength {
		return ErrTextTooLong
	}
	return nil
}

// SendFailedPayload tells a sender its message was not persisted.
type SendFailedPayload struct {
	ClientID       string `json:"clientId,omitempty"`
	ConversationID string `json:"conversationId"`
	Error          string `json:"error"`
}

// ErrorPayload reports a rejected inbound event.
type ErrorPayload struct {
	Event string `json:"event,omitempty"`
	Error string `json:"error"`
}
