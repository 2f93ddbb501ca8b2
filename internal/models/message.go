package models

import "time"

// Message is a persisted chat message. Sender is attached when read back.
type Message struct {
	ID             string         `db:"id" json:"id"`
	ConversationID string         `db:"conversation_id" json:"conversationId"`
	SenderID       string         `db:"sender_id" json:"senderId"`
	Text           string         `db:"content" json:"text"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
	Sender         *PublicProfile `db:"-" json:"sender,omitempty"`
}
