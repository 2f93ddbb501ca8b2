package models

import "time"

// GeneralConversationName names the shared group every user can read.
const GeneralConversationName = "Community Chat"

// Conversation is a direct (two member) or group conversation.
type Conversation struct {
	ID          string          `db:"id" json:"id"`
	IsGroup     bool            `db:"is_group" json:"isGroup"`
	Name        *string         `db:"name" json:"name,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updatedAt"`
	Members     []PublicProfile `db:"-" json:"members"`
	LastMessage *Message        `db:"-" json:"lastMessage,omitempty"`
}

// Membership joins a user to a conversation.
type Membership struct {
	ConversationID string    `db:"conversation_id" json:"conversationId"`
	UserID         string    `db:"user_id" json:"userId"`
	JoinedAt       time.Time `db:"joined_at" json:"joinedAt"`
}
