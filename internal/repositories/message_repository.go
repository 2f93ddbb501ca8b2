package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"

	"nhanz-chat/internal/models"
)

// MessageRepository defines message persistence.
type MessageRepository interface {
	AppendMessage(ctx context.Context, conversationID string, senderID string, text string) (models.Message, error)
	ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db, now: time.Now}
}

const messageWithSenderQuery = `SELECT m.id, m.conversation_id, m.sender_id, m.content, m.created_at,
        u.username AS sender_username, u.name AS sender_name, u.avatar AS sender_avatar
    FROM messages m INNER JOIN users u ON u.id = m.sender_id`

// AppendMessage stores a message, bumps the conversation's activity time and
// returns the message with its sender's profile.
func (r *MessageRepo) AppendMessage(ctx context.Context, conversationID string, senderID string, text string) (msg models.Message, err error) {
	if _, err := uuid.Parse(conversationID); err != nil {
		return models.Message{}, ErrConversationNotFound
	}
	if _, err := uuid.Parse(senderID); err != nil {
		return models.Message{}, ErrUserNotFound
	}

	now := r.now().UTC()
	id := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `INSERT INTO messages (id, conversation_id, sender_id, content, created_at)
        VALUES ($1, $2, $3, $4, $5)`, id, conversationID, senderID, text, now); err != nil {
		return models.Message{}, missingReference(err)
	}
	if err = touch(ctx, tx, conversationID, now); err != nil {
		return models.Message{}, err
	}

	var row lastMessageRow
	if err = tx.GetContext(ctx, &row, messageWithSenderQuery+` WHERE m.id=$1`, id); err != nil {
		return models.Message{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return row.toMessage(), nil
}

// ListByConversation returns a conversation's messages oldest first.
func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	msgs := []models.Message{}
	if _, err := uuid.Parse(conversationID); err != nil {
		return msgs, nil
	}

	var rows []lastMessageRow
	if err := r.db.SelectContext(ctx, &rows, messageWithSenderQuery+`
        WHERE m.conversation_id=$1
        ORDER BY m.created_at ASC, m.id ASC`, conversationID); err != nil {
		return nil, err
	}
	for _, row := range rows {
		msgs = append(msgs, row.toMessage())
	}
	return msgs, nil
}
