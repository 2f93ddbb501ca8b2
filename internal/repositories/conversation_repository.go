package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"nhanz-chat/internal/models"
)

// ConversationRepository abstracts conversation and membership persistence.
type ConversationRepository interface {
	ListForUser(ctx context.Context, userID string) ([]models.Conversation, error)
	GetOrCreateDirect(ctx context.Context, userID string, targetID string) (models.Conversation, bool, error)
	GetOrCreateByName(ctx context.Context, name string) (models.Conversation, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

const conversationColumns = `c.id, c.is_group, c.name, c.created_at, c.updated_at`

// ListForUser returns the user's conversations, most recently active first,
// each with its members and latest message.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return []models.Conversation{}, nil
	}

	convs := []models.Conversation{}
	err := r.db.SelectContext(ctx, &convs, `SELECT `+conversationColumns+` FROM conversations c
        INNER JOIN conversation_members cm ON cm.conversation_id = c.id
        WHERE cm.user_id=$1
        ORDER BY c.updated_at DESC, c.id ASC`, userID)
	if err != nil {
		return nil, err
	}
	if err := r.hydrate(ctx, convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// GetOrCreateDirect returns the existing direct conversation between the two
// users or creates one. The lookup and insert are not serialized across
// requests, so two concurrent calls for a new pair can both create.
func (r *ConversationRepo) GetOrCreateDirect(ctx context.Context, userID string, targetID string) (models.Conversation, bool, error) {
	if userID == targetID {
		return models.Conversation{}, false, errors.New("cannot create conversation with self")
	}
	for _, id := range []string{userID, targetID} {
		if _, err := uuid.Parse(id); err != nil {
			return models.Conversation{}, false, ErrUserNotFound
		}
	}

	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations c
        WHERE c.is_group = FALSE
        AND EXISTS (SELECT 1 FROM conversation_members m WHERE m.conversation_id = c.id AND m.user_id = $1)
        AND EXISTS (SELECT 1 FROM conversation_members m WHERE m.conversation_id = c.id AND m.user_id = $2)
        ORDER BY c.created_at ASC LIMIT 1`, userID, targetID)
	created := false
	switch {
	case err == nil:
	case errors.Is(err, sql.ErrNoRows):
		conv, err = r.createDirect(ctx, userID, targetID)
		if err != nil {
			return models.Conversation{}, false, err
		}
		created = true
	default:
		return models.Conversation{}, false, err
	}

	convs := []models.Conversation{conv}
	if err := r.hydrate(ctx, convs); err != nil {
		return models.Conversation{}, false, err
	}
	return convs[0], created, nil
}

func (r *ConversationRepo) createDirect(ctx context.Context, userID, targetID string) (conv models.Conversation, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = tx.GetContext(ctx, &conv, `INSERT INTO conversations (id, is_group) VALUES ($1, FALSE)
        RETURNING id, is_group, name, created_at, updated_at`, uuid.NewString()); err != nil {
		return models.Conversation{}, err
	}
	for _, id := range []string{userID, targetID} {
		if _, err = tx.ExecContext(ctx, `INSERT INTO conversation_members (conversation_id, user_id) VALUES ($1, $2)`, conv.ID, id); err != nil {
			return models.Conversation{}, missingReference(err)
		}
	}
	if err = tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// GetOrCreateByName returns the group conversation with the given name, creating it when absent.
func (r *ConversationRepo) GetOrCreateByName(ctx context.Context, name string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations c
        WHERE c.name=$1 ORDER BY c.created_at ASC LIMIT 1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		err = r.db.GetContext(ctx, &conv, `INSERT INTO conversations (id, is_group, name) VALUES ($1, TRUE, $2)
            RETURNING id, is_group, name, created_at, updated_at`, uuid.NewString(), name)
	}
	if err != nil {
		return models.Conversation{}, err
	}
	conv.Members = []models.PublicProfile{}
	return conv, nil
}

type memberRow struct {
	ConversationID string `db:"conversation_id"`
	models.PublicProfile
}

type lastMessageRow struct {
	models.Message
	SenderUsername string  `db:"sender_username"`
	SenderName     string  `db:"sender_name"`
	SenderAvatar   *string `db:"sender_avatar"`
}

func (row lastMessageRow) toMessage() models.Message {
	msg := row.Message
	msg.Sender = &models.PublicProfile{
		ID:       row.SenderID,
		Username: row.SenderUsername,
		Name:     row.SenderName,
		Avatar:   row.SenderAvatar,
	}
	return msg
}

// hydrate attaches members and the latest message to each conversation in place.
func (r *ConversationRepo) hydrate(ctx context.Context, convs []models.Conversation) error {
	if len(convs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(convs))
	index := make(map[string]int, len(convs))
	for i := range convs {
		ids = append(ids, convs[i].ID)
		index[convs[i].ID] = i
		convs[i].Members = []models.PublicProfile{}
	}

	var members []memberRow
	if err := r.db.SelectContext(ctx, &members, `SELECT cm.conversation_id, u.id, u.username, u.name, u.avatar
        FROM conversation_members cm INNER JOIN users u ON u.id = cm.user_id
        WHERE cm.conversation_id = ANY($1::uuid[])
        ORDER BY cm.joined_at ASC, u.username ASC`, pq.Array(ids)); err != nil {
		return err
	}
	for _, m := range members {
		if i, ok := index[m.ConversationID]; ok {
			convs[i].Members = append(convs[i].Members, m.PublicProfile)
		}
	}

	var latest []lastMessageRow
	if err := r.db.SelectContext(ctx, &latest, `SELECT DISTINCT ON (m.conversation_id)
            m.id, m.conversation_id, m.sender_id, m.content, m.created_at,
            u.username AS sender_username, u.name AS sender_name, u.avatar AS sender_avatar
        FROM messages m INNER JOIN users u ON u.id = m.sender_id
        WHERE m.conversation_id = ANY($1::uuid[])
        ORDER BY m.conversation_id, m.created_at DESC, m.id DESC`, pq.Array(ids)); err != nil {
		return err
	}
	for _, row := range latest {
		if i, ok := index[row.ConversationID]; ok {
			msg := row.toMessage()
			convs[i].LastMessage = &msg
		}
	}
	return nil
}

// touch bumps a conversation's activity timestamp inside tx.
func touch(ctx context.Context, tx *sqlx.Tx, conversationID string, at time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at=$2 WHERE id=$1`, conversationID, at)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrConversationNotFound
	}
	return nil
}
