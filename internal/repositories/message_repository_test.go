package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fkViolation(constraint string) error {
	return &pq.Error{Code: pqForeignKeyViolation, Constraint: constraint}
}

func newTestMessageRepo(t *testing.T) (*MessageRepo, sqlmock.Sqlmock) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)
	repo.now = func() time.Time { return testNow }
	return repo, mock
}

func TestAppendMessageBumpsConversation(t *testing.T) {
	repo, mock := newTestMessageRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(sqlLike("INSERT INTO messages (id, conversation_id, sender_id, content, created_at)")).
		WithArgs(sqlmock.AnyArg(), directID, aliceID, "hi", testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(sqlLike("UPDATE conversations SET updated_at=$2 WHERE id=$1")).
		WithArgs(directID, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(sqlLike("FROM messages m INNER JOIN users u", "WHERE m.id=$1")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(messageCols).AddRow("01J0", directID, aliceID, "hi", testNow, "alice", "Alice", nil))
	mock.ExpectCommit()

	msg, err := repo.AppendMessage(context.Background(), directID, aliceID, "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", msg.Text)
	assert.Equal(t, testNow, msg.CreatedAt)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, "alice", msg.Sender.Username)
}

func TestAppendMessageUnknownConversation(t *testing.T) {
	repo, mock := newTestMessageRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(sqlLike("INSERT INTO messages")).
		WithArgs(sqlmock.AnyArg(), directID, aliceID, "hi", testNow).
		WillReturnError(fkViolation("messages_conversation_id_fkey"))
	mock.ExpectRollback()

	_, err := repo.AppendMessage(context.Background(), directID, aliceID, "hi")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestAppendMessageRollsBackWhenConversationVanishes(t *testing.T) {
	repo, mock := newTestMessageRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(sqlLike("INSERT INTO messages")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(sqlLike("UPDATE conversations SET updated_at")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.AppendMessage(context.Background(), directID, aliceID, "hi")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestAppendMessageRejectsMalformedIDs(t *testing.T) {
	repo, _ := newTestMessageRepo(t)

	_, err := repo.AppendMessage(context.Background(), "c1", aliceID, "hi")
	assert.ErrorIs(t, err, ErrConversationNotFound)
	_, err = repo.AppendMessage(context.Background(), directID, "u1", "hi")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestListByConversationAscending(t *testing.T) {
	repo, mock := newTestMessageRepo(t)

	mock.ExpectQuery(sqlLike("FROM messages m INNER JOIN users u", "WHERE m.conversation_id=$1", "ORDER BY m.created_at ASC, m.id ASC")).
		WithArgs(directID).
		WillReturnRows(sqlmock.NewRows(messageCols).
			AddRow("01J0", directID, aliceID, "first", testNow, "alice", "Alice", nil).
			AddRow("01J1", directID, bobID, "second", testNow, "bob", "Bob", "https://img/bob.png"))

	msgs, err := repo.ListByConversation(context.Background(), directID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)
	require.NotNil(t, msgs[1].Sender.Avatar)
	assert.Equal(t, "https://img/bob.png", *msgs[1].Sender.Avatar)
}

func TestListByConversationMalformedID(t *testing.T) {
	repo, _ := newTestMessageRepo(t)
	msgs, err := repo.ListByConversation(context.Background(), "general")
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}
