package repositories

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

var (
	testNow   = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	aliceID   = "6f1c2a8e-1d3b-4c5a-9e7f-0a1b2c3d4e5f"
	bobID     = "0b7e4d2c-8a9f-4e1d-b3c5-6a7b8c9d0e1f"
	directID  = "2a3b4c5d-6e7f-4a8b-9c0d-1e2f3a4b5c6d"
	generalID = "9f8e7d6c-5b4a-4c3d-8e2f-1a0b9c8d7e6f"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	db := sqlx.NewDb(raw, "postgres")
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

// sqlLike builds a pattern matching the fragments in order.
func sqlLike(fragments ...string) string {
	quoted := make([]string, 0, len(fragments))
	for _, f := range fragments {
		quoted = append(quoted, regexp.QuoteMeta(f))
	}
	return "(?s)" + strings.Join(quoted, ".*")
}

var (
	conversationCols = []string{"id", "is_group", "name", "created_at", "updated_at"}
	memberCols       = []string{"conversation_id", "id", "username", "name", "avatar"}
	messageCols      = []string{"id", "conversation_id", "sender_id", "content", "created_at", "sender_username", "sender_name", "sender_avatar"}
	userCols         = []string{"id", "username", "email", "password_hash", "name", "avatar", "status", "created_at"}
)
