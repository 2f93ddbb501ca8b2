package repositories

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nhanz-chat/internal/models"
)

func TestCreateUserLowercasesEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery(sqlLike("INSERT INTO users (id, username, email, password_hash, name)", "RETURNING")).
		WithArgs(sqlmock.AnyArg(), "alice", "alice@example.com", "hash", "Alice").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(aliceID, "alice", "alice@example.com", "hash", "Alice", nil, nil, testNow))

	user, err := repo.Create(context.Background(), models.User{Username: "alice", Email: "Alice@Example.com", PasswordHash: "hash", Name: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, aliceID, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
}

func TestCreateUserConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery(sqlLike("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: "users_username_key"})

	_, err := repo.Create(context.Background(), models.User{Username: "alice", Email: "a@example.com"})
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestGetByEmailNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery(sqlLike("FROM users WHERE email=$1")).
		WithArgs("bob@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "BOB@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = repo.GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestListOthersExcludesCaller(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery(sqlLike("FROM users", "WHERE id::text <> $1 ORDER BY username ASC")).
		WithArgs(aliceID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "name", "avatar"}).AddRow(bobID, "bob", "Bob", nil))

	profiles, err := repo.ListOthers(context.Background(), aliceID)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "bob", profiles[0].Username)
}

func TestUpdateProfileArgumentOrder(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)
	name := "Alice B"
	status := "away"

	mock.ExpectQuery(sqlLike("UPDATE users SET", "name = COALESCE($2, name)", "username = COALESCE($3, username)", "status = COALESCE($4, status)", "WHERE id=$1")).
		WithArgs(aliceID, name, nil, status).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(aliceID, "alice", "alice@example.com", "hash", name, nil, status, testNow))

	user, err := repo.UpdateProfile(context.Background(), aliceID, models.ProfileUpdate{Name: &name, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, name, user.Name)
	require.NotNil(t, user.Status)
	assert.Equal(t, status, *user.Status)
}

func TestUpdatePasswordHashMissingUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)

	mock.ExpectExec(sqlLike("UPDATE users SET password_hash=$2 WHERE id=$1")).
		WithArgs(aliceID, "newhash").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.UpdatePasswordHash(context.Background(), aliceID, "newhash"), ErrUserNotFound)
}
