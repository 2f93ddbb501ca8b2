package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"nhanz-chat/internal/models"
)

// UserRepository abstracts the identity store.
type UserRepository interface {
	Create(ctx context.Context, user models.User) (models.User, error)
	GetByID(ctx context.Context, userID string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	ListOthers(ctx context.Context, userID string) ([]models.PublicProfile, error)
	UpdateProfile(ctx context.Context, userID string, update models.ProfileUpdate) (models.User, error)
	UpdateAvatar(ctx context.Context, userID string, avatarURL string) (models.User, error)
	UpdatePasswordHash(ctx context.Context, userID string, hash string) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, username, email, password_hash, name, avatar, status, created_at`

// Create inserts a user, assigning an id when none is set.
func (r *UserRepo) Create(ctx context.Context, user models.User) (models.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = strings.ToLower(user.Email)

	var created models.User
	err := r.db.GetContext(ctx, &created, `INSERT INTO users (id, username, email, password_hash, name)
        VALUES ($1, $2, $3, $4, $5) RETURNING `+userColumns,
		user.ID, user.Username, user.Email, user.PasswordHash, user.Name)
	if err != nil {
		return models.User{}, uniqueConflict(err)
	}
	return created, nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, userID string) (models.User, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return models.User{}, ErrUserNotFound
	}
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetByEmail fetches a user by email, case-insensitively.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE email=$1`, strings.ToLower(email))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// UsernameTaken reports whether the username is already registered.
func (r *UserRepo) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE username=$1)`, username)
	return exists, err
}

// EmailTaken reports whether the email is already registered.
func (r *UserRepo) EmailTaken(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE email=$1)`, strings.ToLower(email))
	return exists, err
}

// ListOthers returns the public profiles of everyone except the caller.
func (r *UserRepo) ListOthers(ctx context.Context, userID string) ([]models.PublicProfile, error) {
	profiles := []models.PublicProfile{}
	err := r.db.SelectContext(ctx, &profiles, `SELECT id, username, name, avatar FROM users
        WHERE id::text <> $1 ORDER BY username ASC`, userID)
	return profiles, err
}

// UpdateProfile applies the non-nil fields of update.
func (r *UserRepo) UpdateProfile(ctx context.Context, userID string, update models.ProfileUpdate) (models.User, error) {
	if update.Empty() {
		return r.GetByID(ctx, userID)
	}

	var user models.User
	err := r.db.GetContext(ctx, &user, `UPDATE users SET
        name = COALESCE($2, name),
        username = COALESCE($3, username),
        status = COALESCE($4, status)
        WHERE id=$1 RETURNING `+userColumns,
		userID, update.Name, update.Username, update.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, uniqueConflict(err)
	}
	return user, nil
}

// UpdateAvatar stores the avatar URL for the user.
func (r *UserRepo) UpdateAvatar(ctx context.Context, userID string, avatarURL string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `UPDATE users SET avatar=$2 WHERE id=$1 RETURNING `+userColumns, userID, avatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// UpdatePasswordHash replaces the stored credential hash.
func (r *UserRepo) UpdatePasswordHash(ctx context.Context, userID string, hash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash=$2 WHERE id=$1`, userID, hash)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}
