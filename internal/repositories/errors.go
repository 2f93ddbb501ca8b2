package repositories

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUsernameTaken        = errors.New("username already taken")
	ErrEmailTaken           = errors.New("email already registered")
	ErrConversationNotFound = errors.New("conversation not found")
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// uniqueConflict maps a unique-constraint violation onto a conflict sentinel.
func uniqueConflict(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pqUniqueViolation {
		return err
	}
	switch {
	case strings.Contains(pqErr.Constraint, "email"):
		return ErrEmailTaken
	case strings.Contains(pqErr.Constraint, "username"):
		return ErrUsernameTaken
	}
	return err
}

// missingReference maps a foreign-key violation onto a not-found sentinel.
func missingReference(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pqForeignKeyViolation {
		return err
	}
	if strings.Contains(pqErr.Constraint, "conversation_id") {
		return ErrConversationNotFound
	}
	if strings.Contains(pqErr.Constraint, "user_id") || strings.Contains(pqErr.Constraint, "sender_id") {
		return ErrUserNotFound
	}
	return err
}
