package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"nhanz-chat/internal/models"
	"nhanz-chat/internal/observability"
	"nhanz-chat/internal/repositories"
	"nhanz-chat/internal/telemetry"
)

const invalidCredentials = "invalid credentials"

// PasswordHasher hashes and checks credentials.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(user models.User) (string, error)
}

// AuthHandler serves registration, login and password changes.
type AuthHandler struct {
	users  repositories.UserRepository
	hasher PasswordHasher
	tokens TokenIssuer
	audit  *telemetry.AuditEmitter
	logger zerolog.Logger
}

// NewAuthHandler builds an AuthHandler. audit may be nil.
func NewAuthHandler(users repositories.UserRepository, hasher PasswordHasher, tokens TokenIssuer, audit *telemetry.AuditEmitter, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{users: users, hasher: hasher, tokens: tokens, audit: audit, logger: logger}
}

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3,max=16,lowercase,alphanum"`
	Name     string `json:"name" binding:"required,min=1,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=6"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Register creates an account and signs the caller in.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.outcome(c, "register", "invalid", nil)
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	ctx := c.Request.Context()

	taken, err := h.users.UsernameTaken(ctx, req.Username)
	if err != nil {
		respondError(c, h.logger, err, "failed to register")
		return
	}
	if taken {
		h.outcome(c, "register", "conflict", nil)
		c.JSON(http.StatusBadRequest, gin.H{"error": repositories.ErrUsernameTaken.Error()})
		return
	}
	taken, err = h.users.EmailTaken(ctx, req.Email)
	if err != nil {
		respondError(c, h.logger, err, "failed to register")
		return
	}
	if taken {
		h.outcome(c, "register", "conflict", nil)
		c.JSON(http.StatusBadRequest, gin.H{"error": repositories.ErrEmailTaken.Error()})
		return
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		respondError(c, h.logger, err, "failed to register")
		return
	}
	user, err := h.users.Create(ctx, models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(req.Name),
	})
	if err != nil {
		if errors.Is(err, repositories.ErrUsernameTaken) || errors.Is(err, repositories.ErrEmailTaken) {
			h.outcome(c, "register", "conflict", nil)
		}
		respondError(c, h.logger, err, "failed to register")
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		respondError(c, h.logger, err, "failed to register")
		return
	}
	h.outcome(c, "register", "ok", &user.ID)
	c.JSON(http.StatusCreated, AuthResponse{Token: token, User: user})
}

// Login exchanges email and password for a session token. Unknown emails and
// wrong passwords get the same answer.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.outcome(c, "login", "invalid", nil)
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), req.Email)
	if err != nil && !errors.Is(err, repositories.ErrUserNotFound) {
		respondError(c, h.logger, err, "failed to login")
		return
	}
	if err != nil || !h.hasher.Verify(req.Password, user.PasswordHash) {
		h.outcome(c, "login", "denied", nil)
		c.JSON(http.StatusBadRequest, gin.H{"error": invalidCredentials})
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		respondError(c, h.logger, err, "failed to login")
		return
	}
	h.outcome(c, "login", "ok", &user.ID)
	c.JSON(http.StatusOK, AuthResponse{Token: token, User: user})
}

// ChangePassword replaces the caller's password after checking the current one.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}
	ctx := c.Request.Context()

	user, err := h.users.GetByID(ctx, identity.UserID)
	if err != nil {
		respondError(c, h.logger, err, "failed to change password")
		return
	}
	if !h.hasher.Verify(req.CurrentPassword, user.PasswordHash) {
		h.outcome(c, "change_password", "denied", &user.ID)
		c.JSON(http.StatusBadRequest, gin.H{"error": "current password is incorrect"})
		return
	}

	hash, err := h.hasher.Hash(req.NewPassword)
	if err != nil {
		respondError(c, h.logger, err, "failed to change password")
		return
	}
	if err := h.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		respondError(c, h.logger, err, "failed to change password")
		return
	}
	h.outcome(c, "change_password", "ok", &user.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
}

func (h *AuthHandler) outcome(c *gin.Context, action, result string, userID *string) {
	observability.IncAuthAttempt(action, result)
	level := "INFO"
	if result != "ok" {
		level = "WARN"
	}
	h.audit.Emit(c.Request.Context(), level, action, action+" "+result, requestIDFromContext(c), userID)
}
