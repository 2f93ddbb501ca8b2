package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"nhanz-chat/internal/auth"
	"nhanz-chat/internal/middleware"
	"nhanz-chat/internal/repositories"
)

// respondError maps store errors onto status codes. Unknown errors are logged
// and answered with the generic fallback message.
func respondError(c *gin.Context, logger zerolog.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, repositories.ErrUsernameTaken), errors.Is(err, repositories.ErrEmailTaken):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrUserNotFound), errors.Is(err, repositories.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		logger.Error().Err(err).
			Str("request_id", requestIDFromContext(c)).
			Str("route", c.FullPath()).
			Msg(fallback)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

// requireIdentity returns the caller or answers 401.
func requireIdentity(c *gin.Context) (auth.Identity, bool) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return identity, ok
}
