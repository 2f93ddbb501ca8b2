package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"nhanz-chat/internal/middleware"
)

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(middleware.RequestIDKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *string {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return nil
	}
	userID := identity.UserID
	return &userID
}
