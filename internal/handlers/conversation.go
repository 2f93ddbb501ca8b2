package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"nhanz-chat/internal/repositories"
)

// ConversationHandler lists and opens the caller's conversations.
type ConversationHandler struct {
	convs  repositories.ConversationRepository
	logger zerolog.Logger
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(convs repositories.ConversationRepository, logger zerolog.Logger) *ConversationHandler {
	return &ConversationHandler{convs: convs, logger: logger}
}

// ListMine returns the caller's conversations, most recently active first.
func (h *ConversationHandler) ListMine(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}

	convs, err := h.convs.ListForUser(c.Request.Context(), identity.UserID)
	if err != nil {
		respondError(c, h.logger, err, "failed to fetch conversations")
		return
	}
	c.JSON(http.StatusOK, convs)
}

type startConversationRequest struct {
	TargetUserID string `json:"targetUserId" binding:"required"`
}

// GetOrCreateDirect opens the direct conversation with the target user,
// creating it on first contact.
func (h *ConversationHandler) GetOrCreateDirect(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	var req startConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}
	if req.TargetUserID == identity.UserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start a conversation with yourself"})
		return
	}

	conv, created, err := h.convs.GetOrCreateDirect(c.Request.Context(), identity.UserID, req.TargetUserID)
	if err != nil {
		respondError(c, h.logger, err, "failed to create conversation")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, conv)
}
