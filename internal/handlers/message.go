package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"nhanz-chat/internal/models"
	"nhanz-chat/internal/repositories"
)

// MessageHandler serves conversation history.
type MessageHandler struct {
	messages repositories.MessageRepository
	convs    repositories.ConversationRepository
	logger   zerolog.Logger
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messages repositories.MessageRepository, convs repositories.ConversationRepository, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, convs: convs, logger: logger}
}

// History returns a conversation's messages oldest first. Membership is not checked.
func (h *MessageHandler) History(c *gin.Context) {
	msgs, err := h.messages.ListByConversation(c.Request.Context(), c.Param("conversationId"))
	if err != nil {
		respondError(c, h.logger, err, "failed to fetch messages")
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// General returns the shared community conversation, creating it on first use.
func (h *MessageHandler) General(c *gin.Context) {
	conv, err := h.convs.GetOrCreateByName(c.Request.Context(), models.GeneralConversationName)
	if err != nil {
		respondError(c, h.logger, err, "failed to get general conversation")
		return
	}
	c.JSON(http.StatusOK, conv)
}
