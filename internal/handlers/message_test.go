package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"nhanz-chat/internal/mocks"
	"nhanz-chat/internal/models"
)

func setupMessageRouter(messages *mocks.MessageRepositoryMock, convs *mocks.ConversationRepositoryMock) *gin.Engine {
	handler := NewMessageHandler(messages, convs, zerolog.Nop())
	r := newTestRouter(true)
	r.GET("/api/messages/general", handler.General)
	r.GET("/api/messages/:conversationId", handler.History)
	return r
}

func TestHistory(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(messages, new(mocks.ConversationRepositoryMock))

	t0 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	messages.On("ListByConversation", mock.Anything, "c-1").Return([]models.Message{
		{ID: "m1", ConversationID: "c-1", SenderID: testUserID, Text: "first", CreatedAt: t0,
			Sender: &models.PublicProfile{ID: testUserID, Username: "alice"}},
		{ID: "m2", ConversationID: "c-1", SenderID: bobID, Text: "second", CreatedAt: t0.Add(time.Minute),
			Sender: &models.PublicProfile{ID: bobID, Username: "bob"}},
	}, nil).Once()

	rec := doJSON(router, http.MethodGet, "/api/messages/c-1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var got []models.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, "bob", got[1].Sender.Username)
	messages.AssertExpectations(t)
}

func TestHistoryStoreError(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(messages, new(mocks.ConversationRepositoryMock))
	messages.On("ListByConversation", mock.Anything, "c-1").Return(nil, assert.AnError).Once()

	rec := doJSON(router, http.MethodGet, "/api/messages/c-1", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGeneralConversation(t *testing.T) {
	convs := new(mocks.ConversationRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(messages, convs)

	name := models.GeneralConversationName
	convs.On("GetOrCreateByName", mock.Anything, models.GeneralConversationName).
		Return(models.Conversation{ID: "general", IsGroup: true, Name: &name}, nil).Once()

	rec := doJSON(router, http.MethodGet, "/api/messages/general", "")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, "Community Chat", resp["name"])
	assert.Equal(t, true, resp["isGroup"])
	messages.AssertNotCalled(t, "ListByConversation", mock.Anything, mock.Anything)
	convs.AssertExpectations(t)
}
