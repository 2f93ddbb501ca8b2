package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"nhanz-chat/internal/auth"
	"nhanz-chat/internal/mocks"
	"nhanz-chat/internal/models"
)

type queryIdentifier struct{}

func (queryIdentifier) Identify(r *http.Request) (auth.Identity, error) {
	user := r.URL.Query().Get("user")
	if user == "" {
		return auth.Identity{}, errors.New("no user")
	}
	return auth.Identity{UserID: "u-" + user, Username: user}, nil
}

func setupWSServer(t *testing.T, store MessageStore) (*httptest.Server, *Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub(store, nil, zerolog.Nop())
	handler := NewHandler(hub, queryIdentifier{}, []string{"*"}, zerolog.Nop())

	r := gin.New()
	r.GET("/ws", handler.Handle)
	server := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Shutdown()
		server.Close()
	})
	return server, hub
}

func dial(t *testing.T, server *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := models.NewEnvelope(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func read(t *testing.T, conn *websocket.Conn) models.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env models.Envelope
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

// flush waits until every earlier frame from conn has been handled.
func flush(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"sync","data":{}}`)))
	require.Equal(t, models.EventError, read(t, conn).Event)
}

func TestHandlerRejectsAnonymousHandshake(t *testing.T) {
	server, _ := setupWSServer(t, nil)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandlerRoundTrip(t *testing.T) {
	store := new(mocks.MessageRepositoryMock)
	server, hub := setupWSServer(t, store)

	alice := dial(t, server, "alice")
	bob := dial(t, server, "bob")

	send(t, bob, models.EventJoinRoom, models.JoinRoomPayload{ConversationID: "c1"})
	flush(t, bob)
	assert.Equal(t, 1, hub.RoomSize("c1"))

	send(t, alice, models.EventTyping, models.TypingPayload{ConversationID: "c1", Username: "alice"})
	env := read(t, bob)
	assert.Equal(t, models.EventTyping, env.Event)

	store.On("AppendMessage", mock.Anything, "c1", "u-alice", "hi").Return(models.Message{
		ID:             "01HX",
		ConversationID: "c1",
		SenderID:       "u-alice",
		Text:           "hi",
		CreatedAt:      time.Now().UTC(),
		Sender:         &models.PublicProfile{ID: "u-alice", Username: "alice", Name: "Alice"},
	}, nil).Once()
	send(t, alice, models.EventSendMessage, models.SendMessagePayload{Text: "hi", SenderID: "u-alice", ConversationID: "c1"})

	for _, conn := range []*websocket.Conn{bob, alice} {
		env := read(t, conn)
		require.Equal(t, models.EventReceiveMessage, env.Event)
		var msg models.Message
		require.NoError(t, json.Unmarshal(env.Data, &msg))
		assert.Equal(t, "hi", msg.Text)
		assert.Equal(t, "alice", msg.Sender.Username)
	}
	store.AssertExpectations(t)

	require.NoError(t, bob.Close())
	assert.Eventually(t, func() bool { return hub.RoomSize("c1") == 0 && hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}
