package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"nhanz-chat/internal/models"
)

const writeWait = 10 * time.Second

// Conn is an open realtime connection. Writes are serialized; Next must be
// called from a single goroutine.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// Dial opens the realtime connection using the client's token.
func (c *Client) Dial(ctx context.Context) (*Conn, error) {
	if c.Token == "" {
		return nil, errors.New("dial: not logged in")
	}
	target, err := c.websocketURL()
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.Token)
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil, err
	}
	return &Conn{ws: ws}, nil
}

// Emit sends one event.
func (c *Conn) Emit(event string, data any) error {
	payload, err := models.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *Conn) JoinRoom(conversationID string) error {
	return c.Emit(models.EventJoinRoom, models.JoinRoomPayload{ConversationID: conversationID})
}

func (c *Conn) Typing(conversationID, username string) error {
	return c.Emit(models.EventTyping, models.TypingPayload{ConversationID: conversationID, Username: username})
}

func (c *Conn) StopTyping(conversationID, username string) error {
	return c.Emit(models.EventStopTyping, models.TypingPayload{ConversationID: conversationID, Username: username})
}

func (c *Conn) SendMessage(p models.SendMessagePayload) error {
	return c.Emit(models.EventSendMessage, p)
}

// Next blocks for the next inbound event.
func (c *Conn) Next() (models.Envelope, error) {
	var env models.Envelope
	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		return env, err
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, err
	}
	return env, nil
}

// Close sends a close frame and closes the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.mu.Unlock()
	return c.ws.Close()
}

// Emitter is the write side of a Conn.
type Emitter interface {
	JoinRoom(conversationID string) error
	Typing(conversationID, username string) error
	StopTyping(conversationID, username string) error
	SendMessage(p models.SendMessagePayload) error
}

// Session applies a connection's inbound events to a State.
type Session struct {
	conn  Emitter
	state *State

	// OnEvent, when set, is called after each event has been applied.
	OnEvent func(env models.Envelope, res IncomingResult)
}

// NewSession binds conn to state.
func NewSession(conn Emitter, state *State) *Session {
	return &Session{conn: conn, state: state}
}

// Send records an optimistic entry and emits it. A failed write marks the
// entry failed so it is not left pending forever.
func (s *Session) Send(conversationID, text string) error {
	payload, err := s.state.SendOptimistic(conversationID, text)
	if err != nil {
		return err
	}
	if err := s.conn.SendMessage(payload); err != nil {
		s.state.ApplySendFailed(models.SendFailedPayload{
			ClientID:       payload.ClientID,
			ConversationID: conversationID,
			Error:          err.Error(),
		})
		return err
	}
	return nil
}

// Typing tells the room the signed-in user started typing.
func (s *Session) Typing(conversationID string) error {
	return s.conn.Typing(conversationID, s.state.Me().Username)
}

// StopTyping tells the room the signed-in user stopped typing.
func (s *Session) StopTyping(conversationID string) error {
	return s.conn.StopTyping(conversationID, s.state.Me().Username)
}

// Open activates conv and joins its room so typing events arrive.
func (s *Session) Open(conv models.Conversation, history []models.Message) error {
	s.state.OpenConversation(conv)
	s.state.SwitchConversation(conv.ID, history)
	return s.conn.JoinRoom(conv.ID)
}

// Apply decodes one inbound event into the state.
func (s *Session) Apply(env models.Envelope) (IncomingResult, error) {
	var res IncomingResult
	switch env.Event {
	case models.EventReceiveMessage:
		var msg models.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return res, err
		}
		res = s.state.ApplyIncoming(msg)
	case models.EventTyping, models.EventStopTyping:
		var p models.TypingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return res, err
		}
		if env.Event == models.EventTyping {
			s.state.ApplyTyping(p)
		} else {
			s.state.ApplyStopTyping(p)
		}
	case models.EventSendFailed:
		var p models.SendFailedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return res, err
		}
		s.state.ApplySendFailed(p)
	}
	return res, nil
}

// Source yields inbound events; *Conn satisfies it.
type Source interface {
	Next() (models.Envelope, error)
}

// Run applies events from src until it fails or ctx is done. A normal close
// returns nil.
func (s *Session) Run(ctx context.Context, src Source) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		env, err := src.Next()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		res, err := s.Apply(env)
		if err != nil {
			continue
		}
		if s.OnEvent != nil {
			s.OnEvent(env, res)
		}
	}
}
