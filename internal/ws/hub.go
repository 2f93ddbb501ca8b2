package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nhanz-chat/internal/models"
	"nhanz-chat/internal/observability"
	"nhanz-chat/internal/repositories"
)

const lifecycleRoutingKey = "ws_events.connections"

// MessageStore persists messages sent over the realtime channel.
type MessageStore interface {
	AppendMessage(ctx context.Context, conversationID string, senderID string, text string) (models.Message, error)
}

// EventPublisher receives connection lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// Hub maintains live clients and their conversation rooms.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client

	messages  MessageStore
	publisher EventPublisher
	logger    zerolog.Logger
}

// NewHub creates an empty hub. publisher may be nil.
func NewHub(messages MessageStore, publisher EventPublisher, logger zerolog.Logger) *Hub {
	return &Hub{
		clients:   make(map[string]*Client),
		rooms:     make(map[string]map[string]*Client),
		messages:  messages,
		publisher: publisher,
		logger:    logger.With().Str("component", "ws_hub").Logger(),
	}
}

// Register adds a connected client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.info.ConnID] = c
	h.mu.Unlock()
}

// Unregister drops the client from the registry and every room it joined and
// closes its send queue. It reports false when the client was already gone.
func (h *Hub) Unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.info.ConnID] != c {
		return false
	}
	delete(h.clients, c.info.ConnID)
	for roomID := range c.rooms {
		if members, ok := h.rooms[roomID]; ok {
			delete(members, c.info.ConnID)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	c.rooms = map[string]struct{}{}
	close(c.send)
	return true
}

// Join subscribes the client to a conversation room. Joining is additive and
// not checked against conversation membership.
func (h *Hub) Join(c *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.info.ConnID] != c {
		return
	}
	members, ok := h.rooms[conversationID]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[conversationID] = members
	}
	members[c.info.ConnID] = c
	c.rooms[conversationID] = struct{}{}
}

// BroadcastRoom queues payload for every client in the room except the sender.
func (h *Hub) BroadcastRoom(conversationID string, except *Client, payload []byte) {
	h.mu.RLock()
	var slow []*Client
	for _, c := range h.rooms[conversationID] {
		if c == except {
			continue
		}
		if !deliver(c, payload) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()
	h.dropSlow(slow)
}

// BroadcastAll queues payload for every connected client.
func (h *Hub) BroadcastAll(payload []byte) {
	h.mu.RLock()
	var slow []*Client
	for _, c := range h.clients {
		if !deliver(c, payload) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()
	h.dropSlow(slow)
}

// SendTo queues payload for a single client.
func (h *Hub) SendTo(c *Client, payload []byte) {
	h.mu.RLock()
	registered := h.clients[c.info.ConnID] == c
	delivered := registered && deliver(c, payload)
	h.mu.RUnlock()
	if registered && !delivered {
		h.dropSlow([]*Client{c})
	}
}

// deliver must be called with h.mu held.
func deliver(c *Client, payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (h *Hub) dropSlow(clients []*Client) {
	for _, c := range clients {
		if h.Unregister(c) {
			h.logger.Warn().Str("conn_id", c.info.ConnID).Str("user_id", c.info.UserID).Msg("send queue full, dropping client")
			h.PublishLifecycle(c.info, "ws_error", "send queue full")
			c.close()
		}
	}
}

// Dispatch handles one inbound frame from c.
func (h *Hub) Dispatch(ctx context.Context, c *Client, raw []byte) {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		h.reject(c, "", "malformed event envelope")
		return
	}
	observability.IncWSEvent(eventLabel(env.Event))

	switch env.Event {
	case models.EventJoinRoom:
		var p models.JoinRoomPayload
		if err := decode(env.Data, &p); err != nil {
			h.reject(c, env.Event, err.Error())
			return
		}
		h.Join(c, p.ConversationID)
	case models.EventTyping, models.EventStopTyping:
		var p models.TypingPayload
		if err := decode(env.Data, &p); err != nil {
			h.reject(c, env.Event, err.Error())
			return
		}
		// The username is display text and may have been renamed since the
		// token was issued; the stamped user id is what receivers can trust.
		p.UserID = c.info.UserID
		payload, err := models.NewEnvelope(env.Event, p)
		if err != nil {
			h.logger.Error().Err(err).Msg("encode typing event")
			return
		}
		h.BroadcastRoom(p.ConversationID, c, payload)
	case models.EventSendMessage:
		var p models.SendMessagePayload
		if err := decode(env.Data, &p); err != nil {
			h.reject(c, env.Event, err.Error())
			return
		}
		if p.SenderID != "" && p.SenderID != c.info.UserID {
			h.reject(c, env.Event, "senderId does not match connection")
			return
		}
		h.sendMessage(ctx, c, p)
	default:
		h.reject(c, env.Event, "unknown event")
	}
}

// sendMessage persists first and only then broadcasts to every client so
// conversation previews update outside the room too.
func (h *Hub) sendMessage(ctx context.Context, c *Client, p models.SendMessagePayload) {
	msg, err := h.messages.AppendMessage(ctx, p.ConversationID, c.info.UserID, p.Text)
	if err != nil {
		observability.IncMessagePersisted("failed")
		h.logger.Error().Err(err).
			Str("conn_id", c.info.ConnID).
			Str("user_id", c.info.UserID).
			Str("conversation_id", p.ConversationID).
			Msg("persist message failed")

		payload, encErr := models.NewEnvelope(models.EventSendFailed, models.SendFailedPayload{
			ClientID:       p.ClientID,
			ConversationID: p.ConversationID,
			Error:          sendFailureText(err),
		})
		if encErr == nil {
			h.SendTo(c, payload)
		}
		return
	}
	observability.IncMessagePersisted("ok")

	payload, err := models.NewEnvelope(models.EventReceiveMessage, msg)
	if err != nil {
		h.logger.Error().Err(err).Str("message_id", msg.ID).Msg("encode message")
		return
	}
	h.BroadcastAll(payload)
}

func eventLabel(event string) string {
	switch event {
	case models.EventJoinRoom, models.EventTyping, models.EventStopTyping, models.EventSendMessage:
		return event
	}
	return "unknown"
}

func sendFailureText(err error) string {
	switch {
	case errors.Is(err, repositories.ErrConversationNotFound):
		return "conversation not found"
	case errors.Is(err, repositories.ErrUserNotFound):
		return "sender not found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "request cancelled"
	default:
		return "message could not be saved"
	}
}

type validator interface {
	Validate() error
}

func decode(data json.RawMessage, into validator) error {
	if len(data) == 0 {
		return errors.New("missing event data")
	}
	if err := json.Unmarshal(data, into); err != nil {
		return errors.New("malformed event data")
	}
	return into.Validate()
}

func (h *Hub) reject(c *Client, event, reason string) {
	h.logger.Warn().Str("conn_id", c.info.ConnID).Str("event", event).Str("reason", reason).Msg("rejected websocket event")
	payload, err := models.NewEnvelope(models.EventError, models.ErrorPayload{Event: event, Error: reason})
	if err != nil {
		return
	}
	h.SendTo(c, payload)
}

// PublishLifecycle emits a ws_connect, ws_disconnect or ws_error event.
func (h *Hub) PublishLifecycle(info ConnInfo, event, reason string) {
	observability.IncWSEvent(event)
	if h.publisher == nil {
		return
	}

	payload := map[string]any{
		"ws": map[string]any{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]any{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
	err := h.publisher.Publish(context.Background(), lifecycleRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
	if err != nil {
		h.logger.Debug().Err(err).Str("event", event).Msg("lifecycle publish failed")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of clients in a room.
func (h *Hub) RoomSize(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// Shutdown disconnects every client.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.Unregister(c)
	}
}
