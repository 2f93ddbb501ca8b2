package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"nhanz-chat/internal/auth"
	"nhanz-chat/internal/middleware"
	"nhanz-chat/internal/observability"
)

// Identifier resolves the caller of a handshake request.
type Identifier interface {
	Identify(r *http.Request) (auth.Identity, error)
}

// Handler upgrades authenticated requests and runs the connection.
type Handler struct {
	hub      *Hub
	authn    Identifier
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler constructs a Handler accepting the given browser origins.
func NewHandler(hub *Hub, authn Identifier, allowedOrigins []string, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:   hub,
		authn: authn,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger.With().Str("component", "ws_handler").Logger(),
	}
}

// Handle authenticates the handshake, upgrades and blocks until the client leaves.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("nhanz-chat/ws").Start(c.Request.Context(), "ws.handshake")
	identity, err := h.authn.Identify(c.Request.WithContext(ctx))
	if err != nil {
		span.End()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.End()
		h.logger.Warn().Err(err).Str("user_id", identity.UserID).Msg("websocket upgrade failed")
		return
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      identity.UserID,
		Username:    identity.Username,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          c.ClientIP(),
		RequestID:   c.GetString(middleware.RequestIDKey),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	span.End()
	if info.RequestID == "" {
		info.RequestID = observability.RequestIDFromRequest(c.Request)
	}

	h.Serve(ctx, conn, info)
}

// Serve registers the connection and pumps it until it closes.
func (h *Handler) Serve(parent context.Context, conn Conn, info ConnInfo) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	defer cancel()

	client := newClient(info, conn)
	h.hub.Register(client)
	observability.IncWSActive()
	h.hub.PublishLifecycle(info, "ws_connect", "")
	h.logger.Info().Str("conn_id", info.ConnID).Str("user_id", info.UserID).Msg("websocket connected")

	go client.writePump()

	err := client.readPump(ctx, h.hub)
	reason := ""
	if err != nil {
		reason = err.Error()
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			h.hub.PublishLifecycle(info, "ws_error", reason)
		}
	}

	h.hub.Unregister(client)
	client.close()
	observability.DecWSActive()
	h.hub.PublishLifecycle(info, "ws_disconnect", reason)
	h.logger.Info().Str("conn_id", info.ConnID).Str("user_id", info.UserID).Str("reason", reason).Msg("websocket disconnected")
}
