package handler

import (
	"net/http"

	"github.com/dafibh/jokebox/jokebox-backend/internal/middleware"
	"github.com/dafibh/jokebox/jokebox-backend/internal/problem"
	"github.com/dafibh/jokebox/jokebox-backend/internal/websocket"
	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler upgrades subscribers onto the change feed
type WebSocketHandler struct {
	hub            *websocket.Hub
	channels       map[string]bool
	allowedOrigins map[string]bool
	upgrader       ws.Upgrader
}

// NewWebSocketHandler creates a new WebSocketHandler serving the joke channel
func NewWebSocketHandler(hub *websocket.Hub, allowedOrigins []string) *WebSocketHandler {
	originMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		originMap[origin] = true
	}

	h := &WebSocketHandler{
		hub:            hub,
		channels:       map[string]bool{websocket.ChannelJokes: true},
		allowedOrigins: originMap,
	}

	h.upgrader = ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	return h
}

// checkOrigin validates the request origin against allowed origins
func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients such as jokectl send no Origin
		return true
	}

	if h.allowedOrigins[origin] {
		return true
	}

	log.Warn().
		Str("origin", origin).
		Msg("WebSocket connection rejected: origin not allowed")
	return false
}

// HandleWS handles WebSocket connection requests at GET /ws?channel=jokes.
// The channel defaults to jokes.
func (h *WebSocketHandler) HandleWS(c echo.Context) error {
	channel := c.QueryParam("channel")
	if channel == "" {
		channel = websocket.ChannelJokes
	}
	if !h.channels[channel] {
		log.Debug().Str("channel", channel).Msg("WebSocket connection rejected: unknown channel")
		return problem.Validation(c, "Unknown channel", problem.FieldError{
			Field: "channel", Message: "Must be " + websocket.ChannelJokes,
		})
	}

	id := subscriberID(c)

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return err
	}

	log.Info().
		Str("channel", channel).
		Str("subscriber_id", id).
		Msg("Subscriber connected")

	go websocket.NewSubscriber(conn, channel, id, h.hub).Serve()

	return nil
}

// subscriberID identifies the remote client so a reconnect replaces its old
// connection. Browsers cannot set headers on a WebSocket handshake, so the
// client_id query parameter is accepted as well.
func subscriberID(c echo.Context) string {
	if id := middleware.GetClientID(c); id != uuid.Nil {
		return id.String()
	}
	if id, err := uuid.Parse(c.QueryParam("client_id")); err == nil && id != uuid.Nil {
		return id.String()
	}
	return uuid.New().String()
}
