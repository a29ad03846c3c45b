package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/dafibh/jokebox/jokebox-backend/internal/websocket"
	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ErrNoWebSocketURL is returned by Subscribe when no feed endpoint is set
var ErrNoWebSocketURL = errors.New("no websocket url configured")

// Subscribe connects to the joke change feed and calls handle for every
// event until the connection drops or ctx is done. It always returns a
// non-nil error.
func (c *Client) Subscribe(ctx context.Context, handle func(websocket.IncomingEvent)) error {
	if c.wsURL == "" {
		return ErrNoWebSocketURL
	}

	endpoint, err := url.Parse(c.wsURL)
	if err != nil {
		return err
	}
	query := endpoint.Query()
	query.Set("channel", websocket.ChannelJokes)
	endpoint.RawQuery = query.Encode()

	header := http.Header{}
	header.Set("X-Client-ID", c.clientID.String())

	conn, _, err := ws.DefaultDialer.DialContext(ctx, endpoint.String(), header)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Unblock ReadMessage when the caller gives up
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	log.Debug().Str("url", endpoint.String()).Msg("Subscribed to joke events")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		ev, err := websocket.ParseEvent(data)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping undecodable event")
			continue
		}
		handle(ev)
	}
}
