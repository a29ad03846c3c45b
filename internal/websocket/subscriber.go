package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	// queueSize bounds how far a subscriber may lag before it is dropped
	queueSize = 64
)

// Subscriber is one live connection on the change feed. The feed is
// server to client only; inbound frames other than control frames are
// discarded.
type Subscriber struct {
	id        string
	channel   string
	conn      *websocket.Conn
	hub       *Hub
	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewSubscriber wraps an upgraded connection. id identifies the remote
// client across reconnects.
func NewSubscriber(conn *websocket.Conn, channel, id string, hub *Hub) *Subscriber {
	return &Subscriber{
		id:      id,
		channel: channel,
		conn:    conn,
		hub:     hub,
		queue:   make(chan []byte, queueSize),
		done:    make(chan struct{}),
	}
}

// ID returns the subscriber's client identifier
func (s *Subscriber) ID() string {
	return s.id
}

// Channel returns the channel the subscriber listens on
func (s *Subscriber) Channel() string {
	return s.channel
}

// Send queues a message without blocking
func (s *Subscriber) Send(data []byte) error {
	select {
	case <-s.done:
		return ErrSubscriberClosed
	default:
	}

	select {
	case s.queue <- data:
		return nil
	default:
		return ErrSlowSubscriber
	}
}

// Close stops the write loop and closes the connection. It may be called
// more than once.
func (s *Subscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		// WriteControl may run concurrently with writeLoop
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = s.conn.Close()
	})
	return err
}

// Serve registers the subscriber and pumps messages until the connection
// ends. It blocks; run it in its own goroutine.
func (s *Subscriber) Serve() {
	s.hub.Register(s)
	defer func() {
		s.hub.Unregister(s)
		s.Close()
	}()

	go s.writeLoop()
	s.readLoop()
}

func (s *Subscriber) readLoop() {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().
					Err(err).
					Str("subscriber_id", s.id).
					Str("channel", s.channel).
					Msg("Subscriber closed unexpectedly")
			}
			return
		}
	}
}

func (s *Subscriber) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return

		case message := <-s.queue:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn().
					Err(err).
					Str("subscriber_id", s.id).
					Str("channel", s.channel).
					Msg("Subscriber write failed")
				s.Close()
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		}
	}
}
