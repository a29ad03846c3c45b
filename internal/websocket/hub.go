package websocket

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	// ErrSubscriberClosed is returned when sending to a closed subscriber
	ErrSubscriberClosed = errors.New("subscriber is closed")
	// ErrSlowSubscriber is returned when a subscriber's queue is full
	ErrSlowSubscriber = errors.New("subscriber queue is full")
)

// Peer is one end of the change feed as seen by the hub
type Peer interface {
	ID() string
	Channel() string
	Send(data []byte) error
	Close() error
}

// feed is the state of one channel. sendMu is held from stamping an event
// through queueing it, so peers receive events in seq order.
type feed struct {
	sendMu sync.Mutex
	peers  map[string]Peer
	seq    uint64
}

// Hub fans events out to the peers of each channel and numbers them so
// subscribers can tell when they missed one. It is safe for concurrent use.
type Hub struct {
	feeds map[string]*feed
	mu    sync.Mutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		feeds: make(map[string]*feed),
	}
}

func (h *Hub) feedLocked(channel string) *feed {
	f, ok := h.feeds[channel]
	if !ok {
		f = &feed{peers: make(map[string]Peer)}
		h.feeds[channel] = f
	}
	return f
}

// Register adds a peer to its channel. A peer reconnecting under the same ID
// replaces its previous connection, which is closed.
func (h *Hub) Register(p Peer) {
	h.mu.Lock()
	f := h.feedLocked(p.Channel())
	stale, replaced := f.peers[p.ID()]
	f.peers[p.ID()] = p
	h.mu.Unlock()

	if replaced && stale != p {
		stale.Close()
	}

	log.Debug().
		Str("channel", p.Channel()).
		Str("subscriber_id", p.ID()).
		Bool("replaced", replaced).
		Msg("Subscriber registered")
}

// Unregister removes a peer. It is a no-op when the peer was already
// replaced by a newer connection with the same ID.
func (h *Hub) Unregister(p Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, ok := h.feeds[p.Channel()]
	if !ok || f.peers[p.ID()] != p {
		return
	}
	delete(f.peers, p.ID())

	log.Debug().
		Str("channel", p.Channel()).
		Str("subscriber_id", p.ID()).
		Msg("Subscriber unregistered")
}

// Broadcast stamps the event with the channel's next sequence number and
// queues it for every peer. Peers that cannot keep up are dropped; they
// resync when they reconnect.
func (h *Hub) Broadcast(channel string, event Event) {
	h.mu.Lock()
	f := h.feedLocked(channel)
	h.mu.Unlock()

	f.sendMu.Lock()
	h.mu.Lock()
	f.seq++
	event.Seq = f.seq
	peers := make([]Peer, 0, len(f.peers))
	for _, p := range f.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	data, err := event.ToJSON()
	if err != nil {
		f.sendMu.Unlock()
		log.Error().
			Err(err).
			Str("channel", channel).
			Str("event_type", event.Type).
			Msg("Failed to serialize event")
		return
	}

	var dropped []Peer
	for _, p := range peers {
		if err := p.Send(data); err != nil {
			log.Warn().
				Err(err).
				Str("channel", channel).
				Str("subscriber_id", p.ID()).
				Msg("Dropping subscriber")
			h.Unregister(p)
			dropped = append(dropped, p)
		}
	}
	f.sendMu.Unlock()

	// Closing sends a close frame and may wait on the network
	for _, p := range dropped {
		p.Close()
	}

	log.Debug().
		Str("channel", channel).
		Str("event_type", event.Type).
		Uint64("seq", event.Seq).
		Int("subscribers", len(peers)).
		Msg("Broadcast event")
}

// EventPublisher publishes change events to subscribers of a channel
type EventPublisher interface {
	Publish(channel string, event Event)
}

var _ EventPublisher = (*Hub)(nil)

// Publish implements EventPublisher
func (h *Hub) Publish(channel string, event Event) {
	h.Broadcast(channel, event)
}

// Seq returns the sequence number of the last event sent on channel
func (h *Hub) Seq(channel string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if f, ok := h.feeds[channel]; ok {
		return f.seq
	}
	return 0
}

// Subscribers returns the number of peers on a channel
func (h *Hub) Subscribers(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if f, ok := h.feeds[channel]; ok {
		return len(f.peers)
	}
	return 0
}

// Total returns the number of peers across all channels
func (h *Hub) Total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, f := range h.feeds {
		total += len(f.peers)
	}
	return total
}

// Shutdown closes every peer, as on server shutdown
func (h *Hub) Shutdown() {
	h.mu.Lock()
	var peers []Peer
	for _, f := range h.feeds {
		for _, p := range f.peers {
			peers = append(peers, p)
		}
		f.peers = make(map[string]Peer)
	}
	h.mu.Unlock()

	for _, p := range peers {
		p.Close()
	}
	log.Info().Int("subscribers", len(peers)).Msg("Change feed closed")
}
