package websocket

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockPeer captures sent messages. A positive limit makes it report a full
// queue once that many messages are held.
type mockPeer struct {
	id       string
	channel  string
	limit    int
	mu       sync.Mutex
	messages [][]byte
	closed   bool
}

func newMockPeer(id, channel string) *mockPeer {
	return &mockPeer{id: id, channel: channel}
}

func (m *mockPeer) ID() string      { return m.id }
func (m *mockPeer) Channel() string { return m.channel }

func (m *mockPeer) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrSubscriberClosed
	}
	if m.limit > 0 && len(m.messages) >= m.limit {
		return ErrSlowSubscriber
	}
	m.messages = append(m.messages, data)
	return nil
}

func (m *mockPeer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockPeer) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockPeer) Events(t *testing.T) []IncomingEvent {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	events := make([]IncomingEvent, 0, len(m.messages))
	for _, data := range m.messages {
		ev, err := ParseEvent(data)
		require.NoError(t, err)
		events = append(events, ev)
	}
	return events
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub()

	a := newMockPeer("a", ChannelJokes)
	b := newMockPeer("b", ChannelJokes)
	other := newMockPeer("c", "other")

	hub.Register(a)
	hub.Register(b)
	hub.Register(other)

	assert.Equal(t, 2, hub.Subscribers(ChannelJokes))
	assert.Equal(t, 1, hub.Subscribers("other"))
	assert.Equal(t, 0, hub.Subscribers("missing"))
	assert.Equal(t, 3, hub.Total())

	hub.Unregister(a)
	hub.Unregister(b)
	hub.Unregister(other)
	assert.Equal(t, 0, hub.Total())
}

func TestHub_RegisterReplacesSameID(t *testing.T) {
	hub := NewHub()
	stale := newMockPeer("client-1", ChannelJokes)
	fresh := newMockPeer("client-1", ChannelJokes)

	hub.Register(stale)
	hub.Register(fresh)

	assert.True(t, stale.Closed())
	assert.False(t, fresh.Closed())
	assert.Equal(t, 1, hub.Subscribers(ChannelJokes))

	// The stale connection unregistering on its way out leaves fresh alone
	hub.Unregister(stale)
	assert.Equal(t, 1, hub.Subscribers(ChannelJokes))

	hub.Broadcast(ChannelJokes, JokeBatchRestored(1))
	assert.Len(t, fresh.Events(t), 1)
}

func TestHub_Broadcast_SequencesPerChannel(t *testing.T) {
	hub := NewHub()
	jokes := newMockPeer("a", ChannelJokes)
	other := newMockPeer("b", "other")
	hub.Register(jokes)
	hub.Register(other)

	hub.Broadcast(ChannelJokes, JokeUpdated(map[string]interface{}{"id": float64(1)}))
	hub.Broadcast("other", JokeUpdated(map[string]interface{}{"id": float64(2)}))
	hub.Broadcast(ChannelJokes, JokeDeleted(map[string]interface{}{"id": float64(1)}))

	events := jokes.Events(t)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(1), events[0].Seq)
	assert.Equal(t, uint64(2), events[1].Seq)
	assert.Equal(t, TypeJokeDeleted, events[1].Type)

	otherEvents := other.Events(t)
	require.Len(t, otherEvents, 1)
	assert.Equal(t, uint64(1), otherEvents[0].Seq, "channels are numbered independently")

	assert.Equal(t, uint64(2), hub.Seq(ChannelJokes))
	assert.Equal(t, uint64(0), hub.Seq("missing"))
}

func TestHub_Broadcast_NumbersEventsWithoutSubscribers(t *testing.T) {
	hub := NewHub()

	hub.Broadcast(ChannelJokes, JokeBatchRestored(3))
	late := newMockPeer("late", ChannelJokes)
	hub.Register(late)
	hub.Broadcast(ChannelJokes, JokeBatchRestored(1))

	events := late.Events(t)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(2), events[0].Seq)

	var payload BatchRestoredPayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, int64(1), payload.Restored)
}

func TestHub_Broadcast_DropsSlowSubscriber(t *testing.T) {
	hub := NewHub()
	slow := newMockPeer("slow", ChannelJokes)
	slow.limit = 1
	fast := newMockPeer("fast", ChannelJokes)
	hub.Register(slow)
	hub.Register(fast)

	hub.Broadcast(ChannelJokes, JokeBatchRestored(1))
	hub.Broadcast(ChannelJokes, JokeBatchRestored(2))

	assert.True(t, slow.Closed())
	assert.Equal(t, 1, hub.Subscribers(ChannelJokes))
	assert.Len(t, fast.Events(t), 2)
}

func TestHub_Shutdown(t *testing.T) {
	hub := NewHub()
	peers := []*mockPeer{newMockPeer("a", ChannelJokes), newMockPeer("b", "other")}
	for _, p := range peers {
		hub.Register(p)
	}

	hub.Shutdown()

	assert.Equal(t, 0, hub.Total())
	for _, p := range peers {
		assert.True(t, p.Closed(), "peer %s should be closed", p.id)
	}
}

func TestHub_ConcurrentAccess(t *testing.T) {
	hub := NewHub()

	var wg sync.WaitGroup
	peerCount := 50
	channels := []string{"a", "b", "c", "d", "e"}

	peers := make([]*mockPeer, peerCount)
	for i := 0; i < peerCount; i++ {
		peers[i] = newMockPeer(fmt.Sprintf("peer-%d", i), channels[i%len(channels)])
	}

	for i := 0; i < peerCount; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			hub.Register(peers[idx])
		}(i)
	}
	wg.Wait()

	assert.Equal(t, peerCount, hub.Total())

	for i := 0; i < peerCount; i++ {
		wg.Add(2)
		go func(idx int) {
			defer wg.Done()
			hub.Publish(channels[idx%len(channels)], JokeDeleted(map[string]interface{}{"id": float64(idx)}))
		}(i)
		go func(idx int) {
			defer wg.Done()
			hub.Unregister(peers[idx])
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, hub.Total())
	for _, ch := range channels {
		assert.Equal(t, uint64(10), hub.Seq(ch))
	}
}

func TestHub_ConcurrentBroadcastsArriveInOrder(t *testing.T) {
	hub := NewHub()
	peer := newMockPeer("reader", ChannelJokes)
	hub.Register(peer)

	const writers, perWriter = 16, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				hub.Broadcast(ChannelJokes, JokeUpdated(map[string]interface{}{"id": float64(w)}))
			}
		}(w)
	}
	wg.Wait()

	events := peer.Events(t)
	require.Len(t, events, writers*perWriter)
	for i, ev := range events {
		if ev.Seq != uint64(i+1) {
			t.Fatalf("event %d has seq %d, want %d", i, ev.Seq, i+1)
		}
	}
}

func TestHub_UnregisterNonexistent(t *testing.T) {
	hub := NewHub()

	require.NotPanics(t, func() {
		hub.Unregister(newMockPeer("nobody", ChannelJokes))
	})
}
