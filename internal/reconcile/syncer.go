package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dafibh/jokebox/jokebox-backend/internal/domain"
	"github.com/dafibh/jokebox/jokebox-backend/internal/websocket"
	"github.com/rs/zerolog"
)

// Subscriber streams change events until the connection ends or ctx is done
type Subscriber interface {
	Subscribe(ctx context.Context, handle func(websocket.IncomingEvent)) error
}

// SyncerConfig holds configuration for the Syncer
type SyncerConfig struct {
	RetryInterval time.Duration // Pause before resubscribing after a dropped feed
}

// DefaultSyncerConfig returns sensible defaults
func DefaultSyncerConfig() SyncerConfig {
	return SyncerConfig{RetryInterval: 5 * time.Second}
}

// Syncer applies change events from other writers to the store and views
type Syncer struct {
	subscriber    Subscriber
	store         *ItemStore
	views         Views
	logger        zerolog.Logger
	retryInterval time.Duration
	mu            sync.Mutex
	stopCh        chan struct{}
	doneCh        chan struct{}
	stopOnce      *sync.Once
	running       bool
	lastSeq       uint64
}

// NewSyncer creates a new Syncer
func NewSyncer(subscriber Subscriber, store *ItemStore, views Views, logger zerolog.Logger, config SyncerConfig) *Syncer {
	if config.RetryInterval <= 0 {
		config.RetryInterval = DefaultSyncerConfig().RetryInterval
	}
	return &Syncer{
		subscriber:    subscriber,
		store:         store,
		views:         views,
		logger:        logger.With().Str("component", "syncer").Logger(),
		retryInterval: config.RetryInterval,
	}
}

// Apply folds one event into local state. Ratings with a mutation in flight
// are left to that mutation.
func (s *Syncer) Apply(ev websocket.IncomingEvent) error {
	switch ev.Type {
	case websocket.TypeJokeUpdated:
		joke, err := decodeJoke(ev)
		if err != nil {
			return err
		}
		s.store.Refresh(joke)

	case websocket.TypeJokeDeleted:
		joke, err := decodeJoke(ev)
		if err != nil {
			return err
		}
		s.store.Refresh(joke)
		if s.views.Active != nil {
			s.views.Active.Remove(joke.ID)
		}

	case websocket.TypeJokeRestored:
		joke, err := decodeJoke(ev)
		if err != nil {
			return err
		}
		s.store.Refresh(joke)
		if s.views.Trash != nil {
			s.views.Trash.Remove(joke.ID)
		}

	case websocket.TypeJokeBatchRestored:
		if s.views.Trash != nil {
			for _, id := range s.views.Trash.IDs() {
				s.store.SetDeleted(id, false)
			}
			s.views.Trash.Clear()
		}

	default:
		s.logger.Debug().Str("event_type", ev.Type).Msg("Ignoring unknown event")
	}
	return nil
}

func decodeJoke(ev websocket.IncomingEvent) (domain.Joke, error) {
	var joke domain.Joke
	if err := json.Unmarshal(ev.Payload, &joke); err != nil {
		return domain.Joke{}, fmt.Errorf("decode %s payload: %w", ev.Type, err)
	}
	if joke.ID == 0 {
		return domain.Joke{}, fmt.Errorf("decode %s payload: missing id", ev.Type)
	}
	return joke, nil
}

// Start subscribes in the background and resubscribes when the feed drops.
// A syncer whose loop has ended, by Stop or by its context, can be started again.
func (s *Syncer) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.stopOnce = &sync.Once{}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	s.logger.Info().Dur("retry_interval", s.retryInterval).Msg("Starting event sync")

	go s.run(ctx, stopCh, doneCh)
}

// Stop ends the subscription and waits for the loop to exit
func (s *Syncer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stopCh, doneCh, once := s.stopCh, s.doneCh, s.stopOnce
	s.mu.Unlock()

	once.Do(func() { close(stopCh) })
	<-doneCh
	s.logger.Info().Msg("Event sync stopped")
}

func (s *Syncer) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.resetSeq()
	handle := func(ev websocket.IncomingEvent) {
		gap, stale := s.track(ev.Seq)
		if stale {
			s.logger.Debug().Uint64("seq", ev.Seq).Str("event_type", ev.Type).Msg("Dropping out-of-order event")
			return
		}
		if gap {
			s.logger.Warn().Uint64("seq", ev.Seq).Msg("Missed events, reloading views")
			s.resync(ctx)
		}
		if err := s.Apply(ev); err != nil {
			s.logger.Warn().Err(err).Str("event_type", ev.Type).Msg("Dropping malformed event")
		}
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			// Whatever changed while disconnected was never delivered
			s.resetSeq()
			s.resync(ctx)
		}

		err := s.subscriber.Subscribe(ctx, handle)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn().Err(err).Dur("retry_in", s.retryInterval).Msg("Event feed disconnected")

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retryInterval):
		}
	}
}

// track records seq. gap reports that events were skipped before it; stale
// reports an event at or below one already applied, which must not be applied
// again. Unnumbered events and the first event of a connection are neither.
func (s *Syncer) track(seq uint64) (gap, stale bool) {
	if seq == 0 {
		return false, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSeq != 0 && seq <= s.lastSeq {
		return false, true
	}
	gap = s.lastSeq != 0 && seq > s.lastSeq+1
	s.lastSeq = seq
	return gap, false
}

func (s *Syncer) resetSeq() {
	s.mu.Lock()
	s.lastSeq = 0
	s.mu.Unlock()
}

// resync reloads the first page of every view
func (s *Syncer) resync(ctx context.Context) {
	for _, list := range []*List{s.views.Active, s.views.Trash} {
		if list == nil {
			continue
		}
		if _, err := list.Refresh(ctx); err != nil {
			s.logger.Warn().Err(err).Interface("filter", list.Filter()).Msg("Resync failed")
		}
	}
}
