package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dafibh/jokebox/jokebox-backend/internal/domain"
	"github.com/rs/zerolog"
)

// ErrNoConfirmer is returned by Delete when no Confirmer is configured
var ErrNoConfirmer = errors.New("no confirmer configured")

// RemoteStore is the record store the client core writes through
type RemoteStore interface {
	PageSource
	Update(ctx context.Context, id int64, patch domain.JokePatch) (*domain.Joke, error)
	UpdateWhere(ctx context.Context, filter domain.JokeFilter, patch domain.JokePatch) (int64, error)
}

// Outcome reports what a coordinator call did
type Outcome int

const (
	// OutcomeApplied means the remote write succeeded and local state follows it
	OutcomeApplied Outcome = iota
	// OutcomeSkipped means a mutation of the same kind was already in flight
	OutcomeSkipped
	// OutcomeFailed means the remote write failed and local state was restored
	OutcomeFailed
	// OutcomeCancelled means the user declined the confirmation
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Views are the lists the coordinator keeps in step with its writes.
// Either may be nil.
type Views struct {
	Active *List
	Trash  *List
}

// User-visible messages
const (
	msgRatingFailed     = "Couldn't update the rating. Please try again."
	msgDeleteFailed     = "Couldn't move the joke to the trash. Please try again."
	msgRestoreFailed    = "Couldn't restore the joke. Please try again later."
	msgRestoreAllFailed = "Couldn't restore the jokes. Please try again later."
	msgRestored         = "Joke restored."
	msgRestoredAll      = "All jokes restored."
	promptDelete        = "Move this joke to the trash?"
)

// Coordinator applies rating and soft-delete mutations against the remote
// store. Rating changes are shown immediately and rolled back on failure;
// soft-delete changes are applied to the views only once the store confirms.
// Each joke admits one in-flight mutation per kind; overlapping calls are
// skipped, never queued.
type Coordinator struct {
	remote    RemoteStore
	store     *ItemStore
	views     Views
	notifier  Notifier
	confirmer Confirmer
	logger    zerolog.Logger

	mu           sync.Mutex
	restoringAll bool
}

// NewCoordinator creates a new Coordinator
func NewCoordinator(remote RemoteStore, store *ItemStore, views Views, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		remote:   remote,
		store:    store,
		views:    views,
		notifier: discardNotifier{},
		logger:   logger.With().Str("component", "coordinator").Logger(),
	}
}

// SetNotifier sets where failure and success messages go
func (c *Coordinator) SetNotifier(n Notifier) {
	if n == nil {
		n = discardNotifier{}
	}
	c.notifier = n
}

// SetConfirmer sets the prompt used before deleting
func (c *Coordinator) SetConfirmer(confirmer Confirmer) {
	c.confirmer = confirmer
}

// State returns the mutation state of a joke
func (c *Coordinator) State(id int64) MutationState {
	return c.store.State(id)
}

// AdjustRating adds delta to the joke's rating. The new value is published to
// the store before the remote call; on success the returned row is adopted,
// on failure the previous rating is restored and one notification is raised.
func (c *Coordinator) AdjustRating(ctx context.Context, id int64, delta int) (Outcome, error) {
	before, started, err := c.store.Begin(id, MutationRating)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("adjust rating of joke %d: %w", id, err)
	}
	if !started {
		c.logger.Debug().Int64("joke_id", id).Msg("Rating change ignored, one already in flight")
		return OutcomeSkipped, nil
	}
	defer c.store.End(id, MutationRating)

	tentative := before.Rating + delta
	c.store.SetRating(id, tentative)

	updated, err := c.remote.Update(ctx, id, domain.RatingPatch(tentative))
	if err != nil {
		c.store.SetRating(id, before.Rating)
		c.logger.Error().
			Err(err).
			Int64("joke_id", id).
			Int("rating", before.Rating).
			Int("tentative", tentative).
			Msg("Failed to update rating")
		c.notifier.Notify(Notification{Level: LevelError, Message: msgRatingFailed, JokeID: id, Retryable: true})
		return OutcomeFailed, nil
	}

	if updated.Rating != tentative {
		c.logger.Debug().
			Int64("joke_id", id).
			Int("tentative", tentative).
			Int("server", updated.Rating).
			Msg("Adopting server rating")
	}
	c.store.Adopt(*updated)
	return OutcomeApplied, nil
}

// SetDeleted writes the soft-delete flag. Nothing changes locally until the
// store confirms: deleting then drops the joke from the active view, restoring
// drops it from the trash view. A failed write leaves the joke visible.
func (c *Coordinator) SetDeleted(ctx context.Context, id int64, deleted bool) (Outcome, error) {
	_, started, err := c.store.Begin(id, MutationDeleteFlag)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("set deleted flag of joke %d: %w", id, err)
	}
	if !started {
		c.logger.Debug().Int64("joke_id", id).Msg("Delete flag change ignored, one already in flight")
		return OutcomeSkipped, nil
	}
	defer c.store.End(id, MutationDeleteFlag)

	updated, err := c.remote.Update(ctx, id, domain.DeletedPatch(deleted))
	if err != nil {
		msg := msgRestoreFailed
		if deleted {
			msg = msgDeleteFailed
		}
		c.logger.Error().Err(err).Int64("joke_id", id).Bool("is_deleted", deleted).Msg("Failed to set delete flag")
		c.notifier.Notify(Notification{Level: LevelError, Message: msg, JokeID: id, Retryable: true})
		return OutcomeFailed, nil
	}

	c.store.Adopt(*updated)
	if deleted {
		if c.views.Active != nil {
			c.views.Active.Remove(id)
		}
	} else {
		if c.views.Trash != nil {
			c.views.Trash.Remove(id)
		}
		c.notifier.Notify(Notification{Level: LevelInfo, Message: msgRestored, JokeID: id})
	}

	c.logger.Info().Int64("joke_id", id).Bool("is_deleted", deleted).Msg("Delete flag updated")
	return OutcomeApplied, nil
}

// Delete asks for confirmation and soft-deletes the joke if the user proceeds
func (c *Coordinator) Delete(ctx context.Context, id int64) (Outcome, error) {
	if _, ok := c.store.Get(id); !ok {
		return OutcomeSkipped, fmt.Errorf("delete joke %d: %w", id, ErrUnknownJoke)
	}
	if c.store.State(id).Has(MutationDeleteFlag) {
		return OutcomeSkipped, nil
	}
	if c.confirmer == nil {
		return OutcomeCancelled, ErrNoConfirmer
	}

	proceed, err := c.confirmer.Confirm(ctx, promptDelete)
	if err != nil {
		return OutcomeCancelled, fmt.Errorf("confirm delete of joke %d: %w", id, err)
	}
	if !proceed {
		return OutcomeCancelled, nil
	}
	return c.SetDeleted(ctx, id, true)
}

// Restore takes the joke out of the trash
func (c *Coordinator) Restore(ctx context.Context, id int64) (Outcome, error) {
	return c.SetDeleted(ctx, id, false)
}

// RestoreAll clears the soft-delete flag of every trashed joke in one remote
// call and empties the trash view on success.
func (c *Coordinator) RestoreAll(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if c.restoringAll {
		c.mu.Unlock()
		return OutcomeSkipped, nil
	}
	c.restoringAll = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.restoringAll = false
		c.mu.Unlock()
	}()

	restored, err := c.remote.UpdateWhere(ctx, domain.JokeFilter{Deleted: true}, domain.DeletedPatch(false))
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to restore all jokes")
		c.notifier.Notify(Notification{Level: LevelError, Message: msgRestoreAllFailed, Retryable: true})
		return OutcomeFailed, nil
	}

	if c.views.Trash != nil {
		for _, id := range c.views.Trash.IDs() {
			c.store.SetDeleted(id, false)
		}
		c.views.Trash.Clear()
	}
	c.notifier.Notify(Notification{Level: LevelInfo, Message: msgRestoredAll})

	c.logger.Info().Int64("restored", restored).Msg("Trash restored")
	return OutcomeApplied, nil
}
