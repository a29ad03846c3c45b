package reconcile

import (
	"errors"
	"math"
	"sync"

	"github.com/dafibh/jokebox/jokebox-backend/internal/domain"
)

// ErrUnknownJoke is returned when acting on a joke no view has loaded
var ErrUnknownJoke = errors.New("joke not loaded")

type entry struct {
	joke    domain.Joke
	state   MutationState
	written uint64 // store generation of the last confirmed write
}

// ItemStore owns the single local copy of every loaded joke together with
// its mutation state. Lists and detail views hold ids and resolve through it,
// so a reconciled rating is visible everywhere at once.
//
// Every confirmed write advances the store generation. Rows read from the
// server before a write was confirmed are older than it and are ignored by
// MergeSince.
type ItemStore struct {
	mu      sync.RWMutex
	entries map[int64]*entry
	gen     uint64
}

// NewItemStore creates an empty ItemStore
func NewItemStore() *ItemStore {
	return &ItemStore{entries: make(map[int64]*entry)}
}

// Get returns a copy of the joke
func (s *ItemStore) Get(id int64) (domain.Joke, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return domain.Joke{}, false
	}
	return e.joke, true
}

// State returns the mutation state of the joke; unknown jokes are Idle
func (s *ItemStore) State(id int64) MutationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entries[id]; ok {
		return e.state
	}
	return Idle()
}

// Len returns the number of jokes held
func (s *ItemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Generation returns the current write generation. Capture it before a read
// and pass it to MergeSince.
func (s *ItemStore) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Merge records rows read from the server, inserting unknown jokes.
// A field with a mutation in flight keeps its local value; the mutation
// settles it.
func (s *ItemStore) Merge(jokes ...*domain.Joke) {
	s.MergeSince(math.MaxUint64, jokes...)
}

// MergeSince is Merge for rows read when the store was at generation since.
// Jokes written after that keep their newer local copy. It returns the ids
// that were skipped.
func (s *ItemStore) MergeSince(since uint64, jokes ...*domain.Joke) (skipped []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, joke := range jokes {
		if joke == nil {
			continue
		}
		if e, ok := s.entries[joke.ID]; ok && e.written > since {
			skipped = append(skipped, joke.ID)
			continue
		}
		s.mergeLocked(*joke)
	}
	return skipped
}

// Refresh records a change pushed by the server for a joke already held.
// It counts as a confirmed write. It reports whether the joke was known.
func (s *ItemStore) Refresh(joke domain.Joke) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[joke.ID]
	if !ok {
		return false
	}
	s.mergeLocked(joke)
	s.gen++
	e.written = s.gen
	return true
}

func (s *ItemStore) mergeLocked(joke domain.Joke) {
	e, ok := s.entries[joke.ID]
	if !ok {
		s.entries[joke.ID] = &entry{joke: joke}
		return
	}
	if e.state.Has(MutationRating) {
		joke.Rating = e.joke.Rating
	}
	if e.state.Has(MutationDeleteFlag) {
		joke.IsDeleted = e.joke.IsDeleted
	}
	e.joke = joke
}

// Adopt overwrites the joke with the authoritative post-write row
func (s *ItemStore) Adopt(joke domain.Joke) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if e, ok := s.entries[joke.ID]; ok {
		e.joke = joke
		e.written = s.gen
		return
	}
	s.entries[joke.ID] = &entry{joke: joke, written: s.gen}
}

// SetRating sets the local rating of a held joke
func (s *ItemStore) SetRating(id int64, rating int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	e.joke.Rating = rating
	return true
}

// SetDeleted records a confirmed change of the soft-delete flag of a held joke
func (s *ItemStore) SetDeleted(id int64, deleted bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	e.joke.IsDeleted = deleted
	s.gen++
	e.written = s.gen
	return true
}

// Begin marks a mutation of kind k in flight and returns the joke as it was
// before. started is false when a mutation of that kind is already pending.
func (s *ItemStore) Begin(id int64, k MutationKind) (joke domain.Joke, started bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return domain.Joke{}, false, ErrUnknownJoke
	}
	if e.state.Has(k) {
		return e.joke, false, nil
	}
	e.state = e.state.With(k)
	return e.joke, true, nil
}

// End releases a mutation of kind k
func (s *ItemStore) End(id int64, k MutationKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.state = e.state.Without(k)
	}
}
