package reconcile

import (
	"context"
	"errors"
	"sync"

	"github.com/dafibh/jokebox/jokebox-backend/internal/domain"
	"github.com/rs/zerolog"
)

// ErrInvalidPage is returned for a negative page index
var ErrInvalidPage = errors.New("page index must not be negative")

// PageSource reads one range of jokes plus the exact count of the filter
type PageSource interface {
	List(ctx context.Context, filter domain.JokeFilter, offset, limit int) ([]*domain.Joke, int64, error)
}

// List is one paginated view over the jokes, either the active list or the
// trash. It holds ids in server order and resolves them through the store.
// Only one page load runs at a time; requests that overlap it are dropped.
type List struct {
	source   PageSource
	store    *ItemStore
	filter   domain.JokeFilter
	pageSize int
	logger   zerolog.Logger

	mu        sync.Mutex
	ids       []int64
	held      map[int64]struct{}
	pageIndex int
	fetched   int
	total     int64
	hasMore   bool
	fetching  bool

	// Set while a load is in flight: ids removed and whether the view was
	// cleared since it started. Its rows predate those changes.
	removedDuringLoad map[int64]struct{}
	clearedDuringLoad bool
}

// NewList creates a list over the jokes matching filter
func NewList(source PageSource, store *ItemStore, filter domain.JokeFilter, pageSize int, logger zerolog.Logger) *List {
	if pageSize <= 0 {
		pageSize = domain.DefaultPageSize
	}
	name := "active_list"
	if filter.Deleted {
		name = "trash_list"
	}
	return &List{
		source:   source,
		store:    store,
		filter:   filter,
		pageSize: pageSize,
		logger:   logger.With().Str("component", name).Logger(),
		held:     make(map[int64]struct{}),
		hasMore:  true,
	}
}

// LoadPage fetches rows [pageIndex*size, pageIndex*size+size). Page 0
// replaces everything held; later pages append. loaded is false when the
// request was dropped because another load is in flight, or when the view was
// cleared before the rows arrived. On error the held state is left untouched.
func (l *List) LoadPage(ctx context.Context, pageIndex int) (loaded bool, err error) {
	if pageIndex < 0 {
		return false, ErrInvalidPage
	}

	l.mu.Lock()
	if l.fetching {
		l.mu.Unlock()
		l.logger.Debug().Int("page", pageIndex).Msg("Page load dropped, another load in flight")
		return false, nil
	}
	l.fetching = true
	l.removedDuringLoad = make(map[int64]struct{})
	l.clearedDuringLoad = false
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.fetching = false
		l.removedDuringLoad = nil
		l.clearedDuringLoad = false
		l.mu.Unlock()
	}()

	since := l.store.Generation()
	offset := pageIndex * l.pageSize
	jokes, total, err := l.source.List(ctx, l.filter, offset, l.pageSize)
	if err != nil {
		l.logger.Error().Err(err).Int("page", pageIndex).Msg("Failed to load page")
		return false, err
	}

	if skipped := l.store.MergeSince(since, jokes...); len(skipped) > 0 {
		l.logger.Debug().Interface("joke_ids", skipped).Msg("Kept newer local copies over loaded rows")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.clearedDuringLoad {
		l.logger.Debug().Int("page", pageIndex).Msg("Page load discarded, view cleared meanwhile")
		return false, nil
	}

	if pageIndex == 0 {
		l.ids = l.ids[:0]
		l.held = make(map[int64]struct{}, len(jokes))
	}
	for _, joke := range jokes {
		if _, dup := l.held[joke.ID]; dup {
			// Rows shifted under us between pages
			continue
		}
		if _, gone := l.removedDuringLoad[joke.ID]; gone {
			continue
		}
		l.held[joke.ID] = struct{}{}
		l.ids = append(l.ids, joke.ID)
	}
	l.fetched = offset + len(jokes)
	l.total = total
	l.pageIndex = pageIndex + 1
	l.hasMore = int64(l.fetched) < total

	l.logger.Debug().
		Int("page", pageIndex).
		Int("rows", len(jokes)).
		Int64("total", total).
		Bool("has_more", l.hasMore).
		Msg("Page loaded")

	return true, nil
}

// LoadMore loads the next page if the server reported more rows
func (l *List) LoadMore(ctx context.Context) (bool, error) {
	l.mu.Lock()
	if !l.hasMore {
		l.mu.Unlock()
		return false, nil
	}
	next := l.pageIndex
	l.mu.Unlock()
	return l.LoadPage(ctx, next)
}

// Refresh handles the "became active again" signal: it discards every held
// page and cursor and reloads page 0.
func (l *List) Refresh(ctx context.Context) (bool, error) {
	return l.LoadPage(ctx, 0)
}

// Remove drops one joke from the view without refetching.
// The page cursor is left alone. A load in flight will not bring it back.
func (l *List) Remove(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fetching {
		l.removedDuringLoad[id] = struct{}{}
	}
	if _, ok := l.held[id]; !ok {
		return false
	}
	delete(l.held, id)
	for i, held := range l.ids {
		if held == id {
			l.ids = append(l.ids[:i], l.ids[i+1:]...)
			break
		}
	}
	return true
}

// Clear empties the view, as after restoring the whole trash
func (l *List) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fetching {
		l.clearedDuringLoad = true
	}
	l.ids = nil
	l.held = make(map[int64]struct{})
	l.pageIndex = 0
	l.fetched = 0
	l.total = 0
	l.hasMore = false
}

// IDs returns the held ids in display order
func (l *List) IDs() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]int64, len(l.ids))
	copy(ids, l.ids)
	return ids
}

// Items resolves the held ids through the store
func (l *List) Items() []domain.Joke {
	ids := l.IDs()
	jokes := make([]domain.Joke, 0, len(ids))
	for _, id := range ids {
		if joke, ok := l.store.Get(id); ok {
			jokes = append(jokes, joke)
		}
	}
	return jokes
}

// Contains reports whether the view holds id
func (l *List) Contains(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[id]
	return ok
}

// Len returns the number of held jokes
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ids)
}

// HasMore reports whether the last fetch saw fewer rows than the total
func (l *List) HasMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasMore
}

// IsFetching reports whether a page load is in flight
func (l *List) IsFetching() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fetching
}

// PageIndex returns the next page LoadMore will request
func (l *List) PageIndex() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pageIndex
}

// Total returns the row count reported by the most recent fetch
func (l *List) Total() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Filter returns the fixed filter of the view
func (l *List) Filter() domain.JokeFilter {
	return l.filter
}
