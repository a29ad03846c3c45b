package service

import (
	"context"
	"fmt"
	"math"

	"github.com/dafibh/jokebox/jokebox-backend/internal/domain"
	"github.com/dafibh/jokebox/jokebox-backend/internal/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// PageCache caches joke list pages under a version that InvalidateAll
// advances. A page is stored under the version read before the rows were.
// A nil PageCache disables caching.
type PageCache interface {
	Version(ctx context.Context) (int64, error)
	GetPage(ctx context.Context, version int64, filter domain.JokeFilter, offset, limit int) ([]*domain.Joke, int64, bool, error)
	SetPage(ctx context.Context, version int64, filter domain.JokeFilter, offset, limit int, items []*domain.Joke, total int64) error
	InvalidateAll(ctx context.Context) error
}

// JokeService handles joke listing, partial updates and version history
type JokeService struct {
	jokeRepo       domain.JokeRepository
	versionRepo    domain.JokeVersionRepository
	cache          PageCache
	eventPublisher websocket.EventPublisher
	maxPageSize    int
	sf             singleflight.Group
}

// NewJokeService creates a new JokeService
func NewJokeService(jokeRepo domain.JokeRepository, versionRepo domain.JokeVersionRepository) *JokeService {
	return &JokeService{
		jokeRepo:    jokeRepo,
		versionRepo: versionRepo,
		maxPageSize: domain.MaxPageSize,
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *JokeService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

// SetPageCache enables list page caching
func (s *JokeService) SetPageCache(cache PageCache) {
	s.cache = cache
}

// SetMaxPageSize overrides the largest page a caller may request
func (s *JokeService) SetMaxPageSize(size int) {
	if size > 0 {
		s.maxPageSize = size
	}
}

func (s *JokeService) publishEvent(event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(websocket.ChannelJokes, event)
	}
}

func (s *JokeService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	// Best effort: a stale page expires with the cache TTL
	if err := s.cache.InvalidateAll(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate joke page cache")
	}
}

// ListJokes returns page `page` (zero-based) of the active list or the trash.
// The range is [page*size, page*size+size) ordered by created_at descending.
func (s *JokeService) ListJokes(ctx context.Context, filter domain.JokeFilter, page, size int) (*domain.JokePage, error) {
	if page < 0 {
		return nil, fmt.Errorf("%w: page must not be negative", domain.ErrInvalidInput)
	}
	if size <= 0 {
		size = domain.DefaultPageSize
	}
	if size > s.maxPageSize {
		return nil, fmt.Errorf("%w: size must be at most %d", domain.ErrInvalidInput, s.maxPageSize)
	}
	if page > math.MaxInt/size {
		return nil, fmt.Errorf("%w: page is out of range", domain.ErrInvalidInput)
	}
	offset := page * size

	cached := s.cache != nil
	var version int64
	if cached {
		v, err := s.cache.Version(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Joke page cache version read failed")
			cached = false
		}
		version = v
	}
	if cached {
		items, total, ok, err := s.cache.GetPage(ctx, version, filter, offset, size)
		if err != nil {
			log.Warn().Err(err).Msg("Joke page cache read failed")
		} else if ok {
			return &domain.JokePage{Items: items, Total: total, Page: page, Size: size}, nil
		}
	}

	key := fmt.Sprintf("%d:%t:%d:%d", version, filter.Deleted, offset, size)
	v, err, _ := s.sf.Do(key, func() (interface{}, error) {
		items, total, err := s.jokeRepo.List(ctx, filter, offset, size)
		if err != nil {
			return nil, err
		}
		if cached {
			if err := s.cache.SetPage(ctx, version, filter, offset, size, items, total); err != nil {
				log.Warn().Err(err).Msg("Joke page cache write failed")
			}
		}
		return &domain.JokePage{Items: items, Total: total, Page: page, Size: size}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.JokePage), nil
}

// GetJoke retrieves a single joke
func (s *JokeService) GetJoke(ctx context.Context, id int64) (*domain.Joke, error) {
	return s.jokeRepo.GetByID(ctx, id)
}

// UpdateJoke applies a partial update and returns the post-write row.
// Subscribers receive joke.deleted / joke.restored when the soft-delete flag
// is set, joke.updated otherwise.
func (s *JokeService) UpdateJoke(ctx context.Context, id int64, patch domain.JokePatch) (*domain.Joke, error) {
	if patch.IsEmpty() {
		return nil, domain.ErrEmptyPatch
	}

	joke, err := s.jokeRepo.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)

	switch {
	case patch.IsDeleted != nil && *patch.IsDeleted:
		s.publishEvent(websocket.JokeDeleted(joke))
	case patch.IsDeleted != nil:
		s.publishEvent(websocket.JokeRestored(joke))
	default:
		s.publishEvent(websocket.JokeUpdated(joke))
	}
	return joke, nil
}

// RestoreAll clears the soft-delete flag on every joke in the trash
func (s *JokeService) RestoreAll(ctx context.Context) (int64, error) {
	restored, err := s.jokeRepo.UpdateWhere(ctx, domain.JokeFilter{Deleted: true}, domain.DeletedPatch(false))
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx)
	s.publishEvent(websocket.JokeBatchRestored(restored))
	return restored, nil
}

// ListVersions returns the version history of a joke, newest first
func (s *JokeService) ListVersions(ctx context.Context, jokeID int64) ([]*domain.JokeVersion, error) {
	if _, err := s.jokeRepo.GetByID(ctx, jokeID); err != nil {
		return nil, err
	}
	return s.versionRepo.ListByJoke(ctx, jokeID)
}

// JokeStats is the stats response with the average rating of active jokes
type JokeStats struct {
	ActiveCount   int64
	DeletedCount  int64
	AverageRating decimal.Decimal
}

// Stats summarizes the collection
func (s *JokeService) Stats(ctx context.Context) (*JokeStats, error) {
	raw, err := s.jokeRepo.Stats(ctx)
	if err != nil {
		return nil, err
	}
	avg := decimal.Zero
	if raw.ActiveCount > 0 {
		avg = decimal.NewFromInt(raw.RatingSum).Div(decimal.NewFromInt(raw.ActiveCount))
	}
	return &JokeStats{
		ActiveCount:   raw.ActiveCount,
		DeletedCount:  raw.DeletedCount,
		AverageRating: avg,
	}, nil
}
