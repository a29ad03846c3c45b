package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dafibh/jokebox/jokebox-backend/internal/domain"
	"github.com/dafibh/jokebox/jokebox-backend/internal/websocket"
)

// MockJokeRepository is an in-memory implementation of domain.JokeRepository.
// It is safe for concurrent use.
type MockJokeRepository struct {
	mu     sync.Mutex
	Jokes  map[int64]*domain.Joke
	NextID int64

	ListFn        func(ctx context.Context, filter domain.JokeFilter, offset, limit int) ([]*domain.Joke, int64, error)
	UpdateFn      func(ctx context.Context, id int64, patch domain.JokePatch) (*domain.Joke, error)
	UpdateWhereFn func(ctx context.Context, filter domain.JokeFilter, patch domain.JokePatch) (int64, error)

	ListCalls        int
	UpdateCalls      int
	UpdateWhereCalls int
}

// NewMockJokeRepository creates a new MockJokeRepository
func NewMockJokeRepository() *MockJokeRepository {
	return &MockJokeRepository{
		Jokes:  make(map[int64]*domain.Joke),
		NextID: 1,
	}
}

// AddJoke adds a joke to the mock repository (helper for tests)
func (m *MockJokeRepository) AddJoke(joke *domain.Joke) *domain.Joke {
	m.mu.Lock()
	defer m.mu.Unlock()
	if joke.ID == 0 {
		joke.ID = m.NextID
	}
	if joke.ID >= m.NextID {
		m.NextID = joke.ID + 1
	}
	if joke.CreatedAt.IsZero() {
		joke.CreatedAt = time.Now()
	}
	stored := *joke
	m.Jokes[joke.ID] = &stored
	return joke
}

// SeedJokes adds n active jokes with strictly decreasing createdAt, so that
// listing order equals id order (1 is newest).
func (m *MockJokeRepository) SeedJokes(n int) []*domain.Joke {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	jokes := make([]*domain.Joke, 0, n)
	for i := 0; i < n; i++ {
		jokes = append(jokes, m.AddJoke(&domain.Joke{
			Text:      "joke",
			Status:    "new",
			CreatedAt: base.Add(-time.Duration(i) * time.Minute),
		}))
	}
	return jokes
}

// Snapshot returns a copy of the stored joke
func (m *MockJokeRepository) Snapshot(id int64) (domain.Joke, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	joke, ok := m.Jokes[id]
	if !ok {
		return domain.Joke{}, false
	}
	return *joke, true
}

// SetRating overwrites a stored rating, simulating a concurrent writer
func (m *MockJokeRepository) SetRating(id int64, rating int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if joke, ok := m.Jokes[id]; ok {
		joke.Rating = rating
	}
}

// UpdateCallCount returns how many times Update was called
func (m *MockJokeRepository) UpdateCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.UpdateCalls
}

// ListCallCount returns how many times List was called
func (m *MockJokeRepository) ListCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ListCalls
}

// List returns jokes matching filter ordered by createdAt descending
func (m *MockJokeRepository) List(ctx context.Context, filter domain.JokeFilter, offset, limit int) ([]*domain.Joke, int64, error) {
	m.mu.Lock()
	m.ListCalls++
	fn := m.ListFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, filter, offset, limit)
	}
	return m.ApplyList(filter, offset, limit)
}

// ApplyList performs the default in-memory listing; ListFn hooks can
// delegate to it.
func (m *MockJokeRepository) ApplyList(filter domain.JokeFilter, offset, limit int) ([]*domain.Joke, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matching := make([]*domain.Joke, 0, len(m.Jokes))
	for _, joke := range m.Jokes {
		if joke.IsDeleted == filter.Deleted {
			copied := *joke
			matching = append(matching, &copied)
		}
	}
	sort.Slice(matching, func(i, j int) bool {
		return matching[i].CreatedAt.After(matching[j].CreatedAt)
	})

	total := int64(len(matching))
	if offset >= len(matching) {
		return []*domain.Joke{}, total, nil
	}
	end := offset + limit
	if end > len(matching) {
		end = len(matching)
	}
	return matching[offset:end], total, nil
}

// GetByID retrieves a joke by ID
func (m *MockJokeRepository) GetByID(ctx context.Context, id int64) (*domain.Joke, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if joke, ok := m.Jokes[id]; ok {
		copied := *joke
		return &copied, nil
	}
	return nil, domain.ErrJokeNotFound
}

// Update applies a partial update and returns the post-write row
func (m *MockJokeRepository) Update(ctx context.Context, id int64, patch domain.JokePatch) (*domain.Joke, error) {
	m.mu.Lock()
	m.UpdateCalls++
	fn := m.UpdateFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, id, patch)
	}
	return m.ApplyUpdate(id, patch)
}

// ApplyUpdate performs the default in-memory update; UpdateFn hooks can
// delegate to it after blocking or inspecting the call.
func (m *MockJokeRepository) ApplyUpdate(id int64, patch domain.JokePatch) (*domain.Joke, error) {
	if patch.IsEmpty() {
		return nil, domain.ErrEmptyPatch
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	joke, ok := m.Jokes[id]
	if !ok {
		return nil, domain.ErrJokeNotFound
	}
	updated := patch.Apply(*joke)
	m.Jokes[id] = &updated
	copied := updated
	return &copied, nil
}

// UpdateWhere applies a partial update to every joke matching filter
func (m *MockJokeRepository) UpdateWhere(ctx context.Context, filter domain.JokeFilter, patch domain.JokePatch) (int64, error) {
	m.mu.Lock()
	m.UpdateWhereCalls++
	fn := m.UpdateWhereFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, filter, patch)
	}
	if patch.IsEmpty() {
		return 0, domain.ErrEmptyPatch
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var affected int64
	for id, joke := range m.Jokes {
		if joke.IsDeleted == filter.Deleted {
			updated := patch.Apply(*joke)
			m.Jokes[id] = &updated
			affected++
		}
	}
	return affected, nil
}

// Stats computes counts and the rating sum of active jokes
func (m *MockJokeRepository) Stats(ctx context.Context) (*domain.JokeStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats domain.JokeStats
	for _, joke := range m.Jokes {
		if joke.IsDeleted {
			stats.DeletedCount++
			continue
		}
		stats.ActiveCount++
		stats.RatingSum += int64(joke.Rating)
	}
	return &stats, nil
}

// MockJokeVersionRepository is a mock implementation of domain.JokeVersionRepository
type MockJokeVersionRepository struct {
	mu       sync.Mutex
	Versions map[int64][]*domain.JokeVersion
	ListFn   func(ctx context.Context, jokeID int64) ([]*domain.JokeVersion, error)
}

// NewMockJokeVersionRepository creates a new MockJokeVersionRepository
func NewMockJokeVersionRepository() *MockJokeVersionRepository {
	return &MockJokeVersionRepository{
		Versions: make(map[int64][]*domain.JokeVersion),
	}
}

// AddVersion adds a version to the mock repository (helper for tests)
func (m *MockJokeVersionRepository) AddVersion(version *domain.JokeVersion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Versions[version.JokeID] = append(m.Versions[version.JokeID], version)
}

// ListByJoke returns versions of a joke, newest timestamp first
func (m *MockJokeVersionRepository) ListByJoke(ctx context.Context, jokeID int64) ([]*domain.JokeVersion, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, jokeID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := make([]*domain.JokeVersion, len(m.Versions[jokeID]))
	copy(versions, m.Versions[jokeID])
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Timestamp.After(versions[j].Timestamp)
	})
	return versions, nil
}

// MockRemoteStore stands in for the HTTP record store on the client side.
// It combines the in-memory joke and version repositories.
type MockRemoteStore struct {
	*MockJokeRepository
	VersionRepo *MockJokeVersionRepository
}

// NewMockRemoteStore creates a new MockRemoteStore
func NewMockRemoteStore() *MockRemoteStore {
	return &MockRemoteStore{
		MockJokeRepository: NewMockJokeRepository(),
		VersionRepo:        NewMockJokeVersionRepository(),
	}
}

// ListVersions returns the version history of a joke
func (m *MockRemoteStore) ListVersions(ctx context.Context, jokeID int64) ([]*domain.JokeVersion, error) {
	return m.VersionRepo.ListByJoke(ctx, jokeID)
}

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu     sync.Mutex
	Events []websocket.Event
}

// Publish records the event
func (m *MockEventPublisher) Publish(channel string, event websocket.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
}

// Types returns the recorded event types in publish order
func (m *MockEventPublisher) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, len(m.Events))
	for i, e := range m.Events {
		types[i] = e.Type
	}
	return types
}

// MockPageCache is an in-memory versioned page cache
type MockPageCache struct {
	mu              sync.Mutex
	Pages           map[string]cachedPage
	CurrentVersion  int64
	InvalidateCalls int
}

type cachedPage struct {
	items []*domain.Joke
	total int64
}

// NewMockPageCache creates a new MockPageCache
func NewMockPageCache() *MockPageCache {
	return &MockPageCache{Pages: make(map[string]cachedPage)}
}

func pageKey(version int64, filter domain.JokeFilter, offset, limit int) string {
	return fmt.Sprintf("v%d:%t:%d:%d", version, filter.Deleted, offset, limit)
}

// Version returns the current cache version
func (m *MockPageCache) Version(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CurrentVersion, nil
}

// GetPage returns a cached page
func (m *MockPageCache) GetPage(ctx context.Context, version int64, filter domain.JokeFilter, offset, limit int) ([]*domain.Joke, int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page, ok := m.Pages[pageKey(version, filter, offset, limit)]
	return page.items, page.total, ok, nil
}

// SetPage stores a page under version
func (m *MockPageCache) SetPage(ctx context.Context, version int64, filter domain.JokeFilter, offset, limit int, items []*domain.Joke, total int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Pages[pageKey(version, filter, offset, limit)] = cachedPage{items: items, total: total}
	return nil
}

// InvalidateAll advances the version, as the redis cache does
func (m *MockPageCache) InvalidateAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InvalidateCalls++
	m.CurrentVersion++
	return nil
}
