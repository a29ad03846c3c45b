package reconcile

import (
	"context"
	"sync"
	"testing"

	"github.com/dafibh/jokebox/jokebox-backend/internal/domain"
	"github.com/dafibh/jokebox/jokebox-backend/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testPageSize = 20

// notificationRecorder collects notifications for assertions
type notificationRecorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *notificationRecorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *notificationRecorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

func (r *notificationRecorder) Errors() []Notification {
	var out []Notification
	for _, n := range r.All() {
		if n.Level == LevelError {
			out = append(out, n)
		}
	}
	return out
}

type testEnv struct {
	remote      *testutil.MockRemoteStore
	store       *ItemStore
	active      *List
	trash       *List
	coordinator *Coordinator
	notes       *notificationRecorder
}

func newTestEnv() *testEnv {
	remote := testutil.NewMockRemoteStore()
	store := NewItemStore()
	logger := zerolog.Nop()
	active := NewList(remote, store, domain.JokeFilter{Deleted: false}, testPageSize, logger)
	trash := NewList(remote, store, domain.JokeFilter{Deleted: true}, testPageSize, logger)
	coordinator := NewCoordinator(remote, store, Views{Active: active, Trash: trash}, logger)
	notes := &notificationRecorder{}
	coordinator.SetNotifier(notes)
	return &testEnv{
		remote:      remote,
		store:       store,
		active:      active,
		trash:       trash,
		coordinator: coordinator,
		notes:       notes,
	}
}

// loadActive seeds nothing; it loads page 0 of the active list
func (env *testEnv) loadActive(t *testing.T) {
	t.Helper()
	loaded, err := env.active.Refresh(context.Background())
	require.NoError(t, err)
	require.True(t, loaded)
}

func (env *testEnv) loadTrash(t *testing.T) {
	t.Helper()
	loaded, err := env.trash.Refresh(context.Background())
	require.NoError(t, err)
	require.True(t, loaded)
}

func (env *testEnv) rating(t *testing.T, id int64) int {
	t.Helper()
	joke, ok := env.store.Get(id)
	require.True(t, ok, "joke %d should be held", id)
	return joke.Rating
}

// blockingUpdate makes the remote Update for the store block until release
// is closed. started receives once per call.
func blockingUpdate(remote *testutil.MockRemoteStore) (started chan domain.JokePatch, release chan struct{}) {
	started = make(chan domain.JokePatch, 8)
	release = make(chan struct{})
	remote.UpdateFn = func(ctx context.Context, id int64, patch domain.JokePatch) (*domain.Joke, error) {
		started <- patch
		<-release
		return remote.ApplyUpdate(id, patch)
	}
	return started, release
}
