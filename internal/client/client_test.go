package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dafibh/jokebox/jokebox-backend/internal/domain"
	"github.com/dafibh/jokebox/jokebox-backend/internal/handler"
	"github.com/dafibh/jokebox/jokebox-backend/internal/problem"
	"github.com/dafibh/jokebox/jokebox-backend/internal/reconcile"
	"github.com/dafibh/jokebox/jokebox-backend/internal/service"
	"github.com/dafibh/jokebox/jokebox-backend/internal/testutil"
	"github.com/dafibh/jokebox/jokebox-backend/internal/websocket"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ reconcile.RemoteStore = (*Client)(nil)
var _ reconcile.VersionSource = (*Client)(nil)
var _ reconcile.Subscriber = (*Client)(nil)

type apiEnv struct {
	server   *httptest.Server
	hub      *websocket.Hub
	jokeRepo *testutil.MockJokeRepository
	versions *testutil.MockJokeVersionRepository
	client   *Client
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	jokeRepo := testutil.NewMockJokeRepository()
	versionRepo := testutil.NewMockJokeVersionRepository()
	hub := websocket.NewHub()
	jokeService := service.NewJokeService(jokeRepo, versionRepo)
	jokeService.SetEventPublisher(hub)

	e := echo.New()
	handler.RegisterRoutes(e, handler.NewJokeHandler(jokeService), handler.NewWebSocketHandler(hub, nil))
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	return &apiEnv{
		server:   server,
		hub:      hub,
		jokeRepo: jokeRepo,
		versions: versionRepo,
		client:   New(server.URL, WithWebSocketURL(wsURL)),
	}
}

func TestClient_ListPages(t *testing.T) {
	env := newAPIEnv(t)
	env.jokeRepo.SeedJokes(25)
	ctx := context.Background()

	first, total, err := env.client.List(ctx, domain.JokeFilter{}, 0, 20)
	require.NoError(t, err)
	assert.Len(t, first, 20)
	assert.Equal(t, int64(25), total)
	assert.Equal(t, int64(1), first[0].ID)
	assert.False(t, first[0].CreatedAt.IsZero(), "createdAt survives the round trip")

	second, _, err := env.client.List(ctx, domain.JokeFilter{}, 20, 20)
	require.NoError(t, err)
	assert.Len(t, second, 5)
	assert.Equal(t, int64(21), second[0].ID)
}

func TestClient_ListRejectsUnalignedOffset(t *testing.T) {
	c := New("http://127.0.0.1:1")

	_, _, err := c.List(context.Background(), domain.JokeFilter{}, 5, 20)
	assert.Error(t, err)
	_, _, err = c.List(context.Background(), domain.JokeFilter{}, 0, 0)
	assert.Error(t, err)
}

func TestClient_UpdateReturnsPostWriteRow(t *testing.T) {
	env := newAPIEnv(t)
	env.jokeRepo.AddJoke(&domain.Joke{ID: 1, Text: "why did the gopher", Rating: 2})
	ctx := context.Background()

	joke, err := env.client.Update(ctx, 1, domain.RatingPatch(3))
	require.NoError(t, err)
	assert.Equal(t, 3, joke.Rating)
	assert.Equal(t, "why did the gopher", joke.Text)

	joke, err = env.client.Update(ctx, 1, domain.DeletedPatch(true))
	require.NoError(t, err)
	assert.True(t, joke.IsDeleted)
	assert.Equal(t, 3, joke.Rating)
}

func TestClient_Errors(t *testing.T) {
	env := newAPIEnv(t)
	env.jokeRepo.AddJoke(&domain.Joke{ID: 1})
	ctx := context.Background()

	_, err := env.client.GetByID(ctx, 404)
	assert.True(t, errors.Is(err, domain.ErrJokeNotFound))

	_, err = env.client.Update(ctx, 1, domain.JokePatch{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, problem.TypeValidation, apiErr.Type)
}

func TestClient_NonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer server.Close()

	_, err := New(server.URL).GetByID(context.Background(), 1)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "502")
}

func TestClient_SendsIdentityHeaders(t *testing.T) {
	id := uuid.New()
	var gotClientID, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClientID = r.Header.Get("X-Client-ID")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 1, "rating": 1}`))
	}))
	defer server.Close()

	c := New(server.URL, WithClientID(id), WithToken("t0ken"))
	_, err := c.Update(context.Background(), 1, domain.RatingPatch(1))
	require.NoError(t, err)

	assert.Equal(t, id.String(), gotClientID)
	assert.Equal(t, "Bearer t0ken", gotAuth)
	assert.Equal(t, id, c.ClientID())
}

func TestClient_RestoreAll(t *testing.T) {
	env := newAPIEnv(t)
	env.jokeRepo.AddJoke(&domain.Joke{ID: 1, IsDeleted: true})
	env.jokeRepo.AddJoke(&domain.Joke{ID: 2, IsDeleted: true})
	ctx := context.Background()

	restored, err := env.client.UpdateWhere(ctx, domain.JokeFilter{Deleted: true}, domain.DeletedPatch(false))
	require.NoError(t, err)
	assert.Equal(t, int64(2), restored)

	_, total, err := env.client.List(ctx, domain.JokeFilter{Deleted: true}, 0, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestClient_UnsupportedBulkUpdates(t *testing.T) {
	c := New("http://127.0.0.1:1")
	ctx := context.Background()

	tests := []struct {
		name   string
		filter domain.JokeFilter
		patch  domain.JokePatch
	}{
		{"active filter", domain.JokeFilter{Deleted: false}, domain.DeletedPatch(false)},
		{"delete everything", domain.JokeFilter{Deleted: true}, domain.DeletedPatch(true)},
		{"bulk rating", domain.JokeFilter{Deleted: true}, domain.RatingPatch(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.UpdateWhere(ctx, tt.filter, tt.patch)
			assert.Equal(t, ErrUnsupportedBulkUpdate, err)
		})
	}
}

func TestClient_VersionsAndStats(t *testing.T) {
	env := newAPIEnv(t)
	env.jokeRepo.AddJoke(&domain.Joke{ID: 1, Rating: 1})
	env.jokeRepo.AddJoke(&domain.Joke{ID: 2, Rating: 2})
	base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	env.versions.AddVersion(&domain.JokeVersion{ID: 1, JokeID: 1, Text: "v1", Kind: "original", Timestamp: base})
	env.versions.AddVersion(&domain.JokeVersion{ID: 2, JokeID: 1, Text: "v2", Kind: "edit", Timestamp: base.Add(time.Hour)})
	ctx := context.Background()

	versions, err := env.client.ListVersions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "v2", versions[0].Text)
	assert.True(t, versions[0].Timestamp.Equal(base.Add(time.Hour)))

	stats, err := env.client.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.ActiveCount)
	assert.Equal(t, "1.50", stats.AverageRating.StringFixed(2))
}

func TestClient_Subscribe(t *testing.T) {
	env := newAPIEnv(t)
	env.jokeRepo.AddJoke(&domain.Joke{ID: 1, Rating: 0})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan websocket.IncomingEvent, 4)
	done := make(chan error, 1)
	go func() {
		done <- env.client.Subscribe(ctx, func(ev websocket.IncomingEvent) {
			events <- ev
		})
	}()

	require.Eventually(t, func() bool {
		return env.hub.Subscribers(websocket.ChannelJokes) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Another client votes through the API
	other := New(env.server.URL)
	_, err := other.Update(context.Background(), 1, domain.RatingPatch(5))
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, websocket.TypeJokeUpdated, ev.Type)
		assert.Contains(t, string(ev.Payload), `"rating":5`)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
}

func TestClient_SubscribeWithoutURL(t *testing.T) {
	err := New("http://127.0.0.1:1").Subscribe(context.Background(), func(websocket.IncomingEvent) {})
	assert.Equal(t, ErrNoWebSocketURL, err)
}

func TestClient_DrivesCoordinator(t *testing.T) {
	env := newAPIEnv(t)
	env.jokeRepo.SeedJokes(3)
	ctx := context.Background()

	store := reconcile.NewItemStore()
	logger := zerolog.Nop()
	active := reconcile.NewList(env.client, store, domain.JokeFilter{}, 20, logger)
	trash := reconcile.NewList(env.client, store, domain.JokeFilter{Deleted: true}, 20, logger)
	coordinator := reconcile.NewCoordinator(env.client, store, reconcile.Views{Active: active, Trash: trash}, logger)
	coordinator.SetConfirmer(reconcile.ConfirmerFunc(func(ctx context.Context, prompt string) (bool, error) {
		return true, nil
	}))

	_, err := active.Refresh(ctx)
	require.NoError(t, err)

	outcome, err := coordinator.AdjustRating(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeApplied, outcome)

	outcome, err = coordinator.Delete(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeApplied, outcome)
	assert.Equal(t, []int64{1, 2}, active.IDs())

	_, err = trash.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, trash.IDs())

	outcome, err = coordinator.RestoreAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeApplied, outcome)
	assert.Equal(t, 0, trash.Len())

	stored, _ := env.jokeRepo.Snapshot(2)
	assert.Equal(t, 1, stored.Rating)
}
