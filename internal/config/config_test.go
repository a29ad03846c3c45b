package config

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/jokebox")
	t.Setenv("AUTH0_DOMAIN", "")
	t.Setenv("AUTH0_AUDIENCE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, 60, cfg.RateLimitPerMinute)
	assert.Equal(t, 10, cfg.RateLimitBurst)
	assert.Equal(t, 100, cfg.MaxPageSize)
	assert.False(t, cfg.AuthEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db/jokebox")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CACHE_TTL", "2m")
	t.Setenv("CORS_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("AUTH0_DOMAIN", "jokebox.eu.auth0.com")
	t.Setenv("AUTH0_AUDIENCE", "https://api.jokebox.app")
	t.Setenv("MAX_PAGE_SIZE", "50")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, 50, cfg.MaxPageSize)
	assert.True(t, cfg.AuthEnabled())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing database url", map[string]string{"DATABASE_URL": ""}},
		{"half auth config", map[string]string{"AUTH0_DOMAIN": "x.auth0.com", "AUTH0_AUDIENCE": ""}},
		{"bad ttl", map[string]string{"CACHE_TTL": "soon"}},
		{"bad rate limit", map[string]string{"RATE_LIMIT_PER_MINUTE": "lots"}},
		{"zero page size", map[string]string{"MAX_PAGE_SIZE": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/jokebox")
			t.Setenv("AUTH0_DOMAIN", "")
			t.Setenv("AUTH0_AUDIENCE", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadClient_DerivesWebSocketURL(t *testing.T) {
	tests := []struct {
		apiURL string
		wsURL  string
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws"},
		{"https://api.jokebox.app/", "wss://api.jokebox.app/ws"},
		{"https://jokebox.app/backend", "wss://jokebox.app/backend/ws"},
	}

	for _, tt := range tests {
		t.Run(tt.apiURL, func(t *testing.T) {
			t.Setenv("JOKEBOX_API_URL", tt.apiURL)
			t.Setenv("JOKEBOX_WS_URL", "")
			t.Setenv("JOKEBOX_PAGE_SIZE", "")
			t.Setenv("JOKEBOX_LOG_LEVEL", "")
			t.Setenv("JOKEBOX_CLIENT_ID", "")

			cfg, err := LoadClient()
			require.NoError(t, err)
			assert.Equal(t, tt.wsURL, cfg.WSURL)
			assert.Equal(t, 20, cfg.PageSize)
			assert.NotEqual(t, uuid.Nil, cfg.ClientID)
		})
	}
}

func TestLoadClient_ExplicitValues(t *testing.T) {
	id := uuid.New()
	t.Setenv("JOKEBOX_API_URL", "http://localhost:9000")
	t.Setenv("JOKEBOX_WS_URL", "ws://feed.local/ws")
	t.Setenv("JOKEBOX_PAGE_SIZE", "5")
	t.Setenv("JOKEBOX_CLIENT_ID", id.String())
	t.Setenv("JOKEBOX_TOKEN", "secret")
	t.Setenv("JOKEBOX_LOG_LEVEL", "debug")

	cfg, err := LoadClient()
	require.NoError(t, err)

	assert.Equal(t, "ws://feed.local/ws", cfg.WSURL)
	assert.Equal(t, 5, cfg.PageSize)
	assert.Equal(t, id, cfg.ClientID)
	assert.Equal(t, "secret", cfg.Token)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
}

func TestLoadClient_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad client id", map[string]string{"JOKEBOX_CLIENT_ID": "nope"}},
		{"negative page size", map[string]string{"JOKEBOX_PAGE_SIZE": "-2"}},
		{"no host", map[string]string{"JOKEBOX_API_URL": "localhost"}},
		{"bad log level", map[string]string{"JOKEBOX_LOG_LEVEL": "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JOKEBOX_API_URL", "http://localhost:8080")
			t.Setenv("JOKEBOX_CLIENT_ID", "")
			t.Setenv("JOKEBOX_PAGE_SIZE", "")
			t.Setenv("JOKEBOX_LOG_LEVEL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadClient()
			assert.Error(t, err)
		})
	}
}
