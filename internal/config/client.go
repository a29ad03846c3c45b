package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// ClientConfig holds configuration for the jokectl terminal client
type ClientConfig struct {
	APIURL   string
	WSURL    string
	PageSize int
	ClientID uuid.UUID
	Token    string
	Env      string
	LogLevel zerolog.Level
}

// LoadClient reads client configuration from environment variables
func LoadClient() (*ClientConfig, error) {
	_ = godotenv.Load()

	apiURL := strings.TrimRight(getEnv("JOKEBOX_API_URL", "http://localhost:8080"), "/")
	parsed, err := url.Parse(apiURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("JOKEBOX_API_URL is not a valid URL: %q", apiURL)
	}

	wsURL := getEnv("JOKEBOX_WS_URL", "")
	if wsURL == "" {
		wsURL = deriveWSURL(parsed)
	}

	pageSize, err := getEnvInt("JOKEBOX_PAGE_SIZE", 20)
	if err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		return nil, fmt.Errorf("JOKEBOX_PAGE_SIZE must be positive")
	}

	clientID := uuid.New()
	if raw := getEnv("JOKEBOX_CLIENT_ID", ""); raw != "" {
		clientID, err = uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("JOKEBOX_CLIENT_ID: %w", err)
		}
	}

	// Logs share the terminal with the console, so only warnings by default
	logLevel, err := zerolog.ParseLevel(getEnv("JOKEBOX_LOG_LEVEL", "warn"))
	if err != nil {
		return nil, fmt.Errorf("JOKEBOX_LOG_LEVEL: %w", err)
	}

	return &ClientConfig{
		APIURL:   apiURL,
		WSURL:    wsURL,
		PageSize: pageSize,
		ClientID: clientID,
		Token:    getEnv("JOKEBOX_TOKEN", ""),
		Env:      getEnv("ENV", "development"),
		LogLevel: logLevel,
	}, nil
}

// deriveWSURL maps http(s)://host/prefix onto ws(s)://host/prefix/ws
func deriveWSURL(api *url.URL) string {
	ws := *api
	if api.Scheme == "https" {
		ws.Scheme = "wss"
	} else {
		ws.Scheme = "ws"
	}
	ws.Path = strings.TrimRight(api.Path, "/") + "/ws"
	ws.RawQuery = ""
	return ws.String()
}
