package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/dafibh/jokebox/jokebox-backend/internal/domain"
	"github.com/rs/zerolog"
)

// VersionSource lists the versions of one joke
type VersionSource interface {
	ListVersions(ctx context.Context, jokeID int64) ([]*domain.JokeVersion, error)
}

// History reads the version history shown in a joke's detail view
type History struct {
	source VersionSource
	logger zerolog.Logger
}

// NewHistory creates a new History
func NewHistory(source VersionSource, logger zerolog.Logger) *History {
	return &History{
		source: source,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// Load returns the versions of a joke, newest first
func (h *History) Load(ctx context.Context, jokeID int64) ([]domain.JokeVersion, error) {
	versions, err := h.source.ListVersions(ctx, jokeID)
	if err != nil {
		h.logger.Error().Err(err).Int64("joke_id", jokeID).Msg("Failed to load versions")
		return nil, fmt.Errorf("load versions of joke %d: %w", jokeID, err)
	}

	result := make([]domain.JokeVersion, 0, len(versions))
	for _, v := range versions {
		if v != nil {
			result = append(result, *v)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	return result, nil
}
