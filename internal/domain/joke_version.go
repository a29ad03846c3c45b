package domain

import (
	"context"
	"time"
)

// JokeVersion is an immutable historical text of a joke
type JokeVersion struct {
	ID        int64     `json:"id"`
	JokeID    int64     `json:"jokeId"`
	Text      string    `json:"text"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// JokeVersionRepository defines the interface for joke version data access
type JokeVersionRepository interface {
	// ListByJoke returns versions of a joke, newest timestamp first
	ListByJoke(ctx context.Context, jokeID int64) ([]*JokeVersion, error)
}
