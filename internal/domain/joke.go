package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrJokeNotFound = errors.New("joke not found")
	ErrEmptyPatch   = errors.New("patch must set rating or isDeleted")
)

// Page size limits for joke listings
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Joke is a rated joke that can be soft-deleted into the trash
type Joke struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Status    string    `json:"status"`
	Rating    int       `json:"rating"`
	Tags      string    `json:"tags"`
	IsDeleted bool      `json:"isDeleted"`
	CreatedAt time.Time `json:"createdAt"`
}

// JokePatch is a partial update. Nil fields are left untouched.
type JokePatch struct {
	Rating    *int  `json:"rating,omitempty"`
	IsDeleted *bool `json:"isDeleted,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p JokePatch) IsEmpty() bool {
	return p.Rating == nil && p.IsDeleted == nil
}

// Apply returns a copy of joke with the patch applied
func (p JokePatch) Apply(joke Joke) Joke {
	if p.Rating != nil {
		joke.Rating = *p.Rating
	}
	if p.IsDeleted != nil {
		joke.IsDeleted = *p.IsDeleted
	}
	return joke
}

// RatingPatch builds a patch that sets the rating
func RatingPatch(rating int) JokePatch {
	return JokePatch{Rating: &rating}
}

// DeletedPatch builds a patch that sets the soft-delete flag
func DeletedPatch(deleted bool) JokePatch {
	return JokePatch{IsDeleted: &deleted}
}

// JokeFilter selects the active list (Deleted=false) or the trash (Deleted=true)
type JokeFilter struct {
	Deleted bool `json:"deleted"`
}

// JokePage is one page of a listing plus the total matching rows at fetch time
type JokePage struct {
	Items []*Joke `json:"items"`
	Total int64   `json:"total"`
	Page  int     `json:"page"`
	Size  int     `json:"size"`
}

// JokeStats summarizes ratings across the collection
type JokeStats struct {
	ActiveCount  int64
	DeletedCount int64
	RatingSum    int64
}

// JokeRepository defines the interface for joke data access
type JokeRepository interface {
	// List returns jokes matching filter ordered by created_at descending,
	// together with the total number of matching rows.
	List(ctx context.Context, filter JokeFilter, offset, limit int) ([]*Joke, int64, error)
	GetByID(ctx context.Context, id int64) (*Joke, error)
	Update(ctx context.Context, id int64, patch JokePatch) (*Joke, error)
	UpdateWhere(ctx context.Context, filter JokeFilter, patch JokePatch) (int64, error)
	Stats(ctx context.Context) (*JokeStats, error)
}
