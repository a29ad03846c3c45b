package postgres

import (
	"context"
	"fmt"

	"github.com/dafibh/jokebox/jokebox-backend/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// JokeVersionRepository implements domain.JokeVersionRepository using PostgreSQL
type JokeVersionRepository struct {
	pool *pgxpool.Pool
}

// NewJokeVersionRepository creates a new JokeVersionRepository
func NewJokeVersionRepository(pool *pgxpool.Pool) *JokeVersionRepository {
	return &JokeVersionRepository{pool: pool}
}

// ListByJoke retrieves all versions of a joke, newest first
func (r *JokeVersionRepository) ListByJoke(ctx context.Context, jokeID int64) ([]*domain.JokeVersion, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, joke_id, text, type, timestamp
		FROM joke_versions
		WHERE joke_id = $1
		ORDER BY timestamp DESC`,
		jokeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list joke versions: %w", err)
	}
	defer rows.Close()

	versions := []*domain.JokeVersion{}
	for rows.Next() {
		var v domain.JokeVersion
		if err := rows.Scan(&v.ID, &v.JokeID, &v.Text, &v.Kind, &v.Timestamp); err != nil {
			return nil, err
		}
		versions = append(versions, &v)
	}
	return versions, rows.Err()
}
