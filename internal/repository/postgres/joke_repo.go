package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dafibh/jokebox/jokebox-backend/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jokeColumns = `id, original, status, rating, tags, is_deleted, created_at`

// JokeRepository implements domain.JokeRepository using PostgreSQL
type JokeRepository struct {
	pool *pgxpool.Pool
}

// NewJokeRepository creates a new JokeRepository
func NewJokeRepository(pool *pgxpool.Pool) *JokeRepository {
	return &JokeRepository{pool: pool}
}

// listTxOptions gives the count and the page one snapshot, so the page never
// holds more rows than the count reports.
var listTxOptions = pgx.TxOptions{
	IsoLevel:   pgx.RepeatableRead,
	AccessMode: pgx.ReadOnly,
}

// List returns one page of jokes and the total number of matching rows.
// Rows are ordered by created_at only; equal timestamps have no defined order.
func (r *JokeRepository) List(ctx context.Context, filter domain.JokeFilter, offset, limit int) ([]*domain.Joke, int64, error) {
	tx, err := r.pool.BeginTx(ctx, listTxOptions)
	if err != nil {
		return nil, 0, fmt.Errorf("begin list: %w", err)
	}
	defer tx.Rollback(ctx)

	var total int64
	err = tx.QueryRow(ctx,
		`SELECT count(*) FROM jokes WHERE is_deleted = $1`,
		filter.Deleted,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count jokes: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT `+jokeColumns+`
		FROM jokes
		WHERE is_deleted = $1
		ORDER BY created_at DESC
		OFFSET $2 LIMIT $3`,
		filter.Deleted, offset, limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list jokes: %w", err)
	}
	defer rows.Close()

	jokes := make([]*domain.Joke, 0, limit)
	for rows.Next() {
		joke, err := scanJoke(rows)
		if err != nil {
			return nil, 0, err
		}
		jokes = append(jokes, joke)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, fmt.Errorf("commit list: %w", err)
	}
	return jokes, total, nil
}

// GetByID retrieves a joke by its ID
func (r *JokeRepository) GetByID(ctx context.Context, id int64) (*domain.Joke, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jokeColumns+` FROM jokes WHERE id = $1`, id)
	joke, err := scanJoke(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJokeNotFound
		}
		return nil, err
	}
	return joke, nil
}

// Update applies a partial update and returns the post-write row
func (r *JokeRepository) Update(ctx context.Context, id int64, patch domain.JokePatch) (*domain.Joke, error) {
	set, args := patchAssignments(patch, 2)
	if len(set) == 0 {
		return nil, domain.ErrEmptyPatch
	}

	query := `UPDATE jokes SET ` + strings.Join(set, ", ") + ` WHERE id = $1 RETURNING ` + jokeColumns
	row := r.pool.QueryRow(ctx, query, append([]any{id}, args...)...)
	joke, err := scanJoke(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJokeNotFound
		}
		return nil, err
	}
	return joke, nil
}

// UpdateWhere applies a partial update to every joke matching filter
func (r *JokeRepository) UpdateWhere(ctx context.Context, filter domain.JokeFilter, patch domain.JokePatch) (int64, error) {
	set, args := patchAssignments(patch, 2)
	if len(set) == 0 {
		return 0, domain.ErrEmptyPatch
	}

	query := `UPDATE jokes SET ` + strings.Join(set, ", ") + ` WHERE is_deleted = $1`
	tag, err := r.pool.Exec(ctx, query, append([]any{filter.Deleted}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("bulk update jokes: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Stats returns counts and the rating sum of active jokes
func (r *JokeRepository) Stats(ctx context.Context) (*domain.JokeStats, error) {
	var stats domain.JokeStats
	err := r.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE NOT is_deleted),
			count(*) FILTER (WHERE is_deleted),
			coalesce(sum(rating) FILTER (WHERE NOT is_deleted), 0)
		FROM jokes`,
	).Scan(&stats.ActiveCount, &stats.DeletedCount, &stats.RatingSum)
	if err != nil {
		return nil, fmt.Errorf("joke stats: %w", err)
	}
	return &stats, nil
}

// patchAssignments renders SET clauses for the non-nil patch fields,
// numbering placeholders from firstArg.
func patchAssignments(patch domain.JokePatch, firstArg int) ([]string, []any) {
	var set []string
	var args []any
	if patch.Rating != nil {
		set = append(set, fmt.Sprintf("rating = $%d", firstArg+len(args)))
		args = append(args, *patch.Rating)
	}
	if patch.IsDeleted != nil {
		set = append(set, fmt.Sprintf("is_deleted = $%d", firstArg+len(args)))
		args = append(args, *patch.IsDeleted)
	}
	return set, args
}

func scanJoke(row pgx.Row) (*domain.Joke, error) {
	var joke domain.Joke
	err := row.Scan(
		&joke.ID,
		&joke.Text,
		&joke.Status,
		&joke.Rating,
		&joke.Tags,
		&joke.IsDeleted,
		&joke.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &joke, nil
}
