// Package follower implements the follower repository using PostgreSQL.
package follower

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartmarshall/fedbridge/internal/adapter/postgres"
	"github.com/heartmarshall/fedbridge/internal/domain"
)

// Repo provides follower persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new follower repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const upsertSQL = `
INSERT INTO followers (id, domain, actor_id, last_follow, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (id) DO UPDATE SET
  last_follow = EXCLUDED.last_follow,
  updated_at  = EXCLUDED.updated_at
RETURNING created_at`

const getByIDSQL = `
SELECT id, domain, actor_id, last_follow, created_at, updated_at
FROM followers WHERE id = $1`

const listByDomainSQL = `
SELECT id, domain, actor_id, last_follow, created_at, updated_at
FROM followers WHERE domain = $1
ORDER BY created_at ASC`

// Upsert records a follow, replacing the snapshot when the same actor
// already follows the domain.
func (r *Repo) Upsert(ctx context.Context, f *domain.Follower) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	f.UpdatedAt = now

	err := querier.QueryRow(ctx, upsertSQL,
		f.ID, f.Domain, f.ActorID, f.LastFollow, now,
	).Scan(&f.CreatedAt)
	if err != nil {
		return postgres.MapError(err, "follower", f.ID)
	}

	return nil
}

// GetByID returns one follower record.
func (r *Repo) GetByID(ctx context.Context, id string) (domain.Follower, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	f, err := scanFollower(querier.QueryRow(ctx, getByIDSQL, id))
	if err != nil {
		return domain.Follower{}, postgres.MapError(err, "follower", id)
	}

	return f, nil
}

// ListByDomain returns all followers of a bridged site, oldest first.
func (r *Repo) ListByDomain(ctx context.Context, domainName string) ([]domain.Follower, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := querier.Query(ctx, listByDomainSQL, domainName)
	if err != nil {
		return nil, fmt.Errorf("list followers of %s: %w", domainName, err)
	}
	defer rows.Close()

	var followers []domain.Follower
	for rows.Next() {
		f, err := scanFollower(rows)
		if err != nil {
			return nil, fmt.Errorf("list followers of %s: %w", domainName, err)
		}
		followers = append(followers, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list followers of %s: %w", domainName, err)
	}

	if followers == nil {
		followers = []domain.Follower{}
	}

	return followers, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFollower(row rowScanner) (domain.Follower, error) {
	var f domain.Follower
	if err := row.Scan(&f.ID, &f.Domain, &f.ActorID, &f.LastFollow,
		&f.CreatedAt, &f.UpdatedAt); err != nil {
		return domain.Follower{}, err
	}
	return f, nil
}
