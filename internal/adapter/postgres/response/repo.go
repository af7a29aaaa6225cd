// Package response implements the delivery-record repository using PostgreSQL.
// Fixed-shape queries are raw SQL; the filtered listing is built with squirrel.
package response

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartmarshall/fedbridge/internal/adapter/postgres"
	"github.com/heartmarshall/fedbridge/internal/domain"
)

// Filter narrows List results. Zero-valued fields are not applied.
type Filter struct {
	Target    string
	Status    domain.DeliveryStatus
	Direction domain.Direction
	Protocol  domain.Protocol
	Limit     int
	Offset    int
}

// Repo provides delivery-record persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new response repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const upsertSQL = `
INSERT INTO responses (id, source, target, direction, protocol, status, source_as2, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
ON CONFLICT (id) DO UPDATE SET
  direction  = EXCLUDED.direction,
  protocol   = EXCLUDED.protocol,
  status     = EXCLUDED.status,
  source_as2 = COALESCE(EXCLUDED.source_as2, responses.source_as2),
  updated_at = EXCLUDED.updated_at
RETURNING created_at`

const updateStatusSQL = `
UPDATE responses SET status = $2, updated_at = $3 WHERE id = $1`

const getByIDSQL = `
SELECT id, source, target, direction, protocol, status, source_as2, created_at, updated_at
FROM responses WHERE id = $1`

// Upsert inserts a delivery record or, when a record for the same
// (source, target) pair already exists, replaces its status and snapshot.
// The snapshot is kept when the new record carries none.
func (r *Repo) Upsert(ctx context.Context, resp *domain.Response) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	resp.UpdatedAt = now

	err := querier.QueryRow(ctx, upsertSQL,
		resp.ID, resp.Source, resp.Target,
		string(resp.Direction), string(resp.Protocol), string(resp.Status),
		resp.SourceAS2, now,
	).Scan(&resp.CreatedAt)
	if err != nil {
		return postgres.MapError(err, "response", resp.ID)
	}

	return nil
}

// UpdateStatus moves a record through its delivery lifecycle.
// Returns domain.ErrNotFound if no record with the ID exists.
func (r *Repo) UpdateStatus(ctx context.Context, id string, status domain.DeliveryStatus) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	now := time.Now().UTC().Truncate(time.Microsecond)

	tag, err := querier.Exec(ctx, updateStatusSQL, id, string(status), now)
	if err != nil {
		return postgres.MapError(err, "response", id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("response %s: %w", id, domain.ErrNotFound)
	}

	return nil
}

// GetByID returns one delivery record.
func (r *Repo) GetByID(ctx context.Context, id string) (domain.Response, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	resp, err := scanResponse(querier.QueryRow(ctx, getByIDSQL, id))
	if err != nil {
		return domain.Response{}, postgres.MapError(err, "response", id)
	}

	return resp, nil
}

// List returns delivery records matching the filter, newest first.
func (r *Repo) List(ctx context.Context, f Filter) ([]domain.Response, error) {
	builder := sq.Select("id", "source", "target", "direction", "protocol", "status",
		"source_as2", "created_at", "updated_at").
		From("responses").
		OrderBy("updated_at DESC").
		PlaceholderFormat(sq.Dollar)

	if f.Target != "" {
		builder = builder.Where(sq.Eq{"target": f.Target})
	}
	if f.Status != "" {
		builder = builder.Where(sq.Eq{"status": string(f.Status)})
	}
	if f.Direction != "" {
		builder = builder.Where(sq.Eq{"direction": string(f.Direction)})
	}
	if f.Protocol != "" {
		builder = builder.Where(sq.Eq{"protocol": string(f.Protocol)})
	}
	if f.Limit > 0 {
		builder = builder.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		builder = builder.Offset(uint64(f.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	querier := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := querier.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	responses, err := scanResponses(rows)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}

	return responses, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResponse(row rowScanner) (domain.Response, error) {
	var (
		resp      domain.Response
		direction string
		protocol  string
		status    string
	)

	if err := row.Scan(&resp.ID, &resp.Source, &resp.Target, &direction, &protocol,
		&status, &resp.SourceAS2, &resp.CreatedAt, &resp.UpdatedAt); err != nil {
		return domain.Response{}, err
	}

	resp.Direction = domain.Direction(direction)
	resp.Protocol = domain.Protocol(protocol)
	resp.Status = domain.DeliveryStatus(status)

	return resp, nil
}

func scanResponses(rows pgx.Rows) ([]domain.Response, error) {
	var responses []domain.Response
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if responses == nil {
		responses = []domain.Response{}
	}

	return responses, nil
}
