// Package magickey implements the per-domain keypair repository using
// PostgreSQL. Creation uses INSERT ... ON CONFLICT DO NOTHING so concurrent
// first requests for a domain settle on one keypair: the first writer wins
// and everyone re-reads.
package magickey

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartmarshall/fedbridge/internal/adapter/postgres"
	"github.com/heartmarshall/fedbridge/internal/domain"
)

// Repo provides keypair persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new magic key repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const getSQL = `
SELECT domain, public_pem, private_pem, created_at
FROM magic_keys WHERE domain = $1`

const insertSQL = `
INSERT INTO magic_keys (domain, public_pem, private_pem)
VALUES ($1, $2, $3)
ON CONFLICT (domain) DO NOTHING`

// Get returns the keypair for a domain.
// Returns domain.ErrNotFound when none has been created yet.
func (r *Repo) Get(ctx context.Context, domainName string) (domain.MagicKey, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	var key domain.MagicKey
	err := querier.QueryRow(ctx, getSQL, domainName).
		Scan(&key.Domain, &key.PublicPEM, &key.PrivatePEM, &key.CreatedAt)
	if err != nil {
		return domain.MagicKey{}, postgres.MapError(err, "magic_key", domainName)
	}

	return key, nil
}

// Insert stores a keypair, silently losing to a concurrent writer for the
// same domain. Callers must Get afterwards to observe the winning keypair.
func (r *Repo) Insert(ctx context.Context, key *domain.MagicKey) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	_, err := querier.Exec(ctx, insertSQL, key.Domain, key.PublicPEM, key.PrivatePEM)
	if err != nil {
		return postgres.MapError(err, "magic_key", key.Domain)
	}

	return nil
}
