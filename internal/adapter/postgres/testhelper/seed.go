package testhelper

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartmarshall/fedbridge/internal/domain"
)

// uniqueSuffix returns a short unique string for generating non-conflicting test data.
func uniqueSuffix() string {
	return uuid.New().String()[:8]
}

// SeedResponse creates a delivery record with unique source and target URLs.
// Returns the filled domain.Response.
func SeedResponse(t *testing.T, pool *pgxpool.Pool, status domain.DeliveryStatus) domain.Response {
	t.Helper()
	ctx := context.Background()

	suffix := uniqueSuffix()
	now := time.Now().UTC().Truncate(time.Microsecond)
	resp := domain.Response{
		Source:    "https://mastodon.example/activities/" + suffix,
		Target:    "https://site-" + suffix + ".example/post",
		Direction: domain.DirectionIn,
		Protocol:  domain.ProtocolActivityPub,
		Status:    status,
		SourceAS2: json.RawMessage(`{"type":"Note","content":"seed ` + suffix + `"}`),
		CreatedAt: now,
		UpdatedAt: now,
	}
	resp.ID = domain.ResponseID(resp.Source, resp.Target)

	_, err := pool.Exec(ctx,
		`INSERT INTO responses (id, source, target, direction, protocol, status, source_as2, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		resp.ID, resp.Source, resp.Target, string(resp.Direction), string(resp.Protocol),
		string(resp.Status), resp.SourceAS2, resp.CreatedAt, resp.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedResponse insert: %v", err)
	}

	return resp
}

// SeedFollower creates a follower record for the given domain with a unique
// actor. Returns the filled domain.Follower.
func SeedFollower(t *testing.T, pool *pgxpool.Pool, domainName string) domain.Follower {
	t.Helper()
	ctx := context.Background()

	suffix := uniqueSuffix()
	now := time.Now().UTC().Truncate(time.Microsecond)
	f := domain.Follower{
		Domain:     domainName,
		ActorID:    "https://mastodon.example/users/user-" + suffix,
		LastFollow: json.RawMessage(`{"type":"Follow","actor":"https://mastodon.example/users/user-` + suffix + `"}`),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	f.ID = domain.FollowerID(f.Domain, f.ActorID)

	_, err := pool.Exec(ctx,
		`INSERT INTO followers (id, domain, actor_id, last_follow, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		f.ID, f.Domain, f.ActorID, f.LastFollow, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedFollower insert: %v", err)
	}

	return f
}

// SeedMagicKey generates and stores a keypair for a unique domain.
// Returns the filled domain.MagicKey.
func SeedMagicKey(t *testing.T, pool *pgxpool.Pool) domain.MagicKey {
	t.Helper()
	ctx := context.Background()

	key, err := domain.GenerateMagicKey("site-" + uniqueSuffix() + ".example")
	if err != nil {
		t.Fatalf("testhelper: SeedMagicKey generate: %v", err)
	}
	key.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)

	_, err = pool.Exec(ctx,
		`INSERT INTO magic_keys (domain, public_pem, private_pem, created_at)
		 VALUES ($1, $2, $3, $4)`,
		key.Domain, key.PublicPEM, key.PrivatePEM, key.CreatedAt,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedMagicKey insert: %v", err)
	}

	return *key
}
