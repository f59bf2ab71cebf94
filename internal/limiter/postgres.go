package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is a PostgreSQL-backed lease table so runs in different processes exclude each other.
// Leases expire after ttl, which frees accounts left behind by a crashed process.
type PG struct {
	pool   pgxQuerier
	ttl    time.Duration
	holder string
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed lease locker.
func NewPG(pool *pgxpool.Pool, ttl time.Duration) *PG {
	return NewPGWithQuerier(pool, ttl)
}

// NewPGWithQuerier constructs a PostgreSQL-backed lease locker over any querier.
func NewPGWithQuerier(q pgxQuerier, ttl time.Duration) *PG {
	return &PG{pool: q, ttl: ttl, holder: uuid.Must(uuid.NewV4()).String()}
}

// TryAcquire inserts or takes over an expired lease for key.
func (l *PG) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	const q = `
INSERT INTO sync_leases (account_id, holder, expires_at)
VALUES ($1, $2, now() + $3::interval)
ON CONFLICT (account_id) DO UPDATE
SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
WHERE sync_leases.expires_at < now()
RETURNING holder`
	var got string
	err := l.pool.QueryRow(ctx, q, key, l.holder, l.ttl).Scan(&got)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return func() { l.release(key) }, true, nil
}

// release drops the lease; it runs detached from the caller's context so a cancelled run still frees it.
func (l *PG) release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	const q = `DELETE FROM sync_leases WHERE account_id=$1 AND holder=$2`
	_, _ = l.pool.Exec(ctx, q, key, l.holder)
}
