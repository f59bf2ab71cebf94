package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/storefront-sync/internal/errs"
	"github.com/and161185/storefront-sync/internal/model"
)

// AccountRepo implements AccountRepository using PostgreSQL.
type AccountRepo struct{ db *DB }

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{db: db} }

const accountCols = `id, name, external_id, credentials, status, status_reason, last_error,
last_synced_at, last_duration_ms, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	var status string
	err := row.Scan(&a.ID, &a.Name, &a.ExternalID, &a.Credentials, &status, &a.StatusReason, &a.LastError,
		&a.LastSyncedAt, &a.LastDurationMs, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = model.Status(status)
	return &a, nil
}

// Create inserts a new account row in the offline state.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	const q = `
INSERT INTO accounts (id, name, external_id, credentials, status, is_active)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at, updated_at`
	if a.Status == "" {
		a.Status = model.StatusOffline
	}
	err := r.db.Pool.QueryRow(ctx, q, a.ID, a.Name, a.ExternalID, a.Credentials, string(a.Status), a.IsActive).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Get selects an account by ID.
func (r *AccountRepo) Get(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	a, err := scanAccount(r.db.Pool.QueryRow(ctx, `SELECT `+accountCols+` FROM accounts WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	return a, err
}

func (r *AccountRepo) list(ctx context.Context, q string, args ...any) ([]model.Account, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// List returns all accounts ordered by name.
func (r *AccountRepo) List(ctx context.Context) ([]model.Account, error) {
	return r.list(ctx, `SELECT `+accountCols+` FROM accounts ORDER BY name, id`)
}

// ListActive returns active accounts that are not currently syncing.
func (r *AccountRepo) ListActive(ctx context.Context) ([]model.Account, error) {
	return r.list(ctx, `SELECT `+accountCols+` FROM accounts WHERE is_active AND status <> 'syncing' ORDER BY last_synced_at NULLS FIRST, id`)
}

// ToggleActive flips is_active.
func (r *AccountRepo) ToggleActive(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE accounts SET is_active = NOT is_active, updated_at = now() WHERE id=$1 RETURNING is_active`
	var active bool
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, errs.ErrNotFound
		}
		return false, err
	}
	return active, nil
}

// BeginSync is a compare-and-set into syncing. A stale syncing row is taken over.
func (r *AccountRepo) BeginSync(ctx context.Context, id uuid.UUID, staleAfter time.Duration) (*model.Account, error) {
	const q = `
UPDATE accounts SET status='syncing', sync_started_at=now(), updated_at=now()
WHERE id=$1 AND (status <> 'syncing' OR sync_started_at IS NULL OR sync_started_at < now() - $2::interval)
RETURNING ` + accountCols
	a, err := scanAccount(r.db.Pool.QueryRow(ctx, q, id, staleAfter))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	var exists bool
	if err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id=$1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, errs.ErrNotFound
	}
	return nil, errs.ErrSyncInProgress
}

// FinishSync stores the terminal status of a run. last_synced_at only moves on success.
func (r *AccountRepo) FinishSync(ctx context.Context, id uuid.UUID, res model.SyncResult) error {
	const q = `
UPDATE accounts
SET status=$2, status_reason=$3, last_error=$4, last_duration_ms=$5,
    last_synced_at=COALESCE($6::timestamptz, last_synced_at), sync_started_at=NULL, updated_at=now()
WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, string(res.Status), res.Reason, res.LastError,
		res.Duration.Milliseconds(), res.SyncedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete detaches every catalog row owned by the account, purges its mirror and removes it.
func (r *AccountRepo) Delete(ctx context.Context, id uuid.UUID) (detached int64, err error) {
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		const detach = `
UPDATE catalog_items
SET external_asset_id=NULL, stock=0, owner_account_id=NULL, updated_at=now()
WHERE owner_account_id=$1`
		tag, err := tx.Exec(ctx, detach, id)
		if err != nil {
			return err
		}
		detached = tag.RowsAffected()

		if _, err = tx.Exec(ctx, `DELETE FROM account_assets WHERE account_id=$1`, id); err != nil {
			return err
		}
		tag, err = tx.Exec(ctx, `DELETE FROM accounts WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return detached, nil
}
