// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/storefront-sync/internal/model"
)

// AccountRepository persists registered accounts and their sync status.
type AccountRepository interface {
	// Create inserts a new account. Duplicate external ids yield errs.ErrAlreadyExists.
	Create(ctx context.Context, a *model.Account) error
	// Get loads an account by ID.
	Get(ctx context.Context, id uuid.UUID) (*model.Account, error)
	// List returns every account ordered by name.
	List(ctx context.Context) ([]model.Account, error)
	// ListActive returns active accounts that are not mid-sync.
	ListActive(ctx context.Context) ([]model.Account, error)
	// ToggleActive flips is_active and returns the new value.
	ToggleActive(ctx context.Context, id uuid.UUID) (bool, error)
	// BeginSync moves the account into syncing unless another run holds it.
	// A syncing status older than staleAfter is taken over. Returns errs.ErrSyncInProgress otherwise.
	BeginSync(ctx context.Context, id uuid.UUID, staleAfter time.Duration) (*model.Account, error)
	// FinishSync records the terminal state of a run.
	FinishSync(ctx context.Context, id uuid.UUID, res model.SyncResult) error
	// Delete detaches the account's catalog rows, purges its mirrored assets and removes it.
	// Returns the number of detached rows.
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
}
