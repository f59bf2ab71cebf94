package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/storefront-sync/internal/model"
)

// CatalogRepository reads and updates storefront rows.
type CatalogRepository interface {
	// ListCatalog returns every storefront row.
	ListCatalog(ctx context.Context) ([]model.CatalogRow, error)
	// ApplyMatches writes one batch of reconciliation results in a single transaction.
	ApplyMatches(ctx context.Context, matches []model.CatalogMatch) error
	// DetachMissing clears the asset link of the owner's rows whose asset is not in keep.
	DetachMissing(ctx context.Context, ownerID uuid.UUID, keep []string) (int64, error)
}

// MirrorRepository stores the last fetched inventory of each account.
type MirrorRepository interface {
	// ReplaceForAccount swaps the account's mirror for assets, inserting in batches.
	ReplaceForAccount(ctx context.Context, accountID uuid.UUID, assets []model.MirroredAsset, batchSize int) error
	// ListForAccount returns the account's mirrored assets.
	ListForAccount(ctx context.Context, accountID uuid.UUID) ([]model.MirroredAsset, error)
}

// CatalogPublisher announces a refreshed catalog to downstream consumers.
type CatalogPublisher interface {
	Publish(ctx context.Context, ownerID uuid.UUID, itemCount int) error
}
