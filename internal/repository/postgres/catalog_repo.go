package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/storefront-sync/internal/model"
)

// CatalogRepo implements CatalogRepository using PostgreSQL.
type CatalogRepo struct{ db *DB }

// NewCatalogRepo constructs a catalog repository.
func NewCatalogRepo(db *DB) *CatalogRepo { return &CatalogRepo{db: db} }

// ListCatalog returns all storefront rows.
func (r *CatalogRepo) ListCatalog(ctx context.Context) ([]model.CatalogRow, error) {
	const q = `
SELECT id, owner_account_id, external_asset_id, name, price, tradable, stock, price_updated_at
FROM catalog_items
ORDER BY name, id`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CatalogRow
	for rows.Next() {
		var c model.CatalogRow
		if err = rows.Scan(&c.ID, &c.OwnerAccountID, &c.ExternalAssetID, &c.Name, &c.Price,
			&c.Tradable, &c.Stock, &c.PriceUpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// ApplyMatches writes one batch in a single transaction. A linked row takes the asset
// from any other row of the same owner first, keeping (owner, asset) unique.
// Rows owned by another account are never relinked.
func (r *CatalogRepo) ApplyMatches(ctx context.Context, matches []model.CatalogMatch) error {
	if len(matches) == 0 {
		return nil
	}
	const price = `
UPDATE catalog_items SET price=$2, price_updated_at=now(), updated_at=now()
WHERE id = ANY($1::uuid[])`
	const release = `
UPDATE catalog_items SET external_asset_id=NULL, stock=0, updated_at=now()
WHERE owner_account_id=$1 AND external_asset_id=$2 AND id<>$3`
	const link = `
UPDATE catalog_items SET owner_account_id=$2, external_asset_id=$3, stock=$4, tradable=$5, updated_at=now()
WHERE id=$1 AND (owner_account_id IS NULL OR owner_account_id=$2)`

	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		for _, m := range matches {
			if _, err := tx.Exec(ctx, price, uuidStrings(m.RowIDs), m.Price); err != nil {
				return err
			}
			if m.LinkRow == uuid.Nil {
				continue
			}
			if _, err := tx.Exec(ctx, release, m.OwnerID, m.AssetID, m.LinkRow); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, link, m.LinkRow, m.OwnerID, m.AssetID, m.Stock, m.Tradable); err != nil {
				return err
			}
		}
		return nil
	})
}

// DetachMissing clears the link on the owner's rows whose asset left the inventory.
func (r *CatalogRepo) DetachMissing(ctx context.Context, ownerID uuid.UUID, keep []string) (int64, error) {
	const q = `
UPDATE catalog_items SET external_asset_id=NULL, stock=0, updated_at=now()
WHERE owner_account_id=$1 AND external_asset_id IS NOT NULL AND NOT (external_asset_id = ANY($2::text[]))`
	if keep == nil {
		keep = []string{}
	}
	tag, err := r.db.Pool.Exec(ctx, q, ownerID, keep)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
