package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/storefront-sync/internal/model"
)

// MirrorRepo implements MirrorRepository using PostgreSQL.
type MirrorRepo struct{ db *DB }

// NewMirrorRepo constructs a mirrored-asset repository.
func NewMirrorRepo(db *DB) *MirrorRepo { return &MirrorRepo{db: db} }

var mirrorCols = []string{
	"account_id", "asset_id", "class_id", "instance_id", "name", "icon_url",
	"tradable", "marketable", "price", "price_method", "synced_at",
}

// ReplaceForAccount deletes the previous mirror and copies assets in chunks of batchSize.
func (r *MirrorRepo) ReplaceForAccount(ctx context.Context, accountID uuid.UUID, assets []model.MirroredAsset, batchSize int) error {
	if batchSize <= 0 {
		batchSize = len(assets)
	}
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM account_assets WHERE account_id=$1`, accountID); err != nil {
			return err
		}
		for start := 0; start < len(assets); start += batchSize {
			chunk := assets[start:min(start+batchSize, len(assets))]
			rows := make([][]any, 0, len(chunk))
			for _, a := range chunk {
				rows = append(rows, []any{
					accountID, a.AssetID, a.ClassID, a.InstanceID, a.Name, a.IconURL,
					a.Tradable, a.Marketable, a.Price, string(a.PriceMethod), a.SyncedAt,
				})
			}
			if _, err := tx.CopyFrom(ctx, pgx.Identifier{"account_assets"}, mirrorCols, pgx.CopyFromRows(rows)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListForAccount returns the account's mirror ordered by name.
func (r *MirrorRepo) ListForAccount(ctx context.Context, accountID uuid.UUID) ([]model.MirroredAsset, error) {
	const q = `
SELECT account_id, asset_id, class_id, instance_id, name, icon_url, tradable, marketable, price, price_method, synced_at
FROM account_assets WHERE account_id=$1 ORDER BY name, asset_id`
	rows, err := r.db.Pool.Query(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MirroredAsset
	for rows.Next() {
		var a model.MirroredAsset
		var method string
		if err = rows.Scan(&a.AccountID, &a.AssetID, &a.ClassID, &a.InstanceID, &a.Name, &a.IconURL,
			&a.Tradable, &a.Marketable, &a.Price, &method, &a.SyncedAt); err != nil {
			return nil, err
		}
		a.PriceMethod = model.PriceMethod(method)
		out = append(out, a)
	}
	return out, rows.Err()
}
