package postgres

import (
	"context"
	"encoding/json"

	"github.com/gofrs/uuid/v5"
)

// CatalogChannel is the LISTEN channel announcing refreshed catalogs.
const CatalogChannel = "catalog_refreshed"

// NotifyPublisher announces catalog refreshes with pg_notify.
type NotifyPublisher struct{ db *DB }

// NewNotifyPublisher constructs a publisher over db.
func NewNotifyPublisher(db *DB) *NotifyPublisher { return &NotifyPublisher{db: db} }

type catalogNotice struct {
	OwnerID   string `json:"ownerId"`
	ItemCount int    `json:"itemCount"`
}

// Publish sends one notification on CatalogChannel.
func (p *NotifyPublisher) Publish(ctx context.Context, ownerID uuid.UUID, itemCount int) error {
	payload, err := json.Marshal(catalogNotice{OwnerID: ownerID.String(), ItemCount: itemCount})
	if err != nil {
		return err
	}
	_, err = p.db.Pool.Exec(ctx, `SELECT pg_notify($1, $2)`, CatalogChannel, string(payload))
	return err
}
