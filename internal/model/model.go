// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
)

// Status is the sync state of an account.
type Status string

const (
	StatusOffline Status = "offline"
	StatusSyncing Status = "syncing"
	StatusOnline  Status = "online"
	StatusError   Status = "error"
)

// Account is a registered external-platform account whose inventory is mirrored.
type Account struct {
	ID             uuid.UUID // PK
	Name           string
	ExternalID     string // SteamID64
	Credentials    []byte // sealed credential bundle, never plaintext
	Status         Status
	StatusReason   string // error category when Status==error
	LastError      string
	LastSyncedAt   *time.Time
	LastDurationMs int64
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Credentials is the plaintext bundle stored inside the vault.
type Credentials struct {
	Login          string `json:"login,omitempty"`
	Password       string `json:"password,omitempty"`
	SharedSecret   string `json:"shared_secret,omitempty"`
	IdentitySecret string `json:"identity_secret,omitempty"`
	APIKey         string `json:"api_key,omitempty"`
}

// Empty reports whether the bundle carries nothing usable.
func (c Credentials) Empty() bool {
	return c.Login == "" && c.Password == "" && c.SharedSecret == "" && c.IdentitySecret == "" && c.APIKey == ""
}

// ExternalAsset is one tradable item fetched from the external inventory. Transient.
type ExternalAsset struct {
	AssetID        string
	ClassID        string
	InstanceID     string
	AppID          int
	ContextID      string
	Name           string
	MarketHashName string
	IconURL        string
	Tradable       bool
	Marketable     bool
}

// PriceName is the name used for market lookups and reconciliation.
func (a ExternalAsset) PriceName() string {
	if a.MarketHashName != "" {
		return a.MarketHashName
	}
	return a.Name
}

// PriceMethod tells where a quote came from.
type PriceMethod string

const (
	PriceMarket   PriceMethod = "market"
	PriceCache    PriceMethod = "cache"
	PriceFallback PriceMethod = "fallback"
	PriceMixed    PriceMethod = "mixed"
)

// PriceQuote is a resolved sale price in the normalized base currency.
type PriceQuote struct {
	Name       string
	Price      decimal.Decimal
	Currency   string
	Method     PriceMethod
	ResolvedAt time.Time
}

// CatalogRow is a storefront record, optionally backed by an external asset.
type CatalogRow struct {
	ID              uuid.UUID
	OwnerAccountID  *uuid.UUID
	ExternalAssetID *string
	Name            string
	Price           decimal.Decimal
	Tradable        bool
	Stock           int
	PriceUpdatedAt  *time.Time
}

// MirroredAsset is the persisted copy of the last fetched inventory of an account.
type MirroredAsset struct {
	AccountID   uuid.UUID
	AssetID     string
	ClassID     string
	InstanceID  string
	Name        string
	IconURL     string
	Tradable    bool
	Marketable  bool
	Price       decimal.Decimal
	PriceMethod PriceMethod
	SyncedAt    time.Time
}

// CatalogMatch is one write produced by reconciliation.
type CatalogMatch struct {
	RowIDs   []uuid.UUID // rows whose price is refreshed
	LinkRow  uuid.UUID   // row linked to the asset (first matched), uuid.Nil for none
	OwnerID  uuid.UUID
	AssetID  string
	Price    decimal.Decimal
	Stock    int
	Tradable bool
}

// SyncRun summarizes one pipeline execution. Not persisted.
type SyncRun struct {
	AccountID     uuid.UUID
	Attempt       int
	StartedAt     time.Time
	Fetched       int
	Priced        int
	Matched       int
	Failed        int
	Unmatched     []string
	Outcome       Status
	Reason        string
	Duration      time.Duration
	PricingMethod PriceMethod
	Healthy       bool
}

// SyncResult is what FinishSync persists on an account.
type SyncResult struct {
	Status    Status
	Reason    string
	LastError string
	Duration  time.Duration
	SyncedAt  *time.Time // set on success only
}
