// Package errs contains sentinel errors and the error taxonomy used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., external id already registered).
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnauthorized indicates failed operator authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSyncInProgress indicates another sync run holds the account.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrNoMarketData indicates the market source has no usable price for an item.
	ErrNoMarketData = errors.New("no market data")
)
