package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/and161185/storefront-sync/internal/errs"
	"github.com/and161185/storefront-sync/internal/model"
)

const (
	pageSize = 5000
	maxPages = 20

	maxBackoff = 60 * time.Second
)

// ReasonRetryBudgetSpent marks a fetch refused because earlier runs used every allowed attempt.
const ReasonRetryBudgetSpent = "RETRY_BUDGET_SPENT"

// FetchExhaustedError is returned when every allowed attempt failed with a retryable error.
type FetchExhaustedError struct {
	Attempts int
	Last     *errs.Error
}

func (e *FetchExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("inventory fetch exhausted after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("inventory fetch exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *FetchExhaustedError) Unwrap() error {
	if e.Last == nil {
		return nil
	}
	return e.Last
}

// RetryPolicy bounds the fetch retry loop.
type RetryPolicy struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // delay after attempt n is BaseDelay * 2^n
}

// Backoff returns base * 2^attempt capped at one minute.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		return base
	}
	if attempt > 30 {
		return maxBackoff
	}
	d := base * time.Duration(1<<attempt)
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

type inventoryAsset struct {
	AppID      int    `json:"appid"`
	ContextID  string `json:"contextid"`
	AssetID    string `json:"assetid"`
	ClassID    string `json:"classid"`
	InstanceID string `json:"instanceid"`
	Amount     string `json:"amount"`
}

type inventoryDescription struct {
	AppID          int    `json:"appid"`
	ClassID        string `json:"classid"`
	InstanceID     string `json:"instanceid"`
	Name           string `json:"name"`
	MarketHashName string `json:"market_hash_name"`
	IconURL        string `json:"icon_url"`
	Tradable       int    `json:"tradable"`
	Marketable     int    `json:"marketable"`
}

type inventoryPage struct {
	Assets       []inventoryAsset       `json:"assets"`
	Descriptions []inventoryDescription `json:"descriptions"`
	MoreItems    int                    `json:"more_items"`
	LastAssetID  string                 `json:"last_assetid"`
	Total        int                    `json:"total_inventory_count"`
	Success      int                    `json:"success"`
	Error        string                 `json:"error"`
}

// Fetcher imports the full tradable inventory of an account.
type Fetcher struct {
	c      *Client
	policy RetryPolicy
}

// NewFetcher constructs an inventory fetcher.
func NewFetcher(c *Client, policy RetryPolicy) *Fetcher {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 2 * time.Second
	}
	return &Fetcher{c: c, policy: policy}
}

// Fetch downloads every page, joins assets with descriptions and keeps tradable in-scope assets.
// attempt is the number of attempts already consumed by earlier runs. Retryable failures back off
// exponentially until the attempt ceiling; non-retryable ones return immediately.
func (f *Fetcher) Fetch(ctx context.Context, externalID string, creds model.Credentials, attempt int) ([]model.ExternalAsset, error) {
	if !ValidExternalID(externalID) {
		return nil, errs.E(errs.KindConfiguration, 0, ReasonBadExternalID, externalID, nil)
	}
	if attempt < 0 {
		attempt = 0
	}
	remaining := f.policy.MaxAttempts - attempt
	if remaining <= 0 {
		return nil, &FetchExhaustedError{
			Attempts: attempt,
			Last:     errs.E(errs.KindRateLimit, 0, ReasonRetryBudgetSpent, "no attempts left", nil),
		}
	}

	next := attempt
	var backoff retry.Backoff = retry.BackoffFunc(func() (time.Duration, bool) {
		d := Backoff(f.policy.BaseDelay, next-1)
		return d, false
	})
	backoff = retry.WithMaxRetries(uint64(remaining-1), backoff)

	var (
		out  []model.ExternalAsset
		last *errs.Error
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		n := next
		next++
		assets, err := f.fetchAll(ctx, externalID, creds)
		if err == nil {
			out = assets
			return nil
		}
		ce, ok := errs.As(err)
		if !ok {
			ce = errs.E(errs.KindUnknown, 0, "", "", err)
		}
		last = ce
		f.c.log.Warn("inventory fetch failed",
			zap.String("externalId", externalID),
			zap.Int("attempt", n),
			zap.Bool("retryable", errs.IsRetryable(ce)),
			zap.Error(ce),
		)
		if errs.IsRetryable(ce) {
			return retry.RetryableError(ce)
		}
		return ce
	})
	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return nil, ctxErr
	}
	if last != nil && last.Retryable() {
		return nil, &FetchExhaustedError{Attempts: next, Last: last}
	}
	return nil, err
}

func (f *Fetcher) fetchAll(ctx context.Context, externalID string, creds model.Credentials) ([]model.ExternalAsset, error) {
	var (
		assets []inventoryAsset
		descs  = map[string]inventoryDescription{}
		start  string
	)
	for page := 0; page < maxPages; page++ {
		u := f.c.inventoryURL(externalID, pageSize)
		if start != "" {
			u += "&start_assetid=" + url.QueryEscape(start)
		}
		if creds.APIKey != "" {
			u += "&key=" + url.QueryEscape(creds.APIKey)
		}
		body, err := f.c.get(ctx, u)
		if err != nil {
			return nil, err
		}
		var p inventoryPage
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, errs.E(errs.KindServer, 0, "MALFORMED_RESPONSE", "inventory json", err)
		}
		if p.Success != 1 && p.Error != "" {
			return nil, errs.E(errs.KindBadRequest, 0, "INVENTORY_ERROR", p.Error, nil)
		}
		assets = append(assets, p.Assets...)
		for _, d := range p.Descriptions {
			descs[descKey(d.ClassID, d.InstanceID)] = d
		}
		if p.MoreItems != 1 || p.LastAssetID == "" || p.LastAssetID == start {
			break
		}
		start = p.LastAssetID
	}
	return f.join(assets, descs), nil
}

func (f *Fetcher) join(assets []inventoryAsset, descs map[string]inventoryDescription) []model.ExternalAsset {
	out := make([]model.ExternalAsset, 0, len(assets))
	for _, a := range assets {
		if a.AppID != f.c.cfg.AppID || a.ContextID != f.c.cfg.ContextID {
			continue
		}
		d, ok := descs[descKey(a.ClassID, a.InstanceID)]
		if !ok || d.Tradable != 1 {
			continue
		}
		icon := ""
		if d.IconURL != "" {
			icon = iconBase + d.IconURL
		}
		out = append(out, model.ExternalAsset{
			AssetID:        a.AssetID,
			ClassID:        a.ClassID,
			InstanceID:     a.InstanceID,
			AppID:          a.AppID,
			ContextID:      a.ContextID,
			Name:           d.Name,
			MarketHashName: d.MarketHashName,
			IconURL:        icon,
			Tradable:       true,
			Marketable:     d.Marketable == 1,
		})
	}
	return out
}

func descKey(classID, instanceID string) string {
	if instanceID == "" {
		instanceID = "0"
	}
	return classID + "_" + instanceID
}
