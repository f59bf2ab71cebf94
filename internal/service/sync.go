package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/storefront-sync/internal/clock"
	"github.com/and161185/storefront-sync/internal/errs"
	"github.com/and161185/storefront-sync/internal/limiter"
	"github.com/and161185/storefront-sync/internal/model"
	"github.com/and161185/storefront-sync/internal/platform"
	"github.com/and161185/storefront-sync/internal/pricing"
	"github.com/and161185/storefront-sync/internal/reconcile"
	"github.com/and161185/storefront-sync/internal/repository"
	"github.com/and161185/storefront-sync/internal/telemetry"
)

// AccessChecker gates a run on the account's visibility.
type AccessChecker interface {
	CheckAccess(ctx context.Context, externalID string) platform.AccessResult
}

// InventorySource imports an account's tradable inventory.
type InventorySource interface {
	Fetch(ctx context.Context, externalID string, creds model.Credentials, attempt int) ([]model.ExternalAsset, error)
}

// PriceResolver prices one item name. It never fails.
type PriceResolver interface {
	Resolve(ctx context.Context, name string) model.PriceQuote
}

// ResolverFactory returns the resolver for one run; each run paces on its own.
type ResolverFactory func() PriceResolver

// CatalogReconciler applies priced items to the storefront.
type CatalogReconciler interface {
	Reconcile(ctx context.Context, ownerID uuid.UUID, items []reconcile.Item) (reconcile.Report, error)
}

// CredentialStore seals and opens credential bundles.
type CredentialStore interface {
	SealCredentials(c model.Credentials) ([]byte, error)
	OpenCredentials(sealed []byte) (model.Credentials, error)
}

// SyncService runs the inventory pipeline for one account.
type SyncService interface {
	// Sync runs the pipeline. retryAttempt is the number of fetch attempts already consumed.
	// A run already in flight for the account yields errs.ErrSyncInProgress without side effects.
	Sync(ctx context.Context, accountID uuid.UUID, retryAttempt int) (model.SyncRun, error)
}

// SyncDeps are the collaborators of SyncServiceImpl. Publisher, Sink and Clock are optional.
type SyncDeps struct {
	Accounts   repository.AccountRepository
	Catalog    repository.CatalogRepository
	Mirror     repository.MirrorRepository
	Publisher  repository.CatalogPublisher
	Vault      CredentialStore
	Access     AccessChecker
	Inventory  InventorySource
	Pricing    ResolverFactory
	Reconciler CatalogReconciler
	Lock       limiter.Locker
	Sink       telemetry.Sink
	Clock      clock.Clock
	Log        *zap.Logger
}

// SyncOptions tune the pipeline.
type SyncOptions struct {
	BatchSize  int
	StaleAfter time.Duration
}

type SyncServiceImpl struct {
	d   SyncDeps
	opt SyncOptions
}

// NewSyncService constructs the orchestrator.
func NewSyncService(d SyncDeps, opt SyncOptions) *SyncServiceImpl {
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Lock == nil {
		d.Lock = limiter.NewKeyLock()
	}
	if opt.BatchSize <= 0 {
		opt.BatchSize = 50
	}
	if opt.StaleAfter <= 0 {
		opt.StaleAfter = 30 * time.Minute
	}
	return &SyncServiceImpl{d: d, opt: opt}
}

// Sync moves the account offline|online|error -> syncing -> online|error.
func (s *SyncServiceImpl) Sync(ctx context.Context, accountID uuid.UUID, retryAttempt int) (model.SyncRun, error) {
	release, ok, err := s.d.Lock.TryAcquire(ctx, accountID.String())
	if err != nil {
		return model.SyncRun{}, fmt.Errorf("acquire account lock: %w", err)
	}
	if !ok {
		return model.SyncRun{}, errs.ErrSyncInProgress
	}
	defer release()

	acc, err := s.d.Accounts.BeginSync(ctx, accountID, s.opt.StaleAfter)
	if err != nil {
		return model.SyncRun{}, err
	}

	start := s.d.Clock.Now()
	run := model.SyncRun{AccountID: accountID, Attempt: retryAttempt, StartedAt: start}
	log := s.d.Log.With(zap.String("account", accountID.String()), zap.Int("attempt", retryAttempt))
	log.Info("sync started")

	runErr := s.pipeline(ctx, acc, &run, log)

	end := s.d.Clock.Now()
	run.Duration = end.Sub(start)
	res := model.SyncResult{Duration: run.Duration}
	if runErr != nil {
		run.Outcome = model.StatusError
		run.Reason = errs.CategoryOf(runErr)
		res.Status, res.Reason, res.LastError = model.StatusError, run.Reason, runErr.Error()
		log.Warn("sync failed", zap.String("reason", run.Reason), zap.Error(runErr))
	} else {
		run.Outcome = model.StatusOnline
		res.Status = model.StatusOnline
		res.SyncedAt = &end
	}

	// The terminal status must land even when the caller's context is gone.
	if err := s.d.Accounts.FinishSync(context.WithoutCancel(ctx), accountID, res); err != nil {
		log.Error("persist sync status", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}
	if s.d.Sink != nil {
		s.d.Sink.SyncFinished(telemetry.FromRun(run, end))
	}
	return run, runErr
}

func (s *SyncServiceImpl) pipeline(ctx context.Context, acc *model.Account, run *model.SyncRun, log *zap.Logger) error {
	creds, err := s.validate(acc)
	if err != nil {
		return err
	}

	if err := s.d.Access.CheckAccess(ctx, acc.ExternalID).Err(); err != nil {
		return err
	}

	assets, err := s.d.Inventory.Fetch(ctx, acc.ExternalID, creds, run.Attempt)
	if err != nil {
		return err
	}
	run.Fetched = len(assets)

	items, quotes := s.price(ctx, assets, run)
	log.Debug("priced inventory", zap.Int("assets", len(assets)), zap.Int("names", len(items)),
		zap.String("method", string(run.PricingMethod)))

	if s.d.Mirror != nil {
		if err := s.d.Mirror.ReplaceForAccount(ctx, acc.ID, mirror(acc.ID, assets, quotes, s.d.Clock.Now()), s.opt.BatchSize); err != nil {
			return fmt.Errorf("persist mirrored assets: %w", err)
		}
	}

	rep, err := s.d.Reconciler.Reconcile(ctx, acc.ID, items)
	run.Matched = rep.Matched
	run.Unmatched = rep.Unmatched
	run.Healthy = rep.Healthy
	if err != nil {
		return fmt.Errorf("reconcile catalog: %w", err)
	}

	keep := make([]string, 0, len(assets))
	for _, a := range assets {
		keep = append(keep, a.AssetID)
	}
	detached, err := s.d.Catalog.DetachMissing(ctx, acc.ID, keep)
	if err != nil {
		return fmt.Errorf("detach vanished assets: %w", err)
	}
	if detached > 0 {
		log.Info("detached rows whose asset left the inventory", zap.Int64("rows", detached))
	}

	if s.d.Publisher != nil {
		if err := s.d.Publisher.Publish(ctx, acc.ID, run.Fetched); err != nil {
			log.Warn("catalog publication failed", zap.Error(err))
		}
	}
	return nil
}

// validate checks the account is configured well enough to run.
func (s *SyncServiceImpl) validate(acc *model.Account) (model.Credentials, error) {
	if acc.ExternalID == "" {
		return model.Credentials{}, errs.E(errs.KindConfiguration, 0, "MISSING_EXTERNAL_ID", "external id is empty", nil)
	}
	if !platform.ValidExternalID(acc.ExternalID) {
		return model.Credentials{}, errs.E(errs.KindConfiguration, 0, platform.ReasonBadExternalID, acc.ExternalID, nil)
	}
	creds, err := s.d.Vault.OpenCredentials(acc.Credentials)
	if err != nil {
		return model.Credentials{}, errs.E(errs.KindConfiguration, 0, "CREDENTIALS_UNREADABLE", "", err)
	}
	if creds.Empty() {
		return model.Credentials{}, errs.E(errs.KindConfiguration, 0, "CREDENTIALS_MISSING", "credentials are missing or cannot be decrypted", nil)
	}
	return creds, nil
}

// price resolves each distinct name once, serialized, and groups assets into reconcile items
// in first-seen order.
func (s *SyncServiceImpl) price(ctx context.Context, assets []model.ExternalAsset, run *model.SyncRun) ([]reconcile.Item, map[string]model.PriceQuote) {
	resolver := s.d.Pricing()
	quotes := make(map[string]model.PriceQuote)
	index := make(map[string]int)
	var items []reconcile.Item
	var all []model.PriceQuote

	for _, a := range assets {
		name := a.PriceName()
		if i, ok := index[name]; ok {
			items[i].Quantity++
			continue
		}
		q := resolver.Resolve(ctx, name)
		quotes[name] = q
		all = append(all, q)
		if q.Method == model.PriceFallback {
			run.Failed++
		}
		index[name] = len(items)
		items = append(items, reconcile.Item{
			Name:     name,
			AssetID:  a.AssetID,
			Quantity: 1,
			Tradable: a.Tradable,
			Price:    q.Price,
		})
	}
	run.Priced = len(all)
	run.PricingMethod = pricing.Summarize(all)
	return items, quotes
}

func mirror(accountID uuid.UUID, assets []model.ExternalAsset, quotes map[string]model.PriceQuote, at time.Time) []model.MirroredAsset {
	out := make([]model.MirroredAsset, 0, len(assets))
	for _, a := range assets {
		q := quotes[a.PriceName()]
		out = append(out, model.MirroredAsset{
			AccountID:   accountID,
			AssetID:     a.AssetID,
			ClassID:     a.ClassID,
			InstanceID:  a.InstanceID,
			Name:        a.PriceName(),
			IconURL:     a.IconURL,
			Tradable:    a.Tradable,
			Marketable:  a.Marketable,
			Price:       q.Price,
			PriceMethod: q.Method,
			SyncedAt:    at,
		})
	}
	return out
}

// IsBusy reports whether err means another run holds the account.
func IsBusy(err error) bool { return errors.Is(err, errs.ErrSyncInProgress) }
