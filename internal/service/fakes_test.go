package service

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"

	"github.com/and161185/storefront-sync/internal/errs"
	"github.com/and161185/storefront-sync/internal/model"
	"github.com/and161185/storefront-sync/internal/platform"
	"github.com/and161185/storefront-sync/internal/reconcile"
	"github.com/and161185/storefront-sync/internal/repository"
	"github.com/and161185/storefront-sync/internal/telemetry"
)

type fakeAccounts struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]*model.Account
	finished []model.SyncResult
	begins   int

	beginErr  error
	createErr error
	listErr   error
	deleted   []uuid.UUID
}

var _ repository.AccountRepository = (*fakeAccounts)(nil)

func newFakeAccounts(accs ...*model.Account) *fakeAccounts {
	f := &fakeAccounts{byID: map[uuid.UUID]*model.Account{}}
	for _, a := range accs {
		f.byID[a.ID] = a
	}
	return f
}

func (f *fakeAccounts) Create(_ context.Context, a *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, x := range f.byID {
		if x.ExternalID == a.ExternalID {
			return errs.ErrAlreadyExists
		}
	}
	c := *a
	f.byID[a.ID] = &c
	return nil
}

func (f *fakeAccounts) Get(_ context.Context, id uuid.UUID) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (f *fakeAccounts) List(_ context.Context) ([]model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.Account
	for _, a := range f.byID {
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeAccounts) ListActive(ctx context.Context) ([]model.Account, error) {
	all, err := f.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Account
	for _, a := range all {
		if a.IsActive && a.Status != model.StatusSyncing {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAccounts) ToggleActive(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return false, errs.ErrNotFound
	}
	a.IsActive = !a.IsActive
	return a.IsActive, nil
}

func (f *fakeAccounts) BeginSync(_ context.Context, id uuid.UUID, _ time.Duration) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begins++
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	a, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if a.Status == model.StatusSyncing {
		return nil, errs.ErrSyncInProgress
	}
	a.Status = model.StatusSyncing
	c := *a
	return &c, nil
}

func (f *fakeAccounts) FinishSync(_ context.Context, id uuid.UUID, res model.SyncResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, res)
	if a, ok := f.byID[id]; ok {
		a.Status = res.Status
		a.StatusReason = res.Reason
		a.LastError = res.LastError
		if res.SyncedAt != nil {
			a.LastSyncedAt = res.SyncedAt
		}
	}
	return nil
}

func (f *fakeAccounts) Delete(_ context.Context, id uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return 0, errs.ErrNotFound
	}
	delete(f.byID, id)
	f.deleted = append(f.deleted, id)
	return 2, nil
}

func (f *fakeAccounts) status(id uuid.UUID) model.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id].Status
}

type fakeCatalog struct {
	rows     []model.CatalogRow
	applied  [][]model.CatalogMatch
	keep     []string
	detachN  int64
	applyErr error
}

func (f *fakeCatalog) ListCatalog(context.Context) ([]model.CatalogRow, error) { return f.rows, nil }

func (f *fakeCatalog) ApplyMatches(_ context.Context, m []model.CatalogMatch) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, m)
	return nil
}

func (f *fakeCatalog) DetachMissing(_ context.Context, _ uuid.UUID, keep []string) (int64, error) {
	f.keep = keep
	return f.detachN, nil
}

type fakeMirror struct {
	saved   []model.MirroredAsset
	batch   int
	saveErr error
}

func (f *fakeMirror) ReplaceForAccount(_ context.Context, _ uuid.UUID, a []model.MirroredAsset, batch int) error {
	f.saved, f.batch = a, batch
	return f.saveErr
}

func (f *fakeMirror) ListForAccount(context.Context, uuid.UUID) ([]model.MirroredAsset, error) {
	return f.saved, nil
}

type fakePublisher struct {
	calls int
	err   error
}

func (f *fakePublisher) Publish(context.Context, uuid.UUID, int) error {
	f.calls++
	return f.err
}

// fakeVault stores credentials as their login, prefixed, so tests can read them back.
type fakeVault struct{ openErr error }

func (fakeVault) SealCredentials(c model.Credentials) ([]byte, error) {
	return []byte("sealed:" + c.Login + ":" + c.APIKey), nil
}

func (v fakeVault) OpenCredentials(sealed []byte) (model.Credentials, error) {
	if v.openErr != nil {
		return model.Credentials{}, v.openErr
	}
	if len(sealed) == 0 {
		return model.Credentials{}, nil
	}
	return model.Credentials{Login: "bot", APIKey: string(sealed)}, nil
}

type fakeAccess struct {
	mu     sync.Mutex
	result platform.AccessResult
	calls  int
}

func (f *fakeAccess) CheckAccess(context.Context, string) platform.AccessResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result
}

type fakeInventory struct {
	mu       sync.Mutex
	assets   []model.ExternalAsset
	err      error
	calls    int
	attempts []int
}

func (f *fakeInventory) Fetch(_ context.Context, _ string, _ model.Credentials, attempt int) ([]model.ExternalAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.attempts = append(f.attempts, attempt)
	return f.assets, f.err
}

type fakeResolver struct {
	prices map[string]string
	names  []string
}

func (f *fakeResolver) Resolve(_ context.Context, name string) model.PriceQuote {
	f.names = append(f.names, name)
	if p, ok := f.prices[name]; ok {
		return model.PriceQuote{Name: name, Price: decimal.RequireFromString(p), Currency: "USD", Method: model.PriceMarket}
	}
	return model.PriceQuote{Name: name, Price: decimal.RequireFromString("1.50"), Currency: "USD", Method: model.PriceFallback}
}

type recordingSink struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (r *recordingSink) SyncFinished(ev telemetry.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type fakeReconciler struct {
	items []reconcile.Item
	rep   reconcile.Report
	err   error
}

func (f *fakeReconciler) Reconcile(_ context.Context, _ uuid.UUID, items []reconcile.Item) (reconcile.Report, error) {
	f.items = items
	return f.rep, f.err
}
