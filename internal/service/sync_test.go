package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/and161185/storefront-sync/internal/clock"
	"github.com/and161185/storefront-sync/internal/errs"
	"github.com/and161185/storefront-sync/internal/limiter"
	"github.com/and161185/storefront-sync/internal/model"
	"github.com/and161185/storefront-sync/internal/platform"
	"github.com/and161185/storefront-sync/internal/reconcile"
	"github.com/and161185/storefront-sync/internal/telemetry"
)

const goodExternalID = "76561198000000001"

type harness struct {
	acc       *model.Account
	accounts  *fakeAccounts
	catalog   *fakeCatalog
	mirror    *fakeMirror
	publisher *fakePublisher
	access    *fakeAccess
	inventory *fakeInventory
	resolver  *fakeResolver
	sink      *recordingSink
	lock      *limiter.KeyLock
	clk       *clock.Fake
	deps      SyncDeps
}

func newHarness() *harness {
	acc := &model.Account{
		ID:          uuid.Must(uuid.NewV4()),
		Name:        "bot",
		ExternalID:  goodExternalID,
		Credentials: []byte("sealed"),
		Status:      model.StatusOffline,
		IsActive:    true,
	}
	h := &harness{
		acc:       acc,
		accounts:  newFakeAccounts(acc),
		catalog:   &fakeCatalog{},
		mirror:    &fakeMirror{},
		publisher: &fakePublisher{},
		access:    &fakeAccess{result: platform.AccessResult{Accessible: true}},
		inventory: &fakeInventory{},
		resolver:  &fakeResolver{prices: map[string]string{}},
		sink:      &recordingSink{},
		lock:      limiter.NewKeyLock(),
		clk:       clock.NewFake(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)),
	}
	h.deps = SyncDeps{
		Accounts:   h.accounts,
		Catalog:    h.catalog,
		Mirror:     h.mirror,
		Publisher:  h.publisher,
		Vault:      fakeVault{},
		Access:     h.access,
		Inventory:  h.inventory,
		Pricing:    func() PriceResolver { return h.resolver },
		Reconciler: reconcile.New(h.catalog, reconcile.DefaultConfig(), nil),
		Lock:       h.lock,
		Sink:       h.sink,
		Clock:      h.clk,
		Log:        zap.NewNop(),
	}
	return h
}

func (h *harness) service() *SyncServiceImpl {
	return NewSyncService(h.deps, SyncOptions{BatchSize: 2})
}

func asset(id, name string) model.ExternalAsset {
	return model.ExternalAsset{AssetID: id, ClassID: "c" + id, InstanceID: "0", AppID: 252490, ContextID: "2", Name: name, MarketHashName: name, Tradable: true}
}

func TestSync_Success(t *testing.T) {
	t.Parallel()
	h := newHarness()
	h.inventory.assets = []model.ExternalAsset{
		asset("1", "  Heat Seeker SAR  "),
		asset("2", "Tempered AK47"),
		asset("3", "  Heat Seeker SAR  "),
	}
	h.resolver.prices["  Heat Seeker SAR  "] = "9.57"
	sar := model.CatalogRow{ID: uuid.Must(uuid.NewV4()), Name: "Heat Seeker SAR"}
	h.catalog.rows = []model.CatalogRow{sar}
	h.catalog.detachN = 1

	run, err := h.service().Sync(context.Background(), h.acc.ID, 0)
	require.NoError(t, err)

	require.Equal(t, model.StatusOnline, run.Outcome)
	require.Equal(t, 3, run.Fetched)
	require.Equal(t, 2, run.Priced)
	require.Equal(t, 1, run.Failed)
	require.Equal(t, 1, run.Matched)
	require.Equal(t, []string{"Tempered AK47"}, run.Unmatched)
	require.Equal(t, model.PriceMixed, run.PricingMethod)

	// each distinct name priced once, in inventory order
	require.Equal(t, []string{"  Heat Seeker SAR  ", "Tempered AK47"}, h.resolver.names)

	require.Len(t, h.mirror.saved, 3)
	require.Equal(t, 2, h.mirror.batch)
	require.Equal(t, "9.57", h.mirror.saved[2].Price.StringFixed(2))

	require.Len(t, h.catalog.applied, 1)
	m := h.catalog.applied[0][0]
	require.Equal(t, sar.ID, m.LinkRow)
	require.Equal(t, "1", m.AssetID)
	require.Equal(t, 2, m.Stock)
	require.True(t, m.Price.Equal(decimal.RequireFromString("9.57")))
	require.ElementsMatch(t, []string{"1", "2", "3"}, h.catalog.keep)
	require.Equal(t, 1, h.publisher.calls)

	require.Equal(t, model.StatusOnline, h.accounts.status(h.acc.ID))
	require.Len(t, h.accounts.finished, 1)
	require.NotNil(t, h.accounts.finished[0].SyncedAt)

	require.Len(t, h.sink.events, 1)
	ev := h.sink.events[0]
	require.Equal(t, telemetry.TypeSyncCompleted, ev.Type)
	require.Equal(t, 3, ev.ItemCount)
	require.Equal(t, h.acc.ID.String(), ev.AccountID)
}

func TestSync_PrivateProfileStopsBeforeFetch(t *testing.T) {
	t.Parallel()
	h := newHarness()
	h.access.result = platform.AccessResult{Reason: platform.ReasonPrivateProfile, Detail: "privacyState=private"}

	run, err := h.service().Sync(context.Background(), h.acc.ID, 0)
	require.Error(t, err)
	require.Equal(t, 1, h.access.calls)
	require.Equal(t, 0, h.inventory.calls)

	require.Equal(t, model.StatusError, run.Outcome)
	require.Equal(t, errs.CategoryPrivacy, run.Reason)
	require.Equal(t, model.StatusError, h.accounts.status(h.acc.ID))
	require.Equal(t, errs.CategoryPrivacy, h.accounts.finished[0].Reason)
	require.Nil(t, h.accounts.finished[0].SyncedAt)
	require.Equal(t, telemetry.TypeSyncFailed, h.sink.events[0].Type)
	require.Empty(t, h.catalog.applied)
}

func TestSync_RateLimitedThreeTimesEndsInError(t *testing.T) {
	t.Parallel()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"success":1,"assets":[],"descriptions":[]}`))
	}))
	defer srv.Close()

	client := platform.NewClient(platform.Config{BaseURL: srv.URL, AppID: 252490, ContextID: "2", Timeout: time.Second}, srv.Client(), nil)
	h := newHarness()
	h.deps.Inventory = platform.NewFetcher(client, platform.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond})

	run, err := h.service().Sync(context.Background(), h.acc.ID, 0)
	require.Error(t, err)
	var exhausted *platform.FetchExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, int32(3), atomic.LoadInt32(&hits), "attempt 4 must never be issued")
	require.Equal(t, errs.CategoryRateLimit, run.Reason)
	require.Equal(t, model.StatusError, h.accounts.status(h.acc.ID))
	require.Equal(t, errs.CategoryRateLimit, h.accounts.finished[0].Reason)
}

func TestSync_RetryAttemptIsPassedToFetcher(t *testing.T) {
	t.Parallel()
	h := newHarness()
	_, err := h.service().Sync(context.Background(), h.acc.ID, 2)
	require.NoError(t, err)
	require.Equal(t, []int{2}, h.inventory.attempts)
}

func TestSync_InProgressHasNoSideEffects(t *testing.T) {
	t.Parallel()
	h := newHarness()
	release, ok, err := h.lock.TryAcquire(context.Background(), h.acc.ID.String())
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	_, err = h.service().Sync(context.Background(), h.acc.ID, 0)
	require.ErrorIs(t, err, errs.ErrSyncInProgress)
	require.Equal(t, 0, h.accounts.begins)
	require.Empty(t, h.accounts.finished)
	require.Empty(t, h.sink.events)
}

func TestSync_StatusSyncingIsExclusion(t *testing.T) {
	t.Parallel()
	h := newHarness()
	h.acc.Status = model.StatusSyncing

	_, err := h.service().Sync(context.Background(), h.acc.ID, 0)
	require.ErrorIs(t, err, errs.ErrSyncInProgress)
	require.Empty(t, h.accounts.finished)
	require.Equal(t, 0, h.access.calls)
}

func TestSync_ConfigurationErrors(t *testing.T) {
	t.Parallel()
	cases := map[string]func(h *harness){
		"bad external id":   func(h *harness) { h.acc.ExternalID = "123" },
		"empty external id": func(h *harness) { h.acc.ExternalID = "" },
		"no credentials":    func(h *harness) { h.acc.Credentials = nil },
		"unreadable":        func(h *harness) { h.deps.Vault = fakeVault{openErr: errors.New("bad json")} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := newHarness()
			mutate(h)

			run, err := h.service().Sync(context.Background(), h.acc.ID, 0)
			require.Error(t, err)
			require.Equal(t, errs.CategoryConfiguration, run.Reason)
			require.Equal(t, 0, h.access.calls)
			require.Equal(t, 0, h.inventory.calls)
		})
	}
}

func TestSync_PublisherFailureIsBestEffort(t *testing.T) {
	t.Parallel()
	h := newHarness()
	h.publisher.err = errors.New("notify failed")

	run, err := h.service().Sync(context.Background(), h.acc.ID, 0)
	require.NoError(t, err)
	require.Equal(t, model.StatusOnline, run.Outcome)
	require.Equal(t, 1, h.publisher.calls)
}

func TestSync_ReconcileFailureIsUnknownError(t *testing.T) {
	t.Parallel()
	h := newHarness()
	h.inventory.assets = []model.ExternalAsset{asset("1", "Hoodie")}
	h.deps.Reconciler = &fakeReconciler{err: errors.New("tx aborted")}

	run, err := h.service().Sync(context.Background(), h.acc.ID, 0)
	require.Error(t, err)
	require.Equal(t, errs.CategoryUnknown, run.Reason)
	require.Equal(t, 0, h.publisher.calls)
}

func TestSync_DurationFromClock(t *testing.T) {
	t.Parallel()
	h := newHarness()
	h.deps.Pricing = func() PriceResolver {
		return resolverFunc(func(ctx context.Context, name string) model.PriceQuote {
			_ = h.clk.Sleep(ctx, 1100*time.Millisecond)
			return model.PriceQuote{Name: name, Price: decimal.NewFromInt(1), Method: model.PriceMarket}
		})
	}
	h.inventory.assets = []model.ExternalAsset{asset("1", "a"), asset("2", "b")}

	run, err := h.service().Sync(context.Background(), h.acc.ID, 0)
	require.NoError(t, err)
	require.Equal(t, 2200*time.Millisecond, run.Duration)
	require.Equal(t, int64(2200), h.sink.events[0].DurationMs)
}

type resolverFunc func(ctx context.Context, name string) model.PriceQuote

func (f resolverFunc) Resolve(ctx context.Context, name string) model.PriceQuote { return f(ctx, name) }
