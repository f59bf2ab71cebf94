package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/storefront-sync/internal/errs"
	"github.com/and161185/storefront-sync/internal/limiter"
	"github.com/and161185/storefront-sync/internal/model"
	"github.com/and161185/storefront-sync/internal/platform"
	"github.com/and161185/storefront-sync/internal/repository"
)

// Control-surface actions.
const (
	ActionTestLogin    = "test_login"
	ActionCreateBot    = "create_bot"
	ActionSyncNow      = "sync_inventory"
	ActionToggleStatus = "toggle_status"
	ActionDeleteBot    = "delete_bot"
	ActionListBots     = "list_bots"
)

// Request is one control-surface call. Fields beyond Action depend on the action.
type Request struct {
	Action       string
	AccountID    string
	Name         string
	ExternalID   string
	Credentials  model.Credentials
	RetryAttempt int
}

// Response is the uniform reply. Failures never surface as transport errors.
type Response struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Dispatcher routes control-surface requests to the services.
type Dispatcher struct {
	accounts repository.AccountRepository
	mirror   repository.MirrorRepository
	vault    CredentialStore
	access   AccessChecker
	sync     SyncService
	lock     limiter.Locker
	log      *zap.Logger
}

// NewDispatcher wires a dispatcher. lock must be the one the SyncService uses.
func NewDispatcher(accounts repository.AccountRepository, mirror repository.MirrorRepository, vault CredentialStore,
	access AccessChecker, sync SyncService, lock limiter.Locker, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{accounts: accounts, mirror: mirror, vault: vault, access: access, sync: sync, lock: lock, log: log}
}

// Dispatch executes req. A panic inside an action is reported as a failed response.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("dispatch panic", zap.String("action", req.Action), zap.Any("panic", r), zap.Stack("stack"))
			resp = Response{Error: "internal error", Details: map[string]any{"category": errs.CategoryUnknown}}
		}
	}()

	switch strings.TrimSpace(req.Action) {
	case ActionTestLogin:
		return d.testLogin(ctx, req)
	case ActionCreateBot:
		return d.createBot(ctx, req)
	case ActionSyncNow:
		return d.syncNow(ctx, req)
	case ActionToggleStatus:
		return d.toggle(ctx, req)
	case ActionDeleteBot:
		return d.deleteBot(ctx, req)
	case ActionListBots:
		return d.listBots(ctx)
	default:
		return fail(fmt.Errorf("unknown action %q", req.Action), "UNKNOWN_ACTION")
	}
}

func ok(msg string, details map[string]any) Response {
	return Response{Success: true, Message: msg, Details: details}
}

// fail builds a failed response; category defaults to the error's classification.
func fail(err error, category string) Response {
	details := map[string]any{}
	if category == "" {
		category = errs.CategoryOf(err)
	}
	details["category"] = category
	if e, isClassified := errs.As(err); isClassified && e.Reason != "" {
		details["reason"] = e.Reason
	}
	return Response{Error: err.Error(), Details: details}
}

func parseAccountID(s string) (uuid.UUID, error) {
	id, err := uuid.FromString(strings.TrimSpace(s))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, errs.E(errs.KindBadRequest, 0, "BAD_ACCOUNT_ID", s, nil)
	}
	return id, nil
}

// checkLogin validates the external id, the credential bundle and the account's visibility.
func (d *Dispatcher) checkLogin(ctx context.Context, req Request) error {
	if !platform.ValidExternalID(strings.TrimSpace(req.ExternalID)) {
		return errs.E(errs.KindConfiguration, 0, platform.ReasonBadExternalID, req.ExternalID, nil)
	}
	if req.Credentials.Empty() {
		return errs.E(errs.KindConfiguration, 0, "CREDENTIALS_MISSING", "credentials are required", nil)
	}
	return d.access.CheckAccess(ctx, strings.TrimSpace(req.ExternalID)).Err()
}

func (d *Dispatcher) testLogin(ctx context.Context, req Request) Response {
	if err := d.checkLogin(ctx, req); err != nil {
		return fail(err, "")
	}
	return ok("account is reachable and public", map[string]any{"externalId": strings.TrimSpace(req.ExternalID)})
}

func (d *Dispatcher) createBot(ctx context.Context, req Request) Response {
	if strings.TrimSpace(req.Name) == "" {
		return fail(errs.E(errs.KindBadRequest, 0, "MISSING_NAME", "name is required", nil), "")
	}
	if err := d.checkLogin(ctx, req); err != nil {
		return fail(err, "")
	}
	sealed, err := d.vault.SealCredentials(req.Credentials)
	if err != nil {
		return fail(fmt.Errorf("seal credentials: %w", err), "")
	}
	id, err := uuid.NewV4()
	if err != nil {
		return fail(err, "")
	}
	acc := &model.Account{
		ID:          id,
		Name:        strings.TrimSpace(req.Name),
		ExternalID:  strings.TrimSpace(req.ExternalID),
		Credentials: sealed,
		Status:      model.StatusOffline,
		IsActive:    true,
	}
	if err := d.accounts.Create(ctx, acc); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return fail(err, "ALREADY_EXISTS")
		}
		return fail(err, "")
	}
	return ok("bot created", map[string]any{"accountId": id.String()})
}

func (d *Dispatcher) syncNow(ctx context.Context, req Request) Response {
	id, err := parseAccountID(req.AccountID)
	if err != nil {
		return fail(err, "")
	}
	if req.RetryAttempt < 0 {
		return fail(errs.E(errs.KindBadRequest, 0, "BAD_RETRY_ATTEMPT", "retryAttempt must be >= 0", nil), "")
	}
	run, err := d.sync.Sync(ctx, id, req.RetryAttempt)
	switch {
	case errors.Is(err, errs.ErrSyncInProgress):
		return fail(err, "SYNC_IN_PROGRESS")
	case errors.Is(err, errs.ErrNotFound):
		return fail(err, "NOT_FOUND")
	case err != nil:
		r := fail(err, run.Reason)
		r.Details["durationMs"] = run.Duration.Milliseconds()
		return r
	}
	unmatched := make([]any, 0, len(run.Unmatched))
	for _, n := range run.Unmatched {
		unmatched = append(unmatched, n)
	}
	return ok("sync completed", map[string]any{
		"itemCount":     run.Fetched,
		"priced":        run.Priced,
		"matched":       run.Matched,
		"unmatched":     unmatched,
		"durationMs":    run.Duration.Milliseconds(),
		"pricingMethod": string(run.PricingMethod),
		"healthy":       run.Healthy,
	})
}

func (d *Dispatcher) toggle(ctx context.Context, req Request) Response {
	id, err := parseAccountID(req.AccountID)
	if err != nil {
		return fail(err, "")
	}
	active, err := d.accounts.ToggleActive(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return fail(err, "NOT_FOUND")
		}
		return fail(err, "")
	}
	return ok("status toggled", map[string]any{"isActive": active})
}

func (d *Dispatcher) deleteBot(ctx context.Context, req Request) Response {
	id, err := parseAccountID(req.AccountID)
	if err != nil {
		return fail(err, "")
	}
	release, acquired, err := d.lock.TryAcquire(ctx, id.String())
	if err != nil {
		return fail(err, "")
	}
	if !acquired {
		return fail(errs.ErrSyncInProgress, "SYNC_IN_PROGRESS")
	}
	defer release()

	detached, err := d.accounts.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return fail(err, "NOT_FOUND")
		}
		return fail(err, "")
	}
	return ok("bot deleted", map[string]any{"detachedRows": detached})
}

func (d *Dispatcher) listBots(ctx context.Context) Response {
	accounts, err := d.accounts.List(ctx)
	if err != nil {
		return fail(err, "")
	}
	bots := make([]any, 0, len(accounts))
	for _, a := range accounts {
		b := map[string]any{
			"id":             a.ID.String(),
			"name":           a.Name,
			"externalId":     a.ExternalID,
			"status":         string(a.Status),
			"statusReason":   a.StatusReason,
			"lastError":      a.LastError,
			"lastDurationMs": a.LastDurationMs,
			"isActive":       a.IsActive,
		}
		if a.LastSyncedAt != nil {
			b["lastSyncedAt"] = a.LastSyncedAt.UTC().Format(time.RFC3339)
		}
		if mirrored, err := d.mirror.ListForAccount(ctx, a.ID); err != nil {
			d.log.Warn("list mirror", zap.String("account", a.ID.String()), zap.Error(err))
		} else {
			b["mirroredAssets"] = len(mirrored)
		}
		bots = append(bots, b)
	}
	return ok(fmt.Sprintf("%d bots", len(bots)), map[string]any{"bots": bots})
}
