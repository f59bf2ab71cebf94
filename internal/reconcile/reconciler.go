package reconcile

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/and161185/storefront-sync/internal/model"
	"github.com/and161185/storefront-sync/internal/repository"
)

// Item is one distinct priced inventory name of an account.
type Item struct {
	Name     string
	AssetID  string // representative asset linked to the catalog row
	Quantity int
	Tradable bool
	Price    decimal.Decimal
}

// Config tunes reconciliation.
type Config struct {
	BatchSize          int
	WordMinLen         int             // minimum word length for a single-word commit
	PriceSanityFactor  decimal.Decimal // single-word commit requires old/factor <= new <= old*factor
	UnmatchedWarnRatio float64
	DiagnosticLimit    int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:          50,
		WordMinLen:         5,
		PriceSanityFactor:  decimal.NewFromInt(5),
		UnmatchedWarnRatio: 0.10,
		DiagnosticLimit:    5,
	}
}

// Report is the outcome of one reconciliation.
type Report struct {
	Matched       int
	Unmatched     []string
	Rejected      []string // single-word candidates refused by the confidence guard
	Diagnostics   map[string][]string
	Strategies    map[string]int
	Batches       int
	UnmatchedRate float64
	Healthy       bool
}

// Reconciler applies priced items to the storefront catalog.
type Reconciler struct {
	store      repository.CatalogRepository
	cfg        Config
	strategies []Strategy
	log        *zap.Logger
}

// New constructs a reconciler over the default cascade.
func New(store repository.CatalogRepository, cfg Config, log *zap.Logger) *Reconciler {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.WordMinLen <= 0 {
		cfg.WordMinLen = def.WordMinLen
	}
	if !cfg.PriceSanityFactor.IsPositive() {
		cfg.PriceSanityFactor = def.PriceSanityFactor
	}
	if cfg.UnmatchedWarnRatio <= 0 {
		cfg.UnmatchedWarnRatio = def.UnmatchedWarnRatio
	}
	if cfg.DiagnosticLimit <= 0 {
		cfg.DiagnosticLimit = def.DiagnosticLimit
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{store: store, cfg: cfg, strategies: Cascade, log: log}
}

// Plan computes the writes for items against catalog without touching storage.
// Unmatched items never create rows, and rows owned by other accounts are never relinked.
func (r *Reconciler) Plan(ownerID uuid.UUID, items []Item, catalog []model.CatalogRow) ([]model.CatalogMatch, Report) {
	rep := Report{
		Diagnostics: map[string][]string{},
		Strategies:  map[string]int{},
	}
	linked := make(map[uuid.UUID]bool)
	var matches []model.CatalogMatch

	for _, it := range items {
		s, rows, ok := FirstMatch(r.strategies, it.Name, catalog)
		if ok && s.Single && !r.confident(it, rows[0]) {
			rep.Rejected = append(rep.Rejected, it.Name)
			ok = false
		}
		if !ok {
			rep.Unmatched = append(rep.Unmatched, it.Name)
			rep.Diagnostics[it.Name] = Diagnose(it.Name, catalog, r.cfg.DiagnosticLimit)
			continue
		}

		m := model.CatalogMatch{
			OwnerID:  ownerID,
			AssetID:  it.AssetID,
			Price:    it.Price,
			Stock:    it.Quantity,
			Tradable: it.Tradable,
		}
		for _, row := range rows {
			m.RowIDs = append(m.RowIDs, row.ID)
			if m.LinkRow == uuid.Nil && it.AssetID != "" && !linked[row.ID] && linkable(row, ownerID) {
				m.LinkRow = row.ID
				linked[row.ID] = true
			}
		}
		matches = append(matches, m)
		rep.Matched++
		rep.Strategies[s.Name]++
	}

	if total := len(items); total > 0 {
		rep.UnmatchedRate = float64(len(rep.Unmatched)) / float64(total)
	}
	rep.Healthy = rep.UnmatchedRate <= r.cfg.UnmatchedWarnRatio
	return matches, rep
}

// linkable reports whether row may carry ownerID's asset. Rows held by another
// account only receive the price refresh.
func linkable(row model.CatalogRow, ownerID uuid.UUID) bool {
	return row.OwnerAccountID == nil || *row.OwnerAccountID == ownerID
}

// confident guards the single-word strategy against collateral updates.
func (r *Reconciler) confident(it Item, row model.CatalogRow) bool {
	if len([]rune(SignificantWord(it.Name))) < r.cfg.WordMinLen {
		return false
	}
	if !row.Price.IsPositive() || !it.Price.IsPositive() {
		return true
	}
	f := r.cfg.PriceSanityFactor
	return it.Price.LessThanOrEqual(row.Price.Mul(f)) && it.Price.GreaterThanOrEqual(row.Price.Div(f))
}

// Reconcile loads the catalog, plans the writes and applies them in batches.
// On a failed batch the report reflects the batches already committed.
func (r *Reconciler) Reconcile(ctx context.Context, ownerID uuid.UUID, items []Item) (Report, error) {
	catalog, err := r.store.ListCatalog(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list catalog: %w", err)
	}
	matches, rep := r.Plan(ownerID, items, catalog)

	applied := 0
	for start := 0; start < len(matches); start += r.cfg.BatchSize {
		end := min(start+r.cfg.BatchSize, len(matches))
		if err := r.store.ApplyMatches(ctx, matches[start:end]); err != nil {
			rep.Matched = applied
			return rep, fmt.Errorf("apply batch %d: %w", rep.Batches, err)
		}
		applied = end
		rep.Batches++
	}

	if len(rep.Unmatched) > 0 {
		r.log.Info("unmatched items",
			zap.String("owner", ownerID.String()),
			zap.Strings("names", rep.Unmatched),
			zap.Any("candidates", rep.Diagnostics),
		)
	}
	if !rep.Healthy {
		r.log.Warn("unmatched rate above threshold",
			zap.String("owner", ownerID.String()),
			zap.Float64("rate", rep.UnmatchedRate),
			zap.Float64("threshold", r.cfg.UnmatchedWarnRatio),
		)
	}
	return rep, nil
}
