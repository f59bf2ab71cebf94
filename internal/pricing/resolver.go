package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/and161185/storefront-sync/internal/clock"
	"github.com/and161185/storefront-sync/internal/errs"
	"github.com/and161185/storefront-sync/internal/limiter"
	"github.com/and161185/storefront-sync/internal/model"
)

// DefaultMarkup is applied to every source price.
var DefaultMarkup = decimal.RequireFromString("1.495")

// rateLimitRetries is how many extra lookups a 429 earns.
const rateLimitRetries = 2

// Observer is notified of every resolution.
type Observer interface {
	PriceResolved(method model.PriceMethod)
}

// Options tune a Resolver. Zero values take defaults.
type Options struct {
	Markup     decimal.Decimal
	RetryDelay time.Duration
	Rates      Rates
	Clock      clock.Clock
	Logger     *zap.Logger
	Observer   Observer
}

// Resolver turns item names into sale prices. Resolve never fails.
// A Resolver is meant for one sync run: its pacer serializes lookups of that run,
// while the cache may be shared between runs.
type Resolver struct {
	cache      *Cache
	source     MarketSource
	pacer      *limiter.Pacer
	markup     decimal.Decimal
	retryDelay time.Duration
	rates      Rates
	clk        clock.Clock
	log        *zap.Logger
	obs        Observer
}

// NewResolver wires a resolver. pacer nil disables pacing.
func NewResolver(cache *Cache, source MarketSource, pacer *limiter.Pacer, o Options) *Resolver {
	if o.Markup.IsZero() {
		o.Markup = DefaultMarkup
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	if o.Rates == nil {
		o.Rates = Rates{BaseCurrency: decimal.NewFromInt(1)}
	}
	if o.Clock == nil {
		o.Clock = clock.System{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return &Resolver{
		cache: cache, source: source, pacer: pacer,
		markup: o.Markup, retryDelay: o.RetryDelay, rates: o.Rates,
		clk: o.Clock, log: o.Logger, obs: o.Observer,
	}
}

// ApplyMarkup multiplies a base-currency price by the markup and rounds half-up to cents.
func ApplyMarkup(price, markup decimal.Decimal) decimal.Decimal {
	return price.Mul(markup).Round(2)
}

// Resolve returns the sale price of name in the base currency.
// Every result, cache hits included, is written back to the cache with a fresh timestamp.
func (r *Resolver) Resolve(ctx context.Context, name string) model.PriceQuote {
	key := NormalizeKey(name)
	if q, ok := r.cache.Get(key); ok {
		r.cache.Put(key, q)
		q.Method = model.PriceCache
		q.ResolvedAt = r.clk.Now()
		r.observe(q.Method)
		return q
	}

	q := model.PriceQuote{Name: name, Currency: BaseCurrency}
	if price, err := r.lookup(ctx, name); err == nil {
		q.Price = ApplyMarkup(price, r.markup)
		q.Method = model.PriceMarket
	} else {
		if !errors.Is(err, errs.ErrNoMarketData) {
			r.log.Debug("market lookup failed, using fallback", zap.String("item", name), zap.Error(err))
		}
		q.Price = ApplyMarkup(FallbackPrice(name), r.markup)
		q.Method = model.PriceFallback
	}
	r.cache.Put(key, q)
	q.ResolvedAt = r.clk.Now()
	r.observe(q.Method)
	return q
}

// lookup performs the paced market call with linear retry on rate limiting.
func (r *Resolver) lookup(ctx context.Context, name string) (decimal.Decimal, error) {
	if r.source == nil {
		return decimal.Zero, errs.ErrNoMarketData
	}
	if r.pacer != nil {
		if err := r.pacer.Wait(ctx); err != nil {
			return decimal.Zero, err
		}
	}
	var lastErr error
	for try := 0; try <= rateLimitRetries; try++ {
		if try > 0 {
			if err := r.clk.Sleep(ctx, time.Duration(try)*r.retryDelay); err != nil {
				return decimal.Zero, err
			}
		}
		mp, err := r.source.Lookup(ctx, name)
		if err == nil {
			amount, nerr := r.rates.Normalize(mp.Amount, mp.Currency)
			if nerr != nil {
				return decimal.Zero, nerr
			}
			if !amount.IsPositive() {
				return decimal.Zero, errs.ErrNoMarketData
			}
			return amount, nil
		}
		lastErr = err
		if e, ok := errs.As(err); !ok || e.Kind != errs.KindRateLimit {
			return decimal.Zero, err
		}
	}
	return decimal.Zero, lastErr
}

func (r *Resolver) observe(m model.PriceMethod) {
	if r.obs != nil {
		r.obs.PriceResolved(m)
	}
}

// Summarize returns the single method all quotes share, or mixed.
func Summarize(quotes []model.PriceQuote) model.PriceMethod {
	var m model.PriceMethod
	for _, q := range quotes {
		switch {
		case m == "":
			m = q.Method
		case m != q.Method:
			return model.PriceMixed
		}
	}
	if m == "" {
		return model.PriceMarket
	}
	return m
}
