package pricing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/storefront-sync/internal/errs"
)

func TestMarketClient_Lookup(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/market/item/252490/Heat Seeker SAR", r.URL.Path)
		assert.Equal(t, "k1", r.URL.Query().Get("api_key"))
		_, _ = w.Write([]byte(`{"market_hash_name":"Heat Seeker SAR","currency":"eur","prices":{"safe":"0","median":6.40,"latest":7.1}}`))
	}))
	defer srv.Close()

	m := NewMarketClient(srv.URL+"/", "k1", 252490, time.Second, srv.Client())
	p, err := m.Lookup(context.Background(), " Heat Seeker SAR ")
	require.NoError(t, err)
	require.Equal(t, "6.40", p.Amount.StringFixed(2))
	require.Equal(t, "EUR", p.Currency)
}

func TestMarketClient_StatusMapping(t *testing.T) {
	t.Parallel()
	cases := []struct {
		status int
		body   string
		kind   errs.Kind
		noData bool
	}{
		{status: http.StatusNotFound, noData: true},
		{status: http.StatusOK, body: `{"prices":{}}`, noData: true},
		{status: http.StatusTooManyRequests, kind: errs.KindRateLimit},
		{status: http.StatusForbidden, kind: errs.KindConfiguration},
		{status: http.StatusBadGateway, kind: errs.KindServer},
		{status: http.StatusBadRequest, kind: errs.KindBadRequest},
		{status: http.StatusOK, body: `{not json`, kind: errs.KindServer},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		}))
		_, err := NewMarketClient(srv.URL, "", 1, time.Second, srv.Client()).Lookup(context.Background(), "x")
		srv.Close()

		require.Error(t, err, "status %d", tc.status)
		if tc.noData {
			require.True(t, errors.Is(err, errs.ErrNoMarketData), "status %d: %v", tc.status, err)
			continue
		}
		e, ok := errs.As(err)
		require.True(t, ok, "status %d: %v", tc.status, err)
		require.Equal(t, tc.kind, e.Kind, "status %d", tc.status)
	}
}

func TestParseRates(t *testing.T) {
	t.Parallel()
	r, err := ParseRates(" eur=1.08 , GBP=1.27,")
	require.NoError(t, err)
	require.Len(t, r, 3)
	require.Equal(t, "1", r[BaseCurrency].String())

	v, err := r.Normalize(r["EUR"], "")
	require.NoError(t, err)
	require.Equal(t, "1.08", v.String())

	_, err = r.Normalize(v, "JPY")
	require.Error(t, err)

	for _, bad := range []string{"EUR", "EUR=abc", "EUR=-1"} {
		_, err := ParseRates(bad)
		require.Error(t, err, bad)
	}
}
