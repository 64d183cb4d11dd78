package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Andhanc/minecalc/internal/config"
	"github.com/Andhanc/minecalc/internal/pricing"
)

// testBackends stands in for the market, index and FX endpoints.
func testBackends(t *testing.T) *config.Config {
	t.Helper()

	market := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":[{"adv":{"price":"4800000"}}]}`))
	}))
	t.Cleanup(market.Close)

	index := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":60000,"rub":4800000,"usd_24h_change":1.5}}`))
	}))
	t.Cleanup(index.Close)

	rates := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rates":{"RUB":80}}`))
	}))
	t.Cleanup(rates.Close)

	cfg := config.Default()
	cfg.Pricing.Symbols = []string{"BTC"}
	cfg.Pricing.Market.URL = market.URL
	cfg.Pricing.Index.BaseURL = index.URL
	cfg.Pricing.Aggregator.ThrottleDelay = 0
	cfg.FX.URL = rates.URL
	cfg.Redis.Enabled = false
	return cfg
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := New(context.Background(), testBackends(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestRefreshOncePricesAndPersists(t *testing.T) {
	a := newTestApp(t)

	fresh, failed, err := a.RefreshOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, failed)

	quote := fresh["BTC"]
	assert.Equal(t, pricing.TierMarket, quote.Tier)
	assert.InDelta(t, 60000.0, quote.PriceUSD, 0.01)
	assert.InDelta(t, 1.5, quote.Change24h, 0.001)

	// Latest table and the store both carry the fresh quote.
	assert.Equal(t, quote, a.Quotes()["BTC"])
	persisted, err := a.quotes.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, quote, persisted["BTC"])
}

func TestRefreshOncePersistedTier(t *testing.T) {
	a := newTestApp(t)
	a.cfg.Pricing.Symbols = []string{"BTC", "XYZ"}
	a.latest["XYZ"] = pricing.Quote{Symbol: "XYZ", PriceUSD: 2}

	fresh, failed, err := a.RefreshOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, failed)

	// No source covers XYZ, so it resolves through the previous cycle's value.
	assert.Equal(t, 2.0, fresh["XYZ"].PriceUSD)
	assert.Equal(t, pricing.TierPersisted, fresh["XYZ"].Tier)
}

func TestRefreshOnceKeepsStaleOnFailure(t *testing.T) {
	a := newTestApp(t)
	a.cfg.Pricing.Symbols = []string{"BTC", "XYZ"}
	// Zero price never qualifies for the persisted tier, so XYZ fails and the
	// table entry survives untouched.
	stale := pricing.Quote{Symbol: "XYZ", PriceUSD: 0, Change24h: -3}
	a.latest["XYZ"] = stale

	fresh, failed, err := a.RefreshOnce(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, fresh, "XYZ")
	assert.Equal(t, []string{"XYZ"}, failed)
	assert.Equal(t, stale, a.Quotes()["XYZ"])
}

func TestPricesEndpoint(t *testing.T) {
	a := newTestApp(t)
	_, _, err := a.RefreshOnce(context.Background())
	require.NoError(t, err)

	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/prices")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body pricesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Quotes, 1)
	assert.Equal(t, "BTC", body.Quotes[0].Symbol)
	assert.InDelta(t, 80.0, body.UsdRub, 0.01)
}

func TestSingleQuoteEndpoint(t *testing.T) {
	a := newTestApp(t)
	_, _, err := a.RefreshOnce(context.Background())
	require.NoError(t, err)

	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/prices/BTC")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var quote pricing.Quote
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&quote))
	assert.InDelta(t, 60000.0, quote.PriceUSD, 0.01)

	resp, err = http.Get(srv.URL + "/api/v1/prices/NOPE")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	a := newTestApp(t)

	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
