package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMarket struct {
	prices map[string]float64 // key "ASSET/FIAT"
	calls  []string
}

func (f *fakeMarket) FetchPrice(_ context.Context, asset, fiat string) (float64, error) {
	key := asset + "/" + fiat
	f.calls = append(f.calls, "market:"+key)
	if price, ok := f.prices[key]; ok {
		return price, nil
	}
	return 0, ErrSourceUnavailable
}

type fakeIndex struct {
	entries map[string]IndexEntry
	err     error
	calls   int
	gotIDs  []string
}

func (f *fakeIndex) FetchBatch(_ context.Context, ids []string) (map[string]IndexEntry, error) {
	f.calls++
	f.gotIDs = ids
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

type fixedRate float64

func (r fixedRate) Rate(context.Context) float64 { return float64(r) }

func testAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		MarketAssets: map[string]string{"BTC": "BTC", "LTC": "LTC"},
		IndexIDs:     map[string]string{"BTC": "bitcoin", "LTC": "litecoin"},
		Fiat:         "RUB",
	}
}

func TestAggregateMarketTier(t *testing.T) {
	market := &fakeMarket{prices: map[string]float64{"BTC/RUB": 4_800_000}}
	index := &fakeIndex{entries: map[string]IndexEntry{"bitcoin": {PriceUSD: 59000, Change24h: 2.5}}}

	agg := NewAggregator(market, index, fixedRate(80), testAggregatorConfig(), zap.NewNop(), nil)
	quotes, failed := agg.Aggregate(context.Background(), []string{"BTC"}, nil)

	require.Empty(t, failed)
	quote := quotes["BTC"]
	assert.Equal(t, TierMarket, quote.Tier)
	assert.InDelta(t, 60000, quote.PriceUSD, 1e-9)
	assert.InDelta(t, 4_800_000, quote.PriceRub, 1e-9)
	// Change comes from the index batch even though the market priced it.
	assert.Equal(t, 2.5, quote.Change24h)
	assert.False(t, quote.FetchedAt.IsZero())
}

func TestAggregateFallsBackToIndex(t *testing.T) {
	market := &fakeMarket{} // every book misses
	index := &fakeIndex{entries: map[string]IndexEntry{
		"bitcoin": {PriceUSD: 60000, PriceRub: 4_800_000, Change24h: -1.5},
	}}

	agg := NewAggregator(market, index, fixedRate(80), testAggregatorConfig(), zap.NewNop(), nil)
	quotes, failed := agg.Aggregate(context.Background(), []string{"BTC"}, nil)

	require.Empty(t, failed)
	quote := quotes["BTC"]
	assert.Equal(t, TierIndex, quote.Tier)
	assert.Equal(t, 60000.0, quote.PriceUSD)
	assert.Equal(t, -1.5, quote.Change24h)

	// The market tier was attempted first: fiat book, then the USD retry.
	assert.Equal(t, []string{"market:BTC/RUB", "market:BTC/USD"}, market.calls)
	assert.Equal(t, 1, index.calls)
}

func TestAggregateMarketUSDBookRetry(t *testing.T) {
	market := &fakeMarket{prices: map[string]float64{"BTC/USD": 60000}}
	index := &fakeIndex{}

	agg := NewAggregator(market, index, fixedRate(80), testAggregatorConfig(), zap.NewNop(), nil)
	quotes, failed := agg.Aggregate(context.Background(), []string{"BTC"}, nil)

	require.Empty(t, failed)
	quote := quotes["BTC"]
	assert.Equal(t, TierMarket, quote.Tier)
	assert.Equal(t, 60000.0, quote.PriceUSD)
	assert.InDelta(t, 4_800_000, quote.PriceRub, 1e-9)
}

func TestAggregateThrottleBetweenMarketBooks(t *testing.T) {
	market := &fakeMarket{prices: map[string]float64{"BTC/USD": 60000}}
	index := &fakeIndex{}
	cfg := testAggregatorConfig()
	cfg.ThrottleDelay = 50 * time.Millisecond

	agg := NewAggregator(market, index, fixedRate(80), cfg, zap.NewNop(), nil)
	start := time.Now()
	quotes, failed := agg.Aggregate(context.Background(), []string{"BTC"}, nil)

	require.Empty(t, failed)
	assert.Equal(t, TierMarket, quotes["BTC"].Tier)
	assert.Equal(t, []string{"market:BTC/RUB", "market:BTC/USD"}, market.calls)
	// The USD retry waits out the inter-call throttle first.
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestAggregateCancelledContextSkipsUSDRetry(t *testing.T) {
	market := &fakeMarket{prices: map[string]float64{"BTC/USD": 60000}}
	index := &fakeIndex{err: ErrSourceUnavailable}
	cfg := testAggregatorConfig()
	cfg.ThrottleDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agg := NewAggregator(market, index, fixedRate(80), cfg, zap.NewNop(), nil)
	quotes, failed := agg.Aggregate(ctx, []string{"BTC"}, nil)

	assert.Empty(t, quotes)
	assert.Equal(t, []string{"BTC"}, failed)
	// The fiat book missed and the cancelled throttle stops the USD retry.
	assert.Equal(t, []string{"market:BTC/RUB"}, market.calls)
}

func TestAggregateFallsBackToPersisted(t *testing.T) {
	market := &fakeMarket{}
	index := &fakeIndex{err: ErrSourceUnavailable}
	previous := map[string]Quote{
		"BTC": {Symbol: "BTC", PriceUSD: 58000, PriceRub: 4_640_000, Change24h: 1.1, Tier: TierMarket},
	}

	agg := NewAggregator(market, index, fixedRate(80), testAggregatorConfig(), zap.NewNop(), nil)
	quotes, failed := agg.Aggregate(context.Background(), []string{"BTC"}, previous)

	require.Empty(t, failed)
	quote := quotes["BTC"]
	assert.Equal(t, TierPersisted, quote.Tier)
	assert.Equal(t, 58000.0, quote.PriceUSD)
	// Index was down, so the change carries over from the previous cycle.
	assert.Equal(t, 1.1, quote.Change24h)
}

func TestAggregateStalePreservation(t *testing.T) {
	market := &fakeMarket{}
	index := &fakeIndex{err: ErrSourceUnavailable}
	previous := map[string]Quote{
		"BTC": {Symbol: "BTC", PriceUSD: 0}, // zero price never qualifies
	}

	agg := NewAggregator(market, index, fixedRate(80), testAggregatorConfig(), zap.NewNop(), nil)
	quotes, failed := agg.Aggregate(context.Background(), []string{"BTC", "LTC"}, previous)

	assert.Empty(t, quotes)
	assert.ElementsMatch(t, []string{"BTC", "LTC"}, failed)
	// The previous map is the caller's; the aggregator never writes into it.
	assert.Equal(t, 0.0, previous["BTC"].PriceUSD)
}

func TestAggregateSymbolWithoutMarketMapping(t *testing.T) {
	market := &fakeMarket{prices: map[string]float64{"KAS/RUB": 10}}
	index := &fakeIndex{entries: map[string]IndexEntry{"kaspa": {PriceUSD: 0.12}}}
	cfg := AggregatorConfig{
		IndexIDs: map[string]string{"KAS": "kaspa"},
		Fiat:     "RUB",
	}

	agg := NewAggregator(market, index, fixedRate(80), cfg, zap.NewNop(), nil)
	quotes, failed := agg.Aggregate(context.Background(), []string{"KAS"}, nil)

	require.Empty(t, failed)
	assert.Equal(t, TierIndex, quotes["KAS"].Tier)
	// No market asset code configured, so the market was never called.
	assert.Empty(t, market.calls)
}

func TestAggregateIndexBatchIssuedOnce(t *testing.T) {
	market := &fakeMarket{prices: map[string]float64{"BTC/RUB": 4_800_000, "LTC/RUB": 7200}}
	index := &fakeIndex{entries: map[string]IndexEntry{}}

	agg := NewAggregator(market, index, fixedRate(80), testAggregatorConfig(), zap.NewNop(), nil)
	agg.Aggregate(context.Background(), []string{"BTC", "LTC"}, nil)

	assert.Equal(t, 1, index.calls)
	assert.ElementsMatch(t, []string{"bitcoin", "litecoin"}, index.gotIDs)
}

func TestAggregateIndexRubDerivedFromRate(t *testing.T) {
	market := &fakeMarket{}
	index := &fakeIndex{entries: map[string]IndexEntry{"bitcoin": {PriceUSD: 60000}}}

	agg := NewAggregator(market, index, fixedRate(80), testAggregatorConfig(), zap.NewNop(), nil)
	quotes, _ := agg.Aggregate(context.Background(), []string{"BTC"}, nil)

	assert.InDelta(t, 4_800_000, quotes["BTC"].PriceRub, 1e-9)
}

func TestAggregateCancelledContext(t *testing.T) {
	market := &fakeMarket{prices: map[string]float64{"BTC/RUB": 4_800_000}}
	index := &fakeIndex{}
	cfg := testAggregatorConfig()
	cfg.ThrottleDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agg := NewAggregator(market, index, fixedRate(80), cfg, zap.NewNop(), nil)
	quotes, failed := agg.Aggregate(ctx, []string{"BTC", "LTC"}, nil)

	// The first symbol resolves before any throttle wait; the rest fail fast.
	assert.Len(t, quotes, 1)
	assert.Equal(t, []string{"LTC"}, failed)
}
