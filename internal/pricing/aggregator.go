package pricing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AggregatorConfig configures the per-cycle source chain.
type AggregatorConfig struct {
	// MarketAssets maps coin symbol to the market source's asset code. Symbols
	// missing here skip the market tier.
	MarketAssets map[string]string `yaml:"market_assets"`
	// IndexIDs maps coin symbol to the index source's own identifier. Symbols
	// missing here skip the index tier.
	IndexIDs map[string]string `yaml:"index_ids"`
	// Fiat is the market source's quote currency. Market prices arrive in this
	// currency and convert to USD with the cycle's FX rate.
	Fiat string `yaml:"fiat"`
	// ThrottleDelay separates consecutive market calls. A scheduling courtesy
	// for the upstream rate limiter, not a correctness requirement.
	ThrottleDelay time.Duration `yaml:"throttle_delay"`
}

// Aggregator resolves a price table for a symbol set by trying, per symbol,
// the market source, then the batched index source, then the previous cycle's
// persisted value. The 24h change always comes from the index batch no matter
// which tier priced the symbol.
type Aggregator struct {
	market  MarketSource
	index   IndexSource
	rates   RateProvider
	cfg     AggregatorConfig
	logger  *zap.Logger
	metrics *Metrics
}

// NewAggregator wires a source chain. Metrics may be nil.
func NewAggregator(
	market MarketSource,
	index IndexSource,
	rates RateProvider,
	cfg AggregatorConfig,
	logger *zap.Logger,
	metrics *Metrics,
) *Aggregator {
	if cfg.Fiat == "" {
		cfg.Fiat = "RUB"
	}
	return &Aggregator{
		market:  market,
		index:   index,
		rates:   rates,
		cfg:     cfg,
		logger:  logger.Named("aggregator"),
		metrics: metrics,
	}
}

// Aggregate prices the given symbols. The returned map holds one fresh quote
// per resolved symbol; symbols no tier could price appear in the failed list
// and are absent from the map, so the caller's previous data stays intact.
func (a *Aggregator) Aggregate(ctx context.Context, symbols []string, previous map[string]Quote) (map[string]Quote, []string) {
	start := time.Now()
	log := a.logger.With(zap.String("cycle_id", uuid.NewString()))

	rate := a.rates.Rate(ctx)

	// One batched index round trip per cycle covers both the secondary price
	// tier and the 24h-change enrichment for every symbol.
	batch := a.fetchIndexBatch(ctx, symbols, log)

	quotes := make(map[string]Quote, len(symbols))
	var failed []string

	for i, symbol := range symbols {
		if i > 0 {
			if err := sleepCtx(ctx, a.cfg.ThrottleDelay); err != nil {
				log.Warn("cycle cancelled", zap.Error(err))
				failed = append(failed, symbols[i:]...)
				break
			}
		}

		quote, ok := a.resolve(ctx, symbol, rate, batch, previous, log)
		if !ok {
			a.metrics.SymbolFailed()
			failed = append(failed, symbol)
			log.Warn("no source could price symbol", zap.String("symbol", symbol))
			continue
		}

		quote.Change24h = a.change24h(symbol, batch, previous)
		quote.FetchedAt = time.Now()
		a.metrics.TierHit(quote.Tier)
		quotes[symbol] = quote

		log.Debug("symbol priced",
			zap.String("symbol", symbol),
			zap.Float64("price_usd", quote.PriceUSD),
			zap.String("tier", string(quote.Tier)),
		)
	}

	elapsed := time.Since(start)
	a.metrics.ObserveCycle(elapsed)
	log.Info("aggregation cycle complete",
		zap.Int("priced", len(quotes)),
		zap.Int("failed", len(failed)),
		zap.Float64("usd_rub", rate),
		zap.Duration("elapsed", elapsed),
	)
	return quotes, failed
}

func (a *Aggregator) fetchIndexBatch(ctx context.Context, symbols []string, log *zap.Logger) map[string]IndexEntry {
	ids := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		if id, ok := a.cfg.IndexIDs[symbol]; ok {
			ids = append(ids, id)
		}
	}
	batch, err := a.index.FetchBatch(ctx, ids)
	if err != nil {
		log.Warn("index batch failed, index tier unavailable this cycle", zap.Error(err))
		return nil
	}
	return batch
}

// resolve walks the tiers strictly in order and stops at the first positive
// price.
func (a *Aggregator) resolve(
	ctx context.Context,
	symbol string,
	rate float64,
	batch map[string]IndexEntry,
	previous map[string]Quote,
	log *zap.Logger,
) (Quote, bool) {
	if quote, ok := a.fromMarket(ctx, symbol, rate, log); ok {
		return quote, true
	}
	if quote, ok := a.fromIndex(symbol, rate, batch); ok {
		return quote, true
	}
	if prev, ok := previous[symbol]; ok && prev.PriceUSD > 0 {
		prev.Tier = TierPersisted
		return prev, true
	}
	return Quote{}, false
}

func (a *Aggregator) fromMarket(ctx context.Context, symbol string, rate float64, log *zap.Logger) (Quote, bool) {
	asset, ok := a.cfg.MarketAssets[symbol]
	if !ok {
		return Quote{}, false
	}

	fiatPrice, err := a.market.FetchPrice(ctx, asset, a.cfg.Fiat)
	if err == nil && fiatPrice > 0 && rate > 0 {
		return Quote{
			Symbol:   symbol,
			PriceUSD: fiatPrice / rate,
			PriceRub: fiatPrice,
			Tier:     TierMarket,
		}, true
	}
	if err != nil {
		log.Debug("market fiat book miss", zap.String("symbol", symbol), zap.Error(err))
	}

	// Some assets trade only against USD; retry there before giving up on the
	// market tier. The retry is another call against the same rate-limited
	// endpoint, so the inter-call throttle applies between the two books.
	if waitErr := sleepCtx(ctx, a.cfg.ThrottleDelay); waitErr != nil {
		return Quote{}, false
	}
	usdPrice, err := a.market.FetchPrice(ctx, asset, "USD")
	if err == nil && usdPrice > 0 {
		return Quote{
			Symbol:   symbol,
			PriceUSD: usdPrice,
			PriceRub: usdPrice * rate,
			Tier:     TierMarket,
		}, true
	}
	if err != nil {
		log.Debug("market usd book miss", zap.String("symbol", symbol), zap.Error(err))
	}
	return Quote{}, false
}

func (a *Aggregator) fromIndex(symbol string, rate float64, batch map[string]IndexEntry) (Quote, bool) {
	id, ok := a.cfg.IndexIDs[symbol]
	if !ok {
		return Quote{}, false
	}
	entry, ok := batch[id]
	if !ok || entry.PriceUSD <= 0 {
		return Quote{}, false
	}

	rub := entry.PriceRub
	if rub <= 0 {
		rub = entry.PriceUSD * rate
	}
	return Quote{
		Symbol:   symbol,
		PriceUSD: entry.PriceUSD,
		PriceRub: rub,
		Tier:     TierIndex,
	}, true
}

// change24h prefers the live index figure, then the previous cycle's value,
// then zero. Independent of which tier supplied the price itself.
func (a *Aggregator) change24h(symbol string, batch map[string]IndexEntry, previous map[string]Quote) float64 {
	if id, ok := a.cfg.IndexIDs[symbol]; ok {
		if entry, ok := batch[id]; ok {
			return entry.Change24h
		}
	}
	if prev, ok := previous[symbol]; ok {
		return prev.Change24h
	}
	return 0
}
