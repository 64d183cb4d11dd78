package pricing

import (
	"context"
	"errors"
	"time"
)

// Source tier names record quote provenance so callers can tell a live market
// quote from a stale persisted value.
type Tier string

const (
	TierMarket    Tier = "market"
	TierIndex     Tier = "index"
	TierPersisted Tier = "persisted"
)

var (
	// ErrSourceUnavailable covers network errors, timeouts and non-2xx replies
	// from a price source. Recovered by falling through to the next tier.
	ErrSourceUnavailable = errors.New("price source unavailable")

	// ErrRateLimited marks 429-class rejection after retries are exhausted.
	ErrRateLimited = errors.New("price source rate limited")
)

// Quote is one symbol's price for one aggregation cycle. The next cycle
// supersedes it entirely.
type Quote struct {
	Symbol    string    `json:"symbol"`
	PriceUSD  float64   `json:"price_usd"`
	PriceRub  float64   `json:"price_rub"`
	Change24h float64   `json:"change_24h"`
	Tier      Tier      `json:"tier"`
	FetchedAt time.Time `json:"fetched_at"`
}

// MarketSource queries an order-book style market for one asset/fiat pair and
// returns a representative price.
type MarketSource interface {
	FetchPrice(ctx context.Context, asset, fiat string) (float64, error)
}

// IndexEntry is one coin's batched index result.
type IndexEntry struct {
	PriceUSD  float64
	PriceRub  float64
	Change24h float64
}

// IndexSource answers a batched multi-id price and 24h-change query in a
// single round trip. Ids are the index's own identifiers, not coin symbols.
type IndexSource interface {
	FetchBatch(ctx context.Context, ids []string) (map[string]IndexEntry, error)
}

// RateProvider resolves the USD/RUB conversion rate for a cycle. It fails
// soft, so there is no error return.
type RateProvider interface {
	Rate(ctx context.Context) float64
}

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
