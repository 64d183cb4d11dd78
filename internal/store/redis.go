package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Andhanc/minecalc/internal/pricing"
)

// RedisConfig configures the redis-backed quote store.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// RedisStore persists quotes as one hash per symbol plus a symbol set, so a
// restart picks up where the last successful cycle left off.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(cfg RedisConfig) *RedisStore {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "minecalc:quotes"
	}
	return &RedisStore{
		rdb: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		prefix: cfg.KeyPrefix,
	}
}

// Ping verifies the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) symbolsKey() string {
	return s.prefix + ":symbols"
}

func (s *RedisStore) quoteKey(symbol string) string {
	return s.prefix + ":" + symbol
}

func (s *RedisStore) Save(ctx context.Context, quotes map[string]pricing.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	pipe := s.rdb.Pipeline()
	for symbol, quote := range quotes {
		pipe.HSet(ctx, s.quoteKey(symbol), map[string]interface{}{
			"price_usd":  quote.PriceUSD,
			"price_rub":  quote.PriceRub,
			"change_24h": quote.Change24h,
			"tier":       string(quote.Tier),
			"fetched_at": quote.FetchedAt.Unix(),
		})
		pipe.SAdd(ctx, s.symbolsKey(), symbol)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save quotes: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) (map[string]pricing.Quote, error) {
	symbols, err := s.rdb.SMembers(ctx, s.symbolsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("load symbol set: %w", err)
	}

	quotes := make(map[string]pricing.Quote, len(symbols))
	for _, symbol := range symbols {
		fields, err := s.rdb.HGetAll(ctx, s.quoteKey(symbol)).Result()
		if err != nil {
			return nil, fmt.Errorf("load quote %s: %w", symbol, err)
		}
		if len(fields) == 0 {
			continue
		}
		quotes[symbol] = quoteFromFields(symbol, fields)
	}
	return quotes, nil
}

func quoteFromFields(symbol string, fields map[string]string) pricing.Quote {
	quote := pricing.Quote{Symbol: symbol, Tier: pricing.TierPersisted}
	quote.PriceUSD, _ = strconv.ParseFloat(fields["price_usd"], 64)
	quote.PriceRub, _ = strconv.ParseFloat(fields["price_rub"], 64)
	quote.Change24h, _ = strconv.ParseFloat(fields["change_24h"], 64)
	if unix, err := strconv.ParseInt(fields["fetched_at"], 10, 64); err == nil {
		quote.FetchedAt = time.Unix(unix, 0)
	}
	return quote
}
