package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Andhanc/minecalc/internal/pricing"
)

// DefaultUsdRub is the documented fallback when every rate source fails.
// A stale or default rate degrades precision but must never abort a cycle.
const DefaultUsdRub = 80.0

// Config configures the USD/RUB rate converter.
type Config struct {
	URL         string        `yaml:"url"`
	Timeout     time.Duration `yaml:"timeout"`
	DefaultRate float64       `yaml:"default_rate"`
	// CacheTTL bounds how long a fetched rate is reused. One aggregation
	// cycle's worth is the intended setting.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Converter resolves the USD/RUB exchange rate with a process-lifetime cache.
// Rate never returns an error: a direct fetch falls back to a stablecoin
// quote from the market source, then to the configured default.
//
// Concurrent refreshes collapse into one in-flight fetch via singleflight.
type Converter struct {
	client      *resty.Client
	url         string
	market      pricing.MarketSource // optional stablecoin fallback path
	defaultRate float64
	ttl         time.Duration
	logger      *zap.Logger

	mu        sync.RWMutex
	cached    float64
	fetchedAt time.Time

	group singleflight.Group
}

type exchangeRateResponse struct {
	Rates map[string]float64 `json:"rates"`
}

// New creates a converter. The market source may be nil, disabling the
// stablecoin fallback path.
func New(cfg Config, market pricing.MarketSource, logger *zap.Logger) *Converter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.DefaultRate <= 0 {
		cfg.DefaultRate = DefaultUsdRub
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	client := resty.New()
	client.SetTimeout(cfg.Timeout)

	return &Converter{
		client:      client,
		url:         cfg.URL,
		market:      market,
		defaultRate: cfg.DefaultRate,
		ttl:         cfg.CacheTTL,
		logger:      logger.Named("fx"),
	}
}

// Rate returns the USD/RUB rate, cached for the TTL.
func (c *Converter) Rate(ctx context.Context) float64 {
	c.mu.RLock()
	if c.cached > 0 && time.Since(c.fetchedAt) < c.ttl {
		rate := c.cached
		c.mu.RUnlock()
		return rate
	}
	c.mu.RUnlock()

	value, _, _ := c.group.Do("usd-rub", func() (interface{}, error) {
		rate := c.fetch(ctx)
		c.mu.Lock()
		c.cached = rate
		c.fetchedAt = time.Now()
		c.mu.Unlock()
		return rate, nil
	})
	return value.(float64)
}

// Invalidate drops the cached rate so the next Rate call refetches.
func (c *Converter) Invalidate() {
	c.mu.Lock()
	c.cached = 0
	c.mu.Unlock()
}

func (c *Converter) fetch(ctx context.Context) float64 {
	rate, err := c.fetchDirect(ctx)
	if err == nil {
		c.logger.Debug("usd/rub rate fetched", zap.Float64("rate", rate))
		return rate
	}
	c.logger.Warn("direct rate source failed, trying stablecoin quote", zap.Error(err))

	if c.market != nil {
		if usdtRub, err := c.market.FetchPrice(ctx, "USDT", "RUB"); err == nil && usdtRub > 0 {
			c.logger.Info("usd/rub rate derived from stablecoin quote", zap.Float64("rate", usdtRub))
			return usdtRub
		}
	}

	c.logger.Warn("all rate sources failed, using default", zap.Float64("default", c.defaultRate))
	return c.defaultRate
}

func (c *Converter) fetchDirect(ctx context.Context) (float64, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		Get(c.url)
	if err != nil {
		return 0, err
	}
	if resp.IsError() {
		return 0, fmt.Errorf("rate source returned status %d", resp.StatusCode())
	}

	// Decode the body ourselves rather than relying on the upstream to label
	// its responses with a JSON content type.
	var result exchangeRateResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return 0, fmt.Errorf("decode rate response: %w", err)
	}

	rate, ok := result.Rates["RUB"]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("rate source response missing RUB rate")
	}
	return rate, nil
}
