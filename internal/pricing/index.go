package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// IndexConfig configures the batched index client.
type IndexConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	// BackoffStep is added per attempt on top of the server-advised delay for
	// 429 replies, and scales the wait for other transient errors.
	BackoffStep       time.Duration `yaml:"backoff_step"`
	DefaultRetryAfter time.Duration `yaml:"default_retry_after"`
}

// GeckoIndexClient fetches prices and 24h changes for many coins in one
// CoinGecko-shaped request. Rate limiting is handled with a bounded retry
// loop; the whole batch fails together, never individual ids.
type GeckoIndexClient struct {
	client            *resty.Client
	baseURL           string
	maxRetries        int
	backoffStep       time.Duration
	defaultRetryAfter time.Duration
	logger            *zap.Logger
	metrics           *Metrics
}

type geckoEntry struct {
	USD       float64 `json:"usd"`
	Rub       float64 `json:"rub"`
	Change24h float64 `json:"usd_24h_change"`
}

// NewGeckoIndexClient creates an index client. Zero config fields fall back
// to working defaults. Metrics may be nil.
func NewGeckoIndexClient(cfg IndexConfig, logger *zap.Logger, metrics *Metrics) *GeckoIndexClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffStep <= 0 {
		cfg.BackoffStep = 10 * time.Second
	}
	if cfg.DefaultRetryAfter <= 0 {
		cfg.DefaultRetryAfter = 60 * time.Second
	}

	client := resty.New()
	client.SetTimeout(cfg.Timeout)

	return &GeckoIndexClient{
		client:            client,
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		maxRetries:        cfg.MaxRetries,
		backoffStep:       cfg.BackoffStep,
		defaultRetryAfter: cfg.DefaultRetryAfter,
		logger:            logger.Named("index"),
		metrics:           metrics,
	}
}

// FetchBatch requests prices and 24h changes for all ids in one round trip.
// On 429 it waits the server-advised delay plus attempt*backoffStep and
// retries up to MaxRetries times before giving up on the whole batch.
func (c *GeckoIndexClient) FetchBatch(ctx context.Context, ids []string) (map[string]IndexEntry, error) {
	if len(ids) == 0 {
		return map[string]IndexEntry{}, nil
	}

	url := c.baseURL + "/simple/price"
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			c.metrics.IndexRetry()
		}

		resp, err := c.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"ids":                 strings.Join(ids, ","),
				"vs_currencies":       "usd,rub",
				"include_24hr_change": "true",
			}).
			Get(url)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
			if attempt == c.maxRetries-1 {
				break
			}
			if waitErr := sleepCtx(ctx, time.Duration(attempt+1)*c.backoffStep/2); waitErr != nil {
				return nil, lastErr
			}
			continue
		}

		if resp.StatusCode() == http.StatusTooManyRequests {
			delay := c.retryAfter(resp) + time.Duration(attempt)*c.backoffStep
			lastErr = fmt.Errorf("%w: batch of %d ids", ErrRateLimited, len(ids))
			c.logger.Warn("index rate limited",
				zap.Duration("delay", delay),
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", c.maxRetries),
			)
			if attempt == c.maxRetries-1 {
				break
			}
			if waitErr := sleepCtx(ctx, delay); waitErr != nil {
				return nil, lastErr
			}
			continue
		}

		if resp.IsError() {
			lastErr = fmt.Errorf("%w: status %d", ErrSourceUnavailable, resp.StatusCode())
			if attempt == c.maxRetries-1 {
				break
			}
			if waitErr := sleepCtx(ctx, time.Duration(attempt+1)*c.backoffStep/2); waitErr != nil {
				return nil, lastErr
			}
			continue
		}

		var data map[string]geckoEntry
		if err := json.Unmarshal(resp.Body(), &data); err != nil {
			return nil, fmt.Errorf("%w: decode: %v", ErrSourceUnavailable, err)
		}

		entries := make(map[string]IndexEntry, len(data))
		for _, id := range ids {
			if entry, ok := data[id]; ok {
				entries[id] = IndexEntry{
					PriceUSD:  entry.USD,
					PriceRub:  entry.Rub,
					Change24h: entry.Change24h,
				}
			}
		}
		c.logger.Debug("index batch fetched",
			zap.Int("requested", len(ids)),
			zap.Int("received", len(entries)),
		)
		return entries, nil
	}

	return nil, lastErr
}

func (c *GeckoIndexClient) retryAfter(resp *resty.Response) time.Duration {
	header := resp.Header().Get("Retry-After")
	if header == "" {
		return c.defaultRetryAfter
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return c.defaultRetryAfter
	}
	return time.Duration(seconds) * time.Second
}
