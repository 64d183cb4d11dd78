package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// MarketConfig configures the P2P market client.
type MarketConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	// TopQuotes is how many of the cheapest ads are considered when picking
	// the representative price.
	TopQuotes int `yaml:"top_quotes"`
	Rows      int `yaml:"rows"`
}

// P2PMarketClient fetches prices from a Binance-P2P-shaped order book API.
// The representative price is the minimum of the top ads, a deliberate
// best-available-buy policy rather than an average.
type P2PMarketClient struct {
	client    *resty.Client
	url       string
	topQuotes int
	rows      int
	logger    *zap.Logger
}

type p2pSearchRequest struct {
	Asset         string   `json:"asset"`
	Fiat          string   `json:"fiat"`
	MerchantCheck bool     `json:"merchantCheck"`
	Page          int      `json:"page"`
	PayTypes      []string `json:"payTypes"`
	Rows          int      `json:"rows"`
	TradeType     string   `json:"tradeType"`
	TransAmount   string   `json:"transAmount"`
}

type p2pSearchResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    []struct {
		Adv struct {
			Price string `json:"price"`
		} `json:"adv"`
	} `json:"data"`
}

// NewP2PMarketClient creates a market client. Zero config fields fall back to
// working defaults.
func NewP2PMarketClient(cfg MarketConfig, logger *zap.Logger) *P2PMarketClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.TopQuotes <= 0 {
		cfg.TopQuotes = 5
	}
	if cfg.Rows <= 0 {
		cfg.Rows = 10
	}

	client := resty.New()
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	return &P2PMarketClient{
		client:    client,
		url:       cfg.URL,
		topQuotes: cfg.TopQuotes,
		rows:      cfg.Rows,
		logger:    logger.Named("market"),
	}
}

// FetchPrice queries SELL ads for asset/fiat and returns the lowest valid
// price among the cheapest ads. Any transport error, non-2xx status or empty
// book comes back as ErrSourceUnavailable.
func (c *P2PMarketClient) FetchPrice(ctx context.Context, asset, fiat string) (float64, error) {
	payload := p2pSearchRequest{
		Asset:         asset,
		Fiat:          fiat,
		MerchantCheck: false,
		Page:          1,
		PayTypes:      []string{},
		Rows:          c.rows,
		TradeType:     "SELL",
		TransAmount:   "",
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(c.url)
	if err != nil {
		return 0, fmt.Errorf("%w: %s/%s: %v", ErrSourceUnavailable, asset, fiat, err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("%w: %s/%s: status %d", ErrSourceUnavailable, asset, fiat, resp.StatusCode())
	}

	// Decode the body ourselves; the upstream is not trusted to label its
	// responses with a JSON content type.
	var result p2pSearchResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return 0, fmt.Errorf("%w: %s/%s: decode: %v", ErrSourceUnavailable, asset, fiat, err)
	}
	if !result.Success || len(result.Data) == 0 {
		c.logger.Debug("market returned no ads",
			zap.String("asset", asset),
			zap.String("fiat", fiat),
			zap.String("message", result.Message),
		)
		return 0, fmt.Errorf("%w: %s/%s: no ads", ErrSourceUnavailable, asset, fiat)
	}

	// Prices arrive as strings; keep the valid positive ones from the top ads.
	prices := make([]float64, 0, c.topQuotes)
	for i, ad := range result.Data {
		if i >= c.topQuotes {
			break
		}
		price, err := strconv.ParseFloat(ad.Adv.Price, 64)
		if err != nil || price <= 0 {
			continue
		}
		prices = append(prices, price)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("%w: %s/%s: no valid ad prices", ErrSourceUnavailable, asset, fiat)
	}

	sort.Float64s(prices)
	best := prices[0]

	c.logger.Debug("market price selected",
		zap.String("asset", asset),
		zap.String("fiat", fiat),
		zap.Float64("price", best),
		zap.Int("ads", len(prices)),
	)
	return best, nil
}
