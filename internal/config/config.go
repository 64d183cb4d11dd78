package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Andhanc/minecalc/internal/fx"
	"github.com/Andhanc/minecalc/internal/pricing"
	"github.com/Andhanc/minecalc/internal/store"
)

// Config is the full application configuration, loaded from YAML with env
// overrides for deployment-specific values.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Pricing    PricingConfig    `yaml:"pricing"`
	FX         fx.Config        `yaml:"fx"`
	Calculator CalculatorConfig `yaml:"calculator"`
	Redis      RedisConfig      `yaml:"redis"`
	Server     ServerConfig     `yaml:"server"`
}

// PricingConfig wires the aggregation pipeline: which symbols to refresh and
// how each source is reached. The symbol↔identifier mapping tables live here,
// never in the aggregator.
type PricingConfig struct {
	Symbols    []string                 `yaml:"symbols"`
	Market     pricing.MarketConfig     `yaml:"market"`
	Index      pricing.IndexConfig      `yaml:"index"`
	Aggregator pricing.AggregatorConfig `yaml:"aggregator"`
}

// CoinConfig seeds one coin's network parameters for the calculator.
type CoinConfig struct {
	Symbol            string  `yaml:"symbol"`
	Algorithm         string  `yaml:"algorithm"`
	NetworkHashRate   float64 `yaml:"network_hashrate"`
	NetworkHashUnit   string  `yaml:"network_hashrate_unit"`
	BlockReward       float64 `yaml:"block_reward"`
	BlockTimeOverride float64 `yaml:"block_time"`
	PriceUSD          float64 `yaml:"price_usd"`
}

// CalculatorConfig holds calculator defaults for CLI runs.
type CalculatorConfig struct {
	ElectricityPriceRub float64      `yaml:"electricity_price_rub"`
	Coins               []CoinConfig `yaml:"coins"`
}

// RedisConfig enables the persisted quote store.
type RedisConfig struct {
	Enabled           bool `yaml:"enabled"`
	store.RedisConfig `yaml:",inline"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// Default returns the built-in configuration: the coin set the original
// deployment tracked, public API endpoints, conservative timeouts.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "console",
		Pricing: PricingConfig{
			Symbols: []string{"BTC", "ETH", "USDT", "DOGE", "LTC", "BCH", "ETC", "KAS", "BSV", "KDA", "ETHW"},
			Market: pricing.MarketConfig{
				URL:       "https://p2p.binance.com/bapi/c2c/v2/friendly/c2c/adv/search",
				Timeout:   15 * time.Second,
				TopQuotes: 5,
				Rows:      10,
			},
			Index: pricing.IndexConfig{
				BaseURL:           "https://api.coingecko.com/api/v3",
				Timeout:           15 * time.Second,
				MaxRetries:        3,
				BackoffStep:       10 * time.Second,
				DefaultRetryAfter: 60 * time.Second,
			},
			Aggregator: pricing.AggregatorConfig{
				Fiat:          "RUB",
				ThrottleDelay: 600 * time.Millisecond,
				MarketAssets: map[string]string{
					"BTC": "BTC", "ETH": "ETH", "USDT": "USDT", "DOGE": "DOGE",
					"LTC": "LTC", "BCH": "BCH", "ETC": "ETC", "KAS": "KAS",
					"BSV": "BSV", "KDA": "KDA", "ETHW": "ETHW",
				},
				IndexIDs: map[string]string{
					"BTC": "bitcoin", "ETH": "ethereum", "USDT": "tether",
					"DOGE": "dogecoin", "LTC": "litecoin", "KAS": "kaspa",
					"BCH": "bitcoin-cash", "BSV": "bitcoin-sv",
					"ETC": "ethereum-classic", "KDA": "kadena",
					"ETHW": "ethereum-pow-iou",
				},
			},
		},
		FX: fx.Config{
			URL:         "https://api.exchangerate-api.com/v4/latest/USD",
			Timeout:     10 * time.Second,
			DefaultRate: fx.DefaultUsdRub,
			CacheTTL:    5 * time.Minute,
		},
		Calculator: CalculatorConfig{
			ElectricityPriceRub: 5.0,
			Coins: []CoinConfig{
				{Symbol: "BTC", Algorithm: "sha-256", NetworkHashRate: 600_000_000, BlockReward: 3.125, PriceUSD: 60000},
				{Symbol: "BCH", Algorithm: "sha-256", NetworkHashRate: 3_500_000, BlockReward: 3.125, PriceUSD: 350},
				{Symbol: "LTC", Algorithm: "scrypt", NetworkHashRate: 1_200_000, BlockReward: 6.25, PriceUSD: 90},
				{Symbol: "DOGE", Algorithm: "scrypt", NetworkHashRate: 1_100_000, BlockReward: 10000, BlockTimeOverride: 60, PriceUSD: 0.12},
				{Symbol: "KAS", Algorithm: "kheavyhash", NetworkHashRate: 1_100_000, BlockReward: 70, PriceUSD: 0.12},
				{Symbol: "ETC", Algorithm: "etchash", NetworkHashRate: 200_000_000, BlockReward: 2.56, PriceUSD: 22},
			},
		},
		Redis: RedisConfig{
			Enabled: false,
			RedisConfig: store.RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "minecalc:quotes",
			},
		},
		Server: ServerConfig{
			Listen:          ":8080",
			RefreshInterval: 10 * time.Minute,
		},
	}
}

// Load reads configuration: built-in defaults, then the YAML file if present,
// then environment overrides. A missing file is not an error; a malformed one
// is.
func Load(path string) (*Config, error) {
	// Secrets and endpoint overrides may live in a local .env file.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err != nil && os.IsNotExist(err):
			// Defaults apply.
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MINECALC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MINECALC_REDIS_ADDR"); v != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("MINECALC_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MINECALC_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("MINECALC_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("MINECALC_MARKET_URL"); v != "" {
		cfg.Pricing.Market.URL = v
	}
	if v := os.Getenv("MINECALC_INDEX_URL"); v != "" {
		cfg.Pricing.Index.BaseURL = v
	}
	if v := os.Getenv("MINECALC_FX_URL"); v != "" {
		cfg.FX.URL = v
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if len(c.Pricing.Symbols) == 0 {
		return fmt.Errorf("pricing.symbols must not be empty")
	}
	if c.Pricing.Market.URL == "" {
		return fmt.Errorf("pricing.market.url is required")
	}
	if c.Pricing.Index.BaseURL == "" {
		return fmt.Errorf("pricing.index.base_url is required")
	}
	if c.Pricing.Index.MaxRetries < 1 {
		return fmt.Errorf("pricing.index.max_retries must be at least 1")
	}
	if c.FX.DefaultRate <= 0 {
		return fmt.Errorf("fx.default_rate must be positive")
	}
	if c.Calculator.ElectricityPriceRub < 0 {
		return fmt.Errorf("calculator.electricity_price_rub cannot be negative")
	}
	if c.Server.RefreshInterval <= 0 {
		return fmt.Errorf("server.refresh_interval must be positive")
	}
	for _, coin := range c.Calculator.Coins {
		if coin.Symbol == "" {
			return fmt.Errorf("calculator.coins entries need a symbol")
		}
	}
	return nil
}

// Coin returns the configured coin entry for a symbol.
func (c *CalculatorConfig) Coin(symbol string) (CoinConfig, bool) {
	for _, coin := range c.Coins {
		if coin.Symbol == symbol {
			return coin, true
		}
	}
	return CoinConfig{}, false
}
