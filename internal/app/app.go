package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Andhanc/minecalc/internal/config"
	"github.com/Andhanc/minecalc/internal/fx"
	"github.com/Andhanc/minecalc/internal/pricing"
	"github.com/Andhanc/minecalc/internal/store"
)

// App owns the assembled pipeline: source clients, the FX converter, the
// aggregator, the quote store and the HTTP surface. The aggregator itself
// never touches storage; App seeds it with the previous cycle's quotes and
// persists whatever it resolves.
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	aggregator *pricing.Aggregator
	converter  *fx.Converter
	quotes     store.QuoteStore
	registry   *prometheus.Registry
	redis      *store.RedisStore

	mu          sync.RWMutex
	latest      map[string]pricing.Quote
	lastRefresh time.Time
}

// New assembles the pipeline from configuration. Returns an error only when a
// hard dependency (redis, when enabled) is unreachable.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := pricing.NewMetrics(registry)

	market := pricing.NewP2PMarketClient(cfg.Pricing.Market, logger)
	index := pricing.NewGeckoIndexClient(cfg.Pricing.Index, logger, metrics)
	converter := fx.New(cfg.FX, market, logger)

	app := &App{
		cfg:       cfg,
		logger:    logger.Named("app"),
		converter: converter,
		registry:  registry,
		latest:    make(map[string]pricing.Quote),
	}

	if cfg.Redis.Enabled {
		rs := store.NewRedisStore(cfg.Redis.RedisConfig)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rs.Ping(pingCtx); err != nil {
			return nil, fmt.Errorf("redis unreachable at %s: %w", cfg.Redis.Addr, err)
		}
		app.quotes = rs
		app.redis = rs
		logger.Info("quote store: redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		app.quotes = store.NewMemoryStore()
		logger.Info("quote store: in-memory")
	}

	app.aggregator = pricing.NewAggregator(market, index, converter, cfg.Pricing.Aggregator, logger, metrics)

	if persisted, err := app.quotes.Load(ctx); err != nil {
		logger.Warn("could not load persisted quotes", zap.Error(err))
	} else if len(persisted) > 0 {
		app.latest = persisted
		logger.Info("persisted quotes restored", zap.Int("symbols", len(persisted)))
	}

	return app, nil
}

// Close releases external connections.
func (a *App) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

// Rates exposes the FX converter for callers that price in USD.
func (a *App) Rates() *fx.Converter {
	return a.converter
}

// Quotes returns a copy of the latest quote table.
func (a *App) Quotes() map[string]pricing.Quote {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]pricing.Quote, len(a.latest))
	for symbol, quote := range a.latest {
		out[symbol] = quote
	}
	return out
}

// RefreshOnce runs one aggregation cycle. Resolved symbols replace their
// entries in the latest table and are persisted; failed symbols keep whatever
// value the table already had.
func (a *App) RefreshOnce(ctx context.Context) (map[string]pricing.Quote, []string, error) {
	previous := a.Quotes()
	fresh, failed := a.aggregator.Aggregate(ctx, a.cfg.Pricing.Symbols, previous)

	a.mu.Lock()
	for symbol, quote := range fresh {
		a.latest[symbol] = quote
	}
	a.lastRefresh = time.Now()
	a.mu.Unlock()

	if len(fresh) > 0 {
		if err := a.quotes.Save(ctx, fresh); err != nil {
			a.logger.Warn("could not persist quotes", zap.Error(err))
		}
	}

	if err := ctx.Err(); err != nil {
		return fresh, failed, err
	}
	return fresh, failed, nil
}

// Run refreshes immediately, then on the configured interval, while serving
// the HTTP API. Blocks until the context is cancelled, then shuts the server
// down gracefully.
func (a *App) Run(ctx context.Context) error {
	if _, _, err := a.RefreshOnce(ctx); err != nil {
		// Only context cancellation reaches here; treat it as a clean stop.
		return nil
	}

	srv := &http.Server{
		Addr:         a.cfg.Server.Listen,
		Handler:      a.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	ticker := time.NewTicker(a.cfg.Server.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			return fmt.Errorf("http server: %w", err)
		case <-ticker.C:
			if _, _, err := a.RefreshOnce(ctx); err != nil {
				a.logger.Warn("refresh cycle aborted", zap.Error(err))
			}
		}
	}
}

func (a *App) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/prices", a.handlePrices).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/prices/{symbol}", a.handlePrice).Methods(http.MethodGet)
	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	return r
}

type pricesResponse struct {
	UpdatedAt time.Time       `json:"updated_at"`
	UsdRub    float64         `json:"usd_rub"`
	Quotes    []pricing.Quote `json:"quotes"`
}

func (a *App) handlePrices(w http.ResponseWriter, r *http.Request) {
	a.mu.RLock()
	updated := a.lastRefresh
	quotes := make([]pricing.Quote, 0, len(a.latest))
	for _, quote := range a.latest {
		quotes = append(quotes, quote)
	}
	a.mu.RUnlock()

	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Symbol < quotes[j].Symbol })

	writeJSON(w, http.StatusOK, pricesResponse{
		UpdatedAt: updated,
		UsdRub:    a.converter.Rate(r.Context()),
		Quotes:    quotes,
	})
}

func (a *App) handlePrice(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	a.mu.RLock()
	quote, ok := a.latest[symbol]
	a.mu.RUnlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown symbol " + symbol})
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	a.mu.RLock()
	priced := len(a.latest)
	updated := a.lastRefresh
	a.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"symbols":      priced,
		"last_refresh": updated,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
