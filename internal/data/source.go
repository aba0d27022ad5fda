package data

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mohamedkhairy/signal-engine/internal/config"
	"github.com/mohamedkhairy/signal-engine/internal/models"
)

var (
	// ErrUnknownSource is returned when a provider name has no registered factory
	ErrUnknownSource = errors.New("unknown price source")
	// ErrUnsupportedSymbol is returned when a source has no mapping for a symbol
	ErrUnsupportedSymbol = errors.New("symbol not supported by source")
)

// PriceSeriesSource returns recent bars for a symbol, oldest first. Every
// failure wraps models.ErrDataUnavailable.
type PriceSeriesSource interface {
	Fetch(ctx context.Context, symbol string) (*models.PriceSeries, error)
	Name() string
}

// SourceFactory creates a source from market data configuration
type SourceFactory func(cfg config.MarketDataConfig) (PriceSeriesSource, error)

// Registry maps provider names to source factories
type Registry struct {
	factories map[string]SourceFactory
}

// NewRegistry creates a registry with the built-in sources registered
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]SourceFactory)}

	r.Register("simulated", func(cfg config.MarketDataConfig) (PriceSeriesSource, error) {
		return NewSimulatedSource(SimulatedConfig{Bars: cfg.Bars, Interval: cfg.Interval, Seed: cfg.Seed}), nil
	})
	r.Register("coingecko", func(cfg config.MarketDataConfig) (PriceSeriesSource, error) {
		return NewCoinGeckoSource(cfg.CoinGeckoURL, cfg.RequestTimeout), nil
	})
	r.Register("bybit", func(cfg config.MarketDataConfig) (PriceSeriesSource, error) {
		return NewBybitSource(cfg.BybitURL, cfg.Interval, cfg.Bars, cfg.RequestTimeout)
	})
	r.Register("binance", func(cfg config.MarketDataConfig) (PriceSeriesSource, error) {
		return NewBinanceSource(cfg.BinanceURL, cfg.Interval, cfg.Bars)
	})
	r.Register("polygon", func(cfg config.MarketDataConfig) (PriceSeriesSource, error) {
		return NewPolygonSource(cfg.PolygonAPIKey, cfg.Interval, cfg.Bars, nil)
	})

	return r
}

// Register adds or replaces a factory
func (r *Registry) Register(name string, factory SourceFactory) {
	r.factories[name] = factory
}

// Create builds the named source
func (r *Registry) Create(name string, cfg config.MarketDataConfig) (PriceSeriesSource, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	return factory(cfg)
}

// Names returns the registered provider names in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Router dispatches each symbol to its configured source, or to the default
type Router struct {
	fallback PriceSeriesSource
	routes   map[string]PriceSeriesSource
}

// NewRouter creates a router over a default source
func NewRouter(fallback PriceSeriesSource, routes map[string]PriceSeriesSource) *Router {
	if routes == nil {
		routes = make(map[string]PriceSeriesSource)
	}
	return &Router{fallback: fallback, routes: routes}
}

func (r *Router) Fetch(ctx context.Context, symbol string) (*models.PriceSeries, error) {
	return r.SourceFor(symbol).Fetch(ctx, symbol)
}

func (r *Router) Name() string {
	return "router"
}

// SourceFor returns the source that serves symbol
func (r *Router) SourceFor(symbol string) PriceSeriesSource {
	if src, ok := r.routes[symbol]; ok {
		return src
	}
	return r.fallback
}

// NewSource builds the configured source. With routes present it returns a
// Router; sources are shared between symbols routed to the same provider.
func NewSource(cfg config.MarketDataConfig) (PriceSeriesSource, error) {
	return NewSourceFromRegistry(NewRegistry(), cfg)
}

// NewSourceFromRegistry is NewSource with a caller-supplied registry
func NewSourceFromRegistry(registry *Registry, cfg config.MarketDataConfig) (PriceSeriesSource, error) {
	built := make(map[string]PriceSeriesSource)
	get := func(name string) (PriceSeriesSource, error) {
		if src, ok := built[name]; ok {
			return src, nil
		}
		src, err := registry.Create(name, cfg)
		if err != nil {
			return nil, err
		}
		built[name] = src
		return src, nil
	}

	fallback, err := get(cfg.Provider)
	if err != nil {
		return nil, err
	}
	if len(cfg.Routes) == 0 {
		return fallback, nil
	}

	routes := make(map[string]PriceSeriesSource, len(cfg.Routes))
	for symbol, name := range cfg.Routes {
		src, err := get(name)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", symbol, err)
		}
		routes[symbol] = src
	}
	return NewRouter(fallback, routes), nil
}

// unavailable wraps err so callers can match models.ErrDataUnavailable
func unavailable(source, symbol string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", models.ErrDataUnavailable, source, symbol, err)
}

// finish validates a fetched series
func finish(source, symbol string, bars []models.PriceBar) (*models.PriceSeries, error) {
	series := models.SeriesFromBars(bars)
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("%s %s: %w", source, symbol, err)
	}
	return series, nil
}

// quoteSymbol maps XXXUSD to the exchange's XXXUSDT pair
func quoteSymbol(symbol string) string {
	if len(symbol) > 3 && symbol[len(symbol)-3:] == "USD" {
		return symbol + "T"
	}
	return symbol
}

func windowStart(now time.Time, interval time.Duration, bars int) time.Time {
	return now.Add(-time.Duration(bars) * interval)
}
