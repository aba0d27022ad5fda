package data

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

// Base prices for the random walk. Unknown symbols start at 100.
var simulatedBasePrices = map[string]float64{
	"XAUUSD": 2045.67,
	"BTCUSD": 43000,
}

const simulatedReferencePrice = 2045.67

// SimulatedConfig configures the random walk
type SimulatedConfig struct {
	Bars     int
	Interval time.Duration
	// Seed of 0 seeds from the clock
	Seed int64
}

// SimulatedSource generates a random walk around a per-symbol base price.
// Step sizes are ±5 at the gold reference price and scale with the base, so
// BTCUSD moves proportionally.
type SimulatedSource struct {
	config SimulatedConfig
	mu     sync.Mutex
	rng    *rand.Rand
	now    func() time.Time
}

// NewSimulatedSource creates a simulated source
func NewSimulatedSource(cfg SimulatedConfig) *SimulatedSource {
	if cfg.Bars <= 0 {
		cfg.Bars = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimulatedSource{
		config: cfg,
		rng:    rand.New(rand.NewSource(seed)),
		now:    time.Now,
	}
}

func (s *SimulatedSource) Name() string {
	return "simulated"
}

func (s *SimulatedSource) Fetch(ctx context.Context, symbol string) (*models.PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(s.Name(), symbol, err)
	}

	base, ok := simulatedBasePrices[symbol]
	if !ok {
		base = 100
	}
	scale := base / simulatedReferencePrice

	s.mu.Lock()
	defer s.mu.Unlock()

	bars := make([]models.PriceBar, s.config.Bars)
	start := windowStart(s.now(), s.config.Interval, s.config.Bars)
	price := base
	for i := range bars {
		price += (s.rng.Float64() - 0.5) * 10 * scale
		if price <= 0 {
			price = base * 0.01
		}
		bars[i] = models.PriceBar{
			Time:   start.Add(time.Duration(i+1) * s.config.Interval),
			Close:  price,
			High:   price + s.rng.Float64()*5*scale,
			Low:    price - s.rng.Float64()*5*scale,
			Volume: float64(s.rng.Intn(5000) + 1000),
		}
	}

	return finish(s.Name(), symbol, bars)
}
