package signals

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

// CloseReason says why a signal leaves the active state
type CloseReason string

const (
	ReasonReplaced  CloseReason = "replaced"
	ReasonExecuted  CloseReason = "executed"
	ReasonCancelled CloseReason = "cancelled"
)

// Settler decides the pnl booked when a signal closes. mark is the latest
// known price for the signal's symbol, if any.
type Settler interface {
	Settle(prior models.TradingSignal, reason CloseReason, mark optional.Option[float64]) float64
}

// RandomSettler books a random pnl. It is a placeholder, not realized P&L:
// a deployment that trades must settle from confirmed fills instead.
type RandomSettler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSettler seeds the generator; seed 0 uses the clock
func NewRandomSettler(seed int64) *RandomSettler {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomSettler{rng: rand.New(rand.NewSource(seed))}
}

func (s *RandomSettler) Settle(_ models.TradingSignal, reason CloseReason, _ optional.Option[float64]) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pnl float64
	switch reason {
	case ReasonReplaced:
		if s.rng.Float64() > 0.5 {
			pnl = s.rng.Float64() * 30
		} else {
			pnl = -s.rng.Float64() * 20
		}
	case ReasonExecuted:
		if s.rng.Float64() > 0.6 {
			pnl = s.rng.Float64() * 50
		} else {
			pnl = -s.rng.Float64() * 30
		}
	default:
		return 0
	}
	return round2(pnl)
}

// MarkToMarketSettler books (mark - entry) x quantity in the signal's
// direction. Without a mark it books 0.
type MarkToMarketSettler struct{}

func (MarkToMarketSettler) Settle(prior models.TradingSignal, reason CloseReason, mark optional.Option[float64]) float64 {
	if reason == ReasonCancelled {
		return 0
	}
	price, err := mark.Take()
	if err != nil {
		return 0
	}
	return round2((price - prior.Entry) * prior.Quantity * prior.Side.Direction())
}

// NewSettler returns the settler for a SETTLEMENT_MODE value
func NewSettler(mode string, seed int64) (Settler, error) {
	switch mode {
	case "", "random":
		return NewRandomSettler(seed), nil
	case "mark":
		return MarkToMarketSettler{}, nil
	default:
		return nil, fmt.Errorf("unknown settlement mode %q", mode)
	}
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
