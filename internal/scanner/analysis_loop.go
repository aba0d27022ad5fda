package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mohamedkhairy/signal-engine/internal/classifier"
	"github.com/mohamedkhairy/signal-engine/internal/config"
	"github.com/mohamedkhairy/signal-engine/internal/data"
	"github.com/mohamedkhairy/signal-engine/internal/models"
	"github.com/mohamedkhairy/signal-engine/internal/storage"
	"github.com/mohamedkhairy/signal-engine/pkg/indicator"
	"github.com/mohamedkhairy/signal-engine/pkg/logger"
)

// ErrTickInFlight is returned by RunOnce when another tick is still running
var ErrTickInFlight = errors.New("analysis tick already in flight")

// SignalSink stores analysis results and announces them
type SignalSink interface {
	RecordIndicators(snap *models.IndicatorSnapshot) error
	ReplaceActive(sig *models.TradingSignal) (storage.CreateResult, error)
}

// SettingsSource provides the sizing parameters for new signals
type SettingsSource interface {
	Get() models.UserSettings
}

// AnalysisLoopConfig holds configuration for the analysis loop
type AnalysisLoopConfig struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	Symbols      []string
	Timeframe    models.Timeframe
	Indicators   indicator.Settings
}

// DefaultAnalysisLoopConfig returns default configuration
func DefaultAnalysisLoopConfig() AnalysisLoopConfig {
	return AnalysisLoopConfig{
		Interval:     30 * time.Second,
		FetchTimeout: 10 * time.Second,
		Symbols:      []string{"XAUUSD", "BTCUSD"},
		Timeframe:    models.TimeframeH1,
		Indicators:   indicator.DefaultSettings(),
	}
}

// AnalysisLoopConfigFromConfig builds the loop configuration from AnalysisConfig
func AnalysisLoopConfigFromConfig(cfg config.AnalysisConfig) (AnalysisLoopConfig, error) {
	tf, err := models.ParseTimeframe(cfg.Timeframe)
	if err != nil {
		return AnalysisLoopConfig{}, err
	}
	c := DefaultAnalysisLoopConfig()
	c.Interval = cfg.Interval
	c.FetchTimeout = cfg.FetchTimeout
	c.Symbols = cfg.Symbols
	c.Timeframe = tf
	return c, nil
}

// AnalysisLoop periodically fetches prices, computes indicators and turns
// them into signals. Ticks never overlap: a trigger that arrives while a
// tick is running is skipped.
type AnalysisLoop struct {
	config     AnalysisLoopConfig
	source     data.PriceSeriesSource
	classifier *classifier.Classifier
	sink       SignalSink
	settings   SettingsSource
	now        func() time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	inFlight atomic.Bool

	statsMu sync.RWMutex
	stats   AnalysisStats
}

// AnalysisStats holds statistics about the analysis loop
type AnalysisStats struct {
	TicksCompleted   int64         `json:"ticksCompleted"`
	TicksSkipped     int64         `json:"ticksSkipped"`
	SymbolsAnalyzed  int64         `json:"symbolsAnalyzed"`
	SymbolFailures   int64         `json:"symbolFailures"`
	SignalsCreated   int64         `json:"signalsCreated"`
	LastTickDuration time.Duration `json:"lastTickDuration"`
	MaxTickDuration  time.Duration `json:"maxTickDuration"`
	LastTickAt       time.Time     `json:"lastTickAt"`
}

// TickResult summarizes one tick
type TickResult struct {
	Symbols  int               `json:"symbols"`
	Analyzed int               `json:"analyzed"`
	Signals  int               `json:"signals"`
	Failures map[string]string `json:"failures,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// NewAnalysisLoop creates a new analysis loop
func NewAnalysisLoop(
	config AnalysisLoopConfig,
	source data.PriceSeriesSource,
	clf *classifier.Classifier,
	sink SignalSink,
	settings SettingsSource,
) *AnalysisLoop {
	if source == nil {
		panic("source cannot be nil")
	}
	if clf == nil {
		panic("classifier cannot be nil")
	}
	if sink == nil {
		panic("sink cannot be nil")
	}
	if settings == nil {
		panic("settings cannot be nil")
	}
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &AnalysisLoop{
		config:     config,
		source:     source,
		classifier: clf,
		sink:       sink,
		settings:   settings,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start runs the first tick immediately and then one per interval
func (l *AnalysisLoop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return fmt.Errorf("analysis loop is already running")
	}
	if l.ctx.Err() != nil {
		return fmt.Errorf("analysis loop has been stopped")
	}
	l.running = true

	logger.Info("Starting analysis loop",
		logger.Duration("interval", l.config.Interval),
		logger.Strings("symbols", l.config.Symbols),
		logger.String("timeframe", string(l.config.Timeframe)),
		logger.String("source", l.source.Name()),
	)

	l.wg.Add(1)
	go l.run()
	return nil
}

// Stop cancels the loop and waits for an in-flight tick to finish
func (l *AnalysisLoop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	l.mu.Unlock()

	logger.Info("Stopping analysis loop")
	l.cancel()
	l.wg.Wait()
	logger.Info("Analysis loop stopped")
}

// IsRunning returns whether the loop is running
func (l *AnalysisLoop) IsRunning() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.running
}

// GetStats returns a copy of the loop statistics
func (l *AnalysisLoop) GetStats() AnalysisStats {
	l.statsMu.RLock()
	defer l.statsMu.RUnlock()
	return l.stats
}

func (l *AnalysisLoop) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.Interval)
	defer ticker.Stop()

	l.tick()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.tick()
		}
	}
}

func (l *AnalysisLoop) tick() {
	if _, err := l.RunOnce(l.ctx); errors.Is(err, ErrTickInFlight) {
		logger.Debug("Skipping analysis tick, previous tick still running")
	}
}

// RunOnce runs a single tick over every symbol. It returns ErrTickInFlight
// without doing anything if a tick is already running.
func (l *AnalysisLoop) RunOnce(ctx context.Context) (TickResult, error) {
	if !l.inFlight.CompareAndSwap(false, true) {
		logger.AnalysisTicks.WithLabelValues("skipped").Inc()
		l.statsMu.Lock()
		l.stats.TicksSkipped++
		l.statsMu.Unlock()
		return TickResult{}, ErrTickInFlight
	}
	defer l.inFlight.Store(false)

	start := time.Now()
	result := TickResult{Symbols: len(l.config.Symbols)}

	for _, symbol := range l.config.Symbols {
		if ctx.Err() != nil {
			break
		}
		created, err := l.analyzeSymbol(ctx, symbol)
		if err != nil {
			if result.Failures == nil {
				result.Failures = make(map[string]string)
			}
			result.Failures[symbol] = err.Error()
			continue
		}
		result.Analyzed++
		if created {
			result.Signals++
		}
	}

	result.Duration = time.Since(start)
	logger.AnalysisTicks.WithLabelValues("completed").Inc()
	logger.AnalysisTickDuration.Observe(result.Duration.Seconds())
	l.recordTick(result)

	logger.Debug("Analysis tick completed",
		logger.Int("analyzed", result.Analyzed),
		logger.Int("signals", result.Signals),
		logger.Int("failures", len(result.Failures)),
		logger.Duration("duration", result.Duration),
	)
	return result, nil
}

// analyzeSymbol runs the pipeline for one symbol. A failure or panic here
// never affects other symbols.
func (l *AnalysisLoop) analyzeSymbol(ctx context.Context, symbol string) (created bool, err error) {
	stage := "fetch"
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during %s: %v", stage, r)
		}
		if err != nil {
			logger.SymbolFailures.WithLabelValues(symbol, stage).Inc()
			logger.Warn("Symbol analysis failed",
				logger.ErrorField(err),
				logger.String("symbol", symbol),
				logger.String("stage", stage),
			)
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, l.config.FetchTimeout)
	series, err := l.source.Fetch(fetchCtx, symbol)
	cancel()
	if err != nil {
		return false, err
	}

	stage = "indicators"
	snap := l.config.Indicators.Compute(symbol, l.config.Timeframe, series, l.now().UTC())
	if err := l.sink.RecordIndicators(&snap); err != nil {
		return false, err
	}

	stage = "classify"
	sig, ok := l.classifier.BuildSignal(&snap, l.settings.Get())
	if !ok {
		return false, nil
	}

	stage = "signal"
	if _, err := l.sink.ReplaceActive(sig); err != nil {
		return false, err
	}
	return true, nil
}

func (l *AnalysisLoop) recordTick(result TickResult) {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()

	l.stats.TicksCompleted++
	l.stats.SymbolsAnalyzed += int64(result.Analyzed)
	l.stats.SymbolFailures += int64(len(result.Failures))
	l.stats.SignalsCreated += int64(result.Signals)
	l.stats.LastTickDuration = result.Duration
	if result.Duration > l.stats.MaxTickDuration {
		l.stats.MaxTickDuration = result.Duration
	}
	l.stats.LastTickAt = l.now()
}
