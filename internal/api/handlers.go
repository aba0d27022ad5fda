package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mohamedkhairy/signal-engine/internal/models"
	"github.com/mohamedkhairy/signal-engine/internal/scanner"
	"github.com/mohamedkhairy/signal-engine/pkg/logger"
)

// SignalService is the part of signals.Service the handlers use
type SignalService interface {
	ListSignals(limit int) []*models.TradingSignal
	GetActive(symbol string) (*models.TradingSignal, bool)
	GetLatestIndicators(symbol string, timeframe models.Timeframe) (*models.IndicatorSnapshot, bool)
	ListIndicatorHistory(symbol string, timeframe models.Timeframe, limit int) []*models.IndicatorSnapshot
	ExecuteActive(symbol string) (*models.TradingSignal, error)
	CancelActive(symbol string) (*models.TradingSignal, error)
}

// Analyzer runs one analysis tick on demand
type Analyzer interface {
	RunOnce(ctx context.Context) (scanner.TickResult, error)
}

// SettingsStore reads and replaces the user settings
type SettingsStore interface {
	Get() models.UserSettings
	Update(settings models.UserSettings) (models.UserSettings, error)
}

type listSignalsRequest struct {
	Limit int `default:"50" validate:"gte=1,lte=500"`
}

type historyRequest struct {
	Limit int `default:"100" validate:"gte=1,lte=1000"`
}

type symbolRequest struct {
	Symbol string `json:"symbol" validate:"omitempty,max=20,alphanum"`
}

// SignalHandler handles signal endpoints
type SignalHandler struct {
	service       SignalService
	defaultSymbol string
}

// NewSignalHandler creates a new signal handler. Requests that name no
// symbol act on defaultSymbol.
func NewSignalHandler(service SignalService, defaultSymbol string) *SignalHandler {
	return &SignalHandler{service: service, defaultSymbol: defaultSymbol}
}

// ListSignals handles GET /api/signals
func (h *SignalHandler) ListSignals(w http.ResponseWriter, r *http.Request) {
	req := listSignalsRequest{}
	if err := defaultsAndQuery(r, &req, func() error { return queryInt(r, "limit", &req.Limit) }); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	signals := h.service.ListSignals(req.Limit)
	if signals == nil {
		signals = []*models.TradingSignal{}
	}
	respondWithJSON(w, http.StatusOK, signals)
}

// GetActive handles GET /api/signals/active. It answers null when the
// symbol has no active signal.
func (h *SignalHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	symbol := h.symbolFromQuery(r)
	sig, ok := h.service.GetActive(symbol)
	if !ok {
		respondWithJSON(w, http.StatusOK, nil)
		return
	}
	respondWithJSON(w, http.StatusOK, sig)
}

// Execute handles POST /api/signals/execute
func (h *SignalHandler) Execute(w http.ResponseWriter, r *http.Request) {
	h.closeSignal(w, r, "execute", h.service.ExecuteActive)
}

// Cancel handles POST /api/signals/cancel
func (h *SignalHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.closeSignal(w, r, "cancel", h.service.CancelActive)
}

func (h *SignalHandler) closeSignal(w http.ResponseWriter, r *http.Request, action string, fn func(string) (*models.TradingSignal, error)) {
	req := symbolRequest{}
	if err := decodeAndValidate(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	symbol := normalizeSymbol(req.Symbol)
	if symbol == "" {
		symbol = h.defaultSymbol
	}

	sig, err := fn(symbol)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	logger.WithContext(r.Context()).Info("Signal closed via API",
		logger.String("action", action),
		logger.String("symbol", symbol),
		logger.String("signal_id", sig.ID),
	)
	respondWithJSON(w, http.StatusOK, sig)
}

func (h *SignalHandler) symbolFromQuery(r *http.Request) string {
	if s := normalizeSymbol(r.URL.Query().Get("symbol")); s != "" {
		return s
	}
	return h.defaultSymbol
}

// IndicatorHandler handles indicator snapshot endpoints
type IndicatorHandler struct {
	service       SignalService
	defaultSymbol string
}

// NewIndicatorHandler creates a new indicator handler
func NewIndicatorHandler(service SignalService, defaultSymbol string) *IndicatorHandler {
	return &IndicatorHandler{service: service, defaultSymbol: defaultSymbol}
}

// GetLatest handles GET /api/indicators/{timeframe}
func (h *IndicatorHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	tf, err := models.ParseTimeframe(mux.Vars(r)["timeframe"])
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	snap, ok := h.service.GetLatestIndicators(h.symbol(r), tf)
	if !ok {
		respondWithJSON(w, http.StatusOK, nil)
		return
	}
	respondWithJSON(w, http.StatusOK, snap)
}

// History handles GET /api/indicators/{timeframe}/history, newest first
func (h *IndicatorHandler) History(w http.ResponseWriter, r *http.Request) {
	tf, err := models.ParseTimeframe(mux.Vars(r)["timeframe"])
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	req := historyRequest{}
	if err := defaultsAndQuery(r, &req, func() error { return queryInt(r, "limit", &req.Limit) }); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	history := h.service.ListIndicatorHistory(h.symbol(r), tf, req.Limit)
	if history == nil {
		history = []*models.IndicatorSnapshot{}
	}
	respondWithJSON(w, http.StatusOK, history)
}

func (h *IndicatorHandler) symbol(r *http.Request) string {
	if s := normalizeSymbol(r.URL.Query().Get("symbol")); s != "" {
		return s
	}
	return h.defaultSymbol
}

// SettingsHandler handles the user settings endpoints
type SettingsHandler struct {
	store SettingsStore
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(store SettingsStore) *SettingsHandler {
	return &SettingsHandler{store: store}
}

// Get handles GET /api/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.store.Get())
}

// Update handles PUT /api/settings. Fields missing from the body keep
// their current values.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	settings := h.store.Get()
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&settings); err != nil {
		if errors.Is(err, io.EOF) {
			respondWithError(w, http.StatusBadRequest, "Request body is required")
			return
		}
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.store.Update(settings)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	logger.WithContext(r.Context()).Info("Settings updated",
		logger.Float64("risk_percent", updated.RiskPercent),
		logger.Float64("leverage", updated.Leverage),
	)
	respondWithJSON(w, http.StatusOK, updated)
}

// AnalysisHandler triggers analysis ticks outside the schedule
type AnalysisHandler struct {
	analyzer Analyzer
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(analyzer Analyzer) *AnalysisHandler {
	return &AnalysisHandler{analyzer: analyzer}
}

// Run handles POST /api/analysis/run
func (h *AnalysisHandler) Run(w http.ResponseWriter, r *http.Request) {
	result, err := h.analyzer.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, scanner.ErrTickInFlight) {
			respondWithError(w, http.StatusConflict, "Analysis already in progress")
			return
		}
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}
