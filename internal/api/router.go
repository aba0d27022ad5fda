package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps carries everything the HTTP surface serves
type RouterDeps struct {
	Signals       SignalService
	Settings      SettingsStore
	Analyzer      Analyzer
	DefaultSymbol string

	// WebSocket serves /ws when set
	WebSocket http.Handler
	// Ready reports readiness for /ready; nil means always ready
	Ready func() bool
	// Stats feeds /stats
	Stats func() map[string]interface{}
}

// NewRouter builds the routes and wraps them in the middleware chain
func NewRouter(deps RouterDeps) http.Handler {
	router := mux.NewRouter()

	signalHandler := NewSignalHandler(deps.Signals, deps.DefaultSymbol)
	indicatorHandler := NewIndicatorHandler(deps.Signals, deps.DefaultSymbol)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/signals", signalHandler.ListSignals).Methods(http.MethodGet)
	api.HandleFunc("/signals/active", signalHandler.GetActive).Methods(http.MethodGet)
	api.HandleFunc("/signals/execute", signalHandler.Execute).Methods(http.MethodPost)
	api.HandleFunc("/signals/cancel", signalHandler.Cancel).Methods(http.MethodPost)

	api.HandleFunc("/indicators/{timeframe}", indicatorHandler.GetLatest).Methods(http.MethodGet)
	api.HandleFunc("/indicators/{timeframe}/history", indicatorHandler.History).Methods(http.MethodGet)

	if deps.Settings != nil {
		settingsHandler := NewSettingsHandler(deps.Settings)
		api.HandleFunc("/settings", settingsHandler.Get).Methods(http.MethodGet)
		api.HandleFunc("/settings", settingsHandler.Update).Methods(http.MethodPut)
	}

	if deps.Analyzer != nil {
		analysisHandler := NewAnalysisHandler(deps.Analyzer)
		api.HandleFunc("/analysis/run", analysisHandler.Run).Methods(http.MethodPost)
	}

	// Health and ops
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Ready != nil && !deps.Ready() {
			respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}).Methods(http.MethodGet)

	router.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}).Methods(http.MethodGet)

	router.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := map[string]interface{}{}
		if deps.Stats != nil {
			stats = deps.Stats()
		}
		respondWithJSON(w, http.StatusOK, stats)
	}).Methods(http.MethodGet)

	router.Handle("/metrics", promhttp.Handler())

	if deps.WebSocket != nil {
		router.Handle("/ws", deps.WebSocket)
	}

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusNotFound, "Route not found")
	})

	return ChainMiddleware(
		ErrorHandlingMiddleware(),
		RequestIDMiddleware(),
		LoggingMiddleware(),
		CORSMiddleware(),
	)(router)
}
