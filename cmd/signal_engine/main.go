package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/mohamedkhairy/signal-engine/internal/api"
	"github.com/mohamedkhairy/signal-engine/internal/config"
	"github.com/mohamedkhairy/signal-engine/internal/pubsub"
	"github.com/mohamedkhairy/signal-engine/internal/wsgateway"
	"github.com/mohamedkhairy/signal-engine/pkg/logger"
)

func main() {
	cmd := &cli.Command{
		Name:  "signal-engine",
		Usage: "Technical-analysis signal engine with a live dashboard feed",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override LOG_LEVEL (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the analysis scheduler, HTTP API and websocket feed",
				Action: serveAction,
			},
			{
				Name:  "analyze",
				Usage: "Run one analysis tick and print the result as JSON",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "signals",
						Usage: "Also print the signals stored by the tick",
					},
				},
				Action: analyzeAction,
			},
			{
				Name:  "tail",
				Usage: "Follow the Redis event stream and print each event",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "from",
						Usage: "Stream id to start after (\"0\" replays the retained history)",
						Value: "$",
					},
				},
				Action: tailAction,
			},
		},
		Action: serveAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and initializes the global logger
func setup(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level := cmd.String("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if err := logger.Init(cfg.LogLevel, cfg.Environment, cfg.LogFile); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Starting signal engine",
		logger.Int("port", cfg.Server.Port),
		logger.Strings("symbols", cfg.Analysis.Symbols),
		logger.String("timeframe", cfg.Analysis.Timeframe),
		logger.Duration("interval", cfg.Analysis.Interval),
		logger.String("provider", cfg.MarketData.Provider),
	)

	e, err := newEngine(cfg)
	if err != nil {
		return err
	}
	e.attachBackends()

	handler := api.NewRouter(api.RouterDeps{
		Signals:       e.service,
		Settings:      e.settings,
		Analyzer:      e.loop,
		DefaultSymbol: e.defaultSymbol,
		WebSocket:     http.HandlerFunc(e.hub.ServeWS),
		Ready:         e.loop.IsRunning,
		Stats:         e.stats,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if err := e.loop.Start(); err != nil {
		e.shutdown()
		return fmt.Errorf("failed to start analysis loop: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		logger.Info("Shutting down signal engine")
	case err := <-serverErr:
		logger.Error("HTTP server failed", logger.ErrorField(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", logger.ErrorField(err))
	}

	e.shutdown()
	logger.Info("Signal engine stopped")
	return nil
}

func analyzeAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	e, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer e.shutdown()

	tickCtx, cancel := context.WithTimeout(ctx, cfg.Analysis.FetchTimeout+5*time.Second)
	defer cancel()

	result, err := e.loop.RunOnce(tickCtx)
	if err != nil {
		return err
	}

	out := map[string]interface{}{"tick": result}
	if cmd.Bool("signals") {
		out["signals"] = e.service.ListSignals(cfg.Hub.InitialSignals)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func tailAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	client, err := pubsub.NewRedisClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer client.Close()

	tailerConfig := pubsub.DefaultEventTailerConfig(cfg.Redis.EventsStream)
	tailerConfig.StartID = cmd.String("from")

	enc := json.NewEncoder(os.Stdout)
	tailer := pubsub.NewEventTailer(client, tailerConfig, func(id string, event wsgateway.Event) {
		if err := enc.Encode(event); err != nil {
			logger.Warn("Failed to print event", logger.String("id", id), logger.ErrorField(err))
		}
	})
	if err := tailer.Start(); err != nil {
		return err
	}
	defer tailer.Stop()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	return nil
}
