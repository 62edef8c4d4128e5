package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grid_trader/internal/config"
	"grid_trader/internal/core"
	"grid_trader/internal/exchange/sim"
	"grid_trader/internal/grid"
	"grid_trader/internal/infrastructure/metrics"
	"grid_trader/internal/store"
	"grid_trader/pkg/liveserver"
	"grid_trader/pkg/logging"
	"grid_trader/pkg/telemetry"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/grid_trader.yaml", "Path to configuration file")
	startPrice := flag.Float64("sim-start-price", 2000, "Starting price for the simulated exchange")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("grid_trader version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	tel, err := telemetry.Setup("grid_trader")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up telemetry: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting grid_trader",
		"version", version,
		"exchange", cfg.App.Exchange,
		"contract", cfg.App.ContractID,
		"spacing_percent", cfg.Grid.SpacingPercent,
		"levels", cfg.Grid.LowerCount+cfg.Grid.UpperCount,
		"fill_policy", cfg.Grid.FillPolicy,
		"reposition_mode", cfg.Grid.RepositionMode,
	)
	logger.Debug("Effective configuration", "config", cfg.String())

	exchange := buildExchange(cfg, *startPrice, logger)
	stateStore := buildStore(cfg, logger)
	defer stateStore.Close()

	engine := grid.NewEngine(cfg, exchange, stateStore, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.Initialize(ctx); err != nil {
		logger.Error("Grid initialization failed", "error", err)
		os.Exit(1)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		// Whatever ends the engine ends the supporting servers too.
		defer cancel()
		return engine.Run(groupCtx)
	})

	var liveSrv *liveserver.Server
	if cfg.Server.LiveAddr != "" {
		hub := liveserver.NewHub(logger)
		liveSrv = liveserver.NewServer(hub, logger, []string{"*"})

		group.Go(func() error {
			hub.Run(groupCtx)
			return nil
		})
		group.Go(func() error {
			return liveSrv.Start(groupCtx, cfg.Server.LiveAddr)
		})
		group.Go(func() error {
			ticker := time.NewTicker(time.Duration(cfg.Timing.LoopInterval) * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-groupCtx.Done():
					return nil
				case <-ticker.C:
					hub.Broadcast(liveserver.NewStatusMessage(engine.Status()))
				}
			}
		})
		logger.Info("Live status server enabled",
			"websocket_url", fmt.Sprintf("ws://localhost%s/ws", cfg.Server.LiveAddr))
	}

	var metricsSrv *metrics.Server
	if cfg.Server.MetricsPort > 0 {
		metricsSrv = metrics.NewServer(cfg.Server.MetricsPort, logger)
		metricsSrv.Start()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Received shutdown signal", "signal", sig.String())
			engine.Shutdown(fmt.Sprintf("signal %s", sig))
			cancel()
		case <-groupCtx.Done():
		}
	}()

	if err := group.Wait(); err != nil {
		logger.Error("Engine terminated with error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if liveSrv != nil {
		if err := liveSrv.Stop(shutdownCtx); err != nil {
			logger.Warn("Live server shutdown error", "error", err)
		}
	}
	if metricsSrv != nil {
		if err := metricsSrv.Stop(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown error", "error", err)
		}
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Telemetry shutdown error", "error", err)
	}

	logger.Info("grid_trader stopped")
}

// buildExchange selects the exchange implementation. Only the simulator ships
// here; live venues plug in behind core.IExchange.
func buildExchange(cfg *config.Config, startPrice float64, logger core.ILogger) core.IExchange {
	return sim.NewExchange(cfg.App.ContractID, decimal.NewFromFloat(startPrice), logger)
}

// buildStore selects snapshot persistence: SQLite when a path is configured,
// in-memory otherwise.
func buildStore(cfg *config.Config, logger core.ILogger) core.IStateStore {
	if cfg.Store.DBPath == "" {
		logger.Info("Snapshot persistence disabled, using in-memory store")
		return store.NewMemoryStore()
	}
	s, err := store.NewSQLiteStore(cfg.Store.DBPath)
	if err != nil {
		logger.Warn("Snapshot store unavailable, falling back to memory", "db_path", cfg.Store.DBPath, "error", err)
		return store.NewMemoryStore()
	}
	logger.Info("Snapshot store ready", "db_path", cfg.Store.DBPath)
	return s
}
