/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the fee engine server: loads the deployment,
  opens the SQLite store, deploys (or resumes) the fee processor, starts
  the process scheduler and serves the HTTP API.

STARTUP SEQUENCE:
  1. Load configuration (YAML, .env, environment) and apply flags
  2. Parse the deployment
  3. Initialize SQLite store and mint genesis balances on an empty ledger
  4. Deploy or resume the processor
  5. Start scheduler and HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -config     YAML configuration file (optional)
  -port       HTTP server port
  -db         SQLite database path (":memory:" for in-memory)
  -log-level  debug, info, warn, error
  -scheduler  Enable the process scheduler
  -interval   Scheduler poll interval

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for an in-flight process call)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

SEE ALSO:
  - config/config.go: Configuration precedence
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/warp/fee-engine/api"
	"github.com/warp/fee-engine/config"
	"github.com/warp/fee-engine/factory"
	"github.com/warp/fee-engine/generic"
	"github.com/warp/fee-engine/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML configuration file")
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "fees.db", "SQLite database path")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	schedulerOn := flag.Bool("scheduler", true, "Enable the process scheduler")
	interval := flag.Duration("interval", time.Minute, "Scheduler poll interval")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Flags given explicitly win over file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = *port
		case "db":
			cfg.DB = *dbPath
		case "log-level":
			cfg.LogLevel = *logLevel
		case "scheduler":
			cfg.Scheduler.Enabled = *schedulerOn
		case "interval":
			cfg.Scheduler.Interval = config.Duration{Duration: *interval}
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)

	dep, err := factory.NewDeploymentFactory().FromJSON(cfg.Deploy)
	if err != nil {
		logger.Error("invalid deployment", "error", err)
		os.Exit(1)
	}

	// Initialize store
	store, err := sqlite.New(cfg.DB, dep.Unit)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	if err := mintGenesis(ctx, store, dep, cfg.Genesis, logger); err != nil {
		logger.Error("failed to mint genesis balances", "error", err)
		os.Exit(1)
	}

	clock := generic.SystemClock{}
	proc, err := generic.NewFeeProcessor(ctx, generic.ProcessorDeps{
		Calendar: dep.Calendar,
		Clock:    clock,
		Store:    store,
		Logger:   logger.With("deployment", dep.ID),
	}, dep.Config)
	if err != nil {
		logger.Error("failed to deploy processor", "error", err)
		os.Exit(1)
	}

	last, err := proc.LastPeriodExecIdx(ctx)
	if err != nil {
		logger.Error("failed to load processor state", "error", err)
		os.Exit(1)
	}
	logger.Info("processor ready",
		"deployment", dep.ID,
		"calendar", dep.Calendar.Name,
		"period", uint64(proc.PeriodIdx()),
		"last_processed", uint64(last),
	)

	// Scheduler triggers as the owner so owner_only deployments work too
	scheduler := api.NewProcessScheduler(proc, dep.Config.Owner, logger)
	scheduler.Interval = cfg.Scheduler.Interval.Duration
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.Start()

	router := api.NewRouter(api.NewHandler(proc, dep, clock))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", "addr", fmt.Sprintf("http://localhost:%d/api", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}

// mintGenesis seeds the development ledger once, while total supply is zero.
// All mints commit together or not at all, so a failed start is retried in
// full on the next one.
func mintGenesis(ctx context.Context, store generic.TxStore, dep *factory.Deployment, mints []config.GenesisMint, logger *slog.Logger) error {
	if len(mints) == 0 {
		return nil
	}

	minted := false
	err := store.WithTx(ctx, func(tx generic.Store) error {
		ledger := tx.Ledger()
		supply, err := ledger.TotalSupply(ctx)
		if err != nil {
			return err
		}
		if !supply.IsZero() {
			return nil
		}

		minter, ok := ledger.(generic.MintableLedger)
		if !ok {
			return fmt.Errorf("ledger does not support minting")
		}
		for _, m := range mints {
			amount := dep.ToBaseUnits(m.Amount.Decimal)
			if err := minter.Mint(ctx, generic.Address(m.Address), amount); err != nil {
				return fmt.Errorf("mint %s to %s: %w", m.Amount.String(), m.Address, err)
			}
		}
		minted = true
		return nil
	})
	if err != nil {
		return err
	}

	if minted {
		for _, m := range mints {
			logger.Info("genesis mint", "address", m.Address, "tokens", m.Amount.String())
		}
	}
	return nil
}
