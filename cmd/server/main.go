/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the portfolio engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (optional) and parse command-line flags
  2. Initialize SQLite store
  3. Wire the engine: Brazilian business-day calendar, BCB rate feed, runner
  4. Configure HTTP router and pass scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port      HTTP server port (default: 8080)
  -db        SQLite database path (default: portfolio.db)
             Use ":memory:" for an in-memory database
  -interval  Scheduler interval between engine passes (default: 1h)
  -once      Run a single engine pass and exit (no HTTP server)
  -seed      JSON portfolio definition loaded on startup (see factory/)

ENVIRONMENT:
  BRAPI_TOKEN      brapi.dev API token (enables quote updates)
  TWELVEDATA_KEY   Twelve Data API key (quote fallback)
  Loaded from .env when present. Rates come from the public BCB API and
  need no credentials.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections, drain active requests (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Serve with a file database
  ./server -db="./data/portfolio.db"

  # One batch pass, no server (cron-friendly)
  ./server -db="./data/portfolio.db" -once

SEE ALSO:
  - api/server.go: Router configuration
  - fixedincome/run.go: Engine pass
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/warp/portfolio-engine/api"
	"github.com/warp/portfolio-engine/calendar"
	"github.com/warp/portfolio-engine/factory"
	"github.com/warp/portfolio-engine/fixedincome"
	"github.com/warp/portfolio-engine/marketdata"
	"github.com/warp/portfolio-engine/store/sqlite"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "portfolio.db", "SQLite database path")
	interval := flag.Duration("interval", time.Hour, "time between scheduled engine passes")
	once := flag.Bool("once", false, "run a single engine pass and exit")
	seedPath := flag.String("seed", "", "JSON portfolio definition to load on startup")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	if *seedPath != "" {
		if err := seedFromFile(*seedPath, db); err != nil {
			log.Fatal("failed to seed portfolio", zap.String("path", *seedPath), zap.Error(err))
		}
		log.Info("portfolio seeded", zap.String("path", *seedPath))
	}

	runner := fixedincome.NewRunner(fixedincome.RunnerConfig{
		Store:    db,
		Calendar: fixedincome.NewCalendar(calendar.NewBrazil()),
		Rates:    marketdata.NewBCBClient(marketdata.BCBConfig{Log: log}),
		Log:      log,
	})
	prices := newPriceUpdater(db, log)

	if *once {
		runOnce(runner, prices, log)
		return
	}

	handler := api.NewHandler(db, runner)
	router := api.NewRouter(handler)

	scheduler := api.NewRunScheduler(runner, handler, log)
	scheduler.CheckInterval = *interval
	scheduler.BeforePass = func(ctx context.Context) {
		if _, err := prices.UpdateAll(ctx); err != nil {
			log.Warn("price update failed", zap.Error(err))
		}
	}
	scheduler.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.Int("port", *port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

func seedFromFile(path string, db *sqlite.Store) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	portfolio, err := factory.ParsePortfolio(data)
	if err != nil {
		return err
	}
	return portfolio.Seed(context.Background(), db)
}

// newPriceUpdater wires the quote cascade from whatever provider credentials
// the environment carries. With no credentials the updater still runs and
// simply skips every tickered asset.
func newPriceUpdater(db *sqlite.Store, log *zap.Logger) *marketdata.PriceUpdater {
	var providers []marketdata.QuoteProvider
	if token := os.Getenv("BRAPI_TOKEN"); token != "" {
		providers = append(providers, marketdata.NewBrapi(marketdata.ProviderConfig{Token: token}))
	}
	if key := os.Getenv("TWELVEDATA_KEY"); key != "" {
		providers = append(providers, marketdata.NewTwelveData(marketdata.ProviderConfig{Token: key}))
	}
	return marketdata.NewPriceUpdater(db, marketdata.NewCascade(log, providers...), log)
}

func runOnce(runner *fixedincome.Runner, prices *marketdata.PriceUpdater, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := prices.UpdateAll(ctx); err != nil {
		log.Warn("price update failed", zap.Error(err))
	}

	report, err := runner.Run(ctx)
	if err != nil {
		log.Fatal("engine pass failed", zap.Error(err))
	}
	log.Info("engine pass finished",
		zap.Int("promoted", report.Promoted),
		zap.Int("withdrawals", report.WithdrawalsProcessed),
		zap.Int("accrued", report.ContractsAccrued),
		zap.Int("skipped", report.Skipped),
		zap.Int("failures", len(report.Failures)),
	)
}
