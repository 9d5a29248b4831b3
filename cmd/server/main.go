/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the customer ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (optional) and parse command-line flags
  2. Initialize SQLite store
  3. Wire engine, inventory, and sync queue
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port          HTTP server port (default: 8080)
  -db            SQLite database path (default: ledger.db)
                 Use ":memory:" for an in-memory database
  -tax-rate      Tax rate applied at settlement (default: 0)
  -loyalty-rate  Points per currency unit billed (default: 0.1)
  -sync-interval How often the sync queue flushes (default: 30s)

ENVIRONMENT (overridden by flags):
  PORT, DB_PATH, LOG_LEVEL

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Final sync queue flush
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/shop.db"

  # Run with in-memory database
  ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - ledger/engine.go: The operations behind the endpoints
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
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/pos-ledger/api"
	"github.com/warp/pos-ledger/ledger"
	"github.com/warp/pos-ledger/pos"
	"github.com/warp/pos-ledger/store/sqlite"
)

func main() {
	// .env is optional; flags win over environment.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "ledger.db"), "SQLite database path")
	taxRate := flag.String("tax-rate", "0", "tax rate applied at settlement")
	loyaltyRate := flag.String("loyalty-rate", "0.1", "loyalty points per currency unit")
	syncInterval := flag.Duration("sync-interval", 30*time.Second, "sync queue flush interval")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	if lvl, err := zerolog.ParseLevel(envStr("LOG_LEVEL", "info")); err == nil {
		log = log.Level(lvl)
	}

	settings := ledger.DefaultSettings()
	if v, err := decimal.NewFromString(*taxRate); err == nil {
		settings.TaxRate = v
	}
	if v, err := decimal.NewFromString(*loyaltyRate); err == nil {
		settings.LoyaltyRate = v
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer store.Close()

	// Wire collaborators. The sink just logs deliveries; a real deployment
	// points it at the backup endpoint.
	queue := pos.NewQueue(pos.SinkFunc(func(_ context.Context, a ledger.Action) error {
		log.Debug().Str("kind", string(a.Kind)).Str("key", a.IdempotencyKey).
			Msg("sync action delivered")
		return nil
	}), *syncInterval, log)

	engine := ledger.NewEngine(store, settings)
	engine.Inventory = pos.NewMemoryInventory()
	engine.Queue = queue
	engine.Log = log

	queueCtx, stopQueue := context.WithCancel(context.Background())
	go queue.Start(queueCtx)

	handler := api.NewHandler(engine, store, log)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", *port).Str("db", *dbPath).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	// Stop the flush loop; it attempts one final flush on the way out.
	stopQueue()
	queue.Wait()

	log.Info().Msg("server stopped")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}
