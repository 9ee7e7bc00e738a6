package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Kerhoff/WishPool/internal/api"
	"github.com/Kerhoff/WishPool/internal/config"
	"github.com/Kerhoff/WishPool/internal/handlers"
	"github.com/Kerhoff/WishPool/internal/ledger"
	"github.com/Kerhoff/WishPool/internal/metrics"
	"github.com/Kerhoff/WishPool/internal/notify"
	"github.com/Kerhoff/WishPool/internal/repository"
	"github.com/Kerhoff/WishPool/internal/repository/memory"
	"github.com/Kerhoff/WishPool/internal/repository/postgres"
	"github.com/Kerhoff/WishPool/internal/repository/sqlite"
	"github.com/Kerhoff/WishPool/internal/telegram"
	"github.com/Kerhoff/WishPool/pkg/logger"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.New(cfg.LogLevel, cfg.LogJSON)
	l.Info("Starting WishPool...")

	// Ledger store
	var store repository.LedgerStore
	switch cfg.Store {
	case config.StorePostgres:
		db, err := config.NewDatabase(cfg.DatabaseURL, l)
		if err != nil {
			l.Fatalf("Failed to connect to database: %v", err)
		}
		if err := db.Migrate("migrations"); err != nil {
			l.Fatalf("Failed to run migrations: %v", err)
		}
		store = postgres.NewLedgerStore(db.DB)
	case config.StoreSQLite:
		store, err = sqlite.NewLedgerStore(cfg.SQLitePath)
		if err != nil {
			l.Fatalf("Failed to open sqlite store: %v", err)
		}
	default:
		store = memory.NewLedgerStore()
		l.Warn("Using in-memory store: all data is lost on restart")
	}
	defer store.Close()

	// Metrics, change broker, ledger core
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	broker := notify.NewBroker(l, m)
	coordinator := ledger.NewCoordinator(store, broker, l, m)
	admin := ledger.NewAdmin(store, broker, l, m)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		l.Info("Received shutdown signal...")
		cancel()
	}()

	// Telegram surface (optional)
	if cfg.TelegramToken != "" {
		bot, err := telegram.NewBot(cfg.TelegramToken, l)
		if err != nil {
			l.Fatalf("Failed to create Telegram bot: %v", err)
		}

		bot.RegisterCommand("start", handlers.NewStartHandler(l))
		bot.RegisterCommand("help", handlers.NewHelpHandler(l))
		bot.RegisterCommand("items", handlers.NewItemsHandler(admin, l))
		bot.RegisterCommand("claim", handlers.NewClaimHandler(coordinator, admin, l))
		bot.RegisterCommand("chip", handlers.NewChipHandler(coordinator, admin, l))

		go func() {
			if err := bot.Start(ctx); err != nil {
				l.Errorf("Bot error: %v", err)
			}
		}()

		if cfg.AnnounceChatID != 0 {
			announcer := notify.NewAnnouncer(broker, bot, cfg.AnnounceChatID, l)
			go announcer.Run(ctx)
		}
	}

	// HTTP API
	apiServer := api.NewServer(coordinator, admin, l, registry)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: apiServer.Handler(),
	}

	go func() {
		l.Infof("HTTP server listening on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Errorf("HTTP server error: %v", err)
		}
	}()

	l.Info("WishPool started successfully")

	<-ctx.Done()

	l.Info("Shutting down HTTP server...")
	httpServer.Close()

	l.Info("WishPool stopped")
}
