// Package main is the entry point for the paper-trading portfolio service.
//
// The application follows a layered design:
// - Domain layer is pure (entities and the error taxonomy)
// - Repositories own persistence against the SQLite ledger
// - Services own business logic (portfolio management, trade execution,
//   the quote oracle)
// - HTTP handlers expose the services; identity resolution is pluggable
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/papertrade/papertrade/internal/auth"
	"github.com/papertrade/papertrade/internal/clients/finnhub"
	"github.com/papertrade/papertrade/internal/config"
	"github.com/papertrade/papertrade/internal/database"
	"github.com/papertrade/papertrade/internal/modules/portfolio"
	portfoliohandlers "github.com/papertrade/papertrade/internal/modules/portfolio/handlers"
	"github.com/papertrade/papertrade/internal/modules/quotes"
	quoteshandlers "github.com/papertrade/papertrade/internal/modules/quotes/handlers"
	"github.com/papertrade/papertrade/internal/modules/trading"
	tradinghandlers "github.com/papertrade/papertrade/internal/modules/trading/handlers"
	"github.com/papertrade/papertrade/internal/scheduler"
	"github.com/papertrade/papertrade/internal/server"
	"github.com/papertrade/papertrade/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting paper-trading service")

	// Ledger database: the single source of truth for portfolios, holdings,
	// and the immutable transaction ledger.
	ledgerDB, err := database.New(database.Config{
		Path:    cfg.LedgerDBPath(),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	defer func() { _ = ledgerDB.Close() }()

	if err := ledgerDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate ledger database")
	}

	// Quote oracle: Finnhub behind a short-lived cache
	finnhubClient := finnhub.NewClient(cfg.FinnhubAPIKey, log)
	if cfg.FinnhubBaseURL != "" {
		finnhubClient.SetBaseURL(cfg.FinnhubBaseURL)
	}
	quoteCache := quotes.NewCache(cfg.QuoteCacheTTL)
	quoteService := quotes.NewService(finnhubClient, quoteCache, log)

	// Repositories and services
	portfolioRepo := portfolio.NewPortfolioRepository(ledgerDB.Conn(), log)
	holdingRepo := portfolio.NewHoldingRepository(ledgerDB.Conn(), log)
	transactionRepo := trading.NewTransactionRepository(ledgerDB.Conn(), log)

	portfolioService := portfolio.NewService(portfolioRepo, holdingRepo, quoteService, log)
	tradeService := trading.NewService(ledgerDB, portfolioRepo, holdingRepo, transactionRepo, quoteService, log)

	// Background quote refresh for held tickers
	sched := scheduler.New(portfolioRepo, quoteService, log)
	if cfg.FinnhubAPIKey != "" {
		if err := sched.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start scheduler")
		}
		defer sched.Stop()
	} else {
		log.Warn().Msg("FINNHUB_API_KEY not set; quote refresh job disabled")
	}

	// HTTP server
	srv := server.New(server.Config{
		Log:               log,
		LedgerDB:          ledgerDB,
		Port:              cfg.Port,
		DevMode:           cfg.DevMode,
		UserResolver:      auth.HeaderResolver{},
		PortfolioHandlers: portfoliohandlers.NewHandler(portfolioService, log),
		TradingHandlers:   tradinghandlers.NewHandler(tradeService, portfolioService, log),
		QuoteHandlers:     quoteshandlers.NewHandler(quoteService, log),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
}
