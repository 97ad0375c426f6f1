// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/papertrade/papertrade/internal/domain"
)

// TickerSource lists the tickers worth keeping warm in the quote cache
type TickerSource interface {
	ActiveTickers(ctx context.Context) ([]string, error)
}

// QuoteWarmer is the slice of the quote service the refresh job uses
type QuoteWarmer interface {
	GetQuotes(ctx context.Context, tickers []string) map[string]*domain.Quote
	PruneCache() int
}

// Scheduler owns the cron runner and the registered jobs
type Scheduler struct {
	cron    *cron.Cron
	tickers TickerSource
	quotes  QuoteWarmer
	log     zerolog.Logger
}

// New creates a scheduler with the quote refresh job registered
func New(tickers TickerSource, quotes QuoteWarmer, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		tickers: tickers,
		quotes:  quotes,
		log:     log.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers schedules and begins running jobs. The refresh job runs
// every minute: with a 60s cache TTL that keeps held tickers warm on the
// read path without ever feeding execution directly.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("@every 1m", s.refreshQuotes); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
	return nil
}

// Stop halts the cron runner and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// refreshQuotes re-warms the quote cache for all actively held tickers and
// prunes expired entries. Failed fetches are already skipped and logged by
// the batch lookup; a partial warm-up is fine.
func (s *Scheduler) refreshQuotes() {
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	tickers, err := s.tickers.ActiveTickers(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list active tickers for quote refresh")
		return
	}

	pruned := s.quotes.PruneCache()

	if len(tickers) == 0 {
		return
	}

	fetched := s.quotes.GetQuotes(ctx, tickers)
	s.log.Debug().
		Int("tickers", len(tickers)).
		Int("fetched", len(fetched)).
		Int("pruned", pruned).
		Msg("Quote cache refreshed")
}
