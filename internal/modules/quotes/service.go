// Package quotes implements the price oracle: a validated, cached view over
// the external quote provider.
package quotes

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/papertrade/papertrade/internal/domain"
)

// tickerPattern is the accepted symbol shape: 1-5 uppercase letters
var tickerPattern = regexp.MustCompile(`^[A-Z]{1,5}$`)

// Provider is the port to the external quote source
type Provider interface {
	Quote(ctx context.Context, ticker string) (*domain.Quote, error)
	Search(ctx context.Context, query string) ([]domain.SymbolMatch, error)
}

// Service serves quotes from the cache, falling through to the provider on
// miss. All tickers are normalized and validated before any network call.
type Service struct {
	provider Provider
	cache    *Cache
	log      zerolog.Logger
}

// NewService creates a new quote service
func NewService(provider Provider, cache *Cache, log zerolog.Logger) *Service {
	return &Service{
		provider: provider,
		cache:    cache,
		log:      log.With().Str("service", "quotes").Logger(),
	}
}

// NormalizeTicker uppercases, trims, and validates a ticker symbol
func NormalizeTicker(ticker string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(ticker))
	if !tickerPattern.MatchString(normalized) {
		return "", domain.Errorf(domain.CodeInvalidInput, "invalid ticker symbol: %q", ticker)
	}
	return normalized, nil
}

// GetQuote returns the current quote for a ticker, served from the cache
// within its freshness window. Provider errors propagate typed and unchanged.
func (s *Service) GetQuote(ctx context.Context, ticker string) (*domain.Quote, error) {
	normalized, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}

	if quote, ok := s.cache.Get(normalized); ok {
		return quote, nil
	}

	quote, err := s.provider.Quote(ctx, normalized)
	if err != nil {
		return nil, err
	}

	s.cache.Set(normalized, *quote)
	return quote, nil
}

// GetQuotes fetches quotes for multiple tickers sequentially, respecting
// provider rate limits. Tickers whose fetch fails are logged and omitted from
// the result; callers must tolerate partial maps.
func (s *Service) GetQuotes(ctx context.Context, tickers []string) map[string]*domain.Quote {
	results := make(map[string]*domain.Quote, len(tickers))

	for _, ticker := range tickers {
		quote, err := s.GetQuote(ctx, ticker)
		if err != nil {
			s.log.Warn().
				Err(err).
				Str("ticker", ticker).
				Msg("Skipping failed quote fetch in batch")
			continue
		}
		results[quote.Ticker] = quote
	}

	return results
}

// Search looks up symbols matching a free-text query
func (s *Service) Search(ctx context.Context, query string) ([]domain.SymbolMatch, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, domain.Errorf(domain.CodeInvalidInput, "search query is required")
	}

	return s.provider.Search(ctx, trimmed)
}

// PruneCache drops expired cache entries (called by the scheduler)
func (s *Service) PruneCache() int {
	return s.cache.Prune()
}
