package portfolio

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/papertrade/papertrade/internal/domain"
)

// maxStartingCapital caps new portfolios at $10,000,000
var maxStartingCapital = decimal.NewFromInt(10_000_000)

// QuoteGetter is the slice of the quote service the read path needs
type QuoteGetter interface {
	GetQuotes(ctx context.Context, tickers []string) map[string]*domain.Quote
}

// Service implements portfolio management. It owns the portfolio-to-user
// authorization: every lookup is keyed by (portfolio, owner), and a missing
// row is reported the same way as a foreign-owned one.
type Service struct {
	portfolios *PortfolioRepository
	holdings   *HoldingRepository
	quotes     QuoteGetter
	log        zerolog.Logger
}

// NewService creates a new portfolio service
func NewService(
	portfolios *PortfolioRepository,
	holdings *HoldingRepository,
	quotes QuoteGetter,
	log zerolog.Logger,
) *Service {
	return &Service{
		portfolios: portfolios,
		holdings:   holdings,
		quotes:     quotes,
		log:        log.With().Str("service", "portfolio").Logger(),
	}
}

// Create makes a new portfolio with the cash balance initialized to the
// starting capital. The starting capital is immutable afterwards.
func (s *Service) Create(ctx context.Context, userID, name string, startingCapital decimal.Decimal) (*domain.Portfolio, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, domain.Errorf(domain.CodeInvalidInput, "portfolio name is required")
	}
	if !startingCapital.IsPositive() {
		return nil, domain.Errorf(domain.CodeInvalidInput, "starting capital must be a positive number")
	}
	if startingCapital.GreaterThan(maxStartingCapital) {
		return nil, domain.Errorf(domain.CodeInvalidInput, "starting capital cannot exceed $10,000,000")
	}

	now := time.Now().UTC().Truncate(time.Second)
	p := &domain.Portfolio{
		ID:              uuid.NewString(),
		UserID:          userID,
		Name:            trimmed,
		StartingCapital: startingCapital,
		CashBalance:     startingCapital,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.portfolios.Create(ctx, p); err != nil {
		return nil, err
	}

	return p, nil
}

// ListByUser returns the user's active portfolios, newest first
func (s *Service) ListByUser(ctx context.Context, userID string) ([]domain.Portfolio, error) {
	return s.portfolios.ListByUser(ctx, userID)
}

// GetByID returns an owned, active portfolio or NotFound. Absence, soft
// deletion, and foreign ownership all produce the same NotFound.
func (s *Service) GetByID(ctx context.Context, portfolioID, userID string) (*domain.Portfolio, error) {
	p, err := s.portfolios.GetByID(ctx, portfolioID, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.Errorf(domain.CodeNotFound, "portfolio not found")
	}
	return p, nil
}

// Rename changes the display name of an owned portfolio
func (s *Service) Rename(ctx context.Context, portfolioID, userID, newName string) (*domain.Portfolio, error) {
	trimmed := strings.TrimSpace(newName)
	if trimmed == "" {
		return nil, domain.Errorf(domain.CodeInvalidInput, "portfolio name cannot be empty")
	}

	renamed, err := s.portfolios.Rename(ctx, portfolioID, userID, trimmed)
	if err != nil {
		return nil, err
	}
	if !renamed {
		return nil, domain.Errorf(domain.CodeNotFound, "portfolio not found")
	}

	return s.GetByID(ctx, portfolioID, userID)
}

// SoftDelete marks an owned portfolio deleted without cascading into its
// holdings or transactions; the historical ledger stays intact.
func (s *Service) SoftDelete(ctx context.Context, portfolioID, userID string) error {
	deleted, err := s.portfolios.SoftDelete(ctx, portfolioID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.Errorf(domain.CodeNotFound, "portfolio not found")
	}

	s.log.Info().Str("portfolio_id", portfolioID).Msg("Portfolio soft-deleted")
	return nil
}

// ValuedHoldings returns a portfolio's holdings valued against current
// quotes, plus the aggregate summary. Tickers whose quote fetch failed are
// valued at average cost (zero gain); the batch lookup already logged them.
func (s *Service) ValuedHoldings(ctx context.Context, portfolioID, userID string) ([]ValuedHolding, Summary, error) {
	if _, err := s.GetByID(ctx, portfolioID, userID); err != nil {
		return nil, Summary{}, err
	}

	holdings, err := s.holdings.ListByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, Summary{}, err
	}

	if len(holdings) == 0 {
		return []ValuedHolding{}, Summarize(nil), nil
	}

	tickers := make([]string, 0, len(holdings))
	for _, h := range holdings {
		tickers = append(tickers, h.Ticker)
	}
	quotesByTicker := s.quotes.GetQuotes(ctx, tickers)

	valued := make([]ValuedHolding, 0, len(holdings))
	for _, h := range holdings {
		valued = append(valued, ValueHolding(h, quotesByTicker[h.Ticker]))
	}

	return valued, Summarize(valued), nil
}

// Detail is a portfolio plus its computed aggregate values
type Detail struct {
	domain.Portfolio
	TotalMarketValue decimal.Decimal `json:"totalMarketValue"`
	TotalValue       decimal.Decimal `json:"totalValue"`
	AllTimeGain      decimal.Decimal `json:"allTimeGain"`
}

// GetDetail returns a portfolio with its total value and all-time gain
func (s *Service) GetDetail(ctx context.Context, portfolioID, userID string) (*Detail, error) {
	p, err := s.GetByID(ctx, portfolioID, userID)
	if err != nil {
		return nil, err
	}

	_, summary, err := s.ValuedHoldings(ctx, portfolioID, userID)
	if err != nil {
		return nil, err
	}

	totalValue := TotalPortfolioValue(p.CashBalance, summary.TotalMarketValue)

	return &Detail{
		Portfolio:        *p,
		TotalMarketValue: summary.TotalMarketValue,
		TotalValue:       totalValue,
		AllTimeGain:      AllTimeGain(totalValue, p.StartingCapital),
	}, nil
}
