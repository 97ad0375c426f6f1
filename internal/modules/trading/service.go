// Package trading implements the trade executor: atomic buy/sell orders that
// maintain the weighted-average-cost invariant over the ledger.
package trading

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/papertrade/papertrade/internal/database"
	"github.com/papertrade/papertrade/internal/domain"
	"github.com/papertrade/papertrade/internal/modules/portfolio"
)

// dustThreshold treats residual share counts below it as fully liquidated,
// so floating remainders from fractional sells don't leave ghost holdings.
var dustThreshold = decimal.RequireFromString("0.0001")

// QuoteGetter is the slice of the quote service the executor needs. A trade
// always requires a real price: there is no fallback on this path.
type QuoteGetter interface {
	GetQuote(ctx context.Context, ticker string) (*domain.Quote, error)
}

// HoldingSnapshot is the post-trade state of the touched holding
type HoldingSnapshot struct {
	Ticker      string          `json:"ticker"`
	Shares      decimal.Decimal `json:"shares"`
	AverageCost decimal.Decimal `json:"averageCost"`
}

// Result is the outcome of an executed trade
type Result struct {
	Transaction    domain.Transaction `json:"transaction"`
	NewCashBalance decimal.Decimal    `json:"newCashBalance"`
	// Holding is nil when a sell fully liquidated the position
	Holding *HoldingSnapshot `json:"holding"`
}

// Service executes buy and sell orders. Each order runs as a single database
// transaction under the portfolio's exclusive lock, so concurrent trades on
// one portfolio serialize and the cash/share read-check-write sequence can
// never lose an update.
type Service struct {
	db           *database.DB
	portfolios   *portfolio.PortfolioRepository
	holdings     *portfolio.HoldingRepository
	transactions *TransactionRepository
	quotes       QuoteGetter
	locks        *portfolioLocks
	log          zerolog.Logger
}

// NewService creates a new trade execution service
func NewService(
	db *database.DB,
	portfolios *portfolio.PortfolioRepository,
	holdings *portfolio.HoldingRepository,
	transactions *TransactionRepository,
	quotes QuoteGetter,
	log zerolog.Logger,
) *Service {
	return &Service{
		db:           db,
		portfolios:   portfolios,
		holdings:     holdings,
		transactions: transactions,
		quotes:       quotes,
		locks:        newPortfolioLocks(),
		log:          log.With().Str("service", "trading").Logger(),
	}
}

// Buy executes a market buy at the current quoted price.
//
// The quote is fetched before any lock is taken: a quote failure aborts with
// no side effects. Everything after runs inside one locked transaction -
// ownership check, funds check, weighted-average recompute, cash decrement,
// ledger append - and rolls back as a unit on any failure.
func (s *Service) Buy(ctx context.Context, portfolioID, userID, ticker string, shares decimal.Decimal) (*Result, error) {
	if !shares.IsPositive() {
		return nil, domain.Errorf(domain.CodeInvalidInput, "shares must be greater than 0")
	}

	quote, err := s.quotes.GetQuote(ctx, ticker)
	if err != nil {
		return nil, err
	}

	price := quote.CurrentPrice
	totalCost := shares.Mul(price)

	unlock := s.locks.acquire(portfolioID)
	defer unlock()

	var result *Result
	err = database.WithTransaction(ctx, s.db.Conn(), func(tx *sql.Tx) error {
		p, err := s.portfolios.GetByIDTx(tx, portfolioID, userID)
		if err != nil {
			return err
		}
		if p == nil {
			return domain.Errorf(domain.CodeNotFound, "portfolio not found")
		}

		if p.CashBalance.LessThan(totalCost) {
			return domain.Errorf(domain.CodeInsufficientFunds,
				"Insufficient funds. Required: $%s, Available: $%s",
				totalCost.StringFixed(2), p.CashBalance.StringFixed(2))
		}

		holding, err := s.holdings.GetActiveTx(tx, portfolioID, quote.Ticker)
		if err != nil {
			return err
		}

		var snapshot HoldingSnapshot
		now := time.Now().UTC().Truncate(time.Second)

		if holding != nil {
			// Weighted average: total invested over total shares. Sells never
			// touch this; only buys move the average.
			newShares := holding.Shares.Add(shares)
			newAverageCost := holding.Shares.Mul(holding.AverageCost).
				Add(shares.Mul(price)).
				Div(newShares)

			if err := s.holdings.UpdatePositionTx(tx, holding.ID, newShares, newAverageCost); err != nil {
				return err
			}
			snapshot = HoldingSnapshot{Ticker: quote.Ticker, Shares: newShares, AverageCost: newAverageCost}
		} else {
			fresh := &domain.Holding{
				ID:          uuid.NewString(),
				PortfolioID: portfolioID,
				Ticker:      quote.Ticker,
				Shares:      shares,
				AverageCost: price,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := s.holdings.CreateTx(tx, fresh); err != nil {
				return err
			}
			snapshot = HoldingSnapshot{Ticker: quote.Ticker, Shares: shares, AverageCost: price}
		}

		newCashBalance := p.CashBalance.Sub(totalCost)
		if err := s.portfolios.UpdateCashBalanceTx(tx, portfolioID, newCashBalance); err != nil {
			return err
		}

		txn := domain.Transaction{
			ID:            uuid.NewString(),
			PortfolioID:   portfolioID,
			Ticker:        quote.Ticker,
			Side:          domain.TradeSideBuy,
			Shares:        shares,
			PricePerShare: price,
			TotalAmount:   totalCost,
			ExecutedAt:    now,
		}
		if err := s.transactions.InsertTx(tx, &txn); err != nil {
			return err
		}

		result = &Result{
			Transaction:    txn,
			NewCashBalance: newCashBalance,
			Holding:        &snapshot,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("portfolio_id", portfolioID).
		Str("ticker", result.Transaction.Ticker).
		Str("shares", shares.String()).
		Str("price", price.String()).
		Msg("Buy executed")

	return result, nil
}

// Sell executes a market sell at the current quoted price.
//
// Selling never changes the average cost. When the remaining share count
// drops below the dust threshold the holding is soft-deleted; a later buy of
// the same ticker starts a fresh lot at the new price.
func (s *Service) Sell(ctx context.Context, portfolioID, userID, ticker string, shares decimal.Decimal) (*Result, error) {
	if !shares.IsPositive() {
		return nil, domain.Errorf(domain.CodeInvalidInput, "shares must be greater than 0")
	}

	quote, err := s.quotes.GetQuote(ctx, ticker)
	if err != nil {
		return nil, err
	}

	price := quote.CurrentPrice
	totalValue := shares.Mul(price)

	unlock := s.locks.acquire(portfolioID)
	defer unlock()

	var result *Result
	err = database.WithTransaction(ctx, s.db.Conn(), func(tx *sql.Tx) error {
		p, err := s.portfolios.GetByIDTx(tx, portfolioID, userID)
		if err != nil {
			return err
		}
		if p == nil {
			return domain.Errorf(domain.CodeNotFound, "portfolio not found")
		}

		holding, err := s.holdings.GetActiveTx(tx, portfolioID, quote.Ticker)
		if err != nil {
			return err
		}
		if holding == nil {
			return domain.Errorf(domain.CodeNotFound, "you don't own any shares of %s", quote.Ticker)
		}

		if shares.GreaterThan(holding.Shares) {
			return domain.Errorf(domain.CodeInsufficientShares,
				"Insufficient shares. Requested: %s, Available: %s",
				shares.String(), holding.Shares.String())
		}

		newShares := holding.Shares.Sub(shares)
		now := time.Now().UTC().Truncate(time.Second)

		var snapshot *HoldingSnapshot
		if newShares.LessThan(dustThreshold) {
			if err := s.holdings.SoftDeleteTx(tx, holding.ID); err != nil {
				return err
			}
		} else {
			if err := s.holdings.UpdatePositionTx(tx, holding.ID, newShares, holding.AverageCost); err != nil {
				return err
			}
			snapshot = &HoldingSnapshot{Ticker: quote.Ticker, Shares: newShares, AverageCost: holding.AverageCost}
		}

		newCashBalance := p.CashBalance.Add(totalValue)
		if err := s.portfolios.UpdateCashBalanceTx(tx, portfolioID, newCashBalance); err != nil {
			return err
		}

		txn := domain.Transaction{
			ID:            uuid.NewString(),
			PortfolioID:   portfolioID,
			Ticker:        quote.Ticker,
			Side:          domain.TradeSideSell,
			Shares:        shares,
			PricePerShare: price,
			TotalAmount:   totalValue,
			ExecutedAt:    now,
		}
		if err := s.transactions.InsertTx(tx, &txn); err != nil {
			return err
		}

		result = &Result{
			Transaction:    txn,
			NewCashBalance: newCashBalance,
			Holding:        snapshot,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("portfolio_id", portfolioID).
		Str("ticker", result.Transaction.Ticker).
		Str("shares", shares.String()).
		Str("price", price.String()).
		Bool("liquidated", result.Holding == nil).
		Msg("Sell executed")

	return result, nil
}

// Transactions returns a portfolio's trade history after an ownership check
func (s *Service) Transactions(ctx context.Context, portfolioID, userID string, limit int) ([]domain.Transaction, error) {
	p, err := s.portfolios.GetByID(ctx, portfolioID, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.Errorf(domain.CodeNotFound, "portfolio not found")
	}

	return s.transactions.GetByPortfolio(ctx, portfolioID, limit)
}

// Transaction returns one ledger row scoped to an owned portfolio
func (s *Service) Transaction(ctx context.Context, transactionID, portfolioID, userID string) (*domain.Transaction, error) {
	p, err := s.portfolios.GetByID(ctx, portfolioID, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.Errorf(domain.CodeNotFound, "portfolio not found")
	}

	t, err := s.transactions.GetByID(ctx, transactionID, portfolioID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, domain.Errorf(domain.CodeNotFound, "transaction not found")
	}

	return t, nil
}
