package trading

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrade/papertrade/internal/database"
	"github.com/papertrade/papertrade/internal/domain"
	"github.com/papertrade/papertrade/internal/modules/portfolio"
	testingpkg "github.com/papertrade/papertrade/internal/testing"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// mockQuotes serves fixed prices per ticker and is safe for concurrent use.
// Tickers mapped to an error fail the fetch.
type mockQuotes struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	errs   map[string]error
	calls  int
}

func newMockQuotes() *mockQuotes {
	return &mockQuotes{
		prices: make(map[string]decimal.Decimal),
		errs:   make(map[string]error),
	}
}

func (m *mockQuotes) setPrice(ticker, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[ticker] = dec(price)
}

func (m *mockQuotes) GetQuote(_ context.Context, ticker string) (*domain.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if err, ok := m.errs[ticker]; ok {
		return nil, err
	}
	price, ok := m.prices[ticker]
	if !ok {
		return nil, domain.Errorf(domain.CodeNotFound, "stock symbol '%s' not found", ticker)
	}
	return &domain.Quote{Ticker: ticker, CurrentPrice: price, Timestamp: time.Now().UTC()}, nil
}

type testExecutor struct {
	svc        *Service
	portfolios *portfolio.PortfolioRepository
	holdings   *portfolio.HoldingRepository
	quotes     *mockQuotes
	db         *database.DB
}

func newTestExecutor(t *testing.T) *testExecutor {
	t.Helper()

	db, cleanup := testingpkg.NewTestDB(t)
	t.Cleanup(cleanup)

	log := zerolog.Nop()
	portfolios := portfolio.NewPortfolioRepository(db.Conn(), log)
	holdings := portfolio.NewHoldingRepository(db.Conn(), log)
	transactions := NewTransactionRepository(db.Conn(), log)
	quotes := newMockQuotes()

	return &testExecutor{
		svc:        NewService(db, portfolios, holdings, transactions, quotes, log),
		portfolios: portfolios,
		holdings:   holdings,
		quotes:     quotes,
		db:         db,
	}
}

func (e *testExecutor) seedPortfolio(t *testing.T, userID, cash string) *domain.Portfolio {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Second)
	p := &domain.Portfolio{
		ID:              uuid.NewString(),
		UserID:          userID,
		Name:            "Main",
		StartingCapital: dec(cash),
		CashBalance:     dec(cash),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, e.portfolios.Create(context.Background(), p))
	return p
}

func (e *testExecutor) cashBalance(t *testing.T, portfolioID, userID string) decimal.Decimal {
	t.Helper()

	p, err := e.portfolios.GetByID(context.Background(), portfolioID, userID)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.CashBalance
}

func (e *testExecutor) activeHolding(t *testing.T, portfolioID, ticker string) *domain.Holding {
	t.Helper()

	h, err := e.holdings.GetActive(context.Background(), portfolioID, ticker)
	require.NoError(t, err)
	return h
}

func TestBuySellLifecycle(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()
	p := e.seedPortfolio(t, "user-1", "10000")

	// first buy opens the position at the quoted price
	e.quotes.setPrice("AAPL", "150")
	result, err := e.svc.Buy(ctx, p.ID, "user-1", "AAPL", dec("10"))
	require.NoError(t, err)

	assert.True(t, result.NewCashBalance.Equal(dec("8500")))
	require.NotNil(t, result.Holding)
	assert.True(t, result.Holding.Shares.Equal(dec("10")))
	assert.True(t, result.Holding.AverageCost.Equal(dec("150")))
	assert.Equal(t, domain.TradeSideBuy, result.Transaction.Side)
	assert.True(t, result.Transaction.TotalAmount.Equal(dec("1500")))

	// second buy at a higher price moves the weighted average
	e.quotes.setPrice("AAPL", "180")
	result, err = e.svc.Buy(ctx, p.ID, "user-1", "AAPL", dec("5"))
	require.NoError(t, err)

	assert.True(t, result.NewCashBalance.Equal(dec("7600")))
	assert.True(t, result.Holding.Shares.Equal(dec("15")))
	assert.True(t, result.Holding.AverageCost.Equal(dec("160")))

	// selling everything liquidates the holding and realizes the gain
	e.quotes.setPrice("AAPL", "200")
	result, err = e.svc.Sell(ctx, p.ID, "user-1", "AAPL", dec("15"))
	require.NoError(t, err)

	assert.True(t, result.NewCashBalance.Equal(dec("10600")))
	assert.Nil(t, result.Holding)
	assert.Nil(t, e.activeHolding(t, p.ID, "AAPL"))

	// the ledger kept every trade
	history, err := e.svc.Transactions(ctx, p.ID, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)

	sides := map[domain.TradeSide]int{}
	for _, txn := range history {
		sides[txn.Side]++
	}
	assert.Equal(t, 2, sides[domain.TradeSideBuy])
	assert.Equal(t, 1, sides[domain.TradeSideSell])
}

func TestSellKeepsAverageCost(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()
	p := e.seedPortfolio(t, "user-1", "10000")

	e.quotes.setPrice("AAPL", "150")
	_, err := e.svc.Buy(ctx, p.ID, "user-1", "AAPL", dec("10"))
	require.NoError(t, err)

	e.quotes.setPrice("AAPL", "200")
	result, err := e.svc.Sell(ctx, p.ID, "user-1", "AAPL", dec("4"))
	require.NoError(t, err)

	require.NotNil(t, result.Holding)
	assert.True(t, result.Holding.Shares.Equal(dec("6")))
	assert.True(t, result.Holding.AverageCost.Equal(dec("150")))
}

func TestBuyFractionalShares(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()
	p := e.seedPortfolio(t, "user-1", "1000")

	e.quotes.setPrice("AAPL", "150.50")
	result, err := e.svc.Buy(ctx, p.ID, "user-1", "AAPL", dec("2.5"))
	require.NoError(t, err)

	assert.True(t, result.Transaction.TotalAmount.Equal(dec("376.25")))
	assert.True(t, result.NewCashBalance.Equal(dec("623.75")))
	assert.True(t, result.Holding.Shares.Equal(dec("2.5")))
}

func TestBuyInsufficientFundsRollsBack(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()
	p := e.seedPortfolio(t, "user-1", "1000")

	e.quotes.setPrice("AAPL", "150")
	_, err := e.svc.Buy(ctx, p.ID, "user-1", "AAPL", dec("10"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientFunds))
	assert.Contains(t, err.Error(), "Required: $1500.00")
	assert.Contains(t, err.Error(), "Available: $1000.00")

	// nothing moved
	assert.True(t, e.cashBalance(t, p.ID, "user-1").Equal(dec("1000")))
	assert.Nil(t, e.activeHolding(t, p.ID, "AAPL"))

	history, err := e.svc.Transactions(ctx, p.ID, "user-1", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestBuyExactBalanceSucceeds(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()
	p := e.seedPortfolio(t, "user-1", "1500")

	e.quotes.setPrice("AAPL", "150")
	result, err := e.svc.Buy(ctx, p.ID, "user-1", "AAPL", dec("10"))
	require.NoError(t, err)
	assert.True(t, result.NewCashBalance.IsZero())
}

func TestSellMoreThanOwnedRollsBack(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()
	p := e.seedPortfolio(t, "user-1", "10000")

	e.quotes.setPrice("AAPL", "150")
	_, err := e.svc.Buy(ctx, p.ID, "user-1", "AAPL", dec("10"))
	require.NoError(t, err)

	_, err = e.svc.Sell(ctx, p.ID, "user-1", "AAPL", dec("20"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientShares))
	assert.Contains(t, err.Error(), "Requested: 20, Available: 10")

	// position and cash untouched by the failed sell
	h := e.activeHolding(t, p.ID, "AAPL")
	require.NotNil(t, h)
	assert.True(t, h.Shares.Equal(dec("10")))
	assert.True(t, e.cashBalance(t, p.ID, "user-1").Equal(dec("8500")))
}

func TestSellTickerNeverOwned(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()
	p := e.seedPortfolio(t, "user-1", "10000")

	e.quotes.setPrice("MSFT", "400")
	_, err := e.svc.Sell(ctx, p.ID, "user-1", "MSFT", dec("1"))

	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Contains(t, err.Error(), "MSFT")
}

func TestRebuyAfterLiquidationStartsFreshLot(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()
	p := e.seedPortfolio(t, "user-1", "10000")

	e.quotes.setPrice("AAPL", "150")
	_, err := e.svc.Buy(ctx, p.ID, "user-1", "AAPL", dec("10"))
	require.NoError(t, err)

	_, err = e.svc.Sell(ctx, p.ID, "user-1", "AAPL", dec("10"))
	require.NoError(t, err)

	// new lot priced at the new quote, not blended with the dead one
	e.quotes.setPrice("AAPL", "300")
	result, err := e.svc.Buy(ctx, p.ID, "user-1", "AAPL", dec("2"))
	require.NoError(t, err)

	assert.True(t, result.Holding.Shares.Equal(dec("2")))
	assert.True(t, result.Holding.AverageCost.Equal(dec("300")))
}

func TestDustRemainderLiquidates(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()
	p := e.seedPortfolio(t, "user-1", "10000")

	e.quotes.setPrice("AAPL", "100")
	_, err := e.svc.Buy(ctx, p.ID, "user-1", "AAPL", dec("1"))
	require.NoError(t, err)

	// leaves 0.00005 shares, below the liquidation threshold
	result, err := e.svc.Sell(ctx, p.ID, "user-1", "AAPL", dec("0.99995"))
	require.NoError(t, err)

	assert.Nil(t, result.Holding)
	assert.Nil(t, e.activeHolding(t, p.ID, "AAPL"))
}

func TestTradeValidatesShares(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()
	p := e.seedPortfolio(t, "user-1", "10000")
	e.quotes.setPrice("AAPL", "150")

	for _, shares := range []string{"0", "-5"} {
		_, err := e.svc.Buy(ctx, p.ID, "user-1", "AAPL", dec(shares))
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))

		_, err = e.svc.Sell(ctx, p.ID, "user-1", "AAPL", dec(shares))
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	}

	// invalid shares never hit the quote provider
	assert.Equal(t, 0, e.quotes.calls)
}

func TestTradeOnForeignPortfolio(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()
	p := e.seedPortfolio(t, "user-1", "10000")

	e.quotes.setPrice("AAPL", "150")
	_, err := e.svc.Buy(ctx, p.ID, "user-2", "AAPL", dec("1"))
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	// and the owner's cash is untouched
	assert.True(t, e.cashBalance(t, p.ID, "user-1").Equal(dec("10000")))
}

func TestQuoteFailureAbortsWithNoSideEffects(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()
	p := e.seedPortfolio(t, "user-1", "10000")

	e.quotes.errs["AAPL"] = domain.Errorf(domain.CodeRateLimited, "quote provider rate limit exceeded")

	_, err := e.svc.Buy(ctx, p.ID, "user-1", "AAPL", dec("1"))
	assert.True(t, errors.Is(err, domain.ErrRateLimited))

	assert.True(t, e.cashBalance(t, p.ID, "user-1").Equal(dec("10000")))
	history, err := e.svc.Transactions(ctx, p.ID, "user-1", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestConcurrentBuysWithFundsForOne(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()
	p := e.seedPortfolio(t, "user-1", "1500")
	e.quotes.setPrice("AAPL", "100")

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.Buy(ctx, p.ID, "user-1", "AAPL", dec("10"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, rejected int
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.True(t, errors.Is(err, domain.ErrInsufficientFunds), "unexpected error: %v", err)
		rejected++
	}

	// the lock serializes the trades so exactly one sees enough cash
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
	assert.True(t, e.cashBalance(t, p.ID, "user-1").Equal(dec("500")))

	h := e.activeHolding(t, p.ID, "AAPL")
	require.NotNil(t, h)
	assert.True(t, h.Shares.Equal(dec("10")))
}

func TestRandomizedTradesConserveCash(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()
	p := e.seedPortfolio(t, "user-1", "100000")

	rng := rand.New(rand.NewSource(42))
	expectedCash := dec("100000")
	heldShares := decimal.Zero

	for i := 0; i < 500; i++ {
		price := decimal.NewFromInt(int64(rng.Intn(49000) + 1000)).Div(dec("100"))
		e.quotes.setPrice("AAPL", price.String())

		shares := decimal.NewFromInt(int64(rng.Intn(400) + 1)).Div(dec("100"))

		if rng.Intn(2) == 0 || heldShares.IsZero() {
			cost := shares.Mul(price)
			if expectedCash.LessThan(cost) {
				continue
			}
			_, err := e.svc.Buy(ctx, p.ID, "user-1", "AAPL", shares)
			require.NoError(t, err)
			expectedCash = expectedCash.Sub(cost)
			heldShares = heldShares.Add(shares)
		} else {
			if shares.GreaterThan(heldShares) {
				shares = heldShares
			}
			_, err := e.svc.Sell(ctx, p.ID, "user-1", "AAPL", shares)
			require.NoError(t, err)
			expectedCash = expectedCash.Add(shares.Mul(price))
			heldShares = heldShares.Sub(shares)
			if heldShares.LessThan(dustThreshold) {
				heldShares = decimal.Zero
			}
		}
	}

	got := e.cashBalance(t, p.ID, "user-1")
	assert.True(t, got.Equal(expectedCash),
		"cash drifted: got %s, want %s", got, expectedCash)

	h := e.activeHolding(t, p.ID, "AAPL")
	if heldShares.IsZero() {
		assert.Nil(t, h)
	} else {
		require.NotNil(t, h)
		assert.True(t, h.Shares.Equal(heldShares))
	}
}

func TestTransactionHistoryOrderingAndLimit(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()
	p := e.seedPortfolio(t, "user-1", "100000")

	// seed ledger rows directly with distinct timestamps
	base := time.Now().Add(-time.Hour).Unix()
	for i := 0; i < 5; i++ {
		testingpkg.MustExec(t, e.db, `
			INSERT INTO transactions
			(id, portfolio_id, ticker, side, shares, price_per_share, total_amount, executed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), p.ID, "AAPL", "BUY", "1", fmt.Sprintf("%d", 100+i), fmt.Sprintf("%d", 100+i), base+int64(i*60))
	}

	history, err := e.svc.Transactions(ctx, p.ID, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 5)

	// most recent first
	assert.True(t, history[0].PricePerShare.Equal(dec("104")))
	assert.True(t, history[4].PricePerShare.Equal(dec("100")))

	limited, err := e.svc.Transactions(ctx, p.ID, "user-1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	// foreign owner sees nothing
	_, err = e.svc.Transactions(ctx, p.ID, "user-2", 0)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestGetTransactionScopedToPortfolio(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()
	p := e.seedPortfolio(t, "user-1", "10000")
	other := e.seedPortfolio(t, "user-1", "10000")

	e.quotes.setPrice("AAPL", "150")
	result, err := e.svc.Buy(ctx, p.ID, "user-1", "AAPL", dec("1"))
	require.NoError(t, err)

	got, err := e.svc.Transaction(ctx, result.Transaction.ID, p.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, result.Transaction.ID, got.ID)
	assert.True(t, got.PricePerShare.Equal(dec("150")))

	// same row through another portfolio is not found
	_, err = e.svc.Transaction(ctx, result.Transaction.ID, other.ID, "user-1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	// unknown id is not found
	_, err = e.svc.Transaction(ctx, uuid.NewString(), p.ID, "user-1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
