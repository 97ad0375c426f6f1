// Package domain contains the core entities and error taxonomy for the
// paper-trading ledger. The package is pure: no infrastructure dependencies.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TradeSide represents the direction of a trade
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// TradeSideFromString parses a trade side string (case-insensitive)
func TradeSideFromString(s string) (TradeSide, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return TradeSideBuy, nil
	case "SELL":
		return TradeSideSell, nil
	default:
		return "", fmt.Errorf("invalid trade side: %q", s)
	}
}

// Portfolio is a user-owned paper-trading account. StartingCapital is fixed
// at creation; CashBalance moves with every trade and never goes negative.
type Portfolio struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	Name            string          `json:"name"`
	StartingCapital decimal.Decimal `json:"startingCapital"`
	CashBalance     decimal.Decimal `json:"cashBalance"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	DeletedAt       *time.Time      `json:"-"`
}

// Holding is an open position within a portfolio. At most one active holding
// exists per (portfolio, ticker); AverageCost is the weighted-average
// purchase price and is only moved by buys.
type Holding struct {
	ID          string          `json:"id"`
	PortfolioID string          `json:"portfolioId"`
	Ticker      string          `json:"ticker"`
	Shares      decimal.Decimal `json:"shares"`
	AverageCost decimal.Decimal `json:"averageCost"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	DeletedAt   *time.Time      `json:"-"`
}

// CostBasis returns shares x average cost
func (h *Holding) CostBasis() decimal.Decimal {
	return h.Shares.Mul(h.AverageCost)
}

// Transaction is one immutable row of the trade ledger. TotalAmount is
// computed and frozen at execution time, never recomputed from later prices.
type Transaction struct {
	ID            string          `json:"id"`
	PortfolioID   string          `json:"portfolioId"`
	Ticker        string          `json:"ticker"`
	Side          TradeSide       `json:"type"`
	Shares        decimal.Decimal `json:"shares"`
	PricePerShare decimal.Decimal `json:"pricePerShare"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	ExecutedAt    time.Time       `json:"executedAt"`
}

// Validate checks ledger invariants before a transaction is persisted
func (t *Transaction) Validate() error {
	if t.PortfolioID == "" {
		return fmt.Errorf("transaction missing portfolio id")
	}
	if t.Ticker == "" {
		return fmt.Errorf("transaction missing ticker")
	}
	if t.Side != TradeSideBuy && t.Side != TradeSideSell {
		return fmt.Errorf("invalid trade side: %q", t.Side)
	}
	if !t.Shares.IsPositive() {
		return fmt.Errorf("transaction shares must be positive, got %s", t.Shares)
	}
	if !t.PricePerShare.IsPositive() {
		return fmt.Errorf("transaction price must be positive, got %s", t.PricePerShare)
	}
	return nil
}

// Quote is a transient market snapshot for a ticker. It is cached briefly by
// the price oracle but never persisted; historical execution prices live in
// Transaction rows.
type Quote struct {
	Ticker        string          `json:"ticker"`
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	Change        float64         `json:"change"`
	ChangePercent float64         `json:"changePercent"`
	HighPrice     float64         `json:"highPrice"`
	LowPrice      float64         `json:"lowPrice"`
	OpenPrice     float64         `json:"openPrice"`
	PreviousClose float64         `json:"previousClose"`
	Timestamp     time.Time       `json:"timestamp"`
}

// SymbolMatch is one result from a symbol search
type SymbolMatch struct {
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Type        string `json:"type"`
}
