package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/papertrade/papertrade/internal/domain"
)

// hundred is used for percentage scaling
var hundred = decimal.NewFromInt(100)

// ValuedHolding is a holding enriched with market data
type ValuedHolding struct {
	domain.Holding
	CurrentPrice     decimal.Decimal `json:"currentPrice"`
	MarketValue      decimal.Decimal `json:"marketValue"`
	TotalGain        decimal.Decimal `json:"totalGain"`
	TotalGainPercent decimal.Decimal `json:"totalGainPercent"`
}

// Summary aggregates valued holdings into portfolio-level totals
type Summary struct {
	TotalMarketValue decimal.Decimal `json:"totalMarketValue"`
	TotalCostBasis   decimal.Decimal `json:"totalCostBasis"`
	TotalGain        decimal.Decimal `json:"totalGain"`
	TotalGainPercent decimal.Decimal `json:"totalGainPercent"`
}

// ValueHolding computes market value and gain for one holding. When no quote
// is available the current price falls back to the holding's average cost, so
// the position values at cost with zero gain instead of failing the whole
// valuation. Read-path only; trade execution always requires a real quote.
func ValueHolding(h domain.Holding, quote *domain.Quote) ValuedHolding {
	currentPrice := h.AverageCost
	if quote != nil {
		currentPrice = quote.CurrentPrice
	}

	marketValue := h.Shares.Mul(currentPrice)
	costBasis := h.CostBasis()
	totalGain := marketValue.Sub(costBasis)

	totalGainPercent := decimal.Zero
	if costBasis.IsPositive() {
		totalGainPercent = totalGain.Div(costBasis).Mul(hundred)
	}

	return ValuedHolding{
		Holding:          h,
		CurrentPrice:     currentPrice,
		MarketValue:      marketValue,
		TotalGain:        totalGain,
		TotalGainPercent: totalGainPercent,
	}
}

// Summarize sums valued holdings into portfolio totals. Gain percent is zero
// when the cost basis is zero.
func Summarize(holdings []ValuedHolding) Summary {
	s := Summary{
		TotalMarketValue: decimal.Zero,
		TotalCostBasis:   decimal.Zero,
		TotalGain:        decimal.Zero,
		TotalGainPercent: decimal.Zero,
	}

	for _, h := range holdings {
		s.TotalMarketValue = s.TotalMarketValue.Add(h.MarketValue)
		s.TotalCostBasis = s.TotalCostBasis.Add(h.CostBasis())
		s.TotalGain = s.TotalGain.Add(h.TotalGain)
	}

	if s.TotalCostBasis.IsPositive() {
		s.TotalGainPercent = s.TotalGain.Div(s.TotalCostBasis).Mul(hundred)
	}

	return s
}

// TotalPortfolioValue is cash plus the market value of all holdings
func TotalPortfolioValue(cashBalance, totalMarketValue decimal.Decimal) decimal.Decimal {
	return cashBalance.Add(totalMarketValue)
}

// AllTimeGain is total portfolio value minus the starting capital
func AllTimeGain(totalPortfolioValue, startingCapital decimal.Decimal) decimal.Decimal {
	return totalPortfolioValue.Sub(startingCapital)
}
