package quotes

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrade/papertrade/internal/domain"
)

func testQuote(ticker, price string) domain.Quote {
	return domain.Quote{
		Ticker:       ticker,
		CurrentPrice: decimal.RequireFromString(price),
		Timestamp:    time.Now().UTC(),
	}
}

func TestCacheSetAndGet(t *testing.T) {
	cache := NewCache(time.Minute)

	cache.Set("AAPL", testQuote("AAPL", "150.25"))

	got, ok := cache.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, "AAPL", got.Ticker)
	assert.True(t, got.CurrentPrice.Equal(decimal.RequireFromString("150.25")))

	_, ok = cache.Get("MSFT")
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	cache := NewCache(10 * time.Millisecond)

	cache.Set("AAPL", testQuote("AAPL", "150.25"))
	time.Sleep(20 * time.Millisecond)

	_, ok := cache.Get("AAPL")
	assert.False(t, ok)
}

func TestCacheGetReturnsCopy(t *testing.T) {
	cache := NewCache(time.Minute)
	cache.Set("AAPL", testQuote("AAPL", "150.25"))

	first, ok := cache.Get("AAPL")
	require.True(t, ok)
	first.Ticker = "mutated"

	second, ok := cache.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, "AAPL", second.Ticker)
}

func TestCachePrune(t *testing.T) {
	cache := NewCache(10 * time.Millisecond)

	cache.Set("AAPL", testQuote("AAPL", "150"))
	cache.Set("MSFT", testQuote("MSFT", "400"))
	time.Sleep(20 * time.Millisecond)
	cache.Set("GOOG", testQuote("GOOG", "140"))

	pruned := cache.Prune()
	assert.Equal(t, 2, pruned)
	assert.Equal(t, 1, cache.Len())

	_, ok := cache.Get("GOOG")
	assert.True(t, ok)
}

func TestCacheClear(t *testing.T) {
	cache := NewCache(time.Minute)

	cache.Set("AAPL", testQuote("AAPL", "150"))
	cache.Set("MSFT", testQuote("MSFT", "400"))
	require.Equal(t, 2, cache.Len())

	cache.Clear()
	assert.Equal(t, 0, cache.Len())
}
