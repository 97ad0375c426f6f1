package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/papertrade/papertrade/internal/domain"
)

type mockTickerSource struct {
	tickers []string
	err     error
}

func (m *mockTickerSource) ActiveTickers(_ context.Context) ([]string, error) {
	return m.tickers, m.err
}

type mockQuoteWarmer struct {
	fetched [][]string
	pruned  int
}

func (m *mockQuoteWarmer) GetQuotes(_ context.Context, tickers []string) map[string]*domain.Quote {
	m.fetched = append(m.fetched, tickers)
	return map[string]*domain.Quote{}
}

func (m *mockQuoteWarmer) PruneCache() int {
	m.pruned++
	return 0
}

func TestRefreshQuotesWarmsHeldTickers(t *testing.T) {
	warmer := &mockQuoteWarmer{}
	s := New(&mockTickerSource{tickers: []string{"AAPL", "MSFT"}}, warmer, zerolog.Nop())

	s.refreshQuotes()

	assert.Equal(t, 1, warmer.pruned)
	assert.Equal(t, [][]string{{"AAPL", "MSFT"}}, warmer.fetched)
}

func TestRefreshQuotesSkipsFetchWhenNothingHeld(t *testing.T) {
	warmer := &mockQuoteWarmer{}
	s := New(&mockTickerSource{}, warmer, zerolog.Nop())

	s.refreshQuotes()

	// pruning still runs, fetching does not
	assert.Equal(t, 1, warmer.pruned)
	assert.Empty(t, warmer.fetched)
}

func TestRefreshQuotesToleratesTickerSourceError(t *testing.T) {
	warmer := &mockQuoteWarmer{}
	s := New(&mockTickerSource{err: errors.New("db gone")}, warmer, zerolog.Nop())

	s.refreshQuotes()

	assert.Zero(t, warmer.pruned)
	assert.Empty(t, warmer.fetched)
}

func TestStartAndStop(t *testing.T) {
	s := New(&mockTickerSource{}, &mockQuoteWarmer{}, zerolog.Nop())

	assert.NoError(t, s.Start())
	s.Stop()
}
