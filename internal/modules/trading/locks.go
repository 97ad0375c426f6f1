package trading

import "sync"

// portfolioLocks hands out one mutex per portfolio id. Holding the mutex for
// the duration of a trade's read-check-write sequence is the in-process
// equivalent of a row-level exclusive lock: trades on the same portfolio
// serialize, trades on different portfolios run in parallel.
//
// Entries are never removed; the map is bounded by the number of portfolios
// ever traded in this process.
type portfolioLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPortfolioLocks() *portfolioLocks {
	return &portfolioLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

// acquire locks the mutex for a portfolio id and returns the release func
func (l *portfolioLocks) acquire(portfolioID string) func() {
	l.mu.Lock()
	m, ok := l.locks[portfolioID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[portfolioID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
