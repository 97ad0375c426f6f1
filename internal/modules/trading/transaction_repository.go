package trading

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/papertrade/papertrade/internal/domain"
)

// transactionColumns is the column list for the transactions table.
// Order must match scanTransaction.
const transactionColumns = `id, portfolio_id, ticker, side, shares, price_per_share, total_amount, executed_at`

// TransactionRepository persists the immutable trade ledger. Rows are only
// ever inserted; there are no update or delete paths.
type TransactionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sql.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:  db,
		log: log.With().Str("repo", "transaction").Logger(),
	}
}

// InsertTx appends a transaction inside the trade's database transaction
func (r *TransactionRepository) InsertTx(tx *sql.Tx, t *domain.Transaction) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	query := `
		INSERT INTO transactions
		(id, portfolio_id, ticker, side, shares, price_per_share, total_amount, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := tx.Exec(query,
		t.ID,
		t.PortfolioID,
		t.Ticker,
		string(t.Side),
		t.Shares.String(),
		t.PricePerShare.String(),
		t.TotalAmount.String(),
		t.ExecutedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	return nil
}

// GetByPortfolio retrieves a portfolio's transactions, most recent first
func (r *TransactionRepository) GetByPortfolio(ctx context.Context, portfolioID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT " + transactionColumns + ` FROM transactions
		WHERE portfolio_id = ?
		ORDER BY executed_at DESC, id DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return transactions, nil
}

// GetByID retrieves one transaction scoped to a portfolio, or nil
func (r *TransactionRepository) GetByID(ctx context.Context, transactionID, portfolioID string) (*domain.Transaction, error) {
	query := "SELECT " + transactionColumns + ` FROM transactions
		WHERE id = ? AND portfolio_id = ?`

	row := r.db.QueryRowContext(ctx, query, transactionID, portfolioID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return t, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		t          domain.Transaction
		side       string
		shares     string
		price      string
		total      string
		executedAt int64
	)

	err := row.Scan(&t.ID, &t.PortfolioID, &t.Ticker, &side, &shares, &price, &total, &executedAt)
	if err != nil {
		return nil, err
	}

	parsedSide, err := domain.TradeSideFromString(side)
	if err != nil {
		return nil, err
	}
	t.Side = parsedSide

	if t.Shares, err = decimal.NewFromString(shares); err != nil {
		return nil, fmt.Errorf("invalid shares %q: %w", shares, err)
	}
	if t.PricePerShare, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("invalid price_per_share %q: %w", price, err)
	}
	if t.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("invalid total_amount %q: %w", total, err)
	}

	t.ExecutedAt = time.Unix(executedAt, 0).UTC()

	return &t, nil
}
