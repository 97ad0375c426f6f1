// Package portfolio implements portfolio management: CRUD over portfolios,
// holding persistence, and valuation of holdings against market quotes.
package portfolio

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

// portfolioColumns is the column list for the portfolios table.
// Order must match scanPortfolio.
const portfolioColumns = `id, user_id, name, starting_capital, cash_balance, created_at, updated_at, deleted_at`

// PortfolioRepository handles portfolio persistence. All reads filter out
// soft-deleted rows; ownership is part of every lookup key so absence and
// foreign ownership are indistinguishable to callers.
type PortfolioRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPortfolioRepository creates a new portfolio repository
func NewPortfolioRepository(db *sql.DB, log zerolog.Logger) *PortfolioRepository {
	return &PortfolioRepository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// Create inserts a new portfolio row
func (r *PortfolioRepository) Create(ctx context.Context, p *domain.Portfolio) error {
	query := `
		INSERT INTO portfolios
		(id, user_id, name, starting_capital, cash_balance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.UserID,
		p.Name,
		p.StartingCapital.String(),
		p.CashBalance.String(),
		p.CreatedAt.Unix(),
		p.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}

	r.log.Info().
		Str("portfolio_id", p.ID).
		Str("user_id", p.UserID).
		Str("starting_capital", p.StartingCapital.String()).
		Msg("Portfolio created")

	return nil
}

// GetByID retrieves an active portfolio by (id, owner). Returns nil when the
// row is absent, soft-deleted, or owned by someone else.
func (r *PortfolioRepository) GetByID(ctx context.Context, id, userID string) (*domain.Portfolio, error) {
	query := "SELECT " + portfolioColumns + ` FROM portfolios
		WHERE id = ? AND user_id = ? AND deleted_at IS NULL`

	row := r.db.QueryRowContext(ctx, query, id, userID)
	p, err := scanPortfolio(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}

	return p, nil
}

// GetByIDTx is the locked-path variant of GetByID, executed inside the trade
// transaction so the read-check-write sequence sees committed state only.
func (r *PortfolioRepository) GetByIDTx(tx *sql.Tx, id, userID string) (*domain.Portfolio, error) {
	query := "SELECT " + portfolioColumns + ` FROM portfolios
		WHERE id = ? AND user_id = ? AND deleted_at IS NULL`

	row := tx.QueryRow(query, id, userID)
	p, err := scanPortfolio(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}

	return p, nil
}

// ListByUser returns all active portfolios owned by a user, newest first
func (r *PortfolioRepository) ListByUser(ctx context.Context, userID string) ([]domain.Portfolio, error) {
	query := "SELECT " + portfolioColumns + ` FROM portfolios
		WHERE user_id = ? AND deleted_at IS NULL
		ORDER BY created_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var portfolios []domain.Portfolio
	for rows.Next() {
		p, err := scanPortfolioRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate portfolios: %w", err)
	}

	return portfolios, nil
}

// Rename updates the display name of an owned, active portfolio.
// Returns false when no row matched.
func (r *PortfolioRepository) Rename(ctx context.Context, id, userID, name string) (bool, error) {
	query := `
		UPDATE portfolios SET name = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, name, time.Now().Unix(), id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to rename portfolio: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rename result: %w", err)
	}

	return affected > 0, nil
}

// SoftDelete marks an owned portfolio deleted. Holdings and transactions are
// left untouched so the ledger history is preserved.
func (r *PortfolioRepository) SoftDelete(ctx context.Context, id, userID string) (bool, error) {
	now := time.Now().Unix()
	query := `
		UPDATE portfolios SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, now, now, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to soft-delete portfolio: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check delete result: %w", err)
	}

	return affected > 0, nil
}

// UpdateCashBalanceTx sets the cash balance inside the trade transaction
func (r *PortfolioRepository) UpdateCashBalanceTx(tx *sql.Tx, id string, balance decimal.Decimal) error {
	query := `UPDATE portfolios SET cash_balance = ?, updated_at = ? WHERE id = ?`

	if _, err := tx.Exec(query, balance.String(), time.Now().Unix(), id); err != nil {
		return fmt.Errorf("failed to update cash balance: %w", err)
	}

	return nil
}

// ActiveTickers returns the distinct set of tickers held in any active
// portfolio. Used by the quote refresh job to warm the cache.
func (r *PortfolioRepository) ActiveTickers(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT h.ticker
		FROM holdings h
		JOIN portfolios p ON p.id = h.portfolio_id
		WHERE h.deleted_at IS NULL AND p.deleted_at IS NULL
		ORDER BY h.ticker
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tickers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tickers []string
	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, ticker)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tickers: %w", err)
	}

	return tickers, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPortfolio(row rowScanner) (*domain.Portfolio, error) {
	var (
		p               domain.Portfolio
		startingCapital string
		cashBalance     string
		createdAt       int64
		updatedAt       int64
		deletedAt       sql.NullInt64
	)

	err := row.Scan(&p.ID, &p.UserID, &p.Name, &startingCapital, &cashBalance,
		&createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	if p.StartingCapital, err = decimal.NewFromString(startingCapital); err != nil {
		return nil, fmt.Errorf("invalid starting_capital %q: %w", startingCapital, err)
	}
	if p.CashBalance, err = decimal.NewFromString(cashBalance); err != nil {
		return nil, fmt.Errorf("invalid cash_balance %q: %w", cashBalance, err)
	}

	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if deletedAt.Valid {
		t := time.Unix(deletedAt.Int64, 0).UTC()
		p.DeletedAt = &t
	}

	return &p, nil
}

func scanPortfolioRows(rows *sql.Rows) (*domain.Portfolio, error) {
	return scanPortfolio(rows)
}
