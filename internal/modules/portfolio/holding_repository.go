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

// holdingColumns is the column list for the holdings table.
// Order must match scanHolding.
const holdingColumns = `id, portfolio_id, ticker, shares, average_cost, created_at, updated_at, deleted_at`

// HoldingRepository handles holding persistence. A partial unique index
// guarantees at most one active holding per (portfolio, ticker); soft-deleted
// rows stay behind as history.
type HoldingRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHoldingRepository creates a new holding repository
func NewHoldingRepository(db *sql.DB, log zerolog.Logger) *HoldingRepository {
	return &HoldingRepository{
		db:  db,
		log: log.With().Str("repo", "holding").Logger(),
	}
}

// ListByPortfolio returns all active holdings of a portfolio, by ticker
func (r *HoldingRepository) ListByPortfolio(ctx context.Context, portfolioID string) ([]domain.Holding, error) {
	query := "SELECT " + holdingColumns + ` FROM holdings
		WHERE portfolio_id = ? AND deleted_at IS NULL
		ORDER BY ticker ASC`

	rows, err := r.db.QueryContext(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list holdings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var holdings []domain.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate holdings: %w", err)
	}

	return holdings, nil
}

// GetActive returns the active holding for (portfolio, ticker), or nil
func (r *HoldingRepository) GetActive(ctx context.Context, portfolioID, ticker string) (*domain.Holding, error) {
	query := "SELECT " + holdingColumns + ` FROM holdings
		WHERE portfolio_id = ? AND ticker = ? AND deleted_at IS NULL`

	row := r.db.QueryRowContext(ctx, query, portfolioID, ticker)
	h, err := scanHolding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get holding: %w", err)
	}

	return h, nil
}

// GetActiveTx is the locked-path variant of GetActive
func (r *HoldingRepository) GetActiveTx(tx *sql.Tx, portfolioID, ticker string) (*domain.Holding, error) {
	query := "SELECT " + holdingColumns + ` FROM holdings
		WHERE portfolio_id = ? AND ticker = ? AND deleted_at IS NULL`

	row := tx.QueryRow(query, portfolioID, ticker)
	h, err := scanHolding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get holding: %w", err)
	}

	return h, nil
}

// CreateTx inserts a new holding inside the trade transaction
func (r *HoldingRepository) CreateTx(tx *sql.Tx, h *domain.Holding) error {
	query := `
		INSERT INTO holdings
		(id, portfolio_id, ticker, shares, average_cost, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := tx.Exec(query,
		h.ID,
		h.PortfolioID,
		h.Ticker,
		h.Shares.String(),
		h.AverageCost.String(),
		h.CreatedAt.Unix(),
		h.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create holding: %w", err)
	}

	return nil
}

// UpdatePositionTx sets shares and average cost inside the trade transaction
func (r *HoldingRepository) UpdatePositionTx(tx *sql.Tx, id string, shares, averageCost decimal.Decimal) error {
	query := `
		UPDATE holdings SET shares = ?, average_cost = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := tx.Exec(query, shares.String(), averageCost.String(), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update holding: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check holding update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("holding %s not found for update", id)
	}

	return nil
}

// SoftDeleteTx tombstones a fully liquidated holding inside the trade
// transaction. The row stays behind; a later buy of the same ticker creates
// a fresh holding that does not blend with the dead lot.
func (r *HoldingRepository) SoftDeleteTx(tx *sql.Tx, id string) error {
	now := time.Now().Unix()
	query := `UPDATE holdings SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`

	if _, err := tx.Exec(query, now, now, id); err != nil {
		return fmt.Errorf("failed to soft-delete holding: %w", err)
	}

	return nil
}

func scanHolding(row rowScanner) (*domain.Holding, error) {
	var (
		h           domain.Holding
		shares      string
		averageCost string
		createdAt   int64
		updatedAt   int64
		deletedAt   sql.NullInt64
	)

	err := row.Scan(&h.ID, &h.PortfolioID, &h.Ticker, &shares, &averageCost,
		&createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	if h.Shares, err = decimal.NewFromString(shares); err != nil {
		return nil, fmt.Errorf("invalid shares %q: %w", shares, err)
	}
	if h.AverageCost, err = decimal.NewFromString(averageCost); err != nil {
		return nil, fmt.Errorf("invalid average_cost %q: %w", averageCost, err)
	}

	h.CreatedAt = time.Unix(createdAt, 0).UTC()
	h.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if deletedAt.Valid {
		t := time.Unix(deletedAt.Int64, 0).UTC()
		h.DeletedAt = &t
	}

	return &h, nil
}
