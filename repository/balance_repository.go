package repository

import (
	"context"
	"errors"
	"fmt"

	"looseline/database"
	"looseline/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// BalanceRepository implements the BalanceRepository interface over account_balances
type BalanceRepository struct {
	q queryable
}

// NewBalanceRepository creates a new balance repository
func NewBalanceRepository(db *database.DB) *BalanceRepository {
	return &BalanceRepository{q: db.Pool}
}

// newBalanceRepositoryWithTx creates a new balance repository with a transaction
func newBalanceRepositoryWithTx(tx queryable) *BalanceRepository {
	return &BalanceRepository{q: tx}
}

const balanceColumns = `account_id, balance, locked_in_bets, total_deposited, total_withdrawn,
		total_bet, total_won, last_transaction_at, updated_at`

func scanBalance(row rowScanner) (*models.BalanceSnapshot, error) {
	var b models.BalanceSnapshot
	err := row.Scan(
		&b.AccountID,
		&b.Balance,
		&b.LockedInBets,
		&b.TotalDeposited,
		&b.TotalWithdrawn,
		&b.TotalBet,
		&b.TotalWon,
		&b.LastTransactionAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Create inserts the zero aggregate for a new account
func (r *BalanceRepository) Create(ctx context.Context, accountID uuid.UUID) (*models.BalanceSnapshot, error) {
	query := `
		INSERT INTO account_balances (account_id)
		VALUES ($1)
		RETURNING ` + balanceColumns

	b, err := scanBalance(r.q.QueryRow(ctx, query, accountID))
	if err != nil {
		return nil, fmt.Errorf("failed to create balance for account %s: %w", accountID, translateError(err))
	}

	return b, nil
}

// Get reads the aggregate without locking
func (r *BalanceRepository) Get(ctx context.Context, accountID uuid.UUID) (*models.BalanceSnapshot, error) {
	return r.get(ctx, `SELECT `+balanceColumns+` FROM account_balances WHERE account_id = $1`, accountID)
}

// GetForUpdate reads the aggregate and holds its row lock for the rest of the transaction
func (r *BalanceRepository) GetForUpdate(ctx context.Context, accountID uuid.UUID) (*models.BalanceSnapshot, error) {
	return r.get(ctx, `SELECT `+balanceColumns+` FROM account_balances WHERE account_id = $1 FOR UPDATE`, accountID)
}

func (r *BalanceRepository) get(ctx context.Context, query string, accountID uuid.UUID) (*models.BalanceSnapshot, error) {
	b, err := scanBalance(r.q.QueryRow(ctx, query, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance for account %s: %w", accountID, translateError(err))
	}

	return b, nil
}

// Save writes the balance, locked stakes and running totals back
func (r *BalanceRepository) Save(ctx context.Context, b *models.BalanceSnapshot) error {
	query := `
		UPDATE account_balances
		SET balance = $1,
		    locked_in_bets = $2,
		    total_deposited = $3,
		    total_withdrawn = $4,
		    total_bet = $5,
		    total_won = $6,
		    last_transaction_at = $7,
		    updated_at = NOW()
		WHERE account_id = $8
		RETURNING updated_at
	`

	err := r.q.QueryRow(ctx, query,
		b.Balance,
		b.LockedInBets,
		b.TotalDeposited,
		b.TotalWithdrawn,
		b.TotalBet,
		b.TotalWon,
		b.LastTransactionAt,
		b.AccountID,
	).Scan(&b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("balance for account %s not found", b.AccountID)
	}
	if err != nil {
		return fmt.Errorf("failed to save balance for account %s: %w", b.AccountID, translateError(err))
	}

	return nil
}
