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

// AccountRepository implements the AccountRepository interface
type AccountRepository struct {
	q queryable
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{q: db.Pool}
}

// newAccountRepositoryWithTx creates a new account repository with a transaction
func newAccountRepositoryWithTx(tx queryable) *AccountRepository {
	return &AccountRepository{q: tx}
}

const accountColumns = `id, user_id, currency, status, status_reason, created_at, updated_at`

func scanAccount(row rowScanner) (*models.Account, error) {
	var account models.Account
	err := row.Scan(
		&account.ID,
		&account.UserID,
		&account.Currency,
		&account.Status,
		&account.StatusReason,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// Create inserts a new account
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (id, user_id, currency, status, status_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.q.Exec(ctx, query,
		account.ID,
		account.UserID,
		account.Currency,
		account.Status,
		account.StatusReason,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create account for user %s: %w", account.UserID, translateError(err))
	}

	return nil
}

// GetByID retrieves an account by ID
func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", id, err)
	}

	return account, nil
}

// GetByUserID retrieves the account owned by a user
func (r *AccountRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1`

	account, err := scanAccount(r.q.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account for user %s: %w", userID, err)
	}

	return account, nil
}

// UpdateStatus writes the account's status and reason
func (r *AccountRepository) UpdateStatus(ctx context.Context, account *models.Account) error {
	query := `
		UPDATE accounts
		SET status = $1, status_reason = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := r.q.Exec(ctx, query, account.Status, account.StatusReason, account.UpdatedAt, account.ID)
	if err != nil {
		return fmt.Errorf("failed to update account %s: %w", account.ID, translateError(err))
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("account %s not found", account.ID)
	}

	return nil
}

// ListIDs returns the IDs of all accounts that are not closed
func (r *AccountRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	return r.listIDs(ctx, `
		SELECT id
		FROM accounts
		WHERE status <> 'closed'
		ORDER BY created_at, id
	`)
}

// ListAllIDs returns the IDs of every account, closed ones included
func (r *AccountRepository) ListAllIDs(ctx context.Context) ([]uuid.UUID, error) {
	return r.listIDs(ctx, `
		SELECT id
		FROM accounts
		ORDER BY created_at, id
	`)
}

func (r *AccountRepository) listIDs(ctx context.Context, query string) ([]uuid.UUID, error) {
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan account ids: %w", err)
	}

	return ids, nil
}
