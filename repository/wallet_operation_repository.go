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

// WalletOperationRepository implements the WalletOperationRepository interface
type WalletOperationRepository struct {
	q queryable
}

// NewWalletOperationRepository creates a new wallet operation repository
func NewWalletOperationRepository(db *database.DB) *WalletOperationRepository {
	return &WalletOperationRepository{q: db.Pool}
}

// newWalletOperationRepositoryWithTx creates a new wallet operation repository with a transaction
func newWalletOperationRepositoryWithTx(tx queryable) *WalletOperationRepository {
	return &WalletOperationRepository{q: tx}
}

const walletOperationColumns = `id, account_id, operation_type, amount, currency, fee_amount, net_amount,
		status, processor, processor_reference, idempotency_key, error_code, error_message,
		ledger_entry_id, initiated_at, processed_at, completed_at, created_at, updated_at`

func scanWalletOperation(row rowScanner) (*models.WalletOperation, error) {
	var op models.WalletOperation
	err := row.Scan(
		&op.ID,
		&op.AccountID,
		&op.OperationType,
		&op.Amount,
		&op.Currency,
		&op.FeeAmount,
		&op.NetAmount,
		&op.Status,
		&op.Processor,
		&op.ProcessorReference,
		&op.IdempotencyKey,
		&op.ErrorCode,
		&op.ErrorMessage,
		&op.LedgerEntryID,
		&op.InitiatedAt,
		&op.ProcessedAt,
		&op.CompletedAt,
		&op.CreatedAt,
		&op.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// Create inserts a new operation. Losing an idempotency key race surfaces as
// ErrConcurrencyConflict so the caller retries and finds the winner.
func (r *WalletOperationRepository) Create(ctx context.Context, op *models.WalletOperation) error {
	query := `
		INSERT INTO wallet_operations
		(id, account_id, operation_type, amount, currency, fee_amount, net_amount, status,
		 processor, processor_reference, idempotency_key, initiated_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.q.Exec(ctx, query,
		op.ID,
		op.AccountID,
		op.OperationType,
		op.Amount,
		op.Currency,
		op.FeeAmount,
		op.NetAmount,
		op.Status,
		op.Processor,
		op.ProcessorReference,
		op.IdempotencyKey,
		op.InitiatedAt,
		op.CreatedAt,
		op.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create wallet operation %s: %w", op.ID, translateError(err))
	}

	return nil
}

// GetByID retrieves an operation by ID
func (r *WalletOperationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.WalletOperation, error) {
	return r.getOne(ctx, `SELECT `+walletOperationColumns+` FROM wallet_operations WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves an operation and locks its row
func (r *WalletOperationRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.WalletOperation, error) {
	return r.getOne(ctx, `SELECT `+walletOperationColumns+` FROM wallet_operations WHERE id = $1 FOR UPDATE`, id)
}

// GetByIdempotencyKey retrieves the operation created with the given key
func (r *WalletOperationRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.WalletOperation, error) {
	return r.getOne(ctx, `SELECT `+walletOperationColumns+` FROM wallet_operations WHERE idempotency_key = $1`, key)
}

func (r *WalletOperationRepository) getOne(ctx context.Context, query string, arg any) (*models.WalletOperation, error) {
	op, err := scanWalletOperation(r.q.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet operation %v: %w", arg, translateError(err))
	}

	return op, nil
}

// Update writes the operation's lifecycle fields
func (r *WalletOperationRepository) Update(ctx context.Context, op *models.WalletOperation) error {
	query := `
		UPDATE wallet_operations
		SET status = $1,
		    processor_reference = $2,
		    error_code = $3,
		    error_message = $4,
		    ledger_entry_id = $5,
		    processed_at = $6,
		    completed_at = $7,
		    updated_at = $8
		WHERE id = $9
	`

	result, err := r.q.Exec(ctx, query,
		op.Status,
		op.ProcessorReference,
		op.ErrorCode,
		op.ErrorMessage,
		op.LedgerEntryID,
		op.ProcessedAt,
		op.CompletedAt,
		op.UpdatedAt,
		op.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update wallet operation %s: %w", op.ID, translateError(err))
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("wallet operation %s not found", op.ID)
	}

	return nil
}

// ListByAccount returns an account's operations, newest first
func (r *WalletOperationRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.WalletOperation, error) {
	query := `
		SELECT ` + walletOperationColumns + `
		FROM wallet_operations
		WHERE account_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`

	rows, err := r.q.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet operations: %w", err)
	}
	defer rows.Close()

	var ops []*models.WalletOperation
	for rows.Next() {
		op, err := scanWalletOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet operation: %w", err)
		}
		ops = append(ops, op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet operations: %w", err)
	}

	return ops, nil
}

// CountNonTerminal counts pending and processing operations
func (r *WalletOperationRepository) CountNonTerminal(ctx context.Context, accountID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM wallet_operations
		WHERE account_id = $1 AND status IN ('pending', 'processing')
	`

	var count int
	if err := r.q.QueryRow(ctx, query, accountID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count open wallet operations: %w", err)
	}

	return count, nil
}
