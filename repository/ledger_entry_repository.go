package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"looseline/database"
	"looseline/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LedgerEntryRepository implements the LedgerEntryRepository interface.
// The table is append-only; a trigger rejects UPDATE and DELETE.
type LedgerEntryRepository struct {
	q queryable
}

// NewLedgerEntryRepository creates a new ledger entry repository
func NewLedgerEntryRepository(db *database.DB) *LedgerEntryRepository {
	return &LedgerEntryRepository{q: db.Pool}
}

// newLedgerEntryRepositoryWithTx creates a new ledger entry repository with a transaction
func newLedgerEntryRepositoryWithTx(tx queryable) *LedgerEntryRepository {
	return &LedgerEntryRepository{q: tx}
}

const entryColumns = `id, account_id, transaction_type, amount, balance_before, balance_after,
		reference_type, reference_id, description, metadata, status, created_at`

func scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	var metadataJSON []byte

	err := row.Scan(
		&entry.ID,
		&entry.AccountID,
		&entry.TransactionType,
		&entry.Amount,
		&entry.BalanceBefore,
		&entry.BalanceAfter,
		&entry.ReferenceType,
		&entry.ReferenceID,
		&entry.Description,
		&metadataJSON,
		&entry.Status,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalMetadata(metadataJSON, &entry.Metadata); err != nil {
		return nil, err
	}

	return &entry, nil
}

// Insert appends an entry and sets its ID and creation time
func (r *LedgerEntryRepository) Insert(ctx context.Context, entry *models.LedgerEntry) error {
	metadataJSON, err := marshalMetadata(entry.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO ledger_entries
		(account_id, transaction_type, amount, balance_before, balance_after,
		 reference_type, reference_id, description, metadata, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`

	err = r.q.QueryRow(ctx, query,
		entry.AccountID,
		entry.TransactionType,
		entry.Amount,
		entry.BalanceBefore,
		entry.BalanceAfter,
		entry.ReferenceType,
		entry.ReferenceID,
		entry.Description,
		metadataJSON,
		entry.Status,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert %s entry for account %s: %w", entry.TransactionType, entry.AccountID, translateError(err))
	}

	return nil
}

// GetByID retrieves an entry by ID
func (r *LedgerEntryRepository) GetByID(ctx context.Context, id int64) (*models.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE id = $1`

	entry, err := scanEntry(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry %d: %w", id, err)
	}

	return entry, nil
}

// ListByAccount returns entries in creation order
func (r *LedgerEntryRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.LedgerEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3
	`

	return r.list(ctx, query, accountID, limit, offset)
}

// ListByPeriod returns completed entries created in [from, to) in creation order
func (r *LedgerEntryRepository) ListByPeriod(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]*models.LedgerEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE account_id = $1
		  AND status = 'completed'
		  AND created_at >= $2
		  AND created_at < $3
		ORDER BY created_at, id
	`

	return r.list(ctx, query, accountID, from, to)
}

// ListByReference returns entries pointing at the given entity
func (r *LedgerEntryRepository) ListByReference(ctx context.Context, refType models.ReferenceType, refID uuid.UUID) ([]*models.LedgerEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE reference_type = $1 AND reference_id = $2
		ORDER BY created_at, id
	`

	return r.list(ctx, query, refType, refID)
}

// LastBefore returns the newest completed entry created before t
func (r *LedgerEntryRepository) LastBefore(ctx context.Context, accountID uuid.UUID, t time.Time) (*models.LedgerEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE account_id = $1 AND status = 'completed' AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	entry, err := scanEntry(r.q.QueryRow(ctx, query, accountID, t))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last entry before %s: %w", t.Format(time.RFC3339), err)
	}

	return entry, nil
}

// ForEachCompleted streams completed entries in creation order without
// holding the whole history in memory
func (r *LedgerEntryRepository) ForEachCompleted(ctx context.Context, accountID uuid.UUID, fn func(*models.LedgerEntry) error) error {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE account_id = $1 AND status = 'completed'
		ORDER BY created_at, id
	`

	rows, err := r.q.Query(ctx, query, accountID)
	if err != nil {
		return fmt.Errorf("failed to read ledger for account %s: %w", accountID, err)
	}
	defer rows.Close()

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		if err := fn(entry); err != nil {
			return err
		}
	}

	return rows.Err()
}

func (r *LedgerEntryRepository) list(ctx context.Context, query string, args ...any) ([]*models.LedgerEntry, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}

	return entries, nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return data, nil
}

func unmarshalMetadata(data []byte, dst *map[string]any) error {
	if len(data) == 0 || string(data) == "{}" {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return nil
}
