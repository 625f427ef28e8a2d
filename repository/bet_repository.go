package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"looseline/database"
	"looseline/models"
	"looseline/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// BetRepository implements the BetRepository interface
type BetRepository struct {
	q queryable
}

// NewBetRepository creates a new bet repository
func NewBetRepository(db *database.DB) *BetRepository {
	return &BetRepository{q: db.Pool}
}

// newBetRepositoryWithTx creates a new bet repository with a transaction
func newBetRepositoryWithTx(tx queryable) *BetRepository {
	return &BetRepository{q: tx}
}

const betColumns = `id, account_id, event_id, event_name, market_type, selection, odds, stake,
		potential_win, actual_win, status, stake_entry_id, payout_entry_id, metadata,
		placed_at, settled_at, created_at, updated_at`

func scanBet(row rowScanner) (*models.Bet, error) {
	var bet models.Bet
	var metadataJSON []byte

	err := row.Scan(
		&bet.ID,
		&bet.AccountID,
		&bet.EventID,
		&bet.EventName,
		&bet.MarketType,
		&bet.Selection,
		&bet.Odds,
		&bet.Stake,
		&bet.PotentialWin,
		&bet.ActualWin,
		&bet.Status,
		&bet.StakeEntryID,
		&bet.PayoutEntryID,
		&metadataJSON,
		&bet.PlacedAt,
		&bet.SettledAt,
		&bet.CreatedAt,
		&bet.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalMetadata(metadataJSON, &bet.Metadata); err != nil {
		return nil, err
	}

	return &bet, nil
}

// Create inserts a new bet
func (r *BetRepository) Create(ctx context.Context, bet *models.Bet) error {
	metadataJSON, err := marshalMetadata(bet.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO bets
		(id, account_id, event_id, event_name, market_type, selection, odds, stake,
		 potential_win, status, stake_entry_id, metadata, placed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = r.q.Exec(ctx, query,
		bet.ID,
		bet.AccountID,
		bet.EventID,
		bet.EventName,
		bet.MarketType,
		bet.Selection,
		bet.Odds,
		bet.Stake,
		bet.PotentialWin,
		bet.Status,
		bet.StakeEntryID,
		metadataJSON,
		bet.PlacedAt,
		bet.CreatedAt,
		bet.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create bet %s: %w", bet.ID, translateError(err))
	}

	return nil
}

// GetByID retrieves a bet by ID
func (r *BetRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Bet, error) {
	return r.getOne(ctx, `SELECT `+betColumns+` FROM bets WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves a bet and locks its row
func (r *BetRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Bet, error) {
	return r.getOne(ctx, `SELECT `+betColumns+` FROM bets WHERE id = $1 FOR UPDATE`, id)
}

func (r *BetRepository) getOne(ctx context.Context, query string, id uuid.UUID) (*models.Bet, error) {
	bet, err := scanBet(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bet %s: %w", id, translateError(err))
	}

	return bet, nil
}

// Update writes the settlement fields of a bet
func (r *BetRepository) Update(ctx context.Context, bet *models.Bet) error {
	query := `
		UPDATE bets
		SET status = $1,
		    actual_win = $2,
		    payout_entry_id = $3,
		    settled_at = $4,
		    updated_at = $5
		WHERE id = $6
	`

	result, err := r.q.Exec(ctx, query,
		bet.Status,
		bet.ActualWin,
		bet.PayoutEntryID,
		bet.SettledAt,
		bet.UpdatedAt,
		bet.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update bet %s: %w", bet.ID, translateError(err))
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("bet %s not found", bet.ID)
	}

	return nil
}

// ListByAccount returns an account's bets, newest first
func (r *BetRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.Bet, error) {
	query := `
		SELECT ` + betColumns + `
		FROM bets
		WHERE account_id = $1
		ORDER BY placed_at DESC, id
		LIMIT $2 OFFSET $3
	`

	return r.list(ctx, query, accountID, limit, offset)
}

// ListSettledInPeriod returns bets settled in [from, to)
func (r *BetRepository) ListSettledInPeriod(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]*models.Bet, error) {
	query := `
		SELECT ` + betColumns + `
		FROM bets
		WHERE account_id = $1
		  AND status IN ('won', 'lost', 'void', 'cashout')
		  AND settled_at >= $2
		  AND settled_at < $3
		ORDER BY settled_at, id
	`

	return r.list(ctx, query, accountID, from, to)
}

// SumActiveStakes returns the total stake of active bets
func (r *BetRepository) SumActiveStakes(ctx context.Context, accountID uuid.UUID) (money.Money, error) {
	query := `
		SELECT COALESCE(SUM(stake), 0)
		FROM bets
		WHERE account_id = $1 AND status = 'active'
	`

	var total money.Money
	if err := r.q.QueryRow(ctx, query, accountID).Scan(&total); err != nil {
		return money.Zero, fmt.Errorf("failed to sum active stakes: %w", err)
	}

	return total, nil
}

// CountActive counts pending and active bets
func (r *BetRepository) CountActive(ctx context.Context, accountID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM bets
		WHERE account_id = $1 AND status IN ('pending', 'active')
	`

	var count int
	if err := r.q.QueryRow(ctx, query, accountID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active bets: %w", err)
	}

	return count, nil
}

func (r *BetRepository) list(ctx context.Context, query string, args ...any) ([]*models.Bet, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bets: %w", err)
	}
	defer rows.Close()

	var bets []*models.Bet
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		bets = append(bets, bet)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bets: %w", err)
	}

	return bets, nil
}
