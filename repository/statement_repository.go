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

// StatementRepository implements the StatementRepository interface
type StatementRepository struct {
	q queryable
}

// NewStatementRepository creates a new statement repository
func NewStatementRepository(db *database.DB) *StatementRepository {
	return &StatementRepository{q: db.Pool}
}

// newStatementRepositoryWithTx creates a new statement repository with a transaction
func newStatementRepositoryWithTx(tx queryable) *StatementRepository {
	return &StatementRepository{q: tx}
}

const statementColumns = `id, account_id, year, month, opening_balance, closing_balance,
		total_deposits, total_withdrawals, total_bets, total_wins, total_refunds, total_bonuses,
		total_adjustments, total_losses, net_profit, transaction_count, num_bets, num_wins,
		num_losses, win_rate, report_url, generated_at`

func scanStatement(row rowScanner) (*models.MonthlyStatement, error) {
	var s models.MonthlyStatement
	err := row.Scan(
		&s.ID,
		&s.AccountID,
		&s.Year,
		&s.Month,
		&s.OpeningBalance,
		&s.ClosingBalance,
		&s.TotalDeposits,
		&s.TotalWithdrawals,
		&s.TotalBets,
		&s.TotalWins,
		&s.TotalRefunds,
		&s.TotalBonuses,
		&s.TotalAdjustments,
		&s.TotalLosses,
		&s.NetProfit,
		&s.TransactionCount,
		&s.NumBets,
		&s.NumWins,
		&s.NumLosses,
		&s.WinRate,
		&s.ReportURL,
		&s.GeneratedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a statement; a second statement for the same period maps to ErrStatementExists
func (r *StatementRepository) Create(ctx context.Context, s *models.MonthlyStatement) error {
	query := `
		INSERT INTO monthly_statements
		(account_id, year, month, opening_balance, closing_balance, total_deposits,
		 total_withdrawals, total_bets, total_wins, total_refunds, total_bonuses,
		 total_adjustments, total_losses, net_profit, transaction_count, num_bets,
		 num_wins, num_losses, win_rate, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id
	`

	err := r.q.QueryRow(ctx, query,
		s.AccountID,
		s.Year,
		s.Month,
		s.OpeningBalance,
		s.ClosingBalance,
		s.TotalDeposits,
		s.TotalWithdrawals,
		s.TotalBets,
		s.TotalWins,
		s.TotalRefunds,
		s.TotalBonuses,
		s.TotalAdjustments,
		s.TotalLosses,
		s.NetProfit,
		s.TransactionCount,
		s.NumBets,
		s.NumWins,
		s.NumLosses,
		s.WinRate,
		s.GeneratedAt,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to create statement %04d-%02d for account %s: %w", s.Year, s.Month, s.AccountID, translateError(err))
	}

	return nil
}

// GetByID retrieves a statement by ID
func (r *StatementRepository) GetByID(ctx context.Context, id int64) (*models.MonthlyStatement, error) {
	query := `SELECT ` + statementColumns + ` FROM monthly_statements WHERE id = $1`

	s, err := scanStatement(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get statement %d: %w", id, err)
	}

	return s, nil
}

// GetByPeriod retrieves an account's statement for a month
func (r *StatementRepository) GetByPeriod(ctx context.Context, accountID uuid.UUID, year, month int) (*models.MonthlyStatement, error) {
	query := `
		SELECT ` + statementColumns + `
		FROM monthly_statements
		WHERE account_id = $1 AND year = $2 AND month = $3
	`

	s, err := scanStatement(r.q.QueryRow(ctx, query, accountID, year, month))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get statement %04d-%02d: %w", year, month, err)
	}

	return s, nil
}

// AttachReport sets the report URL only while it is unset
func (r *StatementRepository) AttachReport(ctx context.Context, id int64, url string) (bool, error) {
	query := `
		UPDATE monthly_statements
		SET report_url = $1
		WHERE id = $2 AND report_url IS NULL
	`

	result, err := r.q.Exec(ctx, query, url, id)
	if err != nil {
		return false, fmt.Errorf("failed to attach report to statement %d: %w", id, translateError(err))
	}

	return result.RowsAffected() == 1, nil
}

// ListByAccount returns an account's statements, newest period first
func (r *StatementRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.MonthlyStatement, error) {
	query := `
		SELECT ` + statementColumns + `
		FROM monthly_statements
		WHERE account_id = $1
		ORDER BY year DESC, month DESC
	`

	rows, err := r.q.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list statements: %w", err)
	}
	defer rows.Close()

	var statements []*models.MonthlyStatement
	for rows.Next() {
		s, err := scanStatement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan statement: %w", err)
		}
		statements = append(statements, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating statements: %w", err)
	}

	return statements, nil
}
