package repository

import (
	"errors"
	"fmt"

	"looseline/models"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes the ledger reacts to
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
	pgRaiseException       = "P0001"
	pgNumericOutOfRange    = "22003"
)

// translateError maps driver errors onto domain errors so services can match
// them with errors.Is. The driver error stays in the chain.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
		return fmt.Errorf("%w: %w", models.ErrConcurrencyConflict, err)
	case pgCheckViolation:
		switch pgErr.ConstraintName {
		case "check_balance_non_negative", "check_locked_non_negative", "check_entry_balance_after":
			return fmt.Errorf("%w: %w", models.ErrInsufficientFunds, err)
		case "check_entry_arithmetic":
			return fmt.Errorf("%w: %w", models.ErrIntegrityViolation, err)
		}
		return fmt.Errorf("%w: %w", models.ErrValidation, err)
	case pgUniqueViolation:
		switch pgErr.TableName {
		case "users", "accounts":
			return fmt.Errorf("%w: %w", models.ErrUserExists, err)
		case "monthly_statements":
			return fmt.Errorf("%w: %w", models.ErrStatementExists, err)
		case "wallet_operations":
			// A concurrent Initiate won the idempotency key; the retry finds it.
			return fmt.Errorf("%w: %w", models.ErrConcurrencyConflict, err)
		}
	case pgNumericOutOfRange:
		// Amounts beyond NUMERIC(15, 2)
		return fmt.Errorf("%w: %w", models.ErrInvalidAmount, err)
	case pgRaiseException:
		if pgErr.TableName == "ledger_entries" || pgErr.Message == "ledger entries are append-only" {
			return fmt.Errorf("%w: %w", models.ErrIntegrityViolation, err)
		}
	}
	return err
}
