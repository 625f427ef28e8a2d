package models

import (
	"errors"
	"fmt"
	"strings"

	"looseline/money"

	"github.com/google/uuid"
)

// Domain-level error values. Callers match them with errors.Is.
var (
	ErrAccountNotFound         = errors.New("account not found")
	ErrInvalidAmount           = money.ErrInvalidAmount
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrInvalidTransition       = errors.New("invalid state transition")
	ErrBetNotFound             = errors.New("bet not found")
	ErrConcurrencyConflict     = errors.New("concurrency conflict")
	ErrIntegrityViolation      = errors.New("ledger integrity violation")
	ErrWalletOperationNotFound = errors.New("wallet operation not found")
	ErrEntryNotFound           = errors.New("ledger entry not found")
	ErrAccountFrozen           = errors.New("account frozen")
	ErrAccountClosed           = errors.New("account closed")
	ErrUserExists              = errors.New("user already exists")
	ErrStatementExists         = errors.New("statement already exists")
	ErrStatementNotFound       = errors.New("statement not found")
	ErrInvalidPeriod           = errors.New("invalid statement period")
	ErrValidation              = errors.New("validation failed")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrAccountNotFound, "account_not_found"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrBetNotFound, "bet_not_found"},
	{ErrConcurrencyConflict, "concurrency_conflict"},
	{ErrIntegrityViolation, "integrity_violation"},
	{ErrWalletOperationNotFound, "wallet_operation_not_found"},
	{ErrEntryNotFound, "entry_not_found"},
	{ErrAccountFrozen, "account_frozen"},
	{ErrAccountClosed, "account_closed"},
	{ErrUserExists, "user_exists"},
	{ErrStatementExists, "statement_exists"},
	{ErrStatementNotFound, "statement_not_found"},
	{ErrInvalidPeriod, "invalid_period"},
	{ErrValidation, "validation_failed"},
}

// ErrorCode returns the stable code of the first domain error found in err's
// chain, or "internal" when err carries none.
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// LedgerError carries the context of a failed ledger operation. It wraps one
// of the sentinel errors above.
type LedgerError struct {
	Op        string
	AccountID uuid.UUID
	EntityID  string
	Amount    *money.Money
	State     string
	Err       error
}

// NewLedgerError wraps err for the named operation.
func NewLedgerError(op string, accountID uuid.UUID, err error) *LedgerError {
	return &LedgerError{Op: op, AccountID: accountID, Err: err}
}

func (e *LedgerError) WithEntity(id string) *LedgerError {
	e.EntityID = id
	return e
}

func (e *LedgerError) WithAmount(amount money.Money) *LedgerError {
	e.Amount = &amount
	return e
}

func (e *LedgerError) WithState(state string) *LedgerError {
	e.State = state
	return e
}

func (e *LedgerError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.AccountID != uuid.Nil {
		fmt.Fprintf(&b, " account=%s", e.AccountID)
	}
	if e.EntityID != "" {
		fmt.Fprintf(&b, " entity=%s", e.EntityID)
	}
	if e.Amount != nil {
		fmt.Fprintf(&b, " amount=%s", e.Amount)
	}
	if e.State != "" {
		fmt.Fprintf(&b, " state=%s", e.State)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// Code returns the stable error code of the wrapped error.
func (e *LedgerError) Code() string {
	return ErrorCode(e.Err)
}
