package models

import (
	"fmt"
	"time"

	"looseline/money"

	"github.com/google/uuid"
)

// TransactionType represents the kind of balance change an entry records
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeBet        TransactionType = "bet"
	TransactionTypeWin        TransactionType = "win"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeBonus      TransactionType = "bonus"
	TransactionTypeAdjustment TransactionType = "adjustment"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeBet,
		TransactionTypeWin, TransactionTypeRefund, TransactionTypeBonus, TransactionTypeAdjustment:
		return true
	}
	return false
}

// ValidateAmount enforces the sign rule for the type: credits are positive,
// debits negative, adjustments either sign. Zero is never allowed.
func (t TransactionType) ValidateAmount(amount money.Money) error {
	if !t.Valid() {
		return fmt.Errorf("%w: unknown transaction type %q", ErrValidation, t)
	}
	if amount.IsZero() {
		return fmt.Errorf("%w: %s amount must not be zero", ErrInvalidAmount, t)
	}
	switch t {
	case TransactionTypeDeposit, TransactionTypeWin, TransactionTypeRefund, TransactionTypeBonus:
		if !amount.IsPositive() {
			return fmt.Errorf("%w: %s amount must be positive, got %s", ErrInvalidAmount, t, amount)
		}
	case TransactionTypeWithdrawal, TransactionTypeBet:
		if !amount.IsNegative() {
			return fmt.Errorf("%w: %s amount must be negative, got %s", ErrInvalidAmount, t, amount)
		}
	}
	return nil
}

// EntryStatus represents the processing state of a ledger entry
type EntryStatus string

const (
	EntryStatusPending    EntryStatus = "pending"
	EntryStatusProcessing EntryStatus = "processing"
	EntryStatusCompleted  EntryStatus = "completed"
	EntryStatusFailed     EntryStatus = "failed"
	EntryStatusCancelled  EntryStatus = "cancelled"
)

// IsTerminal returns true once the entry can no longer change.
func (s EntryStatus) IsTerminal() bool {
	return s == EntryStatusCompleted || s == EntryStatusFailed || s == EntryStatusCancelled
}

// CanTransitionTo reports whether s may move to next.
func (s EntryStatus) CanTransitionTo(next EntryStatus) bool {
	switch s {
	case EntryStatusPending:
		return next == EntryStatusProcessing || next.IsTerminal()
	case EntryStatusProcessing:
		return next.IsTerminal()
	}
	return false
}

// ReferenceType represents what the reference_id of an entry points at
type ReferenceType string

const (
	ReferenceTypeWalletOperation ReferenceType = "wallet_operation"
	ReferenceTypeBet             ReferenceType = "bet"
	ReferenceTypeManual          ReferenceType = "manual"
)

// LedgerEntry is one immutable balance change. Amount is signed.
type LedgerEntry struct {
	ID              int64           `db:"id" json:"id"`
	AccountID       uuid.UUID       `db:"account_id" json:"account_id"`
	TransactionType TransactionType `db:"transaction_type" json:"transaction_type"`
	Amount          money.Money     `db:"amount" json:"amount"`
	BalanceBefore   money.Money     `db:"balance_before" json:"balance_before"`
	BalanceAfter    money.Money     `db:"balance_after" json:"balance_after"`
	ReferenceType   *ReferenceType  `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID     *uuid.UUID      `db:"reference_id" json:"reference_id,omitempty"`
	Description     string          `db:"description" json:"description,omitempty"`
	Metadata        map[string]any  `db:"metadata" json:"metadata,omitempty"`
	Status          EntryStatus     `db:"status" json:"status"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// Validate checks the entry's internal arithmetic and sign rule.
func (e *LedgerEntry) Validate() error {
	if err := e.TransactionType.ValidateAmount(e.Amount); err != nil {
		return err
	}
	if !e.BalanceBefore.Add(e.Amount).Equal(e.BalanceAfter) {
		return fmt.Errorf("%w: balance_after %s != balance_before %s + amount %s",
			ErrIntegrityViolation, e.BalanceAfter, e.BalanceBefore, e.Amount)
	}
	if e.BalanceAfter.IsNegative() {
		return ErrInsufficientFunds
	}
	return nil
}

// AppendRequest describes a balance change to append to an account's ledger.
type AppendRequest struct {
	AccountID       uuid.UUID       `validate:"required"`
	TransactionType TransactionType `validate:"required,oneof=deposit withdrawal bet win refund bonus adjustment"`
	Amount          money.Money
	ReferenceType   *ReferenceType
	ReferenceID     *uuid.UUID
	Description     string `validate:"max=500"`
	Metadata        map[string]any
}

// Reference returns a pointer pair for an entry reference.
func Reference(refType ReferenceType, id uuid.UUID) (*ReferenceType, *uuid.UUID) {
	return &refType, &id
}
