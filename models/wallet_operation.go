package models

import (
	"fmt"
	"time"

	"looseline/money"

	"github.com/google/uuid"
)

// OperationType represents the direction of a wallet operation
type OperationType string

const (
	OperationTypeDeposit    OperationType = "deposit"
	OperationTypeWithdrawal OperationType = "withdrawal"
)

// OperationStatus represents the state of a wallet operation
type OperationStatus string

const (
	OperationStatusPending    OperationStatus = "pending"
	OperationStatusProcessing OperationStatus = "processing"
	OperationStatusCompleted  OperationStatus = "completed"
	OperationStatusFailed     OperationStatus = "failed"
	OperationStatusCancelled  OperationStatus = "cancelled"
)

// IsTerminal returns true for completed, failed and cancelled.
func (s OperationStatus) IsTerminal() bool {
	return s == OperationStatusCompleted || s == OperationStatusFailed || s == OperationStatusCancelled
}

// CanTransitionTo reports whether s may move to next. Completion requires the
// processor to have reported processing first.
func (s OperationStatus) CanTransitionTo(next OperationStatus) bool {
	switch s {
	case OperationStatusPending:
		return next == OperationStatusProcessing || next == OperationStatusFailed || next == OperationStatusCancelled
	case OperationStatusProcessing:
		return next.IsTerminal()
	}
	return false
}

// WalletOperation tracks a deposit or withdrawal through the payment processor.
type WalletOperation struct {
	ID                 uuid.UUID       `db:"id" json:"id"`
	AccountID          uuid.UUID       `db:"account_id" json:"account_id"`
	OperationType      OperationType   `db:"operation_type" json:"operation_type"`
	Amount             money.Money     `db:"amount" json:"amount"`
	Currency           string          `db:"currency" json:"currency"`
	FeeAmount          money.Money     `db:"fee_amount" json:"fee_amount"`
	NetAmount          money.Money     `db:"net_amount" json:"net_amount"`
	Status             OperationStatus `db:"status" json:"status"`
	Processor          string          `db:"processor" json:"processor,omitempty"`
	ProcessorReference *string         `db:"processor_reference" json:"processor_reference,omitempty"`
	IdempotencyKey     *string         `db:"idempotency_key" json:"idempotency_key,omitempty"`
	ErrorCode          *string         `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage       *string         `db:"error_message" json:"error_message,omitempty"`
	LedgerEntryID      *int64          `db:"ledger_entry_id" json:"ledger_entry_id,omitempty"`
	InitiatedAt        time.Time       `db:"initiated_at" json:"initiated_at"`
	ProcessedAt        *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	CompletedAt        *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// LedgerAmount is the signed amount the operation posts on completion:
// deposits credit the net amount, withdrawals debit the gross amount.
func (op *WalletOperation) LedgerAmount() money.Money {
	if op.OperationType == OperationTypeWithdrawal {
		return op.Amount.Neg()
	}
	return op.NetAmount
}

// TransactionType maps the operation to its ledger entry type.
func (op *WalletOperation) TransactionType() TransactionType {
	if op.OperationType == OperationTypeWithdrawal {
		return TransactionTypeWithdrawal
	}
	return TransactionTypeDeposit
}

// Transition moves the operation to next and stamps the matching timestamp.
func (op *WalletOperation) Transition(next OperationStatus, at time.Time) error {
	if !op.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: wallet operation %s cannot move from %s to %s", ErrInvalidTransition, op.ID, op.Status, next)
	}
	op.Status = next
	switch next {
	case OperationStatusProcessing:
		op.ProcessedAt = &at
	case OperationStatusCompleted, OperationStatusFailed, OperationStatusCancelled:
		if op.ProcessedAt == nil {
			op.ProcessedAt = &at
		}
		op.CompletedAt = &at
	}
	op.UpdatedAt = at
	return nil
}

// InitiateRequest starts a wallet operation.
type InitiateRequest struct {
	AccountID      uuid.UUID     `validate:"required"`
	OperationType  OperationType `validate:"required,oneof=deposit withdrawal"`
	Amount         money.Money
	Processor      string  `validate:"max=50"`
	IdempotencyKey *string `validate:"omitempty,min=1,max=255"`
}
