package service

import (
	"context"
	"fmt"
	"time"

	"looseline/events"
	"looseline/models"
	"looseline/money"

	"github.com/google/uuid"
)

// lockedAccount is an account whose balance row is locked by the current
// transaction.
type lockedAccount struct {
	account *models.Account
	balance *models.BalanceSnapshot
}

// lockAccount takes the balance row lock and refuses frozen or closed
// accounts. Every mutating path calls it before touching other rows.
func lockAccount(ctx context.Context, uow UnitOfWork, op string, accountID uuid.UUID) (*lockedAccount, error) {
	balance, err := uow.BalanceRepository().GetForUpdate(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock balance: %w", err)
	}
	if balance == nil {
		return nil, models.NewLedgerError(op, accountID, models.ErrAccountNotFound)
	}

	account, err := uow.AccountRepository().GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, models.NewLedgerError(op, accountID, models.ErrAccountNotFound)
	}
	if err := account.CheckMutable(); err != nil {
		return nil, models.NewLedgerError(op, accountID, err).WithState(string(account.Status))
	}

	return &lockedAccount{account: account, balance: balance}, nil
}

// appendEntry records one balance change on a locked account. It is the single
// path by which the balance moves: the entry and the aggregate are written in
// the caller's transaction and a BalanceChangeEvent is queued for commit.
func appendEntry(ctx context.Context, uow UnitOfWork, locked *lockedAccount, req models.AppendRequest) (*models.LedgerEntry, error) {
	next := locked.balance.Clone()
	if err := next.Apply(req.TransactionType, req.Amount); err != nil {
		return nil, models.NewLedgerError("append", req.AccountID, err).
			WithAmount(req.Amount).
			WithState(string(locked.account.Status))
	}

	entry := &models.LedgerEntry{
		AccountID:       req.AccountID,
		TransactionType: req.TransactionType,
		Amount:          req.Amount,
		BalanceBefore:   locked.balance.Balance,
		BalanceAfter:    next.Balance,
		ReferenceType:   req.ReferenceType,
		ReferenceID:     req.ReferenceID,
		Description:     req.Description,
		Metadata:        req.Metadata,
		Status:          models.EntryStatusCompleted,
	}
	if err := entry.Validate(); err != nil {
		return nil, models.NewLedgerError("append", req.AccountID, err).WithAmount(req.Amount)
	}

	if err := uow.LedgerEntryRepository().Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	createdAt := entry.CreatedAt
	next.LastTransactionAt = &createdAt
	if err := uow.BalanceRepository().Save(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to save balance: %w", err)
	}
	locked.balance = next

	uow.EventBus().Publish(events.BalanceChangeEvent{
		AccountID:       entry.AccountID,
		EntryID:         entry.ID,
		TransactionType: entry.TransactionType,
		Amount:          entry.Amount,
		OldBalance:      entry.BalanceBefore,
		NewBalance:      entry.BalanceAfter,
	})

	return entry, nil
}

// saveBalance writes a locked aggregate whose locked_in_bets changed without
// a ledger entry.
func saveBalance(ctx context.Context, uow UnitOfWork, locked *lockedAccount, next *models.BalanceSnapshot) error {
	if err := uow.BalanceRepository().Save(ctx, next); err != nil {
		return fmt.Errorf("failed to save balance: %w", err)
	}
	locked.balance = next
	return nil
}

// publishAudit queues an audit event attributed to the actor on ctx.
func publishAudit(ctx context.Context, uow UnitOfWork, action, entityType, entityID string, accountID uuid.UUID, oldState, newState string) {
	uow.EventBus().Publish(events.AuditEvent{
		Actor:      ActorFromContext(ctx),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		AccountID:  accountID,
		OldState:   oldState,
		NewState:   newState,
		Timestamp:  time.Now().UTC(),
	})
}

// requirePositive wraps a non-positive amount in a LedgerError for op.
func requirePositive(op string, accountID uuid.UUID, amount money.Money) error {
	if err := amount.RequirePositive(); err != nil {
		return models.NewLedgerError(op, accountID, err).WithAmount(amount)
	}
	return nil
}
