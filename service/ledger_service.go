package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"looseline/config"
	"looseline/events"
	"looseline/models"
	"looseline/money"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type ledgerService struct {
	uowFactory UnitOfWorkFactory
	config     *config.Config
}

// NewLedgerService creates a new ledger service
func NewLedgerService(uowFactory UnitOfWorkFactory, cfg *config.Config) LedgerService {
	return &ledgerService{
		uowFactory: uowFactory,
		config:     cfg,
	}
}

// Append writes one entry and moves the aggregate in a single transaction
func (s *ledgerService) Append(ctx context.Context, req models.AppendRequest) (*models.LedgerEntry, error) {
	if err := validateRequest(req); err != nil {
		return nil, models.NewLedgerError("append", req.AccountID, err)
	}

	var entry *models.LedgerEntry
	err := withConflictRetry(ctx, s.config.MaxConflictRetries, "append", func() error {
		var err error
		entry, err = s.append(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *ledgerService) append(ctx context.Context, req models.AppendRequest) (*models.LedgerEntry, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	locked, err := lockAccount(ctx, uow, "append", req.AccountID)
	if err != nil {
		return nil, err
	}

	entry, err := appendEntry(ctx, uow, locked, req)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"accountID":       entry.AccountID,
		"entryID":         entry.ID,
		"transactionType": entry.TransactionType,
		"amount":          entry.Amount.String(),
		"balanceAfter":    entry.BalanceAfter.String(),
	}).Debug("Appended ledger entry")

	return entry, nil
}

// GetEntry retrieves a ledger entry by ID
func (s *ledgerService) GetEntry(ctx context.Context, id int64) (*models.LedgerEntry, error) {
	uow := s.uowFactory.Create()
	if err := uow.BeginSnapshot(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	entry, err := uow.LedgerEntryRepository().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	if entry == nil {
		return nil, models.NewLedgerError("get_entry", uuid.Nil, models.ErrEntryNotFound).WithEntity(fmt.Sprint(id))
	}
	return entry, nil
}

// ListEntries returns an account's entries in creation order
func (s *ledgerService) ListEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.LedgerEntry, error) {
	uow := s.uowFactory.Create()
	if err := uow.BeginSnapshot(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := requireAccount(ctx, uow, "list_entries", accountID); err != nil {
		return nil, err
	}

	entries, err := uow.LedgerEntryRepository().ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}

// GetBalance returns a point-in-time read of the aggregate
func (s *ledgerService) GetBalance(ctx context.Context, accountID uuid.UUID) (*models.BalanceSnapshot, error) {
	uow := s.uowFactory.Create()
	if err := uow.BeginSnapshot(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	balance, err := uow.BalanceRepository().Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	if balance == nil {
		return nil, models.NewLedgerError("get_balance", accountID, models.ErrAccountNotFound)
	}
	return balance, nil
}

// Reconcile replays the ledger under the aggregate lock and freezes the
// account when the stored figures disagree with it.
func (s *ledgerService) Reconcile(ctx context.Context, accountID uuid.UUID) (*models.ReconciliationResult, error) {
	var result *models.ReconciliationResult
	err := withConflictRetry(ctx, s.config.MaxConflictRetries, "reconcile", func() error {
		var err error
		result, err = s.reconcile(ctx, accountID)
		return err
	})
	return result, err
}

func (s *ledgerService) reconcile(ctx context.Context, accountID uuid.UUID) (*models.ReconciliationResult, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	// Reconciliation must also work on frozen accounts, so the lock is taken
	// without the mutability check.
	balance, err := uow.BalanceRepository().GetForUpdate(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock balance: %w", err)
	}
	if balance == nil {
		return nil, models.NewLedgerError("reconcile", accountID, models.ErrAccountNotFound)
	}

	result := &models.ReconciliationResult{
		AccountID:     accountID,
		StoredBalance: balance.Balance,
		LedgerBalance: money.Zero,
		StoredLocked:  balance.LockedInBets,
		CheckedAt:     time.Now().UTC(),
	}

	var prev *models.LedgerEntry
	err = uow.LedgerEntryRepository().ForEachCompleted(ctx, accountID, func(entry *models.LedgerEntry) error {
		expected := money.Zero
		var prevID int64
		if prev != nil {
			expected = prev.BalanceAfter
			prevID = prev.ID
		}
		if !entry.BalanceBefore.Equal(expected) {
			result.ChainBreaks = append(result.ChainBreaks, models.ChainBreak{
				EntryID:         entry.ID,
				PreviousEntryID: prevID,
				ExpectedBefore:  expected,
				ActualBefore:    entry.BalanceBefore,
			})
		}
		result.LedgerBalance = result.LedgerBalance.Add(entry.Amount)
		result.EntryCount++
		prev = entry
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to replay ledger: %w", err)
	}

	result.ActiveStakes, err = uow.BetRepository().SumActiveStakes(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum active stakes: %w", err)
	}

	if result.Evaluate() {
		return result, nil
	}

	fields := log.Fields{
		"accountID":     accountID,
		"storedBalance": result.StoredBalance.String(),
		"ledgerBalance": result.LedgerBalance.String(),
		"storedLocked":  result.StoredLocked.String(),
		"activeStakes":  result.ActiveStakes.String(),
		"chainBreaks":   len(result.ChainBreaks),
	}
	log.WithFields(fields).Error("Ledger integrity violation detected")

	account, err := uow.AccountRepository().GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account != nil && account.Status == models.AccountStatusActive {
		reason := "integrity violation detected by reconciliation"
		oldStatus := account.Status
		account.Status = models.AccountStatusFrozen
		account.StatusReason = &reason
		account.UpdatedAt = result.CheckedAt
		if err := uow.AccountRepository().UpdateStatus(ctx, account); err != nil {
			return nil, fmt.Errorf("failed to freeze account: %w", err)
		}
		publishAudit(ctx, uow, "account.frozen", "account", accountID.String(), accountID, string(oldStatus), string(account.Status))
	}

	uow.EventBus().Publish(events.IntegrityViolationEvent{
		AccountID:     accountID,
		StoredBalance: result.StoredBalance,
		LedgerBalance: result.LedgerBalance,
		StoredLocked:  result.StoredLocked,
		ActiveStakes:  result.ActiveStakes,
		ChainBreaks:   len(result.ChainBreaks),
		DetectedAt:    result.CheckedAt,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, models.NewLedgerError("reconcile", accountID, models.ErrIntegrityViolation).
		WithAmount(result.StoredBalance.Sub(result.LedgerBalance))
}

// ReconcileAll reconciles every account, closed ones included. Integrity
// violations are reported in the results; other failures are collected and
// returned.
func (s *ledgerService) ReconcileAll(ctx context.Context) ([]*models.ReconciliationResult, error) {
	ids, err := listAccountIDs(ctx, s.uowFactory, true)
	if err != nil {
		return nil, err
	}

	results := make([]*models.ReconciliationResult, 0, len(ids))
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result, err := s.Reconcile(ctx, id)
		if result != nil {
			results = append(results, result)
		}
		if err != nil && !errors.Is(err, models.ErrIntegrityViolation) {
			log.WithError(err).WithField("accountID", id).Error("Failed to reconcile account")
			errs = append(errs, err)
		}
	}

	log.WithFields(log.Fields{
		"accounts": len(ids),
		"checked":  len(results),
		"failed":   len(errs),
	}).Info("Reconciliation run finished")

	return results, errors.Join(errs...)
}

// GrantBonus credits a promotional amount
func (s *ledgerService) GrantBonus(ctx context.Context, accountID uuid.UUID, amount money.Money, description string) (*models.LedgerEntry, error) {
	if err := requirePositive("grant_bonus", accountID, amount); err != nil {
		return nil, err
	}

	refType, refID := models.Reference(models.ReferenceTypeManual, uuid.New())
	entry, err := s.Append(ctx, models.AppendRequest{
		AccountID:       accountID,
		TransactionType: models.TransactionTypeBonus,
		Amount:          amount,
		ReferenceType:   refType,
		ReferenceID:     refID,
		Description:     description,
		Metadata:        map[string]any{"actor": ActorFromContext(ctx)},
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"accountID": accountID,
		"amount":    amount.String(),
		"actor":     ActorFromContext(ctx),
	}).Info("Granted bonus")
	return entry, nil
}

// Adjust posts a manual correction. The reason is mandatory.
func (s *ledgerService) Adjust(ctx context.Context, accountID uuid.UUID, amount money.Money, reason string) (*models.LedgerEntry, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, models.NewLedgerError("adjust", accountID, fmt.Errorf("%w: adjustment reason is required", models.ErrValidation))
	}

	refType, refID := models.Reference(models.ReferenceTypeManual, uuid.New())
	entry, err := s.Append(ctx, models.AppendRequest{
		AccountID:       accountID,
		TransactionType: models.TransactionTypeAdjustment,
		Amount:          amount,
		ReferenceType:   refType,
		ReferenceID:     refID,
		Description:     reason,
		Metadata:        map[string]any{"actor": ActorFromContext(ctx)},
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"accountID": accountID,
		"amount":    amount.String(),
		"actor":     ActorFromContext(ctx),
		"reason":    reason,
	}).Warn("Posted manual adjustment")
	return entry, nil
}

// RefundOperation credits back part or all of a completed withdrawal.
// Refunds referencing the operation may never exceed its amount.
func (s *ledgerService) RefundOperation(ctx context.Context, operationID uuid.UUID, amount money.Money, reason string) (*models.LedgerEntry, error) {
	if err := requirePositive("refund_operation", uuid.Nil, amount); err != nil {
		return nil, err
	}

	var entry *models.LedgerEntry
	err := withConflictRetry(ctx, s.config.MaxConflictRetries, "refund_operation", func() error {
		var err error
		entry, err = s.refundOperation(ctx, operationID, amount, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *ledgerService) refundOperation(ctx context.Context, operationID uuid.UUID, amount money.Money, reason string) (*models.LedgerEntry, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	op, err := uow.WalletOperationRepository().GetByID(ctx, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet operation: %w", err)
	}
	if op == nil {
		return nil, models.NewLedgerError("refund_operation", uuid.Nil, models.ErrWalletOperationNotFound).WithEntity(operationID.String())
	}
	if op.OperationType != models.OperationTypeWithdrawal || op.Status != models.OperationStatusCompleted {
		return nil, models.NewLedgerError("refund_operation", op.AccountID,
			fmt.Errorf("%w: only completed withdrawals can be refunded", models.ErrInvalidTransition)).
			WithEntity(op.ID.String()).
			WithState(string(op.Status))
	}

	locked, err := lockAccount(ctx, uow, "refund_operation", op.AccountID)
	if err != nil {
		return nil, err
	}

	// Prior refunds are read under the aggregate lock so two refunds of the
	// same operation cannot both pass the limit.
	prior, err := uow.LedgerEntryRepository().ListByReference(ctx, models.ReferenceTypeWalletOperation, op.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list operation entries: %w", err)
	}
	refunded := money.Zero
	for _, e := range prior {
		if e.TransactionType == models.TransactionTypeRefund {
			refunded = refunded.Add(e.Amount)
		}
	}
	if refunded.Add(amount).GreaterThan(op.Amount) {
		return nil, models.NewLedgerError("refund_operation", op.AccountID,
			fmt.Errorf("%w: refunds %s plus %s exceed operation amount %s", models.ErrInvalidAmount, refunded, amount, op.Amount)).
			WithEntity(op.ID.String()).
			WithAmount(amount)
	}

	refType, refID := models.Reference(models.ReferenceTypeWalletOperation, op.ID)
	entry, err := appendEntry(ctx, uow, locked, models.AppendRequest{
		AccountID:       op.AccountID,
		TransactionType: models.TransactionTypeRefund,
		Amount:          amount,
		ReferenceType:   refType,
		ReferenceID:     refID,
		Description:     reason,
	})
	if err != nil {
		return nil, err
	}

	publishAudit(ctx, uow, "wallet_operation.refunded", "wallet_operation", op.ID.String(), op.AccountID, string(op.Status), string(op.Status))

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"operationID": op.ID,
		"accountID":   op.AccountID,
		"amount":      amount.String(),
	}).Info("Refunded wallet operation")

	return entry, nil
}

// requireAccount returns ErrAccountNotFound for unknown accounts.
func requireAccount(ctx context.Context, uow UnitOfWork, op string, accountID uuid.UUID) error {
	account, err := uow.AccountRepository().GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return models.NewLedgerError(op, accountID, models.ErrAccountNotFound)
	}
	return nil
}

// listAccountIDs reads account IDs in a snapshot. Closed accounts are left
// out unless includeClosed is set.
func listAccountIDs(ctx context.Context, uowFactory UnitOfWorkFactory, includeClosed bool) ([]uuid.UUID, error) {
	uow := uowFactory.Create()
	if err := uow.BeginSnapshot(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	list := uow.AccountRepository().ListIDs
	if includeClosed {
		list = uow.AccountRepository().ListAllIDs
	}
	ids, err := list(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return ids, nil
}
