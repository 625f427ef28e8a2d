package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"looseline/config"
	"looseline/events"
	"looseline/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type walletService struct {
	uowFactory UnitOfWorkFactory
	config     *config.Config
}

// NewWalletService creates a new wallet service
func NewWalletService(uowFactory UnitOfWorkFactory, cfg *config.Config) WalletService {
	return &walletService{
		uowFactory: uowFactory,
		config:     cfg,
	}
}

// Initiate records a pending deposit or withdrawal. A repeated idempotency
// key returns the operation created by the first call.
func (s *walletService) Initiate(ctx context.Context, req models.InitiateRequest) (*models.WalletOperation, error) {
	if err := validateRequest(req); err != nil {
		return nil, models.NewLedgerError("wallet.initiate", req.AccountID, err)
	}
	if err := requirePositive("wallet.initiate", req.AccountID, req.Amount); err != nil {
		return nil, err
	}
	if req.OperationType == models.OperationTypeDeposit {
		net := req.Amount.Sub(req.Amount.MulRate(s.config.DepositFeeRate))
		if !net.IsPositive() {
			return nil, models.NewLedgerError("wallet.initiate", req.AccountID,
				fmt.Errorf("%w: deposit of %s credits %s after fees", models.ErrInvalidAmount, req.Amount, net)).
				WithAmount(req.Amount)
		}
	}

	var op *models.WalletOperation
	err := withConflictRetry(ctx, s.config.MaxConflictRetries, "wallet.initiate", func() error {
		var err error
		op, err = s.initiate(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return op, nil
}

func (s *walletService) initiate(ctx context.Context, req models.InitiateRequest) (*models.WalletOperation, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if req.IdempotencyKey != nil {
		existing, err := uow.WalletOperationRepository().GetByIdempotencyKey(ctx, *req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency key: %w", err)
		}
		if existing != nil {
			if existing.AccountID != req.AccountID || existing.OperationType != req.OperationType || !existing.Amount.Equal(req.Amount) {
				return nil, models.NewLedgerError("wallet.initiate", req.AccountID,
					fmt.Errorf("%w: idempotency key reused with different parameters", models.ErrValidation)).
					WithEntity(existing.ID.String())
			}
			log.WithFields(log.Fields{
				"operationID":    existing.ID,
				"idempotencyKey": *req.IdempotencyKey,
			}).Info("Returning existing wallet operation for idempotency key")
			return existing, nil
		}
	}

	account, err := uow.AccountRepository().GetByID(ctx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, models.NewLedgerError("wallet.initiate", req.AccountID, models.ErrAccountNotFound)
	}
	if err := account.CheckMutable(); err != nil {
		return nil, models.NewLedgerError("wallet.initiate", req.AccountID, err).WithState(string(account.Status))
	}

	rate := s.config.DepositFeeRate
	if req.OperationType == models.OperationTypeWithdrawal {
		rate = s.config.WithdrawalFeeRate

		// Soft check only; the authoritative check runs under the lock in Complete.
		balance, err := uow.BalanceRepository().Get(ctx, req.AccountID)
		if err != nil {
			return nil, fmt.Errorf("failed to get balance: %w", err)
		}
		if balance == nil {
			return nil, models.NewLedgerError("wallet.initiate", req.AccountID, models.ErrAccountNotFound)
		}
		if balance.Balance.LessThan(req.Amount) {
			return nil, models.NewLedgerError("wallet.initiate", req.AccountID, models.ErrInsufficientFunds).WithAmount(req.Amount)
		}
	}
	fee := req.Amount.MulRate(rate)

	now := time.Now().UTC()
	op := &models.WalletOperation{
		ID:             uuid.New(),
		AccountID:      req.AccountID,
		OperationType:  req.OperationType,
		Amount:         req.Amount,
		Currency:       account.Currency,
		FeeAmount:      fee,
		NetAmount:      req.Amount.Sub(fee),
		Status:         models.OperationStatusPending,
		Processor:      req.Processor,
		IdempotencyKey: req.IdempotencyKey,
		InitiatedAt:    now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := uow.WalletOperationRepository().Create(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to create wallet operation: %w", err)
	}

	s.publishChange(ctx, uow, op, "")

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"operationID":   op.ID,
		"accountID":     op.AccountID,
		"operationType": op.OperationType,
		"amount":        op.Amount.String(),
		"fee":           op.FeeAmount.String(),
	}).Info("Initiated wallet operation")

	return op, nil
}

// MarkProcessing moves a pending operation to processing. Repeating it on a
// processing operation is a no-op.
func (s *walletService) MarkProcessing(ctx context.Context, operationID uuid.UUID, processorRef string) (*models.WalletOperation, error) {
	var op *models.WalletOperation
	err := withConflictRetry(ctx, s.config.MaxConflictRetries, "wallet.mark_processing", func() error {
		var err error
		op, err = s.transition(ctx, operationID, models.OperationStatusProcessing, processorRef, nil, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return op, nil
}

// Complete posts the operation's ledger entry and marks it completed in the
// same transaction.
func (s *walletService) Complete(ctx context.Context, operationID uuid.UUID, processorRef string) (*models.WalletOperation, error) {
	var op *models.WalletOperation
	err := withConflictRetry(ctx, s.config.MaxConflictRetries, "wallet.complete", func() error {
		var err error
		op, err = s.complete(ctx, operationID, processorRef)
		return err
	})
	if err == nil {
		return op, nil
	}
	if op != nil && op.Status == models.OperationStatusFailed && isLedgerRejection(err) {
		return op, err
	}
	if !isLedgerRejection(err) {
		return nil, err
	}

	// A constraint raised by the database aborted the transaction after the
	// entry insert, so the failure is recorded in a second one.
	code := models.ErrorCode(err)
	message := err.Error()
	var failed *models.WalletOperation
	failErr := withConflictRetry(ctx, s.config.MaxConflictRetries, "wallet.complete", func() error {
		var ferr error
		failed, ferr = s.transition(ctx, operationID, models.OperationStatusFailed, processorRef, &code, &message)
		return ferr
	})
	if failErr != nil {
		return nil, fmt.Errorf("failed to record rejected completion: %w (rejection: %w)", failErr, err)
	}

	log.WithFields(log.Fields{
		"operationID": operationID,
		"errorCode":   code,
	}).Warn("Wallet operation rejected by ledger")

	return failed, err
}

func (s *walletService) complete(ctx context.Context, operationID uuid.UUID, processorRef string) (*models.WalletOperation, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	// Read unlocked to learn the account, then lock in aggregate-first order.
	op, err := uow.WalletOperationRepository().GetByID(ctx, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet operation: %w", err)
	}
	if op == nil {
		return nil, models.NewLedgerError("wallet.complete", uuid.Nil, models.ErrWalletOperationNotFound).WithEntity(operationID.String())
	}
	if done, err := checkTerminal(op, models.OperationStatusCompleted, processorRef); done || err != nil {
		return op, err
	}

	// A frozen or closed account still leaves the aggregate locked, so the
	// rejection can be recorded in this transaction.
	locked, lockErr := lockAccount(ctx, uow, "wallet.complete", op.AccountID)
	if lockErr != nil && !isLedgerRejection(lockErr) {
		return nil, lockErr
	}

	op, err = uow.WalletOperationRepository().GetByIDForUpdate(ctx, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet operation: %w", err)
	}
	if op == nil {
		return nil, models.NewLedgerError("wallet.complete", uuid.Nil, models.ErrWalletOperationNotFound).WithEntity(operationID.String())
	}
	if done, err := checkTerminal(op, models.OperationStatusCompleted, processorRef); done || err != nil {
		return op, err
	}
	if !op.Status.CanTransitionTo(models.OperationStatusCompleted) {
		return nil, models.NewLedgerError("wallet.complete", op.AccountID, models.ErrInvalidTransition).
			WithEntity(op.ID.String()).
			WithState(string(op.Status))
	}
	if lockErr != nil {
		return s.reject(ctx, uow, op, processorRef, lockErr)
	}

	next := locked.balance.Clone()
	if err := next.Apply(op.TransactionType(), op.LedgerAmount()); err != nil {
		return s.reject(ctx, uow, op, processorRef, models.NewLedgerError("wallet.complete", op.AccountID, err).
			WithEntity(op.ID.String()).
			WithAmount(op.LedgerAmount()))
	}

	refType, refID := models.Reference(models.ReferenceTypeWalletOperation, op.ID)
	entry, err := appendEntry(ctx, uow, locked, models.AppendRequest{
		AccountID:       op.AccountID,
		TransactionType: op.TransactionType(),
		Amount:          op.LedgerAmount(),
		ReferenceType:   refType,
		ReferenceID:     refID,
		Description:     fmt.Sprintf("%s via %s", op.OperationType, processorName(op)),
		Metadata: map[string]any{
			"fee_amount": op.FeeAmount.String(),
			"gross":      op.Amount.String(),
		},
	})
	if err != nil {
		return nil, err
	}

	oldStatus := op.Status
	if err := op.Transition(models.OperationStatusCompleted, time.Now().UTC()); err != nil {
		return nil, models.NewLedgerError("wallet.complete", op.AccountID, err).WithEntity(op.ID.String())
	}
	op.LedgerEntryID = &entry.ID
	if processorRef != "" {
		op.ProcessorReference = &processorRef
	}
	if err := uow.WalletOperationRepository().Update(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to update wallet operation: %w", err)
	}

	s.publishChange(ctx, uow, op, oldStatus)

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"operationID": op.ID,
		"accountID":   op.AccountID,
		"entryID":     entry.ID,
		"amount":      entry.Amount.String(),
	}).Info("Completed wallet operation")

	return op, nil
}

// reject marks a locked operation failed with the ledger's reason and commits
// it. The rejection is returned alongside the failed operation.
func (s *walletService) reject(ctx context.Context, uow UnitOfWork, op *models.WalletOperation, processorRef string, cause error) (*models.WalletOperation, error) {
	oldStatus := op.Status
	if err := op.Transition(models.OperationStatusFailed, time.Now().UTC()); err != nil {
		return nil, models.NewLedgerError("wallet.complete", op.AccountID, err).WithEntity(op.ID.String())
	}
	code := models.ErrorCode(cause)
	message := cause.Error()
	op.ErrorCode = &code
	op.ErrorMessage = &message
	if processorRef != "" {
		op.ProcessorReference = &processorRef
	}
	if err := uow.WalletOperationRepository().Update(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to update wallet operation: %w", err)
	}

	s.publishChange(ctx, uow, op, oldStatus)

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"operationID": op.ID,
		"errorCode":   code,
	}).Warn("Wallet operation rejected by ledger")

	return op, cause
}

// Fail moves a non-terminal operation to failed
func (s *walletService) Fail(ctx context.Context, operationID uuid.UUID, code, message string) (*models.WalletOperation, error) {
	var op *models.WalletOperation
	err := withConflictRetry(ctx, s.config.MaxConflictRetries, "wallet.fail", func() error {
		var err error
		op, err = s.transition(ctx, operationID, models.OperationStatusFailed, "", &code, &message)
		return err
	})
	if err != nil {
		return nil, err
	}
	return op, nil
}

// Cancel moves a non-terminal operation to cancelled
func (s *walletService) Cancel(ctx context.Context, operationID uuid.UUID, reason string) (*models.WalletOperation, error) {
	var op *models.WalletOperation
	err := withConflictRetry(ctx, s.config.MaxConflictRetries, "wallet.cancel", func() error {
		var err error
		op, err = s.transition(ctx, operationID, models.OperationStatusCancelled, "", nil, &reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return op, nil
}

// transition applies a status change that does not touch the balance.
func (s *walletService) transition(ctx context.Context, operationID uuid.UUID, next models.OperationStatus, processorRef string, code, message *string) (*models.WalletOperation, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	op, err := uow.WalletOperationRepository().GetByIDForUpdate(ctx, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet operation: %w", err)
	}
	if op == nil {
		return nil, models.NewLedgerError("wallet.transition", uuid.Nil, models.ErrWalletOperationNotFound).WithEntity(operationID.String())
	}
	if op.Status == next {
		log.WithFields(log.Fields{
			"operationID": op.ID,
			"status":      op.Status,
		}).Warn("Duplicate wallet operation callback ignored")
		return op, nil
	}
	if done, err := checkTerminal(op, next, processorRef); done || err != nil {
		return op, err
	}

	oldStatus := op.Status
	if err := op.Transition(next, time.Now().UTC()); err != nil {
		return nil, models.NewLedgerError("wallet.transition", op.AccountID, err).
			WithEntity(op.ID.String()).
			WithState(string(oldStatus))
	}
	if processorRef != "" {
		op.ProcessorReference = &processorRef
	}
	if code != nil && *code != "" {
		op.ErrorCode = code
	}
	if message != nil && *message != "" {
		op.ErrorMessage = message
	}
	if err := uow.WalletOperationRepository().Update(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to update wallet operation: %w", err)
	}

	s.publishChange(ctx, uow, op, oldStatus)

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"operationID": op.ID,
		"oldStatus":   oldStatus,
		"newStatus":   op.Status,
	}).Info("Wallet operation transitioned")

	return op, nil
}

// GetOperation retrieves a wallet operation by ID
func (s *walletService) GetOperation(ctx context.Context, operationID uuid.UUID) (*models.WalletOperation, error) {
	uow := s.uowFactory.Create()
	if err := uow.BeginSnapshot(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	op, err := uow.WalletOperationRepository().GetByID(ctx, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet operation: %w", err)
	}
	if op == nil {
		return nil, models.NewLedgerError("wallet.get", uuid.Nil, models.ErrWalletOperationNotFound).WithEntity(operationID.String())
	}
	return op, nil
}

// ListOperations returns an account's operations, newest first
func (s *walletService) ListOperations(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.WalletOperation, error) {
	uow := s.uowFactory.Create()
	if err := uow.BeginSnapshot(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := requireAccount(ctx, uow, "wallet.list", accountID); err != nil {
		return nil, err
	}

	ops, err := uow.WalletOperationRepository().ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet operations: %w", err)
	}
	return ops, nil
}

func (s *walletService) publishChange(ctx context.Context, uow UnitOfWork, op *models.WalletOperation, oldStatus models.OperationStatus) {
	uow.EventBus().Publish(events.WalletOperationChangeEvent{
		OperationID:   op.ID,
		AccountID:     op.AccountID,
		OperationType: op.OperationType,
		Amount:        op.Amount,
		OldState:      oldStatus,
		NewState:      op.Status,
	})
	publishAudit(ctx, uow, "wallet_operation."+string(op.Status), "wallet_operation", op.ID.String(), op.AccountID, string(oldStatus), string(op.Status))
}

// checkTerminal handles callbacks on an operation that already finished.
// Redelivered callbacks are no-ops: the same outcome, a late processing
// notice, or a completion the ledger already rejected. Any other outcome is an
// invalid transition.
func checkTerminal(op *models.WalletOperation, next models.OperationStatus, processorRef string) (bool, error) {
	if !op.Status.IsTerminal() {
		return false, nil
	}
	if op.Status == next || next == models.OperationStatusProcessing || rejectedByLedger(op, next) {
		fields := log.Fields{"operationID": op.ID, "status": op.Status}
		if processorRef != "" && op.ProcessorReference != nil && *op.ProcessorReference != processorRef {
			fields["storedReference"] = *op.ProcessorReference
			fields["callbackReference"] = processorRef
		}
		if op.Status != next {
			fields["callbackStatus"] = next
		}
		log.WithFields(fields).Warn("Duplicate wallet operation callback ignored")
		return true, nil
	}
	return true, models.NewLedgerError("wallet.transition", op.AccountID, models.ErrInvalidTransition).
		WithEntity(op.ID.String()).
		WithState(string(op.Status))
}

// ledgerRejectionCodes are the error codes recorded when the ledger itself
// refused a completion.
var ledgerRejectionCodes = map[string]bool{
	models.ErrorCode(models.ErrInsufficientFunds): true,
	models.ErrorCode(models.ErrAccountFrozen):     true,
	models.ErrorCode(models.ErrAccountClosed):     true,
	models.ErrorCode(models.ErrInvalidAmount):     true,
}

// rejectedByLedger reports whether a completion callback arrives for an
// operation the ledger already failed.
func rejectedByLedger(op *models.WalletOperation, next models.OperationStatus) bool {
	return next == models.OperationStatusCompleted &&
		op.Status == models.OperationStatusFailed &&
		op.ErrorCode != nil && ledgerRejectionCodes[*op.ErrorCode]
}

// isLedgerRejection reports whether the ledger refused the entry for a
// business reason, as opposed to an infrastructure failure.
func isLedgerRejection(err error) bool {
	return errors.Is(err, models.ErrInsufficientFunds) ||
		errors.Is(err, models.ErrAccountFrozen) ||
		errors.Is(err, models.ErrAccountClosed) ||
		errors.Is(err, models.ErrInvalidAmount)
}

func processorName(op *models.WalletOperation) string {
	if op.Processor == "" {
		return "unknown processor"
	}
	return op.Processor
}
