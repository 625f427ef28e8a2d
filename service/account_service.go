package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"looseline/config"
	"looseline/events"
	"looseline/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type accountService struct {
	uowFactory UnitOfWorkFactory
	config     *config.Config
}

// NewAccountService creates a new account service
func NewAccountService(uowFactory UnitOfWorkFactory, cfg *config.Config) AccountService {
	return &accountService{
		uowFactory: uowFactory,
		config:     cfg,
	}
}

// CreateUser provisions a user with their account and zero balance
func (s *accountService) CreateUser(ctx context.Context, req models.CreateUserRequest) (*models.UserAccount, error) {
	if err := validateRequest(req); err != nil {
		return nil, models.NewLedgerError("account.create", uuid.Nil, err)
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = s.config.DefaultCurrency
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	now := time.Now().UTC()
	user := &models.User{
		ID:        uuid.New(),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Username:  strings.TrimSpace(req.Username),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uow.UserRepository().Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	account := &models.Account{
		ID:        uuid.New(),
		UserID:    user.ID,
		Currency:  currency,
		Status:    models.AccountStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uow.AccountRepository().Create(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	balance, err := uow.BalanceRepository().Create(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create balance: %w", err)
	}

	uow.EventBus().Publish(events.AccountCreatedEvent{
		UserID:    user.ID,
		AccountID: account.ID,
		Username:  user.Username,
		Currency:  account.Currency,
	})
	publishAudit(ctx, uow, "account.created", "account", account.ID.String(), account.ID, "", string(account.Status))

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"userID":    user.ID,
		"accountID": account.ID,
		"username":  user.Username,
		"currency":  account.Currency,
	}).Info("Created user account")

	return &models.UserAccount{User: user, Account: account, Balance: balance}, nil
}

// GetAccount retrieves an account by ID
func (s *accountService) GetAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	uow := s.uowFactory.Create()
	if err := uow.BeginSnapshot(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, models.NewLedgerError("account.get", accountID, models.ErrAccountNotFound)
	}
	return account, nil
}

// GetAccountByUser retrieves the account owned by a user
func (s *accountService) GetAccountByUser(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	uow := s.uowFactory.Create()
	if err := uow.BeginSnapshot(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, models.NewLedgerError("account.get_by_user", uuid.Nil, models.ErrAccountNotFound).WithEntity(userID.String())
	}
	return account, nil
}

// FreezeAccount blocks balance changes on the account
func (s *accountService) FreezeAccount(ctx context.Context, accountID uuid.UUID, reason string) (*models.Account, error) {
	var account *models.Account
	err := withConflictRetry(ctx, s.config.MaxConflictRetries, "account.freeze", func() error {
		var err error
		account, err = s.changeStatus(ctx, accountID, models.AccountStatusFrozen, reason, nil)
		return err
	})
	return account, err
}

// UnfreezeAccount re-opens a frozen account
func (s *accountService) UnfreezeAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	var account *models.Account
	err := withConflictRetry(ctx, s.config.MaxConflictRetries, "account.unfreeze", func() error {
		var err error
		account, err = s.changeStatus(ctx, accountID, models.AccountStatusActive, "", nil)
		return err
	})
	return account, err
}

// CloseAccount closes an emptied account and deactivates its user.
// The checks run under the aggregate lock so no balance change can slip in.
func (s *accountService) CloseAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	var account *models.Account
	err := withConflictRetry(ctx, s.config.MaxConflictRetries, "account.close", func() error {
		var err error
		account, err = s.changeStatus(ctx, accountID, models.AccountStatusClosed, "closed by request", s.checkClosable)
		return err
	})
	return account, err
}

func (s *accountService) checkClosable(ctx context.Context, uow UnitOfWork, balance *models.BalanceSnapshot) error {
	if !balance.Balance.IsZero() || !balance.LockedInBets.IsZero() {
		return fmt.Errorf("%w: balance %s and locked %s must be zero", models.ErrInvalidTransition, balance.Balance, balance.LockedInBets)
	}

	activeBets, err := uow.BetRepository().CountActive(ctx, balance.AccountID)
	if err != nil {
		return fmt.Errorf("failed to count active bets: %w", err)
	}
	if activeBets > 0 {
		return fmt.Errorf("%w: %d bets are still open", models.ErrInvalidTransition, activeBets)
	}

	openOps, err := uow.WalletOperationRepository().CountNonTerminal(ctx, balance.AccountID)
	if err != nil {
		return fmt.Errorf("failed to count wallet operations: %w", err)
	}
	if openOps > 0 {
		return fmt.Errorf("%w: %d wallet operations are still in flight", models.ErrInvalidTransition, openOps)
	}
	return nil
}

func (s *accountService) changeStatus(
	ctx context.Context,
	accountID uuid.UUID,
	next models.AccountStatus,
	reason string,
	precondition func(context.Context, UnitOfWork, *models.BalanceSnapshot) error,
) (*models.Account, error) {
	op := "account." + string(next)

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

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
	if !account.Status.CanTransitionTo(next) {
		return nil, models.NewLedgerError(op, accountID, models.ErrInvalidTransition).WithState(string(account.Status))
	}

	if precondition != nil {
		if err := precondition(ctx, uow, balance); err != nil {
			return nil, models.NewLedgerError(op, accountID, err).WithState(string(account.Status))
		}
	}

	oldStatus := account.Status
	account.Status = next
	account.StatusReason = nil
	if reason != "" {
		account.StatusReason = &reason
	}
	account.UpdatedAt = time.Now().UTC()
	if err := uow.AccountRepository().UpdateStatus(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to update account status: %w", err)
	}

	if next == models.AccountStatusClosed {
		if err := uow.UserRepository().SetActive(ctx, account.UserID, false); err != nil {
			return nil, fmt.Errorf("failed to deactivate user: %w", err)
		}
	}

	publishAudit(ctx, uow, op, "account", account.ID.String(), account.ID, string(oldStatus), string(next))

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"accountID": account.ID,
		"oldStatus": oldStatus,
		"newStatus": next,
		"actor":     ActorFromContext(ctx),
	}).Info("Account status changed")

	return account, nil
}
