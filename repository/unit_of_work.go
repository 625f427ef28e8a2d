package repository

import (
	"context"
	"errors"
	"fmt"

	"looseline/config"
	"looseline/database"
	"looseline/events"
	"looseline/service"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
)

// unitOfWork implements the UnitOfWork interface
type unitOfWork struct {
	db               *database.DB
	config           *config.Config
	tx               pgx.Tx
	ctx              context.Context
	transactionalBus *events.TransactionalBus
	userRepo         service.UserRepository
	accountRepo      service.AccountRepository
	balanceRepo      service.BalanceRepository
	entryRepo        service.LedgerEntryRepository
	walletRepo       service.WalletOperationRepository
	betRepo          service.BetRepository
	statementRepo    service.StatementRepository
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory
func NewUnitOfWorkFactory(db *database.DB, eventBus *events.Bus, cfg *config.Config) service.UnitOfWorkFactory {
	return &unitOfWorkFactory{
		db:       db,
		eventBus: eventBus,
		config:   cfg,
	}
}

type unitOfWorkFactory struct {
	db       *database.DB
	eventBus *events.Bus
	config   *config.Config
}

func (f *unitOfWorkFactory) Create() service.UnitOfWork {
	return &unitOfWork{
		db:               f.db,
		config:           f.config,
		transactionalBus: events.NewTransactionalBus(f.eventBus),
	}
}

// Begin starts a read committed, read-write transaction with the configured lock timeout
func (u *unitOfWork) Begin(ctx context.Context) error {
	return u.begin(ctx, database.TxReadWrite)
}

// BeginSnapshot starts a read-only repeatable read transaction
func (u *unitOfWork) BeginSnapshot(ctx context.Context) error {
	return u.begin(ctx, database.TxSnapshot)
}

func (u *unitOfWork) begin(ctx context.Context, mode database.TxMode) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.BeginTx(ctx, mode, u.config.LockTimeout)
	if err != nil {
		return translateError(err)
	}

	u.tx = tx
	u.ctx = ctx

	// Create repositories with the transaction
	u.userRepo = newUserRepositoryWithTx(tx)
	u.accountRepo = newAccountRepositoryWithTx(tx)
	u.balanceRepo = newBalanceRepositoryWithTx(tx)
	u.entryRepo = newLedgerEntryRepositoryWithTx(tx)
	u.walletRepo = newWalletOperationRepositoryWithTx(tx)
	u.betRepo = newBetRepositoryWithTx(tx)
	u.statementRepo = newStatementRepositoryWithTx(tx)

	return nil
}

// Commit commits the transaction and releases the pending events
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	err := u.tx.Commit(u.ctx)
	u.tx = nil
	if err != nil {
		u.transactionalBus.Discard()
		return fmt.Errorf("failed to commit transaction: %w", translateError(err))
	}

	// Flush pending events after successful commit
	if err := u.transactionalBus.Flush(u.ctx); err != nil {
		log.WithError(err).Error("Failed to flush events after commit")
	}

	return nil
}

// Rollback rolls back the transaction. It is safe to call after Commit.
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Nothing to rollback
	}

	err := u.tx.Rollback(u.ctx)
	u.tx = nil

	// Discard pending events on rollback
	u.transactionalBus.Discard()

	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// UserRepository returns the user repository for this unit of work
func (u *unitOfWork) UserRepository() service.UserRepository {
	if u.userRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.userRepo
}

// AccountRepository returns the account repository for this unit of work
func (u *unitOfWork) AccountRepository() service.AccountRepository {
	if u.accountRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.accountRepo
}

// BalanceRepository returns the balance repository for this unit of work
func (u *unitOfWork) BalanceRepository() service.BalanceRepository {
	if u.balanceRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.balanceRepo
}

// LedgerEntryRepository returns the ledger entry repository for this unit of work
func (u *unitOfWork) LedgerEntryRepository() service.LedgerEntryRepository {
	if u.entryRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.entryRepo
}

// WalletOperationRepository returns the wallet operation repository for this unit of work
func (u *unitOfWork) WalletOperationRepository() service.WalletOperationRepository {
	if u.walletRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.walletRepo
}

// BetRepository returns the bet repository for this unit of work
func (u *unitOfWork) BetRepository() service.BetRepository {
	if u.betRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.betRepo
}

// StatementRepository returns the statement repository for this unit of work
func (u *unitOfWork) StatementRepository() service.StatementRepository {
	if u.statementRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.statementRepo
}

// EventBus returns the transactional event bus for this unit of work
func (u *unitOfWork) EventBus() service.EventPublisher {
	if u.transactionalBus == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.transactionalBus
}
