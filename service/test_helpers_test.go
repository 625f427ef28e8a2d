package service

import (
	"context"
	"testing"
	"time"

	"looseline/config"
	"looseline/events"
	"looseline/models"
	"looseline/money"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// TestMocks holds all mocks a service test needs
type TestMocks struct {
	Factory        *MockUnitOfWorkFactory
	UoW            *MockUnitOfWork
	UserRepo       *MockUserRepository
	AccountRepo    *MockAccountRepository
	BalanceRepo    *MockBalanceRepository
	EntryRepo      *MockLedgerEntryRepository
	WalletRepo     *MockWalletOperationRepository
	BetRepo        *MockBetRepository
	StatementRepo  *MockStatementRepository
	EventPublisher *MockEventPublisher
	Config         *config.Config
}

// NewTestMocks creates a new set of mocks wired into one unit of work
func NewTestMocks() *TestMocks {
	m := &TestMocks{
		Factory:        new(MockUnitOfWorkFactory),
		UoW:            new(MockUnitOfWork),
		UserRepo:       new(MockUserRepository),
		AccountRepo:    new(MockAccountRepository),
		BalanceRepo:    new(MockBalanceRepository),
		EntryRepo:      new(MockLedgerEntryRepository),
		WalletRepo:     new(MockWalletOperationRepository),
		BetRepo:        new(MockBetRepository),
		StatementRepo:  new(MockStatementRepository),
		EventPublisher: new(MockEventPublisher),
		Config:         config.NewTestConfig(),
	}
	m.UoW.SetRepositories(m.UserRepo, m.AccountRepo, m.BalanceRepo, m.EntryRepo, m.WalletRepo, m.BetRepo, m.StatementRepo)
	m.UoW.SetEventBus(m.EventPublisher)
	m.Factory.On("Create").Return(m.UoW)
	m.EventPublisher.On("Publish", mock.Anything).Return()
	return m
}

// ExpectCommittedTx expects a read-write transaction that commits
func (m *TestMocks) ExpectCommittedTx(ctx context.Context) {
	m.UoW.On("Begin", ctx).Return(nil)
	m.UoW.On("Commit").Return(nil)
	m.UoW.On("Rollback").Return(nil)
}

// ExpectRolledBackTx expects a read-write transaction that never commits
func (m *TestMocks) ExpectRolledBackTx(ctx context.Context) {
	m.UoW.On("Begin", ctx).Return(nil)
	m.UoW.On("Rollback").Return(nil)
}

// ExpectSnapshotTx expects a read-only snapshot transaction
func (m *TestMocks) ExpectSnapshotTx(ctx context.Context) {
	m.UoW.On("BeginSnapshot", ctx).Return(nil)
	m.UoW.On("Rollback").Return(nil)
}

// ExpectLockedAccount expects the aggregate lock followed by the account read
func (m *TestMocks) ExpectLockedAccount(ctx context.Context, account *models.Account, balance *models.BalanceSnapshot) {
	m.BalanceRepo.On("GetForUpdate", ctx, account.ID).Return(balance, nil)
	m.AccountRepo.On("GetByID", ctx, account.ID).Return(account, nil)
}

// ExpectInsert expects one ledger insert and assigns it id
func (m *TestMocks) ExpectInsert(ctx context.Context, id int64, match func(*models.LedgerEntry) bool) *mock.Call {
	return m.EntryRepo.On("Insert", ctx, mock.MatchedBy(match)).Return(nil).Run(func(args mock.Arguments) {
		entry := args.Get(1).(*models.LedgerEntry)
		entry.ID = id
		entry.CreatedAt = time.Now().UTC()
	})
}

// AssertAllExpectations asserts all mock expectations
func (m *TestMocks) AssertAllExpectations(t *testing.T) {
	m.Factory.AssertExpectations(t)
	m.UoW.AssertExpectations(t)
	m.UserRepo.AssertExpectations(t)
	m.AccountRepo.AssertExpectations(t)
	m.BalanceRepo.AssertExpectations(t)
	m.EntryRepo.AssertExpectations(t)
	m.WalletRepo.AssertExpectations(t)
	m.BetRepo.AssertExpectations(t)
	m.StatementRepo.AssertExpectations(t)
}

// PublishedOfType returns the published events of one type
func (m *TestMocks) PublishedOfType(eventType events.EventType) []events.Event {
	var matched []events.Event
	for _, e := range m.EventPublisher.Published() {
		if e.Type() == eventType {
			matched = append(matched, e)
		}
	}
	return matched
}

func createTestAccount(status models.AccountStatus) *models.Account {
	now := time.Now().UTC()
	return &models.Account{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Currency:  "USD",
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func createTestBalance(accountID uuid.UUID, balance, locked string) *models.BalanceSnapshot {
	b := models.NewBalanceSnapshot(accountID)
	b.Balance = money.MustParse(balance)
	b.LockedInBets = money.MustParse(locked)
	return b
}

func balanceIs(balance, locked string) func(*models.BalanceSnapshot) bool {
	return func(b *models.BalanceSnapshot) bool {
		return b.Balance.Equal(money.MustParse(balance)) && b.LockedInBets.Equal(money.MustParse(locked))
	}
}
