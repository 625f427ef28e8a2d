package service

import (
	"context"
	"time"

	"looseline/events"
	"looseline/models"
	"looseline/money"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	args := m.Called(ctx, id, active)
	return args.Error(0)
}

// MockAccountRepository is a mock implementation of AccountRepository
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) Create(ctx context.Context, account *models.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) UpdateStatus(ctx context.Context, account *models.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockAccountRepository) ListAllIDs(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

// MockBalanceRepository is a mock implementation of BalanceRepository
type MockBalanceRepository struct {
	mock.Mock
}

func (m *MockBalanceRepository) Create(ctx context.Context, accountID uuid.UUID) (*models.BalanceSnapshot, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BalanceSnapshot), args.Error(1)
}

func (m *MockBalanceRepository) Get(ctx context.Context, accountID uuid.UUID) (*models.BalanceSnapshot, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BalanceSnapshot), args.Error(1)
}

func (m *MockBalanceRepository) GetForUpdate(ctx context.Context, accountID uuid.UUID) (*models.BalanceSnapshot, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BalanceSnapshot), args.Error(1)
}

func (m *MockBalanceRepository) Save(ctx context.Context, snapshot *models.BalanceSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

// MockLedgerEntryRepository is a mock implementation of LedgerEntryRepository
type MockLedgerEntryRepository struct {
	mock.Mock
}

func (m *MockLedgerEntryRepository) Insert(ctx context.Context, entry *models.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockLedgerEntryRepository) GetByID(ctx context.Context, id int64) (*models.LedgerEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerEntry), args.Error(1)
}

func (m *MockLedgerEntryRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.LedgerEntry, error) {
	args := m.Called(ctx, accountID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LedgerEntry), args.Error(1)
}

func (m *MockLedgerEntryRepository) ListByPeriod(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]*models.LedgerEntry, error) {
	args := m.Called(ctx, accountID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LedgerEntry), args.Error(1)
}

func (m *MockLedgerEntryRepository) ListByReference(ctx context.Context, refType models.ReferenceType, refID uuid.UUID) ([]*models.LedgerEntry, error) {
	args := m.Called(ctx, refType, refID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LedgerEntry), args.Error(1)
}

func (m *MockLedgerEntryRepository) LastBefore(ctx context.Context, accountID uuid.UUID, t time.Time) (*models.LedgerEntry, error) {
	args := m.Called(ctx, accountID, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerEntry), args.Error(1)
}

// ForEachCompleted feeds the entries given to Return to fn in order.
func (m *MockLedgerEntryRepository) ForEachCompleted(ctx context.Context, accountID uuid.UUID, fn func(*models.LedgerEntry) error) error {
	args := m.Called(ctx, accountID)
	if entries, ok := args.Get(0).([]*models.LedgerEntry); ok {
		for _, e := range entries {
			if err := fn(e); err != nil {
				return err
			}
		}
	}
	return args.Error(1)
}

// MockWalletOperationRepository is a mock implementation of WalletOperationRepository
type MockWalletOperationRepository struct {
	mock.Mock
}

func (m *MockWalletOperationRepository) Create(ctx context.Context, op *models.WalletOperation) error {
	args := m.Called(ctx, op)
	return args.Error(0)
}

func (m *MockWalletOperationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.WalletOperation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WalletOperation), args.Error(1)
}

func (m *MockWalletOperationRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.WalletOperation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WalletOperation), args.Error(1)
}

func (m *MockWalletOperationRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.WalletOperation, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WalletOperation), args.Error(1)
}

func (m *MockWalletOperationRepository) Update(ctx context.Context, op *models.WalletOperation) error {
	args := m.Called(ctx, op)
	return args.Error(0)
}

func (m *MockWalletOperationRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.WalletOperation, error) {
	args := m.Called(ctx, accountID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.WalletOperation), args.Error(1)
}

func (m *MockWalletOperationRepository) CountNonTerminal(ctx context.Context, accountID uuid.UUID) (int, error) {
	args := m.Called(ctx, accountID)
	return args.Int(0), args.Error(1)
}

// MockBetRepository is a mock implementation of BetRepository
type MockBetRepository struct {
	mock.Mock
}

func (m *MockBetRepository) Create(ctx context.Context, bet *models.Bet) error {
	args := m.Called(ctx, bet)
	return args.Error(0)
}

func (m *MockBetRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Bet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bet), args.Error(1)
}

func (m *MockBetRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Bet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bet), args.Error(1)
}

func (m *MockBetRepository) Update(ctx context.Context, bet *models.Bet) error {
	args := m.Called(ctx, bet)
	return args.Error(0)
}

func (m *MockBetRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.Bet, error) {
	args := m.Called(ctx, accountID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bet), args.Error(1)
}

func (m *MockBetRepository) SumActiveStakes(ctx context.Context, accountID uuid.UUID) (money.Money, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(money.Money), args.Error(1)
}

func (m *MockBetRepository) CountActive(ctx context.Context, accountID uuid.UUID) (int, error) {
	args := m.Called(ctx, accountID)
	return args.Int(0), args.Error(1)
}

func (m *MockBetRepository) ListSettledInPeriod(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]*models.Bet, error) {
	args := m.Called(ctx, accountID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bet), args.Error(1)
}

// MockStatementRepository is a mock implementation of StatementRepository
type MockStatementRepository struct {
	mock.Mock
}

func (m *MockStatementRepository) Create(ctx context.Context, statement *models.MonthlyStatement) error {
	args := m.Called(ctx, statement)
	return args.Error(0)
}

func (m *MockStatementRepository) GetByID(ctx context.Context, id int64) (*models.MonthlyStatement, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MonthlyStatement), args.Error(1)
}

func (m *MockStatementRepository) GetByPeriod(ctx context.Context, accountID uuid.UUID, year, month int) (*models.MonthlyStatement, error) {
	args := m.Called(ctx, accountID, year, month)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MonthlyStatement), args.Error(1)
}

func (m *MockStatementRepository) AttachReport(ctx context.Context, id int64, url string) (bool, error) {
	args := m.Called(ctx, id, url)
	return args.Bool(0), args.Error(1)
}

func (m *MockStatementRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.MonthlyStatement, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.MonthlyStatement), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// Published returns the events passed to Publish, in order.
func (m *MockEventPublisher) Published() []events.Event {
	var published []events.Event
	for _, call := range m.Calls {
		if call.Method == "Publish" {
			published = append(published, call.Arguments.Get(0).(events.Event))
		}
	}
	return published
}

// MockUnitOfWork is a mock implementation of UnitOfWork. Transaction calls go
// through testify; repository getters return whatever SetRepositories stored.
type MockUnitOfWork struct {
	mock.Mock

	userRepo       UserRepository
	accountRepo    AccountRepository
	balanceRepo    BalanceRepository
	entryRepo      LedgerEntryRepository
	walletRepo     WalletOperationRepository
	betRepo        BetRepository
	statementRepo  StatementRepository
	eventPublisher EventPublisher
}

// SetRepositories wires the repositories returned by the getters. Nil
// arguments leave the getter returning nil.
func (m *MockUnitOfWork) SetRepositories(
	userRepo *MockUserRepository,
	accountRepo *MockAccountRepository,
	balanceRepo *MockBalanceRepository,
	entryRepo *MockLedgerEntryRepository,
	walletRepo *MockWalletOperationRepository,
	betRepo *MockBetRepository,
	statementRepo *MockStatementRepository,
) {
	if userRepo != nil {
		m.userRepo = userRepo
	}
	if accountRepo != nil {
		m.accountRepo = accountRepo
	}
	if balanceRepo != nil {
		m.balanceRepo = balanceRepo
	}
	if entryRepo != nil {
		m.entryRepo = entryRepo
	}
	if walletRepo != nil {
		m.walletRepo = walletRepo
	}
	if betRepo != nil {
		m.betRepo = betRepo
	}
	if statementRepo != nil {
		m.statementRepo = statementRepo
	}
}

// SetEventBus wires the publisher returned by EventBus
func (m *MockUnitOfWork) SetEventBus(publisher EventPublisher) {
	m.eventPublisher = publisher
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) BeginSnapshot(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) UserRepository() UserRepository {
	return m.userRepo
}

func (m *MockUnitOfWork) AccountRepository() AccountRepository {
	return m.accountRepo
}

func (m *MockUnitOfWork) BalanceRepository() BalanceRepository {
	return m.balanceRepo
}

func (m *MockUnitOfWork) LedgerEntryRepository() LedgerEntryRepository {
	return m.entryRepo
}

func (m *MockUnitOfWork) WalletOperationRepository() WalletOperationRepository {
	return m.walletRepo
}

func (m *MockUnitOfWork) BetRepository() BetRepository {
	return m.betRepo
}

func (m *MockUnitOfWork) StatementRepository() StatementRepository {
	return m.statementRepo
}

func (m *MockUnitOfWork) EventBus() EventPublisher {
	return m.eventPublisher
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}
