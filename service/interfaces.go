package service

import (
	"context"
	"time"

	"looseline/events"
	"looseline/models"
	"looseline/money"

	"github.com/google/uuid"
)

// Repositories return (nil, nil) when a row does not exist; services turn that
// into the matching not-found error.

// UserRepository defines the interface for user data access
type UserRepository interface {
	// Create inserts a new user, failing with ErrUserExists on a duplicate email or username
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// SetActive flips the user's active flag
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// AccountRepository defines the interface for account data access
type AccountRepository interface {
	// Create inserts a new account
	Create(ctx context.Context, account *models.Account) error

	// GetByID retrieves an account by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)

	// GetByUserID retrieves the account owned by a user
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Account, error)

	// UpdateStatus changes the account status
	UpdateStatus(ctx context.Context, account *models.Account) error

	// ListIDs returns the IDs of all accounts that are not closed
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
	// ListAllIDs returns the IDs of every account, closed ones included
	ListAllIDs(ctx context.Context) ([]uuid.UUID, error)
}

// BalanceRepository defines the interface for the balance aggregate
type BalanceRepository interface {
	// Create inserts the zero aggregate for a new account
	Create(ctx context.Context, accountID uuid.UUID) (*models.BalanceSnapshot, error)

	// Get reads the aggregate without locking
	Get(ctx context.Context, accountID uuid.UUID) (*models.BalanceSnapshot, error)

	// GetForUpdate reads the aggregate and holds its row lock until the
	// transaction ends. It is the first lock every mutating transaction takes.
	GetForUpdate(ctx context.Context, accountID uuid.UUID) (*models.BalanceSnapshot, error)

	// Save writes balance, locked stakes and running totals back
	Save(ctx context.Context, snapshot *models.BalanceSnapshot) error
}

// LedgerEntryRepository defines the interface for the append-only ledger
type LedgerEntryRepository interface {
	// Insert appends an entry and sets its ID and creation time
	Insert(ctx context.Context, entry *models.LedgerEntry) error

	// GetByID retrieves an entry by ID
	GetByID(ctx context.Context, id int64) (*models.LedgerEntry, error)

	// ListByAccount returns entries in creation order
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.LedgerEntry, error)

	// ListByPeriod returns entries created in [from, to) in creation order
	ListByPeriod(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]*models.LedgerEntry, error)

	// ListByReference returns entries pointing at the given entity
	ListByReference(ctx context.Context, refType models.ReferenceType, refID uuid.UUID) ([]*models.LedgerEntry, error)

	// LastBefore returns the newest completed entry created before t
	LastBefore(ctx context.Context, accountID uuid.UUID, t time.Time) (*models.LedgerEntry, error)

	// ForEachCompleted streams completed entries in creation order
	ForEachCompleted(ctx context.Context, accountID uuid.UUID, fn func(*models.LedgerEntry) error) error
}

// WalletOperationRepository defines the interface for wallet operation data access
type WalletOperationRepository interface {
	Create(ctx context.Context, op *models.WalletOperation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.WalletOperation, error)

	// GetByIDForUpdate locks the operation row. Take the aggregate lock first.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.WalletOperation, error)

	GetByIdempotencyKey(ctx context.Context, key string) (*models.WalletOperation, error)
	Update(ctx context.Context, op *models.WalletOperation) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.WalletOperation, error)

	// CountNonTerminal counts pending and processing operations
	CountNonTerminal(ctx context.Context, accountID uuid.UUID) (int, error)
}

// BetRepository defines the interface for bet data access
type BetRepository interface {
	Create(ctx context.Context, bet *models.Bet) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Bet, error)

	// GetByIDForUpdate locks the bet row. Take the aggregate lock first.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Bet, error)

	Update(ctx context.Context, bet *models.Bet) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.Bet, error)

	// SumActiveStakes returns the total stake of active bets
	SumActiveStakes(ctx context.Context, accountID uuid.UUID) (money.Money, error)

	// CountActive counts pending and active bets
	CountActive(ctx context.Context, accountID uuid.UUID) (int, error)

	// ListSettledInPeriod returns bets settled in [from, to)
	ListSettledInPeriod(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]*models.Bet, error)
}

// StatementRepository defines the interface for monthly statement data access
type StatementRepository interface {
	// Create inserts a statement, failing with ErrStatementExists for a duplicate period
	Create(ctx context.Context, statement *models.MonthlyStatement) error

	GetByID(ctx context.Context, id int64) (*models.MonthlyStatement, error)
	GetByPeriod(ctx context.Context, accountID uuid.UUID, year, month int) (*models.MonthlyStatement, error)

	// AttachReport sets the report URL once; it reports false when a URL was already set
	AttachReport(ctx context.Context, id int64, url string) (bool, error)

	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.MonthlyStatement, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a read-write transaction with the configured lock timeout
	Begin(ctx context.Context) error

	// BeginSnapshot starts a read-only repeatable read transaction
	BeginSnapshot(ctx context.Context) error

	// Commit commits the transaction and flushes pending events
	Commit() error

	// Rollback rolls back the transaction and discards pending events
	Rollback() error

	// Repository getters
	UserRepository() UserRepository
	AccountRepository() AccountRepository
	BalanceRepository() BalanceRepository
	LedgerEntryRepository() LedgerEntryRepository
	WalletOperationRepository() WalletOperationRepository
	BetRepository() BetRepository
	StatementRepository() StatementRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// AccountService defines account provisioning and lifecycle operations
type AccountService interface {
	// CreateUser creates the user, their account and a zero balance in one transaction
	CreateUser(ctx context.Context, req models.CreateUserRequest) (*models.UserAccount, error)

	GetAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error)
	GetAccountByUser(ctx context.Context, userID uuid.UUID) (*models.Account, error)

	// FreezeAccount blocks every balance change until UnfreezeAccount
	FreezeAccount(ctx context.Context, accountID uuid.UUID, reason string) (*models.Account, error)
	UnfreezeAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error)

	// CloseAccount closes an emptied account and deactivates its user. Ledger rows are kept.
	CloseAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error)
}

// LedgerService defines the operations on the ledger and the balance aggregate
type LedgerService interface {
	// Append writes one entry and updates the aggregate atomically
	Append(ctx context.Context, req models.AppendRequest) (*models.LedgerEntry, error)

	GetEntry(ctx context.Context, id int64) (*models.LedgerEntry, error)
	ListEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.LedgerEntry, error)
	GetBalance(ctx context.Context, accountID uuid.UUID) (*models.BalanceSnapshot, error)

	// Reconcile replays the ledger and compares it with the stored aggregate.
	// A mismatch freezes the account and returns ErrIntegrityViolation.
	Reconcile(ctx context.Context, accountID uuid.UUID) (*models.ReconciliationResult, error)

	// ReconcileAll reconciles every open account
	ReconcileAll(ctx context.Context) ([]*models.ReconciliationResult, error)

	GrantBonus(ctx context.Context, accountID uuid.UUID, amount money.Money, description string) (*models.LedgerEntry, error)

	// Adjust posts a manual correction of either sign
	Adjust(ctx context.Context, accountID uuid.UUID, amount money.Money, reason string) (*models.LedgerEntry, error)

	// RefundOperation credits back (part of) a completed withdrawal
	RefundOperation(ctx context.Context, operationID uuid.UUID, amount money.Money, reason string) (*models.LedgerEntry, error)
}

// WalletService defines the deposit and withdrawal lifecycle
type WalletService interface {
	Initiate(ctx context.Context, req models.InitiateRequest) (*models.WalletOperation, error)
	MarkProcessing(ctx context.Context, operationID uuid.UUID, processorRef string) (*models.WalletOperation, error)

	// Complete posts the ledger entry. When the ledger rejects it the operation
	// is returned as failed together with the rejection error.
	Complete(ctx context.Context, operationID uuid.UUID, processorRef string) (*models.WalletOperation, error)

	Fail(ctx context.Context, operationID uuid.UUID, code, message string) (*models.WalletOperation, error)
	Cancel(ctx context.Context, operationID uuid.UUID, reason string) (*models.WalletOperation, error)
	GetOperation(ctx context.Context, operationID uuid.UUID) (*models.WalletOperation, error)
	ListOperations(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.WalletOperation, error)
}

// BettingService defines bet placement and settlement
type BettingService interface {
	PlaceBet(ctx context.Context, req models.PlaceBetRequest) (*models.Bet, error)

	// Settle resolves an active bet. cashoutAmount is only used for the cashout outcome.
	Settle(ctx context.Context, betID uuid.UUID, outcome models.BetStatus, cashoutAmount money.Money) (*models.Bet, error)

	GetBet(ctx context.Context, betID uuid.UUID) (*models.Bet, error)
	ListBets(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.Bet, error)
}

// StatementService defines monthly statement generation
type StatementService interface {
	// EntriesForPeriod returns the month's entries in creation order
	EntriesForPeriod(ctx context.Context, accountID uuid.UUID, year, month int) ([]*models.LedgerEntry, error)

	// Generate builds and stores the statement for a closed month
	Generate(ctx context.Context, accountID uuid.UUID, year, month int) (*models.MonthlyStatement, error)

	// GenerateAll generates statements for every account, skipping existing ones
	GenerateAll(ctx context.Context, year, month int) ([]*models.MonthlyStatement, error)

	AttachReport(ctx context.Context, statementID int64, url string) (*models.MonthlyStatement, error)
	GetStatement(ctx context.Context, statementID int64) (*models.MonthlyStatement, error)
	ListStatements(ctx context.Context, accountID uuid.UUID) ([]*models.MonthlyStatement, error)
}
