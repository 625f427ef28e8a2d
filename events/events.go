package events

import (
	"context"
	"sync"
	"time"

	"looseline/models"
	"looseline/money"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBalanceChange         EventType = "balance_change"
	EventTypeAccountCreated        EventType = "account_created"
	EventTypeBetPlaced             EventType = "bet_placed"
	EventTypeBetSettled            EventType = "bet_settled"
	EventTypeWalletOperationChange EventType = "wallet_operation_change"
	EventTypeAudit                 EventType = "audit"
	EventTypeIntegrityViolation    EventType = "integrity_violation"
	EventTypeStatementGenerated    EventType = "statement_generated"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BalanceChangeEvent represents a ledger entry that was appended
type BalanceChangeEvent struct {
	AccountID       uuid.UUID              `json:"account_id"`
	EntryID         int64                  `json:"entry_id"`
	TransactionType models.TransactionType `json:"transaction_type"`
	Amount          money.Money            `json:"amount"`
	OldBalance      money.Money            `json:"old_balance"`
	NewBalance      money.Money            `json:"new_balance"`
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// AccountCreatedEvent represents a new user and account
type AccountCreatedEvent struct {
	UserID    uuid.UUID `json:"user_id"`
	AccountID uuid.UUID `json:"account_id"`
	Username  string    `json:"username"`
	Currency  string    `json:"currency"`
}

func (e AccountCreatedEvent) Type() EventType {
	return EventTypeAccountCreated
}

// BetPlacedEvent represents a bet whose stake has been locked
type BetPlacedEvent struct {
	BetID        uuid.UUID   `json:"bet_id"`
	AccountID    uuid.UUID   `json:"account_id"`
	Stake        money.Money `json:"stake"`
	PotentialWin money.Money `json:"potential_win"`
}

func (e BetPlacedEvent) Type() EventType {
	return EventTypeBetPlaced
}

// BetSettledEvent represents a bet reaching its outcome
type BetSettledEvent struct {
	BetID     uuid.UUID        `json:"bet_id"`
	AccountID uuid.UUID        `json:"account_id"`
	Outcome   models.BetStatus `json:"outcome"`
	Stake     money.Money      `json:"stake"`
	Payout    money.Money      `json:"payout"`
}

func (e BetSettledEvent) Type() EventType {
	return EventTypeBetSettled
}

// WalletOperationChangeEvent represents a wallet operation state transition
type WalletOperationChangeEvent struct {
	OperationID   uuid.UUID              `json:"operation_id"`
	AccountID     uuid.UUID              `json:"account_id"`
	OperationType models.OperationType   `json:"operation_type"`
	Amount        money.Money            `json:"amount"`
	OldState      models.OperationStatus `json:"old_state"`
	NewState      models.OperationStatus `json:"new_state"`
}

func (e WalletOperationChangeEvent) Type() EventType {
	return EventTypeWalletOperationChange
}

// AuditEvent records who changed what. Persisting it is left to subscribers.
type AuditEvent struct {
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	AccountID  uuid.UUID `json:"account_id"`
	OldState   string    `json:"old_state,omitempty"`
	NewState   string    `json:"new_state,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e AuditEvent) Type() EventType {
	return EventTypeAudit
}

// IntegrityViolationEvent is raised when reconciliation finds a mismatch
type IntegrityViolationEvent struct {
	AccountID     uuid.UUID   `json:"account_id"`
	StoredBalance money.Money `json:"stored_balance"`
	LedgerBalance money.Money `json:"ledger_balance"`
	StoredLocked  money.Money `json:"stored_locked"`
	ActiveStakes  money.Money `json:"active_stakes"`
	ChainBreaks   int         `json:"chain_breaks"`
	DetectedAt    time.Time   `json:"detected_at"`
}

func (e IntegrityViolationEvent) Type() EventType {
	return EventTypeIntegrityViolation
}

// StatementGeneratedEvent represents a new monthly statement
type StatementGeneratedEvent struct {
	StatementID int64     `json:"statement_id"`
	AccountID   uuid.UUID `json:"account_id"`
	Year        int       `json:"year"`
	Month       int       `json:"month"`
}

func (e StatementGeneratedEvent) Type() EventType {
	return EventTypeStatementGenerated
}

// AllEventTypes lists every event type the ledger emits.
func AllEventTypes() []EventType {
	return []EventType{
		EventTypeBalanceChange,
		EventTypeAccountCreated,
		EventTypeBetPlaced,
		EventTypeBetSettled,
		EventTypeWalletOperationChange,
		EventTypeAudit,
		EventTypeIntegrityViolation,
		EventTypeStatementGenerated,
	}
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type on main event bus")
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers on main event bus")

	// Call handlers asynchronously to avoid blocking
	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// A transactional event bus for holding pending events coupled to the Unit of Work.
// Flushes to the underlying event bus.
type TransactionalBus struct {
	real    *Bus
	pending []Event // stashed until Flush
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	log.WithFields(log.Fields{
		"eventType":    e.Type(),
		"pendingCount": len(b.pending),
	}).Debug("Adding event to transactional bus pending queue")
	b.pending = append(b.pending, e)
}

// Pending returns the number of events waiting for Flush.
func (b *TransactionalBus) Pending() int {
	return len(b.pending)
}

// called after successful DB commit
func (b *TransactionalBus) Flush(ctx context.Context) error {
	log.WithFields(log.Fields{
		"pendingEventCount": len(b.pending),
	}).Debug("Flushing pending events from transactional bus to main event bus")

	// Handlers outlive the request; never hand them the transaction's context
	eventCtx := context.Background()

	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
	return nil
}

// called after db rollback or to clear state.
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
