package models

import (
	"fmt"
	"time"

	"looseline/money"

	"github.com/google/uuid"
)

// BalanceSnapshot is the materialized balance aggregate of an account.
// Balance already excludes stakes locked in active bets.
type BalanceSnapshot struct {
	AccountID         uuid.UUID   `db:"account_id" json:"account_id"`
	Balance           money.Money `db:"balance" json:"balance"`
	LockedInBets      money.Money `db:"locked_in_bets" json:"locked_in_bets"`
	TotalDeposited    money.Money `db:"total_deposited" json:"total_deposited"`
	TotalWithdrawn    money.Money `db:"total_withdrawn" json:"total_withdrawn"`
	TotalBet          money.Money `db:"total_bet" json:"total_bet"`
	TotalWon          money.Money `db:"total_won" json:"total_won"`
	LastTransactionAt *time.Time  `db:"last_transaction_at" json:"last_transaction_at,omitempty"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updated_at"`
}

// NewBalanceSnapshot returns the zero aggregate for a new account.
func NewBalanceSnapshot(accountID uuid.UUID) *BalanceSnapshot {
	return &BalanceSnapshot{
		AccountID:      accountID,
		Balance:        money.Zero,
		LockedInBets:   money.Zero,
		TotalDeposited: money.Zero,
		TotalWithdrawn: money.Zero,
		TotalBet:       money.Zero,
		TotalWon:       money.Zero,
	}
}

// Apply adds a signed amount to the balance and the running total matching
// txType. The snapshot is left untouched on error.
func (b *BalanceSnapshot) Apply(txType TransactionType, amount money.Money) error {
	if err := txType.ValidateAmount(amount); err != nil {
		return err
	}
	next := b.Balance.Add(amount)
	if next.IsNegative() {
		return fmt.Errorf("%w: balance %s cannot cover %s", ErrInsufficientFunds, b.Balance, amount.Abs())
	}
	b.Balance = next

	switch txType {
	case TransactionTypeDeposit:
		b.TotalDeposited = b.TotalDeposited.Add(amount)
	case TransactionTypeWithdrawal:
		b.TotalWithdrawn = b.TotalWithdrawn.Add(amount.Abs())
	case TransactionTypeBet:
		b.TotalBet = b.TotalBet.Add(amount.Abs())
	case TransactionTypeWin:
		b.TotalWon = b.TotalWon.Add(amount)
	}
	return nil
}

// LockStake moves a stake into locked_in_bets.
func (b *BalanceSnapshot) LockStake(stake money.Money) error {
	if err := stake.RequirePositive(); err != nil {
		return err
	}
	b.LockedInBets = b.LockedInBets.Add(stake)
	return nil
}

// ReleaseStake removes a settled stake from locked_in_bets.
func (b *BalanceSnapshot) ReleaseStake(stake money.Money) error {
	next := b.LockedInBets.Sub(stake)
	if next.IsNegative() {
		return fmt.Errorf("%w: locked %s cannot release %s", ErrInsufficientFunds, b.LockedInBets, stake)
	}
	b.LockedInBets = next
	return nil
}

// Clone returns a copy that can be mutated independently.
func (b *BalanceSnapshot) Clone() *BalanceSnapshot {
	c := *b
	return &c
}

// ChainBreak records a place where an entry does not continue from its
// predecessor.
type ChainBreak struct {
	EntryID         int64       `json:"entry_id"`
	PreviousEntryID int64       `json:"previous_entry_id"`
	ExpectedBefore  money.Money `json:"expected_before"`
	ActualBefore    money.Money `json:"actual_before"`
}

// ReconciliationResult compares the stored aggregate with a replay of the ledger.
type ReconciliationResult struct {
	AccountID     uuid.UUID    `json:"account_id"`
	StoredBalance money.Money  `json:"stored_balance"`
	LedgerBalance money.Money  `json:"ledger_balance"`
	StoredLocked  money.Money  `json:"stored_locked"`
	ActiveStakes  money.Money  `json:"active_stakes"`
	EntryCount    int64        `json:"entry_count"`
	ChainBreaks   []ChainBreak `json:"chain_breaks,omitempty"`
	Consistent    bool         `json:"consistent"`
	CheckedAt     time.Time    `json:"checked_at"`
}

// Evaluate sets Consistent from the collected figures.
func (r *ReconciliationResult) Evaluate() bool {
	r.Consistent = r.StoredBalance.Equal(r.LedgerBalance) &&
		r.StoredLocked.Equal(r.ActiveStakes) &&
		len(r.ChainBreaks) == 0
	return r.Consistent
}
