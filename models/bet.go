package models

import (
	"fmt"
	"time"

	"looseline/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OddsScale is the number of fractional digits allowed on decimal odds.
const OddsScale int32 = 4

// BetStatus represents the lifecycle state of a bet
type BetStatus string

const (
	BetStatusPending BetStatus = "pending"
	BetStatusActive  BetStatus = "active"
	BetStatusWon     BetStatus = "won"
	BetStatusLost    BetStatus = "lost"
	BetStatusVoid    BetStatus = "void"
	BetStatusCashout BetStatus = "cashout"
)

// IsSettled returns true for every outcome state.
func (s BetStatus) IsSettled() bool {
	switch s {
	case BetStatusWon, BetStatusLost, BetStatusVoid, BetStatusCashout:
		return true
	}
	return false
}

// CanTransitionTo reports whether s may move to next.
func (s BetStatus) CanTransitionTo(next BetStatus) bool {
	switch s {
	case BetStatusPending:
		return next == BetStatusActive || next == BetStatusVoid
	case BetStatusActive:
		return next.IsSettled()
	}
	return false
}

// Bet is a stake placed on an event outcome at fixed decimal odds.
type Bet struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	AccountID     uuid.UUID       `db:"account_id" json:"account_id"`
	EventID       string          `db:"event_id" json:"event_id"`
	EventName     string          `db:"event_name" json:"event_name,omitempty"`
	MarketType    string          `db:"market_type" json:"market_type,omitempty"`
	Selection     string          `db:"selection" json:"selection"`
	Odds          decimal.Decimal `db:"odds" json:"odds"`
	Stake         money.Money     `db:"stake" json:"stake"`
	PotentialWin  money.Money     `db:"potential_win" json:"potential_win"`
	ActualWin     *money.Money    `db:"actual_win" json:"actual_win,omitempty"`
	Status        BetStatus       `db:"status" json:"status"`
	StakeEntryID  *int64          `db:"stake_entry_id" json:"stake_entry_id,omitempty"`
	PayoutEntryID *int64          `db:"payout_entry_id" json:"payout_entry_id,omitempty"`
	Metadata      map[string]any  `db:"metadata" json:"metadata,omitempty"`
	PlacedAt      time.Time       `db:"placed_at" json:"placed_at"`
	SettledAt     *time.Time      `db:"settled_at" json:"settled_at,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// maxOdds is the largest value the odds column (NUMERIC(10, 4)) holds.
var maxOdds = decimal.RequireFromString("999999.9999")

// ValidateOdds requires decimal odds of at least 1 with at most four
// fractional digits.
func ValidateOdds(odds decimal.Decimal) error {
	if odds.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: odds %s must be at least 1.0", ErrValidation, odds)
	}
	if odds.GreaterThan(maxOdds) {
		return fmt.Errorf("%w: odds %s exceed %s", ErrValidation, odds, maxOdds)
	}
	if !odds.Equal(odds.Round(OddsScale)) {
		return fmt.Errorf("%w: odds %s have more than %d fractional digits", ErrValidation, odds, OddsScale)
	}
	return nil
}

// PotentialWinFor is stake x odds rounded to the minor unit.
func PotentialWinFor(stake money.Money, odds decimal.Decimal) money.Money {
	return stake.MulRate(odds)
}

// Settlement describes what a settlement outcome does to the balance.
type Settlement struct {
	Outcome   BetStatus
	Payout    money.Money
	EntryType TransactionType
}

// Settle computes the payout for outcome. cashout is only read for the
// cashout outcome and must lie in (0, potential win].
func (b *Bet) Settle(outcome BetStatus, cashout money.Money) (*Settlement, error) {
	if !b.Status.CanTransitionTo(outcome) || !outcome.IsSettled() {
		return nil, fmt.Errorf("%w: bet %s cannot move from %s to %s", ErrInvalidTransition, b.ID, b.Status, outcome)
	}

	switch outcome {
	case BetStatusWon:
		return &Settlement{Outcome: outcome, Payout: b.PotentialWin, EntryType: TransactionTypeWin}, nil
	case BetStatusLost:
		return &Settlement{Outcome: outcome, Payout: money.Zero}, nil
	case BetStatusVoid:
		return &Settlement{Outcome: outcome, Payout: b.Stake, EntryType: TransactionTypeRefund}, nil
	default:
		if err := cashout.RequirePositive(); err != nil {
			return nil, err
		}
		if cashout.GreaterThan(b.PotentialWin) {
			return nil, fmt.Errorf("%w: cashout %s exceeds potential win %s", ErrInvalidAmount, cashout, b.PotentialWin)
		}
		return &Settlement{Outcome: outcome, Payout: cashout, EntryType: TransactionTypeRefund}, nil
	}
}

// HasEntry reports whether the settlement posts a ledger entry.
func (s *Settlement) HasEntry() bool {
	return s.Payout.IsPositive()
}

// PlaceBetRequest describes a new bet.
type PlaceBetRequest struct {
	AccountID  uuid.UUID `validate:"required"`
	EventID    string    `validate:"required,max=100"`
	EventName  string    `validate:"max=255"`
	MarketType string    `validate:"max=50"`
	Selection  string    `validate:"required,max=255"`
	Odds       decimal.Decimal
	Stake      money.Money
	Metadata   map[string]any
}
