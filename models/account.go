package models

import (
	"time"

	"github.com/google/uuid"
)

// AccountStatus represents the lifecycle state of an account
type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusFrozen AccountStatus = "frozen"
	AccountStatusClosed AccountStatus = "closed"
)

// DefaultCurrency is used when an account is created without one.
const DefaultCurrency = "USD"

// Account holds a user's funds in a single currency.
type Account struct {
	ID           uuid.UUID     `db:"id" json:"id"`
	UserID       uuid.UUID     `db:"user_id" json:"user_id"`
	Currency     string        `db:"currency" json:"currency"`
	Status       AccountStatus `db:"status" json:"status"`
	StatusReason *string       `db:"status_reason" json:"status_reason,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// CheckMutable returns ErrAccountFrozen or ErrAccountClosed when the account
// may not take new balance changes.
func (a *Account) CheckMutable() error {
	switch a.Status {
	case AccountStatusFrozen:
		return ErrAccountFrozen
	case AccountStatusClosed:
		return ErrAccountClosed
	}
	return nil
}

// CanTransitionTo reports whether the account may move to next.
// Closed is terminal.
func (s AccountStatus) CanTransitionTo(next AccountStatus) bool {
	switch s {
	case AccountStatusActive:
		return next == AccountStatusFrozen || next == AccountStatusClosed
	case AccountStatusFrozen:
		return next == AccountStatusActive || next == AccountStatusClosed
	}
	return false
}
