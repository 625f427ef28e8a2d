package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a platform user. Every user owns exactly one account.
type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Username  string    `db:"username" json:"username"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CreateUserRequest provisions a user together with their account.
type CreateUserRequest struct {
	Email    string `validate:"required,email,max=255"`
	Username string `validate:"required,min=3,max=100"`
	Currency string `validate:"omitempty,len=3,alpha"`
}

// UserAccount is a user with their account and balance aggregate.
type UserAccount struct {
	User    *User            `json:"user"`
	Account *Account         `json:"account"`
	Balance *BalanceSnapshot `json:"balance"`
}
