package testutil

import (
	"fmt"
	"time"

	"looseline/models"
	"looseline/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateTestUser creates a test user with unique email and username
func CreateTestUser(username string) *models.User {
	now := time.Now().UTC()
	suffix := uuid.NewString()[:8]
	return &models.User{
		ID:        uuid.New(),
		Email:     fmt.Sprintf("%s-%s@example.com", username, suffix),
		Username:  fmt.Sprintf("%s-%s", username, suffix),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CreateTestAccount creates an active USD account for the user
func CreateTestAccount(userID uuid.UUID) *models.Account {
	now := time.Now().UTC()
	return &models.Account{
		ID:        uuid.New(),
		UserID:    userID,
		Currency:  models.DefaultCurrency,
		Status:    models.AccountStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CreateTestEntry builds a completed entry that moves the balance from before by amount
func CreateTestEntry(accountID uuid.UUID, txType models.TransactionType, amount, before string) *models.LedgerEntry {
	a := money.MustParse(amount)
	b := money.MustParse(before)
	return &models.LedgerEntry{
		AccountID:       accountID,
		TransactionType: txType,
		Amount:          a,
		BalanceBefore:   b,
		BalanceAfter:    b.Add(a),
		Description:     "test entry",
		Metadata:        map[string]any{"test": true},
		Status:          models.EntryStatusCompleted,
	}
}

// CreateTestWalletOperation creates a pending operation without fees
func CreateTestWalletOperation(accountID uuid.UUID, opType models.OperationType, amount string) *models.WalletOperation {
	now := time.Now().UTC()
	a := money.MustParse(amount)
	return &models.WalletOperation{
		ID:            uuid.New(),
		AccountID:     accountID,
		OperationType: opType,
		Amount:        a,
		Currency:      models.DefaultCurrency,
		FeeAmount:     money.Zero,
		NetAmount:     a,
		Status:        models.OperationStatusPending,
		Processor:     "test",
		InitiatedAt:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CreateTestBet creates an active bet at the given stake and odds
func CreateTestBet(accountID uuid.UUID, stake, odds string) *models.Bet {
	now := time.Now().UTC()
	s := money.MustParse(stake)
	o := decimal.RequireFromString(odds)
	return &models.Bet{
		ID:           uuid.New(),
		AccountID:    accountID,
		EventID:      "evt-" + uuid.NewString()[:8],
		EventName:    "Test Match",
		MarketType:   "match_winner",
		Selection:    "home",
		Odds:         o,
		Stake:        s,
		PotentialWin: models.PotentialWinFor(s, o),
		Status:       models.BetStatusActive,
		PlacedAt:     now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
