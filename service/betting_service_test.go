package service

import (
	"context"
	"testing"
	"time"

	"looseline/events"
	"looseline/models"
	"looseline/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func createTestBet(id, accountID uuid.UUID, status models.BetStatus) *models.Bet {
	now := time.Now().UTC()
	stakeEntry := int64(1)
	return &models.Bet{
		ID:           id,
		AccountID:    accountID,
		EventID:      "match-1",
		Selection:    "home",
		Odds:         decimal.RequireFromString("2.50"),
		Stake:        money.MustParse("10.00"),
		PotentialWin: money.MustParse("25.00"),
		Status:       status,
		StakeEntryID: &stakeEntry,
		PlacedAt:     now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func placeBetRequest(accountID uuid.UUID, stake string) models.PlaceBetRequest {
	return models.PlaceBetRequest{
		AccountID: accountID,
		EventID:   "match-1",
		Selection: "home",
		Odds:      decimal.RequireFromString("2.50"),
		Stake:     money.MustParse(stake),
	}
}

func TestBettingService_PlaceBet(t *testing.T) {
	ctx := context.Background()
	m := NewTestMocks()
	svc := NewBettingService(m.Factory, m.Config)

	account := createTestAccount(models.AccountStatusActive)
	m.ExpectCommittedTx(ctx)
	m.ExpectLockedAccount(ctx, account, createTestBalance(account.ID, "100.00", "0.00"))
	m.ExpectInsert(ctx, 5, func(e *models.LedgerEntry) bool {
		return e.TransactionType == models.TransactionTypeBet &&
			e.Amount.Equal(money.MustParse("-10.00")) &&
			e.BalanceAfter.Equal(money.MustParse("90.00")) &&
			e.ReferenceType != nil && *e.ReferenceType == models.ReferenceTypeBet
	})
	m.BalanceRepo.On("Save", ctx, mock.MatchedBy(func(b *models.BalanceSnapshot) bool {
		return balanceIs("90.00", "10.00")(b) && b.TotalBet.Equal(money.MustParse("10.00"))
	})).Return(nil)
	m.BetRepo.On("Create", ctx, mock.MatchedBy(func(b *models.Bet) bool {
		return b.Status == models.BetStatusActive &&
			b.PotentialWin.Equal(money.MustParse("25.00")) &&
			b.StakeEntryID != nil && *b.StakeEntryID == 5
	})).Return(nil)

	bet, err := svc.PlaceBet(ctx, placeBetRequest(account.ID, "10.00"))

	require.NoError(t, err)
	assert.Equal(t, models.BetStatusActive, bet.Status)
	assert.Equal(t, "25.00", bet.PotentialWin.String())
	assert.Len(t, m.PublishedOfType(events.EventTypeBetPlaced), 1)
	m.AssertAllExpectations(t)
}

func TestBettingService_PlaceBet_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	m := NewTestMocks()
	svc := NewBettingService(m.Factory, m.Config)

	account := createTestAccount(models.AccountStatusActive)
	m.ExpectRolledBackTx(ctx)
	m.ExpectLockedAccount(ctx, account, createTestBalance(account.ID, "100.00", "0.00"))

	_, err := svc.PlaceBet(ctx, placeBetRequest(account.ID, "200.00"))

	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
	m.EntryRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	m.BalanceRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	m.BetRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	m.UoW.AssertNotCalled(t, "Commit")
}

func TestBettingService_PlaceBet_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.PlaceBetRequest)
		wantErr error
	}{
		{"odds below one", func(r *models.PlaceBetRequest) { r.Odds = decimal.RequireFromString("0.95") }, models.ErrValidation},
		{"odds too precise", func(r *models.PlaceBetRequest) { r.Odds = decimal.RequireFromString("1.23456") }, models.ErrValidation},
		{"zero stake", func(r *models.PlaceBetRequest) { r.Stake = money.Zero }, models.ErrInvalidAmount},
		{"negative stake", func(r *models.PlaceBetRequest) { r.Stake = money.MustParse("-1.00") }, models.ErrInvalidAmount},
		{"missing selection", func(r *models.PlaceBetRequest) { r.Selection = "" }, models.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewTestMocks()
			svc := NewBettingService(m.Factory, m.Config)

			req := placeBetRequest(uuid.New(), "10.00")
			tt.mutate(&req)

			_, err := svc.PlaceBet(context.Background(), req)

			assert.ErrorIs(t, err, tt.wantErr)
			m.Factory.AssertNotCalled(t, "Create")
		})
	}
}

func expectSettlement(ctx context.Context, m *TestMocks, account *models.Account, betID uuid.UUID) {
	m.BetRepo.On("GetByID", ctx, betID).Return(createTestBet(betID, account.ID, models.BetStatusActive), nil)
	m.ExpectLockedAccount(ctx, account, createTestBalance(account.ID, "90.00", "10.00"))
	m.BetRepo.On("GetByIDForUpdate", ctx, betID).Return(createTestBet(betID, account.ID, models.BetStatusActive), nil)
}

func TestBettingService_Settle_Won(t *testing.T) {
	ctx := context.Background()
	m := NewTestMocks()
	svc := NewBettingService(m.Factory, m.Config)

	account := createTestAccount(models.AccountStatusActive)
	betID := uuid.New()
	m.ExpectCommittedTx(ctx)
	expectSettlement(ctx, m, account, betID)
	m.ExpectInsert(ctx, 9, func(e *models.LedgerEntry) bool {
		return e.TransactionType == models.TransactionTypeWin &&
			e.Amount.Equal(money.MustParse("25.00")) &&
			e.BalanceBefore.Equal(money.MustParse("90.00")) &&
			e.BalanceAfter.Equal(money.MustParse("115.00"))
	})
	m.BalanceRepo.On("Save", ctx, mock.MatchedBy(func(b *models.BalanceSnapshot) bool {
		return balanceIs("115.00", "0.00")(b) && b.TotalWon.Equal(money.MustParse("25.00"))
	})).Return(nil)
	m.BetRepo.On("Update", ctx, mock.MatchedBy(func(b *models.Bet) bool {
		return b.Status == models.BetStatusWon &&
			b.ActualWin != nil && b.ActualWin.Equal(money.MustParse("25.00")) &&
			b.PayoutEntryID != nil && *b.PayoutEntryID == 9 &&
			b.SettledAt != nil
	})).Return(nil)

	bet, err := svc.Settle(ctx, betID, models.BetStatusWon, money.Zero)

	require.NoError(t, err)
	assert.Equal(t, models.BetStatusWon, bet.Status)

	settled := m.PublishedOfType(events.EventTypeBetSettled)
	require.Len(t, settled, 1)
	assert.Equal(t, "25.00", settled[0].(events.BetSettledEvent).Payout.String())
	m.AssertAllExpectations(t)
}

func TestBettingService_Settle_LostWritesNoEntry(t *testing.T) {
	ctx := context.Background()
	m := NewTestMocks()
	svc := NewBettingService(m.Factory, m.Config)

	account := createTestAccount(models.AccountStatusActive)
	betID := uuid.New()
	m.ExpectCommittedTx(ctx)
	expectSettlement(ctx, m, account, betID)
	m.BalanceRepo.On("Save", ctx, mock.MatchedBy(balanceIs("90.00", "0.00"))).Return(nil)
	m.BetRepo.On("Update", ctx, mock.MatchedBy(func(b *models.Bet) bool {
		return b.Status == models.BetStatusLost &&
			b.ActualWin != nil && b.ActualWin.IsZero() &&
			b.PayoutEntryID == nil
	})).Return(nil)

	bet, err := svc.Settle(ctx, betID, models.BetStatusLost, money.Zero)

	require.NoError(t, err)
	assert.Equal(t, models.BetStatusLost, bet.Status)
	m.EntryRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	assert.Empty(t, m.PublishedOfType(events.EventTypeBalanceChange))
	m.AssertAllExpectations(t)
}

func TestBettingService_Settle_VoidRefundsStake(t *testing.T) {
	ctx := context.Background()
	m := NewTestMocks()
	svc := NewBettingService(m.Factory, m.Config)

	account := createTestAccount(models.AccountStatusActive)
	betID := uuid.New()
	m.ExpectCommittedTx(ctx)
	expectSettlement(ctx, m, account, betID)
	m.ExpectInsert(ctx, 10, func(e *models.LedgerEntry) bool {
		return e.TransactionType == models.TransactionTypeRefund && e.Amount.Equal(money.MustParse("10.00"))
	})
	m.BalanceRepo.On("Save", ctx, mock.MatchedBy(balanceIs("100.00", "0.00"))).Return(nil)
	m.BetRepo.On("Update", ctx, mock.MatchedBy(func(b *models.Bet) bool {
		return b.Status == models.BetStatusVoid
	})).Return(nil)

	_, err := svc.Settle(ctx, betID, models.BetStatusVoid, money.Zero)

	require.NoError(t, err)
	m.AssertAllExpectations(t)
}

func TestBettingService_Settle_Cashout(t *testing.T) {
	ctx := context.Background()

	t.Run("within potential win", func(t *testing.T) {
		m := NewTestMocks()
		svc := NewBettingService(m.Factory, m.Config)
		account := createTestAccount(models.AccountStatusActive)
		betID := uuid.New()
		m.ExpectCommittedTx(ctx)
		expectSettlement(ctx, m, account, betID)
		m.ExpectInsert(ctx, 12, func(e *models.LedgerEntry) bool {
			return e.TransactionType == models.TransactionTypeRefund && e.Amount.Equal(money.MustParse("17.30"))
		})
		m.BalanceRepo.On("Save", ctx, mock.MatchedBy(balanceIs("107.30", "0.00"))).Return(nil)
		m.BetRepo.On("Update", ctx, mock.Anything).Return(nil)

		bet, err := svc.Settle(ctx, betID, models.BetStatusCashout, money.MustParse("17.30"))

		require.NoError(t, err)
		assert.Equal(t, "17.30", bet.ActualWin.String())
	})

	t.Run("above potential win", func(t *testing.T) {
		m := NewTestMocks()
		svc := NewBettingService(m.Factory, m.Config)
		account := createTestAccount(models.AccountStatusActive)
		betID := uuid.New()
		m.ExpectRolledBackTx(ctx)
		expectSettlement(ctx, m, account, betID)

		_, err := svc.Settle(ctx, betID, models.BetStatusCashout, money.MustParse("25.01"))

		assert.ErrorIs(t, err, models.ErrInvalidAmount)
		m.BalanceRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})
}

func TestBettingService_Settle_AlreadySettled(t *testing.T) {
	ctx := context.Background()
	m := NewTestMocks()
	svc := NewBettingService(m.Factory, m.Config)

	account := createTestAccount(models.AccountStatusActive)
	betID := uuid.New()
	m.ExpectRolledBackTx(ctx)
	m.BetRepo.On("GetByID", ctx, betID).Return(createTestBet(betID, account.ID, models.BetStatusWon), nil)
	m.ExpectLockedAccount(ctx, account, createTestBalance(account.ID, "115.00", "0.00"))
	m.BetRepo.On("GetByIDForUpdate", ctx, betID).Return(createTestBet(betID, account.ID, models.BetStatusWon), nil)

	_, err := svc.Settle(ctx, betID, models.BetStatusLost, money.Zero)

	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	m.BetRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestBettingService_Settle_NotFound(t *testing.T) {
	ctx := context.Background()
	m := NewTestMocks()
	svc := NewBettingService(m.Factory, m.Config)

	betID := uuid.New()
	m.ExpectRolledBackTx(ctx)
	m.BetRepo.On("GetByID", ctx, betID).Return(nil, nil)

	_, err := svc.Settle(ctx, betID, models.BetStatusWon, money.Zero)

	assert.ErrorIs(t, err, models.ErrBetNotFound)
}

func TestBettingService_Settle_RejectsNonOutcome(t *testing.T) {
	m := NewTestMocks()
	svc := NewBettingService(m.Factory, m.Config)

	_, err := svc.Settle(context.Background(), uuid.New(), models.BetStatusActive, money.Zero)

	assert.ErrorIs(t, err, models.ErrValidation)
	m.Factory.AssertNotCalled(t, "Create")
}
