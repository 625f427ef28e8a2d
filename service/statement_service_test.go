package service

import (
	"context"
	"testing"
	"time"

	"looseline/events"
	"looseline/models"
	"looseline/money"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func entry(txType models.TransactionType, amount, before string) *models.LedgerEntry {
	a := money.MustParse(amount)
	b := money.MustParse(before)
	return &models.LedgerEntry{
		TransactionType: txType,
		Amount:          a,
		BalanceBefore:   b,
		BalanceAfter:    b.Add(a),
		Status:          models.EntryStatusCompleted,
	}
}

func newTestStatementService(m *TestMocks, now time.Time) *statementService {
	svc := NewStatementService(m.Factory, m.Config).(*statementService)
	svc.now = func() time.Time { return now }
	return svc
}

func TestBuildStatement(t *testing.T) {
	accountID := uuid.New()
	period, err := models.NewPeriod(2024, 2)
	require.NoError(t, err)

	entries := []*models.LedgerEntry{
		entry(models.TransactionTypeDeposit, "100.00", "20.00"),
		entry(models.TransactionTypeBet, "-10.00", "120.00"),
		entry(models.TransactionTypeWin, "25.00", "110.00"),
		entry(models.TransactionTypeBet, "-5.00", "135.00"),
		entry(models.TransactionTypeBonus, "3.00", "130.00"),
		entry(models.TransactionTypeWithdrawal, "-50.00", "133.00"),
		entry(models.TransactionTypeAdjustment, "-1.00", "83.00"),
	}
	bets := []*models.Bet{
		{Status: models.BetStatusWon, Stake: money.MustParse("10.00")},
		{Status: models.BetStatusLost, Stake: money.MustParse("5.00")},
		{Status: models.BetStatusVoid, Stake: money.MustParse("2.00")},
	}

	st := BuildStatement(accountID, period, money.MustParse("20.00"), entries, bets)

	assert.Equal(t, 2024, st.Year)
	assert.Equal(t, 2, st.Month)
	assert.Equal(t, "20.00", st.OpeningBalance.String())
	assert.Equal(t, "82.00", st.ClosingBalance.String())
	assert.Equal(t, "100.00", st.TotalDeposits.String())
	assert.Equal(t, "50.00", st.TotalWithdrawals.String())
	assert.Equal(t, "15.00", st.TotalBets.String())
	assert.Equal(t, "25.00", st.TotalWins.String())
	assert.Equal(t, "3.00", st.TotalBonuses.String())
	assert.Equal(t, "-1.00", st.TotalAdjustments.String())
	assert.Equal(t, "5.00", st.TotalLosses.String())
	assert.Equal(t, "20.00", st.NetProfit.String())
	assert.Equal(t, 7, st.TransactionCount)
	assert.Equal(t, 3, st.NumBets)
	assert.Equal(t, 1, st.NumWins)
	assert.Equal(t, 1, st.NumLosses)
	assert.Equal(t, "33.33", st.WinRate.StringFixed(2))
}

func TestBuildStatement_EmptyMonth(t *testing.T) {
	period, _ := models.NewPeriod(2024, 3)

	st := BuildStatement(uuid.New(), period, money.MustParse("42.00"), nil, nil)

	assert.Equal(t, "42.00", st.ClosingBalance.String())
	assert.Equal(t, 0, st.TransactionCount)
	assert.True(t, st.WinRate.IsZero())
}

func TestStatementService_Generate(t *testing.T) {
	ctx := context.Background()
	m := NewTestMocks()
	svc := newTestStatementService(m, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	account := createTestAccount(models.AccountStatusActive)
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	m.ExpectSnapshotTx(ctx)
	m.ExpectCommittedTx(ctx)
	m.AccountRepo.On("GetByID", ctx, account.ID).Return(account, nil)
	m.StatementRepo.On("GetByPeriod", ctx, account.ID, 2024, 2).Return(nil, nil)
	m.EntryRepo.On("LastBefore", ctx, account.ID, start).Return(entry(models.TransactionTypeDeposit, "50.00", "0.00"), nil)
	m.EntryRepo.On("ListByPeriod", ctx, account.ID, start, end).Return([]*models.LedgerEntry{
		entry(models.TransactionTypeDeposit, "10.00", "50.00"),
	}, nil)
	m.BetRepo.On("ListSettledInPeriod", ctx, account.ID, start, end).Return([]*models.Bet{}, nil)
	m.StatementRepo.On("Create", ctx, mock.MatchedBy(func(s *models.MonthlyStatement) bool {
		return s.OpeningBalance.Equal(money.MustParse("50.00")) && s.ClosingBalance.Equal(money.MustParse("60.00"))
	})).Return(nil).Run(func(args mock.Arguments) {
		args.Get(1).(*models.MonthlyStatement).ID = 77
	})

	st, err := svc.Generate(ctx, account.ID, 2024, 2)

	require.NoError(t, err)
	assert.Equal(t, int64(77), st.ID)
	assert.Equal(t, "60.00", st.ClosingBalance.String())

	generated := m.PublishedOfType(events.EventTypeStatementGenerated)
	require.Len(t, generated, 1)
	assert.Equal(t, int64(77), generated[0].(events.StatementGeneratedEvent).StatementID)
	m.AssertAllExpectations(t)
}

func TestStatementService_Generate_OpenPeriod(t *testing.T) {
	m := NewTestMocks()
	svc := newTestStatementService(m, time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC))

	_, err := svc.Generate(context.Background(), uuid.New(), 2024, 2)

	assert.ErrorIs(t, err, models.ErrInvalidPeriod)
	m.Factory.AssertNotCalled(t, "Create")
}

func TestStatementService_Generate_InvalidMonth(t *testing.T) {
	m := NewTestMocks()
	svc := newTestStatementService(m, time.Now())

	_, err := svc.Generate(context.Background(), uuid.New(), 2024, 13)

	assert.ErrorIs(t, err, models.ErrInvalidPeriod)
}

func TestStatementService_Generate_AlreadyExists(t *testing.T) {
	ctx := context.Background()
	m := NewTestMocks()
	svc := newTestStatementService(m, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))

	account := createTestAccount(models.AccountStatusActive)
	m.ExpectSnapshotTx(ctx)
	m.AccountRepo.On("GetByID", ctx, account.ID).Return(account, nil)
	m.StatementRepo.On("GetByPeriod", ctx, account.ID, 2024, 4).Return(&models.MonthlyStatement{ID: 1}, nil)

	_, err := svc.Generate(ctx, account.ID, 2024, 4)

	assert.ErrorIs(t, err, models.ErrStatementExists)
	m.StatementRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestStatementService_AttachReport(t *testing.T) {
	ctx := context.Background()

	t.Run("first attach", func(t *testing.T) {
		m := NewTestMocks()
		svc := NewStatementService(m.Factory, m.Config)
		m.ExpectCommittedTx(ctx)
		m.StatementRepo.On("GetByID", ctx, int64(5)).Return(&models.MonthlyStatement{ID: 5, AccountID: uuid.New()}, nil)
		m.StatementRepo.On("AttachReport", ctx, int64(5), "s3://reports/5.pdf").Return(true, nil)

		st, err := svc.AttachReport(ctx, 5, "s3://reports/5.pdf")

		require.NoError(t, err)
		require.NotNil(t, st.ReportURL)
		assert.Equal(t, "s3://reports/5.pdf", *st.ReportURL)
	})

	t.Run("second attach is rejected", func(t *testing.T) {
		m := NewTestMocks()
		svc := NewStatementService(m.Factory, m.Config)
		m.ExpectRolledBackTx(ctx)
		m.StatementRepo.On("GetByID", ctx, int64(5)).Return(&models.MonthlyStatement{ID: 5}, nil)
		m.StatementRepo.On("AttachReport", ctx, int64(5), "s3://reports/other.pdf").Return(false, nil)

		_, err := svc.AttachReport(ctx, 5, "s3://reports/other.pdf")

		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})

	t.Run("unknown statement", func(t *testing.T) {
		m := NewTestMocks()
		svc := NewStatementService(m.Factory, m.Config)
		m.ExpectRolledBackTx(ctx)
		m.StatementRepo.On("GetByID", ctx, int64(6)).Return(nil, nil)

		_, err := svc.AttachReport(ctx, 6, "s3://reports/6.pdf")

		assert.ErrorIs(t, err, models.ErrStatementNotFound)
	})
}

func TestStatementService_GenerateAll_SkipsExisting(t *testing.T) {
	ctx := context.Background()
	m := NewTestMocks()
	svc := newTestStatementService(m, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))

	existing := createTestAccount(models.AccountStatusActive)
	m.ExpectSnapshotTx(ctx)
	m.AccountRepo.On("ListIDs", ctx).Return([]uuid.UUID{existing.ID}, nil)
	m.AccountRepo.On("GetByID", ctx, existing.ID).Return(existing, nil)
	m.StatementRepo.On("GetByPeriod", ctx, existing.ID, 2024, 4).Return(&models.MonthlyStatement{ID: 1}, nil)

	statements, err := svc.GenerateAll(ctx, 2024, 4)

	require.NoError(t, err)
	assert.Empty(t, statements)
}
