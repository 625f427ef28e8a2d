package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"looseline/config"
	"looseline/events"
	"looseline/models"
	"looseline/money"
	"looseline/repository"
	"looseline/repository/testutil"
	"looseline/service"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServices struct {
	db         *testutil.TestDatabase
	bus        *events.Bus
	accounts   service.AccountService
	ledger     service.LedgerService
	wallet     service.WalletService
	betting    service.BettingService
	statements service.StatementService
}

func setupServices(t *testing.T) *testServices {
	t.Helper()
	testDB := testutil.SetupTestDatabase(t)

	cfg := config.NewTestConfig()
	cfg.MaxConflictRetries = 10
	bus := events.NewBus()
	factory := repository.NewUnitOfWorkFactory(testDB.DB, bus, cfg)

	return &testServices{
		db:         testDB,
		bus:        bus,
		accounts:   service.NewAccountService(factory, cfg),
		ledger:     service.NewLedgerService(factory, cfg),
		wallet:     service.NewWalletService(factory, cfg),
		betting:    service.NewBettingService(factory, cfg),
		statements: service.NewStatementService(factory, cfg),
	}
}

func (s *testServices) newAccount(t *testing.T, deposit string) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	name := "player-" + uuid.NewString()[:8]
	ua, err := s.accounts.CreateUser(ctx, models.CreateUserRequest{
		Email:    name + "@example.com",
		Username: name,
	})
	require.NoError(t, err)

	if deposit != "" {
		_, err = s.ledger.Append(ctx, models.AppendRequest{
			AccountID:       ua.Account.ID,
			TransactionType: models.TransactionTypeDeposit,
			Amount:          money.MustParse(deposit),
			Description:     "opening deposit",
		})
		require.NoError(t, err)
	}
	return ua.Account.ID
}

func (s *testServices) balanceIs(t *testing.T, accountID uuid.UUID, balance, locked string) {
	t.Helper()
	b, err := s.ledger.GetBalance(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, balance, b.Balance.String(), "balance")
	assert.Equal(t, locked, b.LockedInBets.String(), "locked in bets")
}

func TestLedger_ConcurrentDeposits(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	accountID := s.newAccount(t, "")

	const workers = 100
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ledger.Append(ctx, models.AppendRequest{
				AccountID:       accountID,
				TransactionType: models.TransactionTypeDeposit,
				Amount:          money.MustParse("1.00"),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	s.balanceIs(t, accountID, "100.00", "0.00")

	entries, err := s.ledger.ListEntries(ctx, accountID, 200, 0)
	require.NoError(t, err)
	assert.Len(t, entries, workers)

	result, err := s.ledger.Reconcile(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, result.Consistent)
	assert.Equal(t, int64(workers), result.EntryCount)
}

// race runs fn from n goroutines at once and collects the errors
func race(n int, fn func(i int) error) []error {
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = fn(i)
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}

func countOutcomes(t *testing.T, errs []error) (succeeded, rejected int) {
	t.Helper()
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, models.ErrInsufficientFunds):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	return succeeded, rejected
}

func TestBetting_ConcurrentStakesNeverOverdraw(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	accountID := s.newAccount(t, "50.00")

	errs := race(10, func(i int) error {
		_, err := s.betting.PlaceBet(ctx, models.PlaceBetRequest{
			AccountID: accountID,
			EventID:   "match-7",
			Selection: "away",
			Odds:      decimal.RequireFromString("1.90"),
			Stake:     money.MustParse("10.00"),
		})
		return err
	})

	succeeded, rejected := countOutcomes(t, errs)
	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 5, rejected)
	s.balanceIs(t, accountID, "0.00", "50.00")

	bets, err := s.betting.ListBets(ctx, accountID, 20, 0)
	require.NoError(t, err)
	assert.Len(t, bets, 5)

	result, err := s.ledger.Reconcile(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, result.Consistent)
}

func TestWallet_ConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	accountID := s.newAccount(t, "50.00")

	opIDs := make([]uuid.UUID, 10)
	for i := range opIDs {
		op, err := s.wallet.Initiate(ctx, models.InitiateRequest{
			AccountID:     accountID,
			OperationType: models.OperationTypeWithdrawal,
			Amount:        money.MustParse("10.00"),
			Processor:     "stripe",
		})
		require.NoError(t, err)
		opIDs[i] = op.ID
	}

	errs := race(len(opIDs), func(i int) error {
		_, err := s.wallet.Complete(ctx, opIDs[i], "")
		return err
	})

	succeeded, rejected := countOutcomes(t, errs)
	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 5, rejected)
	s.balanceIs(t, accountID, "0.00", "0.00")

	var failed int
	for _, id := range opIDs {
		op, err := s.wallet.GetOperation(ctx, id)
		require.NoError(t, err)
		if op.Status == models.OperationStatusFailed {
			failed++
			require.NotNil(t, op.ErrorCode)
			assert.Equal(t, "insufficient_funds", *op.ErrorCode)
			assert.Nil(t, op.LedgerEntryID)
		}
	}
	assert.Equal(t, 5, failed)

	result, err := s.ledger.Reconcile(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, result.Consistent)
}

func TestBetting_Lifecycle(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()

	place := func(t *testing.T, accountID uuid.UUID, stake string) (*models.Bet, error) {
		return s.betting.PlaceBet(ctx, models.PlaceBetRequest{
			AccountID: accountID,
			EventID:   "match-42",
			Selection: "home",
			Odds:      decimal.RequireFromString("2.50"),
			Stake:     money.MustParse(stake),
		})
	}

	t.Run("won", func(t *testing.T) {
		accountID := s.newAccount(t, "100.00")
		bet, err := place(t, accountID, "10.00")
		require.NoError(t, err)
		assert.Equal(t, "25.00", bet.PotentialWin.String())
		s.balanceIs(t, accountID, "90.00", "10.00")

		settled, err := s.betting.Settle(ctx, bet.ID, models.BetStatusWon, money.Zero)
		require.NoError(t, err)
		assert.Equal(t, models.BetStatusWon, settled.Status)
		s.balanceIs(t, accountID, "115.00", "0.00")

		result, err := s.ledger.Reconcile(ctx, accountID)
		require.NoError(t, err)
		assert.True(t, result.Consistent)
	})

	t.Run("lost writes no entry", func(t *testing.T) {
		accountID := s.newAccount(t, "100.00")
		bet, err := place(t, accountID, "10.00")
		require.NoError(t, err)

		_, err = s.betting.Settle(ctx, bet.ID, models.BetStatusLost, money.Zero)
		require.NoError(t, err)
		s.balanceIs(t, accountID, "90.00", "0.00")

		entries, err := s.ledger.ListEntries(ctx, accountID, 10, 0)
		require.NoError(t, err)
		assert.Len(t, entries, 2)

		_, err = s.betting.Settle(ctx, bet.ID, models.BetStatusWon, money.Zero)
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})

	t.Run("stake above balance", func(t *testing.T) {
		accountID := s.newAccount(t, "100.00")
		_, err := place(t, accountID, "200.00")
		assert.ErrorIs(t, err, models.ErrInsufficientFunds)
		s.balanceIs(t, accountID, "100.00", "0.00")
	})
}

func TestWallet_Lifecycle(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()

	t.Run("deposit with idempotency key", func(t *testing.T) {
		accountID := s.newAccount(t, "")
		key := "dep-" + uuid.NewString()
		req := models.InitiateRequest{
			AccountID:      accountID,
			OperationType:  models.OperationTypeDeposit,
			Amount:         money.MustParse("40.00"),
			Processor:      "stripe",
			IdempotencyKey: &key,
		}

		op, err := s.wallet.Initiate(ctx, req)
		require.NoError(t, err)
		replay, err := s.wallet.Initiate(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, op.ID, replay.ID)

		_, err = s.wallet.MarkProcessing(ctx, op.ID, "pi_1")
		require.NoError(t, err)
		done, err := s.wallet.Complete(ctx, op.ID, "pi_1")
		require.NoError(t, err)
		assert.Equal(t, models.OperationStatusCompleted, done.Status)
		require.NotNil(t, done.LedgerEntryID)

		again, err := s.wallet.Complete(ctx, op.ID, "pi_1")
		require.NoError(t, err)
		assert.Equal(t, *done.LedgerEntryID, *again.LedgerEntryID)

		s.balanceIs(t, accountID, "40.00", "0.00")
	})

	t.Run("withdrawal that can no longer be covered fails", func(t *testing.T) {
		accountID := s.newAccount(t, "50.00")
		op, err := s.wallet.Initiate(ctx, models.InitiateRequest{
			AccountID:     accountID,
			OperationType: models.OperationTypeWithdrawal,
			Amount:        money.MustParse("50.00"),
		})
		require.NoError(t, err)

		_, err = s.ledger.Adjust(ctx, accountID, money.MustParse("-10.00"), "chargeback")
		require.NoError(t, err)

		_, err = s.wallet.MarkProcessing(ctx, op.ID, "wd_1")
		require.NoError(t, err)
		failed, err := s.wallet.Complete(ctx, op.ID, "wd_1")
		assert.ErrorIs(t, err, models.ErrInsufficientFunds)
		require.NotNil(t, failed)
		assert.Equal(t, models.OperationStatusFailed, failed.Status)
		assert.Equal(t, "insufficient_funds", *failed.ErrorCode)

		stored, err := s.wallet.GetOperation(ctx, op.ID)
		require.NoError(t, err)
		assert.Equal(t, models.OperationStatusFailed, stored.Status)
		s.balanceIs(t, accountID, "40.00", "0.00")
	})

	t.Run("refund of a completed withdrawal", func(t *testing.T) {
		accountID := s.newAccount(t, "30.00")
		op, err := s.wallet.Initiate(ctx, models.InitiateRequest{
			AccountID:     accountID,
			OperationType: models.OperationTypeWithdrawal,
			Amount:        money.MustParse("20.00"),
		})
		require.NoError(t, err)
		_, err = s.wallet.MarkProcessing(ctx, op.ID, "wd_2")
		require.NoError(t, err)
		_, err = s.wallet.Complete(ctx, op.ID, "wd_2")
		require.NoError(t, err)
		s.balanceIs(t, accountID, "10.00", "0.00")

		_, err = s.ledger.RefundOperation(ctx, op.ID, money.MustParse("15.00"), "bank returned transfer")
		require.NoError(t, err)
		_, err = s.ledger.RefundOperation(ctx, op.ID, money.MustParse("5.01"), "bank returned transfer")
		assert.ErrorIs(t, err, models.ErrInvalidAmount)
		s.balanceIs(t, accountID, "25.00", "0.00")
	})
}

func TestReconcile_DriftFreezesAccount(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	accountID := s.newAccount(t, "100.00")

	err := s.db.DB.WithTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `UPDATE account_balances SET balance = balance + 5 WHERE account_id = $1`, accountID)
		return err
	})
	require.NoError(t, err)

	violations := make(chan events.Event, 1)
	s.bus.Subscribe(events.EventTypeIntegrityViolation, func(ctx context.Context, e events.Event) {
		violations <- e
	})

	result, err := s.ledger.Reconcile(ctx, accountID)
	assert.ErrorIs(t, err, models.ErrIntegrityViolation)
	require.NotNil(t, result)
	assert.False(t, result.Consistent)
	assert.Equal(t, "105.00", result.StoredBalance.String())
	assert.Equal(t, "100.00", result.LedgerBalance.String())

	account, err := s.accounts.GetAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusFrozen, account.Status)

	select {
	case e := <-violations:
		assert.Equal(t, accountID, e.(events.IntegrityViolationEvent).AccountID)
	case <-time.After(2 * time.Second):
		t.Fatal("integrity violation event was not delivered")
	}

	_, err = s.ledger.Append(ctx, models.AppendRequest{
		AccountID:       accountID,
		TransactionType: models.TransactionTypeDeposit,
		Amount:          money.MustParse("1.00"),
	})
	assert.ErrorIs(t, err, models.ErrAccountFrozen)
}

func TestStatements_Generate(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	accountID := s.newAccount(t, "60.00")

	now := time.Now().UTC()
	current, err := s.statements.EntriesForPeriod(ctx, accountID, now.Year(), int(now.Month()))
	require.NoError(t, err)
	assert.Len(t, current, 1)

	_, err = s.statements.Generate(ctx, accountID, now.Year(), int(now.Month()))
	assert.ErrorIs(t, err, models.ErrInvalidPeriod)

	prev := models.PreviousPeriod(now)
	st, err := s.statements.Generate(ctx, accountID, prev.Year, int(prev.Month))
	require.NoError(t, err)
	assert.True(t, st.OpeningBalance.IsZero())
	assert.True(t, st.ClosingBalance.IsZero())
	assert.Zero(t, st.TransactionCount)

	_, err = s.statements.Generate(ctx, accountID, prev.Year, int(prev.Month))
	assert.ErrorIs(t, err, models.ErrStatementExists)

	generated, err := s.statements.GenerateAll(ctx, prev.Year, int(prev.Month))
	require.NoError(t, err)
	assert.Empty(t, generated)

	attached, err := s.statements.AttachReport(ctx, st.ID, "s3://reports/"+accountID.String()+".pdf")
	require.NoError(t, err)
	assert.NotNil(t, attached.ReportURL)
}
