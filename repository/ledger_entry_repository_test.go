package repository

import (
	"context"
	"testing"
	"time"

	"looseline/models"
	"looseline/repository/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerEntryRepository_Insert(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewLedgerEntryRepository(testDB.DB)
	ctx := context.Background()

	account := seedAccount(t, testDB.DB)

	t.Run("sets id and creation time", func(t *testing.T) {
		entry := testutil.CreateTestEntry(account.ID, models.TransactionTypeDeposit, "100.00", "0.00")
		refType, refID := models.Reference(models.ReferenceTypeManual, uuid.New())
		entry.ReferenceType, entry.ReferenceID = refType, refID

		require.NoError(t, repo.Insert(ctx, entry))
		assert.NotZero(t, entry.ID)
		assert.False(t, entry.CreatedAt.IsZero())

		got, err := repo.GetByID(ctx, entry.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "100.00", got.Amount.String())
		assert.Equal(t, "100.00", got.BalanceAfter.String())
		assert.Equal(t, models.ReferenceTypeManual, *got.ReferenceType)
		assert.Equal(t, *refID, *got.ReferenceID)
		assert.Equal(t, true, got.Metadata["test"])
	})

	t.Run("broken arithmetic is rejected", func(t *testing.T) {
		entry := testutil.CreateTestEntry(account.ID, models.TransactionTypeDeposit, "10.00", "0.00")
		entry.BalanceAfter = entry.BalanceAfter.Add(entry.Amount)
		assert.ErrorIs(t, repo.Insert(ctx, entry), models.ErrIntegrityViolation)
	})

	t.Run("negative balance after is rejected", func(t *testing.T) {
		entry := testutil.CreateTestEntry(account.ID, models.TransactionTypeWithdrawal, "-10.00", "5.00")
		assert.ErrorIs(t, repo.Insert(ctx, entry), models.ErrInsufficientFunds)
	})
}

func TestLedgerEntryRepository_AppendOnly(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewLedgerEntryRepository(testDB.DB)
	ctx := context.Background()

	account := seedAccount(t, testDB.DB)
	entry := seedEntry(t, testDB.DB, testutil.CreateTestEntry(account.ID, models.TransactionTypeDeposit, "20.00", "0.00"))

	_, err := testDB.DB.Exec(ctx, `UPDATE ledger_entries SET description = 'edited' WHERE id = $1`, entry.ID)
	assert.ErrorIs(t, translateError(err), models.ErrIntegrityViolation)

	_, err = testDB.DB.Exec(ctx, `DELETE FROM ledger_entries WHERE id = $1`, entry.ID)
	assert.ErrorIs(t, translateError(err), models.ErrIntegrityViolation)

	got, err := repo.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "test entry", got.Description)
}

func TestLedgerEntryRepository_Queries(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewLedgerEntryRepository(testDB.DB)
	ctx := context.Background()

	account := seedAccount(t, testDB.DB)
	other := seedAccount(t, testDB.DB)

	start := time.Now().UTC().Add(-time.Second)
	first := seedEntry(t, testDB.DB, testutil.CreateTestEntry(account.ID, models.TransactionTypeDeposit, "50.00", "0.00"))
	mid := time.Now().UTC()
	time.Sleep(10 * time.Millisecond)

	betID := uuid.New()
	stake := testutil.CreateTestEntry(account.ID, models.TransactionTypeBet, "-20.00", "50.00")
	stake.ReferenceType, stake.ReferenceID = models.Reference(models.ReferenceTypeBet, betID)
	seedEntry(t, testDB.DB, stake)
	seedEntry(t, testDB.DB, testutil.CreateTestEntry(other.ID, models.TransactionTypeDeposit, "5.00", "0.00"))
	end := time.Now().UTC().Add(time.Second)

	t.Run("list by account in creation order", func(t *testing.T) {
		entries, err := repo.ListByAccount(ctx, account.ID, 10, 0)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, first.ID, entries[0].ID)
		assert.Equal(t, stake.ID, entries[1].ID)

		page, err := repo.ListByAccount(ctx, account.ID, 1, 1)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, stake.ID, page[0].ID)
	})

	t.Run("list by period", func(t *testing.T) {
		entries, err := repo.ListByPeriod(ctx, account.ID, start, end)
		require.NoError(t, err)
		assert.Len(t, entries, 2)

		later, err := repo.ListByPeriod(ctx, account.ID, mid, end)
		require.NoError(t, err)
		require.Len(t, later, 1)
		assert.Equal(t, stake.ID, later[0].ID)
	})

	t.Run("last before", func(t *testing.T) {
		last, err := repo.LastBefore(ctx, account.ID, mid)
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, first.ID, last.ID)

		none, err := repo.LastBefore(ctx, account.ID, start)
		require.NoError(t, err)
		assert.Nil(t, none)
	})

	t.Run("list by reference", func(t *testing.T) {
		entries, err := repo.ListByReference(ctx, models.ReferenceTypeBet, betID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, stake.ID, entries[0].ID)
	})

	t.Run("for each completed", func(t *testing.T) {
		var ids []int64
		err := repo.ForEachCompleted(ctx, account.ID, func(e *models.LedgerEntry) error {
			ids = append(ids, e.ID)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{first.ID, stake.ID}, ids)
	})
}
