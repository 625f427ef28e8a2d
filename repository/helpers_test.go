package repository

import (
	"context"
	"testing"

	"looseline/database"
	"looseline/models"
	"looseline/repository/testutil"

	"github.com/stretchr/testify/require"
)

// seedAccount creates a user, an active account and its zero balance
func seedAccount(t *testing.T, db *database.DB) *models.Account {
	t.Helper()
	ctx := context.Background()

	user := testutil.CreateTestUser("player")
	require.NoError(t, NewUserRepository(db).Create(ctx, user))

	account := testutil.CreateTestAccount(user.ID)
	require.NoError(t, NewAccountRepository(db).Create(ctx, account))

	_, err := NewBalanceRepository(db).Create(ctx, account.ID)
	require.NoError(t, err)

	return account
}

// seedEntry inserts an entry and moves the stored balance to match it
func seedEntry(t *testing.T, db *database.DB, entry *models.LedgerEntry) *models.LedgerEntry {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, NewLedgerEntryRepository(db).Insert(ctx, entry))

	balances := NewBalanceRepository(db)
	b, err := balances.Get(ctx, entry.AccountID)
	require.NoError(t, err)
	require.NoError(t, b.Apply(entry.TransactionType, entry.Amount))
	require.NoError(t, balances.Save(ctx, b))

	return entry
}
