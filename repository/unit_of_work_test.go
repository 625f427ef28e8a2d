package repository

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"looseline/config"
	"looseline/events"
	"looseline/models"
	"looseline/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitOfWork_GettersPanicBeforeBegin(t *testing.T) {
	factory := NewUnitOfWorkFactory(nil, events.NewBus(), config.NewTestConfig())
	uow := factory.Create()

	assert.Panics(t, func() { uow.BalanceRepository() })
	assert.Panics(t, func() { uow.LedgerEntryRepository() })
	assert.NoError(t, uow.Rollback())
	assert.Error(t, uow.Commit())
}

func TestUnitOfWork_Events(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	bus := events.NewBus()
	var delivered atomic.Int32
	bus.Subscribe(events.EventTypeAudit, func(ctx context.Context, e events.Event) {
		delivered.Add(1)
	})
	factory := NewUnitOfWorkFactory(testDB.DB, bus, config.NewTestConfig())

	t.Run("commit flushes", func(t *testing.T) {
		uow := factory.Create()
		require.NoError(t, uow.Begin(ctx))
		defer uow.Rollback()

		uow.EventBus().Publish(events.AuditEvent{Action: "test.commit"})
		require.NoError(t, uow.Commit())

		assert.Eventually(t, func() bool { return delivered.Load() == 1 }, time.Second, 10*time.Millisecond)
	})

	t.Run("rollback discards", func(t *testing.T) {
		uow := factory.Create()
		require.NoError(t, uow.Begin(ctx))

		uow.EventBus().Publish(events.AuditEvent{Action: "test.rollback"})
		require.NoError(t, uow.Rollback())

		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, int32(1), delivered.Load())
	})
}

func TestUnitOfWork_LockTimeoutIsConflict(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	cfg := config.NewTestConfig()
	cfg.LockTimeout = 100 * time.Millisecond
	factory := NewUnitOfWorkFactory(testDB.DB, events.NewBus(), cfg)

	account := seedAccount(t, testDB.DB)

	holder := factory.Create()
	require.NoError(t, holder.Begin(ctx))
	defer holder.Rollback()
	_, err := holder.BalanceRepository().GetForUpdate(ctx, account.ID)
	require.NoError(t, err)

	waiter := factory.Create()
	require.NoError(t, waiter.Begin(ctx))
	defer waiter.Rollback()

	_, err = waiter.BalanceRepository().GetForUpdate(ctx, account.ID)
	assert.ErrorIs(t, err, models.ErrConcurrencyConflict)
}

func TestUnitOfWork_SnapshotIsReadOnly(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()
	factory := NewUnitOfWorkFactory(testDB.DB, events.NewBus(), config.NewTestConfig())

	account := seedAccount(t, testDB.DB)

	uow := factory.Create()
	require.NoError(t, uow.BeginSnapshot(ctx))
	defer uow.Rollback()

	b, err := uow.BalanceRepository().Get(ctx, account.ID)
	require.NoError(t, err)
	assert.Error(t, uow.BalanceRepository().Save(ctx, b))
}
