package models

import (
	"testing"
	"time"

	"looseline/money"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationStatus_Transitions(t *testing.T) {
	tests := []struct {
		from OperationStatus
		to   OperationStatus
		want bool
	}{
		{OperationStatusPending, OperationStatusProcessing, true},
		{OperationStatusPending, OperationStatusCompleted, false},
		{OperationStatusPending, OperationStatusFailed, true},
		{OperationStatusPending, OperationStatusCancelled, true},
		{OperationStatusProcessing, OperationStatusCompleted, true},
		{OperationStatusProcessing, OperationStatusPending, false},
		{OperationStatusCompleted, OperationStatusFailed, false},
		{OperationStatusFailed, OperationStatusCompleted, false},
		{OperationStatusCancelled, OperationStatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestWalletOperation_TransitionStampsTimes(t *testing.T) {
	op := &WalletOperation{Status: OperationStatusPending}
	t1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	require.NoError(t, op.Transition(OperationStatusProcessing, t1))
	assert.Equal(t, t1, *op.ProcessedAt)
	assert.Nil(t, op.CompletedAt)

	require.NoError(t, op.Transition(OperationStatusCompleted, t2))
	assert.Equal(t, t1, *op.ProcessedAt)
	assert.Equal(t, t2, *op.CompletedAt)

	assert.ErrorIs(t, op.Transition(OperationStatusFailed, t2), ErrInvalidTransition)
}

func TestWalletOperation_LedgerAmount(t *testing.T) {
	deposit := &WalletOperation{
		OperationType: OperationTypeDeposit,
		Amount:        money.MustParse("100.00"),
		FeeAmount:     money.MustParse("2.50"),
		NetAmount:     money.MustParse("97.50"),
	}
	assert.Equal(t, "97.50", deposit.LedgerAmount().String())
	assert.Equal(t, TransactionTypeDeposit, deposit.TransactionType())

	withdrawal := &WalletOperation{
		OperationType: OperationTypeWithdrawal,
		Amount:        money.MustParse("40.00"),
		FeeAmount:     money.MustParse("1.00"),
		NetAmount:     money.MustParse("39.00"),
	}
	assert.Equal(t, "-40.00", withdrawal.LedgerAmount().String())
	assert.Equal(t, TransactionTypeWithdrawal, withdrawal.TransactionType())
}
