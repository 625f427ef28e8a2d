package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPeriod(t *testing.T) {
	p, err := NewPeriod(2024, 2)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), p.Start())
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), p.End())
	assert.Equal(t, "2024-02", p.String())

	_, err = NewPeriod(2024, 13)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
	_, err = NewPeriod(2024, 0)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestPeriod_IsClosed(t *testing.T) {
	p, _ := NewPeriod(2024, 12)
	assert.False(t, p.IsClosed(time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC)))
	assert.True(t, p.IsClosed(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestPreviousPeriod(t *testing.T) {
	p := PreviousPeriod(time.Date(2025, 1, 1, 3, 0, 0, 0, time.UTC))
	assert.Equal(t, 2024, p.Year)
	assert.Equal(t, time.December, p.Month)
}
