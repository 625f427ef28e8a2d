package models

import (
	"fmt"
	"time"

	"looseline/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MonthlyStatement is a read-only rollup of one account's ledger for a
// calendar month (UTC).
type MonthlyStatement struct {
	ID               int64           `db:"id" json:"id"`
	AccountID        uuid.UUID       `db:"account_id" json:"account_id"`
	Year             int             `db:"year" json:"year"`
	Month            int             `db:"month" json:"month"`
	OpeningBalance   money.Money     `db:"opening_balance" json:"opening_balance"`
	ClosingBalance   money.Money     `db:"closing_balance" json:"closing_balance"`
	TotalDeposits    money.Money     `db:"total_deposits" json:"total_deposits"`
	TotalWithdrawals money.Money     `db:"total_withdrawals" json:"total_withdrawals"`
	TotalBets        money.Money     `db:"total_bets" json:"total_bets"`
	TotalWins        money.Money     `db:"total_wins" json:"total_wins"`
	TotalRefunds     money.Money     `db:"total_refunds" json:"total_refunds"`
	TotalBonuses     money.Money     `db:"total_bonuses" json:"total_bonuses"`
	TotalAdjustments money.Money     `db:"total_adjustments" json:"total_adjustments"`
	TotalLosses      money.Money     `db:"total_losses" json:"total_losses"`
	NetProfit        money.Money     `db:"net_profit" json:"net_profit"`
	TransactionCount int             `db:"transaction_count" json:"transaction_count"`
	NumBets          int             `db:"num_bets" json:"num_bets"`
	NumWins          int             `db:"num_wins" json:"num_wins"`
	NumLosses        int             `db:"num_losses" json:"num_losses"`
	WinRate          decimal.Decimal `db:"win_rate" json:"win_rate"`
	ReportURL        *string         `db:"report_url" json:"report_url,omitempty"`
	GeneratedAt      time.Time       `db:"generated_at" json:"generated_at"`
}

// Period is a calendar month in UTC.
type Period struct {
	Year  int
	Month time.Month
}

// NewPeriod validates year and month.
func NewPeriod(year, month int) (Period, error) {
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("%w: month %d out of range", ErrInvalidPeriod, month)
	}
	if year < 2000 || year > 9999 {
		return Period{}, fmt.Errorf("%w: year %d out of range", ErrInvalidPeriod, year)
	}
	return Period{Year: year, Month: time.Month(month)}, nil
}

// PreviousPeriod returns the month before the one containing t.
func PreviousPeriod(t time.Time) Period {
	first := time.Date(t.UTC().Year(), t.UTC().Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	return Period{Year: first.Year(), Month: first.Month()}
}

// Start is the first instant of the month.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the first instant of the following month (exclusive bound).
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// IsClosed reports whether the month has fully elapsed at now.
func (p Period) IsClosed(now time.Time) bool {
	return !now.Before(p.End())
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}
