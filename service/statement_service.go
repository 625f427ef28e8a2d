package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"looseline/config"
	"looseline/events"
	"looseline/models"
	"looseline/money"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type statementService struct {
	uowFactory UnitOfWorkFactory
	config     *config.Config
	now        func() time.Time
}

// NewStatementService creates a new statement service
func NewStatementService(uowFactory UnitOfWorkFactory, cfg *config.Config) StatementService {
	return &statementService{
		uowFactory: uowFactory,
		config:     cfg,
		now:        time.Now,
	}
}

// EntriesForPeriod returns the month's entries in creation order
func (s *statementService) EntriesForPeriod(ctx context.Context, accountID uuid.UUID, year, month int) ([]*models.LedgerEntry, error) {
	period, err := models.NewPeriod(year, month)
	if err != nil {
		return nil, models.NewLedgerError("statement.entries", accountID, err)
	}

	uow := s.uowFactory.Create()
	if err := uow.BeginSnapshot(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := requireAccount(ctx, uow, "statement.entries", accountID); err != nil {
		return nil, err
	}

	entries, err := uow.LedgerEntryRepository().ListByPeriod(ctx, accountID, period.Start(), period.End())
	if err != nil {
		return nil, fmt.Errorf("failed to list entries for %s: %w", period, err)
	}
	return entries, nil
}

// Generate summarises a closed month and stores the statement once
func (s *statementService) Generate(ctx context.Context, accountID uuid.UUID, year, month int) (*models.MonthlyStatement, error) {
	period, err := models.NewPeriod(year, month)
	if err != nil {
		return nil, models.NewLedgerError("statement.generate", accountID, err)
	}
	if !period.IsClosed(s.now()) {
		return nil, models.NewLedgerError("statement.generate", accountID,
			fmt.Errorf("%w: %s has not ended", models.ErrInvalidPeriod, period))
	}

	statement, err := s.summarise(ctx, accountID, period)
	if err != nil {
		return nil, err
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.StatementRepository().Create(ctx, statement); err != nil {
		if errors.Is(err, models.ErrStatementExists) {
			return nil, models.NewLedgerError("statement.generate", accountID, err).WithEntity(period.String())
		}
		return nil, fmt.Errorf("failed to store statement: %w", err)
	}

	uow.EventBus().Publish(events.StatementGeneratedEvent{
		StatementID: statement.ID,
		AccountID:   accountID,
		Year:        statement.Year,
		Month:       statement.Month,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"accountID":    accountID,
		"period":       period.String(),
		"statementID":  statement.ID,
		"transactions": statement.TransactionCount,
	}).Info("Generated monthly statement")

	return statement, nil
}

// summarise reads the month from a single repeatable-read snapshot.
func (s *statementService) summarise(ctx context.Context, accountID uuid.UUID, period models.Period) (*models.MonthlyStatement, error) {
	uow := s.uowFactory.Create()
	if err := uow.BeginSnapshot(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := requireAccount(ctx, uow, "statement.generate", accountID); err != nil {
		return nil, err
	}

	existing, err := uow.StatementRepository().GetByPeriod(ctx, accountID, period.Year, int(period.Month))
	if err != nil {
		return nil, fmt.Errorf("failed to check existing statement: %w", err)
	}
	if existing != nil {
		return nil, models.NewLedgerError("statement.generate", accountID, models.ErrStatementExists).WithEntity(period.String())
	}

	opening := money.Zero
	last, err := uow.LedgerEntryRepository().LastBefore(ctx, accountID, period.Start())
	if err != nil {
		return nil, fmt.Errorf("failed to read opening balance: %w", err)
	}
	if last != nil {
		opening = last.BalanceAfter
	}

	entries, err := uow.LedgerEntryRepository().ListByPeriod(ctx, accountID, period.Start(), period.End())
	if err != nil {
		return nil, fmt.Errorf("failed to list entries for %s: %w", period, err)
	}

	bets, err := uow.BetRepository().ListSettledInPeriod(ctx, accountID, period.Start(), period.End())
	if err != nil {
		return nil, fmt.Errorf("failed to list settled bets for %s: %w", period, err)
	}

	statement := BuildStatement(accountID, period, opening, entries, bets)
	statement.GeneratedAt = s.now().UTC()
	return statement, nil
}

// BuildStatement computes a statement from the month's completed entries and
// the bets settled in it. Losses are the stakes of lost bets; net profit is
// wins less losses.
func BuildStatement(accountID uuid.UUID, period models.Period, opening money.Money, entries []*models.LedgerEntry, bets []*models.Bet) *models.MonthlyStatement {
	st := &models.MonthlyStatement{
		AccountID:        accountID,
		Year:             period.Year,
		Month:            int(period.Month),
		OpeningBalance:   opening,
		ClosingBalance:   opening,
		TotalDeposits:    money.Zero,
		TotalWithdrawals: money.Zero,
		TotalBets:        money.Zero,
		TotalWins:        money.Zero,
		TotalRefunds:     money.Zero,
		TotalBonuses:     money.Zero,
		TotalAdjustments: money.Zero,
		TotalLosses:      money.Zero,
	}

	for _, e := range entries {
		if e.Status != models.EntryStatusCompleted {
			continue
		}
		st.TransactionCount++
		st.ClosingBalance = st.ClosingBalance.Add(e.Amount)

		switch e.TransactionType {
		case models.TransactionTypeDeposit:
			st.TotalDeposits = st.TotalDeposits.Add(e.Amount)
		case models.TransactionTypeWithdrawal:
			st.TotalWithdrawals = st.TotalWithdrawals.Add(e.Amount.Abs())
		case models.TransactionTypeBet:
			st.TotalBets = st.TotalBets.Add(e.Amount.Abs())
		case models.TransactionTypeWin:
			st.TotalWins = st.TotalWins.Add(e.Amount)
		case models.TransactionTypeRefund:
			st.TotalRefunds = st.TotalRefunds.Add(e.Amount)
		case models.TransactionTypeBonus:
			st.TotalBonuses = st.TotalBonuses.Add(e.Amount)
		case models.TransactionTypeAdjustment:
			st.TotalAdjustments = st.TotalAdjustments.Add(e.Amount)
		}
	}

	for _, b := range bets {
		if !b.Status.IsSettled() {
			continue
		}
		st.NumBets++
		switch b.Status {
		case models.BetStatusWon:
			st.NumWins++
		case models.BetStatusLost:
			st.NumLosses++
			st.TotalLosses = st.TotalLosses.Add(b.Stake)
		}
	}

	st.NetProfit = st.TotalWins.Sub(st.TotalLosses)
	st.WinRate = money.Percent(int64(st.NumWins), int64(st.NumBets))
	return st
}

// GenerateAll generates the month's statement for every open account.
// Accounts that already have one are skipped.
func (s *statementService) GenerateAll(ctx context.Context, year, month int) ([]*models.MonthlyStatement, error) {
	if _, err := models.NewPeriod(year, month); err != nil {
		return nil, models.NewLedgerError("statement.generate_all", uuid.Nil, err)
	}

	ids, err := listAccountIDs(ctx, s.uowFactory, false)
	if err != nil {
		return nil, err
	}

	var statements []*models.MonthlyStatement
	var errs []error
	skipped := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return statements, err
		}

		statement, err := s.Generate(ctx, id, year, month)
		switch {
		case err == nil:
			statements = append(statements, statement)
		case errors.Is(err, models.ErrStatementExists):
			skipped++
		default:
			log.WithError(err).WithField("accountID", id).Error("Failed to generate statement")
			errs = append(errs, err)
		}
	}

	log.WithFields(log.Fields{
		"year":      year,
		"month":     month,
		"generated": len(statements),
		"skipped":   skipped,
		"failed":    len(errs),
	}).Info("Statement run finished")

	return statements, errors.Join(errs...)
}

// AttachReport sets the statement's report URL. It may be set only once.
func (s *statementService) AttachReport(ctx context.Context, statementID int64, url string) (*models.MonthlyStatement, error) {
	if url == "" {
		return nil, models.NewLedgerError("statement.attach_report", uuid.Nil,
			fmt.Errorf("%w: report url is required", models.ErrValidation))
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	statement, err := uow.StatementRepository().GetByID(ctx, statementID)
	if err != nil {
		return nil, fmt.Errorf("failed to get statement: %w", err)
	}
	if statement == nil {
		return nil, models.NewLedgerError("statement.attach_report", uuid.Nil, models.ErrStatementNotFound).WithEntity(fmt.Sprint(statementID))
	}

	attached, err := uow.StatementRepository().AttachReport(ctx, statementID, url)
	if err != nil {
		return nil, fmt.Errorf("failed to attach report: %w", err)
	}
	if !attached {
		return nil, models.NewLedgerError("statement.attach_report", statement.AccountID,
			fmt.Errorf("%w: report already attached", models.ErrInvalidTransition)).
			WithEntity(fmt.Sprint(statementID))
	}
	statement.ReportURL = &url

	publishAudit(ctx, uow, "statement.report_attached", "statement", fmt.Sprint(statementID), statement.AccountID, "", url)

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return statement, nil
}

// GetStatement retrieves a statement by ID
func (s *statementService) GetStatement(ctx context.Context, statementID int64) (*models.MonthlyStatement, error) {
	uow := s.uowFactory.Create()
	if err := uow.BeginSnapshot(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	statement, err := uow.StatementRepository().GetByID(ctx, statementID)
	if err != nil {
		return nil, fmt.Errorf("failed to get statement: %w", err)
	}
	if statement == nil {
		return nil, models.NewLedgerError("statement.get", uuid.Nil, models.ErrStatementNotFound).WithEntity(fmt.Sprint(statementID))
	}
	return statement, nil
}

// ListStatements returns an account's statements, newest period first
func (s *statementService) ListStatements(ctx context.Context, accountID uuid.UUID) ([]*models.MonthlyStatement, error) {
	uow := s.uowFactory.Create()
	if err := uow.BeginSnapshot(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := requireAccount(ctx, uow, "statement.list", accountID); err != nil {
		return nil, err
	}

	statements, err := uow.StatementRepository().ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list statements: %w", err)
	}
	return statements, nil
}
