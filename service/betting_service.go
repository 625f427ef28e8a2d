package service

import (
	"context"
	"fmt"
	"time"

	"looseline/config"
	"looseline/events"
	"looseline/models"
	"looseline/money"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type bettingService struct {
	uowFactory UnitOfWorkFactory
	config     *config.Config
}

// NewBettingService creates a new betting service
func NewBettingService(uowFactory UnitOfWorkFactory, cfg *config.Config) BettingService {
	return &bettingService{
		uowFactory: uowFactory,
		config:     cfg,
	}
}

// PlaceBet debits the stake, locks it and records the bet as active
func (s *bettingService) PlaceBet(ctx context.Context, req models.PlaceBetRequest) (*models.Bet, error) {
	if err := validateRequest(req); err != nil {
		return nil, models.NewLedgerError("bet.place", req.AccountID, err)
	}
	if err := models.ValidateOdds(req.Odds); err != nil {
		return nil, models.NewLedgerError("bet.place", req.AccountID, err)
	}
	if err := requirePositive("bet.place", req.AccountID, req.Stake); err != nil {
		return nil, err
	}

	var bet *models.Bet
	err := withConflictRetry(ctx, s.config.MaxConflictRetries, "bet.place", func() error {
		var err error
		bet, err = s.placeBet(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bet, nil
}

func (s *bettingService) placeBet(ctx context.Context, req models.PlaceBetRequest) (*models.Bet, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	locked, err := lockAccount(ctx, uow, "bet.place", req.AccountID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	bet := &models.Bet{
		ID:           uuid.New(),
		AccountID:    req.AccountID,
		EventID:      req.EventID,
		EventName:    req.EventName,
		MarketType:   req.MarketType,
		Selection:    req.Selection,
		Odds:         req.Odds,
		Stake:        req.Stake,
		PotentialWin: models.PotentialWinFor(req.Stake, req.Odds),
		Status:       models.BetStatusPending,
		Metadata:     req.Metadata,
		PlacedAt:     now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// Move the stake into locked_in_bets; appendEntry debits the balance and
	// saves both figures together.
	withStake := locked.balance.Clone()
	if err := withStake.LockStake(bet.Stake); err != nil {
		return nil, models.NewLedgerError("bet.place", req.AccountID, err).WithAmount(bet.Stake)
	}
	locked.balance = withStake

	refType, refID := models.Reference(models.ReferenceTypeBet, bet.ID)
	entry, err := appendEntry(ctx, uow, locked, models.AppendRequest{
		AccountID:       req.AccountID,
		TransactionType: models.TransactionTypeBet,
		Amount:          bet.Stake.Neg(),
		ReferenceType:   refType,
		ReferenceID:     refID,
		Description:     fmt.Sprintf("Bet on %s: %s", bet.EventID, bet.Selection),
		Metadata: map[string]any{
			"odds":          bet.Odds.String(),
			"potential_win": bet.PotentialWin.String(),
		},
	})
	if err != nil {
		return nil, err
	}

	bet.StakeEntryID = &entry.ID
	bet.Status = models.BetStatusActive
	if err := uow.BetRepository().Create(ctx, bet); err != nil {
		return nil, fmt.Errorf("failed to create bet: %w", err)
	}

	uow.EventBus().Publish(events.BetPlacedEvent{
		BetID:        bet.ID,
		AccountID:    bet.AccountID,
		Stake:        bet.Stake,
		PotentialWin: bet.PotentialWin,
	})
	publishAudit(ctx, uow, "bet.placed", "bet", bet.ID.String(), bet.AccountID, "", string(bet.Status))

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"betID":        bet.ID,
		"accountID":    bet.AccountID,
		"stake":        bet.Stake.String(),
		"odds":         bet.Odds.String(),
		"potentialWin": bet.PotentialWin.String(),
	}).Info("Bet placed")

	return bet, nil
}

// Settle releases the stake and posts the payout entry, if any
func (s *bettingService) Settle(ctx context.Context, betID uuid.UUID, outcome models.BetStatus, cashoutAmount money.Money) (*models.Bet, error) {
	if !outcome.IsSettled() {
		return nil, models.NewLedgerError("bet.settle", uuid.Nil,
			fmt.Errorf("%w: %q is not a settlement outcome", models.ErrValidation, outcome)).
			WithEntity(betID.String())
	}

	var bet *models.Bet
	err := withConflictRetry(ctx, s.config.MaxConflictRetries, "bet.settle", func() error {
		var err error
		bet, err = s.settle(ctx, betID, outcome, cashoutAmount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bet, nil
}

func (s *bettingService) settle(ctx context.Context, betID uuid.UUID, outcome models.BetStatus, cashoutAmount money.Money) (*models.Bet, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := uow.BetRepository().GetByID(ctx, betID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	if bet == nil {
		return nil, models.NewLedgerError("bet.settle", uuid.Nil, models.ErrBetNotFound).WithEntity(betID.String())
	}

	locked, err := lockAccount(ctx, uow, "bet.settle", bet.AccountID)
	if err != nil {
		return nil, err
	}

	bet, err = uow.BetRepository().GetByIDForUpdate(ctx, betID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock bet: %w", err)
	}
	if bet == nil {
		return nil, models.NewLedgerError("bet.settle", locked.account.ID, models.ErrBetNotFound).WithEntity(betID.String())
	}

	settlement, err := bet.Settle(outcome, cashoutAmount)
	if err != nil {
		return nil, models.NewLedgerError("bet.settle", bet.AccountID, err).
			WithEntity(bet.ID.String()).
			WithState(string(bet.Status))
	}

	released := locked.balance.Clone()
	if err := released.ReleaseStake(bet.Stake); err != nil {
		return nil, models.NewLedgerError("bet.settle", bet.AccountID, err).
			WithEntity(bet.ID.String()).
			WithAmount(bet.Stake)
	}

	if settlement.HasEntry() {
		locked.balance = released
		refType, refID := models.Reference(models.ReferenceTypeBet, bet.ID)
		entry, err := appendEntry(ctx, uow, locked, models.AppendRequest{
			AccountID:       bet.AccountID,
			TransactionType: settlement.EntryType,
			Amount:          settlement.Payout,
			ReferenceType:   refType,
			ReferenceID:     refID,
			Description:     fmt.Sprintf("Bet %s settled %s", bet.ID, settlement.Outcome),
		})
		if err != nil {
			return nil, err
		}
		bet.PayoutEntryID = &entry.ID
	} else if err := saveBalance(ctx, uow, locked, released); err != nil {
		return nil, err
	}

	oldStatus := bet.Status
	now := time.Now().UTC()
	payout := settlement.Payout
	bet.Status = settlement.Outcome
	bet.ActualWin = &payout
	bet.SettledAt = &now
	bet.UpdatedAt = now
	if err := uow.BetRepository().Update(ctx, bet); err != nil {
		return nil, fmt.Errorf("failed to update bet: %w", err)
	}

	uow.EventBus().Publish(events.BetSettledEvent{
		BetID:     bet.ID,
		AccountID: bet.AccountID,
		Outcome:   bet.Status,
		Stake:     bet.Stake,
		Payout:    payout,
	})
	publishAudit(ctx, uow, "bet.settled", "bet", bet.ID.String(), bet.AccountID, string(oldStatus), string(bet.Status))

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"betID":     bet.ID,
		"accountID": bet.AccountID,
		"outcome":   bet.Status,
		"payout":    payout.String(),
	}).Info("Bet settled")

	return bet, nil
}

// GetBet retrieves a bet by ID
func (s *bettingService) GetBet(ctx context.Context, betID uuid.UUID) (*models.Bet, error) {
	uow := s.uowFactory.Create()
	if err := uow.BeginSnapshot(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := uow.BetRepository().GetByID(ctx, betID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	if bet == nil {
		return nil, models.NewLedgerError("bet.get", uuid.Nil, models.ErrBetNotFound).WithEntity(betID.String())
	}
	return bet, nil
}

// ListBets returns an account's bets, newest first
func (s *bettingService) ListBets(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.Bet, error) {
	uow := s.uowFactory.Create()
	if err := uow.BeginSnapshot(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := requireAccount(ctx, uow, "bet.list", accountID); err != nil {
		return nil, err
	}

	bets, err := uow.BetRepository().ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list bets: %w", err)
	}
	return bets, nil
}
