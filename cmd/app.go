package cmd

import (
	"context"
	"fmt"

	"looseline/config"
	"looseline/database"
	"looseline/events"
	"looseline/repository"
	"looseline/service"

	log "github.com/sirupsen/logrus"
)

// app holds the wired services shared by every command
type app struct {
	config   *config.Config
	db       *database.DB
	eventBus *events.Bus

	accounts   service.AccountService
	ledger     service.LedgerService
	wallet     service.WalletService
	betting    service.BettingService
	statements service.StatementService
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Database connection established successfully")

	eventBus := events.NewBus()
	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus, cfg)

	return &app{
		config:     cfg,
		db:         db,
		eventBus:   eventBus,
		accounts:   service.NewAccountService(uowFactory, cfg),
		ledger:     service.NewLedgerService(uowFactory, cfg),
		wallet:     service.NewWalletService(uowFactory, cfg),
		betting:    service.NewBettingService(uowFactory, cfg),
		statements: service.NewStatementService(uowFactory, cfg),
	}, nil
}

func (a *app) Close() {
	log.Info("Closing database connection...")
	a.db.Close()
}
