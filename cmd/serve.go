package cmd

import (
	"context"
	"fmt"
	"time"

	"looseline/config"
	"looseline/events"
	"looseline/infrastructure"
	"looseline/infrastructure/observability"
	"looseline/scheduler"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduled statement and reconciliation jobs and forward events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), config.Get())
		},
	}

	flags := cmd.Flags()
	flags.Bool("audit", false, "Forward ledger events to NATS (AUDIT_ENABLED)")
	flags.String("nats-servers", "", "NATS server addresses (NATS_SERVERS)")
	flags.String("statement-schedule", "", "Cron schedule with seconds for monthly statements (STATEMENT_SCHEDULE)")
	flags.String("reconcile-schedule", "", "Cron schedule with seconds for reconciliation (RECONCILE_SCHEDULE)")
	for key, name := range map[string]string{
		"AUDIT_ENABLED":      "audit",
		"NATS_SERVERS":       "nats-servers",
		"STATEMENT_SCHEDULE": "statement-schedule",
		"RECONCILE_SCHEDULE": "reconcile-schedule",
	} {
		if err := config.BindFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
	return cmd
}

// Run initializes and starts the long-running process
func Run(ctx context.Context, cfg *config.Config) error {
	log.WithField("environment", cfg.Environment).Info("Starting looseline...")

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// Initialize metrics
	metrics := observability.NewMetricsProvider(cfg)
	if err := metrics.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	metrics.Subscribe(a.eventBus)

	// Initialize NATS forwarding
	var natsClient *infrastructure.NATSClient
	if cfg.AuditEnabled {
		log.Info("Connecting to NATS...")
		natsClient = infrastructure.NewNATSClient(cfg.NATSServers)
		if err := natsClient.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}

		mapper := infrastructure.NewEventSubjectMapper(cfg.AuditSubjectPrefix)
		if err := natsClient.EnsureStream(mapper.StreamName(), mapper.GetAllSubjects()); err != nil {
			natsClient.Close()
			return fmt.Errorf("failed to ensure event stream: %w", err)
		}

		forwarder := infrastructure.NewEventForwarder(natsClient, mapper)
		forwarder.OnPublished(metrics.RecordNATSMessagePublished)
		forwarder.Register(a.eventBus, events.AllEventTypes()...)
	}

	a.eventBus.Subscribe(events.EventTypeIntegrityViolation, func(ctx context.Context, e events.Event) {
		ev := e.(events.IntegrityViolationEvent)
		log.WithFields(log.Fields{
			"accountID":     ev.AccountID,
			"storedBalance": ev.StoredBalance.String(),
			"ledgerBalance": ev.LedgerBalance.String(),
			"chainBreaks":   ev.ChainBreaks,
		}).Warn("Account frozen by reconciliation")
	})

	// Start scheduled jobs
	jobs := scheduler.New(cfg, a.ledger, a.statements, metrics)
	if err := jobs.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	log.Info("looseline is running")
	<-ctx.Done()

	log.Info("Shutting down...")
	jobs.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if natsClient != nil {
		if err := natsClient.Close(); err != nil {
			log.WithError(err).Error("Error closing NATS connection")
		}
	}
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Error shutting down metrics provider")
	}

	log.Info("Shutdown completed")
	return nil
}
