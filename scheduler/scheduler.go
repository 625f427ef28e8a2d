package scheduler

import (
	"context"
	"fmt"
	"time"

	"looseline/config"
	"looseline/models"
	"looseline/service"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Job names
const (
	JobStatements = "statements"
	JobReconcile  = "reconcile"
)

// Reconciler is the part of the ledger service the nightly job needs
type Reconciler interface {
	ReconcileAll(ctx context.Context) ([]*models.ReconciliationResult, error)
}

// StatementGenerator is the part of the statement service the monthly job needs
type StatementGenerator interface {
	GenerateAll(ctx context.Context, year, month int) ([]*models.MonthlyStatement, error)
}

// JobRecorder receives the outcome of each run
type JobRecorder interface {
	RecordJobRun(job string, duration time.Duration, err error)
}

// Scheduler runs the periodic statement and reconciliation jobs
type Scheduler struct {
	cron       *cron.Cron
	config     *config.Config
	reconciler Reconciler
	statements StatementGenerator
	recorder   JobRecorder
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler. Jobs are registered by Start.
func New(cfg *config.Config, reconciler Reconciler, statements StatementGenerator, recorder JobRecorder) *Scheduler {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
	)

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:       c,
		config:     cfg,
		reconciler: reconciler,
		statements: statements,
		recorder:   recorder,
		now:        time.Now,
		ctx:        service.WithActor(ctx, "scheduler"),
		cancel:     cancel,
	}
}

// Register adds the configured jobs. An empty schedule disables its job.
func (s *Scheduler) Register() error {
	if s.config.StatementSchedule != "" {
		if _, err := s.cron.AddFunc(s.config.StatementSchedule, func() { _ = s.RunStatements(s.ctx) }); err != nil {
			return fmt.Errorf("invalid statement schedule %q: %w", s.config.StatementSchedule, err)
		}
	}
	if s.config.ReconcileSchedule != "" {
		if _, err := s.cron.AddFunc(s.config.ReconcileSchedule, func() { _ = s.RunReconcile(s.ctx) }); err != nil {
			return fmt.Errorf("invalid reconcile schedule %q: %w", s.config.ReconcileSchedule, err)
		}
	}

	log.WithFields(log.Fields{
		"statementSchedule": s.config.StatementSchedule,
		"reconcileSchedule": s.config.ReconcileSchedule,
		"jobs":              len(s.cron.Entries()),
	}).Info("Scheduled jobs registered")
	return nil
}

// Start registers the jobs and begins the cron loop
func (s *Scheduler) Start() error {
	if err := s.Register(); err != nil {
		return err
	}
	s.cron.Start()
	log.Info("Scheduler started")
	return nil
}

// Stop cancels in-flight jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	log.Info("Scheduler stopped")
}

// Entries returns the number of registered jobs
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// RunStatements generates statements for the month before now
func (s *Scheduler) RunStatements(ctx context.Context) error {
	period := models.PreviousPeriod(s.now())
	return s.run(JobStatements, func() error {
		statements, err := s.statements.GenerateAll(ctx, period.Year, int(period.Month))
		log.WithFields(log.Fields{
			"period":    period.String(),
			"generated": len(statements),
		}).Info("Statement job finished")
		return err
	})
}

// RunReconcile reconciles every open account
func (s *Scheduler) RunReconcile(ctx context.Context) error {
	return s.run(JobReconcile, func() error {
		results, err := s.reconciler.ReconcileAll(ctx)
		inconsistent := 0
		for _, r := range results {
			if !r.Consistent {
				inconsistent++
			}
		}
		log.WithFields(log.Fields{
			"checked":      len(results),
			"inconsistent": inconsistent,
		}).Info("Reconcile job finished")
		return err
	})
}

func (s *Scheduler) run(job string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start)

	if s.recorder != nil {
		s.recorder.RecordJobRun(job, duration, err)
	}

	entry := log.WithFields(log.Fields{
		"job":      job,
		"duration": duration,
	})
	if err != nil {
		entry.WithError(err).Error("Scheduled job failed")
	} else {
		entry.Debug("Scheduled job completed")
	}
	return err
}

// cronLogger adapts logrus to cron's logger
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.WithFields(fields(keysAndValues)).Debug(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.WithError(err).WithFields(fields(keysAndValues)).Error(msg)
}

func fields(keysAndValues []interface{}) log.Fields {
	f := log.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}
