package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"looseline/config"
	"looseline/events"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// MetricsProvider manages OpenTelemetry metrics for the ledger
type MetricsProvider struct {
	config        *config.Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	initialized   bool
	enabled       bool
	mu            sync.RWMutex

	// Metric instruments
	entriesCounter          metric.Int64Counter
	volumeCounter           metric.Float64Counter
	violationsCounter       metric.Int64Counter
	walletOpsCounter        metric.Int64Counter
	betsPlacedCounter       metric.Int64Counter
	betsSettledCounter      metric.Int64Counter
	betsActiveGauge         metric.Int64UpDownCounter
	statementsCounter       metric.Int64Counter
	natsPublishedCounter    metric.Int64Counter
	jobRunsCounter          metric.Int64Counter
	jobRunDurationHistogram metric.Float64Histogram
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
	}
}

// Initialize sets up the exporter selected by OTEL_EXPORTER_TYPE
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		return nil
	}

	if !mp.config.OTelEnabled {
		log.Info("OpenTelemetry metrics disabled")
		mp.initialized = true
		return nil
	}

	res, err := mp.newResource()
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdkmetric.Exporter
	switch mp.config.OTelExporterType {
	case "console":
		exporter, err = stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("failed to create console exporter: %w", err)
		}
		log.Info("Using console metric exporter")

	case "otlp":
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		exporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(mp.config.OTelOTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		log.WithField("endpoint", mp.config.OTelOTLPEndpoint).Info("Using OTLP metric exporter")

	case "none":
		log.Info("Metrics export disabled (exporter_type='none')")
		mp.initialized = true
		return nil

	default:
		return fmt.Errorf("unknown exporter type: %s", mp.config.OTelExporterType)
	}

	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				exporter,
				sdkmetric.WithInterval(time.Duration(mp.config.OTelExportIntervalMillis)*time.Millisecond),
			),
		),
	)
	otel.SetMeterProvider(mp.meterProvider)

	if err := mp.useMeter(mp.meterProvider.Meter("looseline")); err != nil {
		return err
	}

	mp.initialized = true
	log.Info("Metrics provider initialized successfully")
	return nil
}

// InitializeWithReader wires the provider to a caller-supplied reader
func (mp *MetricsProvider) InitializeWithReader(reader sdkmetric.Reader) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	if err := mp.useMeter(mp.meterProvider.Meter("looseline")); err != nil {
		return err
	}
	mp.initialized = true
	return nil
}

// newResource describes this service on top of the SDK defaults. The schema
// URL has to match the one resource.Default carries or the merge fails.
func (mp *MetricsProvider) newResource() (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(mp.config.OTelServiceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
}

func (mp *MetricsProvider) useMeter(meter metric.Meter) error {
	mp.meter = meter
	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}
	mp.enabled = true
	return nil
}

func (mp *MetricsProvider) createInstruments() error {
	var err error

	if mp.entriesCounter, err = mp.meter.Int64Counter(LedgerEntriesTotal,
		metric.WithDescription("Total number of ledger entries appended"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create entries counter: %w", err)
	}

	if mp.volumeCounter, err = mp.meter.Float64Counter(LedgerVolume,
		metric.WithDescription("Absolute amount moved through the ledger"),
	); err != nil {
		return fmt.Errorf("failed to create volume counter: %w", err)
	}

	if mp.violationsCounter, err = mp.meter.Int64Counter(IntegrityViolationsTotal,
		metric.WithDescription("Accounts found inconsistent by reconciliation"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create integrity violations counter: %w", err)
	}

	if mp.walletOpsCounter, err = mp.meter.Int64Counter(WalletOperationsTotal,
		metric.WithDescription("Wallet operation state transitions"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create wallet operations counter: %w", err)
	}

	if mp.betsPlacedCounter, err = mp.meter.Int64Counter(BetsPlacedTotal,
		metric.WithDescription("Total number of bets placed"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create bets placed counter: %w", err)
	}

	if mp.betsSettledCounter, err = mp.meter.Int64Counter(BetsSettledTotal,
		metric.WithDescription("Total number of bets settled"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create bets settled counter: %w", err)
	}

	// UpDownCounter for gauge-like behavior
	if mp.betsActiveGauge, err = mp.meter.Int64UpDownCounter(BetsActive,
		metric.WithDescription("Bets placed but not yet settled"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create active bets gauge: %w", err)
	}

	if mp.statementsCounter, err = mp.meter.Int64Counter(StatementsGeneratedTotal,
		metric.WithDescription("Total number of monthly statements generated"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create statements counter: %w", err)
	}

	if mp.natsPublishedCounter, err = mp.meter.Int64Counter(NATSMessagesPublishedTotal,
		metric.WithDescription("Total number of NATS messages published"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create NATS messages published counter: %w", err)
	}

	if mp.jobRunsCounter, err = mp.meter.Int64Counter(JobRunsTotal,
		metric.WithDescription("Scheduled job runs"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create job runs counter: %w", err)
	}

	if mp.jobRunDurationHistogram, err = mp.meter.Float64Histogram(JobRunDuration,
		metric.WithDescription("Duration of scheduled job runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 15, 60, 300, 900),
	); err != nil {
		return fmt.Errorf("failed to create job run duration histogram: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the metrics provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

// Subscribe feeds the ledger counters from committed events
func (mp *MetricsProvider) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.EventTypeBalanceChange, func(ctx context.Context, e events.Event) {
		ev := e.(events.BalanceChangeEvent)
		mp.RecordEntry(string(ev.TransactionType), ev.Amount.Abs().Decimal().InexactFloat64())
	})
	bus.Subscribe(events.EventTypeWalletOperationChange, func(ctx context.Context, e events.Event) {
		ev := e.(events.WalletOperationChangeEvent)
		mp.RecordWalletOperation(string(ev.OperationType), string(ev.NewState))
	})
	bus.Subscribe(events.EventTypeBetPlaced, func(ctx context.Context, e events.Event) {
		mp.RecordBetPlaced()
	})
	bus.Subscribe(events.EventTypeBetSettled, func(ctx context.Context, e events.Event) {
		mp.RecordBetSettled(string(e.(events.BetSettledEvent).Outcome))
	})
	bus.Subscribe(events.EventTypeIntegrityViolation, func(ctx context.Context, e events.Event) {
		mp.RecordIntegrityViolation()
	})
	bus.Subscribe(events.EventTypeStatementGenerated, func(ctx context.Context, e events.Event) {
		mp.RecordStatementGenerated()
	})
}

// RecordEntry records an appended ledger entry
func (mp *MetricsProvider) RecordEntry(transactionType string, amount float64) {
	if !mp.isEnabled() {
		return
	}
	attrs := metric.WithAttributes(attribute.String(LabelType, transactionType))
	mp.entriesCounter.Add(context.Background(), 1, attrs)
	mp.volumeCounter.Add(context.Background(), amount, attrs)
}

// RecordWalletOperation records a wallet operation reaching a status
func (mp *MetricsProvider) RecordWalletOperation(operationType, status string) {
	if !mp.isEnabled() {
		return
	}
	mp.walletOpsCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelType, operationType),
			attribute.String(LabelStatus, status),
		),
	)
}

// RecordBetPlaced records a placed bet
func (mp *MetricsProvider) RecordBetPlaced() {
	if !mp.isEnabled() {
		return
	}
	mp.betsPlacedCounter.Add(context.Background(), 1)
	mp.betsActiveGauge.Add(context.Background(), 1)
}

// RecordBetSettled records a settled bet
func (mp *MetricsProvider) RecordBetSettled(outcome string) {
	if !mp.isEnabled() {
		return
	}
	mp.betsSettledCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelOutcome, outcome)),
	)
	mp.betsActiveGauge.Add(context.Background(), -1)
}

// RecordIntegrityViolation records an account failing reconciliation
func (mp *MetricsProvider) RecordIntegrityViolation() {
	if !mp.isEnabled() {
		return
	}
	mp.violationsCounter.Add(context.Background(), 1)
}

// RecordStatementGenerated records a stored monthly statement
func (mp *MetricsProvider) RecordStatementGenerated() {
	if !mp.isEnabled() {
		return
	}
	mp.statementsCounter.Add(context.Background(), 1)
}

// RecordNATSMessagePublished records a NATS message being published
func (mp *MetricsProvider) RecordNATSMessagePublished(eventType events.EventType) {
	if !mp.isEnabled() {
		return
	}
	mp.natsPublishedCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelEventType, string(eventType))),
	)
}

// RecordJobRun records a scheduled job run and its outcome
func (mp *MetricsProvider) RecordJobRun(job string, duration time.Duration, err error) {
	if !mp.isEnabled() {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String(LabelJob, job),
		attribute.String(LabelStatus, status),
	)
	mp.jobRunsCounter.Add(context.Background(), 1, attrs)
	mp.jobRunDurationHistogram.Record(context.Background(), duration.Seconds(), attrs)
}

// isEnabled checks that instruments exist
func (mp *MetricsProvider) isEnabled() bool {
	if mp == nil {
		return false
	}
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.initialized && mp.enabled
}
