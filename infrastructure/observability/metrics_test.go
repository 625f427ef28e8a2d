package observability

import (
	"context"
	"testing"
	"time"

	"looseline/config"
	"looseline/events"
	"looseline/models"
	"looseline/money"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	return sums
}

func TestMetricsProvider_Disabled(t *testing.T) {
	cfg := config.NewTestConfig()
	cfg.OTelEnabled = false

	mp := NewMetricsProvider(cfg)
	require.NoError(t, mp.Initialize(context.Background()))

	assert.False(t, mp.isEnabled())
	// Recording on a disabled provider is a no-op
	mp.RecordBetPlaced()
	mp.RecordJobRun("reconcile", time.Second, nil)
	assert.NoError(t, mp.Shutdown(context.Background()))
}

func TestMetricsProvider_Resource(t *testing.T) {
	cfg := config.NewTestConfig()
	cfg.OTelServiceName = "looseline-test"

	res, err := NewMetricsProvider(cfg).newResource()
	require.NoError(t, err)

	name, ok := res.Set().Value(semconv.ServiceNameKey)
	require.True(t, ok)
	assert.Equal(t, "looseline-test", name.AsString())
	assert.Equal(t, semconv.SchemaURL, res.SchemaURL())
}

func TestMetricsProvider_ConsoleExporter(t *testing.T) {
	cfg := config.NewTestConfig()
	cfg.OTelEnabled = true
	cfg.OTelExporterType = "console"

	mp := NewMetricsProvider(cfg)
	require.NoError(t, mp.Initialize(context.Background()))
	assert.True(t, mp.isEnabled())

	mp.RecordBetPlaced()
	assert.NoError(t, mp.Shutdown(context.Background()))
}

func TestMetricsProvider_UnknownExporter(t *testing.T) {
	cfg := config.NewTestConfig()
	cfg.OTelEnabled = true
	cfg.OTelExporterType = "carrier-pigeon"

	err := NewMetricsProvider(cfg).Initialize(context.Background())
	assert.ErrorContains(t, err, "unknown exporter type")
}

func TestMetricsProvider_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := NewMetricsProvider(config.NewTestConfig())
	require.NoError(t, mp.InitializeWithReader(reader))

	mp.RecordEntry("deposit", 100)
	mp.RecordEntry("bet", 10)
	mp.RecordBetPlaced()
	mp.RecordBetPlaced()
	mp.RecordBetSettled("won")
	mp.RecordWalletOperation("deposit", "completed")
	mp.RecordIntegrityViolation()
	mp.RecordStatementGenerated()
	mp.RecordNATSMessagePublished(events.EventTypeAudit)
	mp.RecordJobRun("statements", 2*time.Second, nil)

	sums := collectSums(t, reader)
	assert.Equal(t, int64(2), sums[LedgerEntriesTotal])
	assert.Equal(t, int64(2), sums[BetsPlacedTotal])
	assert.Equal(t, int64(1), sums[BetsSettledTotal])
	assert.Equal(t, int64(1), sums[BetsActive])
	assert.Equal(t, int64(1), sums[WalletOperationsTotal])
	assert.Equal(t, int64(1), sums[IntegrityViolationsTotal])
	assert.Equal(t, int64(1), sums[StatementsGeneratedTotal])
	assert.Equal(t, int64(1), sums[NATSMessagesPublishedTotal])
	assert.Equal(t, int64(1), sums[JobRunsTotal])
}

func TestMetricsProvider_Subscribe(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := NewMetricsProvider(config.NewTestConfig())
	require.NoError(t, mp.InitializeWithReader(reader))

	bus := events.NewBus()
	mp.Subscribe(bus)

	ctx := context.Background()
	bus.Emit(ctx, events.BalanceChangeEvent{TransactionType: models.TransactionTypeWithdrawal, Amount: money.MustParse("-20.00")})
	bus.Emit(ctx, events.StatementGeneratedEvent{StatementID: 3})

	// Handlers run asynchronously
	assert.Eventually(t, func() bool {
		sums := collectSums(t, reader)
		return sums[LedgerEntriesTotal] == 1 && sums[StatementsGeneratedTotal] == 1
	}, 2*time.Second, 20*time.Millisecond)
}
