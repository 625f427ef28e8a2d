package observability

// Metric name prefixes
const (
	MetricPrefix = "looseline"
)

// Metric names
const (
	// Ledger metrics
	LedgerEntriesTotal       = MetricPrefix + ".ledger.entries_total"
	LedgerVolume             = MetricPrefix + ".ledger.volume"
	IntegrityViolationsTotal = MetricPrefix + ".ledger.integrity_violations_total"

	// Wallet metrics
	WalletOperationsTotal = MetricPrefix + ".wallet.operations_total"

	// Betting metrics
	BetsPlacedTotal  = MetricPrefix + ".bets.placed_total"
	BetsSettledTotal = MetricPrefix + ".bets.settled_total"
	BetsActive       = MetricPrefix + ".bets.active"

	// Statement metrics
	StatementsGeneratedTotal = MetricPrefix + ".statements.generated_total"

	// NATS metrics
	NATSMessagesPublishedTotal = MetricPrefix + ".nats.messages_published_total"

	// Scheduler metrics
	JobRunsTotal   = MetricPrefix + ".jobs.runs_total"
	JobRunDuration = MetricPrefix + ".jobs.run_duration"
)

// Label keys
const (
	LabelType      = "type"
	LabelStatus    = "status"
	LabelOutcome   = "outcome"
	LabelEventType = "event_type"
	LabelJob       = "job"
)
