package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"looseline/database"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string
	DatabaseName string

	// Logging
	LogLevel  string
	LogFormat string // "text" or "json"

	// Ledger behaviour
	DefaultCurrency    string
	LockTimeout        time.Duration // SET LOCAL lock_timeout for mutating transactions
	MaxConflictRetries int           // attempts for lock timeouts, deadlocks and serialization failures
	DepositFeeRate     decimal.Decimal
	WithdrawalFeeRate  decimal.Decimal

	// NATS configuration
	NATSServers        string // NATS server addresses (comma-separated)
	AuditEnabled       bool
	AuditSubjectPrefix string

	// OpenTelemetry configuration
	OTelEnabled              bool
	OTelExporterType         string // "console", "otlp" or "none"
	OTelOTLPEndpoint         string
	OTelServiceName          string
	OTelExportIntervalMillis int

	// Scheduled jobs (cron with seconds field, UTC)
	StatementSchedule string
	ReconcileSchedule string

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup

	v = newViper()
)

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("DEFAULT_CURRENCY", "USD")
	v.SetDefault("LOCK_TIMEOUT", "5s")
	v.SetDefault("MAX_CONFLICT_RETRIES", 5)
	v.SetDefault("DEPOSIT_FEE_RATE", "0")
	v.SetDefault("WITHDRAWAL_FEE_RATE", "0")
	v.SetDefault("NATS_SERVERS", "nats://nats:4222")
	v.SetDefault("AUDIT_ENABLED", false)
	v.SetDefault("AUDIT_SUBJECT_PREFIX", "looseline")
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_EXPORTER_TYPE", "console")
	v.SetDefault("OTEL_OTLP_ENDPOINT", "otel-collector:4317")
	v.SetDefault("OTEL_SERVICE_NAME", "looseline")
	v.SetDefault("OTEL_EXPORT_INTERVAL_MILLIS", 30000)
	v.SetDefault("STATEMENT_SCHEDULE", "0 0 3 1 * *")
	v.SetDefault("RECONCILE_SCHEDULE", "0 30 2 * * *")
	return v
}

// BindFlag binds a command line flag to a configuration key so the flag
// overrides the environment when set.
func BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("flag for %s not found", key)
	}
	return v.BindPFlag(key, flag)
}

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	// If instance is already set (e.g., by tests), return it
	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load(v)
		if err != nil {
			if os.Getenv("GO_TEST") == "1" || os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// Load reads and validates the configuration without touching the global instance.
func Load() (*Config, error) {
	return load(v)
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// load loads configuration from environment variables and bound flags
func load(v *viper.Viper) (*Config, error) {
	config := &Config{
		DatabaseURL:              v.GetString("DATABASE_URL"),
		DatabaseName:             v.GetString("DATABASE_NAME"),
		LogLevel:                 v.GetString("LOG_LEVEL"),
		LogFormat:                v.GetString("LOG_FORMAT"),
		DefaultCurrency:          strings.ToUpper(strings.TrimSpace(v.GetString("DEFAULT_CURRENCY"))),
		LockTimeout:              v.GetDuration("LOCK_TIMEOUT"),
		MaxConflictRetries:       v.GetInt("MAX_CONFLICT_RETRIES"),
		NATSServers:              v.GetString("NATS_SERVERS"),
		AuditEnabled:             v.GetBool("AUDIT_ENABLED"),
		AuditSubjectPrefix:       v.GetString("AUDIT_SUBJECT_PREFIX"),
		OTelEnabled:              v.GetBool("OTEL_ENABLED"),
		OTelExporterType:         v.GetString("OTEL_EXPORTER_TYPE"),
		OTelOTLPEndpoint:         v.GetString("OTEL_OTLP_ENDPOINT"),
		OTelServiceName:          v.GetString("OTEL_SERVICE_NAME"),
		OTelExportIntervalMillis: v.GetInt("OTEL_EXPORT_INTERVAL_MILLIS"),
		StatementSchedule:        v.GetString("STATEMENT_SCHEDULE"),
		ReconcileSchedule:        v.GetString("RECONCILE_SCHEDULE"),
		Environment:              v.GetString("ENVIRONMENT"),
	}

	var err error
	if config.DepositFeeRate, err = parseRate("DEPOSIT_FEE_RATE", v.GetString("DEPOSIT_FEE_RATE")); err != nil {
		return nil, err
	}
	if config.WithdrawalFeeRate, err = parseRate("WITHDRAWAL_FEE_RATE", v.GetString("WITHDRAWAL_FEE_RATE")); err != nil {
		return nil, err
	}

	if len(config.DefaultCurrency) != 3 {
		return nil, fmt.Errorf("DEFAULT_CURRENCY must be a 3-letter ISO code, got %q", config.DefaultCurrency)
	}
	if config.MaxConflictRetries < 1 {
		return nil, fmt.Errorf("MAX_CONFLICT_RETRIES must be at least 1")
	}
	if config.LockTimeout <= 0 {
		return nil, fmt.Errorf("LOCK_TIMEOUT must be positive")
	}

	if config.Environment != "test" {
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		// If DatabaseName is provided, ensure it's not empty
		if config.DatabaseName != "" && strings.TrimSpace(config.DatabaseName) == "" {
			return nil, fmt.Errorf("DATABASE_NAME cannot be empty when provided")
		}
	}

	return config, nil
}

func parseRate(key, raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a decimal: %w", key, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%s must be in [0, 1), got %s", key, rate)
	}
	return rate, nil
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
// This should only be called from test files
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
// This should only be called from test files
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment:              "test",
		LogLevel:                 "debug",
		LogFormat:                "text",
		DefaultCurrency:          "USD",
		LockTimeout:              2 * time.Second,
		MaxConflictRetries:       5,
		DepositFeeRate:           decimal.Zero,
		WithdrawalFeeRate:        decimal.Zero,
		AuditSubjectPrefix:       "looseline",
		OTelExporterType:         "none",
		OTelServiceName:          "looseline-test",
		OTelExportIntervalMillis: 1000,
		StatementSchedule:        "0 0 3 1 * *",
		ReconcileSchedule:        "0 30 2 * * *",
	}
}
