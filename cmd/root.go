package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"looseline/config"
	"looseline/service"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCommand builds the looseline command tree
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "looseline",
		Short:         "Ledger and balance consistency engine for a wagering platform",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Flags are parsed by now, so the loaded config sees them
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return setupLogging(cfg)
		},
	}

	flags := root.PersistentFlags()
	flags.String("database-url", "", "PostgreSQL connection string (DATABASE_URL)")
	flags.String("database-name", "", "Database name appended to the URL (DATABASE_NAME)")
	flags.String("log-level", "info", "Log level (LOG_LEVEL)")
	flags.String("log-format", "text", "Log format, text or json (LOG_FORMAT)")
	flags.String("actor", "", "Identity recorded on audit events")

	for key, name := range map[string]string{
		"DATABASE_URL":  "database-url",
		"DATABASE_NAME": "database-name",
		"LOG_LEVEL":     "log-level",
		"LOG_FORMAT":    "log-format",
	} {
		if err := config.BindFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newReconcileCommand(),
		newStatementsCommand(),
		newAccountCommand(),
		newLedgerCommand(),
	)
	return root
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func setupLogging(cfg *config.Config) error {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	log.SetLevel(level)

	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format %q", cfg.LogFormat)
	}
	return nil
}

// commandContext attaches the --actor identity
func commandContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if actor, _ := cmd.Flags().GetString("actor"); actor != "" {
		ctx = service.WithActor(ctx, actor)
	}
	return ctx
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
