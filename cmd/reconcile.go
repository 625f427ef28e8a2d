package cmd

import (
	"errors"
	"fmt"

	"looseline/config"
	"looseline/models"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newReconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [account-id]",
		Short: "Replay the ledger and compare it with stored balances",
		Long: "Reconciles one account, or every open account when no ID is given. " +
			"Inconsistent accounts are frozen.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			a, err := newApp(ctx, config.Get())
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 1 {
				accountID, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid account id %q: %w", args[0], err)
				}
				result, err := a.ledger.Reconcile(ctx, accountID)
				if result != nil {
					if perr := printJSON(result); perr != nil {
						return perr
					}
				}
				return err
			}

			results, err := a.ledger.ReconcileAll(ctx)
			if perr := printJSON(results); perr != nil {
				return perr
			}
			if err != nil {
				return err
			}
			for _, r := range results {
				if !r.Consistent {
					return fmt.Errorf("%w: %s", models.ErrIntegrityViolation, r.AccountID)
				}
			}
			return nil
		},
	}
}

// ExitCode maps a command error to the process status
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, models.ErrIntegrityViolation):
		return 3
	default:
		return 1
	}
}
