package cmd

import (
	"fmt"

	"looseline/money"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newLedgerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and correct ledger entries",
	}

	var limit, offset int
	entries := &cobra.Command{
		Use:   "entries <account-id>",
		Short: "List an account's entries in creation order",
		Args:  cobra.ExactArgs(1),
		RunE: withAccount(func(a *app, cmd *cobra.Command, accountID uuid.UUID, args []string) (any, error) {
			return a.ledger.ListEntries(commandContext(cmd), accountID, limit, offset)
		}),
	}
	entries.Flags().IntVar(&limit, "limit", 50, "Maximum entries")
	entries.Flags().IntVar(&offset, "offset", 0, "Entries to skip")

	var reason string
	adjust := &cobra.Command{
		Use:   "adjust <account-id> <amount>",
		Short: "Post a manual correction (negative amounts debit)",
		Args:  cobra.ExactArgs(2),
		RunE: withAccount(func(a *app, cmd *cobra.Command, accountID uuid.UUID, args []string) (any, error) {
			amount, err := money.Parse(args[0])
			if err != nil {
				return nil, fmt.Errorf("invalid amount %q: %w", args[0], err)
			}
			return a.ledger.Adjust(commandContext(cmd), accountID, amount, reason)
		}),
	}
	adjust.Flags().StringVar(&reason, "reason", "", "Reason recorded on the entry")
	_ = adjust.MarkFlagRequired("reason")

	var description string
	bonus := &cobra.Command{
		Use:   "bonus <account-id> <amount>",
		Short: "Grant a promotional credit",
		Args:  cobra.ExactArgs(2),
		RunE: withAccount(func(a *app, cmd *cobra.Command, accountID uuid.UUID, args []string) (any, error) {
			amount, err := money.Parse(args[0])
			if err != nil {
				return nil, fmt.Errorf("invalid amount %q: %w", args[0], err)
			}
			return a.ledger.GrantBonus(commandContext(cmd), accountID, amount, description)
		}),
	}
	bonus.Flags().StringVar(&description, "description", "Promotional bonus", "Entry description")

	cmd.AddCommand(entries, adjust, bonus)
	return cmd
}
