package cmd

import (
	"fmt"

	"looseline/config"
	"looseline/models"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newAccountCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Provision and manage accounts",
	}

	var currency string
	create := &cobra.Command{
		Use:   "create <email> <username>",
		Short: "Create a user with an empty account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			a, err := newApp(ctx, config.Get())
			if err != nil {
				return err
			}
			defer a.Close()

			created, err := a.accounts.CreateUser(ctx, models.CreateUserRequest{
				Email:    args[0],
				Username: args[1],
				Currency: currency,
			})
			if err != nil {
				return err
			}
			return printJSON(created)
		},
	}
	create.Flags().StringVar(&currency, "currency", "", "ISO 4217 currency (DEFAULT_CURRENCY when empty)")

	show := &cobra.Command{
		Use:   "show <account-id>",
		Short: "Show an account with its balance",
		Args:  cobra.ExactArgs(1),
		RunE: withAccount(func(a *app, cmd *cobra.Command, accountID uuid.UUID, args []string) (any, error) {
			ctx := commandContext(cmd)
			account, err := a.accounts.GetAccount(ctx, accountID)
			if err != nil {
				return nil, err
			}
			balance, err := a.ledger.GetBalance(ctx, accountID)
			if err != nil {
				return nil, err
			}
			return map[string]any{"account": account, "balance": balance}, nil
		}),
	}

	var reason string
	freeze := &cobra.Command{
		Use:   "freeze <account-id>",
		Short: "Block balance changes on an account",
		Args:  cobra.ExactArgs(1),
		RunE: withAccount(func(a *app, cmd *cobra.Command, accountID uuid.UUID, args []string) (any, error) {
			return a.accounts.FreezeAccount(commandContext(cmd), accountID, reason)
		}),
	}
	freeze.Flags().StringVar(&reason, "reason", "frozen by operator", "Reason stored on the account")

	unfreeze := &cobra.Command{
		Use:   "unfreeze <account-id>",
		Short: "Re-open a frozen account",
		Args:  cobra.ExactArgs(1),
		RunE: withAccount(func(a *app, cmd *cobra.Command, accountID uuid.UUID, args []string) (any, error) {
			return a.accounts.UnfreezeAccount(commandContext(cmd), accountID)
		}),
	}

	closeCmd := &cobra.Command{
		Use:   "close <account-id>",
		Short: "Close an emptied account",
		Args:  cobra.ExactArgs(1),
		RunE: withAccount(func(a *app, cmd *cobra.Command, accountID uuid.UUID, args []string) (any, error) {
			return a.accounts.CloseAccount(commandContext(cmd), accountID)
		}),
	}

	cmd.AddCommand(create, show, freeze, unfreeze, closeCmd)
	return cmd
}

type accountAction func(a *app, cmd *cobra.Command, accountID uuid.UUID, args []string) (any, error)

// withAccount parses the leading account ID, wires the app and prints the result
func withAccount(action accountAction) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		accountID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid account id %q: %w", args[0], err)
		}

		a, err := newApp(commandContext(cmd), config.Get())
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := action(a, cmd, accountID, args[1:])
		if err != nil {
			return err
		}
		return printJSON(result)
	}
}
