package cmd

import (
	"fmt"
	"time"

	"looseline/config"
	"looseline/models"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newStatementsCommand() *cobra.Command {
	var (
		year    int
		month   int
		account string
	)

	cmd := &cobra.Command{
		Use:   "statements",
		Short: "Generate monthly statements",
		Long:  "Generates statements for a closed month. Defaults to the previous month for every open account.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			if year == 0 && month == 0 {
				period := models.PreviousPeriod(time.Now())
				year, month = period.Year, int(period.Month)
			}

			a, err := newApp(ctx, config.Get())
			if err != nil {
				return err
			}
			defer a.Close()

			if account != "" {
				accountID, err := uuid.Parse(account)
				if err != nil {
					return fmt.Errorf("invalid account id %q: %w", account, err)
				}
				statement, err := a.statements.Generate(ctx, accountID, year, month)
				if err != nil {
					return err
				}
				return printJSON(statement)
			}

			statements, err := a.statements.GenerateAll(ctx, year, month)
			if perr := printJSON(statements); perr != nil {
				return perr
			}
			return err
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "Statement year")
	cmd.Flags().IntVar(&month, "month", 0, "Statement month (1-12)")
	cmd.Flags().StringVar(&account, "account", "", "Generate for a single account")
	cmd.MarkFlagsRequiredTogether("year", "month")

	cmd.AddCommand(&cobra.Command{
		Use:   "attach-report <statement-id> <url>",
		Short: "Attach the rendered report URL to a statement",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			var id int64
			if _, err := fmt.Sscan(args[0], &id); err != nil {
				return fmt.Errorf("invalid statement id %q", args[0])
			}

			a, err := newApp(ctx, config.Get())
			if err != nil {
				return err
			}
			defer a.Close()

			statement, err := a.statements.AttachReport(ctx, id, args[1])
			if err != nil {
				return err
			}
			return printJSON(statement)
		},
	})
	return cmd
}
