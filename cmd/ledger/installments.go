package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/ledger-core/internal/domain/installment"
	"github.com/FACorreiaa/ledger-core/internal/domain/ledger/repository"
	"github.com/FACorreiaa/ledger-core/pkg/money"
)

func newInstallmentsCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "installments",
		Short: "Manage installment purchases",
	}
	cmd.AddCommand(
		newInstallmentsCreateCommand(flags),
		newInstallmentsDeleteCommand(flags),
		newInstallmentsListCommand(flags),
	)
	return cmd
}

func newInstallmentsCreateCommand(flags *globalFlags) *cobra.Command {
	var (
		userID, start, description string
		categoryID, accountID      string
		count, interval            int
		total, per                 int64
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an installment group and all of its transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := installment.CreateRequest{
				BaseDescription: description,
				Count:           count,
				IntervalMonths:  interval,
			}
			var err error
			if req.UserID, err = parseUUID("user", userID); err != nil {
				return err
			}
			if req.StartDate, err = parseDate("start", start); err != nil {
				return err
			}
			if req.CategoryID, err = parseOptionalUUID("category", categoryID); err != nil {
				return err
			}
			if req.AccountID, err = parseOptionalUUID("account", accountID); err != nil {
				return err
			}
			if cmd.Flags().Changed("total") {
				req.TotalCents = &total
			}
			if cmd.Flags().Changed("per") {
				req.PerInstallmentCents = &per
			}

			return withDependencies(cmd, flags, func(ctx context.Context, deps *Dependencies) error {
				members, err := deps.InstallmentService.Create(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "group %s\n", *members[0].InstallmentGroupID)
				return printTransactions(cmd.OutOrStdout(), members, deps.Config.Import.Currency)
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owner user id (required)")
	cmd.Flags().StringVar(&start, "start", "", "date of the first installment, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&description, "description", "", "purchase description (required)")
	cmd.Flags().IntVar(&count, "count", 0, "number of installments (required)")
	cmd.Flags().IntVar(&interval, "interval", 1, "months between installments")
	cmd.Flags().Int64Var(&total, "total", 0, "total amount in minor units")
	cmd.Flags().Int64Var(&per, "per", 0, "amount of each installment in minor units")
	cmd.Flags().StringVar(&categoryID, "category", "", "category id")
	cmd.Flags().StringVar(&accountID, "account", "", "account id")
	for _, name := range []string{"user", "start", "description", "count"} {
		_ = cmd.MarkFlagRequired(name)
	}
	cmd.MarkFlagsMutuallyExclusive("total", "per")
	cmd.MarkFlagsOneRequired("total", "per")
	return cmd
}

func newInstallmentsDeleteCommand(flags *globalFlags) *cobra.Command {
	var userID, groupID string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete an installment group and its transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := parseUUID("user", userID)
			if err != nil {
				return err
			}
			group, err := parseUUID("group", groupID)
			if err != nil {
				return err
			}
			return withDependencies(cmd, flags, func(ctx context.Context, deps *Dependencies) error {
				if err := deps.InstallmentService.Delete(ctx, user, group); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted group %s\n", group)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owner user id (required)")
	cmd.Flags().StringVar(&groupID, "group", "", "installment group id (required)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("group")
	return cmd
}

func newInstallmentsListCommand(flags *globalFlags) *cobra.Command {
	var userID, groupID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the transactions of an installment group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := parseUUID("user", userID)
			if err != nil {
				return err
			}
			group, err := parseUUID("group", groupID)
			if err != nil {
				return err
			}
			return withDependencies(cmd, flags, func(ctx context.Context, deps *Dependencies) error {
				txs, err := deps.InstallmentService.ListTransactions(ctx, user, group)
				if err != nil {
					return err
				}
				return printTransactions(cmd.OutOrStdout(), txs, deps.Config.Import.Currency)
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owner user id (required)")
	cmd.Flags().StringVar(&groupID, "group", "", "installment group id (required)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("group")
	return cmd
}

func printTransactions(out io.Writer, txs []repository.Transaction, currency string) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tDESCRIPTION\tAMOUNT")
	for _, tx := range txs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", tx.ID, tx.Date.Format("2006-01-02"), tx.Description, money.New(tx.AmountCents, currency).Display())
	}
	return w.Flush()
}
