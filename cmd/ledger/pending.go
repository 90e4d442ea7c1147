package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	importservice "github.com/FACorreiaa/ledger-core/internal/domain/import/service"
	"github.com/FACorreiaa/ledger-core/internal/domain/ledger/repository"
)

func newPendingCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Inspect and resolve rows held for review",
	}
	cmd.AddCommand(
		newPendingListCommand(flags),
		newPendingExportCommand(flags),
		newPendingConfirmCommand(flags),
	)
	return cmd
}

func newPendingListCommand(flags *globalFlags) *cobra.Command {
	var userID, batchID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending review rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDependencies(cmd, flags, func(ctx context.Context, deps *Dependencies) error {
				rows, err := listPending(ctx, deps.ReviewService, userID, batchID)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tBATCH\tROW\tERROR\tRAW")
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", r.ID, r.ImportBatchID, r.RowNumber, r.Error, joinRaw(r.Raw))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owner user id (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().StringVar(&batchID, "batch", "", "only rows of this import batch")
	return cmd
}

// pendingRecord is one exported review row.
type pendingRecord struct {
	ID        string `csv:"id"`
	BatchID   string `csv:"import_batch_id"`
	RowNumber int    `csv:"row_number"`
	Error     string `csv:"error"`
	Raw       string `csv:"raw"`
	CreatedAt string `csv:"created_at"`
}

func newPendingExportCommand(flags *globalFlags) *cobra.Command {
	var userID, batchID, outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export pending review rows as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDependencies(cmd, flags, func(ctx context.Context, deps *Dependencies) error {
				rows, err := listPending(ctx, deps.ReviewService, userID, batchID)
				if err != nil {
					return err
				}

				var out io.Writer = cmd.OutOrStdout()
				if outPath != "" {
					f, err := os.Create(outPath)
					if err != nil {
						return fmt.Errorf("failed to create export file: %w", err)
					}
					defer f.Close()
					out = f
				}
				return exportPending(out, rows)
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owner user id (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().StringVar(&batchID, "batch", "", "only rows of this import batch")
	cmd.Flags().StringVar(&outPath, "out", "", "write to this file instead of stdout")
	return cmd
}

func exportPending(w io.Writer, rows []repository.PendingReviewRow) error {
	records := make([]*pendingRecord, len(rows))
	for i, r := range rows {
		records[i] = &pendingRecord{
			ID:        r.ID.String(),
			BatchID:   r.ImportBatchID.String(),
			RowNumber: r.RowNumber,
			Error:     r.Error,
			Raw:       joinRaw(r.Raw),
			CreatedAt: r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}
	if err := gocsv.Marshal(records, w); err != nil {
		return fmt.Errorf("failed to write pending rows: %w", err)
	}
	return nil
}

func newPendingConfirmCommand(flags *globalFlags) *cobra.Command {
	var (
		userID, pendingID, date, description string
		categoryID, accountID                string
		amountCents                          int64
	)

	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Resolve a pending row with corrected values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := importservice.ConfirmRequest{Description: description, AmountCents: amountCents}
			var err error
			if req.UserID, err = parseUUID("user", userID); err != nil {
				return err
			}
			if req.PendingID, err = parseUUID("id", pendingID); err != nil {
				return err
			}
			if req.Date, err = parseDate("date", date); err != nil {
				return err
			}
			if req.CategoryID, err = parseOptionalUUID("category", categoryID); err != nil {
				return err
			}
			if req.AccountID, err = parseOptionalUUID("account", accountID); err != nil {
				return err
			}

			return withDependencies(cmd, flags, func(ctx context.Context, deps *Dependencies) error {
				tx, err := deps.ReviewService.Confirm(ctx, req)
				if err != nil {
					var dupErr *importservice.DuplicateError
					if errors.As(err, &dupErr) {
						fmt.Fprintf(cmd.OutOrStdout(), "duplicate of transaction %s; row marked duplicate\n", dupErr.ExistingTransactionID)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created transaction %s\n", tx.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owner user id (required)")
	cmd.Flags().StringVar(&pendingID, "id", "", "pending row id (required)")
	cmd.Flags().StringVar(&date, "date", "", "transaction date, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&description, "description", "", "transaction description (required)")
	cmd.Flags().Int64Var(&amountCents, "amount-cents", 0, "signed amount in minor units (required)")
	cmd.Flags().StringVar(&categoryID, "category", "", "category id")
	cmd.Flags().StringVar(&accountID, "account", "", "account id; defaults to the import's account")
	for _, name := range []string{"user", "id", "date", "description", "amount-cents"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func listPending(ctx context.Context, svc *importservice.ReviewService, userID, batchID string) ([]repository.PendingReviewRow, error) {
	user, err := parseUUID("user", userID)
	if err != nil {
		return nil, err
	}
	if batchID == "" {
		return svc.ListPending(ctx, user)
	}
	batch, err := parseUUID("batch", batchID)
	if err != nil {
		return nil, err
	}
	return svc.ListBatchPending(ctx, user, batch)
}

func joinRaw(raw []repository.RawField) string {
	parts := make([]string, len(raw))
	for i, f := range raw {
		parts[i] = f.Header + "=" + f.Value
	}
	return strings.Join(parts, " | ")
}
