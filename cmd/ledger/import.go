package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/ledger-core/internal/domain/import/mapper"
	importservice "github.com/FACorreiaa/ledger-core/internal/domain/import/service"
)

var knownFields = map[mapper.Field]bool{
	mapper.FieldDate:        true,
	mapper.FieldDescription: true,
	mapper.FieldAmount:      true,
	mapper.FieldDebit:       true,
	mapper.FieldCredit:      true,
	mapper.FieldIndicator:   true,
	mapper.FieldCategory:    true,
}

func newImportCommand(flags *globalFlags) *cobra.Command {
	var (
		userID     string
		accountID  string
		sourceType string
		passphrase string
		columns    map[string]string
		headerRow  int
	)

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a CSV or XLSX statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := parseUUID("user", userID)
			if err != nil {
				return err
			}
			account, err := parseOptionalUUID("account", accountID)
			if err != nil {
				return err
			}
			pinned, err := parseColumns(columns)
			if err != nil {
				return err
			}
			if headerRow < 0 {
				return fmt.Errorf("invalid --header-row %d: must be 1 or greater", headerRow)
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read statement: %w", err)
			}

			req := importservice.ImportRequest{
				UserID:     user,
				AccountID:  account,
				SourceType: sourceType,
				Data:       data,
				Passphrase: passphrase,
				Filename:   filepath.Base(args[0]),
				Columns:    pinned,
				HeaderRow:  headerRow,
			}

			return withDependencies(cmd, flags, func(ctx context.Context, deps *Dependencies) error {
				result, err := deps.ImportService.Import(ctx, req)
				if err != nil {
					return err
				}
				printImportResult(cmd, result)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owner user id (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().StringVar(&accountID, "account", "", "account id the statement belongs to")
	cmd.Flags().StringVar(&sourceType, "type", "", "csv or xlsx; detected from content when empty")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "password of an encrypted workbook")
	cmd.Flags().StringToStringVar(&columns, "column", nil, "pin a field to a header, e.g. --column date=Data")
	cmd.Flags().IntVar(&headerRow, "header-row", 0, "1-based line or sheet row of the header; detected when 0")

	return cmd
}

func parseColumns(columns map[string]string) (map[mapper.Field]string, error) {
	if len(columns) == 0 {
		return nil, nil
	}
	pinned := make(map[mapper.Field]string, len(columns))
	for k, v := range columns {
		field := mapper.Field(k)
		if !knownFields[field] {
			return nil, fmt.Errorf("unknown field %q in --column", k)
		}
		pinned[field] = v
	}
	return pinned, nil
}

func printImportResult(cmd *cobra.Command, r *importservice.ImportResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "batch %s: %s\n", r.BatchID, r.Status)
	fmt.Fprintf(out, "rows %d, inserted %d, duplicates %d, pending %d\n",
		r.RowsTotal, r.Inserted, r.Duplicates, r.Pending)
	if r.Sheet != "" {
		fmt.Fprintf(out, "sheet %s, layout %s\n", r.Sheet, r.Layout)
	} else {
		fmt.Fprintf(out, "layout %s\n", r.Layout)
	}
	if r.ArchiveFileID != nil {
		fmt.Fprintf(out, "archived as %s\n", r.ArchiveFileID)
	}
	for _, note := range r.Notes {
		fmt.Fprintf(out, "  %s\n", note)
	}
}
