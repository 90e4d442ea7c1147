// Package testdata generates realistic statement files for tests: delimited
// text and XLSX workbooks (optionally password protected) filled with
// gofakeit merchants, dates and amounts.
package testdata

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/xuri/excelize/v2"
)

// StatementRow is one generated statement line.
type StatementRow struct {
	Date        time.Time
	Description string
	AmountCents int64
}

// Generator builds statement rows from a seeded faker, so a seed always
// yields the same statement.
type Generator struct {
	faker *gofakeit.Faker
}

// NewGenerator creates a generator with a specific seed for reproducibility.
func NewGenerator(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// Rows generates n statement rows with unique descriptions, dated within
// January 2024 and never zero.
func (g *Generator) Rows(n int) []StatementRow {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]StatementRow, n)
	for i := range n {
		cents := int64(g.faker.Number(100, 500000))
		if g.faker.Number(0, 3) > 0 {
			cents = -cents
		}
		rows[i] = StatementRow{
			Date:        start.AddDate(0, 0, g.faker.Number(0, 30)),
			Description: fmt.Sprintf("%s %d", strings.ToUpper(g.faker.Company()), i+1),
			AmountCents: cents,
		}
	}
	return rows
}

// FormatCents renders minor units with a comma decimal separator and dot
// thousands grouping, the way Brazilian banks export amounts ("-1.234,56").
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	units := fmt.Sprintf("%d", cents/100)
	var grouped strings.Builder
	for i, r := range units {
		if i > 0 && (len(units)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}
	return fmt.Sprintf("%s%s,%02d", sign, grouped.String(), cents%100)
}

// CSV renders rows as a semicolon separated statement with Portuguese headers
// and DD/MM/YYYY dates.
func CSV(rows []StatementRow) []byte {
	var b bytes.Buffer
	b.WriteString("Data;Descrição;Valor\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%s;%s;%s\n", r.Date.Format("02/01/2006"), r.Description, FormatCents(r.AmountCents))
	}
	return b.Bytes()
}

// Workbook renders rows into a single-sheet XLSX file. A non-empty password
// produces an encrypted workbook.
func Workbook(sheet string, rows []StatementRow, password string) ([]byte, error) {
	cells := make([][]any, 0, len(rows)+1)
	cells = append(cells, []any{"Data", "Descrição", "Valor"})
	for _, r := range rows {
		cells = append(cells, []any{r.Date.Format(time.DateOnly), r.Description, float64(r.AmountCents) / 100})
	}
	return RawWorkbook(sheet, cells, password)
}

// RawWorkbook writes arbitrary cells, row by row from A1, into a workbook.
func RawWorkbook(sheet string, cells [][]any, password string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if sheet != "" && sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return nil, fmt.Errorf("failed to rename sheet: %w", err)
		}
	} else {
		sheet = "Sheet1"
	}

	for i, row := range cells {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf, excelize.Options{Password: password}); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
