// Package mapper resolves the date, description and signed amount of each
// decoded statement row. Columns are found by header aliases once per table;
// rows whose columns cannot be found fall back to value-shape heuristics.
package mapper

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/FACorreiaa/ledger-core/internal/domain/import/decoder"
	"github.com/FACorreiaa/ledger-core/internal/domain/import/normalizer"
	"github.com/FACorreiaa/ledger-core/internal/domain/import/sniffer"
)

// Mapped is a row resolved into canonical transaction fields.
type Mapped struct {
	Row          int
	Date         time.Time
	Description  string
	AmountCents  int64
	CategoryHint string
}

// Columns holds the column index resolved for each field, -1 when absent.
type Columns struct {
	Date        int
	Description int
	Amount      int
	Debit       int
	Credit      int
	Indicator   int
	Category    int
}

func noColumns() Columns {
	return Columns{-1, -1, -1, -1, -1, -1, -1}
}

func (c *Columns) slot(f Field) *int {
	switch f {
	case FieldDate:
		return &c.Date
	case FieldDescription:
		return &c.Description
	case FieldAmount:
		return &c.Amount
	case FieldDebit:
		return &c.Debit
	case FieldCredit:
		return &c.Credit
	case FieldIndicator:
		return &c.Indicator
	case FieldCategory:
		return &c.Category
	}
	return nil
}

// Get returns the column index of f, or -1.
func (c Columns) Get(f Field) int {
	if p := c.slot(f); p != nil {
		return *p
	}
	return -1
}

// TableOptions adjust mapping for a single table.
type TableOptions struct {
	// Columns pins fields to header names, bypassing alias matching.
	Columns map[Field]string
}

// Mapper maps rows using an immutable Config. It is safe for concurrent use.
type Mapper struct {
	cfg     Config
	aliases map[Field][]string
	ignored []string
}

// New creates a Mapper. Aliases are folded once here.
func New(cfg Config) *Mapper {
	m := &Mapper{cfg: cfg, aliases: make(map[Field][]string, len(cfg.Aliases))}
	for f, list := range cfg.Aliases {
		folded := make([]string, 0, len(list))
		for _, a := range list {
			if k := foldKey(a); k != "" {
				folded = append(folded, k)
			}
		}
		m.aliases[f] = folded
	}
	for _, h := range cfg.Ignored {
		m.ignored = append(m.ignored, foldKey(h))
	}
	return m
}

// Resolve finds the column of every field. Exact alias matches are tried
// first for all fields, then whole-word containment. A header is claimed by
// at most one field.
func (m *Mapper) Resolve(headers []string) Columns {
	return m.resolve(headers, nil)
}

func (m *Mapper) resolve(headers []string, pinned map[Field]string) Columns {
	cols := noColumns()
	keys := make([]string, len(headers))
	for i, h := range headers {
		keys[i] = foldKey(h)
	}
	claimed := make([]bool, len(headers))

	claim := func(f Field, i int) {
		*cols.slot(f) = i
		claimed[i] = true
	}

	for _, f := range resolveOrder {
		name, ok := pinned[f]
		if !ok {
			continue
		}
		for i, h := range headers {
			if !claimed[i] && (h == name || keys[i] == foldKey(name)) {
				claim(f, i)
				break
			}
		}
	}

	match := func(exact bool) {
		for _, f := range resolveOrder {
			if cols.Get(f) >= 0 {
				continue
			}
		aliases:
			for _, alias := range m.aliases[f] {
				for i, key := range keys {
					if claimed[i] || key == "" {
						continue
					}
					if (exact && key == alias) || (!exact && containsWords(key, alias)) {
						claim(f, i)
						break aliases
					}
				}
			}
		}
	}
	match(true)
	match(false)

	return cols
}

// ForTable resolves the columns of t and, unless the Config fixes it, infers
// the decimal separator from the table's amount cells.
func (m *Mapper) ForTable(t *decoder.Table, opts TableOptions) *TableMapper {
	headers := t.Headers()
	cols := m.resolve(headers, opts.Columns)

	mode := m.cfg.DecimalMode
	if mode == DecimalAuto {
		mode = probeDecimalMode(t, cols)
	}

	used := make([]bool, len(headers))
	for _, f := range resolveOrder {
		if i := cols.Get(f); i >= 0 {
			used[i] = true
		}
	}
	for i, h := range headers {
		if slices.Contains(m.ignored, foldKey(h)) {
			used[i] = true
		}
	}

	return &TableMapper{
		columns: cols,
		used:    used,
		dates:   dateParser{dayFirst: m.cfg.DayFirst, serials: t.Source() == decoder.SourceXLSX},
		amounts: amountParser{
			symbols:      m.cfg.CurrencySymbols,
			mode:         mode,
			currency:     m.cfg.CurrencyCode,
			numericCells: t.Source() == decoder.SourceXLSX,
		},
	}
}

func probeDecimalMode(t *decoder.Table, cols Columns) DecimalMode {
	var samples []string
	for row := range t.All() {
		values := row.Values()
		for _, i := range []int{cols.Amount, cols.Debit, cols.Credit} {
			if i >= 0 && i < len(values) {
				samples = append(samples, values[i])
			}
		}
	}
	dialect := sniffer.ProbeDialect(samples)
	switch {
	case dialect.Confidence == 0:
		return DecimalAuto
	case dialect.IsEuropeanFormat:
		return DecimalComma
	default:
		return DecimalPoint
	}
}

// TableMapper maps the rows of one table.
type TableMapper struct {
	columns Columns
	used    []bool
	dates   dateParser
	amounts amountParser
}

// Columns returns the resolved columns.
func (tm *TableMapper) Columns() Columns { return tm.columns }

// Map resolves one row. It never invents a value: a required field that is
// absent, empty or unparseable yields a *MappingError.
func (tm *TableMapper) Map(row decoder.Row) (Mapped, error) {
	values := row.Values()
	get := func(i int) string {
		if i < 0 || i >= len(values) {
			return ""
		}
		return strings.TrimSpace(values[i])
	}
	taken := make([]bool, len(values))
	copy(taken, tm.used)

	var (
		missing  []Field
		invalid  []Field
		problems []string
		out      = Mapped{Row: row.Number}
	)

	// Date
	if col := tm.columns.Date; col >= 0 {
		v := get(col)
		d, err := tm.dates.parse(v)
		switch {
		case v == "":
			missing = append(missing, FieldDate)
		case err != nil:
			invalid = append(invalid, FieldDate)
			problems = append(problems, fmt.Sprintf("invalid date %q", v))
		default:
			out.Date = d
		}
	} else if i, d, ok := tm.fallbackDate(values, taken); ok {
		taken[i] = true
		out.Date = d
	} else {
		missing = append(missing, FieldDate)
	}

	// Amount
	cents, found, problem := tm.amount(get)
	if !found && tm.columns.Amount < 0 && tm.columns.Debit < 0 && tm.columns.Credit < 0 {
		if i, c, ok := tm.fallbackAmount(values, taken); ok {
			taken[i] = true
			cents, found = c, true
		}
	}
	switch {
	case problem != "":
		invalid = append(invalid, FieldAmount)
		problems = append(problems, problem)
	case !found:
		missing = append(missing, FieldAmount)
	case cents == 0:
		invalid = append(invalid, FieldAmount)
		problems = append(problems, "amount is zero")
	default:
		out.AmountCents = cents
	}

	// Description
	if col := tm.columns.Description; col >= 0 {
		out.Description = normalizer.CleanDescription(get(col))
	} else {
		out.Description = tm.fallbackDescription(values, taken)
	}
	if out.Description == "" {
		missing = append(missing, FieldDescription)
	}

	if col := tm.columns.Category; col >= 0 {
		out.CategoryHint = normalizer.CleanDescription(get(col))
	}

	if len(missing) > 0 || len(problems) > 0 {
		slices.SortStableFunc(missing, func(a, b Field) int {
			return fieldRank(a) - fieldRank(b)
		})
		return Mapped{}, newMappingError(row.Number, missing, invalid, problems)
	}
	return out, nil
}

// amount reads the amount columns. A signed amount column is combined with
// an indicator column when one exists; otherwise separate debit and credit
// columns are netted, debit negative and credit positive.
func (tm *TableMapper) amount(get func(int) string) (cents int64, found bool, problem string) {
	if v := get(tm.columns.Amount); v != "" {
		c, err := tm.amounts.parse(v)
		if err != nil {
			return 0, false, fmt.Sprintf("invalid amount %q", v)
		}
		if negative, ok := parseIndicator(get(tm.columns.Indicator)); ok {
			c = abs(c)
			if negative {
				c = -c
			}
		}
		return c, true, ""
	}

	for _, side := range []struct {
		col  int
		sign int64
	}{{tm.columns.Debit, -1}, {tm.columns.Credit, 1}} {
		v := get(side.col)
		if v == "" {
			continue
		}
		c, err := tm.amounts.parse(v)
		if err != nil {
			return 0, false, fmt.Sprintf("invalid amount %q", v)
		}
		cents += side.sign * abs(c)
		found = true
	}
	return cents, found, ""
}

func (tm *TableMapper) fallbackDate(values []string, taken []bool) (int, time.Time, bool) {
	p := dateParser{dayFirst: tm.dates.dayFirst}
	for i, v := range values {
		if taken[i] || strings.TrimSpace(v) == "" {
			continue
		}
		if d, err := p.parse(v); err == nil {
			return i, d, true
		}
	}
	return -1, time.Time{}, false
}

// fallbackAmount prefers cells that look like money, with a separator or a
// sign, over bare integers such as document numbers.
func (tm *TableMapper) fallbackAmount(values []string, taken []bool) (int, int64, bool) {
	bare := -1
	var bareCents int64
	for i, v := range values {
		v = strings.TrimSpace(v)
		if taken[i] || v == "" {
			continue
		}
		c, err := tm.amounts.parse(v)
		if err != nil {
			continue
		}
		if strings.ContainsAny(v, ".,-+()") {
			return i, c, true
		}
		if bare < 0 {
			bare, bareCents = i, c
		}
	}
	if bare >= 0 {
		return bare, bareCents, true
	}
	return -1, 0, false
}

// fallbackDescription picks the longest remaining cell containing a letter
// that is neither a date nor an amount.
func (tm *TableMapper) fallbackDescription(values []string, taken []bool) string {
	best := ""
	for i, v := range values {
		v = normalizer.CleanDescription(v)
		if taken[i] || v == "" || !strings.ContainsFunc(v, unicode.IsLetter) {
			continue
		}
		if _, err := tm.dates.parse(v); err == nil {
			continue
		}
		if _, err := tm.amounts.parse(v); err == nil {
			continue
		}
		if len([]rune(v)) > len([]rune(best)) {
			best = v
		}
	}
	return best
}

func fieldRank(f Field) int {
	return slices.Index(resolveOrder, f)
}

// foldKey folds s into space separated words for alias comparison.
func foldKey(s string) string {
	return strings.Join(normalizer.FoldWords(s), " ")
}

// containsWords reports whether the words of alias appear contiguously in key.
func containsWords(key, alias string) bool {
	if alias == "" {
		return false
	}
	return key == alias ||
		strings.HasPrefix(key, alias+" ") ||
		strings.HasSuffix(key, " "+alias) ||
		strings.Contains(key, " "+alias+" ")
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
