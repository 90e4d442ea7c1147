package mapper

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/ledger-core/internal/domain/import/normalizer"
	"github.com/FACorreiaa/ledger-core/pkg/money"
)

var (
	errEmptyAmount   = errors.New("empty amount")
	errInvalidAmount = errors.New("invalid amount")
)

var (
	// plainNumber is how spreadsheet engines serialize numeric cells.
	plainNumber = regexp.MustCompile(`^\d+(\.\d+)?([eE][-+]?\d+)?$`)
	digitsOnly  = regexp.MustCompile(`^[0-9.,']+$`)
)

// amountParser converts amount text into signed minor units.
type amountParser struct {
	symbols  []string
	mode     DecimalMode
	currency string
	// numericCells is set for workbook tables, where a bare "1.234" is a
	// number cell and the dot is always decimal.
	numericCells bool
}

// parse returns the rounded minor units of s. Rounding is half away from
// zero at the currency fraction.
func (p amountParser) parse(s string) (int64, error) {
	d, err := p.parseDecimal(s)
	if err != nil {
		return 0, err
	}
	return money.MinorUnits(d, p.currency), nil
}

func (p amountParser) parseDecimal(s string) (decimal.Decimal, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "").Replace(v)
	if v == "" {
		return decimal.Zero, errEmptyAmount
	}

	for _, sym := range p.symbols {
		v = strings.ReplaceAll(v, strings.ToUpper(sym), "")
	}

	negative := false
	switch {
	case strings.HasSuffix(v, "DR"):
		negative, v = true, strings.TrimSuffix(v, "DR")
	case strings.HasSuffix(v, "CR"):
		v = strings.TrimSuffix(v, "CR")
	case strings.HasSuffix(v, "D"):
		negative, v = true, strings.TrimSuffix(v, "D")
	case strings.HasSuffix(v, "C"):
		v = strings.TrimSuffix(v, "C")
	}

	if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") {
		negative = !negative
		v = v[1 : len(v)-1]
	}
	switch {
	case strings.HasPrefix(v, "-"):
		negative = !negative
		v = v[1:]
	case strings.HasSuffix(v, "-"):
		negative = !negative
		v = v[:len(v)-1]
	case strings.HasPrefix(v, "+"):
		v = v[1:]
	}

	if v == "" {
		return decimal.Zero, errInvalidAmount
	}

	var normalized string
	switch {
	case p.numericCells && plainNumber.MatchString(v):
		normalized = v
	case strings.ContainsAny(v, "E"):
		if !plainNumber.MatchString(v) {
			return decimal.Zero, errInvalidAmount
		}
		normalized = v
	case digitsOnly.MatchString(v) && strings.ContainsAny(v, "0123456789"):
		normalized = normalizeSeparators(strings.ReplaceAll(v, "'", ""), p.mode)
	default:
		return decimal.Zero, errInvalidAmount
	}

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, errInvalidAmount
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// normalizeSeparators rewrites digits with ',' and '.' into a plain decimal
// with a '.' separator. When both separators appear the last one is the
// decimal separator. A single separator followed by exactly three digits is a
// thousands separator unless mode names it the decimal one.
func normalizeSeparators(v string, mode DecimalMode) string {
	lastComma := strings.LastIndex(v, ",")
	lastDot := strings.LastIndex(v, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			return strings.ReplaceAll(strings.ReplaceAll(v, ".", ""), ",", ".")
		}
		return strings.ReplaceAll(v, ",", "")
	case lastComma >= 0:
		return resolveLone(v, ",", mode == DecimalComma)
	case lastDot >= 0:
		return resolveLone(v, ".", mode == DecimalPoint)
	}
	return v
}

func resolveLone(v, sep string, sepIsDecimal bool) string {
	if strings.Count(v, sep) > 1 {
		return strings.ReplaceAll(v, sep, "")
	}
	i := strings.Index(v, sep)
	intPart, frac := v[:i], v[i+1:]
	if len(frac) == 3 && !sepIsDecimal && intPart != "" && intPart != "0" {
		return intPart + frac
	}
	if intPart == "" {
		intPart = "0"
	}
	if frac == "" {
		return intPart
	}
	return intPart + "." + frac
}

// parseIndicator reads a debit/credit indicator cell. ok is false when the
// value is not recognised.
func parseIndicator(s string) (negative bool, ok bool) {
	switch strings.Trim(normalizer.Fold(s), ".") {
	case "d", "db", "dr", "deb", "debito", "debit", "saida", "out", "despesa", "-":
		return true, true
	case "c", "cr", "cred", "credito", "credit", "entrada", "in", "receita", "+":
		return false, true
	}
	return false, false
}
