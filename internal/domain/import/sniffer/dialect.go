package sniffer

import "strings"

// RegionalDialect represents the inferred number format of an amount column
type RegionalDialect struct {
	DecimalSeparator   rune    // '.' (US) or ',' (EU/BR)
	ThousandsSeparator rune    // ',' (US) or '.' (EU/BR)
	CurrencyHint       string  // "EUR", "USD", "BRL" if detected
	Confidence         float64 // 0.0-1.0 confidence score
	IsEuropeanFormat   bool    // Convenience flag: true if comma is decimal separator
}

// ProbeDialect analyzes sample amount values to infer the decimal separator.
// Values that are ambiguous on their own ("1.234") are decided by the others
// in the same column ("12,50"). Confidence stays 0 when no sample votes.
func ProbeDialect(amounts []string) *RegionalDialect {
	dialect := &RegionalDialect{
		DecimalSeparator:   '.',
		ThousandsSeparator: ',',
	}

	europeanHints := 0
	usHints := 0

	for _, val := range amounts {
		if strings.TrimSpace(val) == "" {
			continue
		}

		switch hint := analyzeAmountFormat(val); {
		case hint > 0:
			europeanHints++
		case hint < 0:
			usHints++
		}

		switch {
		case strings.Contains(val, "R$") || strings.Contains(val, "BRL"):
			dialect.CurrencyHint = "BRL"
		case strings.Contains(val, "€") || strings.Contains(val, "EUR"):
			dialect.CurrencyHint = "EUR"
		case strings.Contains(val, "$") && dialect.CurrencyHint == "":
			dialect.CurrencyHint = "USD"
		}
	}

	if europeanHints > usHints {
		dialect.DecimalSeparator = ','
		dialect.ThousandsSeparator = '.'
		dialect.IsEuropeanFormat = true
	}

	totalHints := europeanHints + usHints
	if totalHints > 0 {
		winningHints := europeanHints
		if usHints > europeanHints {
			winningHints = usHints
		}
		dialect.Confidence = float64(winningHints) / float64(totalHints)
	}

	return dialect
}

// analyzeAmountFormat returns: >0 for European, <0 for US, 0 for ambiguous
func analyzeAmountFormat(val string) int {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == ',' || r == '.' {
			return r
		}
		return -1
	}, val)

	if cleaned == "" {
		return 0
	}

	hasComma := strings.Contains(cleaned, ",")
	hasDot := strings.Contains(cleaned, ".")

	switch {
	case hasComma && hasDot:
		// Both present: last one is decimal separator
		if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
			return 1 // European: 1.234,56
		}
		return -1 // US: 1,234.56

	case hasComma:
		if strings.Count(cleaned, ",") > 1 {
			return -1 // 1,234,567 is US grouping
		}
		after := cleaned[strings.LastIndex(cleaned, ",")+1:]
		if len(after) == 3 {
			return 0 // 1,234 could go either way
		}
		return 1 // 12,5 or 12,50

	case hasDot:
		after := cleaned[strings.LastIndex(cleaned, ".")+1:]
		if strings.Count(cleaned, ".") > 1 {
			return 1 // 1.234.567 is European grouping
		}
		if len(after) != 3 {
			return -1 // 12.5 or 12.50
		}
		return 0
	}

	return 0
}
