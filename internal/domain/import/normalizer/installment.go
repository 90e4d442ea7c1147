package normalizer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// InstallmentMarker is an "installment k of n" annotation found in a
// statement description, e.g. "LOJA X (Parcela 01 de 04)" or "LOJA X (10/12)".
type InstallmentMarker struct {
	Base    string // description with the marker removed
	Current int    // 1-based installment number on this row
	Total   int
}

var installmentPatterns = []*regexp.Regexp{
	// "(Parcela 01 de 04)", "Parcela 1/4", "PARC 03/06", "parc. 2 de 10"
	regexp.MustCompile(`(?i)\(?\s*\b(?:parcela|parc\.?)\s*(\d{1,3})\s*(?:de|/)\s*(\d{1,3})\s*\)?\s*$`),
	// "(10/12)" at the end of the description
	regexp.MustCompile(`\(\s*(\d{1,3})\s*/\s*(\d{1,3})\s*\)\s*$`),
}

// ParseInstallmentMarker looks for an installment marker at the end of the
// description. Markers where current is outside 1..total, or total < 2, are
// ignored so day/month fragments are not mistaken for installments.
func ParseInstallmentMarker(description string) (InstallmentMarker, bool) {
	for _, re := range installmentPatterns {
		m := re.FindStringSubmatchIndex(description)
		if m == nil {
			continue
		}
		current, err1 := strconv.Atoi(description[m[2]:m[3]])
		total, err2 := strconv.Atoi(description[m[4]:m[5]])
		if err1 != nil || err2 != nil || total < 2 || current < 1 || current > total {
			continue
		}
		base := CleanDescription(strings.TrimRight(description[:m[0]], " -–"))
		if base == "" {
			continue
		}
		return InstallmentMarker{Base: base, Current: current, Total: total}, true
	}
	return InstallmentMarker{}, false
}

// InstallmentDescription renders the description of installment k of n.
func InstallmentDescription(base string, k, n int) string {
	return fmt.Sprintf("%s (%d/%d)", CleanDescription(base), k, n)
}
