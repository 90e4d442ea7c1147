package mapper

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/ledger-core/internal/domain/import/normalizer"
)

var (
	errEmptyDate   = errors.New("empty date")
	errInvalidDate = errors.New("invalid date")
)

var (
	isoDate     = regexp.MustCompile(`^(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})(?:[T ].*)?$`)
	compactDate = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
	numericDate = regexp.MustCompile(`^(\d{1,2})[-/.](\d{1,2})[-/.](\d{2}|\d{4})(?:[T ].*)?$`)
	namedDate   = regexp.MustCompile(`^(\d{1,2})(?:\s*de)?[-/. ]+([a-z]+)\.?(?:\s*de)?[-/. ,]+(\d{2}|\d{4})$`)
	namedUSDate = regexp.MustCompile(`^([a-z]+)\.?\s+(\d{1,2}),?\s+(\d{4})$`)
	serialDate  = regexp.MustCompile(`^\d{1,7}(\.\d+)?$`)
)

// monthPrefixes maps the first three folded letters of English, Portuguese
// and Spanish month names to month numbers.
var monthPrefixes = map[string]time.Month{
	"jan": time.January, "ene": time.January,
	"fev": time.February, "feb": time.February,
	"mar": time.March,
	"abr": time.April, "apr": time.April,
	"mai": time.May, "may": time.May,
	"jun": time.June,
	"jul": time.July,
	"ago": time.August, "aug": time.August,
	"set": time.September, "sep": time.September,
	"out": time.October, "oct": time.October,
	"nov": time.November,
	"dez": time.December, "dec": time.December, "dic": time.December,
}

// Spreadsheet serials below this are too small to be a statement date
// (1954-10-03) and are more likely amounts or counters.
const minSerial = 20000

// dateParser converts date text into a calendar date at UTC midnight.
type dateParser struct {
	dayFirst bool
	serials  bool
}

func (p dateParser) parse(s string) (time.Time, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return time.Time{}, errEmptyDate
	}

	if m := isoDate.FindStringSubmatch(v); m != nil {
		return calendarDate(m[1], m[2], m[3])
	}
	if m := compactDate.FindStringSubmatch(v); m != nil {
		return calendarDate(m[1], m[2], m[3])
	}
	if m := numericDate.FindStringSubmatch(v); m != nil {
		first, _ := strconv.Atoi(m[1])
		second, _ := strconv.Atoi(m[2])
		dayFirst := p.dayFirst
		switch {
		case first > 12:
			dayFirst = true
		case second > 12:
			dayFirst = false
		}
		if dayFirst {
			return calendarDate(m[3], m[2], m[1])
		}
		return calendarDate(m[3], m[1], m[2])
	}

	folded := normalizer.Fold(v)
	if m := namedDate.FindStringSubmatch(folded); m != nil {
		month, ok := monthFromName(m[2])
		if !ok {
			return time.Time{}, errInvalidDate
		}
		return calendarDate(m[3], strconv.Itoa(int(month)), m[1])
	}
	if m := namedUSDate.FindStringSubmatch(folded); m != nil {
		month, ok := monthFromName(m[1])
		if !ok {
			return time.Time{}, errInvalidDate
		}
		return calendarDate(m[3], strconv.Itoa(int(month)), m[2])
	}

	if p.serials && serialDate.MatchString(v) {
		serial, err := strconv.ParseFloat(v, 64)
		if err != nil || serial < minSerial {
			return time.Time{}, errInvalidDate
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, errInvalidDate
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}

	return time.Time{}, errInvalidDate
}

func monthFromName(name string) (time.Month, bool) {
	if len(name) < 3 {
		return 0, false
	}
	month, ok := monthPrefixes[name[:3]]
	return month, ok
}

// calendarDate builds a date and rejects values time.Date would normalize,
// such as 2023-02-29 or month 13.
func calendarDate(year, month, day string) (time.Time, error) {
	y, err1 := strconv.Atoi(year)
	m, err2 := strconv.Atoi(month)
	d, err3 := strconv.Atoi(day)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, errInvalidDate
	}
	if len(year) == 2 {
		y += 2000
	}

	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, errInvalidDate
	}
	return t, nil
}
