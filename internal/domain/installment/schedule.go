package installment

import "time"

// AddMonths returns date moved forward by months, clamped to the last day of
// the target month: 31 Jan + 1 month is 29 Feb in a leap year. The result is
// a UTC calendar date.
func AddMonths(date time.Time, months int) time.Time {
	y, m, d := date.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	return time.Date(first.Year(), first.Month(), min(d, last), 0, 0, 0, 0, time.UTC)
}

// Schedule returns the due dates of count installments starting at start and
// spaced intervalMonths apart. Each date is computed from start, so a
// clamped month never shifts the ones after it.
func Schedule(start time.Time, count, intervalMonths int) []time.Time {
	dates := make([]time.Time, count)
	for k := range dates {
		dates[k] = AddMonths(start, k*intervalMonths)
	}
	return dates
}
