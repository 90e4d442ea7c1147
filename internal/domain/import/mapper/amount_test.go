package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/ledger-core/pkg/money"
)

func TestAmountParser(t *testing.T) {
	cfg := DefaultConfig()
	auto := amountParser{symbols: cfg.CurrencySymbols, currency: money.BRL}

	tests := []struct {
		name string
		in   string
		mode DecimalMode
		want int64
	}{
		{"debit suffix", "45,90 DR", DecimalAuto, -4590},
		{"credit suffix", "5000,00 CR", DecimalAuto, 500000},
		{"single letter debit", "45,90 D", DecimalAuto, -4590},
		{"single letter credit", "45,90 C", DecimalAuto, 4590},
		{"brazilian with symbol", "R$ 1.234,56", DecimalAuto, 123456},
		{"brazilian negative", "-1.234,56", DecimalAuto, -123456},
		{"symbol then sign", "R$ -45,90", DecimalAuto, -4590},
		{"us grouping", "1,234.56", DecimalAuto, 123456},
		{"us dollar prefix", "US$ 5.00", DecimalAuto, 500},
		{"euro", "€ 12,00", DecimalAuto, 1200},
		{"parentheses", "(12.50)", DecimalAuto, -1250},
		{"trailing minus", "12.50-", DecimalAuto, -1250},
		{"leading plus", "+7,00", DecimalAuto, 700},
		{"one decimal digit", "12,5", DecimalAuto, 1250},
		{"integer", "300", DecimalAuto, 30000},
		{"non-breaking space", "1\u00a0234,00", DecimalAuto, 123400},
		{"repeated grouping", "1.234.567,89", DecimalAuto, 123456789},
		{"lone comma with three digits is thousands", "1,234", DecimalAuto, 123400},
		{"lone dot with three digits is thousands", "1.234", DecimalAuto, 123400},
		{"comma hint makes it decimal", "1,234", DecimalComma, 123},
		{"point hint makes it decimal", "1.234", DecimalPoint, 123},
		{"comma hint keeps dot grouping", "1.234", DecimalComma, 123400},
		{"leading zero is always decimal", "0,125", DecimalAuto, 13},
		{"rounds half away from zero", "-0,125", DecimalAuto, -13},
		{"rounds up", "10.005", DecimalPoint, 1001},
		{"rounds down", "10.004", DecimalPoint, 1000},
		{"scientific notation", "1.5E-2", DecimalAuto, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := auto
			p.mode = tt.mode
			got, err := p.parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAmountParser_NumericCells(t *testing.T) {
	p := amountParser{currency: money.BRL, numericCells: true}

	got, err := p.parse("1.234")
	require.NoError(t, err)
	assert.Equal(t, int64(123), got)

	got, err = p.parse("-1234.567")
	require.NoError(t, err)
	assert.Equal(t, int64(-123457), got)

	// Text cells in a workbook still use the separator rules.
	got, err = p.parse("1.234,56")
	require.NoError(t, err)
	assert.Equal(t, int64(123456), got)
}

func TestAmountParser_ZeroDecimalCurrency(t *testing.T) {
	p := amountParser{currency: money.JPY}
	got, err := p.parse("1.234")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), got)
}

func TestAmountParser_Invalid(t *testing.T) {
	p := amountParser{symbols: DefaultConfig().CurrencySymbols, currency: money.BRL}

	_, err := p.parse("")
	assert.ErrorIs(t, err, errEmptyAmount)

	for _, in := range []string{"abc", "-", "()", "1,2,3.4.5", "12a", "--5", "2024-01-05", "05/01/2024"} {
		t.Run(in, func(t *testing.T) {
			_, err := p.parse(in)
			assert.ErrorIs(t, err, errInvalidAmount)
		})
	}
}

func TestParseIndicator(t *testing.T) {
	tests := []struct {
		in       string
		negative bool
		ok       bool
	}{
		{"D", true, true},
		{"débito", true, true},
		{"Saída", true, true},
		{"C", false, true},
		{"Crédito", false, true},
		{"entrada", false, true},
		{"compra", false, false},
		{"", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			negative, ok := parseIndicator(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.negative, negative)
		})
	}
}
