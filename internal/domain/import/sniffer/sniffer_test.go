package sniffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectConfig(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		delimiter rune
		skip      int
		headers   []string
	}{
		{
			name:      "comma with header first",
			data:      "Data,Descricao,Valor\n2024-01-02,Padaria,-10.00\n",
			delimiter: ',',
			headers:   []string{"Data", "Descricao", "Valor"},
		},
		{
			name:      "semicolon with BOM",
			data:      "\uFEFFData;Descrição;Valor\r\n02/01/2024;Padaria;-10,00\r\n",
			delimiter: ';',
			headers:   []string{"Data", "Descrição", "Valor"},
		},
		{
			name:      "tab delimited",
			data:      "date\tdescription\tamount\n2024-01-02\tCoffee\t-3.50\n",
			delimiter: '\t',
			headers:   []string{"date", "description", "amount"},
		},
		{
			name:      "metadata lines before header",
			data:      "Extrato de conta\nConta: 12345\n\nData Lançamento;Estabelecimento;Valor (R$)\n10/02/2024;Loja;-45,90\n",
			delimiter: ';',
			skip:      3,
			headers:   []string{"Data Lançamento", "Estabelecimento", "Valor (R$)"},
		},
		{
			name:      "quoted comma in header",
			data:      "\"Valor, em R$\";Data;Historico\n1,00;2024-01-01;X\n",
			delimiter: ';',
			headers:   []string{"Valor, em R$", "Data", "Historico"},
		},
		{
			name:      "no keywords falls back to widest line",
			data:      "a|b|c\n1|2|3\n",
			delimiter: '|',
			headers:   []string{"a", "b", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := DetectConfig([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.delimiter, cfg.Delimiter)
			assert.Equal(t, tt.skip, cfg.SkipLines)
			assert.Equal(t, tt.headers, cfg.Headers)
			assert.Len(t, cfg.Fingerprint, 64)
		})
	}
}

func TestDetectConfig_HeaderOffset(t *testing.T) {
	data := "Banco X\nData;Historico;Valor\n01/01/2024;A;1,00\n"
	cfg, err := DetectConfig([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, len("Banco X\n"), cfg.HeaderOffset)
	assert.Equal(t, "Data;Historico;Valor", data[cfg.HeaderOffset:cfg.HeaderOffset+len("Data;Historico;Valor")])
}

func TestDetectConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"empty", "", ErrEmptyFile},
		{"whitespace only", "  \n\r\n", ErrEmptyFile},
		{"bom only", "\uFEFF", ErrEmptyFile},
		{"single column prose", "hello there\nthis is not a statement\n", ErrNoHeadersFound},
		{"records only", "2024-01-01;Padaria;-10,00\n2024-01-02;Mercado;-20,00\n", ErrNoHeadersFound},
		{"records only with keyword text", "05/01/2024;Pagamento saldo cartao;150.00\n", ErrNoHeadersFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DetectConfig([]byte(tt.data))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDetectConfigWithOptions(t *testing.T) {
	data := "x;y\nDate;Amount\n2024-01-01;1\n"

	cfg, err := DetectConfigWithOptions([]byte(data), &DetectOptions{HeaderRowIndex: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"Date", "Amount"}, cfg.Headers)

	_, err = DetectConfigWithOptions([]byte(data), &DetectOptions{HeaderRowIndex: 10})
	assert.ErrorIs(t, err, ErrNoHeadersFound)
}

func TestFingerprint_IgnoresCaseAndAccents(t *testing.T) {
	a := HeaderFingerprint([]string{"Data", "Descrição", "Valor"})
	b := HeaderFingerprint([]string{"DATA", "descricao", " valor "})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, HeaderFingerprint([]string{"Data", "Valor"}))
}

func TestScoreHeader(t *testing.T) {
	assert.Equal(t, 3, ScoreHeader([]string{"Data", "Descrição", "Valor"}))
	assert.Equal(t, 0, ScoreHeader([]string{"2024-01-01", "Padaria", "-10,00"}))
}

func TestProbeDialect(t *testing.T) {
	tests := []struct {
		name     string
		amounts  []string
		european bool
		currency string
	}{
		{"brazilian", []string{"R$ 1.234,56", "-45,90", "10,00"}, true, "BRL"},
		{"us", []string{"$1,234.56", "-45.90"}, false, "USD"},
		{"ambiguous thousands decided by neighbours", []string{"1.234", "12,50"}, true, ""},
		{"european grouping", []string{"1.234.567"}, true, ""},
		{"nothing to vote", []string{"", "100"}, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ProbeDialect(tt.amounts)
			assert.Equal(t, tt.european, d.IsEuropeanFormat)
			assert.Equal(t, tt.currency, d.CurrencyHint)
		})
	}
}

func TestLooksLikeValue(t *testing.T) {
	tests := []struct {
		cell string
		want bool
	}{
		{"2024-01-01", true},
		{"01/02/2024", true},
		{"2024-01-01T10:00:00", true},
		{"-10,00", true},
		{"R$ 1.234,56", true},
		{"(45.90)", true},
		{"120,00 D", true},
		{"45321", true},
		{"Data", false},
		{"Valor (R$)", false},
		{"Padaria", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.cell, func(t *testing.T) {
			assert.Equal(t, tt.want, LooksLikeValue(tt.cell))
		})
	}
}
