package mapper

import "github.com/FACorreiaa/ledger-core/pkg/money"

// Field names a canonical transaction attribute a column can feed.
type Field string

const (
	FieldDate        Field = "date"
	FieldDescription Field = "description"
	FieldAmount      Field = "amount"
	FieldDebit       Field = "debit"
	FieldCredit      Field = "credit"
	FieldIndicator   Field = "indicator"
	FieldCategory    Field = "category"
)

// resolveOrder is the order fields claim headers in. Earlier fields win a
// header that matches several of them.
var resolveOrder = []Field{
	FieldDate, FieldDescription, FieldAmount, FieldDebit, FieldCredit, FieldIndicator, FieldCategory,
}

// DecimalMode tells the amount parser which separator is the decimal one.
type DecimalMode int

const (
	// DecimalAuto infers the separator from the amounts of the table.
	DecimalAuto DecimalMode = iota
	// DecimalComma reads "1.234,56" style amounts.
	DecimalComma
	// DecimalPoint reads "1,234.56" style amounts.
	DecimalPoint
)

// Config is the immutable configuration of a Mapper. Aliases are listed in
// priority order and matched case- and accent-insensitively.
type Config struct {
	Aliases map[Field][]string

	// Ignored headers are never claimed by value-shape fallback, so a
	// running balance is not mistaken for the amount.
	Ignored []string

	// CurrencySymbols are stripped from amount cells, longest first.
	CurrencySymbols []string

	// DayFirst decides dates such as 03/04/2024 where both parts could be
	// a month.
	DayFirst bool

	DecimalMode DecimalMode

	// CurrencyCode selects the minor unit amounts are rounded to.
	CurrencyCode string
}

// DefaultConfig returns aliases for Portuguese, English and Spanish bank
// exports.
func DefaultConfig() Config {
	return Config{
		Aliases: map[Field][]string{
			FieldDate: {
				"data", "date", "data lancamento", "data do lancamento", "data mov", "data movimento",
				"data transacao", "data da compra", "transaction date", "posted date", "posting date",
				"fecha", "fecha operacion",
			},
			FieldDescription: {
				"descricao", "description", "historico", "estabelecimento", "descricao do lancamento",
				"memo", "merchant", "payee", "detalhes", "details", "narrative", "descripcion", "concepto",
			},
			FieldAmount: {
				"valor", "valor (r$)", "valor r$", "valor em r$", "amount", "value", "montante", "quantia",
				"importe", "monto",
			},
			FieldDebit: {
				"debito", "debit", "debitos", "saida", "saidas", "withdrawal", "withdrawals", "money out",
				"paid out", "cargo", "cargos",
			},
			FieldCredit: {
				"credito", "credit", "creditos", "entrada", "entradas", "deposit", "deposits", "money in",
				"paid in", "abono", "abonos",
			},
			FieldIndicator: {
				"d/c", "c/d", "dc", "dr/cr", "cr/dr", "debito/credito", "credito/debito", "natureza",
				"indicador", "tipo", "type", "tipo lancamento", "tipo de lancamento",
			},
			FieldCategory: {
				"categoria", "category", "categoria sugerida",
			},
		},
		Ignored:         []string{"saldo", "balance", "saldo disponivel", "running balance"},
		CurrencySymbols: []string{"R$", "US$", "$", "€", "£", "¥", "BRL", "USD", "EUR", "GBP"},
		DayFirst:        true,
		DecimalMode:     DecimalAuto,
		CurrencyCode:    money.DefaultCurrency,
	}
}
