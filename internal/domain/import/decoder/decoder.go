// Package decoder turns raw statement files into ordered rows of
// header-to-text fields. It understands delimited text (any of ; , tab |) and
// XLSX workbooks, including workbooks encrypted with an open password.
package decoder

import (
	"bytes"
	"fmt"
	"iter"
	"strconv"
	"strings"
)

// SourceType identifies the file format of an import.
type SourceType string

const (
	SourceCSV  SourceType = "csv"
	SourceXLSX SourceType = "xlsx"
)

// ParseSourceType accepts the usual spellings of a source type.
func ParseSourceType(s string) (SourceType, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "csv", "txt", "tsv":
		return SourceCSV, nil
	case "xlsx", "xlsm", "excel":
		return SourceXLSX, nil
	case "":
		return "", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedSource, s)
}

var (
	zipMagic = []byte("PK\x03\x04")
	// Compound File Binary container; encrypted OOXML workbooks are wrapped in one.
	cfbMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Sniff guesses the source type from the leading bytes of the file.
func Sniff(data []byte) SourceType {
	if bytes.HasPrefix(data, zipMagic) || bytes.HasPrefix(data, cfbMagic) {
		return SourceXLSX
	}
	return SourceCSV
}

// Options control decoding of one file.
type Options struct {
	// SourceType is the declared format. When empty it is sniffed.
	SourceType SourceType
	// Passphrase opens encrypted workbooks. Ignored for delimited text.
	Passphrase string
	// HeaderRow is the 1-based line (or sheet row) holding the headers.
	// Zero detects it.
	HeaderRow int
}

// Field is one cell of a row, keyed by its column header.
type Field struct {
	Header string
	Value  string
}

// Row is one data record. Number is its 1-based position after the header
// row in the source. Blank lines are skipped but still counted, so Number
// points at the line a user sees in the file.
type Row struct {
	Number int
	Fields []Field
}

// Get returns the value under header, matched exactly.
func (r Row) Get(header string) (string, bool) {
	for _, f := range r.Fields {
		if f.Header == header {
			return f.Value, true
		}
	}
	return "", false
}

// Values returns the cell values in column order.
func (r Row) Values() []string {
	values := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		values[i] = f.Value
	}
	return values
}

// Table is a fully decoded file. Iterating it is cheap and can be repeated.
type Table struct {
	source    SourceType
	headers   []string
	records   [][]string
	numbers   []int
	layout    string
	delimiter rune
	sheet     string
}

// Source reports the format the table was decoded from.
func (t *Table) Source() SourceType { return t.source }

// Headers returns the unique column headers in order.
func (t *Table) Headers() []string { return append([]string(nil), t.headers...) }

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.records) }

// Layout returns a stable hash of the header names, useful to recognise
// repeated statements from the same bank.
func (t *Table) Layout() string { return t.layout }

// Delimiter returns the detected delimiter for delimited text, 0 otherwise.
func (t *Table) Delimiter() rune { return t.delimiter }

// Sheet returns the worksheet name for workbooks, "" otherwise.
func (t *Table) Sheet() string { return t.sheet }

// All yields the rows in source order. Each call starts from the first row.
func (t *Table) All() iter.Seq[Row] {
	return func(yield func(Row) bool) {
		for i, rec := range t.records {
			if !yield(t.row(i, rec)) {
				return
			}
		}
	}
}

// Rows materializes every row.
func (t *Table) Rows() []Row {
	rows := make([]Row, 0, len(t.records))
	for row := range t.All() {
		rows = append(rows, row)
	}
	return rows
}

func (t *Table) row(i int, rec []string) Row {
	fields := make([]Field, len(t.headers))
	for c, h := range t.headers {
		v := ""
		if c < len(rec) {
			v = rec[c]
		}
		fields[c] = Field{Header: h, Value: v}
	}
	return Row{Number: t.numbers[i], Fields: fields}
}

// Decode parses data into a Table. Decoding is all-or-nothing: a malformed or
// undecryptable input returns an error and no rows.
func Decode(data []byte, opts Options) (*Table, error) {
	source := opts.SourceType
	if source == "" {
		source = Sniff(data)
	}

	switch source {
	case SourceCSV:
		return decodeDelimited(data, opts.HeaderRow)
	case SourceXLSX:
		return decodeWorkbook(data, opts.Passphrase, opts.HeaderRow)
	default:
		return nil, malformed(string(source), ErrUnsupportedSource)
	}
}

// newTable normalizes headers and pads or extends records so every record
// has exactly one value per header. numbers holds the source position of each
// record; nil numbers them consecutively.
func newTable(source SourceType, headers []string, records [][]string, numbers []int) *Table {
	width := len(headers)
	for _, rec := range records {
		width = max(width, len(rec))
	}

	unique := make([]string, width)
	seen := make(map[string]int, width)
	for i := range width {
		h := ""
		if i < len(headers) {
			h = strings.TrimSpace(headers[i])
		}
		if h == "" {
			h = "column_" + strconv.Itoa(i+1)
		}
		seen[h]++
		if n := seen[h]; n > 1 {
			h = h + "_" + strconv.Itoa(n)
		}
		unique[i] = h
	}

	kept := make([][]string, 0, len(records))
	keptNumbers := make([]int, 0, len(records))
	for i, rec := range records {
		if blank(rec) {
			continue
		}
		kept = append(kept, rec)
		if numbers != nil {
			keptNumbers = append(keptNumbers, numbers[i])
		} else {
			keptNumbers = append(keptNumbers, i+1)
		}
	}

	return &Table{source: source, headers: unique, records: kept, numbers: keptNumbers}
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
