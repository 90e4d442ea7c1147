package decoder

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf16"

	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/ledger-core/internal/domain/import/sniffer"
)

// preferredSheets are checked, case-insensitively, before falling back to
// the first sheet that has data.
var preferredSheets = []string{"transactions", "movimentos", "extrato", "lancamentos", "statement"}

// maxHeaderSearchRows bounds how deep into a sheet the header row may be.
const maxHeaderSearchRows = 20

// encryptionInfoName is the stream name, UTF-16LE encoded as it appears in a
// compound file directory, that marks an encrypted OOXML package.
var encryptionInfoName = utf16le("EncryptionInfo")

func decodeWorkbook(data []byte, passphrase string, headerRow int) (*Table, error) {
	if len(data) == 0 {
		return nil, malformed("empty file", nil)
	}

	opts := excelize.Options{RawCellValue: true}

	switch {
	case bytes.HasPrefix(data, cfbMagic):
		if !bytes.Contains(data, encryptionInfoName) {
			return nil, malformed("legacy binary workbooks are not supported", nil)
		}
		if passphrase == "" {
			return nil, &DecryptionError{Err: ErrPassphraseRequired}
		}
		opts.Password = passphrase
	case bytes.HasPrefix(data, zipMagic):
	default:
		return nil, malformed("not a spreadsheet workbook", nil)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data), opts)
	if err != nil {
		if opts.Password != "" {
			return nil, &DecryptionError{Err: errors.Join(ErrWrongPassphrase, err)}
		}
		return nil, malformed("unreadable workbook", err)
	}
	defer f.Close()

	sheet, rows, err := pickSheet(f)
	if err != nil {
		return nil, err
	}

	headerIdx := headerRow - 1
	if headerRow <= 0 {
		headerIdx = findHeaderRow(rows)
	}
	if headerIdx < 0 || headerIdx >= len(rows) || nonEmpty(rows[headerIdx]) < 2 {
		return nil, malformed("no recognizable header row", sniffer.ErrNoHeadersFound)
	}

	t := newTable(SourceXLSX, rows[headerIdx], rows[headerIdx+1:], nil)
	t.sheet = sheet
	t.layout = sniffer.HeaderFingerprint(t.headers)
	return t, nil
}

// pickSheet returns the first preferred sheet, or the first sheet with rows.
func pickSheet(f *excelize.File) (string, [][]string, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", nil, malformed("workbook has no sheets", nil)
	}

	ordered := make([]string, 0, len(sheets))
	for _, preferred := range preferredSheets {
		for _, s := range sheets {
			if strings.EqualFold(strings.TrimSpace(s), preferred) {
				ordered = append(ordered, s)
			}
		}
	}
	ordered = append(ordered, sheets...)

	for _, s := range ordered {
		rows, err := f.GetRows(s, excelize.Options{RawCellValue: true})
		if err != nil {
			return "", nil, malformed("unreadable sheet "+s, err)
		}
		if len(rows) > 0 && !allBlank(rows) {
			return s, rows, nil
		}
	}

	return "", nil, malformed("empty file", sniffer.ErrEmptyFile)
}

// findHeaderRow picks, within the first rows, the row with the most header
// keywords; rows need at least two non-empty cells and no date or amount
// cell to qualify. Without any keyword match the first qualifying row is the
// header.
func findHeaderRow(rows [][]string) int {
	best, bestScore, first := -1, 0, -1
	for i, row := range rows {
		if i >= maxHeaderSearchRows {
			break
		}
		if nonEmpty(row) < 2 || sniffer.HasValueCell(row) {
			continue
		}
		if first < 0 {
			first = i
		}
		if score := sniffer.ScoreHeader(row); score > bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 {
		return best
	}
	return first
}

func nonEmpty(row []string) int {
	n := 0
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

func allBlank(rows [][]string) bool {
	for _, r := range rows {
		if !blank(r) {
			return false
		}
	}
	return true
}

func utf16le(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, len(units)*2)
	for _, u := range units {
		out = append(out, byte(u), byte(u>>8))
	}
	return out
}
