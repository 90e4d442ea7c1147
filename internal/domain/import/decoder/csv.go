package decoder

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/FACorreiaa/ledger-core/internal/domain/import/sniffer"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func decodeDelimited(data []byte, headerRow int) (*Table, error) {
	text, err := normalizeText(data)
	if err != nil {
		return nil, malformed("unreadable text encoding", err)
	}

	var cfg *sniffer.FileConfig
	if headerRow > 0 {
		cfg, err = sniffer.DetectConfigWithOptions(text, &sniffer.DetectOptions{HeaderRowIndex: headerRow - 1})
	} else {
		cfg, err = sniffer.DetectConfig(text)
	}
	if err != nil {
		switch {
		case errors.Is(err, sniffer.ErrEmptyFile):
			return nil, malformed("empty file", err)
		default:
			return nil, malformed("no recognizable header row", err)
		}
	}

	reader := csv.NewReader(bytes.NewReader(text[cfg.HeaderOffset:]))
	reader.Comma = cfg.Delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, malformed("unreadable header row", err)
	}
	lastLine, _ := reader.FieldPos(len(header) - 1)

	// encoding/csv drops empty lines, so positions come from FieldPos: each
	// gap between records counts as one blank row per skipped line.
	var (
		records [][]string
		numbers []int
		number  int
	)
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, malformed("unreadable record", err)
		}
		start, _ := reader.FieldPos(0)
		number += start - lastLine
		lastLine, _ = reader.FieldPos(len(rec) - 1)
		records = append(records, rec)
		numbers = append(numbers, number)
	}

	t := newTable(SourceCSV, cfg.Headers, records, numbers)
	t.layout = cfg.Fingerprint
	t.delimiter = cfg.Delimiter
	return t, nil
}

// normalizeText strips a UTF-8 byte order mark and converts Windows-1252
// (a superset of Latin-1 used by many bank exports) to UTF-8.
func normalizeText(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data, nil
	}
	return charmap.Windows1252.NewDecoder().Bytes(data)
}
