// Package sniffer provides automatic detection of delimited text layouts.
// It identifies delimiters and header rows, fingerprints header layouts, and
// infers the regional number format of amount columns.
package sniffer

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/FACorreiaa/ledger-core/internal/domain/import/normalizer"
)

// Common bank statement header keywords (multi-language), already folded.
var headerKeywords = []string{
	// Portuguese
	"data", "data mov", "data lancamento", "descricao", "historico", "estabelecimento",
	"lancamento", "debito", "credito", "valor", "saldo", "categoria",
	// English
	"date", "description", "amount", "debit", "credit", "balance", "category", "merchant", "payee",
	// Spanish
	"fecha", "descripcion", "importe", "cargo", "abono",
}

var (
	dateLike   = regexp.MustCompile(`^\d{1,4}[-/.]\d{1,2}[-/.]\d{1,4}(?:[t ].*)?$`)
	amountLike = regexp.MustCompile(`^[-+(]?(?:r\$|us\$|\$|€|£)?\s*[-+]?\d[\d.,\s]*\)?(?:\s*(?:d|c|dr|cr))?$`)
)

// maxHeaderSearchLines bounds how far into the file the header row may be.
const maxHeaderSearchLines = 20

// FileConfig holds the detected configuration for a delimited file
type FileConfig struct {
	Delimiter    rune     // The field delimiter (';', ',', '\t', '|')
	SkipLines    int      // Number of metadata lines before headers
	HeaderOffset int      // Byte offset of the header line in the input
	Headers      []string // Detected header names
	Fingerprint  string   // SHA256 hash of normalized headers
}

// DetectOptions allows callers to override header row detection.
type DetectOptions struct {
	// HeaderRowIndex is a 0-based index for the header row. Set to -1 to auto-detect.
	HeaderRowIndex int
}

var (
	ErrEmptyFile        = errors.New("file is empty")
	ErrNoHeadersFound   = errors.New("could not find data headers")
	ErrInvalidDelimiter = errors.New("could not detect valid delimiter")
)

// DetectConfig analyzes a delimited file and returns its configuration
func DetectConfig(data []byte) (*FileConfig, error) {
	return DetectConfigWithOptions(data, nil)
}

// DetectConfigWithOptions analyzes a delimited file with optional overrides.
func DetectConfigWithOptions(data []byte, opts *DetectOptions) (*FileConfig, error) {
	if len(strings.TrimSpace(strings.TrimPrefix(string(data), "\uFEFF"))) == 0 {
		return nil, ErrEmptyFile
	}

	lines := strings.Split(string(data), "\n")

	var (
		delimiter rune
		skipLines int
		err       error
	)
	if opts != nil && opts.HeaderRowIndex >= 0 {
		if opts.HeaderRowIndex >= len(lines) {
			return nil, ErrNoHeadersFound
		}
		skipLines = opts.HeaderRowIndex
		line := cleanLine(lines[skipLines], skipLines == 0)
		delimiter, _ = detectDelimiter(line)
		if delimiter == 0 {
			return nil, ErrInvalidDelimiter
		}
	} else {
		delimiter, skipLines, err = findHeaderRow(lines)
		if err != nil {
			return nil, err
		}
	}

	headerLine := cleanLine(lines[skipLines], skipLines == 0)
	reader := csv.NewReader(strings.NewReader(headerLine))
	reader.Comma = delimiter
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		return nil, ErrNoHeadersFound
	}

	nonEmpty := 0
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
		if headers[i] != "" {
			nonEmpty++
		}
	}
	if nonEmpty < 2 {
		return nil, ErrNoHeadersFound
	}

	offset := 0
	for i := 0; i < skipLines; i++ {
		offset += len(lines[i]) + 1
	}

	return &FileConfig{
		Delimiter:    delimiter,
		SkipLines:    skipLines,
		HeaderOffset: offset,
		Headers:      headers,
		Fingerprint:  HeaderFingerprint(headers),
	}, nil
}

// ScoreHeader counts how many header keywords appear in the cells of a
// candidate header row. Workbook decoding uses it to pick the header row.
func ScoreHeader(cells []string) int {
	score := 0
	for _, cell := range cells {
		folded := normalizer.Fold(cell)
		if folded == "" {
			continue
		}
		for _, kw := range headerKeywords {
			if strings.Contains(folded, kw) {
				score++
				break
			}
		}
	}
	return score
}

// LooksLikeValue reports whether a cell reads as a date or an amount, which
// a header name never does.
func LooksLikeValue(cell string) bool {
	v := strings.ToLower(strings.TrimSpace(cell))
	if v == "" {
		return false
	}
	return dateLike.MatchString(v) || amountLike.MatchString(v)
}

// HasValueCell reports whether any cell of a candidate header row looks like
// data. Such a row is a record, so it cannot be the header.
func HasValueCell(cells []string) bool {
	for _, c := range cells {
		if LooksLikeValue(strings.Trim(strings.TrimSpace(c), `"`)) {
			return true
		}
	}
	return false
}

// findHeaderRow locates the header row and its delimiter. Lines holding a
// date or amount cell are records and never qualify.
func findHeaderRow(lines []string) (rune, int, error) {
	// Track the best candidate among lines with no keywords (fallback)
	fallbackIndex := -1
	fallbackDelimiter := rune(0)
	fallbackCount := 0

	// Track the best candidate among lines WITH keywords (preferred)
	keywordIndex := -1
	keywordDelimiter := rune(0)
	keywordScore := 0
	keywordCount := 0

	for i, line := range lines {
		if i >= maxHeaderSearchLines {
			break
		}

		line = cleanLine(line, i == 0)
		if line == "" {
			continue
		}

		delimiter, count := detectDelimiter(line)
		if count < 1 {
			continue
		}

		cells := strings.Split(line, string(delimiter))
		if HasValueCell(cells) {
			continue
		}

		keywordMatches := ScoreHeader(cells)
		if keywordMatches > 0 {
			// Real headers have many columns and several keywords; metadata
			// lines such as "Conta: 123; Agencia: 9" have few of both.
			score := count*10 + keywordMatches
			if keywordIndex == -1 || score > keywordScore {
				keywordScore = score
				keywordCount = count
				keywordDelimiter = delimiter
				keywordIndex = i
			}
		} else if count > fallbackCount {
			fallbackCount = count
			fallbackDelimiter = delimiter
			fallbackIndex = i
		}
	}

	if keywordIndex >= 0 && keywordCount >= 1 {
		return keywordDelimiter, keywordIndex, nil
	}

	if fallbackIndex >= 0 && fallbackCount >= 2 {
		return fallbackDelimiter, fallbackIndex, nil
	}

	return 0, 0, ErrNoHeadersFound
}

func cleanLine(line string, firstLine bool) string {
	line = strings.TrimRight(line, "\r")
	if firstLine {
		line = strings.TrimPrefix(line, "\uFEFF")
	}
	return strings.TrimSpace(line)
}

func detectDelimiter(line string) (rune, int) {
	delimiters := []rune{';', '\t', ',', '|'}
	bestDelimiter := rune(0)
	bestCount := 0
	for _, d := range delimiters {
		count := countOutsideQuotes(line, d)
		if count > bestCount {
			bestCount = count
			bestDelimiter = d
		}
	}
	return bestDelimiter, bestCount
}

// countOutsideQuotes counts delimiter occurrences that are not inside a
// double-quoted field, so "Valor, em R$" does not vote for a comma.
func countOutsideQuotes(line string, d rune) int {
	count := 0
	quoted := false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == d && !quoted:
			count++
		}
	}
	return count
}

// HeaderFingerprint creates a stable hash from header names, ignoring case,
// accents and punctuation. Repeated statements from one bank share it.
func HeaderFingerprint(headers []string) string {
	var normalized []string
	for _, h := range headers {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, normalizer.Fold(h))
		if clean != "" {
			normalized = append(normalized, clean)
		}
	}

	joined := strings.Join(normalized, "|")
	hash := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(hash[:])
}
