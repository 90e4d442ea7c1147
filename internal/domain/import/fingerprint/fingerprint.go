// Package fingerprint computes the deterministic dedupe identity of a transaction.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// version prefixes the serialization so the scheme can evolve without
// colliding with digests produced by an older layout.
const version = "v1"

// nullToken stands for an absent account. It can never be produced by a
// length-prefixed field, which always starts with a digit.
const nullToken = "~"

// Key holds the fields that identify a transaction for dedupe purposes.
type Key struct {
	UserID      uuid.UUID
	AccountID   *uuid.UUID
	Date        time.Time
	Description string
	AmountCents int64
	Source      string
	// Occurrence is the zero-based count of earlier rows in the same batch
	// with identical date, normalized description and amount.
	Occurrence int
}

// Compute returns the hex-encoded SHA-256 digest of the canonical
// serialization of k. The result is always 64 characters long.
func Compute(k Key) string {
	var b strings.Builder
	b.WriteString(version)
	writeField(&b, k.UserID.String())
	if k.AccountID == nil {
		b.WriteByte('|')
		b.WriteString(nullToken)
	} else {
		writeField(&b, k.AccountID.String())
	}
	writeField(&b, k.Date.Format(time.DateOnly))
	writeField(&b, NormalizeDescription(k.Description))
	writeField(&b, strconv.FormatInt(k.AmountCents, 10))
	writeField(&b, strings.ToLower(k.Source))
	writeField(&b, strconv.Itoa(k.Occurrence))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// writeField appends "|<len>:<value>". The length prefix keeps the encoding
// unambiguous even when a value contains the delimiter.
func writeField(b *strings.Builder, value string) {
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(len(value)))
	b.WriteByte(':')
	b.WriteString(value)
}

// NormalizeDescription folds a description into its dedupe form: Unicode NFC,
// lower case, with runs of whitespace collapsed to one space and trimmed.
func NormalizeDescription(s string) string {
	s = norm.NFC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = b.Len() > 0
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// ContentKey identifies rows that are indistinguishable within one batch.
// It is used to derive Occurrence.
func ContentKey(date time.Time, description string, amountCents int64) string {
	return date.Format(time.DateOnly) + "\x00" + NormalizeDescription(description) + "\x00" + strconv.FormatInt(amountCents, 10)
}

// Counter assigns Occurrence values to rows in batch order.
type Counter struct {
	seen map[string]int
}

// NewCounter returns an empty occurrence counter.
func NewCounter() *Counter {
	return &Counter{seen: make(map[string]int)}
}

// Next returns how many identical rows were seen before this one and records it.
func (c *Counter) Next(date time.Time, description string, amountCents int64) int {
	key := ContentKey(date, description, amountCents)
	n := c.seen[key]
	c.seen[key] = n + 1
	return n
}
