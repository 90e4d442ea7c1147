package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/ledger-core/internal/domain/categorization"
	"github.com/FACorreiaa/ledger-core/internal/domain/import/decoder"
	"github.com/FACorreiaa/ledger-core/internal/domain/import/fingerprint"
	"github.com/FACorreiaa/ledger-core/internal/domain/import/mapper"
	"github.com/FACorreiaa/ledger-core/internal/domain/import/normalizer"
	"github.com/FACorreiaa/ledger-core/internal/domain/installment"
	"github.com/FACorreiaa/ledger-core/internal/domain/ledger/repository"
)

// installmentNamespace scopes the deterministic ids of installment groups
// projected from imported rows.
var installmentNamespace = uuid.MustParse("6f1c2b7e-3d4a-5e8f-9a0b-1c2d3e4f5a6b")

// RowKind classifies a decoded row before anything is written.
type RowKind int

const (
	// RowMapped rows become one or more transactions.
	RowMapped RowKind = iota
	// RowMappingFailed rows go to the review queue with their raw cells.
	RowMappingFailed
)

func (k RowKind) String() string {
	switch k {
	case RowMapped:
		return "mapped"
	case RowMappingFailed:
		return "mapping_failed"
	}
	return "unknown"
}

// RowResult is the planned write for one source row.
type RowResult struct {
	Kind   RowKind
	Row    int
	Raw    []repository.RawField
	Reason string

	// Set for RowMapped. Group is non-nil when an installment marker was
	// expanded into Transactions.
	Group        *repository.InstallmentGroup
	Transactions []repository.Transaction
}

// planInput carries everything planRows needs besides the rows.
type planInput struct {
	UserID             uuid.UUID
	AccountID          *uuid.UUID
	Source             repository.Source
	ExpandInstallments bool
	// Resolver is optional.
	Resolver *categorization.Resolver
}

// planRows maps and fingerprints every row of t in source order. It performs
// no I/O; ids are assigned but nothing references a batch yet.
func planRows(t *decoder.Table, tm *mapper.TableMapper, in planInput) []RowResult {
	counter := fingerprint.NewCounter()
	results := make([]RowResult, 0, t.Len())

	for row := range t.All() {
		m, err := tm.Map(row)
		if err != nil {
			results = append(results, RowResult{
				Kind:   RowMappingFailed,
				Row:    row.Number,
				Raw:    rawFields(row),
				Reason: mappingReason(err),
			})
			continue
		}

		var categoryID *uuid.UUID
		if in.Resolver != nil {
			categoryID = in.Resolver.Resolve(m.CategoryHint, m.Description)
		}

		if in.ExpandInstallments {
			if marker, ok := normalizer.ParseInstallmentMarker(m.Description); ok {
				results = append(results, expandInstallments(m, marker, categoryID, counter, in))
				continue
			}
		}

		occurrence := counter.Next(m.Date, m.Description, m.AmountCents)
		results = append(results, RowResult{
			Kind: RowMapped,
			Row:  row.Number,
			Transactions: []repository.Transaction{
				newTransaction(in, m.Date, m.Description, m.AmountCents, categoryID, occurrence),
			},
		})
	}
	return results
}

// expandInstallments turns a row carrying "installment k of n" into members
// k..n dated month by month from the row's own date, so the row's member keeps
// its statement date even when the projected first installment is clamped. The group id depends only
// on the purchase, so a later statement carrying installment k+1 projects
// the same group and the same member fingerprints.
func expandInstallments(m mapper.Mapped, marker normalizer.InstallmentMarker, categoryID *uuid.UUID, counter *fingerprint.Counter, in planInput) RowResult {
	first := installment.AddMonths(m.Date, 1-marker.Current)
	occurrence := counter.Next(first, marker.Base+" #"+strconv.Itoa(marker.Total), m.AmountCents)

	groupID := installmentGroupID(in.UserID, in.AccountID, marker, m.AmountCents, first, occurrence)
	group := &repository.InstallmentGroup{
		ID:              groupID,
		UserID:          in.UserID,
		BaseDescription: marker.Base,
		TotalCents:      m.AmountCents * int64(marker.Total),
		Count:           marker.Total,
		IntervalMonths:  1,
		StartDate:       first,
		CategoryID:      categoryID,
		AccountID:       in.AccountID,
	}

	members := make([]repository.Transaction, 0, marker.Total-marker.Current+1)
	for k := marker.Current; k <= marker.Total; k++ {
		date := installment.AddMonths(m.Date, k-marker.Current)
		description := normalizer.InstallmentDescription(marker.Base, k, marker.Total)
		tx := newTransaction(in, date, description, m.AmountCents, categoryID, occurrence)
		index, total := k, marker.Total
		tx.InstallmentGroupID = &group.ID
		tx.InstallmentIndex = &index
		tx.InstallmentTotal = &total
		members = append(members, tx)
	}

	return RowResult{Kind: RowMapped, Row: m.Row, Group: group, Transactions: members}
}

func installmentGroupID(userID uuid.UUID, accountID *uuid.UUID, marker normalizer.InstallmentMarker, amountCents int64, first time.Time, occurrence int) uuid.UUID {
	account := "~"
	if accountID != nil {
		account = accountID.String()
	}
	name := strings.Join([]string{
		userID.String(),
		account,
		fingerprint.NormalizeDescription(marker.Base),
		strconv.Itoa(marker.Total),
		strconv.FormatInt(amountCents, 10),
		first.Format(time.DateOnly),
		strconv.Itoa(occurrence),
	}, "|")
	return uuid.NewSHA1(installmentNamespace, []byte(name))
}

func newTransaction(in planInput, date time.Time, description string, amountCents int64, categoryID *uuid.UUID, occurrence int) repository.Transaction {
	return repository.Transaction{
		ID:          uuid.New(),
		UserID:      in.UserID,
		AccountID:   in.AccountID,
		Date:        date,
		Description: description,
		AmountCents: amountCents,
		CategoryID:  categoryID,
		Source:      in.Source,
		Fingerprint: fingerprint.Compute(fingerprint.Key{
			UserID:      in.UserID,
			AccountID:   in.AccountID,
			Date:        date,
			Description: description,
			AmountCents: amountCents,
			Source:      string(in.Source),
			Occurrence:  occurrence,
		}),
	}
}

func rawFields(row decoder.Row) []repository.RawField {
	raw := make([]repository.RawField, len(row.Fields))
	for i, f := range row.Fields {
		raw[i] = repository.RawField{Header: f.Header, Value: f.Value}
	}
	return raw
}

func mappingReason(err error) string {
	var merr *mapper.MappingError
	if errors.As(err, &merr) {
		return merr.Reason
	}
	return err.Error()
}

// write builds the repository write for r inside batch.
func (r RowResult) write(batch *repository.ImportBatch) repository.RowWrite {
	if r.Kind == RowMappingFailed {
		return repository.RowWrite{Pending: &repository.PendingReviewRow{
			ID:                 uuid.New(),
			ImportBatchID:      batch.ID,
			UserID:             batch.UserID,
			RowNumber:          r.Row,
			Raw:                r.Raw,
			Error:              r.Reason,
			Status:             repository.PendingStatusPending,
			SuggestedAccountID: batch.AccountID,
		}}
	}

	txs := make([]repository.Transaction, len(r.Transactions))
	for i, tx := range r.Transactions {
		tx.ImportBatchID = &batch.ID
		txs[i] = tx
	}
	return repository.RowWrite{Group: r.Group, Transactions: txs}
}

// tally accumulates persistence outcomes across chunks.
type tally struct {
	Inserted   int
	Duplicates int
	Pending    int
	Notes      []string
	// Truncated counts note lines dropped past the cap.
	Truncated int
}

// reduce folds the outcomes of one persisted chunk into acc. results and
// outcomes are parallel slices.
func reduce(acc tally, results []RowResult, outcomes []repository.RowOutcome, maxNotes int) tally {
	for i, out := range outcomes {
		acc.Inserted += out.Inserted
		acc.Duplicates += out.Duplicates
		if !out.Pending {
			continue
		}
		acc.Pending++
		if len(acc.Notes) < maxNotes {
			acc.Notes = append(acc.Notes, fmt.Sprintf("row %d: %s", results[i].Row, results[i].Reason))
		} else {
			acc.Truncated++
		}
	}
	return acc
}

// status derives the final batch status from the counts.
func (t tally) status() repository.BatchStatus {
	switch {
	case t.Pending == 0:
		return repository.BatchStatusOK
	case t.Inserted == 0:
		return repository.BatchStatusNeedsReview
	default:
		return repository.BatchStatusPartial
	}
}

func (t tally) notes() string {
	notes := strings.Join(t.Notes, "\n")
	if t.Truncated > 0 {
		notes += fmt.Sprintf("\n(%d more rows not listed)", t.Truncated)
	}
	return notes
}

// chunks splits results into consecutive slices of at most size.
func chunks(results []RowResult, size int) [][]RowResult {
	var out [][]RowResult
	for start := 0; start < len(results); start += size {
		out = append(out, results[start:min(start+size, len(results))])
	}
	return out
}
