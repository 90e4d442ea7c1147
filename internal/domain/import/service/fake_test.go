package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/ledger-core/internal/domain/categorization"
	"github.com/FACorreiaa/ledger-core/internal/domain/ledger/repository"
)

// memoryRepo is an in-memory ledger store enforcing the fingerprint
// uniqueness constraint the way the SQL stores do.
type memoryRepo struct {
	mu           sync.Mutex
	batches      map[uuid.UUID]*repository.ImportBatch
	transactions []repository.Transaction
	groups       map[uuid.UUID]*repository.InstallmentGroup
	pending      []*repository.PendingReviewRow
	fingerprints map[string]uuid.UUID

	persistCalls int
	// failOnPersist makes the n-th PersistRows call (1-based) fail.
	failOnPersist int
	failCreate    error
	failFinalize  error
	failedNotes   map[uuid.UUID]string
	chunkSizes    []int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		batches:      make(map[uuid.UUID]*repository.ImportBatch),
		groups:       make(map[uuid.UUID]*repository.InstallmentGroup),
		fingerprints: make(map[string]uuid.UUID),
		failedNotes:  make(map[uuid.UUID]string),
	}
}

func uniqueKey(t repository.Transaction) string {
	account := ""
	if t.AccountID != nil {
		account = t.AccountID.String()
	}
	return t.UserID.String() + "|" + account + "|" + t.Fingerprint
}

func (m *memoryRepo) CreateImportBatch(_ context.Context, batch *repository.ImportBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return m.failCreate
	}
	batch.CreatedAt = time.Now().UTC()
	copied := *batch
	m.batches[batch.ID] = &copied
	return nil
}

func (m *memoryRepo) PersistRows(_ context.Context, _ *repository.ImportBatch, rows []repository.RowWrite) ([]repository.RowOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persistCalls++
	m.chunkSizes = append(m.chunkSizes, len(rows))
	if m.failOnPersist == m.persistCalls {
		return nil, errors.New("connection reset by peer")
	}

	outcomes := make([]repository.RowOutcome, len(rows))
	for i, row := range rows {
		if row.Pending != nil {
			copied := *row.Pending
			m.pending = append(m.pending, &copied)
			outcomes[i].Pending = true
			continue
		}
		if row.Group != nil {
			if _, ok := m.groups[row.Group.ID]; !ok {
				copied := *row.Group
				m.groups[row.Group.ID] = &copied
			}
		}
		for _, tx := range row.Transactions {
			if _, dup := m.fingerprints[uniqueKey(tx)]; dup {
				outcomes[i].Duplicates++
				continue
			}
			m.fingerprints[uniqueKey(tx)] = tx.ID
			m.transactions = append(m.transactions, tx)
			outcomes[i].Inserted++
		}
	}
	return outcomes, nil
}

func (m *memoryRepo) FinalizeImportBatch(_ context.Context, batch *repository.ImportBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFinalize != nil {
		return m.failFinalize
	}
	copied := *batch
	now := time.Now().UTC()
	copied.FinishedAt = &now
	m.batches[batch.ID] = &copied
	return nil
}

func (m *memoryRepo) MarkBatchFailed(_ context.Context, batchID uuid.UUID, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return repository.ErrNotFound
	}
	b.Status = repository.BatchStatusFailed
	b.Notes = notes
	m.failedNotes[batchID] = notes
	return nil
}

func (m *memoryRepo) GetImportBatch(_ context.Context, userID, batchID uuid.UUID) (*repository.ImportBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok || b.UserID != userID {
		return nil, repository.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (m *memoryRepo) ListBatchTransactions(_ context.Context, userID, batchID uuid.UUID) ([]repository.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.Transaction
	for _, tx := range m.transactions {
		if tx.UserID == userID && tx.ImportBatchID != nil && *tx.ImportBatchID == batchID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListPending(_ context.Context, userID uuid.UUID) ([]repository.PendingReviewRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.PendingReviewRow
	for _, p := range m.pending {
		if p.UserID == userID && p.Status == repository.PendingStatusPending {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListBatchPending(ctx context.Context, userID, batchID uuid.UUID) ([]repository.PendingReviewRow, error) {
	rows, err := m.ListPending(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []repository.PendingReviewRow
	for _, p := range rows {
		if p.ImportBatchID == batchID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryRepo) ConfirmPending(_ context.Context, userID, pendingID uuid.UUID, build repository.ConfirmFunc) (*repository.ConfirmResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var row *repository.PendingReviewRow
	for _, p := range m.pending {
		if p.ID == pendingID && p.UserID == userID {
			row = p
		}
	}
	if row == nil {
		return nil, repository.ErrNotFound
	}
	if row.Status != repository.PendingStatusPending {
		return nil, &repository.NotPendingError{Status: row.Status}
	}
	batch := m.batches[row.ImportBatchID]

	tx, err := build(*row, *batch)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result := &repository.ConfirmResult{}
	if existing, dup := m.fingerprints[uniqueKey(tx)]; dup {
		row.Status = repository.PendingStatusDuplicate
		row.Duplicate = true
		result.ExistingID = &existing
	} else {
		m.fingerprints[uniqueKey(tx)] = tx.ID
		m.transactions = append(m.transactions, tx)
		row.Status = repository.PendingStatusResolved
		row.ResolvedTransactionID = &tx.ID
		result.Transaction = &tx
		batch.ResolvedCount++
	}
	row.ResolvedAt = &now

	remaining := 0
	for _, p := range m.pending {
		if p.ImportBatchID == batch.ID && p.Status == repository.PendingStatusPending {
			remaining++
		}
	}
	if remaining == 0 && (batch.Status == repository.BatchStatusPartial || batch.Status == repository.BatchStatusNeedsReview) {
		batch.Status = repository.BatchStatusOK
	}
	result.Row = *row
	return result, nil
}

func (m *memoryRepo) transactionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transactions)
}

// staticCategories hands out one resolver, or an error, for every user.
type staticCategories struct {
	resolver *categorization.Resolver
	err      error
}

func (s staticCategories) Resolver(context.Context, uuid.UUID) (*categorization.Resolver, error) {
	return s.resolver, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
