package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/ledger-core/internal/domain/import/fingerprint"
	"github.com/FACorreiaa/ledger-core/internal/domain/ledger/repository"
	"github.com/FACorreiaa/ledger-core/pkg/metrics"
)

// importWithPending imports fiveRows and returns the single pending row.
func importWithPending(t *testing.T, repo *memoryRepo, userID uuid.UUID, accountID *uuid.UUID) repository.PendingReviewRow {
	t.Helper()
	_, err := newTestImportService(repo, defaultImportConfig()).Import(context.Background(), ImportRequest{
		UserID:    userID,
		AccountID: accountID,
		Data:      []byte(fiveRows),
	})
	require.NoError(t, err)

	pending, err := NewReviewService(repo, testLogger()).ListPending(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	return pending[0]
}

func TestConfirm_Resolves(t *testing.T) {
	repo := newMemoryRepo()
	userID := uuid.New()
	account := uuid.New()
	row := importWithPending(t, repo, userID, &account)

	m := metrics.New()
	svc := NewReviewService(repo, testLogger()).WithMetrics(m)
	category := uuid.New()

	tx, err := svc.Confirm(context.Background(), ConfirmRequest{
		UserID:      userID,
		PendingID:   row.ID,
		Date:        time.Date(2024, 1, 3, 15, 4, 0, 0, time.Local),
		Description: "  Farmácia  Central ",
		AmountCents: -1200,
		CategoryID:  &category,
	})
	require.NoError(t, err)

	assert.Equal(t, "Farmácia Central", tx.Description)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), tx.Date)
	assert.Equal(t, &account, tx.AccountID, "suggested account is used")
	assert.Equal(t, repository.SourceCSV, tx.Source)
	assert.Equal(t, &category, tx.CategoryID)
	assert.Equal(t, fingerprint.Compute(fingerprint.Key{
		UserID:      userID,
		AccountID:   &account,
		Date:        tx.Date,
		Description: "Farmácia Central",
		AmountCents: -1200,
		Source:      "csv",
	}), tx.Fingerprint)

	left, err := svc.ListPending(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, left)

	batch := repo.batches[row.ImportBatchID]
	assert.Equal(t, repository.BatchStatusOK, batch.Status)
	assert.Equal(t, 1, batch.ResolvedCount)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConfirmationsTotal.WithLabelValues("resolved")))

	_, err = svc.Confirm(context.Background(), ConfirmRequest{
		UserID:      userID,
		PendingID:   row.ID,
		Date:        tx.Date,
		Description: "Farmácia",
		AmountCents: -1200,
	})
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, repository.PendingStatusResolved, stateErr.Status)
	assert.Equal(t, row.ID, stateErr.PendingID)
}

func TestConfirm_RequestAccountOverridesSuggestion(t *testing.T) {
	repo := newMemoryRepo()
	userID := uuid.New()
	suggested, chosen := uuid.New(), uuid.New()
	row := importWithPending(t, repo, userID, &suggested)

	tx, err := NewReviewService(repo, testLogger()).Confirm(context.Background(), ConfirmRequest{
		UserID:      userID,
		PendingID:   row.ID,
		Date:        time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		Description: "Farmácia",
		AmountCents: -1200,
		AccountID:   &chosen,
	})
	require.NoError(t, err)
	assert.Equal(t, &chosen, tx.AccountID)
}

func TestConfirm_Duplicate(t *testing.T) {
	repo := newMemoryRepo()
	userID := uuid.New()
	row := importWithPending(t, repo, userID, nil)

	m := metrics.New()
	svc := NewReviewService(repo, testLogger()).WithMetrics(m)

	// Padaria on 02/01 was imported with occurrence 0, which is what a
	// confirmation computes too.
	_, err := svc.Confirm(context.Background(), ConfirmRequest{
		UserID:      userID,
		PendingID:   row.ID,
		Date:        time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Description: "Padaria",
		AmountCents: -1000,
	})

	var dupErr *DuplicateError
	require.ErrorAs(t, err, &dupErr)
	assert.Len(t, dupErr.Fingerprint, 64)

	var existing *repository.Transaction
	for i := range repo.transactions {
		if repo.transactions[i].Description == "Padaria" {
			existing = &repo.transactions[i]
		}
	}
	require.NotNil(t, existing)
	assert.Equal(t, existing.ID, dupErr.ExistingTransactionID)
	assert.Equal(t, existing.Fingerprint, dupErr.Fingerprint)
	assert.Equal(t, 4, repo.transactionCount())

	assert.Equal(t, repository.PendingStatusDuplicate, repo.pending[0].Status)
	assert.True(t, repo.pending[0].Duplicate)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConfirmationsTotal.WithLabelValues("duplicate")))
}

func TestConfirm_Validation(t *testing.T) {
	valid := ConfirmRequest{
		UserID:      uuid.New(),
		PendingID:   uuid.New(),
		Date:        time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		Description: "Farmácia",
		AmountCents: -1200,
	}

	tests := []struct {
		name   string
		mutate func(*ConfirmRequest)
		field  string
	}{
		{"zero date", func(r *ConfirmRequest) { r.Date = time.Time{} }, "date"},
		{"blank description", func(r *ConfirmRequest) { r.Description = " \t" }, "description"},
		{"zero amount", func(r *ConfirmRequest) { r.AmountCents = 0 }, "amount_cents"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemoryRepo()
			req := valid
			tt.mutate(&req)

			_, err := NewReviewService(repo, testLogger()).Confirm(context.Background(), req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestConfirm_NotFound(t *testing.T) {
	repo := newMemoryRepo()
	userID := uuid.New()
	row := importWithPending(t, repo, userID, nil)
	svc := NewReviewService(repo, testLogger())

	req := ConfirmRequest{
		UserID:      uuid.New(),
		PendingID:   row.ID,
		Date:        time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		Description: "Farmácia",
		AmountCents: -1200,
	}
	_, err := svc.Confirm(context.Background(), req)
	assert.ErrorIs(t, err, repository.ErrNotFound, "rows are scoped to their user")

	req.UserID = userID
	req.PendingID = uuid.New()
	_, err = svc.Confirm(context.Background(), req)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

type failingReviewRepo struct {
	repository.ReviewRepository
	err error
}

func (f failingReviewRepo) ConfirmPending(context.Context, uuid.UUID, uuid.UUID, repository.ConfirmFunc) (*repository.ConfirmResult, error) {
	return nil, f.err
}

func (f failingReviewRepo) ListPending(context.Context, uuid.UUID) ([]repository.PendingReviewRow, error) {
	return nil, f.err
}

func TestReviewService_StorageErrors(t *testing.T) {
	svc := NewReviewService(failingReviewRepo{err: errors.New("connection refused")}, testLogger())

	_, err := svc.Confirm(context.Background(), ConfirmRequest{
		UserID:      uuid.New(),
		PendingID:   uuid.New(),
		Date:        time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		Description: "Farmácia",
		AmountCents: -1200,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to confirm pending row")

	_, err = svc.ListPending(context.Background(), uuid.New())
	assert.ErrorContains(t, err, "failed to list pending rows")
}

func TestListBatchPending(t *testing.T) {
	repo := newMemoryRepo()
	userID := uuid.New()
	row := importWithPending(t, repo, userID, nil)
	_, err := newTestImportService(repo, defaultImportConfig()).Import(context.Background(), ImportRequest{
		UserID: userID,
		Data:   []byte(fiveRows),
	})
	require.NoError(t, err)

	svc := NewReviewService(repo, testLogger())
	all, err := svc.ListPending(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, all, 2, "a re-import queues the bad row again")

	one, err := svc.ListBatchPending(context.Background(), userID, row.ImportBatchID)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, row.ID, one[0].ID)
}
