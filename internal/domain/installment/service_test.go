package installment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/ledger-core/internal/domain/ledger/repository"
	"github.com/FACorreiaa/ledger-core/pkg/metrics"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeRepo struct {
	groups  map[uuid.UUID]*repository.InstallmentGroup
	members map[uuid.UUID][]repository.Transaction
	seen    map[string]bool
	err     error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		groups:  make(map[uuid.UUID]*repository.InstallmentGroup),
		members: make(map[uuid.UUID][]repository.Transaction),
		seen:    make(map[string]bool),
	}
}

func (f *fakeRepo) CreateInstallmentGroup(_ context.Context, group *repository.InstallmentGroup, members []repository.Transaction) error {
	if f.err != nil {
		return f.err
	}
	for _, m := range members {
		if f.seen[m.Fingerprint] {
			return repository.ErrDuplicate
		}
	}
	for _, m := range members {
		f.seen[m.Fingerprint] = true
	}
	f.groups[group.ID] = group
	f.members[group.ID] = members
	return nil
}

func (f *fakeRepo) GetInstallmentGroup(_ context.Context, userID, groupID uuid.UUID) (*repository.InstallmentGroup, error) {
	g, ok := f.groups[groupID]
	if !ok || g.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return g, nil
}

func (f *fakeRepo) DeleteInstallmentGroup(ctx context.Context, userID, groupID uuid.UUID) error {
	if _, err := f.GetInstallmentGroup(ctx, userID, groupID); err != nil {
		return err
	}
	for _, m := range f.members[groupID] {
		delete(f.seen, m.Fingerprint)
	}
	delete(f.groups, groupID)
	delete(f.members, groupID)
	return nil
}

func (f *fakeRepo) ListGroupTransactions(ctx context.Context, userID, groupID uuid.UUID) ([]repository.Transaction, error) {
	if _, err := f.GetInstallmentGroup(ctx, userID, groupID); err != nil {
		return nil, err
	}
	return f.members[groupID], nil
}

func newTestService(repo repository.InstallmentRepository) *Service {
	return NewService(repo, "BRL", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func ptr[T any](v T) *T { return &v }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ============================================================================
// Schedule
// ============================================================================

func TestAddMonths(t *testing.T) {
	tests := []struct {
		start  time.Time
		months int
		want   time.Time
	}{
		{date(2024, 1, 31), 1, date(2024, 2, 29)},
		{date(2024, 1, 31), 2, date(2024, 3, 31)},
		{date(2023, 1, 31), 1, date(2023, 2, 28)},
		{date(2024, 11, 15), 3, date(2025, 2, 15)},
		{date(2024, 5, 31), 12, date(2025, 5, 31)},
		{time.Date(2024, 3, 10, 23, 30, 0, 0, time.FixedZone("BRT", -3*3600)), 0, date(2024, 3, 10)},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s+%d", tt.start.Format(time.DateOnly), tt.months), func(t *testing.T) {
			assert.Equal(t, tt.want, AddMonths(tt.start, tt.months))
		})
	}
}

func TestSchedule_NoDrift(t *testing.T) {
	dates := Schedule(date(2024, 1, 31), 4, 1)
	assert.Equal(t, []time.Time{
		date(2024, 1, 31),
		date(2024, 2, 29),
		date(2024, 3, 31),
		date(2024, 4, 30),
	}, dates)

	quarterly := Schedule(date(2024, 1, 31), 3, 3)
	assert.Equal(t, []time.Time{date(2024, 1, 31), date(2024, 4, 30), date(2024, 7, 31)}, quarterly)
}

// ============================================================================
// Create
// ============================================================================

func TestCreate_TotalSplit(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	userID := uuid.New()

	txs, err := svc.Create(context.Background(), CreateRequest{
		UserID:          userID,
		StartDate:       date(2024, 1, 31),
		BaseDescription: "Notebook",
		Count:           3,
		IntervalMonths:  1,
		TotalCents:      ptr(int64(1000)),
	})
	require.NoError(t, err)
	require.Len(t, txs, 3)

	assert.Equal(t, []int64{334, 333, 333}, []int64{txs[0].AmountCents, txs[1].AmountCents, txs[2].AmountCents})
	assert.Equal(t, "Notebook (1/3)", txs[0].Description)
	assert.Equal(t, "Notebook (3/3)", txs[2].Description)
	assert.Equal(t, date(2024, 2, 29), txs[1].Date)
	assert.Equal(t, date(2024, 3, 31), txs[2].Date)

	groupID := *txs[0].InstallmentGroupID
	group := repo.groups[groupID]
	require.NotNil(t, group)
	assert.Equal(t, int64(1000), group.TotalCents)
	assert.Equal(t, "Notebook", group.BaseDescription)

	fingerprints := make(map[string]bool)
	for i, tx := range txs {
		assert.Equal(t, repository.SourceManual, tx.Source)
		assert.Equal(t, groupID, *tx.InstallmentGroupID)
		assert.Equal(t, i+1, *tx.InstallmentIndex)
		assert.Equal(t, 3, *tx.InstallmentTotal)
		assert.Len(t, tx.Fingerprint, 64)
		fingerprints[tx.Fingerprint] = true
	}
	assert.Len(t, fingerprints, 3, "each member has its own fingerprint")
}

func TestCreate_SumMatchesTotal(t *testing.T) {
	for n := 2; n <= 36; n++ {
		for _, total := range []int64{n64(n), 1000, 99999, 123456789} {
			_, members, err := Plan(CreateRequest{
				UserID:          uuid.New(),
				StartDate:       date(2024, 1, 31),
				BaseDescription: "Compra",
				Count:           n,
				IntervalMonths:  1,
				TotalCents:      ptr(total),
			}, "BRL")
			require.NoError(t, err)
			require.Len(t, members, n)

			var sum int64
			for i, m := range members {
				sum += m.AmountCents
				assert.NotZero(t, m.AmountCents)
				if i > 0 {
					assert.LessOrEqual(t, m.AmountCents, members[i-1].AmountCents, "remainder goes first")
				}
			}
			assert.Equal(t, total, sum, "n=%d total=%d", n, total)
		}
	}
}

func n64(n int) int64 { return int64(n) }

func TestCreate_PerInstallment(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo).WithMetrics(metrics.New())

	txs, err := svc.Create(context.Background(), CreateRequest{
		UserID:              uuid.New(),
		StartDate:           date(2024, 6, 10),
		BaseDescription:     "  Sofá   3 lugares ",
		Count:               10,
		IntervalMonths:      1,
		PerInstallmentCents: ptr(int64(15000)),
	})
	require.NoError(t, err)
	require.Len(t, txs, 10)
	assert.Equal(t, "Sofá 3 lugares (10/10)", txs[9].Description)
	assert.Equal(t, date(2025, 3, 10), txs[9].Date)
	assert.Equal(t, int64(150000), repo.groups[*txs[0].InstallmentGroupID].TotalCents)
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.InstallmentGroups))
}

func TestCreate_Validation(t *testing.T) {
	valid := func() CreateRequest {
		return CreateRequest{
			UserID:          uuid.New(),
			StartDate:       date(2024, 1, 1),
			BaseDescription: "TV",
			Count:           2,
			IntervalMonths:  1,
			TotalCents:      ptr(int64(1000)),
		}
	}

	tests := []struct {
		name   string
		mutate func(*CreateRequest)
		field  string
	}{
		{"count below two", func(r *CreateRequest) { r.Count = 1 }, "count"},
		{"zero interval", func(r *CreateRequest) { r.IntervalMonths = 0 }, "interval_months"},
		{"blank description", func(r *CreateRequest) { r.BaseDescription = "   " }, "description"},
		{"missing start", func(r *CreateRequest) { r.StartDate = time.Time{} }, "start_date"},
		{"both amounts", func(r *CreateRequest) { r.PerInstallmentCents = ptr(int64(500)) }, "amount"},
		{"no amount", func(r *CreateRequest) { r.TotalCents = nil }, "amount"},
		{"zero total", func(r *CreateRequest) { r.TotalCents = ptr(int64(0)) }, "total_cents"},
		{"negative total", func(r *CreateRequest) { r.TotalCents = ptr(int64(-100)) }, "total_cents"},
		{"total below count", func(r *CreateRequest) { r.Count = 3; r.TotalCents = ptr(int64(2)) }, "total_cents"},
		{"negative per installment", func(r *CreateRequest) {
			r.TotalCents = nil
			r.PerInstallmentCents = ptr(int64(-1))
		}, "per_installment_cents"},
		{"per installment total overflows", func(r *CreateRequest) {
			r.TotalCents = nil
			r.Count = 3
			r.PerInstallmentCents = ptr(int64(math.MaxInt64/3 + 1))
		}, "per_installment_cents"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			req := valid()
			tt.mutate(&req)

			_, err := newTestService(repo).Create(context.Background(), req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Empty(t, repo.groups, "nothing written")
		})
	}
}

func TestCreate_DuplicateRejected(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	req := CreateRequest{
		UserID:          uuid.New(),
		StartDate:       date(2024, 1, 1),
		BaseDescription: "Geladeira",
		Count:           4,
		IntervalMonths:  1,
		TotalCents:      ptr(int64(400000)),
	}

	_, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, repository.ErrDuplicate)
	assert.Len(t, repo.groups, 1)
}

func TestCreate_StorageError(t *testing.T) {
	repo := newFakeRepo()
	repo.err = errors.New("connection refused")

	_, err := newTestService(repo).Create(context.Background(), CreateRequest{
		UserID:              uuid.New(),
		StartDate:           date(2024, 1, 1),
		BaseDescription:     "TV",
		Count:               2,
		IntervalMonths:      1,
		PerInstallmentCents: ptr(int64(100)),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create installment group")
}

// ============================================================================
// Delete / List
// ============================================================================

func TestDeleteAndList(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	userID := uuid.New()

	txs, err := svc.Create(ctx, CreateRequest{
		UserID:          userID,
		StartDate:       date(2024, 1, 1),
		BaseDescription: "Bicicleta",
		Count:           2,
		IntervalMonths:  1,
		TotalCents:      ptr(int64(50000)),
	})
	require.NoError(t, err)
	groupID := *txs[0].InstallmentGroupID

	listed, err := svc.ListTransactions(ctx, userID, groupID)
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	_, err = svc.ListTransactions(ctx, uuid.New(), groupID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, uuid.New(), groupID), repository.ErrNotFound)
	require.NoError(t, svc.Delete(ctx, userID, groupID))
	assert.ErrorIs(t, svc.Delete(ctx, userID, groupID), repository.ErrNotFound)
}
