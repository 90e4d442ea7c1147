package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a row does not exist or belongs to another user.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert was skipped by the fingerprint
	// uniqueness constraint.
	ErrDuplicate = errors.New("duplicate transaction")
)

// NotPendingError is returned when confirming a review row that has already
// left the pending state.
type NotPendingError struct {
	Status PendingStatus
}

func (e *NotPendingError) Error() string {
	return fmt.Sprintf("review row is %s, not pending", e.Status)
}

// RowWrite is what an import persists for one source row: either a pending
// review row, or one or more transactions. Transactions projected from an
// installment marker carry their Group, inserted first when absent.
type RowWrite struct {
	Pending      *PendingReviewRow
	Group        *InstallmentGroup
	Transactions []Transaction
}

// RowOutcome reports what happened to one RowWrite.
type RowOutcome struct {
	Inserted   int
	Duplicates int
	Pending    bool
}

// ConfirmFunc builds the transaction for a pending row. It runs inside the
// confirming database transaction, after the row has been locked.
type ConfirmFunc func(row PendingReviewRow, batch ImportBatch) (Transaction, error)

// ConfirmResult is the outcome of confirming a pending row.
type ConfirmResult struct {
	Row         PendingReviewRow
	Transaction *Transaction
	// ExistingID is set when the insert was skipped as a duplicate.
	ExistingID *uuid.UUID
}

// ImportRepository persists import batches and their rows.
type ImportRepository interface {
	CreateImportBatch(ctx context.Context, batch *ImportBatch) error
	// PersistRows writes one chunk in a single database transaction and
	// returns one outcome per write, in order.
	PersistRows(ctx context.Context, batch *ImportBatch, rows []RowWrite) ([]RowOutcome, error)
	FinalizeImportBatch(ctx context.Context, batch *ImportBatch) error
	MarkBatchFailed(ctx context.Context, batchID uuid.UUID, notes string) error
	GetImportBatch(ctx context.Context, userID, batchID uuid.UUID) (*ImportBatch, error)
	ListBatchTransactions(ctx context.Context, userID, batchID uuid.UUID) ([]Transaction, error)
}

// ReviewRepository manages the review queue.
type ReviewRepository interface {
	ListPending(ctx context.Context, userID uuid.UUID) ([]PendingReviewRow, error)
	ListBatchPending(ctx context.Context, userID, batchID uuid.UUID) ([]PendingReviewRow, error)
	// ConfirmPending locks the row, inserts the transaction built by build
	// and resolves the row, or marks it duplicate, in one transaction.
	ConfirmPending(ctx context.Context, userID, pendingID uuid.UUID, build ConfirmFunc) (*ConfirmResult, error)
}

// InstallmentRepository stores installment groups with their members.
type InstallmentRepository interface {
	// CreateInstallmentGroup writes the group and every member atomically.
	// A member rejected by the fingerprint constraint rolls everything back
	// and returns ErrDuplicate.
	CreateInstallmentGroup(ctx context.Context, group *InstallmentGroup, members []Transaction) error
	GetInstallmentGroup(ctx context.Context, userID, groupID uuid.UUID) (*InstallmentGroup, error)
	DeleteInstallmentGroup(ctx context.Context, userID, groupID uuid.UUID) error
	ListGroupTransactions(ctx context.Context, userID, groupID uuid.UUID) ([]Transaction, error)
}

// CategoryRepository reads the categories and rules used to categorize
// imported rows.
type CategoryRepository interface {
	ListCategories(ctx context.Context, userID uuid.UUID) ([]Category, error)
	ListCategoryRules(ctx context.Context, userID uuid.UUID) ([]CategoryRule, error)
}

// Repository is the full ledger store.
type Repository interface {
	ImportRepository
	ReviewRepository
	InstallmentRepository
	CategoryRepository
}
