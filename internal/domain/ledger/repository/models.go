// Package repository persists ledger transactions, import batches, the
// review queue and installment groups. Postgres backs production; SQLite
// backs single-user deployments and end-to-end tests.
package repository

import (
	"time"

	"github.com/google/uuid"
)

// Source records where a transaction came from.
type Source string

const (
	SourceManual Source = "manual"
	SourceCSV    Source = "csv"
	SourceXLSX   Source = "xlsx"
)

// BatchStatus is the lifecycle state of an import batch.
type BatchStatus string

const (
	BatchStatusRunning     BatchStatus = "running"
	BatchStatusOK          BatchStatus = "ok"
	BatchStatusPartial     BatchStatus = "partial"
	BatchStatusNeedsReview BatchStatus = "needs_review"
	BatchStatusFailed      BatchStatus = "failed"
)

// PendingStatus is the state of a review queue row.
type PendingStatus string

const (
	PendingStatusPending   PendingStatus = "pending"
	PendingStatusResolved  PendingStatus = "resolved"
	PendingStatusDuplicate PendingStatus = "duplicate"
)

// Transaction is one ledger entry. AmountCents is negative for expenses and
// positive for income; it is never zero.
type Transaction struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	AccountID          *uuid.UUID
	Date               time.Time
	Description        string
	AmountCents        int64
	CategoryID         *uuid.UUID
	Source             Source
	InstallmentGroupID *uuid.UUID
	InstallmentIndex   *int
	InstallmentTotal   *int
	Fingerprint        string
	ImportBatchID      *uuid.UUID
	CreatedAt          time.Time
}

// ImportBatch records one import run and its outcome counts.
type ImportBatch struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	AccountID      *uuid.UUID
	SourceType     Source
	Filename       string
	ArchiveFileID  *string
	Status         BatchStatus
	Notes          string
	InsertedCount  int
	DuplicateCount int
	PendingCount   int
	ResolvedCount  int
	CreatedAt      time.Time
	FinishedAt     *time.Time
}

// RawField is one original cell of a row held for review.
type RawField struct {
	Header string `json:"header" csv:"header"`
	Value  string `json:"value" csv:"value"`
}

// PendingReviewRow is a source row that could not be mapped. Raw keeps the
// original cells in column order.
type PendingReviewRow struct {
	ID                    uuid.UUID
	ImportBatchID         uuid.UUID
	UserID                uuid.UUID
	RowNumber             int
	Raw                   []RawField
	Error                 string
	Status                PendingStatus
	Duplicate             bool
	SuggestedAccountID    *uuid.UUID
	ResolvedTransactionID *uuid.UUID
	CreatedAt             time.Time
	ResolvedAt            *time.Time
}

// InstallmentGroup links the installments of one purchase.
type InstallmentGroup struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	BaseDescription string
	TotalCents      int64
	Count           int
	IntervalMonths  int
	StartDate       time.Time
	CategoryID      *uuid.UUID
	AccountID       *uuid.UUID
	CreatedAt       time.Time
}

// Category is a spending category visible to a user. UserID is nil for
// categories shared by every user.
type Category struct {
	ID       uuid.UUID
	UserID   *uuid.UUID
	Name     string
	ParentID *uuid.UUID
}

// CategoryRule assigns a category to descriptions containing Pattern.
type CategoryRule struct {
	ID         uuid.UUID
	UserID     *uuid.UUID
	CategoryID uuid.UUID
	Pattern    string
	Priority   int
}
