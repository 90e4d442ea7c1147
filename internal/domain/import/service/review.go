package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/ledger-core/internal/domain/import/fingerprint"
	"github.com/FACorreiaa/ledger-core/internal/domain/import/normalizer"
	"github.com/FACorreiaa/ledger-core/internal/domain/ledger/repository"
	"github.com/FACorreiaa/ledger-core/pkg/metrics"
)

// ValidationError reports invalid confirmation input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StateError is returned when a review row has already left the pending state.
type StateError struct {
	PendingID uuid.UUID
	Status    repository.PendingStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("review row %s is %s", e.PendingID, e.Status)
}

// DuplicateError is returned when a confirmed row matches a transaction that
// already exists. The review row is marked duplicate.
type DuplicateError struct {
	ExistingTransactionID uuid.UUID
	Fingerprint           string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("transaction already exists: %s", e.ExistingTransactionID)
}

// ConfirmRequest carries the user's corrected values for a pending row.
// AccountID falls back to the account suggested at import time.
type ConfirmRequest struct {
	UserID      uuid.UUID
	PendingID   uuid.UUID
	Date        time.Time
	Description string
	AmountCents int64
	CategoryID  *uuid.UUID
	AccountID   *uuid.UUID
}

// ReviewService lists and resolves rows held for review
type ReviewService struct {
	repo    repository.ReviewRepository
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewReviewService creates a new review service
func NewReviewService(repo repository.ReviewRepository, logger *slog.Logger) *ReviewService {
	return &ReviewService{repo: repo, logger: logger}
}

// WithMetrics records confirmation outcomes on m.
func (s *ReviewService) WithMetrics(m *metrics.Metrics) *ReviewService {
	s.metrics = m
	return s
}

// ListPending returns the user's pending rows, oldest batch first.
func (s *ReviewService) ListPending(ctx context.Context, userID uuid.UUID) ([]repository.PendingReviewRow, error) {
	rows, err := s.repo.ListPending(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending rows: %w", err)
	}
	return rows, nil
}

// ListBatchPending returns the pending rows of one batch.
func (s *ReviewService) ListBatchPending(ctx context.Context, userID, batchID uuid.UUID) ([]repository.PendingReviewRow, error) {
	rows, err := s.repo.ListBatchPending(ctx, userID, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch pending rows: %w", err)
	}
	return rows, nil
}

// Confirm inserts the corrected transaction and resolves the row in one
// database transaction. A fingerprint collision marks the row duplicate and
// returns *DuplicateError.
func (s *ReviewService) Confirm(ctx context.Context, req ConfirmRequest) (*repository.Transaction, error) {
	ctx, span := tracer.Start(ctx, "review.Confirm", trace.WithAttributes(
		attribute.String("user.id", req.UserID.String()),
		attribute.String("pending.id", req.PendingID.String()),
	))
	defer span.End()

	if err := validateConfirm(req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	description := normalizer.CleanDescription(req.Description)
	date := time.Date(req.Date.Year(), req.Date.Month(), req.Date.Day(), 0, 0, 0, 0, time.UTC)

	var built repository.Transaction
	build := func(row repository.PendingReviewRow, batch repository.ImportBatch) (repository.Transaction, error) {
		accountID := req.AccountID
		if accountID == nil {
			accountID = row.SuggestedAccountID
		}
		built = repository.Transaction{
			ID:            uuid.New(),
			UserID:        req.UserID,
			AccountID:     accountID,
			Date:          date,
			Description:   description,
			AmountCents:   req.AmountCents,
			CategoryID:    req.CategoryID,
			Source:        batch.SourceType,
			ImportBatchID: &batch.ID,
			Fingerprint: fingerprint.Compute(fingerprint.Key{
				UserID:      req.UserID,
				AccountID:   accountID,
				Date:        date,
				Description: description,
				AmountCents: req.AmountCents,
				Source:      string(batch.SourceType),
			}),
		}
		return built, nil
	}

	result, err := s.repo.ConfirmPending(ctx, req.UserID, req.PendingID, build)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		var notPending *repository.NotPendingError
		switch {
		case errors.As(err, &notPending):
			return nil, &StateError{PendingID: req.PendingID, Status: notPending.Status}
		case errors.Is(err, repository.ErrNotFound):
			return nil, err
		}
		return nil, fmt.Errorf("failed to confirm pending row: %w", err)
	}

	if result.ExistingID != nil {
		s.metrics.ObserveConfirmation(string(repository.PendingStatusDuplicate))
		s.logger.Info("pending row matched an existing transaction",
			"pending_id", req.PendingID,
			"existing_id", *result.ExistingID,
		)
		return nil, &DuplicateError{ExistingTransactionID: *result.ExistingID, Fingerprint: built.Fingerprint}
	}

	s.metrics.ObserveConfirmation(string(repository.PendingStatusResolved))
	s.logger.Info("pending row confirmed",
		"pending_id", req.PendingID,
		"transaction_id", result.Transaction.ID,
	)
	return result.Transaction, nil
}

func validateConfirm(req ConfirmRequest) error {
	switch {
	case req.Date.IsZero():
		return &ValidationError{Field: "date", Reason: "is required"}
	case strings.TrimSpace(req.Description) == "":
		return &ValidationError{Field: "description", Reason: "must not be empty"}
	case req.AmountCents == 0:
		return &ValidationError{Field: "amount_cents", Reason: "must not be zero"}
	}
	return nil
}
