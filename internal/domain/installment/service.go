// Package installment creates and removes groups of installment
// transactions: one purchase paid over a number of months.
package installment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/ledger-core/internal/domain/import/fingerprint"
	"github.com/FACorreiaa/ledger-core/internal/domain/import/normalizer"
	"github.com/FACorreiaa/ledger-core/internal/domain/ledger/repository"
	"github.com/FACorreiaa/ledger-core/pkg/metrics"
	"github.com/FACorreiaa/ledger-core/pkg/money"
)

// ValidationError reports an invalid installment request. Nothing is
// written when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CreateRequest describes an installment purchase. Exactly one of
// TotalCents and PerInstallmentCents must be set.
type CreateRequest struct {
	UserID              uuid.UUID
	StartDate           time.Time
	BaseDescription     string
	Count               int
	IntervalMonths      int
	CategoryID          *uuid.UUID
	AccountID           *uuid.UUID
	TotalCents          *int64
	PerInstallmentCents *int64
}

// Service handles installment group business logic
type Service struct {
	repo     repository.InstallmentRepository
	logger   *slog.Logger
	currency string
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// NewService creates a new installment service. Amounts are split in the
// minor units of currency.
func NewService(repo repository.InstallmentRepository, currency string, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		logger:   logger,
		currency: currency,
		tracer:   otel.Tracer("github.com/FACorreiaa/ledger-core/internal/domain/installment"),
	}
}

// WithMetrics records created groups on m.
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

// Create validates req, then writes the group and its members atomically and
// returns the members in installment order.
func (s *Service) Create(ctx context.Context, req CreateRequest) ([]repository.Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "installment.Create", trace.WithAttributes(
		attribute.String("user.id", req.UserID.String()),
		attribute.Int("installment.count", req.Count),
	))
	defer span.End()

	group, members, err := Plan(req, s.currency)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.repo.CreateInstallmentGroup(ctx, group, members); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, repository.ErrDuplicate) {
			s.logger.Info("installment group rejected as duplicate",
				"user_id", req.UserID,
				"description", group.BaseDescription,
			)
			return nil, err
		}
		return nil, fmt.Errorf("failed to create installment group: %w", err)
	}

	s.metrics.ObserveInstallmentGroup()
	s.logger.Info("installment group created",
		"group_id", group.ID,
		"user_id", req.UserID,
		"count", group.Count,
		"total_cents", group.TotalCents,
	)
	return members, nil
}

// Delete removes a group and, by cascade, its members.
func (s *Service) Delete(ctx context.Context, userID, groupID uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "installment.Delete")
	defer span.End()

	if err := s.repo.DeleteInstallmentGroup(ctx, userID, groupID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete installment group: %w", err)
	}

	s.logger.Info("installment group deleted", "group_id", groupID, "user_id", userID)
	return nil
}

// ListTransactions returns the members of a group in installment order.
func (s *Service) ListTransactions(ctx context.Context, userID, groupID uuid.UUID) ([]repository.Transaction, error) {
	txs, err := s.repo.ListGroupTransactions(ctx, userID, groupID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to list installment transactions: %w", err)
	}
	return txs, nil
}

// Plan validates req and builds the group with its members without writing
// anything.
func Plan(req CreateRequest, currency string) (*repository.InstallmentGroup, []repository.Transaction, error) {
	if err := validate(req); err != nil {
		return nil, nil, err
	}

	base := normalizer.CleanDescription(req.BaseDescription)
	var amounts []int64
	var total int64
	if req.TotalCents != nil {
		total = *req.TotalCents
		parts, err := money.SplitCents(total, req.Count, currency)
		if err != nil {
			return nil, nil, &ValidationError{Field: "total_cents", Reason: err.Error()}
		}
		amounts = parts
	} else {
		per := *req.PerInstallmentCents
		total = per * int64(req.Count)
		amounts = make([]int64, req.Count)
		for i := range amounts {
			amounts[i] = per
		}
	}

	start := AddMonths(req.StartDate, 0)
	group := &repository.InstallmentGroup{
		ID:              uuid.New(),
		UserID:          req.UserID,
		BaseDescription: base,
		TotalCents:      total,
		Count:           req.Count,
		IntervalMonths:  req.IntervalMonths,
		StartDate:       start,
		CategoryID:      req.CategoryID,
		AccountID:       req.AccountID,
	}

	members := make([]repository.Transaction, req.Count)
	for k, date := range Schedule(start, req.Count, req.IntervalMonths) {
		index, count := k+1, req.Count
		description := normalizer.InstallmentDescription(base, index, count)
		members[k] = repository.Transaction{
			ID:                 uuid.New(),
			UserID:             req.UserID,
			AccountID:          req.AccountID,
			Date:               date,
			Description:        description,
			AmountCents:        amounts[k],
			CategoryID:         req.CategoryID,
			Source:             repository.SourceManual,
			InstallmentGroupID: &group.ID,
			InstallmentIndex:   &index,
			InstallmentTotal:   &count,
			Fingerprint: fingerprint.Compute(fingerprint.Key{
				UserID:      req.UserID,
				AccountID:   req.AccountID,
				Date:        date,
				Description: description,
				AmountCents: amounts[k],
				Source:      string(repository.SourceManual),
			}),
		}
	}
	return group, members, nil
}

func validate(req CreateRequest) error {
	switch {
	case req.Count < 2:
		return &ValidationError{Field: "count", Reason: "must be at least 2"}
	case req.IntervalMonths < 1:
		return &ValidationError{Field: "interval_months", Reason: "must be at least 1"}
	case strings.TrimSpace(req.BaseDescription) == "":
		return &ValidationError{Field: "description", Reason: "must not be empty"}
	case req.StartDate.IsZero():
		return &ValidationError{Field: "start_date", Reason: "is required"}
	case (req.TotalCents == nil) == (req.PerInstallmentCents == nil):
		return &ValidationError{Field: "amount", Reason: "exactly one of total or per-installment amount is required"}
	case req.TotalCents != nil && *req.TotalCents <= 0:
		return &ValidationError{Field: "total_cents", Reason: "must be positive"}
	case req.TotalCents != nil && *req.TotalCents < int64(req.Count):
		return &ValidationError{Field: "total_cents", Reason: "must cover at least one minor unit per installment"}
	case req.PerInstallmentCents != nil && *req.PerInstallmentCents <= 0:
		return &ValidationError{Field: "per_installment_cents", Reason: "must be positive"}
	case req.PerInstallmentCents != nil && *req.PerInstallmentCents > math.MaxInt64/int64(req.Count):
		return &ValidationError{Field: "per_installment_cents", Reason: "total of all installments overflows"}
	}
	return nil
}
