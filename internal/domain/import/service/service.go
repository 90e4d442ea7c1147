// Package service provides the import orchestration logic and the review
// queue for rows an import could not map.
package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/ledger-core/internal/domain/categorization"
	"github.com/FACorreiaa/ledger-core/internal/domain/import/decoder"
	"github.com/FACorreiaa/ledger-core/internal/domain/import/mapper"
	"github.com/FACorreiaa/ledger-core/internal/domain/ledger/repository"
	"github.com/FACorreiaa/ledger-core/pkg/config"
	"github.com/FACorreiaa/ledger-core/pkg/metrics"
	"github.com/FACorreiaa/ledger-core/pkg/storage"
)

const (
	defaultChunkSize = 250
	defaultMaxNotes  = 50
)

var tracer = otel.Tracer("github.com/FACorreiaa/ledger-core/internal/domain/import/service")

// ImportRequest is one statement upload.
type ImportRequest struct {
	UserID    uuid.UUID
	AccountID *uuid.UUID
	// SourceType is "csv" or "xlsx"; empty sniffs the content.
	SourceType string
	Data       []byte
	Passphrase string
	Filename   string
	// Columns optionally pins fields to header names.
	Columns map[mapper.Field]string
	// HeaderRow is the 1-based line of the header row; zero detects it.
	HeaderRow int
}

// ImportResult contains the result of an import operation
type ImportResult struct {
	BatchID    uuid.UUID
	Status     repository.BatchStatus
	RowsTotal  int
	Inserted   int
	Duplicates int
	Pending    int
	Notes      []string
	// Layout fingerprints the header row, equal across statements exported
	// by the same bank in the same format.
	Layout string
	// Sheet names the worksheet read from a workbook.
	Sheet string
	// ArchiveFileID is set when the raw upload was archived.
	ArchiveFileID *uuid.UUID
}

// CategoryResolver loads per-user categorization snapshots.
type CategoryResolver interface {
	Resolver(ctx context.Context, userID uuid.UUID) (*categorization.Resolver, error)
}

// ImportService orchestrates decoding, mapping and persisting statements
type ImportService struct {
	repo       repository.ImportRepository
	mapper     *mapper.Mapper
	categories CategoryResolver
	archive    storage.Storage
	metrics    *metrics.Metrics
	logger     *slog.Logger
	chunkSize  int
	maxNotes   int
	expand     bool
}

// NewImportService creates a new import service
func NewImportService(repo repository.ImportRepository, cfg config.ImportConfig, logger *slog.Logger) *ImportService {
	mcfg := mapper.DefaultConfig()
	mcfg.DayFirst = cfg.DayFirst
	if cfg.Currency != "" {
		mcfg.CurrencyCode = cfg.Currency
	}

	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	maxNotes := cfg.MaxNotes
	if maxNotes <= 0 {
		maxNotes = defaultMaxNotes
	}

	return &ImportService{
		repo:      repo,
		mapper:    mapper.New(mcfg),
		logger:    logger,
		chunkSize: chunkSize,
		maxNotes:  maxNotes,
		expand:    cfg.ExpandInstallments,
	}
}

// WithCategorizer resolves a category for every mapped row.
func (s *ImportService) WithCategorizer(c CategoryResolver) *ImportService {
	s.categories = c
	return s
}

// WithArchive stores every raw upload before it is processed.
func (s *ImportService) WithArchive(st storage.Storage) *ImportService {
	s.archive = st
	return s
}

// WithMetrics records import outcomes on m.
func (s *ImportService) WithMetrics(m *metrics.Metrics) *ImportService {
	s.metrics = m
	return s
}

// Import decodes req.Data completely, then persists every row in chunks.
// Decode errors return before any batch exists. Once a batch exists, a
// storage error marks it failed; chunks committed before the error stay.
func (s *ImportService) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	started := time.Now()
	ctx, span := tracer.Start(ctx, "import.Import", trace.WithAttributes(
		attribute.String("user.id", req.UserID.String()),
		attribute.Int("file.size", len(req.Data)),
	))
	defer span.End()

	sourceType, err := decoder.ParseSourceType(req.SourceType)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	table, err := s.decode(ctx, req, sourceType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	source := repository.Source(table.Source())
	span.SetAttributes(
		attribute.String("import.source", string(source)),
		attribute.Int("import.rows", table.Len()),
		attribute.String("import.layout", table.Layout()),
	)
	s.logger.Debug("statement decoded",
		"user_id", req.UserID,
		"source", source,
		"layout", table.Layout(),
		"delimiter", string(table.Delimiter()),
		"sheet", table.Sheet(),
		"rows", table.Len(),
	)

	in := planInput{
		UserID:             req.UserID,
		AccountID:          req.AccountID,
		Source:             source,
		ExpandInstallments: s.expand,
	}
	if s.categories != nil {
		resolver, err := s.categories.Resolver(ctx, req.UserID)
		if err != nil {
			s.logger.Warn("categorization unavailable, importing without categories",
				"user_id", req.UserID, slog.Any("error", err))
		} else {
			in.Resolver = resolver
		}
	}

	results := planRows(table, s.mapper.ForTable(table, mapper.TableOptions{Columns: req.Columns}), in)

	batch := &repository.ImportBatch{
		ID:         uuid.New(),
		UserID:     req.UserID,
		AccountID:  req.AccountID,
		SourceType: source,
		Filename:   req.Filename,
		Status:     repository.BatchStatusRunning,
	}
	archiveID := s.archiveUpload(ctx, req, source)
	if archiveID != nil {
		id := archiveID.String()
		batch.ArchiveFileID = &id
	}

	if err := s.repo.CreateImportBatch(ctx, batch); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create import batch: %w", err)
	}
	span.SetAttributes(attribute.String("import.batch_id", batch.ID.String()))

	var acc tally
	for i, chunk := range chunks(results, s.chunkSize) {
		writes := make([]repository.RowWrite, len(chunk))
		for j, r := range chunk {
			writes[j] = r.write(batch)
		}

		outcomes, err := s.repo.PersistRows(ctx, batch, writes)
		if err != nil {
			return nil, s.fail(ctx, span, batch, fmt.Errorf("failed to persist rows: %w", err))
		}
		acc = reduce(acc, chunk, outcomes, s.maxNotes)

		s.logger.Debug("import chunk persisted",
			"batch_id", batch.ID,
			"chunk", i,
			"rows", len(chunk),
			"inserted", acc.Inserted,
		)
	}

	batch.Status = acc.status()
	batch.Notes = acc.notes()
	batch.InsertedCount = acc.Inserted
	batch.DuplicateCount = acc.Duplicates
	batch.PendingCount = acc.Pending
	if err := s.repo.FinalizeImportBatch(ctx, batch); err != nil {
		return nil, s.fail(ctx, span, batch, fmt.Errorf("failed to finalize import batch: %w", err))
	}

	s.metrics.ObserveImport(string(source), string(batch.Status), time.Since(started))
	s.metrics.AddRows(metrics.OutcomeInserted, acc.Inserted)
	s.metrics.AddRows(metrics.OutcomeDuplicate, acc.Duplicates)
	s.metrics.AddRows(metrics.OutcomePending, acc.Pending)

	s.logger.Info("import finished",
		"batch_id", batch.ID,
		"user_id", req.UserID,
		"source", source,
		"layout", table.Layout(),
		"status", batch.Status,
		"rows", len(results),
		"inserted", acc.Inserted,
		"duplicates", acc.Duplicates,
		"pending", acc.Pending,
	)

	return &ImportResult{
		BatchID:       batch.ID,
		Status:        batch.Status,
		RowsTotal:     len(results),
		Inserted:      acc.Inserted,
		Duplicates:    acc.Duplicates,
		Pending:       acc.Pending,
		Notes:         acc.Notes,
		Layout:        table.Layout(),
		Sheet:         table.Sheet(),
		ArchiveFileID: archiveID,
	}, nil
}

func (s *ImportService) decode(ctx context.Context, req ImportRequest, sourceType decoder.SourceType) (*decoder.Table, error) {
	_, span := tracer.Start(ctx, "import.Decode")
	defer span.End()

	table, err := decoder.Decode(req.Data, decoder.Options{
		SourceType: sourceType,
		Passphrase: req.Passphrase,
		HeaderRow:  req.HeaderRow,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Info("statement rejected", "user_id", req.UserID, "filename", req.Filename, slog.Any("error", err))
		return nil, err
	}
	return table, nil
}

// archiveUpload stores the raw file. Failures are logged and never fail the
// import.
func (s *ImportService) archiveUpload(ctx context.Context, req ImportRequest, source repository.Source) *uuid.UUID {
	if s.archive == nil {
		return nil
	}
	name := req.Filename
	if strings.TrimSpace(name) == "" {
		name = "statement." + string(source)
	}
	info, err := s.archive.Upload(ctx, req.UserID, name, contentType(source), bytes.NewReader(req.Data))
	if err != nil {
		s.logger.Warn("failed to archive upload", "user_id", req.UserID, "filename", name, slog.Any("error", err))
		return nil
	}
	return &info.ID
}

// fail marks the batch failed, best effort, and returns err.
func (s *ImportService) fail(ctx context.Context, span trace.Span, batch *repository.ImportBatch, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if markErr := s.repo.MarkBatchFailed(context.WithoutCancel(ctx), batch.ID, err.Error()); markErr != nil {
		s.logger.Warn("failed to mark import batch failed", "batch_id", batch.ID, slog.Any("error", markErr))
	}
	s.metrics.ObserveImport(string(batch.SourceType), string(repository.BatchStatusFailed), 0)
	s.logger.Error("import failed", "batch_id", batch.ID, "user_id", batch.UserID, slog.Any("error", err))
	return err
}

func contentType(source repository.Source) string {
	if source == repository.SourceXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}
