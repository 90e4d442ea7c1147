package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Pool is the subset of *pgxpool.Pool the repository uses. pgxmock pools
// satisfy it in tests.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository implements Repository on PostgreSQL.
type PostgresRepository struct {
	pool Pool
}

// NewPostgresRepository creates a new PostgreSQL ledger repository
func NewPostgresRepository(pool Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

var _ Repository = (*PostgresRepository)(nil)

const pgTransactionColumns = `id, user_id, account_id, date, description, amount_cents, category_id, source,
	installment_group_id, installment_index, installment_total, fingerprint, import_batch_id, created_at`

const pgInsertTransaction = `
	INSERT INTO transactions (id, user_id, account_id, date, description, amount_cents, category_id, source,
		installment_group_id, installment_index, installment_total, fingerprint, import_batch_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT DO NOTHING`

const pgPendingColumns = `id, import_batch_id, user_id, row_number, raw, error, status, duplicate,
	suggested_account_id, resolved_transaction_id, created_at, resolved_at`

const pgBatchColumns = `id, user_id, account_id, source_type, filename, archive_file_id, status, notes,
	inserted_count, duplicate_count, pending_count, resolved_count, created_at, finished_at`

// ============================================================================
// Import batches
// ============================================================================

// CreateImportBatch inserts a new batch in the running state
func (r *PostgresRepository) CreateImportBatch(ctx context.Context, batch *ImportBatch) error {
	query := `
		INSERT INTO import_batches (id, user_id, account_id, source_type, filename, archive_file_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}
	if batch.Status == "" {
		batch.Status = BatchStatusRunning
	}

	err := r.pool.QueryRow(ctx, query,
		batch.ID,
		batch.UserID,
		batch.AccountID,
		batch.SourceType,
		batch.Filename,
		batch.ArchiveFileID,
		batch.Status,
	).Scan(&batch.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create import batch: %w", err)
	}
	return nil
}

// PersistRows writes one chunk of rows inside a single transaction
func (r *PostgresRepository) PersistRows(ctx context.Context, batch *ImportBatch, rows []RowWrite) ([]RowOutcome, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	outcomes := make([]RowOutcome, len(rows))
	for i, row := range rows {
		if row.Pending != nil {
			if err := pgInsertPending(ctx, tx, row.Pending); err != nil {
				return nil, err
			}
			outcomes[i].Pending = true
			continue
		}

		if row.Group != nil {
			if err := pgInsertGroup(ctx, tx, row.Group, true); err != nil {
				return nil, err
			}
		}
		for j := range row.Transactions {
			inserted, err := pgInsertTransactionRow(ctx, tx, &row.Transactions[j])
			if err != nil {
				return nil, err
			}
			if inserted {
				outcomes[i].Inserted++
			} else {
				outcomes[i].Duplicates++
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit rows: %w", err)
	}
	return outcomes, nil
}

// FinalizeImportBatch stores the final counts, status and notes
func (r *PostgresRepository) FinalizeImportBatch(ctx context.Context, batch *ImportBatch) error {
	query := `
		UPDATE import_batches
		SET status = $2, notes = $3, inserted_count = $4, duplicate_count = $5, pending_count = $6,
			archive_file_id = $7, finished_at = now()
		WHERE id = $1
		RETURNING finished_at`

	var finished time.Time
	err := r.pool.QueryRow(ctx, query,
		batch.ID,
		batch.Status,
		batch.Notes,
		batch.InsertedCount,
		batch.DuplicateCount,
		batch.PendingCount,
		batch.ArchiveFileID,
	).Scan(&finished)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to finalize import batch: %w", err)
	}
	batch.FinishedAt = &finished
	return nil
}

// MarkBatchFailed flags a batch whose rows could not be persisted
func (r *PostgresRepository) MarkBatchFailed(ctx context.Context, batchID uuid.UUID, notes string) error {
	query := `UPDATE import_batches SET status = $2, notes = $3, finished_at = now() WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, batchID, BatchStatusFailed, notes)
	if err != nil {
		return fmt.Errorf("failed to mark import batch failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetImportBatch retrieves a batch owned by the user
func (r *PostgresRepository) GetImportBatch(ctx context.Context, userID, batchID uuid.UUID) (*ImportBatch, error) {
	query := `SELECT ` + pgBatchColumns + ` FROM import_batches WHERE id = $1 AND user_id = $2`
	batch, err := scanBatch(r.pool.QueryRow(ctx, query, batchID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get import batch: %w", err)
	}
	return batch, nil
}

// ListBatchTransactions returns the transactions inserted by a batch
func (r *PostgresRepository) ListBatchTransactions(ctx context.Context, userID, batchID uuid.UUID) ([]Transaction, error) {
	query := `SELECT ` + pgTransactionColumns + `
		FROM transactions
		WHERE user_id = $1 AND import_batch_id = $2
		ORDER BY date, created_at, id`
	return r.queryTransactions(ctx, query, userID, batchID)
}

// ============================================================================
// Review queue
// ============================================================================

// ListPending returns the user's pending rows in batch order, then row number
func (r *PostgresRepository) ListPending(ctx context.Context, userID uuid.UUID) ([]PendingReviewRow, error) {
	query := `
		SELECT p.id, p.import_batch_id, p.user_id, p.row_number, p.raw, p.error, p.status, p.duplicate,
			p.suggested_account_id, p.resolved_transaction_id, p.created_at, p.resolved_at
		FROM pending_review_rows p
		JOIN import_batches b ON b.id = p.import_batch_id
		WHERE p.user_id = $1 AND p.status = 'pending'
		ORDER BY b.created_at, b.id, p.row_number`
	return r.queryPending(ctx, query, userID)
}

// ListBatchPending returns the pending rows of one batch
func (r *PostgresRepository) ListBatchPending(ctx context.Context, userID, batchID uuid.UUID) ([]PendingReviewRow, error) {
	query := `SELECT ` + pgPendingColumns + `
		FROM pending_review_rows
		WHERE user_id = $1 AND import_batch_id = $2 AND status = 'pending'
		ORDER BY row_number`
	return r.queryPending(ctx, query, userID, batchID)
}

// ConfirmPending turns a pending row into a transaction
func (r *PostgresRepository) ConfirmPending(ctx context.Context, userID, pendingID uuid.UUID, build ConfirmFunc) (*ConfirmResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	row, err := scanPending(tx.QueryRow(ctx,
		`SELECT `+pgPendingColumns+` FROM pending_review_rows WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		pendingID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock pending row: %w", err)
	}
	if row.Status != PendingStatusPending {
		return nil, &NotPendingError{Status: row.Status}
	}

	batch, err := scanBatch(tx.QueryRow(ctx,
		`SELECT `+pgBatchColumns+` FROM import_batches WHERE id = $1 FOR UPDATE`, row.ImportBatchID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock import batch: %w", err)
	}

	t, err := build(*row, *batch)
	if err != nil {
		return nil, err
	}

	inserted, err := pgInsertTransactionRow(ctx, tx, &t)
	if err != nil {
		return nil, err
	}

	result := &ConfirmResult{}
	now := time.Now().UTC()
	if inserted {
		row.Status = PendingStatusResolved
		row.ResolvedTransactionID = &t.ID
		result.Transaction = &t
		_, err = tx.Exec(ctx, `
			UPDATE pending_review_rows
			SET status = $2, resolved_transaction_id = $3, resolved_at = $4
			WHERE id = $1`, row.ID, row.Status, t.ID, now)
	} else {
		var existing uuid.UUID
		err = tx.QueryRow(ctx, `
			SELECT id FROM transactions
			WHERE user_id = $1 AND account_id IS NOT DISTINCT FROM $2 AND fingerprint = $3`,
			t.UserID, t.AccountID, t.Fingerprint).Scan(&existing)
		if err != nil {
			return nil, fmt.Errorf("failed to find duplicate transaction: %w", err)
		}
		row.Status = PendingStatusDuplicate
		row.Duplicate = true
		result.ExistingID = &existing
		_, err = tx.Exec(ctx, `
			UPDATE pending_review_rows
			SET status = $2, duplicate = true, resolved_at = $3
			WHERE id = $1`, row.ID, row.Status, now)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update pending row: %w", err)
	}
	row.ResolvedAt = &now

	resolved := 0
	if inserted {
		resolved = 1
	}
	_, err = tx.Exec(ctx, `
		UPDATE import_batches
		SET resolved_count = resolved_count + $2,
			status = CASE
				WHEN NOT EXISTS (
					SELECT 1 FROM pending_review_rows WHERE import_batch_id = $1 AND status = 'pending'
				) AND status IN ('partial', 'needs_review') THEN 'ok'
				ELSE status
			END
		WHERE id = $1`, batch.ID, resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to update import batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit confirmation: %w", err)
	}

	result.Row = *row
	return result, nil
}

// ============================================================================
// Installment groups
// ============================================================================

// CreateInstallmentGroup inserts a group and all of its members atomically
func (r *PostgresRepository) CreateInstallmentGroup(ctx context.Context, group *InstallmentGroup, members []Transaction) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := pgInsertGroup(ctx, tx, group, false); err != nil {
		return err
	}
	for i := range members {
		inserted, err := pgInsertTransactionRow(ctx, tx, &members[i])
		if err != nil {
			return err
		}
		if !inserted {
			return fmt.Errorf("installment %d: %w", i+1, ErrDuplicate)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit installment group: %w", err)
	}
	return nil
}

// GetInstallmentGroup retrieves a group owned by the user
func (r *PostgresRepository) GetInstallmentGroup(ctx context.Context, userID, groupID uuid.UUID) (*InstallmentGroup, error) {
	query := `
		SELECT id, user_id, base_description, total_cents, installment_count, interval_months, start_date,
			category_id, account_id, created_at
		FROM installment_groups
		WHERE id = $1 AND user_id = $2`

	g := &InstallmentGroup{}
	err := r.pool.QueryRow(ctx, query, groupID, userID).Scan(
		&g.ID,
		&g.UserID,
		&g.BaseDescription,
		&g.TotalCents,
		&g.Count,
		&g.IntervalMonths,
		&g.StartDate,
		&g.CategoryID,
		&g.AccountID,
		&g.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get installment group: %w", err)
	}
	return g, nil
}

// DeleteInstallmentGroup removes a group; its members go with it
func (r *PostgresRepository) DeleteInstallmentGroup(ctx context.Context, userID, groupID uuid.UUID) error {
	query := `DELETE FROM installment_groups WHERE id = $1 AND user_id = $2`
	result, err := r.pool.Exec(ctx, query, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete installment group: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListGroupTransactions returns the members of a group in installment order
func (r *PostgresRepository) ListGroupTransactions(ctx context.Context, userID, groupID uuid.UUID) ([]Transaction, error) {
	if _, err := r.GetInstallmentGroup(ctx, userID, groupID); err != nil {
		return nil, err
	}
	query := `SELECT ` + pgTransactionColumns + `
		FROM transactions
		WHERE user_id = $1 AND installment_group_id = $2
		ORDER BY installment_index, date`
	return r.queryTransactions(ctx, query, userID, groupID)
}

// ============================================================================
// Categories
// ============================================================================

// ListCategories returns the user's categories and the shared ones
func (r *PostgresRepository) ListCategories(ctx context.Context, userID uuid.UUID) ([]Category, error) {
	query := `
		SELECT id, user_id, name, parent_id
		FROM categories
		WHERE user_id = $1 OR user_id IS NULL
		ORDER BY user_id NULLS LAST, name`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.ParentID); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// ListCategoryRules returns the user's rules and the shared ones, highest priority first
func (r *PostgresRepository) ListCategoryRules(ctx context.Context, userID uuid.UUID) ([]CategoryRule, error) {
	query := `
		SELECT id, user_id, category_id, pattern, priority
		FROM category_rules
		WHERE user_id = $1 OR user_id IS NULL
		ORDER BY priority DESC, created_at`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list category rules: %w", err)
	}
	defer rows.Close()

	var rules []CategoryRule
	for rows.Next() {
		var rule CategoryRule
		if err := rows.Scan(&rule.ID, &rule.UserID, &rule.CategoryID, &rule.Pattern, &rule.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan category rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ============================================================================
// Helpers
// ============================================================================

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// pgInsertTransactionRow inserts t and reports whether it was new. A row
// skipped by the fingerprint index is not an error.
func pgInsertTransactionRow(ctx context.Context, tx pgExecer, t *Transaction) (bool, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	result, err := tx.Exec(ctx, pgInsertTransaction,
		t.ID,
		t.UserID,
		t.AccountID,
		t.Date,
		t.Description,
		t.AmountCents,
		t.CategoryID,
		t.Source,
		t.InstallmentGroupID,
		t.InstallmentIndex,
		t.InstallmentTotal,
		t.Fingerprint,
		t.ImportBatchID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func pgInsertGroup(ctx context.Context, tx pgExecer, g *InstallmentGroup, skipExisting bool) error {
	query := `
		INSERT INTO installment_groups (id, user_id, base_description, total_cents, installment_count,
			interval_months, start_date, category_id, account_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if skipExisting {
		query += ` ON CONFLICT (id) DO NOTHING`
	}

	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	_, err := tx.Exec(ctx, query,
		g.ID,
		g.UserID,
		g.BaseDescription,
		g.TotalCents,
		g.Count,
		g.IntervalMonths,
		g.StartDate,
		g.CategoryID,
		g.AccountID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert installment group: %w", err)
	}
	return nil
}

func pgInsertPending(ctx context.Context, tx pgExecer, p *PendingReviewRow) error {
	raw, err := json.Marshal(p.Raw)
	if err != nil {
		return fmt.Errorf("failed to encode raw row: %w", err)
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = PendingStatusPending
	}

	query := `
		INSERT INTO pending_review_rows (id, import_batch_id, user_id, row_number, raw, error, status,
			suggested_account_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = tx.Exec(ctx, query,
		p.ID,
		p.ImportBatchID,
		p.UserID,
		p.RowNumber,
		raw,
		p.Error,
		p.Status,
		p.SuggestedAccountID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert pending row: %w", err)
	}
	return nil
}

func (r *PostgresRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.AccountID,
			&t.Date,
			&t.Description,
			&t.AmountCents,
			&t.CategoryID,
			&t.Source,
			&t.InstallmentGroupID,
			&t.InstallmentIndex,
			&t.InstallmentTotal,
			&t.Fingerprint,
			&t.ImportBatchID,
			&t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (r *PostgresRepository) queryPending(ctx context.Context, query string, args ...any) ([]PendingReviewRow, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending rows: %w", err)
	}
	defer rows.Close()

	var out []PendingReviewRow
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending row: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanPending(row pgx.Row) (*PendingReviewRow, error) {
	var (
		p   PendingReviewRow
		raw []byte
	)
	if err := row.Scan(
		&p.ID,
		&p.ImportBatchID,
		&p.UserID,
		&p.RowNumber,
		&raw,
		&p.Error,
		&p.Status,
		&p.Duplicate,
		&p.SuggestedAccountID,
		&p.ResolvedTransactionID,
		&p.CreatedAt,
		&p.ResolvedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &p.Raw); err != nil {
		return nil, fmt.Errorf("failed to decode raw row: %w", err)
	}
	return &p, nil
}

func scanBatch(row pgx.Row) (*ImportBatch, error) {
	var b ImportBatch
	if err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.AccountID,
		&b.SourceType,
		&b.Filename,
		&b.ArchiveFileID,
		&b.Status,
		&b.Notes,
		&b.InsertedCount,
		&b.DuplicateCount,
		&b.PendingCount,
		&b.ResolvedCount,
		&b.CreatedAt,
		&b.FinishedAt,
	); err != nil {
		return nil, err
	}
	return &b, nil
}
