package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	sqliteDateLayout = "2006-01-02"
	// Fixed width so timestamps sort as text.
	sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// SQLiteRepository implements Repository on an embedded SQLite database.
// The database handle must be limited to one connection.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite ledger repository
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

var _ Repository = (*SQLiteRepository)(nil)

const sqliteTransactionColumns = `id, user_id, account_id, date, description, amount_cents, category_id, source,
	installment_group_id, installment_index, installment_total, fingerprint, import_batch_id, created_at`

const sqlitePendingColumns = `id, import_batch_id, user_id, row_number, raw, error, status, duplicate,
	suggested_account_id, resolved_transaction_id, created_at, resolved_at`

const sqliteBatchColumns = `id, user_id, account_id, source_type, filename, archive_file_id, status, notes,
	inserted_count, duplicate_count, pending_count, resolved_count, created_at, finished_at`

// ============================================================================
// Import batches
// ============================================================================

// CreateImportBatch inserts a new batch in the running state
func (r *SQLiteRepository) CreateImportBatch(ctx context.Context, batch *ImportBatch) error {
	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}
	if batch.Status == "" {
		batch.Status = BatchStatusRunning
	}
	batch.CreatedAt = r.now()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO import_batches (id, user_id, account_id, source_type, filename, archive_file_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		batch.ID,
		batch.UserID,
		batch.AccountID,
		string(batch.SourceType),
		batch.Filename,
		batch.ArchiveFileID,
		string(batch.Status),
		formatTime(batch.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create import batch: %w", err)
	}
	return nil
}

// PersistRows writes one chunk of rows inside a single transaction
func (r *SQLiteRepository) PersistRows(ctx context.Context, batch *ImportBatch, rows []RowWrite) ([]RowOutcome, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	outcomes := make([]RowOutcome, len(rows))
	for i, row := range rows {
		if row.Pending != nil {
			if err := r.insertPending(ctx, tx, row.Pending); err != nil {
				return nil, err
			}
			outcomes[i].Pending = true
			continue
		}

		if row.Group != nil {
			if err := r.insertGroup(ctx, tx, row.Group, true); err != nil {
				return nil, err
			}
		}
		for j := range row.Transactions {
			inserted, err := r.insertTransaction(ctx, tx, &row.Transactions[j])
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

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rows: %w", err)
	}
	return outcomes, nil
}

// FinalizeImportBatch stores the final counts, status and notes
func (r *SQLiteRepository) FinalizeImportBatch(ctx context.Context, batch *ImportBatch) error {
	finished := r.now()
	result, err := r.db.ExecContext(ctx, `
		UPDATE import_batches
		SET status = ?, notes = ?, inserted_count = ?, duplicate_count = ?, pending_count = ?,
			archive_file_id = ?, finished_at = ?
		WHERE id = ?`,
		string(batch.Status),
		batch.Notes,
		batch.InsertedCount,
		batch.DuplicateCount,
		batch.PendingCount,
		batch.ArchiveFileID,
		formatTime(finished),
		batch.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize import batch: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	batch.FinishedAt = &finished
	return nil
}

// MarkBatchFailed flags a batch whose rows could not be persisted
func (r *SQLiteRepository) MarkBatchFailed(ctx context.Context, batchID uuid.UUID, notes string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE import_batches SET status = ?, notes = ?, finished_at = ? WHERE id = ?`,
		string(BatchStatusFailed), notes, formatTime(r.now()), batchID)
	if err != nil {
		return fmt.Errorf("failed to mark import batch failed: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetImportBatch retrieves a batch owned by the user
func (r *SQLiteRepository) GetImportBatch(ctx context.Context, userID, batchID uuid.UUID) (*ImportBatch, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sqliteBatchColumns+` FROM import_batches WHERE id = ? AND user_id = ?`, batchID, userID)
	batch, err := scanSQLiteBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get import batch: %w", err)
	}
	return batch, nil
}

// ListBatchTransactions returns the transactions inserted by a batch
func (r *SQLiteRepository) ListBatchTransactions(ctx context.Context, userID, batchID uuid.UUID) ([]Transaction, error) {
	return r.queryTransactions(ctx, `SELECT `+sqliteTransactionColumns+`
		FROM transactions
		WHERE user_id = ? AND import_batch_id = ?
		ORDER BY date, created_at, id`, userID, batchID)
}

// ============================================================================
// Review queue
// ============================================================================

// ListPending returns the user's pending rows in batch order, then row number
func (r *SQLiteRepository) ListPending(ctx context.Context, userID uuid.UUID) ([]PendingReviewRow, error) {
	return r.queryPending(ctx, `
		SELECT p.id, p.import_batch_id, p.user_id, p.row_number, p.raw, p.error, p.status, p.duplicate,
			p.suggested_account_id, p.resolved_transaction_id, p.created_at, p.resolved_at
		FROM pending_review_rows p
		JOIN import_batches b ON b.id = p.import_batch_id
		WHERE p.user_id = ? AND p.status = 'pending'
		ORDER BY b.created_at, b.id, p.row_number`, userID)
}

// ListBatchPending returns the pending rows of one batch
func (r *SQLiteRepository) ListBatchPending(ctx context.Context, userID, batchID uuid.UUID) ([]PendingReviewRow, error) {
	return r.queryPending(ctx, `SELECT `+sqlitePendingColumns+`
		FROM pending_review_rows
		WHERE user_id = ? AND import_batch_id = ? AND status = 'pending'
		ORDER BY row_number`, userID, batchID)
}

// ConfirmPending turns a pending row into a transaction. The single
// connection serializes confirmations, so no row lock is taken.
func (r *SQLiteRepository) ConfirmPending(ctx context.Context, userID, pendingID uuid.UUID, build ConfirmFunc) (*ConfirmResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	row, err := scanSQLitePending(tx.QueryRowContext(ctx,
		`SELECT `+sqlitePendingColumns+` FROM pending_review_rows WHERE id = ? AND user_id = ?`,
		pendingID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pending row: %w", err)
	}
	if row.Status != PendingStatusPending {
		return nil, &NotPendingError{Status: row.Status}
	}

	batch, err := scanSQLiteBatch(tx.QueryRowContext(ctx,
		`SELECT `+sqliteBatchColumns+` FROM import_batches WHERE id = ?`, row.ImportBatchID))
	if err != nil {
		return nil, fmt.Errorf("failed to load import batch: %w", err)
	}

	t, err := build(*row, *batch)
	if err != nil {
		return nil, err
	}

	inserted, err := r.insertTransaction(ctx, tx, &t)
	if err != nil {
		return nil, err
	}

	result := &ConfirmResult{}
	now := r.now()
	if inserted {
		row.Status = PendingStatusResolved
		row.ResolvedTransactionID = &t.ID
		result.Transaction = &t
		_, err = tx.ExecContext(ctx, `
			UPDATE pending_review_rows SET status = ?, resolved_transaction_id = ?, resolved_at = ?
			WHERE id = ?`, string(row.Status), t.ID, formatTime(now), row.ID)
	} else {
		var existing uuid.UUID
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM transactions WHERE user_id = ? AND account_id IS ? AND fingerprint = ?`,
			t.UserID, t.AccountID, t.Fingerprint).Scan(&existing)
		if err != nil {
			return nil, fmt.Errorf("failed to find duplicate transaction: %w", err)
		}
		row.Status = PendingStatusDuplicate
		row.Duplicate = true
		result.ExistingID = &existing
		_, err = tx.ExecContext(ctx, `
			UPDATE pending_review_rows SET status = ?, duplicate = 1, resolved_at = ?
			WHERE id = ?`, string(row.Status), formatTime(now), row.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update pending row: %w", err)
	}
	row.ResolvedAt = &now

	resolved := 0
	if inserted {
		resolved = 1
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE import_batches
		SET resolved_count = resolved_count + ?,
			status = CASE
				WHEN NOT EXISTS (
					SELECT 1 FROM pending_review_rows WHERE import_batch_id = import_batches.id AND status = 'pending'
				) AND status IN ('partial', 'needs_review') THEN 'ok'
				ELSE status
			END
		WHERE id = ?`, resolved, batch.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update import batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit confirmation: %w", err)
	}

	result.Row = *row
	return result, nil
}

// ============================================================================
// Installment groups
// ============================================================================

// CreateInstallmentGroup inserts a group and all of its members atomically
func (r *SQLiteRepository) CreateInstallmentGroup(ctx context.Context, group *InstallmentGroup, members []Transaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := r.insertGroup(ctx, tx, group, false); err != nil {
		return err
	}
	for i := range members {
		inserted, err := r.insertTransaction(ctx, tx, &members[i])
		if err != nil {
			return err
		}
		if !inserted {
			return fmt.Errorf("installment %d: %w", i+1, ErrDuplicate)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit installment group: %w", err)
	}
	return nil
}

// GetInstallmentGroup retrieves a group owned by the user
func (r *SQLiteRepository) GetInstallmentGroup(ctx context.Context, userID, groupID uuid.UUID) (*InstallmentGroup, error) {
	var (
		g                  InstallmentGroup
		startDate, created string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, base_description, total_cents, installment_count, interval_months, start_date,
			category_id, account_id, created_at
		FROM installment_groups
		WHERE id = ? AND user_id = ?`, groupID, userID).Scan(
		&g.ID,
		&g.UserID,
		&g.BaseDescription,
		&g.TotalCents,
		&g.Count,
		&g.IntervalMonths,
		&startDate,
		&g.CategoryID,
		&g.AccountID,
		&created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get installment group: %w", err)
	}
	if g.StartDate, err = time.Parse(sqliteDateLayout, startDate); err != nil {
		return nil, fmt.Errorf("failed to parse start date: %w", err)
	}
	if g.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &g, nil
}

// DeleteInstallmentGroup removes a group; its members go with it
func (r *SQLiteRepository) DeleteInstallmentGroup(ctx context.Context, userID, groupID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM installment_groups WHERE id = ? AND user_id = ?`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete installment group: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListGroupTransactions returns the members of a group in installment order
func (r *SQLiteRepository) ListGroupTransactions(ctx context.Context, userID, groupID uuid.UUID) ([]Transaction, error) {
	if _, err := r.GetInstallmentGroup(ctx, userID, groupID); err != nil {
		return nil, err
	}
	return r.queryTransactions(ctx, `SELECT `+sqliteTransactionColumns+`
		FROM transactions
		WHERE user_id = ? AND installment_group_id = ?
		ORDER BY installment_index, date`, userID, groupID)
}

// ============================================================================
// Categories
// ============================================================================

// ListCategories returns the user's categories and the shared ones
func (r *SQLiteRepository) ListCategories(ctx context.Context, userID uuid.UUID) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, parent_id
		FROM categories
		WHERE user_id = ? OR user_id IS NULL
		ORDER BY user_id IS NULL, name`, userID)
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
func (r *SQLiteRepository) ListCategoryRules(ctx context.Context, userID uuid.UUID) ([]CategoryRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, category_id, pattern, priority
		FROM category_rules
		WHERE user_id = ? OR user_id IS NULL
		ORDER BY priority DESC, created_at`, userID)
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

func (r *SQLiteRepository) insertTransaction(ctx context.Context, tx *sql.Tx, t *Transaction) (bool, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.now()
	}
	result, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, account_id, date, description, amount_cents, category_id, source,
			installment_group_id, installment_index, installment_total, fingerprint, import_batch_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		t.ID,
		t.UserID,
		t.AccountID,
		t.Date.Format(sqliteDateLayout),
		t.Description,
		t.AmountCents,
		t.CategoryID,
		string(t.Source),
		t.InstallmentGroupID,
		t.InstallmentIndex,
		t.InstallmentTotal,
		t.Fingerprint,
		t.ImportBatchID,
		formatTime(t.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert transaction: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) insertGroup(ctx context.Context, tx *sql.Tx, g *InstallmentGroup, skipExisting bool) error {
	query := `
		INSERT INTO installment_groups (id, user_id, base_description, total_cents, installment_count,
			interval_months, start_date, category_id, account_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if skipExisting {
		query += ` ON CONFLICT (id) DO NOTHING`
	}

	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = r.now()
	}
	_, err := tx.ExecContext(ctx, query,
		g.ID,
		g.UserID,
		g.BaseDescription,
		g.TotalCents,
		g.Count,
		g.IntervalMonths,
		g.StartDate.Format(sqliteDateLayout),
		g.CategoryID,
		g.AccountID,
		formatTime(g.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert installment group: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) insertPending(ctx context.Context, tx *sql.Tx, p *PendingReviewRow) error {
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
	p.CreatedAt = r.now()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pending_review_rows (id, import_batch_id, user_id, row_number, raw, error, status,
			suggested_account_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.ImportBatchID,
		p.UserID,
		p.RowNumber,
		string(raw),
		p.Error,
		string(p.Status),
		p.SuggestedAccountID,
		formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert pending row: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var (
			t                      Transaction
			date, source, created string
		)
		if err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.AccountID,
			&date,
			&t.Description,
			&t.AmountCents,
			&t.CategoryID,
			&source,
			&t.InstallmentGroupID,
			&t.InstallmentIndex,
			&t.InstallmentTotal,
			&t.Fingerprint,
			&t.ImportBatchID,
			&created,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if t.Date, err = time.Parse(sqliteDateLayout, date); err != nil {
			return nil, fmt.Errorf("failed to parse transaction date: %w", err)
		}
		if t.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		t.Source = Source(source)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (r *SQLiteRepository) queryPending(ctx context.Context, query string, args ...any) ([]PendingReviewRow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending rows: %w", err)
	}
	defer rows.Close()

	var out []PendingReviewRow
	for rows.Next() {
		p, err := scanSQLitePending(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending row: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

type sqliteScanner interface {
	Scan(dest ...any) error
}

func scanSQLitePending(row sqliteScanner) (*PendingReviewRow, error) {
	var (
		p                    PendingReviewRow
		raw, status, created string
		resolved             sql.NullString
	)
	if err := row.Scan(
		&p.ID,
		&p.ImportBatchID,
		&p.UserID,
		&p.RowNumber,
		&raw,
		&p.Error,
		&status,
		&p.Duplicate,
		&p.SuggestedAccountID,
		&p.ResolvedTransactionID,
		&created,
		&resolved,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &p.Raw); err != nil {
		return nil, fmt.Errorf("failed to decode raw row: %w", err)
	}
	p.Status = PendingStatus(status)

	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if p.ResolvedAt, err = parseNullTime(resolved); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanSQLiteBatch(row sqliteScanner) (*ImportBatch, error) {
	var (
		b                       ImportBatch
		source, status, created string
		finished                sql.NullString
	)
	if err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.AccountID,
		&source,
		&b.Filename,
		&b.ArchiveFileID,
		&status,
		&b.Notes,
		&b.InsertedCount,
		&b.DuplicateCount,
		&b.PendingCount,
		&b.ResolvedCount,
		&created,
		&finished,
	); err != nil {
		return nil, err
	}
	b.SourceType = Source(source)
	b.Status = BatchStatus(status)

	var err error
	if b.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if b.FinishedAt, err = parseNullTime(finished); err != nil {
		return nil, err
	}
	return &b, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
