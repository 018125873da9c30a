// Package repository persists conversions, their transactions and the
// export artifacts produced from them.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

// DB is the subset of pgxpool.Pool used by the repository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ConversionStatus is the outcome of one parse.
type ConversionStatus string

const (
	StatusCompleted ConversionStatus = "completed"
	StatusFailed    ConversionStatus = "failed"
)

// Conversion records one parse request.
type Conversion struct {
	ID               uuid.UUID                  `json:"id"`
	UserID           string                     `json:"userId"`
	FileName         string                     `json:"fileName"`
	BankType         string                     `json:"bankType,omitempty"`
	ExtractionMethod statement.ExtractionMethod `json:"extractionMethod,omitempty"`
	PagesTotal       int                        `json:"pagesTotal"`
	PagesProcessed   int                        `json:"pagesProcessed"`
	Truncated        bool                       `json:"truncated"`
	AIEnhanced       bool                       `json:"aiEnhanced"`
	TransactionCount int                        `json:"transactionCount"`
	Status           ConversionStatus           `json:"status"`
	ErrorKind        statement.ErrorKind        `json:"errorKind,omitempty"`
	Error            string                     `json:"error,omitempty"`
	CreatedAt        time.Time                  `json:"createdAt"`
}

// ConversionFromResult builds the record of a finished parse.
func ConversionFromResult(userID, fileName string, res *statement.ParseResult) *Conversion {
	c := &Conversion{
		UserID:           userID,
		FileName:         fileName,
		BankType:         res.BankType,
		ExtractionMethod: res.Metadata.ExtractionMethod,
		PagesTotal:       res.Metadata.PagesTotal,
		PagesProcessed:   res.Metadata.PagesProcessed,
		Truncated:        res.Metadata.Truncated,
		AIEnhanced:       res.Metadata.AIEnhanced,
		TransactionCount: len(res.Transactions),
		Status:           StatusCompleted,
	}
	if !res.Success {
		c.Status = StatusFailed
		c.ErrorKind = res.ErrorKind
		c.Error = res.Error
	}
	return c
}

// TransactionPatch holds the user-editable fields. Nil fields are left
// unchanged.
type TransactionPatch struct {
	Description     *string                    `json:"description" validate:"omitempty,min=1,max=500"`
	Category        *string                    `json:"category" validate:"omitempty,max=64"`
	TransactionType *statement.TransactionType `json:"transactionType" validate:"omitempty,oneof=credit debit"`
}

// Empty reports whether the patch changes nothing.
func (p TransactionPatch) Empty() bool {
	return p.Description == nil && p.Category == nil && p.TransactionType == nil
}

// Artifact is a stored export file.
type Artifact struct {
	ID           uuid.UUID  `json:"id"`
	UserID       string     `json:"userId"`
	ConversionID *uuid.UUID `json:"conversionId,omitempty"`
	FileName     string     `json:"fileName"`
	MimeType     string     `json:"mimeType"`
	StorageKey   string     `json:"-"`
	Size         int64      `json:"size"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Repository stores conversions in Postgres.
type Repository struct {
	db DB
}

// NewRepository creates a repository.
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

const conversionColumns = `id, user_id, file_name, bank_type, extraction_method, pages_total,
		pages_processed, truncated, ai_enhanced, transaction_count, status, error_kind, error, created_at`

const transactionColumns = `t.id, t.conversion_id, t.position, t.date, t.description, t.normalized_merchant,
		t.amount, t.balance, t.transaction_type, t.category, t.subcategory, t.confidence,
		t.ai_reasoning, t.ai_processed, t.anomaly, t.source_file, t.page`

// CreateConversion inserts c and fills its ID and CreatedAt.
func (r *Repository) CreateConversion(ctx context.Context, c *Conversion) error {
	query := `
		INSERT INTO conversions (
			user_id, file_name, bank_type, extraction_method, pages_total, pages_processed,
			truncated, ai_enhanced, transaction_count, status, error_kind, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		c.UserID,
		c.FileName,
		c.BankType,
		string(c.ExtractionMethod),
		c.PagesTotal,
		c.PagesProcessed,
		c.Truncated,
		c.AIEnhanced,
		c.TransactionCount,
		string(c.Status),
		string(c.ErrorKind),
		c.Error,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create conversion: %w", err)
	}
	return nil
}

// GetConversion returns a conversion owned by userID.
func (r *Repository) GetConversion(ctx context.Context, userID string, id uuid.UUID) (*Conversion, error) {
	query := `SELECT ` + conversionColumns + ` FROM conversions WHERE id = $1 AND user_id = $2`

	var (
		c                            Conversion
		method, status, kind, errMsg string
	)
	err := r.db.QueryRow(ctx, query, id, userID).Scan(
		&c.ID, &c.UserID, &c.FileName, &c.BankType, &method, &c.PagesTotal,
		&c.PagesProcessed, &c.Truncated, &c.AIEnhanced, &c.TransactionCount,
		&status, &kind, &errMsg, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversion %s: %w", id, statement.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversion: %w", err)
	}
	c.ExtractionMethod = statement.ExtractionMethod(method)
	c.Status = ConversionStatus(status)
	c.ErrorKind = statement.ErrorKind(kind)
	c.Error = errMsg
	return &c, nil
}

// SaveTransactions stores txs under a conversion in one batch, keeping
// their order.
func (r *Repository) SaveTransactions(ctx context.Context, conversionID uuid.UUID, txs []statement.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO transactions (
			id, conversion_id, position, date, description, normalized_merchant, amount,
			balance, transaction_type, category, subcategory, confidence, ai_reasoning,
			ai_processed, anomaly, source_file, page
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	batch := &pgx.Batch{}
	for i, t := range txs {
		anomaly, err := encodeAnomaly(t.Anomaly)
		if err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}
		batch.Queue(query,
			t.ID,
			conversionID,
			i,
			dateValue(t.Date),
			t.Description,
			t.NormalizedMerchant,
			t.Amount.Abs(),
			t.Balance,
			string(t.Type),
			t.Category,
			t.Subcategory,
			t.Confidence,
			t.AIReasoning,
			t.AIProcessed,
			anomaly,
			t.SourceFile,
			t.Page,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert transactions: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transactions: %w", err)
	}
	return nil
}

// Record stores a finished parse, successful or not, and returns the new
// conversion id.
func (r *Repository) Record(ctx context.Context, userID, fileName string, res *statement.ParseResult) (uuid.UUID, error) {
	c := ConversionFromResult(userID, fileName, res)
	if err := r.CreateConversion(ctx, c); err != nil {
		return uuid.Nil, err
	}
	if err := r.SaveTransactions(ctx, c.ID, res.Transactions); err != nil {
		return c.ID, err
	}
	return c.ID, nil
}

// ListTransactions returns a conversion's transactions in statement order.
func (r *Repository) ListTransactions(ctx context.Context, userID string, conversionID uuid.UUID) ([]statement.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions t
		JOIN conversions c ON c.id = t.conversion_id
		WHERE t.conversion_id = $1 AND c.user_id = $2
		ORDER BY t.position
	`
	rows, err := r.db.Query(ctx, query, conversionID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	txs := []statement.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// UpdateTransaction applies the user-editable fields of patch to a
// transaction the user owns. A statement converted twice shares
// transaction ids, so every copy the user owns is updated and one of them
// is returned.
func (r *Repository) UpdateTransaction(ctx context.Context, userID string, txID uuid.UUID, patch TransactionPatch) (*statement.Transaction, error) {
	if patch.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", statement.ErrValidation)
	}
	var txType *string
	if patch.TransactionType != nil {
		s := string(*patch.TransactionType)
		txType = &s
	}

	query := `
		UPDATE transactions t SET
			description = COALESCE($3, t.description),
			category = COALESCE($4, t.category),
			transaction_type = COALESCE($5, t.transaction_type)
		FROM conversions c
		WHERE c.id = t.conversion_id AND t.id = $1 AND c.user_id = $2
		RETURNING ` + transactionColumns + `
	`
	row := r.db.QueryRow(ctx, query, txID, userID, patch.Description, patch.Category, txType)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", txID, statement.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	return t, nil
}

// CountConversionsSince counts the user's successful conversions created
// at or after since.
func (r *Repository) CountConversionsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `SELECT count(*) FROM conversions WHERE user_id = $1 AND status = $2 AND created_at >= $3`

	var n int
	if err := r.db.QueryRow(ctx, query, userID, string(StatusCompleted), since).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count conversions: %w", err)
	}
	return n, nil
}

// DeleteConversionsBefore removes conversions older than cutoff together
// with their transactions.
func (r *Repository) DeleteConversionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM conversions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete conversions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CreateArtifact records a stored export and fills its ID and CreatedAt.
func (r *Repository) CreateArtifact(ctx context.Context, a *Artifact) error {
	query := `
		INSERT INTO artifacts (user_id, conversion_id, file_name, mime_type, storage_key, size)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query, a.UserID, a.ConversionID, a.FileName, a.MimeType, a.StorageKey, a.Size).
		Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create artifact: %w", err)
	}
	return nil
}

// GetArtifact returns an artifact owned by userID.
func (r *Repository) GetArtifact(ctx context.Context, userID string, id uuid.UUID) (*Artifact, error) {
	query := `
		SELECT id, user_id, conversion_id, file_name, mime_type, storage_key, size, created_at
		FROM artifacts WHERE id = $1 AND user_id = $2
	`
	var a Artifact
	err := r.db.QueryRow(ctx, query, id, userID).Scan(
		&a.ID, &a.UserID, &a.ConversionID, &a.FileName, &a.MimeType, &a.StorageKey, &a.Size, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("artifact %s: %w", id, statement.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return &a, nil
}

// DeleteArtifactsBefore removes artifact records older than cutoff and
// returns their storage keys so the files can be deleted.
func (r *Repository) DeleteArtifactsBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, `DELETE FROM artifacts WHERE created_at < $1 RETURNING storage_key`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to delete artifacts: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func scanTransaction(row pgx.Row) (*statement.Transaction, error) {
	var (
		t            statement.Transaction
		conversionID uuid.UUID
		position     int
		date         time.Time
		balance      *decimal.Decimal
		txType       string
		anomaly      []byte
	)
	err := row.Scan(
		&t.ID, &conversionID, &position, &date, &t.Description, &t.NormalizedMerchant,
		&t.Amount, &balance, &txType, &t.Category, &t.Subcategory, &t.Confidence,
		&t.AIReasoning, &t.AIProcessed, &anomaly, &t.SourceFile, &t.Page,
	)
	if err != nil {
		return nil, err
	}
	t.Date = civil.DateOf(date)
	t.Balance = balance
	t.Type = statement.TransactionType(txType)
	if len(anomaly) > 0 && string(anomaly) != "null" {
		var a statement.Anomaly
		if err := json.Unmarshal(anomaly, &a); err != nil {
			return nil, fmt.Errorf("decode anomaly: %w", err)
		}
		t.Anomaly = &a
	}
	return &t, nil
}

func encodeAnomaly(a *statement.Anomaly) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode anomaly: %w", err)
	}
	return b, nil
}

func dateValue(d civil.Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}
