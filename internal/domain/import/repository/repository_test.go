package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

var conversionCols = []string{
	"id", "user_id", "file_name", "bank_type", "extraction_method", "pages_total",
	"pages_processed", "truncated", "ai_enhanced", "transaction_count", "status",
	"error_kind", "error", "created_at",
}

var transactionCols = []string{
	"id", "conversion_id", "position", "date", "description", "normalized_merchant",
	"amount", "balance", "transaction_type", "category", "subcategory", "confidence",
	"ai_reasoning", "ai_processed", "anomaly", "source_file", "page",
}

func newMockRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRepository(mock), mock
}

func sampleTransactions() []statement.Transaction {
	balance := decimal.RequireFromString("2500.00")
	return []statement.Transaction{
		{
			ID:                 uuid.New(),
			Date:               civil.Date{Year: 2024, Month: 1, Day: 15},
			Description:        "WALMART SUPERCENTER #1234",
			NormalizedMerchant: "Walmart",
			Amount:             decimal.RequireFromString("125.67"),
			Balance:            &balance,
			Type:               statement.Debit,
			Category:           "Groceries",
			Confidence:         100,
			SourceFile:         "jan.pdf",
			Page:               1,
		},
		{
			ID:          uuid.New(),
			Date:        civil.Date{Year: 2024, Month: 1, Day: 16},
			Description: "INTL TXN FEE",
			Amount:      decimal.RequireFromString("3.00"),
			Type:        statement.Debit,
			Category:    "Fees",
			Confidence:  80,
			Anomaly:     &statement.Anomaly{Severity: statement.SeverityLow, Description: "Bank fee"},
			SourceFile:  "jan.pdf",
			Page:        1,
		},
	}
}

func TestCreateConversion(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()
	now := time.Now()

	res := &statement.ParseResult{
		Success:      true,
		BankType:     "Chase",
		Transactions: sampleTransactions(),
		Metadata: statement.Metadata{
			ExtractionMethod: statement.MethodNative,
			PagesTotal:       3,
			PagesProcessed:   3,
		},
	}
	c := ConversionFromResult("user-1", "jan.pdf", res)

	mock.ExpectQuery(`INSERT INTO conversions`).
		WithArgs("user-1", "jan.pdf", "Chase", "native", 3, 3, false, false, 2, "completed", "", "").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(id, now))

	require.NoError(t, repo.CreateConversion(context.Background(), c))
	assert.Equal(t, id, c.ID)
	assert.Equal(t, now, c.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_Failed(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	res := statement.Failed(statement.ErrOCRNotConfigured, statement.Metadata{PagesTotal: 2})
	mock.ExpectQuery(`INSERT INTO conversions`).
		WithArgs("user-1", "scan.pdf", "", "", 2, 0, false, false, 0, "failed", "configuration", statement.ErrOCRNotConfigured.Error()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(id, time.Now()))

	got, err := repo.Record(context.Background(), "user-1", "scan.pdf", res)
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversionFromResult_Failed(t *testing.T) {
	res := statement.Failed(statement.ErrNoTransactions, statement.Metadata{PagesTotal: 1})
	c := ConversionFromResult("user-1", "blank.pdf", res)

	assert.Equal(t, StatusFailed, c.Status)
	assert.Equal(t, statement.KindNoTransactions, c.ErrorKind)
	assert.Equal(t, statement.ErrNoTransactions.Error(), c.Error)
	assert.Zero(t, c.TransactionCount)
}

func TestGetConversion(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM conversions WHERE id = \$1 AND user_id = \$2`).
		WithArgs(id, "user-1").
		WillReturnRows(pgxmock.NewRows(conversionCols).AddRow(
			id, "user-1", "jan.pdf", "Chase", "ocr", 4, 2, true, true, 17, "completed", "", "", now,
		))

	c, err := repo.GetConversion(context.Background(), "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, statement.MethodOCR, c.ExtractionMethod)
	assert.True(t, c.Truncated)
	assert.Equal(t, 17, c.TransactionCount)
	assert.Equal(t, StatusCompleted, c.Status)
}

func TestGetConversion_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM conversions`).
		WithArgs(id, "user-2").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetConversion(context.Background(), "user-2", id)
	assert.ErrorIs(t, err, statement.ErrNotFound)
	assert.Equal(t, statement.KindNotFound, statement.Kind(err))
}

func TestSaveTransactions(t *testing.T) {
	repo, mock := newMockRepo(t)
	conversionID := uuid.New()
	txs := sampleTransactions()

	mock.ExpectBegin()
	batch := mock.ExpectBatch()
	for i, tx := range txs {
		batch.ExpectExec(`INSERT INTO transactions`).
			WithArgs(tx.ID, conversionID, i, pgxmock.AnyArg(), tx.Description, tx.NormalizedMerchant,
				pgxmock.AnyArg(), pgxmock.AnyArg(), "debit", tx.Category, tx.Subcategory, tx.Confidence,
				"", false, pgxmock.AnyArg(), "jan.pdf", 1).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	require.NoError(t, repo.SaveTransactions(context.Background(), conversionID, txs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveTransactions_Empty(t *testing.T) {
	repo, mock := newMockRepo(t)
	require.NoError(t, repo.SaveTransactions(context.Background(), uuid.New(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveTransactions_BeginFails(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	err := repo.SaveTransactions(context.Background(), uuid.New(), sampleTransactions())
	assert.ErrorContains(t, err, "pool exhausted")
}

func TestListTransactions(t *testing.T) {
	repo, mock := newMockRepo(t)
	conversionID := uuid.New()
	txs := sampleTransactions()
	balance := decimal.RequireFromString("2500.00")

	rows := pgxmock.NewRows(transactionCols).
		AddRow(txs[0].ID, conversionID, 0, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			txs[0].Description, "Walmart", decimal.RequireFromString("125.67"), &balance,
			"debit", "Groceries", "", 100, "", false, []byte(nil), "jan.pdf", 1).
		AddRow(txs[1].ID, conversionID, 1, time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),
			txs[1].Description, "", decimal.RequireFromString("3.00"), (*decimal.Decimal)(nil),
			"debit", "Fees", "", 80, "", false, []byte(`{"severity":"low","description":"Bank fee","recommendation":""}`), "jan.pdf", 1)

	mock.ExpectQuery(`SELECT .+ FROM transactions t\s+JOIN conversions c .+ORDER BY t.position`).
		WithArgs(conversionID, "user-1").
		WillReturnRows(rows)

	got, err := repo.ListTransactions(context.Background(), "user-1", conversionID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, civil.Date{Year: 2024, Month: 1, Day: 15}, got[0].Date)
	assert.Equal(t, "125.67", got[0].Amount.StringFixed(2))
	require.NotNil(t, got[0].Balance)
	assert.Equal(t, "2500.00", got[0].Balance.StringFixed(2))
	assert.Nil(t, got[0].Anomaly)

	assert.Nil(t, got[1].Balance)
	require.NotNil(t, got[1].Anomaly)
	assert.Equal(t, statement.SeverityLow, got[1].Anomaly.Severity)
}

func TestUpdateTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)
	txID := uuid.New()
	conversionID := uuid.New()
	category := "Housing"
	credit := statement.Credit

	mock.ExpectQuery(`UPDATE transactions t SET`).
		WithArgs(txID, "user-1", (*string)(nil), &category, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(transactionCols).AddRow(
			txID, conversionID, 4, time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC),
			"QWZX PLUMBING 0042", "Qwzx Plumbing", decimal.RequireFromString("12.50"), (*decimal.Decimal)(nil),
			"credit", "Housing", "", 80, "", false, []byte(nil), "jan.pdf", 1,
		))

	got, err := repo.UpdateTransaction(context.Background(), "user-1", txID, TransactionPatch{
		Category:        &category,
		TransactionType: &credit,
	})
	require.NoError(t, err)
	assert.Equal(t, "Housing", got.Category)
	assert.Equal(t, statement.Credit, got.Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTransaction_NotOwned(t *testing.T) {
	repo, mock := newMockRepo(t)
	txID := uuid.New()
	desc := "Plumber"

	mock.ExpectQuery(`UPDATE transactions t SET`).
		WithArgs(txID, "intruder", &desc, (*string)(nil), (*string)(nil)).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.UpdateTransaction(context.Background(), "intruder", txID, TransactionPatch{Description: &desc})
	assert.ErrorIs(t, err, statement.ErrNotFound)
}

func TestUpdateTransaction_EmptyPatch(t *testing.T) {
	repo, _ := newMockRepo(t)
	_, err := repo.UpdateTransaction(context.Background(), "user-1", uuid.New(), TransactionPatch{})
	assert.ErrorIs(t, err, statement.ErrValidation)
}

func TestCountConversionsSince(t *testing.T) {
	repo, mock := newMockRepo(t)
	since := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT count\(\*\) FROM conversions`).
		WithArgs("user-1", "completed", since).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	n, err := repo.CountConversionsSince(context.Background(), "user-1", since)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestDeleteConversionsBefore(t *testing.T) {
	repo, mock := newMockRepo(t)
	cutoff := time.Now().Add(-30 * 24 * time.Hour)

	mock.ExpectExec(`DELETE FROM conversions WHERE created_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := repo.DeleteConversionsBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestArtifacts(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()
	now := time.Now()

	a := &Artifact{UserID: "user-1", FileName: "jan.csv", MimeType: "text/csv; charset=utf-8", StorageKey: "exports/user-1/x.csv", Size: 120}
	mock.ExpectQuery(`INSERT INTO artifacts`).
		WithArgs("user-1", (*uuid.UUID)(nil), "jan.csv", "text/csv; charset=utf-8", "exports/user-1/x.csv", int64(120)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(id, now))
	require.NoError(t, repo.CreateArtifact(context.Background(), a))
	assert.Equal(t, id, a.ID)

	mock.ExpectQuery(`SELECT .+ FROM artifacts WHERE id = \$1 AND user_id = \$2`).
		WithArgs(id, "user-2").
		WillReturnError(pgx.ErrNoRows)
	_, err := repo.GetArtifact(context.Background(), "user-2", id)
	assert.ErrorIs(t, err, statement.ErrNotFound)

	cutoff := now.Add(-time.Hour)
	mock.ExpectQuery(`DELETE FROM artifacts WHERE created_at < \$1 RETURNING storage_key`).
		WithArgs(cutoff).
		WillReturnRows(pgxmock.NewRows([]string{"storage_key"}).AddRow("a").AddRow("b"))
	keys, err := repo.DeleteArtifactsBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	assert.NoError(t, mock.ExpectationsWereMet())
}
