package parser

import (
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

func TestReadCSV(t *testing.T) {
	t.Run("reads exported columns", func(t *testing.T) {
		csv := `Date,Description,Category,Amount,Balance,Type
2024-01-15,"WALMART SUPERCENTER, #1234",Groceries,-125.67,2500.00,debit
2024-01-20,"Say ""hi"" deposit",Income,3200.00,,credit`

		result, err := ReadCSV(strings.NewReader(csv))
		require.NoError(t, err)
		assert.Equal(t, 2, result.ParsedRows)
		assert.Empty(t, result.Errors)

		tx := result.Transactions[0]
		assert.Equal(t, civil.Date{Year: 2024, Month: 1, Day: 15}, tx.Date)
		assert.Equal(t, "WALMART SUPERCENTER, #1234", tx.Description)
		assertDecimal(t, "125.67", tx.Amount)
		assert.Equal(t, statement.Debit, tx.Type)
		require.NotNil(t, tx.Balance)
		assertDecimal(t, "2500", *tx.Balance)

		tx2 := result.Transactions[1]
		assert.Equal(t, `Say "hi" deposit`, tx2.Description)
		assert.Equal(t, statement.Credit, tx2.Type)
		assert.Nil(t, tx2.Balance)
	})

	t.Run("reads bulk columns", func(t *testing.T) {
		csv := `Date,Description,Normalized Merchant,Category,Subcategory,Amount,Balance,Type,Confidence %,Source File,Anomaly Detected
2024-02-01,NETFLIX.COM 866-579,Netflix,Entertainment,Streaming,-15.49,,debit,92%,feb.pdf,No`

		result, err := ReadCSV(strings.NewReader(csv))
		require.NoError(t, err)
		require.Len(t, result.Transactions, 1)

		tx := result.Transactions[0]
		assert.Equal(t, "Netflix", tx.NormalizedMerchant)
		assert.Equal(t, "Streaming", tx.Subcategory)
		assert.Equal(t, 92, tx.Confidence)
		assert.Equal(t, "feb.pdf", tx.SourceFile)
	})

	t.Run("accepts debit and credit columns", func(t *testing.T) {
		csv := `date,description,debit,credit
2024-01-15,Coffee,4.50,
2024-01-16,Salary,,5000.00`

		result, err := ReadCSV(strings.NewReader(csv))
		require.NoError(t, err)
		require.Len(t, result.Transactions, 2)
		assert.Equal(t, statement.Debit, result.Transactions[0].Type)
		assert.Equal(t, statement.Credit, result.Transactions[1].Type)
	})

	t.Run("captures row errors", func(t *testing.T) {
		csv := `Date,Description,Amount
invalid-date,Coffee,-4.50
2024-01-15,Coffee,not-a-number
,Skipped,1.00
2024-01-16,Valid,-10.00`

		result, err := ReadCSV(strings.NewReader(csv))
		require.NoError(t, err)
		assert.Equal(t, 4, result.TotalRows)
		assert.Equal(t, 1, result.ParsedRows)
		assert.Equal(t, 1, result.SkippedRows)
		require.Len(t, result.Errors, 2)
		assert.Equal(t, "date", result.Errors[0].Column)
		assert.Equal(t, 2, result.Errors[0].Row)
		assert.Equal(t, "amount", result.Errors[1].Column)
	})

	t.Run("semicolon file with preamble and day first dates", func(t *testing.T) {
		csv := "Account;****1234\nExported;spreadsheet\n\nDate;Description;Amount;Balance\n13/02/2024;Bakery;-3,20;96,80\n05/02/2024;Refund;10,00;100,00\n"

		result, err := ReadCSV(strings.NewReader(csv))
		require.NoError(t, err)
		require.Len(t, result.Transactions, 2)
		assert.Equal(t, civil.Date{Year: 2024, Month: 2, Day: 13}, result.Transactions[0].Date)
		assert.Equal(t, civil.Date{Year: 2024, Month: 2, Day: 5}, result.Transactions[1].Date)
		assertDecimal(t, "3.2", result.Transactions[0].Amount)
		assert.Equal(t, statement.Debit, result.Transactions[0].Type)
	})

	t.Run("row numbers count preamble lines", func(t *testing.T) {
		csv := "Report;x\nDate;Description;Amount\nbad;Coffee;-1.00\n"

		result, err := ReadCSV(strings.NewReader(csv))
		require.NoError(t, err)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, 3, result.Errors[0].Row)
	})

	t.Run("empty input", func(t *testing.T) {
		result, err := ReadCSV(strings.NewReader(""))
		require.NoError(t, err)
		assert.Empty(t, result.Transactions)
	})
}

func TestReadExcel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", "Transactions"))
	require.NoError(t, f.SetSheetRow("Transactions", "A1", &[]any{"Date", "Description", "Category", "Amount", "Balance", "Type"}))
	require.NoError(t, f.SetSheetRow("Transactions", "A2", &[]any{"2024-01-15", "WALMART", "Groceries", -125.67, 2500.0, "debit"}))
	require.NoError(t, f.SetSheetRow("Transactions", "A3", &[]any{"2024-01-16", "PAYROLL", "Income", 3200.0, nil, "credit"}))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	result, err := ReadExcel(buf)
	require.NoError(t, err)
	require.Len(t, result.Transactions, 2)

	assertDecimal(t, "125.67", result.Transactions[0].Amount)
	assert.Equal(t, statement.Debit, result.Transactions[0].Type)
	require.NotNil(t, result.Transactions[0].Balance)
	assertDecimal(t, "2500", *result.Transactions[0].Balance)
	assert.Equal(t, statement.Credit, result.Transactions[1].Type)
	assert.Nil(t, result.Transactions[1].Balance)
}
