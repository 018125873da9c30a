package export

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/statementdesk/statement-desk/internal/domain/import/parser"
	"github.com/statementdesk/statement-desk/internal/domain/statement"
	"github.com/statementdesk/statement-desk/pkg/money"
)

func newTestExporter() *Exporter {
	return NewExporter(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func sampleTransactions() []statement.Transaction {
	balance := decimal.RequireFromString("2500.00")
	return []statement.Transaction{
		{
			Date:               civil.Date{Year: 2024, Month: 1, Day: 15},
			Description:        "WALMART SUPERCENTER, #1234",
			NormalizedMerchant: "Walmart",
			Amount:             decimal.RequireFromString("125.67"),
			Balance:            &balance,
			Type:               statement.Debit,
			Category:           "Groceries",
			Subcategory:        "Supermarket",
			Confidence:         100,
			SourceFile:         "january.pdf",
		},
		{
			Date:               civil.Date{Year: 2024, Month: 1, Day: 20},
			Description:        `PAYROLL "ACME" CORP`,
			NormalizedMerchant: "Acme Corp",
			Amount:             decimal.RequireFromString("3000.00"),
			Type:               statement.Credit,
			Category:           "Income",
			Confidence:         85,
			AIProcessed:        true,
			SourceFile:         "january.pdf",
		},
		{
			Date:        civil.Date{Year: 2024, Month: 2, Day: 2},
			Description: "MONTHLY SERVICE FEE",
			Amount:      decimal.RequireFromString("12.00"),
			Type:        statement.Debit,
			Category:    "Fees",
			Confidence:  80,
			Anomaly:     &statement.Anomaly{Severity: statement.SeverityLow, Description: "Bank fee"},
			SourceFile:  "february.pdf",
		},
	}
}

func TestExport_CSVSingle(t *testing.T) {
	art, err := newTestExporter().Export(sampleTransactions(), statement.FormatCSV, statement.ScopeSingle, "january.PDF")
	require.NoError(t, err)

	assert.Equal(t, MimeCSV, art.MimeType)
	assert.Equal(t, "january.csv", art.FileName)

	lines := strings.Split(strings.TrimSpace(string(art.Content)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Date,Description,Normalized Merchant,Category,Subcategory,Amount,Balance,Type,Confidence %,Anomaly Detected", lines[0])
	assert.Equal(t, `2024-01-15,"WALMART SUPERCENTER, #1234",Walmart,Groceries,Supermarket,-125.67,2500.00,debit,100,`, lines[1])
	assert.Equal(t, `2024-01-20,"PAYROLL ""ACME"" CORP",Acme Corp,Income,,3000.00,,credit,85,`, lines[2])
	assert.Equal(t, `2024-02-02,MONTHLY SERVICE FEE,,Fees,,-12.00,,debit,80,LOW: Bank fee`, lines[3])
}

func TestExport_CSVBulkHasSourceFile(t *testing.T) {
	art, err := newTestExporter().Export(sampleTransactions(), statement.FormatCSV, statement.ScopeBulk, "")
	require.NoError(t, err)

	assert.Equal(t, "transactions.csv", art.FileName)
	header := strings.SplitN(string(art.Content), "\n", 2)[0]
	assert.Equal(t, "Date,Description,Normalized Merchant,Category,Subcategory,Amount,Balance,Type,Confidence %,Source File,Anomaly Detected", header)
	assert.Contains(t, string(art.Content), ",february.pdf,LOW: Bank fee")
}

func TestExport_EmptyWritesHeaderOnly(t *testing.T) {
	art, err := newTestExporter().Export(nil, statement.FormatCSV, statement.ScopeSingle, "empty.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Date,Description,Normalized Merchant,Category,Subcategory,Amount,Balance,Type,Confidence %,Anomaly Detected\n", string(art.Content))

	xl, err := newTestExporter().Export(nil, statement.FormatExcel, statement.ScopeSingle, "empty.pdf")
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(xl.Content))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheetTransactions)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Date", rows[0][0])
}

func TestExport_UnknownFormat(t *testing.T) {
	_, err := newTestExporter().Export(sampleTransactions(), statement.Format("pdf"), statement.ScopeSingle, "x")
	assert.ErrorIs(t, err, statement.ErrValidation)
}

func TestExport_CSVRoundTrip(t *testing.T) {
	in := sampleTransactions()
	art, err := newTestExporter().Export(in, statement.FormatCSV, statement.ScopeBulk, "all")
	require.NoError(t, err)

	result, err := parser.ReadCSV(bytes.NewReader(art.Content))
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	assertSameTransactions(t, in, result.Transactions)
}

func TestExport_ExcelRoundTrip(t *testing.T) {
	in := sampleTransactions()
	art, err := newTestExporter().Export(in, statement.FormatExcel, statement.ScopeBulk, "statements.pdf")
	require.NoError(t, err)

	assert.Equal(t, MimeExcel, art.MimeType)
	assert.Equal(t, "statements.xlsx", art.FileName)

	result, err := parser.ReadExcel(bytes.NewReader(art.Content))
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	assertSameTransactions(t, in, result.Transactions)
}

func TestExport_ExcelBulkSheets(t *testing.T) {
	art, err := newTestExporter().Export(sampleTransactions(), statement.FormatExcel, statement.ScopeBulk, "all")
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(art.Content))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetTransactions, sheetSummary, sheetByCategory}, f.GetSheetList())

	summary, err := f.GetRows(sheetSummary, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	values := make(map[string]string)
	for _, r := range summary[1:] {
		values[r[0]] = r[1]
	}
	assert.Equal(t, "3", values["Total Transactions"])
	assert.Equal(t, "2", values["Total Files"])
	assert.Equal(t, "3000", values["Total Income"])
	assert.Equal(t, "-137.67", values["Total Expenses"])
	assert.Equal(t, "2862.33", values["Net Amount"])
	assert.Equal(t, "1", values["AI Processed"])
	assert.Equal(t, "1", values["High Confidence (>=90%)"])
	assert.Equal(t, "1", values["Anomalies Detected"])

	byCategory, err := f.GetRows(sheetByCategory, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, byCategory, 4)
	assert.Equal(t, []string{"Category", "Transactions", "Total Income", "Total Expenses", "Net"}, byCategory[0])
	assert.Equal(t, "Income", byCategory[1][0])
	assert.Equal(t, "Groceries", byCategory[2][0])
	assert.Equal(t, "-125.67", byCategory[2][3])
	assert.Equal(t, "Fees", byCategory[3][0])

	single, err := newTestExporter().Export(sampleTransactions(), statement.FormatExcel, statement.ScopeSingle, "one")
	require.NoError(t, err)
	sf, err := excelize.OpenReader(bytes.NewReader(single.Content))
	require.NoError(t, err)
	defer sf.Close()
	assert.Equal(t, []string{sheetTransactions}, sf.GetSheetList())
}

func TestSummarize_ExpensesNeverPositive(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		txs := randomTransactions(seed, 40)

		s := Summarize(txs)
		assert.True(t, s.TotalExpenses.LessThanOrEqual(decimal.Zero), "seed %d", seed)
		assert.True(t, s.TotalIncome.GreaterThanOrEqual(decimal.Zero), "seed %d", seed)
		assert.True(t, s.NetAmount.Equal(s.TotalIncome.Add(s.TotalExpenses)), "seed %d", seed)

		count := 0
		net := decimal.Zero
		for _, ct := range ByCategory(txs) {
			assert.True(t, ct.TotalExpenses.LessThanOrEqual(decimal.Zero), "seed %d: %s", seed, ct.Category)
			count += ct.Transactions
			net = net.Add(ct.Net)
		}
		assert.Equal(t, len(txs), count)
		assert.True(t, net.Equal(s.NetAmount), "seed %d", seed)
	}
}

func TestExport_SignedAmountsRandom(t *testing.T) {
	txs := randomTransactions(7, 25)
	art, err := newTestExporter().Export(txs, statement.FormatCSV, statement.ScopeBulk, "random")
	require.NoError(t, err)

	result, err := parser.ReadCSV(bytes.NewReader(art.Content))
	require.NoError(t, err)
	require.Len(t, result.Transactions, len(txs))
	for i, got := range result.Transactions {
		assert.Equal(t, txs[i].Type, got.Type)
		assert.True(t, txs[i].Amount.Equal(got.Amount), "row %d: %s != %s", i, txs[i].Amount, got.Amount)
	}
}

func TestExport_RunningBalanceSurvivesCSV(t *testing.T) {
	gen := money.NewTestDataGeneratorWithSeed(42)
	txs := money.WithBalances(gen.Transactions(30), decimal.RequireFromString("1000.00"))

	art, err := newTestExporter().Export(txs, statement.FormatCSV, statement.ScopeSingle, "generated.pdf")
	require.NoError(t, err)

	result, err := parser.ReadCSV(bytes.NewReader(art.Content))
	require.NoError(t, err)
	require.Len(t, result.Transactions, len(txs))
	last := result.Transactions[len(txs)-1]
	require.NotNil(t, last.Balance)
	assert.True(t, txs[len(txs)-1].Balance.Equal(*last.Balance))

	s := Summarize(txs)
	closing := decimal.RequireFromString("1000.00").Add(s.NetAmount)
	assert.True(t, closing.Equal(*last.Balance), "%s != %s", closing, last.Balance)
}

func TestFileName(t *testing.T) {
	tests := []struct {
		base, ext, want string
	}{
		{"statement.pdf", ".csv", "statement.csv"},
		{"Statement.PDF", ".xlsx", "Statement.xlsx"},
		{"", ".csv", "transactions.csv"},
		{"   ", ".csv", "transactions.csv"},
		{`C:\Users\me\march.pdf`, ".csv", "march.csv"},
		{"../../etc/passwd", ".csv", "passwd.csv"},
		{`bad"name`, ".csv", "bad_name.csv"},
		{"report.v2", ".xlsx", "report.v2.xlsx"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FileName(tt.base, tt.ext), tt.base)
	}
}

func assertSameTransactions(t *testing.T, want, got []statement.Transaction) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Date, got[i].Date, "row %d date", i)
		assert.Equal(t, want[i].Description, got[i].Description, "row %d description", i)
		assert.Equal(t, want[i].NormalizedMerchant, got[i].NormalizedMerchant, "row %d merchant", i)
		assert.Equal(t, want[i].Category, got[i].Category, "row %d category", i)
		assert.Equal(t, want[i].Subcategory, got[i].Subcategory, "row %d subcategory", i)
		assert.True(t, want[i].Amount.Equal(got[i].Amount), "row %d amount: %s != %s", i, want[i].Amount, got[i].Amount)
		assert.Equal(t, want[i].Type, got[i].Type, "row %d type", i)
		assert.Equal(t, want[i].Confidence, got[i].Confidence, "row %d confidence", i)
		assert.Equal(t, want[i].SourceFile, got[i].SourceFile, "row %d source", i)
		if want[i].Balance == nil {
			assert.Nil(t, got[i].Balance, "row %d balance", i)
		} else {
			require.NotNil(t, got[i].Balance, "row %d balance", i)
			assert.True(t, want[i].Balance.Equal(*got[i].Balance), "row %d balance", i)
		}
	}
}

func randomTransactions(seed int64, n int) []statement.Transaction {
	faker := gofakeit.New(seed)
	categories := []string{"Groceries", "Food & Drink", "Transport", "Income", "Fees", ""}
	start := civil.Date{Year: 2026, Month: 3, Day: 1}

	txs := make([]statement.Transaction, 0, n)
	for i := 0; i < n; i++ {
		txType := statement.Debit
		if faker.Number(1, 4) == 1 {
			txType = statement.Credit
		}
		txs = append(txs, statement.Transaction{
			Date:        start.AddDays(faker.Number(0, 60)),
			Description: faker.Company(),
			Amount:      decimal.NewFromFloat(faker.Price(1, 900)).Round(2),
			Type:        txType,
			Category:    categories[faker.Number(0, len(categories)-1)],
			Confidence:  faker.Number(40, 100),
			SourceFile:  faker.RandomString([]string{"a.pdf", "b.pdf"}),
		})
	}
	return txs
}
