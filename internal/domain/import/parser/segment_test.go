package parser

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statementdesk/statement-desk/internal/domain/import/pdftext"
	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

func newTestSegmenter() *Segmenter {
	return NewSegmenter(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func TestSegment_SignedISOLine(t *testing.T) {
	seg, err := newTestSegmenter().Segment("2024-01-15  WALMART SUPERCENTER #1234  -125.67  2500.00")
	require.NoError(t, err)
	require.Len(t, seg.Rows, 1)

	row := seg.Rows[0]
	assert.Equal(t, civil.Date{Year: 2024, Month: 1, Day: 15}, row.Date)
	assert.Equal(t, "WALMART SUPERCENTER #1234", row.Description)
	assertDecimal(t, "125.67", row.Amount)
	assert.Equal(t, statement.Debit, row.Type)
	assert.Equal(t, TypeExplicit, row.TypeSource)
	require.NotNil(t, row.Balance)
	assertDecimal(t, "2500.00", *row.Balance)
	assert.Equal(t, statement.Recognized{BankFormat: FormatISOSigned}, row.Layout)
	assert.Equal(t, statement.Recognized{BankFormat: FormatISOSigned}, seg.Layout)
	assert.False(t, row.Fallback())
}

const usStatement = `CHASE
Account Number: 1234-5678-9012
Statement Period: 01/01/2024 to 01/31/2024
Beginning Balance $2,000.00
Date Description Amount Balance
01/03 PAYROLL ACME CORP 3,200.00 5,200.00
01/05 STARBUCKS STORE 1234 5.75 5,194.25
01/07 AMAZON MKTPLACE
PMTS AMZN.COM/BILL WA 42.10 5,152.15` + pdftext.PageBreak + `Page 2 of 2
01/10 SHELL OIL 57442 40.00 5,112.15
Ending Balance $5,112.15`

func TestSegment_RunningBalanceLayout(t *testing.T) {
	seg, err := newTestSegmenter().Segment(usStatement)
	require.NoError(t, err)
	require.Len(t, seg.Rows, 4)

	assert.Equal(t, "Chase", seg.Header.BankType)
	require.NotNil(t, seg.Header.Account)
	assert.Equal(t, "****9012", seg.Header.Account.AccountNumber)
	assert.Equal(t, "USD", seg.Header.Account.Currency)
	require.NotNil(t, seg.Header.Account.OpeningBalance)
	assertDecimal(t, "2000", *seg.Header.Account.OpeningBalance)
	require.NotNil(t, seg.Header.Account.ClosingBalance)
	assertDecimal(t, "5112.15", *seg.Header.Account.ClosingBalance)

	require.NotNil(t, seg.Period)
	assert.Equal(t, civil.Date{Year: 2024, Month: 1, Day: 1}, seg.Period.Start)
	assert.Equal(t, civil.Date{Year: 2024, Month: 1, Day: 31}, seg.Period.End)

	payroll := seg.Rows[0]
	assert.Equal(t, "PAYROLL ACME CORP", payroll.Description)
	assert.Equal(t, statement.Credit, payroll.Type)
	assert.Equal(t, TypeBalance, payroll.TypeSource)
	assert.True(t, payroll.DateInferred)
	assert.Equal(t, civil.Date{Year: 2024, Month: 1, Day: 3}, payroll.Date)

	assert.Equal(t, "STARBUCKS STORE 1234", seg.Rows[1].Description)
	assert.Equal(t, statement.Debit, seg.Rows[1].Type)

	amazon := seg.Rows[2]
	assert.Equal(t, "AMAZON MKTPLACE PMTS AMZN.COM/BILL WA", amazon.Description)
	assert.True(t, amazon.Wrapped)
	assertDecimal(t, "42.10", amazon.Amount)

	shell := seg.Rows[3]
	assert.Equal(t, 2, shell.Page)
	assert.Equal(t, statement.Debit, shell.Type)

	for _, row := range seg.Rows {
		assert.False(t, row.BalanceMismatch, row.Description)
	}
	assert.Equal(t, statement.Recognized{BankFormat: FormatShortDate}, seg.Layout)
	assert.Len(t, seg.PageLayouts, 2)
}

func TestSegment_DayFirstDates(t *testing.T) {
	text := `Barclays Bank UK
Sort code 20-00-00 Account No 43218765
15/01/2024 TESCO STORES 3021 £54.20 £1,245.80
16/01/2024 SALARY ACME LTD £2,000.00 £3,245.80
03/02/2024 RENT 02/2024 £900.00 £2,345.80`

	seg, err := newTestSegmenter().Segment(text)
	require.NoError(t, err)
	require.Len(t, seg.Rows, 3)

	assert.Equal(t, "Barclays", seg.Header.BankType)
	assert.Equal(t, "****8765", seg.Header.Account.AccountNumber)
	assert.Equal(t, "GBP", seg.Header.Account.Currency)

	assert.Equal(t, civil.Date{Year: 2024, Month: 1, Day: 15}, seg.Rows[0].Date)
	assert.Equal(t, statement.Debit, seg.Rows[0].Type)
	assert.Equal(t, TypeKeyword, seg.Rows[0].TypeSource)
	assert.Equal(t, statement.Credit, seg.Rows[1].Type)
	assert.Equal(t, TypeBalance, seg.Rows[1].TypeSource)
	assert.Equal(t, civil.Date{Year: 2024, Month: 2, Day: 3}, seg.Rows[2].Date)
	assert.Equal(t, statement.Recognized{BankFormat: FormatUKPaidInOut}, seg.Layout)
}

func TestSegment_FallbackScan(t *testing.T) {
	text := `Ref 0001 posted 2024-02-03 COFFEE HOUSE 4.50
Ref 0002 posted 2024-02-04 BOOK SHOP 12.99`

	seg, err := newTestSegmenter().Segment(text)
	require.NoError(t, err)
	require.Len(t, seg.Rows, 2)

	assert.Equal(t, "Ref 0001 posted COFFEE HOUSE", seg.Rows[0].Description)
	assert.True(t, seg.Rows[0].Fallback())
	assert.Equal(t, 2, seg.FallbackRows)
	assert.Equal(t, statement.Unrecognized{FallbackUsed: true}, seg.Layout)
	require.NotEmpty(t, seg.Warnings)
	assert.Contains(t, seg.Warnings[0], "best-effort")
}

func TestSegment_CreditMarkedStatement(t *testing.T) {
	text := `2024-03-01 DIRECT DEBIT GYM 30.00
2024-03-02 ACME RETURN 15.00 CR`

	seg, err := newTestSegmenter().Segment(text)
	require.NoError(t, err)
	require.Len(t, seg.Rows, 2)

	assert.Equal(t, statement.Debit, seg.Rows[0].Type)
	assert.Equal(t, TypeExplicit, seg.Rows[0].TypeSource)
	assert.Equal(t, statement.Credit, seg.Rows[1].Type)
	assert.Equal(t, "ACME RETURN", seg.Rows[1].Description)
}

func TestSegment_SameDayRowsCarryDate(t *testing.T) {
	text := `2024-04-02 COFFEE BAR -3.50
LUNCH DINER -12.00
2024-04-03 PARKING -6.00`

	seg, err := newTestSegmenter().Segment(text)
	require.NoError(t, err)
	require.Len(t, seg.Rows, 3)

	assert.Equal(t, "LUNCH DINER", seg.Rows[1].Description)
	assert.Equal(t, civil.Date{Year: 2024, Month: 4, Day: 2}, seg.Rows[1].Date)
	assert.True(t, seg.Rows[1].DateCarried)
}

func TestSegment_BalanceMismatchIsFlagged(t *testing.T) {
	text := `Opening balance 100.00
2024-05-01 GROCER -10.00 90.00
2024-05-02 BAKERY -5.00 80.00`

	seg, err := newTestSegmenter().Segment(text)
	require.NoError(t, err)
	require.Len(t, seg.Rows, 2)
	assert.False(t, seg.Rows[0].BalanceMismatch)
	assert.True(t, seg.Rows[1].BalanceMismatch)
}

func TestSegment_OrderIsPreserved(t *testing.T) {
	var lines []string
	for _, d := range []string{"2024-06-03", "2024-06-01", "2024-06-02"} {
		lines = append(lines, d+" SHOP -1.00")
	}
	seg, err := newTestSegmenter().Segment(strings.Join(lines, "\n"))
	require.NoError(t, err)
	require.Len(t, seg.Rows, 3)
	assert.Equal(t, 3, seg.Rows[0].Date.Day)
	assert.Equal(t, 1, seg.Rows[1].Date.Day)
	assert.Equal(t, 2, seg.Rows[2].Date.Day)
}

func TestSegment_NoTransactions(t *testing.T) {
	for _, text := range []string{"", "Thank you for banking with us.\nPage 1 of 1"} {
		seg, err := newTestSegmenter().Segment(text)
		assert.ErrorIs(t, err, statement.ErrNoTransactions)
		require.NotNil(t, seg)
		assert.Empty(t, seg.Rows)
		assert.Equal(t, statement.Unrecognized{}, seg.Layout)
	}
}

func TestSegment_ShortDatesRollOverYearEnd(t *testing.T) {
	text := `Statement Period: 2023-12-15 to 2024-01-14
12/28 HOTEL -220.00
01/03 TAXI -18.40`

	seg, err := newTestSegmenter().Segment(text)
	require.NoError(t, err)
	require.Len(t, seg.Rows, 2)
	assert.Equal(t, civil.Date{Year: 2023, Month: 12, Day: 28}, seg.Rows[0].Date)
	assert.Equal(t, civil.Date{Year: 2024, Month: 1, Day: 3}, seg.Rows[1].Date)
}

func TestParseAmountToken(t *testing.T) {
	tests := []struct {
		in    string
		value string
		sign  int
		ok    bool
	}{
		{"-125.67", "125.67", -1, true},
		{"(1,204.00)", "1204", -1, true},
		{"1.234,56", "1234.56", 0, true},
		{"99.10-", "99.10", -1, true},
		{"+15.00", "15", 1, true},
		{"$3,200.00", "3200", 0, true},
		{"1234", "", 0, false},
		{"12.345", "", 0, false},
		{"1.234.56", "", 0, false},
		{"(12.00", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			tok, ok := parseAmountToken(tt.in)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assertDecimal(t, tt.value, tok.value)
			assert.Equal(t, tt.sign, tok.sign)
		})
	}
}

func TestMatchDate(t *testing.T) {
	tests := []struct {
		line  string
		style dateStyle
		want  civil.Date
	}{
		{"2024-01-15 X", styleISO, civil.Date{Year: 2024, Month: 1, Day: 15}},
		{"15 Jan 2024 TESCO", styleDayMonth, civil.Date{Year: 2024, Month: 1, Day: 15}},
		{"Jan 15, 2024 TESCO", styleMonthDay, civil.Date{Year: 2024, Month: 1, Day: 15}},
		{"15.01.2024 REWE", styleDotted, civil.Date{Year: 2024, Month: 1, Day: 15}},
		{"01/15/24 TARGET", styleSlash, civil.Date{Year: 2024, Month: 1, Day: 15}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			tok, ok := matchDate(tt.line)
			require.True(t, ok)
			assert.Equal(t, tt.style, tok.style)
			got, ok := tok.resolve(orderMDY, nil)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := matchDate("15 Items purchased")
	assert.False(t, ok)
}

func TestMaskAccount(t *testing.T) {
	assert.Equal(t, "****4321", maskAccount("XXXX-XXXX-4321"))
	assert.Equal(t, "", maskAccount("12"))
}
