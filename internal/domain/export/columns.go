// Package export renders transaction lists as CSV or Excel files.
package export

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

// singleRow is the column layout of a one-statement export. Field order is
// column order.
type singleRow struct {
	Date        string `csv:"Date"`
	Description string `csv:"Description"`
	Merchant    string `csv:"Normalized Merchant"`
	Category    string `csv:"Category"`
	Subcategory string `csv:"Subcategory"`
	Amount      string `csv:"Amount"`
	Balance     string `csv:"Balance"`
	Type        string `csv:"Type"`
	Confidence  string `csv:"Confidence %"`
	Anomaly     string `csv:"Anomaly Detected"`
}

// bulkRow adds the originating file for exports spanning several statements.
type bulkRow struct {
	Date        string `csv:"Date"`
	Description string `csv:"Description"`
	Merchant    string `csv:"Normalized Merchant"`
	Category    string `csv:"Category"`
	Subcategory string `csv:"Subcategory"`
	Amount      string `csv:"Amount"`
	Balance     string `csv:"Balance"`
	Type        string `csv:"Type"`
	Confidence  string `csv:"Confidence %"`
	SourceFile  string `csv:"Source File"`
	Anomaly     string `csv:"Anomaly Detected"`
}

// column describes one spreadsheet column.
type column struct {
	Header string
	Width  float64
}

var singleColumns = []column{
	{"Date", 12},
	{"Description", 45},
	{"Normalized Merchant", 24},
	{"Category", 18},
	{"Subcategory", 18},
	{"Amount", 14},
	{"Balance", 14},
	{"Type", 8},
	{"Confidence %", 13},
	{"Anomaly Detected", 40},
}

var bulkColumns = []column{
	{"Date", 12},
	{"Description", 45},
	{"Normalized Merchant", 24},
	{"Category", 18},
	{"Subcategory", 18},
	{"Amount", 14},
	{"Balance", 14},
	{"Type", 8},
	{"Confidence %", 13},
	{"Source File", 28},
	{"Anomaly Detected", 40},
}

func columnsFor(scope statement.Scope) []column {
	if scope == statement.ScopeBulk {
		return bulkColumns
	}
	return singleColumns
}

func toSingleRow(tx statement.Transaction) singleRow {
	return singleRow{
		Date:        formatDate(tx),
		Description: tx.Description,
		Merchant:    tx.NormalizedMerchant,
		Category:    tx.Category,
		Subcategory: tx.Subcategory,
		Amount:      tx.SignedAmount().StringFixed(2),
		Balance:     formatBalance(tx),
		Type:        string(tx.Type),
		Confidence:  strconv.Itoa(tx.Confidence),
		Anomaly:     formatAnomaly(tx.Anomaly),
	}
}

func toBulkRow(tx statement.Transaction) bulkRow {
	s := toSingleRow(tx)
	return bulkRow{
		Date:        s.Date,
		Description: s.Description,
		Merchant:    s.Merchant,
		Category:    s.Category,
		Subcategory: s.Subcategory,
		Amount:      s.Amount,
		Balance:     s.Balance,
		Type:        s.Type,
		Confidence:  s.Confidence,
		SourceFile:  tx.SourceFile,
		Anomaly:     s.Anomaly,
	}
}

func formatDate(tx statement.Transaction) string {
	if !tx.Date.IsValid() {
		return ""
	}
	return tx.Date.String()
}

func formatBalance(tx statement.Transaction) string {
	if tx.Balance == nil {
		return ""
	}
	return tx.Balance.StringFixed(2)
}

// formatAnomaly renders the flag as "HIGH: description". Empty when clean.
func formatAnomaly(a *statement.Anomaly) string {
	if a == nil {
		return ""
	}
	severity := strings.ToUpper(string(a.Severity))
	if severity == "" {
		return a.Description
	}
	return fmt.Sprintf("%s: %s", severity, a.Description)
}
