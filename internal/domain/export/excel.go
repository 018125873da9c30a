package export

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

const (
	sheetTransactions = "Transactions"
	sheetSummary      = "Summary"
	sheetByCategory   = "By Category"
)

// writeExcel renders a workbook with a Transactions sheet. Bulk scope adds
// Summary and By Category sheets.
func writeExcel(txs []statement.Transaction, scope statement.Scope) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetTransactions); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#E2E8F0"}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeTransactionsSheet(f, txs, scope, headerStyle); err != nil {
		return nil, err
	}
	if scope == statement.ScopeBulk {
		if err := writeSummarySheet(f, Summarize(txs), headerStyle); err != nil {
			return nil, err
		}
		if err := writeCategorySheet(f, ByCategory(txs), headerStyle); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTransactionsSheet(f *excelize.File, txs []statement.Transaction, scope statement.Scope, headerStyle int) error {
	cols := columnsFor(scope)
	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c.Header
	}
	if err := writeHeader(f, sheetTransactions, header, headerStyle); err != nil {
		return err
	}
	for i, c := range cols {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheetTransactions, name, name, c.Width); err != nil {
			return fmt.Errorf("failed to size column %s: %w", c.Header, err)
		}
	}

	for i, tx := range txs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetTransactions, cell, transactionCells(tx, scope)); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	return f.SetPanes(sheetTransactions, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// transactionCells mirrors the CSV columns but keeps numbers numeric.
func transactionCells(tx statement.Transaction, scope statement.Scope) *[]any {
	var balance any = ""
	if tx.Balance != nil {
		balance = toFloat(tx.Balance.Round(2))
	}

	row := []any{
		formatDate(tx),
		tx.Description,
		tx.NormalizedMerchant,
		tx.Category,
		tx.Subcategory,
		toFloat(tx.SignedAmount().Round(2)),
		balance,
		string(tx.Type),
		tx.Confidence,
	}
	if scope == statement.ScopeBulk {
		row = append(row, tx.SourceFile)
	}
	row = append(row, formatAnomaly(tx.Anomaly))
	return &row
}

func writeSummarySheet(f *excelize.File, s Summary, headerStyle int) error {
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return fmt.Errorf("failed to add summary sheet: %w", err)
	}
	if err := writeHeader(f, sheetSummary, []any{"Metric", "Value"}, headerStyle); err != nil {
		return err
	}

	rows := [][]any{
		{"Total Transactions", s.TotalTransactions},
		{"Total Files", s.TotalFiles},
		{"Total Income", toFloat(s.TotalIncome.Round(2))},
		{"Total Expenses", toFloat(s.TotalExpenses.Round(2))},
		{"Net Amount", toFloat(s.NetAmount.Round(2))},
		{"AI Processed", s.AIProcessed},
		{"High Confidence (>=90%)", s.HighConfidence},
		{"Average Confidence", toFloat(s.AverageConfidence)},
		{"Anomalies Detected", s.Anomalies},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetSummary, cell, &r); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}
	return f.SetColWidth(sheetSummary, "A", "A", 26)
}

func writeCategorySheet(f *excelize.File, totals []CategoryTotals, headerStyle int) error {
	if _, err := f.NewSheet(sheetByCategory); err != nil {
		return fmt.Errorf("failed to add category sheet: %w", err)
	}
	header := []any{"Category", "Transactions", "Total Income", "Total Expenses", "Net"}
	if err := writeHeader(f, sheetByCategory, header, headerStyle); err != nil {
		return err
	}
	for i, ct := range totals {
		row := []any{
			ct.Category,
			ct.Transactions,
			toFloat(ct.TotalIncome.Round(2)),
			toFloat(ct.TotalExpenses.Round(2)),
			toFloat(ct.Net.Round(2)),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetByCategory, cell, &row); err != nil {
			return fmt.Errorf("failed to write category row: %w", err)
		}
	}
	return f.SetColWidth(sheetByCategory, "A", "E", 18)
}

func writeHeader(f *excelize.File, sheet string, header []any, style int) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

func toFloat(d decimal.Decimal) float64 {
	v, _ := d.Float64()
	return v
}
