package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/statementdesk/statement-desk/internal/domain/import/sniffer"
	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

// TransactionRow is one row of an exported transactions file. Each column
// accepts the export header and a lowercase alias so hand-edited files
// still load.
type TransactionRow struct {
	Date      string `csv:"Date"`
	DateLower string `csv:"date"`

	Description      string `csv:"Description"`
	DescriptionLower string `csv:"description"`
	Merchant         string `csv:"Normalized Merchant"`

	Category      string `csv:"Category"`
	CategoryLower string `csv:"category"`
	Subcategory   string `csv:"Subcategory"`

	Amount      string `csv:"Amount"`
	AmountLower string `csv:"amount"`
	Debit       string `csv:"debit"`
	Credit      string `csv:"credit"`

	Balance      string `csv:"Balance"`
	BalanceLower string `csv:"balance"`

	Type      string `csv:"Type"`
	TypeLower string `csv:"type"`

	Confidence string `csv:"Confidence %"`
	SourceFile string `csv:"Source File"`
}

// ParseError describes a row that could not be read back.
type ParseError struct {
	Row     int
	Column  string
	Message string
	RawData string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("row %d, column %s: %s", e.Row, e.Column, e.Message)
}

// ReadResult is the outcome of reading an exported file.
type ReadResult struct {
	Transactions []statement.Transaction
	Errors       []ParseError
	TotalRows    int
	ParsedRows   int
	SkippedRows  int
}

// ReadCSV loads transactions from a CSV produced by the exporter. Files
// saved by spreadsheet tools may use another delimiter, carry preamble
// lines before the header or write dates day first; those are detected.
func ReadCSV(r io.Reader) (*ReadResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}

	layout, err := sniffer.Detect(data)
	switch {
	case errors.Is(err, sniffer.ErrEmptyFile):
		return &ReadResult{}, nil
	case err != nil:
		layout = &sniffer.Config{Delimiter: ','}
	}

	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(sniffer.Body(data, layout.SkipLines), []byte("\uFEFF"))))
	reader.Comma = layout.Delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var rows []TransactionRow
	if err := gocsv.UnmarshalCSV(reader, &rows); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) || errors.Is(err, io.EOF) {
			return &ReadResult{}, nil
		}
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}

	order := orderMDY
	if layout.DayFirst {
		order = orderDMY
	}
	return collect(rows, order, layout.SkipLines), nil
}

// ReadExcel loads transactions from the Transactions sheet of a workbook
// produced by the exporter, or the first sheet when that one is missing.
func ReadExcel(r io.Reader) (*ReadResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := "Transactions"
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("no suitable sheet found")
		}
		sheet = sheets[0]
	}

	records, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(records) == 0 {
		return &ReadResult{}, nil
	}

	header := records[0]
	rows := make([]TransactionRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		rows = append(rows, rowFromRecord(header, rec))
	}
	return collect(rows, orderMDY, 0), nil
}

func rowFromRecord(header, rec []string) TransactionRow {
	var row TransactionRow
	for i, name := range header {
		if i >= len(rec) {
			break
		}
		v := rec[i]
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "date":
			row.Date = v
		case "description":
			row.Description = v
		case "normalized merchant":
			row.Merchant = v
		case "category":
			row.Category = v
		case "subcategory":
			row.Subcategory = v
		case "amount":
			row.Amount = v
		case "debit":
			row.Debit = v
		case "credit":
			row.Credit = v
		case "balance":
			row.Balance = v
		case "type":
			row.Type = v
		case "confidence %":
			row.Confidence = v
		case "source file":
			row.SourceFile = v
		}
	}
	return row
}

func collect(rows []TransactionRow, order slashOrder, skipped int) *ReadResult {
	result := &ReadResult{
		Transactions: make([]statement.Transaction, 0, len(rows)),
		TotalRows:    len(rows),
	}
	for i, row := range rows {
		rowNum := skipped + i + 2 // 1-indexed plus header

		tx, perr := processRow(row, rowNum, order)
		if perr != nil {
			result.Errors = append(result.Errors, *perr)
			continue
		}
		if tx == nil {
			result.SkippedRows++
			continue
		}
		result.Transactions = append(result.Transactions, *tx)
		result.ParsedRows++
	}
	return result
}

// processRow converts a TransactionRow into a Transaction.
func processRow(row TransactionRow, rowNum int, order slashOrder) (*statement.Transaction, *ParseError) {
	dateStr := coalesce(row.Date, row.DateLower)
	if dateStr == "" {
		return nil, nil
	}
	date, ok := parseDate(dateStr, order)
	if !ok {
		return nil, &ParseError{Row: rowNum, Column: "date", Message: "invalid date", RawData: dateStr}
	}

	desc := row.Description
	if strings.TrimSpace(desc) == "" {
		desc = row.DescriptionLower
	}
	if strings.TrimSpace(desc) == "" {
		return nil, &ParseError{Row: rowNum, Column: "description", Message: "missing description"}
	}

	amount, err := readAmount(row)
	if err != nil {
		return nil, &ParseError{Row: rowNum, Column: "amount", Message: err.Error(), RawData: coalesce(row.Amount, row.AmountLower)}
	}

	tx := &statement.Transaction{
		Date:               date,
		Description:        desc,
		NormalizedMerchant: strings.TrimSpace(row.Merchant),
		Category:           coalesce(row.Category, row.CategoryLower),
		Subcategory:        strings.TrimSpace(row.Subcategory),
		Amount:             amount.Abs(),
		Type:               statement.Credit,
		SourceFile:         strings.TrimSpace(row.SourceFile),
	}
	if amount.IsNegative() {
		tx.Type = statement.Debit
	}
	if t := statement.TransactionType(strings.ToLower(coalesce(row.Type, row.TypeLower))); t.Valid() {
		tx.Type = t
	}

	if balStr := coalesce(row.Balance, row.BalanceLower); balStr != "" {
		bal, ok := parseAmount(balStr)
		if !ok {
			return nil, &ParseError{Row: rowNum, Column: "balance", Message: "invalid balance", RawData: balStr}
		}
		tx.Balance = &bal
	}
	if c := strings.TrimSuffix(strings.TrimSpace(row.Confidence), "%"); c != "" {
		if n, err := strconv.Atoi(c); err == nil {
			tx.Confidence = n
		}
	}
	return tx, nil
}

// readAmount reads the signed amount from a single amount column or from a
// debit/credit pair.
func readAmount(row TransactionRow) (decimal.Decimal, error) {
	if s := coalesce(row.Amount, row.AmountLower); s != "" {
		v, ok := parseAmount(s)
		if !ok {
			return decimal.Zero, fmt.Errorf("invalid amount")
		}
		return v, nil
	}
	if s := strings.TrimSpace(row.Debit); s != "" {
		if v, ok := parseAmount(s); ok && !v.IsZero() {
			return v.Abs().Neg(), nil
		}
	}
	if s := strings.TrimSpace(row.Credit); s != "" {
		if v, ok := parseAmount(s); ok && !v.IsZero() {
			return v.Abs(), nil
		}
	}
	return decimal.Zero, fmt.Errorf("no amount found")
}

// coalesce returns the first non-empty string.
func coalesce(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
