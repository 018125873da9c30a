package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/gocarina/gocsv"

	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

// writeCSV renders the Transactions table. The header row is written even
// when there are no transactions.
func writeCSV(txs []statement.Transaction, scope statement.Scope) ([]byte, error) {
	var buf bytes.Buffer
	w := gocsv.NewSafeCSVWriter(csv.NewWriter(&buf))

	var err error
	if scope == statement.ScopeBulk {
		rows := make([]bulkRow, 0, len(txs))
		for _, tx := range txs {
			rows = append(rows, toBulkRow(tx))
		}
		err = gocsv.MarshalCSV(&rows, w)
	} else {
		rows := make([]singleRow, 0, len(txs))
		for _, tx := range txs {
			rows = append(rows, toSingleRow(tx))
		}
		err = gocsv.MarshalCSV(&rows, w)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write CSV: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return buf.Bytes(), nil
}
