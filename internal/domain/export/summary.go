package export

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

// HighConfidence is the threshold counted as high confidence in summaries.
const HighConfidence = 90

// Summary holds the figures of the bulk Summary sheet. Expenses are
// reported as a negative number.
type Summary struct {
	TotalTransactions int             `json:"totalTransactions"`
	TotalFiles        int             `json:"totalFiles"`
	TotalIncome       decimal.Decimal `json:"totalIncome"`
	TotalExpenses     decimal.Decimal `json:"totalExpenses"`
	NetAmount         decimal.Decimal `json:"netAmount"`
	AIProcessed       int             `json:"aiProcessed"`
	HighConfidence    int             `json:"highConfidence"`
	AverageConfidence decimal.Decimal `json:"averageConfidence"`
	Anomalies         int             `json:"anomalies"`
}

// CategoryTotals is one row of the By Category sheet.
type CategoryTotals struct {
	Category      string          `json:"category"`
	Transactions  int             `json:"transactions"`
	TotalIncome   decimal.Decimal `json:"totalIncome"`
	TotalExpenses decimal.Decimal `json:"totalExpenses"`
	Net           decimal.Decimal `json:"net"`
}

// uncategorizedLabel groups rows without a category.
const uncategorizedLabel = "Uncategorized"

// Summarize computes the Summary sheet figures.
func Summarize(txs []statement.Transaction) Summary {
	s := Summary{TotalTransactions: len(txs)}
	files := make(map[string]bool)
	confidenceSum := 0

	for _, tx := range txs {
		files[tx.SourceFile] = true
		if tx.IsDebit() {
			s.TotalExpenses = s.TotalExpenses.Sub(tx.Amount.Abs())
		} else {
			s.TotalIncome = s.TotalIncome.Add(tx.Amount.Abs())
		}
		if tx.AIProcessed {
			s.AIProcessed++
		}
		if tx.Confidence >= HighConfidence {
			s.HighConfidence++
		}
		if tx.Anomaly != nil {
			s.Anomalies++
		}
		confidenceSum += tx.Confidence
	}

	s.TotalFiles = len(files)
	s.NetAmount = s.TotalIncome.Add(s.TotalExpenses)
	if len(txs) > 0 {
		s.AverageConfidence = decimal.NewFromInt(int64(confidenceSum)).
			Div(decimal.NewFromInt(int64(len(txs)))).Round(1)
	}
	return s
}

// ByCategory groups transactions per category, sorted by descending
// absolute net. Ties are ordered by category name.
func ByCategory(txs []statement.Transaction) []CategoryTotals {
	index := make(map[string]*CategoryTotals)
	for _, tx := range txs {
		name := tx.Category
		if name == "" {
			name = uncategorizedLabel
		}
		ct, ok := index[name]
		if !ok {
			ct = &CategoryTotals{Category: name}
			index[name] = ct
		}
		ct.Transactions++
		if tx.IsDebit() {
			ct.TotalExpenses = ct.TotalExpenses.Sub(tx.Amount.Abs())
		} else {
			ct.TotalIncome = ct.TotalIncome.Add(tx.Amount.Abs())
		}
	}

	out := make([]CategoryTotals, 0, len(index))
	for _, ct := range index {
		ct.Net = ct.TotalIncome.Add(ct.TotalExpenses)
		out = append(out, *ct)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Net.Abs().Cmp(out[j].Net.Abs()); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}
