package categorization

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewDefaultService(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestService_Categorize(t *testing.T) {
	svc := newTestService(t)

	tests := []struct {
		name        string
		description string
		txType      statement.TransactionType
		category    string
		merchant    string
		source      Source
	}{
		{"exact merchant", "WALMART SUPERCENTER #1234", statement.Debit, CategoryGroceries, "Walmart", SourceKeyword},
		{"credit-only keyword", "PAYROLL ACME CORP", statement.Credit, CategoryIncome, "", SourceKeyword},
		{"debit-only keyword", "INTEREST CHARGE ON PURCHASES", statement.Debit, CategoryFees, "", SourceKeyword},
		{"fuzzy merchant", "STARBUKS STORE 4451", statement.Debit, CategoryFoodDrink, "Starbucks", SourceFuzzy},
		{"search fallback", "WLMRT SUPERCENTER", statement.Debit, CategoryGroceries, "Walmart", SourceSearch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := svc.Categorize(tt.description, tt.txType)
			assert.True(t, result.Matched())
			assert.Equal(t, tt.category, result.Category)
			assert.Equal(t, tt.merchant, result.Merchant)
			assert.Equal(t, tt.source, result.Source)
		})
	}
}

func TestService_DirectionFiltersRules(t *testing.T) {
	svc := newTestService(t)

	result := svc.Categorize("PAYROLL ACME CORP", statement.Debit)
	assert.False(t, result.Matched())
	assert.Equal(t, SourceNone, result.Source)
}

func TestService_Scores(t *testing.T) {
	svc := newTestService(t)

	assert.Equal(t, 100, svc.Categorize("NETFLIX.COM", statement.Debit).Score)
	assert.Equal(t, 88, svc.Categorize("STARBUKS", statement.Debit).Score)
	assert.Equal(t, 78, svc.Categorize("WLMRT", statement.Debit).Score)
}

func TestService_Ambiguous(t *testing.T) {
	svc := newTestService(t)

	result := svc.Categorize("ATM WITHDRAWAL FEE", statement.Debit)
	assert.Equal(t, CategoryCash, result.Category)
	assert.True(t, result.Ambiguous)

	assert.False(t, svc.Categorize("ATM WITHDRAWAL", statement.Debit).Ambiguous)
}

func TestService_CategorizeBatch(t *testing.T) {
	svc := newTestService(t)

	results := svc.CategorizeBatch(
		[]string{"NETFLIX.COM", "SALARY JAN", "UNKNOWN THING"},
		[]statement.TransactionType{statement.Debit, statement.Credit},
	)
	require.Len(t, results, 3)
	assert.Equal(t, CategoryEntertainment, results[0].Category)
	assert.Equal(t, CategoryIncome, results[1].Category)
	assert.False(t, results[2].Matched())
}

func TestService_Deterministic(t *testing.T) {
	svc := newTestService(t)

	descs := []string{"WLMRT SUPERCENTER", "HOME DEPT 0042", "ATM WITHDRAWAL FEE", "CORNER DELI"}
	first := svc.CategorizeBatch(descs, nil)
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, svc.CategorizeBatch(descs, nil))
	}
}
