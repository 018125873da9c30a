package categorization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

func TestEngine_Match(t *testing.T) {
	engine := NewEngine(DefaultRules())

	tests := []struct {
		name        string
		description string
		category    string
		subcategory string
		merchant    string
	}{
		{"merchant beats generic keyword", "STARBUCKS COFFEE 001", CategoryFoodDrink, "Coffee", "Starbucks"},
		{"generic keyword", "JOE'S COFFEE HOUSE", CategoryFoodDrink, "Coffee", ""},
		{"longer keyword wins", "FOREIGN TRANSACTION FEE", CategoryFees, "Foreign Transaction", ""},
		{"lowercase input", "walmart supercenter", CategoryGroceries, "Supermarket", "Walmart"},
		{"punctuation is a boundary", "ONLINE TRANSFER/SAVINGS", CategoryTransfers, "Account Transfer", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := engine.Match(tt.description)
			require.NotNil(t, result)
			assert.Equal(t, tt.category, result.Category)
			assert.Equal(t, tt.subcategory, result.Subcategory)
			assert.Equal(t, tt.merchant, result.Merchant)
		})
	}
}

func TestEngine_WordBoundaries(t *testing.T) {
	engine := NewEngine(DefaultRules())

	for _, m := range engine.MatchAll("BLUE BOTTLE COFFEE") {
		assert.NotEqual(t, "FEE", m.Pattern, "FEE inside COFFEE must not match")
	}
	for _, m := range engine.MatchAll("TRANSFER FROM CHECKING") {
		assert.NotEqual(t, "NSF", m.Pattern)
		assert.NotEqual(t, "CHECK", m.Pattern)
	}
	assert.Nil(t, engine.Match("FIRST NATIONAL CURRENT ACCOUNT"))
}

func TestEngine_DuplicatePatternsAreGrouped(t *testing.T) {
	engine := NewEngine([]Rule{
		{Pattern: "CAFE", Category: CategoryFoodDrink},
		{Pattern: "cafe", Category: CategoryShopping},
		{Pattern: " ", Category: CategoryShopping},
	})

	assert.Equal(t, 1, engine.PatternCount())
	assert.Len(t, engine.MatchAll("CAFE NERO"), 2)
}

func TestEngine_MatchAllOrdering(t *testing.T) {
	engine := NewEngine(DefaultRules())

	all := engine.MatchAll("ATM WITHDRAWAL FEE")
	require.Len(t, all, 2)
	assert.Equal(t, "ATM", all[0].Pattern)
	assert.Equal(t, "FEE", all[1].Pattern)
	assert.Equal(t, statement.Debit, all[0].Rule.Direction)
}

func TestEngine_Empty(t *testing.T) {
	engine := NewEngine(nil)
	assert.True(t, engine.IsEmpty())
	assert.Nil(t, engine.Match("ANYTHING"))
	assert.Equal(t, []*MatchResult{nil, nil}, engine.MatchBatch([]string{"A", "B"}))
}

func TestOnWordBoundary(t *testing.T) {
	tests := []struct {
		text, pattern string
		want          bool
	}{
		{"RENT PAYMENT", "RENT", true},
		{"CURRENT ACCOUNT", "RENT", false},
		{"CURRENT RENT", "RENT", true},
		{"ATM#123", "ATM", true},
		{"TREATMENT", "ATM", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, onWordBoundary(tt.text, tt.pattern))
		})
	}
}

func BenchmarkEngine_Match(b *testing.B) {
	engine := NewEngine(DefaultRules())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.Match("DEBIT CARD PURCHASE 01/14 SOME UNKNOWN STORE 4451 SEATTLE WA")
	}
}
