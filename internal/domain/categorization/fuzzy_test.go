package categorization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMerchantRules() []Rule {
	return []Rule{
		merchant("WALMART", "Walmart", CategoryGroceries, "Supermarket"),
		merchant("STARBUCKS", "Starbucks", CategoryFoodDrink, "Coffee"),
		merchant("HOME DEPOT", "The Home Depot", CategoryShopping, "Home"),
		kw("COFFEE", CategoryFoodDrink, "Coffee"),
	}
}

func TestFuzzyMatcher_OnlyMerchantRules(t *testing.T) {
	fm := NewFuzzyMatcher(testMerchantRules())
	assert.Equal(t, 3, fm.PatternCount())
}

func TestFuzzyMatcher_Match(t *testing.T) {
	fm := NewFuzzyMatcher(testMerchantRules())

	tests := []struct {
		name        string
		description string
		merchant    string
		minScore    int
	}{
		{"dropped letter", "WALMRT SUPERCENTER", "Walmart", 85},
		{"swapped letter", "STARBUKS STORE 4451", "Starbucks", 88},
		{"split across tokens", "WAL MART #12", "Walmart", 100},
		{"multi word merchant", "HOME DEPT 0042", "The Home Depot", 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := fm.Match(tt.description, DefaultFuzzyThreshold)
			require.NotNil(t, result)
			assert.Equal(t, tt.merchant, result.Merchant)
			assert.GreaterOrEqual(t, result.Score, tt.minScore)
		})
	}

	assert.Nil(t, fm.Match("CORNER DELI", DefaultFuzzyThreshold))
	assert.Nil(t, fm.Match("", DefaultFuzzyThreshold))
}

func TestFuzzyMatcher_MatchAllSortedByScore(t *testing.T) {
	fm := NewFuzzyMatcher(testMerchantRules())

	results := fm.MatchAll("WALMART STARBUKS", 50)
	require.GreaterOrEqual(t, len(results), 2)
	assert.Equal(t, "Walmart", results[0].Merchant)
	assert.Equal(t, 100, results[0].Score)
	assert.Equal(t, 0, results[0].Distance)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestFuzzyScore(t *testing.T) {
	tests := []struct {
		s1, s2 string
		want   int
	}{
		{"WALMART", "WALMART", 100},
		{"WALMRT", "WALMART", 85},
		{"WLMRT", "WALMART", 78},
		{"ABCD", "WXYZ", 0},
		{"", "", 100},
	}
	for _, tt := range tests {
		t.Run(tt.s1+"_"+tt.s2, func(t *testing.T) {
			assert.Equal(t, tt.want, fuzzyScore(tt.s1, tt.s2))
		})
	}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"SQ", "BLUE", "BOTTLE", "4451"}, tokenize("sq *Blue-Bottle #4451"))
	assert.Empty(t, tokenize(" *# "))
}
