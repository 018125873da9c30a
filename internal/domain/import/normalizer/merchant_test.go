package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerchantSanitizer_Sanitize(t *testing.T) {
	sanitizer := NewMerchantSanitizer()

	tests := []struct {
		name           string
		input          string
		expectedName   string
		expectedCat    string
		expectedSubcat string
		matched        bool
	}{
		{
			name:           "Walmart with store number",
			input:          "WALMART SUPERCENTER #1234",
			expectedName:   "Walmart",
			expectedCat:    "Groceries",
			expectedSubcat: "Supermarket",
			matched:        true,
		},
		{
			name:           "Card purchase prefix and auth date",
			input:          "DEBIT CARD PURCHASE 01/14 STARBUCKS STORE 4451 SEATTLE WA",
			expectedName:   "Starbucks",
			expectedCat:    "Food & Drink",
			expectedSubcat: "Coffee",
			matched:        true,
		},
		{
			name:           "Netflix with phone suffix",
			input:          "NETFLIX.COM 866-579",
			expectedName:   "Netflix",
			expectedCat:    "Entertainment",
			expectedSubcat: "Streaming",
			matched:        true,
		},
		{
			name:           "Uber ride",
			input:          "UBER *TRIP 12/01",
			expectedName:   "Uber",
			expectedCat:    "Transport",
			expectedSubcat: "Rideshare",
			matched:        true,
		},
		{
			name:           "Uber Eats delivery wins over rideshare",
			input:          "UBER* EATS PENDING",
			expectedName:   "Uber Eats",
			expectedCat:    "Food & Drink",
			expectedSubcat: "Delivery",
			matched:        true,
		},
		{
			name:           "UK direct debit",
			input:          "DD BRITISH GAS 88123456",
			expectedName:   "British Gas",
			expectedCat:    "Utilities",
			expectedSubcat: "Gas",
			matched:        true,
		},
		{
			name:           "Amazon marketplace",
			input:          "AMZN Mktp US*2K4LL0X12",
			expectedName:   "Amazon",
			expectedCat:    "Shopping",
			expectedSubcat: "Online",
			matched:        true,
		},
		{
			name:         "Unknown merchant gets title case",
			input:        "SOME RANDOM STORE 456789",
			expectedName: "Some Random Store",
		},
		{
			name:         "Square aggregator prefix",
			input:        "SQ *BLUE BOTTLE CAFE",
			expectedName: "Blue Bottle Cafe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := sanitizer.Sanitize(tt.input)

			assert.Equal(t, tt.input, result.OriginalName)
			assert.Equal(t, tt.expectedName, result.NormalizedName)
			assert.Equal(t, tt.expectedCat, result.Category)
			assert.Equal(t, tt.expectedSubcat, result.Subcategory)
			assert.Equal(t, tt.matched, result.Matched)
		})
	}
}

func TestCleanMerchantName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  POS   CORNER DELI   ", "CORNER DELI"},
		{"PURCHASE CORNER DELI 12/01/24", "CORNER DELI"},
		{"CHECKCARD 0114 CORNER DELI", "0114 CORNER DELI"},
		{"CARD XXXX1234 CORNER DELI", "XXXX1234 CORNER DELI"},
		{"CORNER DELI CARD XXXX1234", "CORNER DELI"},
		{"TST* CORNER DELI", "CORNER DELI"},
		{"Corner Deli", "Corner Deli"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanMerchantName(tt.input))
		})
	}
}

func TestMerchantSanitizer_AddPattern(t *testing.T) {
	sanitizer := NewMerchantSanitizer()

	require.NoError(t, sanitizer.AddPattern(`CORNER\s+DELI`, "Corner Deli", "Food & Drink", "Deli"))
	result := sanitizer.Sanitize("POS CORNER DELI 0042")
	assert.Equal(t, "Corner Deli", result.NormalizedName)
	assert.Equal(t, "Deli", result.Subcategory)

	assert.Error(t, sanitizer.AddPattern(`(`, "Broken", "", ""))
}

func BenchmarkSanitize(b *testing.B) {
	sanitizer := NewMerchantSanitizer()
	for i := 0; i < b.N; i++ {
		sanitizer.Sanitize("DEBIT CARD PURCHASE 01/14 SOME UNKNOWN STORE 4451 SEATTLE WA")
	}
}
