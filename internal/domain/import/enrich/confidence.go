package enrich

import (
	"github.com/statementdesk/statement-desk/internal/domain/categorization"
	"github.com/statementdesk/statement-desk/internal/domain/import/parser"
)

// Confidence deductions from a perfect 100. Parse problems and weak
// classifications both lower the score.
const (
	penaltyDateInferred     = 15
	penaltyKeywordDirection = 20
	penaltyBalanceMismatch  = 15
	penaltyFallbackLayout   = 25
	penaltyWrapped          = 10
	penaltyAmbiguous        = 15
	penaltyUncategorized    = 20
	penaltyFuzzy            = 10
	penaltySearch           = 8

	aiWeight    = 0.6
	parseWeight = 0.4
)

// categorySource records which layer assigned the category.
type categorySource int

const (
	fromNone categorySource = iota
	fromOverride
	fromMerchantPattern
	fromRules
)

// scoreRow rates how certain the extraction and classification of a row are.
func scoreRow(row parser.RawRow, src categorySource, rules categorization.Result) int {
	score := 100

	if row.DateInferred {
		score -= penaltyDateInferred
	}
	if row.TypeSource == parser.TypeKeyword {
		score -= penaltyKeywordDirection
	}
	if row.BalanceMismatch {
		score -= penaltyBalanceMismatch
	}
	if row.Fallback() {
		score -= penaltyFallbackLayout
	}
	if row.Wrapped {
		score -= penaltyWrapped
	}

	switch src {
	case fromNone:
		score -= penaltyUncategorized
	case fromRules:
		if rules.Ambiguous {
			score -= penaltyAmbiguous
		}
		switch rules.Source {
		case categorization.SourceFuzzy:
			score -= penaltyFuzzy
		case categorization.SourceSearch:
			score -= penaltySearch
		}
	}

	return clamp(score)
}

// blend mixes the parse score with the classifier's own confidence.
func blend(parse, ai int) int {
	return clamp(int(float64(clamp(parse))*parseWeight + float64(clamp(ai))*aiWeight + 0.5))
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
