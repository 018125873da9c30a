package enrich

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

// ClassifierChunkSize is the number of rows sent to the classifier per call.
const ClassifierChunkSize = 25

// ClassifyRow is one statement row as seen by an AI classifier. The rule
// based guesses are included as hints.
type ClassifyRow struct {
	Index        int                       `json:"index"`
	Date         civil.Date                `json:"date"`
	Description  string                    `json:"description"`
	Amount       decimal.Decimal           `json:"amount"`
	Type         statement.TransactionType `json:"type"`
	Balance      *decimal.Decimal          `json:"balance,omitempty"`
	MerchantHint string                    `json:"merchantHint,omitempty"`
	CategoryHint string                    `json:"categoryHint,omitempty"`
}

// ClassifyContext carries statement level facts that help classification.
type ClassifyContext struct {
	BankType string
	Currency string
	// Categories is the label set the classifier should choose from.
	Categories []string
}

// Classification is the classifier verdict for one row. Index refers back
// to ClassifyRow.Index.
type Classification struct {
	Index              int                `json:"index"`
	Category           string             `json:"category"`
	Subcategory        string             `json:"subcategory"`
	NormalizedMerchant string             `json:"normalizedMerchant"`
	Confidence         int                `json:"confidence"`
	Reasoning          string             `json:"reasoning"`
	Anomaly            *statement.Anomaly `json:"anomaly,omitempty"`
}

// Classifier is the AI-backed classification path.
type Classifier interface {
	// Classify labels a chunk of rows. Rows missing from the response keep
	// their rule based enrichment.
	Classify(ctx context.Context, rows []ClassifyRow, cc ClassifyContext) ([]Classification, error)
	// Summarize writes a narrative summary for computed insights.
	Summarize(ctx context.Context, insights *statement.AIInsights, cc ClassifyContext) (string, error)
}
