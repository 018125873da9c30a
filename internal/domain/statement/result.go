package statement

import (
	"encoding/json"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// DefaultMaxPages caps how many pages of a document are processed when the
// caller does not ask for a different limit.
const DefaultMaxPages = 20

// ProgressFunc is called after each page has been acquired.
type ProgressFunc func(done, total int)

// ParseOptions enumerates every option recognised by the pipeline.
type ParseOptions struct {
	// AIEnhanced routes enrichment through the AI classifier and fills
	// AIReasoning and AIInsights. Defaults to false.
	AIEnhanced bool `json:"aiEnhanced"`
	// MaxPages limits how many pages are read. Zero means DefaultMaxPages.
	MaxPages int `json:"maxPages" validate:"gte=0,lte=500"`
	// UserID attributes quota usage and selects the user's merchant overrides.
	UserID string `json:"userId" validate:"max=128"`
	// FileName is copied onto each transaction as its source file.
	FileName string `json:"fileName,omitempty" validate:"max=255"`
	// OnProgress is optional.
	OnProgress ProgressFunc `json:"-"`
}

// PageLimit returns the effective page cap.
func (o ParseOptions) PageLimit() int {
	if o.MaxPages <= 0 {
		return DefaultMaxPages
	}
	return o.MaxPages
}

// ExtractionMethod records how page text was obtained.
type ExtractionMethod string

const (
	MethodNative ExtractionMethod = "native"
	MethodOCR    ExtractionMethod = "ocr"
)

// AccountInfo is header metadata found on the statement.
type AccountInfo struct {
	AccountNumber  string           `json:"accountNumber,omitempty"`
	AccountHolder  string           `json:"accountHolder,omitempty"`
	Currency       string           `json:"currency,omitempty"`
	OpeningBalance *decimal.Decimal `json:"openingBalance,omitempty"`
	ClosingBalance *decimal.Decimal `json:"closingBalance,omitempty"`
}

// StatementPeriod is the date range printed on the statement.
type StatementPeriod struct {
	Start civil.Date `json:"start"`
	End   civil.Date `json:"end"`
}

// Metadata describes how a result was produced.
type Metadata struct {
	AIEnhanced       bool             `json:"aiEnhanced"`
	ExtractionMethod ExtractionMethod `json:"extractionMethod"`
	PagesTotal       int              `json:"pagesTotal"`
	PagesProcessed   int              `json:"pagesProcessed"`
	Truncated        bool             `json:"truncated"`
	OCRPages         []int            `json:"ocrPages,omitempty"`
	Layout           Layout           `json:"layout,omitempty"`
	FallbackRows     int              `json:"fallbackRows"`
	ProcessingTime   time.Duration    `json:"processingTimeMs"`
	Warnings         []string         `json:"warnings,omitempty"`
}

// MarshalJSON renders ProcessingTime in milliseconds.
func (m Metadata) MarshalJSON() ([]byte, error) {
	type alias Metadata
	return json.Marshal(struct {
		alias
		ProcessingTime int64 `json:"processingTimeMs"`
	}{
		alias:          alias(m),
		ProcessingTime: m.ProcessingTime.Milliseconds(),
	})
}

// CategorySpend is one entry of the top categories list.
type CategorySpend struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	Count    int             `json:"count"`
	Share    float64         `json:"share"`
}

// AIInsights is a statement level summary produced in AI-enhanced mode.
type AIInsights struct {
	Summary              string          `json:"summary"`
	TotalSpent           decimal.Decimal `json:"totalSpent"`
	AverageTransaction   decimal.Decimal `json:"averageTransaction"`
	TopCategories        []CategorySpend `json:"topCategories"`
	Trends               []string        `json:"trends"`
	Recommendations      []string        `json:"recommendations"`
	SavingsOpportunities []string        `json:"savingsOpportunities"`
}

// ParseResult is the envelope returned by a parse. When Success is false,
// Transactions is empty and Error is set.
type ParseResult struct {
	Success         bool             `json:"success"`
	Error           string           `json:"error,omitempty"`
	ErrorKind       ErrorKind        `json:"errorKind,omitempty"`
	Transactions    []Transaction    `json:"transactions"`
	BankType        string           `json:"bankType,omitempty"`
	AccountInfo     *AccountInfo     `json:"accountInfo,omitempty"`
	StatementPeriod *StatementPeriod `json:"statementPeriod,omitempty"`
	Metadata        Metadata         `json:"metadata"`
	AIInsights      *AIInsights      `json:"aiInsights,omitempty"`
}

// Failed builds an unsuccessful result for err, keeping whatever metadata
// was collected before the failure.
func Failed(err error, meta Metadata) *ParseResult {
	return &ParseResult{
		Success:      false,
		Error:        err.Error(),
		ErrorKind:    Kind(err),
		Transactions: []Transaction{},
		Metadata:     meta,
	}
}
