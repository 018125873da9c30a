// Package statement holds the data model shared by every stage of the
// statement extraction pipeline.
package statement

import (
	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType tells whether money left (debit) or entered (credit) the account.
type TransactionType string

const (
	Credit TransactionType = "credit"
	Debit  TransactionType = "debit"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	return t == Credit || t == Debit
}

// Severity grades an anomaly.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities so the stronger of two flags can be kept.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Anomaly annotates a transaction that looks unusual. It never removes the
// transaction from the result.
type Anomaly struct {
	Severity       Severity `json:"severity"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation"`
}

// Transaction is one parsed statement line.
//
// Amount is always the unsigned magnitude; the direction lives in Type.
// Use SignedAmount when rendering.
type Transaction struct {
	ID                 uuid.UUID        `json:"id"`
	Date               civil.Date       `json:"date"`
	Description        string           `json:"description"`
	NormalizedMerchant string           `json:"normalizedMerchant"`
	Amount             decimal.Decimal  `json:"amount"`
	Balance            *decimal.Decimal `json:"balance,omitempty"`
	Type               TransactionType  `json:"transactionType"`
	Category           string           `json:"category,omitempty"`
	Subcategory        string           `json:"subcategory,omitempty"`
	Confidence         int              `json:"confidence"`
	AIReasoning        string           `json:"aiReasoning,omitempty"`
	AIProcessed        bool             `json:"aiProcessed"`
	Anomaly            *Anomaly         `json:"anomaly,omitempty"`
	SourceFile         string           `json:"sourceFile,omitempty"`
	Page               int              `json:"page,omitempty"`
}

// SignedAmount returns the amount with debits negative and credits positive.
func (t Transaction) SignedAmount() decimal.Decimal {
	if t.Type == Debit {
		return t.Amount.Abs().Neg()
	}
	return t.Amount.Abs()
}

// IsDebit reports whether the transaction took money out of the account.
func (t Transaction) IsDebit() bool {
	return t.Type == Debit
}
