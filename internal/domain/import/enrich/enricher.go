// Package enrich turns segmented statement rows into complete transactions:
// merchant normalization, categorization, confidence scoring, anomaly flags
// and the optional AI classification path.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/statementdesk/statement-desk/internal/domain/categorization"
	"github.com/statementdesk/statement-desk/internal/domain/import/normalizer"
	"github.com/statementdesk/statement-desk/internal/domain/import/parser"
	"github.com/statementdesk/statement-desk/internal/domain/insights"
	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

var transactionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://statementdesk.dev/transaction"))

// Categorizer is the rule-based categorization stage.
type Categorizer interface {
	Categorize(description string, txType statement.TransactionType) categorization.Result
}

// Options control one enrichment run.
type Options struct {
	AIEnhanced bool
	SourceFile string
	// Overrides are the user's merchant corrections, applied first.
	Overrides normalizer.Overrides
	BankType  string
	Currency  string
}

// Outcome is the enriched statement.
type Outcome struct {
	Transactions []statement.Transaction
	// AIEnhanced is true only when the classifier actually ran.
	AIEnhanced bool
	Insights   *statement.AIInsights
	// OverridesApplied lists matched override ids, each once.
	OverridesApplied []uuid.UUID
	Warnings         []string
}

// Enricher holds the enrichment stages. It keeps no per-document state.
type Enricher struct {
	sanitizer   *normalizer.MerchantSanitizer
	categorizer Categorizer
	detector    *Detector
	classifier  Classifier
	logger      *slog.Logger
}

// NewEnricher creates an enricher. classifier may be nil, in which case
// AI-enhanced requests degrade to rule-based enrichment.
func NewEnricher(
	sanitizer *normalizer.MerchantSanitizer,
	categorizer Categorizer,
	detector *Detector,
	classifier Classifier,
	logger *slog.Logger,
) *Enricher {
	if sanitizer == nil {
		sanitizer = normalizer.NewMerchantSanitizer()
	}
	if detector == nil {
		detector = NewDetector(DetectorConfig{})
	}
	return &Enricher{
		sanitizer:   sanitizer,
		categorizer: categorizer,
		detector:    detector,
		classifier:  classifier,
		logger:      logger,
	}
}

// rowState is the per-row bookkeeping kept between passes.
type rowState struct {
	row        parser.RawRow
	source     categorySource
	overridden bool
	aiAnomaly  *statement.Anomaly
}

// Enrich converts rows into transactions in the same order. It fails only
// when the context is done or the classifier is rate limited; every other
// problem degrades the result and is logged.
func (e *Enricher) Enrich(ctx context.Context, rows []parser.RawRow, opts Options) (*Outcome, error) {
	out := &Outcome{Transactions: make([]statement.Transaction, 0, len(rows))}
	states := make([]rowState, 0, len(rows))
	applied := make(map[uuid.UUID]bool)

	for i, row := range rows {
		tx, st, override := e.enrichRow(i, row, opts)
		if override != nil && !applied[override.ID] {
			applied[override.ID] = true
			out.OverridesApplied = append(out.OverridesApplied, override.ID)
		}
		out.Transactions = append(out.Transactions, tx)
		states = append(states, st)
	}

	if opts.AIEnhanced {
		switch {
		case e.classifier == nil:
			e.logger.Warn("ai-enhanced mode requested without a classifier, using rules",
				"error", statement.ErrAINotConfigured)
			out.Warnings = append(out.Warnings, "ai classification unavailable: "+statement.ErrAINotConfigured.Error())
		default:
			err := e.classify(ctx, out.Transactions, states, opts)
			switch {
			case err == nil:
				out.AIEnhanced = true
			case ctx.Err() != nil:
				return nil, fmt.Errorf("ai classification: %w", ctx.Err())
			case errors.Is(err, statement.ErrClassifierRateLimited):
				return nil, fmt.Errorf("ai classification: %w", err)
			default:
				e.logger.Warn("ai classification failed, using rules", "error", err)
				out.Warnings = append(out.Warnings, "ai classification failed; rule-based categories used")
			}
		}
	}

	e.flagAnomalies(out, states, opts.Currency)

	if opts.AIEnhanced {
		out.Insights = insights.Compute(out.Transactions, opts.Currency)
		if out.AIEnhanced && out.Insights != nil {
			e.summarize(ctx, out, opts)
		}
	}

	return out, nil
}

func (e *Enricher) enrichRow(index int, row parser.RawRow, opts Options) (statement.Transaction, rowState, *normalizer.MerchantOverride) {
	st := rowState{row: row}
	tx := statement.Transaction{
		ID:          transactionID(opts.SourceFile, index, row),
		Date:        row.Date,
		Description: row.Description,
		Amount:      row.Amount.Abs(),
		Balance:     row.Balance,
		Type:        row.Type,
		SourceFile:  opts.SourceFile,
		Page:        row.Page,
	}

	info := e.sanitizer.Sanitize(row.Description)
	tx.NormalizedMerchant = info.NormalizedName

	var rules categorization.Result
	if e.categorizer != nil {
		rules = e.categorizer.Categorize(row.Description, row.Type)
	}

	override := opts.Overrides.MatchMerchant(row.Description, info.NormalizedName)
	switch {
	case override != nil && override.Category != nil && *override.Category != "":
		tx.Category = *override.Category
		if override.Subcategory != nil {
			tx.Subcategory = *override.Subcategory
		}
		st.source = fromOverride
	case info.Matched && info.Category != "":
		tx.Category = info.Category
		tx.Subcategory = info.Subcategory
		st.source = fromMerchantPattern
	case rules.Matched():
		tx.Category = rules.Category
		tx.Subcategory = rules.Subcategory
		st.source = fromRules
	}

	switch {
	case override != nil && override.MerchantName != "":
		tx.NormalizedMerchant = override.MerchantName
	case info.Matched:
	case rules.Merchant != "":
		tx.NormalizedMerchant = rules.Merchant
	}
	st.overridden = override != nil

	tx.Confidence = scoreRow(row, st.source, rules)
	return tx, st, override
}

// classify runs the classifier over all rows in fixed size chunks. Any
// failure discards every AI result so a document is never half classified.
func (e *Enricher) classify(ctx context.Context, txs []statement.Transaction, states []rowState, opts Options) error {
	cc := ClassifyContext{
		BankType:   opts.BankType,
		Currency:   opts.Currency,
		Categories: categorization.Categories(),
	}

	verdicts := make(map[int]Classification, len(txs))
	for start := 0; start < len(txs); start += ClassifierChunkSize {
		end := min(start+ClassifierChunkSize, len(txs))
		chunk := make([]ClassifyRow, 0, end-start)
		for i := start; i < end; i++ {
			chunk = append(chunk, ClassifyRow{
				Index:        i,
				Date:         txs[i].Date,
				Description:  txs[i].Description,
				Amount:       txs[i].Amount,
				Type:         txs[i].Type,
				Balance:      txs[i].Balance,
				MerchantHint: txs[i].NormalizedMerchant,
				CategoryHint: txs[i].Category,
			})
		}

		results, err := e.classifier.Classify(ctx, chunk, cc)
		if err != nil {
			return fmt.Errorf("classify rows %d-%d: %w", start, end-1, err)
		}
		for _, c := range results {
			if c.Index < start || c.Index >= end {
				continue
			}
			verdicts[c.Index] = c
		}
	}

	for i := range txs {
		c, ok := verdicts[i]
		if !ok {
			continue
		}
		applyClassification(&txs[i], &states[i], c)
	}
	return nil
}

func applyClassification(tx *statement.Transaction, st *rowState, c Classification) {
	userCategory := st.source == fromOverride
	if !userCategory && strings.TrimSpace(c.Category) != "" {
		tx.Category = strings.TrimSpace(c.Category)
		tx.Subcategory = strings.TrimSpace(c.Subcategory)
	}
	if !st.overridden && strings.TrimSpace(c.NormalizedMerchant) != "" {
		tx.NormalizedMerchant = strings.TrimSpace(c.NormalizedMerchant)
	}
	if c.Confidence > 0 {
		tx.Confidence = blend(tx.Confidence, c.Confidence)
	}
	tx.AIReasoning = strings.TrimSpace(c.Reasoning)
	tx.AIProcessed = true
	st.aiAnomaly = c.Anomaly
}

func (e *Enricher) flagAnomalies(out *Outcome, states []rowState, currency string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("anomaly detector failed, continuing without flags", "error", fmt.Errorf("panic: %v", r))
			out.Warnings = append(out.Warnings, "anomaly detection unavailable")
		}
	}()

	flags := e.detector.Detect(out.Transactions, currency)
	for i := range out.Transactions {
		out.Transactions[i].Anomaly = mergeAnomaly(flags[i], states[i].aiAnomaly)
	}
}

func (e *Enricher) summarize(ctx context.Context, out *Outcome, opts Options) {
	summary, err := e.classifier.Summarize(ctx, out.Insights, ClassifyContext{
		BankType:   opts.BankType,
		Currency:   opts.Currency,
		Categories: categorization.Categories(),
	})
	if err != nil {
		e.logger.Warn("ai summary failed, keeping computed summary", "error", err)
		return
	}
	if s := strings.TrimSpace(summary); s != "" {
		out.Insights.Summary = s
	}
}

// transactionID is stable for the same row of the same file.
func transactionID(sourceFile string, index int, row parser.RawRow) uuid.UUID {
	key := fmt.Sprintf("%s|%d|%s|%s|%s|%s", sourceFile, index, row.Date, row.Description, row.Amount.String(), row.Type)
	return uuid.NewSHA1(transactionNamespace, []byte(key))
}
