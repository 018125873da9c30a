package categorization

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

// Source names the stage that produced a categorization.
type Source string

const (
	SourceNone    Source = ""
	SourceKeyword Source = "keyword"
	SourceFuzzy   Source = "fuzzy"
	SourceSearch  Source = "search"
)

const (
	// DefaultFuzzyThreshold is the minimum similarity for a fuzzy merchant match.
	DefaultFuzzyThreshold = 80
	// searchConfirmThreshold is the similarity a search hit needs to be used.
	searchConfirmThreshold = 70
)

// Result holds the result of categorizing a transaction description
type Result struct {
	Merchant    string
	Category    string
	Subcategory string
	Source      Source
	// Score is the match similarity, 100 for exact keyword hits.
	Score int
	// Ambiguous is set when equally ranked keywords disagree on the category.
	Ambiguous bool
}

// Matched reports whether any stage assigned a category.
func (r Result) Matched() bool {
	return r.Category != ""
}

// Service categorizes descriptions against the rule catalog: exact keywords
// first, then fuzzy merchant matching, then a full-text search of the catalog.
type Service struct {
	engine         *Engine
	fuzzy          *FuzzyMatcher
	index          *SearchIndex
	fuzzyThreshold int
	logger         *slog.Logger
}

// NewService builds the three matching stages from rules.
func NewService(rules []Rule, logger *slog.Logger) (*Service, error) {
	index, err := NewSearchIndex("")
	if err != nil {
		return nil, err
	}
	if err := index.IndexRules(rules); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("failed to index catalog: %w", err)
	}
	return &Service{
		engine:         NewEngine(rules),
		fuzzy:          NewFuzzyMatcher(rules),
		index:          index,
		fuzzyThreshold: DefaultFuzzyThreshold,
		logger:         logger,
	}, nil
}

// NewDefaultService builds a service over the built-in catalog.
func NewDefaultService(logger *slog.Logger) (*Service, error) {
	return NewService(DefaultRules(), logger)
}

// Categorize classifies one description. txType filters direction-specific
// rules and may be empty.
func (s *Service) Categorize(description string, txType statement.TransactionType) Result {
	if r, ok := s.keyword(description, txType); ok {
		return r
	}
	if m := s.fuzzy.Match(description, s.fuzzyThreshold); m != nil && m.Rule.Applies(txType) {
		return Result{
			Merchant:    m.Merchant,
			Category:    m.Category,
			Subcategory: m.Subcategory,
			Source:      SourceFuzzy,
			Score:       m.Score,
		}
	}
	if r, ok := s.search(description, txType); ok {
		return r
	}
	return Result{}
}

// CategorizeBatch categorizes descriptions paired with their types.
func (s *Service) CategorizeBatch(descriptions []string, types []statement.TransactionType) []Result {
	results := make([]Result, len(descriptions))
	for i, desc := range descriptions {
		var t statement.TransactionType
		if i < len(types) {
			t = types[i]
		}
		results[i] = s.Categorize(desc, t)
	}
	return results
}

// Close releases the search index.
func (s *Service) Close() error {
	return s.index.Close()
}

func (s *Service) keyword(description string, txType statement.TransactionType) (Result, bool) {
	var best *MatchResult
	ambiguous := false
	for _, m := range s.engine.MatchAll(description) {
		if !m.Rule.Applies(txType) {
			continue
		}
		if best == nil {
			best = &m
			continue
		}
		if m.Priority == best.Priority && m.Category != best.Category {
			ambiguous = true
		}
		break
	}
	if best == nil {
		return Result{}, false
	}
	return Result{
		Merchant:    best.Merchant,
		Category:    best.Category,
		Subcategory: best.Subcategory,
		Source:      SourceKeyword,
		Score:       100,
		Ambiguous:   ambiguous,
	}, true
}

func (s *Service) search(description string, txType statement.TransactionType) (Result, bool) {
	hits, err := s.index.SearchDescription(description, 2, 5)
	if err != nil {
		s.logger.Warn("catalog search failed", "error", err)
		return Result{}, false
	}
	words := tokenize(description)
	for _, hit := range hits {
		rule := hit.Rule()
		if !rule.Applies(txType) {
			continue
		}
		p := fuzzyPattern{normalized: joinUpper(rule.Pattern), words: len(tokenize(rule.Pattern)), rule: rule}
		score, _ := bestWindow(words, p)
		if score < searchConfirmThreshold {
			continue
		}
		return Result{
			Merchant:    rule.Merchant,
			Category:    rule.Category,
			Subcategory: rule.Subcategory,
			Source:      SourceSearch,
			Score:       score,
		}, true
	}
	return Result{}, false
}

func joinUpper(s string) string {
	return strings.Join(tokenize(s), "")
}

func directionOf(s string) statement.TransactionType {
	t := statement.TransactionType(s)
	if t.Valid() {
		return t
	}
	return ""
}
