package categorization

import (
	"sort"
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"
)

// MatchResult represents a single pattern match with its associated metadata
type MatchResult struct {
	Pattern     string
	Merchant    string
	Category    string
	Subcategory string
	Rule        Rule
	Priority    int
}

// Engine is a pattern matching engine using the Aho-Corasick algorithm.
// It matches every catalog keyword against a description in a single pass.
type Engine struct {
	matcher  *ahocorasick.Matcher
	patterns []string        // unique patterns in matcher order
	metadata [][]MatchResult // every rule sharing a pattern
	mu       sync.RWMutex
}

// NewEngine creates a new categorization engine from rules.
func NewEngine(rules []Rule) *Engine {
	e := &Engine{}
	e.Build(rules)
	return e
}

// Build constructs the Aho-Corasick matcher from rules. Rules sharing a
// pattern are grouped under one matcher entry.
func (e *Engine) Build(rules []Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()

	patternToIndex := make(map[string]int)
	patterns := make([]string, 0, len(rules))
	metadata := make([][]MatchResult, 0, len(rules))

	for _, rule := range rules {
		clean := strings.ToUpper(strings.TrimSpace(rule.Pattern))
		if clean == "" {
			continue
		}
		result := MatchResult{
			Pattern:     clean,
			Merchant:    rule.Merchant,
			Category:    rule.Category,
			Subcategory: rule.Subcategory,
			Rule:        rule,
			// Longer keywords are more specific.
			Priority: rule.Priority*100 + len(clean),
		}
		if idx, ok := patternToIndex[clean]; ok {
			metadata[idx] = append(metadata[idx], result)
			continue
		}
		patternToIndex[clean] = len(patterns)
		patterns = append(patterns, clean)
		metadata = append(metadata, []MatchResult{result})
	}

	e.patterns = patterns
	e.metadata = metadata
	if len(patterns) == 0 {
		e.matcher = nil
		return
	}
	e.matcher = ahocorasick.NewStringMatcher(patterns)
}

// Match finds all matching patterns in the description and returns the
// highest priority one, or nil.
func (e *Engine) Match(description string) *MatchResult {
	all := e.MatchAll(description)
	if len(all) == 0 {
		return nil
	}
	best := all[0]
	return &best
}

// MatchAll finds all matching patterns in the description, highest priority
// first. A pattern only counts when it sits on word boundaries.
func (e *Engine) MatchAll(description string) []MatchResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.matcher == nil {
		return nil
	}

	upper := strings.ToUpper(description)
	hits := e.matcher.MatchThreadSafe([]byte(upper))
	if len(hits) == 0 {
		return nil
	}

	results := make([]MatchResult, 0, len(hits))
	for _, idx := range hits {
		if idx < 0 || idx >= len(e.metadata) {
			continue
		}
		if !onWordBoundary(upper, e.patterns[idx]) {
			continue
		}
		results = append(results, e.metadata[idx]...)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Priority != results[j].Priority {
			return results[i].Priority > results[j].Priority
		}
		return results[i].Pattern < results[j].Pattern
	})
	return results
}

// MatchBatch returns the best match for each description.
func (e *Engine) MatchBatch(descriptions []string) []*MatchResult {
	results := make([]*MatchResult, len(descriptions))
	for i, desc := range descriptions {
		results[i] = e.Match(desc)
	}
	return results
}

// PatternCount returns the number of patterns loaded in the engine.
func (e *Engine) PatternCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.patterns)
}

// IsEmpty returns true if the engine has no patterns loaded.
func (e *Engine) IsEmpty() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.matcher == nil
}

// onWordBoundary reports whether pattern occurs in text with no letter or
// digit directly before or after it.
func onWordBoundary(text, pattern string) bool {
	from := 0
	for {
		i := strings.Index(text[from:], pattern)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(pattern)
		if (start == 0 || !isWordByte(text[start-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		from = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}
