package categorization

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// minFuzzyLen keeps short tokens such as state codes out of fuzzy matching.
const minFuzzyLen = 4

// FuzzyMatchResult represents a fuzzy match with its similarity score
type FuzzyMatchResult struct {
	Pattern     string
	Merchant    string
	Category    string
	Subcategory string
	Rule        Rule
	Score       int // similarity 0-100
	Distance    int // edit distance to the closest window
}

// FuzzyMatcher catches near-miss merchant spellings such as "WALMRT" or
// "STARBUKS" that the exact keyword engine misses.
type FuzzyMatcher struct {
	patterns []fuzzyPattern
	mu       sync.RWMutex
}

type fuzzyPattern struct {
	normalized string // uppercase, spaces removed
	words      int
	rule       Rule
}

// NewFuzzyMatcher creates a new fuzzy matcher. Only merchant rules take part:
// generic keywords are too short to match fuzzily without false positives.
func NewFuzzyMatcher(rules []Rule) *FuzzyMatcher {
	fm := &FuzzyMatcher{}
	fm.Build(rules)
	return fm
}

// Build constructs the fuzzy matcher from rules
func (fm *FuzzyMatcher) Build(rules []Rule) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	fm.patterns = make([]fuzzyPattern, 0, len(rules))
	for _, rule := range rules {
		if rule.Merchant == "" {
			continue
		}
		fields := strings.Fields(strings.ToUpper(rule.Pattern))
		normalized := strings.Join(fields, "")
		if len(normalized) < minFuzzyLen {
			continue
		}
		fm.patterns = append(fm.patterns, fuzzyPattern{
			normalized: normalized,
			words:      len(fields),
			rule:       rule,
		})
	}
}

// Match finds the best fuzzy match for the given description.
// Returns nil if no match reaches threshold (0-100).
func (fm *FuzzyMatcher) Match(description string, threshold int) *FuzzyMatchResult {
	all := fm.MatchAll(description, threshold)
	if len(all) == 0 {
		return nil
	}
	best := all[0]
	return &best
}

// MatchAll finds all fuzzy matches at or above the threshold, best first
func (fm *FuzzyMatcher) MatchAll(description string, threshold int) []FuzzyMatchResult {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	if len(fm.patterns) == 0 {
		return nil
	}

	words := tokenize(description)
	var results []FuzzyMatchResult
	for _, p := range fm.patterns {
		score, distance := bestWindow(words, p)
		if score < threshold {
			continue
		}
		results = append(results, FuzzyMatchResult{
			Pattern:     p.normalized,
			Merchant:    p.rule.Merchant,
			Category:    p.rule.Category,
			Subcategory: p.rule.Subcategory,
			Rule:        p.rule,
			Score:       score,
			Distance:    distance,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Pattern < results[j].Pattern
	})
	return results
}

// PatternCount returns the number of patterns in the matcher
func (fm *FuzzyMatcher) PatternCount() int {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	return len(fm.patterns)
}

// bestWindow slides over runs of words the size of the pattern (and one more,
// for merchants split across tokens) and returns the best similarity.
func bestWindow(words []string, p fuzzyPattern) (int, int) {
	bestScore, bestDistance := 0, -1
	for size := p.words; size <= p.words+1; size++ {
		for i := 0; i+size <= len(words); i++ {
			window := strings.Join(words[i:i+size], "")
			if len(window) < minFuzzyLen {
				continue
			}
			score := fuzzyScore(window, p.normalized)
			if score > bestScore {
				bestScore = score
				bestDistance = levenshtein.ComputeDistance(window, p.normalized)
			}
		}
	}
	return bestScore, bestDistance
}

// fuzzyScore calculates a similarity score between two strings (0-100).
// Edit distance drives the score; an abbreviation that keeps the letters in
// order ("WLMRT") gets a floor.
func fuzzyScore(s1, s2 string) int {
	if s1 == s2 {
		return 100
	}
	r1, r2 := []rune(s1), []rune(s2)
	maxLen := max(len(r1), len(r2))
	if maxLen == 0 {
		return 0
	}

	distance := levenshtein.ComputeDistance(s1, s2)
	score := 100 * (maxLen - distance) / maxLen

	shorter, longer := s1, s2
	if len(r1) > len(r2) {
		shorter, longer = s2, s1
	}
	if len([]rune(shorter)) >= minFuzzyLen && fuzzy.MatchFold(shorter, longer) {
		abbrev := 50 + 40*len([]rune(shorter))/len([]rune(longer))
		if abbrev > score {
			score = abbrev
		}
	}
	return score
}

// tokenize uppercases a description and splits it on anything that is not
// a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToUpper(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
