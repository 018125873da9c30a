package categorization

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// SearchDocument is one catalog rule as stored in the index.
type SearchDocument struct {
	ID          string  `json:"id"`
	Pattern     string  `json:"pattern"`
	Merchant    string  `json:"merchant"`
	Terms       string  `json:"terms"`
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory"`
	Direction   string  `json:"direction"`
	Priority    float64 `json:"priority"`
}

// SearchResult represents a search hit with relevance score
type SearchResult struct {
	Document SearchDocument
	Score    float64
}

// Rule rebuilds the catalog rule a hit was indexed from.
func (r SearchResult) Rule() Rule {
	return Rule{
		Pattern:     r.Document.Pattern,
		Merchant:    r.Document.Merchant,
		Category:    r.Document.Category,
		Subcategory: r.Document.Subcategory,
		Direction:   directionOf(r.Document.Direction),
		Priority:    int(r.Document.Priority),
	}
}

// SearchIndex provides full-text search over the merchant catalog using Bleve.
type SearchIndex struct {
	index   bleve.Index
	indexMu sync.RWMutex
	path    string // empty for in-memory
}

// NewSearchIndex creates a new search index.
// If path is empty, creates an in-memory index.
// If path is provided, creates/opens a persistent index.
func NewSearchIndex(path string) (*SearchIndex, error) {
	si := &SearchIndex{path: path}

	var index bleve.Index
	var err error

	indexMapping := buildIndexMapping()

	if path == "" {
		index, err = bleve.NewMemOnly(indexMapping)
	} else {
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			if mkdirErr := os.MkdirAll(filepath.Dir(path), 0o755); mkdirErr != nil {
				return nil, fmt.Errorf("failed to create index directory: %w", mkdirErr)
			}
			index, err = bleve.New(path, indexMapping)
		} else {
			index, err = bleve.Open(path)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	si.index = index
	return si, nil
}

// buildIndexMapping creates the Bleve index mapping for catalog documents
func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = simple.Name

	keywordFieldMapping := bleve.NewTextFieldMapping()
	keywordFieldMapping.Analyzer = keyword.Name

	numericFieldMapping := bleve.NewNumericFieldMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("pattern", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("merchant", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("terms", textFieldMapping)
	docMapping.AddFieldMappingsAt("category", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("subcategory", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("direction", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("priority", numericFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = simple.Name

	return indexMapping
}

// IndexRules indexes catalog rules. Only merchant rules are searchable.
func (si *SearchIndex) IndexRules(rules []Rule) error {
	si.indexMu.Lock()
	defer si.indexMu.Unlock()

	batch := si.index.NewBatch()
	for i, rule := range rules {
		if rule.Merchant == "" {
			continue
		}
		doc := SearchDocument{
			ID:          "rule_" + strconv.Itoa(i),
			Pattern:     rule.Pattern,
			Merchant:    rule.Merchant,
			Terms:       rule.Pattern + " " + rule.Merchant,
			Category:    rule.Category,
			Subcategory: rule.Subcategory,
			Direction:   string(rule.Direction),
			Priority:    float64(rule.Priority),
		}
		if err := batch.Index(doc.ID, doc); err != nil {
			return fmt.Errorf("failed to index rule %s: %w", rule.Pattern, err)
		}
	}

	if err := si.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch index: %w", err)
	}
	return nil
}

// Search performs a full-text match query with one edit of typo tolerance.
func (si *SearchIndex) Search(text string, limit int) ([]SearchResult, error) {
	matchQuery := bleve.NewMatchQuery(text)
	matchQuery.SetField("terms")
	matchQuery.SetFuzziness(1)
	return si.run(matchQuery, limit)
}

// SearchDescription builds a disjunction of fuzzy term queries from the
// description tokens long enough to be meaningful.
func (si *SearchIndex) SearchDescription(description string, fuzziness, limit int) ([]SearchResult, error) {
	if fuzziness < 0 {
		fuzziness = 0
	}
	if fuzziness > 2 {
		fuzziness = 2 // Bleve max is 2
	}

	var terms []query.Query
	for _, tok := range tokenize(description) {
		if len(tok) < minFuzzyLen || isDigits(tok) {
			continue
		}
		fq := bleve.NewFuzzyQuery(strings.ToLower(tok))
		fq.SetField("terms")
		fq.SetFuzziness(fuzziness)
		terms = append(terms, fq)
	}
	if len(terms) == 0 {
		return nil, nil
	}
	return si.run(bleve.NewDisjunctionQuery(terms...), limit)
}

// SearchWithPrefix performs a prefix search (autocomplete style)
func (si *SearchIndex) SearchWithPrefix(prefix string, limit int) ([]SearchResult, error) {
	prefixQuery := bleve.NewPrefixQuery(strings.ToLower(prefix))
	prefixQuery.SetField("terms")
	return si.run(prefixQuery, limit)
}

// SearchByCategory lists the catalog merchants of one category
func (si *SearchIndex) SearchByCategory(category string, limit int) ([]SearchResult, error) {
	termQuery := bleve.NewTermQuery(category)
	termQuery.SetField("category")
	if limit <= 0 {
		limit = 100
	}
	return si.run(termQuery, limit)
}

func (si *SearchIndex) run(q query.Query, limit int) ([]SearchResult, error) {
	si.indexMu.RLock()
	defer si.indexMu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"*"}
	// Ties resolve by document id so results are stable between calls.
	req.SortBy([]string{"-_score", "_id"})

	res, err := si.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return convertResults(res), nil
}

// convertResults converts Bleve search results to our SearchResult type
func convertResults(res *bleve.SearchResult) []SearchResult {
	results := make([]SearchResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		doc := SearchDocument{ID: hit.ID}
		if v, ok := hit.Fields["pattern"].(string); ok {
			doc.Pattern = v
		}
		if v, ok := hit.Fields["merchant"].(string); ok {
			doc.Merchant = v
		}
		if v, ok := hit.Fields["terms"].(string); ok {
			doc.Terms = v
		}
		if v, ok := hit.Fields["category"].(string); ok {
			doc.Category = v
		}
		if v, ok := hit.Fields["subcategory"].(string); ok {
			doc.Subcategory = v
		}
		if v, ok := hit.Fields["direction"].(string); ok {
			doc.Direction = v
		}
		if v, ok := hit.Fields["priority"].(float64); ok {
			doc.Priority = v
		}
		results = append(results, SearchResult{Document: doc, Score: hit.Score})
	}
	return results
}

// Close closes the index
func (si *SearchIndex) Close() error {
	si.indexMu.Lock()
	defer si.indexMu.Unlock()

	if si.index != nil {
		return si.index.Close()
	}
	return nil
}

// DocumentCount returns the number of documents in the index
func (si *SearchIndex) DocumentCount() (uint64, error) {
	si.indexMu.RLock()
	defer si.indexMu.RUnlock()

	return si.index.DocCount()
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
