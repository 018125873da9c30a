package aiclassifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/statementdesk/statement-desk/internal/domain/import/enrich"
	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

type fakeGenerator struct {
	text    string
	err     error
	model   string
	prompts []string
	configs []*genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	for _, c := range contents {
		for _, p := range c.Parts {
			f.prompts = append(f.prompts, p.Text)
		}
	}
	f.configs = append(f.configs, config)
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}},
		}},
	}, nil
}

func newTestGemini(gen *fakeGenerator) *Gemini {
	return newGemini(gen, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testRows() []enrich.ClassifyRow {
	return []enrich.ClassifyRow{
		{
			Index:        0,
			Date:         civil.Date{Year: 2024, Month: 1, Day: 15},
			Description:  "WALMART SUPERCENTER #1234",
			Amount:       decimal.RequireFromString("125.67"),
			Type:         statement.Debit,
			MerchantHint: "Walmart",
			CategoryHint: "Groceries",
		},
		{
			Index:       1,
			Date:        civil.Date{Year: 2024, Month: 1, Day: 16},
			Description: "QWZX PLUMBING 0042",
			Amount:      decimal.RequireFromString("80.00"),
			Type:        statement.Debit,
		},
	}
}

func TestNewGemini_RequiresAPIKey(t *testing.T) {
	_, err := NewGemini(context.Background(), "  ", "", nil)
	assert.ErrorIs(t, err, statement.ErrAINotConfigured)
	assert.Equal(t, statement.KindConfiguration, statement.Kind(err))
}

func TestGemini_Classify(t *testing.T) {
	gen := &fakeGenerator{text: "```json\n" + `[
		{"index": 0, "category": "Groceries", "subcategory": "Supermarket", "normalizedMerchant": "Walmart", "confidence": 0.97, "reasoning": "Big box grocer", "anomaly": null},
		{"index": 1, "category": "Housing", "subcategory": "Repairs", "normalizedMerchant": "QWZX Plumbing", "confidence": 72, "reasoning": "Plumbing service",
		 "anomaly": {"severity": "MEDIUM", "description": "First payment to this plumber", "recommendation": "Check the invoice"}}
	]` + "\n```"}

	g := newTestGemini(gen)
	out, err := g.Classify(context.Background(), testRows(), enrich.ClassifyContext{
		BankType:   "Chase",
		Currency:   "USD",
		Categories: []string{"Groceries", "Housing"},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, DefaultModel, gen.model)
	assert.Equal(t, 97, out[0].Confidence)
	assert.Equal(t, "Walmart", out[0].NormalizedMerchant)
	assert.Nil(t, out[0].Anomaly)

	assert.Equal(t, 1, out[1].Index)
	assert.Equal(t, "Housing", out[1].Category)
	assert.Equal(t, 72, out[1].Confidence)
	require.NotNil(t, out[1].Anomaly)
	assert.Equal(t, statement.SeverityMedium, out[1].Anomaly.Severity)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], `"description":"QWZX PLUMBING 0042"`)
	assert.Contains(t, gen.prompts[0], `"date":"2024-01-15"`)

	require.Len(t, gen.configs, 1)
	assert.Equal(t, "application/json", gen.configs[0].ResponseMIMEType)
	system := gen.configs[0].SystemInstruction.Parts[0].Text
	assert.Contains(t, system, "  - Housing\n")
	assert.Contains(t, system, "Bank: Chase")
}

func TestGemini_ClassifyEmpty(t *testing.T) {
	gen := &fakeGenerator{}
	out, err := newTestGemini(gen).Classify(context.Background(), nil, enrich.ClassifyContext{})
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Empty(t, gen.prompts)
}

func TestGemini_ClassifyInvalidJSON(t *testing.T) {
	gen := &fakeGenerator{text: "I could not classify these transactions."}
	_, err := newTestGemini(gen).Classify(context.Background(), testRows(), enrich.ClassifyContext{})
	require.Error(t, err)
	assert.Equal(t, statement.KindInternal, statement.Kind(err))
}

func TestGemini_ClassifyEmptyResponse(t *testing.T) {
	gen := &fakeGenerator{text: "   "}
	_, err := newTestGemini(gen).Classify(context.Background(), testRows(), enrich.ClassifyContext{})
	assert.ErrorContains(t, err, "empty response")
}

func TestGemini_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
		kind statement.ErrorKind
	}{
		{"rate limited", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota"}, statement.ErrClassifierRateLimited, statement.KindQuota},
		{"exhausted without code", &genai.APIError{Status: "RESOURCE_EXHAUSTED"}, statement.ErrClassifierRateLimited, statement.KindQuota},
		{"bad key", genai.APIError{Code: 403, Status: "PERMISSION_DENIED"}, statement.ErrAINotConfigured, statement.KindConfiguration},
		{"server error", genai.APIError{Code: 500, Status: "INTERNAL"}, nil, statement.KindInternal},
		{"network", errors.New("connection reset"), nil, statement.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{err: tt.err}
			_, err := newTestGemini(gen).Classify(context.Background(), testRows(), enrich.ClassifyContext{})
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			assert.Equal(t, tt.kind, statement.Kind(err))
		})
	}
}

func TestGemini_Summarize(t *testing.T) {
	gen := &fakeGenerator{text: "  You spent most on groceries. Consider a weekly budget.  "}
	g := newTestGemini(gen)

	summary, err := g.Summarize(context.Background(), &statement.AIInsights{
		Summary:    "3 transactions",
		TotalSpent: decimal.RequireFromString("138.17"),
	}, enrich.ClassifyContext{Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, "You spent most on groceries. Consider a weekly budget.", summary)
	assert.Contains(t, gen.prompts[0], "Currency: USD")
	assert.Contains(t, gen.prompts[0], `"totalSpent":"138.17"`)

	empty, err := g.Summarize(context.Background(), nil, enrich.ClassifyContext{})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", `[{"index":0}]`, `[{"index":0}]`},
		{"fenced", "```json\n[{\"index\":0}]\n```", `[{"index":0}]`},
		{"bare fence", "```\n[]\n```", `[]`},
		{"surrounding text", "Here you go: [1, 2] hope it helps", `[1, 2]`},
		{"no array", `{"a":1}`, `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanModelJSON(tt.raw))
		})
	}
}

func TestNormalizeConfidence(t *testing.T) {
	assert.Equal(t, 0, normalizeConfidence(-3))
	assert.Equal(t, 0, normalizeConfidence(0))
	assert.Equal(t, 50, normalizeConfidence(0.5))
	assert.Equal(t, 100, normalizeConfidence(1))
	assert.Equal(t, 88, normalizeConfidence(88))
	assert.Equal(t, 100, normalizeConfidence(140))
}
