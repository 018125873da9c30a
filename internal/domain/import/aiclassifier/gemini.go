// Package aiclassifier implements the AI classification path on Gemini.
package aiclassifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/statementdesk/statement-desk/internal/domain/import/enrich"
	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// generator is the part of the genai client the classifier uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini classifies statement rows with a Gemini model in JSON mode.
type Gemini struct {
	models generator
	model  string
	logger *slog.Logger
}

var _ enrich.Classifier = (*Gemini)(nil)

// NewGemini creates a classifier. An empty API key yields
// statement.ErrAINotConfigured.
func NewGemini(ctx context.Context, apiKey, model string, logger *slog.Logger) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, statement.ErrAINotConfigured
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGemini(client.Models, model, logger), nil
}

func newGemini(models generator, model string, logger *slog.Logger) *Gemini {
	if model == "" {
		model = DefaultModel
	}
	return &Gemini{models: models, model: model, logger: logger}
}

type classificationJSON struct {
	Index              int                `json:"index"`
	Category           string             `json:"category"`
	Subcategory        string             `json:"subcategory"`
	NormalizedMerchant string             `json:"normalizedMerchant"`
	Confidence         float64            `json:"confidence"`
	Reasoning          string             `json:"reasoning"`
	Anomaly            *statement.Anomaly `json:"anomaly"`
}

// Classify sends one chunk of rows and parses the JSON verdicts.
func (g *Gemini) Classify(ctx context.Context, rows []enrich.ClassifyRow, cc enrich.ClassifyContext) ([]enrich.Classification, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode rows: %w", err)
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(classifyPrompt(cc.Categories, cc.BankType, cc.Currency), genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0),
	}

	raw, err := g.generate(ctx, "Input JSON:\n"+string(payload), config)
	if err != nil {
		return nil, err
	}

	var parsed []classificationJSON
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &parsed); err != nil {
		g.logger.Warn("classifier returned invalid json", "model", g.model, "error", err, "response_len", len(raw))
		return nil, fmt.Errorf("decode classifier response: %w", err)
	}

	out := make([]enrich.Classification, 0, len(parsed))
	for _, p := range parsed {
		out = append(out, enrich.Classification{
			Index:              p.Index,
			Category:           p.Category,
			Subcategory:        p.Subcategory,
			NormalizedMerchant: p.NormalizedMerchant,
			Confidence:         normalizeConfidence(p.Confidence),
			Reasoning:          p.Reasoning,
			Anomaly:            normalizeAnomaly(p.Anomaly),
		})
	}
	return out, nil
}

// Summarize asks the model for a narrative over the computed insights.
func (g *Gemini) Summarize(ctx context.Context, insights *statement.AIInsights, cc enrich.ClassifyContext) (string, error) {
	if insights == nil {
		return "", nil
	}
	payload, err := json.Marshal(insights)
	if err != nil {
		return "", fmt.Errorf("encode insights: %w", err)
	}

	prompt := "Statement insights JSON:\n" + string(payload)
	if cc.Currency != "" {
		prompt = "Currency: " + cc.Currency + "\n" + prompt
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(summarySystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0),
	}

	raw, err := g.generate(ctx, prompt, config)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), "`")), nil
}

func (g *Gemini) generate(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error) {
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		return "", mapError(err)
	}
	if resp == nil {
		return "", errors.New("empty response from model")
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty response from model")
	}
	return text, nil
}

// mapError folds genai API failures into the pipeline error taxonomy.
func mapError(err error) error {
	code, status := 0, ""
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code, status = apiErr.Code, apiErr.Status
	case errors.As(err, &apiErrPtr):
		code, status = apiErrPtr.Code, apiErrPtr.Status
	default:
		return fmt.Errorf("generate content: %w", err)
	}

	switch {
	case code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED":
		return fmt.Errorf("%w: %v", statement.ErrClassifierRateLimited, err)
	case code == http.StatusUnauthorized || code == http.StatusForbidden ||
		status == "UNAUTHENTICATED" || status == "PERMISSION_DENIED":
		return fmt.Errorf("%w: %v", statement.ErrAINotConfigured, err)
	}
	return fmt.Errorf("generate content: %w", err)
}

func normalizeConfidence(v float64) int {
	if v > 0 && v <= 1 {
		v *= 100
	}
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return int(v + 0.5)
}

func normalizeAnomaly(a *statement.Anomaly) *statement.Anomaly {
	if a == nil || strings.TrimSpace(a.Description) == "" {
		return nil
	}
	a.Severity = statement.Severity(strings.ToLower(string(a.Severity)))
	if a.Severity.Rank() == 0 {
		a.Severity = statement.SeverityLow
	}
	return a
}

// cleanModelJSON strips Markdown fences and any text around the JSON array.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
